package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	dealhttp "github.com/Lucky4Angel/deal/http"
	logutil "github.com/Lucky4Angel/deal/internal/logging"
	"github.com/Lucky4Angel/deal/mcp"
	"github.com/Lucky4Angel/deal/metrics"
)

var serveCmd = &cli.Command{
	Name:  "serve",
	Usage: "Serve matching over HTTP",
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:    "addr",
			Value:   ":8080",
			Usage:   "listen address",
			EnvVars: []string{"DEALMATCHER_ADDR"},
		},
		&cli.BoolFlag{
			Name:  "mcp",
			Usage: "also serve the MCP tools over SSE on /mcp",
		},
		&cli.DurationFlag{
			Name:  "request-timeout",
			Value: 60 * time.Second,
			Usage: "upper bound for one matching attempt",
		},
	},
	Action: func(c *cli.Context) error {
		logger, err := newLogger(c)
		if err != nil {
			return err
		}

		collector := metrics.NewCollector("")
		m, err := newMatcher(c, logger, collector.MatcherOptions()...)
		if err != nil {
			return err
		}

		opts := []dealhttp.HandlerOption{
			dealhttp.WithLogger(logger),
			dealhttp.WithMetrics(collector),
			dealhttp.WithRequestTimeout(c.Duration("request-timeout")),
		}
		if c.Bool("mcp") {
			opts = append(opts, dealhttp.WithMCPServer(mcp.NewServer(m, version)))
		}

		server := &http.Server{
			Addr:              c.String("addr"),
			Handler:           dealhttp.NewHandler(m, opts...),
			ReadHeaderTimeout: 10 * time.Second,
		}

		ctx, stop := signal.NotifyContext(c.Context, os.Interrupt, syscall.SIGTERM)
		defer stop()

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Serving", "addr", server.Addr, "mcp", c.Bool("mcp"))
			errCh <- server.ListenAndServe()
		}()

		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				logutil.Fatal(logger, err, "Server failed")
			}
			return nil
		case <-ctx.Done():
		}

		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	},
}
