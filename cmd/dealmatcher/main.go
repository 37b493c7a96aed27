package main

import (
	"fmt"
	"os"
	"time"

	"github.com/go-logr/logr"
	"github.com/urfave/cli/v2"

	dealmatcher "github.com/Lucky4Angel/deal"
	"github.com/Lucky4Angel/deal/indexer"
	logutil "github.com/Lucky4Angel/deal/internal/logging"
)

var version = "dev"

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:    "dealmatcher",
		Usage:   "Find compute units to match marketplace deals",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "network",
				Value:   indexer.NetworkStage,
				Usage:   "network whose indexer to query (testnet, stage, local)",
				EnvVars: []string{"DEALMATCHER_NETWORK"},
			},
			&cli.StringFlag{
				Name:    "indexer-url",
				Usage:   "indexer GraphQL endpoint, overrides --network",
				EnvVars: []string{"DEALMATCHER_INDEXER_URL"},
			},
			&cli.IntFlag{
				Name:    "page-size",
				Value:   dealmatcher.DefaultMaxPageSize,
				Usage:   "largest page the indexer serves per level",
				EnvVars: []string{"DEALMATCHER_PAGE_SIZE"},
			},
			&cli.Float64Flag{
				Name:    "rps",
				Usage:   "indexer requests per second, 0 for unlimited",
				EnvVars: []string{"DEALMATCHER_RPS"},
			},
			&cli.DurationFlag{
				Name:    "timeout",
				Value:   30 * time.Second,
				Usage:   "indexer request timeout",
				EnvVars: []string{"DEALMATCHER_TIMEOUT"},
			},
			&cli.IntFlag{
				Name:    "log-level",
				Value:   logutil.DEFAULT,
				Usage:   "log verbosity (0 default, 2 verbose, 4 debug, 5 trace)",
				EnvVars: []string{"DEALMATCHER_LOG_LEVEL"},
			},
			&cli.BoolFlag{
				Name:  "dev-log",
				Usage: "human readable console logs",
			},
		},
		Commands: []*cli.Command{
			matchCmd,
			epochCmd,
			serveCmd,
		},
	}
}

func newLogger(c *cli.Context) (logr.Logger, error) {
	return logutil.NewLogger(c.Int("log-level"), c.Bool("dev-log"))
}

// newMatcher wires the indexer client into a matcher from the global flags.
func newMatcher(c *cli.Context, logger logr.Logger, opts ...dealmatcher.MatcherOption) (*dealmatcher.Matcher, error) {
	client, err := indexer.NewClient(&indexer.Config{
		URL:               c.String("indexer-url"),
		Network:           c.String("network"),
		Timeout:           c.Duration("timeout"),
		MaxPageSize:       c.Int("page-size"),
		RequestsPerSecond: c.Float64("rps"),
		Logger:            logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create indexer client: %w", err)
	}
	logger.V(logutil.VERBOSE).Info("Using indexer", "url", client.URL(), "maxPageSize", client.MaxPageSize())

	opts = append([]dealmatcher.MatcherOption{
		dealmatcher.WithMaxPageSize(client.MaxPageSize()),
		dealmatcher.WithLogger(logger),
	}, opts...)
	return dealmatcher.NewMatcher(client, opts...), nil
}
