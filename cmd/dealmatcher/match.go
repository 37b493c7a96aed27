package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/hexutil"
	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/urfave/cli/v2"

	dealmatcher "github.com/Lucky4Angel/deal"
	"github.com/Lucky4Angel/deal/mcp"
)

type dealMatcher interface {
	MatchDeal(ctx context.Context, dealID string) (*dealmatcher.MatchResult, error)
}

var matchCmd = &cli.Command{
	Name:    "match",
	Usage:   "Match a deal and print the result",
	Aliases: []string{"m"},
	Flags: []cli.Flag{
		&cli.StringFlag{
			Name:     "deal",
			Required: true,
			Usage:    "deal contract address",
		},
		&cli.BoolFlag{
			Name:  "calldata",
			Usage: "print matchDeal calldata instead of the result",
		},
		&cli.StringFlag{
			Name:  "mcp-endpoint",
			Usage: "match through a remote MCP server (SSE endpoint) instead of the indexer",
		},
	},
	Action: func(c *cli.Context) error {
		logger, err := newLogger(c)
		if err != nil {
			return err
		}

		var m dealMatcher
		if endpoint := c.String("mcp-endpoint"); endpoint != "" {
			client := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "dealmatcher-cli", Version: version}, nil)
			session, err := client.Connect(c.Context, &mcpsdk.SSEClientTransport{Endpoint: endpoint}, nil)
			if err != nil {
				return fmt.Errorf("failed to connect to %s: %w", endpoint, err)
			}
			remote := mcp.NewClient(session)
			defer remote.Close()
			m = remote
		} else {
			local, err := newMatcher(c, logger)
			if err != nil {
				return err
			}
			m = local
		}

		dealID := c.String("deal")
		res, err := m.MatchDeal(c.Context, dealID)
		if err != nil {
			return err
		}

		if !c.Bool("calldata") {
			return printJSON(c, res)
		}
		if !res.Fulfilled {
			if err := printJSON(c, res); err != nil {
				return err
			}
			return errors.New("deal can not be fulfilled, no calldata produced")
		}
		data, err := dealmatcher.PackMatchDeal(dealID, res)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(c.App.Writer, hexutil.Encode(data))
		return err
	},
}

var epochCmd = &cli.Command{
	Name:  "epoch",
	Usage: "Compute the epoch for a block timestamp",
	Flags: []cli.Flag{
		&cli.Int64Flag{Name: "timestamp", Required: true, Usage: "block timestamp (seconds)"},
		&cli.Int64Flag{Name: "init", Required: true, Usage: "epoch controller init timestamp (seconds)"},
		&cli.Int64Flag{Name: "duration", Required: true, Usage: "epoch duration (seconds)"},
	},
	Action: func(c *cli.Context) error {
		duration := c.Int64("duration")
		if duration <= 0 {
			return errors.New("invalid duration")
		}
		_, err := fmt.Fprintln(c.App.Writer, dealmatcher.CalculateEpoch(c.Int64("timestamp"), c.Int64("init"), duration))
		return err
	},
}

func printJSON(c *cli.Context, v interface{}) error {
	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
