package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	dealmatcher "github.com/Lucky4Angel/deal"
)

// Client calls the matching tools of a remote MCP server.
// It implements DealMatcher, so a remote server can stand in for a local
// matcher.
type Client struct {
	session *mcpsdk.ClientSession
}

// NewClient wraps a connected MCP client session.
//
// Example:
//
//	mcpClient := mcpsdk.NewClient(&mcpsdk.Implementation{Name: "cli", Version: "1.0.0"}, nil)
//	session, err := mcpClient.Connect(ctx, &mcpsdk.SSEClientTransport{Endpoint: url}, nil)
//	if err != nil { ... }
//	client := mcp.NewClient(session)
func NewClient(session *mcpsdk.ClientSession) *Client {
	return &Client{session: session}
}

// Close closes the underlying session
func (c *Client) Close() error {
	return c.session.Close()
}

// MatchDeal calls the match_deal tool
func (c *Client) MatchDeal(ctx context.Context, dealID string) (*dealmatcher.MatchResult, error) {
	text, err := c.call(ctx, ToolMatchDeal, map[string]interface{}{"dealId": dealID})
	if err != nil {
		return nil, err
	}

	var res dealmatcher.MatchResult
	if err := json.Unmarshal([]byte(text), &res); err != nil {
		return nil, fmt.Errorf("failed to decode %s result: %w", ToolMatchDeal, err)
	}
	return &res, nil
}

// CalculateEpoch calls the calculate_epoch tool
func (c *Client) CalculateEpoch(ctx context.Context, timestamp, initTimestamp, epochDuration int64) (int64, error) {
	text, err := c.call(ctx, ToolCalculateEpoch, map[string]interface{}{
		"timestamp":     timestamp,
		"initTimestamp": initTimestamp,
		"epochDuration": epochDuration,
	})
	if err != nil {
		return 0, err
	}
	epoch, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("failed to decode %s result: %w", ToolCalculateEpoch, err)
	}
	return epoch, nil
}

// call invokes a tool and returns its text content. Tool errors carrying a
// MatchError body are returned as *dealmatcher.MatchError.
func (c *Client) call(ctx context.Context, name string, args map[string]interface{}) (string, error) {
	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("failed to call tool %s: %w", name, err)
	}

	var parts []string
	for _, content := range result.Content {
		if text, ok := content.(*mcpsdk.TextContent); ok {
			parts = append(parts, text.Text)
		}
	}
	text := strings.Join(parts, "")

	if result.IsError {
		var me dealmatcher.MatchError
		if err := json.Unmarshal([]byte(text), &me); err == nil && me.Code != "" {
			return "", &me
		}
		return "", fmt.Errorf("tool %s failed: %s", name, text)
	}
	return text, nil
}
