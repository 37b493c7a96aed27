package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	dealmatcher "github.com/Lucky4Angel/deal"
)

// Tool names
const (
	ToolMatchDeal      = "match_deal"
	ToolCalculateEpoch = "calculate_epoch"
)

// DealMatcher resolves and matches a deal by id.
type DealMatcher interface {
	MatchDeal(ctx context.Context, dealID string) (*dealmatcher.MatchResult, error)
}

type matchDealArgs struct {
	DealID string `json:"dealId"`
}

type calculateEpochArgs struct {
	Timestamp     *int64 `json:"timestamp"`
	InitTimestamp *int64 `json:"initTimestamp"`
	EpochDuration *int64 `json:"epochDuration"`
}

// NewServer creates an MCP server with the matching tools registered.
func NewServer(m DealMatcher, version string) *mcpsdk.Server {
	server := mcpsdk.NewServer(&mcpsdk.Implementation{
		Name:    "dealmatcher",
		Version: version,
	}, nil)

	server.AddTool(&mcpsdk.Tool{
		Name:        ToolMatchDeal,
		Description: "Find compute units to match a deal. Returns offers and compute units grouped per offer, in matchDeal argument order.",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"dealId": map[string]interface{}{
					"type":        "string",
					"description": "Deal contract address",
				},
			},
			"required": []string{"dealId"},
		},
	}, matchDealHandler(m))

	server.AddTool(&mcpsdk.Tool{
		Name:        ToolCalculateEpoch,
		Description: "Compute the network epoch for a block timestamp",
		InputSchema: map[string]interface{}{
			"type": "object",
			"properties": map[string]interface{}{
				"timestamp":     map[string]interface{}{"type": "integer"},
				"initTimestamp": map[string]interface{}{"type": "integer"},
				"epochDuration": map[string]interface{}{"type": "integer", "minimum": 1},
			},
			"required": []string{"timestamp", "initTimestamp", "epochDuration"},
		},
	}, calculateEpochHandler)

	return server
}

func matchDealHandler(m DealMatcher) mcpsdk.ToolHandler {
	return func(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
		var args matchDealArgs
		if err := decodeArgs(req, &args); err != nil {
			return errorResult(err), nil
		}
		if args.DealID == "" {
			return errorResult(dealmatcher.NewMatchError(dealmatcher.ErrCodeInvalidRequest, "dealId is required", nil)), nil
		}

		res, err := m.MatchDeal(ctx, args.DealID)
		if err != nil {
			return errorResult(err), nil
		}
		return jsonResult(res)
	}
}

func calculateEpochHandler(ctx context.Context, req *mcpsdk.CallToolRequest) (*mcpsdk.CallToolResult, error) {
	var args calculateEpochArgs
	if err := decodeArgs(req, &args); err != nil {
		return errorResult(err), nil
	}
	if args.Timestamp == nil || args.InitTimestamp == nil || args.EpochDuration == nil {
		return errorResult(dealmatcher.NewMatchError(dealmatcher.ErrCodeInvalidRequest,
			"timestamp, initTimestamp and epochDuration are required", nil)), nil
	}
	if *args.EpochDuration <= 0 {
		return errorResult(dealmatcher.NewMatchError(dealmatcher.ErrCodeInvalidRequest, "epochDuration must be positive", nil)), nil
	}

	epoch := dealmatcher.CalculateEpoch(*args.Timestamp, *args.InitTimestamp, *args.EpochDuration)
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: strconv.FormatInt(epoch, 10)}},
	}, nil
}

func decodeArgs(req *mcpsdk.CallToolRequest, out interface{}) error {
	if req.Params == nil || len(req.Params.Arguments) == 0 {
		return nil
	}
	if err := json.Unmarshal(req.Params.Arguments, out); err != nil {
		return dealmatcher.NewMatchError(dealmatcher.ErrCodeInvalidRequest, fmt.Sprintf("invalid arguments: %v", err), nil)
	}
	return nil
}

func jsonResult(v interface{}) (*mcpsdk.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil
}

// errorResult reports err to the model as a tool error. Match errors keep
// their code so callers can tell "already matched" from a transport failure.
func errorResult(err error) *mcpsdk.CallToolResult {
	text := err.Error()
	var me *dealmatcher.MatchError
	if errors.As(err, &me) {
		if data, mErr := json.Marshal(me); mErr == nil {
			text = string(data)
		}
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		IsError: true,
	}
}
