// Package mcp exposes deal matching as MCP tools.
//
// The server registers two tools on an mcpsdk.Server:
//
//   - match_deal {dealId}: resolves the deal from the indexer and returns
//     the MatchResult as JSON text.
//   - calculate_epoch {timestamp, initTimestamp, epochDuration}: returns the
//     epoch number for a block timestamp.
//
// Serve it over SSE with mcpsdk.NewSSEHandler, or mount it on the HTTP
// service with http.WithMCPServer:
//
//	server := mcp.NewServer(matcher, version)
//	engine := dealhttp.NewHandler(matcher, dealhttp.WithMCPServer(server))
package mcp
