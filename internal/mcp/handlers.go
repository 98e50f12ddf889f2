package mcp

import (
	"context"

	"github.com/bobmcallan/vire-gateway/internal/gateway"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// errorResult creates an MCP error result.
func errorResult(message string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.NewTextContent(message),
		},
		IsError: true,
	}
}

// textResult creates a successful MCP result with one text block.
func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.NewTextContent(text)},
	}
}

// OperationHandler routes an MCP tool call to a gateway operation. Failed
// results carry the error payload as JSON text with IsError set.
func OperationHandler(op gateway.Operation) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		res := op.Call(ctx, r.GetArguments())
		if res.Failed() {
			return errorResult(res.Text()), nil
		}
		return textResult(res.Text()), nil
	}
}
