package mcp

import (
	"context"
	"encoding/json"

	"github.com/bobmcallan/vire-gateway/internal/config"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

const versionToolName = "get_version"

// peerVersion is the peer half of the get_version reply.
type peerVersion struct {
	URL          string `json:"url"`
	Name         string `json:"name,omitempty"`
	Version      string `json:"version,omitempty"`
	SessionState string `json:"session_state"`
	Degraded     bool   `json:"degraded"`
}

// VersionTool returns the mcp.Tool definition for get_version.
func VersionTool() mcp.Tool {
	return mcp.NewTool(versionToolName,
		mcp.WithDescription("Get the gateway version and the status of the remote tool server. Use this to verify connectivity."),
	)
}

// VersionToolHandler reports gateway build info and the peer's serverInfo.
func VersionToolHandler(gw Gateway) server.ToolHandlerFunc {
	return func(ctx context.Context, r mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		st := gw.Status()
		peer := peerVersion{
			URL:          st.PeerURL,
			SessionState: string(st.SessionState),
			Degraded:     st.Degraded,
		}
		if st.ServerInfo != nil {
			peer.Name = st.ServerInfo.Name
			peer.Version = st.ServerInfo.Version
		}

		out, err := json.Marshal(map[string]any{
			"vire_gateway": config.GetVersionInfo(),
			"peer":         peer,
		})
		if err != nil {
			return errorResult("failed to marshal version info"), nil
		}
		return textResult(string(out)), nil
	}
}
