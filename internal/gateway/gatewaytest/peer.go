// Package gatewaytest provides an in-process MCP peer for tests of the
// packages built on top of the gateway.
package gatewaytest

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// ToolFunc answers a tools/call for one capability. The returned value is
// used as the JSON-RPC result.
type ToolFunc func(args map[string]any) any

// Call is one tools/call seen by the peer.
type Call struct {
	Name string
	Args map[string]any
}

// Peer is a streamable-HTTP MCP server on /mcp backed by httptest.
type Peer struct {
	server *httptest.Server

	mu       sync.Mutex
	tools    string
	handlers map[string]ToolFunc
	down     bool
	session  int
	current  string
	calls    []Call
}

// NewPeer starts a peer publishing toolsJSON (a JSON array of tool
// definitions) and closes it when the test ends.
func NewPeer(t testing.TB, toolsJSON string) *Peer {
	t.Helper()
	p := &Peer{tools: toolsJSON, handlers: make(map[string]ToolFunc)}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.server.Close)
	return p
}

// URL returns the peer base address.
func (p *Peer) URL() string { return p.server.URL }

// Handle installs the answer for a capability.
func (p *Peer) Handle(name string, fn ToolFunc) {
	p.mu.Lock()
	p.handlers[name] = fn
	p.mu.Unlock()
}

// SetTools replaces the published catalog.
func (p *Peer) SetTools(toolsJSON string) {
	p.mu.Lock()
	p.tools = toolsJSON
	p.mu.Unlock()
}

// SetDown makes every request fail with 503 while down is true.
func (p *Peer) SetDown(down bool) {
	p.mu.Lock()
	p.down = down
	p.mu.Unlock()
}

// Calls returns the recorded tools/call requests.
func (p *Peer) Calls() []Call {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Call(nil), p.calls...)
}

// Text builds a tools/call result with one text item.
func Text(text string) map[string]any {
	return map[string]any{"content": []any{map[string]any{"type": "text", "text": text}}}
}

func (p *Peer) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	down := p.down
	p.mu.Unlock()
	if down {
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	if r.URL.Path != "/mcp" {
		http.NotFound(w, r)
		return
	}

	var req struct {
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
		ID     *int64          `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	switch req.Method {
	case "initialize":
		p.mu.Lock()
		p.session++
		p.current = fmt.Sprintf("session-%d", p.session)
		token := p.current
		p.mu.Unlock()
		w.Header().Set("Mcp-Session-Id", token)
		p.reply(w, req.ID, map[string]any{
			"protocolVersion": "2024-11-05",
			"capabilities":    map[string]any{"tools": map[string]any{}},
			"serverInfo":      map[string]any{"name": "vnstock-mcp", "version": "1.2.0"},
		})
	case "notifications/initialized":
		w.WriteHeader(http.StatusAccepted)
	case "tools/list":
		if !p.validSession(w, r) {
			return
		}
		p.mu.Lock()
		tools := p.tools
		p.mu.Unlock()
		p.reply(w, req.ID, json.RawMessage(`{"tools":`+tools+`}`))
	case "tools/call":
		if !p.validSession(w, r) {
			return
		}
		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		_ = json.Unmarshal(req.Params, &params)

		p.mu.Lock()
		p.calls = append(p.calls, Call{Name: params.Name, Args: params.Arguments})
		fn := p.handlers[params.Name]
		p.mu.Unlock()

		var result any = Text("ok")
		if fn != nil {
			result = fn(params.Arguments)
		}
		p.reply(w, req.ID, result)
	default:
		p.write(w, map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32601, "message": "method not found"}})
	}
}

func (p *Peer) validSession(w http.ResponseWriter, r *http.Request) bool {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == "" || r.Header.Get("Mcp-Session-Id") != current {
		http.Error(w, "Bad Request: No valid session ID provided", http.StatusBadRequest)
		return false
	}
	return true
}

func (p *Peer) reply(w http.ResponseWriter, id *int64, result any) {
	p.write(w, map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (p *Peer) write(w http.ResponseWriter, envelope any) {
	b, _ := json.Marshal(envelope)
	w.Header().Set("Content-Type", "text/event-stream")
	fmt.Fprintf(w, "event: message\ndata: %s\n\n", b)
}
