package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/bobmcallan/vire-gateway/internal/config"
)

// peerCall records one request seen by the mock peer.
type peerCall struct {
	Route   string
	Method  string
	Session string
	Name    string
	Args    map[string]any
}

// rpcFault is returned by a call handler to answer with an error envelope.
type rpcFault struct {
	Code    int
	Message string
}

// peerConfig is the behaviour of a mockPeer.
type peerConfig struct {
	routes       map[string]bool
	sse          bool
	tools        string
	initFailures int
	initDelay    time.Duration
	omitToken    bool
	lowerHeader  bool
	onCall       func(name string, args map[string]any) any

	onInitialized func()
}

// mockPeer is an httptest MCP server speaking streamable HTTP.
type mockPeer struct {
	server *httptest.Server

	mu      sync.Mutex
	cfg     peerConfig
	current string
	calls   []peerCall
	auth    string

	initCount atomic.Int64
}

func newMockPeer(t *testing.T) *mockPeer {
	t.Helper()
	p := &mockPeer{cfg: peerConfig{routes: map[string]bool{"/mcp": true}, tools: `[]`}}
	p.server = httptest.NewServer(http.HandlerFunc(p.serve))
	t.Cleanup(p.server.Close)
	return p
}

func (p *mockPeer) URL() string { return p.server.URL }

func (p *mockPeer) configure(fn func(c *peerConfig)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(&p.cfg)
}

// expire forgets the issued session so the next call is rejected.
func (p *mockPeer) expire() {
	p.mu.Lock()
	p.current = ""
	p.mu.Unlock()
}

func (p *mockPeer) recorded() []peerCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]peerCall(nil), p.calls...)
}

func (p *mockPeer) recordedMethod(method string) []peerCall {
	var out []peerCall
	for _, c := range p.recorded() {
		if c.Method == method {
			out = append(out, c)
		}
	}
	return out
}

func (p *mockPeer) authorization() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.auth
}

func (p *mockPeer) serve(w http.ResponseWriter, r *http.Request) {
	p.mu.Lock()
	cfg := p.cfg
	p.mu.Unlock()

	if !cfg.routes[r.URL.Path] {
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

	call := peerCall{Route: r.URL.Path, Method: req.Method, Session: r.Header.Get("mcp-session-id")}
	if req.Method == methodToolsCall {
		var params struct {
			Name      string         `json:"name"`
			Arguments map[string]any `json:"arguments"`
		}
		_ = json.Unmarshal(req.Params, &params)
		call.Name, call.Args = params.Name, params.Arguments
	}
	p.mu.Lock()
	p.calls = append(p.calls, call)
	p.auth = r.Header.Get("Authorization")
	p.mu.Unlock()

	switch req.Method {
	case methodInitialize:
		p.initialize(w, cfg, req.ID)
	case methodInitialized:
		if cfg.onInitialized != nil {
			cfg.onInitialized()
		}
		w.WriteHeader(http.StatusAccepted)
	case methodToolsList:
		if !p.validSession(w, call.Session) {
			return
		}
		p.reply(w, cfg, req.ID, json.RawMessage(`{"tools":`+cfg.tools+`}`))
	case methodToolsCall:
		if !p.validSession(w, call.Session) {
			return
		}
		var result any = map[string]any{"content": []any{map[string]any{"type": "text", "text": "ok"}}}
		if cfg.onCall != nil {
			result = cfg.onCall(call.Name, call.Args)
		}
		if f, ok := result.(rpcFault); ok {
			p.write(w, cfg, map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": f.Code, "message": f.Message}})
			return
		}
		p.reply(w, cfg, req.ID, result)
	default:
		p.write(w, cfg, map[string]any{"jsonrpc": "2.0", "id": req.ID, "error": map[string]any{"code": -32601, "message": "method not found"}})
	}
}

func (p *mockPeer) initialize(w http.ResponseWriter, cfg peerConfig, id *int64) {
	n := p.initCount.Add(1)
	if cfg.initDelay > 0 {
		time.Sleep(cfg.initDelay)
	}
	if int(n) <= cfg.initFailures {
		http.Error(w, "service cold-starting", http.StatusServiceUnavailable)
		return
	}
	if !cfg.omitToken {
		token := fmt.Sprintf("session-%d", n)
		p.mu.Lock()
		p.current = token
		p.mu.Unlock()
		if cfg.lowerHeader {
			w.Header()["mcp-session-id"] = []string{token}
		} else {
			w.Header().Set(SessionHeader, token)
		}
	}
	p.reply(w, cfg, id, map[string]any{
		"protocolVersion": "2024-11-05",
		"capabilities":    map[string]any{"tools": map[string]any{}},
		"serverInfo":      map[string]any{"name": "vnstock-mcp", "version": "1.2.0"},
	})
}

func (p *mockPeer) validSession(w http.ResponseWriter, session string) bool {
	p.mu.Lock()
	current := p.current
	p.mu.Unlock()
	if current == "" || session != current {
		http.Error(w, "Bad Request: No valid session ID provided", http.StatusBadRequest)
		return false
	}
	return true
}

func (p *mockPeer) reply(w http.ResponseWriter, cfg peerConfig, id *int64, result any) {
	p.write(w, cfg, map[string]any{"jsonrpc": "2.0", "id": id, "result": result})
}

func (p *mockPeer) write(w http.ResponseWriter, cfg peerConfig, envelope any) {
	b, _ := json.Marshal(envelope)
	if cfg.sse {
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprintf(w, "event: message\ndata: %s\n\n", b)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(b)
}

// textResult builds a tools/call result with one text item.
func textResult(text string) map[string]any {
	return map[string]any{"content": []any{map[string]any{"type": "text", "text": text}}}
}

// sleepRecorder records backoff delays without waiting.
type sleepRecorder struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.delays = append(s.delays, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) recorded() []time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]time.Duration(nil), s.delays...)
}

func testConfig(url string) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Peer.URL = url
	cfg.Peer.Timeout = 5
	cfg.Peer.BackoffUnit = "1ms"
	return cfg
}

// newTestSessions builds a transport and session manager against url.
func newTestSessions(url string, sleeper *sleepRecorder) (*Transport, *SessionManager) {
	logger := common.NewSilentLogger()
	tr := NewTransport(url, nil, 5*time.Second, "", logger)
	sm := NewSessionManager(tr, SessionOptions{
		Routes:          []string{"/mcp", "/"},
		MaxAttempts:     3,
		BackoffUnit:     time.Second,
		ProtocolVersion: "2024-11-05",
		ClientName:      "vire-gateway-test",
		ClientVersion:   "0.0.1",
		Sleep:           sleeper.sleep,
	}, logger)
	return tr, sm
}

var ict = time.FixedZone("ICT", 7*60*60)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
