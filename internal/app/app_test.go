package app

import (
	"testing"

	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/bobmcallan/vire-gateway/internal/config"
	"github.com/bobmcallan/vire-gateway/internal/gateway"
	"github.com/bobmcallan/vire-gateway/internal/gateway/gatewaytest"
)

const priceBoardCatalog = `[{"name":"get_price_board","description":"Price board","inputSchema":{"type":"object","properties":{"symbols":{"type":"array","items":{"type":"string"}}},"required":["symbols"]}}]`

func testConfig(url string) *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.Peer.URL = url
	cfg.Peer.Timeout = 5
	cfg.Peer.BackoffUnit = "1ms"
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config) *App {
	t.Helper()
	application, err := New(t.Context(), cfg, common.NewSilentLogger())
	if err != nil {
		t.Fatalf("failed to create test app: %v", err)
	}
	t.Cleanup(func() {
		application.Close()
	})
	return application
}

func names(ops []gateway.Operation) map[string]bool {
	out := make(map[string]bool, len(ops))
	for _, op := range ops {
		out[op.Name()] = true
	}
	return out
}

func TestNew_LoadsPeerCatalog(t *testing.T) {
	peer := gatewaytest.NewPeer(t, priceBoardCatalog)
	a := newTestApp(t, testConfig(peer.URL()))

	if a.Gateway.Degraded() {
		t.Fatal("gateway should not be degraded with a reachable peer")
	}
	got := names(a.Gateway.Operations())
	if !got["get_price_board"] || !got[gateway.ClockCapability] {
		t.Errorf("unexpected operations %v", got)
	}
	if a.MCPHandler == nil {
		t.Fatal("expected MCP handler")
	}
	if a.Quotes == nil {
		t.Error("expected the default memory quote cache")
	}
}

func TestNew_PeerDownDegrades(t *testing.T) {
	peer := gatewaytest.NewPeer(t, priceBoardCatalog)
	peer.SetDown(true)
	a := newTestApp(t, testConfig(peer.URL()))

	if !a.Gateway.Degraded() {
		t.Fatal("expected degraded gateway")
	}
	got := names(a.Gateway.Operations())
	for _, name := range config.DefaultStubCapabilities {
		if !got[name] {
			t.Errorf("missing stub %s", name)
		}
	}
}

func TestReload_RecoversAfterPeerReturns(t *testing.T) {
	peer := gatewaytest.NewPeer(t, priceBoardCatalog)
	peer.SetDown(true)
	a := newTestApp(t, testConfig(peer.URL()))

	peer.SetDown(false)
	status := a.Reload(t.Context())

	if status.Degraded {
		t.Fatal("expected recovery after reload")
	}
	// get_price_board, clock and get_version.
	if n := a.MCPHandler.Refresh(); n != 3 {
		t.Errorf("expected 3 MCP tools, got %d", n)
	}
}

func TestNew_CacheBackendNone(t *testing.T) {
	peer := gatewaytest.NewPeer(t, priceBoardCatalog)
	cfg := testConfig(peer.URL())
	cfg.Cache.Backend = "none"

	a := newTestApp(t, cfg)
	if a.Quotes != nil {
		t.Errorf("expected no quote cache, got %T", a.Quotes)
	}
}

func TestNew_UnknownCacheBackend(t *testing.T) {
	cfg := testConfig("http://127.0.0.1:1")
	cfg.Cache.Backend = "memcached"

	if _, err := New(t.Context(), cfg, common.NewSilentLogger()); err == nil {
		t.Fatal("expected error for unknown cache backend")
	}
}
