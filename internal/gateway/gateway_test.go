package gateway

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/bobmcallan/vire-gateway/internal/cache"
	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/bobmcallan/vire-gateway/internal/config"
)

const peerCatalogJSON = `[
	{"name": "get_price_board", "description": "Live board", "inputSchema": {"properties": {"symbols": {"type": "array", "items": {"type": "string"}}, "output_format": {"type": "string", "default": "json"}}, "required": ["symbols"]}},
	{"name": "get_quote_intraday_price", "description": "Intraday ticks", "inputSchema": {"properties": {"symbol": {"type": "string"}, "output_format": {"type": "string", "default": "json"}}, "required": ["symbol"]}},
	{"name": "get_quote_history_price", "description": "History", "inputSchema": {"properties": {"symbol": {"type": "string"}, "start_date": {"type": "string"}, "end_date": {"type": "string"}, "interval": {"type": "string", "default": "1D"}, "output_format": {"type": "string", "default": "json"}}, "required": ["symbol", "start_date"]}}
]`

func newTestGateway(t *testing.T, cfg *config.Config, opts ...Option) *Gateway {
	t.Helper()
	opts = append([]Option{WithSleep((&sleepRecorder{}).sleep), WithClock(fixedClock(marketOpen))}, opts...)
	return New(cfg, common.NewSilentLogger(), opts...)
}

func operationNames(g *Gateway) []string {
	var names []string
	for _, op := range g.Operations() {
		names = append(names, op.Name())
	}
	return names
}

func TestGateway_LoadPublishesCatalog(t *testing.T) {
	peer := newMockPeer(t)
	peer.configure(func(c *peerConfig) { c.tools = peerCatalogJSON })
	g := newTestGateway(t, testConfig(peer.URL()))

	st := g.Load(context.Background())
	if st.Degraded {
		t.Fatal("expected healthy gateway")
	}
	want := []string{"get_price_board", "get_quote_intraday_price", "get_quote_history_price", ClockCapability}
	if got := operationNames(g); !reflect.DeepEqual(got, want) {
		t.Errorf("operations = %v, want %v", got, want)
	}
	if st.SessionState != StateActive || st.ServerInfo == nil || st.ServerInfo.Name != "vnstock-mcp" {
		t.Errorf("unexpected status %+v", st)
	}
	if st.Operations != 4 {
		t.Errorf("expected 4 operations, got %d", st.Operations)
	}

	op, ok := g.Operation(IntradayCapability)
	if !ok {
		t.Fatal("missing intraday operation")
	}
	if _, wrapped := op.(*IntradayFallback); !wrapped {
		t.Errorf("intraday operation must be wrapped by the fallback, got %T", op)
	}
}

func TestGateway_StubModeOnHandshakeFailure(t *testing.T) {
	peer := newMockPeer(t)
	peer.configure(func(c *peerConfig) { c.initFailures = 100 })
	g := newTestGateway(t, testConfig(peer.URL()))

	st := g.Load(context.Background())
	if !st.Degraded || !g.Degraded() {
		t.Fatal("expected degraded gateway")
	}
	want := append(append([]string(nil), config.DefaultStubCapabilities...), ClockCapability)
	if got := operationNames(g); !reflect.DeepEqual(got, want) {
		t.Errorf("operations = %v, want %v", got, want)
	}

	for _, name := range config.DefaultStubCapabilities {
		res := g.Call(context.Background(), name, map[string]any{"symbol": "VNM"})
		if !errors.Is(res.Err, ErrUnavailable) {
			t.Fatalf("%s: expected ErrUnavailable, got %+v", name, res)
		}
		p := res.Err.Payload()
		for _, key := range []string{"error", "message", "capability", "peer_address", "suggestion"} {
			if _, ok := p[key]; !ok {
				t.Errorf("%s: stub payload missing %q: %#v", name, key, p)
			}
		}
		if p["peer_address"] != peer.URL() {
			t.Errorf("unexpected peer address %v", p["peer_address"])
		}
	}

	if res := g.Call(context.Background(), ClockCapability, nil); res.Failed() {
		t.Errorf("clock must work in stub mode, got %v", res.Err)
	}
}

func TestGateway_StubModeOnEmptyCatalog(t *testing.T) {
	peer := newMockPeer(t)
	g := newTestGateway(t, testConfig(peer.URL()))

	if st := g.Load(context.Background()); !st.Degraded {
		t.Fatal("expected degraded gateway for an empty catalog")
	}
	if st := g.Status(); st.SessionState != StateActive {
		t.Errorf("session stays active with an empty catalog, got %s", st.SessionState)
	}
	if _, ok := g.Operation("get_company_news"); !ok {
		t.Error("expected stub operations")
	}
}

func TestGateway_PriceBoardCanonicalization(t *testing.T) {
	peer := newMockPeer(t)
	peer.configure(func(c *peerConfig) { c.tools = peerCatalogJSON })
	g := newTestGateway(t, testConfig(peer.URL()))
	g.Load(context.Background())

	res := g.Call(context.Background(), "get_price_board", map[string]any{"symbol": "VNM"})
	if res.Failed() {
		t.Fatalf("unexpected error %v", res.Err)
	}

	calls := peer.recordedMethod(methodToolsCall)
	if len(calls) != 1 {
		t.Fatalf("expected 1 tools/call, got %d", len(calls))
	}
	want := map[string]any{"symbols": []any{"VNM"}, "output_format": "json"}
	if !reflect.DeepEqual(calls[0].Args, want) {
		t.Errorf("peer received %#v, want %#v", calls[0].Args, want)
	}
}

func TestGateway_IntradayFallbackEndToEnd(t *testing.T) {
	peer := newMockPeer(t)
	peer.configure(func(c *peerConfig) {
		c.tools = peerCatalogJSON
		c.onCall = func(name string, args map[string]any) any {
			if name == IntradayCapability {
				return map[string]any{"isError": true, "content": []any{map[string]any{"type": "text", "text": "market closed"}}}
			}
			return textResult(fmt.Sprintf("history %s %s..%s", args["symbol"], args["start_date"], args["end_date"]))
		}
	})
	g := newTestGateway(t, testConfig(peer.URL()))
	g.Load(context.Background())

	res := g.Call(context.Background(), IntradayCapability, map[string]any{"stock": "VNM"})
	if res.Failed() {
		t.Fatalf("unexpected error %v", res.Err)
	}
	if res.Content != "history VNM 2024-11-01..2024-11-08" {
		t.Errorf("unexpected content %#v", res.Content)
	}

	var history int
	for _, c := range peer.recordedMethod(methodToolsCall) {
		if c.Name == HistoryCapability {
			history++
		}
	}
	if history != 1 {
		t.Errorf("expected exactly one history call, got %d", history)
	}
}

func TestGateway_IntradayErrorStructureFallsBack(t *testing.T) {
	peer := newMockPeer(t)
	peer.configure(func(c *peerConfig) {
		c.tools = peerCatalogJSON
		c.onCall = func(name string, args map[string]any) any {
			if name == IntradayCapability {
				return map[string]any{"error": "x"}
			}
			return textResult("closing prices")
		}
	})
	g := newTestGateway(t, testConfig(peer.URL()))
	g.Load(context.Background())

	res := g.Call(context.Background(), IntradayCapability, map[string]any{"symbol": "VCB"})
	if res.Failed() {
		t.Fatalf("unexpected error %v", res.Err)
	}
	if res.Content != "closing prices" {
		t.Errorf("expected closing prices, got %#v", res.Content)
	}

	var history int
	for _, c := range peer.recordedMethod(methodToolsCall) {
		if c.Name == HistoryCapability {
			history++
		}
	}
	if history != 1 {
		t.Errorf("expected exactly one history call, got %d", history)
	}
}

func TestGateway_ErrorStructureIsRemoteError(t *testing.T) {
	tests := []struct {
		name   string
		result any
		want   string
	}{
		{"bare map", map[string]any{"error": "x"}, "x"},
		{"json text", textResult(`{"error": "no data for VNM", "code": 404}`), "no data for VNM"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			peer := newMockPeer(t)
			peer.configure(func(c *peerConfig) {
				c.tools = peerCatalogJSON
				c.onCall = func(string, map[string]any) any { return tt.result }
			})
			g := newTestGateway(t, testConfig(peer.URL()))
			g.Load(context.Background())

			res := g.Call(context.Background(), "get_price_board", map[string]any{"symbols": []any{"VNM"}})
			if !res.Failed() || !errors.Is(res.Err, ErrRemote) {
				t.Fatalf("expected remote error, got %+v", res)
			}
			if res.Err.Message != tt.want || res.Err.Capability != "get_price_board" {
				t.Errorf("unexpected error %+v", res.Err)
			}
		})
	}
}

func TestGateway_UnknownCapability(t *testing.T) {
	peer := newMockPeer(t)
	peer.configure(func(c *peerConfig) { c.tools = peerCatalogJSON })
	g := newTestGateway(t, testConfig(peer.URL()))
	g.Load(context.Background())

	res := g.Call(context.Background(), "get_weather", nil)
	if !errors.Is(res.Err, ErrValidation) {
		t.Errorf("expected ErrValidation, got %+v", res)
	}
}

func TestGateway_ReloadRecoversFromDegraded(t *testing.T) {
	peer := newMockPeer(t)
	peer.configure(func(c *peerConfig) {
		c.tools = peerCatalogJSON
		c.initFailures = 3
	})
	store := cache.NewMemoryStore(time.Minute, 10)
	store.Set(context.Background(), "quote:VNM:json:2024-11-08", []byte(`"stale"`))
	g := newTestGateway(t, testConfig(peer.URL()), WithQuoteCache(store))

	if st := g.Load(context.Background()); !st.Degraded {
		t.Fatal("expected degraded after cold start")
	}
	st := g.Reload(context.Background())
	if st.Degraded {
		t.Fatalf("expected recovery on reload, got %+v", st)
	}
	if _, ok := g.Operation("get_quote_history_price"); !ok {
		t.Error("expected remote operations after reload")
	}
	if store.Len() != 0 {
		t.Error("reload must drop cached quotes")
	}
}

func TestGateway_ConcurrentCallsShareSession(t *testing.T) {
	peer := newMockPeer(t)
	peer.configure(func(c *peerConfig) { c.tools = peerCatalogJSON })
	g := newTestGateway(t, testConfig(peer.URL()))
	g.Load(context.Background())

	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res := g.Call(context.Background(), "get_price_board", map[string]any{"symbols": []any{"VNM", "FPT"}})
			if res.Failed() {
				t.Errorf("call failed: %v", res.Err)
			}
		}()
	}
	wg.Wait()

	if n := peer.initCount.Load(); n != 1 {
		t.Errorf("expected one handshake, got %d", n)
	}
	for _, c := range peer.recordedMethod(methodToolsCall) {
		if c.Session != "session-1" {
			t.Errorf("call used session %q", c.Session)
		}
	}
}
