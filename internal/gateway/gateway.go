// Package gateway connects to a remote MCP tool server over streamable HTTP
// and exposes its capabilities as locally callable operations.
//
// A Gateway owns one peer session, a cached capability catalog and the
// operations synthesized from it. When the peer cannot be reached the
// gateway degrades to stub operations that report the outage instead of
// failing the caller.
package gateway

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/bobmcallan/vire-gateway/internal/cache"
	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/bobmcallan/vire-gateway/internal/config"
)

// Status summarizes the gateway for health reporting.
type Status struct {
	PeerURL      string       `json:"peer_url"`
	SessionState SessionState `json:"session_state"`
	Degraded     bool         `json:"degraded"`
	Operations   int          `json:"operations"`
	ServerInfo   *ServerInfo  `json:"server_info,omitempty"`
	LoadedAt     time.Time    `json:"loaded_at"`
}

// Option customizes a Gateway.
type Option func(*Gateway)

// WithHTTPClient replaces the peer HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(g *Gateway) { g.httpClient = c }
}

// WithSleep replaces the handshake backoff sleeper.
func WithSleep(fn SleepFunc) Option {
	return func(g *Gateway) { g.sleep = fn }
}

// WithClock replaces the time source used for trading hours and fallback dates.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithQuoteCache sets the store for fallback closing prices.
func WithQuoteCache(s cache.Store) Option {
	return func(g *Gateway) { g.quotes = s }
}

// Gateway is the composition of session, invoker, catalog and operations.
type Gateway struct {
	cfg        *config.Config
	logger     *common.Logger
	httpClient *http.Client
	sleep      SleepFunc
	now        func() time.Time
	quotes     cache.Store

	transport *Transport
	sessions  *SessionManager
	invoker   *Invoker
	catalog   *Catalog
	sniffer   FailureSniffer
	hours     TradingHours

	mu       sync.RWMutex
	ops      map[string]Operation
	order    []string
	degraded bool
	loadedAt time.Time
}

// New creates a gateway for the configured peer. No network traffic
// happens until Load or the first call.
func New(cfg *config.Config, logger *common.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		ops:    make(map[string]Operation),
	}
	for _, opt := range opts {
		opt(g)
	}

	g.transport = NewTransport(cfg.Peer.URL, g.httpClient, cfg.Peer.RequestTimeout(), cfg.Peer.BearerToken, logger)
	g.sessions = NewSessionManager(g.transport, SessionOptions{
		Routes:          cfg.Peer.Routes,
		MaxAttempts:     cfg.Peer.HandshakeAttempts,
		BackoffUnit:     cfg.Peer.GetBackoffUnit(),
		ProtocolVersion: cfg.Peer.ProtocolVersion,
		ClientName:      cfg.Peer.ClientName,
		ClientVersion:   cfg.Peer.ClientVersion,
		Sleep:           g.sleep,
	}, logger)
	g.invoker = NewInvoker(g.transport, g.sessions, logger)
	g.catalog = NewCatalog(g.invoker, logger)
	g.sniffer = NewFailureSniffer(cfg.Gateway.FailureKeywords)
	g.hours = TradingHours{
		Location:  cfg.Market.Location(),
		OpenHour:  cfg.Market.OpenHour,
		CloseHour: cfg.Market.CloseHour,
	}
	return g
}

// Load establishes the session, lists the catalog and synthesizes
// operations. Peer failures degrade to stub operations; Load never fails.
func (g *Gateway) Load(ctx context.Context) Status {
	if _, err := g.sessions.Ensure(ctx); err != nil {
		g.logger.Warn().Str("peer", g.transport.BaseURL()).Str("error", err.Error()).Msg("peer unavailable, publishing stub capabilities")
		g.install(g.stubs(), true)
		return g.Status()
	}

	descs, _ := g.catalog.Reload(ctx)
	if len(descs) == 0 {
		g.logger.Warn().Str("peer", g.transport.BaseURL()).Msg("peer returned no capabilities, publishing stub capabilities")
		g.install(g.stubs(), true)
		return g.Status()
	}

	ops := make([]Operation, 0, len(descs)+1)
	for _, d := range descs {
		var op Operation = Synthesize(d, g.invoker, g.sniffer, g.logger)
		if d.Name == IntradayCapability {
			op = NewIntradayFallback(op, g.invoker, g.hours, g.cfg.Gateway.FallbackDays, g.now, g.quotes, g.logger)
		}
		ops = append(ops, op)
	}
	g.install(ops, false)
	return g.Status()
}

// Reload drops cached quotes and loads again. A degraded gateway retries
// the handshake.
func (g *Gateway) Reload(ctx context.Context) Status {
	invalidateQuotes(ctx, g.quotes)
	return g.Load(ctx)
}

func (g *Gateway) stubs() []Operation {
	return NewStubOperations(g.cfg.Gateway.StubCapabilities, g.transport.BaseURL())
}

// install replaces the operation table. The local clock is added unless
// the peer publishes a capability of the same name.
func (g *Gateway) install(ops []Operation, degraded bool) {
	table := make(map[string]Operation, len(ops)+1)
	order := make([]string, 0, len(ops)+1)
	for _, op := range ops {
		if _, dup := table[op.Name()]; dup {
			continue
		}
		table[op.Name()] = op
		order = append(order, op.Name())
	}
	if _, ok := table[ClockCapability]; !ok {
		table[ClockCapability] = NewClockOperation(g.hours, g.now)
		order = append(order, ClockCapability)
	}

	g.mu.Lock()
	g.ops = table
	g.order = order
	g.degraded = degraded
	g.loadedAt = g.now()
	g.mu.Unlock()

	g.logger.Info().Int("operations", len(order)).Bool("degraded", degraded).Msg("gateway operations installed")
}

// Operation looks up an operation by name.
func (g *Gateway) Operation(name string) (Operation, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	op, ok := g.ops[name]
	return op, ok
}

// Operations returns the operations in catalog order.
func (g *Gateway) Operations() []Operation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	ops := make([]Operation, 0, len(g.order))
	for _, name := range g.order {
		ops = append(ops, g.ops[name])
	}
	return ops
}

// Call dispatches to the named operation.
func (g *Gateway) Call(ctx context.Context, name string, args map[string]any) Result {
	op, ok := g.Operation(name)
	if !ok {
		return Result{Err: &Error{
			Kind:       KindValidation,
			Message:    fmt.Sprintf("unknown capability %q", name),
			Capability: name,
		}}
	}
	if args == nil {
		args = map[string]any{}
	}
	return op.Call(ctx, args)
}

// Degraded reports whether stub operations are installed.
func (g *Gateway) Degraded() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.degraded
}

// Session returns the active peer session, if any.
func (g *Gateway) Session() (Session, bool) {
	return g.sessions.Current()
}

// PeerURL returns the peer base address.
func (g *Gateway) PeerURL() string {
	return g.transport.BaseURL()
}

// Status reports the current gateway state.
func (g *Gateway) Status() Status {
	g.mu.RLock()
	st := Status{
		PeerURL:    g.transport.BaseURL(),
		Degraded:   g.degraded,
		Operations: len(g.order),
		LoadedAt:   g.loadedAt,
	}
	g.mu.RUnlock()

	st.SessionState = g.sessions.State()
	if s, ok := g.sessions.Current(); ok {
		info := s.ServerInfo
		st.ServerInfo = &info
	}
	return st
}
