package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/mark3labs/mcp-go/mcp"
)

// SessionState is the lifecycle position of the peer session.
type SessionState string

const (
	StateUnestablished SessionState = "unestablished"
	StateEstablishing  SessionState = "establishing"
	StateActive        SessionState = "active"
)

// ServerInfo identifies the peer as reported by initialize.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// Session is an established peer session.
type Session struct {
	ID              string     `json:"id"`
	Route           string     `json:"route"`
	ProtocolVersion string     `json:"protocol_version,omitempty"`
	ServerInfo      ServerInfo `json:"server_info"`
	EstablishedAt   time.Time  `json:"established_at"`
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// SleepContext is the default SleepFunc.
func SleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SessionOptions configures the handshake.
type SessionOptions struct {
	Routes          []string
	MaxAttempts     int
	BackoffUnit     time.Duration
	ProtocolVersion string
	ClientName      string
	ClientVersion   string
	Sleep           SleepFunc
}

// SessionManager establishes and holds the single peer session.
// At most one handshake is in flight; concurrent callers wait on it.
type SessionManager struct {
	transport *Transport
	opts      SessionOptions
	logger    *common.Logger

	slot chan struct{}

	mu           sync.RWMutex
	session      *Session
	establishing bool

	handshakes atomic.Int64
}

// NewSessionManager creates an unestablished session manager.
func NewSessionManager(transport *Transport, opts SessionOptions, logger *common.Logger) *SessionManager {
	if opts.MaxAttempts < 1 {
		opts.MaxAttempts = 1
	}
	if opts.BackoffUnit <= 0 {
		opts.BackoffUnit = time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = SleepContext
	}
	if len(opts.Routes) == 0 {
		opts.Routes = []string{"/mcp", "/"}
	}
	return &SessionManager{
		transport: transport,
		opts:      opts,
		logger:    logger,
		slot:      make(chan struct{}, 1),
	}
}

// Current returns the active session, if any.
func (m *SessionManager) Current() (Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.session == nil {
		return Session{}, false
	}
	return *m.session, true
}

// State reports the lifecycle state.
func (m *SessionManager) State() SessionState {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch {
	case m.session != nil:
		return StateActive
	case m.establishing:
		return StateEstablishing
	default:
		return StateUnestablished
	}
}

// Handshakes counts initialize exchanges attempted so far.
func (m *SessionManager) Handshakes() int64 {
	return m.handshakes.Load()
}

// Invalidate drops the active session so the next Ensure handshakes again.
func (m *SessionManager) Invalidate() {
	m.mu.Lock()
	m.session = nil
	m.mu.Unlock()
}

// Ensure returns the active session, establishing one if needed.
func (m *SessionManager) Ensure(ctx context.Context) (Session, error) {
	if s, ok := m.Current(); ok {
		return s, nil
	}

	select {
	case m.slot <- struct{}{}:
	case <-ctx.Done():
		return Session{}, m.sessionError("handshake cancelled", ctx.Err())
	}
	defer func() { <-m.slot }()

	// Another caller may have finished while we waited.
	if s, ok := m.Current(); ok {
		return s, nil
	}

	m.setEstablishing(true)
	s, err := m.handshake(ctx)
	if err == nil && ctx.Err() != nil {
		// Cancelled while the initialized notification was in flight.
		err = m.sessionError("handshake cancelled", ctx.Err())
	}
	if err != nil {
		m.setEstablishing(false)
		return Session{}, err
	}

	m.mu.Lock()
	m.session = &s
	m.establishing = false
	m.mu.Unlock()

	m.logger.Info().Str("route", s.Route).Str("server", s.ServerInfo.Name).Str("server_version", s.ServerInfo.Version).Msg("peer session established")
	return s, nil
}

func (m *SessionManager) setEstablishing(v bool) {
	m.mu.Lock()
	m.establishing = v
	m.mu.Unlock()
}

func (m *SessionManager) sessionError(msg string, cause error) *Error {
	return &Error{
		Kind:        KindSession,
		Message:     msg,
		Method:      methodInitialize,
		TriedRoutes: append([]string(nil), m.opts.Routes...),
		PeerAddress: m.transport.BaseURL(),
		cause:       cause,
	}
}

// handshake runs up to MaxAttempts passes over the routes. Backoff of
// 2^attempt units follows every failed pass, the last one included.
func (m *SessionManager) handshake(ctx context.Context) (Session, error) {
	var lastErr error
	for attempt := 0; attempt < m.opts.MaxAttempts; attempt++ {
		s, err := m.tryRoutes(ctx)
		if err == nil {
			return s, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return Session{}, m.sessionError("handshake cancelled", ctx.Err())
		}

		delay := m.opts.BackoffUnit << attempt
		m.logger.Warn().Int("attempt", attempt+1).Int("max_attempts", m.opts.MaxAttempts).Dur("backoff", delay).Err(err).Msg("peer handshake failed")
		if err := m.opts.Sleep(ctx, delay); err != nil {
			return Session{}, m.sessionError("handshake cancelled", err)
		}
	}

	m.logger.Warn().Str("peer", m.transport.BaseURL()).Int("attempts", m.opts.MaxAttempts).Msg("peer unavailable, it may be cold-starting")
	return Session{}, m.sessionError(fmt.Sprintf("failed to initialize session after %d attempts", m.opts.MaxAttempts), lastErr)
}

// tryRoutes makes one pass over the candidate routes. A 404 or a reply
// without a session token moves on to the next route; any other failure
// ends the pass.
func (m *SessionManager) tryRoutes(ctx context.Context) (Session, error) {
	params := mcp.InitializeParams{
		ProtocolVersion: m.opts.ProtocolVersion,
		ClientInfo: mcp.Implementation{
			Name:    m.opts.ClientName,
			Version: m.opts.ClientVersion,
		},
	}

	var lastErr error
	for _, route := range m.opts.Routes {
		m.handshakes.Add(1)
		resp, err := m.transport.post(ctx, route, m.transport.request(methodInitialize, params), "")
		if err != nil {
			return Session{}, err
		}
		if resp.status == 404 {
			lastErr = fmt.Errorf("route %s not found", route)
			continue
		}
		if !resp.ok() {
			return Session{}, statusError(methodInitialize, route, resp)
		}
		token := resp.sessionToken()
		if token == "" {
			m.logger.Warn().Str("route", route).Msg("initialize reply carried no session token")
			lastErr = fmt.Errorf("route %s returned no session token", route)
			continue
		}

		s := Session{ID: token, Route: route, EstablishedAt: time.Now()}
		if env, err := Decode(resp.body, resp.contentType); err == nil {
			if raw, ok := env.Member("error"); ok {
				return Session{}, remoteError(raw, methodInitialize)
			}
			if raw, ok := env.Member("result"); ok {
				var result struct {
					ProtocolVersion string     `json:"protocolVersion"`
					ServerInfo      ServerInfo `json:"serverInfo"`
				}
				if json.Unmarshal(raw, &result) == nil {
					s.ProtocolVersion = result.ProtocolVersion
					s.ServerInfo = result.ServerInfo
				}
			}
		}

		m.acknowledge(ctx, route, token)
		return s, nil
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("no routes configured")
	}
	return Session{}, lastErr
}

// acknowledge sends notifications/initialized. Failure is logged only.
func (m *SessionManager) acknowledge(ctx context.Context, route, token string) {
	resp, err := m.transport.post(ctx, route, m.transport.notification(methodInitialized, map[string]any{}), token)
	if err != nil {
		m.logger.Warn().Str("route", route).Err(err).Msg("failed to send initialized notification")
		return
	}
	if resp.status >= 400 {
		m.logger.Warn().Str("route", route).Int("status", resp.status).Msg("initialized notification rejected")
	}
}
