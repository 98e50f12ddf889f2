package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/mark3labs/mcp-go/mcp"
)

// maxResponseSize caps a peer response body.
const maxResponseSize = 50 << 20 // 50MB

// SessionHeader carries the session token in both directions.
const SessionHeader = "Mcp-Session-Id"

const (
	acceptHeader = "application/json, text/event-stream"

	methodInitialize  = string(mcp.MethodInitialize)
	methodInitialized = "notifications/initialized"
	methodToolsList   = string(mcp.MethodToolsList)
	methodToolsCall   = string(mcp.MethodToolsCall)
)

// rpcRequest is an outbound JSON-RPC 2.0 envelope. Notifications carry no id.
type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
	ID      *int64 `json:"id,omitempty"`
}

// response is a peer reply read into memory.
type response struct {
	status      int
	header      http.Header
	contentType string
	body        []byte
}

func (r *response) ok() bool { return r.status >= 200 && r.status < 300 }

// sessionToken reads the session header. http.Header lookups are
// case-insensitive, so any casing the peer uses is found.
func (r *response) sessionToken() string {
	return strings.TrimSpace(r.header.Get(SessionHeader))
}

// Transport posts JSON-RPC envelopes to the peer.
type Transport struct {
	baseURL    string
	httpClient *http.Client
	bearer     string
	logger     *common.Logger
	nextID     atomic.Int64
}

// NewTransport creates a transport for the peer at baseURL. A nil client
// gets a default one bounded by timeout.
func NewTransport(baseURL string, client *http.Client, timeout time.Duration, bearer string, logger *common.Logger) *Transport {
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}
	return &Transport{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: client,
		bearer:     bearer,
		logger:     logger,
	}
}

// BaseURL returns the peer address.
func (t *Transport) BaseURL() string {
	return t.baseURL
}

func (t *Transport) request(method string, params any) rpcRequest {
	id := t.nextID.Add(1)
	return rpcRequest{JSONRPC: mcp.JSONRPC_VERSION, Method: method, Params: params, ID: &id}
}

func (t *Transport) notification(method string, params any) rpcRequest {
	return rpcRequest{JSONRPC: mcp.JSONRPC_VERSION, Method: method, Params: params}
}

// post sends one envelope to route. Only transport failures are returned as
// errors; status codes are left to the caller.
func (t *Transport) post(ctx context.Context, route string, envelope rpcRequest, sessionID string) (*response, error) {
	data, err := json.Marshal(envelope)
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "failed to marshal request", Method: envelope.Method, cause: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+route, bytes.NewReader(data))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: err.Error(), Method: envelope.Method, Route: route, cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", acceptHeader)
	if sessionID != "" {
		req.Header.Set(SessionHeader, sessionID)
	}
	if t.bearer != "" {
		req.Header.Set("Authorization", "Bearer "+t.bearer)
	}

	t.logger.Debug().Str("method", envelope.Method).Str("route", route).Msg("peer request")

	start := time.Now()
	resp, err := t.httpClient.Do(req)
	duration := time.Since(start)
	if err != nil {
		t.logger.Warn().Str("method", envelope.Method).Str("route", route).Int64("duration_ms", duration.Milliseconds()).Str("error", err.Error()).Msg("peer request failed")
		return nil, &Error{Kind: KindTransport, Message: transportMessage(ctx, err), Method: envelope.Method, Route: route, PeerAddress: t.baseURL, cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, &Error{Kind: KindTransport, Message: "failed to read response", Method: envelope.Method, Route: route, cause: err}
	}

	t.logger.Debug().Str("method", envelope.Method).Str("route", route).Int("status", resp.StatusCode).Int64("duration_ms", duration.Milliseconds()).Msg("peer response")

	return &response{
		status:      resp.StatusCode,
		header:      resp.Header,
		contentType: resp.Header.Get("Content-Type"),
		body:        body,
	}, nil
}

func transportMessage(ctx context.Context, err error) string {
	if ctx.Err() != nil {
		return "request cancelled: " + ctx.Err().Error()
	}
	if ue, ok := err.(interface{ Timeout() bool }); ok && ue.Timeout() {
		return "request timed out"
	}
	return fmt.Sprintf("connection failed: %v", err)
}

// statusError builds the error for a non-success reply.
func statusError(method, route string, resp *response) *Error {
	code := resp.status
	body := strings.TrimSpace(string(resp.body))
	if len(body) > 512 {
		body = body[:512]
	}
	return &Error{
		Kind:    KindTransport,
		Message: fmt.Sprintf("HTTP %d: %s", resp.status, body),
		Code:    &code,
		Method:  method,
		Route:   route,
	}
}
