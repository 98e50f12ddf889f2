package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bobmcallan/vire-gateway/internal/common"
)

// Invoker issues JSON-RPC calls over the active session.
type Invoker struct {
	transport *Transport
	sessions  *SessionManager
	routes    []string
	logger    *common.Logger
}

// NewInvoker creates an invoker that tries routes in order.
func NewInvoker(transport *Transport, sessions *SessionManager, logger *common.Logger) *Invoker {
	return &Invoker{
		transport: transport,
		sessions:  sessions,
		routes:    sessions.opts.Routes,
		logger:    logger,
	}
}

// Call invokes method and returns the decoded, content-reduced result.
// A result flagged isError is returned as a remote error.
func (inv *Invoker) Call(ctx context.Context, method string, params any) (any, error) {
	raw, err := inv.CallRaw(ctx, method, params)
	if err != nil {
		return nil, err
	}
	var result any
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, &Error{Kind: KindDecode, Message: "decode failed", Method: method, cause: err}
	}
	if isToolError(result) {
		return nil, &Error{Kind: KindRemote, Message: stringify(ReduceContent(result)), Method: method}
	}
	return ReduceContent(result), nil
}

// CallRaw invokes method and returns the raw result member. When the peer
// reports the session gone, the session is re-established once and the
// call retried once.
func (inv *Invoker) CallRaw(ctx context.Context, method string, params any) (json.RawMessage, error) {
	raw, lost, err := inv.attempt(ctx, method, params)
	if lost {
		inv.logger.Info().Str("method", method).Msg("peer session lost, re-establishing")
		inv.sessions.Invalidate()
		raw, _, err = inv.attempt(ctx, method, params)
	}
	return raw, err
}

func (inv *Invoker) attempt(ctx context.Context, method string, params any) (json.RawMessage, bool, error) {
	session, err := inv.sessions.Ensure(ctx)
	if err != nil {
		ge := asError(err, KindSession)
		c := *ge
		c.Method = method
		return nil, false, &c
	}

	envelope := inv.transport.request(method, params)
	notFound := 0
	for _, route := range inv.routes {
		resp, err := inv.transport.post(ctx, route, envelope, session.ID)
		if err != nil {
			return nil, false, err
		}
		if resp.status == 404 {
			notFound++
			continue
		}
		if resp.status == 400 && strings.Contains(strings.ToLower(string(resp.body)), "session") {
			return nil, true, statusError(method, route, resp)
		}
		if !resp.ok() {
			return nil, false, statusError(method, route, resp)
		}

		env, err := Decode(resp.body, resp.contentType)
		if err != nil {
			ge := asError(err, KindDecode)
			c := *ge
			c.Method = method
			c.Route = route
			return nil, false, &c
		}
		if raw, ok := env.Member("error"); ok {
			return nil, false, remoteError(raw, method)
		}
		if raw, ok := env["result"]; ok {
			return raw, false, nil
		}
		whole, err := json.Marshal(env)
		if err != nil {
			return nil, false, &Error{Kind: KindDecode, Message: "decode failed", Method: method, cause: err}
		}
		return whole, false, nil
	}

	return nil, notFound == len(inv.routes), &Error{
		Kind:        KindTransport,
		Message:     "failed to reach peer on any route",
		Method:      method,
		TriedRoutes: append([]string(nil), inv.routes...),
		PeerAddress: inv.transport.BaseURL(),
	}
}

// remoteError normalizes a JSON-RPC error member, which may be an object
// with message and code or a bare value.
func remoteError(raw json.RawMessage, method string) *Error {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return &Error{Kind: KindRemote, Message: string(raw), Method: method}
	}
	e := &Error{Kind: KindRemote, Method: method}
	switch x := v.(type) {
	case map[string]any:
		if msg, ok := x["message"]; ok {
			e.Message = stringify(msg)
		} else {
			e.Message = stringify(x)
		}
		if code, ok := x["code"].(float64); ok {
			c := int(code)
			e.Code = &c
		}
	default:
		e.Message = stringify(x)
	}
	return e
}
