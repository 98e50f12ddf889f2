package gateway

import (
	"fmt"
	"strings"
)

// ErrorKind tags a gateway failure.
type ErrorKind string

const (
	KindDecode      ErrorKind = "decode"      // malformed or missing envelope
	KindSession     ErrorKind = "session"     // handshake exhausted routes and attempts
	KindTransport   ErrorKind = "transport"   // timeout, connection failure, HTTP failure
	KindRemote      ErrorKind = "remote"      // peer returned an error envelope or error text
	KindValidation  ErrorKind = "validation"  // arguments could not be bound
	KindUnavailable ErrorKind = "unavailable" // stub mode
)

// kindError is the sentinel form of an ErrorKind, for errors.Is.
type kindError ErrorKind

func (k kindError) Error() string { return string(k) + " error" }

// Sentinels matched by errors.Is against any *Error of the same kind.
var (
	ErrDecode      error = kindError(KindDecode)
	ErrSession     error = kindError(KindSession)
	ErrTransport   error = kindError(KindTransport)
	ErrRemote      error = kindError(KindRemote)
	ErrValidation  error = kindError(KindValidation)
	ErrUnavailable error = kindError(KindUnavailable)
)

// Error is the tagged failure value produced by every gateway layer.
// Its JSON form is what the calling layer shows to the model.
type Error struct {
	Kind         ErrorKind `json:"kind"`
	Message      string    `json:"error"`
	Code         *int      `json:"code,omitempty"`
	Method       string    `json:"method,omitempty"`
	Capability   string    `json:"capability,omitempty"`
	Route        string    `json:"route,omitempty"`
	TriedRoutes  []string  `json:"tried_routes,omitempty"`
	PeerAddress  string    `json:"peer_address,omitempty"`
	FallbackFrom string    `json:"fallback_from,omitempty"`
	UserMessage  string    `json:"message,omitempty"`
	Suggestion   string    `json:"suggestion,omitempty"`

	cause error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Capability != "" {
		b.WriteString(e.Capability)
		b.WriteString(": ")
	} else if e.Method != "" {
		b.WriteString(e.Method)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	if e.cause != nil && e.cause.Error() != e.Message {
		fmt.Fprintf(&b, " (%v)", e.cause)
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.cause }

// Is matches the kind sentinels.
func (e *Error) Is(target error) bool {
	k, ok := target.(kindError)
	return ok && ErrorKind(k) == e.Kind
}

// Payload returns the map form of the error, omitting empty fields.
func (e *Error) Payload() map[string]any {
	p := map[string]any{
		"error": e.Message,
		"kind":  string(e.Kind),
	}
	if e.Code != nil {
		p["code"] = *e.Code
	}
	set := func(key, val string) {
		if val != "" {
			p[key] = val
		}
	}
	set("method", e.Method)
	set("capability", e.Capability)
	set("route", e.Route)
	set("peer_address", e.PeerAddress)
	set("fallback_from", e.FallbackFrom)
	set("message", e.UserMessage)
	set("suggestion", e.Suggestion)
	if len(e.TriedRoutes) > 0 {
		p["tried_routes"] = append([]string(nil), e.TriedRoutes...)
	}
	return p
}

// asError converts any error into a *Error, keeping an existing one.
func asError(err error, kind ErrorKind) *Error {
	if err == nil {
		return nil
	}
	if ge, ok := err.(*Error); ok {
		return ge
	}
	return &Error{Kind: kind, Message: err.Error(), cause: err}
}

// withCapability returns a copy of e attributed to a capability.
func (e *Error) withCapability(name string) *Error {
	c := *e
	c.Capability = name
	return &c
}
