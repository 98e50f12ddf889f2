package gateway

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/bobmcallan/vire-gateway/internal/common"
	"github.com/google/uuid"
)

// Operation is a named capability the calling layer can invoke.
type Operation interface {
	Name() string
	Descriptor() Descriptor
	Call(ctx context.Context, args map[string]any) Result
}

// Result is the outcome of an operation: content or a tagged error, never both.
type Result struct {
	Content any
	Err     *Error
}

// Failed reports an error result.
func (r Result) Failed() bool { return r.Err != nil }

// Value returns the content, or the error payload for a failed result.
func (r Result) Value() any {
	if r.Err != nil {
		return r.Err.Payload()
	}
	return r.Content
}

// Text renders the result for a text-only channel. Strings are returned as
// is; structures are encoded as JSON.
func (r Result) Text() string {
	v := r.Value()
	if s, ok := v.(string); ok {
		return s
	}
	b, err := json.Marshal(v)
	if err != nil {
		return stringify(v)
	}
	return string(b)
}

// Caller invokes a JSON-RPC method on the peer.
type Caller interface {
	Call(ctx context.Context, method string, params any) (any, error)
}

// BoundOperation dispatches one remote capability through tools/call.
type BoundOperation struct {
	desc       Descriptor
	normalizer *Normalizer
	caller     Caller
	sniffer    FailureSniffer
	logger     *common.Logger
}

// Synthesize binds a descriptor to a caller.
func Synthesize(d Descriptor, caller Caller, sniffer FailureSniffer, logger *common.Logger) *BoundOperation {
	return &BoundOperation{
		desc:       d,
		normalizer: NewNormalizer(d),
		caller:     caller,
		sniffer:    sniffer,
		logger:     logger,
	}
}

func (o *BoundOperation) Name() string           { return o.desc.Name }
func (o *BoundOperation) Descriptor() Descriptor { return o.desc }

// Call normalizes and binds args, invokes the capability and classifies
// the reply.
func (o *BoundOperation) Call(ctx context.Context, args map[string]any) Result {
	logger := o.logger.WithCorrelationId(uuid.NewString())

	bound, verr := o.normalizer.Bind(o.normalizer.Normalize(args))
	if verr != nil {
		logger.Warn().Str("capability", o.desc.Name).Str("error", verr.Message).Msg("argument validation failed")
		return Result{Err: verr}
	}

	logger.Debug().Str("capability", o.desc.Name).Int("args", len(bound)).Msg("invoking capability")
	value, err := o.caller.Call(ctx, methodToolsCall, map[string]any{
		"name":      o.desc.Name,
		"arguments": bound,
	})
	if err != nil {
		ge := asError(err, KindTransport).withCapability(o.desc.Name)
		logger.Warn().Str("capability", o.desc.Name).Str("kind", string(ge.Kind)).Str("error", ge.Message).Msg("capability call failed")
		return Result{Err: ge}
	}

	content := ReduceContent(value)
	if m, ok := errorObject(content); ok {
		ge := structuredFailure(m, o.desc.Name)
		logger.Info().Str("capability", o.desc.Name).Str("error", ge.Message).Msg("capability returned an error structure")
		return Result{Err: ge}
	}
	if text, ok := content.(string); ok && o.sniffer.LooksLikeFailure(text) {
		msg := strings.TrimSpace(text)
		if msg == "" {
			msg = "empty response"
		}
		logger.Info().Str("capability", o.desc.Name).Msg("capability reported failure in text")
		return Result{Err: &Error{Kind: KindRemote, Message: msg, Capability: o.desc.Name}}
	}
	return Result{Content: content}
}
