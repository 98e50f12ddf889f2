package gateway

import (
	"context"
	"fmt"
)

const (
	stubUserMessage = "Market data is temporarily unavailable. Please try again in a moment."
	stubSuggestion  = "The remote tool server may be cold-starting or unreachable. Retry shortly or check the peer URL."
)

// StubOperation stands in for a capability while the peer is unavailable.
type StubOperation struct {
	name string
	peer string
}

// NewStubOperations returns one stub per name.
func NewStubOperations(names []string, peer string) []Operation {
	ops := make([]Operation, 0, len(names))
	for _, name := range names {
		ops = append(ops, &StubOperation{name: name, peer: peer})
	}
	return ops
}

func (s *StubOperation) Name() string { return s.name }

func (s *StubOperation) Descriptor() Descriptor {
	return Descriptor{
		Name:        s.name,
		Description: fmt.Sprintf("%s (unavailable: remote tool server unreachable)", s.name),
	}
}

// Call always returns an unavailable error.
func (s *StubOperation) Call(_ context.Context, _ map[string]any) Result {
	return Result{Err: &Error{
		Kind:        KindUnavailable,
		Message:     fmt.Sprintf("remote tool server unavailable, capability %s cannot be called", s.name),
		Capability:  s.name,
		PeerAddress: s.peer,
		UserMessage: stubUserMessage,
		Suggestion:  stubSuggestion,
	}}
}
