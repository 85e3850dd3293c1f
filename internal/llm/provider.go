// Package llm defines the provider-agnostic dispatch contract the routing
// core needs from an LLM backend. Provider-specific session, run, and
// tool-calling protocols stay behind this interface.
package llm

import "context"

// AgentSpec is the provider-facing slice of an agent definition: just
// enough to provision a backend persona.
type AgentSpec struct {
	Name         string
	Instructions string
	Model        string
	Tools        []string
}

// DispatchResult is the outcome of a single dispatch. A failed dispatch is
// reported through Success/Error so callers can route around it; transport
// errors are returned separately.
type DispatchResult struct {
	Response string
	Success  bool
	Error    string
}

// Provider is the abstraction over any LLM backend.
type Provider interface {
	// EnsureAgent provisions (or re-uses) a backend persona for the given
	// AgentSpec and returns an opaque handle for subsequent dispatches.
	EnsureAgent(ctx context.Context, spec AgentSpec) (string, error)
	// Dispatch sends one message to the persona behind handle.
	Dispatch(ctx context.Context, handle, message string) (*DispatchResult, error)
	// Name returns the provider identifier (e.g. "openai").
	Name() string
}
