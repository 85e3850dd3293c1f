package httpapi

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/rule"
)

func TestChatSelectsAgentAndDispatchesInstructions(t *testing.T) {
	selector := newTestSelector(t, []agent.Definition{
		{
			Name:         "Translator",
			Instructions: "Translate this: {{ input_user }}",
			ShouldUse:    rule.Keywords("translate"),
		},
		{
			Name:         "General",
			Instructions: "Answer the question.",
			Role:         agent.RoleFallback,
		},
	})
	provider := &fakeProvider{response: "bonjour"}

	resp, err := Chat(context.Background(), selector, provider, "translate hello")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}

	if resp.Agent != "Translator" {
		t.Errorf("agent = %q, want Translator", resp.Agent)
	}
	if !resp.Success {
		t.Error("expected success")
	}
	if resp.Response != "bonjour" {
		t.Errorf("response = %q", resp.Response)
	}
	if provider.dispatched != "Translate this: translate hello" {
		t.Errorf("dispatched message = %q", provider.dispatched)
	}
	if provider.ensured.Instructions != "Translate this: {{ input_user }}" {
		t.Errorf("ensured instructions = %q, want raw template", provider.ensured.Instructions)
	}
}

func TestChatFallsBackWhenNoRuleMatches(t *testing.T) {
	selector := newTestSelector(t, []agent.Definition{
		{
			Name:         "Translator",
			Instructions: "Translate this: {{ input_user }}",
			ShouldUse:    rule.Keywords("translate"),
		},
		{
			Name:         "General",
			Instructions: "Answer: {{ input_user }}",
			Role:         agent.RoleFallback,
		},
	})
	provider := &fakeProvider{response: "42"}

	resp, err := Chat(context.Background(), selector, provider, "what is the answer")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Agent != "General" {
		t.Errorf("agent = %q, want General", resp.Agent)
	}
}

func TestChatReportsDispatchFailureWithoutError(t *testing.T) {
	selector := newTestSelector(t, []agent.Definition{
		{Name: "General", Instructions: "Answer.", Role: agent.RoleFallback},
	})
	provider := &fakeProvider{failMessage: "model overloaded"}

	resp, err := Chat(context.Background(), selector, provider, "hello")
	if err != nil {
		t.Fatalf("Chat: %v", err)
	}
	if resp.Success {
		t.Error("expected failure result")
	}
	if resp.Error != "model overloaded" {
		t.Errorf("error = %q", resp.Error)
	}
}

func TestNewCorrelationID(t *testing.T) {
	a, b := newCorrelationID(), newCorrelationID()
	if len(a) != 16 {
		t.Errorf("len = %d, want 16 hex chars", len(a))
	}
	if a == b {
		t.Error("correlation IDs must be unique")
	}
}

// **** Test helpers ****

func newTestSelector(t *testing.T, defs []agent.Definition) *agent.Selector {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := agent.NewRegistry(staticStore(defs), agent.RegistryConfig{}, logger)
	if err := registry.Reload(context.Background()); err != nil {
		t.Fatalf("Reload: %v", err)
	}
	return agent.NewSelector(registry, logger)
}

// staticStore serves a fixed agent catalog.
type staticStore []agent.Definition

func (s staticStore) LoadAll(context.Context) ([]agent.Definition, error) { return s, nil }
func (s staticStore) Save(context.Context, []agent.Definition) error      { return nil }

// fakeProvider records what was ensured and dispatched.
type fakeProvider struct {
	response    string
	failMessage string
	ensured     llm.AgentSpec
	dispatched  string
}

func (f *fakeProvider) EnsureAgent(_ context.Context, spec llm.AgentSpec) (string, error) {
	f.ensured = spec
	return "handle-" + spec.Name, nil
}

func (f *fakeProvider) Dispatch(_ context.Context, _ string, message string) (*llm.DispatchResult, error) {
	f.dispatched = message
	if f.failMessage != "" {
		return &llm.DispatchResult{Success: false, Error: f.failMessage}, nil
	}
	return &llm.DispatchResult{Response: f.response, Success: true}, nil
}

func (f *fakeProvider) Name() string { return "fake" }
