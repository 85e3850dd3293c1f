// Package openai implements the llm.Provider dispatch contract on top of
// the OpenAI Chat Completions API via the go-openai SDK. It also serves
// OpenAI-compatible backends such as Ollama through a custom base URL.
package openai

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/jkaninda/busara/internal/llm"
)

const defaultModel = goopenai.GPT4oMini

// Client implements llm.Provider using the OpenAI Chat Completions API.
// Personas are kept client-side: EnsureAgent registers the instructions
// and model under a handle, Dispatch replays them as the system prompt.
type Client struct {
	api    *goopenai.Client
	model  string
	name   string
	logger *slog.Logger

	mu     sync.RWMutex
	agents map[string]llm.AgentSpec // handle -> provisioned spec
}

// Option configures the OpenAI client.
type Option func(*clientConfig)

type clientConfig struct {
	baseURL string
	name    string
}

// WithBaseURL overrides the API base URL.
// For Ollama use "http://localhost:11434/v1" together with WithName("ollama").
func WithBaseURL(url string) Option {
	return func(c *clientConfig) { c.baseURL = url }
}

// WithName overrides the provider name.
func WithName(name string) Option {
	return func(c *clientConfig) { c.name = name }
}

// NewClient creates an OpenAI-compatible provider.
func NewClient(apiKey, model string, logger *slog.Logger, opts ...Option) *Client {
	cc := &clientConfig{name: "openai"}
	for _, opt := range opts {
		opt(cc)
	}

	apiCfg := goopenai.DefaultConfig(apiKey)
	if cc.baseURL != "" {
		apiCfg.BaseURL = cc.baseURL
	}
	if model == "" {
		model = defaultModel
	}

	return &Client{
		api:    goopenai.NewClientWithConfig(apiCfg),
		model:  model,
		name:   cc.name,
		logger: logger,
		agents: make(map[string]llm.AgentSpec),
	}
}

func (c *Client) Name() string { return c.name }

// EnsureAgent registers the persona and returns its handle. Handles are
// deterministic (the agent name) so re-provisioning is idempotent and a
// fallback chain can share them.
func (c *Client) EnsureAgent(_ context.Context, spec llm.AgentSpec) (string, error) {
	if spec.Name == "" {
		return "", fmt.Errorf("agent spec has no name")
	}
	c.mu.Lock()
	c.agents[spec.Name] = spec
	c.mu.Unlock()
	return spec.Name, nil
}

// Dispatch sends one message to the persona behind handle.
func (c *Client) Dispatch(ctx context.Context, handle, message string) (*llm.DispatchResult, error) {
	c.mu.RLock()
	spec, ok := c.agents[handle]
	c.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unknown agent handle %q", handle)
	}

	model := spec.Model
	if model == "" {
		model = c.model
	}

	resp, err := c.api.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: spec.Instructions},
			{Role: goopenai.ChatMessageRoleUser, Content: message},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("openai dispatch for %q: %w", handle, err)
	}
	if len(resp.Choices) == 0 {
		return &llm.DispatchResult{Success: false, Error: "empty completion"}, nil
	}

	c.logger.DebugContext(ctx, "llm dispatch completed",
		slog.String("provider", c.name),
		slog.String("agent", handle),
		slog.String("model", model),
		slog.Int("prompt_tokens", resp.Usage.PromptTokens),
		slog.Int("completion_tokens", resp.Usage.CompletionTokens),
	)

	return &llm.DispatchResult{
		Response: resp.Choices[0].Message.Content,
		Success:  true,
	}, nil
}
