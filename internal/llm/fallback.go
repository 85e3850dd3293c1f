package llm

import (
	"context"
	"fmt"
	"log/slog"
)

// FallbackProvider wraps multiple providers and tries them in order.
// If the primary provider fails, subsequent providers are tried until
// one succeeds or all have failed.
type FallbackProvider struct {
	providers []Provider
	logger    *slog.Logger
}

// NewFallbackProvider creates a provider that tries each provider in order.
// At least one provider is required.
func NewFallbackProvider(providers []Provider, logger *slog.Logger) *FallbackProvider {
	if len(providers) == 0 {
		panic("FallbackProvider requires at least one provider")
	}
	return &FallbackProvider{
		providers: providers,
		logger:    logger,
	}
}

// EnsureAgent provisions the persona on every wrapped provider so any of
// them can serve a later dispatch. The first provider's handle is returned;
// providers that fail to provision are skipped at dispatch time.
func (f *FallbackProvider) EnsureAgent(ctx context.Context, spec AgentSpec) (string, error) {
	var handle string
	var lastErr error
	ok := false
	for _, p := range f.providers {
		h, err := p.EnsureAgent(ctx, spec)
		if err != nil {
			lastErr = err
			f.logger.WarnContext(ctx, "provider provisioning failed",
				slog.String("provider", p.Name()),
				slog.String("agent", spec.Name),
				slog.String("error", err.Error()),
			)
			continue
		}
		if !ok {
			handle = h
			ok = true
		}
	}
	if !ok {
		return "", fmt.Errorf("all %d providers failed to provision agent %q: %w", len(f.providers), spec.Name, lastErr)
	}
	return handle, nil
}

// Dispatch tries each provider in order, returning the first successful result.
func (f *FallbackProvider) Dispatch(ctx context.Context, handle, message string) (*DispatchResult, error) {
	var lastErr error
	for i, p := range f.providers {
		result, err := p.Dispatch(ctx, handle, message)
		if err == nil {
			if i > 0 {
				f.logger.InfoContext(ctx, "provider fallback succeeded",
					slog.String("provider", p.Name()),
					slog.Int("attempt", i+1),
				)
			}
			return result, nil
		}
		lastErr = err
		f.logger.WarnContext(ctx, "provider failed, trying next",
			slog.String("provider", p.Name()),
			slog.String("error", err.Error()),
			slog.Int("attempt", i+1),
			slog.Int("remaining", len(f.providers)-i-1),
		)
	}
	return nil, fmt.Errorf("all %d providers failed, last error: %w", len(f.providers), lastErr)
}

// Name returns a composite name indicating fallback configuration.
func (f *FallbackProvider) Name() string {
	return f.providers[0].Name() + "+fallback"
}
