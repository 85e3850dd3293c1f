// Package cli implements an interactive REPL gateway for Busara. Each
// line is routed through the agent selector and dispatched, so the REPL
// exercises the same selection pipeline as the HTTP and WebSocket
// surfaces, without a running server.
package cli

import (
	"bufio"
	"context"
	"crypto/rand"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/gateway/httpapi"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/workflow"
)

// Gateway is the interactive command-line interface.
type Gateway struct {
	registry  *agent.Registry
	selector  *agent.Selector
	provider  llm.Provider
	engine    *workflow.Engine
	workflows workflow.Store // nil = "/run" disabled.
	logger    *slog.Logger
	done      chan struct{} // closed by Stop to signal shutdown
}

// NewGateway creates a CLI gateway over the given selector and provider.
func NewGateway(registry *agent.Registry, selector *agent.Selector, provider llm.Provider, logger *slog.Logger) *Gateway {
	return &Gateway{
		registry: registry,
		selector: selector,
		provider: provider,
		logger:   logger,
		done:     make(chan struct{}),
	}
}

// WithWorkflows enables the "/run" command against the active workflow.
func (g *Gateway) WithWorkflows(engine *workflow.Engine, store workflow.Store) *Gateway {
	g.engine = engine
	g.workflows = store
	return g
}

// Start runs the interactive REPL. Blocks until ctx is cancelled,
// Stop is called, or the user types "exit".
func (g *Gateway) Start(ctx context.Context) error {
	scanner := bufio.NewScanner(os.Stdin)

	fmt.Println("Busara — rule-routed AI agent gateway")
	fmt.Println("Type your message, \"/agents\" to list agents, \"/run <message>\" to run the active workflow, or \"exit\" to quit.")
	fmt.Println()

	for {
		fmt.Print("busara> ")

		// Check for context cancellation or Stop signal between prompts.
		select {
		case <-ctx.Done():
			fmt.Println("\nShutting down.")
			return nil
		case <-g.done:
			fmt.Println("\nShutting down.")
			return nil
		default:
		}

		if !scanner.Scan() {
			break
		}

		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if line == "exit" || line == "quit" {
			fmt.Println("Goodbye.")
			return nil
		}
		if line == "/agents" {
			g.printAgents()
			continue
		}
		if msg, ok := strings.CutPrefix(line, "/run "); ok {
			g.runWorkflow(ctx, strings.TrimSpace(msg))
			continue
		}

		correlationID := newCorrelationID()
		g.logger.DebugContext(ctx, "cli request",
			slog.String("correlation_id", correlationID),
		)

		resp, err := httpapi.Chat(ctx, g.selector, g.provider, line)
		if err != nil {
			g.logger.ErrorContext(ctx, "cli dispatch failed",
				slog.String("correlation_id", correlationID),
				slog.String("error", err.Error()),
			)
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			continue
		}

		fmt.Println()
		if resp.Success {
			fmt.Printf("[%s]\n%s\n", resp.Agent, resp.Response)
		} else {
			fmt.Printf("[%s] dispatch failed: %s\n", resp.Agent, resp.Error)
		}
		fmt.Println()
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("reading stdin: %w", err)
	}

	return nil
}

// Stop signals the REPL to shut down.
func (g *Gateway) Stop(_ context.Context) error {
	select {
	case <-g.done:
		// Already closed.
	default:
		close(g.done)
	}
	return nil
}

// printAgents lists the configured agents with their routing metadata.
func (g *Gateway) printAgents() {
	defs := g.registry.List()
	if len(defs) == 0 {
		fmt.Println("No agents configured.")
		return
	}
	for _, d := range defs {
		line := fmt.Sprintf("  %s (priority %d", d.Name, d.EffectivePriority())
		if d.Role != "" {
			line += ", role " + string(d.Role)
		}
		line += ")"
		if d.Description != "" {
			line += " — " + d.Description
		}
		fmt.Println(line)
	}
}

// runWorkflow executes the active workflow with the given message.
func (g *Gateway) runWorkflow(ctx context.Context, message string) {
	if g.engine == nil || g.workflows == nil {
		fmt.Println("Workflow execution is not available.")
		return
	}
	if message == "" {
		fmt.Println("Usage: /run <message>")
		return
	}

	def, err := g.workflows.GetActive(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return
	}

	result := g.engine.Run(ctx, def, message)
	fmt.Println()
	if result.Success {
		fmt.Printf("Workflow %s completed (path: %s)\n", def.ID, strings.Join(result.Path, " -> "))
		if ar, ok := result.Result.(*workflow.AgentResult); ok && ar != nil {
			fmt.Println(ar.Response)
		}
	} else {
		fmt.Printf("Workflow %s failed: %s\n", def.ID, result.Error)
	}
	fmt.Println()
}

// newCorrelationID generates a short random hex ID for request tracing.
func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return fmt.Sprintf("%x", b)
}
