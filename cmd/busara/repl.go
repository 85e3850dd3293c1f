package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/config"
	"github.com/jkaninda/busara/internal/gateway"
	"github.com/jkaninda/busara/internal/gateway/cli"
	"github.com/jkaninda/busara/internal/workflow"
	goutils "github.com/jkaninda/go-utils"
)

var replConfigPath string

var replCmd = &cobra.Command{
	Use:   "repl",
	Short: "Interactive chat against the local agent catalog (no server)",
	RunE:  runRepl,
}

func init() {
	replCmd.Flags().StringVar(&replConfigPath, "config", "", "path to config file (JSON or YAML)")
}

// runRepl builds the selection pipeline locally and runs the REPL.
func runRepl(_ *cobra.Command, _ []string) error {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelWarn, // keep REPL output clean
	}))

	configPath := goutils.Env("BUSARA_CONFIG", replConfigPath)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	} else {
		cfg = config.Default()
	}

	store, err := initStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer store.Close()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	provider, err := newLLMProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing LLM provider: %w", err)
	}

	registry := agent.NewRegistry(store.Agents(), agent.RegistryConfig{
		CreationAgent: cfg.Selector.CreationAgent,
		FallbackAgent: cfg.Selector.FallbackAgent,
	}, logger)
	if err := registry.Reload(context.Background()); err != nil {
		return fmt.Errorf("loading agent catalog: %w", err)
	}

	selector := agent.NewSelector(registry, logger)
	engine := workflow.NewEngine(registry, provider, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var gw gateway.Gateway = cli.NewGateway(registry, selector, provider, logger).
		WithWorkflows(engine, store.Workflows())
	return gw.Start(ctx)
}
