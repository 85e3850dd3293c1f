package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/config"
	"github.com/jkaninda/busara/internal/gateway/httpapi"
	"github.com/jkaninda/busara/internal/gateway/ws"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/llm/anthropic"
	"github.com/jkaninda/busara/internal/llm/openai"
	"github.com/jkaninda/busara/internal/observability"
	"github.com/jkaninda/busara/internal/ratelimit"
	"github.com/jkaninda/busara/internal/scheduler"
	"github.com/jkaninda/busara/internal/storage"
	"github.com/jkaninda/busara/internal/storage/gormdb"
	"github.com/jkaninda/busara/internal/storage/memory"
	"github.com/jkaninda/busara/internal/workflow"
	goutils "github.com/jkaninda/go-utils"
)

var (
	serverConfigPath string
	serverAddr       string
	serverDebug      bool
)

var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the agent gateway server (HTTP + WebSocket)",
	RunE:  runServer,
}

func init() {
	// Register flags on both root and server so that
	// `busara --config path` and `busara server --config path` both work.
	for _, cmd := range []*cobra.Command{rootCmd, serverCmd} {
		cmd.Flags().StringVar(&serverConfigPath, "config", "", "path to config file (JSON or YAML)")
		cmd.Flags().StringVar(&serverAddr, "addr", "", "override HTTP listen address (e.g. :8080)")
		cmd.Flags().BoolVar(&serverDebug, "debug", false, "enable debug logging")
	}
}

// runServer starts Busara in server mode.
func runServer(_ *cobra.Command, _ []string) error {
	level := slog.LevelInfo
	if serverDebug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	configPath := goutils.Env("BUSARA_CONFIG", serverConfigPath)

	var cfg *config.Config
	var err error
	if configPath != "" {
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		logger.Info("configuration loaded", slog.String("path", configPath))
	} else {
		cfg = config.Default()
		logger.Info("no config file, using defaults")
	}

	// Apply CLI overrides.
	if serverAddr != "" {
		cfg.Server.Addr = serverAddr
	}

	// Observability.
	obs, err := observability.New(cfg.Observability, logger)
	if err != nil {
		return fmt.Errorf("initializing observability: %w", err)
	}
	if obs != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			obs.Shutdown(shutdownCtx)
		}()
		logger.Debug("observability initialized",
			slog.Bool("metrics", obs.Metrics != nil),
			slog.Bool("tracing", obs.Tracer != nil),
		)
	}

	// Storage.
	store, err := initStore(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("closing store", slog.String("error", err.Error()))
		}
	}()

	if err := store.Migrate(context.Background()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Debug("storage initialized", slog.String("driver", store.Driver()))

	// LLM provider.
	provider, err := newLLMProvider(cfg, logger)
	if err != nil {
		return fmt.Errorf("initializing LLM provider: %w", err)
	}
	logger.Debug("llm provider initialized", slog.String("provider", provider.Name()))

	if obs != nil && obs.Metrics != nil {
		provider = observability.NewInstrumentedProvider(provider, obs.Metrics, obs.TracerOrNil())
	}

	// Agent registry + selector.
	registry := agent.NewRegistry(store.Agents(), agent.RegistryConfig{
		CreationAgent: cfg.Selector.CreationAgent,
		FallbackAgent: cfg.Selector.FallbackAgent,
	}, logger)
	if err := registry.Reload(context.Background()); err != nil {
		return fmt.Errorf("loading agent catalog: %w", err)
	}
	logger.Info("agent catalog loaded", slog.Int("agents", registry.Count()))

	selector := agent.NewSelector(registry, logger)
	if obs != nil && obs.Metrics != nil {
		selector.OnSelect(obs.Metrics.RecordSelection)
	}

	// Workflow engine.
	engineOpts := []workflow.Option{
		workflow.WithObserver(workflow.LogObserver{Logger: logger}),
	}
	if obs != nil && obs.Metrics != nil {
		engineOpts = append(engineOpts, workflow.WithMetrics(workflow.NewMetrics(obs.Metrics.Registry)))
	}
	engine := workflow.NewEngine(registry, provider, logger, engineOpts...)

	// Health checks.
	if obs != nil && obs.Health != nil {
		if gdb, ok := store.(*gormdb.Store); ok {
			obs.Health.AddCheck("database", gdb.Ping)
		}
	}

	// Signal-aware context.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Scheduler (optional).
	if cfg.Scheduler != nil && cfg.Scheduler.Enabled {
		var schedMetrics *scheduler.Metrics
		if obs != nil && obs.Metrics != nil {
			schedMetrics = scheduler.NewMetrics(obs.Metrics.Registry)
		}
		sched := scheduler.New(store.Workflows(), engine, schedMetrics, logger, scheduler.Config{
			TriggerMessage:  cfg.Scheduler.Message(),
			RefreshInterval: cfg.Scheduler.RefreshInterval(),
		})
		cancelScheduler := sched.Start(ctx)
		defer cancelScheduler()
	}

	// HTTP gateway.
	gw := buildHTTPGateway(cfg, obs, registry, selector, provider, engine, store, logger)

	// WebSocket chat endpoint, mounted on the HTTP server.
	wsServer := ws.NewServer(ws.Config{Token: cfg.Server.APIKey}, selector, provider, logger).
		WithWorkflows(engine, store.Workflows())
	gw.WithHandler("/ws/chat", wsServer.Handler())

	// Run until signal or server error.
	errs := make(chan error, 1)
	go func() {
		errs <- gw.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errs:
		if err != nil {
			logger.Error("gateway exited with error", slog.String("error", err.Error()))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return gw.Stop(shutdownCtx)
}

// buildHTTPGateway assembles the HTTP API gateway from config and shared components.
func buildHTTPGateway(
	cfg *config.Config,
	obs *observability.Observability,
	registry *agent.Registry,
	selector *agent.Selector,
	provider llm.Provider,
	engine *workflow.Engine,
	store storage.Store,
	logger *slog.Logger,
) *httpapi.Gateway {
	var limiter *ratelimit.Limiter
	if cfg.Server.RateLimit != nil {
		limiter = ratelimit.NewLimiter(ratelimit.Config{
			RequestsPerMinute: cfg.Server.RateLimit.RequestsPerMinute,
			BurstSize:         cfg.Server.RateLimit.Burst,
		})
	}

	httpCfg := httpapi.Config{
		ListenAddr:   cfg.Server.Address(),
		APIKey:       cfg.Server.APIKey,
		ReadTimeout:  cfg.Server.ReadTimeout(),
		WriteTimeout: cfg.Server.WriteTimeout(),
	}
	if obs != nil {
		httpCfg.Metrics = obs.Metrics
		httpCfg.HealthChecker = obs.Health
		if obs.Metrics != nil && cfg.MetricsEnabled() {
			httpCfg.MetricsRegistry = obs.Metrics.Registry
			httpCfg.MetricsPath = cfg.MetricsPath()
		}
		if obs.Tracer != nil {
			httpCfg.Tracer = obs.Tracer.Tracer()
		}
	}

	return httpapi.NewGateway(httpCfg, registry, selector, provider, limiter, logger).
		WithWorkflows(engine, store.Workflows())
}

// initStore creates the storage backend from config.
func initStore(cfg *config.Config, logger *slog.Logger) (storage.Store, error) {
	switch driver := cfg.StorageDriver(); driver {
	case storage.DriverMemory:
		return memory.New(), nil
	case storage.DriverSQLite:
		var sqliteCfg storage.SQLiteConfig
		if cfg.Storage != nil {
			sqliteCfg = cfg.Storage.SQLite
		}
		return gormdb.OpenSQLite(sqliteCfg, logger)
	case storage.DriverPostgres:
		if cfg.Storage == nil || cfg.Storage.Postgres.DSN == "" {
			return nil, fmt.Errorf("postgres DSN is required (set storage.postgres.dsn or BUSARA_DB_DSN)")
		}
		return gormdb.OpenPostgres(cfg.Storage.Postgres, logger)
	default:
		return nil, fmt.Errorf("unknown storage driver: %q", driver)
	}
}

// newLLMProvider creates the LLM provider chain based on the configured default.
func newLLMProvider(cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	primary, err := buildProvider(cfg.DefaultProvider(), cfg, logger)
	if err != nil {
		return nil, err
	}

	// Build fallback chain if configured.
	if len(cfg.Providers.Fallback) > 0 {
		providers := []llm.Provider{primary}
		for _, name := range cfg.Providers.Fallback {
			fb, err := buildProvider(name, cfg, logger)
			if err != nil {
				logger.Warn("skipping fallback provider",
					slog.String("provider", name),
					slog.String("error", err.Error()),
				)
				continue
			}
			providers = append(providers, fb)
		}
		if len(providers) > 1 {
			return llm.NewFallbackProvider(providers, logger), nil
		}
	}

	return primary, nil
}

// buildProvider creates a single LLM provider by name.
func buildProvider(name string, cfg *config.Config, logger *slog.Logger) (llm.Provider, error) {
	switch name {
	case "openai", "":
		var opts []openai.Option
		if cfg.Providers.OpenAI.BaseURL != "" {
			opts = append(opts, openai.WithBaseURL(cfg.Providers.OpenAI.BaseURL))
		}
		return openai.NewClient(
			cfg.Providers.OpenAI.APIKey,
			cfg.Providers.OpenAI.Model,
			logger,
			opts...,
		), nil
	case "anthropic":
		var opts []anthropic.Option
		if cfg.Providers.Anthropic.BaseURL != "" {
			opts = append(opts, anthropic.WithBaseURL(cfg.Providers.Anthropic.BaseURL))
		}
		return anthropic.NewClient(
			cfg.Providers.Anthropic.APIKey,
			cfg.Providers.Anthropic.Model,
			logger,
			opts...,
		), nil
	case "ollama":
		baseURL := cfg.Providers.OpenAI.BaseURL
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		return openai.NewClient(
			"",
			cfg.Providers.OpenAI.Model,
			logger,
			openai.WithBaseURL(baseURL),
			openai.WithName("ollama"),
		), nil
	default:
		return nil, fmt.Errorf("unknown provider: %q", name)
	}
}
