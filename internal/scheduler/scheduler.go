// Package scheduler triggers the active workflow on its cron schedule.
// It keeps a single cron entry bound to the active workflow and refreshes
// it from the store, so activating a different workflow (or editing its
// schedule) takes effect without a restart.
package scheduler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/jkaninda/busara/internal/workflow"
)

// Runner executes a workflow definition. Satisfied by *workflow.Engine.
type Runner interface {
	Run(ctx context.Context, def *workflow.Definition, message string) *workflow.ExecutionResult
}

// Config configures the scheduler.
type Config struct {
	// TriggerMessage is the message passed to scheduled runs.
	TriggerMessage string

	// RefreshInterval is how often the active workflow's schedule is
	// re-read from the store. Default 1m.
	RefreshInterval time.Duration
}

func (c Config) refreshInterval() time.Duration {
	if c.RefreshInterval > 0 {
		return c.RefreshInterval
	}
	return time.Minute
}

// Scheduler runs the active workflow on its cron schedule.
type Scheduler struct {
	store   workflow.Store
	runner  Runner
	metrics *Metrics
	logger  *slog.Logger
	config  Config

	cron   *cron.Cron
	parser cron.Parser

	mu         sync.Mutex
	entryID    cron.EntryID
	workflowID string
	schedule   string
}

// New creates a Scheduler.
func New(store workflow.Store, runner Runner, metrics *Metrics, logger *slog.Logger, cfg Config) *Scheduler {
	return &Scheduler{
		store:   store,
		runner:  runner,
		metrics: metrics,
		logger:  logger,
		config:  cfg,
		cron:    cron.New(),
		parser:  cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// ValidateExpression checks a cron expression. Exported for use by the
// HTTP API when saving workflows with a schedule.
func ValidateExpression(expr string) error {
	parser := cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)
	if _, err := parser.Parse(expr); err != nil {
		return fmt.Errorf("invalid cron expression %q: %w", expr, err)
	}
	return nil
}

// Start begins the scheduler loop. Returns a cancel function.
func (s *Scheduler) Start(ctx context.Context) func() {
	ctx, cancel := context.WithCancel(ctx)

	s.cron.Start()
	s.refresh(ctx)

	go func() {
		s.logger.InfoContext(ctx, "workflow scheduler started",
			slog.String("refresh_interval", s.config.refreshInterval().String()),
		)

		ticker := time.NewTicker(s.config.refreshInterval())
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				stop := s.cron.Stop()
				<-stop.Done()
				s.logger.Info("workflow scheduler stopped")
				return
			case <-ticker.C:
				s.refresh(ctx)
			}
		}
	}()

	return cancel
}

// refresh re-reads the active workflow and rebinds the cron entry when
// the workflow or its schedule changed.
func (s *Scheduler) refresh(ctx context.Context) {
	def, err := s.store.GetActive(ctx)
	if err != nil {
		if !errors.Is(err, workflow.ErrWorkflowNotActive) {
			s.logger.ErrorContext(ctx, "schedule refresh failed", slog.String("error", err.Error()))
			return
		}
		def = nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if def == nil || def.Schedule == "" {
		s.unbindLocked()
		return
	}
	if def.ID == s.workflowID && def.Schedule == s.schedule {
		return
	}

	if _, err := s.parser.Parse(def.Schedule); err != nil {
		s.logger.Warn("active workflow has an invalid schedule",
			slog.String("workflow_id", def.ID),
			slog.String("schedule", def.Schedule),
			slog.String("error", err.Error()),
		)
		s.unbindLocked()
		return
	}

	s.unbindLocked()

	workflowID := def.ID
	entryID, err := s.cron.AddFunc(def.Schedule, func() {
		s.fire(ctx, workflowID)
	})
	if err != nil {
		s.logger.Error("schedule binding failed",
			slog.String("workflow_id", def.ID),
			slog.String("error", err.Error()),
		)
		return
	}

	s.entryID = entryID
	s.workflowID = def.ID
	s.schedule = def.Schedule
	s.logger.Info("workflow schedule bound",
		slog.String("workflow_id", def.ID),
		slog.String("schedule", def.Schedule),
	)
}

// unbindLocked removes the current cron entry. Caller holds s.mu.
func (s *Scheduler) unbindLocked() {
	if s.entryID == 0 {
		return
	}
	s.cron.Remove(s.entryID)
	s.logger.Info("workflow schedule unbound", slog.String("workflow_id", s.workflowID))
	s.entryID = 0
	s.workflowID = ""
	s.schedule = ""
}

// fire runs one scheduled execution. The workflow is re-read at fire
// time so a run never uses a stale definition.
func (s *Scheduler) fire(ctx context.Context, workflowID string) {
	start := time.Now()
	correlationID := newCorrelationID()

	def, err := s.store.GetActive(ctx)
	if err != nil || def.ID != workflowID {
		s.logger.Warn("scheduled run skipped: workflow no longer active",
			slog.String("workflow_id", workflowID),
		)
		if s.metrics != nil {
			s.metrics.RunsSkipped.Inc()
		}
		return
	}

	s.logger.InfoContext(ctx, "firing scheduled workflow run",
		slog.String("workflow_id", def.ID),
		slog.String("correlation_id", correlationID),
	)
	if s.metrics != nil {
		s.metrics.RunsFired.Inc()
	}

	result := s.runner.Run(ctx, def, s.config.TriggerMessage)

	if result.Success {
		if s.metrics != nil {
			s.metrics.RunsSucceeded.Inc()
		}
		s.logger.InfoContext(ctx, "scheduled workflow run completed",
			slog.String("workflow_id", def.ID),
			slog.String("correlation_id", correlationID),
			slog.Int("steps", len(result.Path)),
			slog.String("duration", time.Since(start).String()),
		)
	} else {
		if s.metrics != nil {
			s.metrics.RunsFailed.Inc()
		}
		s.logger.WarnContext(ctx, "scheduled workflow run failed",
			slog.String("workflow_id", def.ID),
			slog.String("correlation_id", correlationID),
			slog.String("error", result.Error),
		)
	}

	if s.metrics != nil {
		s.metrics.RunDuration.Observe(time.Since(start).Seconds())
	}
}

func newCorrelationID() string {
	b := make([]byte, 8)
	_, _ = rand.Read(b)
	return hex.EncodeToString(b)
}
