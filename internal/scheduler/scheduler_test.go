package scheduler

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/jkaninda/busara/internal/workflow"
)

func TestRefreshBindsActiveSchedule(t *testing.T) {
	store := &stubStore{active: scheduledWorkflow("wf-1", "*/5 * * * *")}
	s := newTestScheduler(store, &stubRunner{})

	s.cron.Start()
	defer s.cron.Stop()
	s.refresh(context.Background())

	if s.workflowID != "wf-1" {
		t.Errorf("bound workflow = %q, want wf-1", s.workflowID)
	}
	if s.schedule != "*/5 * * * *" {
		t.Errorf("bound schedule = %q", s.schedule)
	}
	if len(s.cron.Entries()) != 1 {
		t.Errorf("cron entries = %d, want 1", len(s.cron.Entries()))
	}
}

func TestRefreshUnbindsWhenNoActiveWorkflow(t *testing.T) {
	store := &stubStore{active: scheduledWorkflow("wf-1", "0 * * * *")}
	s := newTestScheduler(store, &stubRunner{})

	s.cron.Start()
	defer s.cron.Stop()
	s.refresh(context.Background())
	if s.workflowID != "wf-1" {
		t.Fatalf("expected wf-1 bound, got %q", s.workflowID)
	}

	store.active = nil
	s.refresh(context.Background())

	if s.workflowID != "" {
		t.Errorf("workflow still bound: %q", s.workflowID)
	}
	if len(s.cron.Entries()) != 0 {
		t.Errorf("cron entries = %d, want 0", len(s.cron.Entries()))
	}
}

func TestRefreshIgnoresInvalidSchedule(t *testing.T) {
	store := &stubStore{active: scheduledWorkflow("wf-1", "not a cron expr")}
	s := newTestScheduler(store, &stubRunner{})

	s.refresh(context.Background())

	if s.workflowID != "" {
		t.Errorf("invalid schedule was bound: %q", s.workflowID)
	}
}

func TestFireRunsActiveWorkflowWithTriggerMessage(t *testing.T) {
	store := &stubStore{active: scheduledWorkflow("wf-1", "0 * * * *")}
	runner := &stubRunner{}
	s := newTestScheduler(store, runner)

	s.fire(context.Background(), "wf-1")

	if runner.ran == nil || runner.ran.ID != "wf-1" {
		t.Fatal("expected wf-1 to run")
	}
	if runner.message != "nightly digest" {
		t.Errorf("message = %q", runner.message)
	}
}

func TestFireSkipsWhenWorkflowNoLongerActive(t *testing.T) {
	store := &stubStore{active: scheduledWorkflow("wf-2", "0 * * * *")}
	runner := &stubRunner{}
	s := newTestScheduler(store, runner)

	s.fire(context.Background(), "wf-1")

	if runner.ran != nil {
		t.Errorf("unexpected run of %q", runner.ran.ID)
	}
}

func TestValidateExpression(t *testing.T) {
	if err := ValidateExpression("*/10 * * * *"); err != nil {
		t.Errorf("valid expression rejected: %v", err)
	}
	if err := ValidateExpression("every tuesday"); err == nil {
		t.Error("invalid expression accepted")
	}
}

// **** Test helpers ****

func newTestScheduler(store workflow.Store, runner Runner) *Scheduler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(store, runner, nil, logger, Config{TriggerMessage: "nightly digest"})
}

func scheduledWorkflow(id, schedule string) *workflow.Definition {
	return &workflow.Definition{
		ID:       id,
		Name:     id,
		Active:   true,
		Schedule: schedule,
		Nodes: []workflow.Node{
			{ID: "Start", Type: workflow.NodeStart},
			{ID: "End", Type: workflow.NodeEnd},
		},
		Edges: []workflow.Edge{{ID: "e1", Source: "Start", Target: "End"}},
	}
}

// stubStore serves one optional active workflow.
type stubStore struct {
	active *workflow.Definition
}

func (s *stubStore) LoadAll(context.Context) ([]workflow.Definition, error) {
	if s.active == nil {
		return nil, nil
	}
	return []workflow.Definition{*s.active}, nil
}

func (s *stubStore) Save(context.Context, []workflow.Definition) error { return nil }
func (s *stubStore) SetActive(context.Context, string) error           { return nil }

func (s *stubStore) GetActive(context.Context) (*workflow.Definition, error) {
	if s.active == nil {
		return nil, workflow.ErrWorkflowNotActive
	}
	return s.active, nil
}

// stubRunner records the last run.
type stubRunner struct {
	ran     *workflow.Definition
	message string
}

func (r *stubRunner) Run(_ context.Context, def *workflow.Definition, message string) *workflow.ExecutionResult {
	r.ran = def
	r.message = message
	return &workflow.ExecutionResult{Success: true, Path: []string{}}
}
