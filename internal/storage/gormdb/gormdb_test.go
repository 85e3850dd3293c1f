package gormdb

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/rule"
	"github.com/jkaninda/busara/internal/storage"
	"github.com/jkaninda/busara/internal/workflow"
)

func TestAgentRoundTripPreservesRuleTree(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	defs := []agent.Definition{
		{
			Name:         "Coder",
			Description:  "handles code",
			Instructions: "Fix: {{ input_user }}",
			Model:        "gpt-4o-mini",
			Tools:        []string{"search", "exec"},
			ShouldUse: rule.Complex(rule.OpOr,
				rule.Keywords("code", "bug"),
				rule.Regex(`stack\s+trace`),
			),
			Priority:   1,
			Extensions: map[string]string{"team": "platform"},
		},
		{Name: "General", Priority: 999, ShouldUse: rule.Default(rule.Keywords("file"))},
	}
	if err := store.Agents().Save(ctx, defs); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	loaded, err := store.Agents().LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() = %v", err)
	}
	if len(loaded) != 2 {
		t.Fatalf("loaded %d agents, want 2", len(loaded))
	}
	coder := loaded[0]
	if coder.Name != "Coder" || len(coder.Tools) != 2 || coder.Extensions["team"] != "platform" {
		t.Fatalf("coder = %+v, want fields preserved", coder)
	}
	if coder.ShouldUse == nil || !coder.ShouldUse.Evaluate("there is a bug here") {
		t.Error("rule tree must survive the round trip")
	}
	if loaded[1].ShouldUse == nil || !loaded[1].ShouldUse.Evaluate("anything else") {
		t.Error("default rule must survive the round trip")
	}
}

func TestAgentRoundTripPreservesRoleAndHandle(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	defs := []agent.Definition{
		{Name: "Router", Role: agent.RoleMainSelector, Handle: "h-router"},
		{Name: "General", Role: agent.RoleFallback},
		{Name: "Coder"},
	}
	if err := store.Agents().Save(ctx, defs); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	loaded, err := store.Agents().LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() = %v", err)
	}
	byName := map[string]agent.Definition{}
	for _, d := range loaded {
		byName[d.Name] = d
	}
	if got := byName["Router"]; got.Role != agent.RoleMainSelector || got.Handle != "h-router" {
		t.Errorf("Router = {role %q, handle %q}, want mainSelector/h-router", got.Role, got.Handle)
	}
	if got := byName["General"].Role; got != agent.RoleFallback {
		t.Errorf("General role = %q, want fallback", got)
	}
	if got := byName["Coder"].Role; got != "" {
		t.Errorf("Coder role = %q, want empty", got)
	}
}

func TestSaveReplacesAgentSet(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)

	if err := store.Agents().Save(ctx, []agent.Definition{{Name: "Old"}}); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if err := store.Agents().Save(ctx, []agent.Definition{{Name: "New"}}); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	loaded, err := store.Agents().LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() = %v", err)
	}
	if len(loaded) != 1 || loaded[0].Name != "New" {
		t.Fatalf("loaded = %v, want only the replacement set", loaded)
	}
}

func TestWorkflowActiveMarker(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ws := store.Workflows()

	defs := []workflow.Definition{
		{
			ID:   "wf1",
			Name: "translate",
			Nodes: []workflow.Node{
				{ID: "Start", Type: workflow.NodeStart},
				{ID: "Agent", Type: workflow.NodeAgent, AgentName: "Translator"},
				{ID: "End", Type: workflow.NodeEnd},
			},
			Edges: []workflow.Edge{
				{ID: "e1", Source: "Start", Target: "Agent"},
				{ID: "e2", Source: "Agent", Target: "End"},
			},
			Schedule: "0 * * * *",
		},
		{ID: "wf2", Name: "other"},
	}
	if err := ws.Save(ctx, defs); err != nil {
		t.Fatalf("Save() = %v", err)
	}

	if _, err := ws.GetActive(ctx); !errors.Is(err, workflow.ErrWorkflowNotActive) {
		t.Fatalf("GetActive() = %v, want ErrWorkflowNotActive", err)
	}
	if err := ws.SetActive(ctx, "ghost"); !errors.Is(err, workflow.ErrNotFound) {
		t.Fatalf("SetActive(ghost) = %v, want ErrNotFound", err)
	}
	if err := ws.SetActive(ctx, "wf1"); err != nil {
		t.Fatalf("SetActive(wf1) = %v", err)
	}

	active, err := ws.GetActive(ctx)
	if err != nil {
		t.Fatalf("GetActive() = %v", err)
	}
	if active.ID != "wf1" || !active.Active || len(active.Nodes) != 3 || active.Schedule != "0 * * * *" {
		t.Fatalf("active = %+v, want full wf1 definition flagged active", active)
	}

	loaded, err := ws.LoadAll(ctx)
	if err != nil {
		t.Fatalf("LoadAll() = %v", err)
	}
	for _, d := range loaded {
		if d.Active != (d.ID == "wf1") {
			t.Errorf("workflow %q active = %v", d.ID, d.Active)
		}
	}

	if err := ws.SetActive(ctx, ""); err != nil {
		t.Fatalf("SetActive(\"\") = %v", err)
	}
	if _, err := ws.GetActive(ctx); !errors.Is(err, workflow.ErrWorkflowNotActive) {
		t.Fatalf("GetActive() after clear = %v, want ErrWorkflowNotActive", err)
	}
}

func TestSaveClearsStaleActiveMarker(t *testing.T) {
	ctx := context.Background()
	store := openTestStore(t)
	ws := store.Workflows()

	if err := ws.Save(ctx, []workflow.Definition{{ID: "wf1", Name: "one"}}); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if err := ws.SetActive(ctx, "wf1"); err != nil {
		t.Fatalf("SetActive() = %v", err)
	}
	if err := ws.Save(ctx, []workflow.Definition{{ID: "wf2", Name: "two"}}); err != nil {
		t.Fatalf("Save() = %v", err)
	}
	if _, err := ws.GetActive(ctx); !errors.Is(err, workflow.ErrWorkflowNotActive) {
		t.Fatalf("GetActive() = %v, want marker cleared when workflow removed", err)
	}
}

// openTestStore opens a SQLite store in a temp directory and migrates it.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store, err := OpenSQLite(storage.SQLiteConfig{
		Path: filepath.Join(t.TempDir(), "test.db"),
	}, logger)
	if err != nil {
		t.Fatalf("OpenSQLite() = %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	if err := store.Migrate(context.Background()); err != nil {
		t.Fatalf("Migrate() = %v", err)
	}
	return store
}
