// Package memory implements the unified Store interface in process memory.
// Intended for tests and ephemeral deployments; nothing survives a restart.
package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/storage"
	"github.com/jkaninda/busara/internal/workflow"
)

// Store implements storage.Store backed by in-process maps.
type Store struct {
	agents    *agentStore
	workflows *workflowStore
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		agents:    &agentStore{},
		workflows: &workflowStore{},
	}
}

func (s *Store) Agents() agent.Store           { return s.agents }
func (s *Store) Workflows() workflow.Store     { return s.workflows }
func (s *Store) Migrate(context.Context) error { return nil }
func (s *Store) Close() error                  { return nil }
func (s *Store) Driver() string                { return storage.DriverMemory }

type agentStore struct {
	mu   sync.RWMutex
	defs []agent.Definition
}

func (s *agentStore) LoadAll(_ context.Context) ([]agent.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]agent.Definition(nil), s.defs...), nil
}

func (s *agentStore) Save(_ context.Context, defs []agent.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append([]agent.Definition(nil), defs...)
	return nil
}

type workflowStore struct {
	mu       sync.RWMutex
	defs     []workflow.Definition
	activeID string
}

func (s *workflowStore) LoadAll(_ context.Context) ([]workflow.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]workflow.Definition(nil), s.defs...), nil
}

func (s *workflowStore) Save(_ context.Context, defs []workflow.Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.defs = append([]workflow.Definition(nil), defs...)
	if s.activeID != "" && !containsID(s.defs, s.activeID) {
		s.activeID = ""
	}
	return nil
}

func (s *workflowStore) SetActive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id == "" {
		s.activeID = ""
		return nil
	}
	if !containsID(s.defs, id) {
		return fmt.Errorf("%w: %q", workflow.ErrNotFound, id)
	}
	s.activeID = id
	return nil
}

func (s *workflowStore) GetActive(_ context.Context) (*workflow.Definition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.activeID == "" {
		return nil, workflow.ErrWorkflowNotActive
	}
	for i := range s.defs {
		if s.defs[i].ID == s.activeID {
			def := s.defs[i]
			return &def, nil
		}
	}
	return nil, workflow.ErrWorkflowNotActive
}

func containsID(defs []workflow.Definition, id string) bool {
	for i := range defs {
		if defs[i].ID == id {
			return true
		}
	}
	return false
}

// compile-time interface check
var _ storage.Store = (*Store)(nil)
