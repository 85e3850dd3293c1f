// Package agent holds the configured agent catalog: the definitions loaded
// from the configuration store, the registry that caches them as an
// immutable snapshot, and the selector that routes incoming messages to
// the best-matching agent.
package agent

import (
	"errors"
	"fmt"

	"github.com/jkaninda/busara/internal/rule"
)

// Role classifies an agent within the catalog. Orchestrator is a legacy
// hierarchical concept retained as grouping metadata only.
type Role string

const (
	RoleMainSelector Role = "mainSelector"
	RoleOrchestrator Role = "orchestrator"
	RoleAgent        Role = "agent"
	RoleFallback     Role = "fallback"
)

// DefaultPriority is assigned to definitions that do not set one.
// Lower values take precedence in selection.
const DefaultPriority = 999

// ErrEmptyRegistry is returned when selection is attempted against a
// registry with no agents. This is a configuration error: the host stays
// up, but the operation fails.
var ErrEmptyRegistry = errors.New("agent registry is empty")

// ErrNotFound is returned when an agent name does not resolve.
var ErrNotFound = errors.New("agent not found")

// Definition is a configured agent persona.
type Definition struct {
	Name         string     `json:"name" yaml:"name"`
	Description  string     `json:"description,omitempty" yaml:"description,omitempty"`
	Instructions string     `json:"instructions" yaml:"instructions"`
	Model        string     `json:"model,omitempty" yaml:"model,omitempty"`
	Tools        []string   `json:"tools,omitempty" yaml:"tools,omitempty"`
	ShouldUse    *rule.Node `json:"should_use,omitempty" yaml:"should_use,omitempty"`
	Priority     int        `json:"priority,omitempty" yaml:"priority,omitempty"`
	Role         Role       `json:"role,omitempty" yaml:"role,omitempty"`

	// Handle is the opaque identifier the LLM provider assigned for this
	// agent, when one has been provisioned.
	Handle string `json:"handle,omitempty" yaml:"handle,omitempty"`

	// Extensions is a bounded string-to-string extension map. Open-ended
	// pass-through fields are deliberately not supported.
	Extensions map[string]string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
}

// Validate checks the definition for catalog admission.
func (d *Definition) Validate() error {
	if d.Name == "" {
		return errors.New("agent name is required")
	}
	if d.Instructions == "" {
		return fmt.Errorf("agent %q: instructions are required", d.Name)
	}
	return nil
}

// EffectivePriority returns the priority, applying the default for unset values.
func (d *Definition) EffectivePriority() int {
	if d.Priority <= 0 {
		return DefaultPriority
	}
	return d.Priority
}

// Matches evaluates the agent's shouldUse rule against a message.
// Agents without a rule never match by rule (they can still be reached
// through role-based fallbacks).
func (d *Definition) Matches(message string) bool {
	return d.ShouldUse.Evaluate(message)
}
