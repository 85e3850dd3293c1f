package gormdb

import (
	"encoding/json"
	"time"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/rule"
	"github.com/jkaninda/busara/internal/workflow"
)

// AgentModel maps to the "agents" table. Rule trees, tool lists and
// extensions are stored as JSON text so the same model works on both
// SQLite and PostgreSQL.
type AgentModel struct {
	Name         string `gorm:"primaryKey"`
	Description  string `gorm:"type:text"`
	Instructions string `gorm:"type:text"`
	Model        string
	Tools        string `gorm:"type:text;not null;default:'[]'"` // JSON-encoded []string.
	ShouldUse    string `gorm:"type:text"`                       // JSON-encoded rule tree, empty when unset.
	Priority     int
	Role         string `gorm:"index"`
	Handle       string
	Extensions   string `gorm:"type:text;not null;default:'{}'"` // JSON-encoded map[string]string.
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

func (AgentModel) TableName() string { return "agents" }

// WorkflowModel maps to the "workflows" table. Node and edge lists are
// stored as JSON text.
type WorkflowModel struct {
	ID        string `gorm:"primaryKey"`
	Name      string `gorm:"not null"`
	Version   string
	Nodes     string `gorm:"type:text;not null;default:'[]'"`
	Edges     string `gorm:"type:text;not null;default:'[]'"`
	Schedule  string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (WorkflowModel) TableName() string { return "workflows" }

// ActiveWorkflowModel is a single-row table marking the active workflow.
type ActiveWorkflowModel struct {
	ID         int    `gorm:"primaryKey"`
	WorkflowID string `gorm:"not null"`
	UpdatedAt  time.Time
}

func (ActiveWorkflowModel) TableName() string { return "active_workflow" }

func toAgentModel(d *agent.Definition) (AgentModel, error) {
	tools, err := json.Marshal(d.Tools)
	if err != nil {
		return AgentModel{}, err
	}
	if d.Tools == nil {
		tools = []byte("[]")
	}
	extensions, err := json.Marshal(d.Extensions)
	if err != nil {
		return AgentModel{}, err
	}
	if d.Extensions == nil {
		extensions = []byte("{}")
	}
	shouldUse := ""
	if d.ShouldUse != nil {
		raw, err := json.Marshal(d.ShouldUse)
		if err != nil {
			return AgentModel{}, err
		}
		shouldUse = string(raw)
	}
	return AgentModel{
		Name:         d.Name,
		Description:  d.Description,
		Instructions: d.Instructions,
		Model:        d.Model,
		Tools:        string(tools),
		ShouldUse:    shouldUse,
		Priority:     d.Priority,
		Role:         string(d.Role),
		Handle:       d.Handle,
		Extensions:   string(extensions),
	}, nil
}

func toAgentDomain(m *AgentModel) (agent.Definition, error) {
	d := agent.Definition{
		Name:         m.Name,
		Description:  m.Description,
		Instructions: m.Instructions,
		Model:        m.Model,
		Priority:     m.Priority,
		Role:         agent.Role(m.Role),
		Handle:       m.Handle,
	}
	if m.Tools != "" && m.Tools != "[]" {
		if err := json.Unmarshal([]byte(m.Tools), &d.Tools); err != nil {
			return d, err
		}
	}
	if m.Extensions != "" && m.Extensions != "{}" {
		if err := json.Unmarshal([]byte(m.Extensions), &d.Extensions); err != nil {
			return d, err
		}
	}
	if m.ShouldUse != "" {
		var node rule.Node
		if err := json.Unmarshal([]byte(m.ShouldUse), &node); err != nil {
			return d, err
		}
		d.ShouldUse = &node
	}
	return d, nil
}

func toWorkflowModel(d *workflow.Definition) (WorkflowModel, error) {
	nodes, err := json.Marshal(d.Nodes)
	if err != nil {
		return WorkflowModel{}, err
	}
	if d.Nodes == nil {
		nodes = []byte("[]")
	}
	edges, err := json.Marshal(d.Edges)
	if err != nil {
		return WorkflowModel{}, err
	}
	if d.Edges == nil {
		edges = []byte("[]")
	}
	return WorkflowModel{
		ID:       d.ID,
		Name:     d.Name,
		Version:  d.Version,
		Nodes:    string(nodes),
		Edges:    string(edges),
		Schedule: d.Schedule,
	}, nil
}

func toWorkflowDomain(m *WorkflowModel, activeID string) (workflow.Definition, error) {
	d := workflow.Definition{
		ID:       m.ID,
		Name:     m.Name,
		Version:  m.Version,
		Active:   m.ID == activeID && activeID != "",
		Schedule: m.Schedule,
	}
	if m.Nodes != "" && m.Nodes != "[]" {
		if err := json.Unmarshal([]byte(m.Nodes), &d.Nodes); err != nil {
			return d, err
		}
	}
	if m.Edges != "" && m.Edges != "[]" {
		if err := json.Unmarshal([]byte(m.Edges), &d.Edges); err != nil {
			return d, err
		}
	}
	return d, nil
}
