// Package workflow implements the directed-graph agent pipeline: the graph
// model edited through the admin surface and the bounded state machine that
// executes it node by node, resolving conditioned edges between steps.
package workflow

import (
	"errors"
	"fmt"
	"time"

	"github.com/jkaninda/busara/internal/rule"
)

// NodeType identifies the behavior of a workflow node.
type NodeType string

const (
	NodeStart        NodeType = "start"
	NodeAgent        NodeType = "agent"
	NodeEnd          NodeType = "end"
	NodeCondition    NodeType = "condition"
	NodeMerge        NodeType = "merge"
	NodeIfElse       NodeType = "if-else"
	NodeUserApproval NodeType = "user-approval"
)

// ElseConditionID tags the edge an if-else node takes when no condition
// matches.
const ElseConditionID = "else"

// Configuration errors — fatal to the specific operation, never to the host.
var (
	ErrNoStartNode       = errors.New("workflow has no start node")
	ErrMultipleStart     = errors.New("workflow has more than one start node")
	ErrStartNoOutgoing   = errors.New("start node has no outgoing edges")
	ErrDanglingEdge      = errors.New("edge references a non-existent node")
	ErrDuplicateNodeID   = errors.New("duplicate node id")
	ErrUnknownAgent      = errors.New("workflow references an unknown agent")
	ErrExecutionLoop     = errors.New("workflow exceeded the execution step limit")
	ErrWorkflowNotActive = errors.New("no active workflow")
)

// Definition is an editable workflow graph.
type Definition struct {
	ID      string `json:"id" yaml:"id"`
	Name    string `json:"name" yaml:"name"`
	Version string `json:"version,omitempty" yaml:"version,omitempty"`
	Nodes   []Node `json:"nodes" yaml:"nodes"`
	Edges   []Edge `json:"edges" yaml:"edges"`
	Active  bool   `json:"active,omitempty" yaml:"active,omitempty"`

	// Schedule is an optional cron expression; when set and the workflow
	// is active, the scheduler triggers runs automatically.
	Schedule string `json:"schedule,omitempty" yaml:"schedule,omitempty"`
}

// Node is a single step in the graph.
type Node struct {
	ID        string   `json:"id" yaml:"id"`
	Type      NodeType `json:"type" yaml:"type"`
	AgentName string   `json:"agent_name,omitempty" yaml:"agent_name,omitempty"`
	Data      NodeData `json:"data,omitempty" yaml:"data,omitempty"`
}

// NodeData carries the per-type payload.
type NodeData struct {
	Label string `json:"label,omitempty" yaml:"label,omitempty"`

	// Expression is recorded by condition nodes for observability only.
	Expression string `json:"expression,omitempty" yaml:"expression,omitempty"`

	// Conditions drive if-else branching, evaluated in declared order.
	Conditions []NamedCondition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
}

// NamedCondition is one branch of an if-else node. Subject is a template
// string substituted with the current run variables before the rule is
// evaluated against it; empty means the previous agent's response.
type NamedCondition struct {
	ID      string     `json:"id" yaml:"id"`
	Subject string     `json:"subject,omitempty" yaml:"subject,omitempty"`
	Rule    *rule.Node `json:"rule" yaml:"rule"`
}

// Edge connects two nodes. ConditionID binds the edge to a named if-else
// condition (or "else"); Condition gates ordinary traversal.
type Edge struct {
	ID          string         `json:"id" yaml:"id"`
	Source      string         `json:"source" yaml:"source"`
	Target      string         `json:"target" yaml:"target"`
	Condition   *EdgeCondition `json:"condition,omitempty" yaml:"condition,omitempty"`
	ConditionID string         `json:"condition_id,omitempty" yaml:"condition_id,omitempty"`
}

// EdgeConditionType discriminates the edge condition union.
type EdgeConditionType string

const (
	EdgeShouldUse EdgeConditionType = "shouldUse"
	EdgeResult    EdgeConditionType = "result"
	EdgeAuto      EdgeConditionType = "auto"
	EdgeCustom    EdgeConditionType = "custom"
)

// ResultFilter selects runs by the previous node's outcome.
type ResultFilter string

const (
	WhenAlways  ResultFilter = "always"
	WhenSuccess ResultFilter = "success"
	WhenError   ResultFilter = "error"
)

// EdgeCondition gates edge traversal. The Type field determines which
// other fields are meaningful.
type EdgeCondition struct {
	Type EdgeConditionType `json:"type" yaml:"type"`

	// shouldUse condition: the rule is evaluated against the run message.
	Rule *rule.Node `json:"rule,omitempty" yaml:"rule,omitempty"`

	// result and auto conditions.
	When ResultFilter `json:"when,omitempty" yaml:"when,omitempty"`
}

// Validate checks the structural invariants: exactly one start node,
// unique node IDs, and every edge endpoint resolving to an existing node.
func (d *Definition) Validate() error {
	byID := make(map[string]*Node, len(d.Nodes))
	starts := 0
	for i := range d.Nodes {
		n := &d.Nodes[i]
		if _, dup := byID[n.ID]; dup {
			return fmt.Errorf("%w: %q", ErrDuplicateNodeID, n.ID)
		}
		byID[n.ID] = n
		if n.Type == NodeStart {
			starts++
		}
	}
	if starts == 0 {
		return ErrNoStartNode
	}
	if starts > 1 {
		return ErrMultipleStart
	}

	for _, e := range d.Edges {
		if _, ok := byID[e.Source]; !ok {
			return fmt.Errorf("%w: edge %q source %q", ErrDanglingEdge, e.ID, e.Source)
		}
		if _, ok := byID[e.Target]; !ok {
			return fmt.Errorf("%w: edge %q target %q", ErrDanglingEdge, e.ID, e.Target)
		}
	}
	return nil
}

// startNode returns the single start node.
func (d *Definition) startNode() (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].Type == NodeStart {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// node returns a node by ID.
func (d *Definition) node(id string) (*Node, bool) {
	for i := range d.Nodes {
		if d.Nodes[i].ID == id {
			return &d.Nodes[i], true
		}
	}
	return nil, false
}

// outgoing returns the edges leaving a node, in declared order.
func (d *Definition) outgoing(nodeID string) []Edge {
	var out []Edge
	for _, e := range d.Edges {
		if e.Source == nodeID {
			out = append(out, e)
		}
	}
	return out
}

// HistoryEntry records one executed node.
type HistoryEntry struct {
	NodeID    string    `json:"node_id"`
	Result    any       `json:"result"`
	Timestamp time.Time `json:"timestamp"`
}

// ExecutionContext accumulates per-run state. Created per invocation,
// discarded after the result is returned.
type ExecutionContext struct {
	Message    string            `json:"message"`
	LastNode   string            `json:"last_node,omitempty"`
	LastResult any               `json:"last_result,omitempty"`
	History    []HistoryEntry    `json:"history"`
	Variables  map[string]string `json:"variables,omitempty"`
}

// AgentResult is the outcome of an agent node execution. Dispatch failures
// are captured here, not thrown, so a result:error edge can route around
// them.
type AgentResult struct {
	AgentName string `json:"agent_name"`
	Message   string `json:"message"`
	Response  string `json:"response,omitempty"`
	Success   bool   `json:"success"`
	Error     string `json:"error,omitempty"`
}

// IfElseResult reports which named condition (if any) matched.
type IfElseResult struct {
	Matched string `json:"matched,omitempty"`
}

// ExecutionResult is the terminal outcome of a run. Errors never escape
// the engine: every run resolves to one of these.
type ExecutionResult struct {
	Success bool              `json:"success"`
	Result  any               `json:"result,omitempty"`
	Path    []string          `json:"path"`
	Context *ExecutionContext `json:"context"`
	Error   string            `json:"error,omitempty"`
}
