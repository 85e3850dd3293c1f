package workflow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/prompt"
)

// MaxExecutions caps the number of node executions in a single run. A
// graph that cycles past this limit is treated as a logical infinite loop.
const MaxExecutions = 100

// AgentResolver looks up agent definitions by name. *agent.Registry
// satisfies it.
type AgentResolver interface {
	Get(name string) (*agent.Definition, bool)
}

// Dispatcher provisions agents on an LLM provider and dispatches messages
// to them. llm.Provider satisfies it.
type Dispatcher interface {
	EnsureAgent(ctx context.Context, spec llm.AgentSpec) (string, error)
	Dispatch(ctx context.Context, handle, message string) (*llm.DispatchResult, error)
}

// Engine executes workflow graphs. Safe for concurrent use: each run owns
// its own ExecutionContext and the engine itself holds no per-run state.
type Engine struct {
	agents   AgentResolver
	provider Dispatcher
	logger   *slog.Logger
	observer Observer
	metrics  *Metrics
}

// Option configures an Engine.
type Option func(*Engine)

// WithObserver attaches an execution event observer.
func WithObserver(o Observer) Option {
	return func(e *Engine) {
		if o != nil {
			e.observer = o
		}
	}
}

// WithMetrics attaches Prometheus metrics. A nil value disables collection.
func WithMetrics(m *Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// NewEngine builds an execution engine.
func NewEngine(agents AgentResolver, provider Dispatcher, logger *slog.Logger, opts ...Option) *Engine {
	e := &Engine{
		agents:   agents,
		provider: provider,
		logger:   logger,
		observer: NopObserver{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// run is the mutable state of a single execution.
type run struct {
	def          *Definition
	ectx         *ExecutionContext
	path         []string
	lastResponse string
	ifElseMatch  string
	steps        int
}

// Run executes a workflow definition against a message. Errors never
// escape: every run resolves to an ExecutionResult.
func (e *Engine) Run(ctx context.Context, def *Definition, message string) *ExecutionResult {
	started := time.Now()
	e.metrics.trackActive(1)
	defer e.metrics.trackActive(-1)

	r := &run{
		def: def,
		ectx: &ExecutionContext{
			Message:   message,
			Variables: map[string]string{},
		},
	}

	result := e.execute(ctx, r)
	status := "success"
	if !result.Success {
		status = "error"
	}
	e.metrics.observeRun(status, time.Since(started))
	return result
}

func (e *Engine) execute(ctx context.Context, r *run) *ExecutionResult {
	if err := r.def.Validate(); err != nil {
		return r.fail(err)
	}

	start, ok := r.def.startNode()
	if !ok {
		return r.fail(ErrNoStartNode)
	}
	first := e.resolveEdge(r, start)
	if first == nil {
		return r.fail(fmt.Errorf("%w: %q", ErrStartNoOutgoing, start.ID))
	}

	current, ok := r.def.node(first.Target)
	if !ok {
		return r.fail(fmt.Errorf("%w: edge %q target %q", ErrDanglingEdge, first.ID, first.Target))
	}

	for {
		if current.Type == NodeEnd {
			break
		}
		if r.steps >= MaxExecutions {
			e.metrics.observeLoopAbort()
			e.logger.Warn("workflow aborted, step limit exceeded",
				"workflow", r.def.ID, "node", current.ID, "limit", MaxExecutions)
			return r.fail(fmt.Errorf("%w: %d steps", ErrExecutionLoop, MaxExecutions))
		}
		r.steps++

		if err := e.executeNode(ctx, r, current); err != nil {
			return r.fail(err)
		}

		next := e.resolveEdge(r, current)
		if next == nil {
			break
		}
		target, ok := r.def.node(next.Target)
		if !ok {
			return r.fail(fmt.Errorf("%w: edge %q target %q", ErrDanglingEdge, next.ID, next.Target))
		}
		current = target
	}

	return &ExecutionResult{
		Success: true,
		Result:  r.ectx.LastResult,
		Path:    r.path,
		Context: r.ectx,
	}
}

// executeNode runs one node and records the outcome. Dispatch failures are
// captured into the agent result; only configuration problems return an
// error.
func (e *Engine) executeNode(ctx context.Context, r *run, n *Node) error {
	started := time.Now()
	e.observer.NodeStarted(r.def.ID, n.ID, n.Type)

	var (
		result any
		err    error
	)
	switch n.Type {
	case NodeAgent:
		result, err = e.executeAgent(ctx, r, n)
	case NodeCondition:
		result = n.Data.Expression
	case NodeMerge:
		result = append([]HistoryEntry(nil), r.ectx.History...)
	case NodeIfElse:
		result = e.evaluateIfElse(r, n)
	case NodeUserApproval:
		// Placeholder pending a product decision on approval semantics.
		e.logger.Debug("user-approval node is a no-op", "workflow", r.def.ID, "node", n.ID)
		result = nil
	default:
		result = nil
	}

	took := time.Since(started)
	e.observer.NodeCompleted(r.def.ID, n.ID, n.Type, took, err)
	if err != nil {
		e.metrics.observeNode(n.Type, "error", took)
		return err
	}
	e.metrics.observeNode(n.Type, "success", took)

	r.path = append(r.path, n.ID)
	r.ectx.History = append(r.ectx.History, HistoryEntry{
		NodeID:    n.ID,
		Result:    result,
		Timestamp: time.Now(),
	})
	r.ectx.LastNode = n.ID
	r.ectx.LastResult = result
	return nil
}

// executeAgent resolves the agent, substitutes its instruction template
// and dispatches the output to the provider.
func (e *Engine) executeAgent(ctx context.Context, r *run, n *Node) (*AgentResult, error) {
	def, ok := e.agents.Get(n.AgentName)
	if !ok {
		return nil, fmt.Errorf("%w: node %q references %q", ErrUnknownAgent, n.ID, n.AgentName)
	}

	message := r.ectx.Message
	if def.Instructions != "" {
		message = prompt.Substitute(def.Instructions, r.vars())
	}

	result := &AgentResult{
		AgentName: def.Name,
		Message:   message,
	}

	handle, err := e.provider.EnsureAgent(ctx, llm.AgentSpec{
		Name:         def.Name,
		Instructions: def.Instructions,
		Model:        def.Model,
		Tools:        def.Tools,
	})
	if err != nil {
		e.logger.Error("agent provisioning failed", "agent", def.Name, "error", err)
		result.Error = err.Error()
		return result, nil
	}

	resp, err := e.provider.Dispatch(ctx, handle, message)
	if err != nil {
		e.logger.Error("agent dispatch failed", "agent", def.Name, "error", err)
		result.Error = err.Error()
		return result, nil
	}

	result.Response = resp.Response
	result.Success = resp.Success
	result.Error = resp.Error
	if result.Success {
		r.lastResponse = resp.Response
	}
	return result, nil
}

// evaluateIfElse checks the node's named conditions in declared order and
// records which one matched. Branching happens in edge resolution.
func (e *Engine) evaluateIfElse(r *run, n *Node) *IfElseResult {
	r.ifElseMatch = ""
	for _, c := range n.Data.Conditions {
		subject := c.Subject
		if subject == "" {
			subject = "{{ " + prompt.VarPreviousResponse + " }}"
		}
		subject = prompt.Substitute(subject, r.vars())
		if c.Rule.Evaluate(subject) {
			r.ifElseMatch = c.ID
			break
		}
	}
	return &IfElseResult{Matched: r.ifElseMatch}
}

// resolveEdge selects the next edge leaving a node, or nil when traversal
// should stop.
func (e *Engine) resolveEdge(r *run, n *Node) *Edge {
	out := r.def.outgoing(n.ID)
	if len(out) == 0 {
		return nil
	}

	if n.Type == NodeIfElse {
		return e.resolveIfElseEdge(r, n, out)
	}

	for i := range out {
		taken := e.edgeMatches(r, &out[i])
		e.observer.EdgeEvaluated(r.def.ID, out[i].ID, taken)
		e.metrics.observeEdge(taken)
		if taken {
			return &out[i]
		}
	}

	// Start nodes always proceed somewhere.
	if n.Type == NodeStart {
		return &out[0]
	}
	return nil
}

// resolveIfElseEdge binds the matched condition to its edge, falling back
// to the else edge and finally to the first outgoing edge.
func (e *Engine) resolveIfElseEdge(r *run, n *Node, out []Edge) *Edge {
	want := r.ifElseMatch
	if want == "" {
		want = ElseConditionID
	}
	for i := range out {
		if out[i].ConditionID == want {
			e.observer.EdgeEvaluated(r.def.ID, out[i].ID, true)
			e.metrics.observeEdge(true)
			return &out[i]
		}
	}
	e.logger.Warn("if-else node has no edge for condition, taking first edge",
		"workflow", r.def.ID, "node", n.ID, "condition", want)
	e.observer.EdgeEvaluated(r.def.ID, out[0].ID, true)
	e.metrics.observeEdge(true)
	return &out[0]
}

// edgeMatches evaluates an edge condition against the current run state.
// Absent and custom conditions pass.
func (e *Engine) edgeMatches(r *run, edge *Edge) bool {
	c := edge.Condition
	if c == nil {
		return true
	}
	switch c.Type {
	case EdgeShouldUse:
		return c.Rule.Evaluate(r.ectx.Message)
	case EdgeResult, EdgeAuto:
		switch c.When {
		case WhenSuccess:
			return lastSucceeded(r.ectx)
		case WhenError:
			return !lastSucceeded(r.ectx)
		default:
			return true
		}
	case EdgeCustom:
		// Placeholder pending a product decision on custom conditions.
		e.logger.Debug("custom edge condition passes unconditionally", "edge", edge.ID)
		return true
	default:
		e.logger.Warn("unknown edge condition type, skipping edge",
			"edge", edge.ID, "type", string(c.Type))
		return false
	}
}

// vars builds the template variables for the current run state.
func (r *run) vars() map[string]string {
	vars := prompt.Vars(r.ectx.Message, r.lastResponse)
	for k, v := range r.ectx.Variables {
		vars[k] = v
	}
	return vars
}

// fail wraps an error into a terminal result.
func (r *run) fail(err error) *ExecutionResult {
	return &ExecutionResult{
		Success: false,
		Error:   err.Error(),
		Path:    r.path,
		Context: r.ectx,
	}
}

// lastSucceeded reports whether the most recent agent result succeeded.
// Non-agent results count as success.
func lastSucceeded(ectx *ExecutionContext) bool {
	if res, ok := ectx.LastResult.(*AgentResult); ok {
		return res.Success
	}
	return true
}
