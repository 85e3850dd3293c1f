package workflow

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/jkaninda/busara/internal/agent"
	"github.com/jkaninda/busara/internal/llm"
	"github.com/jkaninda/busara/internal/rule"
)

func TestRunLinearWorkflow(t *testing.T) {
	agents := stubResolver{
		"Translator": {Name: "Translator", Instructions: "Translate: {{ input_user }}"},
	}
	provider := &stubDispatcher{response: "hola"}
	engine := NewEngine(agents, provider, discardLogger())

	result := engine.Run(context.Background(), linearDefinition("Translator"), "hello")

	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if len(result.Path) != 1 || result.Path[0] != "Agent" {
		t.Fatalf("path = %v, want [Agent]", result.Path)
	}
	res, ok := result.Result.(*AgentResult)
	if !ok {
		t.Fatalf("result type = %T, want *AgentResult", result.Result)
	}
	if res.AgentName != "Translator" {
		t.Errorf("agent name = %q, want Translator", res.AgentName)
	}
	if res.Response != "hola" {
		t.Errorf("response = %q, want hola", res.Response)
	}
	if res.Message != "Translate: hello" {
		t.Errorf("dispatched message = %q, want substituted instructions", res.Message)
	}
	if !res.Success {
		t.Error("agent result should be successful")
	}
}

func TestRunCycleAbortsAtStepLimit(t *testing.T) {
	def := &Definition{
		ID: "cycle",
		Nodes: []Node{
			{ID: "Start", Type: NodeStart},
			{ID: "A", Type: NodeCondition},
			{ID: "B", Type: NodeCondition},
		},
		Edges: []Edge{
			{ID: "e1", Source: "Start", Target: "A"},
			{ID: "e2", Source: "A", Target: "B"},
			{ID: "e3", Source: "B", Target: "A"},
		},
	}
	engine := NewEngine(stubResolver{}, &stubDispatcher{}, discardLogger())

	result := engine.Run(context.Background(), def, "loop")

	if result.Success {
		t.Fatal("cyclic workflow must not succeed")
	}
	if !strings.Contains(result.Error, ErrExecutionLoop.Error()) {
		t.Fatalf("error = %q, want execution loop error", result.Error)
	}
	if len(result.Path) != MaxExecutions {
		t.Fatalf("executed %d nodes before aborting, want exactly %d", len(result.Path), MaxExecutions)
	}
}

func TestRunIfElseRoutesMatchedCondition(t *testing.T) {
	def := ifElseDefinition()
	agents := stubResolver{
		"Router":  {Name: "Router"},
		"Spanish": {Name: "Spanish"},
		"Other":   {Name: "Other"},
	}
	provider := &stubDispatcher{response: "please translate to spanish"}
	engine := NewEngine(agents, provider, discardLogger())

	result := engine.Run(context.Background(), def, "hi")

	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if got := lastAgent(t, result); got != "Spanish" {
		t.Fatalf("routed to %q, want Spanish", got)
	}
}

func TestRunIfElseFallsBackToElseEdge(t *testing.T) {
	def := ifElseDefinition()
	agents := stubResolver{
		"Router":  {Name: "Router"},
		"Spanish": {Name: "Spanish"},
		"Other":   {Name: "Other"},
	}
	provider := &stubDispatcher{response: "nothing relevant"}
	engine := NewEngine(agents, provider, discardLogger())

	result := engine.Run(context.Background(), def, "hi")

	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if got := lastAgent(t, result); got != "Other" {
		t.Fatalf("routed to %q, want Other via else edge", got)
	}
}

func TestRunIfElseWithoutElseTakesFirstEdge(t *testing.T) {
	def := ifElseDefinition()
	// Strip the else edge so only the bound branch remains.
	var edges []Edge
	for _, e := range def.Edges {
		if e.ConditionID != ElseConditionID {
			edges = append(edges, e)
		}
	}
	def.Edges = edges

	agents := stubResolver{
		"Router":  {Name: "Router"},
		"Spanish": {Name: "Spanish"},
	}
	provider := &stubDispatcher{response: "nothing relevant"}
	engine := NewEngine(agents, provider, discardLogger())

	result := engine.Run(context.Background(), def, "hi")

	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if got := lastAgent(t, result); got != "Spanish" {
		t.Fatalf("routed to %q, want first outgoing edge target Spanish", got)
	}
}

func TestRunResultErrorEdgeRoutesAroundDispatchFailure(t *testing.T) {
	def := &Definition{
		ID: "recover",
		Nodes: []Node{
			{ID: "Start", Type: NodeStart},
			{ID: "Primary", Type: NodeAgent, AgentName: "Primary"},
			{ID: "Recovery", Type: NodeAgent, AgentName: "Recovery"},
			{ID: "Done", Type: NodeEnd},
			{ID: "Failed", Type: NodeEnd},
		},
		Edges: []Edge{
			{ID: "e1", Source: "Start", Target: "Primary"},
			{ID: "ok", Source: "Primary", Target: "Done",
				Condition: &EdgeCondition{Type: EdgeResult, When: WhenSuccess}},
			{ID: "err", Source: "Primary", Target: "Recovery",
				Condition: &EdgeCondition{Type: EdgeResult, When: WhenError}},
			{ID: "e2", Source: "Recovery", Target: "Failed"},
		},
	}
	agents := stubResolver{
		"Primary":  {Name: "Primary"},
		"Recovery": {Name: "Recovery"},
	}
	provider := &stubDispatcher{
		response: "recovered",
		failFor:  map[string]string{"Primary": "rate limited"},
	}
	engine := NewEngine(agents, provider, discardLogger())

	result := engine.Run(context.Background(), def, "hi")

	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if len(result.Path) != 2 || result.Path[1] != "Recovery" {
		t.Fatalf("path = %v, want [Primary Recovery]", result.Path)
	}
	primary := result.Context.History[0].Result.(*AgentResult)
	if primary.Success || primary.Error != "rate limited" {
		t.Fatalf("primary result = %+v, want captured dispatch failure", primary)
	}
}

func TestRunMergeAggregatesHistory(t *testing.T) {
	def := &Definition{
		ID: "merge",
		Nodes: []Node{
			{ID: "Start", Type: NodeStart},
			{ID: "First", Type: NodeAgent, AgentName: "First"},
			{ID: "Second", Type: NodeAgent, AgentName: "Second"},
			{ID: "Merge", Type: NodeMerge},
			{ID: "End", Type: NodeEnd},
		},
		Edges: []Edge{
			{ID: "e1", Source: "Start", Target: "First"},
			{ID: "e2", Source: "First", Target: "Second"},
			{ID: "e3", Source: "Second", Target: "Merge"},
			{ID: "e4", Source: "Merge", Target: "End"},
		},
	}
	agents := stubResolver{
		"First":  {Name: "First"},
		"Second": {Name: "Second"},
	}
	engine := NewEngine(agents, &stubDispatcher{response: "ok"}, discardLogger())

	result := engine.Run(context.Background(), def, "hi")

	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	merged, ok := result.Result.([]HistoryEntry)
	if !ok {
		t.Fatalf("merge result type = %T, want []HistoryEntry", result.Result)
	}
	if len(merged) != 2 {
		t.Fatalf("merge aggregated %d entries, want 2", len(merged))
	}
	if merged[0].NodeID != "First" || merged[1].NodeID != "Second" {
		t.Fatalf("merge order = [%s %s], want [First Second]", merged[0].NodeID, merged[1].NodeID)
	}
}

func TestRunConditionNodeRecordsExpression(t *testing.T) {
	def := &Definition{
		ID: "cond",
		Nodes: []Node{
			{ID: "Start", Type: NodeStart},
			{ID: "Check", Type: NodeCondition, Data: NodeData{Expression: "lang == es"}},
			{ID: "End", Type: NodeEnd},
		},
		Edges: []Edge{
			{ID: "e1", Source: "Start", Target: "Check"},
			{ID: "e2", Source: "Check", Target: "End"},
		},
	}
	engine := NewEngine(stubResolver{}, &stubDispatcher{}, discardLogger())

	result := engine.Run(context.Background(), def, "hi")

	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if result.Result != "lang == es" {
		t.Fatalf("result = %v, want the literal expression", result.Result)
	}
}

func TestRunUnknownAgentFailsRun(t *testing.T) {
	engine := NewEngine(stubResolver{}, &stubDispatcher{}, discardLogger())

	result := engine.Run(context.Background(), linearDefinition("Ghost"), "hi")

	if result.Success {
		t.Fatal("run must fail when an agent cannot be resolved")
	}
	if !strings.Contains(result.Error, ErrUnknownAgent.Error()) {
		t.Fatalf("error = %q, want unknown agent error", result.Error)
	}
}

func TestRunFailsWithoutStartNode(t *testing.T) {
	def := &Definition{
		ID:    "nostart",
		Nodes: []Node{{ID: "End", Type: NodeEnd}},
	}
	engine := NewEngine(stubResolver{}, &stubDispatcher{}, discardLogger())

	result := engine.Run(context.Background(), def, "hi")

	if result.Success || !strings.Contains(result.Error, ErrNoStartNode.Error()) {
		t.Fatalf("result = %+v, want no-start-node failure", result)
	}
}

func TestRunFailsWhenStartHasNoEdges(t *testing.T) {
	def := &Definition{
		ID:    "island",
		Nodes: []Node{{ID: "Start", Type: NodeStart}},
	}
	engine := NewEngine(stubResolver{}, &stubDispatcher{}, discardLogger())

	result := engine.Run(context.Background(), def, "hi")

	if result.Success || !strings.Contains(result.Error, ErrStartNoOutgoing.Error()) {
		t.Fatalf("result = %+v, want start-without-edges failure", result)
	}
}

func TestRunShouldUseEdgeSelectsByMessage(t *testing.T) {
	def := &Definition{
		ID: "route",
		Nodes: []Node{
			{ID: "Start", Type: NodeStart},
			{ID: "Hub", Type: NodeCondition},
			{ID: "Coder", Type: NodeAgent, AgentName: "Coder"},
			{ID: "General", Type: NodeAgent, AgentName: "General"},
			{ID: "End", Type: NodeEnd},
		},
		Edges: []Edge{
			{ID: "e1", Source: "Start", Target: "Hub"},
			{ID: "code", Source: "Hub", Target: "Coder",
				Condition: &EdgeCondition{Type: EdgeShouldUse, Rule: rule.Keywords("code", "bug")}},
			{ID: "any", Source: "Hub", Target: "General"},
			{ID: "e2", Source: "Coder", Target: "End"},
			{ID: "e3", Source: "General", Target: "End"},
		},
	}
	agents := stubResolver{
		"Coder":   {Name: "Coder"},
		"General": {Name: "General"},
	}
	engine := NewEngine(agents, &stubDispatcher{response: "ok"}, discardLogger())

	result := engine.Run(context.Background(), def, "fix this code")
	if got := lastAgent(t, result); got != "Coder" {
		t.Fatalf("message with keyword routed to %q, want Coder", got)
	}

	result = engine.Run(context.Background(), def, "hi there")
	if got := lastAgent(t, result); got != "General" {
		t.Fatalf("plain message routed to %q, want General", got)
	}
}

func TestRunNotifiesObserver(t *testing.T) {
	obs := &recordingObserver{}
	engine := NewEngine(
		stubResolver{"Translator": {Name: "Translator"}},
		&stubDispatcher{response: "ok"},
		discardLogger(),
		WithObserver(obs),
	)

	result := engine.Run(context.Background(), linearDefinition("Translator"), "hi")

	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	if obs.started != 1 || obs.completed != 1 {
		t.Errorf("observer saw %d/%d node events, want 1/1", obs.started, obs.completed)
	}
	if obs.edges == 0 {
		t.Error("observer saw no edge evaluations")
	}
}

// linearDefinition builds Start -> Agent -> End around the named agent.
func linearDefinition(agentName string) *Definition {
	return &Definition{
		ID:   "linear",
		Name: "linear",
		Nodes: []Node{
			{ID: "Start", Type: NodeStart},
			{ID: "Agent", Type: NodeAgent, AgentName: agentName},
			{ID: "End", Type: NodeEnd},
		},
		Edges: []Edge{
			{ID: "e1", Source: "Start", Target: "Agent"},
			{ID: "e2", Source: "Agent", Target: "End"},
		},
	}
}

// ifElseDefinition routes on the router agent's response: the "spanish"
// condition binds one edge, the else edge takes the rest.
func ifElseDefinition() *Definition {
	return &Definition{
		ID: "branch",
		Nodes: []Node{
			{ID: "Start", Type: NodeStart},
			{ID: "Router", Type: NodeAgent, AgentName: "Router"},
			{ID: "Branch", Type: NodeIfElse, Data: NodeData{
				Conditions: []NamedCondition{
					{ID: "spanish", Rule: rule.Keywords("spanish")},
				},
			}},
			{ID: "Spanish", Type: NodeAgent, AgentName: "Spanish"},
			{ID: "Other", Type: NodeAgent, AgentName: "Other"},
			{ID: "End", Type: NodeEnd},
		},
		Edges: []Edge{
			{ID: "e1", Source: "Start", Target: "Router"},
			{ID: "e2", Source: "Router", Target: "Branch"},
			{ID: "to-spanish", Source: "Branch", Target: "Spanish", ConditionID: "spanish"},
			{ID: "to-other", Source: "Branch", Target: "Other", ConditionID: ElseConditionID},
			{ID: "e3", Source: "Spanish", Target: "End"},
			{ID: "e4", Source: "Other", Target: "End"},
		},
	}
}

// lastAgent returns the agent name of the final agent result in the run.
func lastAgent(t *testing.T, result *ExecutionResult) string {
	t.Helper()
	if !result.Success {
		t.Fatalf("Run() failed: %s", result.Error)
	}
	for i := len(result.Context.History) - 1; i >= 0; i-- {
		if res, ok := result.Context.History[i].Result.(*AgentResult); ok {
			return res.AgentName
		}
	}
	t.Fatal("no agent result in history")
	return ""
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type stubResolver map[string]*agent.Definition

func (s stubResolver) Get(name string) (*agent.Definition, bool) {
	d, ok := s[name]
	return d, ok
}

// stubDispatcher hands back a canned response, failing dispatch for
// handles listed in failFor.
type stubDispatcher struct {
	response string
	failFor  map[string]string
	ensured  []string
}

func (s *stubDispatcher) EnsureAgent(_ context.Context, spec llm.AgentSpec) (string, error) {
	if spec.Name == "" {
		return "", errors.New("agent spec has no name")
	}
	s.ensured = append(s.ensured, spec.Name)
	return spec.Name, nil
}

func (s *stubDispatcher) Dispatch(_ context.Context, handle, _ string) (*llm.DispatchResult, error) {
	if msg, ok := s.failFor[handle]; ok {
		return &llm.DispatchResult{Success: false, Error: msg}, nil
	}
	return &llm.DispatchResult{Response: s.response, Success: true}, nil
}

type recordingObserver struct {
	started   int
	completed int
	edges     int
}

func (o *recordingObserver) NodeStarted(string, string, NodeType) { o.started++ }

func (o *recordingObserver) NodeCompleted(string, string, NodeType, time.Duration, error) {
	o.completed++
}

func (o *recordingObserver) EdgeEvaluated(string, string, bool) { o.edges++ }
