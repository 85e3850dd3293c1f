package agent

import (
	"testing"

	"github.com/jkaninda/busara/internal/rule"
)

func newTestSelector(t *testing.T, defs []Definition) *Selector {
	t.Helper()
	return NewSelector(newTestRegistry(t, defs), testLogger())
}

func TestSelect_PriorityRuleMatch(t *testing.T) {
	s := newTestSelector(t, []Definition{
		{Name: "Coder", Instructions: "i", Priority: 1, ShouldUse: rule.Keywords("code")},
		{Name: "General", Instructions: "i", Priority: 999, ShouldUse: rule.Default(nil)},
	})

	d, err := s.Select("fix this code")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if d.Name != "Coder" {
		t.Errorf("selected %q, want Coder", d.Name)
	}

	d, err = s.Select("hi")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if d.Name != "General" {
		t.Errorf("selected %q, want General", d.Name)
	}
}

func TestSelect_LowestPrecedenceStillReachable(t *testing.T) {
	// A message matching only the priority-999 agent must select it.
	s := newTestSelector(t, []Definition{
		{Name: "A", Instructions: "i", Priority: 5, ShouldUse: rule.Keywords("alpha")},
		{Name: "B", Instructions: "i", Priority: 1, ShouldUse: rule.Keywords("beta")},
		{Name: "C", Instructions: "i", Priority: 999, ShouldUse: rule.Keywords("gamma")},
	})

	d, err := s.Select("talk about gamma rays")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if d.Name != "C" {
		t.Errorf("selected %q, want C", d.Name)
	}
}

func TestSelect_CreationIntentOverride(t *testing.T) {
	s := newTestSelector(t, []Definition{
		{Name: "Eager", Instructions: "i", Priority: 1, ShouldUse: rule.Default(nil)},
		{Name: "AgentCreator", Instructions: "i", Priority: 50, ShouldUse: rule.Keywords("agent")},
	})

	// Creation intent + matching rule beats the lower-priority agent.
	d, err := s.Select("please create an agent for invoices")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if d.Name != "AgentCreator" {
		t.Errorf("selected %q, want AgentCreator", d.Name)
	}

	// Without creation intent the normal priority order applies.
	d, _ = s.Select("hello there")
	if d.Name != "Eager" {
		t.Errorf("selected %q, want Eager", d.Name)
	}
}

func TestSelect_CreationSpecialistNotRetested(t *testing.T) {
	// Creation intent present but the specialist's own rule rejects the
	// message: the specialist must not be picked up again in the priority
	// scan via a catch-all rule.
	s := newTestSelector(t, []Definition{
		{Name: "AgentCreator", Instructions: "i", Priority: 1, ShouldUse: rule.Keywords("never-matches-xyz")},
		{Name: "General", Instructions: "i", Priority: 999, ShouldUse: rule.Default(nil)},
	})

	d, err := s.Select("new agent please")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if d.Name != "General" {
		t.Errorf("selected %q, want General", d.Name)
	}
}

func TestSelect_MainSelectorExcludedFromScan(t *testing.T) {
	s := newTestSelector(t, []Definition{
		{Name: "Router", Instructions: "i", Priority: 1, Role: RoleMainSelector, ShouldUse: rule.Default(nil)},
		{Name: "Coder", Instructions: "i", Priority: 10, ShouldUse: rule.Keywords("code")},
	})

	d, err := s.Select("review my code")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if d.Name != "Coder" {
		t.Errorf("selected %q, want Coder (mainSelector must be skipped)", d.Name)
	}
}

func TestSelect_DomainKeywordLooserScan(t *testing.T) {
	s := newTestSelector(t, []Definition{
		{Name: "FileBot", Description: "handles file and document requests", Instructions: "i",
			Priority: 5, Role: RoleAgent, ShouldUse: rule.Keywords("never-matches-xyz")},
	})

	// No rule matches, but the message mentions a file-domain term that
	// also appears in the agent's description.
	d, err := s.Select("open the quarterly file")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if d.Name != "FileBot" {
		t.Errorf("selected %q, want FileBot", d.Name)
	}
}

func TestSelect_FallbackChain(t *testing.T) {
	// No rule matches and no domain keywords: fallback wins.
	s := newTestSelector(t, []Definition{
		{Name: "Coder", Instructions: "i", Priority: 1, ShouldUse: rule.Keywords("code")},
		{Name: "General", Instructions: "i", Priority: 999, Role: RoleFallback},
	})

	d, err := s.Select("completely unrelated")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if d.Name != "General" {
		t.Errorf("selected %q, want General", d.Name)
	}
}

func TestSelect_MainSelectorFallback(t *testing.T) {
	s := newTestSelector(t, []Definition{
		{Name: "Coder", Instructions: "i", Priority: 1, ShouldUse: rule.Keywords("code")},
		{Name: "Router", Instructions: "i", Priority: 2, Role: RoleMainSelector},
	})

	d, err := s.Select("unrelated")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if d.Name != "Router" {
		t.Errorf("selected %q, want Router", d.Name)
	}
}

func TestSelect_LastResort(t *testing.T) {
	s := newTestSelector(t, []Definition{
		{Name: "A", Instructions: "i", Priority: 1, ShouldUse: rule.Keywords("alpha")},
		{Name: "Z", Instructions: "i", Priority: 999, ShouldUse: rule.Keywords("zeta")},
	})

	d, err := s.Select("unrelated")
	if err != nil {
		t.Fatalf("select: %v", err)
	}
	if d.Name != "Z" {
		t.Errorf("selected %q, want Z (lowest precedence last resort)", d.Name)
	}
}

func TestSelect_EmptyRegistry(t *testing.T) {
	s := newTestSelector(t, nil)
	if _, err := s.Select("anything"); err != ErrEmptyRegistry {
		t.Fatalf("err = %v, want ErrEmptyRegistry", err)
	}
}

func TestSelect_Deterministic(t *testing.T) {
	s := newTestSelector(t, []Definition{
		{Name: "A", Instructions: "i", Priority: 1, ShouldUse: rule.Keywords("ping")},
		{Name: "B", Instructions: "i", Priority: 1, ShouldUse: rule.Keywords("ping")},
	})

	first, _ := s.Select("ping")
	for range 10 {
		again, _ := s.Select("ping")
		if again.Name != first.Name {
			t.Fatalf("selection not deterministic: %q then %q", first.Name, again.Name)
		}
	}
}
