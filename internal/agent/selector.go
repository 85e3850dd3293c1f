package agent

import (
	"log/slog"
	"strings"

	"github.com/jkaninda/busara/internal/rule"
)

// creationIntentTerms trigger the creation-specialist priority override.
// Substring match, case-insensitive, same semantics as keyword rules.
var creationIntentTerms = []string{
	"create an agent",
	"create a new agent",
	"new agent",
	"add an agent",
	"build an agent",
	"agent creator",
}

// domainFallbackTerms are the secondary file/data keywords that unlock the
// looser orchestrator/agent scan when no rule matched directly.
var domainFallbackTerms = []string{
	"file", "folder", "document", "upload", "attachment",
	"csv", "excel", "spreadsheet",
	"data", "database", "record", "table",
}

// Selector picks the best-matching agent for a message using the registry
// snapshot and the rule evaluator. Selection is a deterministic pure
// function of (message, snapshot).
type Selector struct {
	registry *Registry
	logger   *slog.Logger
	onSelect func(strategy string)
}

// NewSelector creates a selector over the given registry.
func NewSelector(registry *Registry, logger *slog.Logger) *Selector {
	return &Selector{registry: registry, logger: logger}
}

// OnSelect registers a callback invoked with the strategy of every
// selection, for metrics. Must be set before concurrent use.
func (s *Selector) OnSelect(fn func(strategy string)) {
	s.onSelect = fn
}

// Select picks one agent for the message:
//
//  1. Creation-intent messages go to the creation specialist when its own
//     rule also matches (priority override).
//  2. First rule match in ascending priority order, skipping mainSelector
//     and the already-tested creation specialist.
//  3. File/data-domain messages fall through to a looser scan over
//     orchestrator- and agent-role entries.
//  4. The cached general fallback agent.
//  5. The mainSelector agent.
//  6. The lowest-priority entry as last resort.
//
// An empty registry is a configuration error.
func (s *Selector) Select(message string) (*Definition, error) {
	snap := s.registry.view()
	if len(snap.all) == 0 {
		return nil, ErrEmptyRegistry
	}

	// Step 1: creation-intent priority override.
	creationTested := false
	if snap.creation != nil && containsAny(message, creationIntentTerms) {
		creationTested = true
		if snap.creation.Matches(message) {
			s.logSelection(message, snap.creation, "creation-intent")
			return snap.creation, nil
		}
	}

	// Step 2: first rule match in priority order.
	for _, d := range snap.sorted {
		if d.Role == RoleMainSelector {
			continue
		}
		if creationTested && d == snap.creation {
			continue
		}
		if d.Matches(message) {
			s.logSelection(message, d, "rule")
			return d, nil
		}
	}

	// Step 3: looser scan for file/data-domain messages. A Default-typed
	// rule counts as a match here even when its exclusion fired.
	if containsAny(message, domainFallbackTerms) {
		for _, d := range snap.sorted {
			if d.Role != RoleOrchestrator && d.Role != RoleAgent {
				continue
			}
			if d.Matches(message) || looselyMatches(d, message) {
				s.logSelection(message, d, "domain-keywords")
				return d, nil
			}
		}
	}

	// Step 4: general fallback.
	if snap.fallback != nil {
		s.logSelection(message, snap.fallback, "fallback")
		return snap.fallback, nil
	}

	// Step 5: main selector.
	if snap.selector != nil {
		s.logSelection(message, snap.selector, "main-selector")
		return snap.selector, nil
	}

	// Step 6: last resort, lowest precedence entry.
	last := snap.sorted[len(snap.sorted)-1]
	s.logSelection(message, last, "last-resort")
	return last, nil
}

// looselyMatches widens step-3 matching: catch-all rules qualify, and so
// do agents whose name or description mentions a domain term from the
// message.
func looselyMatches(d *Definition, message string) bool {
	if d.ShouldUse != nil && d.ShouldUse.Type == rule.KindDefault {
		return true
	}
	haystack := strings.ToLower(d.Name + " " + d.Description)
	lower := strings.ToLower(message)
	for _, term := range domainFallbackTerms {
		if strings.Contains(lower, term) && strings.Contains(haystack, term) {
			return true
		}
	}
	return false
}

func containsAny(message string, terms []string) bool {
	lower := strings.ToLower(message)
	for _, t := range terms {
		if strings.Contains(lower, t) {
			return true
		}
	}
	return false
}

func (s *Selector) logSelection(message string, d *Definition, via string) {
	if s.onSelect != nil {
		s.onSelect(via)
	}
	if s.logger == nil {
		return
	}
	s.logger.Debug("agent selected",
		slog.String("agent", d.Name),
		slog.String("via", via),
		slog.Int("message_len", len(message)),
	)
}
