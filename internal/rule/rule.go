// Package rule implements the boolean predicate language used to decide
// whether an agent or a workflow edge applies to a message. Rules are
// data-only: a serializable tagged union interpreted by a pure evaluator,
// with no executable code embedded in agent definitions.
package rule

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// Kind discriminates the rule union.
type Kind string

const (
	KindKeywords Kind = "keywords"
	KindRegex    Kind = "regex"
	KindComplex  Kind = "complex"
	KindDefault  Kind = "default"
)

// Operator combines the children of a complex rule.
type Operator string

const (
	OpAnd Operator = "AND"
	OpOr  Operator = "OR"
)

// Node is a single rule in the predicate tree. The Type field determines
// which other fields are meaningful, mirroring how structured LLM content
// blocks are modeled elsewhere in this codebase.
type Node struct {
	Type Kind `json:"type" yaml:"type"`

	// keywords rule fields.
	Keywords []string `json:"keywords,omitempty" yaml:"keywords,omitempty"`

	// regex rule fields.
	Pattern string `json:"pattern,omitempty" yaml:"pattern,omitempty"`

	// complex rule fields.
	Children []*Node  `json:"children,omitempty" yaml:"children,omitempty"`
	Operator Operator `json:"operator,omitempty" yaml:"operator,omitempty"`

	// default rule fields.
	Exclude *Node `json:"exclude,omitempty" yaml:"exclude,omitempty"`

	compileOnce sync.Once
	re          *regexp.Regexp
	invalid     bool
}

// Keywords builds a keywords rule.
func Keywords(words ...string) *Node {
	return &Node{Type: KindKeywords, Keywords: words}
}

// Regex builds a regex rule.
func Regex(pattern string) *Node {
	return &Node{Type: KindRegex, Pattern: pattern}
}

// Complex builds a composite rule over children.
func Complex(op Operator, children ...*Node) *Node {
	return &Node{Type: KindComplex, Operator: op, Children: children}
}

// Default builds a catch-all rule with an optional exclusion gate.
func Default(exclude *Node) *Node {
	return &Node{Type: KindDefault, Exclude: exclude}
}

// Compile pre-compiles every regex in the tree. A malformed pattern marks
// that node as never matching and is reported to the caller for logging;
// evaluation itself never fails. Compile is idempotent and optional —
// Evaluate compiles lazily (without error reporting) when skipped.
func (n *Node) Compile() error {
	if n == nil {
		return nil
	}
	var firstErr error
	n.compileOnce.Do(func() {
		firstErr = n.compile()
	})
	for _, c := range n.Children {
		if err := c.Compile(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	if err := n.Exclude.Compile(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func (n *Node) compile() error {
	if n.Type != KindRegex || n.Pattern == "" {
		return nil
	}
	pattern := n.Pattern
	if !strings.HasPrefix(pattern, "(?i)") {
		pattern = "(?i)" + pattern
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		n.invalid = true
		return fmt.Errorf("invalid rule pattern %q: %w", n.Pattern, err)
	}
	n.re = re
	return nil
}

// Evaluate reports whether the rule matches the message. Pure: no side
// effects, deterministic for a given (rule, message) pair. Unknown rule
// types evaluate to false.
func (n *Node) Evaluate(message string) bool {
	if n == nil {
		return false
	}
	switch n.Type {
	case KindKeywords:
		return n.matchKeywords(message)
	case KindRegex:
		return n.matchRegex(message)
	case KindComplex:
		return n.matchComplex(message)
	case KindDefault:
		return !n.Exclude.Evaluate(message)
	default:
		return false
	}
}

func (n *Node) matchKeywords(message string) bool {
	if len(n.Keywords) == 0 {
		return false
	}
	lower := strings.ToLower(message)
	for _, kw := range n.Keywords {
		if kw == "" {
			continue
		}
		if strings.Contains(lower, strings.ToLower(kw)) {
			return true
		}
	}
	return false
}

func (n *Node) matchRegex(message string) bool {
	n.compileOnce.Do(func() { _ = n.compile() })
	if n.invalid || n.re == nil {
		return false
	}
	return n.re.MatchString(message)
}

func (n *Node) matchComplex(message string) bool {
	if len(n.Children) == 0 {
		return false
	}
	if n.Operator == OpAnd {
		for _, c := range n.Children {
			if !c.Evaluate(message) {
				return false
			}
		}
		return true
	}
	// OR is the default operator.
	for _, c := range n.Children {
		if c.Evaluate(message) {
			return true
		}
	}
	return false
}
