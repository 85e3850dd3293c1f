// Package prompt substitutes named placeholders in agent instruction
// templates. Placeholders use the form {{ name }} (whitespace inside the
// braces is ignored). Placeholders without a defined variable are left
// verbatim so partially-bound templates survive multi-step chains intact.
package prompt

import "regexp"

// Reserved variable names available to every instruction template.
const (
	// VarUserInput carries the current end-user message.
	VarUserInput = "input_user"
	// VarPreviousResponse carries the previous agent's textual response
	// when agents are chained in a workflow.
	VarPreviousResponse = "previous_response"
)

var placeholderRe = regexp.MustCompile(`\{\{\s*([A-Za-z0-9_.-]+)\s*\}\}`)

// Substitute replaces every {{ name }} placeholder in s with vars[name].
// Unknown placeholders are returned unchanged. Substitute is idempotent
// when no placeholder matches.
func Substitute(s string, vars map[string]string) string {
	if s == "" || len(vars) == 0 {
		return s
	}
	return placeholderRe.ReplaceAllStringFunc(s, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if value, ok := vars[name]; ok {
			return value
		}
		return match
	})
}

// Vars builds the reserved variable map for a single dispatch.
func Vars(userInput, previousResponse string) map[string]string {
	return map[string]string{
		VarUserInput:        userInput,
		VarPreviousResponse: previousResponse,
	}
}
