package align

import (
	"fmt"
	"strings"
)

// Policy declares what a project accepts: goals it pursues, scope keywords
// it allows or restricts, and hard constraints.
type Policy struct {
	Goals       []string    `toml:"goals"`
	Scope       ScopePolicy `toml:"scope"`
	Constraints []string    `toml:"constraints"`
}

// ScopePolicy bounds the kinds of change a project takes on.
type ScopePolicy struct {
	Description string   `toml:"description"`
	Allowed     []string `toml:"allowed"`
	Restricted  []string `toml:"restricted"`
}

// Decision is the gate's verdict on one request.
type Decision struct {
	Aligned bool
	Reason  string
	Data    Data
}

// Data captures what the gate matched, persisted into the workflow
// manifest for the audit trail.
type Data struct {
	MatchedGoals    []string `json:"matched_goals,omitempty"`
	MatchedScope    []string `json:"matched_scope,omitempty"`
	ScopeViolations []string `json:"scope_violations,omitempty"`
	Constraints     []string `json:"constraints,omitempty"`
}

// Gate evaluates requests against a policy. It is pure: no I/O, no state.
type Gate struct {
	policy Policy
}

// NewGate creates a gate for the given policy.
func NewGate(policy Policy) *Gate {
	return &Gate{policy: policy}
}

// Evaluate checks one request. It must run before a workflow id is
// generated; on rejection the caller creates no directory, manifest, or
// checkpoint.
func (g *Gate) Evaluate(request string) Decision {
	if strings.TrimSpace(request) == "" {
		return Decision{Aligned: false, Reason: "request is empty"}
	}

	tokens := tokenize(request)

	// Restricted scope keywords reject outright, naming the scope.
	var violations []string
	for _, restricted := range g.policy.Scope.Restricted {
		if matchesAny(tokens, restricted) {
			violations = append(violations, restricted)
		}
	}
	if len(violations) > 0 {
		reason := fmt.Sprintf("request touches restricted scope (%s)", strings.Join(violations, ", "))
		if g.policy.Scope.Description != "" {
			reason += ": project scope is " + g.policy.Scope.Description
		}
		return Decision{
			Aligned: false,
			Reason:  reason,
			Data:    Data{ScopeViolations: violations},
		}
	}

	data := Data{Constraints: g.policy.Constraints}
	for _, goal := range g.policy.Goals {
		if matchesAny(tokens, goal) {
			data.MatchedGoals = append(data.MatchedGoals, goal)
		}
	}
	for _, allowed := range g.policy.Scope.Allowed {
		if matchesAny(tokens, allowed) {
			data.MatchedScope = append(data.MatchedScope, allowed)
		}
	}

	// An allowed-scope list is a positive filter: with one declared, a
	// request matching neither goals nor allowed scope is out of scope.
	if len(g.policy.Scope.Allowed) > 0 && len(data.MatchedScope) == 0 && len(data.MatchedGoals) == 0 {
		reason := "request matches no project goal or allowed scope"
		if g.policy.Scope.Description != "" {
			reason += ": project scope is " + g.policy.Scope.Description
		}
		return Decision{Aligned: false, Reason: reason, Data: data}
	}

	return Decision{Aligned: true, Reason: "aligned with project goals and scope", Data: data}
}

// tokenize lowercases and splits a request into words.
func tokenize(s string) map[string]bool {
	tokens := make(map[string]bool)
	for _, word := range strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !('a' <= r && r <= 'z') && !('0' <= r && r <= '9')
	}) {
		tokens[word] = true
	}
	return tokens
}

// matchesAny reports whether every word of phrase appears in tokens.
func matchesAny(tokens map[string]bool, phrase string) bool {
	words := strings.Fields(strings.ToLower(phrase))
	if len(words) == 0 {
		return false
	}
	for _, w := range words {
		if !tokens[w] {
			return false
		}
	}
	return true
}
