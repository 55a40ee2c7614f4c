package policy

import (
	"context"
	"fmt"
	"regexp"
	"sort"
	"sync"
	"time"

	"github.com/open-policy-agent/opa/rego"
	"github.com/rs/zerolog"
)

// Engine holds a set of policies and evaluates them against declaration
// input.
type Engine struct {
	mu       sync.RWMutex
	policies map[string]*Policy
	logger   zerolog.Logger
}

// NewEngine creates a policy engine preloaded with the builtin policies.
func NewEngine(logger zerolog.Logger) *Engine {
	e := &Engine{
		policies: make(map[string]*Policy),
		logger:   logger.With().Str("component", "policy").Logger(),
	}
	for _, p := range BuiltinPolicies() {
		p := p
		e.policies[p.Name] = &p
	}
	return e
}

// Add registers or replaces a policy.
func (e *Engine) Add(p Policy) error {
	if p.Name == "" {
		return fmt.Errorf("policy has no name")
	}
	if extractPackage(p.Rego) == "" {
		return fmt.Errorf("policy %s has no package declaration", p.Name)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.policies[p.Name] = &p
	return nil
}

// List returns the registered policies sorted by name.
func (e *Engine) List() []Policy {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]Policy, 0, len(e.policies))
	for _, p := range e.policies {
		out = append(out, *p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Evaluate runs every enabled policy against the input. A policy that
// fails to evaluate produces a warning rather than failing the run.
func (e *Engine) Evaluate(ctx context.Context, input *Input) (*Result, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	result := &Result{Allowed: true, EvaluatedAt: time.Now()}
	for _, p := range e.sorted() {
		if !p.Enabled {
			continue
		}
		violations, err := e.evaluateOne(ctx, p, input)
		if err != nil {
			e.logger.Error().Err(err).Str("policy", p.Name).Msg("policy evaluation failed")
			result.Warnings = append(result.Warnings,
				fmt.Sprintf("policy %s did not evaluate: %v", p.Name, err))
			continue
		}
		result.Violations = append(result.Violations, violations...)
	}

	for _, v := range result.Violations {
		if v.Severity == SeverityError {
			result.Allowed = false
			break
		}
	}
	e.logger.Debug().
		Int("violations", len(result.Violations)).
		Bool("allowed", result.Allowed).
		Msg("policy evaluation complete")
	return result, nil
}

func (e *Engine) sorted() []*Policy {
	out := make([]*Policy, 0, len(e.policies))
	for _, p := range e.policies {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// evaluateOne queries the policy's deny set.
func (e *Engine) evaluateOne(ctx context.Context, p *Policy, input *Input) ([]Violation, error) {
	query := fmt.Sprintf("data.%s.deny", extractPackage(p.Rego))

	r := rego.New(
		rego.Module(p.Name, p.Rego),
		rego.Query(query),
		rego.Input(input),
	)
	results, err := r.Eval(ctx)
	if err != nil {
		return nil, fmt.Errorf("rego eval: %w", err)
	}

	var violations []Violation
	for _, res := range results {
		for _, expr := range res.Expressions {
			denySet, ok := expr.Value.([]any)
			if !ok {
				continue
			}
			for _, d := range denySet {
				violations = append(violations, e.toViolation(p, d))
			}
		}
	}
	return violations, nil
}

func (e *Engine) toViolation(p *Policy, raw any) Violation {
	v := Violation{
		Policy:   p.Name,
		Severity: p.Severity,
		Message:  fmt.Sprintf("policy %s violated", p.Name),
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return v
	}
	if msg, ok := fields["message"].(string); ok {
		v.Message = msg
	}
	if sev, ok := fields["severity"].(string); ok {
		v.Severity = Severity(sev)
	}
	if node, ok := fields["node"].(string); ok {
		v.Node = node
	}
	return v
}

var packageRe = regexp.MustCompile(`(?m)^package\s+([\w.]+)`)

// extractPackage pulls the package path out of a Rego module.
func extractPackage(module string) string {
	m := packageRe.FindStringSubmatch(module)
	if len(m) < 2 {
		return ""
	}
	return m[1]
}
