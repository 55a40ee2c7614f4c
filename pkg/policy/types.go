package policy

import (
	"time"

	"github.com/terralith/terralith/pkg/engine"
)

// Severity grades a violation.
type Severity string

const (
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Policy is one Rego policy. The module must define a "deny" set whose
// members carry message, severity, and node fields.
type Policy struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Severity    Severity `json:"severity"`
	Enabled     bool     `json:"enabled"`
	Tags        []string `json:"tags,omitempty"`
	Rego        string   `json:"rego"`
}

// Violation is one policy finding.
type Violation struct {
	Policy   string   `json:"policy"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`
	Node     string   `json:"node,omitempty"`
}

// Result is the outcome of evaluating all enabled policies.
type Result struct {
	// Allowed is false when any violation has error severity.
	Allowed     bool        `json:"allowed"`
	Violations  []Violation `json:"violations,omitempty"`
	Warnings    []string    `json:"warnings,omitempty"`
	EvaluatedAt time.Time   `json:"evaluated_at"`
}

// VariableSummary describes one declared variable for policy input.
type VariableSummary struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	HasDefault bool   `json:"has_default"`
	Sensitive  bool   `json:"sensitive"`
	Dependents int    `json:"dependents"`
}

// ResourceSummary describes one declared resource for policy input.
type ResourceSummary struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Attributes []string `json:"attributes"`
	Dependents int      `json:"dependents"`
}

// OutputSummary describes one declared output for policy input.
type OutputSummary struct {
	Name string `json:"name"`

	// DeclaredSensitive is the flag on the declaration itself.
	DeclaredSensitive bool `json:"declared_sensitive"`

	// DerivedSensitive is true when the output references sensitive data
	// through any chain, whether or not it is declared sensitive.
	DerivedSensitive bool `json:"derived_sensitive"`
}

// Input is what policies receive. It carries declaration metadata only.
type Input struct {
	Variables []VariableSummary `json:"variables"`
	Resources []ResourceSummary `json:"resources"`
	Outputs   []OutputSummary   `json:"outputs"`
}

// BuildInput summarizes a declaration store and its validated graph for
// policy evaluation.
func BuildInput(store *engine.Store, graph *engine.Graph) *Input {
	tracker := engine.NewSensitivityTracker(store, graph)
	in := &Input{}

	for _, name := range store.VariableNames() {
		v, _ := store.Variable(name)
		in.Variables = append(in.Variables, VariableSummary{
			Name:       name,
			Type:       v.Type,
			HasDefault: v.HasDefault,
			Sensitive:  v.Sensitive,
			Dependents: len(graph.Nodes[name].Dependents),
		})
	}
	for _, name := range store.ResourceNames() {
		r, _ := store.Resource(name)
		in.Resources = append(in.Resources, ResourceSummary{
			Name:       name,
			Kind:       r.Kind,
			Attributes: r.AttrNames(),
			Dependents: len(graph.Nodes[name].Dependents),
		})
	}
	for _, name := range store.OutputNames() {
		o, _ := store.Output(name)
		in.Outputs = append(in.Outputs, OutputSummary{
			Name:              name,
			DeclaredSensitive: o.Sensitive,
			DerivedSensitive:  tracker.IsSensitive(name),
		})
	}
	return in
}
