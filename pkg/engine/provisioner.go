package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/zclconf/go-cty/cty"
)

// Provisioner creates one infrastructure object from its fully resolved
// attributes and returns the object's observed attributes. Returned
// attributes become the resource's value and may be referenced by other
// declarations. Implementations must be safe for concurrent calls.
type Provisioner interface {
	Provision(ctx context.Context, kind string, attrs map[string]cty.Value) (map[string]cty.Value, error)
}

// ProvisionerFunc adapts a function to the Provisioner interface.
type ProvisionerFunc func(ctx context.Context, kind string, attrs map[string]cty.Value) (map[string]cty.Value, error)

// Provision implements Provisioner.
func (f ProvisionerFunc) Provision(ctx context.Context, kind string, attrs map[string]cty.Value) (map[string]cty.Value, error) {
	return f(ctx, kind, attrs)
}

// ProvisionCall records one call made against the Simulator.
type ProvisionCall struct {
	Kind  string
	Attrs map[string]cty.Value
}

// Simulator is an in-process Provisioner for plans, tests, and dry runs.
// It echoes the resolved attributes back and adds a synthetic "id"
// attribute of the form <kind>-<uuid>. It records every call it receives.
type Simulator struct {
	// Fail lists resource kinds whose provisioning should fail.
	Fail map[string]bool

	mu    sync.Mutex
	calls []ProvisionCall
}

// NewSimulator creates a Simulator that succeeds for every kind.
func NewSimulator() *Simulator {
	return &Simulator{}
}

// Provision implements Provisioner.
func (s *Simulator) Provision(ctx context.Context, kind string, attrs map[string]cty.Value) (map[string]cty.Value, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	recorded := make(map[string]cty.Value, len(attrs))
	for k, v := range attrs {
		recorded[k] = v
	}
	s.calls = append(s.calls, ProvisionCall{Kind: kind, Attrs: recorded})
	fail := s.Fail[kind]
	s.mu.Unlock()

	if fail {
		return nil, fmt.Errorf("simulated provisioning failure for kind %q", kind)
	}

	result := make(map[string]cty.Value, len(attrs)+1)
	for k, v := range attrs {
		result[k] = v
	}
	result["id"] = cty.StringVal(kind + "-" + uuid.NewString())
	return result, nil
}

// Calls returns a copy of the recorded calls in arrival order.
func (s *Simulator) Calls() []ProvisionCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]ProvisionCall, len(s.calls))
	copy(out, s.calls)
	return out
}

// CallCount returns the number of provisioning calls received.
func (s *Simulator) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
