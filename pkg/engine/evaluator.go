package engine

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/hcl/v2"
	"github.com/rs/zerolog"
	"github.com/zclconf/go-cty/cty"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/terralith/terralith/pkg/values"
)

// NodeState is the lifecycle state of one declaration during evaluation.
type NodeState string

const (
	// StatePending means the node has not been scheduled yet.
	StatePending NodeState = "pending"

	// StateResolving means the node is being evaluated right now.
	StateResolving NodeState = "resolving"

	// StateResolved means the node has a final value.
	StateResolved NodeState = "resolved"

	// StateFailed means evaluation of the node itself failed.
	StateFailed NodeState = "failed"

	// StateBlocked means the node was never attempted because a
	// dependency failed or evaluation had already aborted.
	StateBlocked NodeState = "blocked"
)

// IsTerminal reports whether the state is final.
func (s NodeState) IsTerminal() bool {
	switch s {
	case StateResolved, StateFailed, StateBlocked:
		return true
	}
	return false
}

// OutputValue is one resolved output in a Result.
type OutputValue struct {
	// Value is the resolved value, with sensitivity marks stripped.
	Value cty.Value

	// Sensitive reports whether the value derives from sensitive data and
	// must be redacted when displayed or persisted.
	Sensitive bool
}

// Result is the outcome of one evaluation run.
type Result struct {
	// RunID uniquely identifies the run.
	RunID string

	// Outputs holds every output that resolved, keyed by name. Outputs
	// blocked by upstream failures are absent.
	Outputs map[string]OutputValue

	// States records the final state of every declaration.
	States map[string]NodeState

	// Errors lists what went wrong, primary failures before blocked
	// nodes. Empty on success.
	Errors []*Error

	StartedAt   time.Time
	CompletedAt time.Time
	Duration    time.Duration
}

// Err returns the first error of the run, or nil on success.
func (r *Result) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	return r.Errors[0]
}

// Blocked returns the identifiers that were never attempted, in no
// particular order.
func (r *Result) Blocked() []string {
	var out []string
	for id, st := range r.States {
		if st == StateBlocked {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// Options tunes one evaluation run.
type Options struct {
	// MaxParallel bounds how many nodes of one level resolve at once.
	// Zero or negative means the default of 10.
	MaxParallel int

	// Overrides supplies variable values by name, taking precedence over
	// declared defaults. Values are converted to the variable's declared
	// type; a value that cannot convert is a type mismatch.
	Overrides map[string]any

	// Logger receives progress events. The zero value discards them.
	Logger zerolog.Logger

	// Tracer, when set, wraps the run and each provisioning call in spans.
	Tracer trace.Tracer

	// ObserveProvision, when set, is called after every provisioning
	// attempt with its duration and outcome.
	ObserveProvision func(kind string, d time.Duration, err error)
}

const defaultMaxParallel = 10

// Evaluator resolves a validated graph level by level. Within a level,
// nodes run concurrently up to MaxParallel. A fresh Evaluator is needed
// per run; bindings are write-once.
type Evaluator struct {
	store       *Store
	graph       *Graph
	sensitivity *SensitivityTracker
	provisioner Provisioner
	opts        Options

	mu       sync.Mutex
	bindings map[string]cty.Value
	states   map[string]NodeState
	nodeErrs map[string]*Error
	aborted  bool
}

// NewEvaluator creates an evaluator for one run over the given store and
// its validated graph.
func NewEvaluator(store *Store, graph *Graph, provisioner Provisioner, opts Options) *Evaluator {
	if opts.MaxParallel <= 0 {
		opts.MaxParallel = defaultMaxParallel
	}
	return &Evaluator{
		store:       store,
		graph:       graph,
		sensitivity: NewSensitivityTracker(store, graph),
		provisioner: provisioner,
		opts:        opts,
		bindings:    make(map[string]cty.Value, len(graph.Nodes)),
		states:      make(map[string]NodeState, len(graph.Nodes)),
		nodeErrs:    make(map[string]*Error),
	}
}

// Evaluate runs the graph to completion. Variables bind first; if any
// required variable is missing or an override mismatches its type, every
// error of that class is reported and no provisioning call is made. After
// the first provisioning failure no further resource is started, but
// outputs whose dependencies all resolved still produce values.
func (e *Evaluator) Evaluate(ctx context.Context) *Result {
	runID := uuid.NewString()
	started := time.Now()

	if e.opts.Tracer != nil {
		var span trace.Span
		ctx, span = e.opts.Tracer.Start(ctx, "engine.evaluate",
			trace.WithAttributes(
				attribute.String("run.id", runID),
				attribute.Int("graph.nodes", len(e.graph.Nodes)),
				attribute.Int("graph.depth", e.graph.Depth),
			))
		defer span.End()
	}

	log := e.opts.Logger.With().Str("run_id", runID).Logger()
	log.Info().
		Int("nodes", len(e.graph.Nodes)).
		Int("levels", e.graph.Depth).
		Int("max_parallel", e.opts.MaxParallel).
		Msg("evaluation started")

	for id := range e.graph.Nodes {
		e.states[id] = StatePending
	}

	if ok := e.bindVariables(log); !ok {
		e.blockRemaining()
	} else {
		for i, level := range e.graph.Levels {
			e.runLevel(ctx, log, i, level)
		}
	}

	result := e.collect(runID, started)
	log.Info().
		Int("resolved", countState(result.States, StateResolved)).
		Int("failed", countState(result.States, StateFailed)).
		Int("blocked", countState(result.States, StateBlocked)).
		Dur("duration", result.Duration).
		Msg("evaluation finished")
	return result
}

// bindVariables resolves every variable sequentially in declaration order
// before any graph level runs. All binding errors are collected so the
// caller sees the full list at once.
func (e *Evaluator) bindVariables(log zerolog.Logger) bool {
	ok := true
	for _, name := range e.store.VariableNames() {
		v, _ := e.store.Variable(name)
		val, err := e.bindVariable(v)
		if err != nil {
			e.setFailed(name, err)
			log.Error().Str("node", name).Str("kind", string(err.Kind)).Msg("variable binding failed")
			ok = false
			continue
		}
		if e.sensitivity.IsSensitive(name) {
			val = val.Mark(values.MarkSensitive)
		}
		e.setResolved(name, val)
		log.Debug().Str("node", name).Msg("variable bound")
	}
	return ok
}

func (e *Evaluator) bindVariable(v *Variable) (cty.Value, *Error) {
	if raw, ok := e.opts.Overrides[v.Name]; ok {
		from, err := values.FromGo(raw)
		if err != nil {
			return cty.NilVal, newError(ErrTypeMismatch,
				"override for variable %q: %v", v.Name, err).WithNode(v.Name)
		}
		conv, err := values.ConvertToType(from.Cty(), v.Type)
		if err != nil {
			return cty.NilVal, newError(ErrTypeMismatch,
				"override for variable %q does not conform to type %s", v.Name, v.Type).
				WithNode(v.Name).Wrap(err)
		}
		return conv, nil
	}
	if v.HasDefault {
		return v.Default, nil
	}
	return cty.NilVal, newError(ErrMissingRequiredVariable,
		"variable %q has no default and no override", v.Name).WithNode(v.Name)
}

// runLevel resolves one level with a bounded worker pool. Variables were
// bound up front and are skipped here.
func (e *Evaluator) runLevel(ctx context.Context, log zerolog.Logger, level int, ids []string) {
	var pending []string
	for _, id := range ids {
		if kind, _ := e.store.Lookup(id); kind != DeclVariable {
			pending = append(pending, id)
		}
	}
	if len(pending) == 0 {
		return
	}

	workers := e.opts.MaxParallel
	if workers > len(pending) {
		workers = len(pending)
	}

	queue := make(chan string, len(pending))
	for _, id := range pending {
		queue <- id
	}
	close(queue)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range queue {
				e.resolveNode(ctx, log, id)
			}
		}()
	}
	wg.Wait()

	log.Debug().Int("level", level).Int("nodes", len(pending)).Msg("level complete")
}

// resolveNode drives one node to a terminal state. A node with a failed or
// blocked dependency is blocked without being attempted. Once a
// provisioning failure has occurred, resources are blocked too; outputs
// keep resolving as long as their own dependencies did.
func (e *Evaluator) resolveNode(ctx context.Context, log zerolog.Logger, id string) {
	kind, _ := e.store.Lookup(id)
	node := e.graph.Nodes[id]

	e.mu.Lock()
	for _, dep := range node.Dependencies {
		if e.states[dep] != StateResolved {
			e.states[id] = StateBlocked
			e.nodeErrs[id] = newError(ErrBlockedByDependency,
				"%q not attempted because %q did not resolve", id, dep).WithNode(id)
			e.mu.Unlock()
			log.Warn().Str("node", id).Str("dependency", dep).Msg("node blocked")
			return
		}
	}
	if e.aborted && kind == DeclResource {
		e.states[id] = StateBlocked
		e.nodeErrs[id] = newError(ErrBlockedByDependency,
			"%q not attempted after earlier provisioning failure", id).WithNode(id)
		e.mu.Unlock()
		log.Warn().Str("node", id).Msg("node blocked by aborted run")
		return
	}
	e.states[id] = StateResolving
	ectx := e.evalContext(node.Dependencies)
	e.mu.Unlock()

	var (
		val cty.Value
		err *Error
	)
	switch kind {
	case DeclResource:
		val, err = e.resolveResource(ctx, id, ectx)
	case DeclOutput:
		val, err = e.resolveOutput(id, ectx)
	}

	if err != nil {
		e.setFailed(id, err)
		if kind == DeclResource {
			e.abort()
		}
		log.Error().Str("node", id).Str("kind", string(err.Kind)).Msg("node failed")
		return
	}
	if e.sensitivity.IsSensitive(id) {
		val = val.Mark(values.MarkSensitive)
	}
	e.setResolved(id, val)
	log.Debug().Str("node", id).Msg("node resolved")
}

// evalContext snapshots the bindings a node may reference. Callers must
// hold e.mu.
func (e *Evaluator) evalContext(deps []string) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(deps))
	for _, dep := range deps {
		vars[dep] = e.bindings[dep]
	}
	return &hcl.EvalContext{Variables: vars}
}

func (e *Evaluator) resolveResource(ctx context.Context, id string, ectx *hcl.EvalContext) (cty.Value, *Error) {
	r, _ := e.store.Resource(id)

	attrs := make(map[string]cty.Value, len(r.Attributes))
	for _, attr := range r.AttrNames() {
		v, diags := r.Attributes[attr].Value(ectx)
		if diags.HasErrors() {
			return cty.NilVal, newError(ErrInvalidDeclaration,
				"resource %q attribute %q did not evaluate", id, attr).
				WithNode(id).WithAttr(attr).Wrap(diags)
		}
		// The provisioning collaborator receives plain values; marks are
		// reapplied to its result below.
		unmarked, _ := v.UnmarkDeep()
		attrs[attr] = unmarked
	}

	if e.opts.Tracer != nil {
		var span trace.Span
		ctx, span = e.opts.Tracer.Start(ctx, "engine.provision",
			trace.WithAttributes(
				attribute.String("resource.id", id),
				attribute.String("resource.kind", r.Kind),
			))
		defer span.End()
	}

	started := time.Now()
	result, err := e.provisioner.Provision(ctx, r.Kind, attrs)
	if e.opts.ObserveProvision != nil {
		e.opts.ObserveProvision(r.Kind, time.Since(started), err)
	}
	if err != nil {
		return cty.NilVal, newError(ErrProvisioning,
			"provisioning resource %q (kind %s) failed", id, r.Kind).
			WithNode(id).Wrap(err)
	}

	if len(result) == 0 {
		return cty.EmptyObjectVal, nil
	}
	return cty.ObjectVal(result), nil
}

func (e *Evaluator) resolveOutput(id string, ectx *hcl.EvalContext) (cty.Value, *Error) {
	o, _ := e.store.Output(id)
	v, diags := o.Expr.Value(ectx)
	if diags.HasErrors() {
		return cty.NilVal, newError(ErrInvalidDeclaration,
			"output %q did not evaluate", id).WithNode(id).Wrap(diags)
	}
	return v, nil
}

func (e *Evaluator) setResolved(id string, val cty.Value) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.bindings[id] = val
	e.states[id] = StateResolved
}

func (e *Evaluator) setFailed(id string, err *Error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.states[id] = StateFailed
	e.nodeErrs[id] = err
}

func (e *Evaluator) abort() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.aborted = true
}

// blockRemaining marks every non-terminal node blocked. Used when variable
// binding fails and nothing may run.
func (e *Evaluator) blockRemaining() {
	e.mu.Lock()
	defer e.mu.Unlock()
	for id, st := range e.states {
		if !st.IsTerminal() {
			e.states[id] = StateBlocked
			e.nodeErrs[id] = newError(ErrBlockedByDependency,
				"%q not attempted because variable binding failed", id).WithNode(id)
		}
	}
}

// collect assembles the Result. Failures come before blocked nodes, each
// group in declaration order, so the first error is always a root cause.
func (e *Evaluator) collect(runID string, started time.Time) *Result {
	e.mu.Lock()
	defer e.mu.Unlock()

	res := &Result{
		RunID:     runID,
		Outputs:   make(map[string]OutputValue),
		States:    make(map[string]NodeState, len(e.states)),
		StartedAt: started,
	}
	for id, st := range e.states {
		res.States[id] = st
	}

	for _, name := range e.store.OutputNames() {
		if e.states[name] != StateResolved {
			continue
		}
		val := e.bindings[name]
		sensitive := values.IsCtySensitive(val)
		plain, _ := val.UnmarkDeep()
		res.Outputs[name] = OutputValue{Value: plain, Sensitive: sensitive}
	}

	for _, name := range e.store.Names() {
		if e.states[name] == StateFailed {
			res.Errors = append(res.Errors, e.nodeErrs[name])
		}
	}
	for _, name := range e.store.Names() {
		if e.states[name] == StateBlocked {
			res.Errors = append(res.Errors, e.nodeErrs[name])
		}
	}

	res.CompletedAt = time.Now()
	res.Duration = res.CompletedAt.Sub(res.StartedAt)
	return res
}

func countState(states map[string]NodeState, want NodeState) int {
	n := 0
	for _, st := range states {
		if st == want {
			n++
		}
	}
	return n
}
