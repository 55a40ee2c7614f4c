package engine

import (
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"

	"github.com/terralith/terralith/pkg/values"
)

// DeclKind identifies the namespace a declaration belongs to.
type DeclKind string

const (
	DeclVariable DeclKind = "variable"
	DeclResource DeclKind = "resource"
	DeclOutput   DeclKind = "output"
)

// Variable is a declared input. A variable without a default must be
// supplied an override before evaluation can start.
type Variable struct {
	Name       string
	Type       string
	Default    cty.Value
	HasDefault bool
	Sensitive  bool
}

// Resource is a declared infrastructure object. Attribute values are
// template expressions parsed at declaration time; evaluation resolves
// them against the values of referenced declarations.
type Resource struct {
	Name       string
	Kind       string
	Attributes map[string]hcl.Expression

	attrNames []string
}

// AttrNames returns the attribute names in lexical order.
func (r *Resource) AttrNames() []string {
	return r.attrNames
}

// Output is a declared exported value.
type Output struct {
	Name      string
	Expr      hcl.Expression
	Source    string
	Sensitive bool
}

// Store holds all declarations for one evaluation. Identifiers are unique
// across the variable, resource, and output namespaces, so a bare name in
// an expression denotes exactly one declaration. Store is not safe for
// concurrent mutation; declare everything, then hand it to the builder.
type Store struct {
	variables map[string]*Variable
	resources map[string]*Resource
	outputs   map[string]*Output

	kinds map[string]DeclKind
	seq   map[string]int
	order []string
}

// NewStore creates an empty declaration store.
func NewStore() *Store {
	return &Store{
		variables: make(map[string]*Variable),
		resources: make(map[string]*Resource),
		outputs:   make(map[string]*Output),
		kinds:     make(map[string]DeclKind),
		seq:       make(map[string]int),
	}
}

func (s *Store) claim(name string, kind DeclKind) error {
	if name == "" {
		return newError(ErrInvalidDeclaration, "declaration name must not be empty")
	}
	if prev, ok := s.kinds[name]; ok {
		return newError(ErrDuplicateIdentifier,
			"identifier %q already declared as %s", name, prev).WithNode(name)
	}
	s.kinds[name] = kind
	s.seq[name] = len(s.order)
	s.order = append(s.order, name)
	return nil
}

// DeclareVariable registers a variable. The default, when present, is
// converted to the declared type; a default that cannot convert is a
// type mismatch. Valid types are string, number, bool, and object.
func (s *Store) DeclareVariable(name, typeName string, def any, hasDefault, sensitive bool) error {
	if !values.ValidTypeName(typeName) {
		return newError(ErrInvalidDeclaration,
			"variable %q has unknown type %q", name, typeName).WithNode(name)
	}
	if err := s.claim(name, DeclVariable); err != nil {
		return err
	}
	v := &Variable{Name: name, Type: typeName, Sensitive: sensitive}
	if hasDefault {
		raw, err := values.FromGo(def)
		if err != nil {
			s.unclaim(name)
			return newError(ErrInvalidDeclaration,
				"variable %q default: %v", name, err).WithNode(name)
		}
		conv, err := values.ConvertToType(raw.Cty(), typeName)
		if err != nil {
			s.unclaim(name)
			return newError(ErrTypeMismatch,
				"variable %q default does not conform to type %s", name, typeName).
				WithNode(name).Wrap(err)
		}
		v.Default = conv
		v.HasDefault = true
	}
	s.variables[name] = v
	return nil
}

// DeclareResource registers a resource. Every attribute is parsed as a
// template expression immediately so that reference extraction and cycle
// detection can run before any evaluation.
func (s *Store) DeclareResource(name, kind string, attrs map[string]string) error {
	if kind == "" {
		return newError(ErrInvalidDeclaration,
			"resource %q has empty kind", name).WithNode(name)
	}
	if err := s.claim(name, DeclResource); err != nil {
		return err
	}
	r := &Resource{
		Name:       name,
		Kind:       kind,
		Attributes: make(map[string]hcl.Expression, len(attrs)),
	}
	for attr, src := range attrs {
		expr, diags := hclsyntax.ParseTemplate([]byte(src), name+"."+attr, hcl.InitialPos)
		if diags.HasErrors() {
			s.unclaim(name)
			return newError(ErrInvalidDeclaration,
				"resource %q attribute %q does not parse", name, attr).
				WithNode(name).WithAttr(attr).Wrap(diags)
		}
		r.Attributes[attr] = expr
		r.attrNames = append(r.attrNames, attr)
	}
	sort.Strings(r.attrNames)
	s.resources[name] = r
	return nil
}

// DeclareOutput registers an output whose value is the given template
// expression.
func (s *Store) DeclareOutput(name, expr string, sensitive bool) error {
	parsed, diags := hclsyntax.ParseTemplate([]byte(expr), name, hcl.InitialPos)
	if diags.HasErrors() {
		return newError(ErrInvalidDeclaration,
			"output %q expression does not parse", name).WithNode(name).Wrap(diags)
	}
	if err := s.claim(name, DeclOutput); err != nil {
		return err
	}
	s.outputs[name] = &Output{Name: name, Expr: parsed, Source: expr, Sensitive: sensitive}
	return nil
}

// unclaim rolls back a claim when the rest of the declaration fails
// validation, so a bad declaration does not poison its name.
func (s *Store) unclaim(name string) {
	delete(s.kinds, name)
	delete(s.seq, name)
	if n := len(s.order); n > 0 && s.order[n-1] == name {
		s.order = s.order[:n-1]
	}
}

// Lookup returns the namespace of a declared identifier.
func (s *Store) Lookup(name string) (DeclKind, bool) {
	k, ok := s.kinds[name]
	return k, ok
}

// Variable returns a declared variable by name.
func (s *Store) Variable(name string) (*Variable, bool) {
	v, ok := s.variables[name]
	return v, ok
}

// Resource returns a declared resource by name.
func (s *Store) Resource(name string) (*Resource, bool) {
	r, ok := s.resources[name]
	return r, ok
}

// Output returns a declared output by name.
func (s *Store) Output(name string) (*Output, bool) {
	o, ok := s.outputs[name]
	return o, ok
}

// Names returns all declaration identifiers in declaration order.
func (s *Store) Names() []string {
	out := make([]string, len(s.order))
	copy(out, s.order)
	return out
}

// VariableNames returns variable identifiers in declaration order.
func (s *Store) VariableNames() []string {
	return s.namesOf(DeclVariable)
}

// ResourceNames returns resource identifiers in declaration order.
func (s *Store) ResourceNames() []string {
	return s.namesOf(DeclResource)
}

// OutputNames returns output identifiers in declaration order.
func (s *Store) OutputNames() []string {
	return s.namesOf(DeclOutput)
}

func (s *Store) namesOf(kind DeclKind) []string {
	var out []string
	for _, name := range s.order {
		if s.kinds[name] == kind {
			out = append(out, name)
		}
	}
	return out
}

// Len returns the total number of declarations.
func (s *Store) Len() int {
	return len(s.order)
}

// Seq returns the declaration-order index of an identifier. Unknown names
// sort last. The graph builder uses this to break ordering ties so that
// evaluation order is reproducible run to run.
func (s *Store) Seq(name string) int {
	if i, ok := s.seq[name]; ok {
		return i
	}
	return len(s.order)
}

// DeclaredSensitive reports whether a declaration is marked sensitive at
// the declaration site. Resources are never declared sensitive directly;
// they inherit sensitivity through references.
func (s *Store) DeclaredSensitive(name string) bool {
	switch s.kinds[name] {
	case DeclVariable:
		return s.variables[name].Sensitive
	case DeclOutput:
		return s.outputs[name].Sensitive
	default:
		return false
	}
}
