package engine

import (
	"fmt"
	"sort"
	"strings"

	"github.com/hashicorp/hcl/v2"
)

// GraphNode is a declaration placed in the reference graph.
type GraphNode struct {
	// ID is the declaration identifier.
	ID string `json:"id"`

	// Kind is the declaration namespace the node came from.
	Kind DeclKind `json:"kind"`

	// Level is the evaluation level. All of a node's dependencies sit on
	// strictly lower levels, so nodes sharing a level may run in parallel.
	Level int `json:"level"`

	// Dependencies are identifiers this node references.
	Dependencies []string `json:"dependencies,omitempty"`

	// Dependents are identifiers that reference this node.
	Dependents []string `json:"dependents,omitempty"`
}

// GraphEdge records one reference. From is the referrer, To the referenced
// declaration; evaluation must resolve To before From.
type GraphEdge struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// Graph is the validated reference graph for one declaration store.
type Graph struct {
	Nodes  map[string]*GraphNode `json:"nodes"`
	Edges  []GraphEdge           `json:"edges"`
	Levels [][]string            `json:"levels"`
	Roots  []string              `json:"roots"`
	Depth  int                   `json:"depth"`
}

// TopologicalOrder flattens the levels into a single sequence in which
// every declaration appears after everything it references.
func (g *Graph) TopologicalOrder() []string {
	out := make([]string, 0, len(g.Nodes))
	for _, level := range g.Levels {
		out = append(out, level...)
	}
	return out
}

// ToDOT renders the graph in Graphviz DOT format for inspection.
func (g *Graph) ToDOT() string {
	var b strings.Builder
	b.WriteString("digraph references {\n")
	b.WriteString("  rankdir=LR;\n")
	for _, level := range g.Levels {
		for _, id := range level {
			n := g.Nodes[id]
			shape := "ellipse"
			switch n.Kind {
			case DeclResource:
				shape = "box"
			case DeclOutput:
				shape = "note"
			}
			fmt.Fprintf(&b, "  %q [shape=%s, label=\"%s\\nlevel %d\"];\n",
				n.ID, shape, n.ID, n.Level)
		}
	}
	for _, e := range g.Edges {
		fmt.Fprintf(&b, "  %q -> %q;\n", e.To, e.From)
	}
	b.WriteString("}\n")
	return b.String()
}

// GraphBuilder constructs and validates reference graphs from a
// declaration store.
type GraphBuilder struct {
	store *Store
}

// NewGraphBuilder creates a builder over the given store.
func NewGraphBuilder(store *Store) *GraphBuilder {
	return &GraphBuilder{store: store}
}

// Build extracts references from every declaration, rejects references to
// undeclared identifiers, rejects cycles, and assigns evaluation levels.
func (b *GraphBuilder) Build() (*Graph, error) {
	g := &Graph{Nodes: make(map[string]*GraphNode, b.store.Len())}

	for _, name := range b.store.Names() {
		kind, _ := b.store.Lookup(name)
		g.Nodes[name] = &GraphNode{ID: name, Kind: kind}
	}

	for _, name := range b.store.Names() {
		deps, err := b.references(name)
		if err != nil {
			return nil, err
		}
		node := g.Nodes[name]
		node.Dependencies = deps
		for _, dep := range deps {
			g.Nodes[dep].Dependents = append(g.Nodes[dep].Dependents, name)
			g.Edges = append(g.Edges, GraphEdge{From: name, To: dep})
		}
	}

	if err := b.detectCycles(g); err != nil {
		return nil, err
	}
	b.assignLevels(g)
	return g, nil
}

// references collects the distinct identifiers a declaration's expressions
// mention, in sorted order. Identifiers are unique across namespaces, so
// the root name of each traversal is the referenced declaration.
func (b *GraphBuilder) references(name string) ([]string, error) {
	var exprs []hcl.Expression
	switch kind, _ := b.store.Lookup(name); kind {
	case DeclResource:
		r, _ := b.store.Resource(name)
		for _, attr := range r.AttrNames() {
			exprs = append(exprs, r.Attributes[attr])
		}
	case DeclOutput:
		o, _ := b.store.Output(name)
		exprs = append(exprs, o.Expr)
	default:
		// Variables carry literal defaults only.
		return nil, nil
	}

	seen := make(map[string]bool)
	var deps []string
	for _, expr := range exprs {
		for _, traversal := range expr.Variables() {
			ref := traversal.RootName()
			if _, ok := b.store.Lookup(ref); !ok {
				return nil, newError(ErrUndeclaredReference,
					"%q references undeclared identifier %q", name, ref).
					WithNode(name)
			}
			if ref == name {
				return nil, newError(ErrCycleDetected,
					"reference cycle: %s -> %s", name, name).WithNode(name)
			}
			if !seen[ref] {
				seen[ref] = true
				deps = append(deps, ref)
			}
		}
	}
	sort.Strings(deps)
	return deps, nil
}

// detectCycles runs a three-color depth-first search and reports one
// representative cycle path when it finds a back edge.
func (b *GraphBuilder) detectCycles(g *Graph) error {
	const (
		white = 0 // unvisited
		gray  = 1 // on the current DFS path
		black = 2 // fully explored
	)
	color := make(map[string]int, len(g.Nodes))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		color[id] = gray
		path = append(path, id)
		for _, dep := range g.Nodes[id].Dependencies {
			switch color[dep] {
			case gray:
				cycle := append(extractCycle(path, dep), dep)
				return newError(ErrCycleDetected,
					"reference cycle: %s", strings.Join(cycle, " -> ")).
					WithNode(dep)
			case white:
				if err := visit(dep); err != nil {
					return err
				}
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		return nil
	}

	for _, name := range b.store.Names() {
		if color[name] == white {
			if err := visit(name); err != nil {
				return err
			}
		}
	}
	return nil
}

// extractCycle trims the DFS path to the segment starting at the node the
// back edge points to.
func extractCycle(path []string, start string) []string {
	for i, id := range path {
		if id == start {
			return append([]string(nil), path[i:]...)
		}
	}
	return append([]string(nil), path...)
}

// assignLevels performs Kahn's algorithm over the acyclic graph. Within a
// level, nodes are ordered by declaration sequence so scheduling is
// deterministic.
func (b *GraphBuilder) assignLevels(g *Graph) {
	indegree := make(map[string]int, len(g.Nodes))
	for id, node := range g.Nodes {
		indegree[id] = len(node.Dependencies)
	}

	var current []string
	for id, deg := range indegree {
		if deg == 0 {
			current = append(current, id)
		}
	}

	level := 0
	for len(current) > 0 {
		sort.Slice(current, func(i, j int) bool {
			return b.store.Seq(current[i]) < b.store.Seq(current[j])
		})
		for _, id := range current {
			g.Nodes[id].Level = level
		}
		g.Levels = append(g.Levels, current)
		if level == 0 {
			g.Roots = current
		}

		var next []string
		for _, id := range current {
			for _, dep := range g.Nodes[id].Dependents {
				indegree[dep]--
				if indegree[dep] == 0 {
					next = append(next, dep)
				}
			}
		}
		current = next
		level++
	}
	g.Depth = level
}
