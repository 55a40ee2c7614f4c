package engine

// SensitivityTracker answers whether a declaration carries sensitive data.
// Sensitivity is declared on variables and outputs and flows transitively:
// anything that references a sensitive declaration, directly or through any
// chain, is itself sensitive. Flags are computed once over the topological
// order and never cleared afterwards.
type SensitivityTracker struct {
	flags map[string]bool
}

// NewSensitivityTracker computes the transitive closure of sensitivity over
// a validated graph.
func NewSensitivityTracker(store *Store, graph *Graph) *SensitivityTracker {
	t := &SensitivityTracker{flags: make(map[string]bool, len(graph.Nodes))}
	for _, id := range graph.TopologicalOrder() {
		flag := store.DeclaredSensitive(id)
		if !flag {
			for _, dep := range graph.Nodes[id].Dependencies {
				if t.flags[dep] {
					flag = true
					break
				}
			}
		}
		t.flags[id] = flag
	}
	return t
}

// IsSensitive reports whether the declaration holds or derives from
// sensitive data. Unknown identifiers are not sensitive.
func (t *SensitivityTracker) IsSensitive(id string) bool {
	return t.flags[id]
}

// Sensitive returns the set of sensitive declaration identifiers.
func (t *SensitivityTracker) Sensitive() []string {
	var out []string
	for id, flag := range t.flags {
		if flag {
			out = append(out, id)
		}
	}
	return out
}
