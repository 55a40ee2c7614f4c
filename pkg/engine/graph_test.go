package engine

import (
	"strings"
	"testing"

	"pgregory.net/rapid"
)

func buildTestStore(t *testing.T) *Store {
	t.Helper()
	s := NewStore()
	must(t, s.DeclareVariable("db_username", "string", "postgres", true, false))
	must(t, s.DeclareVariable("db_password", "string", nil, false, true))
	must(t, s.DeclareResource("postgres", "aws_rds_instance", map[string]string{
		"username": "${db_username}",
		"password": "${db_password}",
	}))
	must(t, s.DeclareResource("app", "aws_ecs_service", map[string]string{
		"db_url": "postgresql://${db_username}:${db_password}@${postgres.endpoint}:5432/app",
	}))
	must(t, s.DeclareOutput("app_url", "http://${app.hostname}", false))
	return s
}

func TestBuildAssignsLevels(t *testing.T) {
	g, err := NewGraphBuilder(buildTestStore(t)).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}

	wantLevels := map[string]int{
		"db_username": 0,
		"db_password": 0,
		"postgres":    1,
		"app":         2,
		"app_url":     3,
	}
	for id, want := range wantLevels {
		if got := g.Nodes[id].Level; got != want {
			t.Errorf("level(%s) = %d, want %d", id, got, want)
		}
	}
	if g.Depth != 4 {
		t.Errorf("Depth = %d, want 4", g.Depth)
	}
	if len(g.Roots) != 2 {
		t.Errorf("Roots = %v, want the two variables", g.Roots)
	}
}

func TestBuildDeduplicatesReferences(t *testing.T) {
	s := NewStore()
	must(t, s.DeclareVariable("host", "string", "h", true, false))
	must(t, s.DeclareOutput("twice", "${host}:${host}", false))

	g, err := NewGraphBuilder(s).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if deps := g.Nodes["twice"].Dependencies; len(deps) != 1 || deps[0] != "host" {
		t.Errorf("Dependencies = %v, want exactly [host]", deps)
	}
	if len(g.Edges) != 1 {
		t.Errorf("Edges = %v, want one edge", g.Edges)
	}
}

func TestBuildRejectsUndeclaredReference(t *testing.T) {
	s := NewStore()
	must(t, s.DeclareOutput("o", "${ghost}", false))

	_, err := NewGraphBuilder(s).Build()
	if !IsKind(err, ErrUndeclaredReference) {
		t.Fatalf("got %v, want undeclared reference", err)
	}
	if !strings.Contains(err.Error(), "ghost") {
		t.Errorf("error must name the undeclared identifier: %v", err)
	}
}

func TestBuildRejectsSelfReference(t *testing.T) {
	s := NewStore()
	must(t, s.DeclareResource("loop", "k", map[string]string{"x": "${loop.x}"}))

	_, err := NewGraphBuilder(s).Build()
	if !IsKind(err, ErrCycleDetected) {
		t.Fatalf("got %v, want cycle", err)
	}
}

func TestBuildRejectsMutualCycle(t *testing.T) {
	s := NewStore()
	must(t, s.DeclareResource("a", "k", map[string]string{"x": "${b.y}"}))
	must(t, s.DeclareResource("b", "k", map[string]string{"y": "${a.x}"}))

	_, err := NewGraphBuilder(s).Build()
	if !IsKind(err, ErrCycleDetected) {
		t.Fatalf("got %v, want cycle", err)
	}
	// The message carries one representative cycle path.
	if !strings.Contains(err.Error(), "->") {
		t.Errorf("cycle error must include a path: %v", err)
	}
}

func TestTopologicalOrderRespectsEdges(t *testing.T) {
	g, err := NewGraphBuilder(buildTestStore(t)).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	order := g.TopologicalOrder()
	pos := make(map[string]int, len(order))
	for i, id := range order {
		pos[id] = i
	}
	for _, e := range g.Edges {
		if pos[e.To] >= pos[e.From] {
			t.Errorf("%s must come before %s in %v", e.To, e.From, order)
		}
	}
}

func TestBuildIsDeterministic(t *testing.T) {
	first, err := NewGraphBuilder(buildTestStore(t)).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	for i := 0; i < 20; i++ {
		g, err := NewGraphBuilder(buildTestStore(t)).Build()
		if err != nil {
			t.Fatalf("Build: %v", err)
		}
		for li, level := range g.Levels {
			for ni, id := range level {
				if first.Levels[li][ni] != id {
					t.Fatalf("run %d: level %d differs: %v vs %v",
						i, li, g.Levels[li], first.Levels[li])
				}
			}
		}
	}
}

func TestToDOT(t *testing.T) {
	g, err := NewGraphBuilder(buildTestStore(t)).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	dot := g.ToDOT()
	for _, want := range []string{"digraph", `"db_password" -> "postgres"`, `"app" -> "app_url"`} {
		if !strings.Contains(dot, want) {
			t.Errorf("DOT output missing %q:\n%s", want, dot)
		}
	}
}

// TestLevelInvariant generates random layered stores and checks that every
// dependency lands on a strictly lower level than its dependents.
func TestLevelInvariant(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		s := NewStore()
		n := rapid.IntRange(1, 20).Draw(rt, "n")
		names := make([]string, n)
		for i := 0; i < n; i++ {
			names[i] = "n" + string(rune('a'+i%26)) + string(rune('a'+i/26))
			if i == 0 {
				must2(rt, s.DeclareVariable(names[i], "string", "v", true, false))
				continue
			}
			// Reference a random subset of earlier declarations so the
			// graph stays acyclic by construction.
			var sb strings.Builder
			for _, j := range rapid.SliceOfDistinct(rapid.IntRange(0, i-1), rapid.ID[int]).Draw(rt, "deps") {
				sb.WriteString("${" + names[j] + "}")
			}
			must2(rt, s.DeclareOutput(names[i], sb.String(), false))
		}

		g, err := NewGraphBuilder(s).Build()
		if err != nil {
			rt.Fatalf("Build: %v", err)
		}
		for id, node := range g.Nodes {
			for _, dep := range node.Dependencies {
				if g.Nodes[dep].Level >= node.Level {
					rt.Fatalf("dependency %s (level %d) not below %s (level %d)",
						dep, g.Nodes[dep].Level, id, node.Level)
				}
			}
		}
	})
}

func must2(rt *rapid.T, err error) {
	if err != nil {
		rt.Fatal(err)
	}
}
