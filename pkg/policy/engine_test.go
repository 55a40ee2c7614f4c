package policy

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"

	"github.com/terralith/terralith/pkg/engine"
)

func policyInput(t *testing.T, build func(*engine.Store)) *Input {
	t.Helper()
	s := engine.NewStore()
	build(s)
	g, err := engine.NewGraphBuilder(s).Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return BuildInput(s, g)
}

func TestEvaluateCleanDocument(t *testing.T) {
	in := policyInput(t, func(s *engine.Store) {
		if err := s.DeclareVariable("region", "string", "eu-west-1", true, false); err != nil {
			t.Fatal(err)
		}
		if err := s.DeclareResource("db", "aws_rds_instance", map[string]string{
			"location": "${region}",
		}); err != nil {
			t.Fatal(err)
		}
	})

	res, err := NewEngine(zerolog.Nop()).Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Allowed {
		t.Errorf("clean document must be allowed: %+v", res.Violations)
	}
}

func TestNamingPolicyRejectsUppercase(t *testing.T) {
	in := policyInput(t, func(s *engine.Store) {
		if err := s.DeclareResource("MyDB", "aws_rds_instance", map[string]string{
			"name": "x",
		}); err != nil {
			t.Fatal(err)
		}
	})

	res, err := NewEngine(zerolog.Nop()).Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Allowed {
		t.Error("uppercase resource identifier must be denied")
	}
	found := false
	for _, v := range res.Violations {
		if v.Policy == "resource-naming" && v.Node == "MyDB" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected naming violation for MyDB, got %+v", res.Violations)
	}
}

func TestOrphanPolicyWarnsOnly(t *testing.T) {
	in := policyInput(t, func(s *engine.Store) {
		if err := s.DeclareVariable("unused", "string", "x", true, false); err != nil {
			t.Fatal(err)
		}
	})

	res, err := NewEngine(zerolog.Nop()).Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !res.Allowed {
		t.Error("warnings must not block the run")
	}
	if len(res.Violations) == 0 || res.Violations[0].Severity != SeverityWarning {
		t.Errorf("expected a warning violation, got %+v", res.Violations)
	}
}

func TestSensitiveOutputPolicy(t *testing.T) {
	in := policyInput(t, func(s *engine.Store) {
		if err := s.DeclareVariable("token", "string", "x", true, true); err != nil {
			t.Fatal(err)
		}
		if err := s.DeclareOutput("leaky", "${token}", false); err != nil {
			t.Fatal(err)
		}
		if err := s.DeclareOutput("honest", "${token}", true); err != nil {
			t.Fatal(err)
		}
	})

	res, err := NewEngine(zerolog.Nop()).Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	var flagged []string
	for _, v := range res.Violations {
		if v.Policy == "undeclared-sensitive-output" {
			flagged = append(flagged, v.Node)
		}
	}
	if len(flagged) != 1 || flagged[0] != "leaky" {
		t.Errorf("flagged = %v, want exactly [leaky]", flagged)
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	policyFile := filepath.Join(dir, "no-databases.rego")
	err := os.WriteFile(policyFile, []byte(`package custom.nodb

import rego.v1

deny contains violation if {
	some r in input.resources
	r.kind == "aws_rds_instance"
	violation := {
		"message": sprintf("resource %q uses a managed database", [r.name]),
		"severity": "error",
		"node": r.name,
	}
}
`), 0o644)
	if err != nil {
		t.Fatal(err)
	}

	e := NewEngine(zerolog.Nop())
	if err := e.LoadDir(dir); err != nil {
		t.Fatalf("LoadDir: %v", err)
	}

	in := policyInput(t, func(s *engine.Store) {
		if err := s.DeclareResource("db", "aws_rds_instance", map[string]string{"name": "x"}); err != nil {
			t.Fatal(err)
		}
	})
	res, err := e.Evaluate(context.Background(), in)
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if res.Allowed {
		t.Error("custom policy must deny the managed database")
	}
}

func TestAddRejectsMissingPackage(t *testing.T) {
	e := NewEngine(zerolog.Nop())
	if err := e.Add(Policy{Name: "broken", Rego: "deny := true"}); err == nil {
		t.Error("policy without a package declaration must be rejected")
	}
}
