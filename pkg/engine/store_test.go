package engine

import (
	"testing"
)

func TestDeclareVariable(t *testing.T) {
	s := NewStore()

	if err := s.DeclareVariable("region", "string", "eu-west-1", true, false); err != nil {
		t.Fatalf("DeclareVariable: %v", err)
	}
	v, ok := s.Variable("region")
	if !ok {
		t.Fatal("variable not stored")
	}
	if !v.HasDefault || v.Default.AsString() != "eu-west-1" {
		t.Errorf("default not preserved: %#v", v)
	}

	if err := s.DeclareVariable("db_password", "string", nil, false, true); err != nil {
		t.Fatalf("DeclareVariable without default: %v", err)
	}
	pw, _ := s.Variable("db_password")
	if pw.HasDefault {
		t.Error("variable without default must not report one")
	}
	if !pw.Sensitive {
		t.Error("sensitive flag lost")
	}
}

func TestDeclareVariableTypeMismatch(t *testing.T) {
	s := NewStore()
	err := s.DeclareVariable("port", "number", "not-a-number", true, false)
	if !IsKind(err, ErrTypeMismatch) {
		t.Fatalf("got %v, want type mismatch", err)
	}
	// A rejected declaration must not claim the identifier.
	if err := s.DeclareVariable("port", "number", 5432, true, false); err != nil {
		t.Fatalf("redeclare after rejection: %v", err)
	}
}

func TestDeclareVariableConvertsDefault(t *testing.T) {
	s := NewStore()
	if err := s.DeclareVariable("port", "number", "5432", true, false); err != nil {
		t.Fatalf("numeric string default should convert: %v", err)
	}
	v, _ := s.Variable("port")
	if v.Default.Type().FriendlyName() != "number" {
		t.Errorf("default stored as %s, want number", v.Default.Type().FriendlyName())
	}
}

func TestDeclareVariableUnknownType(t *testing.T) {
	s := NewStore()
	err := s.DeclareVariable("x", "list", nil, false, false)
	if !IsKind(err, ErrInvalidDeclaration) {
		t.Fatalf("got %v, want invalid declaration", err)
	}
}

func TestDuplicateIdentifierAcrossNamespaces(t *testing.T) {
	s := NewStore()
	if err := s.DeclareVariable("app", "string", "x", true, false); err != nil {
		t.Fatalf("DeclareVariable: %v", err)
	}

	err := s.DeclareResource("app", "aws_instance", map[string]string{"name": "y"})
	if !IsKind(err, ErrDuplicateIdentifier) {
		t.Fatalf("resource reuse: got %v, want duplicate identifier", err)
	}

	err = s.DeclareOutput("app", "static", false)
	if !IsKind(err, ErrDuplicateIdentifier) {
		t.Fatalf("output reuse: got %v, want duplicate identifier", err)
	}
}

func TestDeclareResourceParsesAttributes(t *testing.T) {
	s := NewStore()
	if err := s.DeclareVariable("region", "string", "eu-west-1", true, false); err != nil {
		t.Fatalf("DeclareVariable: %v", err)
	}
	err := s.DeclareResource("db", "aws_rds_instance", map[string]string{
		"location": "${region}",
		"name":     "primary",
	})
	if err != nil {
		t.Fatalf("DeclareResource: %v", err)
	}
	r, _ := s.Resource("db")
	if got := len(r.Attributes); got != 2 {
		t.Errorf("attributes stored = %d, want 2", got)
	}
	if got := r.AttrNames(); got[0] != "location" || got[1] != "name" {
		t.Errorf("AttrNames = %v, want sorted", got)
	}
}

func TestDeclareResourceRejectsBadTemplate(t *testing.T) {
	s := NewStore()
	err := s.DeclareResource("db", "aws_rds_instance", map[string]string{
		"endpoint": "${unterminated",
	})
	if !IsKind(err, ErrInvalidDeclaration) {
		t.Fatalf("got %v, want invalid declaration", err)
	}
	if _, ok := s.Lookup("db"); ok {
		t.Error("rejected resource must not claim its identifier")
	}
}

func TestDeclareResourceRejectsEmptyKind(t *testing.T) {
	s := NewStore()
	err := s.DeclareResource("db", "", nil)
	if !IsKind(err, ErrInvalidDeclaration) {
		t.Fatalf("got %v, want invalid declaration", err)
	}
}

func TestDeclarationOrder(t *testing.T) {
	s := NewStore()
	must(t, s.DeclareVariable("a", "string", "1", true, false))
	must(t, s.DeclareResource("b", "k", map[string]string{"x": "${a}"}))
	must(t, s.DeclareOutput("c", "${b.x}", false))

	names := s.Names()
	if len(names) != 3 || names[0] != "a" || names[1] != "b" || names[2] != "c" {
		t.Errorf("Names = %v, want [a b c]", names)
	}
	if s.Seq("b") != 1 {
		t.Errorf("Seq(b) = %d, want 1", s.Seq("b"))
	}
	if s.Seq("missing") != 3 {
		t.Errorf("Seq(missing) = %d, want past-the-end", s.Seq("missing"))
	}
}

func must(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatal(err)
	}
}
