package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/terralith/terralith/pkg/engine"
)

const deploymentDoc = `
variables: {
	db_username: {
		type:    "string"
		default: "postgres"
	}
	db_password: {
		type:      "string"
		sensitive: true
	}
}

resources: {
	postgres: {
		kind: "aws_rds_instance"
		attributes: {
			endpoint: "db.example.com"
			username: "${db_username}"
			password: "${db_password}"
		}
	}
}

outputs: {
	db_url: {
		value: "postgresql://${db_username}:${db_password}@${postgres.endpoint}:5432/app"
	}
}
`

func TestLoadInline(t *testing.T) {
	store := engine.NewStore()
	if err := NewLoader().LoadInline(store, deploymentDoc); err != nil {
		t.Fatalf("LoadInline: %v", err)
	}

	if store.Len() != 4 {
		t.Errorf("declarations = %d, want 4", store.Len())
	}

	v, ok := store.Variable("db_username")
	if !ok {
		t.Fatal("db_username not declared")
	}
	if !v.HasDefault || v.Default.AsString() != "postgres" {
		t.Errorf("db_username default lost: %#v", v)
	}

	pw, _ := store.Variable("db_password")
	if pw == nil || !pw.Sensitive || pw.HasDefault {
		t.Errorf("db_password = %#v, want sensitive without default", pw)
	}

	r, ok := store.Resource("postgres")
	if !ok {
		t.Fatal("postgres not declared")
	}
	if r.Kind != "aws_rds_instance" || len(r.Attributes) != 3 {
		t.Errorf("postgres = kind %q with %d attributes", r.Kind, len(r.Attributes))
	}

	if _, ok := store.Output("db_url"); !ok {
		t.Error("db_url not declared")
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "deploy.cue")
	if err := os.WriteFile(path, []byte(deploymentDoc), 0o644); err != nil {
		t.Fatal(err)
	}

	store := engine.NewStore()
	if err := NewLoader().Load(store, path); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store.Len() != 4 {
		t.Errorf("declarations = %d, want 4", store.Len())
	}
}

func TestLoadUnifiesMultipleFiles(t *testing.T) {
	dir := t.TempDir()
	vars := filepath.Join(dir, "vars.cue")
	outs := filepath.Join(dir, "outs.cue")
	os.WriteFile(vars, []byte(`variables: region: { type: "string", default: "eu-west-1" }`), 0o644)
	os.WriteFile(outs, []byte(`outputs: where: { value: "${region}" }`), 0o644)

	store := engine.NewStore()
	if err := NewLoader().Load(store, vars, outs); err != nil {
		t.Fatalf("Load: %v", err)
	}
	if store.Len() != 2 {
		t.Errorf("declarations = %d, want 2", store.Len())
	}
}

func TestLoadRejectsBadShape(t *testing.T) {
	store := engine.NewStore()
	err := NewLoader().LoadInline(store, `
variables: port: {
	type: "integer"
}
`)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("got %v, want LoadError", err)
	}
	if !strings.Contains(le.Error(), "one of") {
		t.Errorf("message should name the allowed types: %v", le)
	}
}

func TestLoadRejectsMissingResourceKind(t *testing.T) {
	store := engine.NewStore()
	err := NewLoader().LoadInline(store, `
resources: db: {
	attributes: { name: "x" }
}
`)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("got %v, want LoadError", err)
	}
}

func TestLoadSurfacesDuplicateIdentifier(t *testing.T) {
	store := engine.NewStore()
	err := NewLoader().LoadInline(store, `
variables: app: { type: "string", default: "x" }
outputs: app: { value: "y" }
`)
	if !engine.IsKind(err, engine.ErrDuplicateIdentifier) {
		t.Fatalf("got %v, want duplicate identifier", err)
	}
}

func TestLoadRejectsSyntaxError(t *testing.T) {
	store := engine.NewStore()
	err := NewLoader().LoadInline(store, `variables: { broken`)
	var le *LoadError
	if !errors.As(err, &le) {
		t.Fatalf("got %v, want LoadError", err)
	}
	if len(le.Errors) == 0 || le.Errors[0].File == "" {
		t.Errorf("syntax errors should carry a position: %+v", le.Errors)
	}
}

func TestOverridesFromEnv(t *testing.T) {
	environ := []string{
		"PATH=/usr/bin",
		"TERRALITH_VAR_db_password=s3cr3t",
		"TERRALITH_VAR_region=us-east-2",
		"TERRALITH_VAR_=ignored",
	}
	got := OverridesFromEnv(environ)
	if len(got) != 2 {
		t.Fatalf("overrides = %v, want 2 entries", got)
	}
	if got["db_password"] != "s3cr3t" || got["region"] != "us-east-2" {
		t.Errorf("overrides = %v", got)
	}
}

func TestLoadOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "vars.yaml")
	os.WriteFile(path, []byte("db_password: s3cr3t\nreplicas: 3\n"), 0o644)

	got, err := LoadOverridesFile(path)
	if err != nil {
		t.Fatalf("LoadOverridesFile: %v", err)
	}
	if got["db_password"] != "s3cr3t" {
		t.Errorf("db_password = %v", got["db_password"])
	}
	if got["replicas"] != 3 {
		t.Errorf("replicas = %v (%T), want int 3", got["replicas"], got["replicas"])
	}
}

func TestMergeLaterWins(t *testing.T) {
	merged := Merge(
		Overrides{"a": "file", "b": "file"},
		Overrides{"b": "env"},
		Overrides{"a": "flag"},
	)
	if merged["a"] != "flag" || merged["b"] != "env" {
		t.Errorf("merged = %v", merged)
	}
}
