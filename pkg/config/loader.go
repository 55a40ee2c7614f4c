package config

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"github.com/go-playground/validator/v10"

	"github.com/terralith/terralith/pkg/engine"
)

// Loader parses CUE declaration documents and registers their contents
// with a declaration store. A document has up to three top-level structs:
// "variables", "resources", and "outputs".
type Loader struct {
	ctx      *cue.Context
	validate *validator.Validate
}

// NewLoader creates a CUE document loader.
func NewLoader() *Loader {
	return &Loader{
		ctx:      cuecontext.New(),
		validate: validator.New(),
	}
}

// Load reads and unifies the given CUE files, then registers every
// declaration with the store. Shape problems are aggregated into a
// LoadError; semantic problems such as duplicate identifiers surface as
// engine errors.
func (l *Loader) Load(store *engine.Store, paths ...string) error {
	if len(paths) == 0 {
		return &LoadError{Errors: []ValidationError{{
			Message:  "no configuration files given",
			Severity: "error",
		}}}
	}

	var unified cue.Value
	for _, path := range paths {
		content, err := os.ReadFile(path)
		if err != nil {
			return &LoadError{Errors: []ValidationError{{
				File:     path,
				Message:  fmt.Sprintf("cannot read file: %v", err),
				Severity: "error",
			}}}
		}
		val := l.ctx.CompileString(string(content), cue.Filename(path))
		if err := val.Err(); err != nil {
			return &LoadError{Errors: convertCUEErrors(err)}
		}
		if unified.Exists() {
			unified = unified.Unify(val)
		} else {
			unified = val
		}
	}
	if err := unified.Err(); err != nil {
		return &LoadError{Errors: convertCUEErrors(err)}
	}
	return l.extract(store, unified)
}

// LoadInline compiles a single CUE document from a string. Used by tests
// and by callers that already hold the document in memory.
func (l *Loader) LoadInline(store *engine.Store, src string) error {
	val := l.ctx.CompileString(src, cue.Filename("inline.cue"))
	if err := val.Err(); err != nil {
		return &LoadError{Errors: convertCUEErrors(err)}
	}
	return l.extract(store, val)
}

// extract walks the three top-level sections in source order and registers
// each declaration.
func (l *Loader) extract(store *engine.Store, val cue.Value) error {
	var shapeErrs []ValidationError

	collect := func(section string, register func(name string, v cue.Value) error) error {
		sectionVal := val.LookupPath(cue.ParsePath(section))
		if !sectionVal.Exists() {
			return nil
		}
		if sectionVal.Kind() != cue.StructKind {
			shapeErrs = append(shapeErrs, ValidationError{
				Path:     section,
				Message:  fmt.Sprintf("%s must be a struct, got %s", section, sectionVal.Kind()),
				Severity: "error",
			})
			return nil
		}
		iter, err := sectionVal.Fields()
		if err != nil {
			shapeErrs = append(shapeErrs, ValidationError{
				Path:     section,
				Message:  err.Error(),
				Severity: "error",
			})
			return nil
		}
		for iter.Next() {
			name := iter.Selector().Unquoted()
			if err := register(name, iter.Value()); err != nil {
				if ve, ok := err.(ValidationError); ok {
					ve.Path = section + "." + name
					shapeErrs = append(shapeErrs, ve)
					continue
				}
				return err
			}
		}
		return nil
	}

	if err := collect("variables", func(name string, v cue.Value) error {
		return l.registerVariable(store, name, v)
	}); err != nil {
		return err
	}
	if err := collect("resources", func(name string, v cue.Value) error {
		return l.registerResource(store, name, v)
	}); err != nil {
		return err
	}
	if err := collect("outputs", func(name string, v cue.Value) error {
		return l.registerOutput(store, name, v)
	}); err != nil {
		return err
	}

	if len(shapeErrs) > 0 {
		return &LoadError{Errors: shapeErrs}
	}
	return nil
}

func (l *Loader) registerVariable(store *engine.Store, name string, v cue.Value) error {
	var spec variableSpec
	if err := v.Decode(&spec); err != nil {
		return ValidationError{Message: fmt.Sprintf("cannot decode variable: %v", err), Severity: "error"}
	}
	if err := l.validate.Struct(spec); err != nil {
		return ValidationError{Message: describeFieldErrors(err), Severity: "error"}
	}

	defVal := v.LookupPath(cue.ParsePath("default"))
	hasDefault := defVal.Exists()
	var def any
	if hasDefault {
		if err := defVal.Decode(&def); err != nil {
			return ValidationError{Message: fmt.Sprintf("cannot decode default: %v", err), Severity: "error"}
		}
	}
	return store.DeclareVariable(name, spec.Type, def, hasDefault, spec.Sensitive)
}

func (l *Loader) registerResource(store *engine.Store, name string, v cue.Value) error {
	var spec resourceSpec
	if err := v.Decode(&spec); err != nil {
		return ValidationError{Message: fmt.Sprintf("cannot decode resource: %v", err), Severity: "error"}
	}
	if err := l.validate.Struct(spec); err != nil {
		return ValidationError{Message: describeFieldErrors(err), Severity: "error"}
	}
	return store.DeclareResource(name, spec.Kind, spec.Attributes)
}

func (l *Loader) registerOutput(store *engine.Store, name string, v cue.Value) error {
	var spec outputSpec
	if err := v.Decode(&spec); err != nil {
		return ValidationError{Message: fmt.Sprintf("cannot decode output: %v", err), Severity: "error"}
	}
	if err := l.validate.Struct(spec); err != nil {
		return ValidationError{Message: describeFieldErrors(err), Severity: "error"}
	}
	return store.DeclareOutput(name, spec.Value, spec.Sensitive)
}

// convertCUEErrors flattens a CUE error list into positioned validation
// errors.
func convertCUEErrors(err error) []ValidationError {
	var out []ValidationError
	for _, e := range cueerrors.Errors(err) {
		ve := ValidationError{
			Message:  e.Error(),
			Severity: "error",
		}
		if pos := e.Position(); pos.IsValid() {
			ve.File = pos.Filename()
			ve.Line = pos.Line()
			ve.Column = pos.Column()
		}
		out = append(out, ve)
	}
	if len(out) == 0 {
		out = append(out, ValidationError{Message: err.Error(), Severity: "error"})
	}
	return out
}

// describeFieldErrors renders validator failures without the Go struct
// namespace noise.
func describeFieldErrors(err error) string {
	fieldErrs, ok := err.(validator.ValidationErrors)
	if !ok {
		return err.Error()
	}
	msg := ""
	for i, fe := range fieldErrs {
		if i > 0 {
			msg += "; "
		}
		switch fe.Tag() {
		case "required":
			msg += fmt.Sprintf("field %q is required", fe.Field())
		case "oneof":
			msg += fmt.Sprintf("field %q must be one of: %s", fe.Field(), fe.Param())
		default:
			msg += fmt.Sprintf("field %q failed %s validation", fe.Field(), fe.Tag())
		}
	}
	return msg
}
