package config

import (
	"fmt"
	"strings"
)

// variableSpec is the decoded shape of one entry under "variables".
type variableSpec struct {
	Type        string `json:"type" validate:"required,oneof=string number bool object"`
	Default     any    `json:"default,omitempty"`
	Sensitive   bool   `json:"sensitive,omitempty"`
	Description string `json:"description,omitempty"`
}

// resourceSpec is the decoded shape of one entry under "resources".
// Attribute values are template strings; "${name}" substitutes the value
// of another declaration.
type resourceSpec struct {
	Kind        string            `json:"kind" validate:"required"`
	Attributes  map[string]string `json:"attributes" validate:"required"`
	Description string            `json:"description,omitempty"`
}

// outputSpec is the decoded shape of one entry under "outputs".
type outputSpec struct {
	Value       string `json:"value" validate:"required"`
	Sensitive   bool   `json:"sensitive,omitempty"`
	Description string `json:"description,omitempty"`
}

// ValidationError describes one problem found while loading a document.
type ValidationError struct {
	File     string `json:"file,omitempty"`
	Path     string `json:"path,omitempty"`
	Line     int    `json:"line,omitempty"`
	Column   int    `json:"column,omitempty"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

// Error implements the error interface.
func (e ValidationError) Error() string {
	var b strings.Builder
	if e.File != "" {
		b.WriteString(e.File)
		if e.Line > 0 {
			fmt.Fprintf(&b, ":%d:%d", e.Line, e.Column)
		}
		b.WriteString(": ")
	}
	if e.Path != "" {
		b.WriteString(e.Path)
		b.WriteString(": ")
	}
	b.WriteString(e.Message)
	return b.String()
}

// LoadError aggregates everything wrong with a document so callers can
// report all problems at once.
type LoadError struct {
	Errors []ValidationError
}

// Error implements the error interface.
func (e *LoadError) Error() string {
	if len(e.Errors) == 1 {
		return e.Errors[0].Error()
	}
	var b strings.Builder
	fmt.Fprintf(&b, "%d configuration errors:", len(e.Errors))
	for _, ve := range e.Errors {
		b.WriteString("\n  - ")
		b.WriteString(ve.Error())
	}
	return b.String()
}
