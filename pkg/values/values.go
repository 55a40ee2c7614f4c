package values

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/convert"
)

// valueMark is the mark type used for sensitivity so that marks applied by
// other users of cty cannot collide with ours.
type valueMark string

// MarkSensitive is the cty mark carried by values whose literal contents
// must not be surfaced un-redacted.
const MarkSensitive = valueMark("sensitive")

// UnresolvedReferenceError is returned when a value is read before every
// reference it depends on has been bound.
type UnresolvedReferenceError struct {
	// Path identifies the value that was requested, if known.
	Path string
}

// Error implements the error interface.
func (e *UnresolvedReferenceError) Error() string {
	if e.Path != "" {
		return fmt.Sprintf("value %s is not yet resolved", e.Path)
	}
	return "value is not yet resolved"
}

// Value is a typed, possibly sensitive value. A Value backed by an unknown
// cty value represents an unresolved reference: it can flow through the
// graph but cannot be read until evaluation binds it.
type Value struct {
	v cty.Value
}

// FromCty wraps an existing cty value.
func FromCty(v cty.Value) Value {
	return Value{v: v}
}

// String creates a string value.
func String(s string) Value {
	return Value{v: cty.StringVal(s)}
}

// Number creates a number value.
func Number(n float64) Value {
	return Value{v: cty.NumberFloatVal(n)}
}

// Bool creates a boolean value.
func Bool(b bool) Value {
	return Value{v: cty.BoolVal(b)}
}

// Object creates a composite value from named attributes.
func Object(attrs map[string]Value) Value {
	inner := make(map[string]cty.Value, len(attrs))
	for name, av := range attrs {
		inner[name] = av.v
	}
	return Value{v: cty.ObjectVal(inner)}
}

// Unresolved creates a placeholder for a value that has not been bound yet.
func Unresolved() Value {
	return Value{v: cty.UnknownVal(cty.DynamicPseudoType)}
}

// FromGo converts a plain Go value (as produced by decoding CUE, YAML, or
// JSON) into a Value. Supported shapes are string, bool, integer and float
// numbers, map[string]any, and []any.
func FromGo(raw any) (Value, error) {
	switch rv := raw.(type) {
	case nil:
		return Value{v: cty.NullVal(cty.DynamicPseudoType)}, nil
	case string:
		return String(rv), nil
	case bool:
		return Bool(rv), nil
	case int:
		return Value{v: cty.NumberIntVal(int64(rv))}, nil
	case int64:
		return Value{v: cty.NumberIntVal(rv)}, nil
	case float64:
		return Number(rv), nil
	case map[string]any:
		attrs := make(map[string]cty.Value, len(rv))
		for name, elem := range rv {
			ev, err := FromGo(elem)
			if err != nil {
				return Value{}, fmt.Errorf("attribute %q: %w", name, err)
			}
			attrs[name] = ev.v
		}
		if len(attrs) == 0 {
			return Value{v: cty.EmptyObjectVal}, nil
		}
		return Value{v: cty.ObjectVal(attrs)}, nil
	case []any:
		elems := make([]cty.Value, len(rv))
		for i, elem := range rv {
			ev, err := FromGo(elem)
			if err != nil {
				return Value{}, fmt.Errorf("element %d: %w", i, err)
			}
			elems[i] = ev.v
		}
		if len(elems) == 0 {
			return Value{v: cty.EmptyTupleVal}, nil
		}
		return Value{v: cty.TupleVal(elems)}, nil
	default:
		return Value{}, fmt.Errorf("unsupported value type %T", raw)
	}
}

// Cty returns the underlying cty value, marks included.
func (v Value) Cty() cty.Value {
	return v.v
}

// Type returns the value's type.
func (v Value) Type() cty.Type {
	return v.v.Type()
}

// MarkSensitive returns the value with the sensitivity mark applied.
func (v Value) MarkSensitive() Value {
	if v.v.HasMark(MarkSensitive) {
		return v
	}
	return Value{v: v.v.Mark(MarkSensitive)}
}

// IsSensitive reports whether the value, or any value nested inside it,
// carries the sensitivity mark.
func (v Value) IsSensitive() bool {
	return IsCtySensitive(v.v)
}

// IsResolved reports whether the value and everything nested inside it has
// been bound to a concrete result.
func (v Value) IsResolved() bool {
	return v.v.IsWhollyKnown()
}

// Resolved returns the underlying cty value, failing with
// UnresolvedReferenceError if any referenced value is not yet bound.
func (v Value) Resolved() (cty.Value, error) {
	if !v.v.IsWhollyKnown() {
		return cty.NilVal, &UnresolvedReferenceError{}
	}
	return v.v, nil
}

// IsCtySensitive reports whether a raw cty value carries the sensitivity
// mark anywhere, including nested inside collections.
func IsCtySensitive(v cty.Value) bool {
	if v == cty.NilVal {
		return false
	}
	if v.HasMark(MarkSensitive) {
		return true
	}
	if !v.ContainsMarked() {
		return false
	}
	_, marks := v.UnmarkDeep()
	_, ok := marks[MarkSensitive]
	return ok
}

// Fragment is one piece of an interpolated string: literal text, or a
// value to substitute.
type Fragment struct {
	text string
	val  *Value
}

// Lit creates a literal text fragment.
func Lit(text string) Fragment {
	return Fragment{text: text}
}

// Ref creates a fragment that substitutes a resolved value.
func Ref(v Value) Fragment {
	return Fragment{val: &v}
}

// Interpolate concatenates literal fragments and resolved sub-values into
// a single string. The result is sensitive if any substituted fragment is
// sensitive. It fails with UnresolvedReferenceError if a fragment is not
// yet bound.
func Interpolate(frags ...Fragment) (Value, error) {
	var sb strings.Builder
	sensitive := false

	for i, f := range frags {
		if f.val == nil {
			sb.WriteString(f.text)
			continue
		}

		raw, err := f.val.Resolved()
		if err != nil {
			return Value{}, err
		}
		if f.val.IsSensitive() {
			sensitive = true
		}

		unmarked, _ := raw.UnmarkDeep()
		str, err := convert.Convert(unmarked, cty.String)
		if err != nil {
			return Value{}, fmt.Errorf("fragment %d is not convertible to string: %w", i, err)
		}
		if str.IsNull() {
			return Value{}, fmt.Errorf("fragment %d is null", i)
		}
		sb.WriteString(str.AsString())
	}

	out := String(sb.String())
	if sensitive {
		out = out.MarkSensitive()
	}
	return out, nil
}

// typeForName maps a declared type name to its cty type. "object" maps to
// the dynamic pseudo-type because object attribute sets are open.
func typeForName(name string) (cty.Type, bool) {
	switch name {
	case "string":
		return cty.String, true
	case "number":
		return cty.Number, true
	case "bool":
		return cty.Bool, true
	case "object":
		return cty.DynamicPseudoType, true
	default:
		return cty.NilType, false
	}
}

// ValidTypeName reports whether name is one of the declarable type names.
func ValidTypeName(name string) bool {
	_, ok := typeForName(name)
	return ok
}

// ConvertToType converts a value to the named declared type, preserving
// marks. A conversion failure means the value does not conform to the
// declared type.
func ConvertToType(v cty.Value, typeName string) (cty.Value, error) {
	ty, ok := typeForName(typeName)
	if !ok {
		return cty.NilVal, fmt.Errorf("unknown type name %q", typeName)
	}

	if typeName == "object" {
		// The dynamic pseudo-type accepts anything, so enforce the
		// object shape explicitly.
		t := v.Type()
		if !t.IsObjectType() && !t.IsMapType() {
			return cty.NilVal, fmt.Errorf("value of type %s is not an object", t.FriendlyName())
		}
		return v, nil
	}

	converted, err := convert.Convert(v, ty)
	if err != nil {
		return cty.NilVal, fmt.Errorf("cannot use value of type %s as %s: %w",
			v.Type().FriendlyName(), typeName, err)
	}
	return converted, nil
}
