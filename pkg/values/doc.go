// Package values provides the typed value model used throughout the
// evaluation engine: scalars, composite objects, and values that are not
// yet resolved because they depend on declarations that have not been
// evaluated.
//
// Values carry a sensitivity mark. The mark is monotonic: any value
// derived from a sensitive value (through interpolation or reference) is
// itself sensitive, and the mark never clears downstream. The package
// builds on go-cty so that marks survive expression evaluation without
// every call site having to re-propagate them by hand.
package values
