// Package stores persists run history in SQLite. Records carry run
// metadata and output names only; output values, sensitive or not, are
// never written to disk.
package stores
