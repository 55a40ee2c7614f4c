// Package telemetry wires structured logging, Prometheus metrics, and
// OpenTelemetry tracing for the evaluation engine. All three are optional;
// disabled components degrade to no-ops so callers never branch on
// configuration.
package telemetry
