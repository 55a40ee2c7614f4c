// Package policy evaluates Rego policies against declaration documents
// before provisioning starts. Policies see declaration metadata only,
// never evaluated values, so sensitive data cannot leak through policy
// input.
package policy
