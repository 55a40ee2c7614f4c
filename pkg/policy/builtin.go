package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		namingPolicy(),
		orphanPolicy(),
		sensitiveOutputPolicy(),
	}
}

// namingPolicy enforces lowercase identifiers on resources.
func namingPolicy() Policy {
	return Policy{
		Name:        "resource-naming",
		Description: "Resource identifiers must be lowercase",
		Severity:    SeverityError,
		Enabled:     true,
		Tags:        []string{"naming"},
		Rego: `package terralith.policies.naming

import rego.v1

deny contains violation if {
	some r in input.resources
	lower(r.name) != r.name
	violation := {
		"message": sprintf("resource identifier %q must be lowercase", [r.name]),
		"severity": "error",
		"node": r.name,
	}
}
`,
	}
}

// orphanPolicy flags variables nothing references.
func orphanPolicy() Policy {
	return Policy{
		Name:        "orphaned-variable",
		Description: "Variables should be referenced by at least one declaration",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"hygiene"},
		Rego: `package terralith.policies.orphans

import rego.v1

deny contains violation if {
	some v in input.variables
	v.dependents == 0
	violation := {
		"message": sprintf("variable %q is never referenced", [v.name]),
		"severity": "warning",
		"node": v.name,
	}
}
`,
	}
}

// sensitiveOutputPolicy flags outputs that derive from sensitive data but
// are not declared sensitive. Evaluation redacts them regardless; the
// policy asks for the declaration to say so.
func sensitiveOutputPolicy() Policy {
	return Policy{
		Name:        "undeclared-sensitive-output",
		Description: "Outputs deriving from sensitive data should be declared sensitive",
		Severity:    SeverityWarning,
		Enabled:     true,
		Tags:        []string{"sensitivity"},
		Rego: `package terralith.policies.sensitivity

import rego.v1

deny contains violation if {
	some o in input.outputs
	o.derived_sensitive
	not o.declared_sensitive
	violation := {
		"message": sprintf("output %q derives from sensitive data but is not declared sensitive", [o.name]),
		"severity": "warning",
		"node": o.name,
	}
}
`,
	}
}
