package policy

// BuiltinPolicies returns the policies every engine starts with.
func BuiltinPolicies() []Policy {
	return []Policy{
		targetNamingPolicy(),
		targetOverwritePolicy(),
		parallelismPolicy(),
	}
}

// targetNamingPolicy requires every step to name a target usable as a store key.
func targetNamingPolicy() Policy {
	return Policy{
		Name:        "target-naming",
		Description: "Targets must be set and contain only letters, digits, '.', '_' and '-'",
		Severity:    SeverityError,
		Enabled:     true,
		Rego: `package trackforge.policies.naming

import rego.v1

deny contains violation if {
	some step in input.steps
	step.target == ""
	violation := {
		"message": sprintf("step %d (%s) has no targetData", [step.step, step.operation]),
		"step": step.step,
	}
}

deny contains violation if {
	some step in input.steps
	step.target != ""
	not regex.match("^[A-Za-z][A-Za-z0-9._-]*$", step.target)
	violation := {
		"message": sprintf("target %q of step %d is not a valid object name", [step.target, step.step]),
		"step": step.step,
	}
}`,
	}
}

// targetOverwritePolicy flags steps that replace one of their own sources.
func targetOverwritePolicy() Policy {
	return Policy{
		Name:        "target-overwrite",
		Description: "Warns when a step publishes over one of its sources",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package trackforge.policies.overwrite

import rego.v1

deny contains violation if {
	some step in input.steps
	some source in step.sources
	source == step.target
	violation := {
		"message": sprintf("step %d replaces its source %q", [step.step, source]),
		"step": step.step,
	}
}`,
	}
}

// parallelismPolicy bounds the worker count a protocol may ask for.
func parallelismPolicy() Policy {
	return Policy{
		Name:        "parallelism-limit",
		Description: "Warns when a protocol asks for more than 64 workers per step",
		Severity:    SeverityWarning,
		Enabled:     true,
		Rego: `package trackforge.policies.parallelism

import rego.v1

deny contains violation if {
	input.parallelism > 64
	violation := sprintf("parallelism %d exceeds 64 workers", [input.parallelism])
}`,
	}
}
