// Package policy evaluates Open Policy Agent (OPA) policies against transform
// protocols before they run.
//
// A policy is a Rego module whose deny set lists violations. Each entry is a
// message string or an object:
//
//	{"message": "...", "severity": "error", "step": 2}
//
// Policies see the planned protocol as input:
//
//	{
//	  "protocol": "smooth",
//	  "parallelism": 4,
//	  "variables": {"factor": 2},
//	  "steps": [
//	    {"step": 1, "line": 8, "operation": "arithmetic", "combine": false,
//	     "sources": ["signal"], "target": "scaled", "params": {...}}
//	  ]
//	}
//
// Usage:
//
//	eng, err := policy.NewEngine(ctx, logger)
//	if err != nil {
//	    return err
//	}
//	if err := eng.LoadPolicies(ctx, []string{"./policies"}); err != nil {
//	    return err
//	}
//	in, err := policy.NewInput(proto)
//	if err != nil {
//	    return err
//	}
//	res, err := eng.Evaluate(ctx, in)
//
// Violations with severity "error" make the result disallowed. The built-in
// policies are target-naming, target-overwrite and parallelism-limit.
package policy
