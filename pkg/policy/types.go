package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is for informational messages.
	SeverityInfo Severity = "info"

	// SeverityWarning is for findings that should be reviewed but do not block a run.
	SeverityWarning Severity = "warning"

	// SeverityError blocks the protocol from running.
	SeverityError Severity = "error"
)

// Blocking reports whether violations of this severity fail validation.
func (s Severity) Blocking() bool {
	return s == SeverityError
}

// Policy is a named Rego module. Its deny set is evaluated against a protocol.
type Policy struct {
	// Name is the unique name of the policy.
	Name string `json:"name"`

	// Description provides a human-readable description.
	Description string `json:"description"`

	// Rego contains the Rego policy code.
	Rego string `json:"rego"`

	// Severity is the default severity for violations.
	Severity Severity `json:"severity"`

	// Enabled indicates if the policy is active.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from; empty for built-ins.
	Source string `json:"source,omitempty"`
}

// Violation is a single entry of a policy's deny set.
type Violation struct {
	Policy   string   `json:"policy"`
	Message  string   `json:"message"`
	Severity Severity `json:"severity"`

	// Step is the 1-based step the violation refers to, 0 for the protocol itself.
	Step int `json:"step,omitempty"`

	// Line is the source line of Step when known.
	Line int `json:"line,omitempty"`
}

// Result is the outcome of evaluating every enabled policy.
type Result struct {
	// Allowed is false when any violation is blocking.
	Allowed bool `json:"allowed"`

	Violations []Violation `json:"violations,omitempty"`

	// Warnings lists policies that failed to evaluate.
	Warnings []string `json:"warnings,omitempty"`

	EvaluatedPolicies []string      `json:"evaluated_policies"`
	Duration          time.Duration `json:"duration"`
}

// Input is the document policies see as input.
type Input struct {
	Protocol    string             `json:"protocol"`
	Source      string             `json:"source,omitempty"`
	Parallelism int                `json:"parallelism"`
	Variables   map[string]float64 `json:"variables"`
	Steps       []StepInput        `json:"steps"`
}

// StepInput describes one planned step. Conditions are rendered as text.
type StepInput struct {
	Step      int            `json:"step"`
	Line      int            `json:"line,omitempty"`
	Operation string         `json:"operation"`
	Combine   bool           `json:"combine"`
	Sources   []string       `json:"sources"`
	Target    string         `json:"target"`
	Params    map[string]any `json:"params"`
}
