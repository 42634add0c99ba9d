package config

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/trackforge/trackforge/pkg/condition"
	"github.com/trackforge/trackforge/pkg/stores"
)

// Protocol is an ordered list of transform steps plus the store they run on.
type Protocol struct {
	// Name identifies the protocol in logs and run records.
	Name string `json:"name" validate:"required"`

	// Parallelism bounds the worker pool of every step. Zero uses the engine default.
	Parallelism int `json:"parallelism,omitempty" validate:"omitempty,min=1,max=1024"`

	// Store selects the data store.
	Store stores.Config `json:"store,omitempty"`

	// Variables are published as numeric variables before the first step.
	Variables map[string]float64 `json:"variables,omitempty"`

	// Script is a Starlark program whose numeric globals become variables.
	Script string `json:"script,omitempty"`

	// Defaults are merged into the parameters of every step.
	Defaults map[string]any `json:"defaults,omitempty"`

	// Steps run in order.
	Steps []Step `json:"steps" validate:"required,min=1,dive"`

	// Source is the file the protocol was loaded from.
	Source string `json:"-"`

	// ParsedAt is when the protocol was parsed.
	ParsedAt time.Time `json:"-"`
}

// Step is one operation of a protocol.
type Step struct {
	// Operation is the registered transform name.
	Operation string `json:"operation" validate:"required"`

	// Params are the operation parameters (sourceData, targetData, method, ...).
	Params map[string]any `json:"params,omitempty"`

	// Where gates individual positions or regions.
	Where *ConditionSpec `json:"where,omitempty"`

	// Within restricts the sub-ranges an operation may touch.
	Within *ConditionSpec `json:"within,omitempty"`

	// Line is the source line of the step, when the format records one.
	Line int `json:"-"`

	where  condition.Condition
	within condition.Condition
}

// Conditions returns the where and within conditions built from the specs.
func (s *Step) Conditions() (where, within condition.Condition) {
	return s.where, s.within
}

// ConditionSpec is the protocol form of a condition tree. Exactly one field
// is set per node.
type ConditionSpec struct {
	All          []*ConditionSpec `json:"all,omitempty"`
	Any          []*ConditionSpec `json:"any,omitempty"`
	Not          *ConditionSpec   `json:"not,omitempty"`
	Numeric      *NumericSpec     `json:"numeric,omitempty"`
	Overlaps     *OverlapSpec     `json:"overlaps,omitempty"`
	Sequences    string           `json:"sequences,omitempty"`
	InCollection string           `json:"in_collection,omitempty"`
	Expr         string           `json:"expr,omitempty"`
	Rego         *RegoSpec        `json:"rego,omitempty"`
	Property     *PropertySpec    `json:"property,omitempty"`
}

// NumericSpec compares a numeric track with a value.
type NumericSpec struct {
	Track  string `json:"track" validate:"required"`
	Op     string `json:"op" validate:"required"`
	Value  Scalar `json:"value" validate:"required"`
	Value2 Scalar `json:"value2,omitempty"`
}

// OverlapSpec relates the evaluation point to the regions of a region track.
type OverlapSpec struct {
	Track string `json:"track" validate:"required"`
	Mode  string `json:"mode,omitempty" validate:"omitempty,oneof=overlaps inside covers"`
	Type  string `json:"type,omitempty"`
}

// RegoSpec is an OPA query over the evaluation point.
type RegoSpec struct {
	Module string `json:"module" validate:"required"`
	Query  string `json:"query" validate:"required"`
}

// PropertySpec compares a property of the region being evaluated.
type PropertySpec struct {
	Name  string `json:"name" validate:"required"`
	Op    string `json:"op" validate:"required"`
	Value Scalar `json:"value"`
}

// Scalar is a literal written as a string, number or boolean in the
// protocol, kept in its textual form.
type Scalar string

// UnmarshalJSON implements json.Unmarshaler.
func (s *Scalar) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var str string
		if err := json.Unmarshal(data, &str); err != nil {
			return err
		}
		*s = Scalar(str)
		return nil
	}
	if string(data) == "null" {
		*s = ""
		return nil
	}
	*s = Scalar(data)
	return nil
}

// ValidationError is a protocol problem with its location.
type ValidationError struct {
	// File is the source file path.
	File string `json:"file,omitempty"`

	// Line is the line number (1-indexed).
	Line int `json:"line,omitempty"`

	// Column is the column number (1-indexed).
	Column int `json:"column,omitempty"`

	// Path is the field path of the problem (e.g., "steps[2].where").
	Path string `json:"path,omitempty"`

	// Message is the error message.
	Message string `json:"message"`
}

func (v ValidationError) String() string {
	var loc []string
	if v.File != "" {
		loc = append(loc, v.File)
	}
	if v.Line > 0 {
		loc = append(loc, fmt.Sprint(v.Line))
		if v.Column > 0 {
			loc = append(loc, fmt.Sprint(v.Column))
		}
	}
	msg := v.Message
	if v.Path != "" {
		msg = v.Path + ": " + msg
	}
	if len(loc) == 0 {
		return msg
	}
	return strings.Join(loc, ":") + ": " + msg
}

// ValidationErrors collects every problem found in a protocol.
type ValidationErrors []ValidationError

func (v ValidationErrors) Error() string {
	parts := make([]string, len(v))
	for i, e := range v {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}
