package config

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// StarlarkEvaluator runs protocol scripts. A script sees the protocol
// variables as predeclared numbers and every public numeric global it
// defines becomes a variable.
type StarlarkEvaluator struct {
	timeout  time.Duration
	maxSteps uint64
}

// NewStarlarkEvaluator creates a new Starlark evaluator.
func NewStarlarkEvaluator(timeout time.Duration) *StarlarkEvaluator {
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	return &StarlarkEvaluator{
		timeout:  timeout,
		maxSteps: 10_000_000,
	}
}

// StarlarkResult is the outcome of a script.
type StarlarkResult struct {
	// Variables holds the numeric globals.
	Variables map[string]float64

	// Ignored lists public globals that are not numbers.
	Ignored []string

	ExecutionTime time.Duration
}

// Evaluate executes script with vars predeclared.
func (se *StarlarkEvaluator) Evaluate(ctx context.Context, script string, vars map[string]float64) (*StarlarkResult, error) {
	startTime := time.Now()

	evalCtx, cancel := context.WithTimeout(ctx, se.timeout)
	defer cancel()

	thread := &starlark.Thread{
		Name:  "protocol",
		Print: func(_ *starlark.Thread, _ string) {},
	}
	thread.SetMaxExecutionSteps(se.maxSteps)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-evalCtx.Done():
			thread.Cancel(fmt.Sprintf("execution timeout after %v", se.timeout))
		case <-done:
		}
	}()

	predeclared := starlark.StringDict{
		"struct": starlarkstruct.Default,
	}
	for name, v := range vars {
		predeclared[name] = starlark.Float(v)
	}

	globals, err := starlark.ExecFile(thread, "protocol.star", script, predeclared)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("starlark execution failed: %w", err)
	}

	result := &StarlarkResult{Variables: make(map[string]float64)}
	for name, val := range globals {
		if name == "" || name[0] == '_' {
			continue
		}
		if f, ok := numberOf(val); ok {
			result.Variables[name] = f
			continue
		}
		result.Ignored = append(result.Ignored, name)
	}
	sort.Strings(result.Ignored)
	result.ExecutionTime = time.Since(startTime)
	return result, nil
}

func numberOf(v starlark.Value) (float64, bool) {
	switch x := v.(type) {
	case starlark.Float:
		return float64(x), true
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return float64(i), true
		}
		f := x.Float()
		return float64(f), true
	default:
		return 0, false
	}
}
