package transforms

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/errdefs"
)

// validator is implemented by operations that can check their parameters
// before any data is loaded.
type validator interface {
	Validate(p engine.Params) error
}

var factories = map[string]func() any{
	"arithmetic":      func() any { return &Arithmetic{} },
	"interpolate":     func() any { return &Interpolate{} },
	"update_regions":  func() any { return &UpdateRegions{} },
	"filter_regions":  func() any { return &FilterRegions{} },
	"merge_regions":   func() any { return &MergeRegions{} },
	"combine_regions": func() any { return &CombineRegions{} },
	"combine_numeric": func() any { return &CombineNumeric{} },
}

// Names returns the registered operation names in sorted order.
func Names() []string {
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Transform is a named operation ready to run on an engine.
type Transform struct {
	name   string
	single engine.Operation
	multi  engine.CombineOperation
}

// New creates a fresh operation instance and checks its static parameters.
func New(name string, params engine.Params) (*Transform, error) {
	factory, ok := factories[strings.ToLower(name)]
	if !ok {
		return nil, errdefs.NewConfigurationError(
			fmt.Sprintf("unknown operation %q (known: %s)", name, strings.Join(Names(), ", ")), nil).
			WithCode(errdefs.CodeInvalidParameter).
			WithOperation(name)
	}
	op := factory()
	if v, ok := op.(validator); ok {
		if err := v.Validate(params); err != nil {
			if e, ok := errdefs.As(err); ok {
				return nil, e.WithOperation(name)
			}
			return nil, err
		}
	}

	t := &Transform{name: strings.ToLower(name)}
	switch o := op.(type) {
	case engine.CombineOperation:
		t.multi = o
	case engine.Operation:
		t.single = o
	}
	return t, nil
}

// Name returns the operation name.
func (t *Transform) Name() string { return t.name }

// IsCombine reports whether the operation takes several sources.
func (t *Transform) IsCombine() bool { return t.multi != nil }

// Run builds the batch request from the task parameters and executes it.
func (t *Transform) Run(ctx context.Context, e *engine.TransformEngine, task *engine.Task) (string, error) {
	task.Operation = t.name
	if t.multi != nil {
		req, err := engine.CombineRequestFromParams(task.Params)
		if err != nil {
			return "", t.stamp(err, task)
		}
		return e.RunCombine(ctx, task, req, t.multi)
	}
	req, err := engine.RequestFromParams(task.Params)
	if err != nil {
		return "", t.stamp(err, task)
	}
	return e.RunBatch(ctx, task, req, t.single)
}

func (t *Transform) stamp(err error, task *engine.Task) error {
	if e, ok := errdefs.As(err); ok {
		return e.WithOperation(t.name).WithLine(task.SourceLine)
	}
	return err
}
