package config

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/trackforge/trackforge/pkg/condition"
	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/telemetry"
	"github.com/trackforge/trackforge/pkg/track"
	"github.com/trackforge/trackforge/pkg/transforms"
)

// PlannedStep is a protocol step bound to its operation.
type PlannedStep struct {
	Index     int
	Step      *Step
	Transform *transforms.Transform
	Params    engine.Params
}

// NewTask returns a fresh task for the step.
func (ps PlannedStep) NewTask() *engine.Task {
	params := make(engine.Params, len(ps.Params))
	for k, v := range ps.Params {
		params[k] = v
	}
	return engine.NewTask(ps.Transform.Name(), params).WithLine(ps.Step.Line)
}

// Plan binds every step to a fresh operation instance, with the protocol
// defaults merged under the step parameters. Static parameter errors are
// reported for the first failing step.
func (p *Protocol) Plan() ([]PlannedStep, error) {
	plan := make([]PlannedStep, 0, len(p.Steps))
	for i := range p.Steps {
		step := &p.Steps[i]
		params := make(engine.Params, len(p.Defaults)+len(step.Params)+2)
		for k, v := range p.Defaults {
			params[k] = v
		}
		for k, v := range step.Params {
			params[k] = v
		}
		where, within := step.Conditions()
		if where != nil {
			params[engine.ParamWhere] = where
		}
		if within != nil {
			params[engine.ParamWithin] = within
		}

		t, err := transforms.New(step.Operation, params)
		if err != nil {
			if e, ok := errdefs.As(err); ok {
				return nil, e.WithLine(step.Line)
			}
			return nil, err
		}
		plan = append(plan, PlannedStep{Index: i, Step: step, Transform: t, Params: params})
	}
	return plan, nil
}

// overlayEnv sees the objects of an underlying env plus the targets the
// preceding steps will publish.
type overlayEnv struct {
	base    condition.Env
	planned map[string]track.Object
}

func (o *overlayEnv) Lookup(name string) (track.Object, bool) {
	if obj, ok := o.planned[name]; ok {
		return obj, true
	}
	return o.base.Lookup(name)
}

// CheckReferences resolves the names every step refers to without running
// anything. A step target counts as existing for the steps after it, with
// the kind of its first source. All problems are reported together.
func (p *Protocol) CheckReferences(ctx context.Context, env condition.Env) error {
	plan, err := p.Plan()
	if err != nil {
		return err
	}

	overlay := &overlayEnv{base: env, planned: make(map[string]track.Object)}
	for name, v := range p.Variables {
		overlay.planned[name] = track.NewNumericVariable(name, v)
	}
	var problems ValidationErrors
	report := func(ps PlannedStep, err error) {
		problems = append(problems, ValidationError{
			File:    p.Source,
			Line:    ps.Step.Line,
			Path:    fmt.Sprintf("steps[%d]", ps.Index),
			Message: err.Error(),
		})
	}

	for _, ps := range plan {
		req, err := engine.CombineRequestFromParams(ps.Params)
		if err != nil {
			report(ps, err)
			continue
		}
		var first track.Object
		for _, name := range req.Sources {
			obj, ok := overlay.Lookup(name)
			if !ok {
				report(ps, fmt.Errorf("unknown source dataset %q", name))
				continue
			}
			if first == nil {
				first = obj
			}
		}
		if obj, ok := overlay.Lookup(req.Collection); !ok {
			report(ps, fmt.Errorf("unknown sequence collection %q", req.Collection))
		} else if obj.Kind() != track.KindSequenceCollection {
			report(ps, fmt.Errorf("%q is a %s, not a sequence collection", req.Collection, obj.Kind()))
		}
		for _, c := range []condition.Condition{req.Where, req.Within} {
			if _, err := condition.ResolveOptional(ctx, c, overlay); err != nil {
				report(ps, err)
			}
		}
		if first != nil {
			overlay.planned[req.Target] = first
		}
	}

	if len(problems) > 0 {
		return errdefs.NewConfigurationError(fmt.Sprintf("unresolved references in %s", p.Name), problems).
			WithCode(errdefs.CodeUnresolved)
	}
	return nil
}

// PublishVariables registers the protocol variables as numeric variables.
func (p *Protocol) PublishVariables(ctx context.Context, store engine.DataStore) error {
	names := make([]string, 0, len(p.Variables))
	for name := range p.Variables {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := store.Publish(ctx, track.NewNumericVariable(name, p.Variables[name])); err != nil {
			return err
		}
	}
	return nil
}

// StepResult reports one executed step.
type StepResult struct {
	Index     int           `json:"index"`
	Operation string        `json:"operation"`
	Target    string        `json:"target"`
	Duration  time.Duration `json:"duration"`
}

// Executor runs a protocol step by step against one engine.
type Executor struct {
	Engine *engine.TransformEngine

	// Sink, when set, receives the progress of every step.
	Sink engine.ProgressSink

	// OnTask is called with each task before it runs, e.g. to wire a cancel token.
	OnTask func(PlannedStep, *engine.Task)
}

// Execute publishes the protocol variables and runs the steps in order,
// stopping at the first failure.
func (x *Executor) Execute(ctx context.Context, p *Protocol) ([]StepResult, error) {
	logger := telemetry.FromContext(ctx)

	plan, err := p.Plan()
	if err != nil {
		return nil, err
	}
	if err := p.PublishVariables(ctx, x.Engine.Store()); err != nil {
		return nil, err
	}

	results := make([]StepResult, 0, len(plan))
	for _, ps := range plan {
		task := ps.NewTask()
		if x.Sink != nil {
			task.WithSink(x.Sink)
		}
		if x.OnTask != nil {
			x.OnTask(ps, task)
		}

		logger.WithFields(map[string]interface{}{
			"protocol":  p.Name,
			"step":      ps.Index + 1,
			"line":      ps.Step.Line,
			"operation": ps.Transform.Name(),
		}).Info("Running step")

		started := time.Now()
		target, err := ps.Transform.Run(ctx, x.Engine, task)
		if err != nil {
			return results, err
		}
		results = append(results, StepResult{
			Index:     ps.Index,
			Operation: ps.Transform.Name(),
			Target:    target,
			Duration:  time.Since(started),
		})
	}
	return results, nil
}
