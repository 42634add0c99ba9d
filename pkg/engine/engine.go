package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/trackforge/trackforge/pkg/condition"
	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/telemetry"
	"github.com/trackforge/trackforge/pkg/track"
)

// DefaultParallelism is the worker pool size used when none is configured.
const DefaultParallelism = 10

// BatchRequest names the inputs and output of a single-source batch.
type BatchRequest struct {
	Source     string
	Target     string
	Collection string
	Where      condition.Condition
	Within     condition.Condition
}

// CombineRequest names the inputs and output of a multi-source batch.
type CombineRequest struct {
	Sources    []string
	Target     string
	Collection string
	Where      condition.Condition
	Within     condition.Condition
}

// RequestFromParams builds a BatchRequest from the standard task parameters.
// The source is the first entry of sourceData.
func RequestFromParams(p Params) (BatchRequest, error) {
	c, err := CombineRequestFromParams(p)
	if err != nil {
		return BatchRequest{}, err
	}
	if len(c.Sources) != 1 {
		return BatchRequest{}, errdefs.NewConfigurationError(
			fmt.Sprintf("expected exactly one source dataset, got %d", len(c.Sources)), nil).
			WithCode(errdefs.CodeOperandCount)
	}
	return BatchRequest{
		Source:     c.Sources[0],
		Target:     c.Target,
		Collection: c.Collection,
		Where:      c.Where,
		Within:     c.Within,
	}, nil
}

// CombineRequestFromParams builds a CombineRequest from the standard task parameters.
func CombineRequestFromParams(p Params) (CombineRequest, error) {
	var req CombineRequest
	var err error
	if req.Sources, err = p.Strings(ParamSourceData); err != nil {
		return req, err
	}
	if req.Target, err = p.String(ParamTargetData); err != nil {
		return req, err
	}
	if req.Collection, err = p.String(ParamSequenceCollection); err != nil {
		return req, err
	}
	if req.Where, err = p.Condition(ParamWhere); err != nil {
		return req, err
	}
	if req.Within, err = p.Condition(ParamWithin); err != nil {
		return req, err
	}
	return req, nil
}

// TransformEngine runs operations over sequence collections. Every batch
// builds its result in a clone of the source and publishes it only when all
// sequences succeeded.
type TransformEngine struct {
	store       DataStore
	parallelism int
}

// Option configures a TransformEngine.
type Option func(*TransformEngine)

// WithParallelism sets the worker pool size. Values below 1 select the default.
func WithParallelism(n int) Option {
	return func(e *TransformEngine) {
		if n > 0 {
			e.parallelism = n
		}
	}
}

// NewTransformEngine creates an engine over store.
func NewTransformEngine(store DataStore, opts ...Option) *TransformEngine {
	e := &TransformEngine{store: store, parallelism: DefaultParallelism}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Parallelism returns the worker pool size.
func (e *TransformEngine) Parallelism() int { return e.parallelism }

// Store returns the data store.
func (e *TransformEngine) Store() DataStore { return e.store }

// batch is the validated, resolved form of a request.
type batch struct {
	task       *Task
	operation  string
	sources    []track.Dataset
	target     track.Dataset
	collection *track.SequenceCollection
	working    []*track.Sequence
	gate       *Gate
	record     *BatchRecord
}

// RunBatch executes a single-source operation and returns the committed target name.
func (e *TransformEngine) RunBatch(ctx context.Context, task *Task, req BatchRequest, op Operation) (string, error) {
	b, err := e.prepare(ctx, task, op.Name(), []string{req.Source}, req.Target, req.Collection,
		req.Where, req.Within, kindsOf(op), subrangeOf(op),
		func() error { return op.ResolveParameters(ctx, task, e.store) })
	if err != nil {
		return "", e.fail(ctx, task, nil, err)
	}

	unit := func(ctx context.Context, name string) error {
		src, dst, err := entries(b.sources[0], b.target, name)
		if err != nil {
			return err
		}
		return op.TransformSequence(ctx, src[0], dst, b.gate, task)
	}
	return e.execute(ctx, b, unit)
}

// RunCombine executes a multi-source operation. The target starts as a clone
// of the first source; every source must hold an entry for every sequence.
func (e *TransformEngine) RunCombine(ctx context.Context, task *Task, req CombineRequest, op CombineOperation) (string, error) {
	if task.Operation == "" {
		task.Operation = op.Name()
	}
	if len(req.Sources) < 2 {
		err := errdefs.NewConfigurationError(
			fmt.Sprintf("%s needs at least two source datasets, got %d", op.Name(), len(req.Sources)), nil).
			WithCode(errdefs.CodeOperandCount)
		return "", e.fail(ctx, task, nil, err)
	}

	b, err := e.prepare(ctx, task, op.Name(), req.Sources, req.Target, req.Collection,
		req.Where, req.Within, kindsOf(op), subrangeOf(op),
		func() error { return op.ResolveParameters(ctx, task, e.store) })
	if err != nil {
		return "", e.fail(ctx, task, nil, err)
	}

	unit := func(ctx context.Context, name string) error {
		srcs, dst, err := entries(nil, b.target, name, b.sources...)
		if err != nil {
			return err
		}
		return op.TransformSequences(ctx, srcs, dst, b.gate, task)
	}
	return e.execute(ctx, b, unit)
}

// prepare performs every step that may fail before a worker exists.
func (e *TransformEngine) prepare(
	ctx context.Context,
	task *Task,
	operation string,
	sourceNames []string,
	target, collection string,
	where, within condition.Condition,
	kinds []track.Kind,
	subrange bool,
	resolveParams func() error,
) (*batch, error) {
	if task.Operation == "" {
		task.Operation = operation
	}
	task.setStatus(TaskStatusResolving, fmt.Sprintf("%s: resolving parameters", operation))

	if target == "" {
		return nil, missingParam(ParamTargetData)
	}

	sources := make([]track.Dataset, 0, len(sourceNames))
	for _, name := range sourceNames {
		ds, err := e.lookupDataset(name, kinds)
		if err != nil {
			return nil, err
		}
		if len(sources) > 0 && ds.Kind() != sources[0].Kind() {
			return nil, errdefs.NewTypeMismatchError(
				fmt.Sprintf("dataset %q is %s, expected %s like %q", name, ds.Kind(), sources[0].Kind(), sources[0].Name()), nil)
		}
		sources = append(sources, ds)
	}

	coll, err := e.lookupCollection(collection)
	if err != nil {
		return nil, err
	}

	if err := resolveParams(); err != nil {
		if _, ok := errdefs.As(err); !ok {
			err = errdefs.NewConfigurationError("failed to resolve parameters", err).
				WithCode(errdefs.CodeInvalidParameter)
		}
		return nil, err
	}

	resolvedWhere, err := e.resolveCondition(ctx, ParamWhere, where)
	if err != nil {
		return nil, err
	}
	resolvedWithin, err := e.resolveCondition(ctx, ParamWithin, within)
	if err != nil {
		return nil, err
	}
	gate := NewGate(resolvedWhere, resolvedWithin)

	working := coll.Sequences()
	if subrange && gate.HasWithin() {
		kept := working[:0:0]
		for _, seq := range working {
			ok, err := gate.hasQualifyingWindow(ctx, seq)
			if err != nil {
				if ctx.Err() != nil {
					return nil, errdefs.NewCancellationError("interrupted while filtering sequences", err)
				}
				return nil, err
			}
			if ok {
				kept = append(kept, seq)
			}
		}
		working = kept
	}

	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}

	return &batch{
		task:       task,
		operation:  operation,
		sources:    sources,
		collection: coll,
		working:    working,
		gate:       gate,
		record: &BatchRecord{
			ID:         task.ID,
			Operation:  operation,
			Sources:    names,
			Target:     target,
			Collection: collection,
			Status:     TaskStatusRunning,
			Total:      len(working),
			Line:       task.SourceLine,
			StartedAt:  time.Now(),
		},
	}, nil
}

// execute clones the first source into the target, runs one unit per working
// sequence on the worker pool and commits the target when all succeeded.
func (e *TransformEngine) execute(ctx context.Context, b *batch, unit func(context.Context, string) error) (string, error) {
	task := b.task
	total := len(b.working)

	target, ok := e.store.Clone(b.sources[0]).(track.Dataset)
	if !ok || target == nil {
		return "", e.fail(ctx, task, b.record,
			errdefs.NewConsistencyError(fmt.Sprintf("clone of %q is not a dataset", b.sources[0].Name()), nil))
	}
	target.Rename(b.record.Target)
	b.target = target

	ctx = telemetry.WithBatchContext(ctx, telemetry.BatchInfo{
		ID:          task.ID,
		Operation:   b.operation,
		Source:      b.sources[0].Name(),
		Target:      b.record.Target,
		Sequences:   total,
		Parallelism: e.parallelism,
	})
	logger := telemetry.FromContext(ctx)
	logger.Infof("starting %s over %d sequences of %s", b.operation, total, b.collection.Name())
	e.recordStart(ctx, b.record)

	counters := NewSharedCounters(total)
	task.setStatus(TaskStatusRunning, fmt.Sprintf("%s: 0/%d sequences", b.operation, total))
	task.publishProgress(0, total, "")

	runCtx, stop := task.Cancel.Bind(ctx)
	defer stop()

	g, gctx := errgroup.WithContext(runCtx)
	g.SetLimit(e.parallelism)
	for _, seq := range b.working {
		if gctx.Err() != nil {
			break
		}
		name := seq.Name
		g.Go(func() error {
			return e.runUnit(gctx, b, counters, name, unit)
		})
	}
	err := g.Wait()

	_, completed, _ := counters.Snapshot()
	if err == nil {
		// A cancel that lands after the last unit still aborts the commit.
		err = task.Cancel.Check(ctx)
	}
	if err == nil && completed != total {
		err = errdefs.NewConsistencyError(
			fmt.Sprintf("unexplained partial completion: %d of %d sequences", completed, total), nil).
			WithCode(errdefs.CodePartialCompletion)
	}
	if err != nil {
		b.target = nil
		telemetry.EndBatchContext(ctx, string(statusForError(err)), total-completed, err)
		return "", e.fail(ctx, task, b.record, err)
	}

	target.Finalize()
	target.MarkDerived()

	task.setStatus(TaskStatusCommitting, fmt.Sprintf("%s: committing %s", b.operation, target.Name()))
	err = telemetry.RecordCommit(ctx, task.ID, target.Name(), string(target.Kind()), func(ctx context.Context) error {
		return e.store.Publish(ctx, target)
	})
	if err != nil {
		if _, ok := errdefs.As(err); !ok {
			err = errdefs.NewConsistencyError(fmt.Sprintf("failed to publish %q", target.Name()), err).
				WithCode(errdefs.CodePersistFailed)
		}
		telemetry.EndBatchContext(ctx, string(TaskStatusFailed), 0, err)
		return "", e.fail(ctx, task, b.record, err)
	}

	telemetry.EndBatchContext(ctx, string(TaskStatusSucceeded), 0, nil)
	logger.Infof("committed %s (%d sequences)", target.Name(), total)
	task.setStatus(TaskStatusSucceeded, fmt.Sprintf("%s: committed %s", b.operation, target.Name()))
	b.record.Completed = completed
	e.recordFinish(ctx, b.record, TaskStatusSucceeded, nil)
	return target.Name(), nil
}

// runUnit is the body of one worker.
func (e *TransformEngine) runUnit(
	ctx context.Context,
	b *batch,
	counters *SharedCounters,
	name string,
	unit func(context.Context, string) error,
) (err error) {
	task := b.task
	if err := task.Cancel.Check(ctx); err != nil {
		return classifyUnitError(err, name)
	}

	ctx = telemetry.WithSequenceContext(ctx, task.ID, name, b.operation)
	defer func() { telemetry.EndSequenceContext(ctx, err) }()

	counters.Start()
	if err := unit(ctx, name); err != nil {
		return classifyUnitError(err, name)
	}

	counters.Complete(func(completed, total int) {
		task.publishProgress(completed, total, fmt.Sprintf("%s: %d/%d sequences", b.operation, completed, total))
	})
	telemetry.FromContext(ctx).Debugf("sequence %s done", name)

	if err := task.Cancel.Check(ctx); err != nil {
		return classifyUnitError(err, name)
	}
	return nil
}

func classifyUnitError(err error, sequence string) error {
	if e, ok := errdefs.As(err); ok {
		if e.Sequence == "" {
			e.WithSequence(sequence)
		}
		return e
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return errdefs.NewCancellationError("sequence transform interrupted", err).WithSequence(sequence)
	}
	return errdefs.NewComputationError("sequence transform failed", err).WithSequence(sequence)
}

// fail records the terminal state of a batch that will not be committed.
func (e *TransformEngine) fail(ctx context.Context, task *Task, rec *BatchRecord, err error) error {
	err = task.stamp(err)
	status := statusForError(err)
	task.setStatus(status, fmt.Sprintf("%s: %s", task.Operation, status))
	telemetry.FromContext(ctx).WithError(err).Errorf("%s aborted, nothing committed", task.Operation)
	if rec != nil {
		rec.Completed, _ = task.Progress()
		e.recordFinish(ctx, rec, status, err)
	}
	return err
}

func (e *TransformEngine) recordStart(ctx context.Context, rec *BatchRecord) {
	if r, ok := e.store.(RunRecorder); ok {
		if err := r.CreateRun(ctx, rec); err != nil {
			telemetry.FromContext(ctx).WithError(err).Warn("failed to record batch start")
		}
	}
}

func (e *TransformEngine) recordFinish(ctx context.Context, rec *BatchRecord, status TaskStatus, err error) {
	r, ok := e.store.(RunRecorder)
	if !ok {
		return
	}
	now := time.Now()
	rec.Status = status
	rec.FinishedAt = &now
	if err != nil {
		rec.Error = err.Error()
	}
	if rerr := r.FinishRun(context.WithoutCancel(ctx), rec); rerr != nil {
		telemetry.FromContext(ctx).WithError(rerr).Warn("failed to record batch result")
	}
}

func (e *TransformEngine) resolveCondition(ctx context.Context, param string, c condition.Condition) (condition.Resolved, error) {
	r, err := condition.ResolveOptional(ctx, c, e.store)
	if err == nil {
		return r, nil
	}
	if ce, ok := errdefs.As(err); ok {
		return nil, ce.WithDetail("parameter", param)
	}
	return nil, errdefs.NewConfigurationError(fmt.Sprintf("failed to resolve %s condition", param), err).
		WithCode(errdefs.CodeUnresolved)
}

func (e *TransformEngine) lookupDataset(name string, kinds []track.Kind) (track.Dataset, error) {
	if name == "" {
		return nil, missingParam(ParamSourceData)
	}
	obj, ok := e.store.Lookup(name)
	if !ok {
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("dataset %q not found", name), nil).
			WithCode(errdefs.CodeNotFound)
	}
	ds, ok := obj.(track.Dataset)
	if !ok {
		return nil, errdefs.NewTypeMismatchError(fmt.Sprintf("%q is a %s, not a dataset", name, obj.Kind()), nil)
	}
	if len(kinds) == 0 {
		return ds, nil
	}
	for _, k := range kinds {
		if ds.Kind() == k {
			return ds, nil
		}
	}
	return nil, errdefs.NewTypeMismatchError(fmt.Sprintf("dataset %q is %s, expected one of %v", name, ds.Kind(), kinds), nil)
}

func (e *TransformEngine) lookupCollection(name string) (*track.SequenceCollection, error) {
	if name == "" {
		return nil, missingParam(ParamSequenceCollection)
	}
	obj, ok := e.store.Lookup(name)
	if !ok {
		return nil, errdefs.NewConfigurationError(fmt.Sprintf("sequence collection %q not found", name), nil).
			WithCode(errdefs.CodeNotFound)
	}
	coll, ok := obj.(*track.SequenceCollection)
	if !ok {
		return nil, errdefs.NewTypeMismatchError(fmt.Sprintf("%q is a %s, not a sequence collection", name, obj.Kind()), nil)
	}
	return coll, nil
}

// entries locates the per-sequence entries of the sources and the target.
// With a non-nil single source the other sources are ignored.
func entries(single, target track.Dataset, name string, sources ...track.Dataset) ([]track.SequenceData, track.SequenceData, error) {
	if single != nil {
		sources = []track.Dataset{single}
	}
	srcs := make([]track.SequenceData, len(sources))
	for i, ds := range sources {
		sd, ok := ds.SequenceData(name)
		if !ok {
			return nil, nil, missingSequence(ds.Name(), name)
		}
		srcs[i] = sd
	}
	dst, ok := target.SequenceData(name)
	if !ok {
		return nil, nil, missingSequence(target.Name(), name)
	}
	return srcs, dst, nil
}

func missingSequence(dataset, sequence string) error {
	return errdefs.NewConsistencyError(fmt.Sprintf("dataset %q has no entry for sequence %q", dataset, sequence), nil).
		WithCode(errdefs.CodeMissingSequence).
		WithSequence(sequence)
}

func kindsOf(op any) []track.Kind {
	if k, ok := op.(KindRestricted); ok {
		return k.SourceKinds()
	}
	return nil
}

func subrangeOf(op any) bool {
	if s, ok := op.(SubrangeAware); ok {
		return s.SupportsSubrange()
	}
	return false
}
