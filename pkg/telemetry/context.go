package telemetry

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles logging, tracing, metrics and events.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config
}

type telemetryContextKey struct{}

// NewTelemetry creates a telemetry bundle from configuration.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext stores the bundle and its logger in ctx.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	ctx = context.WithValue(ctx, telemetryContextKey{}, t)
	return t.Logger.WithContext(ctx)
}

// FromTelemetryContext returns the bundle stored in ctx, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	if t, ok := ctx.Value(telemetryContextKey{}).(*Telemetry); ok {
		return t
	}
	return nil
}

// Shutdown stops the event publisher, the tracer and the metrics server.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.Events.Shutdown(ctx),
		t.Tracer.Shutdown(ctx),
		t.Metrics.Shutdown(ctx),
	)
}

// Flush exports pending spans.
func (t *Telemetry) Flush(ctx context.Context) error {
	return t.Tracer.ForceFlush(ctx)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
func (t *Telemetry) StartMetricsServer() <-chan error {
	return t.Metrics.StartMetricsServer()
}

// BatchInfo describes one batch for instrumentation.
type BatchInfo struct {
	ID          string
	Operation   string
	Source      string
	Target      string
	Sequences   int
	Parallelism int
}

type batchScope struct {
	info  BatchInfo
	span  trace.Span
	timer *Timer
}

type batchScopeKey struct{}

// WithBatchContext starts the batch span, logs, counts and publishes
// batch.started. Without telemetry in ctx it only attaches a batch logger.
func WithBatchContext(ctx context.Context, info BatchInfo) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return FromContext(ctx).WithBatchID(info.ID).WithOperation(info.Operation).WithContext(ctx)
	}

	spanCtx, span := tel.Tracer.StartBatchSpan(ctx, info.ID, info.Operation, info.Source, info.Target)
	span.SetAttributes(
		AttrSequences.Int(info.Sequences),
		AttrParallelism.Int(info.Parallelism),
	)

	logger := tel.Logger.WithBatchID(info.ID).WithOperation(info.Operation)
	if id := TraceID(spanCtx); id != "" {
		logger = logger.WithField("trace_id", id)
	}
	spanCtx = logger.WithContext(spanCtx)

	tel.Metrics.RecordBatchStarted(info.Operation)
	tel.Metrics.AddQueuedSequences(float64(info.Sequences))
	_ = tel.Events.PublishBatchStarted(info.ID, info.Operation, info.Source, info.Target, info.Sequences)

	return context.WithValue(spanCtx, batchScopeKey{}, &batchScope{info: info, span: span, timer: NewTimer()})
}

// EndBatchContext finishes the batch span and records the outcome.
// pending is the number of sequence units that never reported completion.
func EndBatchContext(ctx context.Context, status string, pending int, err error) {
	tel := FromTelemetryContext(ctx)
	scope, ok := ctx.Value(batchScopeKey{}).(*batchScope)
	if tel == nil || !ok {
		return
	}

	if err != nil {
		class, code := classify(err)
		scope.span.SetAttributes(AttrErrorClass.String(class), AttrErrorCode.String(code))
		RecordError(scope.span, err)
		tel.Metrics.RecordError(class, code)
		_ = tel.Events.PublishBatchFailed(scope.info.ID, scope.info.Target, err.Error())
	} else {
		RecordSuccess(scope.span)
	}
	scope.span.End()

	duration := scope.timer.Duration()
	tel.Metrics.RecordBatchCompleted(scope.info.Operation, status, duration)
	tel.Metrics.AddQueuedSequences(-float64(pending))
	if err == nil {
		_ = tel.Events.PublishBatchCompleted(scope.info.ID, scope.info.Target, duration)
	}
}

type sequenceScope struct {
	batchID   string
	sequence  string
	operation string
	span      trace.Span
	timer     *Timer
}

type sequenceScopeKey struct{}

// WithSequenceContext starts the span for one sequence unit inside a batch.
func WithSequenceContext(ctx context.Context, batchID, sequence, operation string) context.Context {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return FromContext(ctx).WithSequence(sequence).WithContext(ctx)
	}

	spanCtx, span := tel.Tracer.StartSequenceSpan(ctx, batchID, sequence, operation)
	spanCtx = FromContext(ctx).WithSequence(sequence).WithContext(spanCtx)
	return context.WithValue(spanCtx, sequenceScopeKey{}, &sequenceScope{
		batchID:   batchID,
		sequence:  sequence,
		operation: operation,
		span:      span,
		timer:     NewTimer(),
	})
}

// EndSequenceContext finishes the sequence span and records the outcome.
func EndSequenceContext(ctx context.Context, err error) {
	tel := FromTelemetryContext(ctx)
	scope, ok := ctx.Value(sequenceScopeKey{}).(*sequenceScope)
	if tel == nil || !ok {
		return
	}

	duration := scope.timer.Duration()
	status := "succeeded"
	if err != nil {
		status = "failed"
		RecordError(scope.span, err)
		_ = tel.Events.PublishSequenceFailed(scope.batchID, scope.sequence, err.Error())
	} else {
		RecordSuccess(scope.span)
		_ = tel.Events.PublishSequenceCompleted(scope.batchID, scope.sequence, duration)
	}
	scope.span.End()

	tel.Metrics.RecordSequence(scope.operation, status, duration)
	tel.Metrics.AddQueuedSequences(-1)
}

// RecordCommit traces and counts the publication of a dataset.
func RecordCommit(ctx context.Context, batchID, dataset, kind string, fn func(context.Context) error) error {
	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return fn(ctx)
	}

	spanCtx, span := tel.Tracer.StartSpan(ctx, SpanCommit,
		AttrBatchID.String(batchID),
		AttrTarget.String(dataset),
		attribute.String("dataset.kind", kind),
	)
	defer span.End()

	if err := fn(spanCtx); err != nil {
		RecordError(span, err)
		return err
	}
	RecordSuccess(span)
	tel.Metrics.RecordCommit(kind)
	_ = tel.Events.PublishDatasetCommitted(batchID, dataset, kind)
	return nil
}

// classifiedError is satisfied by errors that carry a class and a code.
type classifiedError interface {
	ErrorClass() string
	ErrorCode() string
}

func classify(err error) (string, string) {
	var ce classifiedError
	if errors.As(err, &ce) {
		return ce.ErrorClass(), ce.ErrorCode()
	}
	return "unknown", ""
}
