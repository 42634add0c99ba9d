package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type classified struct{}

func (classified) Error() string      { return "boom" }
func (classified) ErrorClass() string { return "computation" }
func (classified) ErrorCode() string  { return "DIVISION_BY_ZERO" }

func TestConfigValidate(t *testing.T) {
	require.NoError(t, DefaultConfig().Validate())
	require.NoError(t, DevelopmentConfig().Validate())

	cfg := DefaultConfig()
	cfg.Logging.Level = "verbose"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Tracing.Enabled = true
	cfg.Tracing.Exporter = "otlp"
	assert.ErrorContains(t, cfg.Validate(), "endpoint")

	cfg = DefaultConfig()
	cfg.Tracing.SamplingRate = 1.5
	assert.Error(t, cfg.Validate())

	cfg = ProductionConfig()
	assert.ErrorContains(t, cfg.Validate(), "endpoint")
	cfg.Tracing.Endpoint = "collector:4317"
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "json", cfg.Logging.Format)
	assert.True(t, cfg.Logging.EnableSampling)
}

func TestLoggerFields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LoggingConfig{Level: "debug", Format: "json"})

	logger.WithBatchID("b1").WithSequence("chr1").WithOperation("arithmetic").Info("done")

	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "b1", entry["batch_id"])
	assert.Equal(t, "chr1", entry["sequence"])
	assert.Equal(t, "arithmetic", entry["operation"])
	assert.Equal(t, "done", entry["message"])
}

func TestLoggerLevelFilter(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LoggingConfig{Level: "warn", Format: "json"})
	logger.Info("hidden")
	assert.Zero(t, buf.Len())
	logger.Warn("shown")
	assert.Contains(t, buf.String(), "shown")
}

func TestComponentLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerWithWriter(&buf, LoggingConfig{Level: "info", Format: "json"}).NewComponentLogger("watcher")

	logger.Warnf("re-run of %s failed", "smooth")
	var entry map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "watcher", entry["component"])
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "re-run of smooth failed", entry["message"])

	buf.Reset()
	zl := logger.Zerolog()
	zl.Info().Msg("raw")
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "watcher", entry["component"])
	assert.Equal(t, "raw", entry["message"])
}

func TestFlushWithoutTracing(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Events.Enabled = false
	tel, err := NewTelemetry(cfg)
	require.NoError(t, err)
	assert.NoError(t, tel.Flush(context.Background()))
	assert.NoError(t, tel.Shutdown(context.Background()))
}

func TestLoggerContext(t *testing.T) {
	logger := Nop()
	ctx := logger.WithContext(context.Background())
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))
}

func TestEventPublisherSync(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{Enabled: true, BufferSize: 8})
	require.NoError(t, err)

	var got []Event
	ep.Subscribe(func(e Event) { got = append(got, e) }, FilterByType(EventTypeBatchFailed))
	ep.AddFilter(FilterByBatchID("b1"))

	require.NoError(t, ep.PublishBatchStarted("b1", "arithmetic", "in", "out", 3))
	require.NoError(t, ep.PublishBatchFailed("b1", "out", "division by zero"))
	require.NoError(t, ep.PublishBatchFailed("b2", "out", "other batch"))

	require.Len(t, got, 1)
	assert.Equal(t, EventTypeBatchFailed, got[0].Type)
	assert.Equal(t, "b1", got[0].BatchID)
	assert.NotEmpty(t, got[0].ID)
	assert.False(t, got[0].Timestamp.IsZero())
}

func TestEventPublisherAsyncDrainsOnShutdown(t *testing.T) {
	ep, err := NewEventPublisher(EventsConfig{
		Enabled:       true,
		BufferSize:    16,
		MaxBatchSize:  4,
		FlushInterval: time.Hour,
		EnableAsync:   true,
	})
	require.NoError(t, err)

	var mu sync.Mutex
	count := 0
	ep.Subscribe(func(Event) {
		mu.Lock()
		count++
		mu.Unlock()
	}, nil)

	for i := 0; i < 10; i++ {
		require.NoError(t, ep.PublishSequenceCompleted("b1", "chr1", time.Millisecond))
	}
	require.NoError(t, ep.Shutdown(context.Background()))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 10, count)
}

func TestFilterByLevel(t *testing.T) {
	f := FilterByLevel(EventLevelWarning)
	assert.False(t, f(Event{Level: EventLevelInfo}))
	assert.True(t, f(Event{Level: EventLevelWarning}))
	assert.True(t, f(Event{Level: EventLevelError}))
}

func TestMetricsDisabledIsNoop(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: false})
	require.NoError(t, err)
	assert.NotPanics(t, func() {
		m.RecordBatchStarted("arithmetic")
		m.RecordBatchCompleted("arithmetic", "succeeded", time.Second)
		m.RecordSequence("arithmetic", "succeeded", time.Second)
		m.RecordError("computation", "X")
		m.RecordCommit("numeric")
		m.AddQueuedSequences(1)
	})
	assert.Nil(t, m.Registry())
}

func TestMetricsRecord(t *testing.T) {
	m, err := NewMetrics(DefaultConfig().Metrics)
	require.NoError(t, err)

	m.RecordBatchStarted("arithmetic")
	m.RecordSequence("arithmetic", "succeeded", time.Millisecond)
	m.RecordSequence("arithmetic", "succeeded", time.Millisecond)
	m.RecordError("computation", "DIVISION_BY_ZERO")
	m.RecordBatchCompleted("arithmetic", "failed", time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.batchesStarted.WithLabelValues("arithmetic")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.sequencesExecuted.WithLabelValues("arithmetic", "succeeded")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsByCode.WithLabelValues("DIVISION_BY_ZERO")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.activeBatches))
}

func newTestTelemetry(t *testing.T) (*Telemetry, *[]Event) {
	t.Helper()
	cfg := DefaultConfig()
	cfg.Events.EnableAsync = false
	cfg.Logging.Output = "stdout"

	tel, err := NewTelemetry(cfg)
	require.NoError(t, err)
	tel.Logger = Nop()
	t.Cleanup(func() { _ = tel.Shutdown(context.Background()) })

	var events []Event
	var mu sync.Mutex
	tel.Events.Subscribe(func(e Event) {
		mu.Lock()
		events = append(events, e)
		mu.Unlock()
	}, nil)
	return tel, &events
}

func TestBatchContextLifecycle(t *testing.T) {
	tel, events := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())
	assert.Same(t, tel, FromTelemetryContext(ctx))

	ctx = WithBatchContext(ctx, BatchInfo{ID: "b1", Operation: "arithmetic", Source: "in", Target: "out", Sequences: 2})
	for _, seq := range []string{"chr1", "chr2"} {
		sctx := WithSequenceContext(ctx, "b1", seq, "arithmetic")
		EndSequenceContext(sctx, nil)
	}
	require.NoError(t, RecordCommit(ctx, "b1", "out", "numeric", func(context.Context) error { return nil }))
	EndBatchContext(ctx, "succeeded", 0, nil)

	var types []string
	for _, e := range *events {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{
		EventTypeBatchStarted,
		EventTypeSequenceCompleted,
		EventTypeSequenceCompleted,
		EventTypeDatasetCommitted,
		EventTypeBatchCompleted,
	}, types)
	assert.Equal(t, 0.0, testutil.ToFloat64(tel.Metrics.queuedSequences))
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.Metrics.datasetsCommitted.WithLabelValues("numeric")))
}

func TestBatchContextFailure(t *testing.T) {
	tel, events := newTestTelemetry(t)
	ctx := tel.WithContext(context.Background())

	ctx = WithBatchContext(ctx, BatchInfo{ID: "b1", Operation: "arithmetic", Sequences: 3})
	sctx := WithSequenceContext(ctx, "b1", "chr1", "arithmetic")
	EndSequenceContext(sctx, classified{})
	EndBatchContext(ctx, "failed", 2, classified{})

	last := (*events)[len(*events)-1]
	assert.Equal(t, EventTypeBatchFailed, last.Type)
	assert.Equal(t, 1.0, testutil.ToFloat64(tel.Metrics.errorsByClass.WithLabelValues("computation")))
	assert.Equal(t, 0.0, testutil.ToFloat64(tel.Metrics.queuedSequences))
}

func TestHelpersWithoutTelemetry(t *testing.T) {
	ctx := WithBatchContext(context.Background(), BatchInfo{ID: "b1"})
	ctx = WithSequenceContext(ctx, "b1", "chr1", "op")
	assert.NotPanics(t, func() {
		EndSequenceContext(ctx, nil)
		EndBatchContext(ctx, "succeeded", 0, nil)
	})

	want := errors.New("commit failed")
	err := RecordCommit(ctx, "b1", "out", "numeric", func(context.Context) error { return want })
	assert.ErrorIs(t, err, want)
}
