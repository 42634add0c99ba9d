package engine

import (
	"context"
	"time"

	"github.com/trackforge/trackforge/pkg/track"
)

// DataStore is the named object registry the engine reads sources from and
// publishes targets into. Any DataStore is also a condition.Env.
type DataStore interface {
	// Lookup returns the object registered under name.
	Lookup(name string) (track.Object, bool)

	// Exists reports whether name is registered.
	Exists(name string) bool

	// Clone returns an independent deep copy of ds.
	Clone(ds track.Dataset) track.Dataset

	// Publish atomically inserts or replaces obj under its name.
	Publish(ctx context.Context, obj track.Object) error

	// Remove deletes the object registered under name.
	Remove(ctx context.Context, name string) error

	// AllOfKind returns every object of the given kind, ordered by name.
	AllOfKind(kind track.Kind) []track.Object
}

// Operation is the strategy a single-source batch runs. ResolveParameters is
// called once before dispatch; TransformSequence is then called concurrently,
// once per sequence, and must treat the operation as read-only.
type Operation interface {
	// Name returns the operation name used in logs, metrics and errors.
	Name() string

	// ResolveParameters binds the task parameters. Errors abort the batch
	// before any worker starts.
	ResolveParameters(ctx context.Context, task *Task, env DataStore) error

	// TransformSequence writes dst from src for one sequence. src must not be modified.
	TransformSequence(ctx context.Context, src, dst track.SequenceData, gate *Gate, task *Task) error
}

// CombineOperation is the strategy of a multi-source batch.
type CombineOperation interface {
	Name() string
	ResolveParameters(ctx context.Context, task *Task, env DataStore) error

	// TransformSequences merges the entries of all sources, in source order, into dst.
	TransformSequences(ctx context.Context, srcs []track.SequenceData, dst track.SequenceData, gate *Gate, task *Task) error
}

// KindRestricted is implemented by operations that accept only some source kinds.
type KindRestricted interface {
	SourceKinds() []track.Kind
}

// SubrangeAware is implemented by operations that can work on part of a
// sequence. Only for those does the within condition drop sequences that have
// no qualifying position at all.
type SubrangeAware interface {
	SupportsSubrange() bool
}

// ProgressSink receives one-way progress notifications.
type ProgressSink interface {
	PublishProgress(current, total int)
	PublishStatus(text string)
}

// BatchRecord describes one batch for stores that keep a run history.
type BatchRecord struct {
	ID         string     `json:"id"`
	Operation  string     `json:"operation"`
	Sources    []string   `json:"sources"`
	Target     string     `json:"target"`
	Collection string     `json:"collection"`
	Status     TaskStatus `json:"status"`
	Total      int        `json:"total"`
	Completed  int        `json:"completed"`
	Line       int        `json:"line,omitempty"`
	Error      string     `json:"error,omitempty"`
	StartedAt  time.Time  `json:"started_at"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// RunRecorder is implemented by stores that persist batch records.
type RunRecorder interface {
	CreateRun(ctx context.Context, rec *BatchRecord) error
	FinishRun(ctx context.Context, rec *BatchRecord) error
}
