package engine

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/trackforge/trackforge/pkg/condition"
	"github.com/trackforge/trackforge/pkg/errdefs"
)

// Parameter names recognised by the engine and the built-in operations.
const (
	ParamWhere              = "where"
	ParamWithin             = "within"
	ParamSequenceCollection = "sequenceCollection"
	ParamMethod             = "method"
	ParamPeriod             = "period"
	ParamMaxDistance        = "maxDistance"
	ParamSourceData         = "sourceData"
	ParamTargetData         = "targetData"
	ParamArgument           = "argument"
	ParamProperty           = "property"
	ParamMode               = "mode"
)

// Params is the named parameter mapping of a task.
type Params map[string]any

// Has reports whether key is set to a non-nil value.
func (p Params) Has(key string) bool {
	v, ok := p[key]
	return ok && v != nil
}

// String returns a required string parameter.
func (p Params) String(key string) (string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return "", missingParam(key)
	}
	switch s := v.(type) {
	case string:
		if s == "" {
			return "", missingParam(key)
		}
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	case float64, int, int64:
		return fmt.Sprint(s), nil
	default:
		return "", invalidParam(key, v)
	}
}

// StringOr returns a string parameter or def when it is absent.
func (p Params) StringOr(key, def string) string {
	if !p.Has(key) {
		return def
	}
	s, err := p.String(key)
	if err != nil {
		return def
	}
	return s
}

// Strings returns a list parameter. A single string is a one-element list and
// a comma separated string is split.
func (p Params) Strings(key string) ([]string, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, missingParam(key)
	}
	var out []string
	switch list := v.(type) {
	case []string:
		out = append(out, list...)
	case []any:
		for _, item := range list {
			s, ok := item.(string)
			if !ok {
				return nil, invalidParam(key, v)
			}
			out = append(out, s)
		}
	case string:
		for _, s := range strings.Split(list, ",") {
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	default:
		return nil, invalidParam(key, v)
	}
	if len(out) == 0 {
		return nil, missingParam(key)
	}
	return out, nil
}

// Float returns a numeric literal parameter.
func (p Params) Float(key string) (float64, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return 0, missingParam(key)
	}
	switch n := v.(type) {
	case float64:
		return n, nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, errdefs.NewConfigurationError(fmt.Sprintf("parameter %q is not a number: %q", key, n), err).
				WithCode(errdefs.CodeMalformedNumber)
		}
		return f, nil
	default:
		return 0, invalidParam(key, v)
	}
}

// Condition returns a condition parameter, nil when absent.
func (p Params) Condition(key string) (condition.Condition, error) {
	v, ok := p[key]
	if !ok || v == nil {
		return nil, nil
	}
	c, ok := v.(condition.Condition)
	if !ok {
		return nil, errdefs.NewTypeMismatchError(fmt.Sprintf("parameter %q is not a condition (%T)", key, v), nil)
	}
	return c, nil
}

func missingParam(key string) error {
	return errdefs.NewConfigurationError(fmt.Sprintf("missing parameter %q", key), nil).
		WithCode(errdefs.CodeInvalidParameter)
}

func invalidParam(key string, v any) error {
	return errdefs.NewConfigurationError(fmt.Sprintf("invalid value for parameter %q: %v (%T)", key, v, v), nil).
		WithCode(errdefs.CodeInvalidParameter)
}

// Task is the execution-scoped context of one operation invocation: its
// parameters, status and progress, cancellation token and the protocol line
// it came from. It is shared by reference with every worker of the batch.
type Task struct {
	ID         string
	Operation  string
	Params     Params
	SourceLine int
	Cancel     *CancelToken
	Sink       ProgressSink

	mu      sync.Mutex
	status  TaskStatus
	current int
	total   int
	message string
}

// NewTask creates a pending task with its own cancellation token.
func NewTask(operation string, params Params) *Task {
	if params == nil {
		params = Params{}
	}
	return &Task{
		ID:        uuid.New().String(),
		Operation: operation,
		Params:    params,
		Cancel:    NewCancelToken(),
		status:    TaskStatusPending,
	}
}

// WithLine sets the protocol source line used in diagnostics.
func (t *Task) WithLine(line int) *Task {
	t.SourceLine = line
	return t
}

// WithSink sets the progress sink.
func (t *Task) WithSink(sink ProgressSink) *Task {
	t.Sink = sink
	return t
}

// Status returns the current status.
func (t *Task) Status() TaskStatus {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.status
}

// Progress returns the last published (current, total).
func (t *Task) Progress() (int, int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.current, t.total
}

// Message returns the last published status text.
func (t *Task) Message() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.message
}

// setStatus and publishProgress notify the sink after releasing t.mu, so a
// sink may read the task from its callbacks.
func (t *Task) setStatus(s TaskStatus, text string) {
	t.mu.Lock()
	t.status = s
	t.message = text
	sink := t.Sink
	t.mu.Unlock()
	if sink != nil {
		sink.PublishStatus(text)
	}
}

func (t *Task) publishProgress(current, total int, text string) {
	t.mu.Lock()
	t.current, t.total = current, total
	if text != "" {
		t.message = text
	}
	sink := t.Sink
	t.mu.Unlock()
	if sink == nil {
		return
	}
	sink.PublishProgress(current, total)
	if text != "" {
		sink.PublishStatus(text)
	}
}

// stamp attaches the task's operation and source line to a classified error.
func (t *Task) stamp(err error) error {
	if e, ok := errdefs.As(err); ok {
		if e.Operation == "" {
			e.WithOperation(t.Operation)
		}
		if e.Line == 0 && t.SourceLine > 0 {
			e.WithLine(t.SourceLine)
		}
		return e
	}
	return err
}
