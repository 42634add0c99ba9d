package engine

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trackforge/trackforge/pkg/condition"
	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/track"
)

func TestParams(t *testing.T) {
	p := Params{
		"name":   "signal",
		"list":   []any{"a", "b"},
		"csv":    "a, b ,,c",
		"num":    2.5,
		"int":    3,
		"text":   "4.5",
		"bad":    "four",
		"empty":  "",
		"nested": map[string]any{},
	}

	s, err := p.String("name")
	require.NoError(t, err)
	assert.Equal(t, "signal", s)

	_, err = p.String("empty")
	assert.Equal(t, errdefs.CodeInvalidParameter, errdefs.CodeOf(err))
	_, err = p.String("nested")
	assert.True(t, errdefs.IsConfiguration(err))
	assert.Equal(t, "fallback", p.StringOr("missing", "fallback"))

	list, err := p.Strings("list")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, list)
	list, err = p.Strings("csv")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, list)

	for key, want := range map[string]float64{"num": 2.5, "int": 3, "text": 4.5} {
		f, err := p.Float(key)
		require.NoError(t, err, key)
		assert.Equal(t, want, f, key)
	}
	_, err = p.Float("bad")
	assert.Equal(t, errdefs.CodeMalformedNumber, errdefs.CodeOf(err))

	c, err := p.Condition("missing")
	require.NoError(t, err)
	assert.Nil(t, c)
	assert.True(t, p.Has("num"))
	assert.False(t, p.Has("missing"))
}

func TestTaskStatus(t *testing.T) {
	for _, s := range []TaskStatus{TaskStatusSucceeded, TaskStatusFailed, TaskStatusCancelled} {
		assert.True(t, s.IsTerminal(), s)
		assert.False(t, s.IsActive(), s)
	}
	assert.True(t, TaskStatusRunning.IsActive())
	assert.NoError(t, TaskStatusCommitting.Validate())
	assert.Error(t, TaskStatus("paused").Validate())

	assert.Equal(t, TaskStatusSucceeded, statusForError(nil))
	assert.Equal(t, TaskStatusCancelled, statusForError(errdefs.NewCancellationError("x", nil)))
	assert.Equal(t, TaskStatusFailed, statusForError(errdefs.NewComputationError("x", nil)))
}

func TestNewTask(t *testing.T) {
	a := NewTask("arithmetic", nil)
	b := NewTask("arithmetic", nil)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, TaskStatusPending, a.Status())
	assert.NotNil(t, a.Params)
	assert.Equal(t, 9, a.WithLine(9).SourceLine)
}

func TestCancelToken(t *testing.T) {
	token := NewCancelToken()
	require.NoError(t, token.Check(context.Background()))

	ctx, stop := token.Bind(context.Background())
	defer stop()

	token.Cancel()
	token.Cancel()
	assert.True(t, token.Cancelled())
	assert.True(t, errdefs.IsCancellation(token.Check(context.Background())))

	select {
	case <-ctx.Done():
	case <-time.After(time.Second):
		t.Fatal("bound context was not cancelled")
	}
}

func TestCancelTokenObservesContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := NewCancelToken().Check(ctx)
	assert.True(t, errdefs.IsCancellation(err))
	assert.ErrorIs(t, err, context.Canceled)

	var nilToken *CancelToken
	assert.False(t, nilToken.Cancelled())
	assert.NotPanics(t, nilToken.Cancel)
}

func TestSharedCounters(t *testing.T) {
	c := NewSharedCounters(50)
	var wg sync.WaitGroup
	var reports []int
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Start()
			c.Complete(func(completed, _ int) { reports = append(reports, completed) })
		}()
	}
	wg.Wait()

	started, completed, total := c.Snapshot()
	assert.Equal(t, 50, started)
	assert.Equal(t, 50, completed)
	assert.Equal(t, 50, total)
	for i, r := range reports {
		assert.Equal(t, i+1, r)
	}
}

type countingResolved struct {
	value bool
	calls *int
}

func (c countingResolved) Satisfied(context.Context, condition.Point) (bool, error) {
	*c.calls++
	return c.value, nil
}

func TestGate(t *testing.T) {
	ctx := context.Background()

	var nilGate *Gate
	ok, err := nilGate.PositionSatisfies(ctx, "chr1", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = NewGate(nil, nil).PositionSatisfies(ctx, "chr1", 1)
	require.NoError(t, err)
	assert.True(t, ok)

	var whereCalls int
	gate := NewGate(countingResolved{true, &whereCalls}, countingResolved{false, new(int)})
	ok, err = gate.RegionSatisfies(ctx, "chr1", &track.Region{Start: 1, End: 5})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, whereCalls, "where must not run when within fails")

	gate = NewGate(countingResolved{false, &whereCalls}, countingResolved{true, new(int)})
	ok, err = gate.PositionSatisfies(ctx, "chr1", 3)
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 1, whereCalls)

	ok, err = gate.Within(ctx, condition.At("chr1", 3))
	require.NoError(t, err)
	assert.True(t, ok)
}

// readingSink reads the task back from inside its callbacks.
type readingSink struct {
	task  *Task
	mu    sync.Mutex
	seen  []TaskStatus
	total int
}

func (s *readingSink) PublishProgress(int, int) {
	_, total := s.task.Progress()
	s.mu.Lock()
	s.total = total
	s.mu.Unlock()
}

func (s *readingSink) PublishStatus(string) {
	status := s.task.Status()
	_ = s.task.Message()
	s.mu.Lock()
	s.seen = append(s.seen, status)
	s.mu.Unlock()
}

func TestSinkMayReadTask(t *testing.T) {
	store := fixture(t, 4)
	task := NewTask("add", nil)
	sink := &readingSink{task: task}
	task.WithSink(sink)

	done := make(chan error, 1)
	go func() {
		_, err := NewTransformEngine(store, WithParallelism(2)).RunBatch(context.Background(), task, request(nil, nil), &addOp{delta: 1})
		done <- err
	}()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("batch did not finish while the sink read the task")
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Equal(t, 4, sink.total)
	require.NotEmpty(t, sink.seen)
	assert.Equal(t, TaskStatusResolving, sink.seen[0])
	assert.Contains(t, sink.seen, TaskStatusRunning)
	assert.Equal(t, TaskStatusSucceeded, sink.seen[len(sink.seen)-1])
}
