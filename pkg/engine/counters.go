package engine

import (
	"context"
	"sync"

	"github.com/trackforge/trackforge/pkg/errdefs"
)

// SharedCounters aggregates progress across the workers of one batch.
type SharedCounters struct {
	mu        sync.Mutex
	started   int
	completed int
	total     int
}

// NewSharedCounters creates counters for total units.
func NewSharedCounters(total int) *SharedCounters {
	return &SharedCounters{total: total}
}

// Start records that a unit began.
func (c *SharedCounters) Start() {
	c.mu.Lock()
	c.started++
	c.mu.Unlock()
}

// Complete records a finished unit and calls report with the new totals while
// still holding the lock, so reports are delivered in completion order.
func (c *SharedCounters) Complete(report func(completed, total int)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.completed++
	if report != nil {
		report(c.completed, c.total)
	}
}

// Snapshot returns (started, completed, total).
func (c *SharedCounters) Snapshot() (int, int, int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.started, c.completed, c.total
}

// CancelToken is the single cooperative cancellation signal of a task. It can
// be set externally and is also tripped by the cancellation of the context
// passed to Check.
type CancelToken struct {
	once sync.Once
	done chan struct{}
}

// NewCancelToken creates an untripped token.
func NewCancelToken() *CancelToken {
	return &CancelToken{done: make(chan struct{})}
}

// Cancel trips the token. Safe to call more than once and from any goroutine.
func (t *CancelToken) Cancel() {
	if t == nil {
		return
	}
	t.once.Do(func() { close(t.done) })
}

// Done is closed once the token is tripped.
func (t *CancelToken) Done() <-chan struct{} {
	if t == nil {
		return nil
	}
	return t.done
}

// Cancelled reports whether the token was tripped.
func (t *CancelToken) Cancelled() bool {
	if t == nil {
		return false
	}
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Check returns a CancellationError if the token is tripped or ctx is done.
func (t *CancelToken) Check(ctx context.Context) error {
	if t.Cancelled() {
		return errdefs.NewCancellationError("operation cancelled", nil)
	}
	if err := ctx.Err(); err != nil {
		return errdefs.NewCancellationError("operation interrupted", err)
	}
	return nil
}

// Bind returns a context that is cancelled when either ctx is done or the
// token trips. Calling the returned cancel function releases the watcher.
func (t *CancelToken) Bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	if t == nil {
		return ctx, cancel
	}
	go func() {
		select {
		case <-t.done:
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}
