package stores

import (
	"context"
	"fmt"
	"sync"

	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/telemetry"
	"github.com/trackforge/trackforge/pkg/track"
)

// PersistentStore is a MemoryStore mirrored to a Backend. Writes reach the
// backend first; the in-memory entry changes only when the backend accepted
// them.
type PersistentStore struct {
	*MemoryStore
	backend Backend

	// writeMu keeps the backend and the registry in the same write order.
	writeMu sync.Mutex
}

// NewPersistentStore loads every object of backend into a new store.
func NewPersistentStore(ctx context.Context, backend Backend) (*PersistentStore, error) {
	objs, err := backend.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load objects: %w", err)
	}
	mem := NewMemoryStore()
	mem.replaceAll(objs)
	telemetry.FromContext(ctx).Debugf("loaded %d objects from backend", len(objs))
	return &PersistentStore{MemoryStore: mem, backend: backend}, nil
}

// Backend returns the underlying backend.
func (s *PersistentStore) Backend() Backend { return s.backend }

// Publish persists obj and then swaps it into the registry. A persistence
// failure leaves the registry untouched.
func (s *PersistentStore) Publish(ctx context.Context, obj track.Object) error {
	if obj == nil || obj.Name() == "" {
		return s.MemoryStore.Publish(ctx, obj)
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.backend.Save(ctx, obj); err != nil {
		return errdefs.NewConsistencyError(fmt.Sprintf("failed to persist %s", obj.Name()), err).
			WithCode(errdefs.CodePersistFailed)
	}
	return s.MemoryStore.Publish(ctx, obj)
}

// Remove deletes name from the backend and then from the registry.
func (s *PersistentStore) Remove(ctx context.Context, name string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if !s.Exists(name) {
		return s.MemoryStore.Remove(ctx, name)
	}
	if err := s.backend.Delete(ctx, name); err != nil {
		return errdefs.NewConsistencyError(fmt.Sprintf("failed to delete %s", name), err).
			WithCode(errdefs.CodePersistFailed)
	}
	return s.MemoryStore.Remove(ctx, name)
}

// CreateRun forwards to the backend when it keeps a run history.
func (s *PersistentStore) CreateRun(ctx context.Context, rec *engine.BatchRecord) error {
	if r, ok := s.backend.(engine.RunRecorder); ok {
		return r.CreateRun(ctx, rec)
	}
	return nil
}

// FinishRun forwards to the backend when it keeps a run history.
func (s *PersistentStore) FinishRun(ctx context.Context, rec *engine.BatchRecord) error {
	if r, ok := s.backend.(engine.RunRecorder); ok {
		return r.FinishRun(ctx, rec)
	}
	return nil
}

// Close closes the backend.
func (s *PersistentStore) Close() error {
	return s.backend.Close()
}

var (
	_ Store              = (*MemoryStore)(nil)
	_ Store              = (*PersistentStore)(nil)
	_ engine.RunRecorder = (*PersistentStore)(nil)
)
