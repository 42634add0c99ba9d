package stores

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/trackforge/trackforge/pkg/errdefs"
	"github.com/trackforge/trackforge/pkg/track"
)

// MemoryStore is the in-process object registry. Publish and Remove swap
// whole entries under the write lock, so readers see an object either fully
// before or fully after a publish.
type MemoryStore struct {
	mu      sync.RWMutex
	objects map[string]track.Object
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{objects: make(map[string]track.Object)}
}

// Lookup returns the object registered under name.
func (s *MemoryStore) Lookup(name string) (track.Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.objects[name]
	return obj, ok
}

// Exists reports whether name is registered.
func (s *MemoryStore) Exists(name string) bool {
	_, ok := s.Lookup(name)
	return ok
}

// Clone returns a deep copy of ds.
func (s *MemoryStore) Clone(ds track.Dataset) track.Dataset {
	return ds.Clone().(track.Dataset)
}

// Publish inserts or replaces obj under its name.
func (s *MemoryStore) Publish(_ context.Context, obj track.Object) error {
	if obj == nil || obj.Name() == "" {
		return errdefs.NewConfigurationError("cannot publish an unnamed object", nil).
			WithCode(errdefs.CodeInvalidParameter)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[obj.Name()] = obj
	return nil
}

// Remove deletes the object registered under name.
func (s *MemoryStore) Remove(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.objects[name]; !ok {
		return errdefs.NewConfigurationError(fmt.Sprintf("object %q not found", name), nil).
			WithCode(errdefs.CodeNotFound)
	}
	delete(s.objects, name)
	return nil
}

// AllOfKind returns every object of the given kind, ordered by name.
func (s *MemoryStore) AllOfKind(kind track.Kind) []track.Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []track.Object
	for _, obj := range s.objects {
		if obj.Kind() == kind {
			out = append(out, obj)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name() < out[j].Name() })
	return out
}

// Names returns every registered name, sorted.
func (s *MemoryStore) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.objects))
	for name := range s.objects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }

func (s *MemoryStore) replaceAll(objs []track.Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects = make(map[string]track.Object, len(objs))
	for _, obj := range objs {
		s.objects[obj.Name()] = obj
	}
}
