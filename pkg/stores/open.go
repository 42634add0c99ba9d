package stores

import (
	"context"
	"fmt"
)

// Open creates the store selected by cfg.Driver. An empty driver opens a
// memory store.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if cfg.Driver == "" {
		cfg.Driver = DriverMemory
	}
	if err := cfg.Driver.Validate(); err != nil {
		return nil, err
	}

	var backend Backend
	var err error
	switch cfg.Driver {
	case DriverMemory:
		return NewMemoryStore(), nil
	case DriverSQLite:
		backend, err = OpenSQLiteBackend(ctx, cfg)
	case DriverPostgres:
		backend, err = NewPostgresBackend(ctx, cfg.DSN)
	case DriverS3:
		backend, err = NewS3Backend(ctx, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Driver, err)
	}

	store, err := NewPersistentStore(ctx, backend)
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return store, nil
}
