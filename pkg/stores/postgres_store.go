package stores

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib" // register pgx as a database/sql driver

	"github.com/trackforge/trackforge/pkg/track"
)

const (
	postgresDriver = "pgx"
	defaultDSN     = "postgres://localhost/trackforge?sslmode=disable"
)

var (
	sqlOpen = sql.Open
	openMu  sync.Mutex
)

// PostgresBackend keeps one JSONB row per object in a Postgres table.
type PostgresBackend struct {
	db *sql.DB
}

// NewPostgresBackend connects to dsn (or the default local DSN) and ensures
// the objects table exists.
func NewPostgresBackend(ctx context.Context, dsn string) (*PostgresBackend, error) {
	if dsn == "" {
		dsn = defaultDSN
	}
	openMu.Lock()
	db, err := sqlOpen(postgresDriver, dsn)
	openMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := ensureObjectTable(ctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresBackend{db: db}, nil
}

func ensureObjectTable(ctx context.Context, db *sql.DB) error {
	ddl := `CREATE TABLE IF NOT EXISTS trackforge_objects (
		name TEXT PRIMARY KEY,
		kind TEXT NOT NULL,
		payload JSONB NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`
	if _, err := db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("ensure objects table: %w", err)
	}
	return nil
}

// Load implements Backend.
func (p *PostgresBackend) Load(ctx context.Context) ([]track.Object, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT name, payload FROM trackforge_objects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("select objects: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var objs []track.Object
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("scan object: %w", err)
		}
		obj, err := track.Unmarshal(payload)
		if err != nil {
			return nil, fmt.Errorf("decode object %s: %w", name, err)
		}
		objs = append(objs, obj)
	}
	return objs, rows.Err()
}

// Save implements Backend.
func (p *PostgresBackend) Save(ctx context.Context, obj track.Object) error {
	payload, err := track.Marshal(obj)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO trackforge_objects (name, kind, payload, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET kind = EXCLUDED.kind, payload = EXCLUDED.payload, updated_at = EXCLUDED.updated_at`,
		obj.Name(), string(obj.Kind()), payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("upsert object %s: %w", obj.Name(), err)
	}
	return nil
}

// Delete implements Backend.
func (p *PostgresBackend) Delete(ctx context.Context, name string) error {
	if _, err := p.db.ExecContext(ctx, `DELETE FROM trackforge_objects WHERE name = $1`, name); err != nil {
		return fmt.Errorf("delete object %s: %w", name, err)
	}
	return nil
}

// DB exposes the underlying sql.DB for integration testing hooks.
func (p *PostgresBackend) DB() *sql.DB { return p.db }

// Close implements Backend.
func (p *PostgresBackend) Close() error { return p.db.Close() }
