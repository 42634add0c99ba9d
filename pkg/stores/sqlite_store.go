package stores

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/sqlite"
	"github.com/golang-migrate/migrate/v4/source/iofs"

	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/track"

	// SQLite driver
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// SQLiteBackend persists objects and batch runs in a SQLite database.
type SQLiteBackend struct {
	db  *sql.DB
	cfg Config
}

// NewSQLiteBackend creates a backend for cfg.Path. Call Init and Migrate before use.
func NewSQLiteBackend(cfg Config) (*SQLiteBackend, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("database path is required")
	}

	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 5
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 5 * time.Minute
	}
	// every connection to :memory: is a separate database
	if cfg.Path == ":memory:" {
		cfg.MaxOpenConns = 1
		cfg.MaxIdleConns = 1
	}

	return &SQLiteBackend{cfg: cfg}, nil
}

// OpenSQLiteBackend creates, initializes and migrates a backend.
func OpenSQLiteBackend(ctx context.Context, cfg Config) (*SQLiteBackend, error) {
	b, err := NewSQLiteBackend(cfg)
	if err != nil {
		return nil, err
	}
	if err := b.Init(ctx); err != nil {
		return nil, err
	}
	if err := b.Migrate(ctx); err != nil {
		_ = b.Close()
		return nil, err
	}
	return b, nil
}

// Init opens the database connection and enables WAL mode.
func (s *SQLiteBackend) Init(ctx context.Context) error {
	dsn := fmt.Sprintf("%s?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_txlock=immediate", s.cfg.Path)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(s.cfg.MaxOpenConns)
	db.SetMaxIdleConns(s.cfg.MaxIdleConns)
	db.SetConnMaxLifetime(s.cfg.ConnMaxLifetime)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return fmt.Errorf("failed to ping database: %w", err)
	}

	s.db = db
	return nil
}

// Close closes the database connection.
func (s *SQLiteBackend) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Migrate runs the embedded schema migrations.
func (s *SQLiteBackend) Migrate(_ context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	sourceDriver, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("failed to create migration source: %w", err)
	}

	driver, err := sqlite.WithInstance(s.db, &sqlite.Config{})
	if err != nil {
		return fmt.Errorf("failed to create database driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", sourceDriver, "sqlite", driver)
	if err != nil {
		return fmt.Errorf("failed to create migration instance: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("failed to run migrations: %w", err)
	}

	return nil
}

// Load returns every stored object ordered by name.
func (s *SQLiteBackend) Load(ctx context.Context) ([]track.Object, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT name, payload FROM objects ORDER BY name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer rows.Close()

	var objs []track.Object
	for rows.Next() {
		var name string
		var payload []byte
		if err := rows.Scan(&name, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan object: %w", err)
		}
		obj, err := track.Unmarshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decode object %s: %w", name, err)
		}
		objs = append(objs, obj)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating objects: %w", err)
	}

	return objs, nil
}

// Save inserts or replaces an object.
func (s *SQLiteBackend) Save(ctx context.Context, obj track.Object) error {
	payload, err := track.Marshal(obj)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO objects (name, kind, derived, payload, updated_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			kind = excluded.kind,
			derived = excluded.derived,
			payload = excluded.payload,
			updated_at = excluded.updated_at
	`

	_, err = s.db.ExecContext(ctx, query, obj.Name(), string(obj.Kind()), Describe(obj).Derived, payload, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to save object: %w", err)
	}

	return nil
}

// Delete removes an object.
func (s *SQLiteBackend) Delete(ctx context.Context, name string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE name = ?`, name); err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// CreateRun records the start of a batch.
func (s *SQLiteBackend) CreateRun(ctx context.Context, rec *engine.BatchRecord) error {
	return s.upsertRun(ctx, rec)
}

// FinishRun records the outcome of a batch. Batches that failed before
// dispatch were never created and are inserted here.
func (s *SQLiteBackend) FinishRun(ctx context.Context, rec *engine.BatchRecord) error {
	return s.upsertRun(ctx, rec)
}

func (s *SQLiteBackend) upsertRun(ctx context.Context, rec *engine.BatchRecord) error {
	sources, err := json.Marshal(rec.Sources)
	if err != nil {
		return fmt.Errorf("failed to encode sources: %w", err)
	}

	query := `
		INSERT INTO runs (id, operation, sources, target, collection, status, total, completed, line, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status,
			total = excluded.total,
			completed = excluded.completed,
			line = excluded.line,
			error = excluded.error,
			finished_at = excluded.finished_at
	`

	var errMsg *string
	if rec.Error != "" {
		errMsg = &rec.Error
	}
	startedAt := rec.StartedAt
	if startedAt.IsZero() {
		startedAt = time.Now()
	}

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.Operation,
		string(sources),
		rec.Target,
		rec.Collection,
		string(rec.Status),
		rec.Total,
		rec.Completed,
		rec.Line,
		errMsg,
		startedAt.UTC(),
		rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to record run: %w", err)
	}

	return nil
}

const runColumns = `id, operation, sources, target, collection, status, total, completed, line, error, started_at, finished_at`

// GetRun retrieves a batch run by ID.
func (s *SQLiteBackend) GetRun(ctx context.Context, id string) (*engine.BatchRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	rec, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("run not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return rec, nil
}

// ListRuns lists batch runs, most recent first.
func (s *SQLiteBackend) ListRuns(ctx context.Context, limit, offset int) ([]*engine.BatchRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC LIMIT ? OFFSET ?`, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	runs := []*engine.BatchRecord{}
	for rows.Next() {
		rec, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating runs: %w", err)
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*engine.BatchRecord, error) {
	rec := &engine.BatchRecord{}
	var sources, status string
	var errMsg sql.NullString
	var finished sql.NullTime
	err := row.Scan(
		&rec.ID,
		&rec.Operation,
		&sources,
		&rec.Target,
		&rec.Collection,
		&status,
		&rec.Total,
		&rec.Completed,
		&rec.Line,
		&errMsg,
		&rec.StartedAt,
		&finished,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(sources), &rec.Sources); err != nil {
		return nil, fmt.Errorf("failed to decode sources: %w", err)
	}
	rec.Status = engine.TaskStatus(status)
	rec.Error = errMsg.String
	if finished.Valid {
		rec.FinishedAt = &finished.Time
	}
	return rec, nil
}

// HealthCheck verifies the database connection is healthy.
func (s *SQLiteBackend) HealthCheck(ctx context.Context) error {
	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}

	return s.db.PingContext(ctx)
}

var _ engine.RunRecorder = (*SQLiteBackend)(nil)
