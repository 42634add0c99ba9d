package stores

import (
	"context"
	"fmt"
	"time"

	"github.com/trackforge/trackforge/pkg/engine"
	"github.com/trackforge/trackforge/pkg/track"
)

// Driver selects the persistence backend of a store.
type Driver string

const (
	DriverMemory   Driver = "memory"
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
	DriverS3       Driver = "s3"
)

// Validate checks if the driver is known.
func (d Driver) Validate() error {
	switch d {
	case DriverMemory, DriverSQLite, DriverPostgres, DriverS3:
		return nil
	default:
		return fmt.Errorf("invalid store driver: %s", d)
	}
}

// Config selects and configures a store. Only the fields of the chosen
// driver are used.
type Config struct {
	Driver Driver `json:"driver" yaml:"driver"`

	// SQLite
	Path            string        `json:"path,omitempty" yaml:"path,omitempty"`
	MaxOpenConns    int           `json:"max_open_conns,omitempty" yaml:"max_open_conns,omitempty"`
	MaxIdleConns    int           `json:"max_idle_conns,omitempty" yaml:"max_idle_conns,omitempty"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime,omitempty" yaml:"conn_max_lifetime,omitempty"`

	// Postgres
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty"`

	// S3
	Bucket          string `json:"bucket,omitempty" yaml:"bucket,omitempty"`
	Prefix          string `json:"prefix,omitempty" yaml:"prefix,omitempty"`
	Region          string `json:"region,omitempty" yaml:"region,omitempty"`
	Endpoint        string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	PathStyle       bool   `json:"path_style,omitempty" yaml:"path_style,omitempty"`
	AccessKeyID     string `json:"access_key_id,omitempty" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `json:"secret_access_key,omitempty" yaml:"secret_access_key,omitempty"`
}

// Backend persists the objects of a PersistentStore.
type Backend interface {
	// Load returns every persisted object.
	Load(ctx context.Context) ([]track.Object, error)

	// Save inserts or replaces one object.
	Save(ctx context.Context, obj track.Object) error

	// Delete removes the object stored under name. Deleting a missing object is not an error.
	Delete(ctx context.Context, name string) error

	Close() error
}

// Store is a data store the CLI can open, list and close.
type Store interface {
	engine.DataStore

	// Names returns every registered name, sorted.
	Names() []string

	Close() error
}

// ObjectInfo summarizes a stored object for listings.
type ObjectInfo struct {
	Name      string     `json:"name"`
	Kind      track.Kind `json:"kind"`
	Sequences int        `json:"sequences"`
	Derived   bool       `json:"derived"`
}

type derivedFlag interface {
	IsDerived() bool
}

// Describe summarizes obj.
func Describe(obj track.Object) ObjectInfo {
	info := ObjectInfo{Name: obj.Name(), Kind: obj.Kind()}
	switch o := obj.(type) {
	case track.Dataset:
		info.Sequences = len(o.SequenceNames())
	case *track.SequenceCollection:
		info.Sequences = o.Len()
	}
	if d, ok := obj.(derivedFlag); ok {
		info.Derived = d.IsDerived()
	}
	return info
}
