// Package stores provides the named object registry the engine works on.
// MemoryStore keeps objects in process; PersistentStore mirrors it to a
// SQLite, Postgres or S3 backend and, with SQLite, keeps a batch run history.
package stores
