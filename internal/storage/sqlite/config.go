// Package sqlite implements a SQLite-backed storage.Sink.
package sqlite

import (
	"time"

	"co2load/internal/schema"
)

// Config holds SQLite sink configuration derived from storage.Config.
type Config struct {
	// DSN is a SQLite connection string or file path, e.g.:
	//   "file:co2.db?cache=shared"
	//   "co2.db"
	//   ":memory:"
	DSN string

	Table   schema.Table
	Timeout time.Duration
}
