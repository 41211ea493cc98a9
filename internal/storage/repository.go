// Package storage holds the backend-agnostic contract every datastore sink
// implements, a factory registry keyed by backend kind, and a registry of
// DDL bootstrappers. Backends register themselves from init; importing
// co2load/internal/storage/all enables all of them.
package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"co2load/internal/loader"
	"co2load/internal/schema"
)

// Config is the backend-neutral description of a sink to open. The sink is
// bound to Table for its whole life.
type Config struct {
	Kind string

	Host     string
	Port     string
	Database string // keyspace for cassandra, file path for sqlite
	Username string
	Password string
	Timeout  time.Duration

	// DSN, when set, is passed to the driver as-is and the discrete fields
	// above are ignored. Cassandra has no DSN form.
	DSN string

	Table schema.Table
}

// Sink is what the loader flushes batches into.
type Sink interface {
	loader.Sink

	// Encoder returns the row encoder matching this sink's flush format for
	// the bound table.
	Encoder() loader.Encoder

	// DefaultBudget is the batch limit the backend works best with.
	DefaultBudget() loader.Budget

	// Exec runs one statement, typically DDL.
	Exec(ctx context.Context, stmt string) error

	Close() error
}

// TableLister is implemented by sinks that can enumerate existing tables.
type TableLister interface {
	ListTables(ctx context.Context) ([]string, error)
}

// Sampler is implemented by sinks that can read back stored rows.
type Sampler interface {
	Sample(ctx context.Context, n int) ([]loader.Row, error)
}

// Versioner is implemented by sinks that can report the server version.
type Versioner interface {
	ServerVersion(ctx context.Context) (string, error)
}

// Factory opens a sink for cfg.
type Factory func(ctx context.Context, cfg Config) (Sink, error)

var (
	mu        sync.RWMutex
	factories = map[string]Factory{}
)

// Register installs (or replaces) the factory for kind.
func Register(kind string, f Factory) {
	mu.Lock()
	defer mu.Unlock()
	factories[kind] = f
}

// New opens a sink with the factory registered for cfg.Kind.
func New(ctx context.Context, cfg Config) (Sink, error) {
	mu.RLock()
	f, ok := factories[cfg.Kind]
	mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("unsupported storage.kind=%s", cfg.Kind)
	}
	return f(ctx, cfg)
}

// ListKinds returns a sorted snapshot of the registered kinds.
func ListKinds() []string {
	mu.RLock()
	defer mu.RUnlock()
	out := make([]string, 0, len(factories))
	for k := range factories {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
