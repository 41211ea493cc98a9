package storage

import (
	"context"
	"fmt"
	"sync"

	"co2load/internal/schema"
)

// DDLBootstrapper renders the backend's CREATE TABLE statements for table
// and applies them through sink.Exec.
type DDLBootstrapper func(ctx context.Context, sink Sink, table schema.Table) error

var (
	ddlMu  sync.RWMutex
	ddlFns = map[string]DDLBootstrapper{}
)

// RegisterDDL registers (or replaces) the DDLBootstrapper for kind. It is
// typically called from backend packages' init() functions.
func RegisterDDL(kind string, fn DDLBootstrapper) {
	ddlMu.Lock()
	defer ddlMu.Unlock()
	ddlFns[kind] = fn
}

// EnsureTable creates table (and its partitions, where supported) on an
// already-open sink. Statements are idempotent on every backend.
func EnsureTable(ctx context.Context, kind string, sink Sink, table schema.Table) error {
	ddlMu.RLock()
	fn, ok := ddlFns[kind]
	ddlMu.RUnlock()
	if !ok {
		return fmt.Errorf("no DDL bootstrapper registered for storage.kind=%q", kind)
	}
	if err := fn(ctx, sink, table); err != nil {
		return fmt.Errorf("ensure table %s: %w", table.Name, err)
	}
	return nil
}

// ExecAll runs stmts in order, stopping at the first error.
func ExecAll(ctx context.Context, sink Sink, stmts []string) error {
	for i, s := range stmts {
		if err := sink.Exec(ctx, s); err != nil {
			return fmt.Errorf("statement %d: %w", i+1, err)
		}
	}
	return nil
}
