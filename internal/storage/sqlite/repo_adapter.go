package sqlite

import (
	"context"
	"fmt"

	"co2load/internal/ddl"
	"co2load/internal/loader"
	"co2load/internal/schema"
	"co2load/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo adapts *sqlite.Repository to storage.Sink, adding a Close
// method that calls the cleanup function returned by NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

// Close implements storage.Sink.Close.
func (w *wrappedRepo) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

var (
	_ storage.Sink        = (*wrappedRepo)(nil)
	_ storage.TableLister = (*wrappedRepo)(nil)
	_ storage.Sampler     = (*wrappedRepo)(nil)
	_ storage.Versioner   = (*wrappedRepo)(nil)
)

// MapType maps a field type to its SQLite column type.
func MapType(t schema.Type) string {
	switch t {
	case schema.Int, schema.SmallInt:
		return "INTEGER"
	case schema.Float:
		return "REAL"
	default:
		return "TEXT"
	}
}

// Dialect is SQLite's CREATE TABLE flavour. SQLite has no list partitioning.
var Dialect = ddl.Dialect{
	Name:        "sqlite",
	Quote:       loader.QuoteIdent,
	IfNotExists: true,
}

// CreateTableSQL renders the DDL for table.
func CreateTableSQL(table schema.Table) ([]string, error) {
	td, err := ddl.FromTable(table, MapType)
	if err != nil {
		return nil, fmt.Errorf("infer table definition: %w", err)
	}
	return ddl.BuildCreateTableSQL(td, Dialect)
}

func init() {
	storage.Register("sqlite", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		dsn := cfg.DSN
		if dsn == "" {
			dsn = cfg.Database
		}
		r, closeFn, err := newRepository(ctx, Config{DSN: dsn, Table: cfg.Table, Timeout: cfg.Timeout})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("sqlite", func(ctx context.Context, s storage.Sink, table schema.Table) error {
		stmts, err := CreateTableSQL(table)
		if err != nil {
			return err
		}
		return storage.ExecAll(ctx, s, stmts)
	})
}
