// Package mssql registers the MSSQL sink with the storage factory.
package mssql

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"strings"

	"co2load/internal/ddl"
	"co2load/internal/schema"
	"co2load/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

var (
	_ storage.Sink        = (*wrappedRepo)(nil)
	_ storage.TableLister = (*wrappedRepo)(nil)
	_ storage.Sampler     = (*wrappedRepo)(nil)
	_ storage.Versioner   = (*wrappedRepo)(nil)
)

// wrappedRepo adapts *mssql.Repository to storage.Sink and provides Close.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

func (w *wrappedRepo) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

// BuildDSN renders a sqlserver:// URL from discrete settings. An explicit
// cfg.DSN wins.
func BuildDSN(cfg storage.Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	q := url.Values{}
	q.Set("database", cfg.Database)
	if cfg.Timeout > 0 {
		q.Set("connection timeout", fmt.Sprint(int(cfg.Timeout.Seconds())))
	}
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.Username, cfg.Password),
		Host:     net.JoinHostPort(cfg.Host, cfg.Port),
		RawQuery: q.Encode(),
	}
	return u.String()
}

// MapType maps a field type to its SQL Server column type. Text is bounded
// so it can take part in the primary key.
func MapType(t schema.Type) string {
	switch t {
	case schema.Int:
		return "INT"
	case schema.SmallInt:
		return "SMALLINT"
	case schema.Float:
		return "FLOAT"
	case schema.Date:
		return "DATE"
	default:
		return "NVARCHAR(255)"
	}
}

// Dialect is SQL Server's CREATE TABLE flavour. There is no IF NOT EXISTS,
// so the statement is guarded by OBJECT_ID.
var Dialect = ddl.Dialect{
	Name:  "mssql",
	Quote: msIdent,
	Guard: func(table, stmt string) string {
		lit := "N'" + strings.ReplaceAll(table, "'", "''") + "'"
		return "IF OBJECT_ID(" + lit + ", N'U') IS NULL\n" + stmt
	},
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
	storage.Register("mssql", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		r, closeFn, err := newRepository(ctx, Config{
			DSN:     BuildDSN(cfg),
			Table:   cfg.Table,
			Timeout: cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("mssql", func(ctx context.Context, s storage.Sink, table schema.Table) error {
		stmts, err := CreateTableSQL(table)
		if err != nil {
			return err
		}
		return storage.ExecAll(ctx, s, stmts)
	})
}
