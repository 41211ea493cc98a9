// Package mysql registers the MySQL sink with the storage factory.
package mysql

import (
	"context"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"

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

// wrappedRepo adapts *mysql.Repository to storage.Sink and provides Close.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

// Close closes the underlying connection pool.
func (w *wrappedRepo) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

// BuildDSN renders a go-sql-driver DSN from discrete settings. An explicit
// cfg.DSN wins.
func BuildDSN(cfg storage.Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	c := mysql.NewConfig()
	c.User = cfg.Username
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = net.JoinHostPort(cfg.Host, cfg.Port)
	c.DBName = cfg.Database
	c.Timeout = cfg.Timeout
	c.ParseTime = true
	return c.FormatDSN()
}

// MapType maps a field type to its MySQL column type. Text is bounded so it
// can take part in the primary key.
func MapType(t schema.Type) string {
	switch t {
	case schema.Int:
		return "INT"
	case schema.SmallInt:
		return "SMALLINT"
	case schema.Float:
		return "DOUBLE"
	case schema.Date:
		return "DATE"
	default:
		return "VARCHAR(191)"
	}
}

// Dialect is MySQL's CREATE TABLE flavour.
var Dialect = ddl.Dialect{
	Name:        "mysql",
	Quote:       myIdent,
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

// init registers the "mysql" backend with the factory.
func init() {
	storage.Register("mysql", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
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

	storage.RegisterDDL("mysql", func(ctx context.Context, s storage.Sink, table schema.Table) error {
		stmts, err := CreateTableSQL(table)
		if err != nil {
			return err
		}
		return storage.ExecAll(ctx, s, stmts)
	})
}
