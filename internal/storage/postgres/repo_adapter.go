// Package postgres registers the Postgres sink with the storage factory and
// its DDL bootstrapper, so callers can stay backend-agnostic.
package postgres

import (
	"context"
	"fmt"
	"net"
	"net/url"

	"co2load/internal/schema"
	"co2load/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real DB connections.
var newRepository = NewRepository

// wrappedRepo implements storage.Sink by delegating to the concrete
// *postgres.Repository while providing a Close method that calls the close
// function returned by NewRepository.
type wrappedRepo struct {
	*Repository
	closeFn func()
}

var (
	_ storage.Sink        = (*wrappedRepo)(nil)
	_ storage.TableLister = (*wrappedRepo)(nil)
	_ storage.Sampler     = (*wrappedRepo)(nil)
	_ storage.Versioner   = (*wrappedRepo)(nil)
)

// Close implements storage.Sink.Close.
func (w *wrappedRepo) Close() error {
	if w.closeFn != nil {
		w.closeFn()
	}
	return nil
}

// BuildDSN renders a postgres:// URL from discrete settings. An explicit
// cfg.DSN wins.
func BuildDSN(cfg storage.Config) string {
	if cfg.DSN != "" {
		return cfg.DSN
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.Username, cfg.Password),
		Host:   net.JoinHostPort(cfg.Host, cfg.Port),
		Path:   "/" + cfg.Database,
	}
	if cfg.Timeout > 0 {
		q := url.Values{}
		q.Set("connect_timeout", fmt.Sprint(int(cfg.Timeout.Seconds())))
		u.RawQuery = q.Encode()
	}
	return u.String()
}

func init() {
	storage.Register("postgres", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
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

	storage.RegisterDDL("postgres", func(ctx context.Context, s storage.Sink, table schema.Table) error {
		stmts, err := CreateTableSQL(table)
		if err != nil {
			return err
		}
		if err := storage.ExecAll(ctx, s, stmts); err != nil {
			return fmt.Errorf("apply DDL: %w", err)
		}
		return nil
	})
}
