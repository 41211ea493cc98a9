// Package cassandra registers the Cassandra sink with the storage factory.
package cassandra

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"co2load/internal/schema"
	"co2load/internal/storage"
)

// newRepository is a test hook that points to NewRepository by default.
// Tests may replace this variable to avoid real cluster connections.
var newRepository = NewRepository

var (
	_ storage.Sink        = (*wrappedRepo)(nil)
	_ storage.TableLister = (*wrappedRepo)(nil)
	_ storage.Sampler     = (*wrappedRepo)(nil)
	_ storage.Versioner   = (*wrappedRepo)(nil)
)

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

// configFrom maps storage.Config onto the cluster settings. Host may list
// several contact points separated by commas.
func configFrom(cfg storage.Config) (Config, error) {
	if cfg.DSN != "" {
		return Config{}, fmt.Errorf("cassandra: DSN is not supported; use host/port/keyspace")
	}
	var hosts []string
	for _, h := range strings.Split(cfg.Host, ",") {
		if h = strings.TrimSpace(h); h != "" {
			hosts = append(hosts, h)
		}
	}
	port := 0
	if cfg.Port != "" {
		p, err := strconv.Atoi(cfg.Port)
		if err != nil {
			return Config{}, fmt.Errorf("cassandra: port %q: %w", cfg.Port, err)
		}
		port = p
	}
	return Config{
		Hosts:    hosts,
		Port:     port,
		Keyspace: cfg.Database,
		Username: cfg.Username,
		Password: cfg.Password,
		Timeout:  cfg.Timeout,
		Table:    cfg.Table,
	}, nil
}

func init() {
	storage.Register("cassandra", func(ctx context.Context, cfg storage.Config) (storage.Sink, error) {
		c, err := configFrom(cfg)
		if err != nil {
			return nil, err
		}
		r, closeFn, err := newRepository(ctx, c)
		if err != nil {
			return nil, err
		}
		return &wrappedRepo{Repository: r, closeFn: closeFn}, nil
	})

	storage.RegisterDDL("cassandra", func(ctx context.Context, s storage.Sink, table schema.Table) error {
		stmts, err := CreateTableSQL(table)
		if err != nil {
			return err
		}
		return storage.ExecAll(ctx, s, stmts)
	})
}
