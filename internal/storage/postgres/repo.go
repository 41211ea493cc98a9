// Package postgres implements a Postgres sink using pgx v5. Each batch is
// sent as one pgx.Batch of parameterized INSERTs inside one transaction, so
// a batch lands entirely or not at all.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"co2load/internal/loader"
	"co2load/internal/schema"
	"co2load/internal/storage"
)

// DefaultBatchRows is the default row budget per batch.
const DefaultBatchRows = 5000

// Config holds Postgres sink configuration.
type Config struct {
	DSN     string // connection string for pgxpool
	Table   schema.Table
	Timeout time.Duration
}

// Repository is a Postgres-backed sink bound to one table.
type Repository struct {
	pool    *pgxpool.Pool
	cfg     Config
	columns []string
	insert  string
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if err := cfg.Table.Validate(); err != nil {
		return nil, nil, fmt.Errorf("postgres: %w", err)
	}
	pcfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool config: %w", err)
	}
	if cfg.Timeout > 0 {
		pcfg.ConnConfig.ConnectTimeout = cfg.Timeout
	}
	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, nil, fmt.Errorf("pgxpool: %w", err)
	}
	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("postgres ping: %w", err)
	}
	close := func() { pool.Close() }
	cols := cfg.Table.Columns()
	return &Repository{
		pool:    pool,
		cfg:     cfg,
		columns: cols,
		insert:  insertSQL(cfg.Table.Name, cols),
	}, close, nil
}

// insertSQL renders INSERT INTO "t" ("a", "b") VALUES ($1, $2).
func insertSQL(table string, columns []string) string {
	ph := make([]string, len(columns))
	for i := range columns {
		ph[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		pgFQN(table), strings.Join(mapIdent(columns), ", "), strings.Join(ph, ", "))
}

// Encoder returns a bind-value encoder for the bound table.
func (r *Repository) Encoder() loader.Encoder { return loader.NewValueEncoder(r.cfg.Table.Schema) }

// DefaultBudget implements storage.Sink.
func (r *Repository) DefaultBudget() loader.Budget { return loader.Rows(DefaultBatchRows) }

// Flush implements loader.Sink.
func (r *Repository) Flush(ctx context.Context, b *loader.Batch) error {
	return storage.CopyBatch(ctx, r.CopyFrom, r.columns, b)
}

// CopyFrom queues one INSERT per row into a pgx.Batch and sends it inside a
// transaction. Any failed row rolls back the whole batch.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	stmt := r.insert
	if !sameColumns(columns, r.columns) {
		stmt = insertSQL(r.cfg.Table.Name, columns)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	batch := &pgx.Batch{}
	for _, row := range rows {
		batch.Queue(stmt, row...)
	}
	br := tx.SendBatch(ctx, batch)
	var inserted int64
	for i := range rows {
		tag, err := br.Exec()
		if err != nil {
			_ = br.Close()
			return 0, fmt.Errorf("insert row %d of batch: %w", i+1, describe(err))
		}
		inserted += tag.RowsAffected()
	}
	if err := br.Close(); err != nil {
		return 0, fmt.Errorf("close batch: %w", describe(err))
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", describe(err))
	}
	return inserted, nil
}

// describe adds the server-side detail of a Postgres error when present.
func describe(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Detail != "" {
		return fmt.Errorf("%w (%s, SQLSTATE %s)", err, pgErr.Detail, pgErr.SQLState())
	}
	return err
}

func sameColumns(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// Exec implements storage.Sink.Exec for Postgres.
func (r *Repository) Exec(ctx context.Context, sql string) error {
	_, err := r.pool.Exec(ctx, sql)
	return err
}

// ListTables lists the base tables of the current schema.
func (r *Repository) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.pool.Query(ctx, `SELECT table_name FROM information_schema.tables
WHERE table_schema = current_schema() ORDER BY table_name`)
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	names, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return names, nil
}

// Sample reads back up to n rows of the bound table.
func (r *Repository) Sample(ctx context.Context, n int) ([]loader.Row, error) {
	q := fmt.Sprintf("SELECT %s FROM %s LIMIT %d",
		strings.Join(mapIdent(r.columns), ", "), pgFQN(r.cfg.Table.Name), n)
	rows, err := r.pool.Query(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	defer rows.Close()
	var out []loader.Row
	for rows.Next() {
		vals, err := rows.Values()
		if err != nil {
			return out, fmt.Errorf("sample: %w", err)
		}
		row := make(loader.Row, len(vals))
		for i, v := range vals {
			row[i] = storage.FormatValue(v)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// ServerVersion reports the server's version string.
func (r *Repository) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := r.pool.QueryRow(ctx, "SHOW server_version").Scan(&v); err != nil {
		return "", fmt.Errorf("server version: %w", err)
	}
	return "PostgreSQL " + v, nil
}

// pgIdent safely quotes a single identifier segment for Postgres.
func pgIdent(id string) string { return `"` + strings.ReplaceAll(id, `"`, `""`) + `"` }

// pgFQN quotes a possibly schema-qualified name like "public.co2_cars" to
// "public"."co2_cars". If no dot is present, returns a single quoted ident.
func pgFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = pgIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = pgIdent(c)
	}
	return out
}
