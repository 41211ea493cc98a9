// Package sqlite implements a SQLite-backed storage.Sink using database/sql.
// Each batch is one transaction around a prepared INSERT; SQLite has no bulk
// load API, but a single transaction per batch keeps throughput acceptable.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"co2load/internal/loader"
	"co2load/internal/schema"
	"co2load/internal/storage"
)

// DefaultBatchRows is the default row budget per batch.
const DefaultBatchRows = 5000

// Repository is a SQLite-backed sink bound to one table.
type Repository struct {
	db      *sql.DB
	cfg     Config
	columns []string
}

// NewRepository opens the database and returns a Repository plus a close
// function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, nil, fmt.Errorf("sqlite: DSN must not be empty")
	}
	if err := cfg.Table.Validate(); err != nil {
		return nil, nil, fmt.Errorf("sqlite: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sqlite: open: %w", err)
	}
	// One writer; also keeps ":memory:" databases on a single connection.
	db.SetMaxOpenConns(1)

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	pingCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("sqlite: ping: %w", err)
	}

	closeFn := func() { db.Close() }
	return &Repository{db: db, cfg: cfg, columns: cfg.Table.Columns()}, closeFn, nil
}

// Encoder returns a bind-value encoder for the bound table.
func (r *Repository) Encoder() loader.Encoder { return loader.NewValueEncoder(r.cfg.Table.Schema) }

// DefaultBudget implements storage.Sink.
func (r *Repository) DefaultBudget() loader.Budget { return loader.Rows(DefaultBatchRows) }

// Flush inserts one batch in one transaction.
func (r *Repository) Flush(ctx context.Context, b *loader.Batch) error {
	return storage.CopyBatch(ctx, r.CopyFrom, r.columns, b)
}

func insertSQL(table string, columns []string) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = loader.QuoteIdent(c)
	}
	return fmt.Sprintf(
		"INSERT INTO %s (%s) VALUES (%s)",
		loader.QuoteIdent(table),
		strings.Join(quoted, ", "),
		storage.Placeholders(len(columns)),
	)
}

// CopyFrom inserts rows into the bound table using a single transaction and
// a prepared INSERT statement. len(row) must equal len(columns) for every
// row. On error nothing is committed.
func (r *Repository) CopyFrom(
	ctx context.Context,
	columns []string,
	rows [][]any,
) (int64, error) {
	if len(columns) == 0 {
		return 0, fmt.Errorf("sqlite: CopyFrom: columns must not be empty")
	}
	if len(rows) == 0 {
		return 0, nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("sqlite: begin tx: %w", err)
	}
	stmt, err := tx.PrepareContext(ctx, insertSQL(r.cfg.Table.Name, columns))
	if err != nil {
		_ = tx.Rollback()
		return 0, fmt.Errorf("sqlite: prepare insert: %w", err)
	}
	defer stmt.Close()

	var inserted int64
	args := make([]any, len(columns))
	for _, row := range rows {
		if len(row) != len(columns) {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: CopyFrom: row length %d != columns length %d", len(row), len(columns))
		}
		for i, v := range row {
			args[i] = toSQLite(v)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			_ = tx.Rollback()
			return 0, fmt.Errorf("sqlite: insert: %w", err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("sqlite: commit: %w", err)
	}
	return inserted, nil
}

// toSQLite stores dates as ISO text; SQLite has no date type.
func toSQLite(v any) any {
	if t, ok := v.(time.Time); ok {
		return t.Format(schema.DateLayout)
	}
	return v
}

// Exec executes an arbitrary SQL statement (typically DDL).
func (r *Repository) Exec(ctx context.Context, sql string) error {
	if strings.TrimSpace(sql) == "" {
		return nil
	}
	if _, err := r.db.ExecContext(ctx, sql); err != nil {
		return fmt.Errorf("sqlite: exec: %w", err)
	}
	return nil
}

// ListTables implements storage.TableLister.
func (r *Repository) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name")
	if err != nil {
		return nil, fmt.Errorf("sqlite: list tables: %w", err)
	}
	return storage.ScanStrings(rows)
}

// Sample implements storage.Sampler.
func (r *Repository) Sample(ctx context.Context, n int) ([]loader.Row, error) {
	quoted := make([]string, len(r.columns))
	for i, c := range r.columns {
		quoted[i] = loader.QuoteIdent(c)
	}
	q := fmt.Sprintf("SELECT %s FROM %s LIMIT %d", strings.Join(quoted, ", "), loader.QuoteIdent(r.cfg.Table.Name), n)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite: sample: %w", err)
	}
	return storage.ScanRows(rows)
}

// ServerVersion implements storage.Versioner.
func (r *Repository) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := r.db.QueryRowContext(ctx, "SELECT sqlite_version()").Scan(&v); err != nil {
		return "", fmt.Errorf("sqlite: version: %w", err)
	}
	return "SQLite " + v, nil
}
