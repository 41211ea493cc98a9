// Package mssql implements a Microsoft SQL Server sink using the go-mssqldb
// bulk copy API. Each batch is one bulk copy inside one transaction.
package mssql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	mssql "github.com/microsoft/go-mssqldb"
	"github.com/microsoft/go-mssqldb/msdsn"

	"co2load/internal/loader"
	"co2load/internal/schema"
	"co2load/internal/storage"
)

// DefaultBatchRows is the default row budget per batch.
const DefaultBatchRows = 5000

// Config holds MSSQL sink configuration.
type Config struct {
	DSN     string
	Table   schema.Table
	Timeout time.Duration
}

// Repository is an MSSQL-backed sink bound to one table.
type Repository struct {
	db      *sql.DB
	cfg     Config
	columns []string
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if err := cfg.Table.Validate(); err != nil {
		return nil, nil, fmt.Errorf("mssql: %w", err)
	}
	// Validate DSN early to fail fast on obvious mistakes.
	if _, err := msdsn.Parse(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mssql dsn: %w", err)
	}
	db, err := sql.Open("sqlserver", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("sql.Open: %w", err)
	}
	pingCtx := ctx
	if cfg.Timeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.Timeout)
		defer cancel()
	}
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, nil, fmt.Errorf("ping: %w", err)
	}
	close := func() { _ = db.Close() }
	return &Repository{db: db, cfg: cfg, columns: cfg.Table.Columns()}, close, nil
}

// Encoder returns a bind-value encoder for the bound table.
func (r *Repository) Encoder() loader.Encoder { return loader.NewValueEncoder(r.cfg.Table.Schema) }

// DefaultBudget implements storage.Sink.
func (r *Repository) DefaultBudget() loader.Budget { return loader.Rows(DefaultBatchRows) }

// Flush implements loader.Sink.
func (r *Repository) Flush(ctx context.Context, b *loader.Batch) error {
	return storage.CopyBatch(ctx, r.CopyFrom, r.columns, b)
}

// CopyFrom performs a bulk insert directly into the bound table.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	stmt, err := tx.PrepareContext(ctx, mssql.CopyIn(r.cfg.Table.Name, mssql.BulkOptions{}, columns...))
	if err != nil {
		rollback()
		return 0, fmt.Errorf("prepare bulk: %w", err)
	}
	for i := range rows {
		if _, err := stmt.ExecContext(ctx, rows[i]...); err != nil {
			_ = stmt.Close()
			rollback()
			return 0, fmt.Errorf("bulk row %d: %w", i, err)
		}
	}
	res, err := stmt.ExecContext(ctx)
	if cerr := stmt.Close(); cerr != nil && err == nil {
		err = cerr
	}
	if err != nil {
		rollback()
		return 0, fmt.Errorf("bulk finalize: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		rollback()
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return n, nil
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// ListTables lists the base tables of the current database.
func (r *Repository) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx,
		"SELECT TABLE_NAME FROM INFORMATION_SCHEMA.TABLES WHERE TABLE_TYPE = 'BASE TABLE' ORDER BY TABLE_NAME")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return storage.ScanStrings(rows)
}

// Sample reads back up to n rows of the bound table.
func (r *Repository) Sample(ctx context.Context, n int) ([]loader.Row, error) {
	rows, err := r.db.QueryContext(ctx, sampleSQL(r.cfg.Table.Name, r.columns, n))
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	return storage.ScanRows(rows)
}

func sampleSQL(table string, columns []string, n int) string {
	return fmt.Sprintf("SELECT TOP (%d) %s FROM %s", n, strings.Join(mapIdent(columns), ", "), msFQN(table))
}

// ServerVersion reports @@VERSION's first line.
func (r *Repository) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := r.db.QueryRowContext(ctx, "SELECT @@VERSION").Scan(&v); err != nil {
		return "", fmt.Errorf("server version: %w", err)
	}
	if i := strings.IndexByte(v, '\n'); i >= 0 {
		v = v[:i]
	}
	return strings.TrimSpace(v), nil
}

// msIdent safely quotes a SQL Server identifier using [brackets], escaping ].
func msIdent(id string) string { return `[` + strings.ReplaceAll(id, `]`, `]]`) + `]` }

// msFQN quotes a possibly schema-qualified name like "dbo.co2_cars" to
// "[dbo].[co2_cars]". If no dot is present, returns a single quoted ident.
func msFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = msIdent(p)
	}
	return strings.Join(parts, ".")
}

// mapIdent maps a list of column names to their bracket-quoted forms.
func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = msIdent(c)
	}
	return out
}
