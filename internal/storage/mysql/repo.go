// Package mysql implements a MySQL sink on go-sql-driver/mysql. A batch is
// sent as multi-row INSERT statements inside one transaction.
package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"co2load/internal/loader"
	"co2load/internal/schema"
	"co2load/internal/storage"
)

const (
	// DefaultBatchRows is the default row budget per batch.
	DefaultBatchRows = 1000

	// maxPlaceholders is the protocol limit on bind parameters per statement.
	maxPlaceholders = 65535
)

// Config holds MySQL sink configuration.
type Config struct {
	DSN     string
	Table   schema.Table
	Timeout time.Duration
}

// Repository is a MySQL-backed sink bound to one table.
type Repository struct {
	db      *sql.DB
	cfg     Config
	columns []string
}

// NewRepository constructs a Repository and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if err := cfg.Table.Validate(); err != nil {
		return nil, nil, fmt.Errorf("mysql: %w", err)
	}
	if _, err := mysql.ParseDSN(cfg.DSN); err != nil {
		return nil, nil, fmt.Errorf("mysql dsn: %w", err)
	}
	db, err := sql.Open("mysql", cfg.DSN)
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

// CopyFrom inserts rows with as few multi-row INSERTs as the placeholder
// limit allows, all in one transaction.
func (r *Repository) CopyFrom(ctx context.Context, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if len(columns) == 0 {
		return 0, fmt.Errorf("mysql: CopyFrom: columns must not be empty")
	}
	per := rowsPerStatement(len(columns))

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	rollback := func() { _ = tx.Rollback() }

	var inserted int64
	for start := 0; start < len(rows); start += per {
		end := min(start+per, len(rows))
		chunk := rows[start:end]
		args := make([]any, 0, len(chunk)*len(columns))
		for _, row := range chunk {
			args = append(args, row...)
		}
		res, err := tx.ExecContext(ctx, insertSQL(r.cfg.Table.Name, columns, len(chunk)), args...)
		if err != nil {
			rollback()
			return 0, fmt.Errorf("insert rows %d..%d: %w", start+1, end, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			rollback()
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

func rowsPerStatement(cols int) int {
	n := maxPlaceholders / cols
	if n < 1 {
		return 1
	}
	return n
}

// insertSQL renders INSERT INTO `t` (`a`, `b`) VALUES (?, ?), (?, ?).
func insertSQL(table string, columns []string, rows int) string {
	tuple := "(" + storage.Placeholders(len(columns)) + ")"
	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", myFQN(table), strings.Join(mapIdent(columns), ", "))
	for i := 0; i < rows; i++ {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(tuple)
	}
	return b.String()
}

// Exec executes a SQL statement against the pool.
func (r *Repository) Exec(ctx context.Context, sqlText string) error {
	_, err := r.db.ExecContext(ctx, sqlText)
	return err
}

// ListTables implements storage.TableLister.
func (r *Repository) ListTables(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, "SHOW TABLES")
	if err != nil {
		return nil, fmt.Errorf("list tables: %w", err)
	}
	return storage.ScanStrings(rows)
}

// Sample reads back up to n rows of the bound table.
func (r *Repository) Sample(ctx context.Context, n int) ([]loader.Row, error) {
	q := fmt.Sprintf("SELECT %s FROM %s LIMIT %d", strings.Join(mapIdent(r.columns), ", "), myFQN(r.cfg.Table.Name), n)
	rows, err := r.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sample: %w", err)
	}
	return storage.ScanRows(rows)
}

// ServerVersion implements storage.Versioner.
func (r *Repository) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := r.db.QueryRowContext(ctx, "SELECT VERSION()").Scan(&v); err != nil {
		return "", fmt.Errorf("server version: %w", err)
	}
	return "MySQL " + v, nil
}

// myIdent quotes a MySQL identifier with backticks.
func myIdent(id string) string { return "`" + strings.ReplaceAll(id, "`", "``") + "`" }

// myFQN quotes a possibly database-qualified name like "co2.co2_cars".
func myFQN(name string) string {
	parts := strings.Split(name, ".")
	for i, p := range parts {
		parts[i] = myIdent(p)
	}
	return strings.Join(parts, ".")
}

func mapIdent(cols []string) []string {
	out := make([]string, len(cols))
	for i, c := range cols {
		out[i] = myIdent(c)
	}
	return out
}
