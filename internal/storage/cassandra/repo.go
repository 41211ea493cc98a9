// Package cassandra implements a Cassandra sink on gocql. Rows are rendered
// as complete CQL INSERT statements with inline literals and sent as
// unlogged batches, bounded by the serialized batch size.
package cassandra

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gocql/gocql"

	"co2load/internal/loader"
	"co2load/internal/schema"
)

// DefaultBatchBytes stays just under Cassandra's default
// batch_size_fail_threshold_in_kb of 10240.
const DefaultBatchBytes = (10*1024 - 1) * 1024

// Config holds Cassandra sink configuration.
type Config struct {
	Hosts    []string
	Port     int
	Keyspace string
	Username string
	Password string
	Timeout  time.Duration
	Table    schema.Table
}

// session is the subset of *gocql.Session the sink uses.
type session interface {
	NewBatch(typ gocql.BatchType) *gocql.Batch
	ExecuteBatch(b *gocql.Batch) error
	Query(stmt string, values ...interface{}) *gocql.Query
	Close()
}

// Repository is a Cassandra-backed sink bound to one table.
type Repository struct {
	sess    session
	cfg     Config
	columns []string
}

// NewRepository connects to the cluster, checks the connection by reading
// the release version, and returns a Close function for cleanup.
func NewRepository(ctx context.Context, cfg Config) (*Repository, func(), error) {
	if err := cfg.Table.Validate(); err != nil {
		return nil, nil, fmt.Errorf("cassandra: %w", err)
	}
	if len(cfg.Hosts) == 0 {
		return nil, nil, fmt.Errorf("cassandra: at least one host is required")
	}
	cluster := newCluster(cfg)
	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, nil, fmt.Errorf("cassandra: connect: %w", err)
	}
	r := &Repository{sess: sess, cfg: cfg, columns: cfg.Table.Columns()}
	if _, err := r.ServerVersion(ctx); err != nil {
		sess.Close()
		return nil, nil, err
	}
	return r, sess.Close, nil
}

func newCluster(cfg Config) *gocql.ClusterConfig {
	cluster := gocql.NewCluster(cfg.Hosts...)
	if cfg.Port > 0 {
		cluster.Port = cfg.Port
	}
	cluster.Keyspace = cfg.Keyspace
	if cfg.Timeout > 0 {
		cluster.Timeout = cfg.Timeout
		cluster.ConnectTimeout = cfg.Timeout
	}
	if cfg.Username != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.Username,
			Password: cfg.Password,
		}
	}
	return cluster
}

// Encoder renders full INSERT statements; identifiers are double-quoted so
// mixed-case and unit-suffixed column names survive.
func (r *Repository) Encoder() loader.Encoder {
	return loader.NewStatementEncoder(r.cfg.Table.Name, r.cfg.Table.Schema, nil)
}

// DefaultBudget implements storage.Sink.
func (r *Repository) DefaultBudget() loader.Budget { return loader.Bytes(DefaultBatchBytes) }

// Flush sends the batch as one unlogged batch.
func (r *Repository) Flush(ctx context.Context, b *loader.Batch) error {
	if b.Len() == 0 {
		return nil
	}
	batch := r.sess.NewBatch(gocql.UnloggedBatch).WithContext(ctx)
	for _, f := range b.Fragments {
		if f.Stmt == "" {
			return fmt.Errorf("cassandra: line %d: fragment has no statement", f.Line)
		}
		batch.Query(f.Stmt)
	}
	if err := r.sess.ExecuteBatch(batch); err != nil {
		return fmt.Errorf("cassandra: execute batch (%d statements, %d bytes): %w", b.Len(), b.Size, err)
	}
	return nil
}

// Exec runs one CQL statement.
func (r *Repository) Exec(ctx context.Context, stmt string) error {
	if strings.TrimSpace(stmt) == "" {
		return nil
	}
	if err := r.sess.Query(stmt).WithContext(ctx).Exec(); err != nil {
		return fmt.Errorf("cassandra: exec: %w", err)
	}
	return nil
}

// ServerVersion reads release_version from system.local.
func (r *Repository) ServerVersion(ctx context.Context) (string, error) {
	var v string
	if err := r.sess.Query("SELECT release_version FROM system.local").WithContext(ctx).Scan(&v); err != nil {
		return "", fmt.Errorf("cassandra: release version: %w", err)
	}
	return "Cassandra " + v, nil
}

// ListTables lists the tables of the session keyspace.
func (r *Repository) ListTables(ctx context.Context) ([]string, error) {
	iter := r.sess.Query("SELECT table_name FROM system_schema.tables WHERE keyspace_name = ?", r.cfg.Keyspace).
		WithContext(ctx).Iter()
	var (
		names []string
		name  string
	)
	for iter.Scan(&name) {
		names = append(names, name)
	}
	if err := iter.Close(); err != nil {
		return nil, fmt.Errorf("cassandra: list tables: %w", err)
	}
	return names, nil
}

// Sample reads back up to n rows of the bound table.
func (r *Repository) Sample(ctx context.Context, n int) ([]loader.Row, error) {
	q := sampleCQL(r.cfg.Table.Name, r.columns, n)
	maps, err := r.sess.Query(q).WithContext(ctx).Iter().SliceMap()
	if err != nil {
		return nil, fmt.Errorf("cassandra: sample: %w", err)
	}
	out := make([]loader.Row, 0, len(maps))
	for _, m := range maps {
		out = append(out, orderRow(r.columns, m))
	}
	return out, nil
}

func sampleCQL(table string, columns []string, n int) string {
	quoted := make([]string, len(columns))
	for i, c := range columns {
		quoted[i] = loader.QuoteIdent(c)
	}
	return fmt.Sprintf("SELECT %s FROM %s LIMIT %d", strings.Join(quoted, ", "), table, n)
}

// orderRow lays a SliceMap row out in column order. gocql returns zero
// values for null columns, so absent keys print as NULL.
func orderRow(columns []string, m map[string]interface{}) loader.Row {
	row := make(loader.Row, len(columns))
	for i, c := range columns {
		v, ok := m[c]
		if !ok {
			v, ok = m[strings.ToLower(c)]
		}
		if !ok {
			row[i] = loader.NullLiteral
			continue
		}
		row[i] = formatCQL(v)
	}
	return row
}

func formatCQL(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return loader.NullLiteral
	case time.Time:
		if t.IsZero() {
			return loader.NullLiteral
		}
		return t.Format(schema.DateLayout)
	default:
		return fmt.Sprint(t)
	}
}
