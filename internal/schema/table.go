package schema

import "fmt"

// Partition is one LIST partition of a relational table. A Default partition
// takes every value not listed elsewhere.
type Partition struct {
	Name    string
	Values  []string
	Default bool
}

// Table is a destination table: its schema plus the keys backends need to
// render DDL. Wide-column backends use PartitionKey/ClusteringKey as the
// compound primary key; relational backends use their concatenation.
type Table struct {
	Name          string
	Schema        Schema
	PartitionKey  []string
	ClusteringKey []string
	NotNull       []string

	// PartitionBy names the LIST partitioning column for relational backends
	// that support it; empty means an ordinary table.
	PartitionBy string
	Partitions  []Partition
}

// Columns returns the destination column names.
func (t Table) Columns() []string { return t.Schema.Names() }

// PrimaryKey is PartitionKey followed by ClusteringKey.
func (t Table) PrimaryKey() []string {
	out := make([]string, 0, len(t.PartitionKey)+len(t.ClusteringKey))
	out = append(out, t.PartitionKey...)
	return append(out, t.ClusteringKey...)
}

// IsNotNull reports whether col is declared NOT NULL. Primary key columns are
// implicitly NOT NULL.
func (t Table) IsNotNull(col string) bool {
	for _, c := range t.NotNull {
		if c == col {
			return true
		}
	}
	for _, c := range t.PrimaryKey() {
		if c == col {
			return true
		}
	}
	return false
}

// MarkRequired returns t with Required set on every key and NOT NULL field,
// so encoders can reject rows the datastore would refuse.
func (t Table) MarkRequired() Table {
	fields := make([]Field, len(t.Schema.Fields))
	for i, f := range t.Schema.Fields {
		f.Required = t.IsNotNull(f.Name)
		fields[i] = f
	}
	t.Schema.Fields = fields
	return t
}

// Validate checks the schema and that every key column exists.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("schema: table name must not be empty")
	}
	if err := t.Schema.Validate(); err != nil {
		return fmt.Errorf("table %s: %w", t.Name, err)
	}
	check := func(kind string, cols []string) error {
		for _, c := range cols {
			if t.Schema.Index(c) < 0 {
				return fmt.Errorf("table %s: %s column %q not in schema", t.Name, kind, c)
			}
		}
		return nil
	}
	if err := check("partition key", t.PartitionKey); err != nil {
		return err
	}
	if err := check("clustering key", t.ClusteringKey); err != nil {
		return err
	}
	if err := check("not null", t.NotNull); err != nil {
		return err
	}
	if t.PartitionBy != "" {
		if err := check("partition by", []string{t.PartitionBy}); err != nil {
			return err
		}
	}
	return nil
}
