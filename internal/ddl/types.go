package ddl

import (
	"fmt"
	"strings"

	"co2load/internal/schema"
)

// ColumnDef describes a single column in a table definition.
//
// Fields:
//   - Name: column name (unquoted; quoting happens at render time)
//   - SQLType: target type in the backend's dialect
//   - Nullable: whether NULL is allowed
//   - Default: raw default expression, emitted verbatim
type ColumnDef struct {
	Name     string
	SQLType  string
	Nullable bool
	Default  string
}

// PartitionDef is one list partition: either explicit Values or the default.
type PartitionDef struct {
	Name    string
	Values  []string
	Default bool
}

// TableDef holds the table name, ordered columns and key layout.
//
// PartitionKey and ClusteringKey together form the primary key. Dialects
// without a compound key notion render them as one flat PRIMARY KEY.
type TableDef struct {
	FQN           string
	Columns       []ColumnDef
	PartitionKey  []string
	ClusteringKey []string

	// PartitionBy names the list-partitioning column; empty means none.
	PartitionBy string
	Partitions  []PartitionDef
}

// PrimaryKey returns partition then clustering columns.
func (t TableDef) PrimaryKey() []string {
	out := make([]string, 0, len(t.PartitionKey)+len(t.ClusteringKey))
	out = append(out, t.PartitionKey...)
	return append(out, t.ClusteringKey...)
}

// FromTable derives a TableDef from a dataset table, mapping every field type
// through mapType.
func FromTable(t schema.Table, mapType func(schema.Type) string) (TableDef, error) {
	if err := t.Validate(); err != nil {
		return TableDef{}, err
	}
	if mapType == nil {
		return TableDef{}, fmt.Errorf("ddl: mapType must not be nil")
	}
	td := TableDef{
		FQN:           t.Name,
		PartitionKey:  append([]string(nil), t.PartitionKey...),
		ClusteringKey: append([]string(nil), t.ClusteringKey...),
		PartitionBy:   t.PartitionBy,
	}
	for _, f := range t.Schema.Fields {
		typ := strings.TrimSpace(mapType(f.Type))
		if typ == "" {
			return TableDef{}, fmt.Errorf("ddl: no SQL type for %s (%s)", f.Name, f.Type)
		}
		td.Columns = append(td.Columns, ColumnDef{
			Name:     f.Name,
			SQLType:  typ,
			Nullable: !t.IsNotNull(f.Name),
		})
	}
	for _, p := range t.Partitions {
		td.Partitions = append(td.Partitions, PartitionDef{
			Name:    p.Name,
			Values:  append([]string(nil), p.Values...),
			Default: p.Default,
		})
	}
	return td, nil
}
