// Package ddl renders CREATE TABLE statements for the dataset tables in each
// backend's dialect. The model (TableDef, ColumnDef) is dialect-free; a
// Dialect value carries the quoting and clause differences.
package ddl

import (
	"fmt"
	"strings"

	"co2load/internal/loader"
)

// Dialect describes how a backend spells CREATE TABLE.
type Dialect struct {
	Name string

	// Quote quotes one identifier. Nil emits names verbatim.
	Quote func(string) string

	// IfNotExists adds IF NOT EXISTS after CREATE TABLE.
	IfNotExists bool

	// NoNotNull drops NOT NULL constraints (Cassandra has none).
	NoNotNull bool

	// CompoundKey renders PRIMARY KEY ((p1, p2), c1).
	CompoundKey bool

	// ListPartitions renders PARTITION BY LIST plus one PARTITION OF
	// statement per partition.
	ListPartitions bool

	// Guard wraps the CREATE TABLE statement for dialects without IF NOT
	// EXISTS. It receives the unquoted table name.
	Guard func(table, stmt string) string
}

func (d Dialect) quote(s string) string {
	if d.Quote == nil {
		return s
	}
	return d.Quote(s)
}

func (d Dialect) quoteAll(names []string) string {
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = d.quote(n)
	}
	return strings.Join(out, ", ")
}

func (d Dialect) createPrefix() string {
	if d.IfNotExists {
		return "CREATE TABLE IF NOT EXISTS "
	}
	return "CREATE TABLE "
}

// BuildCreateTableSQL renders the statements that create t in dialect d, in
// execution order: the table first, then any partitions.
//
// Rules:
//   - t.FQN must be non-empty and every column needs a Name and SQLType.
//   - Primary-key columns are always NOT NULL (unless the dialect has no
//     NOT NULL at all).
//   - Key columns keep their declared order; it is significant for
//     compound keys.
//   - Every key and partition column must be a declared column.
func BuildCreateTableSQL(t TableDef, d Dialect) ([]string, error) {
	fqn := strings.TrimSpace(t.FQN)
	if fqn == "" {
		return nil, fmt.Errorf("ddl: table FQN must not be empty")
	}
	if len(t.Columns) == 0 {
		return nil, fmt.Errorf("ddl: at least one column is required")
	}

	declared := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		declared[c.Name] = true
	}
	pk := t.PrimaryKey()
	inKey := make(map[string]bool, len(pk))
	for _, k := range pk {
		if !declared[k] {
			return nil, fmt.Errorf("ddl: key column %q not declared in %s", k, fqn)
		}
		inKey[k] = true
	}

	defs := make([]string, 0, len(t.Columns)+1)
	for _, c := range t.Columns {
		name := strings.TrimSpace(c.Name)
		if name == "" {
			return nil, fmt.Errorf("ddl: column with empty name in table %s", fqn)
		}
		typ := strings.TrimSpace(c.SQLType)
		if typ == "" {
			return nil, fmt.Errorf("ddl: column %s missing SQLType", name)
		}

		var sb strings.Builder
		sb.WriteString(d.quote(name))
		sb.WriteByte(' ')
		sb.WriteString(typ)
		if !d.NoNotNull && (!c.Nullable || inKey[name]) {
			sb.WriteString(" NOT NULL")
		}
		if def := strings.TrimSpace(c.Default); def != "" {
			sb.WriteString(" DEFAULT ")
			sb.WriteString(def)
		}
		defs = append(defs, sb.String())
	}

	if len(pk) > 0 {
		if d.CompoundKey && len(t.PartitionKey) > 0 {
			key := "(" + d.quoteAll(t.PartitionKey) + ")"
			if len(t.ClusteringKey) > 0 {
				key += ", " + d.quoteAll(t.ClusteringKey)
			}
			defs = append(defs, "PRIMARY KEY ("+key+")")
		} else {
			defs = append(defs, "PRIMARY KEY ("+d.quoteAll(pk)+")")
		}
	}

	stmt := fmt.Sprintf("%s%s (\n  %s\n)", d.createPrefix(), d.quote(fqn), strings.Join(defs, ",\n  "))

	partitioned := d.ListPartitions && t.PartitionBy != ""
	if partitioned {
		if !declared[t.PartitionBy] {
			return nil, fmt.Errorf("ddl: partition column %q not declared in %s", t.PartitionBy, fqn)
		}
		stmt += " PARTITION BY LIST (" + d.quote(t.PartitionBy) + ")"
	}
	if d.Guard != nil {
		stmt = d.Guard(fqn, stmt)
	}
	out := []string{stmt}

	if !partitioned {
		return out, nil
	}
	for _, p := range t.Partitions {
		if strings.TrimSpace(p.Name) == "" {
			return nil, fmt.Errorf("ddl: partition with empty name in table %s", fqn)
		}
		head := fmt.Sprintf("%s%s PARTITION OF %s", d.createPrefix(), d.quote(p.Name), d.quote(fqn))
		if p.Default {
			out = append(out, head+" DEFAULT")
			continue
		}
		if len(p.Values) == 0 {
			return nil, fmt.Errorf("ddl: partition %s has no values", p.Name)
		}
		vals := make([]string, len(p.Values))
		for i, v := range p.Values {
			vals[i] = loader.QuoteText(v)
		}
		out = append(out, head+" FOR VALUES IN ("+strings.Join(vals, ", ")+")")
	}
	return out, nil
}
