package cassandra

import (
	"fmt"

	"co2load/internal/ddl"
	"co2load/internal/loader"
	"co2load/internal/schema"
)

// MapType maps a field type to its CQL type.
func MapType(t schema.Type) string {
	switch t {
	case schema.Int:
		return "int"
	case schema.SmallInt:
		return "smallint"
	case schema.Float:
		return "float"
	case schema.Date:
		return "date"
	default:
		return "text"
	}
}

// Dialect is CQL's CREATE TABLE flavour: compound partition keys and no NOT
// NULL constraints. Relational partitions do not apply.
var Dialect = ddl.Dialect{
	Name:        "cassandra",
	Quote:       loader.QuoteIdent,
	IfNotExists: true,
	NoNotNull:   true,
	CompoundKey: true,
}

// CreateTableSQL renders the CQL DDL for table. The table name is left
// unquoted to match the INSERT statements the encoder produces.
func CreateTableSQL(table schema.Table) ([]string, error) {
	td, err := ddl.FromTable(table, MapType)
	if err != nil {
		return nil, fmt.Errorf("infer table definition: %w", err)
	}
	d := Dialect
	d.Quote = func(s string) string {
		if s == td.FQN {
			return s
		}
		return loader.QuoteIdent(s)
	}
	return ddl.BuildCreateTableSQL(td, d)
}
