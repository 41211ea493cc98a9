package postgres

import (
	"fmt"

	"co2load/internal/ddl"
	"co2load/internal/schema"
)

// MapType maps a field type to its Postgres column type.
func MapType(t schema.Type) string {
	switch t {
	case schema.Int:
		return "INTEGER"
	case schema.SmallInt:
		return "SMALLINT"
	case schema.Float:
		return "DOUBLE PRECISION"
	case schema.Date:
		return "DATE"
	default:
		return "TEXT"
	}
}

// Dialect is Postgres' CREATE TABLE flavour, with LIST partitioning.
var Dialect = ddl.Dialect{
	Name:           "postgres",
	Quote:          pgIdent,
	IfNotExists:    true,
	ListPartitions: true,
}

// CreateTableSQL renders the parent table followed by one statement per
// partition.
func CreateTableSQL(table schema.Table) ([]string, error) {
	td, err := ddl.FromTable(table, MapType)
	if err != nil {
		return nil, fmt.Errorf("infer table definition: %w", err)
	}
	return ddl.BuildCreateTableSQL(td, Dialect)
}
