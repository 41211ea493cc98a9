// Package schema describes the fixed shape of an import run: the expected
// width of every source row, the typed destination fields projected from it,
// and the table those fields land in.
package schema

import (
	"fmt"
	"strings"
)

// Type tags a field and drives literal formatting and bind-value conversion.
type Type int

const (
	Text Type = iota
	Int
	SmallInt
	Float
	Date
)

// DateLayout is the on-disk layout of DATE cells in the dataset.
const DateLayout = "2006-01-02"

func (t Type) String() string {
	switch t {
	case Int:
		return "INT"
	case SmallInt:
		return "SMALLINT"
	case Float:
		return "FLOAT"
	case Date:
		return "DATE"
	default:
		return "TEXT"
	}
}

// Numeric reports whether values of t are emitted as bare literals.
func (t Type) Numeric() bool {
	return t == Int || t == SmallInt || t == Float
}

// ParseType maps a type tag such as "INT" or "text" to a Type.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "INT", "INTEGER", "BIGINT":
		return Int, nil
	case "SMALLINT":
		return SmallInt, nil
	case "FLOAT", "DOUBLE", "REAL":
		return Float, nil
	case "TEXT", "VARCHAR", "STRING":
		return Text, nil
	case "DATE":
		return Date, nil
	}
	return Text, fmt.Errorf("schema: unknown type %q", s)
}

// Field is one destination column fed from position Pos of the source row.
// A Required field rejects rows whose cell is empty.
type Field struct {
	Name     string
	Type     Type
	Pos      int
	Required bool
}

// Schema is fixed for a whole run. Width is the number of cells every source
// row must carry; Fields may project a subset of them.
type Schema struct {
	Width  int
	Fields []Field
}

// Positional builds a schema whose fields map one-to-one onto row cells.
func Positional(names []string, types []Type) (Schema, error) {
	if len(names) != len(types) {
		return Schema{}, fmt.Errorf("schema: %d names but %d types", len(names), len(types))
	}
	fs := make([]Field, len(names))
	for i := range names {
		fs[i] = Field{Name: names[i], Type: types[i], Pos: i}
	}
	return Schema{Width: len(names), Fields: fs}, nil
}

// Validate checks that every field position falls inside the row width and
// that names are unique.
func (s Schema) Validate() error {
	if s.Width <= 0 {
		return fmt.Errorf("schema: width must be > 0")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema: no fields")
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for _, f := range s.Fields {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("schema: field at pos %d has empty name", f.Pos)
		}
		if f.Pos < 0 || f.Pos >= s.Width {
			return fmt.Errorf("schema: field %q pos %d outside width %d", f.Name, f.Pos, s.Width)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema: duplicate field %q", f.Name)
		}
		seen[f.Name] = struct{}{}
	}
	return nil
}

// Names returns the destination column names in field order.
func (s Schema) Names() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Index returns the field index of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s.Fields {
		if f.Name == name {
			return i
		}
	}
	return -1
}
