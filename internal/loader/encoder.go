package loader

import (
	"errors"
	"fmt"
	"strings"

	"co2load/internal/schema"
)

// ErrFieldCount is returned by encoders for rows whose width does not match
// the schema.
var ErrFieldCount = errors.New("field count mismatch")

// ErrRequired rejects rows with an empty key or NOT NULL cell.
var ErrRequired = errors.New("required value is empty")

// Encoder serializes one row into a self-contained Fragment. It holds no
// state across rows, so fragments can be appended to any batch.
type Encoder interface {
	Schema() schema.Schema
	Encode(row Row) (Fragment, error)
}

func checkWidth(s schema.Schema, row Row) error {
	if len(row) != s.Width {
		return fmt.Errorf("%w: expected %d fields, got %d", ErrFieldCount, s.Width, len(row))
	}
	return nil
}

// StatementEncoder renders each row as a complete INSERT statement with
// inline literals. It serves batch APIs that cannot bind parameters per
// statement, keeping all literal formatting in FormatLiteral.
type StatementEncoder struct {
	schema schema.Schema
	prefix string
}

// NewStatementEncoder builds the fixed "INSERT INTO t (cols) VALUES (" prefix
// once; quote renders column identifiers.
func NewStatementEncoder(table string, s schema.Schema, quote func(string) string) *StatementEncoder {
	if quote == nil {
		quote = QuoteIdent
	}
	cols := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		cols[i] = quote(f.Name)
	}
	return &StatementEncoder{
		schema: s,
		prefix: fmt.Sprintf("INSERT INTO %s (%s) VALUES (", table, strings.Join(cols, ", ")),
	}
}

// Schema implements Encoder.
func (e *StatementEncoder) Schema() schema.Schema { return e.schema }

// Encode implements Encoder. Fragment.Size is the statement length.
func (e *StatementEncoder) Encode(row Row) (Fragment, error) {
	if err := checkWidth(e.schema, row); err != nil {
		return Fragment{}, err
	}
	var sb strings.Builder
	sb.Grow(len(e.prefix) + 16*len(e.schema.Fields))
	sb.WriteString(e.prefix)
	for i, f := range e.schema.Fields {
		cell := row[f.Pos]
		if f.Required && cell == "" {
			return Fragment{}, fmt.Errorf("field %q: %w", f.Name, ErrRequired)
		}
		lit, err := FormatLiteral(cell, f.Type)
		if err != nil {
			return Fragment{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(lit)
	}
	sb.WriteByte(')')
	stmt := sb.String()
	return Fragment{Stmt: stmt, Size: len(stmt)}, nil
}

// ValueEncoder converts each row to typed bind values for parameterized or
// bulk-copy sinks. Fragment.Size approximates the payload as the sum of the
// raw cell lengths plus one separator byte per field.
type ValueEncoder struct {
	schema schema.Schema
}

// NewValueEncoder returns a ValueEncoder for s.
func NewValueEncoder(s schema.Schema) *ValueEncoder { return &ValueEncoder{schema: s} }

// Schema implements Encoder.
func (e *ValueEncoder) Schema() schema.Schema { return e.schema }

// Encode implements Encoder.
func (e *ValueEncoder) Encode(row Row) (Fragment, error) {
	if err := checkWidth(e.schema, row); err != nil {
		return Fragment{}, err
	}
	args := make([]any, len(e.schema.Fields))
	size := 0
	for i, f := range e.schema.Fields {
		cell := row[f.Pos]
		if f.Required && cell == "" {
			return Fragment{}, fmt.Errorf("field %q: %w", f.Name, ErrRequired)
		}
		v, err := ConvertValue(cell, f.Type)
		if err != nil {
			return Fragment{}, fmt.Errorf("field %q: %w", f.Name, err)
		}
		args[i] = v
		size += len(cell) + 1
	}
	return Fragment{Args: args, Size: size}, nil
}
