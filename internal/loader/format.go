package loader

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"co2load/internal/schema"
)

// NullLiteral is emitted for empty cells of any type.
const NullLiteral = "NULL"

// FormatLiteral renders one cell as a CQL/SQL literal. Numbers are bare, text
// and dates are single-quoted with embedded quotes doubled, and an empty cell
// is NULL regardless of type. Cells that do not parse as their numeric or
// date type are an error so a bad value never reaches a statement.
func FormatLiteral(cell string, t schema.Type) (string, error) {
	if cell == "" {
		return NullLiteral, nil
	}
	switch t {
	case schema.Int, schema.SmallInt:
		n, err := parseInt(cell, t)
		if err != nil {
			return "", err
		}
		return strconv.FormatInt(n, 10), nil
	case schema.Float:
		f, err := parseFloat(cell)
		if err != nil {
			return "", err
		}
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	case schema.Date:
		if _, err := time.Parse(schema.DateLayout, cell); err != nil {
			return "", fmt.Errorf("invalid DATE %q", cell)
		}
		return QuoteText(cell), nil
	default:
		return QuoteText(cell), nil
	}
}

// ConvertValue turns one cell into a typed bind value: int64, float64,
// string, time.Time, or nil for an empty cell.
func ConvertValue(cell string, t schema.Type) (any, error) {
	if cell == "" {
		return nil, nil
	}
	switch t {
	case schema.Int, schema.SmallInt:
		return parseInt(cell, t)
	case schema.Float:
		return parseFloat(cell)
	case schema.Date:
		d, err := time.Parse(schema.DateLayout, cell)
		if err != nil {
			return nil, fmt.Errorf("invalid DATE %q", cell)
		}
		return d, nil
	default:
		return cell, nil
	}
}

// QuoteText single-quotes s, doubling any embedded single quote.
func QuoteText(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// QuoteIdent double-quotes an identifier, doubling any embedded double quote.
// Column names such as "M (kg)" need it in both CQL and SQL.
func QuoteIdent(s string) string {
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func parseInt(cell string, t schema.Type) (int64, error) {
	n, err := strconv.ParseInt(cell, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", t, cell)
	}
	if t == schema.SmallInt && (n < math.MinInt16 || n > math.MaxInt16) {
		return 0, fmt.Errorf("%s out of range: %d", t, n)
	}
	if t == schema.Int && (n < math.MinInt32 || n > math.MaxInt32) {
		return 0, fmt.Errorf("%s out of range: %d", t, n)
	}
	return n, nil
}

func parseFloat(cell string) (float64, error) {
	f, err := strconv.ParseFloat(cell, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid FLOAT %q", cell)
	}
	return f, nil
}
