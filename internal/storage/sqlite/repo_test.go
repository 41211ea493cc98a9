package sqlite

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"testing"

	"co2load/internal/co2"
	"co2load/internal/loader"
	"co2load/internal/parser/csv"
	"co2load/internal/storage"
)

// csvLine builds one 38-cell export line. Cells not in overrides get a
// plausible value for their type.
func csvLine(id int, overrides map[string]string) string {
	cells := make([]string, 0, co2.Width)
	for _, f := range co2.Cars().Schema.Fields {
		v, ok := overrides[f.Name]
		if !ok {
			switch f.Name {
			case "ID":
				v = fmt.Sprint(id)
			case "Date of registration":
				v = "2021-03-04"
			case "Ft":
				v = "Petrol"
			case "Year":
				v = "2021"
			case "Ernedc (g/km)", "Erwltp (g/km)", "De":
				v = "1.5"
			default:
				if f.Type.Numeric() {
					v = "100"
				} else {
					v = "x"
				}
			}
		}
		if strings.ContainsAny(v, ",\"") {
			v = `"` + strings.ReplaceAll(v, `"`, `""`) + `"`
		}
		cells = append(cells, v)
	}
	return strings.Join(cells, ",")
}

func header() string {
	return strings.Join(co2.Cars().Columns(), ",")
}

func openMem(t *testing.T, table string) storage.Sink {
	t.Helper()
	tbl, err := co2.Lookup(table)
	if err != nil {
		t.Fatal(err)
	}
	s, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", Database: ":memory:", Table: tbl})
	if err != nil {
		t.Fatalf("storage.New: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := storage.EnsureTable(context.Background(), "sqlite", s, tbl); err != nil {
		t.Fatalf("EnsureTable: %v", err)
	}
	return s
}

func load(t *testing.T, s storage.Sink, input string, budget loader.Budget) loader.Stats {
	t.Helper()
	rd, err := csv.NewReader(strings.NewReader(input), csv.DefaultOptions())
	if err != nil {
		t.Fatalf("csv.NewReader: %v", err)
	}
	st, err := loader.Load(context.Background(), rd, s.Encoder(), budget, s)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return st
}

// TestLoad_EndToEnd runs CSV -> loader -> SQLite and reads the rows back.
func TestLoad_EndToEnd(t *testing.T) {
	t.Parallel()

	s := openMem(t, co2.CarsTable)
	input := strings.Join([]string{
		header(),
		csvLine(1, map[string]string{"Mk": "O'NEIL", "M (kg)": ""}),
		csvLine(2, map[string]string{"Cn": `say "hi", ok`}),
		"3,FR,short",
		csvLine(4, nil),
	}, "\n") + "\n"

	st := load(t, s, input, loader.Rows(2))
	if st.Processed != 3 || st.Rejected != 1 || st.Batches != 2 {
		t.Fatalf("stats = %+v", st)
	}

	rows, err := s.(storage.Sampler).Sample(context.Background(), 10)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("sampled %d rows, want 3", len(rows))
	}

	byID := map[string]loader.Row{}
	for _, r := range rows {
		byID[r[0]] = r
	}
	tbl := co2.Cars()
	mk, mass, cn, date := tbl.Schema.Index("Mk"), tbl.Schema.Index("M (kg)"), tbl.Schema.Index("Cn"), tbl.Schema.Index("Date of registration")
	if got := byID["1"][mk]; got != "O'NEIL" {
		t.Errorf("Mk = %q", got)
	}
	if got := byID["1"][mass]; got != loader.NullLiteral {
		t.Errorf("empty numeric should be NULL, got %q", got)
	}
	if got := byID["2"][cn]; got != `say "hi", ok` {
		t.Errorf("Cn = %q", got)
	}
	if got := byID["4"][date]; got != "2021-03-04" {
		t.Errorf("date = %q", got)
	}
}

func TestLoad_VehiclesProjection(t *testing.T) {
	t.Parallel()

	s := openMem(t, co2.VehiclesTable)
	input := header() + "\n" +
		csvLine(10, map[string]string{"Ft": "Electric"}) + "\n" +
		csvLine(11, nil) + "\n"

	st := load(t, s, input, s.DefaultBudget())
	if st.Processed != 2 || st.Batches != 1 {
		t.Fatalf("stats = %+v", st)
	}

	// An empty NOT NULL cell is rejected locally; the run continues.
	withEmptyMk := input + csvLine(12, map[string]string{"Mk": ""}) + "\n" + csvLine(13, nil) + "\n"
	s3 := openMem(t, co2.VehiclesTable)
	st = load(t, s3, withEmptyMk, loader.Rows(2))
	if st.Processed != 3 || st.Rejected != 1 || st.Batches != 2 {
		t.Fatalf("stats = %+v", st)
	}

	// A duplicate primary key is only caught by the datastore, in batch #2.
	dup := input + csvLine(11, nil) + "\n"
	rd, _ := csv.NewReader(strings.NewReader(dup), csv.DefaultOptions())
	s2 := openMem(t, co2.VehiclesTable)
	_, err := loader.Load(context.Background(), rd, s2.Encoder(), loader.Rows(2), s2)
	if err == nil || !strings.Contains(err.Error(), "flush batch #2") {
		t.Fatalf("expected second flush to fail on the primary key, got %v", err)
	}

	rows, err := s.(storage.Sampler).Sample(context.Background(), 5)
	if err != nil {
		t.Fatalf("Sample: %v", err)
	}
	if len(rows) != 2 || len(rows[0]) != len(co2.Vehicles().Columns()) {
		t.Fatalf("rows = %q", rows)
	}
}

func TestListTablesAndVersion(t *testing.T) {
	t.Parallel()

	s := openMem(t, co2.CarsTable)
	tables, err := s.(storage.TableLister).ListTables(context.Background())
	if err != nil {
		t.Fatalf("ListTables: %v", err)
	}
	if !slices.Contains(tables, co2.CarsTable) {
		t.Fatalf("tables = %v", tables)
	}
	v, err := s.(storage.Versioner).ServerVersion(context.Background())
	if err != nil || !strings.HasPrefix(v, "SQLite 3") {
		t.Fatalf("version = %q, err = %v", v, err)
	}
}

func TestCreateTableSQL(t *testing.T) {
	t.Parallel()

	stmts, err := CreateTableSQL(co2.Vehicles())
	if err != nil {
		t.Fatalf("CreateTableSQL: %v", err)
	}
	if len(stmts) != 1 {
		t.Fatalf("sqlite has no partitions; got %d statements", len(stmts))
	}
	for _, want := range []string{
		`CREATE TABLE IF NOT EXISTS "co2_vehicles"`,
		`"Mk" TEXT NOT NULL`,
		`"M" INTEGER`,
		`PRIMARY KEY ("Year", "Country", "Ft", "ID")`,
	} {
		if !strings.Contains(stmts[0], want) {
			t.Errorf("missing %q in\n%s", want, stmts[0])
		}
	}
}

func TestFactory_UsesHook(t *testing.T) {
	want := errors.New("no db")
	old := newRepository
	newRepository = func(ctx context.Context, cfg Config) (*Repository, func(), error) {
		if cfg.DSN != "co2.db" {
			t.Errorf("DSN = %q, want database path", cfg.DSN)
		}
		return nil, nil, want
	}
	t.Cleanup(func() { newRepository = old })

	_, err := storage.New(context.Background(), storage.Config{Kind: "sqlite", Database: "co2.db", Table: co2.Cars()})
	if !errors.Is(err, want) {
		t.Fatalf("err = %v, want %v", err, want)
	}
}

func TestNewRepository_Errors(t *testing.T) {
	t.Parallel()
	if _, _, err := NewRepository(context.Background(), Config{Table: co2.Cars()}); err == nil {
		t.Fatal("expected error for empty DSN")
	}
}
