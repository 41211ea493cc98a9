package schema

import (
	"strings"
	"testing"
)

func TestParseType(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in      string
		want    Type
		wantErr bool
	}{
		{"INT", Int, false},
		{" integer ", Int, false},
		{"smallint", SmallInt, false},
		{"FLOAT", Float, false},
		{"double", Float, false},
		{"TEXT", Text, false},
		{"Date", Date, false},
		{"BLOB", Text, true},
	}
	for _, tc := range tests {
		got, err := ParseType(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseType(%q) err = %v", tc.in, err)
		}
		if err == nil && got != tc.want {
			t.Errorf("ParseType(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestType_StringAndNumeric(t *testing.T) {
	t.Parallel()

	for _, typ := range []Type{Text, Int, SmallInt, Float, Date} {
		back, err := ParseType(typ.String())
		if err != nil || back != typ {
			t.Errorf("%v does not parse back: %v %v", typ, back, err)
		}
	}
	if !Float.Numeric() || !SmallInt.Numeric() || Date.Numeric() || Text.Numeric() {
		t.Error("Numeric classification wrong")
	}
}

func TestPositional(t *testing.T) {
	t.Parallel()

	s, err := Positional([]string{"a", "b", "c"}, []Type{Int, Text, Text})
	if err != nil {
		t.Fatal(err)
	}
	if s.Width != 3 || s.Index("c") != 2 || s.Index("z") != -1 {
		t.Fatalf("schema = %+v", s)
	}
	if got := strings.Join(s.Names(), ","); got != "a,b,c" {
		t.Fatalf("Names() = %s", got)
	}
	if _, err := Positional([]string{"a"}, nil); err == nil {
		t.Fatal("expected length mismatch error")
	}
}

func TestSchema_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		s       Schema
		wantErr string
	}{
		{"ok projection", Schema{Width: 5, Fields: []Field{{Name: "x", Pos: 4}}}, ""},
		{"zero width", Schema{Fields: []Field{{Name: "x"}}}, "width"},
		{"no fields", Schema{Width: 1}, "no fields"},
		{"empty name", Schema{Width: 1, Fields: []Field{{Name: " "}}}, "empty name"},
		{"out of range", Schema{Width: 2, Fields: []Field{{Name: "x", Pos: 2}}}, "outside width"},
		{"duplicate", Schema{Width: 2, Fields: []Field{{Name: "x"}, {Name: "x", Pos: 1}}}, "duplicate"},
	}
	for _, tc := range tests {
		err := tc.s.Validate()
		if tc.wantErr == "" {
			if err != nil {
				t.Errorf("%s: %v", tc.name, err)
			}
			continue
		}
		if err == nil || !strings.Contains(err.Error(), tc.wantErr) {
			t.Errorf("%s: err = %v, want %q", tc.name, err, tc.wantErr)
		}
	}
}

func TestTable(t *testing.T) {
	t.Parallel()

	s, _ := Positional([]string{"id", "year", "name"}, []Type{Int, SmallInt, Text})
	tbl := Table{Name: "t", Schema: s, PartitionKey: []string{"year"}, ClusteringKey: []string{"id"}, NotNull: []string{"name"}}
	if err := tbl.Validate(); err != nil {
		t.Fatal(err)
	}
	if got := strings.Join(tbl.PrimaryKey(), ","); got != "year,id" {
		t.Fatalf("PrimaryKey() = %s", got)
	}
	if !tbl.IsNotNull("id") || !tbl.IsNotNull("name") {
		t.Fatal("key and declared columns must be NOT NULL")
	}

	bad := tbl
	bad.PartitionBy = "missing"
	if err := bad.Validate(); err == nil || !strings.Contains(err.Error(), "partition by") {
		t.Fatalf("err = %v", err)
	}
	bad = tbl
	bad.Name = ""
	if err := bad.Validate(); err == nil {
		t.Fatal("expected empty name error")
	}
}

func TestTable_MarkRequired(t *testing.T) {
	t.Parallel()

	s, _ := Positional([]string{"id", "year", "name", "note"}, []Type{Int, SmallInt, Text, Text})
	tbl := Table{Name: "t", Schema: s, PartitionKey: []string{"year"}, ClusteringKey: []string{"id"}, NotNull: []string{"name"}}
	marked := tbl.MarkRequired()

	want := map[string]bool{"id": true, "year": true, "name": true, "note": false}
	for _, f := range marked.Schema.Fields {
		if f.Required != want[f.Name] {
			t.Errorf("%s: Required = %v", f.Name, f.Required)
		}
	}
	for _, f := range tbl.Schema.Fields {
		if f.Required {
			t.Fatalf("MarkRequired mutated the receiver's fields")
		}
	}
}
