// Package co2 defines the two destination tables fed from the EEA CO2
// passenger-car emissions CSV export.
//
// Every CSV line carries 38 cells in the order of csvColumns. co2_cars keeps
// all of them; co2_vehicles projects the 14 columns used for reporting and is
// list-partitioned by fuel type on backends that support it.
package co2

import (
	"fmt"
	"sort"

	"co2load/internal/schema"
)

const (
	CarsTable     = "co2_cars"
	VehiclesTable = "co2_vehicles"
)

// Width is the number of cells on every data line of the export.
const Width = 38

type column struct {
	name string
	typ  schema.Type
}

var csvColumns = [Width]column{
	{"ID", schema.Int},
	{"Country", schema.Text},
	{"VFN", schema.Text},
	{"Mp", schema.Text},
	{"Mh", schema.Text},
	{"Man", schema.Text},
	{"MMS", schema.Text},
	{"Tan", schema.Text},
	{"T", schema.Text},
	{"Va", schema.Text},
	{"Ve", schema.Text},
	{"Mk", schema.Text},
	{"Cn", schema.Text},
	{"Ct", schema.Text},
	{"Cr", schema.Text},
	{"R", schema.SmallInt},
	{"M (kg)", schema.SmallInt},
	{"Mt", schema.SmallInt},
	{"Enedc (g/km)", schema.SmallInt},
	{"Ewltp (g/km)", schema.SmallInt},
	{"W (mm)", schema.SmallInt},
	{"At1 (mm)", schema.SmallInt},
	{"At2 (mm)", schema.SmallInt},
	{"Ft", schema.Text},
	{"Fm", schema.Text},
	{"Ec (cm3)", schema.SmallInt},
	{"Ep (KW)", schema.SmallInt},
	{"Z (Wh/km)", schema.SmallInt},
	{"IT", schema.Text},
	{"Ernedc (g/km)", schema.Float},
	{"Erwltp (g/km)", schema.Float},
	{"De", schema.Float},
	{"Vf", schema.SmallInt},
	{"Status", schema.Text},
	{"Year", schema.SmallInt},
	{"Date of registration", schema.Date},
	{"Fuel consumption", schema.SmallInt},
	{"Electric range (km)", schema.SmallInt},
}

// ElectricFuelTypes are the Ft labels routed to the electric partition.
var ElectricFuelTypes = []string{
	"diesel/electric",
	"Diesel-Electric",
	"Electric",
	"HYBRID/PETROL/E",
	"PETROL PHEV",
	"PETROL/ELECTRIC",
	"Petrol-Electric",
}

// Cars is the full-width table, keyed for a wide-column store.
func Cars() schema.Table {
	fields := make([]schema.Field, Width)
	for i, c := range csvColumns {
		fields[i] = schema.Field{Name: c.name, Type: c.typ, Pos: i}
	}
	return schema.Table{
		Name:          CarsTable,
		Schema:        schema.Schema{Width: Width, Fields: fields},
		PartitionKey:  []string{"Status", "Year", "Country", "Ft"},
		ClusteringKey: []string{"ID"},
	}.MarkRequired()
}

// vehicleColumns are the CSV columns kept by co2_vehicles, renamed to drop
// the unit suffixes.
var vehicleColumns = []struct {
	src  string
	name string
}{
	{"ID", "ID"},
	{"Country", "Country"},
	{"Mk", "Mk"},
	{"Cn", "Cn"},
	{"Ct", "Ct"},
	{"Cr", "Cr"},
	{"M (kg)", "M"},
	{"Enedc (g/km)", "Enedc"},
	{"W (mm)", "W"},
	{"At1 (mm)", "At1"},
	{"Ft", "Ft"},
	{"Ep (KW)", "Ep"},
	{"Z (Wh/km)", "Z"},
	{"Year", "Year"},
}

// Vehicles is the 14-column projection, partitioned by fuel type.
func Vehicles() schema.Table {
	fields := make([]schema.Field, 0, len(vehicleColumns))
	for _, vc := range vehicleColumns {
		pos := sourcePos(vc.src)
		fields = append(fields, schema.Field{Name: vc.name, Type: csvColumns[pos].typ, Pos: pos})
	}
	return schema.Table{
		Name:          VehiclesTable,
		Schema:        schema.Schema{Width: Width, Fields: fields},
		PartitionKey:  []string{"Year", "Country", "Ft"},
		ClusteringKey: []string{"ID"},
		NotNull:       []string{"Mk"},
		PartitionBy:   "Ft",
		Partitions: []schema.Partition{
			{Name: VehiclesTable + "_electric", Values: ElectricFuelTypes},
			{Name: VehiclesTable + "_thermal", Default: true},
		},
	}.MarkRequired()
}

func sourcePos(name string) int {
	for i, c := range csvColumns {
		if c.name == name {
			return i
		}
	}
	panic("co2: unknown source column " + name)
}

var registry = map[string]func() schema.Table{
	CarsTable:     Cars,
	VehiclesTable: Vehicles,
}

// Lookup returns the named table definition.
func Lookup(name string) (schema.Table, error) {
	fn, ok := registry[name]
	if !ok {
		return schema.Table{}, fmt.Errorf("co2: unknown table %q (known: %v)", name, Names())
	}
	return fn(), nil
}

// Names lists the known table names in sorted order.
func Names() []string {
	out := make([]string, 0, len(registry))
	for k := range registry {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
