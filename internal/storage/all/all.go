// Package all wires all built-in storage backends into the storage factory.
//
// This package exists purely for side effects: importing it (even as a blank
// import) runs the init functions of each concrete backend, which register
// their factories and DDL bootstrappers with the storage package.
//
// Importing it makes the following storage kinds available at runtime:
//
//   - "cassandra" (co2load/internal/storage/cassandra)
//   - "postgres"  (co2load/internal/storage/postgres)
//   - "mssql"     (co2load/internal/storage/mssql)
//   - "mysql"     (co2load/internal/storage/mysql)
//   - "sqlite"    (co2load/internal/storage/sqlite)
//
// Typical usage, in cmd/co2load/main.go:
//
//	import (
//	    _ "co2load/internal/storage/all" // enable all built-in backends
//
//	    "co2load/internal/storage"
//	)
//
//	sink, err := storage.New(ctx, storage.Config{Kind: "postgres", DSN: dsn, Table: table})
//	if err != nil {
//	    // handle error
//	}
//	defer sink.Close()
//
// A binary that supports only a subset of backends can import those packages
// directly instead of this one.
package all

import (
	_ "co2load/internal/storage/cassandra"
	_ "co2load/internal/storage/mssql"
	_ "co2load/internal/storage/mysql"
	_ "co2load/internal/storage/postgres"
	_ "co2load/internal/storage/sqlite"
)
