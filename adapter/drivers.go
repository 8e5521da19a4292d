package adapter

import (
	// Registered drivers selectable by name in Open.
	_ "github.com/jackc/pgx/v5/stdlib" // "pgx"
	_ "github.com/lib/pq"              // "postgres"
	_ "github.com/mattn/go-sqlite3"    // "sqlite3"
)

// Driver names accepted by Open
const (
	DriverPgx      = "pgx"
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite3"
)

// KnownDriver reports whether Open accepts the driver name
func KnownDriver(name string) bool {
	switch name {
	case DriverPgx, DriverPostgres, DriverSQLite:
		return true
	}
	return false
}
