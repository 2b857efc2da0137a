//go:build cgo_sqlite

// Package sqlitecgo registers the CGO SQLite driver using mattn/go-sqlite3.
//
// This is an optional external dependency, kept isolated from
// internal/sqlitegw so that the default build stays pure Go and
// CGO-free.
//
// Build with: go build -tags cgo_sqlite
// Requires: CGO_ENABLED=1
package sqlitecgo

import (
	_ "github.com/mattn/go-sqlite3" // CGO SQLite driver
)

const (
	// DriverName is the SQL driver name to use with database/sql.
	DriverName = "sqlite3"

	// DriverType identifies this as the CGO implementation.
	DriverType = "cgo"

	// DriverPackage is the import path of the underlying driver.
	DriverPackage = "github.com/mattn/go-sqlite3"
)
