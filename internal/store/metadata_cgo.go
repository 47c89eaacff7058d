//go:build cgo

package store

import (
	_ "github.com/mattn/go-sqlite3" // registers "sqlite3"
)

// cgoSQLiteAvailable reports whether the "sqlite3" metadata driver is linked in.
const cgoSQLiteAvailable = true
