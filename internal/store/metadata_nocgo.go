//go:build !cgo

package store

const cgoSQLiteAvailable = false
