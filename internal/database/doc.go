// Package database provides the PostgreSQL connection pool used by the
// notification store.
package database
