// Package database reads table structure from a live Postgres or MySQL
// database. Drivers live in subpackages; everything above this package
// talks only to the interfaces defined here.
package database

import (
	"context"

	"github.com/koustreak/stagegen/internal/errs"
)

// DB is the read-only connection contract shared by all drivers.
type DB interface {
	// Ping verifies the database is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources held by the connection pool.
	Close()

	// Query executes a SQL statement that returns multiple rows.
	Query(ctx context.Context, sql string, args ...any) (Rows, error)
}

// Rows is an abstraction over a database result set.
// Callers must always call Close() when done, even on error.
type Rows interface {
	Next() bool
	Scan(dest ...any) error
	Close()
	Err() error
}

// Source is a connected driver that can also describe its schema.
type Source interface {
	DB
	Introspector
}

// CollectRows calls scan once per row and closes rows before returning.
// A failure keeps its kind and is reported under msg.
func CollectRows[T any](rows Rows, msg string, scan func(Rows) (T, error)) ([]T, error) {
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, errs.Wrap(errs.KindOf(err), msg, err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, errs.Wrap(errs.KindOf(err), msg, err)
	}
	return out, nil
}

// ScanString reads a single text column.
func ScanString(r Rows) (string, error) {
	var s string
	err := r.Scan(&s)
	return s, err
}

// ScanForeignKey reads (constraint, table, column, referenced table,
// referenced column).
func ScanForeignKey(r Rows) (ForeignKey, error) {
	var fk ForeignKey
	err := r.Scan(&fk.Name, &fk.FromTable, &fk.FromColumn, &fk.ToTable, &fk.ToColumn)
	return fk, err
}
