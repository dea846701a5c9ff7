// Package postgres implements database.Source for PostgreSQL on pgxpool.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/koustreak/stagegen/internal/database"
	"github.com/koustreak/stagegen/internal/errs"
)

// DefaultSchema is introspected when the config leaves Schema empty.
const DefaultSchema = "public"

// Driver is a PostgreSQL implementation of database.Source backed by pgxpool.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	pool *pgxpool.Pool
}

// New connects to PostgreSQL using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg database.Config) (*Driver, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid DSN", err)
	}

	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	poolCfg.MinConns = cfg.MinConns
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	if cfg.MaxConnIdleTime > 0 {
		poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime
	}
	if cfg.ConnectTimeout > 0 {
		poolCfg.ConnConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, mapError(err, "failed to create connection pool")
	}

	d := &Driver{pool: pool}
	if err := d.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return d, nil
}

// --- database.DB implementation ---

// Ping verifies the database is reachable by acquiring and releasing a connection.
func (d *Driver) Ping(ctx context.Context) error {
	if err := d.pool.Ping(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

// Close drains the connection pool.
func (d *Driver) Close() {
	d.pool.Close()
}

// Query executes a SQL statement that returns multiple rows.
func (d *Driver) Query(ctx context.Context, sql string, args ...any) (database.Rows, error) {
	return d.query(ctx, "query failed", sql, args...)
}

func (d *Driver) query(ctx context.Context, errMsg, sql string, args ...any) (database.Rows, error) {
	rows, err := d.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, mapError(err, errMsg)
	}
	return &pgxRows{rows: rows}, nil
}

// --- database.Introspector implementation ---

// ListTables returns the base tables of schema in name order.
func (d *Driver) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = $1
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	return d.fetchStringList(ctx, "failed to list tables", q, schemaOrDefault(schema))
}

// InspectTable returns the columns and primary key of one table.
func (d *Driver) InspectTable(ctx context.Context, schema, table string) (*database.TableInfo, error) {
	schema = schemaOrDefault(schema)

	columns, err := d.fetchColumns(ctx, schema, table)
	if err != nil {
		return nil, err
	}
	if len(columns) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s.%s not found or has no columns", schema, table)
	}

	pks, err := d.fetchPrimaryKey(ctx, schema, table)
	if err != nil {
		return nil, err
	}

	pkSet := toSet(pks)
	for i := range columns {
		columns[i].IsPrimary = pkSet[columns[i].Name]
	}

	return &database.TableInfo{
		Schema:     schema,
		Name:       table,
		Columns:    columns,
		PrimaryKey: pks,
	}, nil
}

// ListForeignKeys returns every foreign key column pair in schema. The
// referenced column is matched by position, so composite keys pair up
// correctly.
func (d *Driver) ListForeignKeys(ctx context.Context, schema string) ([]database.ForeignKey, error) {
	const q = `
		SELECT tc.constraint_name,
		       kcu.table_name,
		       kcu.column_name,
		       ref.table_name,
		       ref.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		JOIN information_schema.referential_constraints rc
		  ON rc.constraint_name   = tc.constraint_name
		 AND rc.constraint_schema = tc.table_schema
		JOIN information_schema.key_column_usage ref
		  ON ref.constraint_name   = rc.unique_constraint_name
		 AND ref.constraint_schema = rc.unique_constraint_schema
		 AND ref.ordinal_position  = kcu.position_in_unique_constraint
		WHERE tc.constraint_type = 'FOREIGN KEY'
		  AND tc.table_schema    = $1
		ORDER BY kcu.table_name, tc.constraint_name, kcu.ordinal_position`

	rows, err := d.query(ctx, "failed to list foreign keys", q, schemaOrDefault(schema))
	if err != nil {
		return nil, err
	}
	return database.CollectRows(rows, "failed to list foreign keys", database.ScanForeignKey)
}

func (d *Driver) fetchColumns(ctx context.Context, schema, table string) ([]database.ColumnInfo, error) {
	const q = `
		SELECT column_name,
		       data_type,
		       is_nullable = 'YES',
		       column_default
		FROM information_schema.columns
		WHERE table_schema = $1
		  AND table_name   = $2
		ORDER BY ordinal_position`

	rows, err := d.query(ctx, "failed to fetch columns", q, schema, table)
	if err != nil {
		return nil, err
	}
	return database.CollectRows(rows, "failed to fetch columns", func(r database.Rows) (database.ColumnInfo, error) {
		var c database.ColumnInfo
		err := r.Scan(&c.Name, &c.DataType, &c.Nullable, &c.Default)
		return c, err
	})
}

func (d *Driver) fetchPrimaryKey(ctx context.Context, schema, table string) ([]string, error) {
	const q = `
		SELECT kcu.column_name
		FROM information_schema.table_constraints tc
		JOIN information_schema.key_column_usage kcu
		  ON tc.constraint_name = kcu.constraint_name
		 AND tc.table_schema    = kcu.table_schema
		WHERE tc.constraint_type = 'PRIMARY KEY'
		  AND tc.table_schema    = $1
		  AND tc.table_name      = $2
		ORDER BY kcu.ordinal_position`

	return d.fetchStringList(ctx, "failed to fetch primary key", q, schema, table)
}

// fetchStringList is a helper for queries that return a single text column.
func (d *Driver) fetchStringList(ctx context.Context, errMsg, q string, args ...any) ([]string, error) {
	rows, err := d.query(ctx, errMsg, q, args...)
	if err != nil {
		return nil, err
	}
	return database.CollectRows(rows, errMsg, database.ScanString)
}

// --- pgx type wrappers ---

// pgxRows wraps pgx.Rows to satisfy database.Rows.
type pgxRows struct {
	rows pgx.Rows
}

func (r *pgxRows) Next() bool             { return r.rows.Next() }
func (r *pgxRows) Scan(dest ...any) error { return nilIfNoError(r.rows.Scan(dest...), "scan failed") }
func (r *pgxRows) Close()                 { r.rows.Close() }
func (r *pgxRows) Err() error             { return nilIfNoError(r.rows.Err(), "row iteration failed") }

// --- error mapping ---

// PostgreSQL SQLSTATE classes and codes used for classification.
// Full list: https://www.postgresql.org/docs/current/errcodes-appendix.html
const (
	pgClassConnection       = "08"
	pgClassInvalidAuth      = "28"
	pgErrInsufficientPrivs  = "42501"
	pgErrUndefinedTable     = "42P01"
	pgErrInvalidCatalogName = "3D000"
	pgErrInvalidSchemaName  = "3F000"
	pgErrQueryCanceled      = "57014"
	pgErrTooManyConnections = "53300"
	pgErrCannotConnectNow   = "57P03"
	pgErrAdminShutdown      = "57P01"
)

// mapError translates pgx / pgconn native errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	// Context cancellation / deadline exceeded
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.FromContext(msg, err)
	}

	if errors.Is(err, pgx.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	// Postgres server-side error (SQLSTATE codes)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return errs.Wrap(classifySQLState(pgErr.Code), fmt.Sprintf("%s: %s", msg, pgErr.Message), err)
	}

	// Fallthrough: connection-level errors (TLS, network, dial)
	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

func classifySQLState(code string) errs.ErrKind {
	switch code {
	case pgErrInsufficientPrivs:
		return errs.ErrKindPermissionDenied
	case pgErrUndefinedTable, pgErrInvalidCatalogName, pgErrInvalidSchemaName:
		return errs.ErrKindNotFound
	case pgErrQueryCanceled:
		return errs.ErrKindTimeout
	case pgErrTooManyConnections, pgErrCannotConnectNow, pgErrAdminShutdown:
		return errs.ErrKindConnectionFailed
	}
	if len(code) >= 2 {
		switch code[:2] {
		case pgClassConnection:
			return errs.ErrKindConnectionFailed
		case pgClassInvalidAuth:
			return errs.ErrKindPermissionDenied
		}
	}
	return errs.ErrKindQueryFailed
}

// nilIfNoError keeps a nil error an untyped nil after mapping.
func nilIfNoError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return mapError(err, msg)
}

// --- helpers ---

func schemaOrDefault(schema string) string {
	if schema == "" {
		return DefaultSchema
	}
	return schema
}

func toSet(ss []string) map[string]bool {
	m := make(map[string]bool, len(ss))
	for _, s := range ss {
		m[s] = true
	}
	return m
}
