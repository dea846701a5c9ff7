// Package mysql implements database.Source for MySQL on database/sql.
package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"

	"github.com/koustreak/stagegen/internal/database"
	"github.com/koustreak/stagegen/internal/errs"
)

// Driver is a MySQL implementation of database.Source backed by database/sql.
// It is safe for concurrent use by multiple goroutines.
type Driver struct {
	db *sql.DB
}

// New opens a MySQL connection pool using the provided Config and returns a Driver.
// It calls Ping to validate the connection before returning.
func New(ctx context.Context, cfg database.Config) (*Driver, error) {
	mc, err := mysql.ParseDSN(cfg.DSN)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid DSN", err)
	}
	if cfg.ConnectTimeout > 0 {
		mc.Timeout = cfg.ConnectTimeout
	}

	connector, err := mysql.NewConnector(mc)
	if err != nil {
		return nil, errs.Wrap(errs.ErrKindInvalidInput, "invalid DSN", err)
	}
	db := sql.OpenDB(connector)

	if cfg.MaxConns > 0 {
		db.SetMaxOpenConns(int(cfg.MaxConns))
	}
	db.SetMaxIdleConns(int(cfg.MinConns))
	db.SetConnMaxLifetime(cfg.MaxConnLifetime)
	db.SetConnMaxIdleTime(cfg.MaxConnIdleTime)

	d := &Driver{db: db}

	pingCtx := ctx
	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		pingCtx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := d.Ping(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return d, nil
}

// --- database.DB implementation ---

func (d *Driver) Ping(ctx context.Context) error {
	if err := d.db.PingContext(ctx); err != nil {
		return mapError(err, "ping failed")
	}
	return nil
}

func (d *Driver) Close() {
	_ = d.db.Close()
}

func (d *Driver) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	return d.query(ctx, "query failed", query, args...)
}

func (d *Driver) query(ctx context.Context, errMsg, query string, args ...any) (database.Rows, error) {
	rows, err := d.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapError(err, errMsg)
	}
	return &mysqlRows{rows: rows}, nil
}

// --- database.Introspector implementation ---

// ListTables returns the base tables of schema in name order. An empty
// schema means the connection's current database.
func (d *Driver) ListTables(ctx context.Context, schema string) ([]string, error) {
	const q = `
		SELECT table_name
		FROM information_schema.tables
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND table_type   = 'BASE TABLE'
		ORDER BY table_name`

	rows, err := d.query(ctx, "failed to list tables", q, schema)
	if err != nil {
		return nil, err
	}
	return database.CollectRows(rows, "failed to list tables", database.ScanString)
}

// InspectTable returns the columns and primary key of one table. MySQL
// reports key membership on the column itself, so one query is enough.
func (d *Driver) InspectTable(ctx context.Context, schema, table string) (*database.TableInfo, error) {
	const q = `
		SELECT c.column_name,
		       c.data_type,
		       c.is_nullable = 'YES',
		       c.column_default,
		       k.ordinal_position
		FROM information_schema.columns c
		LEFT JOIN information_schema.key_column_usage k
		  ON k.table_schema    = c.table_schema
		 AND k.table_name      = c.table_name
		 AND k.column_name     = c.column_name
		 AND k.constraint_name = 'PRIMARY'
		WHERE c.table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND c.table_name   = ?
		ORDER BY c.ordinal_position`

	rows, err := d.query(ctx, "failed to fetch columns", q, schema, table)
	if err != nil {
		return nil, err
	}
	type keyedColumn struct {
		col database.ColumnInfo
		pos sql.NullInt64
	}
	keyed, err := database.CollectRows(rows, "failed to fetch columns", func(r database.Rows) (keyedColumn, error) {
		var k keyedColumn
		err := r.Scan(&k.col.Name, &k.col.DataType, &k.col.Nullable, &k.col.Default, &k.pos)
		k.col.IsPrimary = k.pos.Valid
		return k, err
	})
	if err != nil {
		return nil, err
	}

	info := &database.TableInfo{Schema: schema, Name: table}
	keyPos := make([]sql.NullInt64, 0, len(keyed))
	for _, k := range keyed {
		info.Columns = append(info.Columns, k.col)
		keyPos = append(keyPos, k.pos)
	}
	if len(info.Columns) == 0 {
		return nil, errs.Newf(errs.ErrKindNotFound, "table %s not found or has no columns", table)
	}

	info.PrimaryKey = primaryKeyOrder(info.Columns, keyPos)
	return info, nil
}

// ListForeignKeys returns every foreign key column pair in schema.
func (d *Driver) ListForeignKeys(ctx context.Context, schema string) ([]database.ForeignKey, error) {
	const q = `
		SELECT constraint_name,
		       table_name,
		       column_name,
		       referenced_table_name,
		       referenced_column_name
		FROM information_schema.key_column_usage
		WHERE table_schema = COALESCE(NULLIF(?, ''), DATABASE())
		  AND referenced_table_name IS NOT NULL
		ORDER BY table_name, constraint_name, ordinal_position`

	rows, err := d.query(ctx, "failed to list foreign keys", q, schema)
	if err != nil {
		return nil, err
	}
	return database.CollectRows(rows, "failed to list foreign keys", database.ScanForeignKey)
}

// primaryKeyOrder returns key columns sorted by their position in the
// PRIMARY constraint, which may differ from column order.
func primaryKeyOrder(cols []database.ColumnInfo, pos []sql.NullInt64) []string {
	var pk []string
	for want := int64(1); ; want++ {
		found := false
		for i, p := range pos {
			if p.Valid && p.Int64 == want {
				pk = append(pk, cols[i].Name)
				found = true
				break
			}
		}
		if !found {
			return pk
		}
	}
}

// --- sql.DB type wrappers ---

type mysqlRows struct {
	rows *sql.Rows
}

func (r *mysqlRows) Next() bool             { return r.rows.Next() }
func (r *mysqlRows) Scan(dest ...any) error { return nilIfNoError(r.rows.Scan(dest...), "scan failed") }
func (r *mysqlRows) Close()                 { _ = r.rows.Close() }
func (r *mysqlRows) Err() error             { return nilIfNoError(r.rows.Err(), "row iteration failed") }

// --- error mapping ---

// MySQL server error numbers used for classification.
// Full list: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	errDBAccessDenied    = 1044
	errAccessDenied      = 1045
	errNoDatabase        = 1046
	errUnknownDatabase   = 1049
	errTooManyConns      = 1040
	errTooManyUserConns  = 1203
	errTableAccessDenied = 1142
	errColAccessDenied   = 1143
	errNoSuchTable       = 1146
	errQueryInterrupted  = 1317
	errLockWaitTimeout   = 1205
)

// mapError translates go-sql-driver/mysql errors into *errs.Error.
func mapError(err error, msg string) *errs.Error {
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return errs.FromContext(msg, err)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return errs.Wrap(errs.ErrKindNotFound, msg, err)
	}

	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return errs.Wrap(
			classifyMySQLCode(mysqlErr.Number),
			fmt.Sprintf("%s: %s", msg, mysqlErr.Message),
			err,
		)
	}

	return errs.Wrap(errs.ErrKindConnectionFailed, msg, err)
}

// classifyMySQLCode maps MySQL error numbers to ErrKind.
func classifyMySQLCode(code uint16) errs.ErrKind {
	switch code {
	case errDBAccessDenied, errAccessDenied, errTableAccessDenied, errColAccessDenied:
		return errs.ErrKindPermissionDenied
	case errNoDatabase, errTooManyConns, errTooManyUserConns:
		return errs.ErrKindConnectionFailed
	case errUnknownDatabase, errNoSuchTable:
		return errs.ErrKindNotFound
	case errQueryInterrupted, errLockWaitTimeout:
		return errs.ErrKindTimeout
	default:
		return errs.ErrKindQueryFailed
	}
}

// nilIfNoError keeps a nil error an untyped nil after mapping.
func nilIfNoError(err error, msg string) error {
	if err == nil {
		return nil
	}
	return mapError(err, msg)
}
