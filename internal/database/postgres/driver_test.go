package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/koustreak/stagegen/internal/database"
	"github.com/koustreak/stagegen/internal/errs"
)

var _ database.Source = (*Driver)(nil)

func TestMapError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want errs.ErrKind
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: errs.ErrKindTimeout},
		{name: "wrapped cancel", err: fmt.Errorf("acquire: %w", context.Canceled), want: errs.ErrKindCanceled},
		{name: "no rows", err: pgx.ErrNoRows, want: errs.ErrKindNotFound},
		{name: "connection class", err: &pgconn.PgError{Code: "08006"}, want: errs.ErrKindConnectionFailed},
		{name: "auth class", err: &pgconn.PgError{Code: "28P01"}, want: errs.ErrKindPermissionDenied},
		{name: "insufficient privilege", err: &pgconn.PgError{Code: "42501"}, want: errs.ErrKindPermissionDenied},
		{name: "undefined table", err: &pgconn.PgError{Code: "42P01"}, want: errs.ErrKindNotFound},
		{name: "unknown database", err: &pgconn.PgError{Code: "3D000"}, want: errs.ErrKindNotFound},
		{name: "statement timeout", err: &pgconn.PgError{Code: "57014"}, want: errs.ErrKindTimeout},
		{name: "too many connections", err: &pgconn.PgError{Code: "53300"}, want: errs.ErrKindConnectionFailed},
		{name: "syntax", err: &pgconn.PgError{Code: "42601", Message: "syntax error"}, want: errs.ErrKindQueryFailed},
		{name: "network", err: errors.New("dial tcp: connection refused"), want: errs.ErrKindConnectionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := mapError(tt.err, "op")
			require.NotNil(t, got)
			assert.Equal(t, tt.want, got.Kind)
			assert.ErrorIs(t, got, tt.err)
		})
	}
}

func TestMapError_Nil(t *testing.T) {
	assert.Nil(t, mapError(nil, "op"))
	assert.NoError(t, nilIfNoError(nil, "op"))
}

func TestMapError_IncludesServerMessage(t *testing.T) {
	err := mapError(&pgconn.PgError{Code: "42601", Message: "syntax error at or near \"FORM\""}, "query failed")
	assert.Contains(t, err.Error(), "query failed: syntax error")
}

func TestSchemaOrDefault(t *testing.T) {
	assert.Equal(t, DefaultSchema, schemaOrDefault(""))
	assert.Equal(t, "raw", schemaOrDefault("raw"))
}

type stubRows struct {
	pgx.Rows
	rows    [][]string
	scanErr error
	closed  bool
}

func (s *stubRows) Next() bool { return len(s.rows) > 0 }

func (s *stubRows) Scan(dest ...any) error {
	if s.scanErr != nil {
		return s.scanErr
	}
	row := s.rows[0]
	s.rows = s.rows[1:]
	for i := range dest {
		*dest[i].(*string) = row[i]
	}
	return nil
}

func (s *stubRows) Err() error { return nil }
func (s *stubRows) Close()     { s.closed = true }

func TestPgxRows_CollectForeignKeys(t *testing.T) {
	stub := &stubRows{rows: [][]string{{"orders_customer_fk", "orders", "customer_id", "customers", "customer_id"}}}

	fks, err := database.CollectRows(&pgxRows{rows: stub}, "failed to list foreign keys", database.ScanForeignKey)
	require.NoError(t, err)
	assert.True(t, stub.closed)
	assert.Equal(t, []database.ForeignKey{{
		Name: "orders_customer_fk", FromTable: "orders", FromColumn: "customer_id",
		ToTable: "customers", ToColumn: "customer_id",
	}}, fks)
}

func TestPgxRows_MapsScanError(t *testing.T) {
	stub := &stubRows{rows: [][]string{{"x"}}, scanErr: &pgconn.PgError{Code: "42501", Message: "permission denied"}}

	_, err := database.CollectRows(&pgxRows{rows: stub}, "failed to list tables", database.ScanString)
	require.Error(t, err)
	assert.True(t, errs.IsPermissionDenied(err))
	assert.Contains(t, err.Error(), "failed to list tables")
	assert.True(t, stub.closed)

	ok := &pgxRows{rows: &stubRows{}}
	assert.NoError(t, ok.Err())
}
