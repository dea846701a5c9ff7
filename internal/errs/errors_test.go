package errs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestError_Message(t *testing.T) {
	tests := []struct {
		name string
		err  *Error
		want string
	}{
		{
			name: "kind and message",
			err:  New(ErrKindEmptyInput, "no table extracts supplied"),
			want: "[empty_input] no table extracts supplied",
		},
		{
			name: "table attributed",
			err:  ForTable(ErrKindNameCollision, "ORDERS", "duplicate table"),
			want: "[name_collision] ORDERS: duplicate table",
		},
		{
			name: "column attributed",
			err:  ForColumn(ErrKindMissingKeyColumn, "CUSTOMERS", "CUSTOMERS_ID", "not in header"),
			want: "[missing_key_column] CUSTOMERS.CUSTOMERS_ID: not in header",
		},
		{
			name: "with cause",
			err:  Wrap(ErrKindTimeout, "query timed out", context.DeadlineExceeded),
			want: "[timeout] query timed out: context deadline exceeded",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.err.Error())
		})
	}
}

func TestPredicates_TraverseWrapping(t *testing.T) {
	base := ForColumn(ErrKindReferentialIntegrity, "ORDERS", "VENDOR_ID", "unknown table VENDORS")
	wrapped := fmt.Errorf("generate: %w", base)

	assert.True(t, IsReferentialIntegrity(wrapped))
	assert.False(t, IsMissingKeyColumn(wrapped))
	assert.Equal(t, ErrKindReferentialIntegrity, KindOf(wrapped))
}

func TestPredicates_TraverseJoin(t *testing.T) {
	joined := errors.Join(
		ForColumn(ErrKindMissingKeyColumn, "CUSTOMERS", "CUSTOMERS_ID", "not in header"),
		ForColumn(ErrKindReferentialIntegrity, "ORDERS", "VENDOR_ID", "unknown table"),
	)

	assert.True(t, IsMissingKeyColumn(joined))
	assert.True(t, IsReferentialIntegrity(joined))
	assert.False(t, IsSchemaParse(joined))

	all := All(joined)
	require.Len(t, all, 2)
	assert.Equal(t, "CUSTOMERS", all[0].Table)
	assert.Equal(t, "ORDERS", all[1].Table)
}

func TestUnwrap_PreservesCause(t *testing.T) {
	err := Wrap(ErrKindTimeout, "timed out", context.DeadlineExceeded)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.True(t, IsTimeout(err))
}

func TestFromContext(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrKind
	}{
		{name: "deadline", err: context.DeadlineExceeded, want: ErrKindTimeout},
		{name: "wrapped deadline", err: fmt.Errorf("acquire: %w", context.DeadlineExceeded), want: ErrKindTimeout},
		{name: "cancel", err: context.Canceled, want: ErrKindCanceled},
		{name: "wrapped cancel", err: fmt.Errorf("acquire: %w", context.Canceled), want: ErrKindCanceled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := FromContext("op", tt.err)
			assert.Equal(t, tt.want, err.Kind)
			assert.ErrorIs(t, err, tt.err)
			assert.Equal(t, tt.want == ErrKindCanceled, IsCanceled(err))
			assert.Equal(t, tt.want == ErrKindTimeout, IsTimeout(err))
		})
	}
	assert.Equal(t, "canceled", ErrKindCanceled.String())
}

func TestKindOf_Unknown(t *testing.T) {
	assert.Equal(t, ErrKindUnknown, KindOf(errors.New("plain")))
	assert.Equal(t, "unknown", ErrKindUnknown.String())
	assert.Nil(t, All(nil))
}
