// Package errs provides the unified error type used across all of stagegen.
//
// The generation pipeline reports structured failures (which table, which
// column) through *errs.Error, and every driver (database, filestore, server)
// wraps its native errors into the same type before returning them. Callers
// use the Is* predicates to handle errors without importing driver-specific
// packages.
//
// Usage:
//
//	// In the inference engine, identify the offending table and column:
//	return errs.ForColumn(errs.ErrKindMissingKeyColumn, "ORDERS", "ORDERS_ID",
//	    "primary key column not found in header")
//
//	// In a driver, wrap native errors:
//	return errs.Wrap(errs.ErrKindTimeout, "query timed out", pgErr)
//
//	// In a handler, check error kind:
//	if errs.IsEmptyInput(err) {
//	    http.Error(w, "no extracts", http.StatusBadRequest)
//	}
package errs

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrKind categorises an error without exposing subsystem-specific codes.
type ErrKind int

const (
	ErrKindUnknown ErrKind = iota

	// Generation pipeline
	ErrKindEmptyInput           // no table extracts supplied
	ErrKindSchemaParse          // schema document is not well-formed
	ErrKindReferentialIntegrity // foreign key target missing or not a key
	ErrKindMissingKeyColumn     // primary key column absent from the header
	ErrKindNameCollision        // two extracts normalise to one table name
	ErrKindInvalidInput         // bad arguments from the caller

	// Backends
	ErrKindNotFound         // no rows, no object, no bucket
	ErrKindConnectionFailed // cannot reach the backend
	ErrKindTimeout          // context deadline exceeded
	ErrKindQueryFailed      // SQL or storage operation error
	ErrKindPermissionDenied // access denied / auth failure
	ErrKindCanceled         // caller gave up before the work finished
)

func (k ErrKind) String() string {
	switch k {
	case ErrKindEmptyInput:
		return "empty_input"
	case ErrKindSchemaParse:
		return "schema_parse"
	case ErrKindReferentialIntegrity:
		return "referential_integrity"
	case ErrKindMissingKeyColumn:
		return "missing_key_column"
	case ErrKindNameCollision:
		return "name_collision"
	case ErrKindInvalidInput:
		return "invalid_input"
	case ErrKindNotFound:
		return "not_found"
	case ErrKindConnectionFailed:
		return "connection_failed"
	case ErrKindTimeout:
		return "timeout"
	case ErrKindQueryFailed:
		return "query_failed"
	case ErrKindPermissionDenied:
		return "permission_denied"
	case ErrKindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by all stagegen subsystems.
// Table and Column are set when the failure can be pinned to a catalog entry.
type Error struct {
	Kind    ErrKind
	Message string
	Table   string
	Column  string
	Cause   error // original driver-level error, preserved for logging
}

func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString("[")
	sb.WriteString(e.Kind.String())
	sb.WriteString("] ")
	switch {
	case e.Table != "" && e.Column != "":
		sb.WriteString(e.Table + "." + e.Column + ": ")
	case e.Table != "":
		sb.WriteString(e.Table + ": ")
	}
	sb.WriteString(e.Message)
	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}
	return sb.String()
}

// Unwrap allows errors.Is / errors.As to traverse the cause chain.
func (e *Error) Unwrap() error {
	return e.Cause
}

// --- Constructors ---

// New creates an *Error with the given kind and message and no cause.
func New(kind ErrKind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf is New with a format string.
func Newf(kind ErrKind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap creates an *Error with the given kind, message, and an underlying cause.
func Wrap(kind ErrKind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Cause: cause}
}

// FromContext wraps a context error. An expired deadline is a Timeout;
// any other cancellation is Canceled.
func FromContext(msg string, err error) *Error {
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(ErrKindTimeout, msg, err)
	}
	return Wrap(ErrKindCanceled, msg, err)
}

// ForTable creates an *Error attributed to a table.
func ForTable(kind ErrKind, table, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Table: table}
}

// ForColumn creates an *Error attributed to a single column of a table.
func ForColumn(kind ErrKind, table, column, msg string) *Error {
	return &Error{Kind: kind, Message: msg, Table: table, Column: column}
}

// --- Predicates ---

// IsEmptyInput reports whether err was caused by an empty extract set.
func IsEmptyInput(err error) bool {
	return hasKind(err, ErrKindEmptyInput)
}

// IsSchemaParse reports whether err was caused by a malformed schema document.
func IsSchemaParse(err error) bool {
	return hasKind(err, ErrKindSchemaParse)
}

// IsReferentialIntegrity reports whether err contains a foreign key violation.
func IsReferentialIntegrity(err error) bool {
	return hasKind(err, ErrKindReferentialIntegrity)
}

// IsMissingKeyColumn reports whether err contains a missing primary key column.
func IsMissingKeyColumn(err error) bool {
	return hasKind(err, ErrKindMissingKeyColumn)
}

// IsNameCollision reports whether two extracts mapped to the same table.
func IsNameCollision(err error) bool {
	return hasKind(err, ErrKindNameCollision)
}

// IsNotFound reports whether err represents a "not found" result
// (no rows, missing object, unknown table/bucket, …).
func IsNotFound(err error) bool {
	return hasKind(err, ErrKindNotFound)
}

// IsTimeout reports whether err was caused by an expired deadline.
func IsTimeout(err error) bool {
	return hasKind(err, ErrKindTimeout)
}

// IsCanceled reports whether the caller cancelled the work.
func IsCanceled(err error) bool {
	return hasKind(err, ErrKindCanceled)
}

// IsConnectionFailed reports whether err is a connectivity or auth failure.
func IsConnectionFailed(err error) bool {
	return hasKind(err, ErrKindConnectionFailed)
}

// IsQueryFailed reports whether err is a backend operation failure
// (SQL execution error, storage I/O error, …).
func IsQueryFailed(err error) bool {
	return hasKind(err, ErrKindQueryFailed)
}

// IsInvalidInput reports whether err was caused by bad input from the caller.
func IsInvalidInput(err error) bool {
	return hasKind(err, ErrKindInvalidInput)
}

// IsPermissionDenied reports whether err is an access control failure.
func IsPermissionDenied(err error) bool {
	return hasKind(err, ErrKindPermissionDenied)
}

// KindOf returns the kind of the first *Error in the chain.
func KindOf(err error) ErrKind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ErrKindUnknown
}

// All returns every *Error reachable from err, flattening errors.Join trees
// in order. Inference failures are reported per table this way.
func All(err error) []*Error {
	var out []*Error
	var walk func(error)
	walk = func(err error) {
		if err == nil {
			return
		}
		if e, ok := err.(*Error); ok {
			out = append(out, e)
			return
		}
		switch u := err.(type) {
		case interface{ Unwrap() []error }:
			for _, inner := range u.Unwrap() {
				walk(inner)
			}
		case interface{ Unwrap() error }:
			walk(u.Unwrap())
		}
	}
	walk(err)
	return out
}

// hasKind reports whether any *Error in err's tree has the given kind.
func hasKind(err error, kind ErrKind) bool {
	for _, e := range All(err) {
		if e.Kind == kind {
			return true
		}
	}
	return false
}
