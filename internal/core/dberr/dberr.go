// Package dberr classifies raw database driver failures into a closed set of
// semantic kinds, and separates infrastructure failures from domain errors
// at the transaction boundary.
//
// Domain code branches on Kind instead of matching SQLSTATE codes or pgx
// sentinel errors directly.
package dberr

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Kind is the semantic category of a database failure.
// The string values are stable and safe to branch on or persist.
type Kind string

const (
	KindUniqueConstraint     Kind = "UNIQUE_CONSTRAINT"
	KindRecordNotFound       Kind = "RECORD_NOT_FOUND"
	KindForeignKeyConstraint Kind = "FOREIGN_KEY_CONSTRAINT"
	KindNullConstraint       Kind = "NULL_CONSTRAINT"
	KindValidation           Kind = "VALIDATION_ERROR"
	KindRelationViolation    Kind = "RELATION_VIOLATION"
	KindUnknown              Kind = "UNKNOWN"
)

// SQLSTATE codes recognized by Classify and Retryable.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
	codeCheckViolation      = "23514"
	codeUndefinedTable      = "42P01"
	codeSerializationFail   = "40001"
)

// Classify assigns a Kind to an arbitrary failure value.
// It is pure and total: nil and unrecognized errors classify as KindUnknown.
// Classification is based solely on the driver's SQLSTATE code, plus the
// pgx no-rows sentinel.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return KindRecordNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return KindUnknown
	}

	switch pgErr.Code {
	case codeUniqueViolation:
		return KindUniqueConstraint
	case codeForeignKeyViolation:
		return KindForeignKeyConstraint
	case codeNotNullViolation:
		return KindNullConstraint
	case codeCheckViolation:
		return KindValidation
	case codeUndefinedTable:
		return KindRelationViolation
	}
	// Class 22 covers data exceptions (invalid text representation, numeric
	// overflow, ...), surfaced to callers as validation failures.
	if strings.HasPrefix(pgErr.Code, "22") {
		return KindValidation
	}
	return KindUnknown
}

// Retryable reports whether err represents a transient condition (deadlock
// or serialization conflict) worth retrying.
//
// The transient set is deliberately narrow: SQLSTATE 40001, or a message
// matching (case-insensitively) "serialization", "deadlock" or
// "could not serialize access". Do not broaden without changing the callers'
// retry contract.
func Retryable(err error) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == codeSerializationFail {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "serialization") ||
		strings.Contains(msg, "deadlock") ||
		strings.Contains(msg, "could not serialize access")
}

// Error is a database-failure error: a raw driver failure wrapped with its
// classified kind and the operation that produced it. It is the discriminant
// that lets the transaction coordinator tell infrastructure failures apart
// from domain errors crossing the rollback boundary.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// Wrap classifies err and wraps it into an *Error.
// Returns nil when err is nil.
func Wrap(op string, err error) *Error {
	if err == nil {
		return nil
	}
	return &Error{Kind: Classify(err), Op: op, Err: err}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s: %v", e.Kind, e.Err)
}

// Unwrap returns the raw driver failure.
func (e *Error) Unwrap() error {
	return e.Err
}

// As extracts *Error from an error chain.
func As(err error) (*Error, bool) {
	var dbErr *Error
	if errors.As(err, &dbErr) {
		return dbErr, true
	}
	return nil, false
}

// IsKind checks whether err is a database failure of the given kind.
func IsKind(err error, kind Kind) bool {
	if dbErr, ok := As(err); ok {
		return dbErr.Kind == kind
	}
	return false
}
