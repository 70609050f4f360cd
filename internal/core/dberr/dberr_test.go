package dberr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
)

func pgErr(code, message string) *pgconn.PgError {
	return &pgconn.PgError{Code: code, Message: message}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, KindUnknown},
		{"unique violation", pgErr("23505", "duplicate key value"), KindUniqueConstraint},
		{"foreign key violation", pgErr("23503", "violates foreign key constraint"), KindForeignKeyConstraint},
		{"not null violation", pgErr("23502", "null value in column"), KindNullConstraint},
		{"check violation", pgErr("23514", "violates check constraint"), KindValidation},
		{"data exception", pgErr("22P02", "invalid input syntax"), KindValidation},
		{"undefined table", pgErr("42P01", "relation does not exist"), KindRelationViolation},
		{"no rows", pgx.ErrNoRows, KindRecordNotFound},
		{"wrapped no rows", fmt.Errorf("get record: %w", pgx.ErrNoRows), KindRecordNotFound},
		{"unrecognized code", pgErr("P0001", "raised exception"), KindUnknown},
		{"plain error", errors.New("boom"), KindUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}

func TestRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"serialization failure code", pgErr("40001", "canceling statement"), true},
		{"deadlock message", pgErr("40P01", "deadlock detected"), true},
		{"serialize access message", errors.New("ERROR: could not serialize access due to concurrent update"), true},
		{"serialization message uppercase", errors.New("SERIALIZATION conflict"), true},
		{"unique violation", pgErr("23505", "duplicate key value"), false},
		{"plain error", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Retryable(tt.err))
		})
	}
}

func TestWrap(t *testing.T) {
	cause := pgErr("23505", "duplicate key value")
	err := Wrap("insert record", cause)

	assert.Equal(t, KindUniqueConstraint, err.Kind)
	assert.Equal(t, "insert record", err.Op)
	assert.ErrorIs(t, err, cause)

	// Classification happens once at wrap time and sticks.
	wrapped := fmt.Errorf("outer: %w", err)
	dbErr, ok := As(wrapped)
	assert.True(t, ok)
	assert.Equal(t, KindUniqueConstraint, dbErr.Kind)
	assert.True(t, IsKind(wrapped, KindUniqueConstraint))
	assert.False(t, IsKind(wrapped, KindRecordNotFound))
}

func TestWrapNil(t *testing.T) {
	assert.Nil(t, Wrap("noop", nil))
}

func TestIsKindPlainError(t *testing.T) {
	assert.False(t, IsKind(errors.New("boom"), KindUnknown))
}
