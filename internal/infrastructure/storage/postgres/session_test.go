package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"strata/internal/core/dberr"
)

func TestExecute_WrapsRawFailures(t *testing.T) {
	s := NewSessionFromQuerier(&fakeDB{})

	err := s.Execute(context.Background(), "insert accounts",
		func(ctx context.Context, q Querier) error {
			return &pgconn.PgError{Code: "23505", Message: "duplicate key value"}
		}, nil)

	require.Error(t, err)
	dbErr, ok := dberr.As(err)
	require.True(t, ok)
	assert.Equal(t, dberr.KindUniqueConstraint, dbErr.Kind)
	assert.Equal(t, "insert accounts", dbErr.Op)
}

func TestExecute_MapperReplacesFailure(t *testing.T) {
	s := NewSessionFromQuerier(&fakeDB{})

	mapped := errors.New("account already exists")
	cause := &pgconn.PgError{Code: "23505"}

	err := s.Execute(context.Background(), "insert accounts",
		func(ctx context.Context, q Querier) error {
			return cause
		},
		func(raw error) error {
			assert.Equal(t, error(cause), raw, "mapper receives the raw cause")
			return mapped
		})

	assert.Equal(t, mapped, err)
}

func TestExecute_SuccessSkipsMapping(t *testing.T) {
	s := NewSessionFromQuerier(&fakeDB{})

	err := s.Execute(context.Background(), "noop",
		func(ctx context.Context, q Querier) error { return nil },
		func(raw error) error {
			t.Fatal("mapper must not run on success")
			return raw
		})

	assert.NoError(t, err)
}

func TestExecute_TargetsQuerierOverride(t *testing.T) {
	base := &fakeDB{}
	override := &fakeDB{}
	s := NewSessionFromQuerier(base)

	ctx := WithQuerier(context.Background(), override)
	err := s.Execute(ctx, "select accounts",
		func(ctx context.Context, q Querier) error {
			_, execErr := q.Exec(ctx, "SELECT 1")
			return execErr
		}, nil)

	require.NoError(t, err)
	assert.Empty(t, base.execs)
	assert.Equal(t, []string{"SELECT 1"}, override.execs)
}

func TestQuery_ReturnsValueAndWrapsFailures(t *testing.T) {
	s := NewSessionFromQuerier(&fakeDB{})
	ctx := context.Background()

	n, err := Query(ctx, s, "count accounts",
		func(ctx context.Context, q Querier) (int64, error) {
			return 42, nil
		}, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(42), n)

	_, err = Query(ctx, s, "count accounts",
		func(ctx context.Context, q Querier) (int64, error) {
			return 0, &pgconn.PgError{Code: "42P01", Message: "relation does not exist"}
		}, nil)
	assert.True(t, dberr.IsKind(err, dberr.KindRelationViolation))
}
