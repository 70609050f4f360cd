package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"strata/internal/core/dberr"
)

// Querier is the subset of pgx operations repositories need.
// Both *pgxpool.Pool and pgx.Tx satisfy it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// querierKey is the context key for a scoped querier override.
type querierKey struct{}

// WithQuerier returns a context whose active querier is q for the dynamic
// extent of the derived context. The transaction coordinator uses this to
// point every nested operation at the transaction's connection; the previous
// querier is visible again as soon as callers return to the parent context.
// Overrides are per-call-tree: sibling goroutines holding the parent context
// never observe them.
func WithQuerier(ctx context.Context, q Querier) context.Context {
	return context.WithValue(ctx, querierKey{}, q)
}

// QuerierFrom returns the querier override from ctx, or nil if none.
func QuerierFrom(ctx context.Context) Querier {
	if q, ok := ctx.Value(querierKey{}).(Querier); ok {
		return q
	}
	return nil
}

// Session binds the base connection and resolves the active querier per
// call: the scoped override (a transaction's connection) when present,
// the base connection otherwise. Repositories hold a Session and never
// thread connections through call sites explicitly.
type Session struct {
	base Querier
}

// NewSession creates a Session on top of a connection pool.
func NewSession(pool *Pool) *Session {
	return &Session{base: pool}
}

// NewSessionFromQuerier creates a Session on an arbitrary base querier.
func NewSessionFromQuerier(q Querier) *Session {
	return &Session{base: q}
}

// ActiveQuerier returns the querier all operations in ctx must target.
func (s *Session) ActiveQuerier(ctx context.Context) Querier {
	if q := QuerierFrom(ctx); q != nil {
		return q
	}
	return s.base
}

// ErrorMapper transforms a raw driver failure into a caller-defined error.
type ErrorMapper func(error) error

// Execute runs op against the session's active querier. On failure the raw
// cause is passed through mapper when supplied; otherwise it is wrapped into
// a classified database-failure error. name labels the operation in errors.
func (s *Session) Execute(ctx context.Context, name string, op func(ctx context.Context, q Querier) error, mapper ErrorMapper) error {
	err := op(ctx, s.ActiveQuerier(ctx))
	if err == nil {
		return nil
	}
	if mapper != nil {
		return mapper(err)
	}
	return dberr.Wrap(name, err)
}

// Query runs a value-returning operation against the session's active
// querier, with the same failure mapping as Session.Execute.
func Query[T any](ctx context.Context, s *Session, name string, op func(ctx context.Context, q Querier) (T, error), mapper ErrorMapper) (T, error) {
	res, err := op(ctx, s.ActiveQuerier(ctx))
	if err == nil {
		return res, nil
	}
	var zero T
	if mapper != nil {
		return zero, mapper(err)
	}
	return zero, dberr.Wrap(name, err)
}
