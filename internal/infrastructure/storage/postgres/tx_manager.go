package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"strata/internal/core/dberr"
	"strata/internal/core/tx"
	"strata/pkg/logger"
)

var tracer = otel.Tracer("strata/tx")

// Compile-time check that TxManager implements tx.Manager interface.
var _ tx.Manager = (*TxManager)(nil)

// DB is the slice of the database client the coordinator needs: query
// execution plus the ability to open transactions. *pgxpool.Pool satisfies
// it; tests substitute fakes.
type DB interface {
	Querier
	BeginTx(ctx context.Context, txOptions pgx.TxOptions) (pgx.Tx, error)
}

// TxOptions configures a single transaction. Zero values mean "not set":
// unset options are omitted entirely, never defaulted to a sentinel.
type TxOptions struct {
	// IsoLevel: pgx.Serializable, pgx.RepeatableRead, pgx.ReadCommitted.
	// Empty string leaves the database default in place.
	IsoLevel pgx.TxIsoLevel

	// AccessMode: pgx.ReadWrite, pgx.ReadOnly.
	AccessMode pgx.TxAccessMode

	// StatementTimeout bounds individual statements inside the transaction
	// via SET LOCAL statement_timeout.
	StatementTimeout time.Duration

	// MaxWait bounds how long opening the transaction may take.
	MaxWait time.Duration

	// RetryPolicy overrides the process-wide default for this call only.
	RetryPolicy *RetryPolicy

	// MapError transforms a terminal database-failure error before it is
	// returned. It is never invoked for domain errors.
	MapError func(*dberr.Error) error
}

// txKey is the context key marking an open transaction.
type txKey struct{}

// Tx wraps pgx.Tx with coordinator metadata.
type Tx struct {
	pgx.Tx
	attempt int
}

// Attempt returns the 1-based retry attempt this transaction belongs to.
func (t *Tx) Attempt() int {
	return t.attempt
}

// InTx reports whether ctx is inside an open transaction.
func InTx(ctx context.Context) bool {
	return TxFrom(ctx) != nil
}

// TxFrom returns the current transaction from context, or nil if none.
func TxFrom(ctx context.Context) *Tx {
	if t, ok := ctx.Value(txKey{}).(*Tx); ok {
		return t
	}
	return nil
}

// TxManager coordinates database transactions:
//   - nested calls join the enclosing transaction instead of opening another
//   - transient failures (serialization conflicts, deadlocks) are retried
//     with jittered exponential backoff
//   - domain errors cross the rollback boundary unchanged, never wrapped
//     into database-failure errors
type TxManager struct {
	db      DB
	session *Session
}

// NewTxManager creates a transaction manager on a connection pool.
func NewTxManager(pool *Pool) *TxManager {
	return &TxManager{db: pool, session: NewSession(pool)}
}

// NewTxManagerFromDB creates a transaction manager on an arbitrary DB.
func NewTxManagerFromDB(db DB) *TxManager {
	return &TxManager{db: db, session: NewSessionFromQuerier(db)}
}

// Session returns the execution session bound to this manager's base
// connection. Operations issued through it follow the active transaction.
func (m *TxManager) Session() *Session {
	return m.session
}

// RunInTransaction executes fn within a transaction using default options.
func (m *TxManager) RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return m.RunInTransactionWithOptions(ctx, TxOptions{}, fn)
}

// RunInTransactionWithOptions executes fn with custom transaction options.
// If a transaction already exists in ctx, fn joins it directly: no second
// transaction is opened and no retry applies, because the enclosing call
// owns commit, rollback and retry semantics.
func (m *TxManager) RunInTransactionWithOptions(ctx context.Context, opts TxOptions, fn func(ctx context.Context) error) error {
	if InTx(ctx) {
		return fn(ctx)
	}

	// Snapshot the effective policy once. A concurrent
	// SetDefaultRetryPolicy must not change a loop already in progress.
	policy := DefaultRetryPolicy()
	if opts.RetryPolicy != nil {
		policy = *opts.RetryPolicy
	}
	if policy.MaxAttempts < 1 {
		policy.MaxAttempts = 1
	}

	for attempt := 1; ; attempt++ {
		err := m.runAttempt(ctx, opts, attempt, fn)
		if err == nil {
			return nil
		}

		var dbErr *dberr.Error
		if !errors.As(err, &dbErr) {
			// Domain error: propagate unchanged, never retry.
			return err
		}

		if attempt < policy.MaxAttempts && dberr.Retryable(dbErr.Unwrap()) {
			logger.Warn(ctx, "retrying transaction after transient failure",
				"attempt", attempt, "kind", dbErr.Kind, "error", dbErr.Unwrap())
			if serr := sleepBackoff(ctx, policy.BaseDelay, attempt); serr != nil {
				return serr
			}
			continue
		}

		if opts.MapError != nil {
			return opts.MapError(dbErr)
		}
		return err
	}
}

// runAttempt opens one transaction, runs fn inside it and commits.
// All failures of the transaction machinery itself come back as
// *dberr.Error; fn's errors come back exactly as fn returned them.
func (m *TxManager) runAttempt(ctx context.Context, opts TxOptions, attempt int, fn func(ctx context.Context) error) error {
	ctx, span := tracer.Start(ctx, "transaction",
		trace.WithAttributes(
			attribute.String("tx.isolation", string(opts.IsoLevel)),
			attribute.Int("tx.attempt", attempt),
		))
	defer span.End()

	beginCtx := ctx
	if opts.MaxWait > 0 {
		var cancel context.CancelFunc
		beginCtx, cancel = context.WithTimeout(ctx, opts.MaxWait)
		defer cancel()
	}

	pgxTx, err := m.db.BeginTx(beginCtx, pgx.TxOptions{
		IsoLevel:   opts.IsoLevel,
		AccessMode: opts.AccessMode,
	})
	if err != nil {
		return dberr.Wrap("begin transaction", err)
	}

	if opts.StatementTimeout > 0 {
		if _, err := pgxTx.Exec(ctx, fmt.Sprintf("SET LOCAL statement_timeout = '%dms'", opts.StatementTimeout.Milliseconds())); err != nil {
			m.rollback(ctx, pgxTx, err)
			return dberr.Wrap("set statement_timeout", err)
		}
	}

	// Mark the transaction and point the active querier at its connection
	// for the dynamic extent of fn. The outer querier becomes visible again
	// once fn returns.
	wrapped := &Tx{Tx: pgxTx, attempt: attempt}
	txCtx := WithQuerier(context.WithValue(ctx, txKey{}, wrapped), pgxTx)

	if err := fn(txCtx); err != nil {
		m.rollback(ctx, pgxTx, err)
		return err
	}

	// pgx closes the transaction itself when Commit fails; no rollback here.
	if err := pgxTx.Commit(ctx); err != nil {
		return dberr.Wrap("commit transaction", err)
	}
	return nil
}

// rollback releases the transaction after a failure. It uses a background
// context so a cancelled caller cannot skip release, and its own failures
// are logged, never returned: the cause of the rollback wins.
func (m *TxManager) rollback(ctx context.Context, t pgx.Tx, cause error) {
	if err := t.Rollback(context.Background()); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		logger.Error(ctx, "transaction rollback failed", "error", err, "cause", cause)
	}
}
