// Package tx provides transaction management abstractions.
// This package defines interfaces that decouple domain logic from specific
// database implementations, following the Dependency Inversion Principle.
package tx

import (
	"context"
)

// Manager defines the contract for transaction management.
// Implementations handle BEGIN, COMMIT, ROLLBACK, nested transaction support
// and retry of transient serialization failures.
//
// Domain services and generated repositories depend on this interface, not
// concrete implementations. The actual implementation lives in
// infrastructure/storage/postgres.
type Manager interface {
	// RunInTransaction executes fn within a database transaction.
	// If fn returns an error, the transaction is rolled back and the error
	// is returned to the caller exactly as fn produced it.
	// If fn succeeds, the transaction is committed.
	//
	// Nested calls reuse the existing transaction from context: only the
	// outermost call opens a transaction and owns commit/rollback/retry.
	RunInTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
