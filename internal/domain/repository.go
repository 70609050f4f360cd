// Package domain defines the contracts generated data-access code targets.
package domain

import (
	"context"

	"strata/internal/core/entity"
	"strata/internal/core/id"
)

// --- Filter & Pagination ---

// ListFilter contains common filtering options for list operations.
type ListFilter struct {
	// IDs filters by specific IDs
	IDs []id.ID

	// OrderBy specifies sorting (e.g., "name", "-created_at")
	OrderBy string

	// Pagination
	Limit  int
	Offset int
}

// DefaultListFilter returns sensible defaults.
func DefaultListFilter() ListFilter {
	return ListFilter{
		Limit:   50,
		OrderBy: "created_at",
	}
}

// ListResult contains paginated results.
type ListResult[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"totalCount"`
	Limit      int   `json:"limit"`
	Offset     int   `json:"offset"`
}

// --- Repository Interfaces ---

// Repository defines CRUD operations for a declared record type.
// Generated model code fulfills this contract on top of the postgres
// runtime; all operations transparently follow the active transaction.
type Repository[T entity.Validatable] interface {
	// Create inserts a new record
	Create(ctx context.Context, record T) error

	// GetByID retrieves a record by ID
	GetByID(ctx context.Context, id id.ID) (T, error)

	// Update modifies an existing record (with optimistic locking)
	Update(ctx context.Context, record T) error

	// Delete removes a record
	Delete(ctx context.Context, id id.ID) error

	// List retrieves records with filtering and pagination
	List(ctx context.Context, filter ListFilter) (ListResult[T], error)

	// Exists checks if a record with the given ID exists
	Exists(ctx context.Context, id id.ID) (bool, error)
}

// --- Hooks ---

// HookEvent represents lifecycle event type.
type HookEvent string

const (
	BeforeCreate HookEvent = "before_create"
	AfterCreate  HookEvent = "after_create"
	BeforeUpdate HookEvent = "before_update"
	AfterUpdate  HookEvent = "after_update"
	BeforeDelete HookEvent = "before_delete"
	AfterDelete  HookEvent = "after_delete"
)

// Hook is a function that runs at specific lifecycle points.
type Hook[T any] func(ctx context.Context, record T) error

// HookRegistry stores lifecycle hooks for a record type.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

// NewHookRegistry creates an empty hook registry.
func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{hooks: make(map[HookEvent][]Hook[T])}
}

// Register adds a hook for the given event.
func (r *HookRegistry[T]) Register(event HookEvent, h Hook[T]) {
	r.hooks[event] = append(r.hooks[event], h)
}

// Run executes all hooks registered for the event, stopping on first error.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, record T) error {
	for _, h := range r.hooks[event] {
		if err := h(ctx, record); err != nil {
			return err
		}
	}
	return nil
}
