// Package record_repo provides the generic PostgreSQL repository that
// generated model code builds on. All operations execute through the
// session, so they transparently target the active transaction's
// connection when one is open.
package record_repo

import (
	"context"
	"fmt"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"strata/internal/core/apperror"
	"strata/internal/core/dberr"
	"strata/internal/core/id"
	"strata/internal/domain"
	"strata/internal/infrastructure/storage/postgres"
)

// Base provides common CRUD operations for a declared record type.
// Embed this in generated repositories.
type Base[T any] struct {
	session    *postgres.Session
	tableName  string
	selectCols []string
	newFn      func() T
	hooks      *domain.HookRegistry[T]
}

// NewBase creates a generic repository for tableName. Columns are derived
// from T's "db" tags once, at construction.
func NewBase[T any](session *postgres.Session, tableName string, newFn func() T) *Base[T] {
	return &Base[T]{
		session:    session,
		tableName:  tableName,
		selectCols: postgres.ExtractDBColumns[T](),
		newFn:      newFn,
		hooks:      domain.NewHookRegistry[T](),
	}
}

// Hooks exposes the lifecycle hook registry.
func (r *Base[T]) Hooks() *domain.HookRegistry[T] {
	return r.hooks
}

// Builder returns a new squirrel builder with PostgreSQL placeholder format.
func (r *Base[T]) Builder() squirrel.StatementBuilderType {
	return squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar)
}

// Create inserts a new record using its "db" tags.
func (r *Base[T]) Create(ctx context.Context, record T) error {
	if err := r.hooks.Run(ctx, domain.BeforeCreate, record); err != nil {
		return err
	}

	data := postgres.StructToMap(record)
	if len(data) == 0 {
		return fmt.Errorf("no db tags found in record")
	}

	// Only columns that exist in the table
	filteredData := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if val, ok := data[col]; ok {
			filteredData[col] = val
		}
	}

	q := r.Builder().
		Insert(r.tableName).
		SetMap(filteredData)

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	err = r.session.Execute(ctx, "insert "+r.tableName,
		func(ctx context.Context, querier postgres.Querier) error {
			_, execErr := querier.Exec(ctx, sql, args...)
			return execErr
		},
		func(cause error) error {
			if dberr.Classify(cause) == dberr.KindUniqueConstraint {
				return apperror.NewDuplicate(r.tableName, "unique field").WithCause(cause)
			}
			return dberr.Wrap("insert "+r.tableName, cause)
		})
	if err != nil {
		return err
	}

	return r.hooks.Run(ctx, domain.AfterCreate, record)
}

// GetByID retrieves a record by primary key.
func (r *Base[T]) GetByID(ctx context.Context, recordID id.ID) (T, error) {
	q := r.Builder().
		Select(r.selectCols...).
		From(r.tableName).
		Where(squirrel.Eq{"id": recordID})

	sql, args, err := q.ToSql()
	if err != nil {
		var zero T
		return zero, fmt.Errorf("build select: %w", err)
	}

	return postgres.Query(ctx, r.session, "select "+r.tableName,
		func(ctx context.Context, querier postgres.Querier) (T, error) {
			dst := r.newFn()
			if scanErr := pgxscan.Get(ctx, querier, dst, sql, args...); scanErr != nil {
				var zero T
				return zero, scanErr
			}
			return dst, nil
		},
		func(cause error) error {
			if dberr.Classify(cause) == dberr.KindRecordNotFound {
				return apperror.NewNotFound(r.tableName, recordID.String()).WithCause(cause)
			}
			return dberr.Wrap("select "+r.tableName, cause)
		})
}

// Update modifies an existing record with optimistic locking.
func (r *Base[T]) Update(ctx context.Context, record T) error {
	if err := r.hooks.Run(ctx, domain.BeforeUpdate, record); err != nil {
		return err
	}

	data := postgres.StructToMap(record)
	if len(data) == 0 {
		return fmt.Errorf("no db tags found in record")
	}

	recordID, ok := data["id"]
	if !ok {
		return fmt.Errorf("record has no 'id' field with db tag")
	}
	version, ok := data["version"].(int)
	if !ok {
		return fmt.Errorf("record has no 'version' field or it is not an int")
	}

	// Exclude immutable fields from SET
	filteredData := make(map[string]any, len(r.selectCols))
	for _, col := range r.selectCols {
		if col == "id" || col == "version" || col == "created_at" {
			continue
		}
		if val, ok := data[col]; ok {
			filteredData[col] = val
		}
	}

	q := r.Builder().
		Update(r.tableName).
		SetMap(filteredData).
		Set("version", squirrel.Expr("version + 1")).
		Where(squirrel.Eq{"id": recordID}).
		Where(squirrel.Eq{"version": version}) // optimistic lock: expect current version

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}

	err = r.session.Execute(ctx, "update "+r.tableName,
		func(ctx context.Context, querier postgres.Querier) error {
			result, execErr := querier.Exec(ctx, sql, args...)
			if execErr != nil {
				return execErr
			}
			if result.RowsAffected() == 0 {
				return apperror.NewConcurrentModification(r.tableName, recordID)
			}
			return nil
		},
		func(cause error) error {
			if apperror.IsConcurrentModification(cause) {
				return cause
			}
			return dberr.Wrap("update "+r.tableName, cause)
		})
	if err != nil {
		return err
	}

	return r.hooks.Run(ctx, domain.AfterUpdate, record)
}

// Delete performs physical removal from the database.
func (r *Base[T]) Delete(ctx context.Context, recordID id.ID) error {
	q := r.Builder().
		Delete(r.tableName).
		Where(squirrel.Eq{"id": recordID})

	sql, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build delete: %w", err)
	}

	return r.session.Execute(ctx, "delete "+r.tableName,
		func(ctx context.Context, querier postgres.Querier) error {
			result, execErr := querier.Exec(ctx, sql, args...)
			if execErr != nil {
				return execErr
			}
			if result.RowsAffected() == 0 {
				return apperror.NewNotFound(r.tableName, recordID.String())
			}
			return nil
		},
		func(cause error) error {
			if apperror.IsNotFound(cause) {
				return cause
			}
			if dberr.Classify(cause) == dberr.KindForeignKeyConstraint {
				return apperror.NewConflict("record is referenced by other records").
					WithDetail("entity", r.tableName).
					WithDetail("id", recordID.String()).
					WithCause(cause)
			}
			return dberr.Wrap("delete "+r.tableName, cause)
		})
}

// List retrieves records with filtering and pagination.
func (r *Base[T]) List(ctx context.Context, filter domain.ListFilter) (domain.ListResult[T], error) {
	q := r.Builder().
		Select(r.selectCols...).
		From(r.tableName)

	countQ := r.Builder().
		Select("COUNT(*)").
		From(r.tableName)

	if len(filter.IDs) > 0 {
		q = q.Where(squirrel.Eq{"id": filter.IDs})
		countQ = countQ.Where(squirrel.Eq{"id": filter.IDs})
	}

	q = applyOrderBy(q, filter.OrderBy)
	if filter.Limit > 0 {
		q = q.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		q = q.Offset(uint64(filter.Offset))
	}

	sql, args, err := q.ToSql()
	if err != nil {
		return domain.ListResult[T]{}, fmt.Errorf("build list: %w", err)
	}
	countSQL, countArgs, err := countQ.ToSql()
	if err != nil {
		return domain.ListResult[T]{}, fmt.Errorf("build count: %w", err)
	}

	return postgres.Query(ctx, r.session, "list "+r.tableName,
		func(ctx context.Context, querier postgres.Querier) (domain.ListResult[T], error) {
			var items []T
			if scanErr := pgxscan.Select(ctx, querier, &items, sql, args...); scanErr != nil {
				return domain.ListResult[T]{}, scanErr
			}

			var total int64
			if scanErr := querier.QueryRow(ctx, countSQL, countArgs...).Scan(&total); scanErr != nil {
				return domain.ListResult[T]{}, scanErr
			}

			return domain.ListResult[T]{
				Items:      items,
				TotalCount: total,
				Limit:      filter.Limit,
				Offset:     filter.Offset,
			}, nil
		}, nil)
}

// Exists checks if a record with the given ID exists.
func (r *Base[T]) Exists(ctx context.Context, recordID id.ID) (bool, error) {
	q := r.Builder().
		Select("1").
		From(r.tableName).
		Where(squirrel.Eq{"id": recordID}).
		Limit(1)

	sql, args, err := q.ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists: %w", err)
	}

	return postgres.Query(ctx, r.session, "exists "+r.tableName,
		func(ctx context.Context, querier postgres.Querier) (bool, error) {
			var one int
			scanErr := querier.QueryRow(ctx, sql, args...).Scan(&one)
			if dberr.Classify(scanErr) == dberr.KindRecordNotFound {
				return false, nil
			}
			if scanErr != nil {
				return false, scanErr
			}
			return true, nil
		}, nil)
}

// applyOrderBy translates "-field" into "field DESC".
func applyOrderBy(q squirrel.SelectBuilder, orderBy string) squirrel.SelectBuilder {
	if orderBy == "" {
		return q
	}
	if orderBy[0] == '-' {
		return q.OrderBy(orderBy[1:] + " DESC")
	}
	return q.OrderBy(orderBy + " ASC")
}
