package bundb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"reflect"

	goerrors "github.com/goliatone/go-errors"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-query-cache/cache"
)

// Page is the result of findAndCount and findAndCountAll.
type Page[T any] struct {
	Count int `json:"count"`
	Rows  []T `json:"rows"`
}

// Model binds a name to a repository. It implements cache.ModelHandle, so a
// Model embedded in query options is keyed by its name.
type Model[T any] struct {
	name string
	repo repository.Repository[T]
	db   bun.IDB
}

var _ cache.ModelHandle = (*Model[any])(nil)

// ModelName returns the registered name.
func (m *Model[T]) ModelName() string {
	return m.name
}

// Repository returns the underlying repository.
func (m *Model[T]) Repository() repository.Repository[T] {
	return m.repo
}

func (m *Model[T]) invoke(ctx context.Context, method cache.Method, opts Options) (any, error) {
	switch method {
	case cache.MethodFind, cache.MethodFindOne:
		record, err := m.repo.Get(ctx, opts.selectCriteria(false)...)
		if isNotFound(err) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		return record, nil

	case cache.MethodFindAll, cache.MethodAll:
		records, _, err := m.repo.List(ctx, opts.selectCriteria(false)...)
		if err != nil {
			return nil, err
		}
		if records == nil {
			records = []T{}
		}
		return records, nil

	case cache.MethodFindAndCount, cache.MethodFindAndCountAll:
		records, total, err := m.repo.List(ctx, opts.selectCriteria(false)...)
		if err != nil {
			return nil, err
		}
		if records == nil {
			records = []T{}
		}
		return Page[T]{Count: total, Rows: records}, nil

	case cache.MethodCount:
		return m.repo.Count(ctx, opts.selectCriteria(true)...)

	case cache.MethodMin:
		return m.aggregate(ctx, "MIN", opts)
	case cache.MethodMax:
		return m.aggregate(ctx, "MAX", opts)
	case cache.MethodSum:
		return m.aggregate(ctx, "SUM", opts)
	}

	return nil, fmt.Errorf("%w - %s", cache.ErrInvalidMethod, method)
}

// aggregate runs fn over opts.Field. An aggregate over no rows is nil.
func (m *Model[T]) aggregate(ctx context.Context, fn string, opts Options) (any, error) {
	if opts.Field == "" {
		return nil, fmt.Errorf("%w: %s requires a field", ErrInvalidOptions, fn)
	}

	q := m.db.NewSelect().
		Model(newRecord[T]()).
		ColumnExpr(fn+"(?)", bun.Ident(opts.Field))

	for _, criteria := range opts.selectCriteria(true) {
		q = criteria(q)
	}

	var out sql.NullFloat64
	if err := q.Scan(ctx, &out); err != nil {
		return nil, err
	}
	if !out.Valid {
		return nil, nil
	}
	return out.Float64, nil
}

// newRecord returns a pointer to a zero record usable as a bun model.
func newRecord[T any]() any {
	t := reflect.TypeOf((*T)(nil)).Elem()
	if t.Kind() == reflect.Pointer {
		return reflect.New(t.Elem()).Interface()
	}
	return new(T)
}

func isNotFound(err error) bool {
	if err == nil {
		return false
	}
	return repository.IsRecordNotFound(err) || errors.Is(err, sql.ErrNoRows) || goerrors.IsNotFound(err)
}
