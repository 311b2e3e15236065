package bundb

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-query-cache/cache"
)

var (
	ErrInvalidOptions = errors.New("invalid query options")
	ErrNotReadOnly    = errors.New("raw query is not a read query")
	ErrDuplicateModel = errors.New("model already registered")
	ErrEmptyModelName = errors.New("model name is empty")
)

var readOnlyStatements = []string{"select", "with", "values", "show", "explain"}

type invoker interface {
	cache.ModelHandle
	invoke(ctx context.Context, method cache.Method, opts Options) (any, error)
}

// Database implements cache.Database on a bun connection and a registry of
// go-repository-bun repositories.
type Database struct {
	db bun.IDB

	mu     sync.RWMutex
	models map[string]invoker
}

var _ cache.Database = (*Database)(nil)

// New creates a Database over db. db may be a *bun.DB, bun.Tx or bun.Conn.
func New(db bun.IDB) *Database {
	return &Database{
		db:     db,
		models: make(map[string]invoker),
	}
}

// DB returns the bun connection.
func (d *Database) DB() bun.IDB {
	return d.db
}

// Register adds repo under name. An empty name is derived from T, so a
// repository of *BlogPost registers as "blog_post".
func Register[T any](d *Database, name string, repo repository.Repository[T]) (*Model[T], error) {
	if name == "" {
		name = defaultModelName[T]()
	}
	if name == "" {
		return nil, ErrEmptyModelName
	}

	m := &Model[T]{name: name, repo: repo, db: d.db}

	d.mu.Lock()
	defer d.mu.Unlock()

	if _, exists := d.models[name]; exists {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateModel, name)
	}
	d.models[name] = m
	return m, nil
}

// MustRegister is like Register but panics on error.
func MustRegister[T any](d *Database, name string, repo repository.Repository[T]) *Model[T] {
	m, err := Register(d, name, repo)
	if err != nil {
		panic(err)
	}
	return m
}

// Models returns the registered model names in order.
func (d *Database) Models() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	names := make([]string, 0, len(d.models))
	for name := range d.models {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveModel returns the model registered under name.
func (d *Database) ResolveModel(name string) (cache.ModelHandle, error) {
	m, ok := d.lookup(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", cache.ErrUnknownModel, name)
	}
	return m, nil
}

// InvokeModelMethod runs method on the named model. options is parsed with
// ParseOptions. A missing record is reported as nil, not as an error.
func (d *Database) InvokeModelMethod(ctx context.Context, model string, method cache.Method, options any) (any, error) {
	m, ok := d.lookup(model)
	if !ok {
		return nil, fmt.Errorf("%w: %s", cache.ErrUnknownModel, model)
	}

	opts, err := ParseOptions(options)
	if err != nil {
		return nil, err
	}

	return m.invoke(ctx, method, opts)
}

// ExecuteQuery runs a read-only raw query and returns its rows as maps.
// Byte slice column values are returned as strings.
func (d *Database) ExecuteQuery(ctx context.Context, query string) ([]map[string]any, error) {
	if !isReadOnly(query) {
		return nil, ErrNotReadOnly
	}

	var rows []map[string]interface{}
	if err := d.db.NewRaw(query).Scan(ctx, &rows); err != nil {
		return nil, err
	}

	for _, row := range rows {
		for column, value := range row {
			if b, ok := value.([]byte); ok {
				row[column] = string(b)
			}
		}
	}

	if rows == nil {
		rows = []map[string]interface{}{}
	}
	return rows, nil
}

func (d *Database) lookup(name string) (invoker, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.models[name]
	return m, ok
}

func isReadOnly(query string) bool {
	stmt := strings.ToLower(strings.TrimLeft(query, " \t\r\n("))
	for _, prefix := range readOnlyStatements {
		if strings.HasPrefix(stmt, prefix) {
			return true
		}
	}
	return false
}
