package testsupport

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-query-cache/cache"
)

// StoreCalls counts the operations a RecordingStore received.
type StoreCalls struct {
	Get            int
	Set            int
	Delete         int
	DeleteByPrefix int
}

// Total returns the number of store operations of any kind.
func (c StoreCalls) Total() int {
	return c.Get + c.Set + c.Delete + c.DeleteByPrefix
}

type storedEntry struct {
	value string
	ttl   time.Duration
}

// RecordingStore is an in-memory cache.Store that records every call and the
// TTL each key was written with. Setting GetErr, SetErr or DeleteErr makes
// the corresponding operation fail.
type RecordingStore struct {
	mu      sync.Mutex
	entries map[string]storedEntry
	calls   StoreCalls

	GetErr    error
	SetErr    error
	DeleteErr error
}

// NewRecordingStore returns an empty RecordingStore.
func NewRecordingStore() *RecordingStore {
	return &RecordingStore{entries: make(map[string]storedEntry)}
}

func (s *RecordingStore) Get(ctx context.Context, key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.Get++
	if s.GetErr != nil {
		return "", false, s.GetErr
	}
	e, ok := s.entries[key]
	return e.value, ok, nil
}

func (s *RecordingStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.Set++
	if s.SetErr != nil {
		return s.SetErr
	}
	s.entries[key] = storedEntry{value: value, ttl: ttl}
	return nil
}

func (s *RecordingStore) Delete(ctx context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.Delete++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	delete(s.entries, key)
	return nil
}

func (s *RecordingStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.calls.DeleteByPrefix++
	if s.DeleteErr != nil {
		return s.DeleteErr
	}
	for key := range s.entries {
		if strings.HasPrefix(key, prefix) {
			delete(s.entries, key)
		}
	}
	return nil
}

// Seed stores value under key without counting a call.
func (s *RecordingStore) Seed(key, value string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = storedEntry{value: value}
}

// Value returns the raw stored text for key.
func (s *RecordingStore) Value(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e.value, ok
}

// TTL returns the expiry key was last written with.
func (s *RecordingStore) TTL(key string) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e.ttl, ok
}

// Len returns the number of stored keys.
func (s *RecordingStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

// Calls returns a snapshot of the call counters.
func (s *RecordingStore) Calls() StoreCalls {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

// Model is a cache.ModelHandle with a fixed name.
type Model struct {
	Name string
}

func (m Model) ModelName() string { return m.Name }

// DatabaseCalls counts the operations a RecordingDatabase received.
type DatabaseCalls struct {
	ExecuteQuery      int
	InvokeModelMethod int
	ResolveModel      int
}

// Total returns the number of query operations, ignoring model resolution.
func (c DatabaseCalls) Total() int {
	return c.ExecuteQuery + c.InvokeModelMethod
}

// Invocation records the arguments of one InvokeModelMethod call.
type Invocation struct {
	Model   string
	Method  cache.Method
	Options any
}

// RecordingDatabase is a scripted cache.Database. Results are registered per
// model and method with OnMethod, raw rows per query text with OnQuery.
// Err, when set, fails every query.
type RecordingDatabase struct {
	mu          sync.Mutex
	models      map[string]Model
	results     map[string]any
	rows        map[string][]map[string]any
	calls       DatabaseCalls
	invocations []Invocation
	queries     []string

	Err error
}

// NewRecordingDatabase returns a database that knows the given model names.
func NewRecordingDatabase(models ...string) *RecordingDatabase {
	db := &RecordingDatabase{
		models:  make(map[string]Model),
		results: make(map[string]any),
		rows:    make(map[string][]map[string]any),
	}
	for _, name := range models {
		db.models[name] = Model{Name: name}
	}
	return db
}

// OnMethod scripts the result of method on model.
func (d *RecordingDatabase) OnMethod(model string, method cache.Method, result any) *RecordingDatabase {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.models[model] = Model{Name: model}
	d.results[model+"."+method.String()] = result
	return d
}

// OnQuery scripts the rows returned for a raw query.
func (d *RecordingDatabase) OnQuery(query string, rows []map[string]any) *RecordingDatabase {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rows[query] = rows
	return d
}

func (d *RecordingDatabase) ExecuteQuery(ctx context.Context, query string) ([]map[string]any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls.ExecuteQuery++
	d.queries = append(d.queries, query)
	if d.Err != nil {
		return nil, d.Err
	}
	return d.rows[query], nil
}

func (d *RecordingDatabase) InvokeModelMethod(ctx context.Context, model string, method cache.Method, options any) (any, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls.InvokeModelMethod++
	d.invocations = append(d.invocations, Invocation{Model: model, Method: method, Options: options})
	if d.Err != nil {
		return nil, d.Err
	}
	if _, ok := d.models[model]; !ok {
		return nil, fmt.Errorf("%w: %s", cache.ErrUnknownModel, model)
	}
	return d.results[model+"."+method.String()], nil
}

func (d *RecordingDatabase) ResolveModel(name string) (cache.ModelHandle, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.calls.ResolveModel++
	m, ok := d.models[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", cache.ErrUnknownModel, name)
	}
	return m, nil
}

// Calls returns a snapshot of the call counters.
func (d *RecordingDatabase) Calls() DatabaseCalls {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.calls
}

// Invocations returns the recorded model method calls in order.
func (d *RecordingDatabase) Invocations() []Invocation {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Invocation(nil), d.invocations...)
}

// Queries returns the recorded raw query texts in order.
func (d *RecordingDatabase) Queries() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.queries...)
}

var (
	_ cache.Store         = (*RecordingStore)(nil)
	_ cache.PrefixDeleter = (*RecordingStore)(nil)
	_ cache.Database      = (*RecordingDatabase)(nil)
)
