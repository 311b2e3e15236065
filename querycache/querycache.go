package querycache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-query-cache/cache"
)

// QueryCache serves model and raw queries from a key-value store, reading
// through to the database on a miss. A QueryCache is immutable: Model, TTL
// and Prefix return configured copies, so one base instance can be shared
// across goroutines.
type QueryCache struct {
	db      cache.Database
	store   cache.Store
	logger  logrus.FieldLogger
	metrics Metrics

	// keys tracks stored keys for model invalidation on stores without
	// prefix deletion. Shared by every copy.
	keys *sync.Map

	model    string
	modelErr error
	ttl      time.Duration
	prefix   string
}

// New creates a QueryCache over db and store.
func New(db cache.Database, store cache.Store, opts ...Option) *QueryCache {
	q := &QueryCache{
		db:      db,
		store:   store,
		logger:  logrus.StandardLogger(),
		metrics: noopMetrics{},
		prefix:  cache.DefaultPrefix,
	}

	for _, opt := range opts {
		opt(q)
	}

	if _, ok := store.(cache.PrefixDeleter); !ok {
		q.keys = &sync.Map{}
	}

	return q
}

func (q *QueryCache) clone() *QueryCache {
	c := *q
	return &c
}

// Model returns a copy targeting the named model. The model is resolved
// through the database; an unknown model fails the next terminal call.
func (q *QueryCache) Model(name string) *QueryCache {
	c := q.clone()
	c.model = name
	c.modelErr = nil

	handle, err := q.db.ResolveModel(name)
	if err == nil && handle == nil {
		err = cache.ErrUnknownModel
	}
	if err != nil {
		c.modelErr = cache.WrapError(err, cache.CategoryConfiguration, fmt.Sprintf("unknown model - %s", name))
		return c
	}
	c.model = handle.ModelName()
	return c
}

// TTL returns a copy that stores entries with the given expiry.
// Zero stores without expiry.
func (q *QueryCache) TTL(ttl time.Duration) *QueryCache {
	c := q.clone()
	c.ttl = ttl
	return c
}

// Prefix returns a copy that namespaces keys with prefix.
func (q *QueryCache) Prefix(prefix string) *QueryCache {
	c := q.clone()
	c.prefix = prefix
	return c
}

// ModelName returns the configured model, or "" when none is set.
func (q *QueryCache) ModelName() string {
	return q.model
}

// Request builds the model request for method and options.
func (q *QueryCache) Request(method cache.Method, options any) cache.Request {
	return cache.Request{
		Model:   q.model,
		Method:  method,
		Options: options,
		TTL:     q.ttl,
		Prefix:  q.prefix,
	}
}

// RawRequest builds the request for a raw query.
func (q *QueryCache) RawRequest(query string) cache.Request {
	return cache.Request{
		RawQuery: query,
		TTL:      q.ttl,
		Prefix:   q.prefix,
	}
}

// Key derives the cache key of req.
func (q *QueryCache) Key(req cache.Request) (string, error) {
	if err := req.Validate(); err != nil {
		return "", err
	}
	return cache.DeriveKey(req)
}

// Run resolves method on the configured model.
func (q *QueryCache) Run(ctx context.Context, method cache.Method, options any) (*Result, error) {
	if q.modelErr != nil {
		q.metrics.ObserveError(q.model, string(cache.ErrorCategory(q.modelErr)))
		return nil, q.modelErr
	}
	return q.Resolve(ctx, q.Request(method, options))
}

func (q *QueryCache) Find(ctx context.Context, options any) (*Result, error) {
	return q.Run(ctx, cache.MethodFind, options)
}

func (q *QueryCache) FindOne(ctx context.Context, options any) (*Result, error) {
	return q.Run(ctx, cache.MethodFindOne, options)
}

func (q *QueryCache) FindAll(ctx context.Context, options any) (*Result, error) {
	return q.Run(ctx, cache.MethodFindAll, options)
}

func (q *QueryCache) FindAndCount(ctx context.Context, options any) (*Result, error) {
	return q.Run(ctx, cache.MethodFindAndCount, options)
}

func (q *QueryCache) FindAndCountAll(ctx context.Context, options any) (*Result, error) {
	return q.Run(ctx, cache.MethodFindAndCountAll, options)
}

func (q *QueryCache) All(ctx context.Context, options any) (*Result, error) {
	return q.Run(ctx, cache.MethodAll, options)
}

func (q *QueryCache) Min(ctx context.Context, options any) (*Result, error) {
	return q.Run(ctx, cache.MethodMin, options)
}

func (q *QueryCache) Max(ctx context.Context, options any) (*Result, error) {
	return q.Run(ctx, cache.MethodMax, options)
}

func (q *QueryCache) Sum(ctx context.Context, options any) (*Result, error) {
	return q.Run(ctx, cache.MethodSum, options)
}

func (q *QueryCache) Count(ctx context.Context, options any) (*Result, error) {
	return q.Run(ctx, cache.MethodCount, options)
}

// Query resolves a raw read query.
func (q *QueryCache) Query(ctx context.Context, query string) (*Result, error) {
	if err := checkRawQuery(query); err != nil {
		q.metrics.ObserveError(RawModelLabel, string(cache.ErrorCategory(err)))
		return nil, err
	}
	return q.Resolve(ctx, q.RawRequest(query))
}

func checkRawQuery(query string) error {
	if strings.TrimSpace(query) == "" {
		return cache.WrapError(cache.ErrInvalidRequest, cache.CategoryConfiguration, "raw query is empty")
	}
	return nil
}

// Resolve serves req from the store, or on a miss runs it against the
// database, stores the normalized result under the request key and returns it.
// One store read always happens; a miss adds one database read and one store
// write. Failures are returned, never retried.
func (q *QueryCache) Resolve(ctx context.Context, req cache.Request) (*Result, error) {
	start := time.Now()
	label := metricsLabel(req)

	res, err := q.resolve(ctx, req)
	if err != nil {
		q.metrics.ObserveError(label, string(cache.ErrorCategory(err)))
		q.metrics.ObserveResolve(label, OutcomeError, time.Since(start))
		return nil, err
	}

	outcome := OutcomeMiss
	if res.FromCache {
		outcome = OutcomeHit
	}
	q.metrics.ObserveResolve(label, outcome, time.Since(start))
	return res, nil
}

func (q *QueryCache) resolve(ctx context.Context, req cache.Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	key, err := cache.DeriveKey(req)
	if err != nil {
		return nil, err
	}

	log := q.logger.WithFields(logFields(req, key))

	stored, found, err := q.store.Get(ctx, key)
	if err != nil {
		return nil, cache.WrapError(err, cache.CategoryCacheStore, "failed to read cache entry")
	}

	if found && stored != "" {
		value, err := decode([]byte(stored))
		if err != nil {
			return nil, cache.WrapError(err, cache.CategoryCacheCorruption, "corrupt cache entry")
		}
		q.track(key)
		log.Debug("cache: hit")
		return &Result{Key: key, Value: value, FromCache: true, raw: []byte(stored)}, nil
	}

	log.Debug("cache: miss")

	raw, err := q.fetch(ctx, req)
	if err != nil {
		return nil, cache.WrapError(err, cache.CategoryDatabase, "query failed")
	}

	normalized, err := Normalize(raw)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(normalized)
	if err != nil {
		return nil, cache.WrapError(err, cache.CategorySerialization, "failed to serialize result")
	}

	if err := q.store.Set(ctx, key, string(data), req.TTL); err != nil {
		return nil, cache.WrapError(err, cache.CategoryCacheStore, "failed to write cache entry")
	}
	q.track(key)
	log.WithField("ttl", req.TTL).Debug("cache: stored")

	value, err := decode(data)
	if err != nil {
		return nil, cache.WrapError(err, cache.CategorySerialization, "failed to decode stored result")
	}

	return &Result{Key: key, Value: value, FromCache: false, raw: data}, nil
}

func (q *QueryCache) fetch(ctx context.Context, req cache.Request) (any, error) {
	if req.IsRaw() {
		rows, err := q.db.ExecuteQuery(ctx, req.RawQuery)
		if err != nil {
			return nil, err
		}
		if rows == nil {
			return []map[string]any{}, nil
		}
		return rows, nil
	}
	return q.db.InvokeModelMethod(ctx, req.Model, req.Method, req.Options)
}

// Invalidate deletes the entry cached for req.
func (q *QueryCache) Invalidate(ctx context.Context, req cache.Request) error {
	key, err := q.Key(req)
	if err != nil {
		return err
	}

	if err := q.store.Delete(ctx, key); err != nil {
		err = cache.WrapError(err, cache.CategoryCacheStore, "failed to delete cache entry")
		q.metrics.ObserveError(metricsLabel(req), string(cache.CategoryCacheStore))
		return err
	}
	q.untrack(key)

	q.logger.WithFields(logFields(req, key)).Debug("cache: invalidated")
	return nil
}

// Clear deletes the entry cached for method and options on the configured model.
func (q *QueryCache) Clear(ctx context.Context, method cache.Method, options any) error {
	if q.modelErr != nil {
		return q.modelErr
	}
	return q.Invalidate(ctx, q.Request(method, options))
}

// ClearQuery deletes the entry cached for a raw query.
func (q *QueryCache) ClearQuery(ctx context.Context, query string) error {
	if err := checkRawQuery(query); err != nil {
		return err
	}
	return q.Invalidate(ctx, q.RawRequest(query))
}

// InvalidateModel deletes every entry cached for the configured model under
// the configured prefix. Stores implementing cache.PrefixDeleter drop the
// keys server side; otherwise the keys this QueryCache wrote are deleted.
func (q *QueryCache) InvalidateModel(ctx context.Context) error {
	if q.modelErr != nil {
		return q.modelErr
	}
	if q.model == "" {
		return cache.WrapError(cache.ErrModelNotSet, cache.CategoryConfiguration, "model not set")
	}

	prefix := cache.ModelPrefix(q.prefix, q.model)

	if pd, ok := q.store.(cache.PrefixDeleter); ok {
		if err := pd.DeleteByPrefix(ctx, prefix); err != nil {
			q.metrics.ObserveError(q.model, string(cache.CategoryCacheStore))
			return cache.WrapError(err, cache.CategoryCacheStore, "failed to delete cache entries")
		}
	} else if err := q.invalidateTracked(ctx, prefix); err != nil {
		q.metrics.ObserveError(q.model, string(cache.CategoryCacheStore))
		return cache.WrapError(err, cache.CategoryCacheStore, "failed to delete cache entries")
	}

	q.logger.WithFields(logrus.Fields{"model": q.model, "prefix": prefix}).Debug("cache: model invalidated")
	return nil
}

func (q *QueryCache) invalidateTracked(ctx context.Context, prefix string) error {
	var keysToDelete []string
	q.keys.Range(func(k, _ any) bool {
		if key, ok := k.(string); ok && strings.HasPrefix(key, prefix) {
			keysToDelete = append(keysToDelete, key)
		}
		return true
	})

	for _, key := range keysToDelete {
		if err := q.store.Delete(ctx, key); err != nil {
			return err
		}
		q.keys.Delete(key)
	}
	return nil
}

func (q *QueryCache) track(key string) {
	if q.keys != nil {
		q.keys.Store(key, struct{}{})
	}
}

func (q *QueryCache) untrack(key string) {
	if q.keys != nil {
		q.keys.Delete(key)
	}
}

func decode(data []byte) (any, error) {
	var value any
	if err := json.Unmarshal(data, &value); err != nil {
		return nil, err
	}
	return value, nil
}

func logFields(req cache.Request, key string) logrus.Fields {
	if req.IsRaw() {
		return logrus.Fields{"key": key, "raw": true}
	}
	return logrus.Fields{"key": key, "model": req.Model, "method": req.Method.String()}
}

func metricsLabel(req cache.Request) string {
	if req.IsRaw() {
		return RawModelLabel
	}
	return req.Model
}
