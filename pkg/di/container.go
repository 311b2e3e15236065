package di

import (
	"context"
	"io"
	"os"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/internal/cacheinfra"
	"github.com/goliatone/go-query-cache/pkg/metrics"
	"github.com/goliatone/go-query-cache/querycache"
)

// Container wires the store, logger and metrics of a QueryCache from a
// cache.Config. Components are built once and shared by every QueryCache
// the container hands out.
type Container struct {
	config     cache.Config
	store      cache.Store
	logger     *logrus.Logger
	metrics    querycache.Metrics
	queryCache *querycache.QueryCache
	owned      bool
}

type containerOptions struct {
	store     cache.Store
	logger    *logrus.Logger
	registry  prometheus.Registerer
	namespace string
}

// Option customizes a Container.
type Option func(*containerOptions)

// WithStore uses store instead of building one from the config. The caller
// keeps ownership: Close does not close it.
func WithStore(store cache.Store) Option {
	return func(o *containerOptions) {
		o.store = store
	}
}

// WithLogger uses logger instead of building one from the config.
func WithLogger(logger *logrus.Logger) Option {
	return func(o *containerOptions) {
		o.logger = logger
	}
}

// WithPrometheus registers query cache metrics with reg under namespace.
// Without it metrics are discarded.
func WithPrometheus(reg prometheus.Registerer, namespace string) Option {
	return func(o *containerOptions) {
		o.registry = reg
		o.namespace = namespace
	}
}

// NewContainer validates config and builds the components of a QueryCache
// over db. A redis backend is pinged before the container is returned.
func NewContainer(ctx context.Context, config cache.Config, db cache.Database, opts ...Option) (*Container, error) {
	o := &containerOptions{}
	for _, opt := range opts {
		opt(o)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	logger := o.logger
	if logger == nil {
		var err error
		if logger, err = NewLogger(config, os.Stderr); err != nil {
			return nil, err
		}
	}

	store := o.store
	owned := store == nil
	if owned {
		var err error
		if store, err = cache.NewStore(ctx, config); err != nil {
			return nil, err
		}
	}

	var m querycache.Metrics
	if o.registry != nil {
		p, err := metrics.NewPrometheus(o.registry, o.namespace)
		if err != nil {
			if owned {
				closeStore(store)
			}
			return nil, err
		}
		m = p
	}

	qcOpts := []querycache.Option{
		querycache.WithLogger(logger),
		querycache.WithPrefix(config.Prefix),
		querycache.WithTTL(config.TTL),
	}
	if m != nil {
		qcOpts = append(qcOpts, querycache.WithMetrics(m))
	}

	logger.WithFields(logrus.Fields{
		"backend": config.Backend,
		"prefix":  config.Prefix,
		"ttl":     config.TTL,
	}).Debug("cache: container ready")

	return &Container{
		config:     config,
		store:      store,
		logger:     logger,
		metrics:    m,
		queryCache: querycache.New(db, store, qcOpts...),
		owned:      owned,
	}, nil
}

// NewContainerWithDefaults creates a container from cache.DefaultConfig.
func NewContainerWithDefaults(ctx context.Context, db cache.Database, opts ...Option) (*Container, error) {
	return NewContainer(ctx, cache.DefaultConfig(), db, opts...)
}

// NewContainerFromEnv creates a container from QUERYCACHE_* environment
// variables, loading the given env files first.
func NewContainerFromEnv(ctx context.Context, db cache.Database, files ...string) (*Container, error) {
	config, err := cache.ConfigFromEnv(files...)
	if err != nil {
		return nil, err
	}
	return NewContainer(ctx, config, db)
}

// NewLogger builds a logrus logger writing to out with the level and
// format of config.
func NewLogger(config cache.Config, out io.Writer) (*logrus.Logger, error) {
	logger := logrus.New()
	logger.SetOutput(out)

	level := config.LogLevel
	if level == "" {
		level = "info"
	}
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return nil, &cacheinfra.ConfigError{Field: "LogLevel", Message: err.Error()}
	}
	logger.SetLevel(lvl)

	switch strings.ToLower(config.LogFormat) {
	case "", "text":
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		return nil, &cacheinfra.ConfigError{Field: "LogFormat", Message: "must be text or json"}
	}

	return logger, nil
}

// QueryCache returns the shared base QueryCache.
func (c *Container) QueryCache() *querycache.QueryCache {
	return c.queryCache
}

// Model is a shortcut for QueryCache().Model(name).
func (c *Container) Model(name string) *querycache.QueryCache {
	return c.queryCache.Model(name)
}

// Store returns the key-value store.
func (c *Container) Store() cache.Store {
	return c.store
}

// Logger returns the logger.
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// Metrics returns the configured metrics, or nil when none were requested.
func (c *Container) Metrics() querycache.Metrics {
	return c.metrics
}

// Config returns a copy of the configuration used by this container.
func (c *Container) Config() cache.Config {
	return c.config
}

// Close releases the connections of a store built by the container. Stores
// passed with WithStore belong to the caller and are left open.
func (c *Container) Close() error {
	if !c.owned {
		return nil
	}
	if closer, ok := c.store.(io.Closer); ok {
		return closer.Close()
	}
	return nil
}

func closeStore(store cache.Store) {
	if closer, ok := store.(io.Closer); ok {
		_ = closer.Close()
	}
}
