package querycache

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Option configures a QueryCache at construction.
type Option func(*QueryCache)

// WithLogger sets the logger used for hit, miss and store debug entries.
func WithLogger(logger logrus.FieldLogger) Option {
	return func(q *QueryCache) {
		if logger != nil {
			q.logger = logger
		}
	}
}

// WithMetrics sets the observer notified of every resolve.
func WithMetrics(m Metrics) Option {
	return func(q *QueryCache) {
		if m != nil {
			q.metrics = m
		}
	}
}

// WithPrefix sets the default key prefix.
func WithPrefix(prefix string) Option {
	return func(q *QueryCache) {
		q.prefix = prefix
	}
}

// WithTTL sets the default expiry of stored entries.
func WithTTL(ttl time.Duration) Option {
	return func(q *QueryCache) {
		q.ttl = ttl
	}
}
