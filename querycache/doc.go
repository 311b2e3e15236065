// Package querycache serves read queries from a key-value store, reading
// through to the database on a miss.
//
// # Overview
//
// A QueryCache sits in front of a cache.Database and a cache.Store. Every read
// is fingerprinted into a key (see cache.DeriveKey); a stored value is decoded
// and returned, otherwise the query runs against the database, its result is
// normalized to plain data, serialized to JSON, written to the store and
// returned.
//
// # Basic Usage
//
//	qc := querycache.New(db, store, querycache.WithLogger(logger))
//
//	users := qc.Model("user").TTL(time.Minute)
//	res, err := users.FindAll(ctx, map[string]any{"where": map[string]any{"active": true}})
//
//	var rows []User
//	err = res.Scan(&rows)
//
//	// Raw queries are keyed by their text
//	res, err = qc.Query(ctx, "select id, name from users")
//
// # Immutability
//
// Model, TTL and Prefix return configured copies and never change their
// receiver. A base QueryCache can be shared freely and specialized per call
// site without coordination.
//
// # Results
//
// Result.Value holds the decoded JSON form of the cached entry: nil,
// map[string]any, []any, float64, string or bool. Hits and misses return the
// same shape. Result.Scan decodes into a typed destination.
//
// # Errors
//
// Failures are returned with a go-errors category and never logged:
//
//   - configuration: no model, unknown model or unsupported method
//   - cache_store: the store failed on get, set or delete
//   - cache_corruption: a stored entry is not valid JSON
//   - database: the query itself failed
//   - serialization: the result could not be encoded
//   - key_derivation: options could not be canonicalized
//
// Use the cache.Is*Error helpers to branch on them.
//
// # Invalidation
//
// Entries are never invalidated on writes. Invalidate and Clear drop the
// entry of one request; InvalidateModel drops every entry of a model.
//
// # Concurrency
//
// Concurrent misses on the same key each query the database and each write
// the store; the last write wins.
package querycache
