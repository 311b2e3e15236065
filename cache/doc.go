// Package cache defines the contracts of the query cache and derives its keys.
//
// # Contracts
//
// A Store is a string key-value store with per-entry expiry. A Database runs
// raw read queries, invokes model methods and resolves model names. Stores
// that can drop keys by prefix implement PrefixDeleter as well.
//
// # Keys
//
// DeriveKey turns a Request into a stable key:
//
//	<prefix>:<model>:<method>:<sha1 of canonical options>
//	<prefix>:__raw__:query:<sha1 of query text>
//
// Options are canonicalized before hashing: map keys and struct fields are
// sorted by name, integral floats are written as integers, model handles and
// bun connections are replaced by their names and cycles by "[Circular]".
// Two option values that mean the same query produce the same key.
//
// Function values such as select criteria are keyed by their code pointer.
// The pointer is stable within a process only, so keys holding criteria
// should not be shared across processes through a remote store.
//
// # Configuration
//
// Config selects the store backend (sturdyc in memory or redis) and can be
// read from QUERYCACHE_* environment variables with ConfigFromEnv:
//
//	cfg, err := cache.ConfigFromEnv()
//	store, err := cache.NewStore(ctx, cfg)
package cache
