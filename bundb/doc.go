// Package bundb adapts bun and go-repository-bun to the cache.Database
// contract. Repositories are registered under a model name; model methods
// such as findAll or count are dispatched to them with Options, and raw read
// queries run directly on the bun connection.
//
//	database := bundb.New(db)
//	bundb.MustRegister[*User](database, "user", users)
//
//	qc := querycache.New(database, store)
//	res, err := qc.Model("user").FindAll(ctx, bundb.Options{Where: map[string]any{"active": true}})
package bundb
