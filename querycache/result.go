package querycache

import (
	"encoding/json"

	"github.com/goliatone/go-query-cache/cache"
)

// Result is the outcome of a resolve. Value holds the plain decoded form of
// the cached JSON (nil, map[string]any, []any, float64, string or bool) and
// is the same whether it came from the store or the database.
type Result struct {
	Key       string
	Value     any
	FromCache bool

	raw []byte
}

// Bytes returns the JSON text stored under Key.
func (r *Result) Bytes() []byte {
	return r.raw
}

// Scan decodes the cached JSON into dest.
func (r *Result) Scan(dest any) error {
	if err := json.Unmarshal(r.raw, dest); err != nil {
		return cache.WrapError(err, cache.CategorySerialization, "failed to scan cached value")
	}
	return nil
}

// IsEmpty reports whether the query produced no value.
func (r *Result) IsEmpty() bool {
	return r.Value == nil
}
