package cache

import (
	"context"
	"strings"
	"time"
)

// DefaultPrefix is the key namespace used when none is configured.
const DefaultPrefix = "cacher"

// Store is the key-value collaborator backing the query cache.
// Get reports found=false on a miss; a miss is never an error.
// A ttl of zero stores the value without an expiry qualifier.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Delete(ctx context.Context, key string) error
}

// PrefixDeleter is implemented by stores that can drop every key sharing a prefix.
type PrefixDeleter interface {
	DeleteByPrefix(ctx context.Context, prefix string) error
}

// ModelHandle identifies a model known to the database layer.
// Values implementing it are replaced by their name during key derivation.
type ModelHandle interface {
	ModelName() string
}

// Database is the data-access collaborator the cache reads through to.
type Database interface {
	// ExecuteQuery runs a read-only raw query and returns plain rows.
	ExecuteQuery(ctx context.Context, query string) ([]map[string]any, error)
	// InvokeModelMethod runs one of the supported retrieval methods on a model.
	// The result may be a record, a slice of records, a scalar or nil.
	InvokeModelMethod(ctx context.Context, model string, method Method, options any) (any, error)
	// ResolveModel validates that a model is registered.
	ResolveModel(name string) (ModelHandle, error)
}

// Method is one of the supported retrieval methods.
type Method string

const (
	MethodFind            Method = "find"
	MethodFindOne         Method = "findOne"
	MethodFindAll         Method = "findAll"
	MethodFindAndCount    Method = "findAndCount"
	MethodFindAndCountAll Method = "findAndCountAll"
	MethodAll             Method = "all"
	MethodMin             Method = "min"
	MethodMax             Method = "max"
	MethodSum             Method = "sum"
	MethodCount           Method = "count"
)

// Methods lists every supported retrieval method.
var Methods = []Method{
	MethodFind,
	MethodFindOne,
	MethodFindAll,
	MethodFindAndCount,
	MethodFindAndCountAll,
	MethodAll,
	MethodMin,
	MethodMax,
	MethodSum,
	MethodCount,
}

func (m Method) String() string { return string(m) }

// Valid reports whether m is one of the supported retrieval methods.
func (m Method) Valid() bool {
	for _, known := range Methods {
		if m == known {
			return true
		}
	}
	return false
}

// ParseMethod returns the Method named by s.
func ParseMethod(s string) (Method, error) {
	m := Method(strings.TrimSpace(s))
	if !m.Valid() {
		return "", invalidMethodError(s)
	}
	return m, nil
}

// Request describes one cache operation: either a model query
// (Model, Method, Options) or a raw query (RawQuery), never both.
type Request struct {
	Model    string
	Method   Method
	Options  any
	RawQuery string
	TTL      time.Duration
	Prefix   string
}

// IsRaw reports whether the request carries raw query text.
func (r Request) IsRaw() bool {
	return r.RawQuery != ""
}

// KeyPrefix returns the configured prefix or DefaultPrefix.
func (r Request) KeyPrefix() string {
	if r.Prefix == "" {
		return DefaultPrefix
	}
	return r.Prefix
}

// Validate checks the request shape before any collaborator is touched.
func (r Request) Validate() error {
	if r.TTL < 0 {
		return configurationError(ErrInvalidRequest, "ttl must be non-negative")
	}

	if r.IsRaw() {
		if r.Model != "" || r.Method != "" || r.Options != nil {
			return configurationError(ErrInvalidRequest, "raw query cannot be combined with a model query")
		}
		return nil
	}

	if r.Model == "" {
		return configurationError(ErrModelNotSet, "model not set")
	}

	if !r.Method.Valid() {
		return invalidMethodError(r.Method.String())
	}

	return nil
}
