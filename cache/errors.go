package cache

import (
	"errors"
	"fmt"

	goerrors "github.com/goliatone/go-errors"
)

// Error categories reported by the query cache.
const (
	CategoryConfiguration   goerrors.Category = "configuration"
	CategoryCacheStore      goerrors.Category = "cache_store"
	CategoryCacheCorruption goerrors.Category = "cache_corruption"
	CategoryDatabase        goerrors.Category = "database"
	CategorySerialization   goerrors.Category = "serialization"
	CategoryKeyDerivation   goerrors.Category = "key_derivation"
)

var (
	ErrModelNotSet      = errors.New("model not set")
	ErrInvalidMethod    = errors.New("invalid method")
	ErrInvalidRequest   = errors.New("invalid request")
	ErrUnknownModel     = errors.New("unknown model")
	ErrUnsupportedValue = errors.New("unsupported value")
)

// WrapError attaches category and message to source. Unlike goerrors.Wrap it
// always keeps the new category, even when source is already a categorized error.
func WrapError(source error, category goerrors.Category, message string) error {
	if source == nil {
		return nil
	}
	e := goerrors.New(message, category)
	e.Source = source
	return e
}

func configurationError(source error, message string) error {
	return WrapError(source, CategoryConfiguration, message)
}

func invalidMethodError(method string) error {
	return configurationError(ErrInvalidMethod, fmt.Sprintf("invalid method - %s", method))
}

func keyDerivationError(source error, message string) error {
	return WrapError(source, CategoryKeyDerivation, message)
}

// IsConfigurationError reports a missing model, unknown method or malformed request.
func IsConfigurationError(err error) bool {
	return goerrors.HasCategory(err, CategoryConfiguration)
}

// IsCacheStoreError reports a key-value store failure on get, set or delete.
func IsCacheStoreError(err error) bool {
	return goerrors.HasCategory(err, CategoryCacheStore)
}

// IsCacheCorruptionError reports a cache hit that could not be decoded.
func IsCacheCorruptionError(err error) bool {
	return goerrors.HasCategory(err, CategoryCacheCorruption)
}

// IsDatabaseError reports a failure of the underlying query.
func IsDatabaseError(err error) bool {
	return goerrors.HasCategory(err, CategoryDatabase)
}

// IsSerializationError reports a result that could not be encoded for storage.
func IsSerializationError(err error) bool {
	return goerrors.HasCategory(err, CategorySerialization)
}

// IsKeyDerivationError reports options that could not be canonicalized.
func IsKeyDerivationError(err error) bool {
	return goerrors.HasCategory(err, CategoryKeyDerivation)
}

// ErrorCategory returns the category of the outermost categorized error in err's chain.
func ErrorCategory(err error) goerrors.Category {
	var e *goerrors.Error
	if errors.As(err, &e) {
		return e.Category
	}
	return goerrors.CategoryInternal
}
