package cache

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"github.com/goliatone/go-query-cache/internal/cacheinfra"
)

// Backend selects the key-value store implementation.
type Backend string

const (
	BackendMemory Backend = "memory"
	BackendRedis  Backend = "redis"
)

// EnvPrefix prefixes every environment variable read by ConfigFromEnv.
const EnvPrefix = "QUERYCACHE_"

// Config exposes cache configuration options for consumers of the cache package.
type Config struct {
	// Prefix namespaces every key. Default: "cacher"
	Prefix string
	// TTL applied to stored entries. Zero stores without expiry.
	TTL     time.Duration
	Backend Backend
	Memory  MemoryConfig
	Redis   RedisConfig
	// LogLevel is a logrus level name. LogFormat is "text" or "json".
	LogLevel  string
	LogFormat string
}

// MemoryConfig mirrors the sturdyc options of the in-process store.
type MemoryConfig struct {
	Capacity           int
	NumShards          int
	MaxTTL             time.Duration
	EvictionPercentage int
	EvictionInterval   time.Duration
}

// RedisConfig holds the connection settings of the redis store.
type RedisConfig struct {
	Addr         string
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// DefaultConfig returns a Config populated with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:    DefaultPrefix,
		TTL:       0,
		Backend:   BackendMemory,
		Memory:    memoryFromInternal(cacheinfra.DefaultMemoryConfig()),
		Redis:     redisFromInternal(cacheinfra.DefaultRedisConfig()),
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Validate checks whether the configuration values are valid.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Prefix) == "" {
		return &cacheinfra.ConfigError{Field: "Prefix", Message: "must not be empty"}
	}

	if c.TTL < 0 {
		return &cacheinfra.ConfigError{Field: "TTL", Message: "must be non-negative"}
	}

	switch c.Backend {
	case BackendMemory:
		return c.Memory.toInternal().Validate()
	case BackendRedis:
		return c.Redis.toInternal().Validate()
	default:
		return &cacheinfra.ConfigError{Field: "Backend", Message: fmt.Sprintf("unknown backend %q", c.Backend)}
	}
}

// NewStore constructs the configured Store backend. The redis backend pings
// the server before returning.
func NewStore(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if cfg.Backend == BackendRedis {
		client, err := cacheinfra.NewRedisClient(ctx, cfg.Redis.toInternal())
		if err != nil {
			return nil, err
		}
		return cacheinfra.NewRedisStore(client), nil
	}

	store, err := cacheinfra.NewMemoryStore(cfg.Memory.toInternal())
	if err != nil {
		return nil, err
	}
	return store, nil
}

// ConfigFromEnv builds a Config from QUERYCACHE_* environment variables on top
// of DefaultConfig. Without arguments an optional .env file is loaded; named
// files must exist.
func ConfigFromEnv(files ...string) (Config, error) {
	if err := godotenv.Load(files...); err != nil && len(files) > 0 {
		return Config{}, fmt.Errorf("failed to load env files: %w", err)
	}

	cfg := DefaultConfig()
	var err error

	cfg.Prefix = getEnv("PREFIX", cfg.Prefix)
	cfg.Backend = Backend(getEnv("BACKEND", string(cfg.Backend)))
	cfg.LogLevel = getEnv("LOG_LEVEL", cfg.LogLevel)
	cfg.LogFormat = getEnv("LOG_FORMAT", cfg.LogFormat)
	if cfg.TTL, err = getDurationEnv("TTL", cfg.TTL); err != nil {
		return Config{}, err
	}

	if cfg.Memory.Capacity, err = getIntEnv("MEMORY_CAPACITY", cfg.Memory.Capacity); err != nil {
		return Config{}, err
	}
	if cfg.Memory.NumShards, err = getIntEnv("MEMORY_SHARDS", cfg.Memory.NumShards); err != nil {
		return Config{}, err
	}
	if cfg.Memory.MaxTTL, err = getDurationEnv("MEMORY_MAX_TTL", cfg.Memory.MaxTTL); err != nil {
		return Config{}, err
	}
	if cfg.Memory.EvictionPercentage, err = getIntEnv("MEMORY_EVICTION_PERCENTAGE", cfg.Memory.EvictionPercentage); err != nil {
		return Config{}, err
	}
	if cfg.Memory.EvictionInterval, err = getDurationEnv("MEMORY_EVICTION_INTERVAL", cfg.Memory.EvictionInterval); err != nil {
		return Config{}, err
	}

	cfg.Redis.Addr = getEnv("REDIS_ADDR", cfg.Redis.Addr)
	cfg.Redis.Password = getEnv("REDIS_PASSWORD", cfg.Redis.Password)
	if cfg.Redis.DB, err = getIntEnv("REDIS_DB", cfg.Redis.DB); err != nil {
		return Config{}, err
	}
	if cfg.Redis.PoolSize, err = getIntEnv("REDIS_POOL_SIZE", cfg.Redis.PoolSize); err != nil {
		return Config{}, err
	}
	if cfg.Redis.MinIdleConns, err = getIntEnv("REDIS_MIN_IDLE_CONNS", cfg.Redis.MinIdleConns); err != nil {
		return Config{}, err
	}
	if cfg.Redis.DialTimeout, err = getDurationEnv("REDIS_DIAL_TIMEOUT", cfg.Redis.DialTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Redis.ReadTimeout, err = getDurationEnv("REDIS_READ_TIMEOUT", cfg.Redis.ReadTimeout); err != nil {
		return Config{}, err
	}
	if cfg.Redis.WriteTimeout, err = getDurationEnv("REDIS_WRITE_TIMEOUT", cfg.Redis.WriteTimeout); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(EnvPrefix + key); ok && v != "" {
		return v
	}
	return fallback
}

func getIntEnv(key string, fallback int) (int, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, &cacheinfra.ConfigError{Field: EnvPrefix + key, Message: "must be an integer"}
	}
	return n, nil
}

// getDurationEnv accepts Go durations ("90s") or plain seconds ("60").
func getDurationEnv(key string, fallback time.Duration) (time.Duration, error) {
	v := getEnv(key, "")
	if v == "" {
		return fallback, nil
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, &cacheinfra.ConfigError{Field: EnvPrefix + key, Message: "must be a duration"}
	}
	return d, nil
}

func (c MemoryConfig) toInternal() cacheinfra.MemoryConfig {
	return cacheinfra.MemoryConfig{
		Capacity:           c.Capacity,
		NumShards:          c.NumShards,
		MaxTTL:             c.MaxTTL,
		EvictionPercentage: c.EvictionPercentage,
		EvictionInterval:   c.EvictionInterval,
	}
}

func memoryFromInternal(cfg cacheinfra.MemoryConfig) MemoryConfig {
	return MemoryConfig{
		Capacity:           cfg.Capacity,
		NumShards:          cfg.NumShards,
		MaxTTL:             cfg.MaxTTL,
		EvictionPercentage: cfg.EvictionPercentage,
		EvictionInterval:   cfg.EvictionInterval,
	}
}

func (c RedisConfig) toInternal() cacheinfra.RedisConfig {
	return cacheinfra.RedisConfig{
		Addr:         c.Addr,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		MinIdleConns: c.MinIdleConns,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

func redisFromInternal(cfg cacheinfra.RedisConfig) RedisConfig {
	return RedisConfig{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
}
