package di

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/goliatone/go-query-cache/cache"
	"github.com/goliatone/go-query-cache/internal/cacheinfra"
	"github.com/goliatone/go-query-cache/pkg/testsupport"
)

func TestNewContainer(t *testing.T) {
	ctx := context.Background()
	config := cache.DefaultConfig()
	config.Prefix = "app"
	config.TTL = 5 * time.Minute
	config.Memory.Capacity = 1000
	config.Memory.NumShards = 16

	container, err := NewContainer(ctx, config, testsupport.NewRecordingDatabase("user"))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if container.Store() == nil {
		t.Error("Container should have a non-nil store")
	}
	if container.Logger() == nil {
		t.Error("Container should have a non-nil logger")
	}
	if container.QueryCache() == nil {
		t.Fatal("Container should have a non-nil query cache")
	}
	if container.Metrics() != nil {
		t.Error("Metrics should be nil without WithPrometheus")
	}

	stored := container.Config()
	if stored.Prefix != "app" || stored.TTL != 5*time.Minute {
		t.Errorf("unexpected stored config: %+v", stored)
	}

	key, err := container.Model("user").Key(container.Model("user").Request(cache.MethodCount, nil))
	if err != nil {
		t.Fatalf("Key() error = %v", err)
	}
	if want := "app:user:count:"; key[:len(want)] != want {
		t.Errorf("key %q should start with %q", key, want)
	}
}

func TestNewContainerWithDefaults(t *testing.T) {
	container, err := NewContainerWithDefaults(context.Background(), testsupport.NewRecordingDatabase())
	if err != nil {
		t.Fatalf("NewContainerWithDefaults() failed: %v", err)
	}

	config := container.Config()
	defaults := cache.DefaultConfig()
	if config.Prefix != defaults.Prefix {
		t.Errorf("Expected default prefix %q, got %q", defaults.Prefix, config.Prefix)
	}
	if config.Memory.Capacity != defaults.Memory.Capacity {
		t.Errorf("Expected default capacity %d, got %d", defaults.Memory.Capacity, config.Memory.Capacity)
	}
	if _, ok := container.Store().(*cacheinfra.MemoryStore); !ok {
		t.Errorf("Expected memory store, got %T", container.Store())
	}
	if err := container.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestNewContainer_InvalidConfig(t *testing.T) {
	config := cache.DefaultConfig()
	config.Memory.Capacity = -1

	_, err := NewContainer(context.Background(), config, testsupport.NewRecordingDatabase())
	var cfgErr *cacheinfra.ConfigError
	if !errors.As(err, &cfgErr) {
		t.Fatalf("expected ConfigError, got %v", err)
	}

	config = cache.DefaultConfig()
	config.LogLevel = "loud"
	if _, err := NewContainer(context.Background(), config, testsupport.NewRecordingDatabase()); err == nil {
		t.Error("expected error for an unknown log level")
	}
}

func TestNewContainer_WithStoreAndLogger(t *testing.T) {
	store := testsupport.NewRecordingStore()
	logger := logrus.New()

	container, err := NewContainer(context.Background(), cache.DefaultConfig(), testsupport.NewRecordingDatabase(),
		WithStore(store), WithLogger(logger))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if container.Store() != store {
		t.Error("WithStore should replace the configured store")
	}
	if container.Logger() != logger {
		t.Error("WithLogger should replace the configured logger")
	}
}

// closeRecordingStore reports whether Close was called.
type closeRecordingStore struct {
	*testsupport.RecordingStore
	closed bool
}

func (s *closeRecordingStore) Close() error {
	s.closed = true
	return nil
}

func TestContainer_CloseLeavesInjectedStoreOpen(t *testing.T) {
	store := &closeRecordingStore{RecordingStore: testsupport.NewRecordingStore()}

	container, err := NewContainer(context.Background(), cache.DefaultConfig(), testsupport.NewRecordingDatabase(),
		WithStore(store), WithLogger(logrus.New()))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if err := container.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if store.closed {
		t.Error("Close should not close a store passed with WithStore")
	}
}

func TestContainer_CloseOwnedStore(t *testing.T) {
	ctx := context.Background()
	mr := miniredis.RunT(t)

	config := cache.DefaultConfig()
	config.Backend = cache.BackendRedis
	config.Redis.Addr = mr.Addr()

	container, err := NewContainer(ctx, config, testsupport.NewRecordingDatabase(), WithLogger(logrus.New()))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}

	if err := container.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if _, _, err := container.Store().Get(ctx, "any"); err == nil {
		t.Error("expected the container built store to be closed")
	}
}

func TestNewContainer_WithPrometheus(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	db := testsupport.NewRecordingDatabase().OnMethod("user", cache.MethodCount, 3)

	container, err := NewContainer(ctx, cache.DefaultConfig(), db, WithPrometheus(reg, "test"))
	if err != nil {
		t.Fatalf("NewContainer() failed: %v", err)
	}
	if container.Metrics() == nil {
		t.Fatal("expected metrics")
	}

	if _, err := container.Model("user").Count(ctx, nil); err != nil {
		t.Fatalf("Count() error = %v", err)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	if len(families) == 0 {
		t.Error("expected registered metric families")
	}

	if _, err := NewContainer(ctx, cache.DefaultConfig(), db, WithPrometheus(reg, "test")); err == nil {
		t.Error("expected duplicate registration error")
	}
}

func TestNewContainerFromEnv(t *testing.T) {
	mr := miniredis.RunT(t)

	t.Setenv("QUERYCACHE_BACKEND", "redis")
	t.Setenv("QUERYCACHE_REDIS_ADDR", mr.Addr())
	t.Setenv("QUERYCACHE_PREFIX", "env")
	t.Setenv("QUERYCACHE_TTL", "30s")

	container, err := NewContainerFromEnv(context.Background(), testsupport.NewRecordingDatabase())
	if err != nil {
		t.Fatalf("NewContainerFromEnv() failed: %v", err)
	}
	defer container.Close()

	if _, ok := container.Store().(*cacheinfra.RedisStore); !ok {
		t.Errorf("Expected redis store, got %T", container.Store())
	}
	if container.Config().TTL != 30*time.Second {
		t.Errorf("TTL = %v, want 30s", container.Config().TTL)
	}
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	config := cache.DefaultConfig()
	config.LogLevel = "debug"
	config.LogFormat = "json"

	logger, err := NewLogger(config, &buf)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger.GetLevel() != logrus.DebugLevel {
		t.Errorf("level = %v, want debug", logger.GetLevel())
	}

	logger.WithField("key", "cacher:user:find:abc").Debug("cache: hit")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON output, got %q: %v", buf.String(), err)
	}
	if entry["msg"] != "cache: hit" || entry["key"] != "cacher:user:find:abc" {
		t.Errorf("unexpected entry: %v", entry)
	}

	config.LogFormat = "xml"
	if _, err := NewLogger(config, &buf); err == nil {
		t.Error("expected error for an unknown log format")
	}

	config.LogFormat = ""
	config.LogLevel = ""
	logger, err = NewLogger(config, &buf)
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger.GetLevel() != logrus.InfoLevel {
		t.Errorf("level = %v, want info", logger.GetLevel())
	}
}
