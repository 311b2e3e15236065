package testsupport

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/goliatone/go-query-cache/cache"
)

func TestRecordingStore(t *testing.T) {
	ctx := context.Background()
	store := NewRecordingStore()

	if _, ok, err := store.Get(ctx, "k"); ok || err != nil {
		t.Fatalf("expected miss, got ok=%v err=%v", ok, err)
	}

	if err := store.Set(ctx, "cacher:user:find:1", "v", time.Minute); err != nil {
		t.Fatalf("Set() error = %v", err)
	}
	store.Seed("cacher:post:find:1", "p")

	if ttl, ok := store.TTL("cacher:user:find:1"); !ok || ttl != time.Minute {
		t.Errorf("expected ttl 1m, got %v (ok=%v)", ttl, ok)
	}

	if err := store.DeleteByPrefix(ctx, "cacher:user:"); err != nil {
		t.Fatalf("DeleteByPrefix() error = %v", err)
	}
	if store.Len() != 1 {
		t.Errorf("expected 1 key left, got %d", store.Len())
	}

	calls := store.Calls()
	if calls.Get != 1 || calls.Set != 1 || calls.DeleteByPrefix != 1 || calls.Total() != 3 {
		t.Errorf("unexpected calls: %+v", calls)
	}
}

func TestRecordingStore_Errors(t *testing.T) {
	ctx := context.Background()
	boom := errors.New("boom")
	store := NewRecordingStore()
	store.GetErr = boom
	store.SetErr = boom
	store.DeleteErr = boom

	if _, _, err := store.Get(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("expected get error, got %v", err)
	}
	if err := store.Set(ctx, "k", "v", 0); !errors.Is(err, boom) {
		t.Errorf("expected set error, got %v", err)
	}
	if err := store.Delete(ctx, "k"); !errors.Is(err, boom) {
		t.Errorf("expected delete error, got %v", err)
	}
	if _, ok := store.Value("k"); ok {
		t.Error("failed set should not store a value")
	}
}

func TestRecordingDatabase(t *testing.T) {
	ctx := context.Background()
	db := NewRecordingDatabase("user").
		OnMethod("user", cache.MethodCount, 3).
		OnQuery("select 1", []map[string]any{{"one": 1}})

	handle, err := db.ResolveModel("user")
	if err != nil || handle.ModelName() != "user" {
		t.Fatalf("ResolveModel() = %v, %v", handle, err)
	}
	if _, err := db.ResolveModel("ghost"); !errors.Is(err, cache.ErrUnknownModel) {
		t.Errorf("expected ErrUnknownModel, got %v", err)
	}

	got, err := db.InvokeModelMethod(ctx, "user", cache.MethodCount, map[string]any{"a": 1})
	if err != nil || got != 3 {
		t.Errorf("InvokeModelMethod() = %v, %v", got, err)
	}

	rows, err := db.ExecuteQuery(ctx, "select 1")
	if err != nil || len(rows) != 1 {
		t.Errorf("ExecuteQuery() = %v, %v", rows, err)
	}

	calls := db.Calls()
	if calls.InvokeModelMethod != 1 || calls.ExecuteQuery != 1 || calls.ResolveModel != 2 {
		t.Errorf("unexpected calls: %+v", calls)
	}
	if inv := db.Invocations(); len(inv) != 1 || inv[0].Method != cache.MethodCount {
		t.Errorf("unexpected invocations: %+v", inv)
	}
	if q := db.Queries(); len(q) != 1 || q[0] != "select 1" {
		t.Errorf("unexpected queries: %v", q)
	}

	db.Err = errors.New("down")
	if _, err := db.ExecuteQuery(ctx, "select 1"); err == nil {
		t.Error("expected scripted error")
	}
}
