package cacheinfra

import (
	"context"
	"strings"
	"time"

	"github.com/viccon/sturdyc"
)

// memoryEntry carries the per-key expiry that sturdyc does not track itself.
type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryStore is an in-process key-value store backed by a sturdyc client.
// sturdyc applies one TTL to the whole client (MaxTTL); shorter per-key TTLs
// are enforced on read.
type MemoryStore struct {
	client *sturdyc.Client[memoryEntry]
	now    func() time.Time
}

// MemoryOption customizes a MemoryStore.
type MemoryOption func(*memoryOptions)

type memoryOptions struct {
	clock sturdyc.Clock
}

// WithClock drives expiry from clock instead of the wall clock.
func WithClock(clock sturdyc.Clock) MemoryOption {
	return func(o *memoryOptions) {
		o.clock = clock
	}
}

// NewMemoryStore validates cfg and initializes a sturdyc client with it.
func NewMemoryStore(cfg MemoryConfig, opts ...MemoryOption) (*MemoryStore, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	o := &memoryOptions{}
	for _, opt := range opts {
		opt(o)
	}

	sturdycOpts := cfg.ToSturdycOptions()
	now := time.Now
	if o.clock != nil {
		sturdycOpts = append(sturdycOpts, sturdyc.WithClock(o.clock))
		now = o.clock.Now
	}

	client := sturdyc.New[memoryEntry](
		cfg.Capacity,
		cfg.NumShards,
		cfg.MaxTTL,
		cfg.EvictionPercentage,
		sturdycOpts...,
	)

	return &MemoryStore{client: client, now: now}, nil
}

// Get returns the stored value, treating entries past their TTL as missing.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, bool, error) {
	entry, ok := s.client.Get(key)
	if !ok {
		return "", false, nil
	}
	if entry.expired(s.now()) {
		s.client.Delete(key)
		return "", false, nil
	}
	return entry.value, true, nil
}

// Set stores value under key. A zero ttl keeps the entry until MaxTTL or eviction.
func (s *MemoryStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}
	s.client.Set(key, entry)
	return nil
}

// Delete removes a single entry. Deleting a missing key is not an error.
func (s *MemoryStore) Delete(ctx context.Context, key string) error {
	s.client.Delete(key)
	return nil
}

// DeleteByPrefix removes all entries whose keys start with prefix.
func (s *MemoryStore) DeleteByPrefix(ctx context.Context, prefix string) error {
	for _, key := range s.client.ScanKeys() {
		if strings.HasPrefix(key, prefix) {
			s.client.Delete(key)
		}
	}
	return nil
}

// TTL reports the remaining lifetime of key. ok is false when the key is
// missing or expired; a zero duration with ok means no per-key expiry.
func (s *MemoryStore) TTL(ctx context.Context, key string) (time.Duration, bool) {
	entry, ok := s.client.Get(key)
	if !ok {
		return 0, false
	}
	now := s.now()
	if entry.expired(now) {
		return 0, false
	}
	if entry.expiresAt.IsZero() {
		return 0, true
	}
	return entry.expiresAt.Sub(now), true
}
