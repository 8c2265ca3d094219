package sharing

import (
	"context"
	"hash/fnv"
	"sync"
	"time"
)

const shardCount = 32

// MemoryStore is the default in-process Store. The map is striped across
// fixed shards keyed by token hash, so lookups never block on unrelated
// inserts and the sweeper only ever locks one shard at a time. Contents do
// not survive a restart; use the sqlite store for that.
type MemoryStore struct {
	shards [shardCount]shard
}

type shard struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	s := &MemoryStore{}
	for i := range s.shards {
		s.shards[i].entries = make(map[string]*Entry)
	}
	return s
}

func (s *MemoryStore) shardFor(token string) *shard {
	h := fnv.New32a()
	h.Write([]byte(token))
	return &s.shards[h.Sum32()%shardCount]
}

// Insert stores a copy of e under a freshly generated token.
func (s *MemoryStore) Insert(_ context.Context, e *Entry) (string, error) {
	for {
		token, err := generateToken()
		if err != nil {
			return "", err
		}
		sh := s.shardFor(token)
		sh.mu.Lock()
		if _, taken := sh.entries[token]; taken {
			sh.mu.Unlock()
			continue
		}
		stored := *e
		stored.Token = token
		sh.entries[token] = &stored
		sh.mu.Unlock()
		return token, nil
	}
}

// Lookup returns a copy of the entry for token.
func (s *MemoryStore) Lookup(_ context.Context, token string) (*Entry, error) {
	sh := s.shardFor(token)
	sh.mu.RLock()
	e, ok := sh.entries[token]
	if !ok {
		sh.mu.RUnlock()
		return nil, ErrNotFound
	}
	out := *e
	sh.mu.RUnlock()
	return &out, nil
}

// Remove deletes the entry for token.
func (s *MemoryStore) Remove(_ context.Context, token string) error {
	sh := s.shardFor(token)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if _, ok := sh.entries[token]; !ok {
		return ErrNotFound
	}
	delete(sh.entries, token)
	return nil
}

// List returns copies of all stored entries.
func (s *MemoryStore) List(_ context.Context) ([]*Entry, error) {
	var out []*Entry
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for _, e := range sh.entries {
			c := *e
			out = append(out, &c)
		}
		sh.mu.RUnlock()
	}
	return out, nil
}

// SweepExpired removes expired entries one shard at a time.
func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) (int, error) {
	removed := 0
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.Lock()
		for token, e := range sh.entries {
			if e.ExpiredAt(now) {
				delete(sh.entries, token)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed, nil
}

// Close is a no-op for the in-memory store.
func (s *MemoryStore) Close() error { return nil }
