package sharing

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// testStores builds one of each store implementation so the contract tests
// run against both.
func testStores(t *testing.T) map[string]Store {
	t.Helper()

	sqlite, err := NewSQLiteStore(filepath.Join(t.TempDir(), "shares.db"))
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(func() { sqlite.Close() })

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlite,
	}
}

func TestStoreInsertLookup(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			entry := &Entry{
				TargetPath:   "/srv/files/report.pdf",
				OriginalName: "report.pdf",
				CreatedAt:    time.Now().UTC().Truncate(time.Second),
			}
			token, err := store.Insert(ctx, entry)
			if err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if len(token) != 32 {
				t.Errorf("expected 32-char hex token, got %q", token)
			}

			got, err := store.Lookup(ctx, token)
			if err != nil {
				t.Fatalf("Lookup: %v", err)
			}
			if got.TargetPath != entry.TargetPath || got.OriginalName != entry.OriginalName {
				t.Errorf("lookup mismatch: got %+v", got)
			}
			if got.Expires() {
				t.Error("entry without expiry should never expire")
			}

			if _, err := store.Lookup(ctx, "0000000000000000ffffffffffffffff"); !errors.Is(err, ErrNotFound) {
				t.Errorf("unknown token: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreRemove(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			token, err := store.Insert(ctx, &Entry{TargetPath: "/x", OriginalName: "x", CreatedAt: time.Now()})
			if err != nil {
				t.Fatalf("Insert: %v", err)
			}
			if err := store.Remove(ctx, token); err != nil {
				t.Fatalf("Remove: %v", err)
			}
			if _, err := store.Lookup(ctx, token); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after remove, got %v", err)
			}
			if err := store.Remove(ctx, token); !errors.Is(err, ErrNotFound) {
				t.Errorf("second remove: expected ErrNotFound, got %v", err)
			}
		})
	}
}

func TestStoreIndependentTokens(t *testing.T) {
	ctx := context.Background()
	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			// Two shares for the same path must get distinct tokens and
			// distinct lifecycles.
			a, err := store.Insert(ctx, &Entry{TargetPath: "/same", OriginalName: "same", CreatedAt: time.Now()})
			if err != nil {
				t.Fatal(err)
			}
			b, err := store.Insert(ctx, &Entry{TargetPath: "/same", OriginalName: "same", CreatedAt: time.Now()})
			if err != nil {
				t.Fatal(err)
			}
			if a == b {
				t.Fatalf("two shares got the same token %q", a)
			}

			if err := store.Remove(ctx, a); err != nil {
				t.Fatal(err)
			}
			if _, err := store.Lookup(ctx, b); err != nil {
				t.Errorf("removing one share broke the other: %v", err)
			}
		})
	}
}

func TestStoreSweepExpired(t *testing.T) {
	ctx := context.Background()
	now := time.Now().UTC()

	for name, store := range testStores(t) {
		t.Run(name, func(t *testing.T) {
			live, err := store.Insert(ctx, &Entry{
				TargetPath: "/live", OriginalName: "live",
				CreatedAt: now, ExpiresAt: now.Add(time.Hour),
			})
			if err != nil {
				t.Fatal(err)
			}
			dead, err := store.Insert(ctx, &Entry{
				TargetPath: "/dead", OriginalName: "dead",
				CreatedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour),
			})
			if err != nil {
				t.Fatal(err)
			}
			// Expiring exactly at the sweep instant counts as expired.
			boundary, err := store.Insert(ctx, &Entry{
				TargetPath: "/boundary", OriginalName: "boundary",
				CreatedAt: now.Add(-time.Hour), ExpiresAt: now,
			})
			if err != nil {
				t.Fatal(err)
			}
			forever, err := store.Insert(ctx, &Entry{
				TargetPath: "/forever", OriginalName: "forever", CreatedAt: now,
			})
			if err != nil {
				t.Fatal(err)
			}

			swept, err := store.SweepExpired(ctx, now)
			if err != nil {
				t.Fatalf("SweepExpired: %v", err)
			}
			if swept != 2 {
				t.Errorf("expected 2 swept entries, got %d", swept)
			}
			if _, err := store.Lookup(ctx, dead); !errors.Is(err, ErrNotFound) {
				t.Errorf("expired entry should be gone, got %v", err)
			}
			if _, err := store.Lookup(ctx, boundary); !errors.Is(err, ErrNotFound) {
				t.Errorf("entry expiring at the sweep instant should be gone, got %v", err)
			}
			if _, err := store.Lookup(ctx, live); err != nil {
				t.Errorf("live entry swept: %v", err)
			}
			if _, err := store.Lookup(ctx, forever); err != nil {
				t.Errorf("never-expiring entry swept: %v", err)
			}
		})
	}
}

func TestEntryExpiredAtBoundary(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e := &Entry{ExpiresAt: deadline}

	if e.ExpiredAt(deadline.Add(-time.Nanosecond)) {
		t.Error("entry expired before its deadline")
	}
	if !e.ExpiredAt(deadline) {
		t.Error("entry should be expired exactly at its deadline")
	}
	if !e.ExpiredAt(deadline.Add(time.Nanosecond)) {
		t.Error("entry should be expired past its deadline")
	}

	forever := &Entry{}
	if forever.ExpiredAt(deadline.AddDate(100, 0, 0)) {
		t.Error("entry without a deadline should never expire")
	}
}

func TestStoreConcurrentInsert(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	const workers = 10
	const perWorker = 50

	tokens := make(chan string, workers*perWorker)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perWorker; j++ {
				token, err := store.Insert(ctx, &Entry{
					TargetPath: "/concurrent", OriginalName: "concurrent", CreatedAt: time.Now(),
				})
				if err != nil {
					t.Errorf("Insert: %v", err)
					return
				}
				tokens <- token
			}
		}()
	}
	wg.Wait()
	close(tokens)

	seen := make(map[string]bool)
	for token := range tokens {
		if seen[token] {
			t.Fatalf("duplicate token handed out: %q", token)
		}
		seen[token] = true
		if _, err := store.Lookup(ctx, token); err != nil {
			t.Errorf("lost insert %q: %v", token, err)
		}
	}
	if len(seen) != workers*perWorker {
		t.Errorf("expected %d shares, got %d", workers*perWorker, len(seen))
	}
}
