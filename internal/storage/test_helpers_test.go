package storage

import (
	"path/filepath"
	"sync"
	"testing"
	"time"
)

// testClock hands out strictly increasing timestamps so list ordering by
// creation time is deterministic.
type testClock struct {
	mu   sync.Mutex
	next time.Time
}

func newTestClock() *testClock {
	return &testClock{next: time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.next
	c.next = c.next.Add(time.Second)
	return now
}

func newTestStore(t *testing.T, extra ...Option) *Storage {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "store.json")
	opts := append([]Option{WithClock(newTestClock().Now)}, extra...)
	store, err := NewStorage(path, opts...)
	if err != nil {
		t.Fatalf("NewStorage error: %v", err)
	}
	return store
}

func jsonRepositoryFactory(t *testing.T, opts ...Option) (Repository, func(), error) {
	t.Helper()
	return newTestStore(t, opts...), func() {}, nil
}
