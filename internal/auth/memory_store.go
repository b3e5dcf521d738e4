package auth

import (
	"context"
	"sync"
	"time"
)

// MemorySessionStore keeps sessions in process. Sessions are lost on restart
// and are not shared between replicas; use the Postgres store for that.
type MemorySessionStore struct {
	mu     sync.Mutex
	byHash map[string]SessionRecord
	byUser map[string]map[string]struct{}
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		byHash: make(map[string]SessionRecord),
		byUser: make(map[string]map[string]struct{}),
	}
}

// Save inserts or refreshes record. A record moved to another user is
// re-indexed.
func (s *MemorySessionStore) Save(_ context.Context, record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if previous, ok := s.byHash[record.TokenHash]; ok && previous.UserID != record.UserID {
		s.unindexLocked(previous)
	}
	s.byHash[record.TokenHash] = record
	hashes := s.byUser[record.UserID]
	if hashes == nil {
		hashes = make(map[string]struct{})
		s.byUser[record.UserID] = hashes
	}
	hashes[record.TokenHash] = struct{}{}
	return nil
}

func (s *MemorySessionStore) Get(_ context.Context, tokenHash string) (SessionRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	record, ok := s.byHash[tokenHash]
	return record, ok, nil
}

func (s *MemorySessionStore) Delete(_ context.Context, tokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record, ok := s.byHash[tokenHash]; ok {
		s.removeLocked(record)
	}
	return nil
}

// DeleteForUser revokes every session of userID except keepTokenHash.
func (s *MemorySessionStore) DeleteForUser(_ context.Context, userID, keepTokenHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for hash := range s.byUser[userID] {
		if hash == keepTokenHash {
			continue
		}
		s.removeLocked(s.byHash[hash])
	}
	return nil
}

func (s *MemorySessionStore) PurgeExpired(_ context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, record := range s.byHash {
		if record.expired(now) {
			s.removeLocked(record)
		}
	}
	return nil
}

// Len reports the number of stored sessions, expired ones included.
func (s *MemorySessionStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.byHash)
}

func (s *MemorySessionStore) Ping(context.Context) error {
	return nil
}

func (s *MemorySessionStore) removeLocked(record SessionRecord) {
	delete(s.byHash, record.TokenHash)
	s.unindexLocked(record)
}

func (s *MemorySessionStore) unindexLocked(record SessionRecord) {
	hashes := s.byUser[record.UserID]
	delete(hashes, record.TokenHash)
	if len(hashes) == 0 {
		delete(s.byUser, record.UserID)
	}
}

func (r SessionRecord) expired(now time.Time) bool {
	if now.After(r.ExpiresAt) {
		return true
	}
	return !r.AbsoluteExpiresAt.IsZero() && now.After(r.AbsoluteExpiresAt)
}
