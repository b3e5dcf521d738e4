package auth

import (
	"context"
	"errors"
	"time"
)

const (
	defaultSessionTTL  = 7 * 24 * time.Hour
	defaultTokenLength = 32
)

// ErrInvalidUserID is returned when a session is requested without a user.
var ErrInvalidUserID = errors.New("userID is required")

// SessionStore persists sessions keyed by the SHA-256 digest of their token.
// Raw tokens never reach a store.
type SessionStore interface {
	Save(ctx context.Context, record SessionRecord) error
	Get(ctx context.Context, tokenHash string) (SessionRecord, bool, error)
	Delete(ctx context.Context, tokenHash string) error
	DeleteForUser(ctx context.Context, userID, keepTokenHash string) error
	PurgeExpired(ctx context.Context, now time.Time) error
}

// SessionRecord is one stored session. ExpiresAt slides with use when an
// idle timeout is configured; AbsoluteExpiresAt never moves.
type SessionRecord struct {
	TokenHash         string
	UserID            string
	ExpiresAt         time.Time
	AbsoluteExpiresAt time.Time
}

type SessionOption func(*SessionManager)

func WithStore(store SessionStore) SessionOption {
	return func(m *SessionManager) { m.store = store }
}

// WithTokenLength sets the number of random bytes per token.
func WithTokenLength(length int) SessionOption {
	return func(m *SessionManager) {
		if length > 0 {
			m.tokenLength = length
		}
	}
}

// WithIdleTimeout expires sessions unused for timeout. Each successful
// Validate pushes the expiry forward, never past the absolute TTL.
func WithIdleTimeout(timeout time.Duration) SessionOption {
	return func(m *SessionManager) {
		if timeout > 0 {
			m.idleTimeout = timeout
		}
	}
}

func WithClock(now func() time.Time) SessionOption {
	return func(m *SessionManager) {
		if now != nil {
			m.now = now
		}
	}
}

// SessionManager issues, validates and revokes opaque bearer tokens.
type SessionManager struct {
	store       SessionStore
	absoluteTTL time.Duration
	idleTimeout time.Duration
	tokenLength int
	now         func() time.Time
}

// NewSessionManager uses a 7 day TTL when ttl is not positive and an
// in-memory store unless WithStore is given.
func NewSessionManager(ttl time.Duration, opts ...SessionOption) *SessionManager {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	m := &SessionManager{
		absoluteTTL: ttl,
		tokenLength: defaultTokenLength,
		now:         time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.store == nil {
		m.store = NewMemorySessionStore()
	}
	return m
}

// nextExpiry is the sliding expiry for a session used at now.
func (m *SessionManager) nextExpiry(now, absolute time.Time) time.Time {
	if m.idleTimeout <= 0 {
		return absolute
	}
	if next := now.Add(m.idleTimeout); next.Before(absolute) {
		return next
	}
	return absolute
}

// Create returns a new token for userID and its current expiry.
func (m *SessionManager) Create(ctx context.Context, userID string) (string, time.Time, error) {
	if userID == "" {
		return "", time.Time{}, ErrInvalidUserID
	}
	token, err := generateToken(m.tokenLength)
	if err != nil {
		return "", time.Time{}, err
	}
	hash, err := hashSessionToken(token)
	if err != nil {
		return "", time.Time{}, err
	}

	now := m.now()
	absolute := now.Add(m.absoluteTTL)
	record := SessionRecord{
		TokenHash:         hash,
		UserID:            userID,
		ExpiresAt:         m.nextExpiry(now, absolute).UTC(),
		AbsoluteExpiresAt: absolute.UTC(),
	}
	if err := m.store.Save(ctx, record); err != nil {
		return "", time.Time{}, err
	}
	return token, record.ExpiresAt, nil
}

// Validate resolves token to its user. ok is false for unknown, revoked or
// expired tokens; expired ones are deleted on the way.
func (m *SessionManager) Validate(ctx context.Context, token string) (userID string, expiresAt time.Time, ok bool, err error) {
	if token == "" {
		return "", time.Time{}, false, nil
	}
	hash, err := hashSessionToken(token)
	if err != nil {
		return "", time.Time{}, false, err
	}
	record, found, err := m.store.Get(ctx, hash)
	if err != nil || !found {
		return "", time.Time{}, false, err
	}

	// Rows written before absolute expiries existed only carry ExpiresAt.
	if record.AbsoluteExpiresAt.IsZero() {
		record.AbsoluteExpiresAt = record.ExpiresAt
	}
	now := m.now()
	if record.expired(now) {
		_ = m.store.Delete(ctx, hash)
		return "", time.Time{}, false, nil
	}

	if next := m.nextExpiry(now, record.AbsoluteExpiresAt); next.After(record.ExpiresAt) {
		record.ExpiresAt = next.UTC()
		record.AbsoluteExpiresAt = record.AbsoluteExpiresAt.UTC()
		if err := m.store.Save(ctx, record); err != nil {
			return "", time.Time{}, false, err
		}
	}
	return record.UserID, record.ExpiresAt, true, nil
}

// Revoke deletes a single session. Unknown tokens are ignored.
func (m *SessionManager) Revoke(ctx context.Context, token string) error {
	if token == "" {
		return nil
	}
	hash, err := hashSessionToken(token)
	if err != nil {
		return err
	}
	return m.store.Delete(ctx, hash)
}

// RevokeUser deletes every session of userID except keepToken, which may be
// empty to revoke them all.
func (m *SessionManager) RevokeUser(ctx context.Context, userID, keepToken string) error {
	if userID == "" {
		return ErrInvalidUserID
	}
	var keep string
	if keepToken != "" {
		hash, err := hashSessionToken(keepToken)
		if err != nil {
			return err
		}
		keep = hash
	}
	return m.store.DeleteForUser(ctx, userID, keep)
}

func (m *SessionManager) PurgeExpired(ctx context.Context) error {
	return m.store.PurgeExpired(ctx, m.now())
}

// Ping reports whether the store is reachable. Stores without a Ping method
// are assumed healthy.
func (m *SessionManager) Ping(ctx context.Context) error {
	if m == nil || m.store == nil {
		return nil
	}
	pinger, ok := m.store.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	return pinger.Ping(ctx)
}
