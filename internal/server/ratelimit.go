package server

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

type RateLimitConfig struct {
	GlobalRPS   float64
	GlobalBurst int
	LoginLimit  int
	LoginWindow time.Duration
	// RedisAddr shares login budgets across instances. Empty keeps them in
	// process.
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration

	// TrustForwardedHeaders believes X-Forwarded-For and X-Real-IP from any
	// peer. Only for deployments reachable solely through a proxy.
	TrustForwardedHeaders bool
	// TrustedProxies lists the CIDRs or addresses whose forwarded headers
	// are believed.
	TrustedProxies []string
}

const loginKeyPrefix = "podcasts:login:"

// loginStore counts login attempts per key within a window.
type loginStore interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error)
	Ping(ctx context.Context) error
}

// rateLimiter combines one global token bucket with per-client login
// budgets.
type rateLimiter struct {
	global      *rate.Limiter
	login       loginStore
	loginLimit  int
	loginWindow time.Duration
	shared      bool
}

func newRateLimiter(cfg RateLimitConfig) *rateLimiter {
	rl := &rateLimiter{loginLimit: max(cfg.LoginLimit, 0), loginWindow: cfg.LoginWindow}
	if rl.loginWindow <= 0 {
		rl.loginWindow = time.Minute
	}
	if cfg.GlobalRPS > 0 {
		burst := cfg.GlobalBurst
		if burst <= 0 {
			burst = max(int(cfg.GlobalRPS), 1)
		}
		rl.global = rate.NewLimiter(rate.Limit(cfg.GlobalRPS), burst)
	}

	switch {
	case rl.loginLimit == 0:
	case cfg.RedisAddr != "":
		timeout := cfg.RedisTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		rl.login = newRedisStore(cfg.RedisAddr, cfg.RedisPassword, timeout)
		rl.shared = true
	default:
		rl.login = newMemoryLoginStore()
	}
	return rl
}

func (r *rateLimiter) AllowRequest() bool {
	return r == nil || r.global == nil || r.global.Allow()
}

// AllowLogin reports whether key may attempt another login and, if not, how
// long it should wait.
func (r *rateLimiter) AllowLogin(ctx context.Context, key string) (bool, time.Duration, error) {
	if r == nil || r.login == nil {
		return true, 0, nil
	}
	if key == "" {
		key = "unknown"
	}
	return r.login.Allow(ctx, loginKeyPrefix+key, r.loginLimit, r.loginWindow)
}

// Ping checks the login store; the in-memory one always answers.
func (r *rateLimiter) Ping(ctx context.Context) error {
	if r == nil || r.login == nil {
		return nil
	}
	return r.login.Ping(ctx)
}

func (r *rateLimiter) Close() error {
	if r == nil {
		return nil
	}
	if closer, ok := r.login.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}

// memoryLoginStore refills limit tokens per window for each key. Keys idle
// for two windows are forgotten.
type memoryLoginStore struct {
	mu      sync.Mutex
	buckets map[string]*loginBucket
	now     func() time.Time
}

type loginBucket struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newMemoryLoginStore() *memoryLoginStore {
	return &memoryLoginStore{buckets: make(map[string]*loginBucket), now: time.Now}
}

func (s *memoryLoginStore) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, time.Duration, error) {
	now := s.now()
	s.mu.Lock()
	s.forgetIdleLocked(now, window)
	bucket, ok := s.buckets[key]
	if !ok {
		bucket = &loginBucket{limiter: rate.NewLimiter(rate.Every(window/time.Duration(limit)), limit)}
		s.buckets[key] = bucket
	}
	bucket.lastSeen = now
	s.mu.Unlock()

	reservation := bucket.limiter.ReserveN(now, 1)
	if delay := reservation.DelayFrom(now); delay > 0 {
		reservation.CancelAt(now)
		return false, delay, nil
	}
	return true, 0, nil
}

func (s *memoryLoginStore) Ping(context.Context) error { return nil }

func (s *memoryLoginStore) forgetIdleLocked(now time.Time, window time.Duration) {
	cutoff := now.Add(-2 * window)
	for key, bucket := range s.buckets {
		if bucket.lastSeen.Before(cutoff) {
			delete(s.buckets, key)
		}
	}
}
