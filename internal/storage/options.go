package storage

import (
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

const defaultPostgresAcquireTimeout = 5 * time.Second

// PostgresPool tunes the pgx pool. Zero fields keep the pgxpool defaults.
type PostgresPool struct {
	MaxConnections      int32
	MinConnections      int32
	MaxConnLifetime     time.Duration
	MaxConnIdleTime     time.Duration
	HealthCheckInterval time.Duration
	// AcquireTimeout bounds each repository call, connection acquisition
	// included.
	AcquireTimeout  time.Duration
	ApplicationName string
}

// Option configures NewStorage and NewPostgresRepository. Postgres settings
// are ignored by the JSON store.
type Option func(*settings)

type settings struct {
	clock func() time.Time
	pool  PostgresPool
}

func newSettings(opts []Option) settings {
	s := settings{
		clock: time.Now,
		pool: PostgresPool{
			AcquireTimeout:  defaultPostgresAcquireTimeout,
			ApplicationName: "podcast-api",
		},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&s)
		}
	}
	return s
}

// now always reports UTC so both stores persist comparable timestamps.
func (s settings) now() time.Time {
	return s.clock().UTC()
}

// WithClock overrides the source of created_at and updated_at.
func WithClock(now func() time.Time) Option {
	return func(s *settings) {
		if now != nil {
			s.clock = now
		}
	}
}

// WithPostgresPool merges the non-zero fields of pool into the defaults.
func WithPostgresPool(pool PostgresPool) Option {
	return func(s *settings) {
		if pool.MaxConnections > 0 {
			s.pool.MaxConnections = pool.MaxConnections
		}
		if pool.MinConnections > 0 {
			s.pool.MinConnections = pool.MinConnections
		}
		if pool.MaxConnLifetime > 0 {
			s.pool.MaxConnLifetime = pool.MaxConnLifetime
		}
		if pool.MaxConnIdleTime > 0 {
			s.pool.MaxConnIdleTime = pool.MaxConnIdleTime
		}
		if pool.HealthCheckInterval > 0 {
			s.pool.HealthCheckInterval = pool.HealthCheckInterval
		}
		if pool.AcquireTimeout > 0 {
			s.pool.AcquireTimeout = pool.AcquireTimeout
		}
		if name := strings.TrimSpace(pool.ApplicationName); name != "" {
			s.pool.ApplicationName = name
		}
	}
}

// poolConfig parses dsn and layers the pool settings on top of it.
func (p PostgresPool) poolConfig(dsn string) (*pgxpool.Config, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("postgres dsn required")
	}
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse postgres config: %w", err)
	}
	if p.MaxConnections > 0 {
		cfg.MaxConns = p.MaxConnections
	}
	if p.MinConnections > 0 {
		cfg.MinConns = p.MinConnections
	}
	if p.MaxConnLifetime > 0 {
		cfg.MaxConnLifetime = p.MaxConnLifetime
	}
	if p.MaxConnIdleTime > 0 {
		cfg.MaxConnIdleTime = p.MaxConnIdleTime
	}
	if p.HealthCheckInterval > 0 {
		cfg.HealthCheckPeriod = p.HealthCheckInterval
	}
	if p.AcquireTimeout > 0 {
		cfg.ConnConfig.ConnectTimeout = p.AcquireTimeout
	}
	if p.ApplicationName != "" {
		if cfg.ConnConfig.RuntimeParams == nil {
			cfg.ConnConfig.RuntimeParams = make(map[string]string)
		}
		cfg.ConnConfig.RuntimeParams["application_name"] = p.ApplicationName
	}
	return cfg, nil
}
