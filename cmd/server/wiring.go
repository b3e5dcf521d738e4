package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"podcast-api/internal/auth"
	"podcast-api/internal/config"
	"podcast-api/internal/media"
	"podcast-api/internal/observability/metrics"
	"podcast-api/internal/storage"
)

type closeFunc func(context.Context) error

func noopClose(context.Context) error { return nil }

// openRepository returns the configured datastore. The pool is non-nil for
// Postgres so the session store can share it.
func openRepository(ctx context.Context, cfg config.StorageConfig) (storage.Repository, *pgxpool.Pool, closeFunc, error) {
	switch cfg.Driver {
	case "postgres":
		repo, err := storage.NewPostgresRepository(ctx, cfg.PostgresDSN,
			storage.WithPostgresPool(storage.PostgresPool{
				MaxConnections:      cfg.MaxConnections,
				MinConnections:      cfg.MinConnections,
				MaxConnLifetime:     cfg.MaxConnLifetime,
				MaxConnIdleTime:     cfg.MaxConnIdleTime,
				HealthCheckInterval: cfg.HealthCheckInterval,
				AcquireTimeout:      cfg.AcquireTimeout,
			}))
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open postgres repository: %w", err)
		}
		return repo, repo.Pool(), repo.Close, nil
	case "json", "":
		repo, err := storage.NewJSONRepository(cfg.DataPath)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open json repository: %w", err)
		}
		return repo, nil, noopClose, nil
	default:
		return nil, nil, nil, fmt.Errorf("unsupported storage driver %q", cfg.Driver)
	}
}

// openSessions builds the session manager. A Postgres store reuses shared
// when it points at the same database as the repository.
func openSessions(ctx context.Context, cfg config.SessionsConfig, storageDSN string, shared *pgxpool.Pool) (*auth.SessionManager, closeFunc, error) {
	opts := []auth.SessionOption{auth.WithIdleTimeout(cfg.IdleTimeout)}
	switch cfg.Driver {
	case "postgres":
		var (
			store *auth.PostgresSessionStore
			err   error
		)
		if shared != nil && cfg.PostgresDSN == storageDSN {
			store, err = auth.NewPostgresSessionStoreFromPool(ctx, shared)
		} else {
			store, err = auth.NewPostgresSessionStore(ctx, cfg.PostgresDSN)
		}
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres session store: %w", err)
		}
		return auth.NewSessionManager(cfg.TTL, append(opts, auth.WithStore(store))...), store.Close, nil
	case "memory", "":
		return auth.NewSessionManager(cfg.TTL, opts...), noopClose, nil
	default:
		return nil, nil, fmt.Errorf("unsupported session driver %q", cfg.Driver)
	}
}

// buildUploader wraps the configured backend in a circuit breaker whose
// state feeds the metrics gauge.
func buildUploader(ctx context.Context, cfg config.MediaConfig, logger *slog.Logger, recorder *metrics.Recorder) (*media.BreakerUploader, error) {
	var backend media.Uploader
	switch cfg.Driver {
	case "s3":
		s3, err := media.NewS3Uploader(ctx, media.S3Config{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			PublicEndpoint: cfg.S3.PublicEndpoint,
			UsePathStyle:   cfg.S3.UsePathStyle,
			RequestTimeout: cfg.UploadTimeout,
		})
		if err != nil {
			return nil, fmt.Errorf("configure s3 media: %w", err)
		}
		backend = s3
	case "local", "":
		local, err := media.NewLocalUploader(cfg.LocalDir, cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("configure local media: %w", err)
		}
		backend = local
	default:
		return nil, fmt.Errorf("unsupported media driver %q", cfg.Driver)
	}

	breaker := media.BreakerConfig{
		Name:             "media-" + cfg.Driver,
		FailureThreshold: cfg.Breaker.FailureThreshold,
		OpenTimeout:      cfg.Breaker.OpenTimeout,
		Interval:         cfg.Breaker.Interval,
		Logger:           logger,
	}
	if recorder != nil {
		breaker.OnStateChange = recorder.BreakerStateChange
	}
	return media.NewBreakerUploader(backend, breaker), nil
}
