package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"podcast-api/internal/api"
	"podcast-api/internal/auth"
	"podcast-api/internal/config"
	"podcast-api/internal/observability/logging"
	"podcast-api/internal/observability/metrics"
	"podcast-api/internal/server"
	"podcast-api/internal/service"
	"podcast-api/internal/serverutil"
)

func main() {
	cfg, err := loadConfig(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	logger := logging.Init(logging.Config{Level: cfg.Logging.Level, Format: cfg.Logging.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("podcast API stopped", "error", err)
		os.Exit(1)
	}
}

// loadConfig parses flags and layers the ones explicitly set on top of the
// file and environment configuration.
func loadConfig(args []string) (config.Config, error) {
	fs := flag.NewFlagSet("podcast-api", flag.ContinueOnError)
	configPath := fs.String("config", "", "path to a YAML configuration file")
	addr := fs.String("addr", "", "HTTP listen address")
	storageDriver := fs.String("storage-driver", "", "datastore driver (json or postgres)")
	dataPath := fs.String("data", "", "JSON datastore path")
	postgresDSN := fs.String("postgres-dsn", "", "Postgres connection string")
	sessionDriver := fs.String("session-driver", "", "session store driver (memory or postgres)")
	mediaDriver := fs.String("media-driver", "", "media storage driver (local or s3)")
	mediaDir := fs.String("media-dir", "", "local media directory")
	mediaBaseURL := fs.String("media-base-url", "", "public URL prefix of local media")
	tlsCert := fs.String("tls-cert", "", "TLS certificate file")
	tlsKey := fs.String("tls-key", "", "TLS private key file")
	logLevel := fs.String("log-level", "", "log level (debug, info, warn, error)")
	trustForwarded := fs.Bool("rate-trust-forwarded-headers", false, "trust proxy-provided client IP headers from any peer")
	trustedProxies := fs.String("rate-trusted-proxies", "", "comma separated CIDR blocks or IPs of trusted proxies")
	seed := fs.Bool("seed-admin", false, "create the seed administrator when none exists (needs PODCASTS_SEED__PASSWORD)")
	if err := fs.Parse(args); err != nil {
		return config.Config{}, err
	}

	values := map[string]any{
		"addr":           *addr,
		"storage-driver": *storageDriver,
		"data":           *dataPath,
		"postgres-dsn":   *postgresDSN,
		"session-driver": *sessionDriver,
		"media-driver":   *mediaDriver,
		"media-dir":      *mediaDir,
		"media-base-url": *mediaBaseURL,
		"tls-cert":       *tlsCert,
		"tls-key":        *tlsKey,
		"log-level":      *logLevel,
		"seed-admin":     *seed,

		"rate-trust-forwarded-headers": *trustForwarded,
		"rate-trusted-proxies":         *trustedProxies,
	}
	return config.Load(config.Options{
		Path:      *configPath,
		Overrides: flagOverrides(fs, values),
	})
}

var flagKeys = map[string]string{
	"addr":           "server.addr",
	"storage-driver": "storage.driver",
	"data":           "storage.data_path",
	"postgres-dsn":   "storage.postgres_dsn",
	"session-driver": "sessions.driver",
	"media-driver":   "media.driver",
	"media-dir":      "media.local_dir",
	"media-base-url": "media.base_url",
	"tls-cert":       "server.tls_cert_file",
	"tls-key":        "server.tls_key_file",
	"log-level":      "logging.level",
	"seed-admin":     "seed.enabled",

	"rate-trust-forwarded-headers": "rate_limit.trust_forwarded_headers",
	"rate-trusted-proxies":         "rate_limit.trusted_proxies",
}

// flagOverrides keeps only flags present on the command line so unset flags
// never mask file or environment values.
func flagOverrides(fs *flag.FlagSet, values map[string]any) map[string]any {
	overrides := make(map[string]any)
	fs.Visit(func(f *flag.Flag) {
		key, ok := flagKeys[f.Name]
		if !ok {
			return
		}
		if value, ok := values[f.Name]; ok {
			overrides[key] = value
		}
	})
	return overrides
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	recorder := metrics.Default()

	repo, pool, closeRepo, err := openRepository(ctx, cfg.Storage)
	if err != nil {
		return err
	}
	cleanup := []func(context.Context) error{closeRepo}
	closeAll := func() {
		for _, fn := range cleanup {
			_ = fn(context.Background())
		}
	}

	sessions, closeSessions, err := openSessions(ctx, cfg.Sessions, cfg.Storage.PostgresDSN, pool)
	if err != nil {
		closeAll()
		return err
	}
	cleanup = append([]func(context.Context) error{closeSessions}, cleanup...)

	uploader, err := buildUploader(ctx, cfg.Media, logging.WithComponent(logger, "media"), recorder)
	if err != nil {
		closeAll()
		return err
	}

	services := service.New(repo, sessions, auth.NewBcryptHasher(0), service.Options{
		Logger:   logging.WithComponent(logger, "service"),
		Uploader: uploader,
		Observer: recorder,
	})

	if cfg.Seed.Enabled {
		if err := seedAdministrator(ctx, services.Users, cfg.Seed, logger); err != nil {
			closeAll()
			return err
		}
	}

	handler := api.NewHandler(services, repo, sessions)
	handler.Logger = logging.WithComponent(logger, "api")
	handler.MediaState = uploader.State
	handler.MaxUploadBytes = cfg.Media.MaxUploadBytes
	handler.SessionCookie = api.SessionCookie{AlwaysSecure: cfg.Server.CookieSecure}

	mediaDir := ""
	if cfg.Media.Driver == "local" {
		mediaDir = cfg.Media.LocalDir
	}
	srv, err := server.New(handler, server.Config{
		Addr: cfg.Server.Addr,
		RateLimit: server.RateLimitConfig{
			GlobalRPS:     cfg.RateLimit.GlobalRPS,
			GlobalBurst:   cfg.RateLimit.GlobalBurst,
			LoginLimit:    cfg.RateLimit.LoginLimit,
			LoginWindow:   cfg.RateLimit.LoginWindow,
			RedisAddr:     cfg.RateLimit.RedisAddr,
			RedisPassword: cfg.RateLimit.RedisPassword,
			RedisTimeout:  cfg.RateLimit.RedisTimeout,

			TrustForwardedHeaders: cfg.RateLimit.TrustForwardedHeaders,
			TrustedProxies:        cfg.RateLimit.TrustedProxies,
		},
		CORS: server.CORSConfig{
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			MaxAge:         cfg.CORS.MaxAge,
		},
		Logger:       logging.WithComponent(logger, "http"),
		AuditLogger:  logging.WithComponent(logger, "audit"),
		Metrics:      recorder,
		MediaDir:     mediaDir,
		TLSEnabled:   cfg.Server.TLSEnabled(),
		WriteTimeout: cfg.Server.WriteTimeout,
	})
	if err != nil {
		closeAll()
		return fmt.Errorf("initialise server: %w", err)
	}
	cleanup = append([]func(context.Context) error{func(context.Context) error { return srv.Close() }}, cleanup...)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return serverutil.Run(gctx, serverutil.Config{
			Server:          srv.HTTPServer(),
			TLS:             serverutil.TLSConfig{CertFile: cfg.Server.TLSCertFile, KeyFile: cfg.Server.TLSKeyFile},
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			Logger:          logger,
			Cleanup:         cleanup,
		})
	})
	g.Go(func() error {
		janitor := &sessionJanitor{
			sessions: sessions,
			interval: cfg.Sessions.PurgeInterval,
			logger:   logging.WithComponent(logger, "session-janitor"),
			observe:  recorder.SessionPurge,
		}
		return janitor.Run(gctx)
	})

	logger.Info("podcast API starting",
		"storage", cfg.Storage.Driver,
		"sessions", cfg.Sessions.Driver,
		"media", cfg.Media.Driver,
		"metrics_path", "/metrics",
	)
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func seedAdministrator(ctx context.Context, users *service.UserService, seed config.SeedConfig, logger *slog.Logger) error {
	user, created, err := users.SeedAdministrator(ctx, service.AdminSeed{
		Nom:      seed.Nom,
		Prenom:   seed.Prenom,
		Email:    seed.Email,
		Password: seed.Password,
	})
	if err != nil {
		return fmt.Errorf("seed administrator: %w", err)
	}
	if created {
		logger.Info("seed administrator created", "user_id", user.ID, "email", user.Email)
	} else {
		logger.Debug("administrator already present, seed skipped", "user_id", user.ID)
	}
	return nil
}
