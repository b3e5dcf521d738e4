// Package config loads the podcast API runtime configuration.
//
// Values are layered in increasing precedence: built-in defaults, an optional
// YAML file, PODCASTS_ environment variables and finally explicit overrides
// (usually command-line flags). Nested keys use a double underscore in
// environment variables, so PODCASTS_STORAGE__DATA_PATH sets storage.data_path.
package config

import (
	"errors"
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// EnvPrefix prefixes every environment variable read by Load.
const EnvPrefix = "PODCASTS_"

// PathEnvVar points at the YAML file when Options.Path is empty.
const PathEnvVar = "PODCASTS_CONFIG"

// DefaultPaths are probed in order when neither Options.Path nor PathEnvVar
// is set.
var DefaultPaths = []string{
	"podcasts.yaml",
	"podcasts.yml",
	"/etc/podcasts/config.yaml",
}

type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Storage   StorageConfig   `koanf:"storage"`
	Sessions  SessionsConfig  `koanf:"sessions"`
	Media     MediaConfig     `koanf:"media"`
	RateLimit RateLimitConfig `koanf:"rate_limit"`
	CORS      CORSConfig      `koanf:"cors"`
	Logging   LoggingConfig   `koanf:"logging"`
	Seed      SeedConfig      `koanf:"seed"`
}

type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	TLSCertFile     string        `koanf:"tls_cert_file"`
	TLSKeyFile      string        `koanf:"tls_key_file"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	WriteTimeout    time.Duration `koanf:"write_timeout"`
	// CookieSecure forces the Secure flag on the session cookie even when the
	// request arrived over plain HTTP behind a proxy.
	CookieSecure bool `koanf:"cookie_secure"`
}

// TLSEnabled reports whether both certificate paths are configured.
func (s ServerConfig) TLSEnabled() bool {
	return s.TLSCertFile != "" && s.TLSKeyFile != ""
}

type StorageConfig struct {
	Driver              string        `koanf:"driver"`
	DataPath            string        `koanf:"data_path"`
	PostgresDSN         string        `koanf:"postgres_dsn"`
	MaxConnections      int32         `koanf:"max_connections"`
	MinConnections      int32         `koanf:"min_connections"`
	MaxConnLifetime     time.Duration `koanf:"max_conn_lifetime"`
	MaxConnIdleTime     time.Duration `koanf:"max_conn_idle_time"`
	HealthCheckInterval time.Duration `koanf:"health_check_interval"`
	AcquireTimeout      time.Duration `koanf:"acquire_timeout"`
}

type SessionsConfig struct {
	Driver        string        `koanf:"driver"`
	PostgresDSN   string        `koanf:"postgres_dsn"`
	TTL           time.Duration `koanf:"ttl"`
	IdleTimeout   time.Duration `koanf:"idle_timeout"`
	PurgeInterval time.Duration `koanf:"purge_interval"`
}

type MediaConfig struct {
	Driver         string        `koanf:"driver"`
	LocalDir       string        `koanf:"local_dir"`
	BaseURL        string        `koanf:"base_url"`
	MaxUploadBytes int64         `koanf:"max_upload_bytes"`
	UploadTimeout  time.Duration `koanf:"upload_timeout"`
	S3             S3Config      `koanf:"s3"`
	Breaker        BreakerConfig `koanf:"breaker"`
}

type S3Config struct {
	Endpoint       string `koanf:"endpoint"`
	Region         string `koanf:"region"`
	Bucket         string `koanf:"bucket"`
	AccessKey      string `koanf:"access_key"`
	SecretKey      string `koanf:"secret_key"`
	Prefix         string `koanf:"prefix"`
	PublicEndpoint string `koanf:"public_endpoint"`
	UsePathStyle   bool   `koanf:"use_path_style"`
}

type BreakerConfig struct {
	FailureThreshold uint32        `koanf:"failure_threshold"`
	OpenTimeout      time.Duration `koanf:"open_timeout"`
	Interval         time.Duration `koanf:"interval"`
}

type RateLimitConfig struct {
	GlobalRPS     float64       `koanf:"global_rps"`
	GlobalBurst   int           `koanf:"global_burst"`
	LoginLimit    int           `koanf:"login_limit"`
	LoginWindow   time.Duration `koanf:"login_window"`
	RedisAddr     string        `koanf:"redis_addr"`
	RedisPassword string        `koanf:"redis_password"`
	RedisTimeout  time.Duration `koanf:"redis_timeout"`

	// Forwarded headers are ignored unless the peer is trusted.
	TrustForwardedHeaders bool     `koanf:"trust_forwarded_headers"`
	TrustedProxies        []string `koanf:"trusted_proxies"`
}

type CORSConfig struct {
	AllowedOrigins []string `koanf:"allowed_origins"`
	MaxAge         int      `koanf:"max_age"`
}

type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// SeedConfig describes the administrator created on first start.
type SeedConfig struct {
	Enabled  bool   `koanf:"enabled"`
	Nom      string `koanf:"nom"`
	Prenom   string `koanf:"prenom"`
	Email    string `koanf:"email"`
	Password string `koanf:"password"`
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			ShutdownTimeout: 10 * time.Second,
			WriteTimeout:    5 * time.Minute,
		},
		Storage: StorageConfig{
			Driver:          "json",
			DataPath:        "data/store.json",
			MaxConnections:  10,
			AcquireTimeout:  5 * time.Second,
			MaxConnIdleTime: 5 * time.Minute,
		},
		Sessions: SessionsConfig{
			Driver:        "memory",
			TTL:           7 * 24 * time.Hour,
			IdleTimeout:   24 * time.Hour,
			PurgeInterval: 15 * time.Minute,
		},
		Media: MediaConfig{
			Driver:         "local",
			LocalDir:       "data/media",
			BaseURL:        "http://localhost:8080/media",
			MaxUploadBytes: 200 << 20,
			UploadTimeout:  2 * time.Minute,
			S3: S3Config{
				Region: "us-east-1",
			},
			Breaker: BreakerConfig{
				FailureThreshold: 5,
				OpenTimeout:      30 * time.Second,
				Interval:         time.Minute,
			},
		},
		RateLimit: RateLimitConfig{
			GlobalRPS:    50,
			GlobalBurst:  100,
			LoginLimit:   10,
			LoginWindow:  time.Minute,
			RedisTimeout: 2 * time.Second,
		},
		CORS: CORSConfig{
			MaxAge: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		// Seeding is opt-in and the password has no default; it comes from
		// PODCASTS_SEED__PASSWORD or the config file.
		Seed: SeedConfig{
			Nom:    "Salma",
			Prenom: "ElQadi",
			Email:  "salma@gmail.com",
		},
	}
}

// Options controls where Load reads from.
type Options struct {
	// Path is the YAML file to read. A missing explicit path is an error.
	Path string
	// Overrides are applied last, keyed by koanf path ("server.addr").
	Overrides map[string]any
	// SkipDefaultPaths disables probing DefaultPaths, mainly for tests.
	SkipDefaultPaths bool
}

// Load resolves the configuration from every layer and validates it.
func Load(opts Options) (Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return Config{}, fmt.Errorf("load defaults: %w", err)
	}

	path, err := resolvePath(opts)
	if err != nil {
		return Config{}, err
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return Config{}, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return Config{}, fmt.Errorf("load environment: %w", err)
	}

	for key, value := range opts.Overrides {
		if err := k.Set(key, value); err != nil {
			return Config{}, fmt.Errorf("apply override %s: %w", key, err)
		}
	}

	if err := splitLists(k, "cors.allowed_origins", "rate_limit.trusted_proxies"); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return Config{}, fmt.Errorf("decode configuration: %w", err)
	}
	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func resolvePath(opts Options) (string, error) {
	explicit := strings.TrimSpace(opts.Path)
	if explicit == "" {
		explicit = strings.TrimSpace(os.Getenv(PathEnvVar))
	}
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file %s: %w", explicit, err)
		}
		return explicit, nil
	}
	if opts.SkipDefaultPaths {
		return "", nil
	}
	for _, candidate := range DefaultPaths {
		if _, err := os.Stat(candidate); err == nil {
			return candidate, nil
		}
	}
	return "", nil
}

// envKey maps PODCASTS_RATE_LIMIT__LOGIN_LIMIT to rate_limit.login_limit.
// PODCASTS_CONFIG names the file itself and is ignored.
func envKey(name string) string {
	if name == PathEnvVar {
		return ""
	}
	key := strings.ToLower(strings.TrimPrefix(name, EnvPrefix))
	return strings.ReplaceAll(key, "__", ".")
}

// splitLists turns comma-separated strings from env or flags into slices.
func splitLists(k *koanf.Koanf, paths ...string) error {
	for _, path := range paths {
		raw, ok := k.Get(path).(string)
		if !ok {
			continue
		}
		var items []string
		for _, part := range strings.Split(raw, ",") {
			if part = strings.TrimSpace(part); part != "" {
				items = append(items, part)
			}
		}
		if err := k.Set(path, items); err != nil {
			return fmt.Errorf("split %s: %w", path, err)
		}
	}
	return nil
}

func (c *Config) normalize() {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	c.Sessions.Driver = strings.ToLower(strings.TrimSpace(c.Sessions.Driver))
	c.Media.Driver = strings.ToLower(strings.TrimSpace(c.Media.Driver))
	c.Media.BaseURL = strings.TrimRight(strings.TrimSpace(c.Media.BaseURL), "/")
	if c.Sessions.Driver == "postgres" && c.Sessions.PostgresDSN == "" {
		c.Sessions.PostgresDSN = c.Storage.PostgresDSN
	}
}

// Validate reports every inconsistent setting at once.
func (c Config) Validate() error {
	var errs []error
	if strings.TrimSpace(c.Server.Addr) == "" {
		errs = append(errs, errors.New("server.addr is required"))
	}
	if (c.Server.TLSCertFile == "") != (c.Server.TLSKeyFile == "") {
		errs = append(errs, errors.New("server.tls_cert_file and server.tls_key_file must be set together"))
	}

	switch c.Storage.Driver {
	case "json":
		if strings.TrimSpace(c.Storage.DataPath) == "" {
			errs = append(errs, errors.New("storage.data_path is required for the json driver"))
		}
	case "postgres":
		if strings.TrimSpace(c.Storage.PostgresDSN) == "" {
			errs = append(errs, errors.New("storage.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q must be json or postgres", c.Storage.Driver))
	}

	switch c.Sessions.Driver {
	case "memory":
	case "postgres":
		if strings.TrimSpace(c.Sessions.PostgresDSN) == "" {
			errs = append(errs, errors.New("sessions.postgres_dsn is required for the postgres driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("sessions.driver %q must be memory or postgres", c.Sessions.Driver))
	}
	if c.Sessions.TTL <= 0 {
		errs = append(errs, errors.New("sessions.ttl must be positive"))
	}

	switch c.Media.Driver {
	case "local":
		if strings.TrimSpace(c.Media.LocalDir) == "" {
			errs = append(errs, errors.New("media.local_dir is required for the local driver"))
		}
		if u, err := url.Parse(c.Media.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("media.base_url %q must be an absolute URL", c.Media.BaseURL))
		}
	case "s3":
		if strings.TrimSpace(c.Media.S3.Bucket) == "" {
			errs = append(errs, errors.New("media.s3.bucket is required for the s3 driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("media.driver %q must be local or s3", c.Media.Driver))
	}

	if c.RateLimit.LoginLimit > 0 && c.RateLimit.LoginWindow <= 0 {
		errs = append(errs, errors.New("rate_limit.login_window must be positive when login_limit is set"))
	}
	for _, proxy := range c.RateLimit.TrustedProxies {
		if !validProxy(proxy) {
			errs = append(errs, fmt.Errorf("rate_limit.trusted_proxies entry %q must be an IP address or CIDR", proxy))
		}
	}
	if c.Seed.Enabled && (c.Seed.Email == "" || c.Seed.Password == "") {
		errs = append(errs, errors.New("seed.email and seed.password are required when seeding is enabled"))
	}
	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration: %w", errors.Join(errs...))
	}
	return nil
}

func validProxy(value string) bool {
	value = strings.TrimSpace(value)
	if strings.Contains(value, "/") {
		_, err := netip.ParsePrefix(value)
		return err == nil
	}
	_, err := netip.ParseAddr(value)
	return err == nil
}
