package media

import (
	"context"
	"errors"
	"log/slog"
	"time"

	gobreaker "github.com/sony/gobreaker/v2"
)

// ErrUnavailable is returned while the breaker is open and uploads are being
// rejected without reaching the backend.
var ErrUnavailable = errors.New("media storage unavailable")

// BreakerConfig tunes the circuit breaker around an Uploader.
type BreakerConfig struct {
	Name             string
	FailureThreshold uint32
	OpenTimeout      time.Duration
	Interval         time.Duration
	Logger           *slog.Logger
	OnStateChange    func(name string, from, to string)
}

// BreakerUploader stops calling a failing backend for OpenTimeout after
// FailureThreshold consecutive failures.
type BreakerUploader struct {
	next Uploader
	cb   *gobreaker.CircuitBreaker[string]
}

func NewBreakerUploader(next Uploader, cfg BreakerConfig) *BreakerUploader {
	if cfg.Name == "" {
		cfg.Name = "media-upload"
	}
	if cfg.FailureThreshold == 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 30 * time.Second
	}
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	threshold := cfg.FailureThreshold
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: 1,
		Interval:    cfg.Interval,
		Timeout:     cfg.OpenTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		IsSuccessful: func(err error) bool {
			// Client-side cancellation says nothing about backend health.
			return err == nil || errors.Is(err, context.Canceled)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("media upload breaker state change", "breaker", name, "from", from.String(), "to", to.String())
			if cfg.OnStateChange != nil {
				cfg.OnStateChange(name, from.String(), to.String())
			}
		},
	})
	return &BreakerUploader{next: next, cb: cb}
}

func (b *BreakerUploader) Upload(ctx context.Context, file File) (string, error) {
	url, err := b.cb.Execute(func() (string, error) {
		return b.next.Upload(ctx, file)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return "", errors.Join(ErrUnavailable, err)
	}
	return url, err
}

// State reports the breaker state, mostly for health output.
func (b *BreakerUploader) State() string {
	return b.cb.State().String()
}
