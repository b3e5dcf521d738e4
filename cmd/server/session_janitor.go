package main

import (
	"context"
	"log/slog"
	"time"
)

type sessionPurger interface {
	PurgeExpired(ctx context.Context) error
}

// sessionJanitor deletes expired sessions on a fixed interval. Stores drop
// expired tokens lazily on validation; the janitor bounds how long tokens
// that are never presented again stay around.
type sessionJanitor struct {
	sessions sessionPurger
	interval time.Duration
	logger   *slog.Logger
	// observe receives the outcome of every run. Optional.
	observe func(error)
	// ticks overrides time.Ticker in tests.
	ticks <-chan time.Time
}

// Run blocks until ctx is done. A failed purge is logged and retried on the
// next tick, so Run only returns nil and never stops the errgroup.
func (j *sessionJanitor) Run(ctx context.Context) error {
	if j.sessions == nil || j.interval <= 0 {
		return nil
	}
	ticks := j.ticks
	if ticks == nil {
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()
		ticks = ticker.C
	}

	failures := 0
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticks:
		}

		err := j.sessions.PurgeExpired(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if j.observe != nil {
			j.observe(err)
		}
		if err != nil {
			failures++
			j.log().Error("session purge failed", "error", err, "consecutive_failures", failures)
			continue
		}
		if failures > 0 {
			j.log().Info("session purge recovered", "after_failures", failures)
			failures = 0
		}
	}
}

func (j *sessionJanitor) log() *slog.Logger {
	if j.logger == nil {
		return slog.Default()
	}
	return j.logger
}
