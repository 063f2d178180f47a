// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Hotbridge Contributors

// Package reclaim drives an unloading context to reclamation by forcing
// garbage collections until its observation handle reports it gone.
package reclaim

import (
	"context"
	"errors"
	"log/slog"
	"runtime"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"

	"github.com/hotbridge/hotbridge/internal/loadctx"
	"github.com/hotbridge/hotbridge/internal/native"
)

// Default attempt thresholds.
const (
	DefaultWarnAfter   = 5000
	DefaultGiveUpAfter = 10000
)

// Messages sent to the host log while waiting.
const (
	WarnMessage   = "Unloading of modules took more time than expected. Trying to unload modules to the next breakpoint..."
	GiveUpMessage = "unloading of plugin modules failed: this might be caused by running goroutines, outstanding leases or other references that prevent cooperative unloading"
)

// Outcomes of a wait.
const (
	OutcomeConverged = "converged"
	OutcomeAbandoned = "abandoned"
	OutcomeCancelled = "cancelled"
)

const progressEvery = 1000

var (
	errStillAlive = errors.New("context still alive")
	errGaveUp     = errors.New("context did not converge")
)

// Result describes a finished wait.
type Result struct {
	Attempts int
	Outcome  string
}

// Converged reports whether the context was reclaimed.
func (r Result) Converged() bool {
	return r.Outcome == OutcomeConverged
}

// Loop waits for contexts to be reclaimed.
type Loop struct {
	warnAfter   int
	giveUpAfter int
	collect     func()
}

// Option configures a Loop.
type Option func(*Loop)

// WithWarnAfter sets the attempt at which a warning is logged.
func WithWarnAfter(n int) Option {
	return func(l *Loop) {
		l.warnAfter = n
	}
}

// WithGiveUpAfter sets the attempt at which the loop gives up.
func WithGiveUpAfter(n int) Option {
	return func(l *Loop) {
		l.giveUpAfter = n
	}
}

// WithCollector replaces the forced collection run on every attempt.
func WithCollector(collect func()) Option {
	return func(l *Loop) {
		l.collect = collect
	}
}

// New creates a loop with the default thresholds.
func New(opts ...Option) *Loop {
	l := &Loop{
		warnAfter:   DefaultWarnAfter,
		giveUpAfter: DefaultGiveUpAfter,
		collect:     Collect,
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.giveUpAfter < 1 {
		l.giveUpAfter = 1
	}
	return l
}

// Collect forces a garbage collection and yields so pending cleanups can run.
func Collect() {
	runtime.GC()
	runtime.Gosched()
}

// Wait forces collections until h is no longer alive. A warning goes to log
// when the warn threshold is reached; at the give-up threshold an error goes to
// log and the wait is abandoned, leaving the context resident. A cancelled ctx
// ends the wait early with an error.
func (l *Loop) Wait(ctx context.Context, h loadctx.Handle, log native.LogFunc) (Result, error) {
	start := time.Now()
	attempts := 0

	backoff := retry.WithMaxRetries(uint64(l.giveUpAfter), retry.BackoffFunc(func() (time.Duration, bool) {
		return 0, false
	}))

	err := retry.Do(ctx, backoff, func(_ context.Context) error {
		if !h.Alive() {
			return nil
		}

		l.collect()
		attempts++

		if attempts%progressEvery == 0 {
			slog.Debug("waiting for context to unload",
				"generation", h.Generation(),
				"attempts", attempts)
		}

		if attempts == l.warnAfter {
			log(native.Warning, WarnMessage)
		}
		if attempts == l.giveUpAfter {
			log(native.Error, GiveUpMessage)
			return errGaveUp
		}
		return retry.RetryableError(errStillAlive)
	})

	result := Result{Attempts: attempts}
	switch {
	case err == nil:
		result.Outcome = OutcomeConverged
	case errors.Is(err, errGaveUp), errors.Is(err, errStillAlive):
		result.Outcome = OutcomeAbandoned
		err = nil
	default:
		result.Outcome = OutcomeCancelled
		err = oops.Code("UNLOAD_CANCELLED").
			With("generation", h.Generation()).
			With("attempts", attempts).
			Wrap(err)
	}

	recordWait(result)
	slog.Debug("context unload wait finished",
		"generation", h.Generation(),
		"attempts", attempts,
		"outcome", result.Outcome,
		"duration", time.Since(start))

	return result, err
}
