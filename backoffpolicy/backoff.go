// Package backoffpolicy encapsulates the wait-between-retries policy spec.md
// §4.4 assigns to BackoffPolicy: a thin wrapper around
// github.com/cenkalti/backoff/v5's ExponentialBackOff, grounded on
// coachpo-meltica-gateway's own reconnect-loop use of the same package.
package backoffpolicy

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Config tunes the exponential progression (spec §4.4: "configurable base
// and cap... optional jitter").
type Config struct {
	InitialInterval     time.Duration
	MaxInterval         time.Duration
	Multiplier          float64
	RandomizationFactor float64
	// MaxAttempts is accepted but not read by Policy or by the Uploader
	// (SPEC_FULL.md §9 decision): setting it has no effect, and the retry
	// loop stays unbounded, relying on the outer event loop/Uploader.cancel()
	// for supervision.
	MaxAttempts int
}

// DefaultConfig mirrors backoff/v5's own defaults.
func DefaultConfig() Config {
	return Config{
		InitialInterval:     500 * time.Millisecond,
		MaxInterval:         1 * time.Minute,
		Multiplier:          1.5,
		RandomizationFactor: 0.5,
	}
}

// Policy is the BackoffPolicy of spec.md §4.4.
type Policy struct {
	cfg  Config
	boff *backoff.ExponentialBackOff
}

// New returns a Policy whose first DelayWithBackoff call yields cfg's
// initial delay.
func New(cfg Config) *Policy {
	p := &Policy{cfg: cfg}
	p.boff = p.newExponential()
	return p
}

func (p *Policy) newExponential() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	if p.cfg.InitialInterval > 0 {
		b.InitialInterval = p.cfg.InitialInterval
	}
	if p.cfg.MaxInterval > 0 {
		b.MaxInterval = p.cfg.MaxInterval
	}
	if p.cfg.Multiplier > 0 {
		b.Multiplier = p.cfg.Multiplier
	}
	// Unlike the other fields, zero is honoured here: it disables jitter.
	if p.cfg.RandomizationFactor >= 0 {
		b.RandomizationFactor = p.cfg.RandomizationFactor
	}
	return b
}

// DelayWithBackoff asynchronously suspends the caller for the next wait
// duration, honouring ctx cancellation (spec §5 "In-flight http.send is
// expected to honour cancellation"). With RandomizationFactor 0, successive
// calls yield monotonically non-decreasing delays up to MaxInterval; a
// nonzero factor randomizes each delay around that progression, so single
// delays may be shorter than the previous one or longer than MaxInterval.
func (p *Policy) DelayWithBackoff(ctx context.Context) error {
	next := p.boff.NextBackOff()
	if next == backoff.Stop {
		next = p.cfg.MaxInterval
	}
	timer := time.NewTimer(next)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Reset restarts the progression from the initial delay (spec §4.4 reset()).
func (p *Policy) Reset() {
	p.boff.Reset()
}
