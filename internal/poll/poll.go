// Package poll waits for eventually consistent state with a bounded number of
// attempts and exponential backoff between them.
package poll

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

// ErrExhausted is returned when the condition was not met within MaxAttempts.
var ErrExhausted = errors.New("poll: attempts exhausted")

// Config configures polling behavior.
type Config struct {
	// MaxAttempts is the total number of condition evaluations. Default: 10
	MaxAttempts int
	// InitialInterval is the delay before the second attempt. Default: 250ms
	InitialInterval time.Duration
	// MaxInterval caps the delay between attempts. Default: 5s
	MaxInterval time.Duration
	// Multiplier grows the delay after each attempt. Default: 2.0
	Multiplier float64
}

// DefaultConfig returns the default polling configuration.
func DefaultConfig() Config {
	return Config{
		MaxAttempts:     10,
		InitialInterval: 250 * time.Millisecond,
		MaxInterval:     5 * time.Second,
		Multiplier:      2.0,
	}
}

// ApplyDefaults fills unset fields.
func (c *Config) ApplyDefaults() {
	d := DefaultConfig()
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = d.MaxAttempts
	}
	if c.InitialInterval <= 0 {
		c.InitialInterval = d.InitialInterval
	}
	if c.MaxInterval <= 0 {
		c.MaxInterval = d.MaxInterval
	}
	if c.MaxInterval < c.InitialInterval {
		c.MaxInterval = c.InitialInterval
	}
	if c.Multiplier < 1 {
		c.Multiplier = d.Multiplier
	}
}

// Condition is evaluated on every attempt. Returning an error aborts polling.
type Condition func(ctx context.Context, attempt int) (done bool, err error)

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Poller evaluates a condition until it holds or attempts run out.
type Poller struct {
	config Config
	sleep  SleepFunc
}

// Option configures a Poller.
type Option func(*Poller)

// WithSleep replaces the wait between attempts (tests use it to avoid real delays).
func WithSleep(fn SleepFunc) Option {
	return func(p *Poller) {
		if fn != nil {
			p.sleep = fn
		}
	}
}

// New creates a poller.
func New(cfg Config, opts ...Option) *Poller {
	cfg.ApplyDefaults()
	p := &Poller{config: cfg, sleep: contextSleep}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Config returns the effective configuration.
func (p *Poller) Config() Config {
	return p.config
}

// Until evaluates cond until it reports done. It returns the number of attempts made.
// When attempts are exhausted the error wraps ErrExhausted; condition errors and
// context cancellation are returned as-is.
func (p *Poller) Until(ctx context.Context, cond Condition) (int, error) {
	for attempt := 1; attempt <= p.config.MaxAttempts; attempt++ {
		if attempt > 1 {
			if err := p.sleep(ctx, p.Backoff(attempt-1)); err != nil {
				return attempt - 1, err
			}
		}

		done, err := cond(ctx, attempt)
		if err != nil {
			return attempt, err
		}
		if done {
			return attempt, nil
		}
	}
	return p.config.MaxAttempts, fmt.Errorf("%w after %d attempts", ErrExhausted, p.config.MaxAttempts)
}

// Backoff returns the delay after the given (1-based) attempt.
func (p *Poller) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(p.config.InitialInterval) * math.Pow(p.config.Multiplier, float64(attempt-1))
	if delay > float64(p.config.MaxInterval) {
		delay = float64(p.config.MaxInterval)
	}
	return time.Duration(delay)
}

func contextSleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
