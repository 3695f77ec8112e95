// Package ratelimit provides per-key token bucket admission control.
package ratelimit

import (
	"errors"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the bucket parameters.
type Config struct {
	// StartTokens is the balance of a new bucket.
	StartTokens int64

	// MaxTokens caps refills. 0 leaves buckets uncapped.
	MaxTokens int64

	// RefillPeriod is the length of one refill period.
	RefillPeriod time.Duration

	// RefillsPerPeriod is the number of tokens added per whole elapsed period,
	// on top of one base token per refill.
	RefillsPerPeriod int64
}

// DefaultConfig returns the defaults used by the server.
func DefaultConfig() Config {
	return Config{
		StartTokens:      10,
		RefillPeriod:     time.Second,
		RefillsPerPeriod: 1,
	}
}

// Validate checks cfg.
func (c Config) Validate() error {
	switch {
	case c.RefillPeriod <= 0:
		return errors.New("refill period must be positive")
	case c.StartTokens < 0:
		return errors.New("start tokens must not be negative")
	case c.MaxTokens < 0:
		return errors.New("max tokens must not be negative")
	case c.RefillsPerPeriod < 0:
		return errors.New("refills per period must not be negative")
	}
	return nil
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// Limiter holds one bucket per key. Checks on one key are serialized by the
// bucket's mutex; different keys never share a lock.
type Limiter struct {
	cfg     atomic.Pointer[Config]
	buckets sync.Map
	now     func() time.Time
}

type bucket struct {
	mu     sync.Mutex
	tokens int64
	last   time.Time
}

// New creates a Limiter.
func New(cfg Config, opts ...Option) (*Limiter, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	l := &Limiter{now: time.Now}
	for _, opt := range opts {
		opt(l)
	}
	l.cfg.Store(&cfg)

	return l, nil
}

// Config returns the active configuration.
func (l *Limiter) Config() Config {
	return *l.cfg.Load()
}

// Reconfigure swaps the configuration. New buckets start with the new
// StartTokens; existing buckets keep their balance and refill under the new
// period and cap.
func (l *Limiter) Reconfigure(cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	l.cfg.Store(&cfg)
	return nil
}

// Allow consumes one token from key's bucket and reports whether one was
// available.
func (l *Limiter) Allow(key string) bool {
	cfg := l.cfg.Load()
	now := l.now()

	b, ok := l.buckets.Load(key)
	if !ok {
		b, _ = l.buckets.LoadOrStore(key, &bucket{tokens: cfg.StartTokens, last: now})
	}

	return b.(*bucket).take(cfg, now)
}

// Tokens reports key's current balance without refilling, or StartTokens
// for an unseen key.
func (l *Limiter) Tokens(key string) int64 {
	b, ok := l.buckets.Load(key)
	if !ok {
		return l.cfg.Load().StartTokens
	}

	bk := b.(*bucket)
	bk.mu.Lock()
	defer bk.mu.Unlock()
	return bk.tokens
}

// Keys reports the number of tracked buckets.
func (l *Limiter) Keys() int {
	n := 0
	l.buckets.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

func (b *bucket) take(cfg *Config, now time.Time) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if elapsed := now.Sub(b.last); elapsed >= cfg.RefillPeriod {
		periods := int64(elapsed / cfg.RefillPeriod)
		b.tokens = refill(b.tokens, periods, cfg)
		b.last = b.last.Add(time.Duration(periods) * cfg.RefillPeriod)
	}

	if b.tokens < 1 {
		return false
	}

	b.tokens--
	return true
}

// refill adds 1 + RefillsPerPeriod*periods tokens, saturating on overflow
// and capped at MaxTokens when set.
func refill(tokens, periods int64, cfg *Config) int64 {
	add := int64(math.MaxInt64)
	if cfg.RefillsPerPeriod == 0 || periods <= (math.MaxInt64-1)/cfg.RefillsPerPeriod {
		add = 1 + cfg.RefillsPerPeriod*periods
	}

	if tokens > math.MaxInt64-add {
		tokens = math.MaxInt64
	} else {
		tokens += add
	}

	if cfg.MaxTokens > 0 && tokens > cfg.MaxTokens {
		tokens = cfg.MaxTokens
	}

	return tokens
}
