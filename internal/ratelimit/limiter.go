// Package ratelimit provides a global-plus-per-key token bucket limiter,
// used by the Command Surface's HTTP binding for per-caller limits on
// `optimize`/`what-if` (§6).
package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Config holds the limiter's tunables.
type Config struct {
	GlobalRate  rate.Limit // requests per second, shared across every key
	GlobalBurst int

	PerKeyRate  rate.Limit
	PerKeyBurst int

	// CleanupInterval controls how often the per-key limiters are reset:
	// all of them are dropped, not only idle ones; 0 disables cleanup.
	CleanupInterval time.Duration
}

// DefaultConfig returns sensible defaults for the Command Surface.
func DefaultConfig() Config {
	return Config{
		GlobalRate:      rate.Limit(100),
		GlobalBurst:     200,
		PerKeyRate:      rate.Limit(10),
		PerKeyBurst:     20,
		CleanupInterval: 5 * time.Minute,
	}
}

// Limiter enforces a global rate plus an independent rate per key
// (typically a caller identity or operation name).
type Limiter struct {
	cfg Config

	global *rate.Limiter

	mu          sync.Mutex
	perKey      map[string]*rate.Limiter
	lastCleanup time.Time
}

// New creates a Limiter from cfg.
func New(cfg Config) *Limiter {
	return &Limiter{
		cfg:         cfg,
		global:      rate.NewLimiter(cfg.GlobalRate, cfg.GlobalBurst),
		perKey:      make(map[string]*rate.Limiter),
		lastCleanup: time.Now(),
	}
}

// Allow reports whether one request under key is permitted right now,
// consuming a token from both the global and per-key buckets if so.
func (l *Limiter) Allow(key string) bool {
	if !l.global.Allow() {
		return false
	}
	if !l.keyLimiter(key).Allow() {
		return false
	}
	l.maybeCleanup()
	return true
}

// Wait blocks until a token is available under key or ctx is done,
// reserving against both the global and per-key buckets.
func (l *Limiter) Wait(ctx context.Context, key string) error {
	if err := l.global.Wait(ctx); err != nil {
		return err
	}
	return l.keyLimiter(key).Wait(ctx)
}

func (l *Limiter) keyLimiter(key string) *rate.Limiter {
	l.mu.Lock()
	defer l.mu.Unlock()

	lim, ok := l.perKey[key]
	if !ok {
		lim = rate.NewLimiter(l.cfg.PerKeyRate, l.cfg.PerKeyBurst)
		l.perKey[key] = lim
	}
	return lim
}

func (l *Limiter) maybeCleanup() {
	if l.cfg.CleanupInterval <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if time.Since(l.lastCleanup) < l.cfg.CleanupInterval {
		return
	}
	l.perKey = make(map[string]*rate.Limiter)
	l.lastCleanup = time.Now()
}
