// Package log provides the structured logger shared by every component
// of the induction core, following the teacher's zerolog-based pattern
// (internal/log/logger.go).
package log

import (
	"io"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config configures the process-wide logger.
type Config struct {
	Level   string    // "debug", "info", "warn", "error"; default "info"
	Output  io.Writer // default os.Stdout
	Service string    // default "induction"
	Version string
}

var (
	mu          sync.RWMutex
	base        zerolog.Logger
	initialized bool
)

// Configure installs the process-wide logger. Safe to call more than
// once (e.g. once with defaults at boot, again after config load).
func Configure(cfg Config) {
	mu.Lock()
	defer mu.Unlock()

	level := zerolog.InfoLevel
	if cfg.Level != "" {
		if parsed, err := zerolog.ParseLevel(cfg.Level); err == nil {
			level = parsed
		}
	}
	zerolog.SetGlobalLevel(level)
	zerolog.TimeFieldFormat = time.RFC3339

	out := cfg.Output
	if out == nil {
		out = os.Stdout
	}

	service := cfg.Service
	if service == "" {
		service = "induction"
	}

	base = zerolog.New(out).With().
		Timestamp().
		Str("service", service).
		Str("version", cfg.Version).
		Logger()

	initialized = true
}

func ensureInitialized() {
	mu.RLock()
	if initialized {
		mu.RUnlock()
		return
	}
	mu.RUnlock()
	Configure(Config{})
}

func logger() zerolog.Logger {
	ensureInitialized()
	mu.RLock()
	defer mu.RUnlock()
	return base
}

// L returns a pointer to a copy of the current base logger.
func L() *zerolog.Logger {
	l := logger()
	return &l
}

// WithComponent returns a child logger tagged with component=name, the
// convention every package in this module uses to identify its log
// lines (e.g. "decision", "optimizer", "bus", "statusloop").
func WithComponent(name string) zerolog.Logger {
	return logger().With().Str("component", name).Logger()
}

// WithFields returns a child logger enriched with the given builder.
func WithFields(build func(*zerolog.Context)) zerolog.Logger {
	ctx := logger().With()
	if build != nil {
		build(&ctx)
	}
	return ctx.Logger()
}
