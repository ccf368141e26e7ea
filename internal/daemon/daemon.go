// Package daemon supervises the induction core's long-running
// processes: the Command Surface's HTTP server and whatever background
// workers the process owns (the autonomous status loop, chiefly),
// bringing them up together and tearing them down in a bounded,
// LIFO-ordered sequence once the process is asked to stop.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/rs/zerolog"
)

// defaultShutdownTimeout is the grace period NewManager uses when given
// none. Shutdown allows the API server that long to drain, and the
// shutdown hooks then get a fresh window of the same length; Workers are
// not bounded by it, since Start waits for every Worker to return.
const defaultShutdownTimeout = 30 * time.Second

// ShutdownHook runs during graceful shutdown. Hooks run in reverse
// registration order (LIFO), so the last resource acquired is the
// first released.
type ShutdownHook func(ctx context.Context) error

// Worker is a long-running background task supervised alongside the
// HTTP server. Run must block until ctx is cancelled and return nil on
// a clean stop.
type Worker struct {
	Name string
	Run  func(ctx context.Context) error
}

// Server is the narrow seam daemon needs from internal/api.Server.
type Server interface {
	ListenAndServe() error
	Shutdown(ctx context.Context) error
}

// Manager starts the API server and every registered Worker together,
// and tears them down together on Shutdown.
type Manager interface {
	// Start blocks until ctx is cancelled or the server or a worker
	// fails, then shuts everything down and returns the first error.
	Start(ctx context.Context) error

	// Shutdown requests a graceful stop of the API server. Workers
	// observe ctx cancellation directly, since Start wires them to a
	// context derived from the same one passed to Start.
	Shutdown(ctx context.Context) error

	// RegisterShutdownHook registers a cleanup function to run during
	// shutdown, in LIFO order relative to other registered hooks.
	RegisterShutdownHook(name string, hook ShutdownHook)
}

type namedHook struct {
	name string
	hook ShutdownHook
}

type manager struct {
	server          Server
	workers         []Worker
	shutdownTimeout time.Duration
	logger          zerolog.Logger

	mu            sync.Mutex
	started       bool
	shutdownHooks []namedHook
}

// NewManager creates a Manager owning server and every worker.
// shutdownTimeout <= 0 falls back to a 30-second grace period.
func NewManager(server Server, workers []Worker, shutdownTimeout time.Duration, logger zerolog.Logger) Manager {
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	return &manager{
		server:          server,
		workers:         workers,
		shutdownTimeout: shutdownTimeout,
		logger:          logger,
	}
}

func (m *manager) RegisterShutdownHook(name string, hook ShutdownHook) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shutdownHooks = append(m.shutdownHooks, namedHook{name: name, hook: hook})
}

func (m *manager) Start(ctx context.Context) error {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return errors.New("daemon: manager already started")
	}
	m.started = true
	m.mu.Unlock()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		m.logger.Info().Msg("command surface listening")
		if err := m.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("command surface: %w", err)
		}
		return nil
	})

	for _, w := range m.workers {
		w := w
		g.Go(func() error {
			m.logger.Info().Str("worker", w.Name).Msg("worker starting")
			if err := w.Run(gctx); err != nil && !errors.Is(err, context.Canceled) {
				return fmt.Errorf("worker %s: %w", w.Name, err)
			}
			m.logger.Info().Str("worker", w.Name).Msg("worker stopped")
			return nil
		})
	}

	g.Go(func() error {
		<-gctx.Done()
		return m.Shutdown(ctx)
	})

	err := g.Wait()
	m.runShutdownHooks(ctx)
	return err
}

func (m *manager) Shutdown(ctx context.Context) error {
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.shutdownTimeout)
	defer cancel()
	if err := m.server.Shutdown(shutdownCtx); err != nil {
		m.logger.Error().Err(err).Msg("command surface shutdown error")
		return err
	}
	return nil
}

func (m *manager) runShutdownHooks(ctx context.Context) {
	m.mu.Lock()
	hooks := append([]namedHook(nil), m.shutdownHooks...)
	m.mu.Unlock()

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.shutdownTimeout)
	defer cancel()

	for i := len(hooks) - 1; i >= 0; i-- {
		h := hooks[i]
		start := time.Now()
		if err := h.hook(shutdownCtx); err != nil {
			m.logger.Error().Err(err).Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook failed")
			continue
		}
		m.logger.Debug().Str("hook", h.name).Dur("duration", time.Since(start)).Msg("shutdown hook completed")
	}
}
