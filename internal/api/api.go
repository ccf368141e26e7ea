// Package api is the HTTP binding of the Command Surface (§4.9, §6): a
// go-chi router exposing the seven command operations (subscription as
// a streaming endpoint) plus liveness/readiness probes, with per-caller
// rate limiting and OpenTelemetry tracing around every request.
package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/metrofleet/induction/internal/bus"
	"github.com/metrofleet/induction/internal/config"
	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/health"
	"github.com/metrofleet/induction/internal/log"
	"github.com/metrofleet/induction/internal/ratelimit"
	"github.com/metrofleet/induction/internal/simulator"
	"github.com/metrofleet/induction/internal/statusloop"
)

// Command is the subset of command.Service the HTTP binding drives.
// Declared here, rather than imported, so this package depends only on
// the shapes it actually calls (command.Service satisfies it
// implicitly).
type Command interface {
	Snapshot(ctx context.Context, date domain.ScheduleDate, shift domain.Shift) (domain.Context, error)
	GenerateDecision(ctx context.Context, date domain.ScheduleDate, shift domain.Shift, idempotencyKey string) (domain.InductionDecision, error)
	Optimize(ctx context.Context, date domain.ScheduleDate, shift domain.Shift, idempotencyKey string) (string, error)
	GetRun(ctx context.Context, runID string) (domain.OptimizationRun, error)
	CancelRun(ctx context.Context, runID string) error
	RunWhatIf(ctx context.Context, base domain.Context, variations []simulator.Variation) (simulator.Result, error)
	ForceStatusSweep(ctx context.Context) (statusloop.SweepReport, error)
	Subscribe(topics []domain.Topic, roleFilter string) (*bus.Subscription, error)
}

// Server is the induction service's HTTP wire binding.
type Server struct {
	cfg     config.APIConfig
	cmd     Command
	limiter *ratelimit.Limiter
	health  *health.Manager
	http    *http.Server
}

// New builds a Server. limiter guards the optimize/what-if endpoints
// named in §5's resource model; a nil limiter disables rate limiting
// (used by tests). healthMgr backs /healthz and /readyz; a nil
// healthMgr makes both endpoints report an unconditional healthy/ready
// status (used by tests that don't care about dependency health).
func New(cfg config.APIConfig, cmd Command, limiter *ratelimit.Limiter, healthMgr *health.Manager) *Server {
	s := &Server{cfg: cfg, cmd: cmd, limiter: limiter, health: healthMgr}
	s.http = &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(requestLogger)
	r.Use(func(next http.Handler) http.Handler {
		return otelhttp.NewHandler(next, "induction-api")
	})

	perMinute := s.cfg.RateLimitPerMin
	if perMinute <= 0 {
		perMinute = 600
	}
	r.Use(httprate.LimitByIP(perMinute, time.Minute))

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Post("/generate-decision", s.handleGenerateDecision)

	heavy := r.With(s.throttle)
	heavy.Post("/optimize", s.handleOptimize)
	heavy.Post("/what-if", s.handleWhatIf)

	r.Get("/run/{id}", s.handleGetRun)
	r.Post("/cancel-run/{id}", s.handleCancelRun)
	r.Post("/status-sweep", s.handleStatusSweep)
	r.Get("/subscribe", s.handleSubscribe)

	return r
}

// throttle applies the in-process token-bucket limiter (internal/ratelimit)
// on top of httprate's sliding window, keyed by caller IP, for the two
// endpoints expensive enough to need it (§5).
func (s *Server) throttle(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.Allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientKey(r *http.Request) string {
	if key, err := httprate.KeyByIP(r); err == nil {
		return key
	}
	return r.RemoteAddr
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		log.WithComponent("api").Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Dur("elapsed", time.Since(start)).
			Msg("request handled")
	})
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	s.health.ServeHealth(w, r)
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	s.health.ServeReady(w, r)
}

// ListenAndServe starts the HTTP server and blocks until it exits.
func (s *Server) ListenAndServe() error {
	return s.http.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}
