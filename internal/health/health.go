// Package health reports process liveness and readiness for the
// induction service: a liveness probe that confirms the process is
// alive (and, when verbose, reports every Checker's result), and a
// readiness probe that runs the Checkers scoped to readiness and
// downgrades to unhealthy/degraded when a dependency such as the Fleet
// Store Adapter is unavailable. The Event Bus checker is scoped to
// liveness only, so a backlogged bus shows in verbose liveness output
// and does not affect readiness.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/metrofleet/induction/internal/log"
)

// CheckType scopes a Checker to liveness, readiness, or both.
type CheckType uint8

const (
	CheckHealth    CheckType = 1 << 0
	CheckReadiness CheckType = 1 << 1
)

// Status is the tri-state severity a Checker reports.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is one Checker's verdict.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Response is the wire shape for both /healthz and /readyz.
type Response struct {
	Status    Status                 `json:"status"`
	Ready     bool                   `json:"ready,omitempty"`
	Version   string                 `json:"version,omitempty"`
	UptimeSec int64                  `json:"uptime_seconds,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Error     string                 `json:"error,omitempty"`
	Checks    map[string]CheckResult `json:"checks,omitempty"`
}

// Checker is one named dependency health probe.
type Checker interface {
	Name() string
	Type() CheckType
	Check(ctx context.Context) CheckResult
}

// Manager aggregates Checkers and caches readiness results briefly so
// concurrent probes (Kubernetes liveness+readiness, load balancer
// health checks) don't each re-run every dependency check.
type Manager struct {
	version   string
	startTime time.Time

	mu       sync.RWMutex
	checkers []Checker

	sfg          singleflight.Group
	lastReady    Response
	lastReadyAt  time.Time
	readyCacheTTL time.Duration
}

// NewManager builds a Manager stamped with version (surfaced on every
// health response for operator correlation with a deployed build).
func NewManager(version string) *Manager {
	return &Manager{
		version:       version,
		startTime:     time.Now(),
		readyCacheTTL: time.Second,
	}
}

// RegisterChecker adds checker to the set run by Ready/Health.
func (m *Manager) RegisterChecker(checker Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, checker)
}

// Health answers a liveness probe. Without verbose it always reports
// healthy; with verbose it runs every registered Checker, includes each
// result, and reports the worst status among them.
func (m *Manager) Health(ctx context.Context, verbose bool) Response {
	resp := Response{
		Status:    StatusHealthy,
		Version:   m.version,
		UptimeSec: int64(time.Since(m.startTime).Seconds()),
		Timestamp: time.Now(),
	}
	if !verbose {
		return resp
	}

	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	resp.Checks = make(map[string]CheckResult, len(checkers))
	degraded, unhealthy := false, false
	for _, c := range checkers {
		res := c.Check(ctx)
		resp.Checks[c.Name()] = res
		switch res.Status {
		case StatusUnhealthy:
			unhealthy = true
		case StatusDegraded:
			degraded = true
		}
	}
	switch {
	case unhealthy:
		resp.Status = StatusUnhealthy
	case degraded:
		resp.Status = StatusDegraded
	}
	return resp
}

// Ready answers a readiness probe: only Checkers scoped to
// CheckReadiness run, results are cached for readyCacheTTL, and
// concurrent callers collapse onto one in-flight evaluation.
func (m *Manager) Ready(ctx context.Context, verbose bool) Response {
	m.mu.RLock()
	if !m.lastReadyAt.IsZero() && time.Since(m.lastReadyAt) < m.readyCacheTTL {
		cached := m.lastReady
		m.mu.RUnlock()
		if !verbose {
			cached.Checks = nil
		}
		return cached
	}
	m.mu.RUnlock()

	val, _, _ := m.sfg.Do("readiness", func() (any, error) {
		probeCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()

		m.mu.RLock()
		checkers := append([]Checker(nil), m.checkers...)
		m.mu.RUnlock()

		var wg sync.WaitGroup
		var mu sync.Mutex
		result := Response{Status: StatusHealthy, Ready: true, Timestamp: time.Now(), Checks: make(map[string]CheckResult)}

		for _, c := range checkers {
			if c.Type()&CheckReadiness == 0 {
				continue
			}
			wg.Add(1)
			go func(checker Checker) {
				defer wg.Done()
				res := checker.Check(probeCtx)
				mu.Lock()
				defer mu.Unlock()
				result.Checks[checker.Name()] = res
				switch res.Status {
				case StatusUnhealthy:
					result.Status = StatusUnhealthy
					result.Ready = false
				case StatusDegraded:
					if result.Status != StatusUnhealthy {
						result.Status = StatusDegraded
					}
				}
			}(c)
		}
		wg.Wait()

		m.mu.Lock()
		m.lastReady = result
		m.lastReadyAt = result.Timestamp
		m.mu.Unlock()
		return result, nil
	})

	resp, _ := val.(Response)
	if !verbose {
		resp.Checks = nil
	}
	return resp
}

// ServeHTTP handlers wrap Health/Ready for mounting under /healthz and
// /readyz; verbose output is opt-in via ?verbose=true.
func (m *Manager) ServeHealth(w http.ResponseWriter, r *http.Request) {
	resp := m.Health(r.Context(), r.URL.Query().Get("verbose") == "true")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithComponent("health").Error().Err(err).Msg("failed to encode health response")
	}
}

func (m *Manager) ServeReady(w http.ResponseWriter, r *http.Request) {
	resp := m.Ready(r.Context(), r.URL.Query().Get("verbose") == "true")
	w.Header().Set("Content-Type", "application/json")
	if resp.Ready {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.WithComponent("health").Error().Err(err).Msg("failed to encode readiness response")
	}
}
