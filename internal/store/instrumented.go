package store

import (
	"context"
	"fmt"
	"time"

	"github.com/metrofleet/induction/internal/apperr"
	"github.com/metrofleet/induction/internal/cache"
	"github.com/metrofleet/induction/internal/clock"
	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/metrics"
	"github.com/metrofleet/induction/internal/resilience"
)

// Instrumented wraps a Store with metrics, a read-through cache over
// Snapshot, and a circuit breaker guarding every call, so a backend
// outage surfaces as a prompt StoreUnavailable instead of a pile of
// slow timeouts (§9 "Fleet Store Adapter transactions").
type Instrumented struct {
	backend Store
	cache   cache.Cache
	breaker *resilience.CircuitBreaker
	clk     clock.Clock
	ttl     time.Duration
}

// NewInstrumented wraps backend. cacheImpl may be cache.NewNoOp() to
// disable caching entirely.
func NewInstrumented(backend Store, cacheImpl cache.Cache, breaker *resilience.CircuitBreaker, clk clock.Clock, snapshotTTL time.Duration) *Instrumented {
	return &Instrumented{backend: backend, cache: cacheImpl, breaker: breaker, clk: clk, ttl: snapshotTTL}
}

func (s *Instrumented) guarded(op string, fn func() error) error {
	if !s.breaker.AllowRequest() {
		metrics.ObserveStoreOp(op, "store_unavailable", 0)
		return apperr.New(apperr.KindStoreUnavailable, "circuit breaker open for fleet store")
	}

	start := s.clk.Now()
	err := s.breaker.Execute(fn)
	elapsed := s.clk.Now().Sub(start).Seconds()

	metrics.ObserveStoreOp(op, outcomeLabel(err), elapsed)
	return err
}

func outcomeLabel(err error) string {
	if err == nil {
		return "ok"
	}
	switch {
	case apperr.Is(err, apperr.KindNotFound):
		return "not_found"
	case apperr.Is(err, apperr.KindConflict):
		return "conflict"
	case apperr.Is(err, apperr.KindStoreUnavailable):
		return "store_unavailable"
	case apperr.Is(err, apperr.KindTimedOut):
		return "timeout"
	default:
		return "unknown"
	}
}

// Snapshot serves from cache when available, falling through to the
// backend on a miss and repopulating the cache with snapshotTTL.
func (s *Instrumented) Snapshot(ctx context.Context, date domain.ScheduleDate, shift domain.Shift) (domain.Context, error) {
	key := snapshotCacheKey(date, shift)

	if cached, ok := s.cache.Get(key); ok {
		metrics.IncCacheResult(true)
		if snap, ok := cached.(domain.Context); ok {
			return snap, nil
		}
	}
	metrics.IncCacheResult(false)

	var snap domain.Context
	err := s.guarded("snapshot", func() error {
		var innerErr error
		snap, innerErr = s.backend.Snapshot(ctx, date, shift)
		return innerErr
	})
	if err != nil {
		return domain.Context{}, err
	}

	s.cache.Set(key, snap, s.ttl)
	return snap, nil
}

func (s *Instrumented) ActiveTrainsets(ctx context.Context) ([]domain.Trainset, error) {
	var out []domain.Trainset
	err := s.guarded("active_trainsets", func() error {
		var innerErr error
		out, innerErr = s.backend.ActiveTrainsets(ctx)
		return innerErr
	})
	return out, err
}

func (s *Instrumented) ApplyTransition(ctx context.Context, update domain.StatusTransition) error {
	err := s.guarded("apply_transition", func() error {
		return s.backend.ApplyTransition(ctx, update)
	})
	if err == nil {
		s.cache.Clear()
	}
	return err
}

func (s *Instrumented) Commit(ctx context.Context, tx Tx) error {
	err := s.guarded("commit", func() error {
		return s.backend.Commit(ctx, tx)
	})
	if err == nil {
		s.cache.Clear()
	}
	return err
}

func (s *Instrumented) GetOptimizationRun(ctx context.Context, runID string) (domain.OptimizationRun, error) {
	var out domain.OptimizationRun
	err := s.guarded("get_run", func() error {
		var innerErr error
		out, innerErr = s.backend.GetOptimizationRun(ctx, runID)
		return innerErr
	})
	return out, err
}

func (s *Instrumented) GetInductionDecision(ctx context.Context, decisionID string) (domain.InductionDecision, error) {
	var out domain.InductionDecision
	err := s.guarded("get_decision", func() error {
		var innerErr error
		out, innerErr = s.backend.GetInductionDecision(ctx, decisionID)
		return innerErr
	})
	return out, err
}

func snapshotCacheKey(date domain.ScheduleDate, shift domain.Shift) string {
	return fmt.Sprintf("snapshot:%04d-%02d-%02d:%s", date.Year, date.Month, date.Day, shift)
}

var _ Store = (*Instrumented)(nil)
