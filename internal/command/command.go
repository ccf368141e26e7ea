// Package command implements the Command Surface (§4.9): the single
// set of operations every external caller (HTTP handlers, CLI, tests)
// drives the induction core through. It wires together the Decision
// Engine, Optimizer, What-If Simulator, Autonomous Status Loop, Event
// Bus and Fleet Store Adapter, and is the one place idempotency-key
// handling and per-operation timeouts (§5) are enforced.
package command

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/metrofleet/induction/internal/apperr"
	"github.com/metrofleet/induction/internal/bus"
	"github.com/metrofleet/induction/internal/clock"
	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/log"
	"github.com/metrofleet/induction/internal/optimizer"
	"github.com/metrofleet/induction/internal/simulator"
	"github.com/metrofleet/induction/internal/statusloop"
	"github.com/metrofleet/induction/internal/store"
)

// snapshotTimeout bounds Fleet Store Adapter snapshot acquisition (§5).
const snapshotTimeout = 5 * time.Second

// Engine is the subset of decision.Engine the command surface needs.
type Engine interface {
	Generate(ctx context.Context, snapshot domain.Context) (domain.InductionDecision, error)
}

// Optimizer is the subset of optimizer.Optimizer the command surface
// needs. RunWithID lets CancelRun register a cancellation handle before
// the search starts.
type Optimizer interface {
	RunWithID(ctx context.Context, runID string, snapshot domain.Context) (domain.OptimizationRun, optimizer.Report, error)
}

// Simulator is the subset of simulator.Simulator the command surface needs.
type Simulator interface {
	Run(ctx context.Context, base domain.Context, variations []simulator.Variation) (simulator.Result, error)
}

// StatusLoop is the subset of statusloop.Loop the command surface needs.
type StatusLoop interface {
	Sweep(ctx context.Context) (statusloop.SweepReport, error)
}

// Service implements the seven Command Surface operations (§4.9) over a
// set of collaborators, none of which it owns the lifecycle of beyond
// this process's duration.
type Service struct {
	store      store.Store
	engine     Engine
	optimizer  Optimizer
	simulator  Simulator
	statusLoop StatusLoop
	bus        *bus.Bus
	clk        clock.Clock

	mu       sync.Mutex
	inflight map[string]context.CancelFunc

	idemMu        sync.Mutex
	idemDecisions map[string]string // idempotency key -> decision id
	idemRuns      map[string]string // idempotency key -> run id
}

// New builds a Service. statusLoop may be nil when ForceStatusSweep is
// unsupported (e.g. a read replica's command surface).
func New(st store.Store, engine Engine, opt Optimizer, sim Simulator, statusLoop StatusLoop, b *bus.Bus, clk clock.Clock) *Service {
	if clk == nil {
		clk = clock.System{}
	}
	return &Service{
		store:         st,
		engine:        engine,
		optimizer:     opt,
		simulator:     sim,
		statusLoop:    statusLoop,
		bus:           b,
		clk:           clk,
		inflight:      make(map[string]context.CancelFunc),
		idemDecisions: make(map[string]string),
		idemRuns:      make(map[string]string),
	}
}

func (s *Service) snapshot(ctx context.Context, date domain.ScheduleDate, shift domain.Shift) (domain.Context, error) {
	snapCtx, cancel := context.WithTimeout(ctx, snapshotTimeout)
	defer cancel()
	snap, err := s.store.Snapshot(snapCtx, date, shift)
	if err != nil {
		if snapCtx.Err() != nil {
			return domain.Context{}, apperr.New(apperr.KindTimedOut, "snapshot acquisition timed out")
		}
		return domain.Context{}, err
	}
	return snap, nil
}

// Snapshot exposes the Fleet Store Adapter's current view for date/shift
// to callers building a What-If Simulator base scenario (§4.5, §6), the
// only place outside this package that needs a raw, uncommitted
// Context.
func (s *Service) Snapshot(ctx context.Context, date domain.ScheduleDate, shift domain.Shift) (domain.Context, error) {
	return s.snapshot(ctx, date, shift)
}

// GenerateDecision runs the Decision Engine over the current snapshot
// for date/shift and commits the resulting InductionDecision. Replaying
// the same idempotencyKey returns the original decision without
// recomputing it.
func (s *Service) GenerateDecision(ctx context.Context, date domain.ScheduleDate, shift domain.Shift, idempotencyKey string) (domain.InductionDecision, error) {
	if idempotencyKey != "" {
		s.idemMu.Lock()
		existingID, ok := s.idemDecisions[idempotencyKey]
		s.idemMu.Unlock()
		if ok {
			return s.store.GetInductionDecision(ctx, existingID)
		}
	}

	snap, err := s.snapshot(ctx, date, shift)
	if err != nil {
		return domain.InductionDecision{}, err
	}

	decision, err := s.engine.Generate(ctx, snap)
	if err != nil {
		return domain.InductionDecision{}, err
	}

	if err := s.store.Commit(ctx, store.Tx{IdempotencyKey: idempotencyKey, Decision: &decision}); err != nil {
		return domain.InductionDecision{}, err
	}

	if idempotencyKey != "" {
		s.idemMu.Lock()
		s.idemDecisions[idempotencyKey] = decision.ID
		s.idemMu.Unlock()
	}

	return decision, nil
}

// Optimize launches an NSGA-II-style search over the current snapshot
// for date/shift and returns immediately with the run id; the search
// itself runs asynchronously and is tracked via GetRun/CancelRun.
// Replaying the same idempotencyKey returns the original run id without
// starting a second search.
func (s *Service) Optimize(ctx context.Context, date domain.ScheduleDate, shift domain.Shift, idempotencyKey string) (string, error) {
	if idempotencyKey != "" {
		s.idemMu.Lock()
		existingID, ok := s.idemRuns[idempotencyKey]
		s.idemMu.Unlock()
		if ok {
			return existingID, nil
		}
	}

	snap, err := s.snapshot(ctx, date, shift)
	if err != nil {
		return "", err
	}

	runID := uuid.NewString()
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))

	s.mu.Lock()
	s.inflight[runID] = cancel
	s.mu.Unlock()

	if idempotencyKey != "" {
		s.idemMu.Lock()
		s.idemRuns[idempotencyKey] = runID
		s.idemMu.Unlock()
	}

	logger := log.WithComponent("command")
	go func() {
		defer func() {
			s.mu.Lock()
			delete(s.inflight, runID)
			s.mu.Unlock()
			cancel()
		}()

		run, _, err := s.optimizer.RunWithID(runCtx, runID, snap)
		if err != nil && !apperr.Is(err, apperr.KindCancelled) {
			logger.Error().Err(err).Str("run_id", runID).Msg("optimization run failed")
		}
		if commitErr := s.store.Commit(context.Background(), store.Tx{Run: &run}); commitErr != nil {
			logger.Error().Err(commitErr).Str("run_id", runID).Msg("failed to persist optimization run")
		}
	}()

	return runID, nil
}

// GetRun looks up a previously started or completed run.
func (s *Service) GetRun(ctx context.Context, runID string) (domain.OptimizationRun, error) {
	return s.store.GetOptimizationRun(ctx, runID)
}

// CancelRun marks an in-flight run for cancellation; the optimizer
// observes it at the next generation boundary and transitions the run
// to CANCELLED with its partial Pareto front preserved. Cancelling a
// run that is not in flight (already finished, or unknown) is a no-op,
// matching the idempotent-operations rule (§4.9).
func (s *Service) CancelRun(ctx context.Context, runID string) error {
	s.mu.Lock()
	cancel, ok := s.inflight[runID]
	s.mu.Unlock()
	if ok {
		cancel()
	}
	return nil
}

// RunWhatIf scores base and every variation through the Decision Engine
// and Optimizer, returning the comparison the What-If Simulator builds.
func (s *Service) RunWhatIf(ctx context.Context, base domain.Context, variations []simulator.Variation) (simulator.Result, error) {
	return s.simulator.Run(ctx, base, variations)
}

// ForceStatusSweep runs one Autonomous Status Loop sweep synchronously,
// outside its normal hourly schedule.
func (s *Service) ForceStatusSweep(ctx context.Context) (statusloop.SweepReport, error) {
	if s.statusLoop == nil {
		return statusloop.SweepReport{}, apperr.New(apperr.KindInternal, "status loop not configured")
	}
	return s.statusLoop.Sweep(ctx)
}

// Subscribe registers a new bus subscription over topics.
func (s *Service) Subscribe(topics []domain.Topic, roleFilter string) (*bus.Subscription, error) {
	return s.bus.Subscribe(bus.SubscribeOptions{Topics: topics, RoleFilter: roleFilter})
}
