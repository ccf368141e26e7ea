package command

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrofleet/induction/internal/apperr"
	"github.com/metrofleet/induction/internal/bus"
	"github.com/metrofleet/induction/internal/clock"
	"github.com/metrofleet/induction/internal/config"
	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/optimizer"
	"github.com/metrofleet/induction/internal/simulator"
	"github.com/metrofleet/induction/internal/statusloop"
	"github.com/metrofleet/induction/internal/store"
)

type stubEngine struct {
	calls    int
	decision domain.InductionDecision
	err      error
}

func (e *stubEngine) Generate(ctx context.Context, snapshot domain.Context) (domain.InductionDecision, error) {
	e.calls++
	return e.decision, e.err
}

type stubOptimizer struct {
	calls int
	run   domain.OptimizationRun
	block chan struct{}
}

func (o *stubOptimizer) RunWithID(ctx context.Context, runID string, snapshot domain.Context) (domain.OptimizationRun, optimizer.Report, error) {
	o.calls++
	run := o.run
	run.ID = runID
	if o.block != nil {
		select {
		case <-ctx.Done():
			run.Status = domain.RunCancelled
			return run, optimizer.Report{}, apperr.New(apperr.KindCancelled, "cancelled")
		case <-o.block:
		}
	}
	return run, optimizer.Report{}, nil
}

type stubSimulator struct {
	result simulator.Result
}

func (s *stubSimulator) Run(ctx context.Context, base domain.Context, variations []simulator.Variation) (simulator.Result, error) {
	return s.result, nil
}

type stubStatusLoop struct {
	report statusloop.SweepReport
}

func (l *stubStatusLoop) Sweep(ctx context.Context) (statusloop.SweepReport, error) {
	return l.report, nil
}

func newTestService(t *testing.T, engine Engine, opt Optimizer) (*Service, *store.Memory) {
	t.Helper()
	backend := store.NewMemory()
	backend.SeedTrainsets(domain.Trainset{ID: "T1", IsActive: true})
	b := bus.New(config.BusConfig{QueueDepth: 16}, clock.NewFake(time.Now()))
	svc := New(backend, engine, opt, &stubSimulator{}, &stubStatusLoop{}, b, clock.NewFake(time.Now()))
	return svc, backend
}

func TestGenerateDecisionCommitsAndReplaysByIdempotencyKey(t *testing.T) {
	engine := &stubEngine{decision: domain.InductionDecision{ID: "d1", Confidence: 0.8}}
	svc, _ := newTestService(t, engine, &stubOptimizer{})

	date := domain.ScheduleDate{Year: 2026, Month: 3, Day: 1}
	first, err := svc.GenerateDecision(context.Background(), date, domain.ShiftMorning, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "d1", first.ID)
	assert.Equal(t, 1, engine.calls)

	second, err := svc.GenerateDecision(context.Background(), date, domain.ShiftMorning, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "d1", second.ID)
	assert.Equal(t, 1, engine.calls, "replay must not recompute")
}

func TestOptimizeReturnsRunIDAndGetRunSucceedsAfterCompletion(t *testing.T) {
	opt := &stubOptimizer{run: domain.OptimizationRun{Status: domain.RunCompleted}}
	svc, _ := newTestService(t, &stubEngine{}, opt)

	date := domain.ScheduleDate{Year: 2026, Month: 3, Day: 1}
	runID, err := svc.Optimize(context.Background(), date, domain.ShiftMorning, "")
	require.NoError(t, err)
	require.NotEmpty(t, runID)

	require.Eventually(t, func() bool {
		run, err := svc.GetRun(context.Background(), runID)
		return err == nil && run.Status == domain.RunCompleted
	}, time.Second, 10*time.Millisecond)
}

func TestOptimizeReplaysRunIDByIdempotencyKey(t *testing.T) {
	opt := &stubOptimizer{run: domain.OptimizationRun{Status: domain.RunCompleted}, block: make(chan struct{})}
	svc, _ := newTestService(t, &stubEngine{}, opt)

	date := domain.ScheduleDate{Year: 2026, Month: 3, Day: 1}
	first, err := svc.Optimize(context.Background(), date, domain.ShiftMorning, "opt-key")
	require.NoError(t, err)

	second, err := svc.Optimize(context.Background(), date, domain.ShiftMorning, "opt-key")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, opt.calls)

	close(opt.block)
}

func TestCancelRunStopsInFlightOptimization(t *testing.T) {
	opt := &stubOptimizer{run: domain.OptimizationRun{Status: domain.RunRunning}, block: make(chan struct{})}
	svc, _ := newTestService(t, &stubEngine{}, opt)

	date := domain.ScheduleDate{Year: 2026, Month: 3, Day: 1}
	runID, err := svc.Optimize(context.Background(), date, domain.ShiftMorning, "")
	require.NoError(t, err)

	require.NoError(t, svc.CancelRun(context.Background(), runID))

	require.Eventually(t, func() bool {
		run, err := svc.GetRun(context.Background(), runID)
		return err == nil && run.Status == domain.RunCancelled
	}, time.Second, 10*time.Millisecond)
}

func TestCancelRunOnUnknownRunIsNoOp(t *testing.T) {
	svc, _ := newTestService(t, &stubEngine{}, &stubOptimizer{})
	assert.NoError(t, svc.CancelRun(context.Background(), "ghost"))
}

func TestForceStatusSweepDelegatesToStatusLoop(t *testing.T) {
	svc, _ := newTestService(t, &stubEngine{}, &stubOptimizer{})
	report, err := svc.ForceStatusSweep(context.Background())
	require.NoError(t, err)
	assert.Equal(t, statusloop.SweepReport{}, report)
}
