// Package statusloop implements the Autonomous Status Loop (§4.6): a
// single supervisor that sweeps active trainsets hourly applying the
// status transition graph (§4.7), and separately runs the daily
// cleaning-start/cleaning-end cycles.
package statusloop

import (
	"context"
	"math/rand"
	"sort"
	"sync/atomic"
	"time"

	"github.com/metrofleet/induction/internal/bus"
	"github.com/metrofleet/induction/internal/clock"
	"github.com/metrofleet/induction/internal/config"
	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/fsm"
	"github.com/metrofleet/induction/internal/log"
	"github.com/metrofleet/induction/internal/telemetry"
)

// Event is the closed set of triggers that can fire a transition in the
// status graph (§4.7).
type Event string

const (
	EventMaintenanceDue      Event = "maintenance_due"
	EventMaintenanceComplete Event = "maintenance_complete"
	EventCleaningSelected    Event = "cleaning_selected"
	EventCleaningComplete    Event = "cleaning_complete"
	EventFitnessExpired      Event = "fitness_expired"
	EventFitnessRenewed      Event = "fitness_renewed"
)

// Update is the status-change record the loop persists and publishes.
type Update = domain.StatusTransition

// Store is the narrow persistence surface the loop needs: reading the
// active fleet and applying status transitions with their audit trail.
// Satisfied implicitly by the Fleet Store Adapter.
type Store interface {
	ActiveTrainsets(ctx context.Context) ([]domain.Trainset, error)
	ApplyTransition(ctx context.Context, update Update) error
}

// SweepReport summarizes one hourly sweep or cleaning cycle, returned
// to ForceStatusSweep callers (§4.9).
type SweepReport struct {
	RanAt       time.Time
	Evaluated   int
	Transitions []Update
}

// Loop is the single supervisor driving all three triggers (§4.6).
type Loop struct {
	cfg   config.StatusLoopConfig
	store Store
	bus   *bus.Bus
	clk   clock.Clock
	rng   *rand.Rand

	lastSweptAt atomic.Int64 // unix nanos; 0 means never swept
}

// New builds a Loop. seed fixes the cleaning-selection RNG so repeated
// runs over identical input are reproducible in tests.
func New(cfg config.StatusLoopConfig, store Store, b *bus.Bus, clk clock.Clock, seed int64) *Loop {
	return &Loop{cfg: cfg, store: store, bus: b, clk: clk, rng: rand.New(rand.NewSource(seed))}
}

// Run blocks, driving the hourly sweep and the configured daily
// cleaning-start/cleaning-end triggers until ctx is cancelled.
func (l *Loop) Run(ctx context.Context) error {
	logger := log.WithContext(ctx, log.WithComponent("statusloop"))
	logger.Info().Msg("status loop starting")

	hourly := clock.NewHourlyTrigger(l.clk)
	starts := clock.NewDailyTrigger(l.clk, l.cfg.CleaningStartTimes...)
	ends := clock.NewDailyTrigger(l.clk, l.cfg.CleaningEndTimes...)

	done := ctx.Done()
	for {
		now := l.clk.Now()
		nextHourly := hourly.Next(now)
		nextStart := starts.Next(now)
		nextEnd := ends.Next(now)

		next, label := earliest(
			pair{nextHourly, "hourly"},
			pair{nextStart, "cleaning_start"},
			pair{nextEnd, "cleaning_end"},
		)

		select {
		case <-done:
			logger.Info().Msg("status loop stopping")
			return ctx.Err()
		case <-l.clk.After(next.Sub(now)):
			var err error
			switch label {
			case "hourly":
				_, err = l.Sweep(ctx)
			case "cleaning_start":
				_, err = l.RunCleaningStart(ctx)
			case "cleaning_end":
				_, err = l.RunCleaningEnd(ctx)
			}
			if err != nil {
				logger.Error().Err(err).Str("trigger", label).Msg("status loop trigger failed")
			}
		}
	}
}

type pair struct {
	at    time.Time
	label string
}

func earliest(candidates ...pair) (time.Time, string) {
	best := candidates[0]
	for _, c := range candidates[1:] {
		if c.at.Before(best.at) {
			best = c
		}
	}
	return best.at, best.label
}

// Sweep evaluates the hourly transition table (§4.7) over every active
// trainset: certificate expiry takes priority over maintenance, which
// is idempotent given the same logical hour (running it twice in the
// same window reaches the same end state, since a transition whose
// guard no longer holds is simply skipped).
func (l *Loop) Sweep(ctx context.Context) (SweepReport, error) {
	tracer := telemetry.Tracer("statusloop")
	ctx, span := tracer.Start(ctx, "statusloop.Sweep")
	defer span.End()

	logger := log.WithContext(ctx, log.WithComponent("statusloop"))
	now := l.clk.Now()

	trainsets, err := l.store.ActiveTrainsets(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{RanAt: now, Evaluated: len(trainsets)}

	for _, t := range trainsets {
		update, ok := l.evaluate(ctx, t, now)
		if !ok {
			continue
		}
		if err := l.apply(ctx, update); err != nil {
			logger.Error().Err(err).Str("trainset_id", t.ID).Msg("apply transition failed")
			continue
		}
		report.Transitions = append(report.Transitions, update)
	}

	l.lastSweptAt.Store(now.UnixNano())
	logger.Info().Int("evaluated", report.Evaluated).Int("transitions", len(report.Transitions)).Msg("sweep completed")
	return report, nil
}

// LastSweptAt returns the timestamp of the most recently completed
// Sweep, or the zero time if none has run yet. Used by
// internal/health's StatusLoopChecker to detect a stalled loop.
func (l *Loop) LastSweptAt() time.Time {
	nanos := l.lastSweptAt.Load()
	if nanos == 0 {
		return time.Time{}
	}
	return time.Unix(0, nanos)
}

// evaluate decides the single highest-priority transition, if any, a
// trainset should undergo this sweep: fitness expiry overrides every
// other pending transition (§4.7), then maintenance due/complete.
func (l *Loop) evaluate(ctx context.Context, t domain.Trainset, now time.Time) (Update, bool) {
	m, err := fsm.New(t.Status, transitionsFor(t, now))
	if err != nil {
		return Update{}, false
	}

	for _, event := range []Event{EventFitnessExpired, EventFitnessRenewed, EventMaintenanceDue, EventMaintenanceComplete} {
		if !m.CanFire(event) {
			continue
		}
		to, err := m.Fire(ctx, event)
		if err != nil {
			continue // guard rejected; try the next candidate event
		}
		if to == t.Status {
			continue // self-loop, ignored per §4.7
		}
		return Update{
			TrainsetID: t.ID,
			OldStatus:  t.Status,
			NewStatus:  to,
			Reason:     string(event),
			At:         now,
		}, true
	}
	return Update{}, false
}

func (l *Loop) apply(ctx context.Context, update Update) error {
	if err := l.store.ApplyTransition(ctx, update); err != nil {
		return err
	}
	if l.bus != nil {
		_, _ = l.bus.Publish(ctx, domain.TopicTrainsetStatusChanged, "", update)
	}
	return nil
}

// RunCleaningStart selects roughly CleaningFraction of AVAILABLE
// trainsets not cleaned within CleaningWindow and moves them to
// CLEANING (§4.6).
func (l *Loop) RunCleaningStart(ctx context.Context) (SweepReport, error) {
	tracer := telemetry.Tracer("statusloop")
	ctx, span := tracer.Start(ctx, "statusloop.RunCleaningStart")
	defer span.End()

	logger := log.WithContext(ctx, log.WithComponent("statusloop"))
	now := l.clk.Now()

	trainsets, err := l.store.ActiveTrainsets(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	var eligible []domain.Trainset
	for _, t := range trainsets {
		if t.Status == domain.StatusAvailable && t.CleaningDue(now, l.cfg.CleaningWindow) {
			eligible = append(eligible, t)
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].ID < eligible[j].ID })

	selectedCount := int(float64(len(eligible))*l.cfg.CleaningFraction + 0.5)
	if selectedCount > len(eligible) {
		selectedCount = len(eligible)
	}

	shuffled := append([]domain.Trainset(nil), eligible...)
	l.rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
	selected := shuffled[:selectedCount]

	report := SweepReport{RanAt: now, Evaluated: len(eligible)}
	nextCleaning := now.Add(24 * time.Hour)

	for _, t := range selected {
		update := Update{
			TrainsetID:     t.ID,
			OldStatus:      t.Status,
			NewStatus:      domain.StatusCleaning,
			Reason:         "Scheduled daily cleaning",
			At:             now,
			LastCleaningAt: &now,
			NextCleaningAt: &nextCleaning,
		}
		if err := l.apply(ctx, update); err != nil {
			logger.Error().Err(err).Str("trainset_id", t.ID).Msg("cleaning transition failed")
			continue
		}
		report.Transitions = append(report.Transitions, update)
	}

	logger.Info().Int("eligible", len(eligible)).Int("selected", len(selected)).Msg("cleaning start completed")
	return report, nil
}

// RunCleaningEnd returns every CLEANING trainset to AVAILABLE (§4.6).
func (l *Loop) RunCleaningEnd(ctx context.Context) (SweepReport, error) {
	tracer := telemetry.Tracer("statusloop")
	ctx, span := tracer.Start(ctx, "statusloop.RunCleaningEnd")
	defer span.End()

	logger := log.WithContext(ctx, log.WithComponent("statusloop"))
	now := l.clk.Now()

	trainsets, err := l.store.ActiveTrainsets(ctx)
	if err != nil {
		return SweepReport{}, err
	}

	report := SweepReport{RanAt: now}
	for _, t := range trainsets {
		if t.Status != domain.StatusCleaning {
			continue
		}
		report.Evaluated++
		update := Update{
			TrainsetID: t.ID,
			OldStatus:  t.Status,
			NewStatus:  domain.StatusAvailable,
			Reason:     "Cleaning completed",
			At:         now,
		}
		if err := l.apply(ctx, update); err != nil {
			logger.Error().Err(err).Str("trainset_id", t.ID).Msg("cleaning-end transition failed")
			continue
		}
		report.Transitions = append(report.Transitions, update)
	}

	logger.Info().Int("returned_to_available", len(report.Transitions)).Msg("cleaning end completed")
	return report, nil
}

// transitionsFor builds the status graph edges (§4.7) for one trainset
// snapshot as of now; guards close over the trainset's own fields so
// the same static graph shape can be reused per-trainset per-sweep.
func transitionsFor(t domain.Trainset, now time.Time) []fsm.Transition[domain.Status, Event] {
	fitnessExpired := func(ctx context.Context, from domain.Status, event Event) error {
		if t.FitnessExpired(now) {
			return nil
		}
		return errGuardRejected
	}
	fitnessRenewed := func(ctx context.Context, from domain.Status, event Event) error {
		if !t.FitnessExpired(now) {
			return nil
		}
		return errGuardRejected
	}
	maintenanceDue := func(ctx context.Context, from domain.Status, event Event) error {
		if t.MaintenanceDue(now) {
			return nil
		}
		return errGuardRejected
	}
	maintenanceComplete := func(ctx context.Context, from domain.Status, event Event) error {
		if t.LastMaintenanceAt == nil || t.NextMaintenanceDueAt == nil {
			return errGuardRejected
		}
		today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
		if !t.LastMaintenanceAt.Before(today) && t.NextMaintenanceDueAt.After(now) {
			return nil
		}
		return errGuardRejected
	}

	var transitions []fsm.Transition[domain.Status, Event]
	for _, from := range []domain.Status{domain.StatusAvailable, domain.StatusInService, domain.StatusMaintenance, domain.StatusCleaning} {
		transitions = append(transitions, fsm.Transition[domain.Status, Event]{
			From: from, Event: EventFitnessExpired, To: domain.StatusOutOfOrder, Guard: fitnessExpired,
		})
	}
	transitions = append(transitions,
		fsm.Transition[domain.Status, Event]{From: domain.StatusOutOfOrder, Event: EventFitnessRenewed, To: domain.StatusAvailable, Guard: fitnessRenewed},
		fsm.Transition[domain.Status, Event]{From: domain.StatusAvailable, Event: EventMaintenanceDue, To: domain.StatusMaintenance, Guard: maintenanceDue},
		fsm.Transition[domain.Status, Event]{From: domain.StatusInService, Event: EventMaintenanceDue, To: domain.StatusMaintenance, Guard: maintenanceDue},
		fsm.Transition[domain.Status, Event]{From: domain.StatusMaintenance, Event: EventMaintenanceComplete, To: domain.StatusAvailable, Guard: maintenanceComplete},
	)
	return transitions
}

type guardRejectedError string

func (e guardRejectedError) Error() string { return string(e) }

const errGuardRejected = guardRejectedError("guard rejected transition")
