package store

import (
	"context"
	"sort"
	"sync"

	"github.com/metrofleet/induction/internal/apperr"
	"github.com/metrofleet/induction/internal/domain"
)

// Memory is an in-process Store backed by plain maps, guarded by a
// single mutex. It is the default backend for tests and a reference
// implementation other backends are checked against; it is not meant
// for production use since it carries no durability.
type Memory struct {
	mu sync.RWMutex

	trainsets    map[string]domain.Trainset
	certificates []domain.FitnessCertificate
	jobCards     []domain.JobCard
	cleaning     []domain.CleaningSlot
	branding     []domain.BrandingRecord
	schedules    []domain.Schedule

	decisions map[string]domain.InductionDecision
	runs      map[string]domain.OptimizationRun

	appliedIdempotencyKeys map[string]struct{}
}

// NewMemory builds an empty in-memory store; use the Seed* helpers to
// seed it before first use.
func NewMemory() *Memory {
	return &Memory{
		trainsets:              make(map[string]domain.Trainset),
		decisions:              make(map[string]domain.InductionDecision),
		runs:                   make(map[string]domain.OptimizationRun),
		appliedIdempotencyKeys: make(map[string]struct{}),
	}
}

// SeedTrainsets inserts the given trainsets, replacing any with the same
// ID and keeping the rest, for test fixtures.
func (m *Memory) SeedTrainsets(trainsets ...domain.Trainset) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range trainsets {
		m.trainsets[t.ID] = t
	}
}

// SeedCertificates appends to the certificate table.
func (m *Memory) SeedCertificates(certs ...domain.FitnessCertificate) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.certificates = append(m.certificates, certs...)
}

// SeedJobCards appends to the work-order table.
func (m *Memory) SeedJobCards(cards ...domain.JobCard) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobCards = append(m.jobCards, cards...)
}

// SeedBranding appends to the branding table.
func (m *Memory) SeedBranding(records ...domain.BrandingRecord) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.branding = append(m.branding, records...)
}

// SeedCleaningSlots appends to the cleaning-slot table.
func (m *Memory) SeedCleaningSlots(slots ...domain.CleaningSlot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleaning = append(m.cleaning, slots...)
}

// Snapshot returns a mutually-consistent copy of every collection the
// Decision Engine and Optimizer reason over (§4.1). date/shift are
// recorded on the returned Context but do not filter the collections:
// this backend keeps one fleet-wide snapshot, not per-shift history.
func (m *Memory) Snapshot(ctx context.Context, date domain.ScheduleDate, shift domain.Shift) (domain.Context, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	trainsets := make([]domain.Trainset, 0, len(m.trainsets))
	ids := make([]string, 0, len(m.trainsets))
	for id := range m.trainsets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		trainsets = append(trainsets, m.trainsets[id])
	}

	return domain.Context{
		Date:           date,
		Shift:          shift,
		Trainsets:      trainsets,
		Certificates:   append([]domain.FitnessCertificate(nil), m.certificates...),
		JobCards:       append([]domain.JobCard(nil), m.jobCards...),
		CleaningSlots:  append([]domain.CleaningSlot(nil), m.cleaning...),
		Branding:       append([]domain.BrandingRecord(nil), m.branding...),
		PriorSchedules: append([]domain.Schedule(nil), m.schedules...),
	}, nil
}

// ActiveTrainsets returns every trainset with IsActive set.
func (m *Memory) ActiveTrainsets(ctx context.Context) ([]domain.Trainset, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []domain.Trainset
	ids := make([]string, 0, len(m.trainsets))
	for id := range m.trainsets {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if t := m.trainsets[id]; t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

// ApplyTransition persists one trainset status change, failing with
// NotFound if the trainset is unknown. It keeps no audit row of the
// transition.
func (m *Memory) ApplyTransition(ctx context.Context, update domain.StatusTransition) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.trainsets[update.TrainsetID]
	if !ok {
		return apperr.New(apperr.KindNotFound, "trainset not found").WithDetails(update.TrainsetID)
	}

	t.Status = update.NewStatus
	if update.LastCleaningAt != nil {
		t.LastCleaningAt = update.LastCleaningAt
	}
	if update.NextCleaningAt != nil {
		t.NextCleaningAt = update.NextCleaningAt
	}
	m.trainsets[update.TrainsetID] = t
	return nil
}

// Commit applies a logical transaction, skipping the write entirely if
// its idempotency key has already been applied (§9).
func (m *Memory) Commit(ctx context.Context, tx Tx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.IdempotencyKey != "" {
		if _, done := m.appliedIdempotencyKeys[tx.IdempotencyKey]; done {
			return nil
		}
	}

	if tx.Decision != nil {
		m.decisions[tx.Decision.ID] = *tx.Decision
	}
	if tx.Schedule != nil {
		m.schedules = append(m.schedules, *tx.Schedule)
	}
	if tx.Run != nil {
		m.runs[tx.Run.ID] = *tx.Run
	}

	if tx.IdempotencyKey != "" {
		m.appliedIdempotencyKeys[tx.IdempotencyKey] = struct{}{}
	}
	return nil
}

// GetOptimizationRun looks up a run by id, failing with NotFound.
func (m *Memory) GetOptimizationRun(ctx context.Context, runID string) (domain.OptimizationRun, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	run, ok := m.runs[runID]
	if !ok {
		return domain.OptimizationRun{}, apperr.New(apperr.KindNotFound, "optimization run not found").WithDetails(runID)
	}
	return run, nil
}

// GetInductionDecision looks up a decision by id, failing with NotFound.
func (m *Memory) GetInductionDecision(ctx context.Context, decisionID string) (domain.InductionDecision, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	dec, ok := m.decisions[decisionID]
	if !ok {
		return domain.InductionDecision{}, apperr.New(apperr.KindNotFound, "induction decision not found").WithDetails(decisionID)
	}
	return dec, nil
}

var _ Store = (*Memory)(nil)
