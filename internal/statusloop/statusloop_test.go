package statusloop

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrofleet/induction/internal/clock"
	"github.com/metrofleet/induction/internal/config"
	"github.com/metrofleet/induction/internal/domain"
)

type memStore struct {
	mu        sync.Mutex
	trainsets map[string]domain.Trainset
	applied   []Update
}

func newMemStore(trainsets ...domain.Trainset) *memStore {
	m := &memStore{trainsets: make(map[string]domain.Trainset)}
	for _, t := range trainsets {
		m.trainsets[t.ID] = t
	}
	return m
}

func (m *memStore) ActiveTrainsets(ctx context.Context) ([]domain.Trainset, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Trainset
	for _, t := range m.trainsets {
		if t.IsActive {
			out = append(out, t)
		}
	}
	return out, nil
}

func (m *memStore) ApplyTransition(ctx context.Context, update Update) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := m.trainsets[update.TrainsetID]
	t.Status = update.NewStatus
	if update.LastCleaningAt != nil {
		t.LastCleaningAt = update.LastCleaningAt
	}
	if update.NextCleaningAt != nil {
		t.NextCleaningAt = update.NextCleaningAt
	}
	m.trainsets[update.TrainsetID] = t
	m.applied = append(m.applied, update)
	return nil
}

func testConfig() config.StatusLoopConfig {
	return config.StatusLoopConfig{
		SweepInterval:      time.Hour,
		CleaningStartTimes: []time.Duration{22 * time.Hour},
		CleaningEndTimes:   []time.Duration{0},
		CleaningWindow:     20 * time.Hour,
		CleaningFraction:   0.3,
	}
}

func TestSweepTransitionsToMaintenanceWhenDue(t *testing.T) {
	now := time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC)
	due := now.Add(-time.Hour)
	store := newMemStore(domain.Trainset{
		ID: "T1", Status: domain.StatusAvailable, IsActive: true,
		NextMaintenanceDueAt: &due,
	})
	loop := New(testConfig(), store, nil, clock.NewFake(now), 1)

	report, err := loop.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Transitions, 1)
	assert.Equal(t, domain.StatusMaintenance, report.Transitions[0].NewStatus)
}

func TestSweepFitnessExpiryOverridesMaintenance(t *testing.T) {
	now := time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC)
	maintenanceDue := now.Add(-time.Hour)
	fitnessExpired := now.Add(-time.Minute)
	store := newMemStore(domain.Trainset{
		ID: "T1", Status: domain.StatusAvailable, IsActive: true,
		NextMaintenanceDueAt: &maintenanceDue,
		FitnessExpiryAt:      &fitnessExpired,
	})
	loop := New(testConfig(), store, nil, clock.NewFake(now), 1)

	report, err := loop.Sweep(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Transitions, 1)
	assert.Equal(t, domain.StatusOutOfOrder, report.Transitions[0].NewStatus)
}

func TestSweepIgnoresSelfLoopsAndHonorsIdempotency(t *testing.T) {
	now := time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC)
	store := newMemStore(domain.Trainset{ID: "T1", Status: domain.StatusAvailable, IsActive: true})
	loop := New(testConfig(), store, nil, clock.NewFake(now), 1)

	first, err := loop.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, first.Transitions)

	second, err := loop.Sweep(context.Background())
	require.NoError(t, err)
	assert.Empty(t, second.Transitions)
}

func TestRunCleaningStartSelectsApproximatelyConfiguredFraction(t *testing.T) {
	now := time.Date(2026, time.March, 1, 22, 0, 0, 0, time.UTC)
	var trainsets []domain.Trainset
	for i := 0; i < 10; i++ {
		trainsets = append(trainsets, domain.Trainset{
			ID: "T" + string(rune('A'+i)), Status: domain.StatusAvailable, IsActive: true,
		})
	}
	store := newMemStore(trainsets...)
	loop := New(testConfig(), store, nil, clock.NewFake(now), 42)

	report, err := loop.RunCleaningStart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10, report.Evaluated)
	assert.Equal(t, 3, len(report.Transitions))
	for _, u := range report.Transitions {
		assert.Equal(t, domain.StatusCleaning, u.NewStatus)
		assert.Equal(t, "Scheduled daily cleaning", u.Reason)
		assert.NotNil(t, u.LastCleaningAt)
		assert.NotNil(t, u.NextCleaningAt)
	}
}

func TestRunCleaningStartSkipsRecentlyCleaned(t *testing.T) {
	now := time.Date(2026, time.March, 1, 22, 0, 0, 0, time.UTC)
	recentlyCleaned := now.Add(-time.Hour)
	store := newMemStore(domain.Trainset{
		ID: "T1", Status: domain.StatusAvailable, IsActive: true, LastCleaningAt: &recentlyCleaned,
	})
	loop := New(testConfig(), store, nil, clock.NewFake(now), 1)

	report, err := loop.RunCleaningStart(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Evaluated)
	assert.Empty(t, report.Transitions)
}

func TestRunCleaningEndReturnsAllToAvailable(t *testing.T) {
	now := time.Date(2026, time.March, 2, 0, 0, 0, 0, time.UTC)
	store := newMemStore(
		domain.Trainset{ID: "T1", Status: domain.StatusCleaning, IsActive: true},
		domain.Trainset{ID: "T2", Status: domain.StatusCleaning, IsActive: true},
		domain.Trainset{ID: "T3", Status: domain.StatusAvailable, IsActive: true},
	)
	loop := New(testConfig(), store, nil, clock.NewFake(now), 1)

	report, err := loop.RunCleaningEnd(context.Background())
	require.NoError(t, err)
	assert.Len(t, report.Transitions, 2)
	for _, u := range report.Transitions {
		assert.Equal(t, domain.StatusAvailable, u.NewStatus)
		assert.Equal(t, "Cleaning completed", u.Reason)
	}
}
