package sqlstore

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrofleet/induction/internal/apperr"
	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/store"
)

type stubAudit struct {
	decisions map[string]domain.InductionDecision
	runs      map[string]domain.OptimizationRun
}

func newStubAudit() *stubAudit {
	return &stubAudit{decisions: map[string]domain.InductionDecision{}, runs: map[string]domain.OptimizationRun{}}
}

func (a *stubAudit) PutDecision(ctx context.Context, d domain.InductionDecision) error {
	a.decisions[d.ID] = d
	return nil
}

func (a *stubAudit) GetDecision(ctx context.Context, id string) (domain.InductionDecision, error) {
	d, ok := a.decisions[id]
	if !ok {
		return domain.InductionDecision{}, apperr.New(apperr.KindNotFound, "not found")
	}
	return d, nil
}

func (a *stubAudit) PutRun(ctx context.Context, r domain.OptimizationRun) error {
	a.runs[r.ID] = r
	return nil
}

func (a *stubAudit) GetRun(ctx context.Context, id string) (domain.OptimizationRun, error) {
	r, ok := a.runs[id]
	if !ok {
		return domain.OptimizationRun{}, apperr.New(apperr.KindNotFound, "not found")
	}
	return r, nil
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "fleet.db")
	s, err := Open(dbPath, newStubAudit(), DefaultConnConfig())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSeedAndSnapshotRoundTrips(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	require.NoError(t, s.SeedTrainsets(ctx, domain.Trainset{
		ID: "T1", Number: "101", IsActive: true, Status: domain.StatusAvailable,
		FitnessExpiryAt: &now,
	}))
	require.NoError(t, s.SeedCertificates(ctx, domain.FitnessCertificate{
		ID: "C1", TrainsetID: "T1", IssuedAt: now, ExpiresAt: now.Add(24 * time.Hour), Status: domain.CertificateValid,
	}))

	snap, err := s.Snapshot(ctx, domain.ScheduleDate{Year: 2026, Month: 3, Day: 1}, domain.ShiftMorning)
	require.NoError(t, err)
	require.Len(t, snap.Trainsets, 1)
	assert.Equal(t, "T1", snap.Trainsets[0].ID)
	require.NotNil(t, snap.Trainsets[0].FitnessExpiryAt)
	assert.True(t, snap.Trainsets[0].FitnessExpiryAt.Equal(now))
	require.Len(t, snap.Certificates, 1)
	assert.Equal(t, domain.CertificateValid, snap.Certificates[0].Status)
}

func TestApplyTransitionPersistsStatusAndAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.SeedTrainsets(ctx, domain.Trainset{ID: "T1", IsActive: true, Status: domain.StatusAvailable}))

	err := s.ApplyTransition(ctx, domain.StatusTransition{
		TrainsetID: "T1", OldStatus: domain.StatusAvailable, NewStatus: domain.StatusMaintenance, Reason: "maintenance_due",
	})
	require.NoError(t, err)

	active, err := s.ActiveTrainsets(ctx)
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, domain.StatusMaintenance, active[0].Status)

	var count int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM status_audit WHERE trainset_id = ?`, "T1").Scan(&count))
	assert.Equal(t, 1, count)
}

func TestApplyTransitionFailsForUnknownTrainset(t *testing.T) {
	s := newTestStore(t)
	err := s.ApplyTransition(context.Background(), domain.StatusTransition{TrainsetID: "ghost"})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestCommitSchedulePersistsEntriesAndIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	sched := domain.Schedule{
		Date:  now,
		Shift: domain.ShiftMorning,
		Entries: []domain.ScheduleEntry{
			{TrainsetID: "T1", Decision: domain.EntryInService, Rank: 1, StartTime: now, EndTime: now.Add(time.Hour)},
		},
	}

	tx := store.Tx{IdempotencyKey: "key-1", Schedule: &sched}
	require.NoError(t, s.Commit(ctx, tx))
	require.NoError(t, s.Commit(ctx, tx))

	var scheduleCount, entryCount int
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schedules`).Scan(&scheduleCount))
	require.NoError(t, s.db.QueryRow(`SELECT COUNT(*) FROM schedule_entries`).Scan(&entryCount))
	assert.Equal(t, 1, scheduleCount)
	assert.Equal(t, 1, entryCount)
}

func TestCommitDelegatesDecisionAndRunToAudit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	decision := domain.InductionDecision{ID: "d1", GeneratedAt: time.Now()}
	run := domain.OptimizationRun{ID: "r1", Status: domain.RunCompleted}

	require.NoError(t, s.Commit(ctx, store.Tx{Decision: &decision, Run: &run}))

	gotDecision, err := s.GetInductionDecision(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", gotDecision.ID)

	gotRun, err := s.GetOptimizationRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, gotRun.Status)
}
