package auditlog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrofleet/induction/internal/apperr"
	"github.com/metrofleet/induction/internal/domain"
)

func newTestLog(t *testing.T) *Log {
	t.Helper()
	l, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = l.Close() })
	return l
}

func TestPutAndGetDecision(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC)

	decision := domain.InductionDecision{ID: "d1", GeneratedAt: now, Confidence: 0.9}
	require.NoError(t, l.PutDecision(ctx, decision))

	got, err := l.GetDecision(ctx, "d1")
	require.NoError(t, err)
	assert.Equal(t, "d1", got.ID)
	assert.Equal(t, 0.9, got.Confidence)
}

func TestGetDecisionNotFound(t *testing.T) {
	l := newTestLog(t)
	_, err := l.GetDecision(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindNotFound))
}

func TestPutAndGetRun(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()

	run := domain.OptimizationRun{ID: "r1", Status: domain.RunCompleted, Progress: 1.0}
	require.NoError(t, l.PutRun(ctx, run))

	got, err := l.GetRun(ctx, "r1")
	require.NoError(t, err)
	assert.Equal(t, domain.RunCompleted, got.Status)
}

func TestListDecisionsSinceFiltersByGeneratedAt(t *testing.T) {
	l := newTestLog(t)
	ctx := context.Background()
	cutoff := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	require.NoError(t, l.PutDecision(ctx, domain.InductionDecision{ID: "old", GeneratedAt: cutoff.Add(-time.Hour)}))
	require.NoError(t, l.PutDecision(ctx, domain.InductionDecision{ID: "new", GeneratedAt: cutoff.Add(time.Hour)}))

	got, err := l.ListDecisionsSince(ctx, cutoff)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "new", got[0].ID)
}
