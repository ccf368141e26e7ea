package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTrainsetValidateInvariants(t *testing.T) {
	ok := Trainset{CurrentMileage: 100, TotalMileage: 200}
	assert.NoError(t, ok.ValidateInvariants())

	bad := Trainset{CurrentMileage: 300, TotalMileage: 200}
	assert.Error(t, bad.ValidateInvariants())

	last := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	next := last.Add(-time.Hour)
	badDates := Trainset{LastMaintenanceAt: &last, NextMaintenanceDueAt: &next}
	assert.Error(t, badDates.ValidateInvariants())
}

func TestTrainsetCleaningDue(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	window := 7 * 24 * time.Hour

	never := Trainset{}
	assert.True(t, never.CleaningDue(now, window))

	recent := now.Add(-2 * 24 * time.Hour)
	fresh := Trainset{LastCleaningAt: &recent}
	assert.False(t, fresh.CleaningDue(now, window))

	stale := now.Add(-8 * 24 * time.Hour)
	overdue := Trainset{LastCleaningAt: &stale}
	assert.True(t, overdue.CleaningDue(now, window))
}

func TestTrainsetFitnessExpired(t *testing.T) {
	now := time.Date(2026, 2, 10, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	expired := Trainset{FitnessExpiryAt: &past}
	assert.True(t, expired.FitnessExpired(now))

	future := now.Add(time.Hour)
	valid := Trainset{FitnessExpiryAt: &future}
	assert.False(t, valid.FitnessExpired(now))
}
