package decision

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrofleet/induction/internal/apperr"
	"github.com/metrofleet/induction/internal/clock"
	"github.com/metrofleet/induction/internal/config"
	"github.com/metrofleet/induction/internal/domain"
)

func testEngine() *Engine {
	cfg := config.EngineConfig{
		Weights:      config.DefaultEngineWeights(),
		MinReady:     2,
		ReadyScore:   80,
		AttentionMin: 60,
	}
	return New(cfg, nil, clock.NewFake(time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC)))
}

func healthyTrainset(id string, mileage float64) domain.Trainset {
	return domain.Trainset{
		ID:             id,
		Status:         domain.StatusAvailable,
		IsActive:       true,
		Depot:          "ALUVA",
		Location:       "ALUVA",
		CurrentMileage: mileage,
		TotalMileage:   mileage + 10000,
	}
}

func validCert(trainsetID string, expiresInDays int) domain.FitnessCertificate {
	return domain.FitnessCertificate{
		ID:         "cert-" + trainsetID,
		TrainsetID: trainsetID,
		Status:     domain.CertificateValid,
		ExpiresAt:  time.Date(2026, time.March, 1, 6, 0, 0, 0, time.UTC).AddDate(0, 0, expiresInDays),
	}
}

func TestGenerateFailsOnEmptyContext(t *testing.T) {
	e := testEngine()
	_, err := e.Generate(context.Background(), domain.Context{})
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.KindContextEmpty))
}

func TestGenerateClassifiesAndRanks(t *testing.T) {
	e := testEngine()
	snapshot := domain.Context{
		Shift: domain.ShiftMorning,
		Trainsets: []domain.Trainset{
			healthyTrainset("T1", 50000),
			healthyTrainset("T2", 50000),
		},
		Certificates: []domain.FitnessCertificate{
			validCert("T1", 60),
			validCert("T2", 60),
		},
	}

	decision, err := e.Generate(context.Background(), snapshot)
	require.NoError(t, err)
	require.Len(t, decision.RankedList, 2)
	assert.Equal(t, domain.ClassInductionReady, decision.RankedList[0].Classification)
	assert.NotEmpty(t, decision.InputsHash)
	assert.Equal(t, 100.0, decision.Confidence)
}

func TestGenerateRaisesConflictWhenBelowMinReady(t *testing.T) {
	e := testEngine()
	snapshot := domain.Context{
		Shift: domain.ShiftMorning,
		Trainsets: []domain.Trainset{
			healthyTrainset("T1", 50000),
		},
		Certificates: []domain.FitnessCertificate{validCert("T1", 60)},
	}

	decision, err := e.Generate(context.Background(), snapshot)
	require.NoError(t, err)
	require.NotEmpty(t, decision.Conflicts)
	assert.Equal(t, domain.ConflictCapacity, decision.Conflicts[0].Type)
	assert.Equal(t, domain.SeverityHigh, decision.Conflicts[0].Severity)
}

func TestGenerateMarksNotReadyOnCriticalWorkOrder(t *testing.T) {
	e := testEngine()
	snapshot := domain.Context{
		Shift:     domain.ShiftMorning,
		Trainsets: []domain.Trainset{healthyTrainset("T1", 50000), healthyTrainset("T2", 50000)},
		Certificates: []domain.FitnessCertificate{
			validCert("T1", 60),
			validCert("T2", 60),
		},
		JobCards: []domain.JobCard{
			{ID: "J1", TrainsetID: "T1", Status: domain.JobCardOpen, Priority: domain.PriorityCritical, Title: "brake fault"},
		},
	}

	decision, err := e.Generate(context.Background(), snapshot)
	require.NoError(t, err)

	var t1 domain.RankedTrainset
	for _, r := range decision.RankedList {
		if r.TrainsetID == "T1" {
			t1 = r
		}
	}
	assert.Equal(t, domain.ClassNotReady, t1.Classification)
	assert.Less(t, decision.Confidence, 100.0)
	assert.NotEmpty(t, decision.Conflicts)
}

func TestGenerateDeterministicInputsHash(t *testing.T) {
	e := testEngine()
	snapshot := domain.Context{
		Shift:        domain.ShiftMorning,
		Trainsets:    []domain.Trainset{healthyTrainset("T1", 50000), healthyTrainset("T2", 50000)},
		Certificates: []domain.FitnessCertificate{validCert("T1", 60), validCert("T2", 60)},
	}

	d1, err := e.Generate(context.Background(), snapshot)
	require.NoError(t, err)
	d2, err := e.Generate(context.Background(), snapshot)
	require.NoError(t, err)

	assert.Equal(t, d1.InputsHash, d2.InputsHash)
}
