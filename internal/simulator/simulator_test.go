package simulator

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/optimizer"
)

type stubEngine struct {
	generate func(snapshot domain.Context) (domain.InductionDecision, error)
}

func (s stubEngine) Generate(ctx context.Context, snapshot domain.Context) (domain.InductionDecision, error) {
	return s.generate(snapshot)
}

type stubOptimizer struct {
	run func(snapshot domain.Context) (domain.OptimizationRun, optimizer.Report, error)
}

func (s stubOptimizer) Run(ctx context.Context, snapshot domain.Context) (domain.OptimizationRun, optimizer.Report, error) {
	return s.run(snapshot)
}

func scenarioOutcome(score float64) (domain.InductionDecision, domain.OptimizationRun) {
	dec := domain.InductionDecision{
		ID:         "dec-1",
		Conflicts:  nil,
		Recommendations: []string{"rec"},
	}
	run := domain.OptimizationRun{
		Status: domain.RunCompleted,
		BestSolution: &domain.Solution{
			Objectives: map[string]float64{
				optimizer.ObjectiveServiceReadiness: score,
				optimizer.ObjectiveReliability:       score,
				optimizer.ObjectiveCostEfficiency:    score,
				optimizer.ObjectiveBrandingExposure:  score,
				optimizer.ObjectiveEnergyEfficiency:  score,
			},
		},
	}
	return dec, run
}

func baseContext() domain.Context {
	return domain.Context{
		Date:      domain.ScheduleDate{Year: 2026, Month: 3, Day: 1},
		Shift:     domain.ShiftMorning,
		Trainsets: []domain.Trainset{{ID: "T1", IsActive: true}},
		Certificates: []domain.FitnessCertificate{
			{ID: "cert-1", TrainsetID: "T1", Status: domain.CertificateValid, ExpiresAt: time.Now().AddDate(0, 0, 30)},
		},
	}
}

func TestRunComparesVariationAgainstBase(t *testing.T) {
	engine := stubEngine{generate: func(snapshot domain.Context) (domain.InductionDecision, error) {
		dec, _ := scenarioOutcome(0)
		return dec, nil
	}}
	opt := stubOptimizer{run: func(snapshot domain.Context) (domain.OptimizationRun, optimizer.Report, error) {
		score := 70.0
		for _, c := range snapshot.Certificates {
			if c.TrainsetID == "T1" && c.ExpiresAt.After(time.Now().AddDate(0, 0, 60)) {
				score = 95.0
			}
		}
		_, run := scenarioOutcome(score)
		return run, optimizer.Report{}, nil
	}}

	sim := New(engine, opt)
	base := baseContext()

	extended := time.Now().AddDate(0, 0, 90)
	variation := Variation{
		Name: "extend_certificate",
		FitnessModifications: []FitnessModification{
			{TrainsetID: "T1", NewExpiresAt: &extended},
		},
	}

	result, err := sim.Run(context.Background(), base, []Variation{variation})
	require.NoError(t, err)

	assert.Equal(t, "base", result.Base.Name)
	require.Len(t, result.Variations, 1)
	assert.Equal(t, "extend_certificate", result.Variations[0].Name)
	assert.Greater(t, result.Variations[0].Metrics.OverallScore, result.Base.Metrics.OverallScore)
	assert.Equal(t, "extend_certificate", result.Comparison.BestScenario)
	assert.InDelta(t, 25.0, result.Comparison.Deltas["extend_certificate"].OverallScore, 0.001)

	require.Len(t, result.Recommendations, 1)
	assert.Equal(t, RecommendationBestScenario, result.Recommendations[0].Type)
	assert.Equal(t, "extend_certificate", result.Recommendations[0].ScenarioName)
	assert.Greater(t, result.Recommendations[0].ExpectedImprovement, 0.0)

	// base's own certificate must be untouched by the overlay.
	assert.InDelta(t, 30.0, time.Until(base.Certificates[0].ExpiresAt).Hours()/24, 0.5)
}

func TestRunMemoizesIdenticalRequests(t *testing.T) {
	calls := 0
	engine := stubEngine{generate: func(snapshot domain.Context) (domain.InductionDecision, error) {
		calls++
		dec, _ := scenarioOutcome(50)
		return dec, nil
	}}
	opt := stubOptimizer{run: func(snapshot domain.Context) (domain.OptimizationRun, optimizer.Report, error) {
		_, run := scenarioOutcome(50)
		return run, optimizer.Report{}, nil
	}}

	sim := New(engine, opt)
	base := baseContext()

	_, err := sim.Run(context.Background(), base, nil)
	require.NoError(t, err)
	_, err = sim.Run(context.Background(), base, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, calls)
}

func TestWriteJSONAndCSV(t *testing.T) {
	engine := stubEngine{generate: func(snapshot domain.Context) (domain.InductionDecision, error) {
		dec, _ := scenarioOutcome(80)
		return dec, nil
	}}
	opt := stubOptimizer{run: func(snapshot domain.Context) (domain.OptimizationRun, optimizer.Report, error) {
		_, run := scenarioOutcome(80)
		return run, optimizer.Report{}, nil
	}}

	sim := New(engine, opt)
	result, err := sim.Run(context.Background(), baseContext(), nil)
	require.NoError(t, err)

	dir := t.TempDir()
	jsonPath := filepath.Join(dir, "result.json")
	csvPath := filepath.Join(dir, "result.csv")

	require.NoError(t, result.WriteJSON(jsonPath))
	require.NoError(t, result.WriteCSV(csvPath))

	jsonData, err := os.ReadFile(jsonPath)
	require.NoError(t, err)
	assert.Contains(t, string(jsonData), "simulation_id")

	csvData, err := os.ReadFile(csvPath)
	require.NoError(t, err)
	assert.Contains(t, string(csvData), "scenario,service_readiness")
}
