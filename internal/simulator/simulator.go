// Package simulator implements the What-If Simulator (§4.5): given a
// base context and an ordered list of typed overlays, it re-runs the
// Decision Engine and Optimizer against an in-memory copy of each
// scenario, never touching the underlying store, and returns a
// per-scenario metric vector plus a comparison against the base.
package simulator

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/metrofleet/induction/internal/decision"
	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/log"
	"github.com/metrofleet/induction/internal/optimizer"
	"github.com/metrofleet/induction/internal/telemetry"
)

// FitnessModification overrides a certificate's expiry or status for a
// single scenario, by trainset.
type FitnessModification struct {
	TrainsetID   string
	NewExpiresAt *time.Time
	NewStatus    *domain.CertificateStatus
}

// JobCardModification overrides a work order's status or priority for
// a single scenario.
type JobCardModification struct {
	JobCardID   string
	NewStatus   *domain.JobCardStatus
	NewPriority *domain.Priority
}

// TrainsetModification overrides a trainset's status, mileage or
// location for a single scenario.
type TrainsetModification struct {
	TrainsetID  string
	NewStatus   *domain.Status
	NewMileage  *float64
	NewLocation *string
}

// Variation is one named what-if scenario: a bundle of overlays applied
// on top of the base context.
type Variation struct {
	Name                   string
	Description            string
	FitnessModifications   []FitnessModification
	JobCardModifications   []JobCardModification
	TrainsetModifications  []TrainsetModification
}

// Metrics is the per-scenario metric vector named in §4.5.
type Metrics struct {
	ServiceReadiness     float64 `json:"service_readiness"`
	Reliability          float64 `json:"reliability"`
	CostEfficiency       float64 `json:"cost_efficiency"`
	BrandingExposure     float64 `json:"branding_exposure"`
	EnergyEfficiency     float64 `json:"energy_efficiency"`
	OverallScore         float64 `json:"overall_score"`
	ConstraintViolations int     `json:"constraint_violations"`
	RecommendationCount  int     `json:"recommendation_count"`
}

// ScenarioResult is one scenario's outcome: its decision, its
// optimization run, and the derived metric vector.
type ScenarioResult struct {
	Name     string                    `json:"name"`
	Decision domain.InductionDecision  `json:"decision"`
	Run      domain.OptimizationRun    `json:"run"`
	Metrics  Metrics                   `json:"metrics"`
}

// Comparison reports how each variation's metrics differ from the base
// scenario, and which scenario scored best overall.
type Comparison struct {
	BaselineName string             `json:"baseline_name"`
	Deltas       map[string]Metrics `json:"deltas"` // scenario name -> (scenario - base)
	BestScenario string             `json:"best_scenario"`
}

// Recommendation surfaces one actionable takeaway from a simulation run.
type Recommendation struct {
	Type                string  `json:"type"`
	ScenarioName        string  `json:"scenario_name"`
	ExpectedImprovement float64 `json:"expected_improvement"`
	Message             string  `json:"message"`
}

// RecommendationBestScenario flags the variation that beat the base
// scenario's overall_score by the largest margin.
const RecommendationBestScenario = "BEST_SCENARIO"

// Result is the full output of one simulation run: every scenario plus
// the comparison, addressable by a stable simulation id.
type Result struct {
	SimulationID    string           `json:"simulation_id"`
	Base            ScenarioResult   `json:"base"`
	Variations      []ScenarioResult `json:"variations"`
	Comparison      Comparison       `json:"comparison"`
	Recommendations []Recommendation `json:"recommendations"`
}

// Engine runs the Decision Engine against a context.
type Engine interface {
	Generate(ctx context.Context, snapshot domain.Context) (domain.InductionDecision, error)
}

// Optimizer runs the NSGA-II search against a context.
type Optimizer interface {
	Run(ctx context.Context, snapshot domain.Context) (domain.OptimizationRun, optimizer.Report, error)
}

// Simulator composes an Engine and Optimizer to evaluate scenarios
// without ever mutating the caller's store.
type Simulator struct {
	engine    Engine
	optimizer Optimizer

	mu       sync.Mutex
	memo     map[string]Result
}

// New builds a Simulator over the given engine and optimizer.
func New(engine Engine, opt Optimizer) *Simulator {
	return &Simulator{engine: engine, optimizer: opt, memo: make(map[string]Result)}
}

// Run evaluates base and every variation, returning the memoized Result
// for an identical (base, variations) pair if one was already computed.
func (s *Simulator) Run(ctx context.Context, base domain.Context, variations []Variation) (Result, error) {
	tracer := telemetry.Tracer("simulator")
	ctx, span := tracer.Start(ctx, "simulator.Run")
	defer span.End()

	simID := simulationID(base, variations)

	s.mu.Lock()
	if cached, ok := s.memo[simID]; ok {
		s.mu.Unlock()
		return cached, nil
	}
	s.mu.Unlock()

	logger := log.WithContext(ctx, log.WithComponent("simulator"))

	baseResult, err := s.evaluate(ctx, "base", base)
	if err != nil {
		return Result{}, fmt.Errorf("evaluate base scenario: %w", err)
	}

	varResults := make([]ScenarioResult, len(variations))
	for i, v := range variations {
		overlaid := applyOverlay(base, v)
		res, err := s.evaluate(ctx, v.Name, overlaid)
		if err != nil {
			return Result{}, fmt.Errorf("evaluate variation %q: %w", v.Name, err)
		}
		varResults[i] = res
	}

	comparison, recommendations := compare(baseResult, varResults)
	result := Result{
		SimulationID:    simID,
		Base:            baseResult,
		Variations:      varResults,
		Comparison:      comparison,
		Recommendations: recommendations,
	}

	s.mu.Lock()
	s.memo[simID] = result
	s.mu.Unlock()

	logger.Info().
		Str("simulation_id", simID).
		Int("variations", len(variations)).
		Str("best_scenario", result.Comparison.BestScenario).
		Msg("simulation completed")

	return result, nil
}

func (s *Simulator) evaluate(ctx context.Context, name string, snapshot domain.Context) (ScenarioResult, error) {
	dec, err := s.engine.Generate(ctx, snapshot)
	if err != nil {
		return ScenarioResult{}, err
	}
	run, _, err := s.optimizer.Run(ctx, snapshot)
	if err != nil {
		return ScenarioResult{}, err
	}

	return ScenarioResult{
		Name:     name,
		Decision: dec,
		Run:      run,
		Metrics:  metricsFor(dec, run),
	}, nil
}

func metricsFor(dec domain.InductionDecision, run domain.OptimizationRun) Metrics {
	var m Metrics
	if run.BestSolution != nil {
		m.ServiceReadiness = run.BestSolution.Objectives[optimizer.ObjectiveServiceReadiness]
		m.Reliability = run.BestSolution.Objectives[optimizer.ObjectiveReliability]
		m.CostEfficiency = run.BestSolution.Objectives[optimizer.ObjectiveCostEfficiency]
		m.BrandingExposure = run.BestSolution.Objectives[optimizer.ObjectiveBrandingExposure]
		m.EnergyEfficiency = run.BestSolution.Objectives[optimizer.ObjectiveEnergyEfficiency]
	}
	m.OverallScore = (m.ServiceReadiness + m.Reliability + m.CostEfficiency + m.BrandingExposure + m.EnergyEfficiency) / 5
	m.ConstraintViolations = len(dec.Conflicts)
	m.RecommendationCount = len(dec.Recommendations)
	return m
}

func compare(base ScenarioResult, variations []ScenarioResult) (Comparison, []Recommendation) {
	deltas := make(map[string]Metrics, len(variations))
	best := base.Name
	bestScore := base.Metrics.OverallScore
	bestIsVariation := false

	for _, v := range variations {
		deltas[v.Name] = Metrics{
			ServiceReadiness:     v.Metrics.ServiceReadiness - base.Metrics.ServiceReadiness,
			Reliability:          v.Metrics.Reliability - base.Metrics.Reliability,
			CostEfficiency:       v.Metrics.CostEfficiency - base.Metrics.CostEfficiency,
			BrandingExposure:     v.Metrics.BrandingExposure - base.Metrics.BrandingExposure,
			EnergyEfficiency:     v.Metrics.EnergyEfficiency - base.Metrics.EnergyEfficiency,
			OverallScore:         v.Metrics.OverallScore - base.Metrics.OverallScore,
			ConstraintViolations: v.Metrics.ConstraintViolations - base.Metrics.ConstraintViolations,
			RecommendationCount:  v.Metrics.RecommendationCount - base.Metrics.RecommendationCount,
		}
		if v.Metrics.OverallScore > bestScore {
			bestScore = v.Metrics.OverallScore
			best = v.Name
			bestIsVariation = true
		}
	}

	comparison := Comparison{BaselineName: base.Name, Deltas: deltas, BestScenario: best}

	var recommendations []Recommendation
	if bestIsVariation {
		improvement := bestScore - base.Metrics.OverallScore
		recommendations = append(recommendations, Recommendation{
			Type:                RecommendationBestScenario,
			ScenarioName:        best,
			ExpectedImprovement: improvement,
			Message:             fmt.Sprintf("scenario %q improves overall_score by %.4f over the base", best, improvement),
		})
	}

	return comparison, recommendations
}

// applyOverlay returns a deep-enough copy of base with v's modifications
// applied; base itself is never mutated.
func applyOverlay(base domain.Context, v Variation) domain.Context {
	out := base
	out.Trainsets = append([]domain.Trainset(nil), base.Trainsets...)
	out.Certificates = append([]domain.FitnessCertificate(nil), base.Certificates...)
	out.JobCards = append([]domain.JobCard(nil), base.JobCards...)

	for _, mod := range v.FitnessModifications {
		for i := range out.Certificates {
			if out.Certificates[i].TrainsetID != mod.TrainsetID {
				continue
			}
			if mod.NewExpiresAt != nil {
				out.Certificates[i].ExpiresAt = *mod.NewExpiresAt
			}
			if mod.NewStatus != nil {
				out.Certificates[i].Status = *mod.NewStatus
			}
		}
	}

	for _, mod := range v.JobCardModifications {
		for i := range out.JobCards {
			if out.JobCards[i].ID != mod.JobCardID {
				continue
			}
			if mod.NewStatus != nil {
				out.JobCards[i].Status = *mod.NewStatus
			}
			if mod.NewPriority != nil {
				out.JobCards[i].Priority = *mod.NewPriority
			}
		}
	}

	for _, mod := range v.TrainsetModifications {
		for i := range out.Trainsets {
			if out.Trainsets[i].ID != mod.TrainsetID {
				continue
			}
			if mod.NewStatus != nil {
				out.Trainsets[i].Status = *mod.NewStatus
			}
			if mod.NewMileage != nil {
				out.Trainsets[i].CurrentMileage = *mod.NewMileage
			}
			if mod.NewLocation != nil {
				out.Trainsets[i].Location = *mod.NewLocation
			}
		}
	}

	return out
}

// simulationID fingerprints a (base, variations) pair so identical
// requests hit the memoization cache.
func simulationID(base domain.Context, variations []Variation) string {
	h := sha256.New()
	fmt.Fprintf(h, "date=%04d-%02d-%02d|shift=%s|trainsets=%d\n", base.Date.Year, base.Date.Month, base.Date.Day, base.Shift, len(base.Trainsets))

	names := make([]string, 0, len(variations))
	for _, v := range variations {
		names = append(names, v.Name)
	}
	sort.Strings(names)
	for _, n := range names {
		fmt.Fprintf(h, "variation=%s\n", n)
	}
	// Hash the full contents as well, so requests that differ only in
	// fleet data or overlay values do not share a memo entry.
	enc := json.NewEncoder(h)
	_ = enc.Encode(base)
	_ = enc.Encode(variations)
	return hex.EncodeToString(h.Sum(nil))[:16]
}
