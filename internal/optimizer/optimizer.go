// Package optimizer implements the NSGA-II-style multi-objective
// Optimizer (§4.4): given a Context, it searches for a subset of
// eligible trainsets and a running order that simultaneously maximizes
// five objectives, producing a Pareto front and a recommended solution.
package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/metrofleet/induction/internal/apperr"
	"github.com/metrofleet/induction/internal/bus"
	"github.com/metrofleet/induction/internal/clock"
	"github.com/metrofleet/induction/internal/config"
	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/log"
	"github.com/metrofleet/induction/internal/metrics"
	"github.com/metrofleet/induction/internal/rules"
	"github.com/metrofleet/induction/internal/telemetry"
)

// Optimizer runs NSGA-II-style searches over a Context.
type Optimizer struct {
	cfg        config.OptimizerConfig
	objectives map[string]ObjectiveFunc
	bus        *bus.Bus
	clk        clock.Clock
}

// New builds an Optimizer. objectives defaults to DefaultObjectives
// when nil, letting callers override or extend the objective set.
func New(cfg config.OptimizerConfig, objectives map[string]ObjectiveFunc, b *bus.Bus, clk clock.Clock) *Optimizer {
	if objectives == nil {
		objectives = DefaultObjectives()
	}
	if clk == nil {
		clk = clock.System{}
	}
	return &Optimizer{cfg: cfg, objectives: objectives, bus: b, clk: clk}
}

// Report summarizes a completed run beyond what OptimizationRun itself
// carries: the top solutions, population-level statistics, and
// natural-language recommendations derived from objective gaps.
type Report struct {
	TopSolutions        []domain.Solution
	PopulationSize      int
	GenerationsRun      int
	ConstraintViolations int
	Recommendations     []string
}

// Run executes one NSGA-II-style search over snapshot, honoring ctx
// cancellation between generations (the run is marked CANCELLED, not
// FAILED, when ctx.Err() is context.Canceled). The run is assigned a
// fresh id.
func (o *Optimizer) Run(ctx context.Context, snapshot domain.Context) (domain.OptimizationRun, Report, error) {
	return o.RunWithID(ctx, uuid.NewString(), snapshot)
}

// RunWithID behaves like Run but lets the caller choose the run id up
// front, so a command surface can register a cancellation handle under
// that id before the run starts rather than racing to learn it.
func (o *Optimizer) RunWithID(ctx context.Context, runID string, snapshot domain.Context) (domain.OptimizationRun, Report, error) {
	if runID == "" {
		runID = uuid.NewString()
	}

	tracer := telemetry.Tracer("optimizer")
	ctx, span := tracer.Start(ctx, "optimizer.Run")
	defer span.End()

	ctx = log.ContextWithRunID(ctx, runID)
	logger := log.WithContext(ctx, log.WithComponent("optimizer"))

	run := domain.OptimizationRun{
		ID:          runID,
		RequestedAt: o.clk.Now(),
		Algorithm:   "nsga2",
		Status:      domain.RunQueued,
		Parameters: map[string]any{
			"population_size": o.cfg.PopulationSize,
			"generations":     o.cfg.Generations,
			"seed":            o.cfg.Seed,
		},
	}

	eligible := eligibleTrainsetIDs(snapshot, o.clk.Now())
	if len(eligible) < o.cfg.MinTrainsets {
		run.Status = domain.RunFailed
		run.Error = apperr.New(apperr.KindNoEligible, fmt.Sprintf("%d eligible trainsets, need at least %d", len(eligible), o.cfg.MinTrainsets)).Error()
		metrics.RecordRunTerminal(string(run.Status))
		return run, Report{}, apperr.New(apperr.KindNoEligible, "fewer than MIN_TRAINSETS eligible trainsets")
	}

	startedAt := o.clk.Now()
	run.StartedAt = &startedAt
	run.Status = domain.RunRunning

	if o.bus != nil {
		_, _ = o.bus.Publish(ctx, domain.TopicOptimizationStarted, "", run)
	}

	rng := rand.New(rand.NewSource(o.cfg.Seed))
	timer := clock.NewSuspendableTimer(o.clk, o.cfg.RunHardTimeout)

	pop := o.initialPopulation(eligible, rng)
	// A cancelled ctx is not a failure: the generation loop below reports it.
	if err := o.evaluatePopulation(ctx, pop, snapshot); err != nil && ctx.Err() == nil {
		run.Status = domain.RunFailed
		run.Error = err.Error()
		metrics.RecordRunTerminal(string(run.Status))
		return run, Report{}, err
	}

	generationsRun := 0
	for gen := 0; gen < o.cfg.Generations; gen++ {
		genStart := o.clk.Now()

		select {
		case <-ctx.Done():
			run.Status = domain.RunCancelled
			run.Error = ctx.Err().Error()
			finishCancelled := o.clk.Now()
			run.FinishedAt = &finishCancelled
			o.finalize(ctx, &run, pop, eligible, generationsRun)
			metrics.RecordRunTerminal(string(run.Status))
			if o.bus != nil {
				_, _ = o.bus.Publish(ctx, domain.TopicOptimizationCancelled, "", run)
			}
			return run, o.buildReport(pop, eligible, generationsRun), apperr.New(apperr.KindCancelled, "optimization run cancelled")
		default:
		}

		if timer.Expired() {
			logger.Warn().Int("generation", gen).Msg("run hard timeout reached, stopping early")
			break
		}

		fronts := nonDominatedSort(pop)
		for _, front := range fronts {
			crowdingDistanceAssign(pop, front)
		}

		next := o.nextGeneration(pop, fronts, eligible, rng)
		if err := o.evaluatePopulation(ctx, next, snapshot); err != nil {
			if ctx.Err() != nil {
				// Cancelled mid-evaluation: keep the last fully evaluated
				// population and repeat this generation's cancellation check.
				gen--
				continue
			}
			run.Status = domain.RunFailed
			run.Error = err.Error()
			metrics.RecordRunTerminal(string(run.Status))
			return run, Report{}, err
		}
		pop = next
		generationsRun++

		run.Progress = float64(gen+1) / float64(o.cfg.Generations)
		metrics.ObserveGenerationDuration(o.clk.Now().Sub(genStart).Seconds())

		if o.bus != nil {
			_, _ = o.bus.Publish(ctx, domain.TopicOptimizationProgress, "", run)
			_, _ = o.bus.Publish(ctx, domain.TopicOptimizationIteration, "", gen)
		}
	}

	finished := o.clk.Now()
	run.FinishedAt = &finished
	run.Status = domain.RunCompleted
	run.Progress = 1.0
	o.finalize(ctx, &run, pop, eligible, generationsRun)

	metrics.RecordRunTerminal(string(run.Status))
	metrics.ObserveParetoFrontSize(len(run.ParetoFront))
	span.SetAttributes(telemetry.OptimizerAttributes(runID, generationsRun)...)

	if o.bus != nil {
		_, _ = o.bus.Publish(ctx, domain.TopicOptimizationCompleted, "", run)
	}

	logger.Info().
		Int("generations", generationsRun).
		Int("pareto_front_size", len(run.ParetoFront)).
		Msg("optimization run completed")

	return run, o.buildReport(pop, eligible, generationsRun), nil
}

func (o *Optimizer) finalize(ctx context.Context, run *domain.OptimizationRun, pop []Individual, eligible []string, generationsRun int) {
	fronts := nonDominatedSort(pop)
	if len(fronts) > 0 {
		crowdingDistanceAssign(pop, fronts[0])
	}

	var front0 []domain.Solution
	if len(fronts) > 0 {
		for _, i := range fronts[0] {
			front0 = append(front0, pop[i].toSolution(eligible))
		}
	}
	run.ParetoFront = front0

	best := bestByFitness(pop)
	if best != nil {
		solution := best.toSolution(eligible)
		run.BestSolution = &solution
	}

	run.Metrics = map[string]float64{
		"pareto_front_size": float64(len(front0)),
		"generations_run":   float64(generationsRun),
	}
}

func (o *Optimizer) buildReport(pop []Individual, eligible []string, generationsRun int) Report {
	sorted := append([]Individual(nil), pop...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Fitness > sorted[j].Fitness })

	topN := 5
	if topN > len(sorted) {
		topN = len(sorted)
	}
	top := make([]domain.Solution, 0, topN)
	for i := 0; i < topN; i++ {
		top = append(top, sorted[i].toSolution(eligible))
	}

	violations := 0
	for _, ind := range pop {
		if !ind.Feasible {
			violations++
		}
	}

	return Report{
		TopSolutions:         top,
		PopulationSize:       len(pop),
		GenerationsRun:       generationsRun,
		ConstraintViolations: violations,
		Recommendations:      recommendationsFor(sorted),
	}
}

// recommendationsFor derives natural-language guidance from the best
// individual's objective gaps, e.g. a reliability shortfall suggests
// preferring newer trainsets (§4.4).
func recommendationsFor(sortedByFitness []Individual) []string {
	if len(sortedByFitness) == 0 {
		return nil
	}
	best := sortedByFitness[0]
	var recs []string
	if best.Objectives[ObjectiveReliability] < 80 {
		recs = append(recs, "reliability below target: prefer newer trainsets in the selected subset")
	}
	if best.Objectives[ObjectiveServiceReadiness] < 80 {
		recs = append(recs, "service readiness below target: resolve outstanding certificate or work-order issues")
	}
	if best.Objectives[ObjectiveCostEfficiency] < 80 {
		recs = append(recs, "cost efficiency below target: rebalance mileage across the fleet")
	}
	if best.Objectives[ObjectiveBrandingExposure] < 80 {
		recs = append(recs, "branding exposure below target: prioritize trainsets under active campaigns")
	}
	if best.Objectives[ObjectiveEnergyEfficiency] < 80 {
		recs = append(recs, "energy efficiency below target: favor trainsets with lower operational-hours-per-kilometer")
	}
	return recs
}

func bestByFitness(pop []Individual) *Individual {
	if len(pop) == 0 {
		return nil
	}
	best := pop[0]
	for _, ind := range pop[1:] {
		if ind.Fitness > best.Fitness {
			best = ind
		}
	}
	return &best
}

func (o *Optimizer) initialPopulation(eligible []string, rng *rand.Rand) []Individual {
	pop := make([]Individual, o.cfg.PopulationSize)
	for i := range pop {
		pop[i] = randomIndividual(eligible, o.cfg.MinTrainsets, o.cfg.MaxTrainsets, rng)
	}
	return pop
}

// nextGeneration builds the following generation: the top elitismFraction
// of the current population (by front rank, then crowding) carries over
// unchanged, and the remainder is filled by tournament selection,
// crossover and mutation.
func (o *Optimizer) nextGeneration(pop []Individual, fronts [][]int, eligible []string, rng *rand.Rand) []Individual {
	ranked := make([]Individual, len(pop))
	copy(ranked, pop)
	sort.SliceStable(ranked, func(i, j int) bool { return betterRanked(ranked[i], ranked[j]) })

	eliteCount := int(float64(len(pop)) * o.cfg.ElitismFraction)
	next := make([]Individual, 0, len(pop))
	for i := 0; i < eliteCount && i < len(ranked); i++ {
		next = append(next, ranked[i].clone())
	}

	for len(next) < len(pop) {
		parentA := tournamentSelect(pop, o.cfg.TournamentSize, rng)
		parentB := tournamentSelect(pop, o.cfg.TournamentSize, rng)

		var child Individual
		if rng.Float64() < o.cfg.CrossoverRate {
			child = uniformSubsetCrossover(parentA, parentB, o.cfg.MinTrainsets, o.cfg.MaxTrainsets, rng)
		} else {
			child = parentA.clone()
		}
		child = mutate(child, eligible, o.cfg.MinTrainsets, o.cfg.MaxTrainsets, o.cfg.MutationRate, rng)
		next = append(next, child)
	}

	return next
}

// evaluatePopulation scores every individual's objectives concurrently,
// bounded by the optimizer's configured worker count.
func (o *Optimizer) evaluatePopulation(ctx context.Context, pop []Individual, snapshot domain.Context) error {
	trainsetByID := make(map[string]domain.Trainset, len(snapshot.Trainsets))
	for _, t := range snapshot.Trainsets {
		trainsetByID[t.ID] = t
	}

	now := o.clk.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxInt(1, o.cfg.MaxWorkers))

	for i := range pop {
		i := i
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			selected := make([]domain.Trainset, 0, len(pop[i].Order))
			for _, id := range pop[i].Order {
				if t, ok := trainsetByID[id]; ok {
					selected = append(selected, t)
				}
			}

			objectives := make(map[string]float64, len(o.objectives))
			for name, fn := range o.objectives {
				objectives[name] = fn(selected, snapshot, now)
			}

			feasible, fitness := o.score(selected, objectives)
			pop[i].Objectives = objectives
			pop[i].Feasible = feasible
			pop[i].Fitness = fitness
			return nil
		})
	}

	return g.Wait()
}

// score computes constraint-adjusted fitness: the weighted objective
// sum, less 50 below MinTrainsets or 20 above MaxTrainsets (either
// breach marks the individual infeasible), floored at 0. It checks no
// rule results itself: trainsets with a blocking certificate or
// work-order result never reach it, because eligibleTrainsetIDs leaves
// them out of the search.
func (o *Optimizer) score(selected []domain.Trainset, objectives map[string]float64) (feasible bool, fitness float64) {
	w := o.cfg.Weights
	raw := objectives[ObjectiveServiceReadiness]*w.ServiceReadiness +
		objectives[ObjectiveReliability]*w.Reliability +
		objectives[ObjectiveCostEfficiency]*w.CostEfficiency +
		objectives[ObjectiveBrandingExposure]*w.BrandingExposure +
		objectives[ObjectiveEnergyEfficiency]*w.EnergyEfficiency

	feasible = true
	if len(selected) < o.cfg.MinTrainsets {
		raw -= 50
		feasible = false
	} else if len(selected) > o.cfg.MaxTrainsets {
		raw -= 20
		feasible = false
	}

	if raw < 0 {
		raw = 0
	}
	return feasible, raw
}

func eligibleTrainsetIDs(snapshot domain.Context, now time.Time) []string {
	var ids []string
	for _, t := range snapshot.ActiveTrainsets() {
		cert := rules.EvaluateCertificate(t, snapshot, now)
		wo := rules.EvaluateWorkOrder(t, snapshot, now)
		if cert.CanInduct && wo.CanInduct {
			ids = append(ids, t.ID)
		}
	}
	sort.Strings(ids)
	return ids
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
