// Package decision implements the Decision Engine (§4.3): composite
// scoring over the six rule evaluators, classification, ranking,
// conflict detection and confidence scoring for a single Context.
package decision

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

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

// Engine composes the six rule evaluators into ranked induction
// decisions per §4.3.
type Engine struct {
	weights      config.EngineWeights
	minReady     int
	readyScore   float64
	attentionMin float64
	bus          *bus.Bus
	clk          clock.Clock
}

// New builds an Engine from its configuration. bus may be nil, in which
// case Generate skips publishing decision.generated (used by tests).
func New(cfg config.EngineConfig, b *bus.Bus, clk clock.Clock) *Engine {
	if clk == nil {
		clk = clock.System{}
	}
	return &Engine{
		weights:      cfg.Weights,
		minReady:     cfg.MinReady,
		readyScore:   cfg.ReadyScore,
		attentionMin: cfg.AttentionMin,
		bus:          b,
		clk:          clk,
	}
}

type scored struct {
	trainset       domain.Trainset
	results        map[rules.Name]rules.Result
	composite      float64
	classification domain.Classification
	factors        []domain.KeyFactor
}

// Generate runs all six evaluators over every active trainset in
// snapshot, ranks and classifies them, and returns the resulting
// InductionDecision. It fails with apperr.KindContextEmpty when
// snapshot has no active trainsets.
func (e *Engine) Generate(ctx context.Context, snapshot domain.Context) (domain.InductionDecision, error) {
	tracer := telemetry.Tracer("decision")
	ctx, span := tracer.Start(ctx, "decision.Generate")
	defer span.End()

	logger := log.WithContext(ctx, log.WithComponent("decision"))
	now := e.clk.Now()

	active := snapshot.ActiveTrainsets()
	if len(active) == 0 {
		return domain.InductionDecision{}, apperr.New(apperr.KindContextEmpty, "no active trainsets in context")
	}

	scoredList := make([]scored, 0, len(active))
	for _, t := range active {
		results := rules.EvaluateAll(t, snapshot, now)
		byName := make(map[rules.Name]rules.Result, len(results))
		for _, r := range results {
			byName[r.Rule] = r
		}

		composite := e.composite(byName)
		canInduct := byName[rules.Certificate].CanInduct && byName[rules.WorkOrder].CanInduct
		classification := e.classify(canInduct, composite)
		factors := factorsFor(results)

		scoredList = append(scoredList, scored{
			trainset:       t,
			results:        byName,
			composite:      composite,
			classification: classification,
			factors:        factors,
		})
	}

	sort.SliceStable(scoredList, func(i, j int) bool {
		a, b := scoredList[i], scoredList[j]
		if a.composite != b.composite {
			return a.composite > b.composite
		}
		if a.results[rules.Certificate].Score != b.results[rules.Certificate].Score {
			return a.results[rules.Certificate].Score > b.results[rules.Certificate].Score
		}
		devA := rules.MileageDeviation(a.trainset, snapshot)
		devB := rules.MileageDeviation(b.trainset, snapshot)
		if devA != devB {
			return devA < devB
		}
		return earlierMaintenanceDue(a.trainset, b.trainset)
	})

	ranked := make([]domain.RankedTrainset, 0, len(scoredList))
	readyCount := 0
	criticalViolations := 0
	var warnings, recommendations []string
	var conflicts []domain.Conflict

	for i, s := range scoredList {
		rank := i + 1
		ranked = append(ranked, domain.RankedTrainset{
			TrainsetID:     s.trainset.ID,
			Rank:           rank,
			Score:          s.composite,
			Classification: s.classification,
			Factors:        s.factors,
		})

		if s.classification == domain.ClassInductionReady {
			readyCount++
		}

		for _, f := range s.factors {
			if f.Impact == domain.ImpactCritical {
				criticalViolations++
				conflicts = append(conflicts, domain.Conflict{
					Type:        domain.ConflictCriticalRule,
					Severity:    domain.SeverityHigh,
					Message:     fmt.Sprintf("trainset %s triggered a critical rule: %s", s.trainset.ID, f.Detail),
					TrainsetIDs: []string{s.trainset.ID},
				})
			}
			if f.Impact != domain.ImpactInfo {
				warnings = append(warnings, f.Detail)
			}
		}

		if s.results[rules.Cleaning].StatusTag == "overdue" {
			recommendations = append(recommendations, "schedule cleaning for trainset "+s.trainset.ID)
		}
		if s.results[rules.Branding].StatusTag == "prioritize" {
			recommendations = append(recommendations, "prioritize branding exposure for trainset "+s.trainset.ID)
		}
		if s.results[rules.Mileage].StatusTag == "needs_balancing" {
			recommendations = append(recommendations, "rebalance mileage for trainset "+s.trainset.ID)
		}
	}

	if readyCount < e.minReady {
		readyIDs := make([]string, 0, readyCount)
		for _, s := range scoredList {
			if s.classification == domain.ClassInductionReady {
				readyIDs = append(readyIDs, s.trainset.ID)
			}
		}
		conflicts = append(conflicts, domain.Conflict{
			Type:        domain.ConflictCapacity,
			Severity:    domain.SeverityHigh,
			Message:     fmt.Sprintf("only %d of %d required INDUCTION_READY trainsets available", readyCount, e.minReady),
			TrainsetIDs: readyIDs,
		})
	}

	confidence := 100.0 - float64(criticalViolations)*5.0
	if confidence < 0 {
		confidence = 0
	}

	decisionShift := snapshot.Shift
	decision := domain.InductionDecision{
		ID:              uuid.NewString(),
		GeneratedAt:     now,
		Date:            scheduleDateToTime(snapshot.Date),
		Shift:           decisionShift,
		RankedList:      ranked,
		Warnings:        dedupeStrings(warnings),
		Conflicts:       conflicts,
		Recommendations: dedupeStrings(recommendations),
		Confidence:      confidence,
		InputsHash:      inputsHash(snapshot),
	}

	for _, r := range ranked {
		metrics.RecordDecision(string(decisionShift), string(r.Classification))
	}
	metrics.RecordConfidence(string(decisionShift), confidence)
	metrics.RecordConflicts(string(decisionShift), len(conflicts))

	span.SetAttributes(telemetry.DecisionAttributes(string(decisionShift), len(ranked))...)

	if e.bus != nil {
		if _, err := e.bus.Publish(ctx, domain.TopicDecisionGenerated, "", decision); err != nil {
			logger.Warn().Err(err).Msg("failed to publish decision.generated")
		}
	}

	logger.Info().
		Str("decision_id", decision.ID).
		Int("ranked_count", len(ranked)).
		Int("ready_count", readyCount).
		Float64("confidence", confidence).
		Msg("induction decision generated")

	return decision, nil
}

func (e *Engine) composite(byName map[rules.Name]rules.Result) float64 {
	w := e.weights
	return float64(byName[rules.Certificate].Score)*w.Certificate +
		float64(byName[rules.WorkOrder].Score)*w.WorkOrder +
		float64(byName[rules.Branding].Score)*w.Branding +
		float64(byName[rules.Mileage].Score)*w.Mileage +
		float64(byName[rules.Cleaning].Score)*w.Cleaning +
		float64(byName[rules.Stabling].Score)*w.Stabling
}

func (e *Engine) classify(canInduct bool, composite float64) domain.Classification {
	if !canInduct {
		return domain.ClassNotReady
	}
	switch {
	case composite >= e.readyScore:
		return domain.ClassInductionReady
	case composite >= e.attentionMin:
		return domain.ClassConditionalReady
	default:
		return domain.ClassRequiresAttention
	}
}

func factorsFor(results []rules.Result) []domain.KeyFactor {
	var factors []domain.KeyFactor
	for _, r := range results {
		if !r.CanInduct {
			for _, w := range r.Warnings {
				factors = append(factors, domain.KeyFactor{Rule: string(r.Rule), Impact: domain.ImpactCritical, Detail: w})
			}
			if len(r.Warnings) == 0 {
				factors = append(factors, domain.KeyFactor{Rule: string(r.Rule), Impact: domain.ImpactCritical, Detail: string(r.Rule) + " disqualifies induction"})
			}
			continue
		}
		for _, w := range r.Warnings {
			factors = append(factors, domain.KeyFactor{Rule: string(r.Rule), Impact: domain.ImpactWarning, Detail: w})
		}
		if len(r.Warnings) == 0 {
			factors = append(factors, domain.KeyFactor{Rule: string(r.Rule), Impact: domain.ImpactInfo, Detail: string(r.Rule) + " " + r.StatusTag})
		}
	}
	return factors
}

func earlierMaintenanceDue(a, b domain.Trainset) bool {
	switch {
	case a.NextMaintenanceDueAt == nil && b.NextMaintenanceDueAt == nil:
		return a.ID < b.ID
	case a.NextMaintenanceDueAt == nil:
		return false
	case b.NextMaintenanceDueAt == nil:
		return true
	default:
		return a.NextMaintenanceDueAt.Before(*b.NextMaintenanceDueAt)
	}
}

func dedupeStrings(in []string) []string {
	if len(in) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func scheduleDateToTime(d domain.ScheduleDate) time.Time {
	return time.Date(d.Year, time.Month(d.Month), d.Day, 0, 0, 0, 0, time.UTC)
}

// inputsHash fingerprints the ids and observed mutable fields of every
// entity in snapshot so two runs over identical inputs produce an
// identical hash without replaying the rules.
func inputsHash(snapshot domain.Context) string {
	var b strings.Builder

	trainsets := append([]domain.Trainset(nil), snapshot.Trainsets...)
	sort.Slice(trainsets, func(i, j int) bool { return trainsets[i].ID < trainsets[j].ID })
	for _, t := range trainsets {
		fmt.Fprintf(&b, "T|%s|%s|%s|%s|%.2f|%.2f\n", t.ID, t.Status, t.Depot, t.Location, t.CurrentMileage, t.TotalMileage)
	}

	certs := append([]domain.FitnessCertificate(nil), snapshot.Certificates...)
	sort.Slice(certs, func(i, j int) bool { return certs[i].ID < certs[j].ID })
	for _, c := range certs {
		fmt.Fprintf(&b, "C|%s|%s|%s|%s\n", c.ID, c.TrainsetID, c.Status, c.ExpiresAt.UTC().Format(time.RFC3339))
	}

	jobCards := append([]domain.JobCard(nil), snapshot.JobCards...)
	sort.Slice(jobCards, func(i, j int) bool { return jobCards[i].ID < jobCards[j].ID })
	for _, j := range jobCards {
		fmt.Fprintf(&b, "J|%s|%s|%s|%s\n", j.ID, j.TrainsetID, j.Status, j.Priority)
	}

	slots := append([]domain.CleaningSlot(nil), snapshot.CleaningSlots...)
	sort.Slice(slots, func(i, j int) bool { return slots[i].ID < slots[j].ID })
	for _, s := range slots {
		fmt.Fprintf(&b, "S|%s|%s|%d|%d\n", s.ID, s.Bay, s.Capacity, len(s.AssignedTrainsetIDs))
	}

	branding := append([]domain.BrandingRecord(nil), snapshot.Branding...)
	sort.Slice(branding, func(i, j int) bool { return branding[i].ID < branding[j].ID })
	for _, br := range branding {
		fmt.Fprintf(&b, "B|%s|%s|%.2f|%.2f\n", br.ID, br.TrainsetID, br.TargetHoursPerDay, br.DeliveredHours)
	}

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
