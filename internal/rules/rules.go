// Package rules implements the six pure rule evaluators the Decision
// Engine composes: certificate, work-order, branding, mileage, cleaning
// and stabling. Each evaluator is a deterministic function of a single
// trainset and the snapshot it was drawn from; none mutate their inputs
// or reach outside the package for state.
package rules

import (
	"math"
	"strings"
	"time"

	"github.com/metrofleet/induction/internal/domain"
)

// Name identifies which evaluator produced a Result.
type Name string

const (
	Certificate Name = "certificate"
	WorkOrder   Name = "work_order"
	Branding    Name = "branding"
	Mileage     Name = "mileage"
	Cleaning    Name = "cleaning"
	Stabling    Name = "stabling"
)

// Result is the fixed output shape of every evaluator: a score in
// [0,100], whether the trainset may be inducted on this rule alone, a
// short machine-readable status tag, and human-readable warnings that
// are carried verbatim into the decision audit.
type Result struct {
	Rule      Name
	Score     int
	CanInduct bool
	StatusTag string
	Warnings  []string
}

// EvaluateAll runs every evaluator for trainset against ctx and now,
// returning one Result per rule in a fixed order (Certificate,
// WorkOrder, Branding, Mileage, Cleaning, Stabling).
func EvaluateAll(t domain.Trainset, ctx domain.Context, now time.Time) []Result {
	return []Result{
		EvaluateCertificate(t, ctx, now),
		EvaluateWorkOrder(t, ctx, now),
		EvaluateBranding(t, ctx, now),
		EvaluateMileage(t, ctx, now),
		EvaluateCleaning(t, ctx, now),
		EvaluateStabling(t, ctx, now),
	}
}

// EvaluateCertificate scores fitness-certificate standing. The score
// tiers by days-to-expiry; an expired or absent certificate scores 0
// and disqualifies induction outright.
func EvaluateCertificate(t domain.Trainset, ctx domain.Context, now time.Time) Result {
	certs := ctx.CertificatesFor(t.ID)

	var best *domain.FitnessCertificate
	for i := range certs {
		c := certs[i]
		if !c.IsEffectivelyValid(now) {
			continue
		}
		if best == nil || c.ExpiresAt.After(best.ExpiresAt) {
			best = &certs[i]
		}
	}

	if best == nil {
		return Result{
			Rule:      Certificate,
			Score:     0,
			CanInduct: false,
			StatusTag: "absent_or_expired",
			Warnings:  []string{"no effectively valid fitness certificate on file"},
		}
	}

	daysToExpiry := best.ExpiresAt.Sub(now).Hours() / 24

	var score int
	var tag string
	switch {
	case daysToExpiry > 30:
		score, tag = 100, "healthy"
	case daysToExpiry >= 15:
		score, tag = 80, "expiring_soon"
	case daysToExpiry >= 8:
		score, tag = 60, "expiring_soon"
	case daysToExpiry >= 1:
		score, tag = 30, "expiring_imminent"
	default:
		score, tag = 0, "expired"
	}

	var warnings []string
	if daysToExpiry <= 14 {
		warnings = append(warnings, "fitness certificate expires within 14 days")
	}

	return Result{
		Rule:      Certificate,
		Score:     score,
		CanInduct: score > 0,
		StatusTag: tag,
		Warnings:  warnings,
	}
}

// EvaluateWorkOrder scores open maintenance work orders. Any open
// CRITICAL or HIGH priority job card disqualifies induction.
func EvaluateWorkOrder(t domain.Trainset, ctx domain.Context, now time.Time) Result {
	var open, criticalOrHigh int
	var warnings []string
	for _, jc := range ctx.JobCardsFor(t.ID) {
		if !jc.Open() {
			continue
		}
		open++
		if jc.Priority == domain.PriorityCritical || jc.Priority == domain.PriorityHigh {
			criticalOrHigh++
			warnings = append(warnings, "open "+string(jc.Priority)+" priority work order: "+jc.Title)
		}
		if jc.Overdue(now) {
			warnings = append(warnings, "work order overdue: "+jc.Title)
		}
	}

	if criticalOrHigh > 0 {
		return Result{Rule: WorkOrder, Score: 20, CanInduct: false, StatusTag: "blocking_work_order", Warnings: warnings}
	}

	var score int
	var tag string
	switch {
	case open > 3:
		score, tag = 40, "backlog"
	case open >= 1:
		score, tag = 70, "minor_open"
	default:
		score, tag = 100, "clear"
	}

	return Result{Rule: WorkOrder, Score: score, CanInduct: true, StatusTag: tag, Warnings: warnings}
}

// EvaluateBranding scores branding-exposure pressure: active contracts
// with a high priority tier or a large shortfall relative to remaining
// contract days are flagged for prioritization.
func EvaluateBranding(t domain.Trainset, ctx domain.Context, now time.Time) Result {
	var active []domain.BrandingRecord
	for _, b := range ctx.BrandingFor(t.ID) {
		if b.Active(now) {
			active = append(active, b)
		}
	}

	if len(active) == 0 {
		return Result{Rule: Branding, Score: 100, CanInduct: true, StatusTag: "no_commitment"}
	}

	maxPriority := 0
	maxUrgency := 0.0
	var warnings []string
	for _, b := range active {
		if b.Priority > maxPriority {
			maxPriority = b.Priority
		}
		remainingDays := math.Max(1, b.ContractEnd.Sub(now).Hours()/24)
		urgency := b.ShortfallHours() / remainingDays
		if urgency > maxUrgency {
			maxUrgency = urgency
		}
		if b.Priority >= 80 || urgency > 2 {
			warnings = append(warnings, "branding campaign "+b.Campaign+" under delivery pressure")
		}
	}

	score := 100
	score -= maxPriority / 2
	score -= int(math.Min(50, maxUrgency*10))
	if score < 0 {
		score = 0
	}

	tag := "on_track"
	if len(warnings) > 0 {
		tag = "prioritize"
	}

	return Result{Rule: Branding, Score: score, CanInduct: true, StatusTag: tag, Warnings: warnings}
}

// EvaluateMileage scores mileage balance against the fleet mean,
// flagging trainsets whose deviation exceeds 10% for rebalancing.
func EvaluateMileage(t domain.Trainset, ctx domain.Context, now time.Time) Result {
	mean := fleetMeanMileage(ctx.Trainsets)
	if mean == 0 {
		return Result{Rule: Mileage, Score: 100, CanInduct: true, StatusTag: "balanced"}
	}

	deviation := MileageDeviation(t, ctx)

	var score int
	var tag string
	switch {
	case deviation <= 0.10:
		score, tag = 100, "balanced"
	case deviation <= 0.20:
		score, tag = 60, "needs_balancing"
	default:
		score, tag = 30, "needs_balancing"
	}

	var warnings []string
	if deviation > 0.10 {
		direction := "prefer induction (low mileage)"
		if t.CurrentMileage > mean {
			direction = "avoid induction (high mileage)"
		}
		warnings = append(warnings, "mileage deviates from fleet mean by more than 10%: "+direction)
	}

	return Result{Rule: Mileage, Score: score, CanInduct: true, StatusTag: tag, Warnings: warnings}
}

// MileageDeviation returns trainset t's fractional deviation from the
// fleet mean mileage, exported so callers ranking trainsets (the
// Decision Engine's tie-break order) don't need to recompute the mean
// themselves.
func MileageDeviation(t domain.Trainset, ctx domain.Context) float64 {
	mean := fleetMeanMileage(ctx.Trainsets)
	if mean == 0 {
		return 0
	}
	return math.Abs(t.CurrentMileage-mean) / mean
}

func fleetMeanMileage(trainsets []domain.Trainset) float64 {
	if len(trainsets) == 0 {
		return 0
	}
	var sum float64
	for _, t := range trainsets {
		sum += t.CurrentMileage
	}
	return sum / float64(len(trainsets))
}

// EvaluateCleaning scores time since last cleaning against a 7-day
// cycle.
func EvaluateCleaning(t domain.Trainset, ctx domain.Context, now time.Time) Result {
	const cycle = 7 * 24 * time.Hour

	var daysSince float64
	if t.LastCleaningAt == nil {
		daysSince = math.Inf(1)
	} else {
		daysSince = now.Sub(*t.LastCleaningAt).Hours() / 24
	}

	var score int
	var tag string
	switch {
	case daysSince < 7:
		score, tag = 100, "clean"
	case daysSince < 14:
		score, tag = 60, "due_soon"
	default:
		score, tag = 20, "overdue"
	}

	needsCleaning := t.CleaningDue(now, cycle)
	var warnings []string
	if needsCleaning {
		warnings = append(warnings, "cleaning cycle overdue")
	}

	return Result{Rule: Cleaning, Score: score, CanInduct: true, StatusTag: tag, Warnings: warnings}
}

// EvaluateStabling scores shunting complexity from the trainset's
// current location: away from its home depot adds complexity, and a
// terminal location adds further complexity.
func EvaluateStabling(t domain.Trainset, ctx domain.Context, now time.Time) Result {
	complexity := 0
	if t.Location != "" && t.Location != t.Depot {
		complexity += 2
	}
	if isTerminalLocation(t.Location) {
		complexity++
	}

	var score int
	var tag string
	switch {
	case complexity == 0:
		score, tag = 100, "at_home"
	case complexity <= 3:
		score, tag = 60, "minor_shunt"
	default:
		score, tag = 30, "major_shunt"
	}

	return Result{Rule: Stabling, Score: score, CanInduct: true, StatusTag: tag}
}

// isTerminalLocation reports whether a location name identifies a
// terminal station. Depot/stabling topology is not yet modeled as a
// first-class entity, so this is a naming-convention heuristic pending
// a proper yard-graph lookup.
func isTerminalLocation(location string) bool {
	return strings.Contains(strings.ToUpper(location), "TERMINAL")
}
