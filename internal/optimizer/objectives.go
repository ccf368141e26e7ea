package optimizer

import (
	"time"

	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/rules"
)

// Objective names, the keys used in Solution.Objectives and the
// optimizer's weighted fitness sum.
const (
	ObjectiveServiceReadiness = "service_readiness"
	ObjectiveReliability      = "reliability"
	ObjectiveCostEfficiency   = "cost_efficiency"
	ObjectiveBrandingExposure = "branding_exposure"
	ObjectiveEnergyEfficiency = "energy_efficiency"
)

// ObjectiveFunc scores a selected subset of trainsets against ctx as of
// now, returning a value in [0,100]. Implementations must be pure and
// side-effect free so the optimizer can evaluate them concurrently.
type ObjectiveFunc func(selected []domain.Trainset, ctx domain.Context, now time.Time) float64

// DefaultObjectives returns the five objective scorers named in §4.4.
func DefaultObjectives() map[string]ObjectiveFunc {
	return map[string]ObjectiveFunc{
		ObjectiveServiceReadiness: ServiceReadinessObjective,
		ObjectiveReliability:      ReliabilityObjective,
		ObjectiveCostEfficiency:   CostEfficiencyObjective,
		ObjectiveBrandingExposure: BrandingExposureObjective,
		ObjectiveEnergyEfficiency: EnergyEfficiencyObjective,
	}
}

// ServiceReadinessObjective averages the certificate and work-order
// readiness scores of the selected trainsets: an individual whose
// members are all comfortably eligible scores near 100.
func ServiceReadinessObjective(selected []domain.Trainset, ctx domain.Context, now time.Time) float64 {
	if len(selected) == 0 {
		return 0
	}
	var total float64
	for _, t := range selected {
		cert := rules.EvaluateCertificate(t, ctx, now)
		wo := rules.EvaluateWorkOrder(t, ctx, now)
		total += (float64(cert.Score) + float64(wo.Score)) / 2
	}
	return total / float64(len(selected))
}

// ReliabilityObjective favors newer trainsets not currently past their
// maintenance due date. Exact historical-performance-based reliability
// is unspecified (§9 Open Questions); this is the documented default
// scorer.
func ReliabilityObjective(selected []domain.Trainset, ctx domain.Context, now time.Time) float64 {
	if len(selected) == 0 {
		return 0
	}
	var total float64
	for _, t := range selected {
		age := now.Year() - t.YearBuilt
		if age < 0 {
			age = 0
		}
		score := 100.0 - float64(age)*2.0
		if t.MaintenanceDue(now) {
			score -= 20
		}
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		total += score
	}
	return total / float64(len(selected))
}

// CostEfficiencyObjective rewards a subset whose members sit close to
// the fleet mean mileage: balanced wear reduces the per-trainset
// maintenance cost rate.
func CostEfficiencyObjective(selected []domain.Trainset, ctx domain.Context, now time.Time) float64 {
	if len(selected) == 0 {
		return 0
	}
	var total float64
	for _, t := range selected {
		deviation := rules.MileageDeviation(t, ctx)
		score := 100.0 - deviation*200.0
		if score < 0 {
			score = 0
		}
		total += score
	}
	return total / float64(len(selected))
}

// BrandingExposureObjective scores the selected subset's branding
// delivery as total delivered hours over total daily target hours across
// its members' active campaigns, capped at 100 (100 when none is active).
// §9 Open Question: a linear ratio was chosen over priority-tier
// weighting; remaining contract days do not enter the score.
func BrandingExposureObjective(selected []domain.Trainset, ctx domain.Context, now time.Time) float64 {
	var totalTarget, totalDelivered float64
	for _, t := range selected {
		for _, b := range ctx.BrandingFor(t.ID) {
			if !b.Active(now) {
				continue
			}
			totalTarget += b.TargetHoursPerDay
			totalDelivered += b.DeliveredHours
		}
	}
	if totalTarget == 0 {
		return 100
	}
	ratio := totalDelivered / totalTarget * 100
	if ratio > 100 {
		ratio = 100
	}
	return ratio
}

// EnergyEfficiencyObjective favors trainsets that have accrued fewer
// operational hours per kilometer of mileage, a proxy for traction
// energy spent per unit distance covered.
func EnergyEfficiencyObjective(selected []domain.Trainset, ctx domain.Context, now time.Time) float64 {
	if len(selected) == 0 {
		return 0
	}
	var total float64
	for _, t := range selected {
		if t.CurrentMileage <= 0 {
			total += 50
			continue
		}
		hoursPerKm := t.OperationalHours / t.CurrentMileage
		score := 100.0 - hoursPerKm*500.0
		if score < 0 {
			score = 0
		}
		if score > 100 {
			score = 100
		}
		total += score
	}
	return total / float64(len(selected))
}
