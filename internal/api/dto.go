package api

import (
	"time"

	"github.com/metrofleet/induction/internal/domain"
	"github.com/metrofleet/induction/internal/simulator"
)

// scenarioRequest names the (date, shift) a scenario is evaluated
// against; constraints are left to the Decision Engine/Optimizer's own
// configuration rather than re-specified per call.
type scenarioRequest struct {
	Date  dateDTO      `json:"date"`
	Shift domain.Shift `json:"shift"`
}

type dateDTO struct {
	Year  int `json:"year"`
	Month int `json:"month"`
	Day   int `json:"day"`
}

func (d dateDTO) toDomain() domain.ScheduleDate {
	return domain.ScheduleDate{Year: d.Year, Month: d.Month, Day: d.Day}
}

type generateDecisionRequest struct {
	scenarioRequest
}

type optimizeRequest struct {
	scenarioRequest
}

type optimizeResponse struct {
	RunID string `json:"run_id"`
}

type cancelRunResponse struct {
	Status string `json:"status"`
}

type statusSweepResponse struct {
	Examined    int                  `json:"examined"`
	Transitions []domain.StatusTransition `json:"transitions"`
	RanAt       time.Time            `json:"ran_at"`
}

// whatIfRequest mirrors §4.5/§6: a base scenario plus an ordered list
// of named variations, each a bundle of typed overlays.
type whatIfRequest struct {
	Base       scenarioRequest   `json:"base"`
	Variations []variationDTO    `json:"variations"`
}

type variationDTO struct {
	Name                  string                     `json:"name"`
	Description           string                     `json:"description"`
	FitnessModifications  []fitnessModificationDTO   `json:"fitness_modifications"`
	JobCardModifications  []jobCardModificationDTO   `json:"jobcard_modifications"`
	TrainsetModifications []trainsetModificationDTO  `json:"trainset_modifications"`
}

type fitnessModificationDTO struct {
	TrainsetID   string                     `json:"trainset_id"`
	NewExpiresAt *time.Time                 `json:"new_expires_at,omitempty"`
	NewStatus    *domain.CertificateStatus  `json:"new_status,omitempty"`
}

type jobCardModificationDTO struct {
	JobCardID   string               `json:"jobcard_id"`
	NewStatus   *domain.JobCardStatus `json:"new_status,omitempty"`
	NewPriority *domain.Priority      `json:"new_priority,omitempty"`
}

type trainsetModificationDTO struct {
	TrainsetID  string         `json:"trainset_id"`
	NewStatus   *domain.Status `json:"new_status,omitempty"`
	NewMileage  *float64       `json:"new_mileage,omitempty"`
	NewLocation *string        `json:"new_location,omitempty"`
}

func (v variationDTO) toDomain() simulator.Variation {
	out := simulator.Variation{Name: v.Name, Description: v.Description}
	for _, f := range v.FitnessModifications {
		out.FitnessModifications = append(out.FitnessModifications, simulator.FitnessModification{
			TrainsetID:   f.TrainsetID,
			NewExpiresAt: f.NewExpiresAt,
			NewStatus:    f.NewStatus,
		})
	}
	for _, j := range v.JobCardModifications {
		out.JobCardModifications = append(out.JobCardModifications, simulator.JobCardModification{
			JobCardID:   j.JobCardID,
			NewStatus:   j.NewStatus,
			NewPriority: j.NewPriority,
		})
	}
	for _, t := range v.TrainsetModifications {
		out.TrainsetModifications = append(out.TrainsetModifications, simulator.TrainsetModification{
			TrainsetID:  t.TrainsetID,
			NewStatus:   t.NewStatus,
			NewMileage:  t.NewMileage,
			NewLocation: t.NewLocation,
		})
	}
	return out
}

type subscribeEventDTO struct {
	Seq       uint64       `json:"seq"`
	Topic     domain.Topic `json:"topic"`
	Payload   any          `json:"payload"`
	EmittedAt time.Time    `json:"emitted_at"`
}

func eventToDTO(ev domain.Event) subscribeEventDTO {
	return subscribeEventDTO{Seq: ev.Seq, Topic: ev.Kind, Payload: ev.Payload, EmittedAt: ev.EmittedAt}
}
