package domain

import "time"

// Priority is shared by JobCard severity and (with a different range)
// BrandingRecord weighting; JobCard uses the four-level enum below.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// JobCardStatus is the closed set of work-order states.
type JobCardStatus string

const (
	JobCardOpen       JobCardStatus = "OPEN"
	JobCardInProgress JobCardStatus = "IN_PROGRESS"
	JobCardOnHold     JobCardStatus = "ON_HOLD"
	JobCardCompleted  JobCardStatus = "COMPLETED"
	JobCardCancelled  JobCardStatus = "CANCELLED"
)

// IsTerminal reports whether the status admits no further transitions.
func (s JobCardStatus) IsTerminal() bool {
	return s == JobCardCompleted || s == JobCardCancelled
}

// JobCard is a maintenance work order, optionally tied to a trainset.
type JobCard struct {
	ID             string
	TrainsetID     string // optional: empty for depot-wide work orders
	ExternalID     string // optional: source system reference
	Title          string
	Description    string
	Priority       Priority
	Status         JobCardStatus
	Category       string
	EstimatedHours *float64
	ActualHours    *float64
	ScheduledAt    *time.Time
	DueAt          *time.Time
	CompletedAt    *time.Time
}

// Open reports whether the work order is still outstanding against the
// trainset (not completed or cancelled).
func (j JobCard) Open() bool {
	return !j.Status.IsTerminal()
}

// Overdue reports whether the work order has passed its due date while
// still open.
func (j JobCard) Overdue(now time.Time) bool {
	return j.Open() && j.DueAt != nil && j.DueAt.Before(now)
}
