package domain

import "time"

// RunStatus is the closed set of states an OptimizationRun moves
// through. QUEUED -> RUNNING -> one of the three terminal states.
type RunStatus string

const (
	RunQueued    RunStatus = "QUEUED"
	RunRunning   RunStatus = "RUNNING"
	RunCompleted RunStatus = "COMPLETED"
	RunFailed    RunStatus = "FAILED"
	RunCancelled RunStatus = "CANCELLED"
)

// IsTerminal reports whether the run has finished and will not
// transition further.
func (s RunStatus) IsTerminal() bool {
	return s == RunCompleted || s == RunFailed || s == RunCancelled
}

// Solution is one candidate schedule assignment produced by the
// optimizer, scored against the active objective vector.
type Solution struct {
	Assignments map[string]EntryDecision // trainset id -> decision
	Order       []string                 // trainset ids selected for IN_SERVICE, in running order
	Objectives  map[string]float64       // objective name -> value
	Fitness     float64                  // weighted sum of Objectives, used for tournament selection
	Rank        int                      // Pareto front index, 0 = nondominated
	Crowding    float64
}

// OptimizationRun tracks the lifecycle of one NSGA-II-style search,
// from request through to a best solution and its Pareto front.
type OptimizationRun struct {
	ID           string
	RequestedAt  time.Time
	StartedAt    *time.Time
	FinishedAt   *time.Time
	Algorithm    string
	Parameters   map[string]any
	Status       RunStatus
	Progress     float64 // 0..1
	BestSolution *Solution
	ParetoFront  []Solution
	Metrics      map[string]float64
	Error        string
}
