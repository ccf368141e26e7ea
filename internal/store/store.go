// Package store defines the Fleet Store Adapter (§4.1): the single
// seam between the induction core's reasoning components and durable
// fleet data. Concrete backends live in sibling packages
// (internal/store/sqlstore, internal/store/auditlog); this package
// holds the interface, the in-memory reference implementation, and the
// instrumented decorator every backend is wrapped in.
package store

import (
	"context"

	"github.com/metrofleet/induction/internal/domain"
)

// Tx bundles a multi-entity write with a caller-supplied idempotency
// key (§9 "Fleet Store Adapter transactions"): replaying the same key
// against an already-applied Tx is a no-op that returns the original
// result, not a second write.
type Tx struct {
	IdempotencyKey string
	Decision       *domain.InductionDecision
	Schedule       *domain.Schedule
	Run            *domain.OptimizationRun
}

// Store is the Fleet Store Adapter's full surface (§4.1). Every method
// returns apperr-typed errors (NotFound, Conflict, StoreUnavailable)
// rather than panicking or returning bare errors.
type Store interface {
	// Snapshot returns the mutually-consistent Context for date/shift.
	Snapshot(ctx context.Context, date domain.ScheduleDate, shift domain.Shift) (domain.Context, error)

	// ActiveTrainsets returns every active trainset, independent of any
	// particular shift's snapshot; used by the status loop.
	ActiveTrainsets(ctx context.Context) ([]domain.Trainset, error)

	// ApplyTransition persists one trainset status change and its audit
	// row atomically.
	ApplyTransition(ctx context.Context, update domain.StatusTransition) error

	// Commit applies a logical transaction once, with idempotency-key
	// deduplication; a failed commit is not retried.
	Commit(ctx context.Context, tx Tx) error

	// GetOptimizationRun looks up a previously committed run by id.
	GetOptimizationRun(ctx context.Context, runID string) (domain.OptimizationRun, error)

	// GetInductionDecision looks up a previously committed decision by id.
	GetInductionDecision(ctx context.Context, decisionID string) (domain.InductionDecision, error)
}
