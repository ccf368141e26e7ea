package health

import (
	"context"
	"time"

	"github.com/metrofleet/induction/internal/bus"
)

// StoreChecker probes the Fleet Store Adapter by asking for every
// active trainset; a store that times out or errors is unhealthy
// rather than merely degraded, since nothing else in the system can
// function without it.
type StoreChecker struct {
	activeTrainsets func(ctx context.Context) error
}

// NewStoreChecker builds a StoreChecker from a closure so it composes
// with store.Store, store.Instrumented, or a test double without this
// package importing internal/store.
func NewStoreChecker(probe func(ctx context.Context) error) *StoreChecker {
	return &StoreChecker{activeTrainsets: probe}
}

func (c *StoreChecker) Name() string     { return "fleet_store" }
func (c *StoreChecker) Type() CheckType  { return CheckHealth | CheckReadiness }
func (c *StoreChecker) Check(ctx context.Context) CheckResult {
	if err := c.activeTrainsets(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: err.Error(), Message: "fleet store unreachable"}
	}
	return CheckResult{Status: StatusHealthy, Message: "fleet store reachable"}
}

// BusChecker reports degraded when any active subscription's queue is
// past a configured saturation threshold, a sign the bus is about to
// start dropping or blocking publishers (§4.8 backpressure).
type BusChecker struct {
	b         *bus.Bus
	threshold float64
}

// NewBusChecker builds a BusChecker; threshold is the queue-fill
// fraction (0..1) above which a subscription is reported degraded.
func NewBusChecker(b *bus.Bus, threshold float64) *BusChecker {
	return &BusChecker{b: b, threshold: threshold}
}

func (c *BusChecker) Name() string    { return "event_bus" }
func (c *BusChecker) Type() CheckType { return CheckHealth }

func (c *BusChecker) Check(ctx context.Context) CheckResult {
	saturated := 0
	for _, stats := range c.b.AllStats() {
		if stats.Capacity == 0 {
			continue
		}
		if float64(stats.QueueLen)/float64(stats.Capacity) >= c.threshold {
			saturated++
		}
	}
	if saturated > 0 {
		return CheckResult{Status: StatusDegraded, Message: "one or more subscriptions near capacity"}
	}
	return CheckResult{Status: StatusHealthy, Message: "subscriptions within capacity"}
}

// StatusLoopChecker flags the autonomous status loop as degraded once
// its last successful sweep is older than staleAfter, a sign the
// hourly sweep trigger has stopped firing (§4.6).
type StatusLoopChecker struct {
	lastSweptAt func() time.Time
	staleAfter  time.Duration
}

// NewStatusLoopChecker builds a StatusLoopChecker from a closure over
// the loop's last successful sweep timestamp.
func NewStatusLoopChecker(lastSweptAt func() time.Time, staleAfter time.Duration) *StatusLoopChecker {
	return &StatusLoopChecker{lastSweptAt: lastSweptAt, staleAfter: staleAfter}
}

func (c *StatusLoopChecker) Name() string    { return "status_loop" }
func (c *StatusLoopChecker) Type() CheckType { return CheckHealth | CheckReadiness }

func (c *StatusLoopChecker) Check(ctx context.Context) CheckResult {
	last := c.lastSweptAt()
	if last.IsZero() {
		return CheckResult{Status: StatusDegraded, Message: "no sweep has run yet"}
	}
	if age := time.Since(last); age > c.staleAfter {
		return CheckResult{Status: StatusDegraded, Message: "last sweep is stale"}
	}
	return CheckResult{Status: StatusHealthy, Message: "sweeping on schedule"}
}
