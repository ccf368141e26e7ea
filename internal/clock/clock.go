// Package clock abstracts wall-clock time so the status loop and the
// optimizer's run-timeout checkpoint are testable without sleeping in
// tests. The interface
// follows the teacher's resilience package's small `clock` abstraction,
// exported here since multiple components need to share one fake.
package clock

import "time"

// Clock is the minimal time source every time-sensitive component
// depends on instead of calling time.Now/time.After directly.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

// System is the production Clock backed by the real wall clock.
type System struct{}

func (System) Now() time.Time                         { return time.Now() }
func (System) After(d time.Duration) <-chan time.Time { return time.After(d) }

var _ Clock = System{}
