package clock

import "time"

// CronTrigger fires either on hourly boundaries or at a fixed set of
// daily local times, depending on how it was built (used by the status
// loop for its hourly sweep and for the cleaning start/end windows,
// §4.6).
type CronTrigger struct {
	clock     Clock
	dailyAt   []time.Duration // offsets from local midnight
	hourly    bool
}

// NewHourlyTrigger fires once every hour, aligned to the hour boundary.
func NewHourlyTrigger(c Clock) *CronTrigger {
	return &CronTrigger{clock: c, hourly: true}
}

// NewDailyTrigger fires once per day at each of the given offsets from
// midnight (e.g. 6h for 06:00, 22h for 22:00).
func NewDailyTrigger(c Clock, offsets ...time.Duration) *CronTrigger {
	return &CronTrigger{clock: c, dailyAt: offsets}
}

// Next returns the next instant this trigger fires strictly after now;
// a firing time equal to now is pushed to the following hour or day.
func (t *CronTrigger) Next(now time.Time) time.Time {
	if t.hourly {
		return now.Truncate(time.Hour).Add(time.Hour)
	}
	midnight := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	var best time.Time
	for _, off := range t.dailyAt {
		candidate := midnight.Add(off)
		if candidate.Before(now) || candidate.Equal(now) {
			candidate = candidate.AddDate(0, 0, 1)
		}
		if best.IsZero() || candidate.Before(best) {
			best = candidate
		}
	}
	return best
}

// Wait blocks until the trigger's next firing, or until done is
// closed, whichever happens first. Returns false if done fired.
func (t *CronTrigger) Wait(done <-chan struct{}) bool {
	now := t.clock.Now()
	next := t.Next(now)
	select {
	case <-t.clock.After(next.Sub(now)):
		return true
	case <-done:
		return false
	}
}
