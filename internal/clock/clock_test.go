package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFakeAfterFiresOnAdvance(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := NewFake(start)

	ch := c.After(5 * time.Minute)
	select {
	case <-ch:
		t.Fatal("fired before advance")
	default:
	}

	c.Advance(5 * time.Minute)
	select {
	case got := <-ch:
		assert.Equal(t, start.Add(5*time.Minute), got)
	default:
		t.Fatal("did not fire after advance")
	}
}

func TestFakeAfterZeroOrPastDuration(t *testing.T) {
	c := NewFake(time.Now())
	ch := c.After(0)
	select {
	case <-ch:
	default:
		t.Fatal("expected immediate fire for zero duration")
	}
}

func TestCronTriggerHourly(t *testing.T) {
	c := NewFake(time.Date(2026, 1, 1, 10, 15, 0, 0, time.UTC))
	trig := NewHourlyTrigger(c)
	next := trig.Next(c.Now())
	assert.Equal(t, time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC), next)
}

func TestCronTriggerDaily(t *testing.T) {
	c := NewFake(time.Date(2026, 1, 1, 23, 0, 0, 0, time.UTC))
	trig := NewDailyTrigger(c, 6*time.Hour, 22*time.Hour)
	next := trig.Next(c.Now())
	assert.Equal(t, time.Date(2026, 1, 2, 6, 0, 0, 0, time.UTC), next)
}

func TestSuspendableTimerPauseResume(t *testing.T) {
	c := NewFake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	timer := NewSuspendableTimer(c, 10*time.Second)

	c.Advance(4 * time.Second)
	timer.Pause()
	c.Advance(100 * time.Second) // must not count while paused
	timer.Resume()
	c.Advance(4 * time.Second)

	remaining := timer.Remaining()
	assert.Equal(t, 2*time.Second, remaining)
	require.False(t, timer.Expired())

	c.Advance(3 * time.Second)
	assert.True(t, timer.Expired())
}
