package health

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/metrofleet/induction/internal/bus"
	"github.com/metrofleet/induction/internal/clock"
	"github.com/metrofleet/induction/internal/config"
	"github.com/metrofleet/induction/internal/domain"
)

func TestStoreCheckerHealthyWhenProbeSucceeds(t *testing.T) {
	c := NewStoreChecker(func(ctx context.Context) error { return nil })
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

func TestStoreCheckerUnhealthyWhenProbeFails(t *testing.T) {
	c := NewStoreChecker(func(ctx context.Context) error { return errors.New("boom") })
	res := c.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, res.Status)
	assert.Equal(t, "boom", res.Error)
}

func TestBusCheckerDegradedWhenSubscriptionNearCapacity(t *testing.T) {
	b := bus.New(config.BusConfig{QueueDepth: 2}, clock.NewFake(time.Now()))
	sub, err := b.Subscribe(bus.SubscribeOptions{Topics: []domain.Topic{domain.TopicDecisionGenerated}, Capacity: 2})
	assert.NoError(t, err)
	defer sub.Close()

	_, _ = b.Publish(context.Background(), domain.TopicDecisionGenerated, "", "payload")
	_, _ = b.Publish(context.Background(), domain.TopicDecisionGenerated, "", "payload")

	c := NewBusChecker(b, 0.5)
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}

func TestBusCheckerHealthyWhenQueuesAreEmpty(t *testing.T) {
	b := bus.New(config.BusConfig{QueueDepth: 8}, clock.NewFake(time.Now()))
	sub, err := b.Subscribe(bus.SubscribeOptions{Topics: []domain.Topic{domain.TopicDecisionGenerated}})
	assert.NoError(t, err)
	defer sub.Close()

	c := NewBusChecker(b, 0.5)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}

func TestStatusLoopCheckerDegradedWhenNeverSwept(t *testing.T) {
	c := NewStatusLoopChecker(func() time.Time { return time.Time{} }, time.Hour)
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}

func TestStatusLoopCheckerDegradedWhenStale(t *testing.T) {
	c := NewStatusLoopChecker(func() time.Time { return time.Now().Add(-2 * time.Hour) }, time.Hour)
	assert.Equal(t, StatusDegraded, c.Check(context.Background()).Status)
}

func TestStatusLoopCheckerHealthyWhenRecent(t *testing.T) {
	c := NewStatusLoopChecker(func() time.Time { return time.Now() }, time.Hour)
	assert.Equal(t, StatusHealthy, c.Check(context.Background()).Status)
}
