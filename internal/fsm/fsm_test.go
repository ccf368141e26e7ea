package fsm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type state string
type event string

const (
	stateAvailable state = "AVAILABLE"
	stateMaint     state = "MAINTENANCE"
	stateCleaning  state = "CLEANING"
)

const (
	eventSendToMaint event = "SEND_TO_MAINTENANCE"
	eventMaintDone    event = "MAINTENANCE_DONE"
	eventSendToClean event = "SEND_TO_CLEANING"
)

func testMachine(t *testing.T, guardErr error) *Machine[state, event] {
	t.Helper()
	m, err := New(stateAvailable, []Transition[state, event]{
		{From: stateAvailable, Event: eventSendToMaint, To: stateMaint},
		{From: stateMaint, Event: eventMaintDone, To: stateAvailable},
		{From: stateAvailable, Event: eventSendToClean, To: stateCleaning, Guard: func(ctx context.Context, from state, ev event) error {
			return guardErr
		}},
	})
	require.NoError(t, err)
	return m
}

func TestFireAdvancesState(t *testing.T) {
	m := testMachine(t, nil)
	to, err := m.Fire(context.Background(), eventSendToMaint)
	require.NoError(t, err)
	assert.Equal(t, stateMaint, to)
	assert.Equal(t, stateMaint, m.State())
}

func TestFireRejectsUnknownTransition(t *testing.T) {
	m := testMachine(t, nil)
	_, err := m.Fire(context.Background(), eventMaintDone)
	assert.Error(t, err)
	assert.Equal(t, stateAvailable, m.State())
}

func TestFireHonorsGuardRejection(t *testing.T) {
	guardErr := assert.AnError
	m := testMachine(t, guardErr)
	_, err := m.Fire(context.Background(), eventSendToClean)
	assert.ErrorIs(t, err, guardErr)
	assert.Equal(t, stateAvailable, m.State())
}

func TestDuplicateTransitionRejected(t *testing.T) {
	_, err := New(stateAvailable, []Transition[state, event]{
		{From: stateAvailable, Event: eventSendToMaint, To: stateMaint},
		{From: stateAvailable, Event: eventSendToMaint, To: stateCleaning},
	})
	assert.Error(t, err)
}

func TestCanFireAndTransitions(t *testing.T) {
	m := testMachine(t, nil)
	assert.True(t, m.CanFire(eventSendToMaint))
	assert.False(t, m.CanFire(eventMaintDone))
	assert.ElementsMatch(t, []event{eventSendToMaint, eventSendToClean}, m.Transitions())
}
