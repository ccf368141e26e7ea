// Package fsm provides a small, generic finite-state-machine runner used
// to drive the trainset status transition graph.
package fsm

import (
	"context"
	"fmt"
	"sync"
)

// Transition describes a single edge in the machine. Guard may reject the
// transition before it takes effect; Action runs the side-effect once the
// guard has passed (store write, event publish, and the like).
type Transition[S ~string, E ~string] struct {
	From   S
	Event  E
	To     S
	Guard  func(ctx context.Context, from S, event E) error
	Action func(ctx context.Context, from S, to S, event E) error
}

// Machine is a strict FSM runner: firing an event not registered for the
// current state is an error, never a no-op.
type Machine[S ~string, E ~string] struct {
	mu    sync.Mutex
	state S
	index map[string]Transition[S, E]
}

// New builds a Machine starting in initial, indexing transitions by
// (from, event). Duplicate (from, event) pairs are rejected.
func New[S ~string, E ~string](initial S, transitions []Transition[S, E]) (*Machine[S, E], error) {
	idx := make(map[string]Transition[S, E], len(transitions))
	for _, t := range transitions {
		k := key(t.From, t.Event)
		if _, exists := idx[k]; exists {
			return nil, fmt.Errorf("fsm: duplicate transition for state=%s event=%s", t.From, t.Event)
		}
		idx[k] = t
	}
	return &Machine[S, E]{state: initial, index: idx}, nil
}

// State returns the machine's current state.
func (m *Machine[S, E]) State() S {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// CanFire reports whether event is a registered transition from the
// current state, without running its guard.
func (m *Machine[S, E]) CanFire(event E) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.index[key(m.state, event)]
	return ok
}

// Fire attempts to apply event atomically: guard runs first and may
// reject the transition, then action runs, then the state advances.
// Guard and Action run outside the machine's lock so they may call back
// into the machine (e.g. to inspect State()) without deadlocking.
func (m *Machine[S, E]) Fire(ctx context.Context, event E) (S, error) {
	m.mu.Lock()
	from := m.state
	t, ok := m.index[key(from, event)]
	if !ok {
		m.mu.Unlock()
		return from, fmt.Errorf("fsm: invalid transition state=%s event=%s", from, event)
	}
	to := t.To
	m.mu.Unlock()

	if t.Guard != nil {
		if err := t.Guard(ctx, from, event); err != nil {
			return from, err
		}
	}
	if t.Action != nil {
		if err := t.Action(ctx, from, to, event); err != nil {
			return from, err
		}
	}

	m.mu.Lock()
	if m.state != from {
		cur := m.state
		m.mu.Unlock()
		return cur, fmt.Errorf("fsm: concurrent transition detected from=%s cur=%s event=%s", from, cur, event)
	}
	m.state = to
	m.mu.Unlock()

	return to, nil
}

// Transitions returns the set of events fireable from the current state.
func (m *Machine[S, E]) Transitions() []E {
	m.mu.Lock()
	defer m.mu.Unlock()
	var events []E
	for _, t := range m.index {
		if t.From == m.state {
			events = append(events, t.Event)
		}
	}
	return events
}

func key[S ~string, E ~string](from S, event E) string {
	return string(from) + "|" + string(event)
}
