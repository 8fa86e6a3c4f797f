// Package statemachine carries a small generic state machine in Rob
// Pike's style: a state is a function that inspects its entity and
// returns the state that should handle the next dispatch.
package statemachine

import (
	"fmt"
	"sync"
)

// StateFn is a state of the machine for entities of type T. Dispatching
// runs the function and stores its return value as the next state.
// Returning nil parks the machine (no further transitions).
type StateFn[T any] func(*T) StateFn[T]

// Machine binds an entity to its current state function. All methods are
// safe for concurrent use.
type Machine[T any] struct {
	mu     sync.RWMutex
	entity *T
	state  StateFn[T]
}

// New builds a machine for entity starting in the given state. The
// initial state function is stored, not run.
func New[T any](entity *T, initial StateFn[T]) *Machine[T] {
	return &Machine[T]{entity: entity, state: initial}
}

// Dispatch runs fn against the entity and stores the state it returns.
func (m *Machine[T]) Dispatch(fn StateFn[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fn == nil {
		return
	}
	m.state = fn(m.entity)
}

// Step dispatches the current state, advancing the machine one tick.
func (m *Machine[T]) Step() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state == nil {
		return
	}
	m.state = m.state(m.entity)
}

// Current returns the current state function.
func (m *Machine[T]) Current() StateFn[T] {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Set stores fn as the current state without running it.
func (m *Machine[T]) Set(fn StateFn[T]) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.state = fn
}

// Is reports whether the machine currently sits in fn. Function values
// are not comparable in Go, so identity goes through the printed
// pointer, the same trick callers would otherwise repeat per site.
func (m *Machine[T]) Is(fn StateFn[T]) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fmt.Sprintf("%p", m.state) == fmt.Sprintf("%p", fn)
}
