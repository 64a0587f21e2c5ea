// Package fsm implements the closed-table state machines for rigs,
// devices, and streams. Every transition table is exhaustive: a
// transition not present in the table is a programming error, not a
// runtime condition, and is reported by panicking with
// *IllegalTransitionError rather than returning an error value.
package fsm

import "fmt"

// IllegalTransitionError is panicked when a caller requests a transition
// absent from the closed table for an entity kind.
type IllegalTransitionError struct {
	Entity string
	From   string
	Event  string
}

func (e *IllegalTransitionError) Error() string {
	return fmt.Sprintf("fsm: illegal %s transition: %s on event %s", e.Entity, e.From, e.Event)
}

func illegal(entity, from, event string) {
	panic(&IllegalTransitionError{Entity: entity, From: from, Event: event})
}
