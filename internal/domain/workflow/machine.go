package workflow

import "context"

// StateMachine tracks a current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger has at least one transition from the current state.
	// Guards are not evaluated.
	CanFire(trigger Trigger) bool

	// Peek returns the state Fire would move to, without moving
	Peek(ctx context.Context, trigger Trigger) (State, error)

	// Fire executes the trigger, transitioning to the new state if allowed
	Fire(ctx context.Context, trigger Trigger) error

	// PermittedTriggers returns the triggers configured for the current state, sorted
	PermittedTriggers() []Trigger
}
