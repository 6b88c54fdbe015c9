package workflow

import (
	"context"
	"fmt"

	"github.com/garyjia/process-portal/internal/domain/entity"
	domainwf "github.com/garyjia/process-portal/internal/domain/workflow"
)

// BuildProcessLifecycle creates a state machine configured for the process lifecycle
func BuildProcessLifecycle(initialState domainwf.State) domainwf.StateMachine {
	builder := domainwf.NewBuilder()

	builder.Configure(domainwf.StateDraft).
		Permit(domainwf.TriggerSubmit, domainwf.StatePendingApproval)

	builder.Configure(domainwf.StatePendingApproval).
		Permit(domainwf.TriggerReview, domainwf.StateInReview).
		Permit(domainwf.TriggerApprove, domainwf.StatePublished).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerWithdraw, domainwf.StateDraft)

	builder.Configure(domainwf.StateInReview).
		Permit(domainwf.TriggerApprove, domainwf.StatePublished).
		Permit(domainwf.TriggerReject, domainwf.StateRejected).
		Permit(domainwf.TriggerWithdraw, domainwf.StateDraft)

	builder.Configure(domainwf.StatePublished).
		Permit(domainwf.TriggerRevise, domainwf.StateDraft)

	builder.Configure(domainwf.StateRejected).
		Permit(domainwf.TriggerRevise, domainwf.StateDraft)

	// Every live state can be soft-deleted
	for _, s := range domainwf.AllStates() {
		if s == domainwf.StateDeleted {
			continue
		}
		builder.Configure(s).Permit(domainwf.TriggerDelete, domainwf.StateDeleted)
	}

	builder.Configure(domainwf.StateDeleted).
		Permit(domainwf.TriggerRestore, domainwf.StateDraft)

	return builder.Build(initialState)
}

// Lifecycle resolves process status transitions
type Lifecycle interface {
	// Next returns the status the trigger leads to from current.
	// The error wraps domainwf.ErrInvalidTransition when the move is not configured.
	Next(ctx context.Context, current entity.ProcessStatus, trigger domainwf.Trigger) (entity.ProcessStatus, error)

	// Permitted lists the triggers available from current
	Permitted(current entity.ProcessStatus) []domainwf.Trigger
}

type lifecycle struct{}

// NewLifecycle creates the process lifecycle
func NewLifecycle() Lifecycle {
	return lifecycle{}
}

func (lifecycle) Next(ctx context.Context, current entity.ProcessStatus, trigger domainwf.Trigger) (entity.ProcessStatus, error) {
	state := domainwf.State(current)
	if !state.IsValid() {
		return "", fmt.Errorf("%w: %s", domainwf.ErrInvalidState, current)
	}

	next, err := BuildProcessLifecycle(state).Peek(ctx, trigger)
	if err != nil {
		return "", err
	}
	return entity.ProcessStatus(next), nil
}

func (lifecycle) Permitted(current entity.ProcessStatus) []domainwf.Trigger {
	state := domainwf.State(current)
	if !state.IsValid() {
		return nil
	}
	return BuildProcessLifecycle(state).PermittedTriggers()
}
