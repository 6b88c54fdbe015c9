package workflow

// State is a process lifecycle state. Values match entity.ProcessStatus.
type State string

const (
	StateDraft           State = "Draft"
	StatePendingApproval State = "PendingApproval"
	StateInReview        State = "InReview"
	StateApproved        State = "Approved"
	StateRejected        State = "Rejected"
	StatePublished       State = "Published"
	StateDeprecated      State = "Deprecated"
	StateArchived        State = "Archived"
	StateDeleted         State = "Deleted"
)

var validStates = map[State]bool{
	StateDraft:           true,
	StatePendingApproval: true,
	StateInReview:        true,
	StateApproved:        true,
	StateRejected:        true,
	StatePublished:       true,
	StateDeprecated:      true,
	StateArchived:        true,
	StateDeleted:         true,
}

// AllStates returns every valid state
func AllStates() []State {
	return []State{
		StateDraft, StatePendingApproval, StateInReview, StateApproved, StateRejected,
		StatePublished, StateDeprecated, StateArchived, StateDeleted,
	}
}

// IsAwaitingDecision reports whether an approval request is open in this state
func (s State) IsAwaitingDecision() bool {
	return s == StatePendingApproval || s == StateInReview
}

// String returns the string representation of the state
func (s State) String() string {
	return string(s)
}

// IsValid returns true if the state is a valid lifecycle state
func (s State) IsValid() bool {
	return validStates[s]
}
