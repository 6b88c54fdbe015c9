package event

// Type identifies the type of domain event
type Type string

const (
	TypeApprovalSubmitted Type = "approval.submitted"
	TypeApprovalApproved  Type = "approval.approved"
	TypeApprovalRejected  Type = "approval.rejected"
	TypeApprovalWithdrawn Type = "approval.withdrawn"
	TypeApprovalCommented Type = "approval.commented"

	TypeProcessDeleted     Type = "process.deleted"
	TypeProcessRestored    Type = "process.restored"
	TypeProcessHardDeleted Type = "process.hard_deleted"

	TypeEditCompleted        Type = "edit.completed"
	TypeEditConflictDetected Type = "edit.conflict_detected"
)

// String returns the string representation of the event type
func (t Type) String() string {
	return string(t)
}

// IsValid checks if the event type is one of the defined constants
func (t Type) IsValid() bool {
	switch t {
	case TypeApprovalSubmitted,
		TypeApprovalApproved,
		TypeApprovalRejected,
		TypeApprovalWithdrawn,
		TypeApprovalCommented,
		TypeProcessDeleted,
		TypeProcessRestored,
		TypeProcessHardDeleted,
		TypeEditCompleted,
		TypeEditConflictDetected:
		return true
	default:
		return false
	}
}
