package entity

// ProcessStatus is the lifecycle status of a Process
type ProcessStatus string

const (
	StatusDraft           ProcessStatus = "Draft"
	StatusPendingApproval ProcessStatus = "PendingApproval"
	StatusInReview        ProcessStatus = "InReview"
	StatusApproved        ProcessStatus = "Approved"
	StatusRejected        ProcessStatus = "Rejected"
	StatusPublished       ProcessStatus = "Published"
	StatusDeprecated      ProcessStatus = "Deprecated"
	StatusArchived        ProcessStatus = "Archived"
	StatusDeleted         ProcessStatus = "Deleted"
)

// IsValid checks if the status is one of the defined constants
func (s ProcessStatus) IsValid() bool {
	switch s {
	case StatusDraft, StatusPendingApproval, StatusInReview, StatusApproved, StatusRejected,
		StatusPublished, StatusDeprecated, StatusArchived, StatusDeleted:
		return true
	default:
		return false
	}
}

// ApprovalStatus is the status of a single ApprovalRequest
type ApprovalStatus string

const (
	ApprovalPending    ApprovalStatus = "Pending"
	ApprovalInProgress ApprovalStatus = "InProgress"
	ApprovalApproved   ApprovalStatus = "Approved"
	ApprovalRejected   ApprovalStatus = "Rejected"
	ApprovalWithdrawn  ApprovalStatus = "Withdrawn"
)

// IsOpen reports whether the request still awaits a decision
func (s ApprovalStatus) IsOpen() bool {
	return s == ApprovalPending || s == ApprovalInProgress
}

// IsTerminal reports whether the request can no longer change
func (s ApprovalStatus) IsTerminal() bool {
	return s == ApprovalApproved || s == ApprovalRejected || s == ApprovalWithdrawn
}

// SessionStatus is the status of an EditSession
type SessionStatus string

const (
	SessionActive    SessionStatus = "Active"
	SessionCompleted SessionStatus = "Completed"
	SessionAbandoned SessionStatus = "Abandoned"
)

// CommentType classifies an approval comment
type CommentType string

const (
	CommentGeneral    CommentType = "General"
	CommentQuestion   CommentType = "Question"
	CommentSuggestion CommentType = "Suggestion"
	CommentIssue      CommentType = "Issue"
	CommentApproval   CommentType = "Approval"
	CommentRejection  CommentType = "Rejection"
)

// IsValid checks if the comment type is one of the defined constants
func (t CommentType) IsValid() bool {
	switch t {
	case CommentGeneral, CommentQuestion, CommentSuggestion, CommentIssue, CommentApproval, CommentRejection:
		return true
	default:
		return false
	}
}

// StepType classifies a process step
type StepType string

const (
	StepStart      StepType = "Start"
	StepAction     StepType = "Action"
	StepDecision   StepType = "Decision"
	StepApproval   StepType = "Approval"
	StepReview     StepType = "Review"
	StepWait       StepType = "Wait"
	StepEnd        StepType = "End"
	StepSubprocess StepType = "Subprocess"
)

// IsValid checks if the step type is one of the defined constants
func (t StepType) IsValid() bool {
	switch t {
	case StepStart, StepAction, StepDecision, StepApproval, StepReview, StepWait, StepEnd, StepSubprocess:
		return true
	default:
		return false
	}
}

// VersionChangeType selects which part of the version number is bumped
type VersionChangeType string

const (
	ChangePatch VersionChangeType = "patch"
	ChangeMinor VersionChangeType = "minor"
	ChangeMajor VersionChangeType = "major"
)

// Permission is a capability held by a user through its roles
type Permission string

const (
	PermViewProcess    Permission = "view_process"
	PermCreateProcess  Permission = "create_process"
	PermEditProcess    Permission = "edit_process"
	PermDeleteProcess  Permission = "delete_process"
	PermApproveProcess Permission = "approve_process"
	PermManageUsers    Permission = "manage_users"
	PermViewAuditLog   Permission = "view_audit_log"
)

// Editing defaults
const (
	DefaultSessionTimeoutMinutes = 30
	DefaultLockTTLMinutes        = 15
	DefaultAutoSaveSeconds       = 30
	DefaultMaxConcurrentSessions = 5
)
