package entity

import "time"

// ApprovalRequest is one pending-to-terminal decision cycle over a process
type ApprovalRequest struct {
	ID              int64          `json:"id"`
	ProcessID       int64          `json:"process_id"`
	RequestedBy     string         `json:"requested_by"`
	RequestComment  string         `json:"request_comment,omitempty"`
	Status          ApprovalStatus `json:"status"`
	ApproverID      string         `json:"approver_id,omitempty"`
	DecisionComment string         `json:"decision_comment,omitempty"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	RequestedAt     time.Time      `json:"requested_at"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
	RejectedAt      *time.Time     `json:"rejected_at,omitempty"`
	WithdrawnAt     *time.Time     `json:"withdrawn_at,omitempty"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// DecidedAt returns the approval or rejection time, nil while undecided or withdrawn
func (r *ApprovalRequest) DecidedAt() *time.Time {
	switch r.Status {
	case ApprovalApproved:
		return r.ApprovedAt
	case ApprovalRejected:
		return r.RejectedAt
	default:
		return nil
	}
}

// ApprovalComment is an append-only discussion entry on a request
type ApprovalComment struct {
	ID                int64       `json:"id"`
	ApprovalRequestID int64       `json:"approval_request_id"`
	UserID            string      `json:"user_id"`
	Comment           string      `json:"comment"`
	CommentType       CommentType `json:"comment_type"`
	CreatedAt         time.Time   `json:"created_at"`
}
