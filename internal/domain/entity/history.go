package entity

import (
	"encoding/json"
	"fmt"
	"time"
)

// ApprovalAction tags an approval ledger entry
type ApprovalAction string

const (
	ActionSubmitForApproval ApprovalAction = "submit_for_approval"
	ActionStartReview       ApprovalAction = "start_review"
	ActionApprove           ApprovalAction = "approve"
	ActionReject            ApprovalAction = "reject"
	ActionWithdraw          ApprovalAction = "withdraw"
	ActionRequestChanges    ApprovalAction = "request_changes"
)

// DeletionAction tags a deletion ledger entry
type DeletionAction string

const (
	ActionSoftDelete DeletionAction = "SOFT_DELETE"
	ActionHardDelete DeletionAction = "HARD_DELETE"
	ActionRestore    DeletionAction = "RESTORE"
	ActionBulkDelete DeletionAction = "BULK_DELETE"
)

// ApprovalHistory is one row of the approval ledger. Never updated or deleted.
type ApprovalHistory struct {
	ID         int64           `json:"id"`
	ProcessID  int64           `json:"process_id"`
	ActorID    string          `json:"actor_id"`
	FromStatus ProcessStatus   `json:"from_status"`
	ToStatus   ProcessStatus   `json:"to_status"`
	Action     ApprovalAction  `json:"action"`
	Comment    string          `json:"comment,omitempty"`
	Details    json.RawMessage `json:"details"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// DeletionHistory is one row of the deletion ledger. Never updated or deleted.
type DeletionHistory struct {
	ID         int64           `json:"id"`
	ProcessID  int64           `json:"process_id"`
	ActorID    string          `json:"actor_id"`
	FromStatus ProcessStatus   `json:"from_status"`
	ToStatus   ProcessStatus   `json:"to_status"`
	Action     DeletionAction  `json:"action"`
	Comment    string          `json:"comment,omitempty"`
	Details    json.RawMessage `json:"details"`
	OccurredAt time.Time       `json:"occurred_at"`
}

// ApprovalDetails is the typed payload of an approval ledger entry.
// The concrete type determines the entry's action.
type ApprovalDetails interface {
	ApprovalAction() ApprovalAction
}

// DeletionDetails is the typed payload of a deletion ledger entry.
// The concrete type determines the entry's action.
type DeletionDetails interface {
	DeletionAction() DeletionAction
}

// SubmitDetails accompanies submit_for_approval
type SubmitDetails struct {
	RequestID int64 `json:"request_id"`
}

// ReviewDetails accompanies start_review
type ReviewDetails struct {
	RequestID int64 `json:"request_id"`
}

// ApproveDetails accompanies approve
type ApproveDetails struct {
	RequestID     int64  `json:"request_id"`
	VersionID     int64  `json:"version_id,omitempty"`
	VersionNumber string `json:"version_number,omitempty"`
}

// RejectDetails accompanies reject
type RejectDetails struct {
	RequestID int64  `json:"request_id"`
	Reason    string `json:"reason"`
}

// WithdrawDetails accompanies withdraw
type WithdrawDetails struct {
	RequestID int64 `json:"request_id"`
}

// RequestChangesDetails accompanies request_changes, written when a rejected or
// published process is revised back to draft through an edit session
type RequestChangesDetails struct {
	SessionID     string `json:"session_id"`
	VersionID     int64  `json:"version_id,omitempty"`
	VersionNumber string `json:"version_number,omitempty"`
}

func (SubmitDetails) ApprovalAction() ApprovalAction         { return ActionSubmitForApproval }
func (ReviewDetails) ApprovalAction() ApprovalAction         { return ActionStartReview }
func (ApproveDetails) ApprovalAction() ApprovalAction        { return ActionApprove }
func (RejectDetails) ApprovalAction() ApprovalAction         { return ActionReject }
func (WithdrawDetails) ApprovalAction() ApprovalAction       { return ActionWithdraw }
func (RequestChangesDetails) ApprovalAction() ApprovalAction { return ActionRequestChanges }

// SoftDeleteDetails accompanies SOFT_DELETE
type SoftDeleteDetails struct {
	Reason             string `json:"reason"`
	Forced             bool   `json:"forced"`
	WithdrawnRequestID int64  `json:"withdrawn_request_id,omitempty"`
}

// HardDeleteDetails accompanies HARD_DELETE; it preserves what the removed row looked like
type HardDeleteDetails struct {
	Reason       string `json:"reason"`
	Title        string `json:"title"`
	CreatedBy    string `json:"created_by"`
	VersionCount int    `json:"version_count"`
}

// RestoreDetails accompanies RESTORE
type RestoreDetails struct {
	Reason    string     `json:"reason"`
	DeletedAt *time.Time `json:"deleted_at,omitempty"`
	DeletedBy string     `json:"deleted_by,omitempty"`
}

// BulkDeleteDetails accompanies BULK_DELETE
type BulkDeleteDetails struct {
	Reason     string  `json:"reason"`
	Requested  int     `json:"requested"`
	Succeeded  int     `json:"succeeded"`
	Failed     int     `json:"failed"`
	ProcessIDs []int64 `json:"process_ids"`
}

func (SoftDeleteDetails) DeletionAction() DeletionAction { return ActionSoftDelete }
func (HardDeleteDetails) DeletionAction() DeletionAction { return ActionHardDelete }
func (RestoreDetails) DeletionAction() DeletionAction    { return ActionRestore }
func (BulkDeleteDetails) DeletionAction() DeletionAction { return ActionBulkDelete }

// NewApprovalHistory builds a ledger row whose action is derived from the details type
func NewApprovalHistory(processID int64, actorID string, from, to ProcessStatus, comment string, details ApprovalDetails) (*ApprovalHistory, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal approval details: %w", err)
	}
	return &ApprovalHistory{
		ProcessID:  processID,
		ActorID:    actorID,
		FromStatus: from,
		ToStatus:   to,
		Action:     details.ApprovalAction(),
		Comment:    comment,
		Details:    raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// NewDeletionHistory builds a ledger row whose action is derived from the details type
func NewDeletionHistory(processID int64, actorID string, from, to ProcessStatus, comment string, details DeletionDetails) (*DeletionHistory, error) {
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, fmt.Errorf("marshal deletion details: %w", err)
	}
	return &DeletionHistory{
		ProcessID:  processID,
		ActorID:    actorID,
		FromStatus: from,
		ToStatus:   to,
		Action:     details.DeletionAction(),
		Comment:    comment,
		Details:    raw,
		OccurredAt: time.Now().UTC(),
	}, nil
}

// DecodeDetails returns the typed payload of an approval ledger row
func (h *ApprovalHistory) DecodeDetails() (ApprovalDetails, error) {
	var target ApprovalDetails
	switch h.Action {
	case ActionSubmitForApproval:
		target = &SubmitDetails{}
	case ActionStartReview:
		target = &ReviewDetails{}
	case ActionApprove:
		target = &ApproveDetails{}
	case ActionReject:
		target = &RejectDetails{}
	case ActionWithdraw:
		target = &WithdrawDetails{}
	case ActionRequestChanges:
		target = &RequestChangesDetails{}
	default:
		return nil, fmt.Errorf("unknown approval action %q", h.Action)
	}
	if err := json.Unmarshal(h.Details, target); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", h.Action, err)
	}
	return target, nil
}

// DecodeDetails returns the typed payload of a deletion ledger row
func (h *DeletionHistory) DecodeDetails() (DeletionDetails, error) {
	var target DeletionDetails
	switch h.Action {
	case ActionSoftDelete:
		target = &SoftDeleteDetails{}
	case ActionHardDelete:
		target = &HardDeleteDetails{}
	case ActionRestore:
		target = &RestoreDetails{}
	case ActionBulkDelete:
		target = &BulkDeleteDetails{}
	default:
		return nil, fmt.Errorf("unknown deletion action %q", h.Action)
	}
	if err := json.Unmarshal(h.Details, target); err != nil {
		return nil, fmt.Errorf("decode %s details: %w", h.Action, err)
	}
	return target, nil
}
