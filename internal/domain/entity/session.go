package entity

import "time"

// EditSession is one user's working period over a process. Draft fields are
// overlays: nil means "not edited in this session".
type EditSession struct {
	ID                int64         `json:"id"`
	SessionID         string        `json:"session_id"`
	ProcessID         int64         `json:"process_id"`
	UserID            string        `json:"user_id"`
	Status            SessionStatus `json:"status"`
	Comment           string        `json:"comment,omitempty"`
	CompletionComment string        `json:"completion_comment,omitempty"`
	StartedAt         time.Time     `json:"started_at"`
	LastActivity      time.Time     `json:"last_activity"`
	CompletedAt       *time.Time    `json:"completed_at,omitempty"`
	LastAutoSave      *time.Time    `json:"last_auto_save,omitempty"`
	DraftTitle        *string       `json:"draft_title,omitempty"`
	DraftDescription  *string       `json:"draft_description,omitempty"`
	DraftCategory     *string       `json:"draft_category,omitempty"`
	DraftOwnerID      *string       `json:"draft_owner_id,omitempty"`
	DraftTags         []string      `json:"draft_tags,omitempty"`
	DraftSteps        []ProcessStep `json:"draft_steps,omitempty"`
	CreatedVersionID  *int64        `json:"created_version_id,omitempty"`
}

// DraftContent is a partial edit. Nil fields leave the corresponding overlay untouched.
type DraftContent struct {
	Title         *string       `json:"title,omitempty"`
	Description   *string       `json:"description,omitempty"`
	Category      *string       `json:"category,omitempty"`
	OwnerID       *string       `json:"owner_id,omitempty"`
	Tags          []string      `json:"tags,omitempty"`
	Steps         []ProcessStep `json:"steps,omitempty"`
	ChangeComment string        `json:"change_comment,omitempty"`
}

// Draft field names used in conflict reports
const (
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldCategory    = "category"
	FieldOwner       = "owner"
	FieldTags        = "tags"
	FieldSteps       = "steps"
)

// IsActive reports whether the session is still open
func (s *EditSession) IsActive() bool {
	return s.Status == SessionActive
}

// ApplyDraft copies every non-nil field of c onto the session overlays
func (s *EditSession) ApplyDraft(c DraftContent) {
	if c.Title != nil {
		s.DraftTitle = c.Title
	}
	if c.Description != nil {
		s.DraftDescription = c.Description
	}
	if c.Category != nil {
		s.DraftCategory = c.Category
	}
	if c.OwnerID != nil {
		s.DraftOwnerID = c.OwnerID
	}
	if c.Tags != nil {
		s.DraftTags = append([]string{}, c.Tags...)
	}
	if c.Steps != nil {
		s.DraftSteps = append([]ProcessStep{}, c.Steps...)
	}
}

// DraftFields lists the fields this session has overlaid
func (s *EditSession) DraftFields() []string {
	var fields []string
	if s.DraftTitle != nil {
		fields = append(fields, FieldTitle)
	}
	if s.DraftDescription != nil {
		fields = append(fields, FieldDescription)
	}
	if s.DraftCategory != nil {
		fields = append(fields, FieldCategory)
	}
	if s.DraftOwnerID != nil {
		fields = append(fields, FieldOwner)
	}
	if s.DraftTags != nil {
		fields = append(fields, FieldTags)
	}
	if s.DraftSteps != nil {
		fields = append(fields, FieldSteps)
	}
	return fields
}

// Overlay returns a copy of p with the session's draft fields applied on top
func (s *EditSession) Overlay(p *Process) *Process {
	view := *p
	if s.DraftTitle != nil {
		view.Title = *s.DraftTitle
	}
	if s.DraftDescription != nil {
		view.Description = *s.DraftDescription
	}
	if s.DraftCategory != nil {
		view.Category = *s.DraftCategory
	}
	if s.DraftOwnerID != nil {
		view.OwnerID = *s.DraftOwnerID
	}
	if s.DraftTags != nil {
		view.Tags = NewTags(s.DraftTags)
	} else {
		view.Tags = append([]ProcessTag{}, p.Tags...)
	}
	if s.DraftSteps != nil {
		view.Steps = NormalizeSteps(s.DraftSteps)
	} else {
		view.Steps = append([]ProcessStep{}, p.Steps...)
	}
	return &view
}

// AutoSave is an append-only record of raw draft content at one instant
type AutoSave struct {
	ID        int64     `json:"id"`
	SessionID string    `json:"session_id"`
	ProcessID int64     `json:"process_id"`
	UserID    string    `json:"user_id"`
	Content   string    `json:"content"`
	SavedAt   time.Time `json:"saved_at"`
}

// ConflictResolution records how a detected conflict was settled
type ConflictResolution string

const (
	ResolutionKeepMine   ConflictResolution = "KeepMine"
	ResolutionKeepTheirs ConflictResolution = "KeepTheirs"
	ResolutionMerge      ConflictResolution = "Merge"
	ResolutionCancel     ConflictResolution = "Cancel"
)

// IsValid checks if the resolution is one of the defined constants
func (r ConflictResolution) IsValid() bool {
	switch r {
	case ResolutionKeepMine, ResolutionKeepTheirs, ResolutionMerge, ResolutionCancel:
		return true
	default:
		return false
	}
}

// EditConflict records two sessions that drafted overlapping fields of the same process
type EditConflict struct {
	ID                int64              `json:"id"`
	ProcessID         int64              `json:"process_id"`
	SessionID1        string             `json:"session_id_1"`
	UserID1           string             `json:"user_id_1"`
	SessionID2        string             `json:"session_id_2"`
	UserID2           string             `json:"user_id_2"`
	ConflictingFields []string           `json:"conflicting_fields"`
	DetectedAt        time.Time          `json:"detected_at"`
	ResolvedAt        *time.Time         `json:"resolved_at,omitempty"`
	ResolvedBy        string             `json:"resolved_by,omitempty"`
	Resolution        ConflictResolution `json:"resolution,omitempty"`
}

// EditLock is an advisory, expiring claim of a process by one edit session
type EditLock struct {
	ProcessID int64     `json:"process_id"`
	SessionID string    `json:"session_id"`
	UserID    string    `json:"user_id"`
	ExpiresAt time.Time `json:"expires_at"`
}
