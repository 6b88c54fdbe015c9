package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/process-portal/internal/domain/entity"
)

var (
	// ErrRequestClosed is returned when updating an approval request that is already terminal
	ErrRequestClosed = errors.New("approval request is closed")

	// ErrDuplicate is returned when an insert violates a uniqueness constraint
	ErrDuplicate = errors.New("duplicate record")
)

// ProcessFilter narrows ListProcesses. Deleted processes are always excluded.
type ProcessFilter struct {
	Status   entity.ProcessStatus
	Category string
	Limit    int
	Offset   int
}

// DeletedFilter narrows ListDeleted. An empty VisibleTo returns every deleted process;
// otherwise only those created or owned by that user.
type DeletedFilter struct {
	VisibleTo string
	Limit     int
	Offset    int
}

// ProcessRepository defines persistence operations for the Process aggregate.
// Steps and tags are owned rows of the process and persist through it.
type ProcessRepository interface {
	Create(ctx context.Context, p *entity.Process) error
	GetByID(ctx context.Context, id int64) (*entity.Process, error)
	List(ctx context.Context, filter ProcessFilter) ([]*entity.Process, error)
	UpdateContent(ctx context.Context, p *entity.Process) error
	UpdateStatus(ctx context.Context, id int64, status entity.ProcessStatus) error
	MarkDeleted(ctx context.Context, id int64, deletedBy, reason string, at time.Time) error
	ClearDeleted(ctx context.Context, id int64, status entity.ProcessStatus) error
	ReplaceSteps(ctx context.Context, processID int64, steps []entity.ProcessStep) error
	ReplaceTags(ctx context.Context, processID int64, tags []entity.ProcessTag) error
	RecordView(ctx context.Context, id int64, at time.Time) error
	ListDeleted(ctx context.Context, filter DeletedFilter) ([]*entity.Process, int, error)
	// Delete removes the process row together with its steps and tags
	Delete(ctx context.Context, id int64) error
}

// VersionRepository defines persistence operations for ProcessVersion
type VersionRepository interface {
	Create(ctx context.Context, v *entity.ProcessVersion) error
	GetCurrent(ctx context.Context, processID int64) (*entity.ProcessVersion, error)
	ListByProcessID(ctx context.Context, processID int64) ([]*entity.ProcessVersion, error)
	CountByProcessID(ctx context.Context, processID int64) (int, error)
	ClearCurrent(ctx context.Context, processID int64) error
	MarkPublished(ctx context.Context, id int64, publishedBy string, at time.Time) error
	DeleteByProcessID(ctx context.Context, processID int64) error
}

// EditSessionRepository defines persistence operations for EditSession
type EditSessionRepository interface {
	Create(ctx context.Context, s *entity.EditSession) error
	GetBySessionID(ctx context.Context, sessionID string) (*entity.EditSession, error)
	GetActiveForUser(ctx context.Context, processID int64, userID string) (*entity.EditSession, error)
	ListActiveByProcessID(ctx context.Context, processID int64) ([]*entity.EditSession, error)
	// SaveDraft persists the draft overlays, LastActivity and LastAutoSave
	SaveDraft(ctx context.Context, s *entity.EditSession) error
	Touch(ctx context.Context, sessionID string, at time.Time) error
	Complete(ctx context.Context, sessionID, comment string, versionID *int64, at time.Time) error
	// DeleteByProcessID removes the sessions and their auto-saves
	DeleteByProcessID(ctx context.Context, processID int64) error
}

// AutoSaveRepository defines persistence operations for AutoSave
type AutoSaveRepository interface {
	Create(ctx context.Context, a *entity.AutoSave) error
	ListBySessionID(ctx context.Context, sessionID string) ([]*entity.AutoSave, error)
}

// ConflictRepository defines persistence operations for EditConflict
type ConflictRepository interface {
	Create(ctx context.Context, c *entity.EditConflict) error
	GetByID(ctx context.Context, id int64) (*entity.EditConflict, error)
	ListUnresolved(ctx context.Context, processID int64) ([]*entity.EditConflict, error)
	Resolve(ctx context.Context, id int64, resolvedBy string, resolution entity.ConflictResolution, at time.Time) error
	DeleteByProcessID(ctx context.Context, processID int64) error
}

// ApprovalRepository defines persistence operations for ApprovalRequest
type ApprovalRepository interface {
	Create(ctx context.Context, r *entity.ApprovalRequest) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error)
	GetActiveByProcessID(ctx context.Context, processID int64) (*entity.ApprovalRequest, error)
	// Update writes the mutable columns. Returns ErrRequestClosed when the stored row is terminal.
	Update(ctx context.Context, r *entity.ApprovalRequest) error
	// ListByStatus returns requests in the given statuses, oldest request first
	ListByStatus(ctx context.Context, statuses ...entity.ApprovalStatus) ([]*entity.ApprovalRequest, error)
	// ListForUser returns requests submitted or decided by userID, newest first
	ListForUser(ctx context.Context, userID string) ([]*entity.ApprovalRequest, error)
	// DeleteByProcessID removes the requests and their comments
	DeleteByProcessID(ctx context.Context, processID int64) error
}

// CommentRepository defines persistence operations for ApprovalComment
type CommentRepository interface {
	Create(ctx context.Context, c *entity.ApprovalComment) error
	ListByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalComment, error)
}

// HistoryFilter narrows ledger exports. Zero values are unbounded.
type HistoryFilter struct {
	ProcessID int64
	Since     time.Time
	Until     time.Time
}

// ApprovalHistoryRepository is the append-only approval ledger
type ApprovalHistoryRepository interface {
	Create(ctx context.Context, h *entity.ApprovalHistory) error
	ListByProcessID(ctx context.Context, processID int64) ([]*entity.ApprovalHistory, error)
	List(ctx context.Context, filter HistoryFilter) ([]*entity.ApprovalHistory, error)
}

// DeletionHistoryRepository is the append-only deletion ledger
type DeletionHistoryRepository interface {
	Create(ctx context.Context, h *entity.DeletionHistory) error
	ListByProcessID(ctx context.Context, processID int64) ([]*entity.DeletionHistory, error)
	List(ctx context.Context, filter HistoryFilter) ([]*entity.DeletionHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
