package port

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/garyjia/process-portal/internal/domain/entity"
)

// MessageSender delivers a plain text notification to a user
type MessageSender interface {
	SendText(ctx context.Context, receiverID string, text string) (messageID string, err error)
}

// Authorizer answers capability checks. It stands in for the role and permission catalog.
type Authorizer interface {
	HasPermission(ctx context.Context, userID string, permission entity.Permission) (bool, error)
}

// InstanceChecker reports whether running executions of a process exist
type InstanceChecker interface {
	HasActiveInstances(ctx context.Context, processID int64) (bool, error)
}

var (
	// ErrLockHeld is matched by LockHeldError
	ErrLockHeld = errors.New("edit lock held by another session")

	// ErrLockNotHeld is returned when renewing or releasing a lock the session does not hold
	ErrLockNotHeld = errors.New("edit lock not held by session")
)

// LockHeldError names the session currently holding a lock
type LockHeldError struct {
	Holder entity.EditLock
}

func (e *LockHeldError) Error() string {
	return fmt.Sprintf("process %d is locked by session %s (user %s) until %s",
		e.Holder.ProcessID, e.Holder.SessionID, e.Holder.UserID, e.Holder.ExpiresAt.Format(time.RFC3339))
}

func (e *LockHeldError) Unwrap() error { return ErrLockHeld }

// EditLocker grants advisory, expiring per-process locks to edit sessions
type EditLocker interface {
	Acquire(ctx context.Context, lock entity.EditLock, ttl time.Duration) (*entity.EditLock, error)
	Renew(ctx context.Context, processID int64, sessionID string, ttl time.Duration) (*entity.EditLock, error)
	Release(ctx context.Context, processID int64, sessionID string) error
	// Status returns the live lock on the process, or nil
	Status(ctx context.Context, processID int64) (*entity.EditLock, error)
}

// AuditWorkbook renders ledger rows to a spreadsheet
type AuditWorkbook interface {
	Write(w io.Writer, approvals []*entity.ApprovalHistory, deletions []*entity.DeletionHistory) error
}
