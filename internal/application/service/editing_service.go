package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/application/workflow"
	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/internal/domain/event"
	domainwf "github.com/garyjia/process-portal/internal/domain/workflow"
)

// EditingOptions tunes edit sessions and advisory locks
type EditingOptions struct {
	// SessionTimeout is the idle time after which a session no longer counts
	// as a concurrent editor during conflict detection
	SessionTimeout        time.Duration
	LockTTL               time.Duration
	AutoSaveInterval      time.Duration
	MaxConcurrentSessions int
	EnforceLocks          bool
}

// DefaultEditingOptions returns the stock editing settings
func DefaultEditingOptions() EditingOptions {
	return EditingOptions{
		SessionTimeout:        entity.DefaultSessionTimeoutMinutes * time.Minute,
		LockTTL:               entity.DefaultLockTTLMinutes * time.Minute,
		AutoSaveInterval:      entity.DefaultAutoSaveSeconds * time.Second,
		MaxConcurrentSessions: entity.DefaultMaxConcurrentSessions,
	}
}

// StartEditResult is returned when a user opens, or re-opens, an edit session
type StartEditResult struct {
	SessionID               string                `json:"session_id"`
	Session                 *entity.EditSession   `json:"session"`
	Process                 *entity.Process       `json:"process"`
	OtherActiveSessions     []*entity.EditSession `json:"other_active_sessions"`
	AutoSaveIntervalSeconds int                   `json:"auto_save_interval_seconds"`
}

// CompleteEditInput is the final content of an edit session. Nil fields fall
// back to the session's draft overlays, then to the stored process.
type CompleteEditInput struct {
	entity.DraftContent
	SaveAsDraft       bool                     `json:"save_as_draft"`
	VersionChangeType entity.VersionChangeType `json:"version_change_type,omitempty"`
}

// CompleteEditResult carries the updated process and any conflict warnings
type CompleteEditResult struct {
	Process   *entity.Process        `json:"process"`
	Version   *entity.ProcessVersion `json:"version,omitempty"`
	Conflicts []*entity.EditConflict `json:"conflicts"`
}

// EditingService manages collaborative edit sessions over processes
type EditingService interface {
	StartEditSession(ctx context.Context, processID int64, userID, comment string) (*StartEditResult, error)
	SaveDraft(ctx context.Context, sessionID, userID string, content entity.DraftContent) (*entity.Process, error)
	GetDraft(ctx context.Context, sessionID string) (*entity.Process, error)
	CompleteEditWithNewVersion(ctx context.Context, sessionID, userID string, final CompleteEditInput) (*CompleteEditResult, error)
	EndEditSession(ctx context.Context, sessionID, userID, comment string) error
	GetActiveEditSessions(ctx context.Context, processID int64) ([]*entity.EditSession, error)
	GetEditSession(ctx context.Context, sessionID string) (*entity.EditSession, error)
	GetAutoSaveHistory(ctx context.Context, sessionID, userID string) ([]*entity.AutoSave, error)
	CanEdit(ctx context.Context, processID int64, userID string) (bool, error)

	AcquireLock(ctx context.Context, sessionID, userID string) (*entity.EditLock, error)
	RenewLock(ctx context.Context, sessionID, userID string) (*entity.EditLock, error)
	ReleaseLock(ctx context.Context, sessionID, userID string) error
	GetLockStatus(ctx context.Context, processID int64) (*entity.EditLock, error)

	GetActiveConflicts(ctx context.Context, processID int64) ([]*entity.EditConflict, error)
	ResolveConflict(ctx context.Context, conflictID int64, userID string, resolution entity.ConflictResolution) (*entity.EditConflict, error)
}

type editingServiceImpl struct {
	processRepo  port.ProcessRepository
	sessionRepo  port.EditSessionRepository
	autoSaveRepo port.AutoSaveRepository
	conflictRepo port.ConflictRepository
	versioning   VersioningEngine
	audit        AuditTrail
	authorizer   port.Authorizer
	locker       port.EditLocker
	lifecycle    workflow.Lifecycle
	txManager    port.TransactionManager
	events       EventPublisher
	opts         EditingOptions
	logger       Logger
	now          func() time.Time
}

// NewEditingService creates a new EditingService. locker may be nil, in which
// case the lock operations fail with ErrInvalidState.
func NewEditingService(
	processRepo port.ProcessRepository,
	sessionRepo port.EditSessionRepository,
	autoSaveRepo port.AutoSaveRepository,
	conflictRepo port.ConflictRepository,
	versioning VersioningEngine,
	audit AuditTrail,
	authorizer port.Authorizer,
	locker port.EditLocker,
	lifecycle workflow.Lifecycle,
	txManager port.TransactionManager,
	events EventPublisher,
	opts EditingOptions,
	logger Logger,
) EditingService {
	defaults := DefaultEditingOptions()
	if opts.SessionTimeout <= 0 {
		opts.SessionTimeout = defaults.SessionTimeout
	}
	if opts.LockTTL <= 0 {
		opts.LockTTL = defaults.LockTTL
	}
	if opts.AutoSaveInterval <= 0 {
		opts.AutoSaveInterval = defaults.AutoSaveInterval
	}

	return &editingServiceImpl{
		processRepo:  processRepo,
		sessionRepo:  sessionRepo,
		autoSaveRepo: autoSaveRepo,
		conflictRepo: conflictRepo,
		versioning:   versioning,
		audit:        audit,
		authorizer:   authorizer,
		locker:       locker,
		lifecycle:    lifecycle,
		txManager:    txManager,
		events:       events,
		opts:         opts,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// StartEditSession opens a session for userID, reusing the user's active one
func (s *editingServiceImpl) StartEditSession(ctx context.Context, processID int64, userID, comment string) (result *StartEditResult, err error) {
	const op = "EditingService.StartEditSession"
	ctx, span := startSpan(ctx, op, attribute.Int64(attrProcessID, processID), attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	process, err := s.liveProcess(ctx, op, processID)
	if err != nil {
		return nil, err
	}

	allowed, err := s.canEditProcess(ctx, process, userID)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, unauthorized(op, "user %s cannot edit process %d", userID, processID)
	}

	active, err := s.sessionRepo.ListActiveByProcessID(ctx, processID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	now := s.now()
	var session *entity.EditSession
	others := make([]*entity.EditSession, 0, len(active))
	for _, a := range active {
		if a.UserID == userID {
			if session == nil {
				session = a
			}
			continue
		}
		others = append(others, a)
	}

	if session != nil {
		if err := s.sessionRepo.Touch(ctx, session.SessionID, now); err != nil {
			return nil, fmt.Errorf("touch session: %w", err)
		}
		session.LastActivity = now
		s.logger.Info("Edit session resumed", "session_id", session.SessionID, "process_id", processID, "user_id", userID)
	} else {
		if s.opts.MaxConcurrentSessions > 0 && len(others) >= s.opts.MaxConcurrentSessions {
			return nil, conflict(op, "process %d already has %d active edit sessions", processID, len(others))
		}

		session = &entity.EditSession{
			SessionID:    uuid.NewString(),
			ProcessID:    processID,
			UserID:       userID,
			Status:       entity.SessionActive,
			Comment:      strings.TrimSpace(comment),
			StartedAt:    now,
			LastActivity: now,
		}
		if err := s.sessionRepo.Create(ctx, session); err != nil {
			s.logger.Error("Failed to create edit session", "error", err, "process_id", processID)
			return nil, fmt.Errorf("create session: %w", err)
		}
		s.logger.Info("Edit session started", "session_id", session.SessionID, "process_id", processID, "user_id", userID)
	}

	return &StartEditResult{
		SessionID:               session.SessionID,
		Session:                 session,
		Process:                 process,
		OtherActiveSessions:     others,
		AutoSaveIntervalSeconds: int(s.opts.AutoSaveInterval / time.Second),
	}, nil
}

// SaveDraft overlays content onto the session draft and appends an auto-save.
// The process row is never touched.
func (s *editingServiceImpl) SaveDraft(ctx context.Context, sessionID, userID string, content entity.DraftContent) (*entity.Process, error) {
	const op = "EditingService.SaveDraft"

	session, err := s.ownedActiveSession(ctx, op, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if content.Steps != nil {
		if err := entity.ValidateSteps(content.Steps); err != nil {
			return nil, validation(op, "%v", err)
		}
	}

	raw, err := json.Marshal(content)
	if err != nil {
		return nil, fmt.Errorf("marshal draft content: %w", err)
	}

	now := s.now()
	session.ApplyDraft(content)
	session.LastActivity = now
	session.LastAutoSave = &now

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.sessionRepo.SaveDraft(txCtx, session); err != nil {
			return fmt.Errorf("save draft: %w", err)
		}
		return s.autoSaveRepo.Create(txCtx, &entity.AutoSave{
			SessionID: sessionID,
			ProcessID: session.ProcessID,
			UserID:    userID,
			Content:   string(raw),
			SavedAt:   now,
		})
	})
	if err != nil {
		s.logger.Error("Failed to save draft", "error", err, "session_id", sessionID)
		return nil, err
	}

	process, err := s.processRepo.GetByID(ctx, session.ProcessID)
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}
	if process == nil {
		return nil, notFound(op, "process %d not found", session.ProcessID)
	}
	return session.Overlay(process), nil
}

// GetDraft returns the process with the session overlays applied, or nil
// when the session has never auto-saved
func (s *editingServiceImpl) GetDraft(ctx context.Context, sessionID string) (*entity.Process, error) {
	const op = "EditingService.GetDraft"

	session, err := s.sessionRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil {
		return nil, notFound(op, "edit session %s not found", sessionID)
	}
	if session.LastAutoSave == nil {
		return nil, nil
	}

	process, err := s.processRepo.GetByID(ctx, session.ProcessID)
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}
	if process == nil {
		return nil, notFound(op, "process %d not found", session.ProcessID)
	}
	return session.Overlay(process), nil
}

// CompleteEditWithNewVersion commits the session's content to the process
func (s *editingServiceImpl) CompleteEditWithNewVersion(ctx context.Context, sessionID, userID string, final CompleteEditInput) (result *CompleteEditResult, err error) {
	const op = "EditingService.CompleteEditWithNewVersion"
	ctx, span := startSpan(ctx, op, attribute.String(attrSessionID, sessionID), attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	if final.SaveAsDraft {
		draft, err := s.SaveDraft(ctx, sessionID, userID, final.DraftContent)
		if err != nil {
			return nil, err
		}
		return &CompleteEditResult{Process: draft, Conflicts: []*entity.EditConflict{}}, nil
	}

	session, err := s.ownedActiveSession(ctx, op, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if final.Steps != nil {
		if err := entity.ValidateSteps(final.Steps); err != nil {
			return nil, validation(op, "%v", err)
		}
	}

	process, err := s.liveProcess(ctx, op, session.ProcessID)
	if err != nil {
		return nil, err
	}

	if err := s.checkLock(ctx, op, session); err != nil {
		return nil, err
	}

	session.ApplyDraft(final.DraftContent)
	updated := session.Overlay(process)
	comment := strings.TrimSpace(final.ChangeComment)

	changeType := final.VersionChangeType
	if changeType == "" {
		changeType = entity.ChangeMinor
	}

	var revise bool
	switch process.Status {
	case entity.StatusPublished, entity.StatusRejected:
		revise = true
		next, err := transition(ctx, s.lifecycle, op, process.Status, domainwf.TriggerRevise)
		if err != nil {
			return nil, err
		}
		updated.Status = next
	}

	now := s.now()
	var (
		version   *entity.ProcessVersion
		conflicts []*entity.EditConflict
	)
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		var err error
		conflicts, err = s.detectConflicts(txCtx, session, now)
		if err != nil {
			return err
		}

		if process.Status == entity.StatusPublished {
			changeLog := comment
			if changeLog == "" {
				changeLog = fmt.Sprintf("Edited in session %s", sessionID)
			}
			version, err = s.versioning.CreateVersion(txCtx, updated, changeType, changeLog, userID)
			if err != nil {
				return fmt.Errorf("create version: %w", err)
			}
		}

		if err := s.processRepo.UpdateContent(txCtx, updated); err != nil {
			return fmt.Errorf("update process: %w", err)
		}
		if session.DraftTags != nil {
			if err := s.processRepo.ReplaceTags(txCtx, process.ID, updated.Tags); err != nil {
				return fmt.Errorf("replace tags: %w", err)
			}
		}
		if session.DraftSteps != nil {
			if err := s.processRepo.ReplaceSteps(txCtx, process.ID, updated.Steps); err != nil {
				return fmt.Errorf("replace steps: %w", err)
			}
		}

		if revise {
			if err := s.processRepo.UpdateStatus(txCtx, process.ID, updated.Status); err != nil {
				return fmt.Errorf("update process status: %w", err)
			}
			details := entity.RequestChangesDetails{SessionID: sessionID}
			if version != nil {
				details.VersionID = version.ID
				details.VersionNumber = version.VersionNumber
			}
			if _, err := s.audit.RecordApproval(txCtx, ApprovalEntry{
				ProcessID: process.ID,
				ActorID:   userID,
				From:      process.Status,
				To:        updated.Status,
				Comment:   comment,
				Details:   details,
			}); err != nil {
				return err
			}
		}

		var versionID *int64
		if version != nil {
			versionID = &version.ID
		}
		if err := s.sessionRepo.Complete(txCtx, sessionID, comment, versionID, now); err != nil {
			return fmt.Errorf("complete session: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to complete edit session", "error", err, "session_id", sessionID)
		return nil, err
	}

	s.releaseQuietly(ctx, session)

	refreshed, err := s.processRepo.GetByID(ctx, process.ID)
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}
	if refreshed == nil {
		return nil, notFound(op, "process %d not found", process.ID)
	}

	s.logger.Info("Edit session completed",
		"session_id", sessionID,
		"process_id", process.ID,
		"status", refreshed.Status,
		"conflicts", len(conflicts),
	)

	payload := map[string]interface{}{
		event.KeySessionID: sessionID,
		event.KeyTitle:     refreshed.Title,
		event.KeyComment:   comment,
	}
	if version != nil {
		payload[event.KeyVersionNumber] = version.VersionNumber
	}
	s.publish(ctx, event.NewEvent(event.TypeEditCompleted, process.ID, userID, payload))

	if len(conflicts) > 0 {
		users := make([]string, 0, len(conflicts))
		for _, c := range conflicts {
			users = append(users, c.UserID2)
		}
		s.publish(ctx, event.NewEvent(event.TypeEditConflictDetected, process.ID, userID, map[string]interface{}{
			event.KeySessionID: sessionID,
			event.KeyTitle:     refreshed.Title,
			event.KeyConflicts: users,
		}))
	}

	return &CompleteEditResult{
		Process:   refreshed,
		Version:   version,
		Conflicts: conflicts,
	}, nil
}

// detectConflicts records a conflict for every other live session that has
// auto-saved overlapping fields since this session started
func (s *editingServiceImpl) detectConflicts(ctx context.Context, session *entity.EditSession, now time.Time) ([]*entity.EditConflict, error) {
	conflicts := []*entity.EditConflict{}

	mine := session.DraftFields()
	if len(mine) == 0 {
		return conflicts, nil
	}

	active, err := s.sessionRepo.ListActiveByProcessID(ctx, session.ProcessID)
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}

	staleBefore := now.Add(-s.opts.SessionTimeout)
	for _, other := range active {
		if other.SessionID == session.SessionID || other.LastAutoSave == nil {
			continue
		}
		if other.LastAutoSave.Before(session.StartedAt) || other.LastActivity.Before(staleBefore) {
			continue
		}

		fields := overlap(mine, other.DraftFields())
		if len(fields) == 0 {
			continue
		}

		c := &entity.EditConflict{
			ProcessID:         session.ProcessID,
			SessionID1:        session.SessionID,
			UserID1:           session.UserID,
			SessionID2:        other.SessionID,
			UserID2:           other.UserID,
			ConflictingFields: fields,
			DetectedAt:        now,
		}
		if err := s.conflictRepo.Create(ctx, c); err != nil {
			return nil, fmt.Errorf("create conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, nil
}

func overlap(a, b []string) []string {
	in := make(map[string]bool, len(b))
	for _, f := range b {
		in[f] = true
	}
	var out []string
	for _, f := range a {
		if in[f] {
			out = append(out, f)
		}
	}
	return out
}

// EndEditSession completes the caller's own active session. Other callers are ignored.
func (s *editingServiceImpl) EndEditSession(ctx context.Context, sessionID, userID, comment string) error {
	session, err := s.sessionRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if session == nil || session.UserID != userID || !session.IsActive() {
		return nil
	}

	if err := s.sessionRepo.Complete(ctx, sessionID, strings.TrimSpace(comment), nil, s.now()); err != nil {
		s.logger.Error("Failed to end edit session", "error", err, "session_id", sessionID)
		return fmt.Errorf("complete session: %w", err)
	}
	s.releaseQuietly(ctx, session)

	s.logger.Info("Edit session ended", "session_id", sessionID, "user_id", userID)
	return nil
}

// GetActiveEditSessions lists active sessions, earliest first
func (s *editingServiceImpl) GetActiveEditSessions(ctx context.Context, processID int64) ([]*entity.EditSession, error) {
	sessions, err := s.sessionRepo.ListActiveByProcessID(ctx, processID)
	if err != nil {
		s.logger.Error("Failed to list active sessions", "error", err, "process_id", processID)
		return nil, err
	}
	return sessions, nil
}

func (s *editingServiceImpl) GetEditSession(ctx context.Context, sessionID string) (*entity.EditSession, error) {
	session, err := s.sessionRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, notFound("EditingService.GetEditSession", "edit session %s not found", sessionID)
	}
	return session, nil
}

// GetAutoSaveHistory returns the owner's auto-saves, newest first
func (s *editingServiceImpl) GetAutoSaveHistory(ctx context.Context, sessionID, userID string) ([]*entity.AutoSave, error) {
	const op = "EditingService.GetAutoSaveHistory"

	session, err := s.sessionRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil || session.UserID != userID {
		return nil, notFound(op, "edit session %s not found", sessionID)
	}
	return s.autoSaveRepo.ListBySessionID(ctx, sessionID)
}

// CanEdit reports whether the user may open an edit session on the process
func (s *editingServiceImpl) CanEdit(ctx context.Context, processID int64, userID string) (bool, error) {
	process, err := s.processRepo.GetByID(ctx, processID)
	if err != nil {
		return false, err
	}
	if process == nil || process.IsDeleted {
		return false, nil
	}
	return s.canEditProcess(ctx, process, userID)
}

// AcquireLock claims the advisory lock of the session's process
func (s *editingServiceImpl) AcquireLock(ctx context.Context, sessionID, userID string) (*entity.EditLock, error) {
	const op = "EditingService.AcquireLock"

	session, err := s.ownedActiveSession(ctx, op, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if s.locker == nil {
		return nil, invalidState(op, "edit locks are not configured")
	}

	lock, err := s.locker.Acquire(ctx, entity.EditLock{
		ProcessID: session.ProcessID,
		SessionID: sessionID,
		UserID:    userID,
	}, s.opts.LockTTL)
	if err != nil {
		var held *port.LockHeldError
		if errors.As(err, &held) {
			return nil, &ServiceError{Op: op, Code: CodeConflict, Message: held.Error(), Err: fmt.Errorf("%w: %w", ErrConflict, err)}
		}
		s.logger.Error("Failed to acquire edit lock", "error", err, "session_id", sessionID)
		return nil, fmt.Errorf("acquire lock: %w", err)
	}

	s.logger.Info("Edit lock acquired", "process_id", lock.ProcessID, "session_id", sessionID, "expires_at", lock.ExpiresAt)
	return lock, nil
}

// RenewLock extends a lock held by the session
func (s *editingServiceImpl) RenewLock(ctx context.Context, sessionID, userID string) (*entity.EditLock, error) {
	const op = "EditingService.RenewLock"

	session, err := s.ownedActiveSession(ctx, op, sessionID, userID)
	if err != nil {
		return nil, err
	}
	if s.locker == nil {
		return nil, invalidState(op, "edit locks are not configured")
	}

	lock, err := s.locker.Renew(ctx, session.ProcessID, sessionID, s.opts.LockTTL)
	if err != nil {
		if errors.Is(err, port.ErrLockNotHeld) {
			return nil, conflict(op, "session %s does not hold the lock on process %d", sessionID, session.ProcessID)
		}
		return nil, fmt.Errorf("renew lock: %w", err)
	}
	if err := s.sessionRepo.Touch(ctx, sessionID, s.now()); err != nil {
		s.logger.Error("Failed to touch session", "error", err, "session_id", sessionID)
	}
	return lock, nil
}

// ReleaseLock drops the session's lock. Releasing a lock that is not held is not an error.
func (s *editingServiceImpl) ReleaseLock(ctx context.Context, sessionID, userID string) error {
	const op = "EditingService.ReleaseLock"

	session, err := s.sessionRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return fmt.Errorf("get session: %w", err)
	}
	if session == nil || session.UserID != userID {
		return notFound(op, "edit session %s not found", sessionID)
	}
	if s.locker == nil {
		return invalidState(op, "edit locks are not configured")
	}

	if err := s.locker.Release(ctx, session.ProcessID, sessionID); err != nil && !errors.Is(err, port.ErrLockNotHeld) {
		return fmt.Errorf("release lock: %w", err)
	}
	return nil
}

// GetLockStatus returns the live lock on a process, or nil
func (s *editingServiceImpl) GetLockStatus(ctx context.Context, processID int64) (*entity.EditLock, error) {
	if s.locker == nil {
		return nil, nil
	}
	return s.locker.Status(ctx, processID)
}

// GetActiveConflicts lists unresolved conflicts of a process
func (s *editingServiceImpl) GetActiveConflicts(ctx context.Context, processID int64) ([]*entity.EditConflict, error) {
	conflicts, err := s.conflictRepo.ListUnresolved(ctx, processID)
	if err != nil {
		s.logger.Error("Failed to list conflicts", "error", err, "process_id", processID)
		return nil, err
	}
	return conflicts, nil
}

// ResolveConflict records how a conflict was settled. Either participant,
// or a holder of edit_process, may resolve it.
func (s *editingServiceImpl) ResolveConflict(ctx context.Context, conflictID int64, userID string, resolution entity.ConflictResolution) (*entity.EditConflict, error) {
	const op = "EditingService.ResolveConflict"

	if !resolution.IsValid() {
		return nil, validation(op, "invalid resolution %q", resolution)
	}

	c, err := s.conflictRepo.GetByID(ctx, conflictID)
	if err != nil {
		return nil, fmt.Errorf("get conflict: %w", err)
	}
	if c == nil {
		return nil, notFound(op, "conflict %d not found", conflictID)
	}
	if c.ResolvedAt != nil {
		return nil, invalidState(op, "conflict %d is already resolved", conflictID)
	}

	if userID != c.UserID1 && userID != c.UserID2 {
		allowed, err := checkPermission(ctx, s.authorizer, userID, entity.PermEditProcess)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, unauthorized(op, "user %s cannot resolve conflict %d", userID, conflictID)
		}
	}

	now := s.now()
	if err := s.conflictRepo.Resolve(ctx, conflictID, userID, resolution, now); err != nil {
		s.logger.Error("Failed to resolve conflict", "error", err, "conflict_id", conflictID)
		return nil, fmt.Errorf("resolve conflict: %w", err)
	}
	c.ResolvedAt = &now
	c.ResolvedBy = userID
	c.Resolution = resolution

	s.logger.Info("Edit conflict resolved", "conflict_id", conflictID, "resolution", resolution, "user_id", userID)
	return c, nil
}

func (s *editingServiceImpl) liveProcess(ctx context.Context, op string, processID int64) (*entity.Process, error) {
	process, err := s.processRepo.GetByID(ctx, processID)
	if err != nil {
		s.logger.Error("Failed to get process", "error", err, "process_id", processID)
		return nil, fmt.Errorf("get process: %w", err)
	}
	if process == nil || process.IsDeleted {
		return nil, notFound(op, "process %d not found", processID)
	}
	return process, nil
}

func (s *editingServiceImpl) ownedActiveSession(ctx context.Context, op, sessionID, userID string) (*entity.EditSession, error) {
	session, err := s.sessionRepo.GetBySessionID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("get session: %w", err)
	}
	if session == nil || session.UserID != userID || !session.IsActive() {
		return nil, notFound(op, "active edit session %s not found", sessionID)
	}
	return session, nil
}

func (s *editingServiceImpl) canEditProcess(ctx context.Context, process *entity.Process, userID string) (bool, error) {
	if process.IsCreatorOrOwner(userID) {
		return true, nil
	}
	return checkPermission(ctx, s.authorizer, userID, entity.PermEditProcess)
}

// checkLock refuses completion while another session holds a live lock, when locks are enforced
func (s *editingServiceImpl) checkLock(ctx context.Context, op string, session *entity.EditSession) error {
	if !s.opts.EnforceLocks || s.locker == nil {
		return nil
	}
	lock, err := s.locker.Status(ctx, session.ProcessID)
	if err != nil {
		return fmt.Errorf("get lock status: %w", err)
	}
	if lock != nil && lock.SessionID != session.SessionID {
		return conflict(op, "process %d is locked by user %s until %s",
			session.ProcessID, lock.UserID, lock.ExpiresAt.Format(time.RFC3339))
	}
	return nil
}

func (s *editingServiceImpl) releaseQuietly(ctx context.Context, session *entity.EditSession) {
	if s.locker == nil {
		return
	}
	if err := s.locker.Release(ctx, session.ProcessID, session.SessionID); err != nil && !errors.Is(err, port.ErrLockNotHeld) {
		s.logger.Error("Failed to release edit lock", "error", err, "session_id", session.SessionID)
	}
}

func (s *editingServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.events != nil {
		s.events.DispatchAsync(ctx, evt)
	}
}
