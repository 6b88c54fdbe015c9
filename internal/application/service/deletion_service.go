package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/application/workflow"
	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/internal/domain/event"
	domainwf "github.com/garyjia/process-portal/internal/domain/workflow"
)

// DeletionOptions bounds the deleted-process listing
type DeletionOptions struct {
	DefaultPageSize int
	MaxPageSize     int
}

// DeletedProcess is a soft-deleted process annotated for the caller
type DeletedProcess struct {
	*entity.Process
	CanRestore bool `json:"can_restore"`
}

// DeletedProcessPage is one page of soft-deleted processes
type DeletedProcessPage struct {
	Items      []*DeletedProcess `json:"items"`
	Total      int               `json:"total"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalPages int               `json:"total_pages"`
}

// BulkDeleteResult summarizes a batch soft delete
type BulkDeleteResult struct {
	Requested int      `json:"requested"`
	Succeeded int      `json:"succeeded"`
	Failed    int      `json:"failed"`
	Errors    []string `json:"errors"`
}

// DeletionService soft-deletes, restores and purges processes
type DeletionService interface {
	CanDelete(ctx context.Context, processID int64, userID string) (bool, error)
	SoftDelete(ctx context.Context, processID int64, userID, reason string, force bool) error
	HardDelete(ctx context.Context, processID int64, userID, reason string) error
	Restore(ctx context.Context, processID int64, userID, reason string) error
	BulkDelete(ctx context.Context, processIDs []int64, userID, reason string, force bool) (*BulkDeleteResult, error)
	GetDeletedProcesses(ctx context.Context, userID string, page, pageSize int) (*DeletedProcessPage, error)
	GetDeletionHistory(ctx context.Context, processID int64) ([]*entity.DeletionHistory, error)
	HasActiveInstances(ctx context.Context, processID int64) (bool, error)
}

type deletionServiceImpl struct {
	processRepo  port.ProcessRepository
	versionRepo  port.VersionRepository
	sessionRepo  port.EditSessionRepository
	conflictRepo port.ConflictRepository
	approvalRepo port.ApprovalRepository
	audit        AuditTrail
	authorizer   port.Authorizer
	instances    port.InstanceChecker
	lifecycle    workflow.Lifecycle
	txManager    port.TransactionManager
	events       EventPublisher
	opts         DeletionOptions
	logger       Logger
	now          func() time.Time
}

// NewDeletionService creates a new DeletionService
func NewDeletionService(
	processRepo port.ProcessRepository,
	versionRepo port.VersionRepository,
	sessionRepo port.EditSessionRepository,
	conflictRepo port.ConflictRepository,
	approvalRepo port.ApprovalRepository,
	audit AuditTrail,
	authorizer port.Authorizer,
	instances port.InstanceChecker,
	lifecycle workflow.Lifecycle,
	txManager port.TransactionManager,
	events EventPublisher,
	opts DeletionOptions,
	logger Logger,
) DeletionService {
	if opts.DefaultPageSize <= 0 {
		opts.DefaultPageSize = 20
	}
	if opts.MaxPageSize <= 0 {
		opts.MaxPageSize = 100
	}

	return &deletionServiceImpl{
		processRepo:  processRepo,
		versionRepo:  versionRepo,
		sessionRepo:  sessionRepo,
		conflictRepo: conflictRepo,
		approvalRepo: approvalRepo,
		audit:        audit,
		authorizer:   authorizer,
		instances:    instances,
		lifecycle:    lifecycle,
		txManager:    txManager,
		events:       events,
		opts:         opts,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// CanDelete reports whether the user holds delete_process or created or owns the process
func (s *deletionServiceImpl) CanDelete(ctx context.Context, processID int64, userID string) (bool, error) {
	process, err := s.processRepo.GetByID(ctx, processID)
	if err != nil {
		return false, err
	}
	if process == nil {
		return false, nil
	}
	return s.canDelete(ctx, process, userID)
}

func (s *deletionServiceImpl) canDelete(ctx context.Context, process *entity.Process, userID string) (bool, error) {
	if process.IsCreatorOrOwner(userID) {
		return true, nil
	}
	return checkPermission(ctx, s.authorizer, userID, entity.PermDeleteProcess)
}

// SoftDelete hides a process. An open approval request is withdrawn with it.
func (s *deletionServiceImpl) SoftDelete(ctx context.Context, processID int64, userID, reason string, force bool) (err error) {
	const op = "DeletionService.SoftDelete"
	ctx, span := startSpan(ctx, op, attribute.Int64(attrProcessID, processID), attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	process, err := s.processRepo.GetByID(ctx, processID)
	if err != nil {
		s.logger.Error("Failed to get process", "error", err, "process_id", processID)
		return fmt.Errorf("get process: %w", err)
	}
	if process == nil || process.IsDeleted {
		return notFound(op, "process %d not found", processID)
	}

	allowed, err := s.canDelete(ctx, process, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return unauthorized(op, "user %s cannot delete process %d", userID, processID)
	}

	if !force {
		running, err := s.HasActiveInstances(ctx, processID)
		if err != nil {
			return err
		}
		if running {
			return invalidState(op, "process %d has active instances, use force to delete anyway", processID)
		}
	}

	next, err := transition(ctx, s.lifecycle, op, process.Status, domainwf.TriggerDelete)
	if err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	now := s.now()
	details := entity.SoftDeleteDetails{Reason: reason, Forced: force}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		open, err := s.approvalRepo.GetActiveByProcessID(txCtx, processID)
		if err != nil {
			return fmt.Errorf("get active request: %w", err)
		}
		if open != nil {
			open.Status = entity.ApprovalWithdrawn
			open.WithdrawnAt = &now
			open.UpdatedAt = now
			if err := s.approvalRepo.Update(txCtx, open); err != nil {
				return fmt.Errorf("withdraw approval request: %w", err)
			}
			if _, err := s.audit.RecordApproval(txCtx, ApprovalEntry{
				ProcessID: processID,
				ActorID:   userID,
				From:      process.Status,
				To:        next,
				Comment:   reason,
				Details:   entity.WithdrawDetails{RequestID: open.ID},
			}); err != nil {
				return err
			}
			details.WithdrawnRequestID = open.ID
		}

		if err := s.processRepo.MarkDeleted(txCtx, processID, userID, reason, now); err != nil {
			return fmt.Errorf("mark deleted: %w", err)
		}
		_, err = s.audit.RecordDeletion(txCtx, DeletionEntry{
			ProcessID: processID,
			ActorID:   userID,
			From:      process.Status,
			To:        next,
			Comment:   reason,
			Details:   details,
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to soft delete process", "error", err, "process_id", processID)
		return err
	}

	s.logger.Info("Process soft deleted", "process_id", processID, "user_id", userID, "forced", force)
	s.publish(ctx, event.NewEvent(event.TypeProcessDeleted, processID, userID, map[string]interface{}{
		event.KeyTitle:     process.Title,
		event.KeyReason:    reason,
		event.KeyOwnerID:   process.OwnerID,
		event.KeyCreatedBy: process.CreatedBy,
	}))
	return nil
}

// HardDelete permanently removes a process and everything it owns. Both
// ledgers keep their rows, including the HARD_DELETE entry written first.
func (s *deletionServiceImpl) HardDelete(ctx context.Context, processID int64, userID, reason string) (err error) {
	const op = "DeletionService.HardDelete"
	ctx, span := startSpan(ctx, op, attribute.Int64(attrProcessID, processID), attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	allowed, err := checkPermission(ctx, s.authorizer, userID, entity.PermManageUsers)
	if err != nil {
		return err
	}
	if !allowed {
		return unauthorized(op, "user %s cannot permanently delete processes", userID)
	}

	process, err := s.processRepo.GetByID(ctx, processID)
	if err != nil {
		s.logger.Error("Failed to get process", "error", err, "process_id", processID)
		return fmt.Errorf("get process: %w", err)
	}
	if process == nil {
		return notFound(op, "process %d not found", processID)
	}

	reason = strings.TrimSpace(reason)
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		versions, err := s.versionRepo.CountByProcessID(txCtx, processID)
		if err != nil {
			return fmt.Errorf("count versions: %w", err)
		}

		if _, err := s.audit.RecordDeletion(txCtx, DeletionEntry{
			ProcessID: processID,
			ActorID:   userID,
			From:      process.Status,
			To:        entity.StatusDeleted,
			Comment:   reason,
			Details: entity.HardDeleteDetails{
				Reason:       reason,
				Title:        process.Title,
				CreatedBy:    process.CreatedBy,
				VersionCount: versions,
			},
		}); err != nil {
			return err
		}

		if err := s.conflictRepo.DeleteByProcessID(txCtx, processID); err != nil {
			return fmt.Errorf("delete conflicts: %w", err)
		}
		if err := s.sessionRepo.DeleteByProcessID(txCtx, processID); err != nil {
			return fmt.Errorf("delete edit sessions: %w", err)
		}
		if err := s.versionRepo.DeleteByProcessID(txCtx, processID); err != nil {
			return fmt.Errorf("delete versions: %w", err)
		}
		if err := s.approvalRepo.DeleteByProcessID(txCtx, processID); err != nil {
			return fmt.Errorf("delete approval requests: %w", err)
		}
		if err := s.processRepo.Delete(txCtx, processID); err != nil {
			return fmt.Errorf("delete process: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to hard delete process", "error", err, "process_id", processID)
		return err
	}

	s.logger.Info("Process permanently deleted", "process_id", processID, "user_id", userID)
	s.publish(ctx, event.NewEvent(event.TypeProcessHardDeleted, processID, userID, map[string]interface{}{
		event.KeyTitle:     process.Title,
		event.KeyReason:    reason,
		event.KeyOwnerID:   process.OwnerID,
		event.KeyCreatedBy: process.CreatedBy,
	}))
	return nil
}

// Restore brings a soft-deleted process back as Draft
func (s *deletionServiceImpl) Restore(ctx context.Context, processID int64, userID, reason string) (err error) {
	const op = "DeletionService.Restore"
	ctx, span := startSpan(ctx, op, attribute.Int64(attrProcessID, processID), attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	process, err := s.processRepo.GetByID(ctx, processID)
	if err != nil {
		s.logger.Error("Failed to get process", "error", err, "process_id", processID)
		return fmt.Errorf("get process: %w", err)
	}
	if process == nil || !process.IsDeleted {
		return notFound(op, "deleted process %d not found", processID)
	}

	allowed, err := s.canDelete(ctx, process, userID)
	if err != nil {
		return err
	}
	if !allowed {
		return unauthorized(op, "user %s cannot restore process %d", userID, processID)
	}

	next, err := transition(ctx, s.lifecycle, op, process.Status, domainwf.TriggerRestore)
	if err != nil {
		return err
	}

	reason = strings.TrimSpace(reason)
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.processRepo.ClearDeleted(txCtx, processID, next); err != nil {
			return fmt.Errorf("clear deletion: %w", err)
		}
		_, err := s.audit.RecordDeletion(txCtx, DeletionEntry{
			ProcessID: processID,
			ActorID:   userID,
			From:      process.Status,
			To:        next,
			Comment:   reason,
			Details: entity.RestoreDetails{
				Reason:    reason,
				DeletedAt: process.DeletedAt,
				DeletedBy: process.DeletedBy,
			},
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to restore process", "error", err, "process_id", processID)
		return err
	}

	s.logger.Info("Process restored", "process_id", processID, "user_id", userID)
	s.publish(ctx, event.NewEvent(event.TypeProcessRestored, processID, userID, map[string]interface{}{
		event.KeyTitle:     process.Title,
		event.KeyReason:    reason,
		event.KeyOwnerID:   process.OwnerID,
		event.KeyCreatedBy: process.CreatedBy,
	}))
	return nil
}

// BulkDelete soft-deletes each process independently and records one summary
// entry against the first process that was deleted
func (s *deletionServiceImpl) BulkDelete(ctx context.Context, processIDs []int64, userID, reason string, force bool) (*BulkDeleteResult, error) {
	const op = "DeletionService.BulkDelete"

	if len(processIDs) == 0 {
		return nil, validation(op, "at least one process id is required")
	}

	result := &BulkDeleteResult{
		Requested: len(processIDs),
		Errors:    []string{},
	}
	anchor := processIDs[0]
	for _, id := range processIDs {
		if err := s.SoftDelete(ctx, id, userID, reason, force); err != nil {
			result.Failed++
			result.Errors = append(result.Errors, fmt.Sprintf("process %d: %v", id, err))
			continue
		}
		if result.Succeeded == 0 {
			anchor = id
		}
		result.Succeeded++
	}

	_, err := s.audit.RecordDeletion(ctx, DeletionEntry{
		ProcessID: anchor,
		ActorID:   userID,
		From:      entity.StatusDeleted,
		To:        entity.StatusDeleted,
		Comment:   strings.TrimSpace(reason),
		Details: entity.BulkDeleteDetails{
			Reason:     strings.TrimSpace(reason),
			Requested:  result.Requested,
			Succeeded:  result.Succeeded,
			Failed:     result.Failed,
			ProcessIDs: processIDs,
		},
	})
	if err != nil {
		s.logger.Error("Failed to record bulk delete", "error", err, "requested", result.Requested)
		return result, err
	}

	s.logger.Info("Bulk delete completed",
		"requested", result.Requested,
		"succeeded", result.Succeeded,
		"failed", result.Failed,
		"user_id", userID,
	)
	return result, nil
}

// GetDeletedProcesses pages through soft-deleted processes visible to the user
func (s *deletionServiceImpl) GetDeletedProcesses(ctx context.Context, userID string, page, pageSize int) (*DeletedProcessPage, error) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = s.opts.DefaultPageSize
	}
	if pageSize > s.opts.MaxPageSize {
		pageSize = s.opts.MaxPageSize
	}

	seeAll, err := checkPermission(ctx, s.authorizer, userID, entity.PermManageUsers)
	if err != nil {
		return nil, err
	}
	canDeleteAny := false
	if !seeAll {
		canDeleteAny, err = checkPermission(ctx, s.authorizer, userID, entity.PermDeleteProcess)
		if err != nil {
			return nil, err
		}
	}

	filter := port.DeletedFilter{Limit: pageSize, Offset: (page - 1) * pageSize}
	if !seeAll && !canDeleteAny {
		filter.VisibleTo = userID
	}

	processes, total, err := s.processRepo.ListDeleted(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list deleted processes", "error", err, "user_id", userID)
		return nil, err
	}

	items := make([]*DeletedProcess, 0, len(processes))
	for _, p := range processes {
		items = append(items, &DeletedProcess{
			Process:    p,
			CanRestore: seeAll || canDeleteAny || p.IsCreatorOrOwner(userID),
		})
	}

	return &DeletedProcessPage{
		Items:      items,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: (total + pageSize - 1) / pageSize,
	}, nil
}

// GetDeletionHistory returns the deletion ledger of a process, newest first
func (s *deletionServiceImpl) GetDeletionHistory(ctx context.Context, processID int64) ([]*entity.DeletionHistory, error) {
	return s.audit.DeletionHistory(ctx, processID)
}

// HasActiveInstances asks the instance checker whether executions of the process are running
func (s *deletionServiceImpl) HasActiveInstances(ctx context.Context, processID int64) (bool, error) {
	if s.instances == nil {
		return false, nil
	}
	running, err := s.instances.HasActiveInstances(ctx, processID)
	if err != nil {
		s.logger.Error("Failed to check active instances", "error", err, "process_id", processID)
		return false, fmt.Errorf("check active instances: %w", err)
	}
	return running, nil
}

func (s *deletionServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.events != nil {
		s.events.DispatchAsync(ctx, evt)
	}
}
