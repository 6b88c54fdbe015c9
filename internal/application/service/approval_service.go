package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/application/workflow"
	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/internal/domain/event"
	domainwf "github.com/garyjia/process-portal/internal/domain/workflow"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EventPublisher hands committed domain events to subscribers
type EventPublisher interface {
	DispatchAsync(ctx context.Context, evt *event.Event)
}

// ApprovalOptions tunes the approval queue and statistics windows
type ApprovalOptions struct {
	RecentWindow time.Duration
	RecentLimit  int
	StatsWindow  time.Duration
}

// DefaultApprovalOptions returns a 7 day, 10 entry recent list and 30 day statistics
func DefaultApprovalOptions() ApprovalOptions {
	return ApprovalOptions{
		RecentWindow: 7 * 24 * time.Hour,
		RecentLimit:  10,
		StatsWindow:  30 * 24 * time.Hour,
	}
}

// ApprovalStatistics summarizes the approval workload
type ApprovalStatistics struct {
	TotalPending             int     `json:"total_pending"`
	TotalInProgress          int     `json:"total_in_progress"`
	CompletedLast30Days      int     `json:"completed_last_30_days"`
	AverageApprovalTimeHours float64 `json:"average_approval_time_hours"`
	MyPending                int     `json:"my_pending"`
	MyCompleted              int     `json:"my_completed"`
}

// ApprovalQueue is an approver's work list
type ApprovalQueue struct {
	Pending           []*entity.ApprovalRequest `json:"pending"`
	InProgress        []*entity.ApprovalRequest `json:"in_progress"`
	RecentlyCompleted []*entity.ApprovalRequest `json:"recently_completed"`
	Statistics        *ApprovalStatistics       `json:"statistics"`
}

// ApprovalService drives a process through submission, review and decision
type ApprovalService interface {
	SubmitForApproval(ctx context.Context, processID int64, userID, comment string) (*entity.ApprovalRequest, error)
	StartReview(ctx context.Context, requestID int64, userID string) (*entity.ApprovalRequest, error)
	ApproveProcess(ctx context.Context, requestID int64, userID, comment string) (*entity.ApprovalRequest, error)
	RejectProcess(ctx context.Context, requestID int64, userID, comment string) (*entity.ApprovalRequest, error)
	WithdrawApprovalRequest(ctx context.Context, processID int64, userID string) (*entity.ApprovalRequest, error)
	AddComment(ctx context.Context, requestID int64, userID, comment string, commentType entity.CommentType) (*entity.ApprovalComment, error)

	GetApprovalQueue(ctx context.Context, userID string) (*ApprovalQueue, error)
	GetApprovalStatistics(ctx context.Context, userID string) (*ApprovalStatistics, error)
	GetMyRequests(ctx context.Context, userID string) ([]*entity.ApprovalRequest, error)
	GetApprovalRequest(ctx context.Context, requestID int64) (*entity.ApprovalRequest, error)
	GetCurrentRequestForProcess(ctx context.Context, processID int64) (*entity.ApprovalRequest, error)
	GetApprovalHistory(ctx context.Context, processID int64) ([]*entity.ApprovalHistory, error)
	GetComments(ctx context.Context, requestID int64) ([]*entity.ApprovalComment, error)
	CanApprove(ctx context.Context, userID string) (bool, error)
	CanSubmit(ctx context.Context, processID int64, userID string) (bool, error)
}

type approvalServiceImpl struct {
	processRepo  port.ProcessRepository
	approvalRepo port.ApprovalRepository
	commentRepo  port.CommentRepository
	versioning   VersioningEngine
	audit        AuditTrail
	authorizer   port.Authorizer
	lifecycle    workflow.Lifecycle
	txManager    port.TransactionManager
	events       EventPublisher
	opts         ApprovalOptions
	logger       Logger
	now          func() time.Time
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	processRepo port.ProcessRepository,
	approvalRepo port.ApprovalRepository,
	commentRepo port.CommentRepository,
	versioning VersioningEngine,
	audit AuditTrail,
	authorizer port.Authorizer,
	lifecycle workflow.Lifecycle,
	txManager port.TransactionManager,
	events EventPublisher,
	opts ApprovalOptions,
	logger Logger,
) ApprovalService {
	defaults := DefaultApprovalOptions()
	if opts.RecentWindow <= 0 {
		opts.RecentWindow = defaults.RecentWindow
	}
	if opts.RecentLimit <= 0 {
		opts.RecentLimit = defaults.RecentLimit
	}
	if opts.StatsWindow <= 0 {
		opts.StatsWindow = defaults.StatsWindow
	}

	return &approvalServiceImpl{
		processRepo:  processRepo,
		approvalRepo: approvalRepo,
		commentRepo:  commentRepo,
		versioning:   versioning,
		audit:        audit,
		authorizer:   authorizer,
		lifecycle:    lifecycle,
		txManager:    txManager,
		events:       events,
		opts:         opts,
		logger:       logger,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// SubmitForApproval opens a Pending request on a Draft process
func (s *approvalServiceImpl) SubmitForApproval(ctx context.Context, processID int64, userID, comment string) (req *entity.ApprovalRequest, err error) {
	const op = "ApprovalService.SubmitForApproval"
	ctx, span := startSpan(ctx, op, attribute.Int64(attrProcessID, processID), attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	process, err := s.processRepo.GetByID(ctx, processID)
	if err != nil {
		s.logger.Error("Failed to get process", "error", err, "process_id", processID)
		return nil, fmt.Errorf("get process: %w", err)
	}
	if process == nil || !process.IsActive || process.IsDeleted {
		return nil, notFound(op, "process %d not found", processID)
	}
	if !process.IsCreatorOrOwner(userID) {
		return nil, unauthorized(op, "only the creator or owner can submit process %d", processID)
	}
	if process.Status != entity.StatusDraft {
		return nil, invalidState(op, "process %d is %s, only Draft can be submitted", processID, process.Status)
	}

	next, err := transition(ctx, s.lifecycle, op, process.Status, domainwf.TriggerSubmit)
	if err != nil {
		return nil, err
	}

	now := s.now()
	req = &entity.ApprovalRequest{
		ProcessID:      processID,
		RequestedBy:    userID,
		RequestComment: strings.TrimSpace(comment),
		Status:         entity.ApprovalPending,
		RequestedAt:    now,
		UpdatedAt:      now,
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		current, err := s.processRepo.GetByID(txCtx, processID)
		if err != nil {
			return fmt.Errorf("get process: %w", err)
		}
		if current == nil || current.IsDeleted {
			return notFound(op, "process %d not found", processID)
		}
		if current.Status != process.Status {
			return conflict(op, "process %d changed to %s while submitting", processID, current.Status)
		}

		active, err := s.approvalRepo.GetActiveByProcessID(txCtx, processID)
		if err != nil {
			return fmt.Errorf("get active request: %w", err)
		}
		if active != nil {
			return conflict(op, "process %d already has open approval request %d", processID, active.ID)
		}

		if err := s.approvalRepo.Create(txCtx, req); err != nil {
			if errors.Is(err, port.ErrDuplicate) {
				return conflict(op, "process %d already has an open approval request", processID)
			}
			return fmt.Errorf("create approval request: %w", err)
		}
		if err := s.processRepo.UpdateStatus(txCtx, processID, next); err != nil {
			return fmt.Errorf("update process status: %w", err)
		}
		_, err = s.audit.RecordApproval(txCtx, ApprovalEntry{
			ProcessID: processID,
			ActorID:   userID,
			From:      process.Status,
			To:        next,
			Comment:   req.RequestComment,
			Details:   entity.SubmitDetails{RequestID: req.ID},
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to submit for approval", "error", err, "process_id", processID, "user_id", userID)
		return nil, err
	}

	s.logger.Info("Process submitted for approval", "process_id", processID, "request_id", req.ID, "user_id", userID)
	s.publish(ctx, event.NewEvent(event.TypeApprovalSubmitted, processID, userID, map[string]interface{}{
		event.KeyRequestID:   req.ID,
		event.KeyRequestedBy: userID,
		event.KeyTitle:       process.Title,
		event.KeyComment:     req.RequestComment,
	}))
	return req, nil
}

// StartReview moves a Pending request to InProgress and the process to InReview
func (s *approvalServiceImpl) StartReview(ctx context.Context, requestID int64, userID string) (req *entity.ApprovalRequest, err error) {
	const op = "ApprovalService.StartReview"
	ctx, span := startSpan(ctx, op, attribute.Int64(attrRequestID, requestID), attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	req, process, err := s.loadDecision(ctx, op, requestID, userID)
	if err != nil {
		return nil, err
	}
	if req.Status != entity.ApprovalPending {
		return nil, invalidState(op, "request %d is %s, only Pending can enter review", requestID, req.Status)
	}

	next, err := transition(ctx, s.lifecycle, op, process.Status, domainwf.TriggerReview)
	if err != nil {
		return nil, err
	}

	req.Status = entity.ApprovalInProgress
	req.ApproverID = userID
	req.UpdatedAt = s.now()

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.updateRequest(txCtx, op, req); err != nil {
			return err
		}
		if err := s.processRepo.UpdateStatus(txCtx, process.ID, next); err != nil {
			return fmt.Errorf("update process status: %w", err)
		}
		_, err := s.audit.RecordApproval(txCtx, ApprovalEntry{
			ProcessID: process.ID,
			ActorID:   userID,
			From:      process.Status,
			To:        next,
			Details:   entity.ReviewDetails{RequestID: req.ID},
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to start review", "error", err, "request_id", requestID)
		return nil, err
	}

	s.logger.Info("Approval review started", "request_id", requestID, "process_id", process.ID, "user_id", userID)
	return req, nil
}

// ApproveProcess approves an open request, publishing the process and its current version
func (s *approvalServiceImpl) ApproveProcess(ctx context.Context, requestID int64, userID, comment string) (req *entity.ApprovalRequest, err error) {
	const op = "ApprovalService.ApproveProcess"
	ctx, span := startSpan(ctx, op, attribute.Int64(attrRequestID, requestID), attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	req, process, err := s.loadDecision(ctx, op, requestID, userID)
	if err != nil {
		return nil, err
	}

	next, err := transition(ctx, s.lifecycle, op, process.Status, domainwf.TriggerApprove)
	if err != nil {
		return nil, err
	}

	now := s.now()
	req.Status = entity.ApprovalApproved
	req.ApproverID = userID
	req.DecisionComment = strings.TrimSpace(comment)
	req.ApprovedAt = &now
	req.UpdatedAt = now

	var version *entity.ProcessVersion
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.updateRequest(txCtx, op, req); err != nil {
			return err
		}
		if err := s.processRepo.UpdateStatus(txCtx, process.ID, next); err != nil {
			return fmt.Errorf("update process status: %w", err)
		}

		var err error
		version, err = s.versioning.PublishCurrent(txCtx, process, userID)
		if err != nil {
			return fmt.Errorf("publish version: %w", err)
		}

		_, err = s.audit.RecordApproval(txCtx, ApprovalEntry{
			ProcessID: process.ID,
			ActorID:   userID,
			From:      process.Status,
			To:        next,
			Comment:   req.DecisionComment,
			Details: entity.ApproveDetails{
				RequestID:     req.ID,
				VersionID:     version.ID,
				VersionNumber: version.VersionNumber,
			},
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to approve process", "error", err, "request_id", requestID)
		return nil, err
	}

	s.logger.Info("Process approved",
		"request_id", requestID,
		"process_id", process.ID,
		"version", version.VersionNumber,
		"user_id", userID,
	)
	s.publish(ctx, event.NewEvent(event.TypeApprovalApproved, process.ID, userID, map[string]interface{}{
		event.KeyRequestID:     req.ID,
		event.KeyRequestedBy:   req.RequestedBy,
		event.KeyTitle:         process.Title,
		event.KeyComment:       req.DecisionComment,
		event.KeyVersionNumber: version.VersionNumber,
	}))
	return req, nil
}

// RejectProcess rejects an open request. A non-empty reason is required.
func (s *approvalServiceImpl) RejectProcess(ctx context.Context, requestID int64, userID, comment string) (req *entity.ApprovalRequest, err error) {
	const op = "ApprovalService.RejectProcess"
	ctx, span := startSpan(ctx, op, attribute.Int64(attrRequestID, requestID), attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	req, process, err := s.loadDecision(ctx, op, requestID, userID)
	if err != nil {
		return nil, err
	}

	reason := strings.TrimSpace(comment)
	if reason == "" {
		return nil, validation(op, "a rejection reason is required")
	}

	next, err := transition(ctx, s.lifecycle, op, process.Status, domainwf.TriggerReject)
	if err != nil {
		return nil, err
	}

	now := s.now()
	req.Status = entity.ApprovalRejected
	req.ApproverID = userID
	req.DecisionComment = reason
	req.RejectionReason = reason
	req.RejectedAt = &now
	req.UpdatedAt = now

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.updateRequest(txCtx, op, req); err != nil {
			return err
		}
		if err := s.processRepo.UpdateStatus(txCtx, process.ID, next); err != nil {
			return fmt.Errorf("update process status: %w", err)
		}
		_, err := s.audit.RecordApproval(txCtx, ApprovalEntry{
			ProcessID: process.ID,
			ActorID:   userID,
			From:      process.Status,
			To:        next,
			Comment:   reason,
			Details:   entity.RejectDetails{RequestID: req.ID, Reason: reason},
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to reject process", "error", err, "request_id", requestID)
		return nil, err
	}

	s.logger.Info("Process rejected", "request_id", requestID, "process_id", process.ID, "user_id", userID)
	s.publish(ctx, event.NewEvent(event.TypeApprovalRejected, process.ID, userID, map[string]interface{}{
		event.KeyRequestID:   req.ID,
		event.KeyRequestedBy: req.RequestedBy,
		event.KeyTitle:       process.Title,
		event.KeyReason:      reason,
	}))
	return req, nil
}

// WithdrawApprovalRequest lets the requester pull back the open request
func (s *approvalServiceImpl) WithdrawApprovalRequest(ctx context.Context, processID int64, userID string) (req *entity.ApprovalRequest, err error) {
	const op = "ApprovalService.WithdrawApprovalRequest"
	ctx, span := startSpan(ctx, op, attribute.Int64(attrProcessID, processID), attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	req, err = s.approvalRepo.GetActiveByProcessID(ctx, processID)
	if err != nil {
		return nil, fmt.Errorf("get active request: %w", err)
	}
	if req == nil {
		return nil, notFound(op, "process %d has no open approval request", processID)
	}
	if req.RequestedBy != userID {
		return nil, unauthorized(op, "only the requester can withdraw request %d", req.ID)
	}

	process, err := s.processRepo.GetByID(ctx, processID)
	if err != nil {
		return nil, fmt.Errorf("get process: %w", err)
	}
	if process == nil {
		return nil, notFound(op, "process %d not found", processID)
	}

	next, err := transition(ctx, s.lifecycle, op, process.Status, domainwf.TriggerWithdraw)
	if err != nil {
		return nil, err
	}

	now := s.now()
	req.Status = entity.ApprovalWithdrawn
	req.WithdrawnAt = &now
	req.UpdatedAt = now

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.updateRequest(txCtx, op, req); err != nil {
			return err
		}
		if err := s.processRepo.UpdateStatus(txCtx, processID, next); err != nil {
			return fmt.Errorf("update process status: %w", err)
		}
		_, err := s.audit.RecordApproval(txCtx, ApprovalEntry{
			ProcessID: processID,
			ActorID:   userID,
			From:      process.Status,
			To:        next,
			Details:   entity.WithdrawDetails{RequestID: req.ID},
		})
		return err
	})
	if err != nil {
		s.logger.Error("Failed to withdraw approval request", "error", err, "process_id", processID)
		return nil, err
	}

	s.logger.Info("Approval request withdrawn", "request_id", req.ID, "process_id", processID, "user_id", userID)
	s.publish(ctx, event.NewEvent(event.TypeApprovalWithdrawn, processID, userID, map[string]interface{}{
		event.KeyRequestID:   req.ID,
		event.KeyRequestedBy: req.RequestedBy,
		event.KeyTitle:       process.Title,
	}))
	return req, nil
}

// AddComment appends a discussion entry to an open request
func (s *approvalServiceImpl) AddComment(ctx context.Context, requestID int64, userID, comment string, commentType entity.CommentType) (*entity.ApprovalComment, error) {
	const op = "ApprovalService.AddComment"

	text := strings.TrimSpace(comment)
	if text == "" {
		return nil, validation(op, "comment is required")
	}
	if commentType == "" {
		commentType = entity.CommentGeneral
	}
	if !commentType.IsValid() {
		return nil, validation(op, "invalid comment type %q", commentType)
	}

	req, err := s.approvalRepo.GetByID(ctx, requestID)
	if err != nil {
		return nil, fmt.Errorf("get approval request: %w", err)
	}
	if req == nil {
		return nil, notFound(op, "approval request %d not found", requestID)
	}
	if req.RequestedBy != userID {
		allowed, err := s.hasPermission(ctx, userID, entity.PermApproveProcess)
		if err != nil {
			return nil, err
		}
		if !allowed {
			return nil, unauthorized(op, "user %s cannot comment on request %d", userID, requestID)
		}
	}
	if req.Status.IsTerminal() {
		return nil, invalidState(op, "request %d is %s", requestID, req.Status)
	}

	c := &entity.ApprovalComment{
		ApprovalRequestID: requestID,
		UserID:            userID,
		Comment:           text,
		CommentType:       commentType,
		CreatedAt:         s.now(),
	}
	if err := s.commentRepo.Create(ctx, c); err != nil {
		s.logger.Error("Failed to add approval comment", "error", err, "request_id", requestID)
		return nil, fmt.Errorf("create comment: %w", err)
	}

	s.publish(ctx, event.NewEvent(event.TypeApprovalCommented, req.ProcessID, userID, map[string]interface{}{
		event.KeyRequestID:   requestID,
		event.KeyRequestedBy: req.RequestedBy,
		event.KeyComment:     text,
	}))
	return c, nil
}

// GetApprovalQueue returns open requests oldest first plus recent decisions
func (s *approvalServiceImpl) GetApprovalQueue(ctx context.Context, userID string) (*ApprovalQueue, error) {
	const op = "ApprovalService.GetApprovalQueue"

	allowed, err := s.hasPermission(ctx, userID, entity.PermApproveProcess)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, unauthorized(op, "user %s cannot approve processes", userID)
	}

	all, err := s.approvalRepo.ListByStatus(ctx,
		entity.ApprovalPending, entity.ApprovalInProgress, entity.ApprovalApproved, entity.ApprovalRejected)
	if err != nil {
		s.logger.Error("Failed to list approval requests", "error", err)
		return nil, fmt.Errorf("list approval requests: %w", err)
	}

	now := s.now()
	queue := &ApprovalQueue{
		Pending:           []*entity.ApprovalRequest{},
		InProgress:        []*entity.ApprovalRequest{},
		RecentlyCompleted: []*entity.ApprovalRequest{},
		Statistics:        s.statistics(all, userID, now),
	}

	cutoff := now.Add(-s.opts.RecentWindow)
	for _, r := range all {
		switch r.Status {
		case entity.ApprovalPending:
			queue.Pending = append(queue.Pending, r)
		case entity.ApprovalInProgress:
			queue.InProgress = append(queue.InProgress, r)
		default:
			if decided := r.DecidedAt(); decided != nil && !decided.Before(cutoff) {
				queue.RecentlyCompleted = append(queue.RecentlyCompleted, r)
			}
		}
	}

	sort.SliceStable(queue.RecentlyCompleted, func(i, j int) bool {
		return queue.RecentlyCompleted[i].DecidedAt().After(*queue.RecentlyCompleted[j].DecidedAt())
	})
	if len(queue.RecentlyCompleted) > s.opts.RecentLimit {
		queue.RecentlyCompleted = queue.RecentlyCompleted[:s.opts.RecentLimit]
	}

	return queue, nil
}

// GetApprovalStatistics returns workload counters for userID
func (s *approvalServiceImpl) GetApprovalStatistics(ctx context.Context, userID string) (*ApprovalStatistics, error) {
	all, err := s.approvalRepo.ListByStatus(ctx,
		entity.ApprovalPending, entity.ApprovalInProgress, entity.ApprovalApproved, entity.ApprovalRejected)
	if err != nil {
		s.logger.Error("Failed to list approval requests", "error", err)
		return nil, fmt.Errorf("list approval requests: %w", err)
	}
	return s.statistics(all, userID, s.now()), nil
}

func (s *approvalServiceImpl) statistics(requests []*entity.ApprovalRequest, userID string, now time.Time) *ApprovalStatistics {
	stats := &ApprovalStatistics{}
	cutoff := now.Add(-s.opts.StatsWindow)

	var totalHours float64
	var decidedCount int
	for _, r := range requests {
		switch r.Status {
		case entity.ApprovalPending:
			stats.TotalPending++
		case entity.ApprovalInProgress:
			stats.TotalInProgress++
		}

		if r.Status.IsOpen() && r.RequestedBy == userID {
			stats.MyPending++
		}

		decided := r.DecidedAt()
		if decided == nil {
			continue
		}
		if !decided.Before(cutoff) {
			stats.CompletedLast30Days++
		}
		if r.ApproverID == userID {
			stats.MyCompleted++
		}
		if !r.RequestedAt.IsZero() {
			totalHours += decided.Sub(r.RequestedAt).Hours()
			decidedCount++
		}
	}

	if decidedCount > 0 {
		stats.AverageApprovalTimeHours = totalHours / float64(decidedCount)
	}
	return stats
}

// GetMyRequests returns requests the user submitted or decided, newest first
func (s *approvalServiceImpl) GetMyRequests(ctx context.Context, userID string) ([]*entity.ApprovalRequest, error) {
	requests, err := s.approvalRepo.ListForUser(ctx, userID)
	if err != nil {
		s.logger.Error("Failed to list user requests", "error", err, "user_id", userID)
		return nil, err
	}
	return requests, nil
}

// GetApprovalRequest retrieves a request by ID
func (s *approvalServiceImpl) GetApprovalRequest(ctx context.Context, requestID int64) (*entity.ApprovalRequest, error) {
	req, err := s.approvalRepo.GetByID(ctx, requestID)
	if err != nil {
		s.logger.Error("Failed to get approval request", "error", err, "request_id", requestID)
		return nil, err
	}
	if req == nil {
		return nil, notFound("ApprovalService.GetApprovalRequest", "approval request %d not found", requestID)
	}
	return req, nil
}

// GetCurrentRequestForProcess returns the open request of a process, or nil
func (s *approvalServiceImpl) GetCurrentRequestForProcess(ctx context.Context, processID int64) (*entity.ApprovalRequest, error) {
	return s.approvalRepo.GetActiveByProcessID(ctx, processID)
}

func (s *approvalServiceImpl) GetApprovalHistory(ctx context.Context, processID int64) ([]*entity.ApprovalHistory, error) {
	return s.audit.ApprovalHistory(ctx, processID)
}

func (s *approvalServiceImpl) GetComments(ctx context.Context, requestID int64) ([]*entity.ApprovalComment, error) {
	return s.commentRepo.ListByRequestID(ctx, requestID)
}

// CanApprove reports whether the user holds approve_process
func (s *approvalServiceImpl) CanApprove(ctx context.Context, userID string) (bool, error) {
	return s.hasPermission(ctx, userID, entity.PermApproveProcess)
}

// CanSubmit reports whether the user created or owns the process
func (s *approvalServiceImpl) CanSubmit(ctx context.Context, processID int64, userID string) (bool, error) {
	process, err := s.processRepo.GetByID(ctx, processID)
	if err != nil {
		return false, err
	}
	if process == nil || process.IsDeleted {
		return false, nil
	}
	return process.IsCreatorOrOwner(userID), nil
}

// loadDecision loads an open request and its process for an approver
func (s *approvalServiceImpl) loadDecision(ctx context.Context, op string, requestID int64, userID string) (*entity.ApprovalRequest, *entity.Process, error) {
	req, err := s.approvalRepo.GetByID(ctx, requestID)
	if err != nil {
		s.logger.Error("Failed to get approval request", "error", err, "request_id", requestID)
		return nil, nil, fmt.Errorf("get approval request: %w", err)
	}
	if req == nil {
		return nil, nil, notFound(op, "approval request %d not found", requestID)
	}
	if !req.Status.IsOpen() {
		return nil, nil, invalidState(op, "approval request %d is already %s", requestID, req.Status)
	}

	allowed, err := s.hasPermission(ctx, userID, entity.PermApproveProcess)
	if err != nil {
		return nil, nil, err
	}
	if !allowed {
		return nil, nil, unauthorized(op, "user %s cannot approve processes", userID)
	}

	process, err := s.processRepo.GetByID(ctx, req.ProcessID)
	if err != nil {
		return nil, nil, fmt.Errorf("get process: %w", err)
	}
	if process == nil || process.IsDeleted {
		return nil, nil, notFound(op, "process %d not found", req.ProcessID)
	}
	return req, process, nil
}

func (s *approvalServiceImpl) updateRequest(ctx context.Context, op string, req *entity.ApprovalRequest) error {
	if err := s.approvalRepo.Update(ctx, req); err != nil {
		if errors.Is(err, port.ErrRequestClosed) {
			return invalidState(op, "approval request %d was decided concurrently", req.ID)
		}
		return fmt.Errorf("update approval request: %w", err)
	}
	return nil
}

func (s *approvalServiceImpl) hasPermission(ctx context.Context, userID string, perm entity.Permission) (bool, error) {
	return checkPermission(ctx, s.authorizer, userID, perm)
}

func (s *approvalServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.events != nil {
		s.events.DispatchAsync(ctx, evt)
	}
}

// transition resolves the next status, mapping lifecycle refusals to ErrInvalidState
func transition(ctx context.Context, lc workflow.Lifecycle, op string, current entity.ProcessStatus, trigger domainwf.Trigger) (entity.ProcessStatus, error) {
	next, err := lc.Next(ctx, current, trigger)
	if err != nil {
		return "", &ServiceError{
			Op:      op,
			Code:    CodeInvalidState,
			Message: fmt.Sprintf("cannot %s a process in status %s", strings.ToLower(trigger.String()), current),
			Err:     fmt.Errorf("%w: %w", ErrInvalidState, err),
		}
	}
	return next, nil
}

func checkPermission(ctx context.Context, authorizer port.Authorizer, userID string, perm entity.Permission) (bool, error) {
	if userID == "" {
		return false, nil
	}
	allowed, err := authorizer.HasPermission(ctx, userID, perm)
	if err != nil {
		return false, fmt.Errorf("check permission %s: %w", perm, err)
	}
	return allowed, nil
}
