package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/internal/infrastructure/persistence/sqlite"
)

const approvalColumns = `
	id, process_id, requested_by, request_comment, status, approver_id,
	decision_comment, rejection_reason, requested_at, approved_at, rejected_at,
	withdrawn_at, updated_at`

// ApprovalRepository implements port.ApprovalRepository
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval request repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a request. The partial unique index rejects a second open request per process.
func (r *ApprovalRepository) Create(ctx context.Context, req *entity.ApprovalRequest) error {
	now := time.Now().UTC()
	if req.RequestedAt.IsZero() {
		req.RequestedAt = now
	}
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = entity.ApprovalPending
	}

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO approval_requests (
			process_id, requested_by, request_comment, status, requested_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?)
	`, req.ProcessID, req.RequestedBy, req.RequestComment, req.Status, req.RequestedAt.UTC(), req.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create approval request",
			zap.Int64("process_id", req.ProcessID),
			zap.String("requested_by", req.RequestedBy),
			zap.Error(err))
		if isUniqueViolation(err) {
			return fmt.Errorf("failed to create approval request: %w: %v", port.ErrDuplicate, err)
		}
		return fmt.Errorf("failed to create approval request: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	req.ID = id
	return nil
}

// GetByID returns a request, or nil
func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*entity.ApprovalRequest, error) {
	req, err := scanApproval(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval request", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval request: %w", err)
	}
	return req, nil
}

// GetActiveByProcessID returns the Pending or InProgress request of a process, or nil
func (r *ApprovalRepository) GetActiveByProcessID(ctx context.Context, processID int64) (*entity.ApprovalRequest, error) {
	req, err := scanApproval(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+approvalColumns+` FROM approval_requests
		WHERE process_id = ? AND status IN (?, ?)
		ORDER BY requested_at DESC, id DESC
		LIMIT 1`,
		processID, entity.ApprovalPending, entity.ApprovalInProgress))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active approval request", zap.Int64("process_id", processID), zap.Error(err))
		return nil, fmt.Errorf("failed to get active approval request: %w", err)
	}
	return req, nil
}

// Update writes the decision columns of an open request
func (r *ApprovalRepository) Update(ctx context.Context, req *entity.ApprovalRequest) error {
	req.UpdatedAt = time.Now().UTC()

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE approval_requests
		SET status = ?, approver_id = ?, decision_comment = ?, rejection_reason = ?,
			approved_at = ?, rejected_at = ?, withdrawn_at = ?, updated_at = ?
		WHERE id = ? AND status IN (?, ?)
	`,
		req.Status, nullString(req.ApproverID), req.DecisionComment, req.RejectionReason,
		nullTime(req.ApprovedAt), nullTime(req.RejectedAt), nullTime(req.WithdrawnAt), req.UpdatedAt,
		req.ID, entity.ApprovalPending, entity.ApprovalInProgress,
	)
	if err != nil {
		r.logger.Error("Failed to update approval request", zap.Int64("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to update approval request: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("approval request %d: %w", req.ID, port.ErrRequestClosed)
	}
	return nil
}

// ListByStatus returns requests in any of the statuses, oldest request first
func (r *ApprovalRepository) ListByStatus(ctx context.Context, statuses ...entity.ApprovalStatus) ([]*entity.ApprovalRequest, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := make([]interface{}, len(statuses))
	for i, s := range statuses {
		args[i] = s
	}

	requests, err := r.query(ctx, `SELECT `+approvalColumns+` FROM approval_requests
		WHERE status IN (`+placeholders(len(statuses))+`)
		ORDER BY requested_at ASC, id ASC`, args...)
	if err != nil {
		r.logger.Error("Failed to list approval requests by status", zap.Error(err))
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	return requests, nil
}

// ListForUser returns requests submitted or decided by userID, newest first
func (r *ApprovalRepository) ListForUser(ctx context.Context, userID string) ([]*entity.ApprovalRequest, error) {
	requests, err := r.query(ctx, `SELECT `+approvalColumns+` FROM approval_requests
		WHERE requested_by = ? OR approver_id = ?
		ORDER BY requested_at DESC, id DESC`, userID, userID)
	if err != nil {
		r.logger.Error("Failed to list approval requests for user", zap.String("user_id", userID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approval requests: %w", err)
	}
	return requests, nil
}

// DeleteByProcessID removes the process's requests and their comments
func (r *ApprovalRepository) DeleteByProcessID(ctx context.Context, processID int64) error {
	exec := sqlite.ExecutorFor(ctx, r.db)
	for _, q := range []string{
		`DELETE FROM approval_comments WHERE approval_request_id IN (SELECT id FROM approval_requests WHERE process_id = ?)`,
		`DELETE FROM approval_requests WHERE process_id = ?`,
	} {
		if _, err := exec.ExecContext(ctx, q, processID); err != nil {
			r.logger.Error("Failed to delete approval requests", zap.Int64("process_id", processID), zap.Error(err))
			return fmt.Errorf("failed to delete approval requests: %w", err)
		}
	}
	return nil
}

func (r *ApprovalRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.ApprovalRequest, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var requests []*entity.ApprovalRequest
	for rows.Next() {
		req, err := scanApproval(rows)
		if err != nil {
			return nil, err
		}
		requests = append(requests, req)
	}
	return requests, rows.Err()
}

func scanApproval(row rowScanner) (*entity.ApprovalRequest, error) {
	var (
		req                                 entity.ApprovalRequest
		approverID                          sql.NullString
		approvedAt, rejectedAt, withdrawnAt sql.NullTime
	)
	if err := row.Scan(
		&req.ID, &req.ProcessID, &req.RequestedBy, &req.RequestComment, &req.Status, &approverID,
		&req.DecisionComment, &req.RejectionReason, &req.RequestedAt, &approvedAt, &rejectedAt,
		&withdrawnAt, &req.UpdatedAt,
	); err != nil {
		return nil, err
	}
	req.ApproverID = approverID.String
	req.RequestedAt = req.RequestedAt.UTC()
	req.UpdatedAt = req.UpdatedAt.UTC()
	req.ApprovedAt = timePtr(approvedAt)
	req.RejectedAt = timePtr(rejectedAt)
	req.WithdrawnAt = timePtr(withdrawnAt)
	return &req, nil
}

var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
