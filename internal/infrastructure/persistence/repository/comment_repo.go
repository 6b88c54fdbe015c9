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

// CommentRepository implements port.CommentRepository
type CommentRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewCommentRepository creates a new approval comment repository
func NewCommentRepository(db *sql.DB, logger *zap.Logger) port.CommentRepository {
	return &CommentRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a comment
func (r *CommentRepository) Create(ctx context.Context, c *entity.ApprovalComment) error {
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO approval_comments (approval_request_id, user_id, comment, comment_type, created_at)
		VALUES (?, ?, ?, ?, ?)
	`, c.ApprovalRequestID, c.UserID, c.Comment, c.CommentType, c.CreatedAt.UTC())
	if err != nil {
		r.logger.Error("Failed to create comment", zap.Int64("request_id", c.ApprovalRequestID), zap.Error(err))
		return fmt.Errorf("failed to create comment: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// ListByRequestID returns a request's comments, oldest first
func (r *CommentRepository) ListByRequestID(ctx context.Context, requestID int64) ([]*entity.ApprovalComment, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, `
		SELECT id, approval_request_id, user_id, comment, comment_type, created_at
		FROM approval_comments
		WHERE approval_request_id = ?
		ORDER BY created_at ASC, id ASC
	`, requestID)
	if err != nil {
		r.logger.Error("Failed to list comments", zap.Int64("request_id", requestID), zap.Error(err))
		return nil, fmt.Errorf("failed to list comments: %w", err)
	}
	defer rows.Close()

	var comments []*entity.ApprovalComment
	for rows.Next() {
		var c entity.ApprovalComment
		if err := rows.Scan(&c.ID, &c.ApprovalRequestID, &c.UserID, &c.Comment, &c.CommentType, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan comment: %w", err)
		}
		c.CreatedAt = c.CreatedAt.UTC()
		comments = append(comments, &c)
	}
	return comments, rows.Err()
}

var _ port.CommentRepository = (*CommentRepository)(nil)
