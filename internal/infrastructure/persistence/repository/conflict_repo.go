package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/internal/infrastructure/persistence/sqlite"
)

const conflictColumns = `
	id, process_id, session_id_1, user_id_1, session_id_2, user_id_2,
	conflicting_fields, detected_at, resolved_at, resolved_by, resolution`

// ConflictRepository implements port.ConflictRepository
type ConflictRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewConflictRepository creates a new conflict repository
func NewConflictRepository(db *sql.DB, logger *zap.Logger) port.ConflictRepository {
	return &ConflictRepository{
		db:     db,
		logger: logger,
	}
}

// Create records a detected conflict
func (r *ConflictRepository) Create(ctx context.Context, c *entity.EditConflict) error {
	fields, err := json.Marshal(c.ConflictingFields)
	if err != nil {
		return fmt.Errorf("failed to marshal conflicting fields: %w", err)
	}
	if c.DetectedAt.IsZero() {
		c.DetectedAt = time.Now().UTC()
	}

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO edit_conflicts (
			process_id, session_id_1, user_id_1, session_id_2, user_id_2,
			conflicting_fields, detected_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`, c.ProcessID, c.SessionID1, c.UserID1, c.SessionID2, c.UserID2, string(fields), c.DetectedAt.UTC())
	if err != nil {
		r.logger.Error("Failed to create conflict", zap.Int64("process_id", c.ProcessID), zap.Error(err))
		return fmt.Errorf("failed to create conflict: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	c.ID = id
	return nil
}

// GetByID returns a conflict, or nil
func (r *ConflictRepository) GetByID(ctx context.Context, id int64) (*entity.EditConflict, error) {
	c, err := scanConflict(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT `+conflictColumns+` FROM edit_conflicts WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get conflict", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get conflict: %w", err)
	}
	return c, nil
}

// ListUnresolved returns open conflicts on a process, oldest first
func (r *ConflictRepository) ListUnresolved(ctx context.Context, processID int64) ([]*entity.EditConflict, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx,
		`SELECT `+conflictColumns+` FROM edit_conflicts
		WHERE process_id = ? AND resolved_at IS NULL
		ORDER BY detected_at ASC, id ASC`, processID)
	if err != nil {
		r.logger.Error("Failed to list conflicts", zap.Int64("process_id", processID), zap.Error(err))
		return nil, fmt.Errorf("failed to list conflicts: %w", err)
	}
	defer rows.Close()

	var conflicts []*entity.EditConflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conflict: %w", err)
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// Resolve stamps the resolution on an open conflict
func (r *ConflictRepository) Resolve(ctx context.Context, id int64, resolvedBy string, resolution entity.ConflictResolution, at time.Time) error {
	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE edit_conflicts
		SET resolved_at = ?, resolved_by = ?, resolution = ?
		WHERE id = ? AND resolved_at IS NULL
	`, at.UTC(), resolvedBy, resolution, id)
	if err != nil {
		r.logger.Error("Failed to resolve conflict", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to resolve conflict: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("conflict %d not found or already resolved", id)
	}
	return nil
}

// DeleteByProcessID removes all conflicts of the process
func (r *ConflictRepository) DeleteByProcessID(ctx context.Context, processID int64) error {
	if _, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM edit_conflicts WHERE process_id = ?`, processID); err != nil {
		r.logger.Error("Failed to delete conflicts", zap.Int64("process_id", processID), zap.Error(err))
		return fmt.Errorf("failed to delete conflicts: %w", err)
	}
	return nil
}

func scanConflict(row rowScanner) (*entity.EditConflict, error) {
	var (
		c                      entity.EditConflict
		fields                 string
		resolvedAt             sql.NullTime
		resolvedBy, resolution sql.NullString
	)
	if err := row.Scan(
		&c.ID, &c.ProcessID, &c.SessionID1, &c.UserID1, &c.SessionID2, &c.UserID2,
		&fields, &c.DetectedAt, &resolvedAt, &resolvedBy, &resolution,
	); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(fields), &c.ConflictingFields); err != nil {
		return nil, fmt.Errorf("failed to decode conflicting fields of conflict %d: %w", c.ID, err)
	}
	c.DetectedAt = c.DetectedAt.UTC()
	c.ResolvedAt = timePtr(resolvedAt)
	c.ResolvedBy = resolvedBy.String
	c.Resolution = entity.ConflictResolution(resolution.String)
	return &c, nil
}

var _ port.ConflictRepository = (*ConflictRepository)(nil)
