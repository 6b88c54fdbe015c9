package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/internal/infrastructure/persistence/sqlite"
)

const processColumns = `
	id, title, description, category, status, is_active, is_deleted,
	deleted_at, deleted_by, deletion_reason, created_by, owner_id,
	created_at, updated_at, view_count, last_accessed_at`

// ProcessRepository implements port.ProcessRepository
type ProcessRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProcessRepository creates a new process repository
func NewProcessRepository(db *sql.DB, logger *zap.Logger) port.ProcessRepository {
	return &ProcessRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the process with its steps and tags
func (r *ProcessRepository) Create(ctx context.Context, p *entity.Process) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = entity.StatusDraft
	}

	query := `
		INSERT INTO processes (
			title, description, category, status, is_active, is_deleted,
			deletion_reason, created_by, owner_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, 0, '', ?, ?, ?, ?)
	`

	result, err := r.exec(ctx).ExecContext(ctx, query,
		p.Title,
		p.Description,
		p.Category,
		p.Status,
		p.IsActive,
		p.CreatedBy,
		nullString(p.OwnerID),
		p.CreatedAt,
		p.UpdatedAt,
	)
	if err != nil {
		r.logger.Error("Failed to create process", zap.String("title", p.Title), zap.Error(err))
		return fmt.Errorf("failed to create process: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	p.ID = id

	if err := r.ReplaceSteps(ctx, id, p.Steps); err != nil {
		return err
	}
	if err := r.ReplaceTags(ctx, id, p.Tags); err != nil {
		return err
	}

	steps, err := r.loadSteps(ctx, id)
	if err != nil {
		return err
	}
	tags, err := r.loadTags(ctx, id)
	if err != nil {
		return err
	}
	p.Steps, p.Tags = steps, tags
	return nil
}

// GetByID retrieves a process with steps and tags. Returns nil, nil when missing.
func (r *ProcessRepository) GetByID(ctx context.Context, id int64) (*entity.Process, error) {
	query := `SELECT ` + processColumns + ` FROM processes WHERE id = ?`

	p, err := scanProcess(r.exec(ctx).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get process by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get process: %w", err)
	}

	if p.Steps, err = r.loadSteps(ctx, id); err != nil {
		return nil, err
	}
	if p.Tags, err = r.loadTags(ctx, id); err != nil {
		return nil, err
	}
	return p, nil
}

// List returns live processes, newest update first, with their tags
func (r *ProcessRepository) List(ctx context.Context, filter port.ProcessFilter) ([]*entity.Process, error) {
	var (
		where = []string{"is_deleted = 0"}
		args  []interface{}
	)
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, filter.Status)
	}
	if filter.Category != "" {
		where = append(where, "category = ?")
		args = append(args, filter.Category)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}
	args = append(args, limit, filter.Offset)

	query := `SELECT ` + processColumns + ` FROM processes
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY updated_at DESC, id DESC
		LIMIT ? OFFSET ?`

	processes, err := r.query(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list processes", zap.Error(err))
		return nil, fmt.Errorf("failed to list processes: %w", err)
	}

	for _, p := range processes {
		if p.Tags, err = r.loadTags(ctx, p.ID); err != nil {
			return nil, err
		}
	}
	return processes, nil
}

// UpdateContent writes title, description, category and owner
func (r *ProcessRepository) UpdateContent(ctx context.Context, p *entity.Process) error {
	p.UpdatedAt = time.Now().UTC()
	query := `
		UPDATE processes
		SET title = ?, description = ?, category = ?, owner_id = ?, updated_at = ?
		WHERE id = ?
	`
	return r.update(ctx, "content", p.ID, query,
		p.Title, p.Description, p.Category, nullString(p.OwnerID), p.UpdatedAt, p.ID)
}

// UpdateStatus sets the lifecycle status
func (r *ProcessRepository) UpdateStatus(ctx context.Context, id int64, status entity.ProcessStatus) error {
	query := `UPDATE processes SET status = ?, updated_at = ? WHERE id = ?`
	return r.update(ctx, "status", id, query, status, time.Now().UTC(), id)
}

// MarkDeleted soft-deletes the process
func (r *ProcessRepository) MarkDeleted(ctx context.Context, id int64, deletedBy, reason string, at time.Time) error {
	query := `
		UPDATE processes
		SET is_deleted = 1, status = ?, deleted_at = ?, deleted_by = ?, deletion_reason = ?, updated_at = ?
		WHERE id = ?
	`
	return r.update(ctx, "deletion mark", id, query,
		entity.StatusDeleted, at.UTC(), deletedBy, reason, at.UTC(), id)
}

// ClearDeleted reverses a soft delete and sets status
func (r *ProcessRepository) ClearDeleted(ctx context.Context, id int64, status entity.ProcessStatus) error {
	query := `
		UPDATE processes
		SET is_deleted = 0, status = ?, deleted_at = NULL, deleted_by = NULL, deletion_reason = '', updated_at = ?
		WHERE id = ?
	`
	return r.update(ctx, "deletion clear", id, query, status, time.Now().UTC(), id)
}

// ReplaceSteps swaps the full ordered step list
func (r *ProcessRepository) ReplaceSteps(ctx context.Context, processID int64, steps []entity.ProcessStep) error {
	exec := r.exec(ctx)
	if _, err := exec.ExecContext(ctx, `DELETE FROM process_steps WHERE process_id = ?`, processID); err != nil {
		r.logger.Error("Failed to clear steps", zap.Int64("process_id", processID), zap.Error(err))
		return fmt.Errorf("failed to clear steps: %w", err)
	}

	query := `
		INSERT INTO process_steps (
			process_id, title, description, detailed_instructions, order_index,
			step_type, responsible_role, estimated_duration_minutes, is_optional, parent_index
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	for _, s := range entity.NormalizeSteps(steps) {
		var duration, parent sql.NullInt64
		if s.EstimatedDurationMinutes != nil {
			duration = sql.NullInt64{Int64: int64(*s.EstimatedDurationMinutes), Valid: true}
		}
		if s.ParentIndex != nil {
			parent = sql.NullInt64{Int64: int64(*s.ParentIndex), Valid: true}
		}

		if _, err := exec.ExecContext(ctx, query,
			processID, s.Title, s.Description, s.DetailedInstructions, s.OrderIndex,
			s.StepType, s.ResponsibleRole, duration, s.IsOptional, parent,
		); err != nil {
			r.logger.Error("Failed to insert step",
				zap.Int64("process_id", processID),
				zap.Int("order_index", s.OrderIndex),
				zap.Error(err))
			return fmt.Errorf("failed to insert step: %w", err)
		}
	}
	return nil
}

// ReplaceTags swaps the full tag list
func (r *ProcessRepository) ReplaceTags(ctx context.Context, processID int64, tags []entity.ProcessTag) error {
	exec := r.exec(ctx)
	if _, err := exec.ExecContext(ctx, `DELETE FROM process_tags WHERE process_id = ?`, processID); err != nil {
		r.logger.Error("Failed to clear tags", zap.Int64("process_id", processID), zap.Error(err))
		return fmt.Errorf("failed to clear tags: %w", err)
	}

	for _, t := range tags {
		color := t.Color
		if color == "" {
			color = entity.TagColor(t.Name)
		}
		if _, err := exec.ExecContext(ctx,
			`INSERT INTO process_tags (process_id, name, color) VALUES (?, ?, ?)`,
			processID, t.Name, color,
		); err != nil {
			r.logger.Error("Failed to insert tag",
				zap.Int64("process_id", processID),
				zap.String("tag", t.Name),
				zap.Error(err))
			return fmt.Errorf("failed to insert tag: %w", err)
		}
	}
	return nil
}

// RecordView increments the view counter and stamps LastAccessedAt
func (r *ProcessRepository) RecordView(ctx context.Context, id int64, at time.Time) error {
	query := `UPDATE processes SET view_count = view_count + 1, last_accessed_at = ? WHERE id = ?`
	return r.update(ctx, "view count", id, query, at.UTC(), id)
}

// ListDeleted returns soft-deleted processes, most recently deleted first, and the total count
func (r *ProcessRepository) ListDeleted(ctx context.Context, filter port.DeletedFilter) ([]*entity.Process, int, error) {
	where := "is_deleted = 1"
	var args []interface{}
	if filter.VisibleTo != "" {
		where += " AND (created_by = ? OR owner_id = ?)"
		args = append(args, filter.VisibleTo, filter.VisibleTo)
	}

	var total int
	if err := r.exec(ctx).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM processes WHERE `+where, args...,
	).Scan(&total); err != nil {
		r.logger.Error("Failed to count deleted processes", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to count deleted processes: %w", err)
	}

	query := `SELECT ` + processColumns + ` FROM processes
		WHERE ` + where + `
		ORDER BY deleted_at DESC, id DESC
		LIMIT ? OFFSET ?`

	processes, err := r.query(ctx, query, append(args, filter.Limit, filter.Offset)...)
	if err != nil {
		r.logger.Error("Failed to list deleted processes", zap.Error(err))
		return nil, 0, fmt.Errorf("failed to list deleted processes: %w", err)
	}
	return processes, total, nil
}

// Delete removes the process row with its steps and tags
func (r *ProcessRepository) Delete(ctx context.Context, id int64) error {
	exec := r.exec(ctx)
	for _, q := range []string{
		`DELETE FROM process_tags WHERE process_id = ?`,
		`DELETE FROM process_steps WHERE process_id = ?`,
		`DELETE FROM processes WHERE id = ?`,
	} {
		if _, err := exec.ExecContext(ctx, q, id); err != nil {
			r.logger.Error("Failed to delete process", zap.Int64("id", id), zap.Error(err))
			return fmt.Errorf("failed to delete process: %w", err)
		}
	}
	return nil
}

func (r *ProcessRepository) exec(ctx context.Context) sqlite.Executor {
	return sqlite.ExecutorFor(ctx, r.db)
}

func (r *ProcessRepository) update(ctx context.Context, what string, id int64, query string, args ...interface{}) error {
	result, err := r.exec(ctx).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to update process "+what, zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to update process %s: %w", what, err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("process not found: %d", id)
	}
	return nil
}

func (r *ProcessRepository) query(ctx context.Context, query string, args ...interface{}) ([]*entity.Process, error) {
	rows, err := r.exec(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var processes []*entity.Process
	for rows.Next() {
		p, err := scanProcess(rows)
		if err != nil {
			return nil, err
		}
		processes = append(processes, p)
	}
	return processes, rows.Err()
}

func (r *ProcessRepository) loadSteps(ctx context.Context, processID int64) ([]entity.ProcessStep, error) {
	query := `
		SELECT id, process_id, title, description, detailed_instructions, order_index,
			step_type, responsible_role, estimated_duration_minutes, is_optional, parent_index
		FROM process_steps
		WHERE process_id = ?
		ORDER BY order_index ASC
	`
	rows, err := r.exec(ctx).QueryContext(ctx, query, processID)
	if err != nil {
		r.logger.Error("Failed to load steps", zap.Int64("process_id", processID), zap.Error(err))
		return nil, fmt.Errorf("failed to load steps: %w", err)
	}
	defer rows.Close()

	steps := []entity.ProcessStep{}
	for rows.Next() {
		var s entity.ProcessStep
		var duration, parent sql.NullInt64
		if err := rows.Scan(
			&s.ID, &s.ProcessID, &s.Title, &s.Description, &s.DetailedInstructions, &s.OrderIndex,
			&s.StepType, &s.ResponsibleRole, &duration, &s.IsOptional, &parent,
		); err != nil {
			return nil, fmt.Errorf("failed to scan step: %w", err)
		}
		if duration.Valid {
			d := int(duration.Int64)
			s.EstimatedDurationMinutes = &d
		}
		if parent.Valid {
			p := int(parent.Int64)
			s.ParentIndex = &p
		}
		steps = append(steps, s)
	}
	return steps, rows.Err()
}

func (r *ProcessRepository) loadTags(ctx context.Context, processID int64) ([]entity.ProcessTag, error) {
	rows, err := r.exec(ctx).QueryContext(ctx,
		`SELECT id, process_id, name, color FROM process_tags WHERE process_id = ? ORDER BY id ASC`,
		processID,
	)
	if err != nil {
		r.logger.Error("Failed to load tags", zap.Int64("process_id", processID), zap.Error(err))
		return nil, fmt.Errorf("failed to load tags: %w", err)
	}
	defer rows.Close()

	tags := []entity.ProcessTag{}
	for rows.Next() {
		var t entity.ProcessTag
		if err := rows.Scan(&t.ID, &t.ProcessID, &t.Name, &t.Color); err != nil {
			return nil, fmt.Errorf("failed to scan tag: %w", err)
		}
		tags = append(tags, t)
	}
	return tags, rows.Err()
}

func scanProcess(row rowScanner) (*entity.Process, error) {
	var (
		p                         entity.Process
		deletedAt, lastAccessedAt sql.NullTime
		deletedBy, ownerID        sql.NullString
	)
	if err := row.Scan(
		&p.ID, &p.Title, &p.Description, &p.Category, &p.Status, &p.IsActive, &p.IsDeleted,
		&deletedAt, &deletedBy, &p.DeletionReason, &p.CreatedBy, &ownerID,
		&p.CreatedAt, &p.UpdatedAt, &p.ViewCount, &lastAccessedAt,
	); err != nil {
		return nil, err
	}

	p.DeletedAt = timePtr(deletedAt)
	p.LastAccessedAt = timePtr(lastAccessedAt)
	p.DeletedBy = deletedBy.String
	p.OwnerID = ownerID.String
	p.CreatedAt = p.CreatedAt.UTC()
	p.UpdatedAt = p.UpdatedAt.UTC()
	return &p, nil
}

var _ port.ProcessRepository = (*ProcessRepository)(nil)
