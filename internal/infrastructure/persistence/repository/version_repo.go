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

const versionColumns = `
	id, process_id, version_number, title, description, content, change_log,
	created_by, created_at, is_current, is_published, published_at, published_by`

// VersionRepository implements port.VersionRepository
type VersionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewVersionRepository creates a new version repository
func NewVersionRepository(db *sql.DB, logger *zap.Logger) port.VersionRepository {
	return &VersionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a version snapshot
func (r *VersionRepository) Create(ctx context.Context, v *entity.ProcessVersion) error {
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO process_versions (
			process_id, version_number, title, description, content, change_log,
			created_by, created_at, is_current, is_published, published_at, published_by
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		v.ProcessID,
		v.VersionNumber,
		v.Title,
		v.Description,
		v.Content,
		v.ChangeLog,
		v.CreatedBy,
		v.CreatedAt,
		v.IsCurrent,
		v.IsPublished,
		nullTime(v.PublishedAt),
		nullString(v.PublishedBy),
	)
	if err != nil {
		r.logger.Error("Failed to create version",
			zap.Int64("process_id", v.ProcessID),
			zap.String("version", v.VersionNumber),
			zap.Error(err))
		return fmt.Errorf("failed to create version: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	v.ID = id
	return nil
}

// GetCurrent returns the version flagged current, or nil
func (r *VersionRepository) GetCurrent(ctx context.Context, processID int64) (*entity.ProcessVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM process_versions WHERE process_id = ? AND is_current = 1`

	v, err := scanVersion(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, processID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get current version", zap.Int64("process_id", processID), zap.Error(err))
		return nil, fmt.Errorf("failed to get current version: %w", err)
	}
	return v, nil
}

// ListByProcessID returns all versions, newest first
func (r *VersionRepository) ListByProcessID(ctx context.Context, processID int64) ([]*entity.ProcessVersion, error) {
	query := `SELECT ` + versionColumns + ` FROM process_versions
		WHERE process_id = ?
		ORDER BY created_at DESC, id DESC`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, processID)
	if err != nil {
		r.logger.Error("Failed to list versions", zap.Int64("process_id", processID), zap.Error(err))
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*entity.ProcessVersion
	for rows.Next() {
		v, err := scanVersion(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, v)
	}
	return versions, rows.Err()
}

// CountByProcessID counts stored versions
func (r *VersionRepository) CountByProcessID(ctx context.Context, processID int64) (int, error) {
	var n int
	err := sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx,
		`SELECT COUNT(*) FROM process_versions WHERE process_id = ?`, processID,
	).Scan(&n)
	if err != nil {
		r.logger.Error("Failed to count versions", zap.Int64("process_id", processID), zap.Error(err))
		return 0, fmt.Errorf("failed to count versions: %w", err)
	}
	return n, nil
}

// ClearCurrent drops the current flag from every version of the process
func (r *VersionRepository) ClearCurrent(ctx context.Context, processID int64) error {
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx,
		`UPDATE process_versions SET is_current = 0 WHERE process_id = ? AND is_current = 1`, processID)
	if err != nil {
		r.logger.Error("Failed to clear current version", zap.Int64("process_id", processID), zap.Error(err))
		return fmt.Errorf("failed to clear current version: %w", err)
	}
	return nil
}

// MarkPublished stamps a version as published once; later calls leave the first stamp
func (r *VersionRepository) MarkPublished(ctx context.Context, id int64, publishedBy string, at time.Time) error {
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		UPDATE process_versions
		SET is_published = 1, published_at = ?, published_by = ?
		WHERE id = ? AND is_published = 0
	`, at.UTC(), publishedBy, id)
	if err != nil {
		r.logger.Error("Failed to publish version", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to publish version: %w", err)
	}
	return nil
}

// DeleteByProcessID removes every version of the process. Sessions referencing
// a version must be removed first.
func (r *VersionRepository) DeleteByProcessID(ctx context.Context, processID int64) error {
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx,
		`DELETE FROM process_versions WHERE process_id = ?`, processID)
	if err != nil {
		r.logger.Error("Failed to delete versions", zap.Int64("process_id", processID), zap.Error(err))
		return fmt.Errorf("failed to delete versions: %w", err)
	}
	return nil
}

func scanVersion(row rowScanner) (*entity.ProcessVersion, error) {
	var (
		v           entity.ProcessVersion
		publishedAt sql.NullTime
		publishedBy sql.NullString
	)
	if err := row.Scan(
		&v.ID, &v.ProcessID, &v.VersionNumber, &v.Title, &v.Description, &v.Content, &v.ChangeLog,
		&v.CreatedBy, &v.CreatedAt, &v.IsCurrent, &v.IsPublished, &publishedAt, &publishedBy,
	); err != nil {
		return nil, err
	}
	v.CreatedAt = v.CreatedAt.UTC()
	v.PublishedAt = timePtr(publishedAt)
	v.PublishedBy = publishedBy.String
	return &v, nil
}

var _ port.VersionRepository = (*VersionRepository)(nil)
