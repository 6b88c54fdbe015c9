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

// AutoSaveRepository implements port.AutoSaveRepository
type AutoSaveRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAutoSaveRepository creates a new auto-save repository
func NewAutoSaveRepository(db *sql.DB, logger *zap.Logger) port.AutoSaveRepository {
	return &AutoSaveRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an auto-save record
func (r *AutoSaveRepository) Create(ctx context.Context, a *entity.AutoSave) error {
	if a.SavedAt.IsZero() {
		a.SavedAt = time.Now().UTC()
	}

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, `
		INSERT INTO auto_saves (session_id, process_id, user_id, content, saved_at)
		VALUES (?, ?, ?, ?, ?)
	`, a.SessionID, a.ProcessID, a.UserID, a.Content, a.SavedAt.UTC())
	if err != nil {
		r.logger.Error("Failed to create auto-save", zap.String("session_id", a.SessionID), zap.Error(err))
		return fmt.Errorf("failed to create auto-save: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	a.ID = id
	return nil
}

// ListBySessionID returns a session's auto-saves, newest first
func (r *AutoSaveRepository) ListBySessionID(ctx context.Context, sessionID string) ([]*entity.AutoSave, error) {
	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, `
		SELECT id, session_id, process_id, user_id, content, saved_at
		FROM auto_saves
		WHERE session_id = ?
		ORDER BY saved_at DESC, id DESC
	`, sessionID)
	if err != nil {
		r.logger.Error("Failed to list auto-saves", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("failed to list auto-saves: %w", err)
	}
	defer rows.Close()

	var saves []*entity.AutoSave
	for rows.Next() {
		var a entity.AutoSave
		if err := rows.Scan(&a.ID, &a.SessionID, &a.ProcessID, &a.UserID, &a.Content, &a.SavedAt); err != nil {
			return nil, fmt.Errorf("failed to scan auto-save: %w", err)
		}
		a.SavedAt = a.SavedAt.UTC()
		saves = append(saves, &a)
	}
	return saves, rows.Err()
}

var _ port.AutoSaveRepository = (*AutoSaveRepository)(nil)
