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

const sessionColumns = `
	id, session_id, process_id, user_id, status, comment, completion_comment,
	started_at, last_activity, completed_at, last_auto_save,
	draft_title, draft_description, draft_category, draft_owner_id,
	draft_tags, draft_steps, created_version_id`

// EditSessionRepository implements port.EditSessionRepository
type EditSessionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewEditSessionRepository creates a new edit session repository
func NewEditSessionRepository(db *sql.DB, logger *zap.Logger) port.EditSessionRepository {
	return &EditSessionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a session
func (r *EditSessionRepository) Create(ctx context.Context, s *entity.EditSession) error {
	tags, steps, err := marshalDrafts(s)
	if err != nil {
		return err
	}
	if s.Status == "" {
		s.Status = entity.SessionActive
	}

	query := `
		INSERT INTO edit_sessions (
			session_id, process_id, user_id, status, comment, completion_comment,
			started_at, last_activity, completed_at, last_auto_save,
			draft_title, draft_description, draft_category, draft_owner_id,
			draft_tags, draft_steps, created_version_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		s.SessionID, s.ProcessID, s.UserID, s.Status, s.Comment, s.CompletionComment,
		s.StartedAt.UTC(), s.LastActivity.UTC(), nullTime(s.CompletedAt), nullTime(s.LastAutoSave),
		nullStringPtr(s.DraftTitle), nullStringPtr(s.DraftDescription),
		nullStringPtr(s.DraftCategory), nullStringPtr(s.DraftOwnerID),
		tags, steps, nullInt64(s.CreatedVersionID),
	)
	if err != nil {
		r.logger.Error("Failed to create edit session",
			zap.Int64("process_id", s.ProcessID),
			zap.String("user_id", s.UserID),
			zap.Error(err))
		return fmt.Errorf("failed to create edit session: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	s.ID = id
	return nil
}

// GetBySessionID returns the session for a token, or nil
func (r *EditSessionRepository) GetBySessionID(ctx context.Context, sessionID string) (*entity.EditSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM edit_sessions WHERE session_id = ?`

	s, err := scanSession(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, sessionID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get edit session", zap.String("session_id", sessionID), zap.Error(err))
		return nil, fmt.Errorf("failed to get edit session: %w", err)
	}
	return s, nil
}

// GetActiveForUser returns the user's most recent Active session on the process, or nil
func (r *EditSessionRepository) GetActiveForUser(ctx context.Context, processID int64, userID string) (*entity.EditSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM edit_sessions
		WHERE process_id = ? AND user_id = ? AND status = ?
		ORDER BY started_at DESC, id DESC
		LIMIT 1`

	s, err := scanSession(sqlite.ExecutorFor(ctx, r.db).QueryRowContext(ctx, query, processID, userID, entity.SessionActive))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get active session for user",
			zap.Int64("process_id", processID),
			zap.String("user_id", userID),
			zap.Error(err))
		return nil, fmt.Errorf("failed to get active session: %w", err)
	}
	return s, nil
}

// ListActiveByProcessID returns Active sessions on a process ordered by start time
func (r *EditSessionRepository) ListActiveByProcessID(ctx context.Context, processID int64) ([]*entity.EditSession, error) {
	query := `SELECT ` + sessionColumns + ` FROM edit_sessions
		WHERE process_id = ? AND status = ?
		ORDER BY started_at ASC, id ASC`

	rows, err := sqlite.ExecutorFor(ctx, r.db).QueryContext(ctx, query, processID, entity.SessionActive)
	if err != nil {
		r.logger.Error("Failed to list active sessions", zap.Int64("process_id", processID), zap.Error(err))
		return nil, fmt.Errorf("failed to list active sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*entity.EditSession
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan edit session: %w", err)
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}

// SaveDraft persists the draft overlays and activity stamps
func (r *EditSessionRepository) SaveDraft(ctx context.Context, s *entity.EditSession) error {
	tags, steps, err := marshalDrafts(s)
	if err != nil {
		return err
	}

	query := `
		UPDATE edit_sessions
		SET draft_title = ?, draft_description = ?, draft_category = ?, draft_owner_id = ?,
			draft_tags = ?, draft_steps = ?, last_activity = ?, last_auto_save = ?
		WHERE session_id = ?
	`
	_, err = sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		nullStringPtr(s.DraftTitle), nullStringPtr(s.DraftDescription),
		nullStringPtr(s.DraftCategory), nullStringPtr(s.DraftOwnerID),
		tags, steps, s.LastActivity.UTC(), nullTime(s.LastAutoSave),
		s.SessionID,
	)
	if err != nil {
		r.logger.Error("Failed to save draft", zap.String("session_id", s.SessionID), zap.Error(err))
		return fmt.Errorf("failed to save draft: %w", err)
	}
	return nil
}

// Touch refreshes LastActivity
func (r *EditSessionRepository) Touch(ctx context.Context, sessionID string, at time.Time) error {
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx,
		`UPDATE edit_sessions SET last_activity = ? WHERE session_id = ?`, at.UTC(), sessionID)
	if err != nil {
		r.logger.Error("Failed to touch session", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to touch session: %w", err)
	}
	return nil
}

// Complete closes an Active session
func (r *EditSessionRepository) Complete(ctx context.Context, sessionID, comment string, versionID *int64, at time.Time) error {
	query := `
		UPDATE edit_sessions
		SET status = ?, completed_at = ?, completion_comment = ?, last_activity = ?,
			created_version_id = COALESCE(?, created_version_id)
		WHERE session_id = ? AND status = ?
	`
	_, err := sqlite.ExecutorFor(ctx, r.db).ExecContext(ctx, query,
		entity.SessionCompleted, at.UTC(), comment, at.UTC(), nullInt64(versionID),
		sessionID, entity.SessionActive,
	)
	if err != nil {
		r.logger.Error("Failed to complete session", zap.String("session_id", sessionID), zap.Error(err))
		return fmt.Errorf("failed to complete session: %w", err)
	}
	return nil
}

// DeleteByProcessID removes the process's sessions and their auto-saves
func (r *EditSessionRepository) DeleteByProcessID(ctx context.Context, processID int64) error {
	exec := sqlite.ExecutorFor(ctx, r.db)
	for _, q := range []string{
		`DELETE FROM auto_saves WHERE session_id IN (SELECT session_id FROM edit_sessions WHERE process_id = ?)`,
		`DELETE FROM auto_saves WHERE process_id = ?`,
		`DELETE FROM edit_sessions WHERE process_id = ?`,
	} {
		if _, err := exec.ExecContext(ctx, q, processID); err != nil {
			r.logger.Error("Failed to delete edit sessions", zap.Int64("process_id", processID), zap.Error(err))
			return fmt.Errorf("failed to delete edit sessions: %w", err)
		}
	}
	return nil
}

func marshalDrafts(s *entity.EditSession) (tags, steps sql.NullString, err error) {
	if s.DraftTags != nil {
		b, err := json.Marshal(s.DraftTags)
		if err != nil {
			return tags, steps, fmt.Errorf("failed to marshal draft tags: %w", err)
		}
		tags = sql.NullString{String: string(b), Valid: true}
	}
	if s.DraftSteps != nil {
		b, err := json.Marshal(s.DraftSteps)
		if err != nil {
			return tags, steps, fmt.Errorf("failed to marshal draft steps: %w", err)
		}
		steps = sql.NullString{String: string(b), Valid: true}
	}
	return tags, steps, nil
}

func scanSession(row rowScanner) (*entity.EditSession, error) {
	var (
		s                            entity.EditSession
		completedAt, lastAutoSave    sql.NullTime
		title, description, category sql.NullString
		owner, draftTags, draftSteps sql.NullString
		createdVersionID             sql.NullInt64
	)
	if err := row.Scan(
		&s.ID, &s.SessionID, &s.ProcessID, &s.UserID, &s.Status, &s.Comment, &s.CompletionComment,
		&s.StartedAt, &s.LastActivity, &completedAt, &lastAutoSave,
		&title, &description, &category, &owner,
		&draftTags, &draftSteps, &createdVersionID,
	); err != nil {
		return nil, err
	}

	s.StartedAt = s.StartedAt.UTC()
	s.LastActivity = s.LastActivity.UTC()
	s.CompletedAt = timePtr(completedAt)
	s.LastAutoSave = timePtr(lastAutoSave)
	s.DraftTitle = stringPtr(title)
	s.DraftDescription = stringPtr(description)
	s.DraftCategory = stringPtr(category)
	s.DraftOwnerID = stringPtr(owner)
	s.CreatedVersionID = int64Ptr(createdVersionID)

	if draftTags.Valid {
		s.DraftTags = []string{}
		if err := json.Unmarshal([]byte(draftTags.String), &s.DraftTags); err != nil {
			return nil, fmt.Errorf("failed to decode draft tags of session %s: %w", s.SessionID, err)
		}
	}
	if draftSteps.Valid {
		s.DraftSteps = []entity.ProcessStep{}
		if err := json.Unmarshal([]byte(draftSteps.String), &s.DraftSteps); err != nil {
			return nil, fmt.Errorf("failed to decode draft steps of session %s: %w", s.SessionID, err)
		}
	}
	return &s, nil
}

var _ port.EditSessionRepository = (*EditSessionRepository)(nil)
