package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/internal/infrastructure/persistence/sqlite"
)

// ledgerRow is the column set shared by approval_history and deletion_history
type ledgerRow struct {
	ID         int64
	ProcessID  int64
	ActorID    string
	FromStatus entity.ProcessStatus
	ToStatus   entity.ProcessStatus
	Action     string
	Comment    string
	Details    json.RawMessage
	OccurredAt time.Time
}

// ledger appends to and reads one history table. Rows are never updated or deleted.
type ledger struct {
	table  string
	db     *sql.DB
	logger *zap.Logger
}

func (l *ledger) insert(ctx context.Context, row *ledgerRow) (int64, error) {
	details := string(row.Details)
	if details == "" {
		details = "{}"
	}
	if row.OccurredAt.IsZero() {
		row.OccurredAt = time.Now().UTC()
	}

	result, err := sqlite.ExecutorFor(ctx, l.db).ExecContext(ctx, `
		INSERT INTO `+l.table+` (process_id, actor_id, from_status, to_status, action, comment, details, occurred_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, row.ProcessID, row.ActorID, row.FromStatus, row.ToStatus, row.Action, row.Comment, details, row.OccurredAt.UTC())
	if err != nil {
		l.logger.Error("Failed to append history",
			zap.String("table", l.table),
			zap.Int64("process_id", row.ProcessID),
			zap.String("action", row.Action),
			zap.Error(err))
		return 0, fmt.Errorf("failed to append %s: %w", l.table, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert id: %w", err)
	}
	return id, nil
}

// list returns rows newest first
func (l *ledger) list(ctx context.Context, filter port.HistoryFilter) ([]ledgerRow, error) {
	var (
		where []string
		args  []interface{}
	)
	if filter.ProcessID != 0 {
		where = append(where, "process_id = ?")
		args = append(args, filter.ProcessID)
	}
	if !filter.Since.IsZero() {
		where = append(where, "occurred_at >= ?")
		args = append(args, filter.Since.UTC())
	}
	if !filter.Until.IsZero() {
		where = append(where, "occurred_at < ?")
		args = append(args, filter.Until.UTC())
	}

	query := `SELECT id, process_id, actor_id, from_status, to_status, action, comment, details, occurred_at
		FROM ` + l.table
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY occurred_at DESC, id DESC`

	rows, err := sqlite.ExecutorFor(ctx, l.db).QueryContext(ctx, query, args...)
	if err != nil {
		l.logger.Error("Failed to list history", zap.String("table", l.table), zap.Error(err))
		return nil, fmt.Errorf("failed to list %s: %w", l.table, err)
	}
	defer rows.Close()

	var out []ledgerRow
	for rows.Next() {
		var (
			row     ledgerRow
			details string
		)
		if err := rows.Scan(&row.ID, &row.ProcessID, &row.ActorID, &row.FromStatus, &row.ToStatus,
			&row.Action, &row.Comment, &details, &row.OccurredAt); err != nil {
			return nil, fmt.Errorf("failed to scan %s: %w", l.table, err)
		}
		row.Details = json.RawMessage(details)
		row.OccurredAt = row.OccurredAt.UTC()
		out = append(out, row)
	}
	return out, rows.Err()
}

// ApprovalHistoryRepository implements port.ApprovalHistoryRepository
type ApprovalHistoryRepository struct {
	ledger ledger
}

// NewApprovalHistoryRepository creates the approval ledger repository
func NewApprovalHistoryRepository(db *sql.DB, logger *zap.Logger) port.ApprovalHistoryRepository {
	return &ApprovalHistoryRepository{ledger: ledger{table: "approval_history", db: db, logger: logger}}
}

// Create appends an entry
func (r *ApprovalHistoryRepository) Create(ctx context.Context, h *entity.ApprovalHistory) error {
	row := ledgerRow{
		ProcessID: h.ProcessID, ActorID: h.ActorID, FromStatus: h.FromStatus, ToStatus: h.ToStatus,
		Action: string(h.Action), Comment: h.Comment, Details: h.Details, OccurredAt: h.OccurredAt,
	}
	id, err := r.ledger.insert(ctx, &row)
	if err != nil {
		return err
	}
	h.ID, h.OccurredAt = id, row.OccurredAt
	return nil
}

// ListByProcessID returns a process's entries, newest first
func (r *ApprovalHistoryRepository) ListByProcessID(ctx context.Context, processID int64) ([]*entity.ApprovalHistory, error) {
	return r.List(ctx, port.HistoryFilter{ProcessID: processID})
}

// List returns entries matching the filter, newest first
func (r *ApprovalHistoryRepository) List(ctx context.Context, filter port.HistoryFilter) ([]*entity.ApprovalHistory, error) {
	rows, err := r.ledger.list(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.ApprovalHistory, 0, len(rows))
	for _, row := range rows {
		out = append(out, &entity.ApprovalHistory{
			ID: row.ID, ProcessID: row.ProcessID, ActorID: row.ActorID,
			FromStatus: row.FromStatus, ToStatus: row.ToStatus,
			Action: entity.ApprovalAction(row.Action), Comment: row.Comment,
			Details: row.Details, OccurredAt: row.OccurredAt,
		})
	}
	return out, nil
}

// DeletionHistoryRepository implements port.DeletionHistoryRepository
type DeletionHistoryRepository struct {
	ledger ledger
}

// NewDeletionHistoryRepository creates the deletion ledger repository
func NewDeletionHistoryRepository(db *sql.DB, logger *zap.Logger) port.DeletionHistoryRepository {
	return &DeletionHistoryRepository{ledger: ledger{table: "deletion_history", db: db, logger: logger}}
}

// Create appends an entry
func (r *DeletionHistoryRepository) Create(ctx context.Context, h *entity.DeletionHistory) error {
	row := ledgerRow{
		ProcessID: h.ProcessID, ActorID: h.ActorID, FromStatus: h.FromStatus, ToStatus: h.ToStatus,
		Action: string(h.Action), Comment: h.Comment, Details: h.Details, OccurredAt: h.OccurredAt,
	}
	id, err := r.ledger.insert(ctx, &row)
	if err != nil {
		return err
	}
	h.ID, h.OccurredAt = id, row.OccurredAt
	return nil
}

// ListByProcessID returns a process's entries, newest first
func (r *DeletionHistoryRepository) ListByProcessID(ctx context.Context, processID int64) ([]*entity.DeletionHistory, error) {
	return r.List(ctx, port.HistoryFilter{ProcessID: processID})
}

// List returns entries matching the filter, newest first
func (r *DeletionHistoryRepository) List(ctx context.Context, filter port.HistoryFilter) ([]*entity.DeletionHistory, error) {
	rows, err := r.ledger.list(ctx, filter)
	if err != nil {
		return nil, err
	}
	out := make([]*entity.DeletionHistory, 0, len(rows))
	for _, row := range rows {
		out = append(out, &entity.DeletionHistory{
			ID: row.ID, ProcessID: row.ProcessID, ActorID: row.ActorID,
			FromStatus: row.FromStatus, ToStatus: row.ToStatus,
			Action: entity.DeletionAction(row.Action), Comment: row.Comment,
			Details: row.Details, OccurredAt: row.OccurredAt,
		})
	}
	return out, nil
}

var (
	_ port.ApprovalHistoryRepository = (*ApprovalHistoryRepository)(nil)
	_ port.DeletionHistoryRepository = (*DeletionHistoryRepository)(nil)
)
