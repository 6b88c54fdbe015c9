package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/domain/entity"
)

// ApprovalEntry is one approval ledger write
type ApprovalEntry struct {
	ProcessID int64
	ActorID   string
	From      entity.ProcessStatus
	To        entity.ProcessStatus
	Comment   string
	Details   entity.ApprovalDetails
}

// DeletionEntry is one deletion ledger write
type DeletionEntry struct {
	ProcessID int64
	ActorID   string
	From      entity.ProcessStatus
	To        entity.ProcessStatus
	Comment   string
	Details   entity.DeletionDetails
}

// AuditTrail writes and reads the append-only approval and deletion ledgers.
// Writers are called inside the workflow transaction so the entry commits
// together with the state change it describes.
type AuditTrail interface {
	RecordApproval(ctx context.Context, entry ApprovalEntry) (*entity.ApprovalHistory, error)
	RecordDeletion(ctx context.Context, entry DeletionEntry) (*entity.DeletionHistory, error)
	ApprovalHistory(ctx context.Context, processID int64) ([]*entity.ApprovalHistory, error)
	DeletionHistory(ctx context.Context, processID int64) ([]*entity.DeletionHistory, error)
	ExportWorkbook(ctx context.Context, userID string, w io.Writer, filter port.HistoryFilter) error

	// SaveExport renders the workbook into the export store and returns the stored name
	SaveExport(ctx context.Context, userID, name string, filter port.HistoryFilter) (string, error)
	ListExports(ctx context.Context, userID string) ([]port.ExportFile, error)
	OpenExport(ctx context.Context, userID, name string) (io.ReadCloser, error)
}

type auditTrailImpl struct {
	approvalHistoryRepo port.ApprovalHistoryRepository
	deletionHistoryRepo port.DeletionHistoryRepository
	authorizer          port.Authorizer
	workbook            port.AuditWorkbook
	exports             port.ExportStore
	logger              Logger
	now                 func() time.Time
}

// NewAuditTrail creates a new AuditTrail. exports may be nil when saved
// workbooks are not kept.
func NewAuditTrail(
	approvalHistoryRepo port.ApprovalHistoryRepository,
	deletionHistoryRepo port.DeletionHistoryRepository,
	authorizer port.Authorizer,
	workbook port.AuditWorkbook,
	exports port.ExportStore,
	logger Logger,
) AuditTrail {
	return &auditTrailImpl{
		approvalHistoryRepo: approvalHistoryRepo,
		deletionHistoryRepo: deletionHistoryRepo,
		authorizer:          authorizer,
		workbook:            workbook,
		exports:             exports,
		logger:              logger,
		now:                 func() time.Time { return time.Now().UTC() },
	}
}

// RecordApproval appends an approval ledger row
func (a *auditTrailImpl) RecordApproval(ctx context.Context, entry ApprovalEntry) (*entity.ApprovalHistory, error) {
	h, err := entity.NewApprovalHistory(entry.ProcessID, entry.ActorID, entry.From, entry.To, entry.Comment, entry.Details)
	if err != nil {
		return nil, err
	}
	if err := a.approvalHistoryRepo.Create(ctx, h); err != nil {
		return nil, fmt.Errorf("create approval history: %w", err)
	}
	return h, nil
}

// RecordDeletion appends a deletion ledger row
func (a *auditTrailImpl) RecordDeletion(ctx context.Context, entry DeletionEntry) (*entity.DeletionHistory, error) {
	h, err := entity.NewDeletionHistory(entry.ProcessID, entry.ActorID, entry.From, entry.To, entry.Comment, entry.Details)
	if err != nil {
		return nil, err
	}
	if err := a.deletionHistoryRepo.Create(ctx, h); err != nil {
		return nil, fmt.Errorf("create deletion history: %w", err)
	}
	return h, nil
}

// ApprovalHistory returns the approval ledger of a process, newest first
func (a *auditTrailImpl) ApprovalHistory(ctx context.Context, processID int64) ([]*entity.ApprovalHistory, error) {
	entries, err := a.approvalHistoryRepo.ListByProcessID(ctx, processID)
	if err != nil {
		a.logger.Error("Failed to get approval history", "error", err, "process_id", processID)
		return nil, err
	}
	return entries, nil
}

// DeletionHistory returns the deletion ledger of a process, newest first
func (a *auditTrailImpl) DeletionHistory(ctx context.Context, processID int64) ([]*entity.DeletionHistory, error) {
	entries, err := a.deletionHistoryRepo.ListByProcessID(ctx, processID)
	if err != nil {
		a.logger.Error("Failed to get deletion history", "error", err, "process_id", processID)
		return nil, err
	}
	return entries, nil
}

// ExportWorkbook writes both ledgers, narrowed by filter, as a spreadsheet
func (a *auditTrailImpl) ExportWorkbook(ctx context.Context, userID string, w io.Writer, filter port.HistoryFilter) (err error) {
	const op = "AuditTrail.ExportWorkbook"
	ctx, span := startSpan(ctx, op, attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	if err := a.requireAuditor(ctx, op, userID); err != nil {
		return err
	}
	return a.writeWorkbook(ctx, userID, w, filter)
}

// SaveExport stores the workbook under name, or under a timestamped name when empty
func (a *auditTrailImpl) SaveExport(ctx context.Context, userID, name string, filter port.HistoryFilter) (stored string, err error) {
	const op = "AuditTrail.SaveExport"
	ctx, span := startSpan(ctx, op, attribute.String(attrUserID, userID))
	defer func() { endSpan(span, err) }()

	if err := a.requireAuditor(ctx, op, userID); err != nil {
		return "", err
	}
	if a.exports == nil {
		return "", invalidState(op, "audit export storage is not configured")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		name = "audit-" + a.now().Format("20060102-150405") + ".xlsx"
	}
	if strings.ContainsAny(name, `/\`) || !strings.HasSuffix(name, ".xlsx") {
		return "", validation(op, "export name %q must be a plain .xlsx file name", name)
	}

	_, err = a.exports.Save(ctx, name, func(w io.Writer) error {
		return a.writeWorkbook(ctx, userID, w, filter)
	})
	if err != nil {
		if errors.Is(err, port.ErrInvalidExportName) {
			return "", validation(op, "%v", err)
		}
		return "", err
	}
	return name, nil
}

// ListExports returns saved workbooks, newest first
func (a *auditTrailImpl) ListExports(ctx context.Context, userID string) ([]port.ExportFile, error) {
	const op = "AuditTrail.ListExports"

	if err := a.requireAuditor(ctx, op, userID); err != nil {
		return nil, err
	}
	if a.exports == nil {
		return []port.ExportFile{}, nil
	}
	return a.exports.List(ctx)
}

// OpenExport opens a saved workbook for download
func (a *auditTrailImpl) OpenExport(ctx context.Context, userID, name string) (io.ReadCloser, error) {
	const op = "AuditTrail.OpenExport"

	if err := a.requireAuditor(ctx, op, userID); err != nil {
		return nil, err
	}
	if a.exports == nil {
		return nil, notFound(op, "export %s not found", name)
	}

	r, err := a.exports.Open(ctx, name)
	if err != nil {
		switch {
		case errors.Is(err, port.ErrExportNotFound):
			return nil, notFound(op, "export %s not found", name)
		case errors.Is(err, port.ErrInvalidExportName):
			return nil, validation(op, "%v", err)
		}
		return nil, err
	}
	return r, nil
}

func (a *auditTrailImpl) requireAuditor(ctx context.Context, op, userID string) error {
	allowed, err := checkPermission(ctx, a.authorizer, userID, entity.PermViewAuditLog)
	if err != nil {
		return err
	}
	if !allowed {
		return unauthorized(op, "user %s cannot view the audit log", userID)
	}
	return nil
}

func (a *auditTrailImpl) writeWorkbook(ctx context.Context, userID string, w io.Writer, filter port.HistoryFilter) error {
	approvals, err := a.approvalHistoryRepo.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("list approval history: %w", err)
	}
	deletions, err := a.deletionHistoryRepo.List(ctx, filter)
	if err != nil {
		return fmt.Errorf("list deletion history: %w", err)
	}

	if err := a.workbook.Write(w, approvals, deletions); err != nil {
		a.logger.Error("Failed to write audit workbook", "error", err)
		return fmt.Errorf("write workbook: %w", err)
	}

	a.logger.Info("Audit workbook exported",
		"user_id", userID,
		"approval_rows", len(approvals),
		"deletion_rows", len(deletions),
	)
	return nil
}
