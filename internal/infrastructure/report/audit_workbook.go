package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/domain/entity"
)

// Sheet names of the audit workbook
const (
	ApprovalSheet = "Approval History"
	DeletionSheet = "Deletion History"
)

var ledgerHeaders = []string{
	"ID", "Process ID", "Actor", "From Status", "To Status", "Action", "Comment", "Details", "Occurred At (UTC)",
}

// AuditWorkbook renders the approval and deletion ledgers as an .xlsx workbook
type AuditWorkbook struct {
	logger *zap.Logger
}

// NewAuditWorkbook creates a new audit workbook writer
func NewAuditWorkbook(logger *zap.Logger) *AuditWorkbook {
	return &AuditWorkbook{logger: logger}
}

// Write builds the workbook and streams it to w
func (b *AuditWorkbook) Write(w io.Writer, approvals []*entity.ApprovalHistory, deletions []*entity.DeletionHistory) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", ApprovalSheet); err != nil {
		return fmt.Errorf("failed to name approval sheet: %w", err)
	}
	if _, err := f.NewSheet(DeletionSheet); err != nil {
		return fmt.Errorf("failed to add deletion sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	approvalRows := make([][]interface{}, 0, len(approvals))
	for _, h := range approvals {
		approvalRows = append(approvalRows, []interface{}{
			h.ID, h.ProcessID, h.ActorID, string(h.FromStatus), string(h.ToStatus),
			string(h.Action), h.Comment, string(h.Details), h.OccurredAt.UTC().Format(time.DateTime),
		})
	}
	if err := b.fillSheet(f, ApprovalSheet, headerStyle, approvalRows); err != nil {
		return err
	}

	deletionRows := make([][]interface{}, 0, len(deletions))
	for _, h := range deletions {
		deletionRows = append(deletionRows, []interface{}{
			h.ID, h.ProcessID, h.ActorID, string(h.FromStatus), string(h.ToStatus),
			string(h.Action), h.Comment, string(h.Details), h.OccurredAt.UTC().Format(time.DateTime),
		})
	}
	if err := b.fillSheet(f, DeletionSheet, headerStyle, deletionRows); err != nil {
		return err
	}

	f.SetActiveSheet(0)
	if err := f.Write(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}

	b.logger.Info("Audit workbook written",
		zap.Int("approval_rows", len(approvals)),
		zap.Int("deletion_rows", len(deletions)))
	return nil
}

func (b *AuditWorkbook) fillSheet(f *excelize.File, sheet string, headerStyle int, rows [][]interface{}) error {
	for col, header := range ledgerHeaders {
		b.setCell(f, sheet, col+1, 1, header)
	}

	last, err := excelize.CoordinatesToCellName(len(ledgerHeaders), 1)
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(sheet, "A1", last, headerStyle); err != nil {
		return fmt.Errorf("failed to style %s header: %w", sheet, err)
	}

	for i, row := range rows {
		for col, value := range row {
			b.setCell(f, sheet, col+1, i+2, value)
		}
	}

	if err := f.SetColWidth(sheet, "A", "F", 16); err != nil {
		return fmt.Errorf("failed to size %s columns: %w", sheet, err)
	}
	if err := f.SetColWidth(sheet, "G", "H", 40); err != nil {
		return fmt.Errorf("failed to size %s columns: %w", sheet, err)
	}
	return f.SetColWidth(sheet, "I", "I", 20)
}

// setCell writes one value, logging instead of failing on a bad coordinate
func (b *AuditWorkbook) setCell(f *excelize.File, sheet string, col, row int, value interface{}) {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err == nil {
		err = f.SetCellValue(sheet, cell, value)
	}
	if err != nil {
		b.logger.Warn("Failed to set cell value",
			zap.String("sheet", sheet),
			zap.Int("col", col),
			zap.Int("row", row),
			zap.Error(err))
	}
}
