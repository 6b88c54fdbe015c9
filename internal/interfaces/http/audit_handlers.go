package http

import (
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/process-portal/internal/application/port"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// AuditFilterQuery narrows an audit export
type AuditFilterQuery struct {
	ProcessID int64  `form:"process" json:"process_id" validate:"min=0"`
	Since     string `form:"since" json:"since"`
	Until     string `form:"until" json:"until"`
}

// SaveExportRequest is the body of POST /audit/exports
type SaveExportRequest struct {
	AuditFilterQuery
	Name string `json:"name" validate:"omitempty,max=200"`
}

// ParseAuditTime accepts RFC3339 timestamps and plain dates
func ParseAuditTime(raw string) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC3339 or YYYY-MM-DD", raw)
	}
	return t.UTC(), nil
}

func (q AuditFilterQuery) filter() (port.HistoryFilter, error) {
	since, err := ParseAuditTime(q.Since)
	if err != nil {
		return port.HistoryFilter{}, err
	}
	until, err := ParseAuditTime(q.Until)
	if err != nil {
		return port.HistoryFilter{}, err
	}
	if !since.IsZero() && !until.IsZero() && until.Before(since) {
		return port.HistoryFilter{}, fmt.Errorf("until is before since")
	}
	return port.HistoryFilter{ProcessID: q.ProcessID, Since: since, Until: until}, nil
}

// attachmentWriter sets the download headers on the first write, so a
// failure before any byte is produced can still be answered with JSON.
type attachmentWriter struct {
	c       *gin.Context
	name    string
	written bool
}

func (w *attachmentWriter) Write(p []byte) (int, error) {
	if !w.written {
		w.written = true
		w.c.Header("Content-Type", xlsxContentType)
		w.c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", w.name))
		w.c.Status(http.StatusOK)
	}
	return w.c.Writer.Write(p)
}

// ExportAudit handles GET /audit/export by streaming the workbook
func (h *Handlers) ExportAudit(c *gin.Context) {
	var q AuditFilterQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	if err := h.validate.Struct(q); err != nil {
		badRequest(c, validationMessage(err))
		return
	}
	filter, err := q.filter()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	w := &attachmentWriter{c: c, name: "audit-" + time.Now().UTC().Format("20060102-150405") + ".xlsx"}
	if err := h.audit.ExportWorkbook(c.Request.Context(), currentUser(c), w, filter); err != nil {
		if w.written {
			h.logger.Error("Audit export aborted mid-stream", "error", err)
			c.Abort()
			return
		}
		h.respondError(c, "ExportAudit", err)
	}
}

// SaveAuditExport handles POST /audit/exports
func (h *Handlers) SaveAuditExport(c *gin.Context) {
	var req SaveExportRequest
	if !h.bindJSON(c, &req, true) {
		return
	}
	filter, err := req.filter()
	if err != nil {
		badRequest(c, err.Error())
		return
	}

	name, err := h.audit.SaveExport(c.Request.Context(), currentUser(c), req.Name, filter)
	if err != nil {
		h.respondError(c, "SaveAuditExport", err)
		return
	}
	created(c, gin.H{"name": name})
}

// ListAuditExports handles GET /audit/exports
func (h *Handlers) ListAuditExports(c *gin.Context) {
	files, err := h.audit.ListExports(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "ListAuditExports", err)
		return
	}
	if files == nil {
		files = []port.ExportFile{}
	}
	ok(c, files)
}

// DownloadAuditExport handles GET /audit/exports/:name
func (h *Handlers) DownloadAuditExport(c *gin.Context) {
	name := c.Param("name")
	rc, err := h.audit.OpenExport(c.Request.Context(), currentUser(c), name)
	if err != nil {
		h.respondError(c, "DownloadAuditExport", err)
		return
	}
	defer rc.Close()

	c.Header("Content-Type", xlsxContentType)
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	if f, isFile := rc.(*os.File); isFile {
		if info, err := f.Stat(); err == nil {
			c.Header("Content-Length", strconv.FormatInt(info.Size(), 10))
		}
	}
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, rc); err != nil {
		h.logger.Error("Failed to stream audit export", "error", err, "name", name)
	}
}
