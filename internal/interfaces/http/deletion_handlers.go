package http

import (
	"github.com/gin-gonic/gin"
)

// DeleteRequest is the body of the soft delete, hard delete and restore routes
type DeleteRequest struct {
	Reason string `json:"reason" validate:"max=2000"`
	Force  bool   `json:"force"`
}

// BulkDeleteRequest is the body of POST /deletion/bulk-delete
type BulkDeleteRequest struct {
	ProcessIDs []int64 `json:"process_ids" validate:"required,min=1,max=100,dive,gt=0"`
	Reason     string  `json:"reason" validate:"max=2000"`
	Force      bool    `json:"force"`
}

// DeletedQuery holds the paging parameters of GET /deletion/deleted
type DeletedQuery struct {
	Page     int `form:"page" validate:"min=0"`
	PageSize int `form:"page_size" validate:"min=0"`
}

// SoftDelete handles POST /deletion/:processId/soft-delete
func (h *Handlers) SoftDelete(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}
	var req DeleteRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	if err := h.deletion.SoftDelete(c.Request.Context(), processID, currentUser(c), req.Reason, req.Force); err != nil {
		h.respondError(c, "SoftDelete", err)
		return
	}
	ok(c, gin.H{"process_id": processID, "deleted": true})
}

// HardDelete handles POST /deletion/:processId/hard-delete
func (h *Handlers) HardDelete(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}
	var req DeleteRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	if err := h.deletion.HardDelete(c.Request.Context(), processID, currentUser(c), req.Reason); err != nil {
		h.respondError(c, "HardDelete", err)
		return
	}
	ok(c, gin.H{"process_id": processID, "purged": true})
}

// Restore handles POST /deletion/:processId/restore
func (h *Handlers) Restore(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}
	var req DeleteRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	if err := h.deletion.Restore(c.Request.Context(), processID, currentUser(c), req.Reason); err != nil {
		h.respondError(c, "Restore", err)
		return
	}
	ok(c, gin.H{"process_id": processID, "restored": true})
}

// BulkDelete handles POST /deletion/bulk-delete. Per-process failures are
// reported in the result, not as an error status.
func (h *Handlers) BulkDelete(c *gin.Context) {
	var req BulkDeleteRequest
	if !h.bindJSON(c, &req, false) {
		return
	}

	result, err := h.deletion.BulkDelete(c.Request.Context(), req.ProcessIDs, currentUser(c), req.Reason, req.Force)
	if err != nil {
		h.respondError(c, "BulkDelete", err)
		return
	}
	ok(c, result)
}

// GetDeletedProcesses handles GET /deletion/deleted
func (h *Handlers) GetDeletedProcesses(c *gin.Context) {
	var q DeletedQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	if err := h.validate.Struct(q); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	page, err := h.deletion.GetDeletedProcesses(c.Request.Context(), currentUser(c), q.Page, q.PageSize)
	if err != nil {
		h.respondError(c, "GetDeletedProcesses", err)
		return
	}
	ok(c, page)
}

// GetDeletionHistory handles GET /deletion/:processId/history
func (h *Handlers) GetDeletionHistory(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}

	history, err := h.deletion.GetDeletionHistory(c.Request.Context(), processID)
	if err != nil {
		h.respondError(c, "GetDeletionHistory", err)
		return
	}
	ok(c, history)
}

// CanDelete handles GET /deletion/:processId/can-delete
func (h *Handlers) CanDelete(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}

	allowed, err := h.deletion.CanDelete(c.Request.Context(), processID, currentUser(c))
	if err != nil {
		h.respondError(c, "CanDelete", err)
		return
	}
	ok(c, gin.H{"can_delete": allowed})
}

// HasActiveInstances handles GET /deletion/:processId/has-active-instances
func (h *Handlers) HasActiveInstances(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}

	active, err := h.deletion.HasActiveInstances(c.Request.Context(), processID)
	if err != nil {
		h.respondError(c, "HasActiveInstances", err)
		return
	}
	ok(c, gin.H{"has_active_instances": active})
}
