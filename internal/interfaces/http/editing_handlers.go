package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/process-portal/internal/application/service"
	"github.com/garyjia/process-portal/internal/domain/entity"
)

// DraftRequest is the body of POST /editing/draft/:sessionId. Absent fields
// leave the draft untouched.
type DraftRequest struct {
	Title         *string              `json:"title" validate:"omitempty,min=1,max=200"`
	Description   *string              `json:"description" validate:"omitempty,max=5000"`
	Category      *string              `json:"category" validate:"omitempty,max=100"`
	OwnerID       *string              `json:"owner_id" validate:"omitempty,max=100"`
	Tags          []string             `json:"tags" validate:"max=20,dive,required,max=50"`
	Steps         []entity.ProcessStep `json:"steps" validate:"max=200"`
	ChangeComment string               `json:"change_comment" validate:"max=2000"`
}

func (r DraftRequest) content() entity.DraftContent {
	return entity.DraftContent{
		Title:         r.Title,
		Description:   r.Description,
		Category:      r.Category,
		OwnerID:       r.OwnerID,
		Tags:          r.Tags,
		Steps:         r.Steps,
		ChangeComment: r.ChangeComment,
	}
}

// CompleteEditRequest is the body of POST /editing/complete/:sessionId
type CompleteEditRequest struct {
	DraftRequest
	SaveAsDraft       bool   `json:"save_as_draft"`
	VersionChangeType string `json:"version_change_type" validate:"omitempty,change_type"`
}

// ResolveConflictRequest is the body of POST /editing/conflicts/:conflictId/resolve
type ResolveConflictRequest struct {
	Resolution string `json:"resolution" validate:"required,resolution"`
}

// StartEditSession handles POST /editing/start/:processId
func (h *Handlers) StartEditSession(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}
	var req CommentRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	result, err := h.editing.StartEditSession(c.Request.Context(), processID, currentUser(c), req.Comment)
	if err != nil {
		h.respondError(c, "StartEditSession", err)
		return
	}
	ok(c, result)
}

// SaveDraft handles POST /editing/draft/:sessionId
func (h *Handlers) SaveDraft(c *gin.Context) {
	var req DraftRequest
	if !h.bindJSON(c, &req, false) {
		return
	}

	draft, err := h.editing.SaveDraft(c.Request.Context(), c.Param("sessionId"), currentUser(c), req.content())
	if err != nil {
		h.respondError(c, "SaveDraft", err)
		return
	}
	ok(c, draft)
}

// GetDraft handles GET /editing/draft/:sessionId. Data is absent when the
// session has no draft yet.
func (h *Handlers) GetDraft(c *gin.Context) {
	draft, err := h.editing.GetDraft(c.Request.Context(), c.Param("sessionId"))
	if err != nil {
		h.respondError(c, "GetDraft", err)
		return
	}
	ok(c, draft)
}

// CompleteEdit handles POST /editing/complete/:sessionId
func (h *Handlers) CompleteEdit(c *gin.Context) {
	var req CompleteEditRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	result, err := h.editing.CompleteEditWithNewVersion(c.Request.Context(), c.Param("sessionId"), currentUser(c), service.CompleteEditInput{
		DraftContent:      req.content(),
		SaveAsDraft:       req.SaveAsDraft,
		VersionChangeType: entity.VersionChangeType(req.VersionChangeType),
	})
	if err != nil {
		h.respondError(c, "CompleteEdit", err)
		return
	}
	ok(c, result)
}

// EndEditSession handles POST /editing/end/:sessionId
func (h *Handlers) EndEditSession(c *gin.Context) {
	var req CommentRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	sessionID := c.Param("sessionId")
	if err := h.editing.EndEditSession(c.Request.Context(), sessionID, currentUser(c), req.Comment); err != nil {
		h.respondError(c, "EndEditSession", err)
		return
	}
	ok(c, gin.H{"session_id": sessionID, "ended": true})
}

// GetActiveSessions handles GET /editing/sessions/:processId
func (h *Handlers) GetActiveSessions(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}

	sessions, err := h.editing.GetActiveEditSessions(c.Request.Context(), processID)
	if err != nil {
		h.respondError(c, "GetActiveSessions", err)
		return
	}
	ok(c, sessions)
}

// CanEdit handles GET /editing/can-edit/:processId
func (h *Handlers) CanEdit(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}

	allowed, err := h.editing.CanEdit(c.Request.Context(), processID, currentUser(c))
	if err != nil {
		h.respondError(c, "CanEdit", err)
		return
	}
	ok(c, gin.H{"can_edit": allowed})
}

// GetAutoSaves handles GET /editing/autosaves/:sessionId
func (h *Handlers) GetAutoSaves(c *gin.Context) {
	saves, err := h.editing.GetAutoSaveHistory(c.Request.Context(), c.Param("sessionId"), currentUser(c))
	if err != nil {
		h.respondError(c, "GetAutoSaves", err)
		return
	}
	ok(c, saves)
}

// AcquireLock handles POST /editing/lock/:sessionId
func (h *Handlers) AcquireLock(c *gin.Context) {
	lock, err := h.editing.AcquireLock(c.Request.Context(), c.Param("sessionId"), currentUser(c))
	if err != nil {
		h.respondError(c, "AcquireLock", err)
		return
	}
	created(c, lock)
}

// RenewLock handles PUT /editing/lock/:sessionId
func (h *Handlers) RenewLock(c *gin.Context) {
	lock, err := h.editing.RenewLock(c.Request.Context(), c.Param("sessionId"), currentUser(c))
	if err != nil {
		h.respondError(c, "RenewLock", err)
		return
	}
	ok(c, lock)
}

// ReleaseLock handles DELETE /editing/lock/:sessionId
func (h *Handlers) ReleaseLock(c *gin.Context) {
	if err := h.editing.ReleaseLock(c.Request.Context(), c.Param("sessionId"), currentUser(c)); err != nil {
		h.respondError(c, "ReleaseLock", err)
		return
	}
	c.Status(http.StatusNoContent)
}

// GetLockStatus handles GET /editing/lock/process/:processId
func (h *Handlers) GetLockStatus(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}

	lock, err := h.editing.GetLockStatus(c.Request.Context(), processID)
	if err != nil {
		h.respondError(c, "GetLockStatus", err)
		return
	}
	ok(c, gin.H{"locked": lock != nil, "lock": lock})
}

// GetConflicts handles GET /editing/conflicts/:processId
func (h *Handlers) GetConflicts(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}

	conflicts, err := h.editing.GetActiveConflicts(c.Request.Context(), processID)
	if err != nil {
		h.respondError(c, "GetConflicts", err)
		return
	}
	ok(c, conflicts)
}

// ResolveConflict handles POST /editing/conflicts/:conflictId/resolve
func (h *Handlers) ResolveConflict(c *gin.Context) {
	conflictID, valid := int64Param(c, "conflictId")
	if !valid {
		return
	}
	var req ResolveConflictRequest
	if !h.bindJSON(c, &req, false) {
		return
	}

	conflict, err := h.editing.ResolveConflict(c.Request.Context(), conflictID, currentUser(c), entity.ConflictResolution(req.Resolution))
	if err != nil {
		h.respondError(c, "ResolveConflict", err)
		return
	}
	ok(c, conflict)
}
