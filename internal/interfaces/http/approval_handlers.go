package http

import (
	"github.com/gin-gonic/gin"

	"github.com/garyjia/process-portal/internal/domain/entity"
)

// CommentRequest carries the optional comment of a workflow action
type CommentRequest struct {
	Comment string `json:"comment" validate:"max=2000"`
}

// AddCommentRequest is the body of POST /approval/comment/:requestId
type AddCommentRequest struct {
	Comment     string `json:"comment" validate:"required,max=2000"`
	CommentType string `json:"comment_type" validate:"omitempty,comment_type"`
}

// SubmitForApproval handles POST /approval/submit/:processId
func (h *Handlers) SubmitForApproval(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}
	var req CommentRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	request, err := h.approval.SubmitForApproval(c.Request.Context(), processID, currentUser(c), req.Comment)
	if err != nil {
		h.respondError(c, "SubmitForApproval", err)
		return
	}
	created(c, request)
}

// WithdrawApproval handles POST /approval/withdraw/:processId
func (h *Handlers) WithdrawApproval(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}

	request, err := h.approval.WithdrawApprovalRequest(c.Request.Context(), processID, currentUser(c))
	if err != nil {
		h.respondError(c, "WithdrawApproval", err)
		return
	}
	ok(c, request)
}

// StartReview handles POST /approval/review/:requestId
func (h *Handlers) StartReview(c *gin.Context) {
	requestID, valid := int64Param(c, "requestId")
	if !valid {
		return
	}

	request, err := h.approval.StartReview(c.Request.Context(), requestID, currentUser(c))
	if err != nil {
		h.respondError(c, "StartReview", err)
		return
	}
	ok(c, request)
}

// ApproveProcess handles POST /approval/approve/:requestId
func (h *Handlers) ApproveProcess(c *gin.Context) {
	requestID, valid := int64Param(c, "requestId")
	if !valid {
		return
	}
	var req CommentRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	request, err := h.approval.ApproveProcess(c.Request.Context(), requestID, currentUser(c), req.Comment)
	if err != nil {
		h.respondError(c, "ApproveProcess", err)
		return
	}
	ok(c, request)
}

// RejectProcess handles POST /approval/reject/:requestId. The service
// requires a non-empty reason.
func (h *Handlers) RejectProcess(c *gin.Context) {
	requestID, valid := int64Param(c, "requestId")
	if !valid {
		return
	}
	var req CommentRequest
	if !h.bindJSON(c, &req, true) {
		return
	}

	request, err := h.approval.RejectProcess(c.Request.Context(), requestID, currentUser(c), req.Comment)
	if err != nil {
		h.respondError(c, "RejectProcess", err)
		return
	}
	ok(c, request)
}

// AddComment handles POST /approval/comment/:requestId
func (h *Handlers) AddComment(c *gin.Context) {
	requestID, valid := int64Param(c, "requestId")
	if !valid {
		return
	}
	var req AddCommentRequest
	if !h.bindJSON(c, &req, false) {
		return
	}
	commentType := entity.CommentType(req.CommentType)
	if commentType == "" {
		commentType = entity.CommentGeneral
	}

	comment, err := h.approval.AddComment(c.Request.Context(), requestID, currentUser(c), req.Comment, commentType)
	if err != nil {
		h.respondError(c, "AddComment", err)
		return
	}
	created(c, comment)
}

// GetApprovalQueue handles GET /approval/queue
func (h *Handlers) GetApprovalQueue(c *gin.Context) {
	queue, err := h.approval.GetApprovalQueue(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "GetApprovalQueue", err)
		return
	}
	ok(c, queue)
}

// GetApprovalStatistics handles GET /approval/statistics
func (h *Handlers) GetApprovalStatistics(c *gin.Context) {
	stats, err := h.approval.GetApprovalStatistics(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "GetApprovalStatistics", err)
		return
	}
	ok(c, stats)
}

// GetMyRequests handles GET /approval/my-requests
func (h *Handlers) GetMyRequests(c *gin.Context) {
	requests, err := h.approval.GetMyRequests(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "GetMyRequests", err)
		return
	}
	ok(c, requests)
}

// GetApprovalRequest handles GET /approval/request/:requestId
func (h *Handlers) GetApprovalRequest(c *gin.Context) {
	requestID, valid := int64Param(c, "requestId")
	if !valid {
		return
	}

	request, err := h.approval.GetApprovalRequest(c.Request.Context(), requestID)
	if err != nil {
		h.respondError(c, "GetApprovalRequest", err)
		return
	}
	ok(c, request)
}

// GetComments handles GET /approval/request/:requestId/comments
func (h *Handlers) GetComments(c *gin.Context) {
	requestID, valid := int64Param(c, "requestId")
	if !valid {
		return
	}

	comments, err := h.approval.GetComments(c.Request.Context(), requestID)
	if err != nil {
		h.respondError(c, "GetComments", err)
		return
	}
	ok(c, comments)
}

// GetCurrentRequest handles GET /approval/process/:processId/current.
// Data is absent when the process has no open request.
func (h *Handlers) GetCurrentRequest(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}

	request, err := h.approval.GetCurrentRequestForProcess(c.Request.Context(), processID)
	if err != nil {
		h.respondError(c, "GetCurrentRequest", err)
		return
	}
	ok(c, request)
}

// GetApprovalHistory handles GET /approval/process/:processId/history
func (h *Handlers) GetApprovalHistory(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}

	history, err := h.approval.GetApprovalHistory(c.Request.Context(), processID)
	if err != nil {
		h.respondError(c, "GetApprovalHistory", err)
		return
	}
	ok(c, history)
}

// CanApprove handles GET /approval/can-approve
func (h *Handlers) CanApprove(c *gin.Context) {
	allowed, err := h.approval.CanApprove(c.Request.Context(), currentUser(c))
	if err != nil {
		h.respondError(c, "CanApprove", err)
		return
	}
	ok(c, gin.H{"can_approve": allowed})
}

// CanSubmit handles GET /approval/can-submit/:processId
func (h *Handlers) CanSubmit(c *gin.Context) {
	processID, valid := int64Param(c, "processId")
	if !valid {
		return
	}

	allowed, err := h.approval.CanSubmit(c.Request.Context(), processID, currentUser(c))
	if err != nil {
		h.respondError(c, "CanSubmit", err)
		return
	}
	ok(c, gin.H{"can_submit": allowed})
}
