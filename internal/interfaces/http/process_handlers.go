package http

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/application/service"
	"github.com/garyjia/process-portal/internal/domain/entity"
)

// HealthResponse represents the health check response
type HealthResponse struct {
	Status     string      `json:"status"`
	Timestamp  string      `json:"timestamp"`
	Components interface{} `json:"components,omitempty"`
}

// CreateProcessRequest is the body of POST /processes
type CreateProcessRequest struct {
	Title       string               `json:"title" validate:"required,max=200"`
	Description string               `json:"description" validate:"max=5000"`
	Category    string               `json:"category" validate:"max=100"`
	OwnerID     string               `json:"owner_id" validate:"max=100"`
	Tags        []string             `json:"tags" validate:"max=20,dive,required,max=50"`
	Steps       []entity.ProcessStep `json:"steps" validate:"max=200"`
}

// ListProcessesQuery holds the query parameters of GET /processes
type ListProcessesQuery struct {
	Status   string `form:"status" validate:"omitempty,process_status"`
	Category string `form:"category"`
	Limit    int    `form:"limit" validate:"min=0,max=100"`
	Offset   int    `form:"offset" validate:"min=0"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	response := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}
	status := http.StatusOK

	if h.health != nil {
		healthy, details := h.health(c.Request.Context())
		response.Components = details
		if !healthy {
			response.Status = "unhealthy"
			status = http.StatusServiceUnavailable
		}
	}

	c.JSON(status, Response{Success: status == http.StatusOK, Data: response})
}

// CreateProcess handles POST /processes
func (h *Handlers) CreateProcess(c *gin.Context) {
	var req CreateProcessRequest
	if !h.bindJSON(c, &req, false) {
		return
	}

	process, err := h.process.CreateProcess(c.Request.Context(), currentUser(c), service.CreateProcessInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		OwnerID:     req.OwnerID,
		Tags:        req.Tags,
		Steps:       req.Steps,
	})
	if err != nil {
		h.respondError(c, "CreateProcess", err)
		return
	}
	created(c, process)
}

// ListProcesses handles GET /processes
func (h *Handlers) ListProcesses(c *gin.Context) {
	var q ListProcessesQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, "invalid query parameters")
		return
	}
	if err := h.validate.Struct(q); err != nil {
		badRequest(c, validationMessage(err))
		return
	}

	processes, err := h.process.ListProcesses(c.Request.Context(), port.ProcessFilter{
		Status:   entity.ProcessStatus(q.Status),
		Category: q.Category,
		Limit:    q.Limit,
		Offset:   q.Offset,
	})
	if err != nil {
		h.respondError(c, "ListProcesses", err)
		return
	}
	ok(c, processes)
}

// GetProcess handles GET /processes/:id
func (h *Handlers) GetProcess(c *gin.Context) {
	id, valid := int64Param(c, "id")
	if !valid {
		return
	}

	process, err := h.process.GetProcess(c.Request.Context(), id, currentUser(c))
	if err != nil {
		h.respondError(c, "GetProcess", err)
		return
	}
	ok(c, process)
}

// GetVersions handles GET /processes/:id/versions
func (h *Handlers) GetVersions(c *gin.Context) {
	id, valid := int64Param(c, "id")
	if !valid {
		return
	}

	versions, err := h.process.GetVersions(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, "GetVersions", err)
		return
	}
	ok(c, versions)
}
