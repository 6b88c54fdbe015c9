package http

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"github.com/garyjia/process-portal/internal/application/service"
	"github.com/garyjia/process-portal/internal/domain/entity"
)

// UserHeader carries the caller identity
const UserHeader = "X-User-ID"

const userKey = "portal.user_id"

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Code    string      `json:"code,omitempty"`
}

// newValidator returns a validator with the portal's enum tags registered
func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("comment_type", func(fl validator.FieldLevel) bool {
		return entity.CommentType(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("resolution", func(fl validator.FieldLevel) bool {
		return entity.ConflictResolution(fl.Field().String()).IsValid()
	})
	_ = v.RegisterValidation("change_type", func(fl validator.FieldLevel) bool {
		switch entity.VersionChangeType(fl.Field().String()) {
		case entity.ChangeMajor, entity.ChangeMinor, entity.ChangePatch:
			return true
		}
		return false
	})
	_ = v.RegisterValidation("process_status", func(fl validator.FieldLevel) bool {
		return entity.ProcessStatus(fl.Field().String()).IsValid()
	})
	return v
}

func ok(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Response{Success: true, Data: data})
}

func created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Response{Success: true, Data: data})
}

func fail(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: message, Code: code})
}

// statusFor maps a service error to its HTTP status
func statusFor(err error) int {
	switch {
	case service.IsNotFound(err):
		return http.StatusNotFound
	case service.IsUnauthorized(err):
		return http.StatusForbidden
	case service.IsInvalidState(err), service.IsConflict(err):
		return http.StatusConflict
	case service.IsValidation(err):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes the envelope for err. Internal errors are logged and
// their text withheld from the caller.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	code := service.ErrorCode(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "op", op, "error", err, "path", c.FullPath())
		fail(c, status, service.CodeInternal, "internal server error")
		return
	}

	message := err.Error()
	var se *service.ServiceError
	if errors.As(err, &se) && se.Message != "" {
		message = se.Message
	}
	fail(c, status, code, message)
}

func badRequest(c *gin.Context, message string) {
	fail(c, http.StatusBadRequest, service.CodeValidation, message)
}

// bindJSON decodes and validates the body. An empty body is accepted when
// optional is set.
func (h *Handlers) bindJSON(c *gin.Context, dst interface{}, optional bool) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		if !(optional && errors.Is(err, io.EOF)) {
			badRequest(c, "invalid request body: "+err.Error())
			return false
		}
	}
	if err := h.validate.Struct(dst); err != nil {
		badRequest(c, validationMessage(err))
		return false
	}
	return true
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return err.Error()
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		parts = append(parts, strings.ToLower(fe.Field())+" failed "+fe.Tag())
	}
	return "invalid request: " + strings.Join(parts, ", ")
}

// int64Param parses a positive path id
func int64Param(c *gin.Context, name string) (int64, bool) {
	raw := c.Param(name)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// requireUser rejects requests without a caller identity
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		userID := strings.TrimSpace(c.GetHeader(UserHeader))
		if userID == "" {
			fail(c, http.StatusUnauthorized, service.CodeUnauthorized, "missing "+UserHeader+" header")
			return
		}
		c.Set(userKey, userID)
		c.Next()
	}
}

func currentUser(c *gin.Context) string {
	return c.GetString(userKey)
}
