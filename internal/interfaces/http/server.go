// Package http exposes the portal's application services over HTTP/JSON.
// It is a thin adapter that translates requests into service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"github.com/garyjia/process-portal/internal/application/service"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// HealthFunc reports component health for GET /health
type HealthFunc func(ctx context.Context) (healthy bool, details interface{})

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	Mode            string
	ServiceName     string
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		Mode:            gin.ReleaseMode,
		ServiceName:     "process-portal",
	}
}

// Services are the application services the routes call into
type Services struct {
	Process  service.ProcessService
	Approval service.ApprovalService
	Editing  service.EditingService
	Deletion service.DeletionService
	Audit    service.AuditTrail
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	handlers   *Handlers
	logger     Logger
}

// NewServer creates a new HTTP server with the given services. health may be nil.
func NewServer(config ServerConfig, services Services, health HealthFunc, logger Logger) *Server {
	if config.Mode != "" {
		gin.SetMode(config.Mode)
	}
	if config.ShutdownTimeout <= 0 {
		config.ShutdownTimeout = 10 * time.Second
	}

	server := &Server{
		config:   config,
		router:   gin.New(),
		handlers: NewHandlers(services, health, logger),
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	if s.config.ServiceName != "" {
		s.router.Use(otelgin.Middleware(s.config.ServiceName))
	}
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		status := c.Writer.Status()
		keysAndValues := []interface{}{
			"method", method,
			"path", path,
			"status", status,
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
		}
		if user := currentUser(c); user != "" {
			keysAndValues = append(keysAndValues, "user_id", user)
		}
		if status >= http.StatusInternalServerError {
			s.logger.Error("HTTP request", keysAndValues...)
			return
		}
		s.logger.Info("HTTP request", keysAndValues...)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := s.handlers

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api/v1", requireUser())

	processes := api.Group("/processes")
	{
		processes.POST("", h.CreateProcess)
		processes.GET("", h.ListProcesses)
		processes.GET("/:id", h.GetProcess)
		processes.GET("/:id/versions", h.GetVersions)
	}

	approval := api.Group("/approval")
	{
		approval.POST("/submit/:processId", h.SubmitForApproval)
		approval.POST("/withdraw/:processId", h.WithdrawApproval)
		approval.POST("/review/:requestId", h.StartReview)
		approval.POST("/approve/:requestId", h.ApproveProcess)
		approval.POST("/reject/:requestId", h.RejectProcess)
		approval.POST("/comment/:requestId", h.AddComment)
		approval.GET("/queue", h.GetApprovalQueue)
		approval.GET("/statistics", h.GetApprovalStatistics)
		approval.GET("/my-requests", h.GetMyRequests)
		approval.GET("/request/:requestId", h.GetApprovalRequest)
		approval.GET("/request/:requestId/comments", h.GetComments)
		approval.GET("/process/:processId/current", h.GetCurrentRequest)
		approval.GET("/process/:processId/history", h.GetApprovalHistory)
		approval.GET("/can-approve", h.CanApprove)
		approval.GET("/can-submit/:processId", h.CanSubmit)
	}

	editing := api.Group("/editing")
	{
		editing.POST("/start/:processId", h.StartEditSession)
		editing.POST("/draft/:sessionId", h.SaveDraft)
		editing.GET("/draft/:sessionId", h.GetDraft)
		editing.POST("/complete/:sessionId", h.CompleteEdit)
		editing.POST("/end/:sessionId", h.EndEditSession)
		editing.GET("/sessions/:processId", h.GetActiveSessions)
		editing.GET("/can-edit/:processId", h.CanEdit)
		editing.GET("/autosaves/:sessionId", h.GetAutoSaves)
		editing.POST("/lock/:sessionId", h.AcquireLock)
		editing.PUT("/lock/:sessionId", h.RenewLock)
		editing.DELETE("/lock/:sessionId", h.ReleaseLock)
		editing.GET("/lock/process/:processId", h.GetLockStatus)
		editing.GET("/conflicts/:processId", h.GetConflicts)
		editing.POST("/conflicts/:conflictId/resolve", h.ResolveConflict)
	}

	deletion := api.Group("/deletion")
	{
		deletion.POST("/bulk-delete", h.BulkDelete)
		deletion.GET("/deleted", h.GetDeletedProcesses)
		deletion.POST("/:processId/soft-delete", h.SoftDelete)
		deletion.POST("/:processId/hard-delete", h.HardDelete)
		deletion.POST("/:processId/restore", h.Restore)
		deletion.GET("/:processId/history", h.GetDeletionHistory)
		deletion.GET("/:processId/can-delete", h.CanDelete)
		deletion.GET("/:processId/has-active-instances", h.HasActiveInstances)
	}

	audit := api.Group("/audit")
	{
		audit.GET("/export", h.ExportAudit)
		audit.POST("/exports", h.SaveAuditExport)
		audit.GET("/exports", h.ListAuditExports)
		audit.GET("/exports/:name", h.DownloadAuditExport)
	}
}

// Start starts the HTTP server and blocks until ctx is done or serving fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}

// Handlers contains all HTTP request handlers
type Handlers struct {
	process  service.ProcessService
	approval service.ApprovalService
	editing  service.EditingService
	deletion service.DeletionService
	audit    service.AuditTrail
	health   HealthFunc
	validate *validator.Validate
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, health HealthFunc, logger Logger) *Handlers {
	return &Handlers{
		process:  services.Process,
		approval: services.Approval,
		editing:  services.Editing,
		deletion: services.Deletion,
		audit:    services.Audit,
		health:   health,
		validate: newValidator(),
		logger:   logger,
	}
}
