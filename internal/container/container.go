package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/dispatcher"
	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/application/service"
	"github.com/garyjia/process-portal/internal/config"
	"github.com/garyjia/process-portal/internal/domain/event"
	"github.com/garyjia/process-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/process-portal/pkg/database"
)

// Container manages all application dependencies and lifecycle.
// Components start in dependency order and close in reverse.
type Container struct {
	config *config.Config
	logger *zap.Logger

	// Infrastructure - Data
	db           *database.DB
	txManager    *sqlite.TxManager
	repositories *RepositoryBundle

	// Infrastructure - External
	redis      *redis.Client
	locker     port.EditLocker
	sender     port.MessageSender
	authorizer port.Authorizer
	exports    port.ExportStore

	// Application
	dispatcher dispatcher.Dispatcher
	services   *ServiceBundle

	// Lifecycle
	mu     sync.Mutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Process         port.ProcessRepository
	Version         port.VersionRepository
	EditSession     port.EditSessionRepository
	AutoSave        port.AutoSaveRepository
	Conflict        port.ConflictRepository
	Approval        port.ApprovalRepository
	Comment         port.CommentRepository
	ApprovalHistory port.ApprovalHistoryRepository
	DeletionHistory port.DeletionHistoryRepository
}

// ServiceBundle groups all application services.
type ServiceBundle struct {
	Process      service.ProcessService
	Versioning   service.VersioningEngine
	Approval     service.ApprovalService
	Editing      service.EditingService
	Deletion     service.DeletionService
	Audit        service.AuditTrail
	Notification service.NotificationService
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *config.Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components:
// 1. Database, migrations and repositories
// 2. Authorizer, edit locks, notification sender and export store
// 3. Event dispatcher
// 4. Application services
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}
	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	if err := c.initDatabase(ctx); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initInfrastructure(ctx); err != nil {
		c.closeResources()
		return fmt.Errorf("failed to initialize infrastructure: %w", err)
	}
	c.logger.Info("Infrastructure initialized")

	c.dispatcher = ProvideDispatcher(c.logger)

	services, err := ProvideServices(&ServiceDeps{
		Config:     c.config,
		Repos:      c.repositories,
		TxManager:  c.txManager,
		Authorizer: c.authorizer,
		Locker:     c.locker,
		Sender:     c.sender,
		Exports:    c.exports,
		Dispatcher: c.dispatcher,
		Logger:     c.logger,
	})
	if err != nil {
		c.closeResources()
		return fmt.Errorf("failed to initialize services: %w", err)
	}
	c.services = services
	c.logger.Info("Application services initialized",
		zap.Int("notification_handlers", len(c.dispatcher.ListHandlers(event.TypeApprovalSubmitted))),
	)

	c.ready.Store(true)
	c.logger.Info("Container started successfully")
	return nil
}

func (c *Container) initDatabase(ctx context.Context) error {
	bundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}
	c.db = bundle.DB
	c.txManager = bundle.TxManager

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.db.Close()
		return err
	}
	c.repositories = repos
	return nil
}

func (c *Container) initInfrastructure(ctx context.Context) error {
	authorizer, err := ProvideAuthorizer(&c.config.Authz)
	if err != nil {
		return err
	}
	c.authorizer = authorizer

	locks, err := ProvideLocker(ctx, &c.config.Redis, c.logger)
	if err != nil {
		return err
	}
	c.locker = locks.Locker
	c.redis = locks.Redis

	c.sender = ProvideMessageSender(&c.config.Lark, c.logger)

	exports, err := ProvideExportStore(&c.config.Export, c.logger)
	if err != nil {
		return err
	}
	c.exports = exports
	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}
	c.logger.Info("Closing container")

	errs := c.closeResources()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors: %w", len(errs), errs[0])
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// closeResources waits for pending notifications, then releases Redis and the database.
func (c *Container) closeResources() []error {
	var errs []error

	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		}
		c.dispatcher = nil
	}

	if c.redis != nil {
		if err := c.redis.Close(); err != nil {
			c.logger.Error("Failed to close redis", zap.Error(err))
			errs = append(errs, fmt.Errorf("close redis: %w", err))
		}
		c.redis = nil
	}

	if c.db != nil {
		if err := c.db.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.db = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.db != nil {
		if err := c.db.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{Message: fmt.Sprintf("ping failed: %v", err)}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{Message: "not initialized"}
		status.Overall = false
	}

	switch {
	case c.redis != nil:
		if err := c.redis.Ping(ctx).Err(); err != nil {
			status.Components["locks"] = ComponentHealth{Message: fmt.Sprintf("redis ping failed: %v", err)}
			status.Overall = false
		} else {
			status.Components["locks"] = ComponentHealth{Healthy: true, Message: "redis"}
		}
	case c.locker != nil:
		status.Components["locks"] = ComponentHealth{Healthy: true, Message: "in-process"}
	default:
		status.Components["locks"] = ComponentHealth{Message: "not initialized"}
		status.Overall = false
	}

	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["dispatcher"] = ComponentHealth{Message: "not initialized"}
		status.Overall = false
	}

	return status
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// TxManager returns the transaction manager.
func (c *Container) TxManager() port.TransactionManager {
	return c.txManager
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *config.Config {
	return c.config
}
