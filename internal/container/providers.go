// Package container provides dependency injection and lifecycle management
// for the process portal.
package container

import (
	"context"
	"fmt"
	"io/fs"
	"os"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/dispatcher"
	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/application/service"
	"github.com/garyjia/process-portal/internal/application/workflow"
	"github.com/garyjia/process-portal/internal/config"
	"github.com/garyjia/process-portal/internal/infrastructure/authz"
	infraLark "github.com/garyjia/process-portal/internal/infrastructure/external/lark"
	"github.com/garyjia/process-portal/internal/infrastructure/instance"
	"github.com/garyjia/process-portal/internal/infrastructure/lock"
	"github.com/garyjia/process-portal/internal/infrastructure/persistence/repository"
	"github.com/garyjia/process-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/process-portal/internal/infrastructure/report"
	"github.com/garyjia/process-portal/internal/infrastructure/storage"
	"github.com/garyjia/process-portal/migrations"
	"github.com/garyjia/process-portal/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB        *database.DB
	TxManager *sqlite.TxManager
}

// LockBundle holds the edit locker and, when used, its Redis client.
type LockBundle struct {
	Locker port.EditLocker
	Redis  *redis.Client
}

// ServiceDeps carries everything ProvideServices wires together.
type ServiceDeps struct {
	Config     *config.Config
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Authorizer port.Authorizer
	Locker     port.EditLocker
	Sender     port.MessageSender
	Exports    port.ExportStore
	Instances  port.InstanceChecker
	Dispatcher dispatcher.Dispatcher
	Logger     *zap.Logger
}

// ProvideDatabase opens the SQLite store and applies pending migrations.
// An empty migrations_dir selects the embedded schema.
func ProvideDatabase(ctx context.Context, cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	var source fs.FS = migrations.FS
	if cfg.MigrationsDir != "" {
		source = os.DirFS(cfg.MigrationsDir)
	}
	applied, err := database.NewMigrator(db, logger).Run(ctx, source)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}
	logger.Info("Migrations applied", zap.Int("count", applied))

	return &DatabaseBundle{
		DB:        db,
		TxManager: sqlite.NewTxManager(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		Process:         repository.NewProcessRepository(db.DB, logger),
		Version:         repository.NewVersionRepository(db.DB, logger),
		EditSession:     repository.NewEditSessionRepository(db.DB, logger),
		AutoSave:        repository.NewAutoSaveRepository(db.DB, logger),
		Conflict:        repository.NewConflictRepository(db.DB, logger),
		Approval:        repository.NewApprovalRepository(db.DB, logger),
		Comment:         repository.NewCommentRepository(db.DB, logger),
		ApprovalHistory: repository.NewApprovalHistoryRepository(db.DB, logger),
		DeletionHistory: repository.NewDeletionHistoryRepository(db.DB, logger),
	}, nil
}

// ProvideAuthorizer builds the static role table from config.
func ProvideAuthorizer(cfg *config.AuthzConfig) (port.Authorizer, error) {
	authorizer, err := authz.NewStaticAuthorizer(cfg.Roles, cfg.Users)
	if err != nil {
		return nil, fmt.Errorf("failed to build authorizer: %w", err)
	}
	return authorizer, nil
}

// ProvideLocker returns a Redis-backed locker when Redis is enabled, and an
// in-process locker otherwise.
func ProvideLocker(ctx context.Context, cfg *config.RedisConfig, logger *zap.Logger) (*LockBundle, error) {
	if !cfg.Enabled {
		logger.Info("Redis disabled, using in-process edit locks")
		return &LockBundle{Locker: lock.NewMemoryLocker()}, nil
	}

	opts, err := redis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}

	logger.Info("Redis edit locks enabled", zap.String("addr", opts.Addr))
	return &LockBundle{
		Locker: lock.NewRedisLocker(client, logger),
		Redis:  client,
	}, nil
}

// ProvideMessageSender returns the Lark messenger, or a sender that only logs
// when Lark is disabled.
func ProvideMessageSender(cfg *config.LarkConfig, logger *zap.Logger) port.MessageSender {
	if !cfg.Enabled {
		logger.Info("Lark disabled, notifications are logged only")
		return infraLark.NewNoopSender(logger)
	}

	larkCfg := infraLark.Config{
		AppID:         cfg.AppID,
		AppSecret:     cfg.AppSecret,
		ReceiveIDType: cfg.ReceiveIDType,
	}
	return infraLark.NewMessenger(infraLark.NewSDKClient(larkCfg), larkCfg, logger)
}

// ProvideExportStore creates the directory holding saved audit workbooks.
func ProvideExportStore(cfg *config.ExportConfig, logger *zap.Logger) (port.ExportStore, error) {
	if err := os.MkdirAll(cfg.Dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create export dir: %w", err)
	}
	return storage.NewLocalExportStore(cfg.Dir, logger), nil
}

// ProvideDispatcher creates the in-process event dispatcher.
func ProvideDispatcher(logger *zap.Logger) dispatcher.Dispatcher {
	return dispatcher.NewDispatcher(dispatcher.WithLogger(NewLoggerAdapter(logger)))
}

// ProvideServices wires the application services and registers the
// notification handlers on the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Config == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are incomplete")
	}
	if deps.TxManager == nil {
		return nil, fmt.Errorf("transaction manager is required")
	}
	if deps.Instances == nil {
		deps.Instances = instance.NoActiveInstances{}
	}

	cfg := deps.Config
	repos := deps.Repos
	log := NewLoggerAdapter(deps.Logger)
	lifecycle := workflow.NewLifecycle()

	var events service.EventPublisher
	if deps.Dispatcher != nil {
		events = deps.Dispatcher
	}

	versioning := service.NewVersioningEngine(repos.Version, log)
	audit := service.NewAuditTrail(
		repos.ApprovalHistory,
		repos.DeletionHistory,
		deps.Authorizer,
		report.NewAuditWorkbook(deps.Logger),
		deps.Exports,
		log,
	)

	bundle := &ServiceBundle{
		Versioning: versioning,
		Audit:      audit,
		Process: service.NewProcessService(
			repos.Process, versioning, deps.Authorizer, deps.TxManager, log,
		),
		Approval: service.NewApprovalService(
			repos.Process, repos.Approval, repos.Comment, versioning, audit,
			deps.Authorizer, lifecycle, deps.TxManager, events,
			service.ApprovalOptions{
				RecentWindow: cfg.Approval.RecentWindow,
				RecentLimit:  cfg.Approval.RecentLimit,
				StatsWindow:  cfg.Approval.StatsWindow,
			},
			log,
		),
		Editing: service.NewEditingService(
			repos.Process, repos.EditSession, repos.AutoSave, repos.Conflict, versioning, audit,
			deps.Authorizer, deps.Locker, lifecycle, deps.TxManager, events,
			service.EditingOptions{
				SessionTimeout:        cfg.Editing.SessionTimeout,
				LockTTL:               cfg.Editing.LockTTL,
				AutoSaveInterval:      cfg.Editing.AutoSaveInterval,
				MaxConcurrentSessions: cfg.Editing.MaxConcurrentSessions,
				EnforceLocks:          cfg.Editing.EnforceLocks,
			},
			log,
		),
		Deletion: service.NewDeletionService(
			repos.Process, repos.Version, repos.EditSession, repos.Conflict, repos.Approval, audit,
			deps.Authorizer, deps.Instances, lifecycle, deps.TxManager, events,
			service.DeletionOptions{
				DefaultPageSize: cfg.Deletion.DefaultPageSize,
				MaxPageSize:     cfg.Deletion.MaxPageSize,
			},
			log,
		),
	}

	if deps.Sender != nil {
		bundle.Notification = service.NewNotificationService(deps.Sender, cfg.Notification.Approvers, log)
		if deps.Dispatcher != nil {
			bundle.Notification.Register(deps.Dispatcher)
		}
	}

	return bundle, nil
}
