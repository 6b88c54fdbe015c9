package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/pkg/utils"
)

// CreateProcessInput is the content of a new process
type CreateProcessInput struct {
	Title       string               `json:"title"`
	Description string               `json:"description"`
	Category    string               `json:"category"`
	OwnerID     string               `json:"owner_id,omitempty"`
	Tags        []string             `json:"tags,omitempty"`
	Steps       []entity.ProcessStep `json:"steps,omitempty"`
}

// ProcessService is the entry point for creating and reading processes
type ProcessService interface {
	CreateProcess(ctx context.Context, userID string, input CreateProcessInput) (*entity.Process, error)
	GetProcess(ctx context.Context, processID int64, userID string) (*entity.Process, error)
	ListProcesses(ctx context.Context, filter port.ProcessFilter) ([]*entity.Process, error)
	GetVersions(ctx context.Context, processID int64) ([]*entity.ProcessVersion, error)
}

type processServiceImpl struct {
	processRepo port.ProcessRepository
	versioning  VersioningEngine
	authorizer  port.Authorizer
	txManager   port.TransactionManager
	logger      Logger
}

// NewProcessService creates a new ProcessService
func NewProcessService(
	processRepo port.ProcessRepository,
	versioning VersioningEngine,
	authorizer port.Authorizer,
	txManager port.TransactionManager,
	logger Logger,
) ProcessService {
	return &processServiceImpl{
		processRepo: processRepo,
		versioning:  versioning,
		authorizer:  authorizer,
		txManager:   txManager,
		logger:      logger,
	}
}

// CreateProcess stores a new Draft process with its steps and tags
func (s *processServiceImpl) CreateProcess(ctx context.Context, userID string, input CreateProcessInput) (*entity.Process, error) {
	const op = "ProcessService.CreateProcess"

	allowed, err := checkPermission(ctx, s.authorizer, userID, entity.PermCreateProcess)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, unauthorized(op, "user %s cannot create processes", userID)
	}

	title := utils.SanitizeString(input.Title)
	if title == "" {
		return nil, validation(op, "title is required")
	}
	if err := entity.ValidateSteps(input.Steps); err != nil {
		return nil, validation(op, "%v", err)
	}

	now := time.Now().UTC()
	process := &entity.Process{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		Category:    strings.TrimSpace(input.Category),
		Status:      entity.StatusDraft,
		IsActive:    true,
		CreatedBy:   userID,
		OwnerID:     strings.TrimSpace(input.OwnerID),
		CreatedAt:   now,
		Steps:       entity.NormalizeSteps(input.Steps),
		Tags:        entity.NewTags(input.Tags),
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.processRepo.Create(txCtx, process); err != nil {
			return fmt.Errorf("create process: %w", err)
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create process", "error", err, "title", title)
		return nil, err
	}

	s.logger.Info("Process created", "process_id", process.ID, "user_id", userID)
	return process, nil
}

// GetProcess returns a live process and counts the view
func (s *processServiceImpl) GetProcess(ctx context.Context, processID int64, userID string) (*entity.Process, error) {
	process, err := s.processRepo.GetByID(ctx, processID)
	if err != nil {
		s.logger.Error("Failed to get process", "error", err, "process_id", processID)
		return nil, err
	}
	if process == nil || process.IsDeleted {
		return nil, notFound("ProcessService.GetProcess", "process %d not found", processID)
	}

	now := time.Now().UTC()
	if err := s.processRepo.RecordView(ctx, processID, now); err != nil {
		s.logger.Error("Failed to record process view", "error", err, "process_id", processID, "user_id", userID)
	} else {
		process.ViewCount++
		process.LastAccessedAt = &now
	}
	return process, nil
}

// ListProcesses returns live processes matching the filter
func (s *processServiceImpl) ListProcesses(ctx context.Context, filter port.ProcessFilter) ([]*entity.Process, error) {
	if filter.Limit <= 0 || filter.Limit > 100 {
		filter.Limit = 50
	}
	if filter.Offset < 0 {
		filter.Offset = 0
	}

	processes, err := s.processRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list processes", "error", err)
		return nil, err
	}
	return processes, nil
}

func (s *processServiceImpl) GetVersions(ctx context.Context, processID int64) ([]*entity.ProcessVersion, error) {
	return s.versioning.GetVersions(ctx, processID)
}
