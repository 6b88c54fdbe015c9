package service

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/pkg/utils"
)

// InitialVersion is the number given to the first snapshot of a process
const InitialVersion = "1.0.0"

// VersioningEngine snapshots processes into numbered versions.
// Writers must run inside the caller's transaction.
type VersioningEngine interface {
	NextVersion(current string, changeType entity.VersionChangeType) string
	CreateVersion(ctx context.Context, process *entity.Process, changeType entity.VersionChangeType, changeLog, userID string) (*entity.ProcessVersion, error)
	PublishCurrent(ctx context.Context, process *entity.Process, userID string) (*entity.ProcessVersion, error)
	GetVersions(ctx context.Context, processID int64) ([]*entity.ProcessVersion, error)
	GetCurrentVersion(ctx context.Context, processID int64) (*entity.ProcessVersion, error)
}

type versioningEngineImpl struct {
	versionRepo port.VersionRepository
	logger      Logger
}

// NewVersioningEngine creates a new VersioningEngine
func NewVersioningEngine(versionRepo port.VersionRepository, logger Logger) VersioningEngine {
	return &versioningEngineImpl{
		versionRepo: versionRepo,
		logger:      logger,
	}
}

// NextVersion bumps a semver string. Malformed input restarts at 1.0.0 and
// unknown change types bump the minor part.
func NextVersion(current string, changeType entity.VersionChangeType) string {
	if utils.ValidateVersionNumber(current) != nil {
		return InitialVersion
	}

	nums := make([]int, 3)
	for i, p := range strings.Split(current, ".") {
		n, err := strconv.Atoi(p)
		if err != nil {
			return InitialVersion
		}
		nums[i] = n
	}

	switch changeType {
	case entity.ChangeMajor:
		return fmt.Sprintf("%d.0.0", nums[0]+1)
	case entity.ChangePatch:
		return fmt.Sprintf("%d.%d.%d", nums[0], nums[1], nums[2]+1)
	default:
		return fmt.Sprintf("%d.%d.0", nums[0], nums[1]+1)
	}
}

func (e *versioningEngineImpl) NextVersion(current string, changeType entity.VersionChangeType) string {
	return NextVersion(current, changeType)
}

// CreateVersion snapshots process as the new current version
func (e *versioningEngineImpl) CreateVersion(ctx context.Context, process *entity.Process, changeType entity.VersionChangeType, changeLog, userID string) (*entity.ProcessVersion, error) {
	current, err := e.versionRepo.GetCurrent(ctx, process.ID)
	if err != nil {
		return nil, fmt.Errorf("get current version: %w", err)
	}

	number := InitialVersion
	if current != nil {
		number = NextVersion(current.VersionNumber, changeType)
	}

	content, err := snapshotContent(process)
	if err != nil {
		return nil, err
	}
	return e.insertCurrent(ctx, process, content, number, changeLog, userID, false)
}

// PublishCurrent stamps the current version as published. A published 1.0.0
// is created when the process has never been versioned, and a patch version
// when the live content no longer matches the current snapshot.
func (e *versioningEngineImpl) PublishCurrent(ctx context.Context, process *entity.Process, userID string) (*entity.ProcessVersion, error) {
	current, err := e.versionRepo.GetCurrent(ctx, process.ID)
	if err != nil {
		return nil, fmt.Errorf("get current version: %w", err)
	}

	content, err := snapshotContent(process)
	if err != nil {
		return nil, err
	}

	if current == nil {
		return e.insertCurrent(ctx, process, content, InitialVersion, "Initial published version", userID, true)
	}

	if current.Content != content {
		number := NextVersion(current.VersionNumber, entity.ChangePatch)
		changeLog := fmt.Sprintf("Published with changes since %s", current.VersionNumber)
		return e.insertCurrent(ctx, process, content, number, changeLog, userID, true)
	}

	if current.IsPublished {
		return current, nil
	}

	now := time.Now().UTC()
	if err := e.versionRepo.MarkPublished(ctx, current.ID, userID, now); err != nil {
		return nil, fmt.Errorf("publish version: %w", err)
	}
	current.IsPublished = true
	current.PublishedAt = &now
	current.PublishedBy = userID

	e.logger.Info("Version published", "process_id", process.ID, "version", current.VersionNumber)
	return current, nil
}

func (e *versioningEngineImpl) insertCurrent(ctx context.Context, process *entity.Process, content, number, changeLog, userID string, published bool) (*entity.ProcessVersion, error) {
	now := time.Now().UTC()
	version := &entity.ProcessVersion{
		ProcessID:     process.ID,
		VersionNumber: number,
		Title:         process.Title,
		Description:   process.Description,
		Content:       content,
		ChangeLog:     changeLog,
		CreatedBy:     userID,
		CreatedAt:     now,
		IsCurrent:     true,
		IsPublished:   published,
	}
	if published {
		version.PublishedAt = &now
		version.PublishedBy = userID
	}

	if err := e.versionRepo.ClearCurrent(ctx, process.ID); err != nil {
		return nil, fmt.Errorf("clear current version: %w", err)
	}
	if err := e.versionRepo.Create(ctx, version); err != nil {
		return nil, fmt.Errorf("create version: %w", err)
	}

	e.logger.Info("Version created", "process_id", process.ID, "version", number, "published", published)
	return version, nil
}

// snapshotContent serializes the versioned fields. Tags are sorted so equal
// content always yields equal snapshots.
func snapshotContent(p *entity.Process) (string, error) {
	snap := entity.VersionSnapshot{
		Title:       p.Title,
		Description: p.Description,
		Category:    p.Category,
		OwnerID:     p.OwnerID,
		Steps:       entity.NormalizeSteps(p.Steps),
		Tags:        p.TagNames(),
	}
	sort.Strings(snap.Tags)
	raw, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal version snapshot: %w", err)
	}
	return string(raw), nil
}

// GetVersions returns all versions of a process, newest first
func (e *versioningEngineImpl) GetVersions(ctx context.Context, processID int64) ([]*entity.ProcessVersion, error) {
	versions, err := e.versionRepo.ListByProcessID(ctx, processID)
	if err != nil {
		e.logger.Error("Failed to list versions", "error", err, "process_id", processID)
		return nil, err
	}
	return versions, nil
}

// GetCurrentVersion returns the current version, or nil when none exists
func (e *versioningEngineImpl) GetCurrentVersion(ctx context.Context, processID int64) (*entity.ProcessVersion, error) {
	version, err := e.versionRepo.GetCurrent(ctx, processID)
	if err != nil {
		e.logger.Error("Failed to get current version", "error", err, "process_id", processID)
		return nil, err
	}
	return version, nil
}
