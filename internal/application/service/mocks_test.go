package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/application/workflow"
	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/internal/domain/event"
	"github.com/garyjia/process-portal/internal/infrastructure/lock"
	"github.com/garyjia/process-portal/internal/infrastructure/persistence/repository"
	"github.com/garyjia/process-portal/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/process-portal/internal/infrastructure/storage"
	"github.com/garyjia/process-portal/migrations"
	"github.com/garyjia/process-portal/pkg/database"
)

type mockLogger struct{}

func (m *mockLogger) Info(msg string, keysAndValues ...interface{})  {}
func (m *mockLogger) Error(msg string, keysAndValues ...interface{}) {}

type mockTxManager struct {
	withTransactionFunc func(ctx context.Context, fn func(ctx context.Context) error) error
}

func (m *mockTxManager) WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error {
	if m.withTransactionFunc != nil {
		return m.withTransactionFunc(ctx, fn)
	}
	return fn(ctx)
}

// mockAuthorizer grants the permissions listed per user
type mockAuthorizer struct {
	grants map[string][]entity.Permission
	err    error
}

func (m *mockAuthorizer) HasPermission(ctx context.Context, userID string, permission entity.Permission) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	for _, p := range m.grants[userID] {
		if p == permission {
			return true, nil
		}
	}
	return false, nil
}

type mockPublisher struct {
	mu     sync.Mutex
	events []*event.Event
}

func (m *mockPublisher) DispatchAsync(ctx context.Context, evt *event.Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evt)
}

func (m *mockPublisher) types() []event.Type {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]event.Type, 0, len(m.events))
	for _, e := range m.events {
		out = append(out, e.Type)
	}
	return out
}

func (m *mockPublisher) last(t event.Type) *event.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.events) - 1; i >= 0; i-- {
		if m.events[i].Type == t {
			return m.events[i]
		}
	}
	return nil
}

type mockSender struct {
	mu       sync.Mutex
	sent     map[string][]string
	sendFunc func(ctx context.Context, receiverID, text string) (string, error)
}

func (m *mockSender) SendText(ctx context.Context, receiverID string, text string) (string, error) {
	if m.sendFunc != nil {
		return m.sendFunc(ctx, receiverID, text)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.sent == nil {
		m.sent = map[string][]string{}
	}
	m.sent[receiverID] = append(m.sent[receiverID], text)
	return "om_" + receiverID, nil
}

type mockWorkbook struct {
	approvals []*entity.ApprovalHistory
	deletions []*entity.DeletionHistory
}

func (m *mockWorkbook) Write(w io.Writer, approvals []*entity.ApprovalHistory, deletions []*entity.DeletionHistory) error {
	m.approvals = approvals
	m.deletions = deletions
	_, err := io.WriteString(w, "workbook")
	return err
}

type mockInstanceChecker struct {
	running map[int64]bool
}

func (m *mockInstanceChecker) HasActiveInstances(ctx context.Context, processID int64) (bool, error) {
	return m.running[processID], nil
}

// Users of the test environment
const (
	author   = "alice"
	approver = "bob"
	editor   = "carol"
	admin    = "root"
	outsider = "mallory"
)

// testEnv wires every service over a real SQLite database
type testEnv struct {
	db *database.DB

	processes port.ProcessRepository
	versions  port.VersionRepository
	sessions  port.EditSessionRepository
	conflicts port.ConflictRepository
	approvals port.ApprovalRepository
	histories port.ApprovalHistoryRepository
	deletions port.DeletionHistoryRepository

	authorizer *mockAuthorizer
	publisher  *mockPublisher
	instances  *mockInstanceChecker
	locker     *lock.MemoryLocker
	workbook   *mockWorkbook

	versioning VersioningEngine
	audit      AuditTrail
	process    ProcessService
	approval   ApprovalService
	editing    EditingService
	deletion   DeletionService
}

func newTestEnv(t *testing.T) *testEnv {
	return newTestEnvWithEditing(t, DefaultEditingOptions())
}

func newTestEnvWithEditing(t *testing.T, editOpts EditingOptions) *testEnv {
	t.Helper()
	zl := zap.NewNop()
	logger := &mockLogger{}

	db, err := database.New(database.Config{Path: filepath.Join(t.TempDir(), "portal.db")}, zl)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	_, err = database.NewMigrator(db, zl).Run(context.Background(), migrations.FS)
	require.NoError(t, err)

	env := &testEnv{
		db:        db,
		processes: repository.NewProcessRepository(db.DB, zl),
		versions:  repository.NewVersionRepository(db.DB, zl),
		sessions:  repository.NewEditSessionRepository(db.DB, zl),
		conflicts: repository.NewConflictRepository(db.DB, zl),
		approvals: repository.NewApprovalRepository(db.DB, zl),
		histories: repository.NewApprovalHistoryRepository(db.DB, zl),
		deletions: repository.NewDeletionHistoryRepository(db.DB, zl),
		authorizer: &mockAuthorizer{grants: map[string][]entity.Permission{
			author:   {entity.PermViewProcess, entity.PermCreateProcess},
			approver: {entity.PermViewProcess, entity.PermApproveProcess, entity.PermViewAuditLog},
			editor:   {entity.PermViewProcess, entity.PermEditProcess},
			admin: {entity.PermViewProcess, entity.PermCreateProcess, entity.PermEditProcess,
				entity.PermDeleteProcess, entity.PermApproveProcess, entity.PermManageUsers, entity.PermViewAuditLog},
		}},
		publisher: &mockPublisher{},
		instances: &mockInstanceChecker{running: map[int64]bool{}},
		locker:    lock.NewMemoryLocker(),
		workbook:  &mockWorkbook{},
	}

	txManager := sqlite.NewTxManager(db.DB, zl)
	lifecycle := workflow.NewLifecycle()
	comments := repository.NewCommentRepository(db.DB, zl)
	autosaves := repository.NewAutoSaveRepository(db.DB, zl)

	env.versioning = NewVersioningEngine(env.versions, logger)
	env.audit = NewAuditTrail(env.histories, env.deletions, env.authorizer, env.workbook, storage.NewLocalExportStore(filepath.Join(t.TempDir(), "exports"), zl), logger)
	env.process = NewProcessService(env.processes, env.versioning, env.authorizer, txManager, logger)
	env.approval = NewApprovalService(env.processes, env.approvals, comments, env.versioning, env.audit,
		env.authorizer, lifecycle, txManager, env.publisher, DefaultApprovalOptions(), logger)
	env.editing = NewEditingService(env.processes, env.sessions, autosaves, env.conflicts, env.versioning, env.audit,
		env.authorizer, env.locker, lifecycle, txManager, env.publisher, editOpts, logger)
	env.deletion = NewDeletionService(env.processes, env.versions, env.sessions, env.conflicts, env.approvals,
		env.audit, env.authorizer, env.instances, lifecycle, txManager, env.publisher, DeletionOptions{}, logger)
	return env
}

func (e *testEnv) createProcess(t *testing.T, title string) *entity.Process {
	t.Helper()
	p, err := e.process.CreateProcess(context.Background(), author, CreateProcessInput{
		Title:    title,
		Category: "HR",
		Tags:     []string{"people"},
		Steps: []entity.ProcessStep{
			{Title: "Collect documents", StepType: entity.StepStart},
			{Title: "Sign contract"},
		},
	})
	require.NoError(t, err)
	return p
}

// publish takes a fresh process through submit and approve
func (e *testEnv) publish(t *testing.T, processID int64) *entity.ApprovalRequest {
	t.Helper()
	ctx := context.Background()
	req, err := e.approval.SubmitForApproval(ctx, processID, author, "please review")
	require.NoError(t, err)
	req, err = e.approval.ApproveProcess(ctx, req.ID, approver, "looks good")
	require.NoError(t, err)
	return req
}

func (e *testEnv) status(t *testing.T, processID int64) entity.ProcessStatus {
	t.Helper()
	p, err := e.processes.GetByID(context.Background(), processID)
	require.NoError(t, err)
	require.NotNil(t, p)
	return p.Status
}

func strPtr(s string) *string { return &s }

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}
