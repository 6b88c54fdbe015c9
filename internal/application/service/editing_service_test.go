package service

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/application/workflow"
	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/internal/domain/event"
	"github.com/garyjia/process-portal/internal/infrastructure/persistence/repository"
	"github.com/garyjia/process-portal/internal/infrastructure/persistence/sqlite"
)

// vanishingProcesses reports every process as missing once gone is set
type vanishingProcesses struct {
	port.ProcessRepository
	gone bool
}

func (v *vanishingProcesses) GetByID(ctx context.Context, id int64) (*entity.Process, error) {
	if v.gone {
		return nil, nil
	}
	return v.ProcessRepository.GetByID(ctx, id)
}

func TestEditingService_StartEditSession(t *testing.T) {
	opts := DefaultEditingOptions()
	opts.MaxConcurrentSessions = 1
	env := newTestEnvWithEditing(t, opts)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	first, err := env.editing.StartEditSession(ctx, p.ID, author, "fix typos")
	require.NoError(t, err)
	assert.NotEmpty(t, first.SessionID)
	assert.Equal(t, entity.SessionActive, first.Session.Status)
	assert.Equal(t, "Onboarding", first.Process.Title)
	assert.Empty(t, first.OtherActiveSessions)
	assert.Equal(t, entity.DefaultAutoSaveSeconds, first.AutoSaveIntervalSeconds)

	again, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)
	assert.Equal(t, first.SessionID, again.SessionID, "an active session is resumed, not duplicated")

	second, err := env.editing.StartEditSession(ctx, p.ID, editor, "")
	require.NoError(t, err)
	require.Len(t, second.OtherActiveSessions, 1)
	assert.Equal(t, author, second.OtherActiveSessions[0].UserID)

	_, err = env.editing.StartEditSession(ctx, p.ID, admin, "")
	assert.True(t, IsConflict(err), "session cap reached: %v", err)

	_, err = env.editing.StartEditSession(ctx, p.ID, outsider, "")
	assert.True(t, IsUnauthorized(err))

	_, err = env.editing.StartEditSession(ctx, 999, author, "")
	assert.True(t, IsNotFound(err))

	active, err := env.editing.GetActiveEditSessions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, active, 2)
	assert.Equal(t, author, active[0].UserID)
}

func TestEditingService_SaveDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	start, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)

	draft, err := env.editing.GetDraft(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Nil(t, draft, "no draft before the first auto-save")

	_, err = env.editing.SaveDraft(ctx, start.SessionID, editor, entity.DraftContent{Title: strPtr("x")})
	assert.True(t, IsNotFound(err), "sessions are private to their owner")

	_, err = env.editing.SaveDraft(ctx, start.SessionID, author, entity.DraftContent{
		Steps: []entity.ProcessStep{{Title: "bad", StepType: "Teleport"}},
	})
	assert.True(t, IsValidation(err))

	view, err := env.editing.SaveDraft(ctx, start.SessionID, author, entity.DraftContent{Title: strPtr("Onboarding v2")})
	require.NoError(t, err)
	assert.Equal(t, "Onboarding v2", view.Title)
	assert.Equal(t, "HR", view.Category)

	view, err = env.editing.SaveDraft(ctx, start.SessionID, author, entity.DraftContent{Category: strPtr("People")})
	require.NoError(t, err)
	assert.Equal(t, "Onboarding v2", view.Title, "earlier overlays survive later saves")
	assert.Equal(t, "People", view.Category)

	stored, err := env.processes.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "Onboarding", stored.Title, "drafts never touch the process row")

	draft, err = env.editing.GetDraft(ctx, start.SessionID)
	require.NoError(t, err)
	require.NotNil(t, draft)
	assert.Equal(t, "Onboarding v2", draft.Title)

	saves, err := env.editing.GetAutoSaveHistory(ctx, start.SessionID, author)
	require.NoError(t, err)
	require.Len(t, saves, 2)
	var latest entity.DraftContent
	require.NoError(t, json.Unmarshal([]byte(saves[0].Content), &latest))
	require.NotNil(t, latest.Category)
	assert.Equal(t, "People", *latest.Category)

	_, err = env.editing.GetAutoSaveHistory(ctx, start.SessionID, editor)
	assert.True(t, IsNotFound(err))
}

func TestEditingService_CompleteOnDraft(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	start, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)
	_, err = env.editing.SaveDraft(ctx, start.SessionID, author, entity.DraftContent{Description: strPtr("Day one checklist")})
	require.NoError(t, err)

	result, err := env.editing.CompleteEditWithNewVersion(ctx, start.SessionID, author, CompleteEditInput{
		DraftContent: entity.DraftContent{
			Title:         strPtr("Onboarding checklist"),
			Tags:          []string{"people", "day-one"},
			ChangeComment: "tidy up",
		},
	})
	require.NoError(t, err)
	assert.Nil(t, result.Version, "drafts are not versioned")
	assert.Empty(t, result.Conflicts)
	assert.Equal(t, "Onboarding checklist", result.Process.Title)
	assert.Equal(t, "Day one checklist", result.Process.Description)
	assert.Equal(t, []string{"people", "day-one"}, result.Process.TagNames())
	assert.Len(t, result.Process.Steps, 2, "steps not in the draft are kept")
	assert.Equal(t, entity.StatusDraft, result.Process.Status)

	session, err := env.editing.GetEditSession(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionCompleted, session.Status)
	assert.Equal(t, "tidy up", session.CompletionComment)

	_, err = env.editing.CompleteEditWithNewVersion(ctx, start.SessionID, author, CompleteEditInput{})
	assert.True(t, IsNotFound(err), "a completed session cannot complete again")

	completed := env.publisher.last(event.TypeEditCompleted)
	require.NotNil(t, completed)
	assert.Equal(t, start.SessionID, completed.GetPayloadString(event.KeySessionID))
}

func TestEditingService_CompleteOnPublishedCreatesVersion(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")
	env.publish(t, p.ID)

	start, err := env.editing.StartEditSession(ctx, p.ID, editor, "")
	require.NoError(t, err)

	result, err := env.editing.CompleteEditWithNewVersion(ctx, start.SessionID, editor, CompleteEditInput{
		DraftContent: entity.DraftContent{
			Steps: []entity.ProcessStep{
				{Title: "Collect documents", StepType: entity.StepStart},
				{Title: "Sign contract"},
				{Title: "Order laptop"},
			},
			ChangeComment: "add hardware step",
		},
		VersionChangeType: entity.ChangeMinor,
	})
	require.NoError(t, err)
	require.NotNil(t, result.Version)
	assert.Equal(t, "1.1.0", result.Version.VersionNumber)
	assert.Equal(t, "add hardware step", result.Version.ChangeLog)
	assert.False(t, result.Version.IsPublished)
	assert.Equal(t, entity.StatusDraft, result.Process.Status, "editing a published process sends it back to draft")
	assert.Len(t, result.Process.Steps, 3)

	var snap entity.VersionSnapshot
	require.NoError(t, json.Unmarshal([]byte(result.Version.Content), &snap))
	assert.Len(t, snap.Steps, 3)

	versions, err := env.process.GetVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.True(t, versions[0].IsCurrent)
	assert.False(t, versions[1].IsCurrent)

	history, err := env.approval.GetApprovalHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ActionRequestChanges, history[0].Action)
	assert.Equal(t, entity.StatusPublished, history[0].FromStatus)

	session, err := env.editing.GetEditSession(ctx, start.SessionID)
	require.NoError(t, err)
	require.NotNil(t, session.CreatedVersionID)
	assert.Equal(t, result.Version.ID, *session.CreatedVersionID)

	// Resubmitting publishes the new version
	req, err := env.approval.SubmitForApproval(ctx, p.ID, author, "")
	require.NoError(t, err)
	_, err = env.approval.ApproveProcess(ctx, req.ID, approver, "")
	require.NoError(t, err)
	current, err := env.versioning.GetCurrentVersion(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, "1.1.0", current.VersionNumber)
	assert.True(t, current.IsPublished)
}

func TestEditingService_ApprovePublishesLatestDraftEdits(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")
	env.publish(t, p.ID)

	complete := func(title string) *CompleteEditResult {
		start, err := env.editing.StartEditSession(ctx, p.ID, editor, "")
		require.NoError(t, err)
		result, err := env.editing.CompleteEditWithNewVersion(ctx, start.SessionID, editor, CompleteEditInput{
			DraftContent: entity.DraftContent{Title: strPtr(title)},
		})
		require.NoError(t, err)
		return result
	}

	first := complete("Onboarding v2")
	require.NotNil(t, first.Version)
	assert.Equal(t, "1.1.0", first.Version.VersionNumber)

	second := complete("Onboarding v3")
	assert.Nil(t, second.Version, "editing a draft does not cut a version")

	req, err := env.approval.SubmitForApproval(ctx, p.ID, author, "")
	require.NoError(t, err)
	_, err = env.approval.ApproveProcess(ctx, req.ID, approver, "")
	require.NoError(t, err)

	current, err := env.versioning.GetCurrentVersion(ctx, p.ID)
	require.NoError(t, err)
	require.NotNil(t, current)
	assert.Equal(t, "1.1.1", current.VersionNumber)
	assert.True(t, current.IsPublished)
	assert.Equal(t, "Onboarding v3", current.Title)

	var snap entity.VersionSnapshot
	require.NoError(t, json.Unmarshal([]byte(current.Content), &snap))
	assert.Equal(t, "Onboarding v3", snap.Title)

	versions, err := env.process.GetVersions(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	assert.Equal(t, "1.1.0", versions[1].VersionNumber)
	assert.False(t, versions[1].IsPublished, "the superseded edit was never approved")
}

func TestEditingService_CompleteAfterProcessPurged(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	start, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)

	zl := zap.NewNop()
	processes := &vanishingProcesses{ProcessRepository: env.processes}
	txManager := sqlite.NewTxManager(env.db.DB, zl)
	purgeAfterCommit := &mockTxManager{
		withTransactionFunc: func(ctx context.Context, fn func(ctx context.Context) error) error {
			if err := txManager.WithTransaction(ctx, fn); err != nil {
				return err
			}
			processes.gone = true
			return nil
		},
	}
	svc := NewEditingService(processes, env.sessions, repository.NewAutoSaveRepository(env.db.DB, zl), env.conflicts,
		env.versioning, env.audit, env.authorizer, env.locker, workflow.NewLifecycle(), purgeAfterCommit,
		env.publisher, DefaultEditingOptions(), &mockLogger{})

	_, err = svc.CompleteEditWithNewVersion(ctx, start.SessionID, author, CompleteEditInput{
		DraftContent: entity.DraftContent{Title: strPtr("Onboarding v2")},
	})
	require.Error(t, err)
	assert.True(t, IsNotFound(err), "unexpected error: %v", err)
}

func TestEditingService_CompleteOnRejectedRevises(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	req, err := env.approval.SubmitForApproval(ctx, p.ID, author, "")
	require.NoError(t, err)
	_, err = env.approval.RejectProcess(ctx, req.ID, approver, "needs an owner")
	require.NoError(t, err)

	start, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)
	result, err := env.editing.CompleteEditWithNewVersion(ctx, start.SessionID, author, CompleteEditInput{
		DraftContent: entity.DraftContent{OwnerID: strPtr(editor)},
	})
	require.NoError(t, err)
	assert.Nil(t, result.Version)
	assert.Equal(t, entity.StatusDraft, result.Process.Status)
	assert.Equal(t, editor, result.Process.OwnerID)

	_, err = env.approval.SubmitForApproval(ctx, p.ID, editor, "owner resubmits")
	assert.NoError(t, err)
}

func TestEditingService_SaveAsDraftKeepsSessionOpen(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	start, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)

	result, err := env.editing.CompleteEditWithNewVersion(ctx, start.SessionID, author, CompleteEditInput{
		DraftContent: entity.DraftContent{Title: strPtr("WIP")},
		SaveAsDraft:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, "WIP", result.Process.Title)

	session, err := env.editing.GetEditSession(ctx, start.SessionID)
	require.NoError(t, err)
	assert.True(t, session.IsActive())
	assert.Equal(t, entity.StatusDraft, env.status(t, p.ID))
}

func TestEditingService_ConflictDetection(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	mine, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)
	theirs, err := env.editing.StartEditSession(ctx, p.ID, editor, "")
	require.NoError(t, err)
	bystander, err := env.editing.StartEditSession(ctx, p.ID, admin, "")
	require.NoError(t, err)

	_, err = env.editing.SaveDraft(ctx, theirs.SessionID, editor, entity.DraftContent{
		Title:    strPtr("Their title"),
		Category: strPtr("Ops"),
	})
	require.NoError(t, err)
	_, err = env.editing.SaveDraft(ctx, bystander.SessionID, admin, entity.DraftContent{Description: strPtr("unrelated")})
	require.NoError(t, err)

	result, err := env.editing.CompleteEditWithNewVersion(ctx, mine.SessionID, author, CompleteEditInput{
		DraftContent: entity.DraftContent{Title: strPtr("My title"), Category: strPtr("HR")},
	})
	require.NoError(t, err, "conflicts are warnings, not failures")
	assert.Equal(t, "My title", result.Process.Title, "last writer wins")

	require.Len(t, result.Conflicts, 1)
	c := result.Conflicts[0]
	assert.Equal(t, mine.SessionID, c.SessionID1)
	assert.Equal(t, author, c.UserID1)
	assert.Equal(t, theirs.SessionID, c.SessionID2)
	assert.Equal(t, editor, c.UserID2)
	assert.Equal(t, []string{entity.FieldTitle, entity.FieldCategory}, c.ConflictingFields)

	detected := env.publisher.last(event.TypeEditConflictDetected)
	require.NotNil(t, detected)
	assert.Equal(t, []string{editor}, detected.GetPayloadStrings(event.KeyConflicts))

	open, err := env.editing.GetActiveConflicts(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, open, 1)

	_, err = env.editing.ResolveConflict(ctx, c.ID, editor, entity.ConflictResolution("Shrug"))
	assert.True(t, IsValidation(err))

	_, err = env.editing.ResolveConflict(ctx, c.ID, outsider, entity.ResolutionMerge)
	assert.True(t, IsUnauthorized(err))

	resolved, err := env.editing.ResolveConflict(ctx, c.ID, editor, entity.ResolutionKeepTheirs)
	require.NoError(t, err)
	assert.Equal(t, entity.ResolutionKeepTheirs, resolved.Resolution)
	assert.Equal(t, editor, resolved.ResolvedBy)

	_, err = env.editing.ResolveConflict(ctx, c.ID, author, entity.ResolutionKeepMine)
	assert.True(t, IsInvalidState(err))

	open, err = env.editing.GetActiveConflicts(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, open)
}

func TestEditingService_NoConflictWithoutOverlap(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	mine, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)
	theirs, err := env.editing.StartEditSession(ctx, p.ID, editor, "")
	require.NoError(t, err)

	_, err = env.editing.SaveDraft(ctx, theirs.SessionID, editor, entity.DraftContent{Tags: []string{"x"}})
	require.NoError(t, err)

	result, err := env.editing.CompleteEditWithNewVersion(ctx, mine.SessionID, author, CompleteEditInput{
		DraftContent: entity.DraftContent{Title: strPtr("New")},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Conflicts)
	assert.Nil(t, env.publisher.last(event.TypeEditConflictDetected))
}

func TestEditingService_Locks(t *testing.T) {
	opts := DefaultEditingOptions()
	opts.EnforceLocks = true
	env := newTestEnvWithEditing(t, opts)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	mine, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)
	theirs, err := env.editing.StartEditSession(ctx, p.ID, editor, "")
	require.NoError(t, err)

	status, err := env.editing.GetLockStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, status)

	held, err := env.editing.AcquireLock(ctx, mine.SessionID, author)
	require.NoError(t, err)
	assert.Equal(t, mine.SessionID, held.SessionID)
	assert.False(t, held.ExpiresAt.IsZero())

	_, err = env.editing.AcquireLock(ctx, theirs.SessionID, editor)
	assert.True(t, IsConflict(err))

	_, err = env.editing.AcquireLock(ctx, mine.SessionID, editor)
	assert.True(t, IsNotFound(err), "only the session owner may lock")

	_, err = env.editing.RenewLock(ctx, theirs.SessionID, editor)
	assert.True(t, IsConflict(err))

	renewed, err := env.editing.RenewLock(ctx, mine.SessionID, author)
	require.NoError(t, err)
	assert.False(t, renewed.ExpiresAt.Before(held.ExpiresAt))

	_, err = env.editing.CompleteEditWithNewVersion(ctx, theirs.SessionID, editor, CompleteEditInput{
		DraftContent: entity.DraftContent{Title: strPtr("Sneaky")},
	})
	assert.True(t, IsConflict(err), "enforced locks block other sessions")

	_, err = env.editing.CompleteEditWithNewVersion(ctx, mine.SessionID, author, CompleteEditInput{
		DraftContent: entity.DraftContent{Title: strPtr("Mine")},
	})
	require.NoError(t, err)

	status, err = env.editing.GetLockStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, status, "completing releases the lock")

	assert.NoError(t, env.editing.ReleaseLock(ctx, theirs.SessionID, editor), "releasing an unheld lock is fine")
}

func TestEditingService_LocksNotConfigured(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.editing.(*editingServiceImpl).locker = nil
	p := env.createProcess(t, "Onboarding")

	start, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)

	_, err = env.editing.AcquireLock(ctx, start.SessionID, author)
	assert.True(t, IsInvalidState(err))

	status, err := env.editing.GetLockStatus(ctx, p.ID)
	assert.NoError(t, err)
	assert.Nil(t, status)

	_, err = env.editing.CompleteEditWithNewVersion(ctx, start.SessionID, author, CompleteEditInput{})
	assert.NoError(t, err)
}

func TestEditingService_EndEditSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	start, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)
	_, err = env.editing.AcquireLock(ctx, start.SessionID, author)
	require.NoError(t, err)

	require.NoError(t, env.editing.EndEditSession(ctx, start.SessionID, editor, ""))
	session, err := env.editing.GetEditSession(ctx, start.SessionID)
	require.NoError(t, err)
	assert.True(t, session.IsActive(), "other users cannot end the session")

	require.NoError(t, env.editing.EndEditSession(ctx, start.SessionID, author, "done for today"))
	session, err = env.editing.GetEditSession(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Equal(t, entity.SessionCompleted, session.Status)
	assert.Nil(t, session.CreatedVersionID)

	status, err := env.editing.GetLockStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, status)

	assert.NoError(t, env.editing.EndEditSession(ctx, "no-such-session", author, ""))
}

func TestEditingService_CanEdit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	tests := []struct {
		name      string
		processID int64
		userID    string
		want      bool
	}{
		{"creator", p.ID, author, true},
		{"holder of edit_process", p.ID, editor, true},
		{"no permission", p.ID, outsider, false},
		{"anonymous", p.ID, "", false},
		{"missing process", 999, author, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := env.editing.CanEdit(ctx, tt.processID, tt.userID)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestOverlap(t *testing.T) {
	assert.Equal(t, []string{"title", "steps"}, overlap([]string{"title", "tags", "steps"}, []string{"steps", "title"}))
	assert.Nil(t, overlap([]string{"title"}, []string{"tags"}))
	assert.Nil(t, overlap(nil, []string{"tags"}))
}
