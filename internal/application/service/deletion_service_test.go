package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/process-portal/internal/domain/entity"
	"github.com/garyjia/process-portal/internal/domain/event"
)

func TestDeletionService_SoftDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")
	req, err := env.approval.SubmitForApproval(ctx, p.ID, author, "")
	require.NoError(t, err)

	err = env.deletion.SoftDelete(ctx, p.ID, outsider, "spite", false)
	assert.True(t, IsUnauthorized(err))

	require.NoError(t, env.deletion.SoftDelete(ctx, p.ID, author, "  superseded  ", false))

	stored, err := env.processes.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsDeleted)
	assert.Equal(t, entity.StatusDeleted, stored.Status)
	assert.Equal(t, author, stored.DeletedBy)
	assert.Equal(t, "superseded", stored.DeletionReason)

	withdrawn, err := env.approvals.GetByID(ctx, req.ID)
	require.NoError(t, err)
	assert.Equal(t, entity.ApprovalWithdrawn, withdrawn.Status, "deleting withdraws the open request")

	ledger, err := env.approval.GetApprovalHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, ledger, 2)
	assert.Equal(t, entity.ActionWithdraw, ledger[0].Action)
	assert.Equal(t, entity.StatusPendingApproval, ledger[0].FromStatus)
	assert.Equal(t, entity.StatusDeleted, ledger[0].ToStatus)
	withdrawDetails, err := ledger[0].DecodeDetails()
	require.NoError(t, err)
	assert.Equal(t, req.ID, withdrawDetails.(entity.WithdrawDetails).RequestID)

	history, err := env.deletion.GetDeletionHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, entity.ActionSoftDelete, history[0].Action)
	assert.Equal(t, entity.StatusPendingApproval, history[0].FromStatus)
	details, err := history[0].DecodeDetails()
	require.NoError(t, err)
	soft := details.(entity.SoftDeleteDetails)
	assert.Equal(t, req.ID, soft.WithdrawnRequestID)
	assert.False(t, soft.Forced)

	deleted := env.publisher.last(event.TypeProcessDeleted)
	require.NotNil(t, deleted)
	assert.Equal(t, author, deleted.GetPayloadString(event.KeyCreatedBy))

	err = env.deletion.SoftDelete(ctx, p.ID, author, "", false)
	assert.True(t, IsNotFound(err), "already deleted")

	_, err = env.process.GetProcess(ctx, p.ID, author)
	assert.True(t, IsNotFound(err))
}

func TestDeletionService_SoftDeleteWithActiveInstances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Payroll")
	env.instances.running[p.ID] = true

	running, err := env.deletion.HasActiveInstances(ctx, p.ID)
	require.NoError(t, err)
	assert.True(t, running)

	err = env.deletion.SoftDelete(ctx, p.ID, author, "", false)
	assert.True(t, IsInvalidState(err))
	assert.Equal(t, entity.StatusDraft, env.status(t, p.ID))

	require.NoError(t, env.deletion.SoftDelete(ctx, p.ID, author, "", true))
	history, err := env.deletion.GetDeletionHistory(ctx, p.ID)
	require.NoError(t, err)
	details, err := history[0].DecodeDetails()
	require.NoError(t, err)
	assert.True(t, details.(entity.SoftDeleteDetails).Forced)
}

func TestDeletionService_Restore(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")
	env.publish(t, p.ID)

	err := env.deletion.Restore(ctx, p.ID, author, "")
	assert.True(t, IsNotFound(err), "live processes cannot be restored")

	require.NoError(t, env.deletion.SoftDelete(ctx, p.ID, author, "oops", false))

	page, err := env.deletion.GetDeletedProcesses(ctx, admin, 1, 20)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	assert.Equal(t, p.ID, page.Items[0].ID)

	err = env.deletion.Restore(ctx, p.ID, outsider, "")
	assert.True(t, IsUnauthorized(err))

	require.NoError(t, env.deletion.Restore(ctx, p.ID, author, "needed after all"))

	stored, err := env.processes.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsDeleted)
	assert.Nil(t, stored.DeletedAt)
	assert.Equal(t, entity.StatusDraft, stored.Status, "restored processes come back as drafts")

	history, err := env.deletion.GetDeletionHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.ActionRestore, history[0].Action)
	details, err := history[0].DecodeDetails()
	require.NoError(t, err)
	restore := details.(entity.RestoreDetails)
	assert.Equal(t, author, restore.DeletedBy)
	assert.NotNil(t, restore.DeletedAt)

	assert.NotNil(t, env.publisher.last(event.TypeProcessRestored))

	page, err = env.deletion.GetDeletedProcesses(ctx, admin, 1, 20)
	require.NoError(t, err)
	assert.Zero(t, page.Total, "restored processes leave the deleted listing")
	for _, item := range page.Items {
		assert.NotEqual(t, p.ID, item.ID)
	}
}

func TestDeletionService_HardDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")
	env.publish(t, p.ID)
	start, err := env.editing.StartEditSession(ctx, p.ID, author, "")
	require.NoError(t, err)

	err = env.deletion.HardDelete(ctx, p.ID, author, "")
	assert.True(t, IsUnauthorized(err), "creators cannot purge")

	err = env.deletion.HardDelete(ctx, 999, admin, "")
	assert.True(t, IsNotFound(err))

	env.instances.running[p.ID] = true
	require.NoError(t, env.deletion.HardDelete(ctx, p.ID, admin, "GDPR request"), "running instances do not block a purge")

	gone, err := env.processes.GetByID(ctx, p.ID)
	require.NoError(t, err)
	assert.Nil(t, gone)

	session, err := env.sessions.GetBySessionID(ctx, start.SessionID)
	require.NoError(t, err)
	assert.Nil(t, session)

	versions, err := env.versions.CountByProcessID(ctx, p.ID)
	require.NoError(t, err)
	assert.Zero(t, versions)

	deletions, err := env.deletion.GetDeletionHistory(ctx, p.ID)
	require.NoError(t, err)
	require.Len(t, deletions, 1)
	assert.Equal(t, entity.ActionHardDelete, deletions[0].Action)
	details, err := deletions[0].DecodeDetails()
	require.NoError(t, err)
	hard := details.(entity.HardDeleteDetails)
	assert.Equal(t, "Onboarding", hard.Title)
	assert.Equal(t, 1, hard.VersionCount)

	approvals, err := env.approval.GetApprovalHistory(ctx, p.ID)
	require.NoError(t, err)
	assert.Len(t, approvals, 2, "the approval ledger outlives the process")

	assert.NotNil(t, env.publisher.last(event.TypeProcessHardDeleted))
}

func TestDeletionService_BulkDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createProcess(t, "A")
	b := env.createProcess(t, "B")

	_, err := env.deletion.BulkDelete(ctx, nil, author, "", false)
	assert.True(t, IsValidation(err))

	result, err := env.deletion.BulkDelete(ctx, []int64{a.ID, b.ID, 999}, author, "cleanup", false)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Requested)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0], "process 999")

	history, err := env.deletion.GetDeletionHistory(ctx, a.ID)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, entity.ActionBulkDelete, history[0].Action)
	details, err := history[0].DecodeDetails()
	require.NoError(t, err)
	bulk := details.(entity.BulkDeleteDetails)
	assert.Equal(t, []int64{a.ID, b.ID, 999}, bulk.ProcessIDs)
	assert.Equal(t, 2, bulk.Succeeded)
}

func TestDeletionService_BulkDeleteSummaryTarget(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	c := env.createProcess(t, "C")

	tests := []struct {
		name   string
		ids    []int64
		target int64
	}{
		{"first success after a failure", []int64{999, c.ID}, c.ID},
		{"no success falls back to the first id", []int64{998, 997}, 998},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.deletion.BulkDelete(ctx, tt.ids, author, "cleanup", false)
			require.NoError(t, err)

			history, err := env.deletion.GetDeletionHistory(ctx, tt.target)
			require.NoError(t, err)
			require.NotEmpty(t, history)
			assert.Equal(t, entity.ActionBulkDelete, history[0].Action)
			details, err := history[0].DecodeDetails()
			require.NoError(t, err)
			assert.Equal(t, tt.ids, details.(entity.BulkDeleteDetails).ProcessIDs)
		})
	}

	missing, err := env.deletion.GetDeletionHistory(ctx, 999)
	require.NoError(t, err)
	assert.Empty(t, missing, "failed ids carry no summary")
}

func TestDeletionService_GetDeletedProcesses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	for _, title := range []string{"One", "Two", "Three"} {
		p := env.createProcess(t, title)
		require.NoError(t, env.deletion.SoftDelete(ctx, p.ID, author, "", false))
	}

	tests := []struct {
		name       string
		userID     string
		page       int
		pageSize   int
		wantItems  int
		wantTotal  int
		wantPages  int
		canRestore bool
	}{
		{"creator sees own", author, 1, 0, 3, 3, 1, true},
		{"admin sees all, paged", admin, 2, 2, 1, 3, 2, true},
		{"stranger sees nothing", outsider, 1, 10, 0, 0, 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			page, err := env.deletion.GetDeletedProcesses(ctx, tt.userID, tt.page, tt.pageSize)
			require.NoError(t, err)
			assert.Len(t, page.Items, tt.wantItems)
			assert.Equal(t, tt.wantTotal, page.Total)
			assert.Equal(t, tt.wantPages, page.TotalPages)
			for _, item := range page.Items {
				assert.Equal(t, tt.canRestore, item.CanRestore)
			}
		})
	}

	page, err := env.deletion.GetDeletedProcesses(ctx, author, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, 100, page.PageSize)
}

func TestDeletionService_CanDelete(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	for user, want := range map[string]bool{author: true, admin: true, editor: false, outsider: false} {
		got, err := env.deletion.CanDelete(ctx, p.ID, user)
		require.NoError(t, err)
		assert.Equal(t, want, got, user)
	}
}
