package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/process-portal/internal/application/port"
	"github.com/garyjia/process-portal/internal/domain/entity"
)

func TestProcessService_CreateProcess(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		userID string
		input  CreateProcessInput
		check  func(error) bool
	}{
		{"no permission", editor, CreateProcessInput{Title: "X"}, IsUnauthorized},
		{"blank title", author, CreateProcessInput{Title: " \t "}, IsValidation},
		{"bad step type", author, CreateProcessInput{
			Title: "X",
			Steps: []entity.ProcessStep{{Title: "s", StepType: "Dance"}},
		}, IsValidation},
		{"dangling parent", author, CreateProcessInput{
			Title: "X",
			Steps: []entity.ProcessStep{{Title: "s", ParentIndex: func() *int { i := 5; return &i }()}},
		}, IsValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.process.CreateProcess(ctx, tt.userID, tt.input)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected error: %v", err)
		})
	}

	p, err := env.process.CreateProcess(ctx, author, CreateProcessInput{
		Title:    "  Onboarding\x00  ",
		Category: " HR ",
		OwnerID:  editor,
		Tags:     []string{"people", "", "people"},
		Steps:    []entity.ProcessStep{{Title: "Start"}, {Title: "Finish", StepType: entity.StepEnd}},
	})
	require.NoError(t, err)
	assert.NotZero(t, p.ID)
	assert.Equal(t, "Onboarding", p.Title)
	assert.Equal(t, "HR", p.Category)
	assert.Equal(t, entity.StatusDraft, p.Status)
	assert.Equal(t, []string{"people"}, p.TagNames())
	assert.Equal(t, entity.StepAction, p.Steps[0].StepType)
	assert.Equal(t, 1, p.Steps[1].OrderIndex)

	versions, err := env.process.GetVersions(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, versions, "drafts start unversioned")
}

func TestProcessService_GetProcessCountsViews(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.createProcess(t, "Onboarding")

	got, err := env.process.GetProcess(ctx, p.ID, editor)
	require.NoError(t, err)
	assert.EqualValues(t, 1, got.ViewCount)
	assert.NotNil(t, got.LastAccessedAt)

	got, err = env.process.GetProcess(ctx, p.ID, editor)
	require.NoError(t, err)
	assert.EqualValues(t, 2, got.ViewCount)

	_, err = env.process.GetProcess(ctx, 999, editor)
	assert.True(t, IsNotFound(err))
}

func TestProcessService_ListProcesses(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	a := env.createProcess(t, "A")
	env.createProcess(t, "B")
	c := env.createProcess(t, "C")
	env.publish(t, a.ID)
	require.NoError(t, env.deletion.SoftDelete(ctx, c.ID, author, "", false))

	all, err := env.process.ListProcesses(ctx, port.ProcessFilter{Limit: 1000})
	require.NoError(t, err)
	assert.Len(t, all, 2, "deleted processes are hidden")

	published, err := env.process.ListProcesses(ctx, port.ProcessFilter{Status: entity.StatusPublished})
	require.NoError(t, err)
	require.Len(t, published, 1)
	assert.Equal(t, a.ID, published[0].ID)

	none, err := env.process.ListProcesses(ctx, port.ProcessFilter{Category: "Finance"})
	require.NoError(t, err)
	assert.Empty(t, none)
}
