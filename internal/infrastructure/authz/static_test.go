package authz

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/garyjia/process-portal/internal/domain/entity"
)

func TestStaticAuthorizer_HasPermission(t *testing.T) {
	a, err := NewStaticAuthorizer(
		map[string][]string{
			"author":   {"view_process", "create_process", "edit_process"},
			"approver": {"view_process", "approve_process"},
			"admin":    {"manage_users", "delete_process", "view_audit_log"},
		},
		map[string][]string{
			"alice": {"author"},
			"bob":   {"author", "approver"},
			"root":  {"admin"},
		},
	)
	require.NoError(t, err)

	tests := []struct {
		user string
		perm entity.Permission
		want bool
	}{
		{"alice", entity.PermCreateProcess, true},
		{"alice", entity.PermApproveProcess, false},
		{"bob", entity.PermApproveProcess, true},
		{"bob", entity.PermEditProcess, true},
		{"root", entity.PermManageUsers, true},
		{"root", entity.PermEditProcess, false},
		{"nobody", entity.PermViewProcess, false},
	}

	for _, tt := range tests {
		t.Run(tt.user+"/"+string(tt.perm), func(t *testing.T) {
			got, err := a.HasPermission(context.Background(), tt.user, tt.perm)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	assert.Equal(t, []string{"author", "approver"}, a.Roles("bob"))
}

func TestNewStaticAuthorizer_RejectsUnknownNames(t *testing.T) {
	_, err := NewStaticAuthorizer(map[string][]string{"x": {"fly"}}, nil)
	assert.Error(t, err)

	_, err = NewStaticAuthorizer(map[string][]string{"x": {"view_process"}}, map[string][]string{"u": {"ghost"}})
	assert.Error(t, err)
}
