package authz

import (
	"context"
	"fmt"

	"github.com/garyjia/process-portal/internal/domain/entity"
)

// StaticAuthorizer answers permission checks from a fixed role table
type StaticAuthorizer struct {
	roles map[string]map[entity.Permission]bool
	users map[string][]string
}

// NewStaticAuthorizer builds an authorizer from role -> permissions and user -> roles.
// Unknown permission names are rejected.
func NewStaticAuthorizer(rolePermissions map[string][]string, userRoles map[string][]string) (*StaticAuthorizer, error) {
	a := &StaticAuthorizer{
		roles: make(map[string]map[entity.Permission]bool, len(rolePermissions)),
		users: make(map[string][]string, len(userRoles)),
	}

	for role, perms := range rolePermissions {
		set := make(map[entity.Permission]bool, len(perms))
		for _, p := range perms {
			perm := entity.Permission(p)
			if !isKnown(perm) {
				return nil, fmt.Errorf("role %s: unknown permission %q", role, p)
			}
			set[perm] = true
		}
		a.roles[role] = set
	}

	for user, roles := range userRoles {
		for _, role := range roles {
			if _, ok := a.roles[role]; !ok {
				return nil, fmt.Errorf("user %s: unknown role %q", user, role)
			}
		}
		a.users[user] = append([]string(nil), roles...)
	}
	return a, nil
}

// HasPermission reports whether any role of userID grants permission
func (a *StaticAuthorizer) HasPermission(ctx context.Context, userID string, permission entity.Permission) (bool, error) {
	for _, role := range a.users[userID] {
		if a.roles[role][permission] {
			return true, nil
		}
	}
	return false, nil
}

// Roles returns the roles assigned to userID
func (a *StaticAuthorizer) Roles(userID string) []string {
	return append([]string(nil), a.users[userID]...)
}

func isKnown(p entity.Permission) bool {
	switch p {
	case entity.PermViewProcess, entity.PermCreateProcess, entity.PermEditProcess, entity.PermDeleteProcess,
		entity.PermApproveProcess, entity.PermManageUsers, entity.PermViewAuditLog:
		return true
	default:
		return false
	}
}
