package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "portal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "0.0.0.0:8080", cfg.Server.Addr())
	assert.Equal(t, "data/portal.db", cfg.Database.Path)
	assert.Empty(t, cfg.Database.MigrationsDir)
	assert.Equal(t, 30*time.Minute, cfg.Editing.SessionTimeout)
	assert.Equal(t, 15*time.Minute, cfg.Editing.LockTTL)
	assert.Equal(t, 30*time.Second, cfg.Editing.AutoSaveInterval)
	assert.Equal(t, 5, cfg.Editing.MaxConcurrentSessions)
	assert.False(t, cfg.Editing.EnforceLocks)
	assert.Equal(t, 7*24*time.Hour, cfg.Approval.RecentWindow)
	assert.Equal(t, 10, cfg.Approval.RecentLimit)
	assert.Equal(t, 20, cfg.Deletion.DefaultPageSize)
	assert.Equal(t, 100, cfg.Deletion.MaxPageSize)
	assert.False(t, cfg.Lark.Enabled)
	assert.False(t, cfg.Redis.Enabled)
	assert.Equal(t, "process-portal", cfg.Tracing.ServiceName)
}

func TestLoad_EmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Server.Port)
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := writeConfig(t, `
server:
  port: 9090
editing:
  lock_ttl: 5m
  enforce_locks: true
authz:
  roles:
    approver: [view_process, approve_process]
  users:
    bob: [approver]
notification:
  approvers: [bob]
lark:
  enabled: true
  app_id: cli_file
  app_secret: from-file
`)
	t.Setenv("PORTAL_SERVER_PORT", "7070")
	t.Setenv("LARK_APP_SECRET", "from-env")

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 7070, cfg.Server.Port, "environment wins over the file")
	assert.Equal(t, 5*time.Minute, cfg.Editing.LockTTL)
	assert.True(t, cfg.Editing.EnforceLocks)
	assert.Equal(t, []string{"view_process", "approve_process"}, cfg.Authz.Roles["approver"])
	assert.Equal(t, []string{"approver"}, cfg.Authz.Users["bob"])
	assert.Equal(t, []string{"bob"}, cfg.Notification.Approvers)
	assert.Equal(t, "cli_file", cfg.Lark.AppID)
	assert.Equal(t, "from-env", cfg.Lark.AppSecret)
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"lark without credentials", "lark:\n  enabled: true\n"},
		{"redis without url", "redis:\n  enabled: true\n"},
		{"bad port", "server:\n  port: 70000\n"},
		{"page sizes inverted", "deletion:\n  default_page_size: 500\n"},
		{"sample ratio", "tracing:\n  sample_ratio: 2\n"},
		{"malformed yaml", "server: [\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
