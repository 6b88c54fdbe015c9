package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/garyjia/process-portal/internal/application/service"
	"github.com/garyjia/process-portal/internal/config"
	"github.com/garyjia/process-portal/internal/container"
)

const (
	author   = "alice"
	approver = "bob"
	outsider = "mallory"
)

type testAPI struct {
	t      *testing.T
	router *gin.Engine
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()

	cfg, err := config.Load("")
	require.NoError(t, err)
	dir := t.TempDir()
	cfg.Database.Path = filepath.Join(dir, "portal.db")
	cfg.Export.Dir = filepath.Join(dir, "exports")
	cfg.Authz = config.AuthzConfig{
		Roles: map[string][]string{
			"author":   {"view_process", "create_process", "edit_process"},
			"approver": {"view_process", "approve_process", "view_audit_log"},
		},
		Users: map[string][]string{
			author:   {"author"},
			approver: {"approver"},
		},
	}

	c, err := container.NewContainer(cfg, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, c.Start(context.Background()))
	t.Cleanup(func() { _ = c.Close() })

	svc := c.Services()
	serverCfg := DefaultServerConfig()
	serverCfg.Mode = gin.TestMode
	server := NewServer(serverCfg, Services{
		Process:  svc.Process,
		Approval: svc.Approval,
		Editing:  svc.Editing,
		Deletion: svc.Deletion,
		Audit:    svc.Audit,
	}, func(ctx context.Context) (bool, interface{}) {
		status := c.Health(ctx)
		return status.Overall, status.Components
	}, container.NewLoggerAdapter(zap.NewNop()))

	return &testAPI{t: t, router: server.Router()}
}

func (a *testAPI) raw(method, path, user string, body interface{}) *httptest.ResponseRecorder {
	a.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(a.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set(UserHeader, user)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)
	return w
}

// do sends a request and decodes the envelope, putting data into out when set
func (a *testAPI) do(method, path, user string, body, out interface{}) (int, Response) {
	a.t.Helper()
	w := a.raw(method, path, user, body)

	var envelope struct {
		Response
		Data json.RawMessage `json:"data"`
	}
	if w.Body.Len() > 0 {
		require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &envelope), w.Body.String())
	}
	if out != nil && len(envelope.Data) > 0 {
		require.NoError(a.t, json.Unmarshal(envelope.Data, out))
	}
	return w.Code, envelope.Response
}

func (a *testAPI) createProcess(title string) int64 {
	a.t.Helper()
	var process struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	code, resp := a.do(http.MethodPost, "/api/v1/processes", author, gin.H{
		"title":    title,
		"category": "HR",
		"tags":     []string{"people"},
		"steps":    []gin.H{{"title": "Collect documents"}, {"title": "Sign contract"}},
	}, &process)
	require.Equal(a.t, http.StatusCreated, code, resp.Error)
	require.Equal(a.t, "Draft", process.Status)
	return process.ID
}

func TestHealth(t *testing.T) {
	api := newTestAPI(t)

	var health HealthResponse
	code, resp := api.do(http.MethodGet, "/health", "", nil, &health)
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, resp.Success)
	assert.Equal(t, "healthy", health.Status)
}

func TestRequiresUserHeader(t *testing.T) {
	api := newTestAPI(t)

	code, resp := api.do(http.MethodGet, "/api/v1/processes", "", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, resp.Success)
	assert.Equal(t, service.CodeUnauthorized, resp.Code)
}

func TestApprovalFlow(t *testing.T) {
	api := newTestAPI(t)
	processID := api.createProcess("Onboarding")

	var can struct {
		CanSubmit bool `json:"can_submit"`
	}
	code, _ := api.do(http.MethodGet, fmt.Sprintf("/api/v1/approval/can-submit/%d", processID), author, nil, &can)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, can.CanSubmit)

	var request struct {
		ID     int64  `json:"id"`
		Status string `json:"status"`
	}
	code, resp := api.do(http.MethodPost, fmt.Sprintf("/api/v1/approval/submit/%d", processID), author, gin.H{"comment": "ready"}, &request)
	require.Equal(t, http.StatusCreated, code, resp.Error)
	assert.Equal(t, "Pending", request.Status)

	code, resp = api.do(http.MethodPost, fmt.Sprintf("/api/v1/approval/submit/%d", processID), author, nil, nil)
	assert.Equal(t, http.StatusConflict, code, "second submit")
	assert.Equal(t, service.CodeInvalidState, resp.Code)

	code, resp = api.do(http.MethodPost, fmt.Sprintf("/api/v1/approval/comment/%d", request.ID), approver,
		gin.H{"comment": "Which template?", "comment_type": "Question"}, nil)
	assert.Equal(t, http.StatusCreated, code, resp.Error)

	code, _ = api.do(http.MethodPost, fmt.Sprintf("/api/v1/approval/review/%d", request.ID), approver, nil, &request)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "InProgress", request.Status)

	code, resp = api.do(http.MethodPost, fmt.Sprintf("/api/v1/approval/approve/%d", request.ID), author, nil, nil)
	assert.Equal(t, http.StatusForbidden, code, "author cannot approve")
	assert.Equal(t, service.CodeUnauthorized, resp.Code)

	code, _ = api.do(http.MethodPost, fmt.Sprintf("/api/v1/approval/approve/%d", request.ID), approver, gin.H{"comment": "ship it"}, &request)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Approved", request.Status)

	var process struct {
		Status string `json:"status"`
	}
	code, _ = api.do(http.MethodGet, fmt.Sprintf("/api/v1/processes/%d", processID), author, nil, &process)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Published", process.Status)

	var versions []struct {
		VersionNumber string `json:"version_number"`
		IsPublished   bool   `json:"is_published"`
	}
	code, _ = api.do(http.MethodGet, fmt.Sprintf("/api/v1/processes/%d/versions", processID), author, nil, &versions)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, versions, 1)
	assert.True(t, versions[0].IsPublished)

	var history []json.RawMessage
	code, _ = api.do(http.MethodGet, fmt.Sprintf("/api/v1/approval/process/%d/history", processID), author, nil, &history)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, history, 3)

	var comments []json.RawMessage
	code, _ = api.do(http.MethodGet, fmt.Sprintf("/api/v1/approval/request/%d/comments", request.ID), author, nil, &comments)
	require.Equal(t, http.StatusOK, code)
	assert.NotEmpty(t, comments)

	var queue service.ApprovalQueue
	code, _ = api.do(http.MethodGet, "/api/v1/approval/queue", approver, nil, &queue)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, queue.RecentlyCompleted, 1)
}

func TestErrorMapping(t *testing.T) {
	api := newTestAPI(t)
	processID := api.createProcess("Offboarding")

	var request struct {
		ID int64 `json:"id"`
	}
	code, _ := api.do(http.MethodPost, fmt.Sprintf("/api/v1/approval/submit/%d", processID), author, nil, &request)
	require.Equal(t, http.StatusCreated, code)

	tests := []struct {
		name   string
		method string
		path   string
		user   string
		body   interface{}
		status int
		code   string
	}{
		{"unknown process", http.MethodGet, "/api/v1/processes/9999", author, nil, http.StatusNotFound, service.CodeNotFound},
		{"malformed id", http.MethodGet, "/api/v1/processes/abc", author, nil, http.StatusBadRequest, service.CodeValidation},
		{"missing title", http.MethodPost, "/api/v1/processes", author, gin.H{"category": "HR"}, http.StatusBadRequest, service.CodeValidation},
		{"malformed body", http.MethodPost, "/api/v1/processes", author, "{", http.StatusBadRequest, service.CodeValidation},
		{"create without permission", http.MethodPost, "/api/v1/processes", outsider, gin.H{"title": "x"}, http.StatusForbidden, service.CodeUnauthorized},
		{"reject without reason", http.MethodPost, fmt.Sprintf("/api/v1/approval/reject/%d", request.ID), approver, nil, http.StatusBadRequest, service.CodeValidation},
		{"bad comment type", http.MethodPost, fmt.Sprintf("/api/v1/approval/comment/%d", request.ID), approver, gin.H{"comment": "hi", "comment_type": "Rant"}, http.StatusBadRequest, service.CodeValidation},
		{"bad status filter", http.MethodGet, "/api/v1/processes?status=Lost", author, nil, http.StatusBadRequest, service.CodeValidation},
		{"unknown request", http.MethodGet, "/api/v1/approval/request/4242", author, nil, http.StatusNotFound, service.CodeNotFound},
		{"bad resolution", http.MethodPost, "/api/v1/editing/conflicts/1/resolve", author, gin.H{"resolution": "Coinflip"}, http.StatusBadRequest, service.CodeValidation},
		{"empty bulk delete", http.MethodPost, "/api/v1/deletion/bulk-delete", author, gin.H{"process_ids": []int64{}}, http.StatusBadRequest, service.CodeValidation},
		{"audit without permission", http.MethodGet, "/api/v1/audit/exports", author, nil, http.StatusForbidden, service.CodeUnauthorized},
		{"bad audit date", http.MethodGet, "/api/v1/audit/export?since=yesterday", approver, nil, http.StatusBadRequest, service.CodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, resp := api.do(tt.method, tt.path, tt.user, tt.body, nil)
			assert.Equal(t, tt.status, code, resp.Error)
			assert.Equal(t, tt.code, resp.Code)
			assert.False(t, resp.Success)
			assert.NotEmpty(t, resp.Error)
		})
	}
}

func TestEditingFlow(t *testing.T) {
	api := newTestAPI(t)
	processID := api.createProcess("Expense policy")

	var started service.StartEditResult
	code, resp := api.do(http.MethodPost, fmt.Sprintf("/api/v1/editing/start/%d", processID), author, gin.H{"comment": "typo pass"}, &started)
	require.Equal(t, http.StatusOK, code, resp.Error)
	require.NotEmpty(t, started.SessionID)
	session := started.SessionID

	var lockStatus struct {
		Locked bool `json:"locked"`
	}
	code, resp = api.do(http.MethodPost, "/api/v1/editing/lock/"+session, author, nil, nil)
	require.Equal(t, http.StatusCreated, code, resp.Error)
	code, _ = api.do(http.MethodGet, fmt.Sprintf("/api/v1/editing/lock/process/%d", processID), author, nil, &lockStatus)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, lockStatus.Locked)
	code, _ = api.do(http.MethodPut, "/api/v1/editing/lock/"+session, author, nil, nil)
	assert.Equal(t, http.StatusOK, code)

	var draft struct {
		Title string `json:"title"`
	}
	code, resp = api.do(http.MethodPost, "/api/v1/editing/draft/"+session, author, gin.H{"title": "Expense policy v2"}, &draft)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "Expense policy v2", draft.Title)

	code, _ = api.do(http.MethodGet, "/api/v1/editing/draft/"+session, author, nil, &draft)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Expense policy v2", draft.Title)

	var saves []json.RawMessage
	code, _ = api.do(http.MethodGet, "/api/v1/editing/autosaves/"+session, author, nil, &saves)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, saves, 1)

	var sessions []json.RawMessage
	code, _ = api.do(http.MethodGet, fmt.Sprintf("/api/v1/editing/sessions/%d", processID), author, nil, &sessions)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, sessions, 1)

	var result struct {
		Process struct {
			Title string `json:"title"`
		} `json:"process"`
	}
	code, resp = api.do(http.MethodPost, "/api/v1/editing/complete/"+session, author, gin.H{"version_change_type": "minor"}, &result)
	require.Equal(t, http.StatusOK, code, resp.Error)
	assert.Equal(t, "Expense policy v2", result.Process.Title)

	code, _ = api.do(http.MethodGet, fmt.Sprintf("/api/v1/editing/lock/process/%d", processID), author, nil, &lockStatus)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, lockStatus.Locked, "completing the session releases its lock")

	code, _ = api.do(http.MethodPost, "/api/v1/editing/complete/"+session, author, nil, nil)
	assert.Equal(t, http.StatusNotFound, code, "session already completed")

	w := api.raw(http.MethodDelete, "/api/v1/editing/lock/unknown-session", author, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDeletionFlow(t *testing.T) {
	api := newTestAPI(t)
	first := api.createProcess("Travel")
	second := api.createProcess("Security")

	var can struct {
		CanDelete bool `json:"can_delete"`
	}
	code, _ := api.do(http.MethodGet, fmt.Sprintf("/api/v1/deletion/%d/can-delete", first), outsider, nil, &can)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, can.CanDelete)

	code, resp := api.do(http.MethodPost, fmt.Sprintf("/api/v1/deletion/%d/soft-delete", first), author, gin.H{"reason": "obsolete"}, nil)
	require.Equal(t, http.StatusOK, code, resp.Error)

	var result service.BulkDeleteResult
	code, _ = api.do(http.MethodPost, "/api/v1/deletion/bulk-delete", author, gin.H{"process_ids": []int64{first, second}, "reason": "cleanup"}, &result)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, result.Requested)
	assert.Equal(t, 1, result.Succeeded)
	assert.Equal(t, 1, result.Failed)

	var page service.DeletedProcessPage
	code, _ = api.do(http.MethodGet, "/api/v1/deletion/deleted?page=1&page_size=10", author, nil, &page)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 2, page.Total)

	code, resp = api.do(http.MethodPost, fmt.Sprintf("/api/v1/deletion/%d/restore", first), author, gin.H{"reason": "still needed"}, nil)
	require.Equal(t, http.StatusOK, code, resp.Error)

	var history []json.RawMessage
	code, _ = api.do(http.MethodGet, fmt.Sprintf("/api/v1/deletion/%d/history", first), author, nil, &history)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, history, 2, "soft delete, restore")

	code, _ = api.do(http.MethodGet, fmt.Sprintf("/api/v1/deletion/%d/history", second), author, nil, &history)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, history, 2, "bulk summary lands on the deleted process")

	var active struct {
		HasActiveInstances bool `json:"has_active_instances"`
	}
	code, _ = api.do(http.MethodGet, fmt.Sprintf("/api/v1/deletion/%d/has-active-instances", first), author, nil, &active)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, active.HasActiveInstances)

	code, resp = api.do(http.MethodPost, fmt.Sprintf("/api/v1/deletion/%d/hard-delete", second), author, gin.H{"reason": "purge"}, nil)
	assert.Equal(t, http.StatusForbidden, code, "hard delete needs manage_users")
	assert.Equal(t, service.CodeUnauthorized, resp.Code)
}

func TestAuditExports(t *testing.T) {
	api := newTestAPI(t)
	processID := api.createProcess("Procurement")
	code, _ := api.do(http.MethodPost, fmt.Sprintf("/api/v1/approval/submit/%d", processID), author, nil, nil)
	require.Equal(t, http.StatusCreated, code)

	w := api.raw(http.MethodGet, fmt.Sprintf("/api/v1/audit/export?process=%d&since=2020-01-01", processID), approver, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, xlsxContentType, w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Equal(t, []byte("PK"), w.Body.Bytes()[:2], "xlsx is a zip archive")

	w = api.raw(http.MethodGet, "/api/v1/audit/export", author, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")

	var saved struct {
		Name string `json:"name"`
	}
	code, resp := api.do(http.MethodPost, "/api/v1/audit/exports", approver, gin.H{"name": "q3.xlsx", "process_id": processID}, &saved)
	require.Equal(t, http.StatusCreated, code, resp.Error)
	assert.Equal(t, "q3.xlsx", saved.Name)

	code, resp = api.do(http.MethodPost, "/api/v1/audit/exports", approver, gin.H{"name": "q3.csv"}, nil)
	assert.Equal(t, http.StatusBadRequest, code, resp.Error)

	var files []struct {
		Name string `json:"name"`
	}
	code, _ = api.do(http.MethodGet, "/api/v1/audit/exports", approver, nil, &files)
	require.Equal(t, http.StatusOK, code)
	require.Len(t, files, 1)
	assert.Equal(t, "q3.xlsx", files[0].Name)

	w = api.raw(http.MethodGet, "/api/v1/audit/exports/q3.xlsx", approver, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte("PK"), w.Body.Bytes()[:2])
	assert.NotEmpty(t, w.Header().Get("Content-Length"))

	w = api.raw(http.MethodGet, "/api/v1/audit/exports/missing.xlsx", approver, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{service.ErrNotFound, http.StatusNotFound},
		{service.ErrUnauthorized, http.StatusForbidden},
		{service.ErrInvalidState, http.StatusConflict},
		{service.ErrConflict, http.StatusConflict},
		{service.ErrValidation, http.StatusBadRequest},
		{fmt.Errorf("wrapped: %w", service.ErrNotFound), http.StatusNotFound},
		{assert.AnError, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, statusFor(tt.err), tt.err.Error())
	}
}

func TestParseAuditTime(t *testing.T) {
	ts, err := ParseAuditTime("2024-03-01")
	require.NoError(t, err)
	assert.Equal(t, 2024, ts.Year())

	ts, err = ParseAuditTime("2024-03-01T10:00:00+02:00")
	require.NoError(t, err)
	assert.Equal(t, 8, ts.Hour())

	ts, err = ParseAuditTime("")
	require.NoError(t, err)
	assert.True(t, ts.IsZero())

	_, err = ParseAuditTime("March")
	assert.Error(t, err)
}
