package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"telegram-clicker/internal/config"
	"telegram-clicker/internal/model"
	"telegram-clicker/internal/repository"
	"telegram-clicker/internal/service"
)

type fakeVerifier map[string]*model.Identity

func (v fakeVerifier) Verify(initData string) (*model.Identity, error) {
	identity, ok := v[initData]
	if !ok {
		return nil, errors.New("bad signature")
	}
	return identity, nil
}

type testServer struct {
	app   *fiber.App
	store *repository.MemoryStore
	clock *clockwork.FakeClock
}

func newTestServer(t *testing.T, mutate func(cfg *config.Config)) *testServer {
	t.Helper()

	cfg := &config.Config{
		Server: config.ServerConfig{AllowedOrigins: []string{"*"}},
		Tasks:  config.TasksConfig{WaitTimeMs: 30000},
		Admin:  config.AdminConfig{Enabled: true, ExportPageSize: 100},
	}
	if mutate != nil {
		mutate(cfg)
	}

	store := repository.NewMemoryStore()
	clock := clockwork.NewFakeClockAt(time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC))
	verifier := fakeVerifier{"alice": {ID: "1001", Username: "alice"}}

	accounts := service.NewAccountService(store, verifier)
	app := NewApp(&Dependencies{
		Config:         cfg,
		Store:          store,
		AccountService: accounts,
		TaskService:    service.NewTaskService(store, accounts, clock),
		ClaimService:   service.NewClaimService(store, verifier, clock, cfg.Tasks.WaitDuration()),
		AdminService:   service.NewAdminService(store, cfg.Admin.ExportPageSize),
	})

	return &testServer{app: app, store: store, clock: clock}
}

func (s *testServer) do(t *testing.T, method, target string, body any) (int, map[string]any) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var out map[string]any
	if len(raw) > 0 && raw[0] == '{' {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *testServer) createVisitTask(t *testing.T, points int64) string {
	t.Helper()
	status, body := s.do(t, http.MethodPost, "http://localhost:3000/api/admin/tasks", map[string]any{
		"title":    "Visit our site",
		"points":   points,
		"type":     "VISIT",
		"category": "Social",
		"taskData": map[string]any{"link": "https://example.com"},
		"isActive": true,
	})
	require.Equal(t, http.StatusOK, status, body)
	return body["id"].(string)
}

func TestVisitClaimFlow(t *testing.T) {
	s := newTestServer(t, nil)
	taskID := s.createVisitTask(t, 150)

	status, body := s.do(t, http.MethodPost, "/api/user", map[string]any{"initData": "alice"})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["created"])

	status, _ = s.do(t, http.MethodPost, "/api/tasks/start", map[string]any{"initData": "alice", "taskId": taskID})
	require.Equal(t, http.StatusOK, status)

	s.clock.Advance(10 * time.Second)
	status, body = s.do(t, http.MethodPost, "/api/tasks/check/visit", map[string]any{"initData": "alice", "taskId": taskID})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, float64(20), body["remainingTime"])
	assert.NotContains(t, body, "isCompleted")

	s.clock.Advance(20 * time.Second)
	status, body = s.do(t, http.MethodPost, "/api/tasks/check/visit", map[string]any{"initData": "alice", "taskId": taskID})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["isCompleted"])
	assert.Equal(t, "Task completed successfully", body["message"])

	status, body = s.do(t, http.MethodPost, "/api/tasks/check/visit", map[string]any{"initData": "alice", "taskId": taskID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, CodeTaskAlreadyCompleted, body["code"])
	assert.Equal(t, false, body["success"])

	status, body = s.do(t, http.MethodPost, "/api/user", map[string]any{"initData": "alice"})
	require.Equal(t, http.StatusOK, status)
	user := body["user"].(map[string]any)
	assert.Equal(t, float64(150), user["points"])
	assert.Equal(t, float64(150), user["pointsBalance"])

	status, body = s.do(t, http.MethodPost, "/api/tasks", map[string]any{"initData": "alice"})
	require.Equal(t, http.StatusOK, status)
	tasks := body["tasks"].([]any)
	require.Len(t, tasks, 1)
	assert.Equal(t, true, tasks[0].(map[string]any)["isCompleted"])

	status, body = s.do(t, http.MethodPost, "/api/user/transactions", map[string]any{"initData": "alice"})
	require.Equal(t, http.StatusOK, status)
	transactions := body["transactions"].([]any)
	require.Len(t, transactions, 1)
	assert.Equal(t, taskID, transactions[0].(map[string]any)["reference"])
}

func TestCheckVisitErrors(t *testing.T) {
	s := newTestServer(t, nil)
	taskID := s.createVisitTask(t, 10)

	tests := []struct {
		name       string
		body       map[string]any
		wantStatus int
		wantCode   string
	}{
		{"missing task id", map[string]any{"initData": "alice"}, http.StatusBadRequest, CodeInvalidRequest},
		{"forged init data", map[string]any{"initData": "mallory", "taskId": taskID}, http.StatusForbidden, CodeUnauthorized},
		{"unregistered user", map[string]any{"initData": "alice", "taskId": taskID}, http.StatusNotFound, CodeUserNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.do(t, http.MethodPost, "/api/tasks/check/visit", tt.body)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, body["code"])
			assert.Equal(t, false, body["success"])
		})
	}

	s.do(t, http.MethodPost, "/api/user", map[string]any{"initData": "alice"})

	status, body := s.do(t, http.MethodPost, "/api/tasks/check/visit", map[string]any{"initData": "alice", "taskId": "nope"})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, CodeTaskNotFound, body["code"])

	status, body = s.do(t, http.MethodPost, "/api/tasks/check/visit", map[string]any{"initData": "alice", "taskId": taskID})
	assert.Equal(t, http.StatusConflict, status)
	assert.Equal(t, CodeTaskNotStarted, body["code"])
}

func TestInvalidBody(t *testing.T) {
	s := newTestServer(t, nil)

	req := httptest.NewRequest(http.MethodPost, "/api/tasks/check/visit", bytes.NewBufferString("{not json"))
	req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	resp, err := s.app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestUnroutedRequests(t *testing.T) {
	s := newTestServer(t, nil)

	status, body := s.do(t, http.MethodPost, "/api/does-not-exist", map[string]any{})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, CodeNotFound, body["code"])
	assert.Equal(t, false, body["success"])

	status, body = s.do(t, http.MethodGet, "/api/tasks/check/visit", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, status)
	assert.Equal(t, CodeMethodNotAllowed, body["code"])
}

func TestErrorStatus(t *testing.T) {
	tests := []struct {
		err        error
		wantStatus int
		wantCode   string
	}{
		{service.ErrInvalidRequest, http.StatusBadRequest, CodeInvalidRequest},
		{fmt.Errorf("%w: bad hash", service.ErrUnauthorized), http.StatusForbidden, CodeUnauthorized},
		{service.ErrUserNotFound, http.StatusNotFound, CodeUserNotFound},
		{service.ErrTaskNotFound, http.StatusNotFound, CodeTaskNotFound},
		{service.ErrTaskInactive, http.StatusConflict, CodeTaskInactive},
		{service.ErrUnsupportedTaskType, http.StatusUnprocessableEntity, CodeUnsupportedTaskType},
		{service.ErrWaitNotConfigured, http.StatusInternalServerError, CodeConfigurationError},
		{service.ErrTaskNotStarted, http.StatusConflict, CodeTaskNotStarted},
		{service.ErrTaskAlreadyCompleted, http.StatusConflict, CodeTaskAlreadyCompleted},
		{&service.ClaimFailedError{Cause: repository.ErrSerializationConflict}, http.StatusConflict, CodeClaimConflict},
		{&service.ClaimFailedError{Cause: errors.New("connection reset")}, http.StatusInternalServerError, CodeClaimFailed},
		{errors.New("boom"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.wantCode, func(t *testing.T) {
			status, code, message := errorStatus(tt.err)
			assert.Equal(t, tt.wantStatus, status)
			assert.Equal(t, tt.wantCode, code)
			assert.NotEmpty(t, message)
		})
	}
}

func TestAdminAccess(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		s := newTestServer(t, func(cfg *config.Config) { cfg.Admin.Enabled = false })
		status, body := s.do(t, http.MethodGet, "http://localhost:3000/api/admin/tasks", nil)
		assert.Equal(t, http.StatusForbidden, status)
		assert.Equal(t, CodeUnauthorized, body["code"])
	})

	t.Run("remote host", func(t *testing.T) {
		s := newTestServer(t, nil)
		status, _ := s.do(t, http.MethodGet, "http://clicker.example.com/api/admin/tasks", nil)
		assert.Equal(t, http.StatusForbidden, status)
	})

	t.Run("localhost", func(t *testing.T) {
		s := newTestServer(t, nil)
		s.createVisitTask(t, 10)

		req := httptest.NewRequest(http.MethodGet, "http://localhost:3000/api/admin/tasks", nil)
		resp, err := s.app.Test(req, -1)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)

		var tasks []model.Task
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&tasks))
		assert.Len(t, tasks, 1)
	})
}

func TestAdminUpdateIgnoresBodyID(t *testing.T) {
	s := newTestServer(t, nil)
	taskID := s.createVisitTask(t, 10)

	status, body := s.do(t, http.MethodPut, "http://localhost:3000/api/admin/tasks/"+taskID, map[string]any{
		"id":       "hijacked",
		"points":   99,
		"isActive": false,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, taskID, body["id"])
	assert.Equal(t, float64(99), body["points"])
	assert.Equal(t, false, body["isActive"])
	assert.Equal(t, "Visit our site", body["title"])

	_, err := s.store.GetTask(context.Background(), "hijacked")
	assert.ErrorIs(t, err, repository.ErrTaskNotFound)

	status, body = s.do(t, http.MethodPut, "http://localhost:3000/api/admin/tasks/missing", map[string]any{"points": 1})
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, CodeTaskNotFound, body["code"])
}

func TestAdminExport(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) { cfg.Admin.ExportPageSize = 1 })
	s.do(t, http.MethodPost, "/api/user", map[string]any{"initData": "alice"})

	status, body := s.do(t, http.MethodPost, "http://localhost:3000/api/admin/export", map[string]any{
		"fields": []string{"telegramId", "points"},
		"page":   0,
	})
	require.Equal(t, http.StatusOK, status, body)
	assert.Equal(t, float64(1), body["totalPages"])
	assert.Equal(t, false, body["hasMore"])
	users := body["users"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "1001", users[0].(map[string]any)["telegramId"])

	status, body = s.do(t, http.MethodPost, "http://localhost:3000/api/admin/export", map[string]any{
		"fields": []string{"secret"},
	})
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, CodeInvalidRequest, body["code"])
}

type downStore struct{}

func (downStore) Ping(context.Context) error { return errors.New("connection refused") }

func TestHealth(t *testing.T) {
	s := newTestServer(t, nil)
	status, body := s.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, "healthy", body["status"])

	app := fiber.New()
	app.Get("/healthz", healthHandler(downStore{}))
	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/healthz", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}

func TestRateLimit(t *testing.T) {
	s := newTestServer(t, func(cfg *config.Config) {
		cfg.RateLimit = config.RateLimitConfig{Max: 2, Window: time.Minute}
	})

	for i := 0; i < 2; i++ {
		status, _ := s.do(t, http.MethodPost, "/api/user", map[string]any{"initData": "alice"})
		require.Equal(t, http.StatusOK, status)
	}

	status, body := s.do(t, http.MethodPost, "/api/user", map[string]any{"initData": "alice"})
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, CodeRateLimited, body["code"])
}
