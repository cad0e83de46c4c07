package application

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/service"
	"github.com/psds-microservice/task-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string            `json:"code"`
		Message string            `json:"message"`
		Details map[string]string `json:"details"`
	} `json:"error"`
}

type api struct {
	t      *testing.T
	h      http.Handler
	fx     *testutil.Fixtures
	admin  *model.User
	staff  *model.User
	client *model.User
}

func newAPI(t *testing.T) *api {
	gin.SetMode(gin.TestMode)
	db := testutil.NewDB(t)
	h, err := NewHandler(Deps{DB: db, Prefix: "GLG", Location: time.UTC, Quiet: true})
	require.NoError(t, err)
	fx := testutil.NewFixtures(t, db)
	return &api{
		t:      t,
		h:      h,
		fx:     fx,
		admin:  fx.User("admin", model.RoleAdmin),
		staff:  fx.User("staff", model.RoleStaff),
		client: fx.User("client", model.RoleClient),
	}
}

func (a *api) raw(method, path string, as *model.User, body string) *httptest.ResponseRecorder {
	a.t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if as != nil {
		req.Header.Set("X-User-ID", strconv.FormatUint(as.ID, 10))
	}
	w := httptest.NewRecorder()
	a.h.ServeHTTP(w, req)
	return w
}

func (a *api) do(method, path string, as *model.User, body any) (int, envelope) {
	a.t.Helper()
	var s string
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(a.t, err)
		s = string(b)
	}
	w := a.raw(method, path, as, s)
	var env envelope
	require.NoError(a.t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w.Code, env
}

func TestHealthAndReady(t *testing.T) {
	a := newAPI(t)
	assert.Equal(t, http.StatusOK, a.raw(http.MethodGet, "/health", nil, "").Code)
	w := a.raw(http.MethodGet, "/ready", nil, "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "ready")
}

func TestOpenAPIDocument(t *testing.T) {
	a := newAPI(t)
	w := a.raw(http.MethodGet, "/swagger/openapi.json", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &doc))
	assert.Contains(t, doc, "paths")
}

func TestAuthentication(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(http.MethodGet, "/api/v1/tasks", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.False(t, env.Success)
	require.NotNil(t, env.Error)
	assert.Equal(t, "unauthenticated", env.Error.Code)

	ghost := &model.User{ID: 9999}
	code, _ = a.do(http.MethodGet, "/api/v1/tasks", ghost, nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	code, env = a.do(http.MethodGet, "/api/v1/auth/me", a.staff, nil)
	assert.Equal(t, http.StatusOK, code)
	var me model.User
	require.NoError(t, json.Unmarshal(env.Data, &me))
	assert.Equal(t, a.staff.ID, me.ID)
}

func TestRequestIDIsEchoed(t *testing.T) {
	a := newAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("X-Request-ID", "abc-123")
	w := httptest.NewRecorder()
	a.h.ServeHTTP(w, req)
	assert.Equal(t, "abc-123", w.Header().Get("X-Request-ID"))

	w = a.raw(http.MethodGet, "/health", nil, "")
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))
}

func TestLogin(t *testing.T) {
	a := newAPI(t)
	// Fixture users carry a placeholder hash, so go through the service.
	code, _ := a.do(http.MethodPost, "/api/v1/users", a.admin, map[string]any{
		"name": "Lee", "email": "lee@example.com", "password": "long-enough", "role": "staff",
	})
	require.Equal(t, http.StatusCreated, code)

	code, env := a.do(http.MethodPost, "/api/v1/auth/login", nil, map[string]string{"email": "lee@example.com", "password": "long-enough"})
	assert.Equal(t, http.StatusOK, code)
	assert.True(t, env.Success)

	code, env = a.do(http.MethodPost, "/api/v1/auth/login", nil, map[string]string{"email": "lee@example.com", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, code)
	assert.Equal(t, "unauthenticated", env.Error.Code)
}

func TestTaskValidationErrors(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(http.MethodPost, "/api/v1/tasks", a.staff, map[string]any{"title": "", "priority": "asap"})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "validation_error", env.Error.Code)
	assert.Contains(t, env.Error.Details, "title")
	assert.Contains(t, env.Error.Details, "priority")

	w := a.raw(http.MethodPost, "/api/v1/tasks", a.staff, "{not json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "bad_request")

	code, _ = a.do(http.MethodGet, "/api/v1/tasks/abc", a.staff, nil)
	assert.Equal(t, http.StatusBadRequest, code)
	code, _ = a.do(http.MethodGet, "/api/v1/tasks/12345", a.staff, nil)
	assert.Equal(t, http.StatusNotFound, code)
	code, _ = a.do(http.MethodGet, "/api/v1/tasks?grouped=priority", a.staff, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = a.do(http.MethodGet, "/api/v1/tasks?status=waiting", a.staff, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = a.do(http.MethodPost, "/api/v1/tasks", a.client, map[string]any{"title": "x"})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestTaskBoardFlow(t *testing.T) {
	a := newAPI(t)

	code, env := a.do(http.MethodPost, "/api/v1/categories", a.staff, map[string]string{"name": "Dev", "color": "#3B82F6"})
	require.Equal(t, http.StatusCreated, code)
	var dev model.Category
	require.NoError(t, json.Unmarshal(env.Data, &dev))

	code, env = a.do(http.MethodPost, "/api/v1/tasks", a.staff, map[string]any{
		"title": "Fix bug", "category_id": dev.ID, "assignee_id": a.staff.ID, "status": "todo", "due_date": "2025-05-01",
	})
	require.Equal(t, http.StatusCreated, code)
	var created model.TaskView
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.True(t, strings.HasPrefix(created.TicketID, "GLG"))
	assert.Equal(t, "Dev", *created.CategoryName)

	code, env = a.do(http.MethodGet, "/api/v1/tasks?grouped=category&assignee_id="+strconv.FormatUint(a.staff.ID, 10), a.staff, nil)
	require.Equal(t, http.StatusOK, code)
	var board struct {
		Mode   string `json:"mode"`
		Groups []struct {
			Key            uint64           `json:"key"`
			Tasks          []model.TaskView `json:"tasks"`
			CompletedTasks []model.TaskView `json:"completed_tasks"`
		} `json:"groups"`
		ByKey map[string]int `json:"by_key"`
	}
	require.NoError(t, json.Unmarshal(env.Data, &board))
	assert.Equal(t, "category", board.Mode)
	require.Len(t, board.Groups, 2)
	assert.Equal(t, map[string]int{"0": 0, strconv.FormatUint(dev.ID, 10): 1}, board.ByKey)
	assert.Equal(t, uint64(0), board.Groups[0].Key)
	assert.Equal(t, dev.ID, board.Groups[1].Key)
	require.Len(t, board.Groups[1].Tasks, 1)
	assert.Equal(t, created.ID, board.Groups[1].Tasks[0].ID)

	path := "/api/v1/tasks/" + strconv.FormatUint(created.ID, 10)
	code, env = a.do(http.MethodPut, path+"/complete", a.staff, nil)
	require.Equal(t, http.StatusOK, code)
	var toggled model.TaskView
	require.NoError(t, json.Unmarshal(env.Data, &toggled))
	assert.Equal(t, model.TaskStatusDone, toggled.Status)
	assert.NotNil(t, toggled.CompletedAt)

	code, _ = a.do(http.MethodPut, path, a.staff, map[string]any{"category_id": nil, "priority": "high"})
	require.Equal(t, http.StatusOK, code)

	code, env = a.do(http.MethodPut, "/api/v1/tasks/reorder", a.staff, map[string]any{
		"tasks": []map[string]any{{"id": created.ID, "sort_order": 0, "category_id": dev.ID}},
	})
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"updated":1}`, string(env.Data))

	code, env = a.do(http.MethodGet, "/api/v1/tasks/stats", a.staff, nil)
	require.Equal(t, http.StatusOK, code)
	var stats map[string]any
	require.NoError(t, json.Unmarshal(env.Data, &stats))
	assert.EqualValues(t, 1, stats["total"])

	code, env = a.do(http.MethodGet, "/api/v1/tasks/calendar?start=2025-05-01&end=2025-05-31", a.staff, nil)
	require.Equal(t, http.StatusOK, code)
	var cal []model.TaskView
	require.NoError(t, json.Unmarshal(env.Data, &cal))
	assert.Len(t, cal, 1)

	code, _ = a.do(http.MethodPost, path+"/comments", a.staff, map[string]string{"content": "looks good"})
	require.Equal(t, http.StatusCreated, code)

	code, _ = a.do(http.MethodDelete, path, a.staff, nil)
	require.Equal(t, http.StatusOK, code)
	code, _ = a.do(http.MethodGet, path, a.staff, nil)
	assert.Equal(t, http.StatusNotFound, code)
}

func TestCategoryReorderEndpoint(t *testing.T) {
	a := newAPI(t)
	x := a.fx.Category("X", "#111111")
	y := a.fx.Category("Y", "#222222")

	body := map[string]any{"categories": []map[string]any{{"id": y.ID, "sort_order": 0}, {"id": x.ID, "sort_order": 1}}}
	code, _ := a.do(http.MethodPut, "/api/v1/categories/reorder", a.staff, body)
	require.Equal(t, http.StatusOK, code)

	code, env := a.do(http.MethodGet, "/api/v1/categories", a.client, nil)
	require.Equal(t, http.StatusOK, code)
	var list []model.Category
	require.NoError(t, json.Unmarshal(env.Data, &list))
	require.Len(t, list, 2)
	assert.Equal(t, y.ID, list[0].ID)

	code, _ = a.do(http.MethodPut, "/api/v1/categories/reorder", a.staff, map[string]any{"categories": []any{}})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	code, _ = a.do(http.MethodPut, "/api/v1/departments/reorder", a.staff, map[string]any{"departments": []map[string]any{{"id": 1}}})
	assert.Equal(t, http.StatusForbidden, code)
}

func TestExportAndImportEndpoints(t *testing.T) {
	a := newAPI(t)
	a.fx.Task("exported", a.staff)

	w := a.raw(http.MethodGet, "/api/v1/tasks/export", a.staff, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "text/csv")
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	assert.Contains(t, w.Body.String(), "exported")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/tasks/import", bytes.NewBufferString("title,priority\nImported,low\n"))
	req.Header.Set("Content-Type", "text/csv")
	req.Header.Set("X-User-ID", strconv.FormatUint(a.staff.ID, 10))
	w = httptest.NewRecorder()
	a.h.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	var res service.ImportResult
	require.NoError(t, json.Unmarshal(env.Data, &res))
	assert.Len(t, res.Created, 1)
	assert.Empty(t, res.Errors)
}

func TestNotificationEndpoints(t *testing.T) {
	a := newAPI(t)
	code, env := a.do(http.MethodPost, "/api/v1/notifications/announce", a.admin, map[string]string{"title": "Hi", "message": "all"})
	require.Equal(t, http.StatusCreated, code, string(env.Data))

	code, env = a.do(http.MethodGet, "/api/v1/notifications/unread-count", a.client, nil)
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `{"count":1}`, string(env.Data))

	code, _ = a.do(http.MethodPut, "/api/v1/notifications/read-all", a.client, nil)
	assert.Equal(t, http.StatusOK, code)
}
