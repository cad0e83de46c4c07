package searchindex

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/psds-microservice/task-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexTask(t *testing.T) {
	var got IndexTaskPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/search/index/task", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	cat := uint64(3)
	task := &model.Task{ID: 42, TicketID: "GLG25010001", Title: "Fix", Status: model.TaskStatusTodo, CreatorID: 1, CategoryID: &cat}
	require.NoError(t, NewClient(srv.URL).IndexTask(context.Background(), task))
	assert.Equal(t, int64(42), got.TaskID)
	assert.Equal(t, "GLG25010001", got.TicketID)
	require.NotNil(t, got.CategoryID)
	assert.Equal(t, int64(3), *got.CategoryID)
	assert.Nil(t, got.AssigneeID)
	assert.Equal(t, []string{}, got.Tags)
}

func TestRemoveTaskReportsFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodDelete, r.Method)
		assert.Equal(t, "/search/index/task/9", r.URL.Path)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewClient(srv.URL).RemoveTask(context.Background(), 9)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "502")
}

func TestDisabledClientIsNoop(t *testing.T) {
	c := NewClient("")
	assert.NoError(t, c.IndexTask(context.Background(), &model.Task{ID: 1}))
	assert.NoError(t, c.RemoveTask(context.Background(), 1))
	c.IndexTaskAsync(&model.Task{ID: 1})
	c.RemoveTaskAsync(1)
}
