package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/stretchr/testify/assert"
)

type stubUsers map[uint64]*model.User

func (s stubUsers) Active(_ context.Context, id uint64) (*model.User, error) {
	if id == 13 {
		return nil, errors.New("connection reset")
	}
	if u, ok := s[id]; ok {
		return u, nil
	}
	return nil, errs.ErrUserNotFound
}

func newTestEngine(users UserLoader) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID(), Authenticate(users))
	r.GET("/whoami", func(c *gin.Context) {
		respond(c, http.StatusOK, currentUser(c).Name)
	})
	return r
}

func TestAuthenticate(t *testing.T) {
	r := newTestEngine(stubUsers{7: {ID: 7, Name: "Sam", Role: model.RoleStaff}})
	cases := []struct {
		header string
		status int
	}{
		{"", http.StatusUnauthorized},
		{"abc", http.StatusUnauthorized},
		{"0", http.StatusUnauthorized},
		{"8", http.StatusUnauthorized},
		{"13", http.StatusInternalServerError},
		{" 7 ", http.StatusOK},
	}
	for _, tc := range cases {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		if tc.header != "" {
			req.Header.Set(HeaderUserID, tc.header)
		}
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, tc.status, w.Code, "header %q", tc.header)
		if tc.status == http.StatusOK {
			assert.JSONEq(t, `{"success":true,"data":"Sam"}`, w.Body.String())
		}
	}
}

func TestServerErrorsAreHidden(t *testing.T) {
	r := newTestEngine(stubUsers{})
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set(HeaderUserID, "13")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.JSONEq(t, `{"success":false,"error":{"code":"server_error","message":"internal server error"}}`, w.Body.String())
}

func TestStatusOf(t *testing.T) {
	assert.Equal(t, http.StatusUnprocessableEntity, statusOf(errs.KindValidation))
	assert.Equal(t, http.StatusUnauthorized, statusOf(errs.KindUnauthenticated))
	assert.Equal(t, http.StatusForbidden, statusOf(errs.KindForbidden))
	assert.Equal(t, http.StatusNotFound, statusOf(errs.KindNotFound))
	assert.Equal(t, http.StatusConflict, statusOf(errs.KindConflict))
	assert.Equal(t, http.StatusInternalServerError, statusOf(errs.KindServer))
}

type failingPinger struct{}

func (failingPinger) PingContext(context.Context) error { return errors.New("down") }

func TestReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ready", Ready(failingPinger{}))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ready", nil))
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}
