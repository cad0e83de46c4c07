package handler

import (
	"errors"
	"log"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/task-service/internal/access"
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
)

type errorBody struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, gin.H{"success": true, "data": data})
}

func abort(c *gin.Context, status int, body errorBody) {
	c.AbortWithStatusJSON(status, gin.H{"success": false, "error": body})
}

func badRequest(c *gin.Context, msg string) {
	abort(c, http.StatusBadRequest, errorBody{Code: "bad_request", Message: msg})
}

// fail writes err as an error envelope. Unclassified errors are logged and
// hidden behind a generic message.
func fail(c *gin.Context, err error) {
	var e *errs.Error
	if !errors.As(err, &e) {
		log.Printf("handler: %s %s: %v", c.Request.Method, c.FullPath(), err)
		abort(c, http.StatusInternalServerError, errorBody{Code: errs.KindServer.String(), Message: "internal server error"})
		return
	}
	abort(c, statusOf(e.Kind), errorBody{Code: e.Code(), Message: e.Message, Details: e.Fields})
}

func statusOf(k errs.Kind) int {
	switch k {
	case errs.KindValidation:
		return http.StatusUnprocessableEntity
	case errs.KindUnauthenticated:
		return http.StatusUnauthorized
	case errs.KindForbidden:
		return http.StatusForbidden
	case errs.KindNotFound:
		return http.StatusNotFound
	case errs.KindConflict:
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// idParam parses a positive numeric path parameter; on failure it has already
// written a 400.
func idParam(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		badRequest(c, "invalid "+name)
		return 0, false
	}
	return id, true
}

// currentUser returns the user set by the auth middleware.
func currentUser(c *gin.Context) *model.User {
	u, _ := access.UserFrom(c.Request.Context())
	return u
}
