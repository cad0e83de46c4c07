package handler

import (
	"context"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/psds-microservice/task-service/internal/access"
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderUserID    = "X-User-ID"
)

// RequestID reuses the caller's X-Request-ID or generates one, and echoes it back.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		c.Set("request_id", id)
		c.Header(HeaderRequestID, id)
		c.Next()
	}
}

// UserLoader resolves an active user by id.
type UserLoader interface {
	Active(ctx context.Context, id uint64) (*model.User, error)
}

// Authenticate trusts the X-User-ID header set by the gateway and stores the
// matching active user on the request context. Unknown and deactivated users
// are rejected.
func Authenticate(users UserLoader) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(HeaderUserID))
		id, err := strconv.ParseUint(raw, 10, 64)
		if raw == "" || err != nil || id == 0 {
			fail(c, errs.ErrUnauthenticated)
			return
		}
		u, err := users.Active(c.Request.Context(), id)
		if err != nil {
			if errs.KindOf(err) == errs.KindNotFound {
				err = errs.ErrUnauthenticated
			}
			fail(c, err)
			return
		}
		c.Request = c.Request.WithContext(access.WithUser(c.Request.Context(), u))
		c.Next()
	}
}
