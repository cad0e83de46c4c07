package router

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/helpy/paths"
	"github.com/psds-microservice/task-service/api"
	"github.com/psds-microservice/task-service/internal/handler"
	"github.com/psds-microservice/task-service/internal/model"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

type Handlers struct {
	Tasks         *handler.TaskHandler
	Comments      *handler.CommentHandler
	Categories    *handler.OrgHandler[model.Category]
	Departments   *handler.OrgHandler[model.Department]
	Users         *handler.UserHandler
	Notifications *handler.NotificationHandler
	Auth          *handler.AuthHandler

	// Authenticate guards every /api/v1 route except login.
	Authenticate gin.HandlerFunc
	Ready        gin.HandlerFunc
	// Quiet disables per-request logging.
	Quiet bool
}

func New(h Handlers) http.Handler {
	r := gin.New()
	r.Use(gin.Recovery(), handler.RequestID())
	if !h.Quiet {
		r.Use(gin.Logger())
	}
	ready := h.Ready
	if ready == nil {
		ready = handler.Ready(nil)
	}
	r.GET(paths.PathHealth, handler.Health)
	r.GET(paths.PathReady, ready)
	r.GET(paths.PathSwagger, func(c *gin.Context) { c.Redirect(http.StatusFound, paths.PathSwagger+"/") })
	r.GET(paths.PathSwagger+"/*any", func(c *gin.Context) {
		if strings.TrimPrefix(c.Param("any"), "/") == "openapi.json" {
			c.Data(http.StatusOK, "application/json", api.OpenAPISpec)
			return
		}
		if strings.TrimPrefix(c.Param("any"), "/") == "" {
			c.Request.URL.Path = paths.PathSwagger + "/index.html"
			c.Request.RequestURI = paths.PathSwagger + "/index.html"
		}
		ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL(paths.PathSwagger+"/openapi.json"))(c)
	})

	v1 := r.Group("/api/v1")
	v1.POST("/auth/login", h.Auth.Login)

	authed := v1.Group("")
	authed.Use(h.Authenticate)
	{
		authed.GET("/auth/me", h.Auth.Me)

		authed.GET("/tasks", h.Tasks.List)
		authed.POST("/tasks", h.Tasks.Create)
		authed.PUT("/tasks/reorder", h.Tasks.Reorder)
		authed.GET("/tasks/stats", h.Tasks.Stats)
		authed.GET("/tasks/calendar", h.Tasks.Calendar)
		authed.GET("/tasks/export", h.Tasks.Export)
		authed.POST("/tasks/import", h.Tasks.Import)
		authed.GET("/tasks/:id", h.Tasks.Get)
		authed.PUT("/tasks/:id", h.Tasks.Update)
		authed.DELETE("/tasks/:id", h.Tasks.Delete)
		authed.PUT("/tasks/:id/complete", h.Tasks.Complete)
		authed.GET("/tasks/:id/comments", h.Comments.List)
		authed.POST("/tasks/:id/comments", h.Comments.Create)
		authed.DELETE("/comments/:id", h.Comments.Delete)

		authed.GET("/categories", h.Categories.List)
		authed.POST("/categories", h.Categories.Create)
		authed.PUT("/categories/reorder", h.Categories.Reorder)
		authed.PUT("/categories/:id", h.Categories.Update)
		authed.DELETE("/categories/:id", h.Categories.Delete)

		authed.GET("/departments", h.Departments.List)
		authed.POST("/departments", h.Departments.Create)
		authed.PUT("/departments/reorder", h.Departments.Reorder)
		authed.PUT("/departments/:id", h.Departments.Update)
		authed.DELETE("/departments/:id", h.Departments.Delete)

		authed.GET("/users", h.Users.List)
		authed.POST("/users", h.Users.Create)
		authed.GET("/users/deactivated", h.Users.Deactivated)
		authed.PUT("/users/reorder", h.Users.Reorder)
		authed.GET("/users/:id", h.Users.Get)
		authed.PUT("/users/:id", h.Users.Update)
		authed.DELETE("/users/:id", h.Users.Deactivate)
		authed.PUT("/users/:id/restore", h.Users.Restore)
		authed.DELETE("/users/:id/purge", h.Users.Purge)

		authed.GET("/notifications", h.Notifications.List)
		authed.GET("/notifications/unread-count", h.Notifications.UnreadCount)
		authed.PUT("/notifications/read-all", h.Notifications.MarkAllRead)
		authed.POST("/notifications/announce", h.Notifications.Announce)
		authed.PUT("/notifications/:id/read", h.Notifications.MarkRead)
		authed.DELETE("/notifications/:id", h.Notifications.Delete)
	}

	return r
}
