package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/service"
)

type UserHandler struct {
	svc *service.UserService
}

func NewUserHandler(svc *service.UserService) *UserHandler {
	return &UserHandler{svc: svc}
}

type createUserRequest struct {
	Name         string  `json:"name"`
	Email        string  `json:"email"`
	Password     string  `json:"password"`
	Role         string  `json:"role"`
	Company      *string `json:"company"`
	DepartmentID *uint64 `json:"department_id"`
}

type updateUserRequest struct {
	Name         *string                `json:"name"`
	Email        *string                `json:"email"`
	Password     *string                `json:"password"`
	Role         *model.Role            `json:"role"`
	Company      model.Nullable[string] `json:"company"`
	DepartmentID model.Nullable[uint64] `json:"department_id"`
}

// List accepts ?type=internal|client.
func (h *UserHandler) List(c *gin.Context) {
	var typ model.UserType
	if v := c.Query("type"); v != "" {
		t, err := model.ParseUserType(v)
		if err != nil {
			fail(c, errs.Invalid("type", err.Error()))
			return
		}
		typ = t
	}
	users, err := h.svc.List(c.Request.Context(), currentUser(c), typ)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, users)
}

func (h *UserHandler) Deactivated(c *gin.Context) {
	users, err := h.svc.ListDeactivated(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, users)
}

func (h *UserHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	u, err := h.svc.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, u)
}

func (h *UserHandler) Create(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	u, err := h.svc.Create(c.Request.Context(), currentUser(c), service.CreateUserInput{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		Role:         model.Role(req.Role),
		Company:      req.Company,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, u)
}

func (h *UserHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req updateUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	u, err := h.svc.Update(c.Request.Context(), currentUser(c), id, service.UserPatch{
		Name:         req.Name,
		Email:        req.Email,
		Password:     req.Password,
		Role:         req.Role,
		Company:      req.Company,
		DepartmentID: req.DepartmentID,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, u)
}

// Deactivate is the first, reversible stage of deleting a user.
func (h *UserHandler) Deactivate(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Deactivate(c.Request.Context(), currentUser(c), id); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id, "state": model.LifecycleDeactivated})
}

func (h *UserHandler) Restore(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	u, err := h.svc.Restore(c.Request.Context(), currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, u)
}

func (h *UserHandler) Purge(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Purge(c.Request.Context(), currentUser(c), id); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id, "state": model.LifecyclePurged})
}

func (h *UserHandler) Reorder(c *gin.Context) {
	items, ok := bindReorder(c, "users")
	if !ok {
		return
	}
	if err := h.svc.Reorder(c.Request.Context(), currentUser(c), items); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"updated": len(items)})
}
