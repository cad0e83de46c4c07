package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/service"
)

// orgService is the shape shared by the category and department services.
type orgService[T any] interface {
	List(ctx context.Context) ([]T, error)
	Create(ctx context.Context, actor *model.User, in service.OrgInput) (*T, error)
	Update(ctx context.Context, actor *model.User, id uint64, p service.OrgPatch) (*T, error)
	Delete(ctx context.Context, actor *model.User, id uint64) error
	Reorder(ctx context.Context, actor *model.User, items []service.ReorderItem) error
}

// OrgHandler serves the CRUD and reorder endpoints of categories or
// departments. listKey names the array in the reorder body.
type OrgHandler[T any] struct {
	svc     orgService[T]
	listKey string
}

func NewCategoryHandler(svc *service.CategoryService) *OrgHandler[model.Category] {
	return &OrgHandler[model.Category]{svc: svc, listKey: "categories"}
}

func NewDepartmentHandler(svc *service.DepartmentService) *OrgHandler[model.Department] {
	return &OrgHandler[model.Department]{svc: svc, listKey: "departments"}
}

type orgRequest struct {
	Name  *string `json:"name"`
	Color *string `json:"color"`
}

func (h *OrgHandler[T]) List(c *gin.Context) {
	items, err := h.svc.List(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, items)
}

func (h *OrgHandler[T]) Create(c *gin.Context) {
	var req orgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	in := service.OrgInput{}
	if req.Name != nil {
		in.Name = *req.Name
	}
	if req.Color != nil {
		in.Color = *req.Color
	}
	item, err := h.svc.Create(c.Request.Context(), currentUser(c), in)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, item)
}

func (h *OrgHandler[T]) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var req orgRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	item, err := h.svc.Update(c.Request.Context(), currentUser(c), id, service.OrgPatch{Name: req.Name, Color: req.Color})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, item)
}

func (h *OrgHandler[T]) Delete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	if err := h.svc.Delete(c.Request.Context(), currentUser(c), id); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"id": id})
}

func (h *OrgHandler[T]) Reorder(c *gin.Context) {
	items, ok := bindReorder(c, h.listKey)
	if !ok {
		return
	}
	if err := h.svc.Reorder(c.Request.Context(), currentUser(c), items); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"updated": len(items)})
}

// bindReorder reads {key: [{id, sort_order}]}.
func bindReorder(c *gin.Context, key string) ([]service.ReorderItem, bool) {
	var body map[string][]struct {
		ID        uint64 `json:"id"`
		SortOrder int    `json:"sort_order"`
	}
	if err := c.ShouldBindJSON(&body); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return nil, false
	}
	rows := body[key]
	items := make([]service.ReorderItem, len(rows))
	for i, r := range rows {
		items[i] = service.ReorderItem{ID: r.ID, SortOrder: r.SortOrder}
	}
	return items, true
}
