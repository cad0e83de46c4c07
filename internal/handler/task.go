package handler

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/grouping"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/query"
	"github.com/psds-microservice/task-service/internal/report"
	"github.com/psds-microservice/task-service/internal/service"
)

const maxImportBytes = 5 << 20

type TaskHandler struct {
	svc   *service.TaskService
	stats *report.Reporter
}

func NewTaskHandler(svc *service.TaskService, stats *report.Reporter) *TaskHandler {
	return &TaskHandler{svc: svc, stats: stats}
}

type createTaskRequest struct {
	Title       string      `json:"title"`
	Description string      `json:"description"`
	Status      string      `json:"status"`
	Priority    string      `json:"priority"`
	AssigneeID  *uint64     `json:"assignee_id"`
	CategoryID  *uint64     `json:"category_id"`
	DueDate     *model.Date `json:"due_date"`
	Tags        []string    `json:"tags"`
}

type reorderTasksRequest struct {
	Tasks []struct {
		ID         uint64  `json:"id"`
		SortOrder  int     `json:"sort_order"`
		CategoryID *uint64 `json:"category_id"`
		AssigneeID *uint64 `json:"assignee_id"`
	} `json:"tasks"`
}

// List returns a flat list, or a board when ?grouped= names a grouping mode.
func (h *TaskHandler) List(c *gin.Context) {
	f, err := parseFilters(c)
	if err != nil {
		fail(c, err)
		return
	}
	actor := currentUser(c)
	view := query.ParseView(c.Query("view"))
	if g := c.Query("grouped"); g != "" {
		mode, ok := grouping.ParseMode(g)
		if !ok {
			fail(c, errs.Invalid("grouped", "must be one of category, assignee, client, department"))
			return
		}
		board, err := h.svc.Board(c.Request.Context(), actor, view, mode, f)
		if err != nil {
			fail(c, err)
			return
		}
		respond(c, http.StatusOK, board)
		return
	}
	tasks, err := h.svc.List(c.Request.Context(), actor, view, f)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, tasks)
}

func (h *TaskHandler) Get(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.Get(c.Request.Context(), currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, t)
}

func (h *TaskHandler) Create(c *gin.Context) {
	var req createTaskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	t, err := h.svc.Create(c.Request.Context(), currentUser(c), service.CreateTaskInput{
		Title:       req.Title,
		Description: req.Description,
		Status:      model.TaskStatus(req.Status),
		Priority:    model.Priority(req.Priority),
		AssigneeID:  req.AssigneeID,
		CategoryID:  req.CategoryID,
		DueDate:     req.DueDate,
		Tags:        req.Tags,
	})
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusCreated, t)
}

func (h *TaskHandler) Update(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	var patch model.TaskPatch
	if err := c.ShouldBindJSON(&patch); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	t, err := h.svc.Update(c.Request.Context(), currentUser(c), id, patch)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, t)
}

// Complete toggles a task between done and todo.
func (h *TaskHandler) Complete(c *gin.Context) {
	id, ok := idParam(c, "id")
	if !ok {
		return
	}
	t, err := h.svc.ToggleComplete(c.Request.Context(), currentUser(c), id)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, t)
}

func (h *TaskHandler) Delete(c *gin.Context) {
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

func (h *TaskHandler) Reorder(c *gin.Context) {
	var req reorderTasksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid body: "+err.Error())
		return
	}
	items := make([]service.TaskReorderItem, len(req.Tasks))
	for i, t := range req.Tasks {
		items[i] = service.TaskReorderItem{ID: t.ID, SortOrder: t.SortOrder, CategoryID: t.CategoryID, AssigneeID: t.AssigneeID}
	}
	if err := h.svc.Reorder(c.Request.Context(), currentUser(c), items); err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, gin.H{"updated": len(items)})
}

func (h *TaskHandler) Stats(c *gin.Context) {
	st, err := h.stats.Stats(c.Request.Context(), currentUser(c))
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, st)
}

// Calendar expects ?start=YYYY-MM-DD&end=YYYY-MM-DD.
func (h *TaskHandler) Calendar(c *gin.Context) {
	start, err := model.ParseDate(c.Query("start"))
	if err != nil {
		fail(c, errs.Invalid("start", err.Error()))
		return
	}
	end, err := model.ParseDate(c.Query("end"))
	if err != nil {
		fail(c, errs.Invalid("end", err.Error()))
		return
	}
	tasks, err := h.svc.Calendar(c.Request.Context(), currentUser(c), start, end)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, tasks)
}

// Export streams the filtered list as CSV.
func (h *TaskHandler) Export(c *gin.Context) {
	f, err := parseFilters(c)
	if err != nil {
		fail(c, err)
		return
	}
	var buf bytes.Buffer
	if _, err := h.svc.Export(c.Request.Context(), currentUser(c), query.ParseView(c.Query("view")), f, &buf); err != nil {
		fail(c, err)
		return
	}
	name := fmt.Sprintf("tasks-%s.csv", time.Now().UTC().Format("20060102"))
	c.Header("Content-Disposition", `attachment; filename="`+name+`"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", buf.Bytes())
}

// Import accepts a multipart "file" field or a raw text/csv body.
func (h *TaskHandler) Import(c *gin.Context) {
	var r io.Reader
	if fh, err := c.FormFile("file"); err == nil {
		if fh.Size > maxImportBytes {
			badRequest(c, "file too large")
			return
		}
		f, err := fh.Open()
		if err != nil {
			badRequest(c, "cannot read file")
			return
		}
		defer f.Close()
		r = f
	} else {
		r = io.LimitReader(c.Request.Body, maxImportBytes)
	}
	res, err := h.svc.Import(c.Request.Context(), currentUser(c), r)
	if err != nil {
		fail(c, err)
		return
	}
	respond(c, http.StatusOK, res)
}

func parseFilters(c *gin.Context) (query.Filters, error) {
	f := query.Filters{
		Search:              strings.TrimSpace(c.Query("search")),
		OrderBy:             query.ParseOrderField(c.Query("order_by")),
		OrderDir:            query.ParseDirection(c.Query("order_dir")),
		ExcludeDone:         truthy(c.Query("exclude_done")),
		ExcludeSelfAssigned: truthy(c.Query("exclude_self_assigned")),
	}
	fields := map[string]string{}
	for name, dst := range map[string]**uint64{
		"assignee_id": &f.AssigneeID,
		"creator_id":  &f.CreatorID,
		"category_id": &f.CategoryID,
	} {
		v := c.Query(name)
		if v == "" {
			continue
		}
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			fields[name] = "must be a non-negative integer"
			continue
		}
		*dst = &id
	}
	if v := c.Query("status"); v != "" {
		for _, part := range strings.Split(v, ",") {
			st, err := model.ParseTaskStatus(strings.TrimSpace(part))
			if err != nil {
				fields["status"] = err.Error()
				break
			}
			f.Statuses = append(f.Statuses, st)
		}
	}
	if v := c.Query("priority"); v != "" {
		p, err := model.ParsePriority(v)
		if err != nil {
			fields["priority"] = err.Error()
		} else {
			f.Priority = &p
		}
	}
	if v := c.Query("assignee_type"); v != "" {
		t, err := model.ParseUserType(v)
		if err != nil {
			fields["assignee_type"] = err.Error()
		} else {
			f.AssigneeType = t
		}
	}
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			fields["limit"] = "must be a non-negative integer"
		} else {
			f.Limit = n
		}
	}
	return f, errs.FieldErrors(fields)
}

func truthy(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
