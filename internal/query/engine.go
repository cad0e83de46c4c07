package query

import (
	"context"
	"fmt"
	"strings"

	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
	"gorm.io/gorm"
)

const viewColumns = `tasks.*,
	creator.name AS creator_name,
	assignee.name AS assignee_name,
	assignee.type AS assignee_type,
	assignee.company AS assignee_company,
	assignee.department_id AS assignee_department_id,
	departments.name AS department_name,
	departments.color AS department_color,
	categories.name AS category_name,
	categories.color AS category_color`

const priorityRank = "CASE tasks.priority WHEN 'urgent' THEN 1 WHEN 'high' THEN 2 WHEN 'medium' THEN 3 WHEN 'low' THEN 4 ELSE 5 END"

// Engine reads tasks. Soft-deleted tasks are never returned.
type Engine struct {
	db *gorm.DB
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db}
}

func (e *Engine) base(ctx context.Context) *gorm.DB {
	return e.db.WithContext(ctx).Model(&model.Task{}).
		Select(viewColumns).
		Joins("LEFT JOIN users AS creator ON creator.id = tasks.creator_id").
		Joins("LEFT JOIN users AS assignee ON assignee.id = tasks.assignee_id").
		Joins("LEFT JOIN departments ON departments.id = assignee.department_id AND departments.deleted_at IS NULL").
		Joins("LEFT JOIN categories ON categories.id = tasks.category_id AND categories.deleted_at IS NULL")
}

// Tasks returns the tasks matching f in the requested order.
func (e *Engine) Tasks(ctx context.Context, f Filters) ([]model.TaskView, error) {
	tx := Order(Apply(e.base(ctx), f), f.OrderBy, f.OrderDir)
	if f.Limit > 0 {
		tx = tx.Limit(f.Limit)
	}
	out := []model.TaskView{}
	if err := tx.Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	return out, nil
}

// Get returns one live task with its display fields.
func (e *Engine) Get(ctx context.Context, id uint64) (*model.TaskView, error) {
	var out []model.TaskView
	if err := e.base(ctx).Where("tasks.id = ?", id).Limit(1).Scan(&out).Error; err != nil {
		return nil, fmt.Errorf("query task %d: %w", id, err)
	}
	if len(out) == 0 {
		return nil, errs.ErrTaskNotFound
	}
	return &out[0], nil
}

// Count returns how many tasks match f.
func (e *Engine) Count(ctx context.Context, f Filters) (int64, error) {
	var n int64
	tx := Apply(e.db.WithContext(ctx).Model(&model.Task{}).
		Joins("LEFT JOIN users AS assignee ON assignee.id = tasks.assignee_id"), f)
	if err := tx.Count(&n).Error; err != nil {
		return 0, fmt.Errorf("count tasks: %w", err)
	}
	return n, nil
}

// Apply adds the WHERE clauses for f. The assignee must be joined as "assignee".
func Apply(db *gorm.DB, f Filters) *gorm.DB {
	if f.AssigneeID != nil {
		db = db.Where("tasks.assignee_id = ?", *f.AssigneeID)
	}
	if f.CreatorID != nil {
		db = db.Where("tasks.creator_id = ?", *f.CreatorID)
	}
	if f.CategoryID != nil {
		if *f.CategoryID == 0 {
			db = db.Where("tasks.category_id IS NULL")
		} else {
			db = db.Where("tasks.category_id = ?", *f.CategoryID)
		}
	}
	if len(f.Statuses) > 0 {
		db = db.Where("tasks.status IN ?", statusStrings(f.Statuses))
	}
	if f.Priority != nil {
		db = db.Where("tasks.priority = ?", string(*f.Priority))
	}
	if f.AssigneeType != "" {
		db = db.Where("assignee.type = ?", string(f.AssigneeType))
	}
	if f.ActiveAssignee {
		db = db.Where("tasks.assignee_id IS NOT NULL AND assignee.deleted_at IS NULL")
	}
	if f.ExcludeSelfAssigned {
		db = db.Where("(tasks.assignee_id IS NULL OR tasks.assignee_id <> tasks.creator_id)")
	}
	if f.ExcludeDone {
		db = db.Where("tasks.status NOT IN ?", statusStrings([]model.TaskStatus{model.TaskStatusDone, model.TaskStatusCancelled}))
	}
	if s := strings.TrimSpace(f.Search); s != "" {
		p := "%" + escapeLike(strings.ToLower(s)) + "%"
		db = db.Where(`(LOWER(tasks.title) LIKE ? ESCAPE '\' OR LOWER(tasks.description) LIKE ? ESCAPE '\' OR LOWER(tasks.ticket_id) LIKE ? ESCAPE '\')`, p, p, p)
	}
	if f.InvolvedUserID != nil {
		db = db.Where("(tasks.assignee_id = ? OR tasks.creator_id = ?)", *f.InvolvedUserID, *f.InvolvedUserID)
	}
	if f.DueFrom != nil {
		db = db.Where("tasks.due_date >= ?", *f.DueFrom)
	}
	if f.DueTo != nil {
		db = db.Where("tasks.due_date <= ?", *f.DueTo)
	}
	return db
}

// Order sorts by the primary key requested, then clusters tasks without a due
// date last, then by id. When sorting by due date, undated tasks come last in
// both directions.
func Order(db *gorm.DB, by OrderField, dir Direction) *gorm.DB {
	d := "ASC"
	if dir == Desc {
		d = "DESC"
	}
	const undatedLast = "tasks.due_date IS NULL"
	switch by {
	case OrderDueDate:
		return db.Order(undatedLast).Order("tasks.due_date " + d).Order("tasks.id ASC")
	case OrderPriority:
		db = db.Order(priorityRank + " " + d)
	case OrderTitle:
		db = db.Order("LOWER(tasks.title) " + d)
	case OrderCreatedAt:
		db = db.Order("tasks.created_at " + d)
	default:
		db = db.Order("tasks.display_order " + d)
	}
	return db.Order(undatedLast).Order("tasks.due_date ASC").Order("tasks.id ASC")
}

func statusStrings(ss []model.TaskStatus) []string {
	out := make([]string, len(ss))
	for i, s := range ss {
		out[i] = string(s)
	}
	return out
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string { return likeEscaper.Replace(s) }
