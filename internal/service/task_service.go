package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/task-service/internal/access"
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/grouping"
	"github.com/psds-microservice/task-service/internal/kafka"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/ordering"
	"github.com/psds-microservice/task-service/internal/query"
	"github.com/psds-microservice/task-service/internal/searchindex"
	"github.com/psds-microservice/task-service/internal/ticket"
	"gorm.io/gorm"
)

// ticketAttempts bounds retries when a concurrently issued ticket id collides
// with the unique index.
const ticketAttempts = 3

const maxCalendarDays = 366

type TaskService struct {
	db      *gorm.DB
	tasks   *query.Engine
	boards  *grouping.Service
	order   *ordering.Engine
	tickets *ticket.Generator
	events  kafka.TaskEventProducer
	search  searchindex.Indexer
	now     func() time.Time
}

func NewTaskService(db *gorm.DB, tickets *ticket.Generator, events kafka.TaskEventProducer, search searchindex.Indexer) *TaskService {
	tasks := query.NewEngine(db)
	if events == nil {
		events = kafka.NewProducer(nil, "")
	}
	if search == nil {
		search = searchindex.NewClient("")
	}
	return &TaskService{
		db:      db,
		tasks:   tasks,
		boards:  grouping.NewService(db, tasks),
		order:   ordering.NewEngine(db),
		tickets: tickets,
		events:  events,
		search:  search,
		now:     time.Now,
	}
}

type CreateTaskInput struct {
	Title       string
	Description string
	Status      model.TaskStatus
	Priority    model.Priority
	AssigneeID  *uint64
	CategoryID  *uint64
	DueDate     *model.Date
	Tags        []string
}

// TaskReorderItem is one row of a board drag-and-drop. CategoryID and
// AssigneeID move the task to another column when set; 0 clears the column.
type TaskReorderItem struct {
	ID         uint64
	SortOrder  int
	CategoryID *uint64
	AssigneeID *uint64
}

// List returns the tasks of view visible to actor.
func (s *TaskService) List(ctx context.Context, actor *model.User, view query.View, f query.Filters) ([]model.TaskView, error) {
	return s.tasks.Tasks(ctx, query.Scope(actor, view, f))
}

// Board returns the tasks of view visible to actor, projected by mode. Clients
// may only group by category.
func (s *TaskService) Board(ctx context.Context, actor *model.User, view query.View, mode grouping.Mode, f query.Filters) (*grouping.Board, error) {
	if actor.IsClient() && mode != grouping.ByCategory {
		return nil, errs.Forbidden("clients may only group by category")
	}
	return s.boards.Board(ctx, mode, query.Scope(actor, view, f))
}

func (s *TaskService) Get(ctx context.Context, actor *model.User, id uint64) (*model.TaskView, error) {
	v, err := s.tasks.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !access.CanAccess(&v.Task, actor) {
		return nil, errs.Forbidden("you cannot view this task")
	}
	return v, nil
}

// Calendar returns the dated tasks between start and end (inclusive) that
// actor is involved in, ordered by due date.
func (s *TaskService) Calendar(ctx context.Context, actor *model.User, start, end model.Date) ([]model.TaskView, error) {
	from, to := start.Ptr(), end.Ptr()
	if to.Before(*from) {
		return nil, errs.Invalid("end", "must not be before start")
	}
	if to.Sub(*from) > maxCalendarDays*24*time.Hour {
		return nil, errs.Invalid("end", fmt.Sprintf("range must not exceed %d days", maxCalendarDays))
	}
	f := query.Filters{DueFrom: from, DueTo: to, OrderBy: query.OrderDueDate, OrderDir: query.Asc}
	id := actor.ID
	if actor.IsClient() {
		f.AssigneeID = &id
	} else {
		f.InvolvedUserID = &id
	}
	return s.tasks.Tasks(ctx, f)
}

func (s *TaskService) Create(ctx context.Context, actor *model.User, in CreateTaskInput) (*model.TaskView, error) {
	if !access.CanCreateTasks(actor) {
		return nil, errs.Forbidden("clients cannot create tasks")
	}
	task, err := s.newTask(actor, in)
	if err != nil {
		return nil, err
	}
	for attempt := 1; ; attempt++ {
		err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return s.insert(ctx, tx, actor, task)
		})
		if err == nil || !errs.IsDuplicate(err) || attempt == ticketAttempts {
			break
		}
		task.ID, task.TicketID = 0, ""
	}
	if err != nil {
		return nil, errs.FromDB(err, nil)
	}
	s.published(ctx, kafka.EventTaskCreated, task)
	return s.tasks.Get(ctx, task.ID)
}

// newTask validates in and builds the unsaved task.
func (s *TaskService) newTask(actor *model.User, in CreateTaskInput) (*model.Task, error) {
	fields := map[string]string{}
	title := strings.TrimSpace(in.Title)
	switch {
	case title == "":
		fields["title"] = "is required"
	case len(title) > 255:
		fields["title"] = "must be at most 255 characters"
	}
	status := in.Status
	if status == "" {
		status = model.TaskStatusTodo
	} else if !status.Valid() {
		fields["status"] = "must be one of backlog, todo, in_progress, done, cancelled"
	}
	priority := in.Priority
	if priority == "" {
		priority = model.PriorityMedium
	} else if !priority.Valid() {
		fields["priority"] = "must be one of urgent, high, medium, low"
	}
	if err := errs.FieldErrors(fields); err != nil {
		return nil, err
	}
	t := &model.Task{
		Title:       title,
		Description: in.Description,
		Priority:    priority,
		CreatorID:   actor.ID,
		AssigneeID:  nonZero(in.AssigneeID),
		CategoryID:  nonZero(in.CategoryID),
		Tags:        cleanTags(in.Tags),
	}
	if in.DueDate != nil {
		t.DueDate = in.DueDate.Ptr()
	}
	t.SetStatus(status, s.now())
	return t, nil
}

func (s *TaskService) insert(ctx context.Context, tx *gorm.DB, actor *model.User, t *model.Task) error {
	if err := checkRefs(ctx, tx, t.AssigneeID, t.CategoryID); err != nil {
		return err
	}
	code, err := s.tickets.Next(ctx, tx)
	if err != nil {
		return err
	}
	order, err := ordering.Next(ctx, tx, ordering.Tasks, ordering.TaskScope(t.AssigneeID, t.CategoryID))
	if err != nil {
		return err
	}
	t.TicketID = code
	t.DisplayOrder = order
	if err := tx.WithContext(ctx).Create(t).Error; err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	n := newNotifier(actor, s.now())
	n.add(t.AssigneeID, model.NotificationTaskAssigned, "New task assigned",
		fmt.Sprintf("%s assigned you %s: %s", actor.Name, t.TicketID, t.Title), t.ID)
	return n.flush(tx.WithContext(ctx))
}

// Update applies patch. Clients are reduced to the status field; staff must
// own or be assigned the task. Moving a task to another assignee or category
// appends it to the destination column.
func (s *TaskService) Update(ctx context.Context, actor *model.User, id uint64, patch model.TaskPatch) (*model.TaskView, error) {
	if patch.Empty() {
		return nil, errs.Validation("no changes provided")
	}
	var (
		saved     model.Task
		completed bool
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if actor.IsClient() {
			if !access.CanAccess(task, actor) {
				return errs.Forbidden("you cannot update this task")
			}
			if patch, err = access.RestrictClientPatch(patch); err != nil {
				return err
			}
		} else if !access.CanEdit(task, actor) {
			return errs.Forbidden("you cannot edit this task")
		}

		now := s.now()
		wasDone := task.Status == model.TaskStatusDone
		prevAssignee, prevCategory := task.AssigneeID, task.CategoryID
		changes, err := applyPatch(task, patch, now)
		if err != nil {
			return err
		}
		if err := checkRefs(ctx, tx, changedRef(patch.AssigneeID), changedRef(patch.CategoryID)); err != nil {
			return err
		}
		if len(changes) > 0 {
			if err := tx.WithContext(ctx).Model(task).Updates(changes).Error; err != nil {
				return fmt.Errorf("update task %d: %w", id, err)
			}
		}
		if !sameID(prevAssignee, task.AssigneeID) || !sameID(prevCategory, task.CategoryID) {
			set := map[string]any{"assignee_id": nullable(task.AssigneeID), "category_id": nullable(task.CategoryID)}
			if err := ordering.MoveToEnd(ctx, tx, ordering.Tasks, task.ID,
				ordering.TaskScope(task.AssigneeID, task.CategoryID), set, now); err != nil {
				return err
			}
		}

		completed = !wasDone && task.Status == model.TaskStatusDone
		n := newNotifier(actor, now)
		if !sameID(prevAssignee, task.AssigneeID) {
			n.add(task.AssigneeID, model.NotificationTaskAssigned, "New task assigned",
				fmt.Sprintf("%s assigned you %s: %s", actor.Name, task.TicketID, task.Title), task.ID)
		}
		if completed {
			creator := task.CreatorID
			n.add(&creator, model.NotificationTaskCompleted, "Task completed",
				fmt.Sprintf("%s completed %s: %s", actor.Name, task.TicketID, task.Title), task.ID)
		}
		n.add(task.AssigneeID, model.NotificationTaskUpdated, "Task updated",
			fmt.Sprintf("%s updated %s: %s", actor.Name, task.TicketID, task.Title), task.ID)
		if err := n.flush(tx.WithContext(ctx)); err != nil {
			return err
		}
		saved = *task
		return nil
	})
	if err != nil {
		return nil, errs.FromDB(err, errs.ErrTaskNotFound)
	}
	event := kafka.EventTaskUpdated
	if completed {
		event = kafka.EventTaskCompleted
	}
	s.published(ctx, event, &saved)
	return s.tasks.Get(ctx, id)
}

// ToggleComplete flips a task between done and todo.
func (s *TaskService) ToggleComplete(ctx context.Context, actor *model.User, id uint64) (*model.TaskView, error) {
	var saved model.Task
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(ctx, tx, id)
		if err != nil {
			return err
		}
		if !access.CanToggle(task, actor) {
			return errs.Forbidden("you cannot complete this task")
		}
		now := s.now()
		next := model.TaskStatusDone
		if task.Status == model.TaskStatusDone {
			next = model.TaskStatusTodo
		}
		task.SetStatus(next, now)
		if err := tx.WithContext(ctx).Model(task).Updates(map[string]any{
			"status":       string(task.Status),
			"completed_at": nullableTime(task.CompletedAt),
		}).Error; err != nil {
			return fmt.Errorf("toggle task %d: %w", id, err)
		}
		if task.Status == model.TaskStatusDone {
			creator := task.CreatorID
			n := newNotifier(actor, now)
			n.add(&creator, model.NotificationTaskCompleted, "Task completed",
				fmt.Sprintf("%s completed %s: %s", actor.Name, task.TicketID, task.Title), task.ID)
			if err := n.flush(tx.WithContext(ctx)); err != nil {
				return err
			}
		}
		saved = *task
		return nil
	})
	if err != nil {
		return nil, errs.FromDB(err, errs.ErrTaskNotFound)
	}
	event := kafka.EventTaskUpdated
	if saved.Status == model.TaskStatusDone {
		event = kafka.EventTaskCompleted
	}
	s.published(ctx, event, &saved)
	return s.tasks.Get(ctx, id)
}

// Delete soft-deletes a task.
func (s *TaskService) Delete(ctx context.Context, actor *model.User, id uint64) error {
	task, err := loadTask(ctx, s.db, id)
	if err != nil {
		return err
	}
	if !access.CanEdit(task, actor) {
		return errs.Forbidden("you cannot delete this task")
	}
	if err := s.db.WithContext(ctx).Delete(task).Error; err != nil {
		return fmt.Errorf("delete task %d: %w", id, err)
	}
	s.events.ProduceTaskEvent(ctx, kafka.EventTaskDeleted, kafka.TaskPayload(task))
	s.search.RemoveTaskAsync(task.ID)
	return nil
}

// Reorder persists a drag-and-drop batch atomically. Items that carry a
// category or assignee also move the task to that column: the task is placed
// at its requested position among the destination's tasks, and both columns
// are renumbered.
func (s *TaskService) Reorder(ctx context.Context, actor *model.User, items []TaskReorderItem) error {
	if err := access.RequireInternal(actor); err != nil {
		return err
	}
	if len(items) == 0 {
		return errs.Invalid("tasks", "must not be empty")
	}
	batch := make([]ordering.Item, len(items))
	moves := make(map[uint64]TaskReorderItem, len(items))
	for i, it := range items {
		if it.ID == 0 {
			return errs.Invalid(fmt.Sprintf("tasks[%d].id", i), "is required")
		}
		batch[i] = ordering.Item{ID: it.ID, SortOrder: it.SortOrder}
		set := map[string]any{}
		if it.CategoryID != nil {
			set["category_id"] = nullable(nonZero(it.CategoryID))
		}
		if it.AssigneeID != nil {
			set["assignee_id"] = nullable(nonZero(it.AssigneeID))
		}
		if len(set) > 0 {
			batch[i].Set = set
		}
		if err := checkRefs(ctx, s.db, nonZero(it.AssigneeID), nonZero(it.CategoryID)); err != nil {
			return err
		}
		moves[it.ID] = it
	}
	locate := func(ctx context.Context, tx *gorm.DB, it ordering.Item) (ordering.Placement, error) {
		task, err := loadTask(ctx, tx, it.ID)
		if err != nil {
			return ordering.Placement{}, err
		}
		assignee, category := task.AssigneeID, task.CategoryID
		p := ordering.Placement{FromKey: scopeKey(assignee, category), From: ordering.TaskScope(assignee, category)}
		if mv := moves[it.ID]; mv.AssigneeID != nil {
			assignee = nonZero(mv.AssigneeID)
		}
		if mv := moves[it.ID]; mv.CategoryID != nil {
			category = nonZero(mv.CategoryID)
		}
		p.Key, p.Dest = scopeKey(assignee, category), ordering.TaskScope(assignee, category)
		return p, nil
	}
	if err := s.order.Reorder(ctx, ordering.Tasks, batch, locate); err != nil {
		return errs.FromDB(err, errs.ErrTaskNotFound)
	}
	ids := make([]uint64, len(items))
	for i, it := range items {
		ids[i] = it.ID
	}
	s.events.ProduceTaskEvent(ctx, kafka.EventTaskReordered, map[string]interface{}{"task_ids": ids, "actor_id": actor.ID})
	return nil
}

// scopeKey names the (assignee, category) column of a task.
func scopeKey(assignee, category *uint64) string {
	var a, c uint64
	if assignee != nil {
		a = *assignee
	}
	if category != nil {
		c = *category
	}
	return fmt.Sprintf("%d/%d", a, c)
}

func (s *TaskService) published(ctx context.Context, event string, t *model.Task) {
	s.events.ProduceTaskEvent(ctx, event, kafka.TaskPayload(t))
	s.search.IndexTaskAsync(t)
}

// applyPatch validates patch against task, updates task in memory and returns
// the column changes. Scope columns are left to the ordering engine.
func applyPatch(task *model.Task, p model.TaskPatch, now time.Time) (map[string]any, error) {
	changes := map[string]any{}
	fields := map[string]string{}
	if p.Title != nil {
		title := strings.TrimSpace(*p.Title)
		switch {
		case title == "":
			fields["title"] = "must not be empty"
		case len(title) > 255:
			fields["title"] = "must be at most 255 characters"
		default:
			task.Title = title
			changes["title"] = title
		}
	}
	if p.Description != nil {
		task.Description = *p.Description
		changes["description"] = *p.Description
	}
	if p.Priority != nil {
		if !p.Priority.Valid() {
			fields["priority"] = "must be one of urgent, high, medium, low"
		} else {
			task.Priority = *p.Priority
			changes["priority"] = string(*p.Priority)
		}
	}
	if p.Status != nil {
		if !p.Status.Valid() {
			fields["status"] = "must be one of backlog, todo, in_progress, done, cancelled"
		} else {
			task.SetStatus(*p.Status, now)
			changes["status"] = string(task.Status)
			changes["completed_at"] = nullableTime(task.CompletedAt)
		}
	}
	if p.DueDate.Set {
		if p.DueDate.Value == nil {
			task.DueDate = nil
		} else {
			task.DueDate = p.DueDate.Value.Ptr()
		}
		changes["due_date"] = nullableTime(task.DueDate)
	}
	if p.Tags != nil {
		task.Tags = cleanTags(*p.Tags)
		changes["tags"] = task.Tags
	}
	if p.AssigneeID.Set {
		task.AssigneeID = nonZero(p.AssigneeID.Value)
	}
	if p.CategoryID.Set {
		task.CategoryID = nonZero(p.CategoryID.Value)
	}
	if err := errs.FieldErrors(fields); err != nil {
		return nil, err
	}
	return changes, nil
}

func loadTask(ctx context.Context, db *gorm.DB, id uint64) (*model.Task, error) {
	var t model.Task
	if err := db.WithContext(ctx).First(&t, id).Error; err != nil {
		return nil, errs.FromDB(err, errs.ErrTaskNotFound)
	}
	return &t, nil
}

// checkRefs verifies that a referenced assignee and category exist and are live.
func checkRefs(ctx context.Context, db *gorm.DB, assigneeID, categoryID *uint64) error {
	if assigneeID != nil {
		var n int64
		if err := db.WithContext(ctx).Model(&model.User{}).Where("id = ?", *assigneeID).Count(&n).Error; err != nil {
			return fmt.Errorf("check assignee: %w", err)
		}
		if n == 0 {
			return errs.Invalid("assignee_id", "unknown user")
		}
	}
	if categoryID != nil {
		var n int64
		if err := db.WithContext(ctx).Model(&model.Category{}).Where("id = ?", *categoryID).Count(&n).Error; err != nil {
			return fmt.Errorf("check category: %w", err)
		}
		if n == 0 {
			return errs.Invalid("category_id", "unknown category")
		}
	}
	return nil
}

// changedRef returns the new id carried by a patch field, nil when the field is
// unset or cleared.
func changedRef(n model.Nullable[uint64]) *uint64 {
	if !n.Set {
		return nil
	}
	return nonZero(n.Value)
}

// nonZero treats 0 as "no reference".
func nonZero(id *uint64) *uint64 {
	if id == nil || *id == 0 {
		return nil
	}
	v := *id
	return &v
}

func sameID(a, b *uint64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// nullable turns a nil pointer into an untyped nil so the column is set to NULL.
func nullable(id *uint64) any {
	if id == nil {
		return nil
	}
	return *id
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// cleanTags trims tags and drops blanks and repeats, keeping first-seen order.
func cleanTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}
