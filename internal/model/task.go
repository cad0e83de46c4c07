package model

import (
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type TaskStatus string

const (
	TaskStatusBacklog    TaskStatus = "backlog"
	TaskStatusTodo       TaskStatus = "todo"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// TaskStatuses lists every status in board order.
var TaskStatuses = []TaskStatus{
	TaskStatusBacklog, TaskStatusTodo, TaskStatusInProgress, TaskStatusDone, TaskStatusCancelled,
}

func (s TaskStatus) Valid() bool {
	switch s {
	case TaskStatusBacklog, TaskStatusTodo, TaskStatusInProgress, TaskStatusDone, TaskStatusCancelled:
		return true
	}
	return false
}

// Closed reports whether the status no longer counts toward a workload.
func (s TaskStatus) Closed() bool {
	return s == TaskStatusDone || s == TaskStatusCancelled
}

func ParseTaskStatus(s string) (TaskStatus, error) {
	st := TaskStatus(s)
	if !st.Valid() {
		return "", fmt.Errorf("invalid status %q: must be one of backlog, todo, in_progress, done, cancelled", s)
	}
	return st, nil
}

type Priority string

const (
	PriorityUrgent Priority = "urgent"
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

var Priorities = []Priority{PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow}

func (p Priority) Valid() bool {
	switch p {
	case PriorityUrgent, PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// Rank orders priorities from most to least urgent, starting at 1.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 1
	case PriorityHigh:
		return 2
	case PriorityMedium:
		return 3
	case PriorityLow:
		return 4
	}
	return 5
}

func ParsePriority(s string) (Priority, error) {
	p := Priority(s)
	if !p.Valid() {
		return "", fmt.Errorf("invalid priority %q: must be one of urgent, high, medium, low", s)
	}
	return p, nil
}

type Task struct {
	ID           uint64                      `gorm:"primaryKey" json:"id"`
	TicketID     string                      `gorm:"type:varchar(32);uniqueIndex;not null" json:"ticket_id"`
	Title        string                      `gorm:"type:varchar(255);not null" json:"title"`
	Description  string                      `gorm:"type:text" json:"description"`
	Status       TaskStatus                  `gorm:"type:varchar(32);index;not null" json:"status"`
	Priority     Priority                    `gorm:"type:varchar(16);index;not null" json:"priority"`
	CreatorID    uint64                      `gorm:"index;not null" json:"creator_id"`
	AssigneeID   *uint64                     `gorm:"index" json:"assignee_id"`
	CategoryID   *uint64                     `gorm:"index" json:"category_id"`
	DueDate      *time.Time                  `gorm:"type:date;index" json:"due_date"`
	Tags         datatypes.JSONSlice[string] `json:"tags"`
	DisplayOrder int                         `gorm:"not null;default:0" json:"display_order"`
	CompletedAt  *time.Time                  `json:"completed_at"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// SetStatus moves the task to status, keeping CompletedAt in lockstep: it is
// stamped when entering done and cleared when leaving it.
func (t *Task) SetStatus(status TaskStatus, now time.Time) {
	if status == TaskStatusDone {
		if t.Status != TaskStatusDone || t.CompletedAt == nil {
			ts := now
			t.CompletedAt = &ts
		}
	} else {
		t.CompletedAt = nil
	}
	t.Status = status
}

// IsAssignedTo reports whether userID is the task's assignee.
func (t *Task) IsAssignedTo(userID uint64) bool {
	return t.AssigneeID != nil && *t.AssigneeID == userID
}

// TaskView is a task joined with the display fields of its creator, assignee,
// category and the assignee's department.
type TaskView struct {
	Task

	CreatorName          *string `json:"creator_name"`
	AssigneeName         *string `json:"assignee_name"`
	AssigneeType         *string `json:"assignee_type"`
	AssigneeCompany      *string `json:"assignee_company"`
	AssigneeDepartmentID *uint64 `json:"assignee_department_id"`
	DepartmentName       *string `json:"department_name"`
	DepartmentColor      *string `json:"department_color"`
	CategoryName         *string `json:"category_name"`
	CategoryColor        *string `json:"category_color"`
}

// TaskPatch is a partial task update. Nil pointers and unset Nullables leave the
// column untouched.
type TaskPatch struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Status      *TaskStatus      `json:"status"`
	Priority    *Priority        `json:"priority"`
	AssigneeID  Nullable[uint64] `json:"assignee_id"`
	CategoryID  Nullable[uint64] `json:"category_id"`
	DueDate     Nullable[Date]   `json:"due_date"`
	Tags        *[]string        `json:"tags"`
}

// Empty reports whether the patch changes nothing.
func (p TaskPatch) Empty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Priority == nil &&
		!p.AssigneeID.Set && !p.CategoryID.Set && !p.DueDate.Set && p.Tags == nil
}
