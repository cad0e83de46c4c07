// Package grouping projects a flat task list onto board columns.
package grouping

import (
	"github.com/psds-microservice/task-service/internal/model"
)

type Mode string

const (
	ByCategory   Mode = "category"
	ByAssignee   Mode = "assignee"
	ByClient     Mode = "client"
	ByDepartment Mode = "department"
)

func ParseMode(s string) (Mode, bool) {
	switch m := Mode(s); m {
	case ByCategory, ByAssignee, ByClient, ByDepartment:
		return m, true
	}
	return "", false
}

// zeroBucket reports whether the mode has a synthetic key 0 column collecting
// tasks without a group.
func (m Mode) zeroBucket() (string, bool) {
	switch m {
	case ByCategory:
		return "Uncategorized", true
	case ByDepartment:
		return "No department", true
	}
	return "", false
}

// keyOf returns the bucket key of t, or false when t does not take part in
// the projection at all.
func (m Mode) keyOf(t *model.TaskView) (uint64, bool) {
	switch m {
	case ByCategory:
		if t.CategoryID == nil {
			return 0, true
		}
		return *t.CategoryID, true
	case ByAssignee:
		if t.AssigneeID == nil || !hasType(t, model.UserTypeInternal) {
			return 0, false
		}
		return *t.AssigneeID, true
	case ByClient:
		if t.AssigneeID == nil || !hasType(t, model.UserTypeClient) {
			return 0, false
		}
		return *t.AssigneeID, true
	case ByDepartment:
		if t.AssigneeID == nil || !hasType(t, model.UserTypeInternal) {
			return 0, false
		}
		if t.AssigneeDepartmentID == nil {
			return 0, true
		}
		return *t.AssigneeDepartmentID, true
	}
	return 0, false
}

func hasType(t *model.TaskView, typ model.UserType) bool {
	return t.AssigneeType != nil && model.UserType(*t.AssigneeType) == typ
}

// Bucket is one board column. Tasks holds everything not done; CompletedTasks
// holds done tasks.
type Bucket struct {
	Key            uint64           `json:"key"`
	Name           string           `json:"name"`
	Color          string           `json:"color,omitempty"`
	Company        *string          `json:"company,omitempty"`
	DepartmentID   *uint64          `json:"department_id,omitempty"`
	DisplayOrder   int              `json:"display_order"`
	TotalTaskCount *int64           `json:"total_task_count,omitempty"`
	Tasks          []model.TaskView `json:"tasks"`
	CompletedTasks []model.TaskView `json:"completed_tasks"`
}

// Board is the ordered set of buckets of one projection. ByKey maps a group
// key to its position in Buckets.
type Board struct {
	Mode    Mode           `json:"mode"`
	Buckets []*Bucket      `json:"groups"`
	ByKey   map[uint64]int `json:"by_key"`
}

// Bucket looks a column up by key.
func (b *Board) Bucket(key uint64) (*Bucket, bool) {
	i, ok := b.ByKey[key]
	if !ok {
		return nil, false
	}
	return b.Buckets[i], true
}

// Len returns the number of tasks placed on the board.
func (b *Board) Len() int {
	n := 0
	for _, bk := range b.Buckets {
		n += len(bk.Tasks) + len(bk.CompletedTasks)
	}
	return n
}

// Project places every task in exactly one bucket. Every bucket passed in is
// kept, empty or not, and the zero bucket of category and department boards
// is always present. A task whose key has no bucket falls into the zero bucket
// when the mode has one and is left off the board otherwise.
func Project(mode Mode, buckets []Bucket, tasks []model.TaskView) *Board {
	b := &Board{Mode: mode, Buckets: []*Bucket{}, ByKey: make(map[uint64]int, len(buckets)+1)}
	add := func(bk Bucket) {
		bk.Tasks = []model.TaskView{}
		bk.CompletedTasks = []model.TaskView{}
		b.ByKey[bk.Key] = len(b.Buckets)
		b.Buckets = append(b.Buckets, &bk)
	}
	zeroName, hasZero := mode.zeroBucket()
	if hasZero {
		add(Bucket{Key: 0, Name: zeroName})
	}
	for _, bk := range buckets {
		if _, dup := b.ByKey[bk.Key]; dup {
			continue
		}
		add(bk)
	}

	for i := range tasks {
		t := tasks[i]
		key, ok := mode.keyOf(&t)
		if !ok {
			continue
		}
		bk, found := b.Bucket(key)
		if !found {
			if !hasZero {
				continue
			}
			bk, _ = b.Bucket(0)
		}
		if t.Status == model.TaskStatusDone {
			bk.CompletedTasks = append(bk.CompletedTasks, t)
		} else {
			bk.Tasks = append(bk.Tasks, t)
		}
	}
	return b
}
