package grouping

import (
	"testing"

	"github.com/psds-microservice/task-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func u64(v uint64) *uint64 { return &v }
func str(v string) *string { return &v }

func view(id uint64, status model.TaskStatus, mutate func(*model.TaskView)) model.TaskView {
	t := model.TaskView{}
	t.ID = id
	t.Status = status
	if mutate != nil {
		mutate(&t)
	}
	return t
}

func keys(b *Board) []uint64 {
	out := make([]uint64, len(b.Buckets))
	for i, bk := range b.Buckets {
		out[i] = bk.Key
	}
	return out
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"category", "assignee", "client", "department"} {
		m, ok := ParseMode(s)
		assert.True(t, ok, s)
		assert.Equal(t, Mode(s), m)
	}
	_, ok := ParseMode("status")
	assert.False(t, ok)
}

func TestProjectCategoryKeepsEmptyBucketsAndZeroFirst(t *testing.T) {
	b := Project(ByCategory, []Bucket{{Key: 7, Name: "Dev"}, {Key: 9, Name: "Ops"}}, nil)
	assert.Equal(t, []uint64{0, 7, 9}, keys(b))
	for _, bk := range b.Buckets {
		assert.NotNil(t, bk.Tasks)
		assert.NotNil(t, bk.CompletedTasks)
	}
	assert.Equal(t, "Uncategorized", b.Buckets[0].Name)
	assert.Zero(t, b.Len())
}

func TestProjectPartitionsActiveAndCompleted(t *testing.T) {
	tasks := []model.TaskView{
		view(1, model.TaskStatusTodo, func(t *model.TaskView) { t.CategoryID = u64(7) }),
		view(2, model.TaskStatusDone, func(t *model.TaskView) { t.CategoryID = u64(7) }),
		view(3, model.TaskStatusCancelled, func(t *model.TaskView) { t.CategoryID = u64(7) }),
		view(4, model.TaskStatusTodo, nil),
		// category deleted since: lands in the zero bucket
		view(5, model.TaskStatusInProgress, func(t *model.TaskView) { t.CategoryID = u64(42) }),
	}
	b := Project(ByCategory, []Bucket{{Key: 7, Name: "Dev"}}, tasks)
	require.Equal(t, len(tasks), b.Len())

	dev, ok := b.Bucket(7)
	require.True(t, ok)
	assert.Len(t, dev.Tasks, 2)
	require.Len(t, dev.CompletedTasks, 1)
	assert.Equal(t, uint64(2), dev.CompletedTasks[0].ID)

	zero, ok := b.Bucket(0)
	require.True(t, ok)
	assert.Len(t, zero.Tasks, 2)
	assert.Empty(t, zero.CompletedTasks)
}

func TestProjectAssigneeSkipsClientsAndUnassigned(t *testing.T) {
	tasks := []model.TaskView{
		view(1, model.TaskStatusTodo, func(t *model.TaskView) { t.AssigneeID = u64(1); t.AssigneeType = str("internal") }),
		view(2, model.TaskStatusTodo, func(t *model.TaskView) { t.AssigneeID = u64(2); t.AssigneeType = str("client") }),
		view(3, model.TaskStatusTodo, nil),
		// assignee without a bucket and no zero bucket to fall into
		view(4, model.TaskStatusTodo, func(t *model.TaskView) { t.AssigneeID = u64(99); t.AssigneeType = str("internal") }),
	}
	b := Project(ByAssignee, []Bucket{{Key: 1, Name: "Sam"}}, tasks)
	assert.Equal(t, []uint64{1}, keys(b))
	assert.Equal(t, 1, b.Len())
}

func TestProjectClientBoard(t *testing.T) {
	tasks := []model.TaskView{
		view(1, model.TaskStatusTodo, func(t *model.TaskView) { t.AssigneeID = u64(1); t.AssigneeType = str("internal") }),
		view(2, model.TaskStatusDone, func(t *model.TaskView) { t.AssigneeID = u64(2); t.AssigneeType = str("client") }),
	}
	b := Project(ByClient, []Bucket{{Key: 2, Name: "Acme buyer"}}, tasks)
	bk, ok := b.Bucket(2)
	require.True(t, ok)
	assert.Empty(t, bk.Tasks)
	assert.Len(t, bk.CompletedTasks, 1)
	assert.Equal(t, 1, b.Len())
}

func TestProjectDepartmentUsesAssigneeDepartment(t *testing.T) {
	tasks := []model.TaskView{
		view(1, model.TaskStatusTodo, func(t *model.TaskView) {
			t.AssigneeID = u64(1)
			t.AssigneeType = str("internal")
			t.AssigneeDepartmentID = u64(3)
		}),
		view(2, model.TaskStatusTodo, func(t *model.TaskView) { t.AssigneeID = u64(2); t.AssigneeType = str("internal") }),
		view(3, model.TaskStatusTodo, func(t *model.TaskView) { t.AssigneeID = u64(5); t.AssigneeType = str("client") }),
	}
	b := Project(ByDepartment, []Bucket{{Key: 3, Name: "Support"}}, tasks)
	assert.Equal(t, []uint64{0, 3}, keys(b))
	assert.Equal(t, "No department", b.Buckets[0].Name)

	sup, _ := b.Bucket(3)
	require.Len(t, sup.Tasks, 1)
	assert.Equal(t, uint64(1), sup.Tasks[0].ID)
	zero, _ := b.Bucket(0)
	require.Len(t, zero.Tasks, 1)
	assert.Equal(t, uint64(2), zero.Tasks[0].ID)
}

func TestProjectIgnoresDuplicateBuckets(t *testing.T) {
	b := Project(ByCategory, []Bucket{{Key: 0, Name: "bogus"}, {Key: 4, Name: "A"}, {Key: 4, Name: "B"}}, nil)
	assert.Equal(t, []uint64{0, 4}, keys(b))
	assert.Equal(t, "Uncategorized", b.Buckets[0].Name)
	assert.Equal(t, "A", b.Buckets[1].Name)
	assert.Equal(t, map[uint64]int{0: 0, 4: 1}, b.ByKey)
}
