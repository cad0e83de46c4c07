package grouping

import (
	"context"
	"testing"
	"time"

	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/query"
	"github.com/psds-microservice/task-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBoardByCategory(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	u1 := fx.User("u1", model.RoleStaff)
	dev := fx.Category("Dev", "#3B82F6")
	empty := fx.Category("Empty", "#10B981")
	gone := fx.Category("Gone", "#EF4444")
	require.NoError(t, db.Delete(gone).Error)

	fix := fx.Task("Fix bug", u1, func(tk *model.Task) { tk.CategoryID = &dev.ID; tk.AssigneeID = &u1.ID })

	svc := NewService(db, query.NewEngine(db))
	b, err := svc.Board(context.Background(), ByCategory, query.Filters{AssigneeID: &u1.ID})
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, dev.ID, empty.ID}, keys(b))

	bk, ok := b.Bucket(dev.ID)
	require.True(t, ok)
	assert.Equal(t, "#3B82F6", bk.Color)
	require.Len(t, bk.Tasks, 1)
	assert.Equal(t, fix.ID, bk.Tasks[0].ID)
	assert.Empty(t, bk.CompletedTasks)
}

func TestBucketSetIgnoresFilters(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	fx.Department("Support")
	fx.Department("Sales")

	svc := NewService(db, query.NewEngine(db))
	b, err := svc.Board(context.Background(), ByDepartment, query.Filters{Search: "nothing matches this"})
	require.NoError(t, err)
	assert.Len(t, b.Buckets, 3)
	assert.Zero(t, b.Len())
}

func TestBoardByAssigneeCountsOpenWork(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	creator := fx.User("boss", model.RoleAdmin)
	sam := fx.User("sam", model.RoleStaff)
	idle := fx.User("idle", model.RoleStaff)
	client := fx.User("buyer", model.RoleClient)

	assign := func(u *model.User, st model.TaskStatus) func(*model.Task) {
		return func(tk *model.Task) { tk.AssigneeID = &u.ID; tk.SetStatus(st, time.Now()) }
	}
	fx.Task("a", creator, assign(sam, model.TaskStatusTodo))
	fx.Task("b", creator, assign(sam, model.TaskStatusInProgress))
	fx.Task("c", creator, assign(sam, model.TaskStatusDone))
	fx.Task("d", creator, assign(sam, model.TaskStatusCancelled))
	fx.Task("e", creator, assign(client, model.TaskStatusTodo))

	svc := NewService(db, query.NewEngine(db))
	// The badge ignores the board filter.
	b, err := svc.Board(context.Background(), ByAssignee, query.Filters{Statuses: []model.TaskStatus{model.TaskStatusDone}})
	require.NoError(t, err)

	_, hasClient := b.Bucket(client.ID)
	assert.False(t, hasClient)

	bk, ok := b.Bucket(sam.ID)
	require.True(t, ok)
	require.NotNil(t, bk.TotalTaskCount)
	assert.Equal(t, int64(2), *bk.TotalTaskCount)
	assert.Empty(t, bk.Tasks)
	assert.Len(t, bk.CompletedTasks, 1)

	bk, ok = b.Bucket(idle.ID)
	require.True(t, ok)
	assert.Equal(t, int64(0), *bk.TotalTaskCount)
	assert.Equal(t, 1, b.Len())
}

func TestBoardPlacesEveryReturnedTask(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	boss := fx.User("boss", model.RoleAdmin)
	sam := fx.User("sam", model.RoleStaff)
	gone := fx.User("gone", model.RoleStaff)
	buyer := fx.User("buyer", model.RoleClient)
	left := fx.User("left", model.RoleClient)
	to := func(u *model.User) func(*model.Task) { return func(tk *model.Task) { tk.AssigneeID = &u.ID } }
	fx.Task("kept", boss, to(sam))
	fx.Task("orphaned", boss, to(gone))
	fx.Task("order", boss, to(buyer))
	fx.Task("old order", boss, to(left))
	require.NoError(t, db.Delete(gone).Error)
	require.NoError(t, db.Delete(left).Error)

	svc := NewService(db, query.NewEngine(db))
	for _, mode := range []Mode{ByAssignee, ByClient} {
		b, err := svc.Board(context.Background(), mode, query.Filters{})
		require.NoError(t, err)
		assert.Equal(t, 1, b.Len(), mode)
		_, ok := b.Bucket(gone.ID)
		assert.False(t, ok)
		_, ok = b.Bucket(left.ID)
		assert.False(t, ok)
	}

	// Department boards still show the task under the zero bucket.
	b, err := svc.Board(context.Background(), ByDepartment, query.Filters{})
	require.NoError(t, err)
	assert.Equal(t, 2, b.Len())
}

func TestBoardByClient(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	staff := fx.User("sam", model.RoleStaff)
	client := fx.User("buyer", model.RoleClient)
	fx.Task("internal", staff, func(tk *model.Task) { tk.AssigneeID = &staff.ID })
	mine := fx.Task("for client", staff, func(tk *model.Task) { tk.AssigneeID = &client.ID })

	svc := NewService(db, query.NewEngine(db))
	b, err := svc.Board(context.Background(), ByClient, query.Filters{})
	require.NoError(t, err)
	assert.Equal(t, []uint64{client.ID}, keys(b))
	bk, _ := b.Bucket(client.ID)
	require.Len(t, bk.Tasks, 1)
	assert.Equal(t, mine.ID, bk.Tasks[0].ID)
	require.NotNil(t, bk.Company)
	assert.Equal(t, "Acme", *bk.Company)
}

func TestBucketsUnknownMode(t *testing.T) {
	db := testutil.NewDB(t)
	_, err := NewService(db, query.NewEngine(db)).Buckets(context.Background(), Mode("status"))
	assert.Error(t, err)
}
