package access

import (
	"context"
	"testing"

	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func user(id uint64, role model.Role) *model.User {
	u := &model.User{ID: id, Role: role}
	u.Normalize()
	return u
}

func task(creator uint64, assignee *uint64) *model.Task {
	return &model.Task{CreatorID: creator, AssigneeID: assignee}
}

func id(v uint64) *uint64 { return &v }

func TestCanAccess(t *testing.T) {
	admin, staff, client := user(1, model.RoleAdmin), user(2, model.RoleStaff), user(3, model.RoleClient)

	unrelated := task(9, id(8))
	assert.True(t, CanAccess(unrelated, admin))
	assert.True(t, CanAccess(unrelated, staff))
	assert.False(t, CanAccess(unrelated, client))

	assert.True(t, CanAccess(task(9, id(3)), client))
	assert.False(t, CanAccess(task(3, nil), client), "clients see assigned tasks only, not ones they created")
	assert.False(t, CanAccess(nil, admin))
	assert.False(t, CanAccess(unrelated, nil))
}

func TestCanAccessIsMonotonicInRole(t *testing.T) {
	tasks := []*model.Task{task(1, nil), task(2, id(5)), task(5, id(5)), task(7, id(8))}
	for _, tk := range tasks {
		for uid := uint64(1); uid <= 8; uid++ {
			c, s, a := CanAccess(tk, user(uid, model.RoleClient)), CanAccess(tk, user(uid, model.RoleStaff)), CanAccess(tk, user(uid, model.RoleAdmin))
			if c {
				assert.True(t, s, "staff must see what a client sees")
			}
			if s {
				assert.True(t, a, "admin must see what staff sees")
			}
		}
	}
}

func TestCanEdit(t *testing.T) {
	staff := user(2, model.RoleStaff)
	assert.True(t, CanEdit(task(2, nil), staff))
	assert.True(t, CanEdit(task(9, id(2)), staff))
	assert.False(t, CanEdit(task(9, id(8)), staff))
	assert.True(t, CanEdit(task(9, id(8)), user(1, model.RoleAdmin)))
	assert.False(t, CanEdit(task(9, id(3)), user(3, model.RoleClient)))
}

func TestCanToggle(t *testing.T) {
	client := user(3, model.RoleClient)
	assert.True(t, CanToggle(task(9, id(3)), client))
	assert.False(t, CanToggle(task(9, id(4)), client))
	assert.False(t, CanToggle(task(9, id(8)), user(2, model.RoleStaff)))
}

func TestRestrictClientPatch(t *testing.T) {
	title := "new title"
	done := model.TaskStatusDone
	p, err := RestrictClientPatch(model.TaskPatch{Title: &title, Status: &done, AssigneeID: model.Some[uint64](4)})
	require.NoError(t, err)
	assert.Nil(t, p.Title)
	assert.False(t, p.AssigneeID.Set)
	require.NotNil(t, p.Status)
	assert.Equal(t, model.TaskStatusDone, *p.Status)

	progress := model.TaskStatusInProgress
	_, err = RestrictClientPatch(model.TaskPatch{Status: &progress})
	assert.Equal(t, errs.KindConflict, errs.KindOf(err))

	_, err = RestrictClientPatch(model.TaskPatch{Title: &title})
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))
}

func TestCheckUserChange(t *testing.T) {
	admin, staff, client := user(1, model.RoleAdmin), user(2, model.RoleStaff), user(3, model.RoleClient)
	adminRole, staffRole := model.RoleAdmin, model.RoleStaff

	assert.NoError(t, CheckUserChange(admin, nil, &adminRole))
	assert.NoError(t, CheckUserChange(staff, nil, &staffRole))
	assert.Equal(t, errs.KindForbidden, errs.KindOf(CheckUserChange(staff, nil, &adminRole)))
	assert.Equal(t, errs.KindForbidden, errs.KindOf(CheckUserChange(staff, user(5, model.RoleAdmin), nil)))
	assert.NoError(t, CheckUserChange(staff, user(6, model.RoleClient), nil))
	assert.Equal(t, errs.KindForbidden, errs.KindOf(CheckUserChange(client, nil, nil)))
	assert.Equal(t, errs.KindUnauthenticated, errs.KindOf(CheckUserChange(nil, nil, nil)))
}

func TestUserContext(t *testing.T) {
	_, ok := UserFrom(context.Background())
	assert.False(t, ok)

	u := user(4, model.RoleStaff)
	got, ok := UserFrom(WithUser(context.Background(), u))
	require.True(t, ok)
	assert.Same(t, u, got)
}
