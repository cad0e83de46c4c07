// Package access holds the role and ownership rules applied to tasks and users.
// Every predicate is pure.
package access

import (
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
)

// CanAccess reports whether u may see t. Internal users see every task; a
// client sees only tasks assigned to them.
func CanAccess(t *model.Task, u *model.User) bool {
	if t == nil || u == nil {
		return false
	}
	switch u.Role {
	case model.RoleAdmin, model.RoleStaff:
		return true
	case model.RoleClient:
		return t.IsAssignedTo(u.ID)
	}
	return false
}

// CanEdit reports whether u may change arbitrary fields of t or delete it.
func CanEdit(t *model.Task, u *model.User) bool {
	if t == nil || u == nil {
		return false
	}
	switch u.Role {
	case model.RoleAdmin:
		return true
	case model.RoleStaff:
		return t.CreatorID == u.ID || t.IsAssignedTo(u.ID)
	}
	return false
}

// CanToggle reports whether u may flip t between done and not done. Clients
// may do so on their own tasks even though they cannot edit them.
func CanToggle(t *model.Task, u *model.User) bool {
	if u != nil && u.IsClient() {
		return CanAccess(t, u)
	}
	return CanEdit(t, u)
}

// CanCreateTasks reports whether u may create tasks at all.
func CanCreateTasks(u *model.User) bool {
	return u != nil && u.IsInternal()
}

// RestrictClientPatch reduces a client's patch to the status field. Any other
// field is dropped; a status other than done or todo is rejected.
func RestrictClientPatch(p model.TaskPatch) (model.TaskPatch, error) {
	if p.Status == nil {
		return model.TaskPatch{}, errs.Validation("clients may only change the status")
	}
	switch *p.Status {
	case model.TaskStatusDone, model.TaskStatusTodo:
	default:
		return model.TaskPatch{}, errs.Conflict("clients may only set status to done or todo")
	}
	return model.TaskPatch{Status: p.Status}, nil
}

// CheckUserChange enforces who may create, edit or delete a user. target is the
// stored user (nil when creating); newRole is the requested role, if any.
func CheckUserChange(actor, target *model.User, newRole *model.Role) error {
	if actor == nil {
		return errs.ErrUnauthenticated
	}
	switch actor.Role {
	case model.RoleAdmin:
		return nil
	case model.RoleStaff:
		if target != nil && target.IsAdmin() {
			return errs.Forbidden("staff cannot manage admin users")
		}
		if newRole != nil && *newRole == model.RoleAdmin {
			return errs.Forbidden("staff cannot grant the admin role")
		}
		return nil
	}
	return errs.Forbidden("clients cannot manage users")
}

// RequireInternal fails unless u is an admin or staff member.
func RequireInternal(u *model.User) error {
	if u == nil {
		return errs.ErrUnauthenticated
	}
	if !u.IsInternal() {
		return errs.ErrForbidden
	}
	return nil
}

// RequireAdmin fails unless u is an admin.
func RequireAdmin(u *model.User) error {
	if u == nil {
		return errs.ErrUnauthenticated
	}
	if !u.IsAdmin() {
		return errs.Forbidden("admin role required")
	}
	return nil
}
