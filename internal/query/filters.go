// Package query builds filtered, sorted task lists joined with their display
// metadata.
package query

import (
	"strings"
	"time"

	"github.com/psds-microservice/task-service/internal/model"
)

// OrderField is a whitelisted sort key.
type OrderField string

const (
	OrderDisplay   OrderField = "display_order"
	OrderDueDate   OrderField = "due_date"
	OrderCreatedAt OrderField = "created_at"
	OrderPriority  OrderField = "priority"
	OrderTitle     OrderField = "title"
)

// ParseOrderField maps s to a sort key; unknown values fall back to display_order.
func ParseOrderField(s string) OrderField {
	switch f := OrderField(s); f {
	case OrderDisplay, OrderDueDate, OrderCreatedAt, OrderPriority, OrderTitle:
		return f
	}
	return OrderDisplay
}

type Direction string

const (
	Asc  Direction = "asc"
	Desc Direction = "desc"
)

// ParseDirection accepts asc/desc in any case; anything else is asc.
func ParseDirection(s string) Direction {
	if strings.EqualFold(strings.TrimSpace(s), string(Desc)) {
		return Desc
	}
	return Asc
}

// Filters are combined with AND.
type Filters struct {
	AssigneeID *uint64
	CreatorID  *uint64
	// CategoryID 0 selects uncategorized tasks.
	CategoryID *uint64
	Statuses   []model.TaskStatus
	Priority   *model.Priority
	// AssigneeType keeps tasks whose assignee has this type; tasks without an
	// assignee never match.
	AssigneeType model.UserType
	// ActiveAssignee drops tasks whose assignee is missing or deactivated.
	ActiveAssignee      bool
	ExcludeSelfAssigned bool
	ExcludeDone         bool
	Search              string
	// InvolvedUserID keeps tasks the user created or is assigned to.
	InvolvedUserID *uint64
	DueFrom        *time.Time
	DueTo          *time.Time
	OrderBy        OrderField
	OrderDir       Direction
	Limit          int
}

// View is a board perspective of an internal user.
type View string

const (
	ViewAll       View = "all"
	ViewMy        View = "my"
	ViewRequested View = "requested"
	ViewClients   View = "clients"
)

func ParseView(s string) View {
	switch v := View(s); v {
	case ViewMy, ViewRequested, ViewClients:
		return v
	}
	return ViewAll
}

// Scope injects the filters implied by the user's role and the requested view.
// Clients always see their own tasks ordered by due date; the view is ignored
// for them.
func Scope(u *model.User, view View, f Filters) Filters {
	id := u.ID
	if u.IsClient() {
		f.AssigneeID = &id
		f.OrderBy = OrderDueDate
		f.OrderDir = Asc
		return f
	}
	switch view {
	case ViewMy:
		f.AssigneeID = &id
	case ViewRequested:
		f.CreatorID = &id
		f.ExcludeSelfAssigned = true
		f.AssigneeType = model.UserTypeInternal
	case ViewClients:
		f.CreatorID = &id
		f.AssigneeType = model.UserTypeClient
	}
	return f
}
