// Package report computes dashboard aggregates with hand-written SQL.
package report

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/psds-microservice/task-service/internal/model"
)

// Stats summarises the tasks a user is involved in.
type Stats struct {
	Total       int64            `json:"total" db:"total"`
	Open        int64            `json:"open" db:"open_count"`
	Overdue     int64            `json:"overdue" db:"overdue"`
	DueToday    int64            `json:"due_today" db:"due_today"`
	DueThisWeek int64            `json:"due_this_week" db:"due_this_week"`
	ByStatus    map[string]int64 `json:"by_status" db:"-"`
	ByPriority  map[string]int64 `json:"by_priority" db:"-"`
}

type Reporter struct {
	db  *sqlx.DB
	loc *time.Location
	now func() time.Time
}

// New wraps an open database handle; driverName selects the bind style.
func New(db *sql.DB, driverName string, loc *time.Location) *Reporter {
	if loc == nil {
		loc = time.UTC
	}
	return &Reporter{db: sqlx.NewDb(db, driverName), loc: loc, now: time.Now}
}

const totalsQuery = `
SELECT
	COUNT(*) AS total,
	COALESCE(SUM(CASE WHEN status NOT IN ('done', 'cancelled') THEN 1 ELSE 0 END), 0) AS open_count,
	COALESCE(SUM(CASE WHEN status NOT IN ('done', 'cancelled') AND due_date < ? THEN 1 ELSE 0 END), 0) AS overdue,
	COALESCE(SUM(CASE WHEN status NOT IN ('done', 'cancelled') AND due_date >= ? AND due_date < ? THEN 1 ELSE 0 END), 0) AS due_today,
	COALESCE(SUM(CASE WHEN status NOT IN ('done', 'cancelled') AND due_date >= ? AND due_date < ? THEN 1 ELSE 0 END), 0) AS due_this_week
FROM tasks
WHERE deleted_at IS NULL AND `

type countRow struct {
	Key string `db:"k"`
	N   int64  `db:"n"`
}

// Stats returns the aggregates for u. Clients count the tasks assigned to
// them; internal users count tasks they created or are assigned to.
func (r *Reporter) Stats(ctx context.Context, u *model.User) (*Stats, error) {
	scope, args := userScope(u)

	local := r.now().In(r.loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
	tomorrow := today.AddDate(0, 0, 1)
	week := today.AddDate(0, 0, 7)

	st := &Stats{}
	params := append([]any{today, today, tomorrow, today, week}, args...)
	if err := r.db.GetContext(ctx, st, r.db.Rebind(totalsQuery+scope), params...); err != nil {
		return nil, fmt.Errorf("report: totals: %w", err)
	}
	var err error
	if st.ByStatus, err = r.countBy(ctx, "status", scope, args); err != nil {
		return nil, err
	}
	if st.ByPriority, err = r.countBy(ctx, "priority", scope, args); err != nil {
		return nil, err
	}
	for _, s := range model.TaskStatuses {
		if _, ok := st.ByStatus[string(s)]; !ok {
			st.ByStatus[string(s)] = 0
		}
	}
	for _, p := range model.Priorities {
		if _, ok := st.ByPriority[string(p)]; !ok {
			st.ByPriority[string(p)] = 0
		}
	}
	return st, nil
}

// countBy groups the scoped tasks by a fixed column name.
func (r *Reporter) countBy(ctx context.Context, column, scope string, args []any) (map[string]int64, error) {
	q := fmt.Sprintf("SELECT %s AS k, COUNT(*) AS n FROM tasks WHERE deleted_at IS NULL AND %s GROUP BY %s", column, scope, column)
	var rows []countRow
	if err := r.db.SelectContext(ctx, &rows, r.db.Rebind(q), args...); err != nil {
		return nil, fmt.Errorf("report: count by %s: %w", column, err)
	}
	out := make(map[string]int64, len(rows))
	for _, row := range rows {
		out[row.Key] = row.N
	}
	return out, nil
}

func userScope(u *model.User) (string, []any) {
	if u.IsClient() {
		return "assignee_id = ?", []any{u.ID}
	}
	return "(assignee_id = ? OR creator_id = ?)", []any{u.ID, u.ID}
}
