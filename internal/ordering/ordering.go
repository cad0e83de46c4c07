// Package ordering maintains the integer display_order used for drag-and-drop
// ordering of tasks, categories, departments and users.
package ordering

import (
	"context"
	"fmt"
	"math"
	"slices"
	"sort"
	"time"

	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
	"gorm.io/gorm"
)

// Table names an orderable table. Every orderable table has id, display_order,
// updated_at and deleted_at columns.
type Table string

const (
	Tasks       Table = "tasks"
	Categories  Table = "categories"
	Departments Table = "departments"
	Users       Table = "users"
)

func (t Table) entity() string {
	switch t {
	case Tasks:
		return "task"
	case Categories:
		return "category"
	case Departments:
		return "department"
	case Users:
		return "user"
	}
	return string(t)
}

// Item is one row of a reorder batch. Set carries extra columns written with
// the new position, such as category_id when a task changes column.
type Item struct {
	ID        uint64
	SortOrder int
	Set       map[string]any
}

// Scope narrows a table to the rows that share one ordering sequence.
type Scope func(*gorm.DB) *gorm.DB

// All is the scope of tables ordered as a single sequence.
func All(db *gorm.DB) *gorm.DB { return db }

// TaskScope is the composite (assignee, category) scope tasks are ordered in.
func TaskScope(assigneeID, categoryID *uint64) Scope {
	return func(db *gorm.DB) *gorm.DB {
		return nullableEq(nullableEq(db, "assignee_id", assigneeID), "category_id", categoryID)
	}
}

// UserTypeScope orders internal users and clients separately.
func UserTypeScope(t model.UserType) Scope {
	return func(db *gorm.DB) *gorm.DB { return db.Where("type = ?", string(t)) }
}

func nullableEq(db *gorm.DB, col string, v *uint64) *gorm.DB {
	if v == nil {
		return db.Where(col + " IS NULL")
	}
	return db.Where(col+" = ?", *v)
}

// Normalize makes a batch deterministic: when an id appears more than once
// only its last occurrence is kept, the survivors are stably sorted by the
// requested sort order and then renumbered 0..N-1.
func Normalize(items []Item) []Item {
	out := latest(items)
	for i := range out {
		out[i].SortOrder = i
	}
	return out
}

// latest drops all but the last occurrence of each id and stably sorts the
// rest by requested sort order. Requested positions are kept.
func latest(items []Item) []Item {
	last := make(map[uint64]int, len(items))
	for i, it := range items {
		last[it.ID] = i
	}
	out := make([]Item, 0, len(last))
	for i, it := range items {
		if last[it.ID] == i {
			out = append(out, it)
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].SortOrder < out[b].SortOrder })
	return out
}

// Merge inserts items into ids, the current order of one scope, and returns
// the whole scope renumbered 0..N-1. Each item lands at its requested sort
// order, clamped to the scope; ids not in items keep their relative order.
func Merge(ids []uint64, items []Item) []Item {
	moved := latest(items)
	in := make(map[uint64]struct{}, len(moved))
	for _, it := range moved {
		in[it.ID] = struct{}{}
	}
	out := make([]Item, 0, len(ids)+len(moved))
	for _, id := range ids {
		if _, ok := in[id]; !ok {
			out = append(out, Item{ID: id})
		}
	}
	for _, it := range moved {
		pos := min(max(it.SortOrder, 0), len(out))
		out = slices.Insert(out, pos, it)
	}
	for i := range out {
		out[i].SortOrder = i
	}
	return out
}

// Next returns the display order for a new row appended to scope: one past the
// current maximum, or 1 for an empty scope.
func Next(ctx context.Context, db *gorm.DB, table Table, scope Scope) (int, error) {
	var highest int
	err := db.WithContext(ctx).Table(string(table)).Scopes(scope).
		Where("deleted_at IS NULL").
		Select("COALESCE(MAX(display_order), 0)").Scan(&highest).Error
	if err != nil {
		return 0, fmt.Errorf("ordering: next %s order: %w", table.entity(), err)
	}
	return highest + 1, nil
}

// Apply writes a normalized batch using tx. A missing or soft-deleted id fails
// the call; the caller's transaction is expected to roll back.
func Apply(ctx context.Context, tx *gorm.DB, table Table, items []Item, now time.Time) error {
	for _, it := range Normalize(items) {
		cols := map[string]any{"display_order": it.SortOrder, "updated_at": now}
		for k, v := range it.Set {
			cols[k] = v
		}
		res := tx.WithContext(ctx).Table(string(table)).
			Where("id = ? AND deleted_at IS NULL", it.ID).Updates(cols)
		if res.Error != nil {
			return fmt.Errorf("ordering: update %s %d: %w", table.entity(), it.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return errs.NotFound("%s %d not found", table.entity(), it.ID)
		}
	}
	return nil
}

// IDs returns the live ids of scope in display order, ties broken by id.
func IDs(ctx context.Context, db *gorm.DB, table Table, scope Scope) ([]uint64, error) {
	var ids []uint64
	err := db.WithContext(ctx).Table(string(table)).Scopes(scope).
		Where("deleted_at IS NULL").
		Order("display_order ASC").Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("ordering: list %s scope: %w", table.entity(), err)
	}
	return ids, nil
}

// MoveToEnd places row id last in the destination scope and renumbers the
// whole destination 0..N-1. set is written on the moved row alongside its new
// position; it normally carries the scope-defining columns.
func MoveToEnd(ctx context.Context, tx *gorm.DB, table Table, id uint64, dest Scope, set map[string]any, now time.Time) error {
	last := []Item{{ID: id, SortOrder: math.MaxInt, Set: set}}
	return Place(ctx, tx, table, dest, last, map[uint64]struct{}{id: {}}, now)
}

// Place writes items into scope at their requested positions and renumbers
// the whole scope. Rows of scope listed in batch but not in items are left
// alone: they are being moved elsewhere by the same batch.
func Place(ctx context.Context, tx *gorm.DB, table Table, scope Scope, items []Item, batch map[uint64]struct{}, now time.Time) error {
	ids, err := IDs(ctx, tx, table, scope)
	if err != nil {
		return err
	}
	kept := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if _, ok := batch[id]; !ok {
			kept = append(kept, id)
		}
	}
	return Apply(ctx, tx, table, Merge(kept, items), now)
}

// Placement says where a batch item ends up. Key identifies Dest; From is the
// scope the row leaves, set only when it differs from Dest.
type Placement struct {
	Key     string
	Dest    Scope
	FromKey string
	From    Scope
}

// Locator resolves the placement of one batch item inside the batch transaction.
type Locator func(ctx context.Context, tx *gorm.DB, it Item) (Placement, error)

// Within places every item in one scope.
func Within(scope Scope) Locator {
	return func(context.Context, *gorm.DB, Item) (Placement, error) {
		return Placement{Dest: scope}, nil
	}
}

// Engine runs reorder batches in their own transaction.
type Engine struct {
	db  *gorm.DB
	now func() time.Time
}

func NewEngine(db *gorm.DB) *Engine {
	return &Engine{db: db, now: time.Now}
}

// Reorder applies items atomically: either every row gets its new position or
// none does. Items are grouped by destination scope; each destination is
// rewritten as a dense 0..N-1 sequence with the items at their requested
// positions, and every scope a row left is renumbered after it.
func (e *Engine) Reorder(ctx context.Context, table Table, items []Item, locate Locator) error {
	items = latest(items)
	if len(items) == 0 {
		return nil
	}
	return e.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		now := e.now()
		batch := make(map[uint64]struct{}, len(items))
		for _, it := range items {
			batch[it.ID] = struct{}{}
		}
		var keys, left []string
		dests := map[string]Scope{}
		groups := map[string][]Item{}
		sources := map[string]Scope{}
		for _, it := range items {
			p, err := locate(ctx, tx, it)
			if err != nil {
				return err
			}
			if _, ok := dests[p.Key]; !ok {
				keys = append(keys, p.Key)
				dests[p.Key] = p.Dest
			}
			groups[p.Key] = append(groups[p.Key], it)
			if p.From != nil && p.FromKey != p.Key {
				if _, ok := sources[p.FromKey]; !ok {
					left = append(left, p.FromKey)
					sources[p.FromKey] = p.From
				}
			}
		}
		for _, k := range keys {
			if err := Place(ctx, tx, table, dests[k], groups[k], batch, now); err != nil {
				return err
			}
		}
		for _, k := range left {
			if _, ok := dests[k]; ok {
				continue
			}
			if err := Place(ctx, tx, table, sources[k], nil, batch, now); err != nil {
				return err
			}
		}
		return nil
	})
}
