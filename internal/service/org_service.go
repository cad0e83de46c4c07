package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/task-service/internal/access"
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/ordering"
	"gorm.io/gorm"
)

// OrgInput creates a category or department. An empty Color uses the default.
type OrgInput struct {
	Name  string
	Color string
}

type OrgPatch struct {
	Name  *string
	Color *string
}

// ReorderItem is one {id, sort_order} row of a column reorder.
type ReorderItem struct {
	ID        uint64
	SortOrder int
}

func validateOrg(in OrgInput) (OrgInput, error) {
	fields := map[string]string{}
	in.Name = strings.TrimSpace(in.Name)
	switch {
	case in.Name == "":
		fields["name"] = "is required"
	case len(in.Name) > 255:
		fields["name"] = "must be at most 255 characters"
	}
	in.Color = strings.TrimSpace(in.Color)
	if in.Color == "" {
		in.Color = model.DefaultColor
	} else if !model.ValidColor(in.Color) {
		fields["color"] = "must be a hex color like #3B82F6"
	}
	return in, errs.FieldErrors(fields)
}

// patchOrg validates p and returns the column changes.
func patchOrg(p OrgPatch) (map[string]any, error) {
	changes := map[string]any{}
	fields := map[string]string{}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		switch {
		case name == "":
			fields["name"] = "must not be empty"
		case len(name) > 255:
			fields["name"] = "must be at most 255 characters"
		default:
			changes["name"] = name
		}
	}
	if p.Color != nil {
		if !model.ValidColor(*p.Color) {
			fields["color"] = "must be a hex color like #3B82F6"
		} else {
			changes["color"] = *p.Color
		}
	}
	if err := errs.FieldErrors(fields); err != nil {
		return nil, err
	}
	if len(changes) == 0 {
		return nil, errs.Validation("no changes provided")
	}
	return changes, nil
}

func reorderBatch(field string, items []ReorderItem) ([]ordering.Item, error) {
	if len(items) == 0 {
		return nil, errs.Invalid(field, "must not be empty")
	}
	batch := make([]ordering.Item, len(items))
	for i, it := range items {
		if it.ID == 0 {
			return nil, errs.Invalid(fmt.Sprintf("%s[%d].id", field, i), "is required")
		}
		batch[i] = ordering.Item{ID: it.ID, SortOrder: it.SortOrder}
	}
	return batch, nil
}

type CategoryService struct {
	db    *gorm.DB
	order *ordering.Engine
}

func NewCategoryService(db *gorm.DB) *CategoryService {
	return &CategoryService{db: db, order: ordering.NewEngine(db)}
}

func (s *CategoryService) List(ctx context.Context) ([]model.Category, error) {
	items := []model.Category{}
	if err := s.db.WithContext(ctx).Order("display_order ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return items, nil
}

func (s *CategoryService) Get(ctx context.Context, id uint64) (*model.Category, error) {
	var c model.Category
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return nil, errs.FromDB(err, errs.ErrCategoryNotFound)
	}
	return &c, nil
}

// Create appends a category after the existing ones.
func (s *CategoryService) Create(ctx context.Context, actor *model.User, in OrgInput) (*model.Category, error) {
	if err := access.RequireInternal(actor); err != nil {
		return nil, err
	}
	in, err := validateOrg(in)
	if err != nil {
		return nil, err
	}
	c := model.Category{Name: in.Name, Color: in.Color}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if c.DisplayOrder, err = ordering.Next(ctx, tx, ordering.Categories, ordering.All); err != nil {
			return err
		}
		return tx.WithContext(ctx).Create(&c).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create category: %w", err)
	}
	return &c, nil
}

func (s *CategoryService) Update(ctx context.Context, actor *model.User, id uint64, p OrgPatch) (*model.Category, error) {
	if err := access.RequireInternal(actor); err != nil {
		return nil, err
	}
	changes, err := patchOrg(p)
	if err != nil {
		return nil, err
	}
	c, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(c).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("update category %d: %w", id, err)
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a category. Its tasks keep their category_id and show
// up in the uncategorized column from then on.
func (s *CategoryService) Delete(ctx context.Context, actor *model.User, id uint64) error {
	if err := access.RequireAdmin(actor); err != nil {
		return err
	}
	res := s.db.WithContext(ctx).Delete(&model.Category{}, id)
	if res.Error != nil {
		return fmt.Errorf("delete category %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.ErrCategoryNotFound
	}
	return nil
}

func (s *CategoryService) Reorder(ctx context.Context, actor *model.User, items []ReorderItem) error {
	if err := access.RequireInternal(actor); err != nil {
		return err
	}
	batch, err := reorderBatch("categories", items)
	if err != nil {
		return err
	}
	return s.order.Reorder(ctx, ordering.Categories, batch, ordering.Within(ordering.All))
}

type DepartmentService struct {
	db    *gorm.DB
	order *ordering.Engine
	now   func() time.Time
}

func NewDepartmentService(db *gorm.DB) *DepartmentService {
	return &DepartmentService{db: db, order: ordering.NewEngine(db), now: time.Now}
}

func (s *DepartmentService) List(ctx context.Context) ([]model.Department, error) {
	items := []model.Department{}
	if err := s.db.WithContext(ctx).Order("display_order ASC").Order("id ASC").Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list departments: %w", err)
	}
	return items, nil
}

func (s *DepartmentService) Get(ctx context.Context, id uint64) (*model.Department, error) {
	var d model.Department
	if err := s.db.WithContext(ctx).First(&d, id).Error; err != nil {
		return nil, errs.FromDB(err, errs.ErrDepartmentNotFound)
	}
	return &d, nil
}

func (s *DepartmentService) Create(ctx context.Context, actor *model.User, in OrgInput) (*model.Department, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, err
	}
	in, err := validateOrg(in)
	if err != nil {
		return nil, err
	}
	d := model.Department{Name: in.Name, Color: in.Color}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if d.DisplayOrder, err = ordering.Next(ctx, tx, ordering.Departments, ordering.All); err != nil {
			return err
		}
		return tx.WithContext(ctx).Create(&d).Error
	})
	if err != nil {
		return nil, fmt.Errorf("create department: %w", err)
	}
	return &d, nil
}

func (s *DepartmentService) Update(ctx context.Context, actor *model.User, id uint64, p OrgPatch) (*model.Department, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return nil, err
	}
	changes, err := patchOrg(p)
	if err != nil {
		return nil, err
	}
	d, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Model(d).Updates(changes).Error; err != nil {
		return nil, fmt.Errorf("update department %d: %w", id, err)
	}
	return s.Get(ctx, id)
}

// Delete soft-deletes a department and detaches its members. Users are kept.
func (s *DepartmentService) Delete(ctx context.Context, actor *model.User, id uint64) error {
	if err := access.RequireAdmin(actor); err != nil {
		return err
	}
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Delete(&model.Department{}, id)
		if res.Error != nil {
			return fmt.Errorf("delete department %d: %w", id, res.Error)
		}
		if res.RowsAffected == 0 {
			return errs.ErrDepartmentNotFound
		}
		// Deactivated members are detached too so a restore cannot revive the link.
		err := tx.Unscoped().Model(&model.User{}).Where("department_id = ?", id).
			Updates(map[string]any{"department_id": nil, "updated_at": s.now()}).Error
		if err != nil {
			return fmt.Errorf("detach department %d users: %w", id, err)
		}
		return nil
	})
}

func (s *DepartmentService) Reorder(ctx context.Context, actor *model.User, items []ReorderItem) error {
	if err := access.RequireAdmin(actor); err != nil {
		return err
	}
	batch, err := reorderBatch("departments", items)
	if err != nil {
		return err
	}
	return s.order.Reorder(ctx, ordering.Departments, batch, ordering.Within(ordering.All))
}
