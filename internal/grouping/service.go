package grouping

import (
	"context"
	"fmt"

	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/query"
	"gorm.io/gorm"
)

// Service loads bucket metadata and builds boards.
type Service struct {
	db    *gorm.DB
	tasks *query.Engine
}

func NewService(db *gorm.DB, tasks *query.Engine) *Service {
	return &Service{db: db, tasks: tasks}
}

// Board runs f and projects the result by mode. Assignee and department boards
// only consider internal assignees, client boards only client assignees.
// Assignee and client columns exist for active users only, so tasks held by a
// deactivated user are left out of the query for those boards.
func (s *Service) Board(ctx context.Context, mode Mode, f query.Filters) (*Board, error) {
	switch mode {
	case ByAssignee:
		f.AssigneeType, f.ActiveAssignee = model.UserTypeInternal, true
	case ByDepartment:
		f.AssigneeType = model.UserTypeInternal
	case ByClient:
		f.AssigneeType, f.ActiveAssignee = model.UserTypeClient, true
	}
	tasks, err := s.tasks.Tasks(ctx, f)
	if err != nil {
		return nil, err
	}
	buckets, err := s.Buckets(ctx, mode)
	if err != nil {
		return nil, err
	}
	return Project(mode, buckets, tasks), nil
}

// Buckets returns every column of mode, independent of any task filter.
func (s *Service) Buckets(ctx context.Context, mode Mode) ([]Bucket, error) {
	db := s.db.WithContext(ctx)
	switch mode {
	case ByCategory:
		var cats []model.Category
		if err := db.Order("display_order ASC").Order("id ASC").Find(&cats).Error; err != nil {
			return nil, fmt.Errorf("grouping: load categories: %w", err)
		}
		out := make([]Bucket, len(cats))
		for i, c := range cats {
			out[i] = Bucket{Key: c.ID, Name: c.Name, Color: c.Color, DisplayOrder: c.DisplayOrder}
		}
		return out, nil
	case ByDepartment:
		var deps []model.Department
		if err := db.Order("display_order ASC").Order("id ASC").Find(&deps).Error; err != nil {
			return nil, fmt.Errorf("grouping: load departments: %w", err)
		}
		out := make([]Bucket, len(deps))
		for i, d := range deps {
			out[i] = Bucket{Key: d.ID, Name: d.Name, Color: d.Color, DisplayOrder: d.DisplayOrder}
		}
		return out, nil
	case ByAssignee:
		return s.userBuckets(ctx, model.UserTypeInternal)
	case ByClient:
		return s.userBuckets(ctx, model.UserTypeClient)
	}
	return nil, fmt.Errorf("grouping: unknown mode %q", mode)
}

func (s *Service) userBuckets(ctx context.Context, typ model.UserType) ([]Bucket, error) {
	var users []model.User
	if err := s.db.WithContext(ctx).Where("type = ?", string(typ)).
		Order("display_order ASC").Order("name ASC").Order("id ASC").
		Find(&users).Error; err != nil {
		return nil, fmt.Errorf("grouping: load %s users: %w", typ, err)
	}
	counts, err := s.OpenCounts(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Bucket, len(users))
	for i, u := range users {
		n := counts[u.ID]
		out[i] = Bucket{
			Key:            u.ID,
			Name:           u.Name,
			Company:        u.Company,
			DepartmentID:   u.DepartmentID,
			DisplayOrder:   u.DisplayOrder,
			TotalTaskCount: &n,
		}
	}
	return out, nil
}

// OpenCounts returns, per assignee, the number of live tasks that are neither
// done nor cancelled.
func (s *Service) OpenCounts(ctx context.Context) (map[uint64]int64, error) {
	var rows []struct {
		AssigneeID uint64
		N          int64
	}
	err := s.db.WithContext(ctx).Model(&model.Task{}).
		Select("assignee_id, COUNT(*) AS n").
		Where("assignee_id IS NOT NULL").
		Where("status NOT IN ?", []string{string(model.TaskStatusDone), string(model.TaskStatusCancelled)}).
		Group("assignee_id").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("grouping: count open tasks: %w", err)
	}
	out := make(map[uint64]int64, len(rows))
	for _, r := range rows {
		out[r.AssigneeID] = r.N
	}
	return out, nil
}
