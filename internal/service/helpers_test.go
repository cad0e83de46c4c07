package service

import (
	"testing"
	"time"

	"github.com/psds-microservice/task-service/internal/kafka"
	"github.com/psds-microservice/task-service/internal/kafka/mock_kafka"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/testutil"
	"github.com/psds-microservice/task-service/internal/ticket"
	"go.uber.org/mock/gomock"
	"gorm.io/gorm"
)

type env struct {
	db     *gorm.DB
	fx     *testutil.Fixtures
	events *mock_kafka.MockTaskEventProducer
	tasks  *TaskService
	admin  *model.User
	staff  *model.User
	other  *model.User
	client *model.User
}

// newEnv builds a task service over a fresh store. Events are accepted
// silently unless a test sets its own expectations first.
func newEnv(t *testing.T) *env {
	t.Helper()
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	ctrl := gomock.NewController(t)
	events := mock_kafka.NewMockTaskEventProducer(ctrl)
	return &env{
		db:     db,
		fx:     fx,
		events: events,
		tasks:  NewTaskService(db, ticket.NewGenerator("GLG", time.UTC), events, nil),
		admin:  fx.User("admin", model.RoleAdmin),
		staff:  fx.User("staff", model.RoleStaff),
		other:  fx.User("other", model.RoleStaff),
		client: fx.User("client", model.RoleClient),
	}
}

func (e *env) anyEvents() {
	e.events.EXPECT().ProduceTaskEvent(gomock.Any(), gomock.Any(), gomock.Any()).AnyTimes()
}

func (e *env) reload(t *testing.T, id uint64) model.Task {
	t.Helper()
	var got model.Task
	if err := e.db.Unscoped().First(&got, id).Error; err != nil {
		t.Fatalf("reload task %d: %v", id, err)
	}
	return got
}

func (e *env) notifications(t *testing.T, userID uint64) []model.Notification {
	t.Helper()
	var out []model.Notification
	if err := e.db.Where("user_id = ?", userID).Order("id ASC").Find(&out).Error; err != nil {
		t.Fatalf("load notifications: %v", err)
	}
	return out
}

var _ kafka.TaskEventProducer = (*mock_kafka.MockTaskEventProducer)(nil)
