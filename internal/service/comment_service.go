package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/task-service/internal/access"
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/kafka"
	"github.com/psds-microservice/task-service/internal/model"
	"gorm.io/gorm"
)

const maxCommentLength = 10000

type CommentService struct {
	db     *gorm.DB
	events kafka.TaskEventProducer
	now    func() time.Time
}

func NewCommentService(db *gorm.DB, events kafka.TaskEventProducer) *CommentService {
	if events == nil {
		events = kafka.NewProducer(nil, "")
	}
	return &CommentService{db: db, events: events, now: time.Now}
}

// List returns the comments of a task visible to actor, oldest first.
func (s *CommentService) List(ctx context.Context, actor *model.User, taskID uint64) ([]model.Comment, error) {
	task, err := loadTask(ctx, s.db, taskID)
	if err != nil {
		return nil, err
	}
	if !access.CanAccess(task, actor) {
		return nil, errs.Forbidden("you cannot view this task")
	}
	items := []model.Comment{}
	err = s.db.WithContext(ctx).Model(&model.Comment{}).
		Select("comments.*, users.name AS user_name").
		Joins("LEFT JOIN users ON users.id = comments.user_id").
		Where("comments.task_id = ?", taskID).
		Order("comments.created_at ASC").Order("comments.id ASC").
		Scan(&items).Error
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	return items, nil
}

// Add appends a comment and notifies the task's creator and assignee.
func (s *CommentService) Add(ctx context.Context, actor *model.User, taskID uint64, content string) (*model.Comment, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return nil, errs.Invalid("content", "is required")
	case len(content) > maxCommentLength:
		return nil, errs.Invalid("content", fmt.Sprintf("must be at most %d characters", maxCommentLength))
	}
	var c model.Comment
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		task, err := loadTask(ctx, tx, taskID)
		if err != nil {
			return err
		}
		if !access.CanAccess(task, actor) {
			return errs.Forbidden("you cannot comment on this task")
		}
		now := s.now()
		c = model.Comment{TaskID: taskID, UserID: actor.ID, Content: content, CreatedAt: now}
		if err := tx.WithContext(ctx).Create(&c).Error; err != nil {
			return fmt.Errorf("insert comment: %w", err)
		}
		msg := fmt.Sprintf("%s commented on %s: %s", actor.Name, task.TicketID, task.Title)
		creator := task.CreatorID
		n := newNotifier(actor, now)
		n.add(&creator, model.NotificationCommentAdded, "New comment", msg, task.ID)
		n.add(task.AssigneeID, model.NotificationCommentAdded, "New comment", msg, task.ID)
		return n.flush(tx.WithContext(ctx))
	})
	if err != nil {
		return nil, errs.FromDB(err, errs.ErrTaskNotFound)
	}
	name := actor.Name
	c.UserName = &name
	s.events.ProduceTaskEvent(ctx, kafka.EventCommentAdded, map[string]interface{}{
		"task_id":    c.TaskID,
		"comment_id": c.ID,
		"user_id":    c.UserID,
	})
	return &c, nil
}

// Delete removes a comment. Only its author or an admin may do so.
func (s *CommentService) Delete(ctx context.Context, actor *model.User, id uint64) error {
	var c model.Comment
	if err := s.db.WithContext(ctx).First(&c, id).Error; err != nil {
		return errs.FromDB(err, errs.ErrCommentNotFound)
	}
	if c.UserID != actor.ID && !actor.IsAdmin() {
		return errs.Forbidden("you can only delete your own comments")
	}
	if err := s.db.WithContext(ctx).Delete(&c).Error; err != nil {
		return fmt.Errorf("delete comment %d: %w", id, err)
	}
	return nil
}
