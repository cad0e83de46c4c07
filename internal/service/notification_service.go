package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/psds-microservice/task-service/internal/access"
	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
	"gorm.io/gorm"
)

type NotificationService struct {
	db  *gorm.DB
	now func() time.Time
}

func NewNotificationService(db *gorm.DB) *NotificationService {
	return &NotificationService{db: db, now: time.Now}
}

// List returns the user's notifications, newest first.
func (s *NotificationService) List(ctx context.Context, actor *model.User, unreadOnly bool, limit int) ([]model.Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	tx := s.db.WithContext(ctx).Where("user_id = ?", actor.ID)
	if unreadOnly {
		tx = tx.Where("is_read = ?", false)
	}
	items := []model.Notification{}
	if err := tx.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&items).Error; err != nil {
		return nil, fmt.Errorf("list notifications: %w", err)
	}
	return items, nil
}

func (s *NotificationService) UnreadCount(ctx context.Context, actor *model.User) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", actor.ID, false).Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("count notifications: %w", err)
	}
	return n, nil
}

// MarkRead marks one of the user's notifications as read.
func (s *NotificationService) MarkRead(ctx context.Context, actor *model.User, id uint64) error {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("id = ? AND user_id = ?", id, actor.ID).Update("is_read", true)
	if res.Error != nil {
		return fmt.Errorf("mark notification %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotificationNotFound
	}
	return nil
}

func (s *NotificationService) MarkAllRead(ctx context.Context, actor *model.User) (int64, error) {
	res := s.db.WithContext(ctx).Model(&model.Notification{}).
		Where("user_id = ? AND is_read = ?", actor.ID, false).Update("is_read", true)
	if res.Error != nil {
		return 0, fmt.Errorf("mark all notifications: %w", res.Error)
	}
	return res.RowsAffected, nil
}

// Delete removes one of the user's notifications.
func (s *NotificationService) Delete(ctx context.Context, actor *model.User, id uint64) error {
	res := s.db.WithContext(ctx).Where("id = ? AND user_id = ?", id, actor.ID).Delete(&model.Notification{})
	if res.Error != nil {
		return fmt.Errorf("delete notification %d: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return errs.ErrNotificationNotFound
	}
	return nil
}

// Announce sends an announcement to every active user and returns how many
// notifications were created.
func (s *NotificationService) Announce(ctx context.Context, actor *model.User, title, message string) (int, error) {
	if err := access.RequireAdmin(actor); err != nil {
		return 0, err
	}
	title = strings.TrimSpace(title)
	if title == "" {
		return 0, errs.Invalid("title", "is required")
	}
	var ids []uint64
	if err := s.db.WithContext(ctx).Model(&model.User{}).Pluck("id", &ids).Error; err != nil {
		return 0, fmt.Errorf("announce: list users: %w", err)
	}
	if len(ids) == 0 {
		return 0, nil
	}
	actorID := actor.ID
	items := make([]model.Notification, len(ids))
	for i, id := range ids {
		items[i] = model.Notification{
			UserID:        id,
			Type:          model.NotificationAnnouncement,
			Title:         title,
			Message:       message,
			RelatedUserID: &actorID,
			CreatedAt:     s.now(),
		}
	}
	if err := s.db.WithContext(ctx).CreateInBatches(&items, 100).Error; err != nil {
		return 0, fmt.Errorf("announce: %w", err)
	}
	return len(items), nil
}

// notifier collects notifications raised during a mutation and writes them
// with the mutation's transaction. The actor is never notified of their own
// actions and a user gets at most one notification per event.
type notifier struct {
	actor   *model.User
	now     time.Time
	pending []model.Notification
	seen    map[uint64]bool
}

func newNotifier(actor *model.User, now time.Time) *notifier {
	return &notifier{actor: actor, now: now, seen: map[uint64]bool{}}
}

func (n *notifier) add(userID *uint64, typ model.NotificationType, title, message string, taskID uint64) {
	if userID == nil || *userID == n.actor.ID || n.seen[*userID] {
		return
	}
	n.seen[*userID] = true
	actorID := n.actor.ID
	tid := taskID
	n.pending = append(n.pending, model.Notification{
		UserID:        *userID,
		Type:          typ,
		Title:         title,
		Message:       message,
		TaskID:        &tid,
		RelatedUserID: &actorID,
		CreatedAt:     n.now,
	})
}

func (n *notifier) flush(tx *gorm.DB) error {
	if len(n.pending) == 0 {
		return nil
	}
	if err := tx.Create(&n.pending).Error; err != nil {
		return fmt.Errorf("create notifications: %w", err)
	}
	n.pending = nil
	return nil
}

func isNotFound(err error) bool {
	return errors.Is(err, gorm.ErrRecordNotFound)
}
