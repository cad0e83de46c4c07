package model

import (
	"regexp"
	"time"

	"gorm.io/gorm"
)

var hexColor = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)

// ValidColor reports whether c is a #RRGGBB color.
func ValidColor(c string) bool { return hexColor.MatchString(c) }

const DefaultColor = "#6B7280"

type Category struct {
	ID           uint64 `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	Color        string `gorm:"type:varchar(7);not null" json:"color"`
	DisplayOrder int    `gorm:"not null;default:0" json:"display_order"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

type Department struct {
	ID           uint64 `gorm:"primaryKey" json:"id"`
	Name         string `gorm:"type:varchar(255);not null" json:"name"`
	Color        string `gorm:"type:varchar(7);not null" json:"color"`
	DisplayOrder int    `gorm:"not null;default:0" json:"display_order"`

	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// Comment is append-only.
type Comment struct {
	ID        uint64    `gorm:"primaryKey" json:"id"`
	TaskID    uint64    `gorm:"index;not null" json:"task_id"`
	UserID    uint64    `gorm:"index;not null" json:"user_id"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	CreatedAt time.Time `json:"created_at"`

	UserName *string `gorm:"->;-:migration" json:"user_name,omitempty"`
}

type NotificationType string

const (
	NotificationTaskAssigned  NotificationType = "task_assigned"
	NotificationTaskCompleted NotificationType = "task_completed"
	NotificationCommentAdded  NotificationType = "comment_added"
	NotificationAnnouncement  NotificationType = "announcement"
	NotificationTaskUpdated   NotificationType = "task_updated"
)

type Notification struct {
	ID            uint64           `gorm:"primaryKey" json:"id"`
	UserID        uint64           `gorm:"index;not null" json:"user_id"`
	Type          NotificationType `gorm:"type:varchar(32);not null" json:"type"`
	Title         string           `gorm:"type:varchar(255);not null" json:"title"`
	Message       string           `gorm:"type:text" json:"message"`
	TaskID        *uint64          `gorm:"index" json:"task_id"`
	RelatedUserID *uint64          `json:"related_user_id"`
	IsRead        bool             `gorm:"not null;default:false" json:"is_read"`
	CreatedAt     time.Time        `json:"created_at"`
}

// TicketSequence holds the last ticket number handed out for a period
// (prefix + YYMM).
type TicketSequence struct {
	Period    string `gorm:"type:varchar(32);primaryKey"`
	LastValue int    `gorm:"not null;default:0"`
}

// All lists every persisted model, for schema bootstrapping in tests.
func All() []any {
	return []any{
		&User{}, &Category{}, &Department{}, &Task{}, &Comment{}, &Notification{}, &TicketSequence{},
	}
}
