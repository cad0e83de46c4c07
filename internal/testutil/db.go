// Package testutil provides an in-memory store and fixtures for package tests.
package testutil

import (
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/psds-microservice/task-service/internal/model"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var dbSeq atomic.Int64

// NewDB returns a fresh in-memory SQLite database with the full schema. It is
// closed when the test ends.
func NewDB(t testing.TB) *gorm.DB {
	t.Helper()
	dsn := fmt.Sprintf("file:taskdb%d?mode=memory&cache=shared&_busy_timeout=5000", dbSeq.Add(1))
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	// One connection keeps transactions from tripping over SQLite's table locks.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, db.AutoMigrate(model.All()...))
	return db
}

// Fixtures inserts rows directly, bypassing services.
type Fixtures struct {
	t  testing.TB
	db *gorm.DB
}

func NewFixtures(t testing.TB, db *gorm.DB) *Fixtures {
	return &Fixtures{t: t, db: db}
}

// User inserts a user of role; clients get company "Acme".
func (f *Fixtures) User(name string, role model.Role) *model.User {
	f.t.Helper()
	u := &model.User{
		Name:         name,
		Email:        fmt.Sprintf("%s-%d@example.com", name, dbSeq.Add(1)),
		PasswordHash: "x",
		Role:         role,
	}
	if role == model.RoleClient {
		company := "Acme"
		u.Company = &company
	}
	u.Normalize()
	require.NoError(f.t, f.db.Create(u).Error)
	return u
}

func (f *Fixtures) Department(name string) *model.Department {
	f.t.Helper()
	d := &model.Department{Name: name, Color: model.DefaultColor}
	require.NoError(f.t, f.db.Create(d).Error)
	return d
}

func (f *Fixtures) Category(name, color string) *model.Category {
	f.t.Helper()
	c := &model.Category{Name: name, Color: color}
	require.NoError(f.t, f.db.Create(c).Error)
	return c
}

// Task inserts a task created by creator. Ticket ids are unique but do not
// follow the generator.
func (f *Fixtures) Task(title string, creator *model.User, mutate ...func(*model.Task)) *model.Task {
	f.t.Helper()
	t := &model.Task{
		TicketID:  fmt.Sprintf("FIX%06d", dbSeq.Add(1)),
		Title:     title,
		Priority:  model.PriorityMedium,
		CreatorID: creator.ID,
		Tags:      []string{},
	}
	t.SetStatus(model.TaskStatusTodo, time.Now())
	for _, m := range mutate {
		m(t)
	}
	require.NoError(f.t, f.db.Create(t).Error)
	return t
}

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }
