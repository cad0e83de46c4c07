package service

import (
	"context"
	"testing"

	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNotificationInbox(t *testing.T) {
	e := newEnv(t)
	notes := NewNotificationService(e.db)
	ctx := context.Background()
	for _, title := range []string{"one", "two", "three"} {
		require.NoError(t, e.db.Create(&model.Notification{UserID: e.staff.ID, Type: model.NotificationTaskUpdated, Title: title}).Error)
	}
	foreign := model.Notification{UserID: e.other.ID, Type: model.NotificationTaskUpdated, Title: "not yours"}
	require.NoError(t, e.db.Create(&foreign).Error)

	list, err := notes.List(ctx, e.staff, false, 0)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "three", list[0].Title, "newest first")

	n, err := notes.UnreadCount(ctx, e.staff)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)

	require.NoError(t, notes.MarkRead(ctx, e.staff, list[0].ID))
	assert.ErrorIs(t, notes.MarkRead(ctx, e.staff, foreign.ID), errs.ErrNotificationNotFound)
	unread, err := notes.List(ctx, e.staff, true, 10)
	require.NoError(t, err)
	assert.Len(t, unread, 2)

	changed, err := notes.MarkAllRead(ctx, e.staff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), changed)
	n, err = notes.UnreadCount(ctx, e.staff)
	require.NoError(t, err)
	assert.Zero(t, n)

	assert.ErrorIs(t, notes.Delete(ctx, e.staff, foreign.ID), errs.ErrNotificationNotFound)
	require.NoError(t, notes.Delete(ctx, e.staff, list[0].ID))
}

func TestAnnounce(t *testing.T) {
	e := newEnv(t)
	notes := NewNotificationService(e.db)
	ctx := context.Background()
	require.NoError(t, NewUserService(e.db).Deactivate(ctx, e.admin, e.other.ID))

	_, err := notes.Announce(ctx, e.staff, "hello", "")
	assert.Equal(t, errs.KindForbidden, errs.KindOf(err))
	_, err = notes.Announce(ctx, e.admin, " ", "")
	assert.Equal(t, errs.KindValidation, errs.KindOf(err))

	sent, err := notes.Announce(ctx, e.admin, "Maintenance", "Friday 18:00")
	require.NoError(t, err)
	assert.Equal(t, 3, sent, "deactivated users are skipped")
	got := e.notifications(t, e.client.ID)
	require.Len(t, got, 1)
	assert.Equal(t, model.NotificationAnnouncement, got[0].Type)
	assert.Empty(t, e.notifications(t, e.other.ID))
}
