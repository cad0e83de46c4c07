package ticket

import (
	"context"
	"testing"
	"time"

	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func at(s string) func() time.Time {
	ts, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return func() time.Time { return ts }
}

func next(t *testing.T, db *gorm.DB, g *Generator) string {
	t.Helper()
	var id string
	err := db.Transaction(func(tx *gorm.DB) error {
		var err error
		id, err = g.Next(context.Background(), tx)
		return err
	})
	require.NoError(t, err)
	return id
}

func TestFormat(t *testing.T) {
	assert.Equal(t, "GLG25010007", Format("GLG2501", 7))
	assert.Equal(t, "GLG250112345", Format("GLG2501", 12345))
}

func TestPeriodFollowsLocation(t *testing.T) {
	tokyo := time.FixedZone("UTC+9", 9*60*60)
	ts := at("2025-01-31T23:30:00Z")()
	assert.Equal(t, "GLG2501", NewGenerator("", nil).Period(ts))
	assert.Equal(t, "GLG2502", NewGenerator("", tokyo).Period(ts))
	assert.Equal(t, "ACME2501", NewGenerator("ACME", time.UTC).Period(ts))
}

func TestNextIncrementsWithinMonth(t *testing.T) {
	db := testutil.NewDB(t)
	g := NewGenerator("GLG", time.UTC).WithClock(at("2025-01-15T10:00:00Z"))

	assert.Equal(t, "GLG25010001", next(t, db, g))
	assert.Equal(t, "GLG25010002", next(t, db, g))
	assert.Equal(t, "GLG25010003", next(t, db, g))

	g.WithClock(at("2025-02-01T00:00:00Z"))
	assert.Equal(t, "GLG25020001", next(t, db, g))
}

func TestNextContinuesAfterExistingTickets(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	u := fx.User("sam", model.RoleStaff)
	fx.Task("old", u, func(tk *model.Task) { tk.TicketID = "GLG25010007" })
	gone := fx.Task("deleted", u, func(tk *model.Task) { tk.TicketID = "GLG25010009" })
	require.NoError(t, db.Delete(gone).Error)
	fx.Task("other month", u, func(tk *model.Task) { tk.TicketID = "GLG24120050" })

	g := NewGenerator("GLG", time.UTC).WithClock(at("2025-01-20T08:00:00Z"))
	assert.Equal(t, "GLG25010010", next(t, db, g))
	assert.Equal(t, "GLG25010011", next(t, db, g))
}

func TestNextRollsBackWithTransaction(t *testing.T) {
	db := testutil.NewDB(t)
	g := NewGenerator("GLG", time.UTC).WithClock(at("2025-03-01T00:00:00Z"))
	assert.Equal(t, "GLG25030001", next(t, db, g))

	err := db.Transaction(func(tx *gorm.DB) error {
		_, err := g.Next(context.Background(), tx)
		require.NoError(t, err)
		return gorm.ErrInvalidTransaction
	})
	require.Error(t, err)
	assert.Equal(t, "GLG25030002", next(t, db, g))
}

func TestMaxSequenceSkipsForeignSuffixes(t *testing.T) {
	db := testutil.NewDB(t)
	fx := testutil.NewFixtures(t, db)
	u := fx.User("sam", model.RoleStaff)
	fx.Task("a", u, func(tk *model.Task) { tk.TicketID = "GLG2501abc" })
	fx.Task("b", u, func(tk *model.Task) { tk.TicketID = "GLG25010004" })

	n, err := MaxSequence(context.Background(), db, "GLG2501")
	require.NoError(t, err)
	assert.Equal(t, 4, n)
}
