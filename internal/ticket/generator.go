// Package ticket hands out human-readable task codes of the form
// PREFIX + YY + MM + sequence, e.g. GLG25010007.
package ticket

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/psds-microservice/task-service/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const DefaultPrefix = "GLG"

type Generator struct {
	prefix string
	loc    *time.Location
	now    func() time.Time
}

// NewGenerator returns a generator for prefix whose month boundaries follow loc.
// A nil loc means UTC.
func NewGenerator(prefix string, loc *time.Location) *Generator {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Generator{prefix: prefix, loc: loc, now: time.Now}
}

// WithClock replaces the time source.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Period returns the prefix shared by every ticket of t's month.
func (g *Generator) Period(t time.Time) string {
	return g.prefix + t.In(g.loc).Format("0601")
}

// Format builds the ticket code for sequence number seq within period. Numbers
// past 9999 simply grow wider.
func Format(period string, seq int) string {
	return fmt.Sprintf("%s%04d", period, seq)
}

// Next reserves the next ticket code of the current month. It must run inside
// the transaction that inserts the task: the month's counter row is locked
// until that transaction ends, so concurrent creators are serialized.
func (g *Generator) Next(ctx context.Context, tx *gorm.DB) (string, error) {
	period := g.Period(g.now())
	db := tx.WithContext(ctx)

	if err := db.Clauses(clause.OnConflict{DoNothing: true}).
		Create(&model.TicketSequence{Period: period}).Error; err != nil {
		return "", fmt.Errorf("ticket: init sequence %s: %w", period, err)
	}
	var seq model.TicketSequence
	if err := db.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("period = ?", period).First(&seq).Error; err != nil {
		return "", fmt.Errorf("ticket: lock sequence %s: %w", period, err)
	}

	last := seq.LastValue
	if last == 0 {
		// First use of the counter: continue after tickets issued before it existed.
		existing, err := MaxSequence(ctx, db, period)
		if err != nil {
			return "", err
		}
		last = existing
	}
	next := last + 1
	if err := db.Model(&model.TicketSequence{}).Where("period = ?", period).
		Update("last_value", next).Error; err != nil {
		return "", fmt.Errorf("ticket: bump sequence %s: %w", period, err)
	}
	return Format(period, next), nil
}

// MaxSequence returns the highest numeric suffix among ticket ids starting with
// period, soft-deleted tasks included, or 0 when there are none.
func MaxSequence(ctx context.Context, db *gorm.DB, period string) (int, error) {
	var ids []string
	if err := db.WithContext(ctx).Unscoped().Model(&model.Task{}).
		Where("ticket_id LIKE ?", period+"%").Pluck("ticket_id", &ids).Error; err != nil {
		return 0, fmt.Errorf("ticket: scan existing %s: %w", period, err)
	}
	highest := 0
	for _, id := range ids {
		n, err := strconv.Atoi(strings.TrimPrefix(id, period))
		if err != nil {
			continue
		}
		if n > highest {
			highest = n
		}
	}
	return highest, nil
}
