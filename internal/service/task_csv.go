package service

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/psds-microservice/task-service/internal/errs"
	"github.com/psds-microservice/task-service/internal/model"
	"github.com/psds-microservice/task-service/internal/query"
)

var exportHeader = []string{
	"ticket_id", "title", "description", "status", "priority",
	"assignee", "category", "due_date", "tags", "created_at", "completed_at",
}

// maxImportRows caps a single CSV upload.
const maxImportRows = 5000

// Export writes the tasks of view visible to actor as CSV.
func (s *TaskService) Export(ctx context.Context, actor *model.User, view query.View, f query.Filters, w io.Writer) (int, error) {
	tasks, err := s.List(ctx, actor, view, f)
	if err != nil {
		return 0, err
	}
	cw := csv.NewWriter(w)
	if err := cw.Write(exportHeader); err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	for _, t := range tasks {
		due, completed := "", ""
		if t.DueDate != nil {
			due = t.DueDate.Format(model.DateLayout)
		}
		if t.CompletedAt != nil {
			completed = t.CompletedAt.UTC().Format("2006-01-02 15:04:05")
		}
		if err := cw.Write([]string{
			t.TicketID, t.Title, t.Description, string(t.Status), string(t.Priority),
			deref(t.AssigneeName), deref(t.CategoryName), due, strings.Join(t.Tags, ";"),
			t.CreatedAt.UTC().Format("2006-01-02 15:04:05"), completed,
		}); err != nil {
			return 0, fmt.Errorf("export: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return 0, fmt.Errorf("export: %w", err)
	}
	return len(tasks), nil
}

// ImportRowError reports a rejected CSV row; Row counts from 1 at the header.
type ImportRowError struct {
	Row     int    `json:"row"`
	Message string `json:"message"`
}

type ImportResult struct {
	Created []string         `json:"created"`
	Errors  []ImportRowError `json:"errors"`
}

// Import creates one task per CSV row. Recognised columns are title
// (required), description, status, priority, assignee_email, category,
// due_date (YYYY-MM-DD) and tags (separated by ";"). Rows are independent: a
// bad row is reported and skipped.
func (s *TaskService) Import(ctx context.Context, actor *model.User, r io.Reader) (*ImportResult, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errs.Validation("csv file is empty")
		}
		return nil, errs.Validation("invalid csv: " + err.Error())
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\uFEFF")))] = i
	}
	if _, ok := cols["title"]; !ok {
		return nil, errs.Validation("csv header must contain a title column")
	}

	res := &ImportResult{Created: []string{}, Errors: []ImportRowError{}}
	lookups := newImportLookups(s)
	for row := 2; ; row++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			res.Errors = append(res.Errors, ImportRowError{Row: row, Message: err.Error()})
			continue
		}
		if row-1 > maxImportRows {
			return nil, errs.Validation(fmt.Sprintf("csv must not exceed %d rows", maxImportRows))
		}
		get := func(name string) string {
			if i, ok := cols[name]; ok && i < len(rec) {
				return strings.TrimSpace(rec[i])
			}
			return ""
		}
		in, err := lookups.input(ctx, get)
		if err == nil {
			var created *model.TaskView
			created, err = s.Create(ctx, actor, in)
			if err == nil {
				res.Created = append(res.Created, created.TicketID)
				continue
			}
		}
		if errs.KindOf(err) == errs.KindServer {
			return nil, err
		}
		res.Errors = append(res.Errors, ImportRowError{Row: row, Message: describe(err)})
	}
	return res, nil
}

type importLookups struct {
	s          *TaskService
	users      map[string]*uint64
	categories map[string]*uint64
}

func newImportLookups(s *TaskService) *importLookups {
	return &importLookups{s: s, users: map[string]*uint64{}, categories: map[string]*uint64{}}
}

func (l *importLookups) input(ctx context.Context, get func(string) string) (CreateTaskInput, error) {
	in := CreateTaskInput{
		Title:       get("title"),
		Description: get("description"),
		Status:      model.TaskStatus(strings.ToLower(get("status"))),
		Priority:    model.Priority(strings.ToLower(get("priority"))),
	}
	if v := get("due_date"); v != "" {
		d, err := model.ParseDate(v)
		if err != nil {
			return in, errs.Invalid("due_date", err.Error())
		}
		in.DueDate = &d
	}
	if v := get("tags"); v != "" {
		in.Tags = strings.Split(v, ";")
	}
	if v := strings.ToLower(get("assignee_email")); v != "" {
		id, err := l.user(ctx, v)
		if err != nil {
			return in, err
		}
		in.AssigneeID = id
	}
	if v := get("category"); v != "" {
		id, err := l.category(ctx, v)
		if err != nil {
			return in, err
		}
		in.CategoryID = id
	}
	return in, nil
}

func (l *importLookups) user(ctx context.Context, email string) (*uint64, error) {
	if id, ok := l.users[email]; ok {
		return id, nil
	}
	var u model.User
	err := l.s.db.WithContext(ctx).Where("LOWER(email) = ?", email).First(&u).Error
	if isNotFound(err) {
		return nil, errs.Invalid("assignee_email", "no active user with email "+email)
	}
	if err != nil {
		return nil, fmt.Errorf("import: find user: %w", err)
	}
	l.users[email] = &u.ID
	return &u.ID, nil
}

func (l *importLookups) category(ctx context.Context, name string) (*uint64, error) {
	key := strings.ToLower(name)
	if id, ok := l.categories[key]; ok {
		return id, nil
	}
	var c model.Category
	db := l.s.db.WithContext(ctx)
	var err error
	if id, convErr := strconv.ParseUint(name, 10, 64); convErr == nil {
		err = db.First(&c, id).Error
	} else {
		err = db.Where("LOWER(name) = ?", key).Order("id ASC").First(&c).Error
	}
	if isNotFound(err) {
		return nil, errs.Invalid("category", "unknown category "+name)
	}
	if err != nil {
		return nil, fmt.Errorf("import: find category: %w", err)
	}
	l.categories[key] = &c.ID
	return &c.ID, nil
}

// describe flattens a domain error, field details included, into one line.
func describe(err error) string {
	var e *errs.Error
	if !errors.As(err, &e) || len(e.Fields) == 0 {
		return err.Error()
	}
	parts := make([]string, 0, len(e.Fields))
	for f, m := range e.Fields {
		parts = append(parts, f+" "+m)
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
