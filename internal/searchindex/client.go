package searchindex

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/psds-microservice/task-service/internal/model"
)

// Indexer pushes tasks to an external search service.
type Indexer interface {
	IndexTaskAsync(t *model.Task)
	RemoveTaskAsync(id uint64)
}

// Client sends tasks to search-service for indexing (best-effort, never blocks the API).
type Client struct {
	baseURL    string
	httpClient *http.Client
}

// NewClient returns a client. With an empty baseURL every call is a no-op.
func NewClient(baseURL string) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

// IndexTaskPayload is the body of POST /search/index/task.
type IndexTaskPayload struct {
	TaskID      int64    `json:"task_id"`
	TicketID    string   `json:"ticket_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Status      string   `json:"status"`
	Priority    string   `json:"priority"`
	CreatorID   int64    `json:"creator_id"`
	AssigneeID  *int64   `json:"assignee_id,omitempty"`
	CategoryID  *int64   `json:"category_id,omitempty"`
	Tags        []string `json:"tags"`
}

func payloadFor(t *model.Task) IndexTaskPayload {
	p := IndexTaskPayload{
		TaskID:      int64(t.ID),
		TicketID:    t.TicketID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Priority:    string(t.Priority),
		CreatorID:   int64(t.CreatorID),
		Tags:        []string(t.Tags),
	}
	if t.AssigneeID != nil {
		v := int64(*t.AssigneeID)
		p.AssigneeID = &v
	}
	if t.CategoryID != nil {
		v := int64(*t.CategoryID)
		p.CategoryID = &v
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	return p
}

// IndexTask sends one task to search-service. Call it from a goroutine after writes.
func (c *Client) IndexTask(ctx context.Context, t *model.Task) error {
	if c.baseURL == "" {
		return nil
	}
	body, err := json.Marshal(payloadFor(t))
	if err != nil {
		return fmt.Errorf("searchindex: marshal: %w", err)
	}
	return c.send(ctx, http.MethodPost, c.baseURL+"/search/index/task", body)
}

// RemoveTask drops a task from the index.
func (c *Client) RemoveTask(ctx context.Context, id uint64) error {
	if c.baseURL == "" {
		return nil
	}
	return c.send(ctx, http.MethodDelete, fmt.Sprintf("%s/search/index/task/%d", c.baseURL, id), nil)
}

func (c *Client) send(ctx context.Context, method, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("searchindex: new request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("searchindex: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("searchindex: %s %s: status %d", method, url, resp.StatusCode)
	}
	return nil
}

// IndexTaskAsync runs IndexTask in its own goroutine.
func (c *Client) IndexTaskAsync(t *model.Task) {
	if c.baseURL == "" {
		return
	}
	snapshot := *t
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.IndexTask(ctx, &snapshot); err != nil {
			log.Printf("%v", err)
		}
	}()
}

// RemoveTaskAsync runs RemoveTask in its own goroutine.
func (c *Client) RemoveTaskAsync(id uint64) {
	if c.baseURL == "" {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := c.RemoveTask(ctx, id); err != nil {
			log.Printf("%v", err)
		}
	}()
}
