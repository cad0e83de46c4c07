package kafka

import (
	"context"
	"encoding/json"
	"log"
	"strings"
	"time"

	"github.com/psds-microservice/task-service/internal/model"
	"github.com/segmentio/kafka-go"
)

// Event names published on the task topic.
const (
	EventTaskCreated   = "task.created"
	EventTaskUpdated   = "task.updated"
	EventTaskCompleted = "task.completed"
	EventTaskDeleted   = "task.deleted"
	EventTaskReordered = "task.reordered"
	EventCommentAdded  = "comment.added"
)

//go:generate mockgen -destination=mock_kafka/producer.go -package=mock_kafka . TaskEventProducer

// TaskEventProducer publishes task events; tests substitute a mock.
type TaskEventProducer interface {
	ProduceTaskEvent(ctx context.Context, event string, payload map[string]interface{})
}

// Producer writes task events to a Kafka topic. Writes are asynchronous and
// best-effort: a request never waits for the broker.
type Producer struct {
	writer *kafka.Writer
	topic  string
}

// NewProducer creates a producer. With no brokers or no topic every method is a no-op.
func NewProducer(brokers []string, topic string) *Producer {
	if len(brokers) == 0 || topic == "" {
		return &Producer{}
	}
	return &Producer{
		topic: topic,
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			Topic:        topic,
			Balancer:     &kafka.Hash{},
			BatchTimeout: 10 * time.Millisecond,
			Async:        true,
			Completion: func(messages []kafka.Message, err error) {
				if err != nil {
					log.Printf("kafka: deliver %d task events: %v", len(messages), err)
				}
			},
		},
	}
}

// Enabled reports whether events actually leave the process.
func (p *Producer) Enabled() bool { return p.writer != nil }

// ProduceTaskEvent publishes event with payload merged into the message body.
// Messages are keyed by task_id so one task's events stay ordered.
func (p *Producer) ProduceTaskEvent(ctx context.Context, event string, payload map[string]interface{}) {
	if p.writer == nil {
		return
	}
	msg := map[string]interface{}{"event": event, "occurred_at": time.Now().UTC().Format(time.RFC3339)}
	for k, v := range payload {
		msg[k] = v
	}
	body, err := json.Marshal(msg)
	if err != nil {
		log.Printf("kafka: marshal task event: %v", err)
		return
	}
	var key []byte
	if id, ok := payload["task_id"]; ok {
		key, _ = json.Marshal(id)
	}
	if err := p.writer.WriteMessages(ctx, kafka.Message{Key: key, Value: body}); err != nil {
		log.Printf("kafka: write task event: %v", err)
	}
}

// TaskPayload is the message body shared by all task.* events.
func TaskPayload(t *model.Task) map[string]interface{} {
	if t == nil {
		return nil
	}
	return map[string]interface{}{
		"task_id":     t.ID,
		"ticket_id":   t.TicketID,
		"title":       t.Title,
		"status":      string(t.Status),
		"priority":    string(t.Priority),
		"creator_id":  t.CreatorID,
		"assignee_id": t.AssigneeID,
		"category_id": t.CategoryID,
		"tags":        []string(t.Tags),
	}
}

// Close flushes pending messages and closes the writer.
func (p *Producer) Close() error {
	if p.writer == nil {
		return nil
	}
	return p.writer.Close()
}

// ParseBrokers splits "host1:9092,host2:9092" into addresses.
func ParseBrokers(s string) []string {
	var out []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
