package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// QueueNotifications carries document notification events.
	QueueNotifications = "notifications"
	// TaskNotifyDocumentEvent delivers one notification event.
	TaskNotifyDocumentEvent = "notify:document-event"
)

// NewNotifyTask wraps event in an asynq task with a fresh task id so a
// retried enqueue never duplicates delivery.
func NewNotifyTask(event shared.Event) (*asynq.Task, error) {
	if event.Type == "" {
		return nil, fmt.Errorf("%w: event type required", shared.ErrValidation)
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now().UTC()
	}
	body, err := json.Marshal(event)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNotifyDocumentEvent, body,
		asynq.Queue(QueueNotifications),
		asynq.TaskID(uuid.NewString()),
		asynq.MaxRetry(10),
	), nil
}

// Client submits jobs to the queue.
type Client struct {
	client *asynq.Client
}

// NewClient constructs an Asynq client.
func NewClient(redisOpts asynq.RedisClientOpt) *Client {
	return &Client{client: asynq.NewClient(redisOpts)}
}

// Notify implements shared.Notifier by enqueueing one task per event. It
// stops at the first enqueue failure.
func (c *Client) Notify(ctx context.Context, events ...shared.Event) error {
	for _, event := range events {
		task, err := NewNotifyTask(event)
		if err != nil {
			return err
		}
		if _, err := c.client.EnqueueContext(ctx, task); err != nil {
			return fmt.Errorf("enqueue %s: %w", event.Type, err)
		}
	}
	return nil
}

// Enqueue submits a prepared task.
func (c *Client) Enqueue(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	return c.client.EnqueueContext(ctx, task, opts...)
}

// Close releases client resources.
func (c *Client) Close() error {
	return c.client.Close()
}

var _ shared.Notifier = (*Client)(nil)
