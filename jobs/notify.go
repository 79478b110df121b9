package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Deliverer hands an event to a delivery channel (mail, chat, web push).
type Deliverer interface {
	Deliver(ctx context.Context, event shared.Event) error
}

// NotifyDispatchJob consumes notification tasks. Without a Deliverer it only
// logs, leaving delivery to an external consumer of the log stream.
type NotifyDispatchJob struct {
	Deliverer Deliverer
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
}

// NewNotifyDispatchJob initialises the dispatcher.
func NewNotifyDispatchJob(deliverer Deliverer, logger *slog.Logger, metrics *jobmetrics.Metrics) *NotifyDispatchJob {
	return &NotifyDispatchJob{Deliverer: deliverer, Logger: logger, Metrics: metrics}
}

// Handle processes TaskNotifyDocumentEvent tasks.
func (j *NotifyDispatchJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil {
		return errors.New("notify dispatch: handler not configured")
	}
	var event shared.Event
	if err := json.Unmarshal(t.Payload(), &event); err != nil || event.Type == "" {
		return asynq.SkipRetry
	}
	tracker := j.Metrics.Track(TaskNotifyDocumentEvent)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.String("event", string(event.Type)),
		slog.String("doc_type", string(event.DocType)),
		slog.Int64("doc_id", event.DocID),
		slog.String("doc_number", event.DocNumber),
		slog.String("recipients", strings.Join(event.RecipientRoles, ",")),
	)
	if j.Deliverer != nil {
		if err := j.Deliverer.Deliver(ctx, event); err != nil {
			logger.Warn("notification delivery failed", slog.Any("error", err))
			return err
		}
	}
	j.Metrics.DispatchedEvent(string(event.Type))
	logger.Info("notification dispatched")
	return nil
}

func (j *NotifyDispatchJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
