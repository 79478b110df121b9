package shared

import (
	"context"
	"log/slog"
	"time"
)

// EventType names a logical notification event.
type EventType string

const (
	EventPRSubmitted         EventType = "pr.submitted"
	EventPRApproved          EventType = "pr.approved"
	EventPRRejected          EventType = "pr.rejected"
	EventPOSubmitted         EventType = "po.submitted"
	EventPOApproved          EventType = "po.approved"
	EventPOSent              EventType = "po.sent"
	EventPOPartiallyReceived EventType = "po.partially_received"
	EventPOFullyReceived     EventType = "po.fully_received"
	EventGRNPosted           EventType = "grn.posted"
	EventMovementSubmitted   EventType = "movement.submitted"
	EventMovementPosted      EventType = "movement.posted"
	EventStockTakeCompleted  EventType = "stocktake.completed"
	EventStockTakeApproved   EventType = "stocktake.approved"
	EventStockLow            EventType = "stock.low"
	EventLotExpiring         EventType = "lot.expiring"
)

// Event is a "notify someone about X" request. Delivery is external.
type Event struct {
	Type           EventType         `json:"type"`
	DocType        DocType           `json:"doc_type,omitempty"`
	DocID          int64             `json:"doc_id,omitempty"`
	DocNumber      string            `json:"doc_number,omitempty"`
	RecipientRoles []string          `json:"recipient_roles"`
	Payload        map[string]string `json:"payload,omitempty"`
	OccurredAt     time.Time         `json:"occurred_at"`
}

// Notifier hands events to the dispatcher queue.
type Notifier interface {
	Notify(ctx context.Context, events ...Event) error
}

// NotifyAfterCommit emits events once the owning transaction has committed.
// Failures are logged; the committed document is never rolled back for them.
func NotifyAfterCommit(ctx context.Context, logger *slog.Logger, notifier Notifier, events []Event) {
	if notifier == nil || len(events) == 0 {
		return
	}
	if err := notifier.Notify(ctx, events...); err != nil {
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("notify events", slog.Int("count", len(events)), slog.Any("error", err))
	}
}

// PostingObserver records the outcome of every posting transition.
type PostingObserver interface {
	ObservePosting(docType DocType, err error)
}

// ObservePosting forwards to observer when one is configured.
func ObservePosting(observer PostingObserver, docType DocType, err error) {
	if observer != nil {
		observer.ObservePosting(docType, err)
	}
}
