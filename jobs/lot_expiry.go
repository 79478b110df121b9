package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

const (
	// TaskLotExpiryScan warns about lots that expire soon.
	TaskLotExpiryScan = "inventory:lot-expiry-scan"

	defaultExpiryWindowDays = 30
	lotExpiryScanLimit      = 500
)

// LotExpiryPayload carries the look-ahead window.
type LotExpiryPayload struct {
	WithinDays int `json:"within_days"`
}

// NewLotExpiryScanTask constructs the scan task.
func NewLotExpiryScanTask(withinDays int) (*asynq.Task, error) {
	body, err := json.Marshal(LotExpiryPayload{WithinDays: withinDays})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskLotExpiryScan, body, asynq.Queue(QueueDefault)), nil
}

// LotLister lists lots earliest expiry first.
type LotLister interface {
	ListLots(ctx context.Context, filter inventory.LotFilter) ([]inventory.Lot, error)
}

// LotExpiryScanJob emits one lot.expiring event per lot inside the window.
type LotExpiryScanJob struct {
	Lots     LotLister
	Notifier shared.Notifier
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	Now      func() time.Time
}

// NewLotExpiryScanJob initialises the handler.
func NewLotExpiryScanJob(lots LotLister, notifier shared.Notifier, logger *slog.Logger, metrics *jobmetrics.Metrics) *LotExpiryScanJob {
	return &LotExpiryScanJob{Lots: lots, Notifier: notifier, Logger: logger, Metrics: metrics, Now: time.Now}
}

// Handle executes the scan.
func (j *LotExpiryScanJob) Handle(ctx context.Context, t *asynq.Task) (resultErr error) {
	if j == nil || j.Lots == nil {
		return errors.New("lot expiry scan: handler not configured")
	}
	var payload LotExpiryPayload
	if len(t.Payload()) > 0 {
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
	}
	if payload.WithinDays <= 0 {
		payload.WithinDays = defaultExpiryWindowDays
	}
	tracker := j.Metrics.Track(TaskLotExpiryScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	now := j.now()
	lots, err := j.Lots.ListLots(ctx, inventory.LotFilter{
		ExpiringBefore: now.AddDate(0, 0, payload.WithinDays),
		Limit:          lotExpiryScanLimit,
	})
	if err != nil {
		return err
	}
	events := make([]shared.Event, 0, len(lots))
	for _, lot := range lots {
		if lot.ExpiryDate == nil {
			continue
		}
		events = append(events, shared.Event{
			Type:           shared.EventLotExpiring,
			RecipientRoles: []string{"warehouse"},
			Payload: map[string]string{
				"lot_id":      strconv.FormatInt(lot.ID, 10),
				"lot_number":  lot.LotNumber,
				"product_id":  strconv.FormatInt(lot.ProductID, 10),
				"expiry_date": lot.ExpiryDate.Format("2006-01-02"),
			},
			OccurredAt: now,
		})
	}
	if len(events) > 0 && j.Notifier != nil {
		if err := j.Notifier.Notify(ctx, events...); err != nil {
			return err
		}
	}
	j.logger().Info("completed lot expiry scan",
		slog.Int("within_days", payload.WithinDays),
		slog.Int("lots", len(events)),
	)
	return nil
}

func (j *LotExpiryScanJob) now() time.Time {
	if j.Now == nil {
		return time.Now().UTC()
	}
	return j.Now().UTC()
}

func (j *LotExpiryScanJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}
