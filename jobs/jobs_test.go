package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

func TestClientEnqueuesOneTaskPerEvent(t *testing.T) {
	mr := miniredis.RunT(t)
	client := NewClient(asynq.RedisClientOpt{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	err := client.Notify(context.Background(),
		shared.Event{Type: shared.EventGRNPosted, DocType: shared.DocGoodsReceipt, DocID: 1, DocNumber: "GRN-000001"},
		shared.Event{Type: shared.EventPOFullyReceived, DocType: shared.DocPurchaseOrder, DocID: 2},
	)
	require.NoError(t, err)

	pending, err := mr.List("asynq:{" + QueueNotifications + "}:pending")
	require.NoError(t, err)
	require.Len(t, pending, 2)
}

func TestNotifyTaskRequiresType(t *testing.T) {
	_, err := NewNotifyTask(shared.Event{})
	require.ErrorIs(t, err, shared.ErrValidation)

	task, err := NewNotifyTask(shared.Event{Type: shared.EventStockLow})
	require.NoError(t, err)
	var decoded shared.Event
	require.NoError(t, json.Unmarshal(task.Payload(), &decoded))
	require.False(t, decoded.OccurredAt.IsZero())
}

type recordingDeliverer struct {
	events []shared.Event
	err    error
}

func (d *recordingDeliverer) Deliver(_ context.Context, event shared.Event) error {
	d.events = append(d.events, event)
	return d.err
}

func TestNotifyDispatchJob(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	deliverer := &recordingDeliverer{}
	job := NewNotifyDispatchJob(deliverer, nil, metrics)

	task, err := NewNotifyTask(shared.Event{Type: shared.EventMovementPosted, DocID: 9, RecipientRoles: []string{"warehouse"}})
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Len(t, deliverer.events, 1)
	require.Equal(t, int64(9), deliverer.events[0].DocID)

	err = job.Handle(context.Background(), asynq.NewTask(TaskNotifyDocumentEvent, []byte("{")))
	require.ErrorIs(t, err, asynq.SkipRetry)

	deliverer.err = errors.New("smtp down")
	require.Error(t, job.Handle(context.Background(), task))

	count, err := testutil.GatherAndCount(registry, "odyssey_notification_events_total")
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

type fakeCleaner struct{ retention time.Duration }

func (c *fakeCleaner) Cleanup(_ context.Context, olderThan time.Duration) (int64, error) {
	c.retention = olderThan
	return 3, nil
}

func TestIdempotencyCleanupRetention(t *testing.T) {
	cleaner := &fakeCleaner{}
	job := NewIdempotencyCleanupJob(cleaner, nil, nil)

	task, err := NewIdempotencyCleanupTask(48 * time.Hour)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))
	require.Equal(t, 48*time.Hour, cleaner.retention)

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskIdempotencyCleanup, nil)))
	require.Equal(t, defaultIdempotencyRetention, cleaner.retention)
}

type staticProducts []int64

func (p staticProducts) ReorderProducts(context.Context) ([]int64, error) { return p, nil }

type fakeChecker struct{ seen []int64 }

func (c *fakeChecker) CheckLowStock(_ context.Context, ids []int64) []inventory.LowStockAlert {
	c.seen = ids
	return []inventory.LowStockAlert{{ProductID: ids[0]}}
}

func TestLowStockScanChecksCatalogue(t *testing.T) {
	registry := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(registry)
	checker := &fakeChecker{}
	job := NewLowStockScanJob(staticProducts{3, 5}, checker, nil, metrics)

	require.NoError(t, job.Handle(context.Background(), NewLowStockScanTask()))
	require.Equal(t, []int64{3, 5}, checker.seen)

	families, err := registry.Gather()
	require.NoError(t, err)
	var found bool
	for _, mf := range families {
		if mf.GetName() == "odyssey_low_stock_products_total" {
			found = true
			require.Equal(t, float64(1), mf.GetMetric()[0].GetCounter().GetValue())
		}
	}
	require.True(t, found)
}

type fakeLots struct {
	filter inventory.LotFilter
	lots   []inventory.Lot
}

func (f *fakeLots) ListLots(_ context.Context, filter inventory.LotFilter) ([]inventory.Lot, error) {
	f.filter = filter
	return f.lots, nil
}

type recordingNotifier struct{ events []shared.Event }

func (n *recordingNotifier) Notify(_ context.Context, events ...shared.Event) error {
	n.events = append(n.events, events...)
	return nil
}

func TestLotExpiryScanEmitsOneEventPerLot(t *testing.T) {
	now := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	expiry := time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)
	lots := &fakeLots{lots: []inventory.Lot{
		{ID: 4, ProductID: 2, LotNumber: "L-0007", ExpiryDate: &expiry},
		{ID: 5, ProductID: 2, LotNumber: "L-0008"},
	}}
	notifier := &recordingNotifier{}
	job := NewLotExpiryScanJob(lots, notifier, nil, nil)
	job.Now = func() time.Time { return now }

	task, err := NewLotExpiryScanTask(14)
	require.NoError(t, err)
	require.NoError(t, job.Handle(context.Background(), task))

	require.Equal(t, now.AddDate(0, 0, 14), lots.filter.ExpiringBefore)
	require.Len(t, notifier.events, 1)
	require.Equal(t, shared.EventLotExpiring, notifier.events[0].Type)
	require.Equal(t, "2024-05-10", notifier.events[0].Payload["expiry_date"])

	require.NoError(t, job.Handle(context.Background(), asynq.NewTask(TaskLotExpiryScan, nil)))
	require.Equal(t, now.AddDate(0, 0, defaultExpiryWindowDays), lots.filter.ExpiringBefore)
}
