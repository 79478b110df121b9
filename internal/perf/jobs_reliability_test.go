package perf

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
	"github.com/odyssey-erp/odyssey-stock/internal/testutil"
	"github.com/odyssey-erp/odyssey-stock/jobs"
)

type staticProducts []int64

func (p staticProducts) ReorderProducts(context.Context) ([]int64, error) {
	return p, nil
}

// flakyDeliverer fails every nth delivery.
type flakyDeliverer struct {
	n     int
	calls int
}

func (d *flakyDeliverer) Deliver(context.Context, shared.Event) error {
	d.calls++
	if d.calls%d.n == 0 {
		return errors.New("smtp timeout")
	}
	return nil
}

func TestStockJobsThroughputAndReliability(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := jobmetrics.NewMetrics(reg)
	ctx := context.Background()

	store := testutil.NewStore()
	catalog := testutil.NewCatalog()
	wh := catalog.AddWarehouse("main")
	loc := catalog.AddLocation(wh.ID, "A")
	low := catalog.AddProduct(masterdata.Product{SKU: "BOLT-M8", Name: "Hex Bolt", ReorderPoint: decimal.NewFromInt(10)})
	healthy := catalog.AddProduct(masterdata.Product{SKU: "OIL-5L", Name: "Oil", ReorderPoint: decimal.NewFromInt(2)})
	seed := func(productID int64, qty int64) {
		effects := []inventory.Effect{{
			Key:      inventory.BalanceKey{ProductID: productID, LocationID: loc.ID},
			Delta:    decimal.NewFromInt(qty),
			UnitCost: decimal.NewFromInt(1),
		}}
		if _, err := inventory.NewLedger().Apply(ctx, store, effects, inventory.Policy{}); err != nil {
			t.Fatalf("seed stock: %v", err)
		}
	}
	seed(low.ID, 4)
	seed(healthy.ID, 40)

	notifier := &testutil.Notifier{}
	inv := inventory.NewService(&testutil.InventoryRepo{Store: store, Catalog: catalog}, nil, inventory.ServiceConfig{}, notifier, testutil.Logger())
	scan := jobs.NewLowStockScanJob(staticProducts{low.ID, healthy.ID}, inv, testutil.Logger(), metrics)
	for i := 0; i < 10; i++ {
		if err := scan.Handle(ctx, jobs.NewLowStockScanTask()); err != nil {
			t.Fatalf("low stock scan: %v", err)
		}
	}
	if got := len(notifier.Events()); got != 10 {
		t.Fatalf("expected one stock.low event per scan, got %d", got)
	}

	dispatch := jobs.NewNotifyDispatchJob(&flakyDeliverer{n: 10}, testutil.Logger(), metrics)
	failures := 0
	for _, event := range notifier.Events() {
		for i := 0; i < 4; i++ {
			task, err := jobs.NewNotifyTask(event)
			if err != nil {
				t.Fatalf("build notify task: %v", err)
			}
			if err := dispatch.Handle(ctx, task); err != nil {
				failures++
			}
		}
	}
	if failures != 4 {
		t.Fatalf("expected 4 failed deliveries, got %d", failures)
	}

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}

	scans := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskLowStockScan, "status": "success"})
	if scans != 10 {
		t.Fatalf("expected 10 successful scans, got %f", scans)
	}
	if flagged := metricValue(t, families, "odyssey_low_stock_products_total", nil); flagged != 10 {
		t.Fatalf("expected 10 low stock findings, got %f", flagged)
	}

	success := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskNotifyDocumentEvent, "status": "success"})
	failure := metricValue(t, families, "odyssey_jobs_total", map[string]string{"job": jobs.TaskNotifyDocumentEvent, "status": "failure"})
	if ratio := success / (success + failure); ratio < 0.9 {
		t.Fatalf("notification success ratio too low: %f", ratio)
	}
	dispatched := metricValue(t, families, "odyssey_notification_events_total", map[string]string{"type": string(shared.EventStockLow)})
	if dispatched != success {
		t.Fatalf("dispatched events %f do not match successful runs %f", dispatched, success)
	}

	if mean := histogramMean(t, families, "odyssey_job_duration_seconds", map[string]string{"job": jobs.TaskLowStockScan}); mean > 0.5 {
		t.Fatalf("low stock scan duration above budget: %f", mean)
	}
}

func metricValue(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				if fam.GetType() == dto.MetricType_COUNTER {
					return metric.GetCounter().GetValue()
				}
				if fam.GetType() == dto.MetricType_GAUGE {
					return metric.GetGauge().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s with labels %v not found", name, labels)
	return 0
}

func histogramMean(t *testing.T, families []*dto.MetricFamily, name string, labels map[string]string) float64 {
	t.Helper()
	for _, fam := range families {
		if fam.GetName() != name {
			continue
		}
		for _, metric := range fam.GetMetric() {
			if hasLabels(metric, labels) {
				hist := metric.GetHistogram()
				if hist == nil || hist.GetSampleCount() == 0 {
					t.Fatalf("histogram %s missing samples", name)
				}
				return hist.GetSampleSum() / float64(hist.GetSampleCount())
			}
		}
	}
	t.Fatalf("histogram %s with labels %v not found", name, labels)
	return 0
}

func hasLabels(metric *dto.Metric, labels map[string]string) bool {
	for key, val := range labels {
		found := false
		for _, lp := range metric.GetLabel() {
			if lp.GetName() == key {
				found = lp.GetValue() == val
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
