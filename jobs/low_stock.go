package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
	jobmetrics "github.com/odyssey-erp/odyssey-stock/internal/jobs"
)

// TaskLowStockScan checks every product with a reorder point.
const TaskLowStockScan = "inventory:low-stock-scan"

// NewLowStockScanTask builds the scan task.
func NewLowStockScanTask() *asynq.Task {
	return asynq.NewTask(TaskLowStockScan, nil, asynq.Queue(QueueDefault))
}

// ProductSource lists the products that carry a reorder point.
type ProductSource interface {
	ReorderProducts(ctx context.Context) ([]int64, error)
}

// StockChecker emits stock.low events for products at or below their
// reorder point and returns the alerts.
type StockChecker interface {
	CheckLowStock(ctx context.Context, productIDs []int64) []inventory.LowStockAlert
}

// LowStockScanJob runs the same low-stock check postings run, over the whole
// catalogue.
type LowStockScanJob struct {
	Products ProductSource
	Checker  StockChecker
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
}

// NewLowStockScanJob initialises the scan handler.
func NewLowStockScanJob(products ProductSource, checker StockChecker, logger *slog.Logger, metrics *jobmetrics.Metrics) *LowStockScanJob {
	return &LowStockScanJob{Products: products, Checker: checker, Logger: logger, Metrics: metrics}
}

// Handle executes the scan.
func (j *LowStockScanJob) Handle(ctx context.Context, _ *asynq.Task) (resultErr error) {
	if j == nil || j.Products == nil || j.Checker == nil {
		return errors.New("low stock scan: handler not configured")
	}
	start := time.Now()
	tracker := j.Metrics.Track(TaskLowStockScan)
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	ids, err := j.Products.ReorderProducts(ctx)
	if err != nil {
		j.logger().Error("low stock scan: list products", slog.Any("error", err))
		return err
	}
	alerts := j.Checker.CheckLowStock(ctx, ids)
	j.Metrics.AddLowStock(len(alerts))
	j.logger().Info("completed low stock scan",
		slog.Int("products", len(ids)),
		slog.Int("alerts", len(alerts)),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *LowStockScanJob) logger() *slog.Logger {
	if j.Logger == nil {
		return slog.Default()
	}
	return j.Logger
}

// PoolProducts reads reorder products from PostgreSQL.
type PoolProducts struct {
	Pool *pgxpool.Pool
}

// ReorderProducts implements ProductSource.
func (p PoolProducts) ReorderProducts(ctx context.Context) ([]int64, error) {
	rows, err := p.Pool.Query(ctx, `SELECT id FROM products WHERE deleted_at IS NULL AND reorder_point > 0 ORDER BY id`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, pgx.RowTo[int64])
}
