// Package batch runs one document action over many ids. Every item owns its
// transaction; one failure never affects another item.
package batch

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// DefaultConcurrency bounds in-flight items when none is configured.
const DefaultConcurrency = 4

// MaxItems caps a single batch request.
const MaxItems = 500

// ItemResult is the outcome for one id.
type ItemResult struct {
	ID    int64       `json:"id"`
	OK    bool        `json:"ok"`
	Code  shared.Code `json:"code,omitempty"`
	Error string      `json:"error,omitempty"`
}

// Result aggregates a batch run. Results are in input order.
type Result struct {
	Total     int          `json:"total"`
	Succeeded int          `json:"succeeded"`
	Failed    int          `json:"failed"`
	Results   []ItemResult `json:"results"`
}

// Observer receives the outcome code of every item; an empty code means
// success.
type Observer interface {
	ObserveBatchItem(code shared.Code)
}

// Operator applies a function to many ids with bounded concurrency.
type Operator struct {
	limit    int
	logger   *slog.Logger
	observer Observer
}

// New constructs an Operator running at most limit items at once.
func New(limit int, logger *slog.Logger) *Operator {
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Operator{limit: limit, logger: logger}
}

// SetObserver installs an item outcome observer. Call before serving.
func (o *Operator) SetObserver(observer Observer) {
	o.observer = observer
}

// Apply runs fn for every id. Duplicate ids run once per occurrence. The
// returned error is non-nil only when the request itself is malformed.
func (o *Operator) Apply(ctx context.Context, ids []int64, fn func(context.Context, int64) error) (Result, error) {
	if len(ids) == 0 {
		return Result{}, fmt.Errorf("%w: batch needs at least one id", shared.ErrValidation)
	}
	if len(ids) > MaxItems {
		return Result{}, fmt.Errorf("%w: batch exceeds %d ids", shared.ErrValidation, MaxItems)
	}

	results := make([]ItemResult, len(ids))
	// fn receives ctx rather than a group context, so item errors cancel nothing.
	var g errgroup.Group
	g.SetLimit(o.limit)
	for i, id := range ids {
		g.Go(func() error {
			results[i] = o.run(ctx, id, fn)
			return nil
		})
	}
	_ = g.Wait()

	res := Result{Total: len(ids), Results: results}
	for _, r := range results {
		if r.OK {
			res.Succeeded++
		} else {
			res.Failed++
		}
		if o.observer != nil {
			o.observer.ObserveBatchItem(r.Code)
		}
	}
	o.logger.Info("batch applied", slog.Int("total", res.Total), slog.Int("succeeded", res.Succeeded), slog.Int("failed", res.Failed))
	return res, nil
}

func (o *Operator) run(ctx context.Context, id int64, fn func(context.Context, int64) error) (result ItemResult) {
	result.ID = id
	defer func() {
		if rec := recover(); rec != nil {
			o.logger.Error("batch item panic", slog.Int64("id", id), slog.Any("panic", rec))
			result = ItemResult{ID: id, Code: shared.CodeInternal, Error: "internal error"}
		}
	}()
	if err := ctx.Err(); err != nil {
		return ItemResult{ID: id, Code: shared.CodeOf(err), Error: err.Error()}
	}
	if err := fn(ctx, id); err != nil {
		return ItemResult{ID: id, Code: shared.CodeOf(err), Error: err.Error()}
	}
	return ItemResult{ID: id, OK: true}
}
