package erpsync

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/odyssey-erp/odyssey-stock/internal/masterdata"
	"github.com/odyssey-erp/odyssey-stock/internal/movement"
	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// Poster creates and posts a movement in one transaction.
type Poster interface {
	CreateAndPost(ctx context.Context, actor shared.Actor, input movement.CreateInput) (movement.Movement, error)
}

// SyncLog records every sync call.
type SyncLog interface {
	Record(ctx context.Context, entry LogEntry) error
}

// Config tunes the sync service.
type Config struct {
	SystemUserID  int64
	DefaultSource string
}

// Service turns ERP requests into posted movements.
type Service struct {
	catalog masterdata.Catalog
	poster  Poster
	log     SyncLog
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

// NewService wires the sync service.
func NewService(catalog masterdata.Catalog, poster Poster, log SyncLog, cfg Config, logger *slog.Logger) *Service {
	if cfg.DefaultSource == "" {
		cfg.DefaultSource = "erp"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		catalog: catalog,
		poster:  poster,
		log:     log,
		cfg:     cfg,
		logger:  logger,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// SyncMovement creates and posts the movement described by req as the
// system user. A reference already processed for the same source fails
// with ErrDuplicateDocument. Every call is logged, successful or not.
func (s *Service) SyncMovement(ctx context.Context, req Request) (Result, error) {
	result := Result{CorrelationID: uuid.New()}
	req.Source = strings.TrimSpace(req.Source)
	if req.Source == "" {
		req.Source = s.cfg.DefaultSource
	}
	req.Reference = strings.TrimSpace(req.Reference)

	m, err := s.sync(ctx, req)
	entry := LogEntry{
		CorrelationID: result.CorrelationID,
		Source:        req.Source,
		Reference:     req.Reference,
		MovementType:  req.Type,
		CreatedAt:     s.now(),
	}
	if err != nil {
		entry.Status = LogFailed
		entry.ErrorCode = string(shared.CodeOf(err))
		entry.ErrorMessage = err.Error()
	} else {
		entry.Status = LogSuccess
		entry.MovementID = m.ID
	}
	s.record(ctx, entry)
	if err != nil {
		return result, err
	}
	result.MovementID = m.ID
	result.Number = m.Number
	result.Status = string(m.Status)
	s.logger.Info("erp movement synced",
		slog.String("correlation_id", result.CorrelationID.String()),
		slog.String("source", req.Source),
		slog.String("reference", req.Reference),
		slog.String("number", m.Number),
	)
	return result, nil
}

func (s *Service) sync(ctx context.Context, req Request) (movement.Movement, error) {
	if req.Reference == "" {
		return movement.Movement{}, fmt.Errorf("%w: reference required", shared.ErrValidation)
	}
	if !req.Type.Valid() {
		return movement.Movement{}, fmt.Errorf("%w: unknown movement type %q", shared.ErrValidation, req.Type)
	}
	if len(req.Lines) == 0 {
		return movement.Movement{}, fmt.Errorf("%w: at least one line required", shared.ErrValidation)
	}
	if s.cfg.SystemUserID <= 0 {
		return movement.Movement{}, fmt.Errorf("%w: erp sync system user not configured", shared.ErrMisconfigured)
	}
	lines, err := s.resolve(ctx, req.Lines)
	if err != nil {
		return movement.Movement{}, err
	}

	actor := shared.SystemActor(s.cfg.SystemUserID, shared.MovementPostingScopes()...)
	return s.poster.CreateAndPost(ctx, actor, movement.CreateInput{
		Type:              req.Type,
		Note:              strings.TrimSpace(fmt.Sprintf("ERP %s %s", req.Reference, req.Note)),
		Lines:             lines,
		IdempotencyKey:    req.Source + ":" + req.Reference,
		IdempotencyModule: IdempotencyModule,
	})
}

func (s *Service) resolve(ctx context.Context, in []RequestLine) ([]movement.Line, error) {
	lines := make([]movement.Line, 0, len(in))
	for i, l := range in {
		product, variant, err := s.catalog.FindSKU(ctx, masterdata.NormalizeCode(l.SKU))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		line := movement.Line{
			ProductID: product.ID,
			VariantID: variant.ID,
			Qty:       l.Qty,
			UnitCost:  l.UnitCost,
			Note:      strings.TrimSpace(l.Note),
		}
		if line.FromLocationID, err = s.location(ctx, l.FromLocation); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		if line.ToLocationID, err = s.location(ctx, l.ToLocation); err != nil {
			return nil, fmt.Errorf("line %d: %w", i+1, err)
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func (s *Service) location(ctx context.Context, code string) (int64, error) {
	code = masterdata.NormalizeCode(code)
	if code == "" {
		return 0, nil
	}
	loc, err := s.catalog.FindLocationCode(ctx, code)
	if err != nil {
		return 0, err
	}
	return loc.ID, nil
}

func (s *Service) record(ctx context.Context, entry LogEntry) {
	if s.log == nil {
		return
	}
	if err := s.log.Record(context.WithoutCancel(ctx), entry); err != nil {
		s.logger.Error("erp sync: write log", slog.String("correlation_id", entry.CorrelationID.String()), slog.Any("error", err))
	}
}
