package audit

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// PGRepository reads document_events from PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs the PostgreSQL repository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// QueryEvents implements Repository. A document query is ordered oldest
// first; a cross-document query newest first.
func (r *PGRepository) QueryEvents(ctx context.Context, q Query) ([]shared.DocumentEvent, error) {
	var where []string
	var args []any
	add := func(clause string, arg any) {
		args = append(args, arg)
		where = append(where, fmt.Sprintf(clause, len(args)))
	}
	if q.DocType != "" {
		add("doc_type = $%d", string(q.DocType))
	}
	if q.DocID != 0 {
		add("doc_id = $%d", q.DocID)
	}
	if q.ActorID != 0 {
		add("actor_id = $%d", q.ActorID)
	}
	if q.Action != "" {
		add("action = $%d", q.Action)
	}
	if !q.From.IsZero() {
		add("occurred_at >= $%d", q.From)
	}
	if !q.To.IsZero() {
		add("occurred_at <= $%d", q.To)
	}
	order := "occurred_at DESC, id DESC"
	if q.DocType != "" && q.DocID != 0 {
		order = "occurred_at, id"
	}
	sql := `SELECT id, COALESCE(actor_id, 0), action, doc_type, doc_id, doc_number, from_status, to_status, reason,
related_doc_type, COALESCE(related_doc_id, 0), occurred_at FROM document_events`
	if len(where) > 0 {
		sql += " WHERE " + strings.Join(where, " AND ")
	}
	args = append(args, q.Limit, q.Offset)
	sql += fmt.Sprintf(" ORDER BY %s LIMIT $%d OFFSET $%d", order, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (shared.DocumentEvent, error) {
		var e shared.DocumentEvent
		var docType, relatedType string
		err := row.Scan(&e.ID, &e.ActorID, &e.Action, &docType, &e.DocID, &e.DocNumber, &e.FromStatus, &e.ToStatus,
			&e.Reason, &relatedType, &e.RelatedDocID, &e.OccurredAt)
		e.DocType = shared.DocType(docType)
		e.RelatedDocType = shared.DocType(relatedType)
		return e, err
	})
}
