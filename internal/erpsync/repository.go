package erpsync

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

// LogStore writes erp_sync_logs rows.
type LogStore struct {
	pool *pgxpool.Pool
}

// NewLogStore constructs a LogStore.
func NewLogStore(pool *pgxpool.Pool) *LogStore {
	return &LogStore{pool: pool}
}

// Record implements SyncLog.
func (s *LogStore) Record(ctx context.Context, entry LogEntry) error {
	var movementID *int64
	if entry.MovementID != 0 {
		movementID = &entry.MovementID
	}
	_, err := s.pool.Exec(ctx, `INSERT INTO erp_sync_logs
(correlation_id, source, reference, movement_type, movement_id, status, error_code, error_message, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		entry.CorrelationID, entry.Source, entry.Reference, string(entry.MovementType), movementID,
		string(entry.Status), entry.ErrorCode, entry.ErrorMessage, entry.CreatedAt)
	return err
}

// Recent lists the latest log rows for a reference, newest first.
func (s *LogStore) Recent(ctx context.Context, source, reference string, limit int) ([]LogEntry, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	rows, err := s.pool.Query(ctx, `SELECT correlation_id, source, reference, movement_type, COALESCE(movement_id, 0),
status, error_code, error_message, created_at
FROM erp_sync_logs WHERE source = $1 AND reference = $2
ORDER BY created_at DESC LIMIT $3`, source, reference, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []LogEntry
	for rows.Next() {
		var e LogEntry
		var mvType, status string
		if err := rows.Scan(&e.CorrelationID, &e.Source, &e.Reference, &mvType, &e.MovementID,
			&status, &e.ErrorCode, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.MovementType = inventory.MovementType(mvType)
		e.Status = LogStatus(status)
		out = append(out, e)
	}
	return out, rows.Err()
}
