// Package erpsync accepts stock movements pushed by the ERP and posts them
// through the regular movement workflow as the system user.
package erpsync

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-stock/internal/inventory"
)

// IdempotencyModule scopes ERP references in the idempotency store.
const IdempotencyModule = "erp.movement"

// LogStatus is the outcome recorded for a sync call.
type LogStatus string

const (
	LogSuccess LogStatus = "SUCCESS"
	LogFailed  LogStatus = "FAILED"
)

// Request is one ERP movement, addressed by SKU and location codes.
type Request struct {
	Source    string
	Reference string
	Type      inventory.MovementType
	Note      string
	Lines     []RequestLine
}

// RequestLine is one line of Request.
type RequestLine struct {
	SKU          string
	FromLocation string
	ToLocation   string
	Qty          decimal.Decimal
	UnitCost     decimal.Decimal
	Note         string
}

// Result reports the movement created for a Request.
type Result struct {
	CorrelationID uuid.UUID `json:"correlation_id"`
	MovementID    int64     `json:"movement_id"`
	Number        string    `json:"number"`
	Status        string    `json:"status"`
}

// LogEntry is one erp_sync_logs row.
type LogEntry struct {
	CorrelationID uuid.UUID
	Source        string
	Reference     string
	MovementType  inventory.MovementType
	MovementID    int64
	Status        LogStatus
	ErrorCode     string
	ErrorMessage  string
	CreatedAt     time.Time
}
