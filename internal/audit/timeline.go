package audit

import (
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// TimelineFilters menampung filter dasar untuk timeline event dokumen.
type TimelineFilters struct {
	DocType  shared.DocType
	DocID    int64
	ActorID  int64
	Action   string
	From     time.Time
	To       time.Time
	Page     int
	PageSize int
}

// Query is the repository form of TimelineFilters.
type Query struct {
	DocType shared.DocType
	DocID   int64
	ActorID int64
	Action  string
	From    time.Time
	To      time.Time
	Offset  int
	Limit   int
}

// Result membungkus hasil timeline dengan informasi paging.
type Result struct {
	Rows   []shared.DocumentEvent `json:"events"`
	Paging PagingInfo             `json:"paging"`
}

// PagingInfo menyimpan metadata pagination sederhana.
type PagingInfo struct {
	Page     int  `json:"page"`
	HasNext  bool `json:"has_next"`
	PageSize int  `json:"page_size"`
	PrevPage int  `json:"prev_page,omitempty"`
	NextPage int  `json:"next_page,omitempty"`
}
