package audit

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"github.com/odyssey-erp/odyssey-stock/internal/shared"
)

// WriteCSV encodes events as CSV with a header row.
func WriteCSV(rows []shared.DocumentEvent) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	header := []string{"occurred_at", "actor_id", "doc_type", "doc_id", "doc_number", "action", "from_status", "to_status", "reason", "related_doc_type", "related_doc_id"}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, e := range rows {
		related := ""
		if e.RelatedDocID != 0 {
			related = strconv.FormatInt(e.RelatedDocID, 10)
		}
		record := []string{
			e.OccurredAt.UTC().Format(time.RFC3339),
			strconv.FormatInt(e.ActorID, 10),
			string(e.DocType),
			strconv.FormatInt(e.DocID, 10),
			e.DocNumber,
			e.Action,
			e.FromStatus,
			e.ToStatus,
			e.Reason,
			string(e.RelatedDocType),
			related,
		}
		if err := w.Write(record); err != nil {
			return nil, err
		}
	}
	w.Flush()
	return buf.Bytes(), w.Error()
}
