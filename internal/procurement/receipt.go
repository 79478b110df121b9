package procurement

import "github.com/shopspring/decimal"

// Receivable reports whether goods may be received against a PO in status.
func Receivable(status POStatus) bool {
	switch status {
	case POStatusSent, POStatusInProgress, POStatusPartiallyReceived:
		return true
	}
	return false
}

// DerivePOStatus aggregates line receipts into the PO status. Nothing
// received keeps current; every line received in full gives FULLY_RECEIVED;
// anything in between gives PARTIALLY_RECEIVED. The result depends only on
// the lines, so deriving twice is a no-op.
func DerivePOStatus(current POStatus, lines []POLine) POStatus {
	if len(lines) == 0 {
		return current
	}
	received := decimal.Zero
	complete := true
	for _, line := range lines {
		received = received.Add(line.QtyReceived)
		if line.QtyReceived.LessThan(line.Qty) {
			complete = false
		}
	}
	switch {
	case !received.IsPositive():
		return current
	case complete:
		return POStatusFullyReceived
	default:
		return POStatusPartiallyReceived
	}
}
