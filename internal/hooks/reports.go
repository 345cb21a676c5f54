package hooks

import "github.com/klingon-exchange/klingon-v2/internal/broadcast"

// ReportWarnThreshold is the number of reports against a user that
// triggers an automatic moderation warning broadcast.
const ReportWarnThreshold = 5

// FileReport records a user report and returns true if the reported
// user has just crossed the warning threshold. A triggered warning is
// also fanned out to any attached observer hub.
func (h *Hooks) FileReport(reporterID, reportedID int64, reason string) (warnTriggered bool, err error) {
	if err := h.store.CreateReport(reporterID, reportedID, reason); err != nil {
		return false, err
	}
	count, err := h.store.ReportCount(reportedID)
	if err != nil {
		return false, err
	}
	triggered := count == ReportWarnThreshold
	if triggered && h.hub != nil {
		h.hub.Broadcast(broadcast.EventUserWarning, map[string]int64{
			"user_id": reportedID,
		})
	}
	return triggered, nil
}

// RecordSale appends a price-history sample for a skin definition.
func (h *Hooks) RecordSale(definitionID int64, price float64) error {
	return h.store.RecordPriceHistory(definitionID, price)
}

// LogTransaction appends a transaction-log entry.
func (h *Hooks) LogTransaction(logType string, userID int64, details string) error {
	return h.store.LogTransaction(logType, userID, details)
}
