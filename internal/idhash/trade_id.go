package idhash

import (
	"crypto/sha256"
	"fmt"
	"time"

	"github.com/mr-tron/base58"
)

// ComputeTradeID computes a deterministic trade_id using SHA256.
// Formula: SHA256(run_id|underlying|entry_date)
// Returns the base58-encoded hash (at most 44 characters).
func ComputeTradeID(runID, underlying string, entryDate time.Time) string {
	data := fmt.Sprintf("%s|%s|%s",
		runID,
		underlying,
		entryDate.Format("2006-01-02"),
	)

	hash := sha256.Sum256([]byte(data))
	return base58.Encode(hash[:])
}
