package storage

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestAuditKey_Partitions_By_UTC_Day(t *testing.T) {
	req := require.New(t)

	at := time.Date(2025, 6, 1, 23, 30, 0, 0, time.FixedZone("UTC+2", 2*60*60))
	req.Equal("audit/2025/06/01/batch-1.jsonl", AuditKey(at, "batch-1"))

	// 23:30 UTC+2 is 21:30 UTC; a local date past midnight still lands on
	// the UTC day.
	late := time.Date(2025, 6, 2, 0, 30, 0, 0, time.FixedZone("UTC+2", 2*60*60))
	req.Equal("audit/2025/06/01/batch-2.jsonl", AuditKey(late, "batch-2"))
}
