package queryapi

import (
	"fmt"
	"time"
)

// parseDateUTC interprets an operator-supplied start_date as
// 00:00:00 UTC on the given date (spec §6), grounded on
// original_source/src/backfill.rs's parse_start_date.
func parseDateUTC(s string) (int64, error) {
	t, err := time.ParseInLocation("2006-01-02", s, time.UTC)
	if err != nil {
		return 0, fmt.Errorf("queryapi: malformed start date %q, want YYYY-MM-DD", s)
	}
	return t.UnixMilli(), nil
}
