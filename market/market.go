// Package market holds the Bolsa de Caracas calendar rules: the reference
// timezone, the trading window and calendar-day bucketing.
package market

import (
	"time"
)

// Zone is Caracas time, UTC-4 with no daylight saving. A fixed zone avoids
// depending on the host tzdata.
var Zone = time.FixedZone("VET", -4*60*60)

// Hours is the daily trading window as offsets from local midnight.
type Hours struct {
	Open  time.Duration
	Close time.Duration
}

// IsOpen reports whether t falls on a weekday inside [Open, Close) in Zone.
func (h Hours) IsOpen(t time.Time) bool {
	local := t.In(Zone)
	switch local.Weekday() {
	case time.Saturday, time.Sunday:
		return false
	}
	sinceMidnight := local.Sub(StartOfDay(local))
	return sinceMidnight >= h.Open && sinceMidnight < h.Close
}

// StartOfDay returns local midnight of t's calendar day in Zone.
func StartOfDay(t time.Time) time.Time {
	local := t.In(Zone)
	y, m, d := local.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, Zone)
}

// DayKey identifies t's calendar day in Zone, e.g. "2024-03-06".
func DayKey(t time.Time) string {
	return t.In(Zone).Format("2006-01-02")
}
