package forecast

import (
	"time"

	"github.com/yanqian/solar-forecast/pkg/util"
)

// predictionWindow lists the hour slots to score. The window opens at the first whole hour at or
// after now, or at local midnight of the start date when that is later, spans horizon and never
// runs past the end of the end date.
func predictionWindow(now, start, end time.Time, horizon time.Duration) []time.Time {
	first := util.CeilHour(now)
	if start.After(first) {
		first = start
	}
	limit := first.Add(horizon)
	if endOfRange := end.AddDate(0, 0, 1); endOfRange.Before(limit) {
		limit = endOfRange
	}

	var slots []time.Time
	for t := first; t.Before(limit); t = t.Add(time.Hour) {
		slots = append(slots, t)
	}
	return slots
}

// weatherKeyEnd clamps the requested end date to the last day the provider can cover,
// so requests reaching far into the future share one weather entry.
func weatherKeyEnd(now, end time.Time, horizon time.Duration) string {
	reach := util.StartOfDay(now.Add(horizon))
	if end.After(reach) {
		return util.FormatDate(reach)
	}
	return util.FormatDate(end)
}
