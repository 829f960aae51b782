package timeline

import (
	"time"

	"airwatch/internal/domain"
	"airwatch/internal/source"
)

// DefaultDays are the weekday labels used by the schedule page, Monday first.
var DefaultDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday", "Sunday"}

// dayIndex maps t to an index into the weekday labels, Monday = 0.
func dayIndex(t time.Time) int { return (int(t.Weekday()) + 6) % 7 }

// delta is the signed distance from now to the item's air time today, in
// whole seconds.
func delta(it domain.Item, now time.Time) time.Duration {
	sod := int64(now.Hour())*3600 + int64(now.Minute())*60 + int64(now.Second())
	return time.Duration(it.AirTime.Seconds()-sod) * time.Second
}

// clockAt is the wall time c on the day `days` after now, in now's zone.
func clockAt(now time.Time, c domain.Clock, days int) time.Time {
	y, m, d := now.Date()
	return time.Date(y, m, d+days, c.Hour, c.Minute, 0, 0, now.Location())
}

// rolloverAt is the air time of the first item of the next day that has
// any, looking up to a week ahead. With an empty week it is next midnight.
func rolloverAt(now time.Time, week []domain.Item, days []string) time.Time {
	today := dayIndex(now)
	for k := 1; k <= 7; k++ {
		if items := source.FilterDay(week, days[(today+k)%7]); len(items) > 0 {
			return clockAt(now, items[0].AirTime, k)
		}
	}
	return clockAt(now, domain.Clock{}, 1)
}
