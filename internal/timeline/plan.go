package timeline

import (
	"slices"
	"time"

	"airwatch/internal/domain"
	"airwatch/internal/source"
)

type Decision string

const (
	DecideArm  Decision = "arm"
	DecideFire Decision = "fire"
	DecideSkip Decision = "skip"
)

type PlanEntry struct {
	Item     domain.Item   `json:"item"`
	Delta    time.Duration `json:"delta"`
	Decision Decision      `json:"decision"`
	At       time.Time     `json:"at,omitzero"`
}

// Plan is the day's timeline as seen at Now.
type Plan struct {
	Now      time.Time   `json:"now"`
	Day      string      `json:"day"`
	Entries  []PlanEntry `json:"entries"`
	Rollover time.Time   `json:"rollover"`
}

// BuildPlan decides, for each of today's items in schedule order, whether
// it is ahead (arm at air time + grace), inside the grace window (fire now,
// unless it was already checked today) or already aired (skip). Only the
// first item of a repeated title is planned.
func BuildPlan(now time.Time, week []domain.Item, days []string, grace time.Duration, checked ...string) Plan {
	week = domain.DistinctTitles(week)
	p := Plan{Now: now, Day: days[dayIndex(now)], Rollover: rolloverAt(now, week, days)}
	for _, it := range source.FilterDay(week, p.Day) {
		e := PlanEntry{Item: it, Delta: delta(it, now), Decision: DecideSkip}
		switch {
		case e.Delta > 0:
			e.Decision, e.At = DecideArm, clockAt(now, it.AirTime, 0).Add(grace)
		case e.Delta >= -grace && !slices.Contains(checked, it.Title):
			e.Decision, e.At = DecideFire, now
		}
		p.Entries = append(p.Entries, e)
	}
	return p
}

// Next is the first entry that is not skipped.
func (p Plan) Next() (PlanEntry, bool) {
	for _, e := range p.Entries {
		if e.Decision != DecideSkip {
			return e, true
		}
	}
	return PlanEntry{}, false
}
