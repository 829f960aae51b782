package timeline

import (
	"slices"
	"time"

	"airwatch/internal/domain"
)

type Phase string

const (
	PhaseIdle            Phase = "idle"
	PhaseResyncing       Phase = "resyncing"
	PhaseArmed           Phase = "armed"
	PhaseFired           Phase = "fired"
	PhaseRolloverPending Phase = "rollover_pending"
)

// SchedulerState is what the scheduler knows about the current day-cycle.
type SchedulerState struct {
	Phase      Phase                 `json:"phase"`
	Day        string                `json:"day,omitempty"`
	Generation uint64                `json:"generation"`
	Notify     *domain.PendingAction `json:"notify,omitempty"`
	Rollover   *domain.PendingAction `json:"rollover,omitempty"`
	LastMarker string                `json:"last_marker,omitempty"`
	// Checked are the titles already checked on CheckedOn (local date).
	Checked       []string  `json:"checked,omitempty"`
	CheckedOn     string    `json:"checked_on,omitempty"`
	FetchFailures int       `json:"fetch_failures"`
	Cycles        uint64    `json:"cycles"`
	LastCycle     time.Time `json:"last_cycle,omitzero"`
	LastError     string    `json:"last_error,omitempty"`
}

func (s SchedulerState) clone() SchedulerState {
	if s.Notify != nil {
		n := *s.Notify
		s.Notify = &n
	}
	if s.Rollover != nil {
		r := *s.Rollover
		s.Rollover = &r
	}
	s.Checked = slices.Clone(s.Checked)
	return s
}

// checkedOn returns the titles checked on the local date of now.
func (s SchedulerState) checkedOn(now time.Time) []string {
	if s.CheckedOn != now.Format(time.DateOnly) {
		return nil
	}
	return slices.Clone(s.Checked)
}

// markChecked records title for the date of now, starting a new set when
// the date changed.
func (s *SchedulerState) markChecked(now time.Time, title string) {
	if title == "" {
		return
	}
	if d := now.Format(time.DateOnly); s.CheckedOn != d {
		s.CheckedOn, s.Checked = d, nil
	}
	if !slices.Contains(s.Checked, title) {
		s.Checked = append(s.Checked, title)
	}
}
