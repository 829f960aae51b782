package domain

import "time"

type ActionKind string

const (
	NotifyCheck ActionKind = "notify_check"
	DayRollover ActionKind = "day_rollover"
	FetchRetry  ActionKind = "fetch_retry"
)

// PendingAction is a deferred timeline step. Generation is the catalog
// generation seen when it was armed; a different generation at fire time
// makes the action stale.
type PendingAction struct {
	Kind       ActionKind `json:"kind"`
	FiresAt    time.Time  `json:"fires_at"`
	Item       Item       `json:"item,omitzero"`
	Generation uint64     `json:"generation"`
}
