package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrFetchFailed marks a transient source failure. It never counts as an empty timetable.
	ErrFetchFailed = errors.New("schedule fetch failed")
	// ErrDuplicateTitle is returned when inserting a title already in the catalog.
	ErrDuplicateTitle = errors.New("duplicate title")
	// ErrStaleAction means the catalog changed since an action was armed.
	ErrStaleAction = errors.New("stale action")
	ErrNotFound    = errors.New("not found")
)

// DeliveryError is a failed send to one subscriber.
type DeliveryError struct {
	UserID int64
	Err    error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver to %d: %v", e.UserID, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }
