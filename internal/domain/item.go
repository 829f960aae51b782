// Package domain holds the release timetable types shared across airwatch.
package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Clock is a local time of day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM" (a single-digit hour is accepted).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	hh, mm, ok := strings.Cut(s, ":")
	if !ok {
		return Clock{}, fmt.Errorf("invalid time %q, expected HH:MM", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid hour in %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return Clock{}, fmt.Errorf("invalid minute in %q", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func MustClock(s string) Clock {
	c, err := ParseClock(s)
	if err != nil {
		panic(err)
	}
	return c
}

// Seconds since midnight.
func (c Clock) Seconds() int64 { return int64(c.Hour)*3600 + int64(c.Minute)*60 }

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute) }

func (c Clock) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (c *Clock) UnmarshalText(b []byte) error {
	v, err := ParseClock(string(b))
	if err != nil {
		return err
	}
	*c = v
	return nil
}

// Item is one scheduled entry of the weekly timetable. Title is its identity.
type Item struct {
	ID      int64  `json:"id,omitempty" db:"id"`
	Day     string `json:"day" db:"day"`
	Title   string `json:"title" db:"title"`
	AirTime Clock  `json:"air_time" db:"-"`
	Link    string `json:"link" db:"link"`
}

func Titles(items []Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.Title
	}
	return out
}

// DistinctTitles keeps the first item of each title, in order.
func DistinctTitles(items []Item) []Item {
	seen := make(map[string]struct{}, len(items))
	out := make([]Item, 0, len(items))
	for _, it := range items {
		if _, ok := seen[it.Title]; ok {
			continue
		}
		seen[it.Title] = struct{}{}
		out = append(out, it)
	}
	return out
}

// AssetLink is one downloadable variant of a release.
type AssetLink struct {
	Label string `json:"label"`
	URL   string `json:"url"`
}

// ReleaseInfo is a point-in-time answer about an item. It is never stored.
type ReleaseInfo struct {
	Released   bool        `json:"released"`
	Title      string      `json:"title"`
	Episode    string      `json:"episode"`
	AssetLinks []AssetLink `json:"asset_links,omitempty"`
}

type User struct {
	ID        int64  `json:"id" db:"id"`
	Username  string `json:"username" db:"username"`
	FirstName string `json:"first_name" db:"first_name"`
}

// DisplayName prefers the @username and falls back to the first name.
func (u User) DisplayName() string {
	if u.Username != "" {
		return "@" + u.Username
	}
	return u.FirstName
}
