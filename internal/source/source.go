// Package source defines where the weekly timetable and release status come from.
package source

import (
	"context"
	"strings"

	"airwatch/internal/domain"
)

// Source yields timetable entries in site order. Transient failures wrap
// domain.ErrFetchFailed; an empty slice with a nil error means the site
// really lists nothing.
type Source interface {
	FetchWeek(ctx context.Context) ([]domain.Item, error)
	FetchDay(ctx context.Context, day string) ([]domain.Item, error)
	FetchRelease(ctx context.Context, it domain.Item) (domain.ReleaseInfo, error)
}

// FilterDay keeps items scheduled on day, preserving order.
func FilterDay(items []domain.Item, day string) []domain.Item {
	var out []domain.Item
	for _, it := range items {
		if SameDay(it.Day, day) {
			out = append(out, it)
		}
	}
	return out
}

func SameDay(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}
