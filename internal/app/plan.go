package app

import (
	"context"
	"time"

	"airwatch/internal/config"
	"airwatch/internal/source/hsubs"
	"airwatch/internal/timeline"
	"airwatch/pkg/logx"
)

// CheckConfig loads and validates the config at path without starting anything.
func CheckConfig(path string) (*config.Config, error) {
	return config.NewManager(path).Load()
}

// DryRunPlan fetches the week and returns today's plan as a fresh cycle
// would see it. The catalog and timers are not touched.
func DryRunPlan(ctx context.Context, path string, log logx.Logger) (timeline.Plan, error) {
	cfg, err := CheckConfig(path)
	if err != nil {
		return timeline.Plan{}, err
	}
	tc, err := mapTimelineConfig(cfg)
	if err != nil {
		return timeline.Plan{}, err
	}
	days := tc.Days
	if len(days) == 0 {
		days = timeline.DefaultDays
	}
	grace := tc.Grace
	if grace <= 0 {
		grace = timeline.DefaultGrace
	}

	src := hsubs.New(mapSourceConfig(cfg), log.With(logx.String("comp", "source")))
	week, err := src.FetchWeek(ctx)
	if err != nil {
		return timeline.Plan{}, err
	}
	return timeline.BuildPlan(time.Now().In(tc.Location), week, days, grace), nil
}
