package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/robfig/cron/v3"
)

const DefaultTimezone = "America/Los_Angeles"

// Location resolves timeline.timezone.
func (c *Config) Location() (*time.Location, error) {
	tz := strings.TrimSpace(c.Timeline.Timezone)
	if tz == "" {
		tz = DefaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("timeline.timezone: %w", err)
	}
	return loc, nil
}

// GroupLogID parses telegram.group_log; zero means unset.
func (c *Config) GroupLogID() (int64, error) {
	s := strings.TrimSpace(c.Telegram.GroupLog)
	if s == "" {
		return 0, nil
	}
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("telegram.group_log: %w", err)
	}
	return id, nil
}

// WatchdogSpec returns the cron spec of the timeline watchdog, "" when disabled.
func (c *Config) WatchdogSpec() string {
	switch s := strings.TrimSpace(c.Timeline.Watchdog); s {
	case "":
		return "@every 30m"
	case "-":
		return ""
	default:
		return s
	}
}

// Validate reports every problem it finds, joined.
func (c *Config) Validate() error {
	var errs []error
	add := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}

	if strings.TrimSpace(c.Telegram.Token) == "" {
		add(errors.New("telegram.token is required"))
	}
	_, err := c.GroupLogID()
	add(err)
	_, err = c.Location()
	add(err)

	durations := map[string]string{
		"telegram.poll_timeout":       c.Telegram.PollTimeout,
		"timeline.grace_offset":       c.Timeline.GraceOffset,
		"timeline.fetch_retry":        c.Timeline.FetchRetry,
		"timeline.action_timeout":     c.Timeline.ActionTimeout,
		"source.timeout":              c.Source.Timeout,
		"release.check_timeout":       c.Release.CheckTimeout,
		"release.send_timeout":        c.Release.SendTimeout,
		"task_engine.default_timeout": c.TaskEngine.DefaultTimeout,
		"notifier.retry_base":         c.Notifier.RetryBase,
		"notifier.retry_max_delay":    c.Notifier.RetryMaxDelay,
		"notifier.send_timeout":       c.Notifier.SendTimeout,
		"notifier.dedup_window":       c.Notifier.DedupWindow,
		"storage.busy_timeout":        c.Storage.BusyTimeout,
		"http.read_timeout":           c.HTTP.ReadTimeout,
		"http.write_timeout":          c.HTTP.WriteTimeout,
	}
	for path, raw := range durations {
		_, err := ParseDurationField(path, raw)
		add(err)
	}

	if n := len(c.Timeline.Days); n != 0 && n != 7 {
		add(fmt.Errorf("timeline.days: want 7 labels, got %d", n))
	}
	if spec := c.WatchdogSpec(); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			add(fmt.Errorf("timeline.watchdog: %w", err))
		}
	}

	switch strings.ToLower(strings.TrimSpace(c.Storage.Driver)) {
	case "", "sqlite", "sqlite3", "memory":
	case "postgres", "postgresql":
		if strings.TrimSpace(c.Storage.DSN) == "" {
			add(errors.New("storage.dsn is required for postgres"))
		}
	default:
		add(fmt.Errorf("storage.driver: unknown driver %q", c.Storage.Driver))
	}

	if c.Logging.Telegram.Enabled && strings.TrimSpace(c.Telegram.GroupLog) == "" {
		add(errors.New("logging.telegram requires telegram.group_log"))
	}
	return errors.Join(errs...)
}
