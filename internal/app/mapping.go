package app

import (
	"strings"
	"time"

	"airwatch/internal/catalog"
	"airwatch/internal/config"
	"airwatch/internal/httpapi"
	"airwatch/internal/notifier"
	"airwatch/internal/notifier/broadcast"
	"airwatch/internal/publisher"
	"airwatch/internal/release"
	"airwatch/internal/source/hsubs"
	"airwatch/internal/task/engine"
	"airwatch/internal/timeline"
	"airwatch/internal/transport/telegram/router"
	"airwatch/pkg/logx"
)

// Durations are validated by config.Validate before any mapping runs, so
// the mappers fall back to defaults instead of returning errors.

func mapLogConfig(cfg *config.Config) logx.Config {
	groupLog, _ := cfg.GroupLogID()
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
		Telegram: logx.TelegramConfig{
			Enabled:    cfg.Logging.Telegram.Enabled && groupLog != 0,
			ChatID:     groupLog,
			ThreadID:   cfg.Logging.Telegram.ThreadID,
			MinLevel:   cfg.Logging.Telegram.MinLevel,
			RatePerSec: cfg.Logging.Telegram.RatePerSec,
		},
	}
}

func mapStorageConfig(cfg *config.Config) catalog.Config {
	sc := cfg.Storage
	path := strings.TrimSpace(sc.Path)
	if path == "" {
		path = "./data/airwatch.db"
	}
	return catalog.Config{
		Driver:      strings.ToLower(strings.TrimSpace(sc.Driver)),
		Path:        path,
		DSN:         strings.TrimSpace(sc.DSN),
		BusyTimeout: config.DurationOr(sc.BusyTimeout, 5*time.Second),
	}
}

func mapEngineConfig(cfg *config.Config) engine.Config {
	te := cfg.TaskEngine
	return engine.Config{
		Workers:        te.Workers,
		QueueSize:      te.QueueSize,
		DefaultTimeout: config.DurationOr(te.DefaultTimeout, 2*time.Minute),
		HistorySize:    te.HistorySize,
	}
}

func mapNotifierConfig(cfg *config.Config) notifier.Config {
	n := cfg.Notifier
	return notifier.Config{
		Workers:         n.Workers,
		QueueSize:       n.QueueSize,
		RatePerSec:      n.RatePerSec,
		RetryMax:        n.RetryMax,
		RetryBase:       config.DurationOr(n.RetryBase, 0),
		RetryMaxDelay:   config.DurationOr(n.RetryMaxDelay, 0),
		SendTimeout:     config.DurationOr(n.SendTimeout, 0),
		DedupWindow:     config.DurationOr(n.DedupWindow, 0),
		DedupMaxEntries: n.DedupMaxEntries,
		PersistDedup:    n.PersistDedup,
	}
}

func mapBroadcastConfig(cfg *config.Config) broadcast.Config {
	return broadcast.Config{
		Workers:    cfg.Broadcast.Workers,
		RatePerSec: cfg.Broadcast.RatePerSec,
		RetryMax:   cfg.Broadcast.RetryMax,
	}
}

func mapSourceConfig(cfg *config.Config) hsubs.Config {
	s := cfg.Source
	return hsubs.Config{
		BaseURL:      strings.TrimSpace(s.BaseURL),
		SchedulePath: strings.TrimSpace(s.SchedulePath),
		Timeout:      config.DurationOr(s.Timeout, 0),
		UserAgent:    s.UserAgent,
		ShortenerURL: strings.TrimSpace(s.ShortenerURL),
	}
}

func mapReleaseConfig(cfg *config.Config) release.Config {
	r := cfg.Release
	return release.Config{
		CheckTimeout: config.DurationOr(r.CheckTimeout, 0),
		SendTimeout:  config.DurationOr(r.SendTimeout, 0),
		Fanout:       r.Fanout,
	}
}

func mapTimelineConfig(cfg *config.Config) (timeline.Config, error) {
	loc, err := cfg.Location()
	if err != nil {
		return timeline.Config{}, err
	}
	t := cfg.Timeline
	return timeline.Config{
		Location:      loc,
		Grace:         config.DurationOr(t.GraceOffset, 0),
		FetchRetry:    config.DurationOr(t.FetchRetry, 0),
		ActionTimeout: config.DurationOr(t.ActionTimeout, 0),
		Days:          t.Days,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) httpapi.Config {
	h := cfg.HTTP
	return httpapi.Config{
		Addr:         strings.TrimSpace(h.Addr),
		ReadTimeout:  config.DurationOr(h.ReadTimeout, 0),
		WriteTimeout: config.DurationOr(h.WriteTimeout, 0),
		Pprof:        h.Pprof,
	}
}

func mapEventsConfig(cfg *config.Config) publisher.Config {
	return publisher.Config{
		URL:      strings.TrimSpace(cfg.Events.AMQPURL),
		Exchange: strings.TrimSpace(cfg.Events.Exchange),
	}
}

// mapTexts overlays configured messages on the defaults.
func mapTexts(cfg *config.Config) router.Texts {
	t := router.DefaultTexts()
	m := cfg.Messages
	set := func(dst *string, v string) {
		if strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	set(&t.ShowsDay, m.ShowsDay)
	set(&t.PickDay, m.PickDay)
	set(&t.PMOnly, m.PMOnly)
	set(&t.GreetSeen, m.GreetSeen)
	set(&t.GreetNotSeen, m.GreetNotSeen)
	set(&t.NoSubs, m.NoSubs)
	set(&t.ZoneLabel, m.ZoneLabel)
	return t
}

func pollTimeout(cfg *config.Config) time.Duration {
	return config.DurationOr(cfg.Telegram.PollTimeout, 10*time.Second)
}
