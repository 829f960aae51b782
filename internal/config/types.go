// Package config loads the airwatch configuration from JSON or YAML, expands
// environment variables and hot-reloads it when the file changes.
package config

// Config is the on-disk configuration. Durations are Go duration strings.
type Config struct {
	Telegram   TelegramConfig   `json:"telegram"`
	Logging    LoggingConfig    `json:"logging"`
	Timeline   TimelineConfig   `json:"timeline"`
	Source     SourceConfig     `json:"source"`
	Release    ReleaseConfig    `json:"release"`
	TaskEngine TaskEngineConfig `json:"task_engine"`
	Notifier   NotifierConfig   `json:"notifier"`
	Broadcast  BroadcastConfig  `json:"broadcast"`
	Storage    StorageConfig    `json:"storage"`
	HTTP       HTTPConfig       `json:"http"`
	Events     EventsConfig     `json:"events"`
	Messages   MessagesConfig   `json:"messages"`
}

type TelegramConfig struct {
	Token        string  `json:"token"`
	OwnerUserIDs []int64 `json:"owner_user_ids"`
	// GroupLog is the ops group chat id; owners are alerted there when set.
	GroupLog    string `json:"group_log,omitempty"`
	PollTimeout string `json:"poll_timeout,omitempty"`
}

type LoggingConfig struct {
	Level    string          `json:"level"`
	Console  bool            `json:"console"`
	File     LoggingFile     `json:"file"`
	Telegram LoggingTelegram `json:"telegram"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

type LoggingTelegram struct {
	Enabled    bool   `json:"enabled"`
	ThreadID   int    `json:"thread_id"`
	MinLevel   string `json:"min_level"`
	RatePerSec int    `json:"rate_per_sec"`
}

// TimelineConfig drives the release timeline.
//
// Defaults: timezone "America/Los_Angeles", grace_offset "300s",
// fetch_retry "1m", action_timeout "5m", watchdog "@every 30m",
// days Monday..Sunday as printed by the schedule page.
type TimelineConfig struct {
	Timezone      string   `json:"timezone"`
	GraceOffset   string   `json:"grace_offset"`
	FetchRetry    string   `json:"fetch_retry"`
	ActionTimeout string   `json:"action_timeout"`
	Days          []string `json:"days,omitempty"`
	// Watchdog is a cron spec; "-" disables it.
	Watchdog string `json:"watchdog,omitempty"`
}

type SourceConfig struct {
	BaseURL      string `json:"base_url"`
	SchedulePath string `json:"schedule_path,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
	UserAgent    string `json:"user_agent,omitempty"`
	ShortenerURL string `json:"shortener_url,omitempty"`
}

type ReleaseConfig struct {
	CheckTimeout string `json:"check_timeout,omitempty"`
	SendTimeout  string `json:"send_timeout,omitempty"`
	Fanout       int    `json:"fanout,omitempty"`
}

type TaskEngineConfig struct {
	Workers        int    `json:"workers,omitempty"`
	QueueSize      int    `json:"queue_size,omitempty"`
	DefaultTimeout string `json:"default_timeout,omitempty"`
	HistorySize    int    `json:"history_size,omitempty"`
}

type NotifierConfig struct {
	Workers         int    `json:"workers"`
	QueueSize       int    `json:"queue_size"`
	RatePerSec      int    `json:"rate_per_sec"`
	RetryMax        int    `json:"retry_max"`
	RetryBase       string `json:"retry_base"`
	RetryMaxDelay   string `json:"retry_max_delay"`
	SendTimeout     string `json:"send_timeout,omitempty"`
	DedupWindow     string `json:"dedup_window"`
	DedupMaxEntries int    `json:"dedup_max_entries"`
	PersistDedup    bool   `json:"persist_dedup,omitempty"`
}

type BroadcastConfig struct {
	Workers    int `json:"workers,omitempty"`
	RatePerSec int `json:"rate_per_sec,omitempty"`
	RetryMax   int `json:"retry_max,omitempty"`
}

// StorageConfig selects the catalog backend: sqlite (default), postgres or memory.
type StorageConfig struct {
	Driver      string `json:"driver"`
	Path        string `json:"path,omitempty"`
	DSN         string `json:"dsn,omitempty"`
	BusyTimeout string `json:"busy_timeout,omitempty"`
}

// HTTPConfig enables the status API when Addr is set.
type HTTPConfig struct {
	Addr         string `json:"addr,omitempty"`
	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	Pprof        bool   `json:"pprof,omitempty"`
}

// EventsConfig enables AMQP event forwarding when AMQPURL is set.
type EventsConfig struct {
	AMQPURL  string `json:"amqp_url,omitempty"`
	Exchange string `json:"exchange,omitempty"`
}

type MessagesConfig struct {
	ShowsDay     string `json:"shows_day,omitempty"`
	PickDay      string `json:"pick_day,omitempty"`
	PMOnly       string `json:"pm_only,omitempty"`
	GreetSeen    string `json:"greet_seen,omitempty"`
	GreetNotSeen string `json:"greet_notseen,omitempty"`
	NoSubs       string `json:"no_subs,omitempty"`
	ZoneLabel    string `json:"zone_label,omitempty"`
}
