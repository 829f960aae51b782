package config

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

const sampleYAML = `
telegram:
  token: ${AIRWATCH_TEST_TOKEN}
  owner_user_ids: [1, 2]
  group_log: "-100123"
logging:
  level: info
  console: true
  file: {enabled: false, path: ""}
  telegram: {enabled: true, thread_id: 0, min_level: warn, rate_per_sec: 1}
timeline:
  timezone: America/Los_Angeles
  grace_offset: 300s
  fetch_retry: 1m
  action_timeout: 5m
source:
  base_url: https://example.invalid
release:
  check_timeout: 45s
task_engine: {workers: 2}
notifier:
  workers: 2
  queue_size: 64
  rate_per_sec: 20
  retry_max: 3
  retry_base: 500ms
  retry_max_delay: 10s
  dedup_window: 30m
  dedup_max_entries: 1000
broadcast: {}
storage: {driver: sqlite, path: ./airwatch.db}
http: {}
events: {}
messages:
  pick_day: "Pick a day"
`

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(body), 0o600); err != nil {
		t.Fatal(err)
	}
	return p
}

func TestLoadYAMLExpandsEnv(t *testing.T) {
	t.Setenv("AIRWATCH_TEST_TOKEN", "123:abc")
	p := writeFile(t, t.TempDir(), "config.yaml", sampleYAML)

	cfg, err := NewManager(p).Load()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if id, _ := cfg.GroupLogID(); id != -100123 {
		t.Fatalf("group log = %d", id)
	}
	if cfg.Messages.PickDay != "Pick a day" {
		t.Fatalf("messages.pick_day = %q", cfg.Messages.PickDay)
	}
	if got := DurationOr(cfg.Timeline.GraceOffset, 0); got != 300*time.Second {
		t.Fatalf("grace = %v", got)
	}
	if cfg.WatchdogSpec() != "@every 30m" {
		t.Fatalf("watchdog default = %q", cfg.WatchdogSpec())
	}
}

func TestParseRejectsUnknownFields(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"telegram":{"token":"x"},"plugins":{}}`)
	if _, err := NewManager(p).Parse(); err == nil || !strings.Contains(err.Error(), "plugins") {
		t.Fatalf("want unknown field error, got %v", err)
	}

	p = writeFile(t, dir, "trailing.json", `{"telegram":{"token":"x"}} {}`)
	if _, err := NewManager(p).Parse(); err == nil {
		t.Fatal("trailing data accepted")
	}
}

func TestValidate(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		mut  func(c *Config)
		want string
	}{
		{"ok", func(*Config) {}, ""},
		{"no token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token"},
		{"bad zone", func(c *Config) { c.Timeline.Timezone = "Mars/Olympus" }, "timeline.timezone"},
		{"bad duration", func(c *Config) { c.Timeline.GraceOffset = "five minutes" }, "timeline.grace_offset"},
		{"negative duration", func(c *Config) { c.Release.CheckTimeout = "-1s" }, "release.check_timeout"},
		{"six days", func(c *Config) { c.Timeline.Days = []string{"a", "b", "c", "d", "e", "f"} }, "timeline.days"},
		{"bad watchdog", func(c *Config) { c.Timeline.Watchdog = "every now and then" }, "timeline.watchdog"},
		{"postgres without dsn", func(c *Config) { c.Storage.Driver = "postgres" }, "storage.dsn"},
		{"unknown driver", func(c *Config) { c.Storage.Driver = "mongo" }, "storage.driver"},
		{"log sink without group", func(c *Config) { c.Logging.Telegram.Enabled = true }, "logging.telegram"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			c := &Config{Telegram: TelegramConfig{Token: "x"}}
			tc.mut(c)
			err := c.Validate()
			if tc.want == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("want error mentioning %q, got %v", tc.want, err)
			}
		})
	}
}

func TestSummarizeChange(t *testing.T) {
	t.Parallel()

	a := &Config{Telegram: TelegramConfig{Token: "x"}, Notifier: NotifierConfig{RatePerSec: 5}}
	b := *a
	b.Notifier.RatePerSec = 10
	b.Timeline.GraceOffset = "120s"
	b.Storage.Driver = "memory"

	changed, fields := SummarizeChange(a, &b)
	got := strings.Join(changed, ",")
	if got != "timeline,notifier,storage" {
		t.Fatalf("changed = %q", got)
	}
	if len(fields) == 0 {
		t.Fatal("expected log fields for timeline")
	}
	if r := RestartRequired(changed); len(r) != 1 || r[0] != "storage" {
		t.Fatalf("restart required = %v", r)
	}
}

func TestDotEnvDoesNotOverride(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, ".env", "AIRWATCH_DOTENV_A=file\nAIRWATCH_DOTENV_B=file\n")
	t.Setenv("AIRWATCH_DOTENV_A", "env")
	t.Setenv("AIRWATCH_DOTENV_B", "")
	os.Unsetenv("AIRWATCH_DOTENV_B")

	if err := LoadDotEnv(filepath.Join(dir, "missing.env"), p); err != nil {
		t.Fatal(err)
	}
	if got := os.Getenv("AIRWATCH_DOTENV_A"); got != "env" {
		t.Fatalf("A = %q, existing value overridden", got)
	}
	if got := os.Getenv("AIRWATCH_DOTENV_B"); got != "file" {
		t.Fatalf("B = %q, want value from file", got)
	}
}

func TestWatchPublishesValidChanges(t *testing.T) {
	dir := t.TempDir()
	p := writeFile(t, dir, "config.json", `{"telegram":{"token":"x"},"timeline":{"grace_offset":"300s"}}`)

	m := NewManager(p)
	m.debounce = 20 * time.Millisecond
	if _, err := m.Load(); err != nil {
		t.Fatal(err)
	}
	sub := m.Subscribe(1)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		_ = m.Watch(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	// give the watcher time to register the directory
	time.Sleep(200 * time.Millisecond)

	writeFile(t, dir, "config.json", `{"telegram":{"token":""}}`)
	time.Sleep(300 * time.Millisecond)
	if got := m.Get().Telegram.Token; got != "x" {
		t.Fatalf("invalid config committed, token = %q", got)
	}

	writeFile(t, dir, "config.json", `{"telegram":{"token":"x"},"timeline":{"grace_offset":"120s"}}`)
	select {
	case cfg := <-sub:
		if cfg.Timeline.GraceOffset != "120s" {
			t.Fatalf("published grace = %q", cfg.Timeline.GraceOffset)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("no reload published")
	}
}
