package app

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"airwatch/internal/config"
	"airwatch/internal/eventbus"
	"airwatch/internal/release"
	"airwatch/internal/transport"
)

func TestMapTextsOverlaysDefaults(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{Messages: config.MessagesConfig{PickDay: "Choose:", ZoneLabel: "JST"}}
	got := mapTexts(cfg)
	if got.PickDay != "Choose:" || got.ZoneLabel != "JST" {
		t.Fatalf("overrides not applied: %+v", got)
	}
	if got.ShowsDay != "Shows airing on" {
		t.Fatalf("default lost: %q", got.ShowsDay)
	}
}

func TestMapLogConfigNeedsGroupLog(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Logging.Telegram.Enabled = true
	if mapLogConfig(cfg).Telegram.Enabled {
		t.Fatal("telegram sink enabled without group_log")
	}
	cfg.Telegram.GroupLog = "-1001"
	lc := mapLogConfig(cfg)
	if !lc.Telegram.Enabled || lc.Telegram.ChatID != -1001 {
		t.Fatalf("telegram sink = %+v", lc.Telegram)
	}
}

func TestMapStorageAndTimelineDefaults(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	sc := mapStorageConfig(cfg)
	if sc.Path == "" || sc.BusyTimeout != 5*time.Second {
		t.Fatalf("storage = %+v", sc)
	}
	tc, err := mapTimelineConfig(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if tc.Location.String() != config.DefaultTimezone {
		t.Fatalf("location = %s", tc.Location)
	}
	cfg.Timeline.Timezone = "Not/AZone"
	if _, err := mapTimelineConfig(cfg); err == nil {
		t.Fatal("want error for bad timezone")
	}
}

func TestAlertTargets(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{}
	cfg.Telegram.OwnerUserIDs = []int64{7, 8}
	want := []transport.ChatTarget{{ChatID: 7}, {ChatID: 8}}
	if got := alertTargets(cfg); !reflect.DeepEqual(got, want) {
		t.Fatalf("owners: got %+v", got)
	}

	cfg.Telegram.GroupLog = "-100"
	cfg.Logging.Telegram.ThreadID = 3
	want = []transport.ChatTarget{{ChatID: -100, ThreadID: 3}}
	if got := alertTargets(cfg); !reflect.DeepEqual(got, want) {
		t.Fatalf("group: got %+v", got)
	}
	if alertTargets(nil) != nil {
		t.Fatal("nil config should have no targets")
	}
}

func TestAlertText(t *testing.T) {
	t.Parallel()

	fetch := func(n int) eventbus.Event {
		return eventbus.Event{Type: eventbus.TimelineFetchFailed, Data: map[string]any{
			"failures": n, "retry_at": time.Time{}, "error": errors.New("fetch: <timeout>").Error(),
		}}
	}
	tests := []struct {
		name string
		ev   eventbus.Event
		ok   bool
		has  string
	}{
		{"first failure", fetch(1), true, "&lt;timeout&gt;"},
		{"second failure", fetch(2), false, ""},
		{"tenth failure", fetch(10), true, "failures in a row: 10"},
		{"anomaly", eventbus.Event{Type: eventbus.ReleaseAnomaly, Data: release.Outcome{Title: "A & B", Subscribers: 3, Delivered: 2}}, true, "A &amp; B"},
		{"anomaly bad payload", eventbus.Event{Type: eventbus.ReleaseAnomaly, Data: "x"}, false, ""},
		{"other", eventbus.Event{Type: eventbus.ReleaseDelivered}, false, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, ok := alertText(tt.ev)
			if ok != tt.ok {
				t.Fatalf("ok = %v, want %v", ok, tt.ok)
			}
			if tt.has != "" && !strings.Contains(got, tt.has) {
				t.Fatalf("text %q does not contain %q", got, tt.has)
			}
		})
	}
}

func TestRestartSections(t *testing.T) {
	t.Parallel()

	prev := &config.Config{}
	prev.Timeline.GraceOffset = "300s"

	next := *prev
	next.Timeline.GraceOffset = "120s"
	changed, _ := config.SummarizeChange(prev, &next)
	if got := restartSections(prev, &next, changed); len(got) != 0 {
		t.Fatalf("grace change needs no restart, got %v", got)
	}

	next.Timeline.Timezone = "UTC"
	next.Storage.Driver = "memory"
	changed, _ = config.SummarizeChange(prev, &next)
	got := restartSections(prev, &next, changed)
	if !reflect.DeepEqual(got, []string{"storage", "timeline"}) {
		t.Fatalf("restart sections = %v", got)
	}
}
