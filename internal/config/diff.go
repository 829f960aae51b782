package config

import (
	"reflect"
	"strings"

	"airwatch/pkg/logx"
)

// SummarizeChange lists the sections that differ and safe log fields for
// them. Secrets (token, DSN, AMQP URL) are never included.
func SummarizeChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}
	var (
		changed []string
		fields  []logx.Field
	)

	if oldCfg.Telegram.Token != newCfg.Telegram.Token ||
		!reflect.DeepEqual(oldCfg.Telegram.OwnerUserIDs, newCfg.Telegram.OwnerUserIDs) ||
		strings.TrimSpace(oldCfg.Telegram.GroupLog) != strings.TrimSpace(newCfg.Telegram.GroupLog) ||
		oldCfg.Telegram.PollTimeout != newCfg.Telegram.PollTimeout {
		changed = append(changed, "telegram")
		fields = append(fields,
			logx.Int("telegram.owner_count", len(newCfg.Telegram.OwnerUserIDs)),
			logx.Bool("telegram.group_log_set", strings.TrimSpace(newCfg.Telegram.GroupLog) != ""),
		)
	}
	if oldCfg.Logging != newCfg.Logging {
		changed = append(changed, "logging")
		fields = append(fields,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.telegram", newCfg.Logging.Telegram.Enabled),
		)
	}
	if !reflect.DeepEqual(oldCfg.Timeline, newCfg.Timeline) {
		changed = append(changed, "timeline")
		fields = append(fields,
			logx.String("timeline.timezone", newCfg.Timeline.Timezone),
			logx.String("timeline.grace_offset", newCfg.Timeline.GraceOffset),
		)
	}

	simple := []struct {
		name string
		a, b any
	}{
		{"source", oldCfg.Source, newCfg.Source},
		{"release", oldCfg.Release, newCfg.Release},
		{"task_engine", oldCfg.TaskEngine, newCfg.TaskEngine},
		{"notifier", oldCfg.Notifier, newCfg.Notifier},
		{"broadcast", oldCfg.Broadcast, newCfg.Broadcast},
		{"storage", oldCfg.Storage, newCfg.Storage},
		{"http", oldCfg.HTTP, newCfg.HTTP},
		{"events", oldCfg.Events, newCfg.Events},
		{"messages", oldCfg.Messages, newCfg.Messages},
	}
	for _, s := range simple {
		if s.a != s.b {
			changed = append(changed, s.name)
		}
	}
	return changed, fields
}

// RestartRequired reports sections that only take effect after a restart.
func RestartRequired(changed []string) []string {
	var out []string
	for _, c := range changed {
		switch c {
		case "source", "task_engine", "broadcast", "storage", "http", "events":
			out = append(out, c)
		}
	}
	return out
}
