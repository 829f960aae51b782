package app

import (
	"context"
	"reflect"
	"strings"

	"airwatch/internal/config"
	"airwatch/pkg/logx"
)

// startReload fans committed configs out to the live-reloadable components.
func (a *App) startReload() {
	sub := a.cfgm.Subscribe(8)
	a.sup.Go0("config.reload", func(c context.Context) {
		defer a.cfgm.Unsubscribe(sub)
		last := a.cfgm.Get()
		for {
			select {
			case <-c.Done():
				return
			case next, ok := <-sub:
				if !ok {
					return
				}
				// coalesce bursts, keep the newest
			drain:
				for {
					select {
					case newer := <-sub:
						if newer != nil {
							next = newer
						}
					default:
						break drain
					}
				}
				a.applyConfig(last, next)
				last = next
			}
		}
	})
}

func (a *App) applyConfig(prev, next *config.Config) {
	sections, fields := config.SummarizeChange(prev, next)
	if len(sections) == 0 {
		a.log.Info("config reloaded (no changes)")
		return
	}

	a.logs.Apply(mapLogConfig(next))
	a.router.SetOwners(next.Telegram.OwnerUserIDs)
	a.notif.Apply(mapNotifierConfig(next))
	if tc, err := mapTimelineConfig(next); err == nil {
		a.timeline.SetGrace(tc.Grace)
	}
	a.ui.SetTexts(mapTexts(next))

	if restart := restartSections(prev, next, sections); len(restart) > 0 {
		a.log.Warn("config changes need a restart to take effect", logx.String("sections", strings.Join(restart, ",")))
	}
	fields = append([]logx.Field{logx.String("changed", strings.Join(sections, ","))}, fields...)
	a.log.Info("config reloaded", fields...)
}

// restartSections adds the non-live parts of telegram and timeline to
// config.RestartRequired.
func restartSections(prev, next *config.Config, changed []string) []string {
	out := config.RestartRequired(changed)
	if prev.Telegram.Token != next.Telegram.Token || prev.Telegram.PollTimeout != next.Telegram.PollTimeout {
		out = append(out, "telegram")
	}
	pt, nt := prev.Timeline, next.Timeline
	pt.GraceOffset, nt.GraceOffset = "", ""
	if !reflect.DeepEqual(pt, nt) {
		out = append(out, "timeline")
	}
	return out
}
