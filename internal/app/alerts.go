package app

import (
	"context"
	"fmt"
	"time"

	"airwatch/internal/config"
	"airwatch/internal/eventbus"
	"airwatch/internal/notifier"
	"airwatch/internal/release"
	"airwatch/internal/transport"
	"airwatch/pkg/logx"
	"airwatch/pkg/tgui"
)

// fetch failures are alerted on the first one and then every alertEvery
const alertEvery = 10

// startAlerts tells the operators about schedule fetch failures and
// releases missing after their air time.
func (a *App) startAlerts() {
	events, unsub := a.bus.Subscribe(32, eventbus.TimelineFetchFailed, eventbus.ReleaseAnomaly)
	a.sup.Go0("ops.alerts", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				text, ok := alertText(ev)
				if !ok {
					continue
				}
				for _, to := range alertTargets(a.cfgm.Get()) {
					err := a.notif.Notify(c, notifier.Notification{
						Channel: "ops.alert",
						Target:  to,
						Text:    text,
						Options: &transport.SendOptions{ParseMode: "HTML", DisablePreview: true},
					})
					if err != nil {
						a.log.Warn("ops alert not queued", logx.String("type", ev.Type), logx.Int64("chat_id", to.ChatID), logx.Err(err))
					}
				}
			}
		}
	})
}

// alertText renders an alert for ev; ok is false when ev needs none.
func alertText(ev eventbus.Event) (string, bool) {
	switch ev.Type {
	case eventbus.TimelineFetchFailed:
		data, _ := ev.Data.(map[string]any)
		failures, _ := data["failures"].(int)
		if failures != 1 && failures%alertEvery != 0 {
			return "", false
		}
		cause, _ := data["error"].(string)
		h := tgui.Lines(
			tgui.B("⚠️ Schedule fetch failing"),
			tgui.Esc(fmt.Sprintf("failures in a row: %d", failures)),
		)
		if at, ok := data["retry_at"].(time.Time); ok && !at.IsZero() {
			h = tgui.Lines(h, tgui.Esc("next retry: "+at.Format("15:04:05 MST")))
		}
		if cause != "" {
			h = tgui.Lines(h, tgui.Code(tgui.TruncRunes(cause, 300)))
		}
		return h.String(), true
	case eventbus.ReleaseAnomaly:
		out, ok := ev.Data.(release.Outcome)
		if !ok {
			return "", false
		}
		h := tgui.Lines(
			tgui.B("❓ Release missing after air time"),
			tgui.B(out.Title),
			tgui.Esc(fmt.Sprintf("subscribers told: %d/%d", out.Delivered, out.Subscribers)),
		)
		return h.String(), true
	}
	return "", false
}

// alertTargets is the ops group when configured, else every owner in private.
func alertTargets(cfg *config.Config) []transport.ChatTarget {
	if cfg == nil {
		return nil
	}
	if id, err := cfg.GroupLogID(); err == nil && id != 0 {
		return []transport.ChatTarget{{ChatID: id, ThreadID: cfg.Logging.Telegram.ThreadID}}
	}
	out := make([]transport.ChatTarget, 0, len(cfg.Telegram.OwnerUserIDs))
	for _, id := range cfg.Telegram.OwnerUserIDs {
		out = append(out, transport.ChatTarget{ChatID: id})
	}
	return out
}
