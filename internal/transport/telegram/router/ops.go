package router

import (
	"context"
	"fmt"
	"strings"
	"time"

	"airwatch/internal/domain"
	"airwatch/internal/notifier/broadcast"
	"airwatch/internal/timeline"
	"airwatch/internal/transport"
	"airwatch/pkg/tgui"
)

// TimelineView exposes the scheduler to operators.
type TimelineView interface {
	Snapshot() timeline.SchedulerState
	Plan(ctx context.Context) (timeline.Plan, error)
}

type UserLister interface {
	ListUsers(ctx context.Context) ([]domain.User, error)
}

type Broadcaster interface {
	NewJob(name string, targets []transport.ChatTarget, text string, opt *transport.SendOptions) string
	Status(id string) (broadcast.JobStatus, bool)
}

// Ops holds the owner-only operational commands.
type Ops struct {
	adapter  transport.Adapter
	timeline TimelineView
	users    UserLister
	bcast    Broadcaster
}

func NewOps(adapter transport.Adapter, tl TimelineView, users UserLister, bcast Broadcaster) *Ops {
	return &Ops{adapter: adapter, timeline: tl, users: users, bcast: bcast}
}

func (o *Ops) Commands() []Command {
	return []Command{
		{Name: "status", Description: "Timeline state", Access: AccessOwnerOnly, Handle: o.handleStatus},
		{Name: "plan", Description: "Today's plan from a fresh fetch", Access: AccessOwnerOnly, Timeout: 45 * time.Second, Handle: o.handlePlan},
		{Name: "announce", Usage: "/announce <text>", Description: "Message every registered user", Access: AccessOwnerOnly, Handle: o.handleAnnounce},
		{Name: "announce_status", Usage: "/announce_status <id>", Description: "Progress of an announcement", Access: AccessOwnerOnly, Handle: o.handleAnnounceStatus},
	}
}

func (o *Ops) reply(ctx context.Context, req *Request, h tgui.H) error {
	_, err := o.adapter.SendText(ctx, req.Chat, h.String(), &transport.SendOptions{ParseMode: "HTML", DisablePreview: true})
	return err
}

func (o *Ops) handleStatus(ctx context.Context, req *Request) error {
	return o.reply(ctx, req, statusText(o.timeline.Snapshot()))
}

func statusText(st timeline.SchedulerState) tgui.H {
	lines := []tgui.H{
		tgui.B("Timeline"),
		tgui.H("phase: " + tgui.Code(string(st.Phase)).String()),
		tgui.H(fmt.Sprintf("day: %s, generation: %d, cycles: %d", tgui.Esc(st.Day), st.Generation, st.Cycles)),
	}
	if st.Notify != nil {
		lines = append(lines, tgui.H("next check: "+tgui.Esc(st.Notify.Item.Title).String()+" at "+st.Notify.FiresAt.Format("Mon 15:04")))
	}
	if st.Rollover != nil {
		lines = append(lines, tgui.H(fmt.Sprintf("%s at %s", st.Rollover.Kind, st.Rollover.FiresAt.Format("Mon 15:04"))))
	}
	if st.LastMarker != "" {
		lines = append(lines, tgui.H("last checked: "+tgui.Esc(st.LastMarker).String()))
	}
	if st.FetchFailures > 0 {
		lines = append(lines, tgui.H(fmt.Sprintf("fetch failures: %d", st.FetchFailures)))
	}
	if st.LastError != "" {
		lines = append(lines, tgui.H("last error: "+tgui.Code(tgui.TruncRunes(st.LastError, 300)).String()))
	}
	return tgui.Lines(lines...)
}

func (o *Ops) handlePlan(ctx context.Context, req *Request) error {
	p, err := o.timeline.Plan(ctx)
	if err != nil {
		return o.reply(ctx, req, tgui.H("plan failed: "+tgui.Code(err.Error()).String()))
	}
	lines := []tgui.H{tgui.B("Plan for " + p.Day)}
	for _, e := range p.Entries {
		line := fmt.Sprintf("• %s %s %s", tgui.Code(e.Item.AirTime.String()), tgui.Esc(e.Item.Title), e.Decision)
		if !e.At.IsZero() {
			line += " @ " + e.At.Format("15:04:05")
		}
		lines = append(lines, tgui.H(line))
	}
	if len(p.Entries) == 0 {
		lines = append(lines, tgui.I("nothing scheduled today"))
	}
	lines = append(lines, tgui.H("rollover: "+p.Rollover.Format("Mon 15:04")))
	return o.reply(ctx, req, tgui.Lines(lines...))
}

func (o *Ops) handleAnnounce(ctx context.Context, req *Request) error {
	text := strings.TrimSpace(strings.Join(req.Args, " "))
	if text == "" {
		return o.reply(ctx, req, tgui.H("usage: "+tgui.Code("/announce <text>").String()))
	}
	users, err := o.users.ListUsers(ctx)
	if err != nil {
		return err
	}
	targets := make([]transport.ChatTarget, 0, len(users))
	for _, u := range users {
		targets = append(targets, transport.ChatTarget{ChatID: u.ID})
	}
	id := o.bcast.NewJob("announce", targets, text, &transport.SendOptions{DisablePreview: true})
	return o.reply(ctx, req, tgui.H(fmt.Sprintf("queued for %d user(s), job %s", len(targets), tgui.Code(id))))
}

func (o *Ops) handleAnnounceStatus(ctx context.Context, req *Request) error {
	if len(req.Args) == 0 {
		return o.reply(ctx, req, tgui.H("usage: "+tgui.Code("/announce_status <id>").String()))
	}
	st, ok := o.bcast.Status(req.Args[0])
	if !ok {
		return o.reply(ctx, req, tgui.Esc("unknown job"))
	}
	state := "queued"
	switch {
	case st.Running:
		state = "running"
	case !st.DoneAt.IsZero():
		state = "done"
	}
	return o.reply(ctx, req, tgui.H(fmt.Sprintf("%s: %d/%d sent, %d failed (%s)", tgui.Code(st.ID), st.Done, st.Total, st.Failed, state)))
}
