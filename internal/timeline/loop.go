package timeline

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"airwatch/internal/domain"
	"airwatch/internal/eventbus"
	"airwatch/internal/task/engine"
	"airwatch/internal/task/scheduler"
	"airwatch/pkg/logx"
)

// Run executes queued cycles one at a time until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	cfg := s.config()
	s.log.Info("timeline loop started", logx.String("tz", cfg.Location.String()), logx.Duration("grace", cfg.Grace))
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case c := <-s.cmds:
			if err := s.RunCycle(ctx, c.marker); err != nil {
				s.log.Warn("timeline cycle failed", logx.String("reason", c.reason), logx.Err(err))
			}
		}
	}
}

// Kick queues a cycle with no marker. It is used once at startup.
func (s *Scheduler) Kick(reason string) { s.post(cycleCmd{reason: reason}) }

func (s *Scheduler) post(c cycleCmd) {
	select {
	case s.cmds <- c:
	default:
		s.log.Warn("timeline queue full, cycle dropped", logx.String("reason", c.reason), logx.String("marker", c.marker))
	}
}

// Watchdog restarts the chain when nothing will re-enter the loop: no cycle
// is queued or running and no rollover is armed.
func (s *Scheduler) Watchdog(context.Context) error {
	if s.running.Load() || len(s.cmds) > 0 {
		return nil
	}
	if _, ok := s.timers.Pending(rolloverTimer); ok {
		return nil
	}
	st := s.Snapshot()
	s.log.Warn("timeline chain lost, restarting", logx.String("phase", string(st.Phase)), logx.String("marker", st.LastMarker))
	s.post(cycleCmd{marker: st.LastMarker, reason: "watchdog"})
	return nil
}

// RunCycle fetches the week, resyncs the catalog on drift, arms the day
// rollover and the first qualifying notify check. marker is the title that
// was just checked and must not fire again immediately.
func (s *Scheduler) RunCycle(ctx context.Context, marker string) error {
	s.running.Store(true)
	defer s.running.Store(false)

	cfg := s.config()
	now := cfg.Now().In(cfg.Location)
	var checked []string
	s.update(func(st *SchedulerState) {
		st.Phase = PhaseResyncing
		st.LastMarker = marker
		st.LastCycle = now
		st.Cycles++
		st.markChecked(now, marker)
		checked = st.checkedOn(now)
	})

	week, err := s.src.FetchWeek(ctx)
	if err != nil {
		return s.retryLater(cfg, now, marker, fmt.Errorf("fetch week: %w", err))
	}
	if distinct := domain.DistinctTitles(week); len(distinct) < len(week) {
		s.log.Debug("repeated titles dropped from timetable", logx.Int("fetched", len(week)), logx.Int("kept", len(distinct)))
		week = distinct
	}
	gen, err := s.resync(ctx, week)
	if err != nil {
		return s.retryLater(cfg, now, marker, err)
	}

	plan := BuildPlan(now, week, cfg.Days, cfg.Grace, checked...)
	roll := domain.PendingAction{Kind: domain.DayRollover, FiresAt: plan.Rollover, Generation: gen}
	if err := s.timers.AddOnce(rolloverTimer, roll.FiresAt, cfg.ActionTimeout, s.reenter("", "rollover")); err != nil {
		return fmt.Errorf("arm rollover: %w", err)
	}

	var notify *domain.PendingAction
	if e, ok := plan.Next(); ok {
		a, err := s.armNotify(cfg, domain.PendingAction{Kind: domain.NotifyCheck, FiresAt: e.At, Item: e.Item, Generation: gen})
		if err != nil {
			return fmt.Errorf("arm notify %q: %w", e.Item.Title, err)
		}
		notify = &a
	}

	s.update(func(st *SchedulerState) {
		st.Day = plan.Day
		st.Generation = gen
		st.FetchFailures = 0
		st.LastError = ""
		st.Rollover = &roll
		if notify != nil {
			st.Notify = notify
		}
		// an immediate check may already have fired
		if st.Notify != nil {
			if _, ok := s.timers.Pending(notifyTimer(st.Notify.Item.Title)); !ok {
				st.Notify = nil
			}
		}
		st.Phase = PhaseRolloverPending
		if st.Notify != nil {
			st.Phase = PhaseArmed
		}
	})

	fields := []logx.Field{logx.String("day", plan.Day), logx.String("marker", marker), logx.Time("rollover", roll.FiresAt)}
	if notify != nil {
		fields = append(fields, logx.String("next", notify.Item.Title), logx.Time("fires_at", notify.FiresAt))
	}
	s.log.Info("timeline cycle", fields...)
	s.publish(eventbus.TimelineCycle, s.Snapshot())
	return nil
}

func (s *Scheduler) resync(ctx context.Context, week []domain.Item) (uint64, error) {
	stored, err := s.store.ListTitlesOrdered(ctx)
	if err != nil {
		return 0, fmt.Errorf("read catalog: %w", err)
	}
	if Detect(domain.Titles(week), stored) == Match {
		return s.store.Generation(), nil
	}
	s.update(func(st *SchedulerState) { st.Phase = PhaseResyncing })
	gen, err := s.store.Replace(ctx, week)
	if err != nil {
		return 0, fmt.Errorf("replace catalog: %w", err)
	}
	s.log.Info("timetable drift, catalog resynced", logx.Int("stored", len(stored)), logx.Int("fetched", len(week)), logx.Uint64("generation", gen))
	s.publish(eventbus.CatalogResynced, map[string]any{"generation": gen, "items": len(week), "previous": len(stored)})
	return gen, nil
}

// retryLater keeps the catalog as is and re-enters with the same marker
// after FetchRetry. It shares the rollover slot so only one re-entry is armed.
func (s *Scheduler) retryLater(cfg Config, now time.Time, marker string, cause error) error {
	retry := domain.PendingAction{Kind: domain.FetchRetry, FiresAt: now.Add(cfg.FetchRetry), Generation: s.store.Generation()}
	armErr := s.timers.AddOnce(rolloverTimer, retry.FiresAt, cfg.ActionTimeout, s.reenter(marker, "fetch_retry"))

	var failures int
	s.update(func(st *SchedulerState) {
		st.FetchFailures++
		failures = st.FetchFailures
		st.LastError = cause.Error()
		st.Rollover = &retry
		st.Phase = PhaseRolloverPending
		if st.Notify != nil {
			st.Phase = PhaseArmed
		}
	})
	s.publish(eventbus.TimelineFetchFailed, map[string]any{"failures": failures, "retry_at": retry.FiresAt, "error": cause.Error()})
	return errors.Join(cause, armErr)
}

// armNotify leaves an identical pending check alone so re-entries never
// shift or duplicate it. It returns the action that is armed.
func (s *Scheduler) armNotify(cfg Config, a domain.PendingAction) (domain.PendingAction, error) {
	name := notifyTimer(a.Item.Title)
	s.mu.Lock()
	cur := s.state.Notify
	s.mu.Unlock()
	if cur != nil && cur.Item.Title == a.Item.Title && cur.Generation == a.Generation {
		if _, ok := s.timers.Pending(name); ok {
			return *cur, nil
		}
	}
	if err := s.timers.AddOnce(name, a.FiresAt, cfg.ActionTimeout, s.notifyJob(a)); err != nil {
		return a, err
	}
	s.log.Debug("notify armed", logx.String("title", a.Item.Title), logx.Time("fires_at", a.FiresAt), logx.Uint64("generation", a.Generation))
	s.publish(eventbus.TimelineArmed, a)
	return a, nil
}

func (s *Scheduler) reenter(marker, reason string) scheduler.Job {
	return func(context.Context) error {
		s.post(cycleCmd{marker: marker, reason: reason})
		return nil
	}
}

// notifyJob runs the release check and always re-enters the loop with the
// item's title as marker, unless the action went stale.
func (s *Scheduler) notifyJob(a domain.PendingAction) scheduler.Job {
	return func(ctx context.Context) (err error) {
		s.update(func(st *SchedulerState) {
			if st.Notify != nil && st.Notify.Item.Title == a.Item.Title {
				st.Notify = nil
			}
			st.Phase = PhaseFired
		})

		reenter := true
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("notify check panicked", logx.String("title", a.Item.Title), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
				err = engine.NoRetry(fmt.Errorf("notify %q: panic: %v", a.Item.Title, r))
			}
			if reenter {
				cfg := s.config()
				now := cfg.Now().In(cfg.Location)
				s.update(func(st *SchedulerState) { st.markChecked(now, a.Item.Title) })
				s.post(cycleCmd{marker: a.Item.Title, reason: "notified"})
			}
		}()

		out, err := s.check.Check(ctx, a)
		switch {
		case errors.Is(err, domain.ErrStaleAction):
			reenter = false
			s.log.Debug("stale notify dropped", logx.String("title", a.Item.Title), logx.Err(err))
			return nil
		case err != nil:
			s.log.Warn("notify check failed", logx.String("title", a.Item.Title), logx.Err(err))
			return engine.NoRetry(err)
		}
		s.log.Debug("notify check done", logx.String("title", out.Title), logx.Bool("released", out.Released), logx.Int("delivered", out.Delivered))
		return nil
	}
}
