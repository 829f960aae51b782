// Package timeline drives the daily release chain: it resyncs the catalog
// when the weekly timetable drifts, arms one notify check at a time and
// re-arms itself for the next day.
package timeline

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"airwatch/internal/domain"
	"airwatch/internal/eventbus"
	"airwatch/internal/release"
	"airwatch/internal/task/scheduler"
	"airwatch/pkg/logx"
)

const (
	rolloverTimer = "timeline.rollover"
	notifyPrefix  = "timeline.notify:"
)

// DefaultGrace is how long after air time a release is checked.
const DefaultGrace = 300 * time.Second

type Config struct {
	Location   *time.Location
	Grace      time.Duration
	FetchRetry time.Duration
	// ActionTimeout bounds one fired notify check.
	ActionTimeout time.Duration
	// Days are the weekday labels of the source, Monday first.
	Days []string
	Now  func() time.Time
}

func (c Config) withDefaults() (Config, error) {
	if c.Location == nil {
		c.Location = time.UTC
	}
	if c.Grace <= 0 {
		c.Grace = DefaultGrace
	}
	if c.FetchRetry <= 0 {
		c.FetchRetry = time.Minute
	}
	if c.ActionTimeout <= 0 {
		c.ActionTimeout = 5 * time.Minute
	}
	if len(c.Days) == 0 {
		c.Days = DefaultDays
	}
	if len(c.Days) != 7 {
		return c, fmt.Errorf("timeline: need 7 weekday labels, got %d", len(c.Days))
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c, nil
}

type WeekSource interface {
	FetchWeek(ctx context.Context) ([]domain.Item, error)
}

type Catalog interface {
	ListTitlesOrdered(ctx context.Context) ([]string, error)
	Replace(ctx context.Context, items []domain.Item) (uint64, error)
	Generation() uint64
}

// Timers arms named one-shot jobs; re-arming a name replaces it.
type Timers interface {
	AddOnce(name string, at time.Time, timeout time.Duration, job scheduler.Job) error
	Pending(name string) (time.Time, bool)
}

type Checker interface {
	Check(ctx context.Context, a domain.PendingAction) (release.Outcome, error)
}

type cycleCmd struct {
	marker string
	reason string
}

type Scheduler struct {
	src    WeekSource
	store  Catalog
	timers Timers
	check  Checker
	bus    eventbus.Bus
	log    logx.Logger

	cmds    chan cycleCmd
	running atomic.Bool

	mu    sync.Mutex
	cfg   Config
	state SchedulerState
}

func New(cfg Config, src WeekSource, store Catalog, timers Timers, check Checker, bus eventbus.Bus, log logx.Logger) (*Scheduler, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	return &Scheduler{
		src:    src,
		store:  store,
		timers: timers,
		check:  check,
		bus:    bus,
		log:    log,
		cmds:   make(chan cycleCmd, 16),
		cfg:    cfg,
		state:  SchedulerState{Phase: PhaseIdle, Generation: store.Generation()},
	}, nil
}

// SetGrace changes the grace offset for cycles that start afterwards.
func (s *Scheduler) SetGrace(d time.Duration) {
	if d <= 0 {
		return
	}
	s.mu.Lock()
	s.cfg.Grace = d
	s.mu.Unlock()
}

func (s *Scheduler) Snapshot() SchedulerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state.clone()
}

// Plan fetches the week and reports what a cycle would do now, without
// touching the catalog or arming anything.
func (s *Scheduler) Plan(ctx context.Context) (Plan, error) {
	cfg := s.config()
	week, err := s.src.FetchWeek(ctx)
	if err != nil {
		return Plan{}, err
	}
	now := cfg.Now().In(cfg.Location)
	return BuildPlan(now, week, cfg.Days, cfg.Grace, s.Snapshot().checkedOn(now)...), nil
}

func (s *Scheduler) config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

func (s *Scheduler) update(fn func(st *SchedulerState)) {
	s.mu.Lock()
	fn(&s.state)
	s.mu.Unlock()
}

func (s *Scheduler) publish(typ string, data any) {
	if s.bus != nil {
		s.bus.Publish(eventbus.Event{Type: typ, Data: data})
	}
}

func notifyTimer(title string) string { return notifyPrefix + title }
