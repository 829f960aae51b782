// Package app wires the airwatch components together and owns their lifecycle.
package app

import (
	"context"
	"fmt"
	"time"

	"airwatch/internal/catalog"
	"airwatch/internal/config"
	"airwatch/internal/eventbus"
	"airwatch/internal/httpapi"
	"airwatch/internal/notifier"
	"airwatch/internal/notifier/broadcast"
	"airwatch/internal/publisher"
	"airwatch/internal/release"
	"airwatch/internal/runtime/supervisor"
	"airwatch/internal/source/hsubs"
	"airwatch/internal/task/engine"
	"airwatch/internal/task/scheduler"
	"airwatch/internal/timeline"
	"airwatch/internal/transport"
	telegram "airwatch/internal/transport/telegram/adapter"
	"airwatch/internal/transport/telegram/router"
	"airwatch/pkg/logx"
	"airwatch/pkg/systemd"
)

const watchdogTimer = "timeline.watchdog"

type App struct {
	cfgm *config.Manager
	sup  *supervisor.Supervisor

	log   logx.Logger
	logs  *logx.Service
	bus   eventbus.Bus
	store catalog.Store

	adapter  *telegram.Adapter
	engine   *engine.Service
	sched    *scheduler.Service
	notif    *notifier.Service
	bcast    *broadcast.Service
	timeline *timeline.Scheduler
	router   *router.Router
	ui       *router.SubscriptionUI

	// optional, nil when disabled
	http   *httpapi.Server
	events *publisher.RabbitMQ

	updates chan transport.Update
}

// New loads the config and builds every component without starting any.
func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, root := logx.New(mapLogConfig(cfg), nil)
	log := root.With(logx.String("comp", "app"))

	ad, err := telegram.New(telegram.Config{
		Token:       cfg.Telegram.Token,
		PollTimeout: pollTimeout(cfg),
	}, root.With(logx.String("comp", "telegram")))
	if err != nil {
		return nil, err
	}
	logSvc.SetSender(ad)

	bus := eventbus.New()

	sc := mapStorageConfig(cfg)
	store, err := catalog.Open(sc, root.With(logx.String("comp", "catalog")))
	if err != nil {
		return nil, fmt.Errorf("open catalog: %w", err)
	}

	tcfg, err := mapTimelineConfig(cfg)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	engineSvc := engine.New(mapEngineConfig(cfg), root.With(logx.String("comp", "taskengine")), bus)
	schedSvc := scheduler.New(scheduler.Config{Timezone: tcfg.Location.String()}, engineSvc, root.With(logx.String("comp", "scheduler")))
	notifSvc := notifier.New(mapNotifierConfig(cfg), ad, root.With(logx.String("comp", "notifier")), bus, store)
	bcastSvc := broadcast.New(mapBroadcastConfig(cfg), ad, root.With(logx.String("comp", "broadcast")))

	src := hsubs.New(mapSourceConfig(cfg), root.With(logx.String("comp", "source")))
	disp := release.NewDispatcher(mapReleaseConfig(cfg), store, src, notifSvc, bus, root.With(logx.String("comp", "release")))
	tl, err := timeline.New(tcfg, src, store, schedSvc, disp, bus, root.With(logx.String("comp", "timeline")))
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	days := tcfg.Days
	if len(days) == 0 {
		days = timeline.DefaultDays
	}
	rt := router.New(router.Config{}, ad, cfg.Telegram.OwnerUserIDs, root.With(logx.String("comp", "router")))
	ui := router.NewSubscriptionUI(store, ad, days, mapTexts(cfg))
	ops := router.NewOps(ad, tl, store, bcastSvc)
	rt.Register(append(ui.Commands(), ops.Commands()...), ui.Callbacks())

	a := &App{
		cfgm:     cfgm,
		log:      log,
		logs:     logSvc,
		bus:      bus,
		store:    store,
		adapter:  ad,
		engine:   engineSvc,
		sched:    schedSvc,
		notif:    notifSvc,
		bcast:    bcastSvc,
		timeline: tl,
		router:   rt,
		ui:       ui,
		updates:  make(chan transport.Update, 256),
	}

	if hc := mapHTTPConfig(cfg); hc.Addr != "" {
		a.http = httpapi.New(hc, httpapi.Deps{
			Timeline: tl,
			Catalog:  store,
			Engine:   engineSvc,
			Timers:   schedSvc,
		}, root.With(logx.String("comp", "httpapi")))
	}
	if ec := mapEventsConfig(cfg); ec.URL != "" {
		a.events = publisher.NewRabbitMQ(ec, bus, root.With(logx.String("comp", "events")))
	}
	return a, nil
}

// Done is closed when the app context ends (fatal error or Stop).
func (a *App) Done() <-chan struct{} {
	if a.sup == nil {
		ch := make(chan struct{})
		close(ch)
		return ch
	}
	return a.sup.Context().Done()
}

// Err returns the first fatal error seen by the supervisor.
func (a *App) Err() error {
	if a.sup == nil {
		return nil
	}
	return a.sup.Err()
}

func (a *App) Start(ctx context.Context) error {
	a.sup = supervisor.New(ctx, supervisor.WithLogger(a.log), supervisor.WithCancelOnError(true))
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(_ context.Context, cfg *config.Config) error {
		_, err := mapTimelineConfig(cfg)
		return err
	})

	runCtx := a.sup.Context()
	if err := a.adapter.Start(runCtx, a.updates); err != nil {
		return err
	}
	a.notif.Start(runCtx)
	a.bcast.Start(runCtx)
	a.engine.Start(runCtx)
	a.sched.Start(runCtx)

	a.sup.Go0("telegram.menu", func(c context.Context) {
		mctx, cancel := context.WithTimeout(c, 15*time.Second)
		defer cancel()
		if err := a.adapter.SetCommands(mctx, a.router.Menu()); err != nil {
			a.log.Warn("menu commands update failed", logx.Err(err))
		}
	})
	a.sup.Go("router.dispatch", func(c context.Context) error {
		return a.router.DispatchLoop(c, a.updates)
	})

	a.sup.Go("timeline.loop", a.timeline.Run)
	a.timeline.Kick("startup")
	if spec := a.cfgm.Get().WatchdogSpec(); spec != "" {
		if err := a.sched.AddCron(watchdogTimer, spec, 30*time.Second, a.timeline.Watchdog); err != nil {
			return fmt.Errorf("timeline watchdog: %w", err)
		}
	}

	if a.http != nil {
		a.sup.GoRestart("httpapi", a.http.Run,
			supervisor.WithRestartBackoff(time.Second, 30*time.Second),
			supervisor.WithStopOnCleanExit(true),
		)
	}
	if a.events != nil {
		a.sup.GoRestart("events.amqp", a.events.Run,
			supervisor.WithRestartBackoff(2*time.Second, time.Minute),
			supervisor.WithStopOnCleanExit(true),
		)
	}

	a.startAlerts()
	a.startEventLog()
	a.startReload()
	a.sup.Go("config.watch", a.cfgm.Watch)

	if sent, err := systemd.Ready(); err != nil {
		a.log.Warn("sd_notify ready failed", logx.Err(err))
	} else if sent {
		a.log.Debug("sd_notify ready sent")
	}
	if iv := systemd.WatchdogInterval(); iv > 0 {
		a.sup.Go0("systemd.watchdog", func(c context.Context) {
			systemd.Watchdog(c, iv, func() bool { return c.Err() == nil })
		})
	}

	a.log.Info("app started",
		logx.Bool("http", a.http != nil),
		logx.Bool("events", a.events != nil),
		logx.Int("owners", len(a.cfgm.Get().Telegram.OwnerUserIDs)),
	)
	return nil
}

// startEventLog logs every bus event at debug level.
func (a *App) startEventLog() {
	events, unsub := a.bus.Subscribe(128)
	a.sup.Go0("eventbus.log", func(c context.Context) {
		defer unsub()
		for {
			select {
			case <-c.Done():
				return
			case e, ok := <-events:
				if !ok {
					return
				}
				a.log.Debug("event", logx.String("type", e.Type), logx.Time("time", e.Time))
			}
		}
	})
}
