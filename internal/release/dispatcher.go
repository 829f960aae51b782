// Package release checks whether a scheduled item came out and tells its
// subscribers, either with the release links or with an anomaly notice.
package release

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"airwatch/internal/domain"
	"airwatch/internal/eventbus"
	"airwatch/pkg/logx"
)

type Config struct {
	CheckTimeout time.Duration
	SendTimeout  time.Duration
	// Fanout bounds concurrent deliveries per check.
	Fanout int
}

func (c Config) withDefaults() Config {
	if c.CheckTimeout <= 0 {
		c.CheckTimeout = 45 * time.Second
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 15 * time.Second
	}
	if c.Fanout <= 0 {
		c.Fanout = 8
	}
	return c
}

// Catalog is the read side of the catalog store the dispatcher needs.
type Catalog interface {
	Generation() uint64
	IDForTitle(ctx context.Context, title string) (int64, error)
	SubscribersFor(ctx context.Context, itemID int64) ([]int64, error)
	UsernameFor(ctx context.Context, userID int64) (string, error)
}

type Source interface {
	FetchRelease(ctx context.Context, it domain.Item) (domain.ReleaseInfo, error)
}

// Channel delivers one message to one user.
type Channel interface {
	Send(ctx context.Context, userID int64, text string, links []domain.AssetLink) error
}

// Outcome summarizes one check.
type Outcome struct {
	Title       string `json:"title"`
	Episode     string `json:"episode,omitempty"`
	Released    bool   `json:"released"`
	Subscribers int    `json:"subscribers"`
	Delivered   int    `json:"delivered"`
	Failed      int    `json:"failed"`
}

type Dispatcher struct {
	cfg   Config
	store Catalog
	src   Source
	ch    Channel
	bus   eventbus.Bus
	log   logx.Logger
}

func NewDispatcher(cfg Config, store Catalog, src Source, ch Channel, bus eventbus.Bus, log logx.Logger) *Dispatcher {
	return &Dispatcher{cfg: cfg.withDefaults(), store: store, src: src, ch: ch, bus: bus, log: log}
}

// Check runs a fired NotifyCheck. A stale action returns an error wrapping
// domain.ErrStaleAction and reaches nobody.
func (d *Dispatcher) Check(ctx context.Context, a domain.PendingAction) (Outcome, error) {
	out := Outcome{Title: a.Item.Title}
	if _, err := d.validate(ctx, a); err != nil {
		return out, err
	}

	cctx, cancel := context.WithTimeout(ctx, d.cfg.CheckTimeout)
	info, err := d.src.FetchRelease(cctx, a.Item)
	cancel()
	if err != nil {
		return out, fmt.Errorf("release status of %q: %w", a.Item.Title, err)
	}

	// The lookup may have raced a resync.
	id, err := d.validate(ctx, a)
	if err != nil {
		return out, err
	}
	subs, err := d.store.SubscribersFor(ctx, id)
	if err != nil {
		return out, fmt.Errorf("subscribers of %q: %w", a.Item.Title, err)
	}
	out.Released, out.Episode, out.Subscribers = info.Released, info.Episode, len(subs)

	var links []domain.AssetLink
	if info.Released {
		links = info.AssetLinks
	}
	out.Delivered, out.Failed = d.fanout(ctx, subs, func(ctx context.Context, uid int64) error {
		if !info.Released {
			return d.ch.Send(ctx, uid, anomalyText(a.Item.Title), nil)
		}
		return d.ch.Send(ctx, uid, releasedText(d.greeting(ctx, uid), a.Item.Title, info.Episode, len(links) > 0), links)
	})

	typ := eventbus.ReleaseDelivered
	if !info.Released {
		typ = eventbus.ReleaseAnomaly
		d.log.Warn("release missing after air time", logx.String("title", a.Item.Title), logx.Int("subscribers", out.Subscribers))
	} else {
		d.log.Info("release delivered", logx.String("title", a.Item.Title), logx.String("episode", info.Episode),
			logx.Int("delivered", out.Delivered), logx.Int("failed", out.Failed))
	}
	if d.bus != nil {
		d.bus.Publish(eventbus.Event{Type: typ, Data: out})
	}
	return out, nil
}

func (d *Dispatcher) validate(ctx context.Context, a domain.PendingAction) (int64, error) {
	if gen := d.store.Generation(); gen != a.Generation {
		return 0, fmt.Errorf("%q armed at generation %d, catalog at %d: %w", a.Item.Title, a.Generation, gen, domain.ErrStaleAction)
	}
	id, err := d.store.IDForTitle(ctx, a.Item.Title)
	if errors.Is(err, domain.ErrNotFound) {
		return 0, fmt.Errorf("%q left the catalog: %w", a.Item.Title, domain.ErrStaleAction)
	}
	if err != nil {
		return 0, fmt.Errorf("lookup %q: %w", a.Item.Title, err)
	}
	return id, nil
}

func (d *Dispatcher) greeting(ctx context.Context, uid int64) string {
	name, err := d.store.UsernameFor(ctx, uid)
	if err != nil {
		d.log.Debug("username lookup failed", logx.Int64("user", uid), logx.Err(err))
	}
	return name
}

// fanout sends to every subscriber with bounded concurrency. Each send has
// its own timeout and a failure never affects the others.
func (d *Dispatcher) fanout(ctx context.Context, users []int64, send func(context.Context, int64) error) (delivered, failed int) {
	var ok, bad atomic.Int64
	var g errgroup.Group
	g.SetLimit(d.cfg.Fanout)
	for _, uid := range users {
		g.Go(func() error {
			sctx, cancel := context.WithTimeout(ctx, d.cfg.SendTimeout)
			defer cancel()
			if err := send(sctx, uid); err != nil {
				bad.Add(1)
				d.log.Warn("delivery failed", logx.Err(&domain.DeliveryError{UserID: uid, Err: err}))
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(bad.Load())
}
