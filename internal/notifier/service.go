package notifier

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"airwatch/internal/domain"
	"airwatch/internal/eventbus"
	"airwatch/internal/runtime/supervisor"
	"airwatch/internal/transport"
	"airwatch/pkg/logx"
)

var (
	ErrQueueFull = errors.New("notifier queue full")
	ErrStopped   = errors.New("notifier stopped")
)

type job struct {
	n   Notification
	key string
}

// Service is safe for concurrent use.
type Service struct {
	mu        sync.Mutex
	cfg       Config
	limiter   *rate.Limiter
	accepting bool
	queue     chan job
	sup       *supervisor.Supervisor
	persistCh chan dedupWrite
	enqueueWG sync.WaitGroup

	log    logx.Logger
	sender transport.Sender
	bus    eventbus.Bus
	store  DedupStore

	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender transport.Sender, log logx.Logger, bus eventbus.Bus, store DedupStore) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{sender: sender, log: log, bus: bus, store: store, dedup: map[string]time.Time{}}
	s.applyLocked(cfg)
	return s
}

// Apply swaps rate and dedup settings. Worker and queue sizes apply on the next Start.
func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.Workers <= 0 {
		cfg.Workers = 2
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 256
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 20
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 10000
	}
	s.cfg = cfg
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queue != nil {
		return
	}
	s.queue = make(chan job, s.cfg.QueueSize)
	s.accepting = true
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log.With(logx.String("comp", "notifier"))), supervisor.WithCancelOnError(false))

	if s.cfg.PersistDedup && s.store != nil {
		s.persistCh = make(chan dedupWrite, 1024)
		pch := s.persistCh
		s.sup.Go("dedup.persist", func(c context.Context) error {
			s.persistLoop(c, pch)
			return nil
		})
	}
	q := s.queue
	for i := 0; i < s.cfg.Workers; i++ {
		s.sup.Go(fmt.Sprintf("worker.%d", i), func(c context.Context) error {
			s.workerLoop(c, q)
			return nil
		})
	}
	s.log.Info("notifier started", logx.Int("workers", s.cfg.Workers), logx.Int("rps", s.cfg.RatePerSec))
}

// Stop refuses new notifications and drains the queue until ctx ends.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	q, pch, sup := s.queue, s.persistCh, s.sup
	s.accepting = false
	s.queue, s.persistCh, s.sup = nil, nil, nil
	s.mu.Unlock()
	if q == nil {
		return
	}
	s.enqueueWG.Wait()
	close(q)
	if pch != nil {
		close(pch)
	}
	if err := sup.Wait(ctx); err != nil {
		sup.Cancel()
		s.log.Warn("notifier stop timed out", logx.Err(err))
	}
}

// Notify queues an operator message. Duplicates inside the dedup window are
// dropped silently.
func (s *Service) Notify(ctx context.Context, n Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	if !s.accepting || s.queue == nil {
		s.mu.Unlock()
		return ErrStopped
	}
	q, cfg := s.queue, s.cfg
	s.enqueueWG.Add(1)
	s.mu.Unlock()
	defer s.enqueueWG.Done()

	key := dedupKey(n.Channel, n.Target.ChatID, n.Text)
	if !s.dedupAllow(ctx, key, cfg) {
		s.publish("notifier.deduped", n.Channel, n.Target.ChatID, key, nil)
		return nil
	}
	select {
	case q <- job{n: n, key: key}:
		s.publish("notifier.queued", n.Channel, n.Target.ChatID, key, nil)
		return nil
	default:
		s.forget(key)
		s.publish("notifier.dropped", n.Channel, n.Target.ChatID, key, ErrQueueFull)
		return ErrQueueFull
	}
}

// Send delivers text plus links to a user's private chat and waits for the
// result. An identical message sent inside the dedup window is skipped.
func (s *Service) Send(ctx context.Context, userID int64, text string, links []domain.AssetLink) error {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	body := render(text, links)
	key := dedupKey("user", userID, body)
	if !s.dedupAllow(ctx, key, cfg) {
		s.log.Debug("duplicate message suppressed", logx.Int64("user", userID))
		s.publish("notifier.deduped", "user", userID, key, nil)
		return nil
	}
	if err := lim.Wait(ctx); err != nil {
		s.forget(key)
		return err
	}
	_, err := s.sender.SendText(ctx, transport.ChatTarget{ChatID: userID}, body, &transport.SendOptions{DisablePreview: true})
	if err != nil {
		s.forget(key)
		s.publish("notifier.failed", "user", userID, key, err)
		return err
	}
	s.remember(ctx, key, cfg)
	s.appendHistory(userID, body)
	s.publish("notifier.sent", "user", userID, key, nil)
	return nil
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	return append([]HistoryItem(nil), s.history...)
}

func (s *Service) appendHistory(chatID int64, text string) {
	s.hmu.Lock()
	s.history = append(s.history, HistoryItem{At: time.Now(), ChatID: chatID, Text: text})
	if len(s.history) > 300 {
		s.history = s.history[len(s.history)-300:]
	}
	s.hmu.Unlock()
}

func (s *Service) workerLoop(ctx context.Context, q <-chan job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			s.sendWithRetry(ctx, j)
		}
	}
}

func (s *Service) sendWithRetry(ctx context.Context, j job) {
	s.mu.Lock()
	cfg, lim := s.cfg, s.limiter
	s.mu.Unlock()

	text := prefixForPriority(j.n.Priority) + j.n.Text
	var lastErr error
	for attempt := 1; attempt <= 1+cfg.RetryMax; attempt++ {
		if err := lim.Wait(ctx); err != nil {
			return
		}
		cctx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
		_, err := s.sender.SendText(cctx, j.n.Target, text, j.n.Options)
		cancel()
		if err == nil {
			s.remember(ctx, j.key, cfg)
			s.appendHistory(j.n.Target.ChatID, text)
			s.publish("notifier.sent", j.n.Channel, j.n.Target.ChatID, j.key, nil)
			return
		}
		lastErr = err
		s.log.Debug("notify send failed", logx.Int("attempt", attempt), logx.Err(err))
		if attempt > cfg.RetryMax {
			break
		}
		t := time.NewTimer(retryDelay(cfg, attempt))
		select {
		case <-t.C:
		case <-ctx.Done():
			t.Stop()
			return
		}
	}
	s.forget(j.key)
	s.publish("notifier.failed", j.n.Channel, j.n.Target.ChatID, j.key, lastErr)
}

func (s *Service) publish(typ, channel string, chatID int64, key string, err error) {
	if s.bus == nil {
		return
	}
	ev := NotificationEvent{Channel: channel, ChatID: chatID, Key: key, At: time.Now()}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(eventbus.Event{Type: typ, Time: ev.At, Data: ev})
}

func retryDelay(cfg Config, attempt int) time.Duration {
	base, maxD := cfg.RetryBase, cfg.RetryMaxDelay
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxD <= 0 {
		maxD = 10 * time.Second
	}
	d := base << (attempt - 1)
	if d <= 0 || d > maxD {
		d = maxD
	}
	return d
}

func prefixForPriority(p int) string {
	switch {
	case p >= 9:
		return "🚨 "
	case p >= 7:
		return "⚠️ "
	case p >= 5:
		return "ℹ️ "
	default:
		return ""
	}
}

// render appends one "• label: url" line per link.
func render(text string, links []domain.AssetLink) string {
	if len(links) == 0 {
		return text
	}
	var b strings.Builder
	b.WriteString(text)
	for _, l := range links {
		fmt.Fprintf(&b, "\n• %s: %s", l.Label, l.URL)
	}
	return b.String()
}
