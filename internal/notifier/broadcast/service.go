package broadcast

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/time/rate"

	"airwatch/internal/runtime/supervisor"
	"airwatch/internal/transport"
	"airwatch/pkg/logx"
)

func New(cfg Config, sender transport.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	if cfg.Workers <= 0 {
		cfg.Workers = 1
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 10
	}
	return &Service{
		cfg:       cfg,
		sender:    sender,
		log:       log,
		limiter:   rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec),
		queue:     make(chan job, 64),
		status:    map[string]*JobStatus{},
		statusMax: 200,
		statusTTL: 24 * time.Hour,
	}
}

func (s *Service) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sup != nil {
		return
	}
	s.sup = supervisor.New(ctx, supervisor.WithLogger(s.log), supervisor.WithCancelOnError(false))
	for i := 0; i < s.cfg.Workers; i++ {
		s.sup.GoRestart(fmt.Sprintf("broadcast.%d", i), func(c context.Context) error {
			s.worker(c)
			return c.Err()
		})
	}
	s.log.Info("broadcast started", logx.Int("workers", s.cfg.Workers), logx.Int("rps", s.cfg.RatePerSec))
}

// Stop cancels running jobs. Queued jobs stay queued for the next Start.
func (s *Service) Stop(ctx context.Context) {
	s.mu.Lock()
	sup := s.sup
	s.sup = nil
	s.mu.Unlock()
	if sup == nil {
		return
	}
	if err := sup.Stop(ctx); err != nil && ctx.Err() != nil {
		s.log.Warn("broadcast stop timed out", logx.Err(err))
	}
}

// NewJob queues text for every target and returns the job id.
func (s *Service) NewJob(name string, targets []transport.ChatTarget, text string, opt *transport.SendOptions) string {
	now := time.Now()
	id := fmt.Sprintf("bc:%d", now.UnixNano())
	s.pruneStatus(now)
	s.statusMu.Lock()
	s.status[id] = &JobStatus{ID: id, Name: name, Total: len(targets), CreatedAt: now}
	s.statusMu.Unlock()

	select {
	case s.queue <- job{id: id, name: name, targets: targets, text: text, opt: opt}:
		s.log.Debug("broadcast job queued", logx.String("job", id), logx.String("name", name), logx.Int("total", len(targets)))
	default:
		s.log.Warn("broadcast queue full, job dropped", logx.String("job", id), logx.String("name", name))
		s.statusMu.Lock()
		if st := s.status[id]; st != nil {
			st.DoneAt, st.Failed = time.Now(), st.Total
		}
		s.statusMu.Unlock()
	}
	return id
}

func (s *Service) Status(id string) (JobStatus, bool) {
	s.statusMu.RLock()
	defer s.statusMu.RUnlock()
	st, ok := s.status[id]
	if !ok {
		return JobStatus{}, false
	}
	cp := *st
	cp.Failures = append([]transport.ChatTarget(nil), st.Failures...)
	return cp, true
}

// pruneStatus drops finished jobs past the TTL and caps the map size.
func (s *Service) pruneStatus(now time.Time) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	for id, st := range s.status {
		if !st.Running && !st.DoneAt.IsZero() && now.Sub(st.DoneAt) > s.statusTTL {
			delete(s.status, id)
		}
	}
	for len(s.status) > s.statusMax {
		var oldest string
		var oldestT time.Time
		for id, st := range s.status {
			if st.Running {
				continue
			}
			if oldest == "" || st.CreatedAt.Before(oldestT) {
				oldest, oldestT = id, st.CreatedAt
			}
		}
		if oldest == "" {
			return
		}
		delete(s.status, oldest)
	}
}
