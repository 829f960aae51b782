package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"time"

	"airwatch/pkg/logx"
)

type dedupWrite struct {
	key   string
	until time.Time
}

func dedupKey(channel string, chatID int64, text string) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s", channel, chatID, text)
	return fmt.Sprintf("%x", h.Sum64())
}

// dedupAllow reports whether key may be sent now and, if so, reserves it
// in memory for the window.
func (s *Service) dedupAllow(ctx context.Context, key string, cfg Config) bool {
	if cfg.DedupWindow <= 0 {
		return true
	}
	now := time.Now()

	s.dmu.Lock()
	if until, ok := s.dedup[key]; ok && now.Before(until) {
		s.dmu.Unlock()
		return false
	}
	s.dmu.Unlock()

	if cfg.PersistDedup && s.store != nil {
		cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
		until, ok, err := s.store.GetDedup(cctx, key)
		cancel()
		if err == nil && ok && now.Before(until) {
			s.dmu.Lock()
			s.dedup[key] = until
			s.dmu.Unlock()
			return false
		}
	}

	s.dmu.Lock()
	s.dedup[key] = now.Add(cfg.DedupWindow)
	for k, u := range s.dedup {
		if !now.Before(u) {
			delete(s.dedup, k)
		}
	}
	for len(s.dedup) > cfg.DedupMaxEntries {
		var oldest string
		var oldestT time.Time
		for k, u := range s.dedup {
			if oldest == "" || u.Before(oldestT) {
				oldest, oldestT = k, u
			}
		}
		delete(s.dedup, oldest)
	}
	s.dmu.Unlock()
	return true
}

// remember persists the suppression window of a delivered message.
func (s *Service) remember(ctx context.Context, key string, cfg Config) {
	if cfg.DedupWindow <= 0 || !cfg.PersistDedup || s.store == nil {
		return
	}
	w := dedupWrite{key: key, until: time.Now().Add(cfg.DedupWindow)}
	s.mu.Lock()
	pch := s.persistCh
	s.mu.Unlock()
	if pch != nil {
		select {
		case pch <- w:
		default:
		}
		return
	}
	cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
	if err := s.store.PutDedup(cctx, w.key, w.until); err != nil {
		s.log.Debug("dedup persist failed", logx.Err(err))
	}
	cancel()
}

// forget lifts suppression after a failed send so a retry can go out.
func (s *Service) forget(key string) {
	s.dmu.Lock()
	delete(s.dedup, key)
	s.dmu.Unlock()
}

func (s *Service) persistLoop(ctx context.Context, ch <-chan dedupWrite) {
	for {
		select {
		case <-ctx.Done():
			return
		case w, ok := <-ch:
			if !ok {
				return
			}
			cctx, cancel := context.WithTimeout(ctx, 250*time.Millisecond)
			if err := s.store.PutDedup(cctx, w.key, w.until); err != nil {
				s.log.Debug("dedup persist failed", logx.Err(err))
			}
			cancel()
		}
	}
}
