package scheduler

import (
	"errors"
	"strings"
	"time"

	"airwatch/internal/task/engine"
	"airwatch/pkg/logx"
)

// AddOnce arms a one-shot timer. Re-adding a name replaces the pending timer;
// a callback from a replaced timer is ignored. A past at fires immediately.
func (s *Service) AddOnce(name string, at time.Time, timeout time.Duration, job Job) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name required")
	}
	if job == nil {
		return errors.New("job required")
	}

	s.tmu.Lock()
	defer s.tmu.Unlock()
	if prev := s.once[name]; prev != nil {
		prev.timer.Stop()
	}
	ver := s.vers[name] + 1
	s.vers[name] = ver
	d := &onceDef{at: at, timeout: timeout, job: job, ver: ver}
	d.timer = time.AfterFunc(max(time.Until(at), 0), func() { s.fireOnce(name, ver) })
	s.once[name] = d
	return nil
}

func (s *Service) fireOnce(name string, ver uint64) {
	s.tmu.Lock()
	d := s.once[name]
	if d == nil || d.ver != ver {
		s.tmu.Unlock()
		return
	}
	delete(s.once, name)
	s.tmu.Unlock()

	err := s.engine.Enqueue(engine.Task{Name: name, Timeout: d.timeout, Run: d.job})
	if err != nil {
		s.log.Error("timer enqueue failed", logx.String("name", name), logx.Err(err))
	}
}

// Pending reports when the named one-shot timer fires.
func (s *Service) Pending(name string) (time.Time, bool) {
	s.tmu.Lock()
	defer s.tmu.Unlock()
	if d := s.once[name]; d != nil {
		return d.at, true
	}
	return time.Time{}, false
}

// Remove drops a timer or cron schedule by name.
func (s *Service) Remove(name string) bool {
	removed := false
	s.tmu.Lock()
	if d := s.once[name]; d != nil {
		d.timer.Stop()
		delete(s.once, name)
		removed = true
	}
	s.tmu.Unlock()

	s.mu.Lock()
	if d := s.defs[name]; d != nil {
		if s.c != nil && d.entryID != 0 {
			s.c.Remove(d.entryID)
		}
		delete(s.defs, name)
		removed = true
	}
	s.mu.Unlock()
	return removed
}
