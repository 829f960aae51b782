package scheduler

import (
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"airwatch/internal/task/engine"
	"airwatch/pkg/logx"
)

// AddCron registers a recurring job (5 or 6 field spec, or a descriptor such
// as "@every 30m"). Runs never overlap. Re-adding a name replaces it.
func (s *Service) AddCron(name, spec string, timeout time.Duration, job Job) error {
	name, spec = strings.TrimSpace(name), strings.TrimSpace(spec)
	if name == "" || job == nil {
		return errors.New("name and job required")
	}
	if _, err := s.parser.Parse(spec); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if prev := s.defs[name]; prev != nil && s.c != nil && prev.entryID != 0 {
		s.c.Remove(prev.entryID)
	}
	d := &cronDef{
		name:    name,
		spec:    spec,
		timeout: timeout,
		job:     job,
		opt:     engine.TaskOptions{Overlap: engine.OverlapSkipIfRunning},
	}
	s.defs[name] = d
	if s.c != nil {
		s.registerLocked(d)
	}
	return nil
}

func (s *Service) registerLocked(d *cronDef) {
	id, err := s.c.AddJob(d.spec, cron.FuncJob(func() {
		err := s.engine.Enqueue(engine.Task{Name: d.name, Timeout: d.timeout, Run: d.job, Opt: d.opt})
		if err != nil && !errors.Is(err, engine.ErrOverlapSkip) {
			s.log.Warn("cron enqueue failed", logx.String("name", d.name), logx.Err(err))
		}
	}))
	if err != nil {
		s.log.Error("cron register failed", logx.String("name", d.name), logx.String("spec", d.spec), logx.Err(err))
		return
	}
	d.entryID = id
}
