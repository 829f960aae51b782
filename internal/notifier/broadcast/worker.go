package broadcast

import (
	"context"
	"time"

	"airwatch/internal/transport"
	"airwatch/pkg/logx"
)

func (s *Service) worker(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case j := <-s.queue:
			s.execJob(ctx, j)
		}
	}
}

func (s *Service) execJob(ctx context.Context, j job) {
	start := time.Now()
	s.update(j.id, func(st *JobStatus) { st.StartedAt, st.Running = start, true })
	s.log.Info("broadcast job started", logx.String("job", j.id), logx.String("name", j.name), logx.Int("total", len(j.targets)))

	for _, t := range j.targets {
		err := s.sendOne(ctx, j, t)
		s.update(j.id, func(st *JobStatus) {
			st.Done++
			if err != nil {
				st.Failed++
				if len(st.Failures) < 200 {
					st.Failures = append(st.Failures, t)
				}
			}
		})
		if ctx.Err() != nil {
			break
		}
	}
	s.update(j.id, func(st *JobStatus) { st.DoneAt, st.Running = time.Now(), false })

	st, _ := s.Status(j.id)
	fields := []logx.Field{logx.String("job", j.id), logx.Int("total", st.Total), logx.Int("failed", st.Failed), logx.Duration("dur", time.Since(start))}
	if st.Failed > 0 {
		s.log.Warn("broadcast job finished with failures", fields...)
		return
	}
	s.log.Info("broadcast job finished", fields...)
}

func (s *Service) sendOne(ctx context.Context, j job, t transport.ChatTarget) error {
	var last error
	for i := 0; i <= s.cfg.RetryMax; i++ {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		_, err := s.sender.SendText(ctx, t, j.text, j.opt)
		if err == nil {
			return nil
		}
		last = err
		if i == s.cfg.RetryMax {
			break
		}
		tmr := time.NewTimer(time.Duration(200+100*i) * time.Millisecond)
		select {
		case <-ctx.Done():
			tmr.Stop()
			return ctx.Err()
		case <-tmr.C:
		}
	}
	s.log.Warn("broadcast send failed", logx.String("job", j.id), logx.Int64("chat_id", t.ChatID), logx.Err(last))
	return last
}

func (s *Service) update(id string, fn func(*JobStatus)) {
	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if st := s.status[id]; st != nil {
		fn(st)
	}
}
