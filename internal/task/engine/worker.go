package engine

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"runtime/debug"
	"time"

	"airwatch/pkg/logx"
)

func (s *Service) worker(ctx context.Context, stop <-chan struct{}, q <-chan queued) {
	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case qt := <-q:
			s.inFlight.Add(1)
			s.exec(ctx, qt, rng)
			s.inFlight.Add(-1)
		}
	}
}

func (s *Service) exec(ctx context.Context, qt queued, rng *rand.Rand) {
	if qt.state != nil {
		defer qt.state.release()
	}
	t := qt.task
	start := time.Now()
	delay := start.Sub(qt.enqueuedAt)
	s.publish("task.started", HistoryItem{ID: t.ID, Name: t.Name, Started: start, QueueDelay: delay})

	var err error
	attempts := 0
	for attempts <= t.Opt.Retries {
		attempts++
		err = s.runOnce(ctx, t)
		if err == nil {
			break
		}
		var nr noRetryError
		if errors.As(err, &nr) {
			err = nr.err
			break
		}
		if attempts > t.Opt.Retries {
			break
		}
		wait := backoff(t.Opt, attempts, rng)
		s.log.Debug("task retry", logx.String("task", t.Name), logx.Int("attempt", attempts+1), logx.Duration("wait", wait), logx.Err(err))
		tm := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			tm.Stop()
			err = ctx.Err()
		case <-tm.C:
		}
		if ctx.Err() != nil {
			break
		}
	}

	item := HistoryItem{ID: t.ID, Name: t.Name, Started: start, QueueDelay: delay, Duration: time.Since(start), Attempts: attempts}
	if err != nil {
		item.Error = err.Error()
		s.log.Warn("task failed", logx.String("task", t.Name), logx.Int("attempts", attempts), logx.Duration("dur", item.Duration), logx.Err(err))
		s.publish("task.failed", item)
	} else {
		s.log.Debug("task finished", logx.String("task", t.Name), logx.Duration("dur", item.Duration))
		s.publish("task.finished", item)
	}
	s.record(item)
}

// runOnce applies the task timeout and turns a panic into an error.
func (s *Service) runOnce(ctx context.Context, t Task) (err error) {
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("task panicked", logx.String("task", t.Name), logx.Any("panic", r), logx.Stack(string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return t.Run(ctx)
}

// backoff doubles from RetryBase per attempt, capped at RetryMax, with 20% jitter.
func backoff(opt TaskOptions, attempt int, rng *rand.Rand) time.Duration {
	base, maxD := opt.RetryBase, opt.RetryMax
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	if maxD <= 0 {
		maxD = 15 * time.Second
	}
	d := base
	for i := 1; i < attempt && d < maxD; i++ {
		d *= 2
	}
	d = time.Duration(float64(d) * (1 + (rng.Float64()*2-1)*0.2))
	return min(d, maxD)
}
