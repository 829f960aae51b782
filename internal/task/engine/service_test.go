package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"airwatch/pkg/logx"
)

func startEngine(t *testing.T, cfg Config) *Service {
	t.Helper()
	s := New(cfg, logx.Nop(), nil)
	s.Start(context.Background())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		s.Stop(ctx)
	})
	return s
}

func waitHistory(t *testing.T, s *Service, n int) []HistoryItem {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if h := s.Snapshot().History; len(h) >= n {
			return h
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("history did not reach %d items", n)
	return nil
}

func TestRetriesThenSucceeds(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	var calls atomic.Int32
	err := s.Enqueue(Task{
		Name: "flaky",
		Opt:  TaskOptions{Retries: 2, RetryBase: time.Millisecond, RetryMax: 2 * time.Millisecond},
		Run: func(context.Context) error {
			if calls.Add(1) < 3 {
				return errors.New("transient")
			}
			return nil
		},
	})
	if err != nil {
		t.Fatalf("Enqueue() = %v", err)
	}
	h := waitHistory(t, s, 1)
	if h[0].Error != "" || h[0].Attempts != 3 {
		t.Fatalf("history = %+v, want success after 3 attempts", h[0])
	}
}

func TestNoRetryStopsImmediately(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	var calls atomic.Int32
	_ = s.Enqueue(Task{
		Name: "permanent",
		Opt:  TaskOptions{Retries: 5, RetryBase: time.Millisecond},
		Run: func(context.Context) error {
			calls.Add(1)
			return NoRetry(errors.New("bad input"))
		},
	})
	h := waitHistory(t, s, 1)
	if calls.Load() != 1 || h[0].Error != "bad input" {
		t.Fatalf("calls=%d history=%+v, want one failed attempt", calls.Load(), h[0])
	}
}

func TestPanicBecomesError(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	_ = s.Enqueue(Task{Name: "panics", Run: func(context.Context) error { panic("boom") }})
	h := waitHistory(t, s, 1)
	if h[0].Error != "panic: boom" {
		t.Fatalf("Error = %q, want panic: boom", h[0].Error)
	}
}

func TestTimeoutIsApplied(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	_ = s.Enqueue(Task{Name: "slow", Timeout: 10 * time.Millisecond, Run: func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}})
	h := waitHistory(t, s, 1)
	if h[0].Error != context.DeadlineExceeded.Error() {
		t.Fatalf("Error = %q, want deadline exceeded", h[0].Error)
	}
}

func TestOverlapSkip(t *testing.T) {
	t.Parallel()

	s := startEngine(t, Config{Workers: 1})
	release := make(chan struct{})
	task := Task{Name: "watch", Opt: TaskOptions{Overlap: OverlapSkipIfRunning}, Run: func(context.Context) error {
		<-release
		return nil
	}}
	if err := s.Enqueue(task); err != nil {
		t.Fatalf("first Enqueue() = %v", err)
	}
	if err := s.Enqueue(task); !errors.Is(err, ErrOverlapSkip) {
		t.Fatalf("second Enqueue() = %v, want ErrOverlapSkip", err)
	}
	close(release)
}

func TestEnqueueStopped(t *testing.T) {
	t.Parallel()

	s := New(Config{}, logx.Nop(), nil)
	if err := s.Enqueue(Task{Name: "x", Run: func(context.Context) error { return nil }}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Enqueue() = %v, want ErrStopped", err)
	}
}
