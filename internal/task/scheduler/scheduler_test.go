package scheduler

import (
	"context"
	"sync"
	"testing"
	"time"

	"airwatch/internal/task/engine"
	"airwatch/pkg/logx"
)

type recorder struct {
	mu    sync.Mutex
	names []string
	fired chan string
}

func newRecorder() *recorder { return &recorder{fired: make(chan string, 8)} }

func (r *recorder) Enqueue(t engine.Task) error {
	r.mu.Lock()
	r.names = append(r.names, t.Name)
	r.mu.Unlock()
	r.fired <- t.Name
	return nil
}

func noop(context.Context) error { return nil }

func TestAddOnceFires(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	s := New(Config{}, rec, logx.Nop())
	if err := s.AddOnce("timeline.rollover", time.Now().Add(50*time.Millisecond), time.Second, noop); err != nil {
		t.Fatalf("AddOnce() = %v", err)
	}
	if _, ok := s.Pending("timeline.rollover"); !ok {
		t.Fatal("Pending() = false right after AddOnce")
	}
	select {
	case name := <-rec.fired:
		if name != "timeline.rollover" {
			t.Fatalf("fired %q", name)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timer did not fire")
	}
	if _, ok := s.Pending("timeline.rollover"); ok {
		t.Fatal("Pending() = true after firing")
	}
}

func TestAddOnceReplacesByName(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	s := New(Config{}, rec, logx.Nop())
	_ = s.AddOnce("notify", time.Now().Add(time.Hour), 0, noop)
	_ = s.AddOnce("notify", time.Now().Add(-time.Second), 0, noop)

	select {
	case <-rec.fired:
	case <-time.After(2 * time.Second):
		t.Fatal("replacement did not fire")
	}
	time.Sleep(20 * time.Millisecond)
	rec.mu.Lock()
	defer rec.mu.Unlock()
	if len(rec.names) != 1 {
		t.Fatalf("fired %d times, want 1", len(rec.names))
	}
}

func TestRemoveCancelsTimer(t *testing.T) {
	t.Parallel()

	rec := newRecorder()
	s := New(Config{}, rec, logx.Nop())
	_ = s.AddOnce("gone", time.Now().Add(20*time.Millisecond), 0, noop)
	if !s.Remove("gone") {
		t.Fatal("Remove() = false")
	}
	select {
	case name := <-rec.fired:
		t.Fatalf("removed timer %q fired", name)
	case <-time.After(60 * time.Millisecond):
	}
}

func TestAddCronValidatesSpec(t *testing.T) {
	t.Parallel()

	s := New(Config{Timezone: "UTC"}, newRecorder(), logx.Nop())
	if err := s.AddCron("bad", "not a spec", 0, noop); err == nil {
		t.Fatal("AddCron(bad) = nil, want error")
	}
	if err := s.AddCron("timeline.watchdog", "@every 30m", 0, noop); err != nil {
		t.Fatalf("AddCron() = %v", err)
	}
	s.Start(context.Background())
	defer s.Stop(context.Background())

	snap := s.Snapshot()
	if len(snap) != 1 || snap[0].Kind != "cron" || snap[0].Next.IsZero() {
		t.Fatalf("Snapshot() = %+v, want one scheduled cron entry", snap)
	}
}
