package systemd

import (
	"context"
	"testing"
	"time"
)

func TestNotifyOutsideSystemd(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")
	t.Setenv("WATCHDOG_USEC", "")

	if sent, err := Ready(); sent || err != nil {
		t.Fatalf("Ready() = %v, %v", sent, err)
	}
	if sent, err := Stopping(); sent || err != nil {
		t.Fatalf("Stopping() = %v, %v", sent, err)
	}
	if d := WatchdogInterval(); d != 0 {
		t.Fatalf("WatchdogInterval() = %s", d)
	}
}

func TestWatchdogReturnsOnCancel(t *testing.T) {
	t.Setenv("NOTIFY_SOCKET", "")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	calls := 0
	go func() {
		Watchdog(ctx, 5*time.Millisecond, func() bool { calls++; return true })
		close(done)
	}()
	time.Sleep(30 * time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("watchdog did not stop")
	}
	if calls == 0 {
		t.Fatal("alive was never consulted")
	}
}

func TestWatchdogDisabled(t *testing.T) {
	t.Parallel()
	Watchdog(context.Background(), 0, nil)
}
