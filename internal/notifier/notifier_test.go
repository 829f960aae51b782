package notifier

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"airwatch/internal/catalog"
	"airwatch/internal/domain"
	"airwatch/internal/transport"
	"airwatch/pkg/logx"
)

type sentText struct {
	to   transport.ChatTarget
	text string
	opt  *transport.SendOptions
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sentText
	fails int
}

func (f *fakeSender) SendText(_ context.Context, to transport.ChatTarget, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fails > 0 {
		f.fails--
		return transport.MessageRef{}, errors.New("telegram: retry after 1")
	}
	f.sent = append(f.sent, sentText{to: to, text: text, opt: opt})
	return transport.MessageRef{ChatID: to.ChatID, MessageID: len(f.sent)}, nil
}

func (f *fakeSender) all() []sentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentText(nil), f.sent...)
}

func TestSendRendersLinks(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(Config{}, fs, logx.Nop(), nil, nil)
	links := []domain.AssetLink{{Label: "480p", URL: "https://a"}, {Label: "720p", URL: "https://b"}}
	if err := s.Send(context.Background(), 42, "Hello @alice!\nShow episode 2 has released!\nLinks:", links); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	got := fs.all()
	if len(got) != 1 {
		t.Fatalf("sent %d messages, want 1", len(got))
	}
	want := "Hello @alice!\nShow episode 2 has released!\nLinks:\n• 480p: https://a\n• 720p: https://b"
	if got[0].text != want {
		t.Fatalf("text = %q, want %q", got[0].text, want)
	}
	if got[0].to.ChatID != 42 || got[0].opt == nil || !got[0].opt.DisablePreview {
		t.Fatalf("unexpected target/options: %+v %+v", got[0].to, got[0].opt)
	}
	if h := s.Snapshot(); len(h) != 1 || h[0].ChatID != 42 {
		t.Fatalf("history = %+v", h)
	}
}

func TestSendDedupWindow(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{}
	s := New(Config{DedupWindow: time.Hour}, fs, logx.Nop(), nil, nil)
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if err := s.Send(ctx, 1, "same", nil); err != nil {
			t.Fatalf("Send() = %v", err)
		}
	}
	if err := s.Send(ctx, 2, "same", nil); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if n := len(fs.all()); n != 2 {
		t.Fatalf("sent %d, want 2 (one per user)", n)
	}
}

func TestSendFailureDoesNotSuppressRetry(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{fails: 1}
	s := New(Config{DedupWindow: time.Hour}, fs, logx.Nop(), nil, nil)
	ctx := context.Background()
	if err := s.Send(ctx, 1, "hello", nil); err == nil {
		t.Fatal("first Send() should fail")
	}
	if err := s.Send(ctx, 1, "hello", nil); err != nil {
		t.Fatalf("second Send() = %v", err)
	}
	if n := len(fs.all()); n != 1 {
		t.Fatalf("sent %d, want 1", n)
	}
}

func TestPersistedDedupSurvivesRestart(t *testing.T) {
	t.Parallel()

	store := catalog.NewMemory()
	cfg := Config{DedupWindow: time.Hour, PersistDedup: true}
	ctx := context.Background()

	fs := &fakeSender{}
	if err := New(cfg, fs, logx.Nop(), nil, store).Send(ctx, 1, "hello", nil); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	// a fresh service has an empty memory cache
	if err := New(cfg, fs, logx.Nop(), nil, store).Send(ctx, 1, "hello", nil); err != nil {
		t.Fatalf("Send() = %v", err)
	}
	if n := len(fs.all()); n != 1 {
		t.Fatalf("sent %d, want 1", n)
	}
}

func TestNotifyAsyncWithRetry(t *testing.T) {
	t.Parallel()

	fs := &fakeSender{fails: 1}
	s := New(Config{RetryMax: 2, RetryBase: time.Millisecond}, fs, logx.Nop(), nil, nil)
	s.Start(context.Background())
	defer s.Stop(context.Background())

	err := s.Notify(context.Background(), Notification{Channel: "ops", Target: transport.ChatTarget{ChatID: -100}, Text: "resynced", Priority: 7})
	if err != nil {
		t.Fatalf("Notify() = %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for len(fs.all()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("notification never delivered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	if got := fs.all()[0].text; got != "⚠️ resynced" {
		t.Fatalf("text = %q", got)
	}
}

func TestNotifyAfterStop(t *testing.T) {
	t.Parallel()

	s := New(Config{}, &fakeSender{}, logx.Nop(), nil, nil)
	s.Start(context.Background())
	s.Stop(context.Background())
	if err := s.Notify(context.Background(), Notification{Text: "x"}); !errors.Is(err, ErrStopped) {
		t.Fatalf("Notify() = %v, want ErrStopped", err)
	}
}
