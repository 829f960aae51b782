package notifier

import (
	"context"
	"time"

	"airwatch/internal/transport"
)

type Config struct {
	Workers       int
	QueueSize     int
	RatePerSec    int
	RetryMax      int
	RetryBase     time.Duration
	RetryMaxDelay time.Duration
	SendTimeout   time.Duration
	// DedupWindow suppresses identical messages to the same chat. Zero disables it.
	DedupWindow     time.Duration
	DedupMaxEntries int
	// PersistDedup keeps suppression across restarts in the DedupStore.
	PersistDedup bool
}

// Notification is an operator message.
type Notification struct {
	Channel  string
	Target   transport.ChatTarget
	Text     string
	Priority int
	Options  *transport.SendOptions
}

type HistoryItem struct {
	At     time.Time `json:"at"`
	ChatID int64     `json:"chat_id"`
	Text   string    `json:"text"`
}

// NotificationEvent is the payload of notifier.* bus events.
type NotificationEvent struct {
	Channel string    `json:"channel"`
	ChatID  int64     `json:"chat_id"`
	Key     string    `json:"key,omitempty"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}

type DedupStore interface {
	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (time.Time, bool, error)
}
