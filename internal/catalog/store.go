// Package catalog persists the release timetable, registered users and
// their subscriptions. A catalog generation counter changes on every flush
// so armed timeline actions can detect that they went stale.
package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"airwatch/internal/domain"
	"airwatch/pkg/logx"
)

type Config struct {
	// Driver is sqlite (default), postgres or memory.
	Driver      string
	Path        string
	DSN         string
	BusyTimeout time.Duration
}

type Store interface {
	ListTitlesOrdered(ctx context.Context) ([]string, error)
	ListItems(ctx context.Context) ([]domain.Item, error)
	Insert(ctx context.Context, it domain.Item) (int64, error)
	FlushAll(ctx context.Context) error
	// Replace flushes the catalog and inserts items in order as one unit.
	// Duplicate titles are skipped. It returns the new generation.
	Replace(ctx context.Context, items []domain.Item) (uint64, error)
	Generation() uint64

	IDForTitle(ctx context.Context, title string) (int64, error)
	Item(ctx context.Context, id int64) (domain.Item, error)
	ItemsForDay(ctx context.Context, day string) ([]domain.Item, error)

	UpsertUser(ctx context.Context, u domain.User) (created bool, err error)
	UserExists(ctx context.Context, userID int64) (bool, error)
	UsernameFor(ctx context.Context, userID int64) (string, error)
	ListUsers(ctx context.Context) ([]domain.User, error)

	Subscribe(ctx context.Context, userID, itemID int64) error
	Unsubscribe(ctx context.Context, userID, itemID int64) error
	IsSubscribed(ctx context.Context, userID, itemID int64) (bool, error)
	SubscribersFor(ctx context.Context, itemID int64) ([]int64, error)
	SubscriptionsOf(ctx context.Context, userID int64) ([]domain.Item, error)

	PutDedup(ctx context.Context, key string, until time.Time) error
	GetDedup(ctx context.Context, key string) (until time.Time, ok bool, err error)

	Close() error
}

func Open(cfg Config, log logx.Logger) (Store, error) {
	switch driver := strings.ToLower(strings.TrimSpace(cfg.Driver)); driver {
	case "", "sqlite", "sqlite3":
		return openSQLite(cfg, log)
	case "postgres", "postgresql":
		return openPostgres(cfg, log)
	case "memory":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown catalog driver %q", driver)
	}
}
