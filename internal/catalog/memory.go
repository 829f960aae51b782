package catalog

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"airwatch/internal/domain"
)

// Memory is an in-process Store for tests and dry runs.
type Memory struct {
	mu     sync.RWMutex
	gen    atomic.Uint64
	nextID int64
	items  []domain.Item
	users  map[int64]domain.User
	subs   map[int64]map[int64]struct{} // item -> users
	dedup  map[string]time.Time
}

func NewMemory() *Memory {
	m := &Memory{
		users: map[int64]domain.User{},
		subs:  map[int64]map[int64]struct{}{},
		dedup: map[string]time.Time{},
	}
	m.gen.Store(1)
	return m
}

func (m *Memory) Close() error { return nil }

func (m *Memory) Generation() uint64 { return m.gen.Load() }

func (m *Memory) ListTitlesOrdered(context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return domain.Titles(m.items), nil
}

func (m *Memory) ListItems(context.Context) ([]domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]domain.Item(nil), m.items...), nil
}

func (m *Memory) ItemsForDay(_ context.Context, day string) ([]domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Item
	for _, it := range m.items {
		if it.Day == day {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) Insert(_ context.Context, it domain.Item) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertLocked(it)
}

func (m *Memory) insertLocked(it domain.Item) (int64, error) {
	for _, cur := range m.items {
		if cur.Title == it.Title {
			return 0, fmt.Errorf("%q: %w", it.Title, domain.ErrDuplicateTitle)
		}
	}
	m.nextID++
	it.ID = m.nextID
	m.items = append(m.items, it)
	return it.ID, nil
}

func (m *Memory) FlushAll(ctx context.Context) error {
	_, err := m.Replace(ctx, nil)
	return err
}

func (m *Memory) Replace(_ context.Context, items []domain.Item) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items = nil
	m.subs = map[int64]map[int64]struct{}{}
	for _, it := range items {
		_, _ = m.insertLocked(it)
	}
	return m.gen.Add(1), nil
}

func (m *Memory) IDForTitle(_ context.Context, title string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.Title == title {
			return it.ID, nil
		}
	}
	return 0, fmt.Errorf("title %q: %w", title, domain.ErrNotFound)
}

func (m *Memory) Item(_ context.Context, id int64) (domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, it := range m.items {
		if it.ID == id {
			return it, nil
		}
	}
	return domain.Item{}, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
}

func (m *Memory) UpsertUser(_ context.Context, u domain.User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, exists := m.users[u.ID]
	m.users[u.ID] = u
	return !exists, nil
}

func (m *Memory) UserExists(_ context.Context, userID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.users[userID]
	return ok, nil
}

func (m *Memory) UsernameFor(_ context.Context, userID int64) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[userID]
	if !ok {
		return "", fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	return u.Username, nil
}

func (m *Memory) ListUsers(context.Context) ([]domain.User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.User, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) Subscribe(ctx context.Context, userID, itemID int64) error {
	if _, err := m.Item(ctx, itemID); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[userID]; !ok {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	set := m.subs[itemID]
	if set == nil {
		set = map[int64]struct{}{}
		m.subs[itemID] = set
	}
	set[userID] = struct{}{}
	return nil
}

func (m *Memory) Unsubscribe(_ context.Context, userID, itemID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.subs[itemID], userID)
	return nil
}

func (m *Memory) IsSubscribed(_ context.Context, userID, itemID int64) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.subs[itemID][userID]
	return ok, nil
}

func (m *Memory) SubscribersFor(_ context.Context, itemID int64) ([]int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []int64
	for id := range m.subs[itemID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (m *Memory) SubscriptionsOf(_ context.Context, userID int64) ([]domain.Item, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []domain.Item
	for _, it := range m.items {
		if _, ok := m.subs[it.ID][userID]; ok {
			out = append(out, it)
		}
	}
	return out, nil
}

func (m *Memory) PutDedup(_ context.Context, key string, until time.Time) error {
	m.mu.Lock()
	m.dedup[key] = until
	m.mu.Unlock()
	return nil
}

func (m *Memory) GetDedup(_ context.Context, key string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	until, ok := m.dedup[key]
	return until, ok, nil
}
