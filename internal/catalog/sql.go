package catalog

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/GuiaBolso/darwin"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"airwatch/internal/domain"
	"airwatch/pkg/logx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// sqlStore serves both SQLite and PostgreSQL. Queries are written with "?"
// and rebound for the driver.
type sqlStore struct {
	db  *sqlx.DB
	log logx.Logger

	// mu serializes flushes against readers of the title index.
	mu  sync.RWMutex
	gen atomic.Uint64

	ops atomic.Uint64
}

type itemRow struct {
	ID      int64  `db:"id"`
	Day     string `db:"day"`
	Title   string `db:"title"`
	AirTime string `db:"air_time"`
	Link    string `db:"link"`
}

func (r itemRow) item() domain.Item {
	c, _ := domain.ParseClock(r.AirTime)
	return domain.Item{ID: r.ID, Day: r.Day, Title: r.Title, AirTime: c, Link: r.Link}
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		path = "./data/airwatch.db"
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path, busy.Milliseconds())
	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	return newSQLStore(db, "migrations/sqlite.sql", darwin.SqliteDialect{}, log)
}

func openPostgres(cfg Config, log logx.Logger) (Store, error) {
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, errors.New("postgres dsn is required")
	}
	db, err := sqlx.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, err
	}
	return newSQLStore(db, "migrations/postgres.sql", darwin.PostgresDialect{}, log)
}

func newSQLStore(db *sqlx.DB, migration string, dialect darwin.Dialect, log logx.Logger) (*sqlStore, error) {
	if err := migrate(db, migration, dialect); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("catalog migrate: %w", err)
	}
	s := &sqlStore{db: db, log: log}
	s.gen.Store(1)
	log.Info("catalog opened", logx.String("driver", db.DriverName()))
	return s, nil
}

// migrate applies the embedded schema as versioned darwin migrations.
// A changed script for an applied version fails the checksum check.
func migrate(db *sqlx.DB, file string, dialect darwin.Dialect) error {
	ddl, err := migrationsFS.ReadFile(file)
	if err != nil {
		return err
	}
	migrations := []darwin.Migration{
		{Version: 1, Description: "catalog schema", Script: string(ddl)},
	}
	return darwin.Migrate(darwin.NewGenericDriver(db.DB, dialect), migrations, nil)
}

func (s *sqlStore) q(query string) string { return s.db.Rebind(query) }

func (s *sqlStore) Close() error { return s.db.Close() }

func (s *sqlStore) Generation() uint64 { return s.gen.Load() }

func (s *sqlStore) ListTitlesOrdered(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var titles []string
	err := s.db.SelectContext(ctx, &titles, `SELECT title FROM items ORDER BY id`)
	return titles, err
}

func (s *sqlStore) ListItems(ctx context.Context) ([]domain.Item, error) {
	return s.selectItems(ctx, `SELECT id, day, title, air_time, link FROM items ORDER BY id`)
}

func (s *sqlStore) ItemsForDay(ctx context.Context, day string) ([]domain.Item, error) {
	return s.selectItems(ctx, `SELECT id, day, title, air_time, link FROM items WHERE day = ? ORDER BY id`, day)
}

func (s *sqlStore) selectItems(ctx context.Context, query string, args ...any) ([]domain.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var rows []itemRow
	if err := s.db.SelectContext(ctx, &rows, s.q(query), args...); err != nil {
		return nil, err
	}
	out := make([]domain.Item, len(rows))
	for i, r := range rows {
		out[i] = r.item()
	}
	return out, nil
}

func (s *sqlStore) Insert(ctx context.Context, it domain.Item) (int64, error) {
	return insertItem(ctx, s.db, it)
}

// insertItem returns ErrDuplicateTitle when the title already exists.
func insertItem(ctx context.Context, ext sqlx.ExtContext, it domain.Item) (int64, error) {
	var id int64
	err := sqlx.GetContext(ctx, ext, &id, ext.Rebind(
		`INSERT INTO items(title, day, air_time, link) VALUES(?,?,?,?)
		 ON CONFLICT(title) DO NOTHING RETURNING id`),
		it.Title, it.Day, it.AirTime.String(), it.Link)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%q: %w", it.Title, domain.ErrDuplicateTitle)
	}
	return id, err
}

func (s *sqlStore) FlushAll(ctx context.Context) error {
	_, err := s.Replace(ctx, nil)
	return err
}

func (s *sqlStore) Replace(ctx context.Context, items []domain.Item) (uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM subscriptions`); err != nil {
		return 0, err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM items`); err != nil {
		return 0, err
	}
	for _, it := range items {
		if _, err := insertItem(ctx, tx, it); err != nil {
			if errors.Is(err, domain.ErrDuplicateTitle) {
				s.log.Debug("duplicate title skipped", logx.String("title", it.Title))
				continue
			}
			return 0, err
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return s.gen.Add(1), nil
}

func (s *sqlStore) IDForTitle(ctx context.Context, title string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var id int64
	err := s.db.GetContext(ctx, &id, s.q(`SELECT id FROM items WHERE title = ?`), title)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("title %q: %w", title, domain.ErrNotFound)
	}
	return id, err
}

func (s *sqlStore) Item(ctx context.Context, id int64) (domain.Item, error) {
	var r itemRow
	err := s.db.GetContext(ctx, &r, s.q(`SELECT id, day, title, air_time, link FROM items WHERE id = ?`), id)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Item{}, fmt.Errorf("item %d: %w", id, domain.ErrNotFound)
	}
	return r.item(), err
}

func (s *sqlStore) UpsertUser(ctx context.Context, u domain.User) (bool, error) {
	exists, err := s.UserExists(ctx, u.ID)
	if err != nil {
		return false, err
	}
	_, err = s.db.ExecContext(ctx, s.q(
		`INSERT INTO users(id, username, first_name) VALUES(?,?,?)
		 ON CONFLICT(id) DO UPDATE SET username = excluded.username, first_name = excluded.first_name`),
		u.ID, u.Username, u.FirstName)
	return !exists && err == nil, err
}

func (s *sqlStore) UserExists(ctx context.Context, userID int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM users WHERE id = ?`), userID)
	return n > 0, err
}

func (s *sqlStore) UsernameFor(ctx context.Context, userID int64) (string, error) {
	var name string
	err := s.db.GetContext(ctx, &name, s.q(`SELECT username FROM users WHERE id = ?`), userID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	return name, err
}

func (s *sqlStore) ListUsers(ctx context.Context) ([]domain.User, error) {
	var users []domain.User
	err := s.db.SelectContext(ctx, &users, `SELECT id, username, first_name FROM users ORDER BY id`)
	return users, err
}

func (s *sqlStore) Subscribe(ctx context.Context, userID, itemID int64) error {
	if _, err := s.Item(ctx, itemID); err != nil {
		return err
	}
	if ok, err := s.UserExists(ctx, userID); err != nil {
		return err
	} else if !ok {
		return fmt.Errorf("user %d: %w", userID, domain.ErrNotFound)
	}
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO subscriptions(user_id, item_id) VALUES(?,?) ON CONFLICT DO NOTHING`), userID, itemID)
	return err
}

func (s *sqlStore) Unsubscribe(ctx context.Context, userID, itemID int64) error {
	_, err := s.db.ExecContext(ctx, s.q(`DELETE FROM subscriptions WHERE user_id = ? AND item_id = ?`), userID, itemID)
	return err
}

func (s *sqlStore) IsSubscribed(ctx context.Context, userID, itemID int64) (bool, error) {
	var n int
	err := s.db.GetContext(ctx, &n, s.q(`SELECT COUNT(*) FROM subscriptions WHERE user_id = ? AND item_id = ?`), userID, itemID)
	return n > 0, err
}

func (s *sqlStore) SubscribersFor(ctx context.Context, itemID int64) ([]int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var ids []int64
	err := s.db.SelectContext(ctx, &ids, s.q(`SELECT user_id FROM subscriptions WHERE item_id = ? ORDER BY user_id`), itemID)
	return ids, err
}

func (s *sqlStore) SubscriptionsOf(ctx context.Context, userID int64) ([]domain.Item, error) {
	return s.selectItems(ctx, `SELECT i.id, i.day, i.title, i.air_time, i.link
		FROM items i JOIN subscriptions s ON s.item_id = i.id
		WHERE s.user_id = ? ORDER BY i.id`, userID)
}

func (s *sqlStore) PutDedup(ctx context.Context, key string, until time.Time) error {
	_, err := s.db.ExecContext(ctx, s.q(
		`INSERT INTO dedup(dedup_key, expires_at) VALUES(?,?)
		 ON CONFLICT(dedup_key) DO UPDATE SET expires_at = excluded.expires_at`),
		key, until.UnixMilli())
	if err == nil && s.ops.Add(1)%500 == 0 {
		_, _ = s.db.ExecContext(ctx, s.q(`DELETE FROM dedup WHERE expires_at < ?`), time.Now().UnixMilli())
	}
	return err
}

func (s *sqlStore) GetDedup(ctx context.Context, key string) (time.Time, bool, error) {
	var ms int64
	err := s.db.GetContext(ctx, &ms, s.q(`SELECT expires_at FROM dedup WHERE dedup_key = ?`), key)
	if errors.Is(err, sql.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, err
	}
	return time.UnixMilli(ms), true, nil
}
