// Package cache persists the locally synced chat-platform roster along with
// explicit user-id links, so handlers can resolve a back-office user to a
// platform member id without calling the platform.
package cache

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/eventcrew/secretariat/internal/chatplat"
	"github.com/eventcrew/secretariat/internal/chatplat/cache/migrations"
	"github.com/eventcrew/secretariat/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed chat-roster caching.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the cache at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}

	store := &Store{sqlDB: sqlDB}
	if err := sqlitemigrate.ApplyMigrations(context.Background(), sqlDB, migrations.FS, ""); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return store, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

// UpsertUser stores one synced platform user.
func (s *Store) UpsertUser(ctx context.Context, user chatplat.User) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	user.ID = strings.TrimSpace(user.ID)
	if user.ID == "" {
		return fmt.Errorf("member id is required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO chat_users (member_id, username, email, position, synced_at)
VALUES (?, ?, ?, ?, ?)
ON CONFLICT (member_id) DO UPDATE SET
    username = excluded.username,
    email = excluded.email,
    position = excluded.position,
    synced_at = excluded.synced_at
`, user.ID, user.Username, user.Email, user.Position, time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("upsert chat user: %w", err)
	}
	return nil
}

// CountUsers returns the number of cached platform users.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var count int
	if err := s.sqlDB.QueryRowContext(ctx, "SELECT COUNT(*) FROM chat_users").Scan(&count); err != nil {
		return 0, fmt.Errorf("count chat users: %w", err)
	}
	return count, nil
}

// PutLink records an explicit back-office user to platform member binding.
func (s *Store) PutLink(ctx context.Context, userID, memberID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	userID = strings.TrimSpace(userID)
	memberID = strings.TrimSpace(memberID)
	if userID == "" || memberID == "" {
		return fmt.Errorf("user id and member id are required")
	}
	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO chat_links (user_id, member_id)
VALUES (?, ?)
ON CONFLICT (user_id) DO UPDATE SET member_id = excluded.member_id
`, userID, memberID)
	if err != nil {
		return fmt.Errorf("put chat link: %w", err)
	}
	return nil
}

// FindMemberID resolves a back-office user id to a platform member id. An
// explicit link wins; otherwise a cached user whose username matches the user
// id is used. An empty result means unmatched, which is not an error.
func (s *Store) FindMemberID(ctx context.Context, userID string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", nil
	}

	var memberID string
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT member_id FROM chat_links WHERE user_id = ?", userID).Scan(&memberID)
	if err == nil {
		return memberID, nil
	}
	if err != sql.ErrNoRows {
		return "", fmt.Errorf("look up chat link: %w", err)
	}

	err = s.sqlDB.QueryRowContext(ctx,
		"SELECT member_id FROM chat_users WHERE username = ? ORDER BY synced_at DESC LIMIT 1",
		userID).Scan(&memberID)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("look up chat user: %w", err)
	}
	return memberID, nil
}
