// Package sqlite provides SQLite-backed propagation persistence.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/eventcrew/secretariat/internal/platform/storage/sqlitemigrate"
	"github.com/eventcrew/secretariat/internal/services/propagation/storage"
	"github.com/eventcrew/secretariat/internal/services/propagation/storage/sqlite/migrations"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed attempt-journal and mail-outbox persistence.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the propagation store and applies migrations.
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

// RecordAttempt persists one handler invocation attempt.
func (s *Store) RecordAttempt(ctx context.Context, attempt storage.AttemptRecord) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	attempt.Trigger = strings.TrimSpace(attempt.Trigger)
	attempt.Outcome = strings.TrimSpace(attempt.Outcome)
	if attempt.Trigger == "" {
		return fmt.Errorf("trigger is required")
	}
	if attempt.Outcome == "" {
		return fmt.Errorf("outcome is required")
	}
	if attempt.CreatedAt.IsZero() {
		attempt.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO handler_attempts (trigger_name, outcome, attempt_count, last_error, created_at)
VALUES (?, ?, ?, ?, ?)
`,
		attempt.Trigger,
		attempt.Outcome,
		attempt.AttemptCount,
		strings.TrimSpace(attempt.LastError),
		attempt.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("record attempt: %w", err)
	}
	return nil
}

// ListAttempts lists newest-first attempt records.
func (s *Store) ListAttempts(ctx context.Context, limit int) ([]storage.AttemptRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, trigger_name, outcome, attempt_count, last_error, created_at
FROM handler_attempts
ORDER BY created_at DESC, id DESC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	records := make([]storage.AttemptRecord, 0, limit)
	for rows.Next() {
		var record storage.AttemptRecord
		var createdAt int64
		if err := rows.Scan(
			&record.ID,
			&record.Trigger,
			&record.Outcome,
			&record.AttemptCount,
			&record.LastError,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		record.CreatedAt = time.UnixMilli(createdAt).UTC()
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return records, nil
}

// EnqueueMail persists one outbox message. Event-linked messages deduplicate
// on (event id, recipient email).
func (s *Store) EnqueueMail(ctx context.Context, message storage.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	message.ID = strings.TrimSpace(message.ID)
	message.ToEmail = strings.TrimSpace(message.ToEmail)
	if message.ID == "" {
		return fmt.Errorf("message id is required")
	}
	if message.ToEmail == "" {
		return fmt.Errorf("recipient email is required")
	}
	if message.CreatedAt.IsZero() {
		message.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO mail_outbox (id, event_id, to_name, to_email, subject, body, sent, created_at)
VALUES (?, ?, ?, ?, ?, ?, 0, ?)
`,
		message.ID,
		strings.TrimSpace(message.EventID),
		message.ToName,
		message.ToEmail,
		message.Subject,
		message.Body,
		message.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

// ListPendingMail lists unsent outbox messages, oldest first.
func (s *Store) ListPendingMail(ctx context.Context, limit int) ([]storage.OutboxMessage, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT id, event_id, to_name, to_email, subject, body, sent, created_at, sent_at
FROM mail_outbox
WHERE sent = 0
ORDER BY created_at ASC, id ASC
LIMIT ?
`, limit)
	if err != nil {
		return nil, fmt.Errorf("list pending mail: %w", err)
	}
	defer rows.Close()

	var messages []storage.OutboxMessage
	for rows.Next() {
		message, err := scanOutboxMessage(rows.Scan)
		if err != nil {
			return nil, err
		}
		messages = append(messages, message)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pending mail: %w", err)
	}
	return messages, nil
}

// MarkMailSent marks one outbox message delivered. Re-marking is a no-op.
func (s *Store) MarkMailSent(ctx context.Context, messageID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	messageID = strings.TrimSpace(messageID)
	if messageID == "" {
		return fmt.Errorf("message id is required")
	}

	_, err := s.sqlDB.ExecContext(ctx, `
UPDATE mail_outbox
SET sent = 1, sent_at = ?
WHERE id = ? AND sent = 0
`, time.Now().UTC().UnixMilli(), messageID)
	if err != nil {
		return fmt.Errorf("mark mail sent: %w", err)
	}
	return nil
}

func scanOutboxMessage(scan func(dest ...any) error) (storage.OutboxMessage, error) {
	var message storage.OutboxMessage
	var sent int
	var createdAt int64
	var sentAt sql.NullInt64
	if err := scan(
		&message.ID,
		&message.EventID,
		&message.ToName,
		&message.ToEmail,
		&message.Subject,
		&message.Body,
		&sent,
		&createdAt,
		&sentAt,
	); err != nil {
		return storage.OutboxMessage{}, fmt.Errorf("scan outbox message: %w", err)
	}
	message.Sent = sent != 0
	message.CreatedAt = time.UnixMilli(createdAt).UTC()
	if sentAt.Valid {
		at := time.UnixMilli(sentAt.Int64).UTC()
		message.SentAt = &at
	}
	return message, nil
}
