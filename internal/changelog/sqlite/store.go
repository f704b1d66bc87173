// Package sqlite provides the SQLite-backed change-event log.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/eventcrew/secretariat/internal/changelog"
	"github.com/eventcrew/secretariat/internal/changelog/sqlite/migrations"
	"github.com/eventcrew/secretariat/internal/platform/storage/sqlitemigrate"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed persistence for change events.
//
// Completion flags live in a side table keyed by (event_id, target), so
// marking one target is a single-row insert that cannot clobber or unset a
// sibling target's flag.
type Store struct {
	sqlDB *sql.DB
}

// Open opens a change-event log at the provided path and applies migrations.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	cleanPath := filepath.Clean(path)
	dsn := cleanPath + "?_journal_mode=WAL&_foreign_keys=ON&_busy_timeout=5000&_synchronous=NORMAL"
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

// AppendEvent inserts one change event.
func (s *Store) AppendEvent(ctx context.Context, event changelog.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}

	event.ID = strings.TrimSpace(event.ID)
	if event.ID == "" {
		return fmt.Errorf("event id is required")
	}
	if !event.Case.Valid() {
		return fmt.Errorf("%w: %q", changelog.ErrInvalidCase, event.Case)
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	_, err := s.sqlDB.ExecContext(ctx, `
INSERT INTO change_events (id, project_id, team_id, user_id, case_kind, created_at)
VALUES (?, ?, ?, ?, ?, ?)
`,
		event.ID,
		strings.TrimSpace(event.ProjectID),
		strings.TrimSpace(event.TeamID),
		strings.TrimSpace(event.UserID),
		string(event.Case),
		event.CreatedAt.UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("append change event: %w", err)
	}
	return nil
}

// ListPending lists events pending for target, oldest first.
func (s *Store) ListPending(ctx context.Context, target changelog.Target, cases []changelog.Case) ([]changelog.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if s == nil || s.sqlDB == nil {
		return nil, fmt.Errorf("storage is not configured")
	}
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %q", changelog.ErrInvalidTarget, target)
	}
	if len(cases) == 0 {
		return nil, fmt.Errorf("at least one case is required")
	}

	placeholders := make([]string, 0, len(cases))
	args := make([]any, 0, len(cases)+1)
	args = append(args, string(target))
	for _, c := range cases {
		if !c.Valid() {
			return nil, fmt.Errorf("%w: %q", changelog.ErrInvalidCase, c)
		}
		placeholders = append(placeholders, "?")
		args = append(args, string(c))
	}

	query := fmt.Sprintf(`
SELECT id, project_id, team_id, user_id, case_kind, created_at
FROM change_events
WHERE NOT EXISTS (
    SELECT 1 FROM change_event_done
    WHERE change_event_done.event_id = change_events.id
      AND change_event_done.target = ?
)
  AND case_kind IN (%s)
ORDER BY created_at ASC, id ASC
`, strings.Join(placeholders, ", "))

	rows, err := s.sqlDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list pending change events: %w", err)
	}
	defer rows.Close()

	var events []changelog.Event
	for rows.Next() {
		var event changelog.Event
		var caseKind string
		var createdAt int64
		if err := rows.Scan(
			&event.ID,
			&event.ProjectID,
			&event.TeamID,
			&event.UserID,
			&caseKind,
			&createdAt,
		); err != nil {
			return nil, fmt.Errorf("scan change event: %w", err)
		}
		event.Case = changelog.Case(caseKind)
		event.CreatedAt = time.UnixMilli(createdAt).UTC()
		events = append(events, event)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate change events: %w", err)
	}

	for i := range events {
		completion, err := s.loadCompletion(ctx, events[i].ID)
		if err != nil {
			return nil, err
		}
		events[i].Completion = completion
	}
	return events, nil
}

// MarkDone records completion of one target on one event. Marking an
// already-done target is a no-op.
func (s *Store) MarkDone(ctx context.Context, eventID string, target changelog.Target) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if s == nil || s.sqlDB == nil {
		return fmt.Errorf("storage is not configured")
	}
	eventID = strings.TrimSpace(eventID)
	if eventID == "" {
		return fmt.Errorf("event id is required")
	}
	if !target.Valid() {
		return fmt.Errorf("%w: %q", changelog.ErrInvalidTarget, target)
	}

	var exists int
	err := s.sqlDB.QueryRowContext(ctx,
		"SELECT 1 FROM change_events WHERE id = ?", eventID,
	).Scan(&exists)
	if err == sql.ErrNoRows {
		return fmt.Errorf("%w: %s", changelog.ErrNotFound, eventID)
	}
	if err != nil {
		return fmt.Errorf("look up change event: %w", err)
	}

	_, err = s.sqlDB.ExecContext(ctx, `
INSERT OR IGNORE INTO change_event_done (event_id, target, done_at)
VALUES (?, ?, ?)
`, eventID, string(target), time.Now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("mark change event done: %w", err)
	}
	return nil
}

func (s *Store) loadCompletion(ctx context.Context, eventID string) (map[changelog.Target]bool, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		"SELECT target FROM change_event_done WHERE event_id = ?", eventID)
	if err != nil {
		return nil, fmt.Errorf("load completion flags: %w", err)
	}
	defer rows.Close()

	completion := map[changelog.Target]bool{}
	for rows.Next() {
		var target string
		if err := rows.Scan(&target); err != nil {
			return nil, fmt.Errorf("scan completion flag: %w", err)
		}
		completion[changelog.Target(target)] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate completion flags: %w", err)
	}
	return completion, nil
}
