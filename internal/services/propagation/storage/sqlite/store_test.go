package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/eventcrew/secretariat/internal/services/propagation/storage"
)

func TestRecordAndListAttempts(t *testing.T) {
	store := openTempStore(t)
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if err := store.RecordAttempt(context.Background(), storage.AttemptRecord{
		Trigger:      "mail.member.add",
		Outcome:      storage.OutcomeRetry,
		AttemptCount: 1,
		LastError:    "temporary error",
		CreatedAt:    now,
	}); err != nil {
		t.Fatalf("record attempt: %v", err)
	}
	if err := store.RecordAttempt(context.Background(), storage.AttemptRecord{
		Trigger:      "mail.member.add",
		Outcome:      storage.OutcomeSucceeded,
		AttemptCount: 2,
		CreatedAt:    now.Add(time.Minute),
	}); err != nil {
		t.Fatalf("record second attempt: %v", err)
	}

	attempts, err := store.ListAttempts(context.Background(), 10)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 2 {
		t.Fatalf("attempts len = %d, want 2", len(attempts))
	}
	if attempts[0].Outcome != storage.OutcomeSucceeded {
		t.Fatalf("attempts[0].Outcome = %q, want succeeded", attempts[0].Outcome)
	}
	if attempts[1].Outcome != storage.OutcomeRetry {
		t.Fatalf("attempts[1].Outcome = %q, want retry", attempts[1].Outcome)
	}
}

func TestRecordAttemptValidation(t *testing.T) {
	store := openTempStore(t)

	if err := store.RecordAttempt(context.Background(), storage.AttemptRecord{}); err == nil {
		t.Fatal("expected validation error for empty attempt")
	}
}

func TestEnqueueMailDeduplicatesByEventRecipient(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	first := storage.OutboxMessage{
		ID:      "msg-1",
		EventID: "evt-1",
		ToEmail: "alex@example.com",
		Subject: "hello",
		Body:    "body",
	}
	if err := store.EnqueueMail(ctx, first); err != nil {
		t.Fatalf("enqueue first: %v", err)
	}
	duplicate := first
	duplicate.ID = "msg-2"
	if err := store.EnqueueMail(ctx, duplicate); err != nil {
		t.Fatalf("enqueue duplicate: %v", err)
	}

	pending, err := store.ListPendingMail(ctx, 10)
	if err != nil {
		t.Fatalf("list pending mail: %v", err)
	}
	if len(pending) != 1 || pending[0].ID != "msg-1" {
		t.Fatalf("pending = %+v, want only msg-1", pending)
	}
}

func TestEnqueueMailAllowsRepeatedSystemMail(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	for _, id := range []string{"sys-1", "sys-2"} {
		if err := store.EnqueueMail(ctx, storage.OutboxMessage{
			ID:      id,
			ToEmail: "admin@example.com",
			Subject: "alert",
			Body:    "body",
		}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	pending, err := store.ListPendingMail(ctx, 10)
	if err != nil {
		t.Fatalf("list pending mail: %v", err)
	}
	if len(pending) != 2 {
		t.Fatalf("pending len = %d, want 2", len(pending))
	}
}

func TestMarkMailSentIsIdempotent(t *testing.T) {
	store := openTempStore(t)
	ctx := context.Background()

	if err := store.EnqueueMail(ctx, storage.OutboxMessage{
		ID:      "msg-1",
		EventID: "evt-1",
		ToEmail: "alex@example.com",
		Subject: "hello",
		Body:    "body",
	}); err != nil {
		t.Fatalf("enqueue: %v", err)
	}

	for i := 0; i < 2; i++ {
		if err := store.MarkMailSent(ctx, "msg-1"); err != nil {
			t.Fatalf("mark sent attempt %d: %v", i+1, err)
		}
	}

	pending, err := store.ListPendingMail(ctx, 10)
	if err != nil {
		t.Fatalf("list pending mail: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("pending len = %d, want 0", len(pending))
	}
}

func openTempStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "propagation.db")
	store, err := Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Fatalf("close store: %v", err)
		}
	})
	return store
}
