// Package storage defines persistence contracts for the propagation service:
// the handler attempt journal and the mail outbox.
package storage

import (
	"context"
	"time"
)

// Attempt outcomes recorded in the journal.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeRetry     = "retry"
	OutcomeDead      = "dead"
)

// AttemptRecord is one journaled handler invocation attempt.
type AttemptRecord struct {
	ID           int64
	Trigger      string
	Outcome      string
	AttemptCount int
	LastError    string
	CreatedAt    time.Time
}

// AttemptStore persists handler attempt records.
type AttemptStore interface {
	RecordAttempt(ctx context.Context, attempt AttemptRecord) error
	ListAttempts(ctx context.Context, limit int) ([]AttemptRecord, error)
}

// OutboxMessage is one rendered mail awaiting delivery. EventID ties the
// message back to the change event whose mail flag it completes; system
// mails carry an empty EventID.
type OutboxMessage struct {
	ID        string
	EventID   string
	ToName    string
	ToEmail   string
	Subject   string
	Body      string
	Sent      bool
	CreatedAt time.Time
	SentAt    *time.Time
}

// OutboxStore persists the mail outbox.
//
// EnqueueMail deduplicates on (event_id, to_email) for event-linked mail, so
// a retried render pass cannot queue a duplicate before delivery happens.
// MarkMailSent is idempotent.
type OutboxStore interface {
	EnqueueMail(ctx context.Context, message OutboxMessage) error
	ListPendingMail(ctx context.Context, limit int) ([]OutboxMessage, error)
	MarkMailSent(ctx context.Context, id string) error
}
