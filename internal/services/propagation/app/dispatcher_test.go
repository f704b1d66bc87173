package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/eventcrew/secretariat/internal/services/propagation/domain"
	"github.com/eventcrew/secretariat/internal/services/propagation/storage"
)

type fakeJournal struct {
	records []storage.AttemptRecord
}

func (j *fakeJournal) RecordAttempt(_ context.Context, attempt storage.AttemptRecord) error {
	j.records = append(j.records, attempt)
	return nil
}

func (j *fakeJournal) ListAttempts(_ context.Context, limit int) ([]storage.AttemptRecord, error) {
	if limit > len(j.records) {
		limit = len(j.records)
	}
	return j.records[:limit], nil
}

func newTestDispatcher(journal *fakeJournal) *Dispatcher {
	d := NewDispatcher(journal)
	d.retryBackoff = time.Millisecond
	d.retryMaxWait = 2 * time.Millisecond
	d.logf = func(string, ...any) {}
	return d
}

func TestFireRecordsSuccess(t *testing.T) {
	journal := &fakeJournal{}
	d := newTestDispatcher(journal)
	calls := 0
	d.Register("demo.ok", 3, func(context.Context, Payload) error {
		calls++
		return nil
	})

	if err := d.Fire(context.Background(), "demo.ok", Payload{}); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if len(journal.records) != 1 {
		t.Fatalf("journal records = %d, want 1", len(journal.records))
	}
	record := journal.records[0]
	if record.Outcome != storage.OutcomeSucceeded || record.AttemptCount != 1 {
		t.Fatalf("record = %+v", record)
	}
	if record.Trigger != "demo.ok" {
		t.Fatalf("trigger = %q", record.Trigger)
	}
}

func TestFireRetriesTransientFailure(t *testing.T) {
	journal := &fakeJournal{}
	d := newTestDispatcher(journal)
	calls := 0
	d.Register("demo.flaky", 3, func(context.Context, Payload) error {
		calls++
		if calls < 2 {
			return errors.New("transient")
		}
		return nil
	})

	if err := d.Fire(context.Background(), "demo.flaky", Payload{}); err != nil {
		t.Fatalf("fire: %v", err)
	}
	if calls != 2 {
		t.Fatalf("handler calls = %d, want 2", calls)
	}
	if len(journal.records) != 2 {
		t.Fatalf("journal records = %d, want retry + succeeded", len(journal.records))
	}
	if journal.records[0].Outcome != storage.OutcomeRetry {
		t.Fatalf("first outcome = %q", journal.records[0].Outcome)
	}
	if journal.records[1].Outcome != storage.OutcomeSucceeded || journal.records[1].AttemptCount != 2 {
		t.Fatalf("final record = %+v", journal.records[1])
	}
}

func TestFirePermanentErrorStopsImmediately(t *testing.T) {
	journal := &fakeJournal{}
	d := newTestDispatcher(journal)
	var deadTrigger string
	d.onDead = func(_ context.Context, trigger string, _ error) {
		deadTrigger = trigger
	}
	calls := 0
	d.Register("demo.broken", 5, func(context.Context, Payload) error {
		calls++
		return domain.Permanent(errors.New("bad payload"))
	})

	err := d.Fire(context.Background(), "demo.broken", Payload{})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Fatalf("handler calls = %d, want 1", calls)
	}
	if len(journal.records) != 1 || journal.records[0].Outcome != storage.OutcomeDead {
		t.Fatalf("journal records = %+v", journal.records)
	}
	if deadTrigger != "demo.broken" {
		t.Fatalf("onDead trigger = %q", deadTrigger)
	}
}

func TestFireExhaustsAttemptCeiling(t *testing.T) {
	journal := &fakeJournal{}
	d := newTestDispatcher(journal)
	calls := 0
	d.Register("demo.down", 3, func(context.Context, Payload) error {
		calls++
		return errors.New("still down")
	})

	err := d.Fire(context.Background(), "demo.down", Payload{})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 3 {
		t.Fatalf("handler calls = %d, want 3", calls)
	}
	last := journal.records[len(journal.records)-1]
	if last.Outcome != storage.OutcomeDead || last.AttemptCount != 3 {
		t.Fatalf("final record = %+v", last)
	}
	if last.LastError == "" {
		t.Fatal("dead record should carry the handler error")
	}
}

func TestFireUnknownTrigger(t *testing.T) {
	d := newTestDispatcher(&fakeJournal{})
	if err := d.Fire(context.Background(), "demo.missing", Payload{}); err == nil {
		t.Fatal("expected unknown trigger error")
	}
}

func TestDecodePayload(t *testing.T) {
	payload, err := DecodePayload([]byte(`{"project_id":"proj-1","user_ids":["uid-1","uid-2"],"force":true}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.ProjectID != "proj-1" || len(payload.UserIDs) != 2 || !payload.Force {
		t.Fatalf("payload = %+v", payload)
	}

	if _, err := DecodePayload([]byte(`{`)); err == nil {
		t.Fatal("expected error for malformed document")
	}

	empty, err := DecodePayload(nil)
	if err != nil {
		t.Fatalf("decode empty: %v", err)
	}
	if empty.ProjectID != "" || empty.UserIDs != nil || empty.Force {
		t.Fatalf("empty payload = %+v", empty)
	}
}
