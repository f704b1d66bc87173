package changelog

import "context"

// Log is the persistence boundary for change events.
//
// Storage failures propagate to the caller unwrapped in meaning: a handler is
// expected to let them abort its whole invocation so the retry harness runs
// the batch again. MarkDone is idempotent and touches exactly one flag, which
// is the engine's sole concurrency-safety mechanism under overlapping
// invocations.
type Log interface {
	// AppendEvent inserts a new event. It does not validate references into
	// the domain repositories.
	AppendEvent(ctx context.Context, event Event) error

	// ListPending returns events whose case is in cases and whose completion
	// flag for target is absent, in ascending created-at order. Re-querying
	// after a flag is set excludes that event.
	ListPending(ctx context.Context, target Target, cases []Case) ([]Event, error)

	// MarkDone sets completion[target] = true on exactly one event. Marking
	// an already-done target is a no-op. Other targets' flags are never
	// touched. Returns ErrNotFound when the event does not exist.
	MarkDone(ctx context.Context, eventID string, target Target) error
}
