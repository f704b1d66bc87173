// Package app wires the propagation handlers to the trigger dispatcher and
// the worker runtime.
package app

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/eventcrew/secretariat/internal/services/propagation/domain"
	"github.com/eventcrew/secretariat/internal/services/propagation/storage"
)

const (
	defaultMaxAttempts  = 5
	defaultRetryBackoff = 5 * time.Second
	defaultRetryMaxWait = 5 * time.Minute

	tracerName = "secretariat/propagation"
)

// HandlerFunc runs one trigger invocation.
type HandlerFunc func(ctx context.Context, payload Payload) error

type registration struct {
	handler     HandlerFunc
	maxAttempts int
}

// Dispatcher routes named triggers to handlers, retries transient failures
// with exponential backoff, and journals every attempt outcome.
type Dispatcher struct {
	registry map[string]registration
	journal  storage.AttemptStore
	tracer   trace.Tracer
	logf     func(format string, args ...any)
	clock    func() time.Time

	retryBackoff time.Duration
	retryMaxWait time.Duration

	// onDead is invoked after a trigger exhausts its attempts. The trigger
	// itself stays incomplete; pending events are picked up next cycle.
	onDead func(ctx context.Context, trigger string, err error)
}

// NewDispatcher constructs an empty dispatcher around an attempt journal.
func NewDispatcher(journal storage.AttemptStore) *Dispatcher {
	return &Dispatcher{
		registry:     map[string]registration{},
		journal:      journal,
		tracer:       otel.Tracer(tracerName),
		logf:         log.Printf,
		clock:        time.Now,
		retryBackoff: defaultRetryBackoff,
		retryMaxWait: defaultRetryMaxWait,
	}
}

// Register binds a trigger name to a handler. maxAttempts <= 0 uses the
// default ceiling. Registering the same name twice replaces the handler.
func (d *Dispatcher) Register(name string, maxAttempts int, handler HandlerFunc) {
	if d == nil || name == "" || handler == nil {
		return
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	d.registry[name] = registration{handler: handler, maxAttempts: maxAttempts}
}

// Triggers returns the registered trigger names, unordered.
func (d *Dispatcher) Triggers() []string {
	names := make([]string, 0, len(d.registry))
	for name := range d.registry {
		names = append(names, name)
	}
	return names
}

// Fire runs one trigger to completion. Transient handler errors retry with
// exponential backoff up to the trigger's attempt ceiling; permanent errors
// stop immediately. The final outcome is journaled either way, and the error
// of a failed firing is returned after the dead outcome is recorded.
func (d *Dispatcher) Fire(ctx context.Context, name string, payload Payload) error {
	if d == nil {
		return fmt.Errorf("dispatcher is not configured")
	}
	reg, ok := d.registry[name]
	if !ok {
		return fmt.Errorf("unknown trigger %q", name)
	}

	ctx, span := d.tracer.Start(ctx, "trigger.fire",
		trace.WithAttributes(attribute.String("trigger.name", name)))
	defer span.End()

	attempts := 0
	operation := func() (struct{}, error) {
		attempts++
		err := reg.handler(ctx, payload)
		if err == nil {
			return struct{}{}, nil
		}
		if domain.IsPermanent(err) {
			return struct{}{}, backoff.Permanent(err)
		}
		return struct{}{}, err
	}

	notify := func(err error, wait time.Duration) {
		d.logf("trigger %s attempt %d failed, retrying in %s: %v", name, attempts, wait, err)
		d.record(ctx, name, storage.OutcomeRetry, attempts, err)
	}

	expo := backoff.NewExponentialBackOff()
	expo.InitialInterval = d.retryBackoff
	expo.MaxInterval = d.retryMaxWait

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(expo),
		backoff.WithMaxTries(uint(reg.maxAttempts)),
		backoff.WithNotify(notify),
	)
	span.SetAttributes(attribute.Int("trigger.attempts", attempts))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		d.logf("trigger %s dead after %d attempts: %v", name, attempts, err)
		d.record(ctx, name, storage.OutcomeDead, attempts, err)
		if d.onDead != nil {
			d.onDead(ctx, name, err)
		}
		return fmt.Errorf("trigger %s: %w", name, err)
	}

	span.SetStatus(codes.Ok, "")
	d.record(ctx, name, storage.OutcomeSucceeded, attempts, nil)
	return nil
}

func (d *Dispatcher) record(ctx context.Context, trigger, outcome string, attempts int, err error) {
	if d.journal == nil {
		return
	}
	record := storage.AttemptRecord{
		Trigger:      trigger,
		Outcome:      outcome,
		AttemptCount: attempts,
		CreatedAt:    d.clock().UTC(),
	}
	if err != nil {
		record.LastError = err.Error()
	}
	if recordErr := d.journal.RecordAttempt(ctx, record); recordErr != nil {
		d.logf("journal attempt for %s: %v", trigger, recordErr)
	}
}
