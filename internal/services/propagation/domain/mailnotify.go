// Package domain implements the propagation handlers: membership mail, the
// mail outbox drain, directory-group sync, and chat roster sync. Handlers are
// safe under overlapping invocations: all progress is flag-gated through the
// change-event log and the outbox, so a retried batch skips completed work.
package domain

import (
	"context"
	"fmt"
	"time"

	"github.com/eventcrew/secretariat/internal/changelog"
	"github.com/eventcrew/secretariat/internal/mailout"
	"github.com/eventcrew/secretariat/internal/platform/id"
	"github.com/eventcrew/secretariat/internal/roster"
	"github.com/eventcrew/secretariat/internal/services/propagation/render"
	"github.com/eventcrew/secretariat/internal/services/propagation/storage"
)

// MailOutbox is the outbox surface the notifier enqueues into.
type MailOutbox interface {
	EnqueueMail(ctx context.Context, message storage.OutboxMessage) error
}

// MailNotifier turns pending change events into rendered outbox messages.
// It never submits mail itself; delivery is the MailDeliverer's job, so a
// mail-provider outage retries only delivery, not recipient resolution.
type MailNotifier struct {
	log       changelog.Log
	directory roster.Directory
	outbox    MailOutbox
	loc       render.Localizer
	newID     func() (string, error)
	clock     func() time.Time
}

// NewMailNotifier constructs the membership mail handler.
func NewMailNotifier(log changelog.Log, directory roster.Directory, outbox MailOutbox, loc render.Localizer) *MailNotifier {
	return &MailNotifier{
		log:       log,
		directory: directory,
		outbox:    outbox,
		loc:       loc,
		newID:     id.NewID,
		clock:     time.Now,
	}
}

// Notify processes pending mail events for one case.
func (n *MailNotifier) Notify(ctx context.Context, caseKind changelog.Case) error {
	if n == nil || n.log == nil || n.directory == nil || n.outbox == nil {
		return Permanent(fmt.Errorf("mail notifier is not fully configured"))
	}
	if !caseKind.Valid() {
		return Permanent(fmt.Errorf("%w: %q", changelog.ErrInvalidCase, caseKind))
	}

	events, err := n.log.ListPending(ctx, changelog.TargetMail, []changelog.Case{caseKind})
	if err != nil {
		return fmt.Errorf("list pending mail events: %w", err)
	}
	for _, event := range events {
		if err := n.notifyEvent(ctx, event); err != nil {
			return fmt.Errorf("event %s: %w", event.ID, err)
		}
	}
	return nil
}

func (n *MailNotifier) notifyEvent(ctx context.Context, event changelog.Event) error {
	switch event.Case {
	case changelog.CaseWaiting:
		return n.notifyChiefs(ctx, event)
	default:
		return n.notifyUser(ctx, event)
	}
}

// notifyChiefs mails every team chief about a new applicant. A team without
// chiefs yields no messages and the event is marked complete directly.
func (n *MailNotifier) notifyChiefs(ctx context.Context, event changelog.Event) error {
	team, err := n.directory.Team(ctx, event.ProjectID, event.TeamID)
	if err != nil {
		return fmt.Errorf("resolve team: %w", err)
	}

	uids := append(append([]string{}, team.Chiefs...), event.UserID)
	infos, err := n.directory.UserInfo(ctx, uids)
	if err != nil {
		return fmt.Errorf("resolve users: %w", err)
	}
	applicant, ok := infos[event.UserID]
	if !ok {
		return fmt.Errorf("resolve applicant %s: %w", event.UserID, roster.ErrNotFound)
	}

	enqueued := 0
	for _, chief := range team.Chiefs {
		info, ok := infos[chief]
		if !ok || info.Email == "" {
			continue
		}
		out := render.Render(n.loc, render.Input{
			Case:          event.Case,
			RecipientName: info.DisplayName,
			ApplicantName: applicant.DisplayName,
			TeamName:      team.Name,
		})
		if err := n.enqueue(ctx, event.ID, info, out); err != nil {
			return err
		}
		enqueued++
	}

	if enqueued == 0 {
		// No recipients is success, not failure.
		if err := n.log.MarkDone(ctx, event.ID, changelog.TargetMail); err != nil {
			return fmt.Errorf("mark mail done: %w", err)
		}
	}
	return nil
}

// notifyUser mails the affected user for deny, add, and del events.
func (n *MailNotifier) notifyUser(ctx context.Context, event changelog.Event) error {
	team, err := n.directory.Team(ctx, event.ProjectID, event.TeamID)
	if err != nil {
		return fmt.Errorf("resolve team: %w", err)
	}

	input := render.Input{Case: event.Case, TeamName: team.Name}
	if event.Case == changelog.CaseDeny {
		project, err := n.directory.Project(ctx, event.ProjectID)
		if err != nil {
			return fmt.Errorf("resolve project: %w", err)
		}
		input.ProjectName = project.Name
	}

	infos, err := n.directory.UserInfo(ctx, []string{event.UserID})
	if err != nil {
		return fmt.Errorf("resolve user: %w", err)
	}
	info, ok := infos[event.UserID]
	if !ok {
		return fmt.Errorf("resolve user %s: %w", event.UserID, roster.ErrNotFound)
	}
	if info.Email == "" {
		// Nothing deliverable; the obligation is satisfied.
		if err := n.log.MarkDone(ctx, event.ID, changelog.TargetMail); err != nil {
			return fmt.Errorf("mark mail done: %w", err)
		}
		return nil
	}

	input.RecipientName = info.DisplayName
	return n.enqueue(ctx, event.ID, info, render.Render(n.loc, input))
}

func (n *MailNotifier) enqueue(ctx context.Context, eventID string, to roster.UserInfo, out render.Output) error {
	messageID, err := n.newID()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}
	if err := n.outbox.EnqueueMail(ctx, storage.OutboxMessage{
		ID:        messageID,
		EventID:   eventID,
		ToName:    to.DisplayName,
		ToEmail:   to.Email,
		Subject:   out.Subject,
		Body:      out.Body,
		CreatedAt: n.clock().UTC(),
	}); err != nil {
		return fmt.Errorf("enqueue mail: %w", err)
	}
	return nil
}

// MailSubmitter submits one message to the mail provider.
type MailSubmitter interface {
	Submit(ctx context.Context, message mailout.Message) (mailout.Result, error)
}

// DeliveryOutbox is the outbox surface the deliverer drains.
type DeliveryOutbox interface {
	ListPendingMail(ctx context.Context, limit int) ([]storage.OutboxMessage, error)
	MarkMailSent(ctx context.Context, id string) error
}

const deliveryBatchSize = 100

// MailDeliverer drains the outbox through the mail adapter and completes the
// originating event's mail flag once the provider accepts.
type MailDeliverer struct {
	log       changelog.Log
	outbox    DeliveryOutbox
	submitter MailSubmitter
}

// NewMailDeliverer constructs the delivery handler.
func NewMailDeliverer(log changelog.Log, outbox DeliveryOutbox, submitter MailSubmitter) *MailDeliverer {
	return &MailDeliverer{log: log, outbox: outbox, submitter: submitter}
}

// Deliver submits every pending outbox message. A non-accepted submission
// aborts the invocation so the retry harness runs the batch again; messages
// already marked sent are skipped on retry.
func (d *MailDeliverer) Deliver(ctx context.Context) error {
	if d == nil || d.log == nil || d.outbox == nil || d.submitter == nil {
		return Permanent(fmt.Errorf("mail deliverer is not fully configured"))
	}

	messages, err := d.outbox.ListPendingMail(ctx, deliveryBatchSize)
	if err != nil {
		return fmt.Errorf("list pending mail: %w", err)
	}
	for _, message := range messages {
		result, err := d.submitter.Submit(ctx, mailout.Message{
			ToName:  message.ToName,
			ToEmail: message.ToEmail,
			Subject: message.Subject,
			Body:    message.Body,
		})
		if err != nil {
			return fmt.Errorf("submit mail %s: %w", message.ID, err)
		}
		if !result.Accepted {
			return fmt.Errorf("mail %s not accepted by provider: %s", message.ID, result.ProviderStatus)
		}
		if err := d.outbox.MarkMailSent(ctx, message.ID); err != nil {
			return fmt.Errorf("mark mail sent %s: %w", message.ID, err)
		}
		if message.EventID != "" {
			if err := d.log.MarkDone(ctx, message.EventID, changelog.TargetMail); err != nil {
				return fmt.Errorf("mark event %s mail done: %w", message.EventID, err)
			}
		}
	}
	return nil
}
