package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"github.com/eventcrew/secretariat/internal/changelog"
	changelogsqlite "github.com/eventcrew/secretariat/internal/changelog/sqlite"
	"github.com/eventcrew/secretariat/internal/chatplat"
	chatcache "github.com/eventcrew/secretariat/internal/chatplat/cache"
	"github.com/eventcrew/secretariat/internal/groupdir"
	"github.com/eventcrew/secretariat/internal/mailout"
	"github.com/eventcrew/secretariat/internal/platform/id"
	"github.com/eventcrew/secretariat/internal/roster"
	rostersqlite "github.com/eventcrew/secretariat/internal/roster/sqlite"
	"github.com/eventcrew/secretariat/internal/services/propagation/domain"
	"github.com/eventcrew/secretariat/internal/services/propagation/render"
	"github.com/eventcrew/secretariat/internal/services/propagation/storage"
	propagationsqlite "github.com/eventcrew/secretariat/internal/services/propagation/storage/sqlite"
)

// RuntimeConfig controls propagation runtime dependencies and loop behavior.
type RuntimeConfig struct {
	ChangelogDBPath   string
	RosterDBPath      string
	PropagationDBPath string
	ChatCacheDBPath   string

	MailBaseURL string
	MailToken   string
	MailFrom    string
	AdminName   string
	AdminEmail  string

	GroupBaseURL string
	GroupToken   string

	ChatBaseURL string
	ChatToken   string
	ChatTeamID  string

	Locale string

	PollInterval    time.Duration
	MaxAttempts     int
	SyncMaxAttempts int
	RetryBackoff    time.Duration
	RetryMaxDelay   time.Duration
}

const (
	defaultChangelogDB   = "data/changelog.db"
	defaultRosterDB      = "data/roster.db"
	defaultPropagationDB = "data/propagation.db"
	defaultChatCacheDB   = "data/chatcache.db"

	defaultPollInterval    = 30 * time.Second
	defaultSyncMaxAttempts = 2
)

func (cfg RuntimeConfig) normalized() RuntimeConfig {
	if cfg.ChangelogDBPath == "" {
		cfg.ChangelogDBPath = defaultChangelogDB
	}
	if cfg.RosterDBPath == "" {
		cfg.RosterDBPath = defaultRosterDB
	}
	if cfg.PropagationDBPath == "" {
		cfg.PropagationDBPath = defaultPropagationDB
	}
	if cfg.ChatCacheDBPath == "" {
		cfg.ChatCacheDBPath = defaultChatCacheDB
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = defaultPollInterval
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaultMaxAttempts
	}
	if cfg.SyncMaxAttempts <= 0 {
		cfg.SyncMaxAttempts = defaultSyncMaxAttempts
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = defaultRetryBackoff
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = defaultRetryMaxWait
	}
	return cfg
}

// Runtime holds the wired dispatcher and the stores behind it.
type Runtime struct {
	Dispatcher *Dispatcher

	changelogStore   *changelogsqlite.Store
	rosterStore      *rostersqlite.Store
	propagationStore *propagationsqlite.Store
	chatCacheStore   *chatcache.Store

	pollInterval time.Duration
}

// scheduledTriggers fire on every poll tick, in order. Mail renders before
// delivery so a freshly appended event usually completes within one tick.
var scheduledTriggers = []string{
	"mail.member.waiting",
	"mail.member.add",
	"mail.member.del",
	"mail.member.deny",
	"mail.outbox.deliver",
	"sync.directory.memberchange",
	"sync.chat.users",
	"sync.chat.channels",
	"sync.chat.positions",
}

// Build opens the runtime's stores, constructs the adapters and handlers,
// and registers every trigger on a dispatcher. The caller owns Close.
func Build(cfg RuntimeConfig) (*Runtime, error) {
	cfg = cfg.normalized()

	for _, path := range []string{cfg.ChangelogDBPath, cfg.RosterDBPath, cfg.PropagationDBPath, cfg.ChatCacheDBPath} {
		if dir := filepath.Dir(path); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return nil, fmt.Errorf("create storage dir: %w", err)
			}
		}
	}

	runtime := &Runtime{pollInterval: cfg.PollInterval}
	ok := false
	defer func() {
		if !ok {
			runtime.Close()
		}
	}()

	var err error
	if runtime.changelogStore, err = changelogsqlite.Open(cfg.ChangelogDBPath); err != nil {
		return nil, fmt.Errorf("open changelog store: %w", err)
	}
	if runtime.rosterStore, err = rostersqlite.Open(cfg.RosterDBPath); err != nil {
		return nil, fmt.Errorf("open roster store: %w", err)
	}
	if runtime.propagationStore, err = propagationsqlite.Open(cfg.PropagationDBPath); err != nil {
		return nil, fmt.Errorf("open propagation store: %w", err)
	}
	if runtime.chatCacheStore, err = chatcache.Open(cfg.ChatCacheDBPath); err != nil {
		return nil, fmt.Errorf("open chat cache store: %w", err)
	}

	mailClient := mailout.NewClient(cfg.MailBaseURL, cfg.MailToken, cfg.MailFrom)
	groupClient := groupdir.NewClient(cfg.GroupBaseURL, cfg.GroupToken)
	chatClient := chatplat.NewClient(cfg.ChatBaseURL, cfg.ChatToken)
	loc := render.NewLocalizer(cfg.Locale)

	notifier := domain.NewMailNotifier(runtime.changelogStore, runtime.rosterStore, runtime.propagationStore, loc)
	deliverer := domain.NewMailDeliverer(runtime.changelogStore, runtime.propagationStore, mailClient)
	groupSyncer := domain.NewGroupSyncer(runtime.changelogStore, runtime.rosterStore, groupClient)
	rosterSyncer := domain.NewRosterSyncer(runtime.rosterStore, chatClient, runtime.chatCacheStore, cfg.ChatTeamID)

	dispatcher := NewDispatcher(runtime.propagationStore)
	dispatcher.retryBackoff = cfg.RetryBackoff
	dispatcher.retryMaxWait = cfg.RetryMaxDelay

	systemMail := newSystemMailer(runtime.propagationStore, loc, cfg.AdminName, cfg.AdminEmail)
	dispatcher.onDead = func(ctx context.Context, trigger string, err error) {
		if alertErr := systemMail.alert(ctx, "trigger "+trigger+" exhausted retries", err.Error()); alertErr != nil {
			log.Printf("enqueue system alert for %s: %v", trigger, alertErr)
		}
	}

	for caseKind, trigger := range map[changelog.Case]string{
		changelog.CaseWaiting: "mail.member.waiting",
		changelog.CaseAdd:     "mail.member.add",
		changelog.CaseDel:     "mail.member.del",
		changelog.CaseDeny:    "mail.member.deny",
	} {
		kind := caseKind
		dispatcher.Register(trigger, cfg.MaxAttempts, func(ctx context.Context, _ Payload) error {
			return notifier.Notify(ctx, kind)
		})
	}

	dispatcher.Register("mail.outbox.deliver", cfg.MaxAttempts, func(ctx context.Context, _ Payload) error {
		return deliverer.Deliver(ctx)
	})

	dispatcher.Register("mail.sys.error", cfg.MaxAttempts, func(ctx context.Context, payload Payload) error {
		return systemMail.alert(ctx, payload.Title, payload.Body)
	})

	dispatcher.Register("sync.directory.memberchange", cfg.MaxAttempts, func(ctx context.Context, _ Payload) error {
		return groupSyncer.SyncMemberChanges(ctx)
	})

	dispatcher.Register("sync.directory.team", cfg.MaxAttempts, func(ctx context.Context, payload Payload) error {
		var redirect *roster.Team
		if payload.ToProjectID != "" && payload.ToTeamID != "" {
			team, err := runtime.rosterStore.Team(ctx, payload.ToProjectID, payload.ToTeamID)
			if err != nil {
				return fmt.Errorf("resolve redirect team: %w", err)
			}
			redirect = &team
		}
		return groupSyncer.SyncTeamMembers(ctx, payload.ProjectID, payload.TeamID, redirect)
	})

	dispatcher.Register("sync.directory.leaders", cfg.MaxAttempts, func(ctx context.Context, payload Payload) error {
		return groupSyncer.SyncProjectLeaders(ctx, payload.ProjectID)
	})

	dispatcher.Register("sync.chat.users", cfg.SyncMaxAttempts, func(ctx context.Context, payload Payload) error {
		return rosterSyncer.SyncUsers(ctx, payload.Force)
	})

	dispatcher.Register("sync.chat.invite", cfg.SyncMaxAttempts, func(ctx context.Context, payload Payload) error {
		return rosterSyncer.Invite(ctx, payload.UserIDs)
	})

	dispatcher.Register("sync.chat.channel.add", cfg.SyncMaxAttempts, func(ctx context.Context, payload Payload) error {
		return rosterSyncer.AddProjectMembers(ctx, payload.ProjectID, payload.UserIDs)
	})

	dispatcher.Register("sync.chat.channels", cfg.SyncMaxAttempts, func(ctx context.Context, _ Payload) error {
		return rosterSyncer.SyncChannelMembers(ctx)
	})

	dispatcher.Register("sync.chat.positions", cfg.SyncMaxAttempts, func(ctx context.Context, _ Payload) error {
		return rosterSyncer.SyncPositions(ctx)
	})

	runtime.Dispatcher = dispatcher
	ok = true
	return runtime, nil
}

// Close releases the runtime's stores.
func (r *Runtime) Close() error {
	if r == nil {
		return nil
	}
	var errs []error
	if r.chatCacheStore != nil {
		errs = append(errs, r.chatCacheStore.Close())
	}
	if r.propagationStore != nil {
		errs = append(errs, r.propagationStore.Close())
	}
	if r.rosterStore != nil {
		errs = append(errs, r.rosterStore.Close())
	}
	if r.changelogStore != nil {
		errs = append(errs, r.changelogStore.Close())
	}
	return errors.Join(errs...)
}

// Run builds the runtime and drives the scheduled triggers until the context
// is canceled. A dead trigger does not stop the loop; its pending work is
// retried on the next tick.
func Run(ctx context.Context, cfg RuntimeConfig) error {
	runtime, err := Build(cfg)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := runtime.Close(); closeErr != nil {
			log.Printf("close propagation runtime: %v", closeErr)
		}
	}()

	log.Printf("propagation worker polling every %s", runtime.pollInterval)
	ticker := time.NewTicker(runtime.pollInterval)
	defer ticker.Stop()

	for {
		runtime.tick(ctx)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (r *Runtime) tick(ctx context.Context) {
	for _, trigger := range scheduledTriggers {
		if ctx.Err() != nil {
			return
		}
		if err := r.Dispatcher.Fire(ctx, trigger, Payload{}); err != nil {
			log.Printf("scheduled %s: %v", trigger, err)
		}
	}
}

// systemMailer enqueues operator alert mail outside any change event.
type systemMailer struct {
	outbox     storage.OutboxStore
	loc        render.Localizer
	adminName  string
	adminEmail string
	newID      func() (string, error)
	clock      func() time.Time
}

func newSystemMailer(outbox storage.OutboxStore, loc render.Localizer, adminName, adminEmail string) *systemMailer {
	return &systemMailer{
		outbox:     outbox,
		loc:        loc,
		adminName:  adminName,
		adminEmail: adminEmail,
		newID:      id.NewID,
		clock:      time.Now,
	}
}

func (m *systemMailer) alert(ctx context.Context, title, detail string) error {
	if m.adminEmail == "" {
		return nil
	}
	out := render.RenderSystemError(m.loc, title, detail)
	messageID, err := m.newID()
	if err != nil {
		return fmt.Errorf("generate message id: %w", err)
	}
	return m.outbox.EnqueueMail(ctx, storage.OutboxMessage{
		ID:        messageID,
		ToName:    m.adminName,
		ToEmail:   m.adminEmail,
		Subject:   out.Subject,
		Body:      out.Body,
		CreatedAt: m.clock().UTC(),
	})
}
