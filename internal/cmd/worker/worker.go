// Package worker parses worker command flags and launches the propagation
// worker runtime.
package worker

import (
	"context"
	"flag"
	"time"

	entrypoint "github.com/eventcrew/secretariat/internal/platform/cmd"
	"github.com/eventcrew/secretariat/internal/services/propagation/app"
)

// Config holds worker command configuration.
type Config struct {
	ChangelogDBPath   string        `env:"SECRETARIAT_CHANGELOG_DB_PATH" envDefault:"data/changelog.db"`
	RosterDBPath      string        `env:"SECRETARIAT_ROSTER_DB_PATH" envDefault:"data/roster.db"`
	PropagationDBPath string        `env:"SECRETARIAT_PROPAGATION_DB_PATH" envDefault:"data/propagation.db"`
	ChatCacheDBPath   string        `env:"SECRETARIAT_CHAT_CACHE_DB_PATH" envDefault:"data/chatcache.db"`
	MailBaseURL       string        `env:"SECRETARIAT_MAIL_BASE_URL"`
	MailToken         string        `env:"SECRETARIAT_MAIL_TOKEN"`
	MailFrom          string        `env:"SECRETARIAT_MAIL_FROM"`
	AdminName         string        `env:"SECRETARIAT_ADMIN_NAME"`
	AdminEmail        string        `env:"SECRETARIAT_ADMIN_EMAIL"`
	GroupBaseURL      string        `env:"SECRETARIAT_GROUP_BASE_URL"`
	GroupToken        string        `env:"SECRETARIAT_GROUP_TOKEN"`
	ChatBaseURL       string        `env:"SECRETARIAT_CHAT_BASE_URL"`
	ChatToken         string        `env:"SECRETARIAT_CHAT_TOKEN"`
	ChatTeamID        string        `env:"SECRETARIAT_CHAT_TEAM_ID"`
	Locale            string        `env:"SECRETARIAT_MAIL_LOCALE" envDefault:"zh-Hant"`
	PollInterval      time.Duration `env:"SECRETARIAT_WORKER_POLL_INTERVAL" envDefault:"30s"`
	MaxAttempts       int           `env:"SECRETARIAT_WORKER_MAX_ATTEMPTS" envDefault:"5"`
	SyncMaxAttempts   int           `env:"SECRETARIAT_WORKER_SYNC_MAX_ATTEMPTS" envDefault:"2"`
	RetryBackoff      time.Duration `env:"SECRETARIAT_WORKER_RETRY_BACKOFF" envDefault:"5s"`
	RetryMaxDelay     time.Duration `env:"SECRETARIAT_WORKER_RETRY_MAX_DELAY" envDefault:"5m"`
}

// ParseConfig parses environment and flags into a Config.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := entrypoint.ParseConfig(&cfg); err != nil {
		return Config{}, err
	}
	fs.StringVar(&cfg.ChangelogDBPath, "changelog-db", cfg.ChangelogDBPath, "The change-event log SQLite database path")
	fs.StringVar(&cfg.RosterDBPath, "roster-db", cfg.RosterDBPath, "The roster SQLite database path")
	fs.StringVar(&cfg.PropagationDBPath, "propagation-db", cfg.PropagationDBPath, "The attempt journal and outbox SQLite database path")
	fs.StringVar(&cfg.ChatCacheDBPath, "chat-cache-db", cfg.ChatCacheDBPath, "The chat user cache SQLite database path")
	fs.StringVar(&cfg.MailBaseURL, "mail-url", cfg.MailBaseURL, "The mail provider base URL")
	fs.StringVar(&cfg.GroupBaseURL, "group-url", cfg.GroupBaseURL, "The directory-group provider base URL")
	fs.StringVar(&cfg.ChatBaseURL, "chat-url", cfg.ChatBaseURL, "The chat platform base URL")
	fs.StringVar(&cfg.ChatTeamID, "chat-team", cfg.ChatTeamID, "The chat platform team id used for invites")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Mail copy locale")
	fs.DurationVar(&cfg.PollInterval, "poll-interval", cfg.PollInterval, "Scheduled trigger poll interval")
	fs.IntVar(&cfg.MaxAttempts, "max-attempts", cfg.MaxAttempts, "Maximum handler attempts before the firing is journaled dead")
	fs.IntVar(&cfg.SyncMaxAttempts, "sync-max-attempts", cfg.SyncMaxAttempts, "Maximum attempts for chat roster sync triggers")
	fs.DurationVar(&cfg.RetryBackoff, "retry-backoff", cfg.RetryBackoff, "Base retry backoff delay")
	fs.DurationVar(&cfg.RetryMaxDelay, "retry-max-delay", cfg.RetryMaxDelay, "Maximum retry delay")
	if err := entrypoint.ParseArgs(fs, args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// RuntimeConfig converts the command config to the runtime config.
func (cfg Config) RuntimeConfig() app.RuntimeConfig {
	return app.RuntimeConfig{
		ChangelogDBPath:   cfg.ChangelogDBPath,
		RosterDBPath:      cfg.RosterDBPath,
		PropagationDBPath: cfg.PropagationDBPath,
		ChatCacheDBPath:   cfg.ChatCacheDBPath,
		MailBaseURL:       cfg.MailBaseURL,
		MailToken:         cfg.MailToken,
		MailFrom:          cfg.MailFrom,
		AdminName:         cfg.AdminName,
		AdminEmail:        cfg.AdminEmail,
		GroupBaseURL:      cfg.GroupBaseURL,
		GroupToken:        cfg.GroupToken,
		ChatBaseURL:       cfg.ChatBaseURL,
		ChatToken:         cfg.ChatToken,
		ChatTeamID:        cfg.ChatTeamID,
		Locale:            cfg.Locale,
		PollInterval:      cfg.PollInterval,
		MaxAttempts:       cfg.MaxAttempts,
		SyncMaxAttempts:   cfg.SyncMaxAttempts,
		RetryBackoff:      cfg.RetryBackoff,
		RetryMaxDelay:     cfg.RetryMaxDelay,
	}
}

// Run starts the worker runtime.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceWorker, func(ctx context.Context) error {
		return app.Run(ctx, cfg.RuntimeConfig())
	})
}
