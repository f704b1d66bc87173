package worker

import (
	"flag"
	"testing"
	"time"
)

func TestParseConfig_ParsesDefaultsAndFlags(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	t.Setenv("SECRETARIAT_MAIL_BASE_URL", "https://mail.example.com")
	t.Setenv("SECRETARIAT_WORKER_POLL_INTERVAL", "10s")

	cfg, err := ParseConfig(fs, []string{"-locale", "en", "-max-attempts", "3"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.MailBaseURL != "https://mail.example.com" {
		t.Fatalf("mail url = %q", cfg.MailBaseURL)
	}
	if cfg.PollInterval != 10*time.Second {
		t.Fatalf("poll interval = %s", cfg.PollInterval)
	}
	if cfg.Locale != "en" {
		t.Fatalf("locale = %q, want flag override", cfg.Locale)
	}
	if cfg.MaxAttempts != 3 {
		t.Fatalf("max attempts = %d, want 3", cfg.MaxAttempts)
	}
}

func TestParseConfig_Defaults(t *testing.T) {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, nil)
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.ChangelogDBPath != "data/changelog.db" {
		t.Fatalf("changelog db = %q", cfg.ChangelogDBPath)
	}
	if cfg.Locale != "zh-Hant" {
		t.Fatalf("locale = %q", cfg.Locale)
	}
	if cfg.SyncMaxAttempts != 2 {
		t.Fatalf("sync max attempts = %d", cfg.SyncMaxAttempts)
	}
	if cfg.RetryBackoff != 5*time.Second {
		t.Fatalf("retry backoff = %s", cfg.RetryBackoff)
	}
}

func TestRuntimeConfigCopiesEveryField(t *testing.T) {
	cfg := Config{
		ChangelogDBPath: "a.db",
		MailBaseURL:     "https://mail",
		AdminEmail:      "ops@example.com",
		ChatTeamID:      "team-1",
		MaxAttempts:     7,
	}
	rc := cfg.RuntimeConfig()
	if rc.ChangelogDBPath != "a.db" || rc.MailBaseURL != "https://mail" ||
		rc.AdminEmail != "ops@example.com" || rc.ChatTeamID != "team-1" || rc.MaxAttempts != 7 {
		t.Fatalf("runtime config = %+v", rc)
	}
}
