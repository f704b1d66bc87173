package trigger

import (
	"flag"
	"testing"
)

func TestParseConfig_TriggerNameAndPayload(t *testing.T) {
	fs := flag.NewFlagSet("trigger", flag.ContinueOnError)

	cfg, err := ParseConfig(fs, []string{"-payload", `{"project_id":"proj-1"}`, "sync.directory.leaders"})
	if err != nil {
		t.Fatalf("parse config: %v", err)
	}
	if cfg.Name != "sync.directory.leaders" {
		t.Fatalf("trigger name = %q", cfg.Name)
	}
	if cfg.Payload != `{"project_id":"proj-1"}` {
		t.Fatalf("payload = %q", cfg.Payload)
	}
}

func TestParseConfig_RequiresTriggerName(t *testing.T) {
	fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
	if _, err := ParseConfig(fs, nil); err == nil {
		t.Fatal("expected missing trigger name error")
	}
}

func TestParseConfig_RejectsExtraArguments(t *testing.T) {
	fs := flag.NewFlagSet("trigger", flag.ContinueOnError)
	if _, err := ParseConfig(fs, []string{"one", "two"}); err == nil {
		t.Fatal("expected extra arguments error")
	}
}
