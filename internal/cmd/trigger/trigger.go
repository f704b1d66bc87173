// Package trigger fires one named propagation trigger from the command line.
package trigger

import (
	"context"
	"flag"
	"fmt"
	"log"
	"sort"
	"strings"

	workercmd "github.com/eventcrew/secretariat/internal/cmd/worker"
	entrypoint "github.com/eventcrew/secretariat/internal/platform/cmd"
	"github.com/eventcrew/secretariat/internal/services/propagation/app"
)

// Config holds trigger command configuration: the shared runtime settings
// plus the trigger to fire.
type Config struct {
	Runtime workercmd.Config
	Name    string
	Payload string
}

// ParseConfig parses environment, flags, and the positional trigger name.
func ParseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	var err error
	payload := fs.String("payload", "", "JSON payload document for the trigger")
	if cfg.Runtime, err = workercmd.ParseConfig(fs, args); err != nil {
		return Config{}, err
	}
	cfg.Payload = *payload
	rest := fs.Args()
	if len(rest) != 1 {
		return Config{}, fmt.Errorf("expected exactly one trigger name, got %d arguments", len(rest))
	}
	cfg.Name = strings.TrimSpace(rest[0])
	if cfg.Name == "" {
		return Config{}, fmt.Errorf("trigger name is required")
	}
	return cfg, nil
}

// Run builds the runtime and fires the configured trigger once.
func Run(ctx context.Context, cfg Config) error {
	return entrypoint.RunWithTelemetry(ctx, entrypoint.ServiceTrigger, func(ctx context.Context) error {
		payload, err := app.DecodePayload([]byte(cfg.Payload))
		if err != nil {
			return err
		}

		runtime, err := app.Build(cfg.Runtime.RuntimeConfig())
		if err != nil {
			return err
		}
		defer func() {
			if closeErr := runtime.Close(); closeErr != nil {
				log.Printf("close propagation runtime: %v", closeErr)
			}
		}()

		if err := runtime.Dispatcher.Fire(ctx, cfg.Name, payload); err != nil {
			if strings.Contains(err.Error(), "unknown trigger") {
				names := runtime.Dispatcher.Triggers()
				sort.Strings(names)
				return fmt.Errorf("%w; available: %s", err, strings.Join(names, ", "))
			}
			return err
		}
		return nil
	})
}
