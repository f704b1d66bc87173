// Package main fires one propagation trigger and exits.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	triggercmd "github.com/eventcrew/secretariat/internal/cmd/trigger"
)

func main() {
	cfg, err := triggercmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		log.Fatalf("parse flags: %v", err)
	}
	log.SetPrefix("[TRIGGER] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := triggercmd.Run(ctx, cfg); err != nil {
		log.Fatalf("fire trigger: %v", err)
	}
}
