// Package main starts the live post sync engine and handles termination.
//
// The process holds one push connection, projects post updates into local
// snapshots and fans them out to attached consumers. With -healthcheck it
// instead checks a running instance and exits non-zero unless it is ready.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	livepostcmd "github.com/louisbranch/livepost/internal/cmd/livepost"
	"github.com/louisbranch/livepost/internal/platform/config"
)

func main() {
	cfg, err := livepostcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	log.SetPrefix("[LIVEPOST] ")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if cfg.Healthcheck {
		if err := livepostcmd.Healthcheck(ctx, cfg); err != nil {
			config.Exitf("healthcheck: %v", err)
		}
		return
	}

	if err := livepostcmd.Run(ctx, cfg); err != nil {
		log.Fatalf("failed to serve: %v", err)
	}
}
