// Package main runs the moodctl operator command line.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/louisbranch/moodring/internal/cmd/moodctl"
)

func main() {
	cfg, err := moodctl.ParseConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "moodctl: %v\n", err)
		os.Exit(1)
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := moodctl.NewRootCommand(cfg).ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "moodctl: %v\n", err)
		stop()
		os.Exit(1)
	}
}
