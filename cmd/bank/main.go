package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"bank-records/internal/cli"
)

// Set at build time with -ldflags "-X main.version=...".
var (
	version   = "dev"
	commit    = "none"
	buildTime = "unknown"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd := cli.NewRootCommand(os.Stdout, os.Stderr, cli.BuildInfo{
		Version:   version,
		Commit:    commit,
		BuildTime: buildTime,
	})
	if err := cmd.ExecuteContext(ctx); err != nil {
		var exitErr *cli.ExitError
		if errors.As(err, &exitErr) {
			if !exitErr.Reported {
				fmt.Fprintf(os.Stderr, "bank: %v\n", err)
			}
			stop()
			os.Exit(exitErr.ExitCode())
		}
		fmt.Fprintf(os.Stderr, "bank: %v\n", err)
		stop()
		os.Exit(cli.ExitCodeGeneric)
	}
}
