package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/kylerisse/snapcheck/pkg/cli"
)

func main() {
	// An interrupt cancels the in-flight request and stops the run.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx)
	stop()
	os.Exit(code)
}
