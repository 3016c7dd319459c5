// Package main provides fibdrv, an exclusive-access Fibonacci device with
// per-index timing statistics.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/roach88/fibdrv/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := cli.Execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
