// Command avtool runs detection, inspects run history and manages the
// configuration without opening a window.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"aero-vision/internal/cli"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cli.NewRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
