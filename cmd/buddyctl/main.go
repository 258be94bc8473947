// Command buddyctl triggers buddy cycle runs, mid-cycle repairs, and integrity
// checks from the command line. It talks to MongoDB directly with the same
// settings (BUDDYHUB_* environment variables) as the service and prints the
// same JSON envelope as the HTTP API.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(newCLI(os.Stdout))
	if err := root.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errFailed) {
			fmt.Fprintln(os.Stderr, "buddyctl:", err)
		}
		stop()
		os.Exit(1)
	}
}
