package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"kiln/internal/project"
	"kiln/internal/services"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// The first signal requests a clean stop at the next object
	// boundary; in-flight work finishes and the journal records the
	// interrupted run. A second signal cancels outright.
	go func() {
		<-ctx.Done()
		project.InterruptCook()
	}()

	cmd := newRootCommand()
	if err := cmd.ExecuteContext(ctx); err != nil {
		switch {
		case errors.Is(err, context.Canceled) || services.IsInterrupted(err):
			fmt.Fprintln(os.Stderr, "interrupted")
		default:
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
