package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "lensfriend",
		Short: "lensfriend - ask questions about what your camera sees",
		Long: `lensfriend serves a camera-first assistant: capture one or more images,
ask a question by text or voice, and watch the answer stream in.
Configuration is read from the environment.`,
		Example: `  lensfriend serve
  lensfriend ask --image shelf.jpg "what is on the top shelf?"`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCmd(), newAskCmd())
	return cmd
}
