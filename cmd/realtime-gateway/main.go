// Command realtime-gateway serves the portal realtime notification channel.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

// Set by the build.
var (
	version = "dev"
	commit  = "unknown"
)

const defaultConfigPath = "/etc/nextaccounting/realtime.yaml"

func main() {
	// process env wins over .env.local, which wins over .env
	for _, f := range []string{".env.local", ".env"} {
		_ = godotenv.Load(f)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		cancel()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "realtime-gateway",
		Short:         "Realtime notification channel for the client portal and admin dashboard",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "realtime-gateway %s (%s)\n", version, commit)
		},
	}
}
