// Command efctl is the operator and client tool for the e-filing registry.
//
// Operator commands (migrate, create-admin, reconcile) talk to PostgreSQL
// directly. Client commands (login, whoami, request, charge, return,
// history, logout) call the HTTP API with the token saved by login.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

// rootOptions holds global flags.
type rootOptions struct {
	ConfigPath string
	DSN        string
	API        string
	Timeout    time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:           "efctl",
		Short:         "efctl - e-filing registry tool",
		Long:          "Operate the e-filing registry database and move files through the HTTP API.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().StringVar(&opts.ConfigPath, "config", os.Getenv("EFILING_CONFIG"), "path to YAML config")
	cmd.PersistentFlags().StringVar(&opts.DSN, "dsn", "", "PostgreSQL DSN (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.API, "api", envOr("EFILING_API", "http://localhost:8080"), "base URL of the HTTP API")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 30*time.Second, "per-command timeout")

	cmd.AddCommand(
		newVersionCommand(),
		newMigrateCommand(opts),
		newCreateAdminCommand(opts),
		newReconcileCommand(opts),
		newLoginCommand(opts),
		newLogoutCommand(opts),
		newWhoamiCommand(opts),
		newMoveCommand(opts, "request"),
		newChargeCommand(opts),
		newMoveCommand(opts, "return"),
		newHistoryCommand(opts),
	)
	return cmd
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "efctl %s (%s)\n", version, buildDate)
		},
	}
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
