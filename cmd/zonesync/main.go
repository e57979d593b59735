// zonesync keeps DNS provider state in sync with declarative zone documents.
// It reads YAML/TOML zone definitions from a local directory or SFTP server,
// compiles them into desired provider state, and reconciles Route53 and
// Cloudflare (records, tunnel ingress, registrar delegation) against them.
package main

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Version and BuildDate are set via ldflags during build.
// Example: -ldflags="-X main.Version=v1.0.0 -X main.BuildDate=2026-08-30"
var (
	Version   = "dev"
	BuildDate = "unknown"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "zonesync",
		Short:   "Declarative DNS zone reconciliation",
		Long:    "zonesync reconciles declared DNS zone documents against Route53 and Cloudflare.",
		Version: Version,
		RunE: func(cmd *cobra.Command, args []string) error {
			// Show help by default when no subcommand is provided.
			return cmd.Help()
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.PersistentFlags().String("config", "", "Path to the zonesync config file (env ZONESYNC_CONFIG)")
	cmd.PersistentFlags().String("log-level", "", "Log level (debug|info|warn|error)")
	cmd.PersistentFlags().String("log-format", "", "Log format (json|text)")

	cmd.AddCommand(newValidateCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newApplyCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

// setupLogger creates a structured logger with the specified level and format.
func setupLogger(level, format string) *slog.Logger {
	var logLevel slog.Level
	switch strings.ToLower(level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: logLevel}
	var handler slog.Handler
	if strings.ToLower(format) == "text" {
		handler = slog.NewTextHandler(os.Stderr, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	}
	return slog.New(handler)
}

func main() {
	root := newRootCmd()
	root.SetContext(context.Background())
	if err := root.Execute(); err != nil {
		slog.Error("fatal error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
