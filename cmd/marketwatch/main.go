// marketwatch polls quotes for a watch list, scores the active symbol with a
// signal model and runs a paper-trading ledger against the live feed.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"

	"marketwatch/config"
	"marketwatch/internal/logger"

	"github.com/spf13/cobra"
)

var (
	version  = "0.1.0"
	logLevel string
	cfg      *config.Config
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "marketwatch",
		Short: "Quote watcher with signal reports and a paper-trading ledger",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			cfg = config.Load()
			if logLevel != "" {
				cfg.LogLevel = logLevel
			}
			level := logger.ParseLevel(cfg.LogLevel)
			switch cmd.Name() {
			case "serve", "relay":
				logger.Init("marketwatch", level)
			default:
				// keep stdout clean for JSON output
				logger.InitWriter(os.Stderr, "marketwatch", level)
			}
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error (defaults to LOG_LEVEL)")

	rootCmd.AddCommand(versionCmd())
	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(reportCmd())
	rootCmd.AddCommand(ledgerCmd())
	rootCmd.AddCommand(relayCmd())
	rootCmd.AddCommand(hoursCmd())

	ctx, stop := ossignal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("marketwatch version %s\n", version)
		},
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
