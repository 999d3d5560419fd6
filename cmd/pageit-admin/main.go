package main

import (
	"context"
	"fmt"
	"os"

	"github.com/pageit/pageit-admin/internal/logging"
	"github.com/pageit/pageit-admin/internal/siteadmin"
	"github.com/spf13/cobra"
)

// Version information (set at build time with -ldflags)
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

var rootCmd = &cobra.Command{
	Use:          "pageit-admin",
	Short:        "Pageit site admin service",
	Long:         `Pageit site admin keeps site billing state in step with Stripe and serves the admin API`,
	Version:      Version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := siteadmin.LoadConfig()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		logging.Init(logging.Config{
			Format:    cfg.LogFormat,
			Level:     cfg.LogLevel,
			Component: "pageit-admin",
			Output:    cmd.ErrOrStderr(),
		})
		return siteadmin.Run(cmd.Context(), cfg, Version)
	},
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "pageit-admin %s\n", Version)
		if BuildTime != "unknown" {
			fmt.Fprintf(out, "Built: %s\n", BuildTime)
		}
		if GitCommit != "unknown" {
			fmt.Fprintf(out, "Commit: %s\n", GitCommit)
		}
	},
}

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration management commands",
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the environment and print the effective settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := siteadmin.LoadConfig()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		fmt.Fprintln(out, "Configuration OK")
		for _, kv := range cfg.Summary() {
			fmt.Fprintf(out, "  %-26s %s\n", kv[0], kv[1])
		}
		return nil
	},
}

func init() {
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(versionCmd)
}

func main() {
	logging.Init(logging.Config{
		Format:    "auto",
		Level:     "info",
		Component: "pageit-admin",
	})

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
