// Package cmd defines and implements the CLI commands for the crawler
// executable.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crawler",
		Short: "Job posting crawler for jobwatch.",
		Long: `crawler polls configured job boards and recruiting APIs, detects
listing changes cheaply via content fingerprints, and reconciles the
discovered postings into Postgres. Posting changes are published to NATS
for downstream consumers.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default uses CRAWLER_* environment variables)")
	cmd.AddCommand(newCrawlCmd())

	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
