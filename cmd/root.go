package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// Version is set at build time with -ldflags "-X github.com/aquasecurity/deprisk/cmd.Version=...".
var Version = "dev"

func newRootCmd() *cobra.Command {
	var verbose bool

	rootCmd := &cobra.Command{
		Use:   "deprisk",
		Short: "Analyze the dependency risk of a uv project",
		Long: `Analyze the dependencies of a Python project managed by uv.

deprisk reads uv.lock and pyproject.toml, separates direct from transitive
dependencies, removes excluded packages and checks every remaining package
against the OSV vulnerability database. The scan fails when a vulnerability
crosses the configured severity or CVSS threshold.`,
		Example: `  # Scan the project in the current directory
  deprisk scan

  # Fail on HIGH or CRITICAL vulnerabilities and write a JSON report
  deprisk scan --severity-threshold high --output deprisk.json

  # Download the OSV database and scan without network access
  deprisk update-db
  deprisk scan --offline`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			setupLogger(cmd.ErrOrStderr(), verbose)
		},
	}
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")

	rootCmd.Version = Version
	rootCmd.SetVersionTemplate("deprisk {{.Version}}\n")

	rootCmd.AddCommand(newScanCmd(), newUpdateDBCmd())
	return rootCmd
}

func setupLogger(w io.Writer, verbose bool) {
	log := logrus.StandardLogger()
	log.SetOutput(w)
	log.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "15:04:05",
	})
	log.SetLevel(logrus.InfoLevel)
	if verbose {
		log.SetLevel(logrus.DebugLevel)
	}
}

// Execute runs the root command and exits non-zero on error.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
