// Package main is the entry point for the indexwait CLI.
//
// indexwait blocks until Dify finishes indexing uploaded documents, polling
// the batch's indexing status with bounded exponential backoff. Connection
// settings come from the environment (TEST_DIFY_HOST,
// TEST_DIFY_KNOWLEDGE_BASE_API_KEY, POLL_MAX_ATTEMPTS, POLL_BASE_DELAY).
//
// Usage:
//
//	indexwait wait --dataset <id> --batch <batch>   # Wait for one batch
//	indexwait manifest -f batches.yaml              # Wait for many batches
//	indexwait schedule                              # Print the delay schedule
//	indexwait events                                # Follow watcher outcome events
//	indexwait version                               # Show version info
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/Alwanly/dify-indexing-watch/internal/config"
	"github.com/Alwanly/dify-indexing-watch/pkg/logger"
	"github.com/Alwanly/dify-indexing-watch/pkg/poll"
	"github.com/spf13/cobra"
)

// Version information, set at build time via ldflags.
// Example: go build -ldflags "-X main.version=1.0.0"
var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// Exit codes shared by wait and manifest.
const (
	exitOK      = 0
	exitError   = 1
	exitTimeout = 2
	exitAborted = 3
)

var rootCmd = &cobra.Command{
	Use:   "indexwait",
	Short: "Wait for Dify knowledge-base documents to finish indexing",
	Long: `indexwait polls the Dify indexing-status endpoint of an upload batch
until a document completes, a document fails, or the attempt budget runs out.

Attempt k (k >= 2) waits base_delay * 2^(k-2) first, so the defaults
(7 attempts, 1s) sleep at most 63s in total.

Exit codes:
  0 - indexing completed
  1 - configuration, transport or API error
  2 - attempts exhausted while still indexing
  3 - Dify reported a document error`,
	SilenceUsage: true,
}

// exitCodeError carries a process exit code through cobra's RunE.
type exitCodeError struct {
	code int
	err  error
}

func (e *exitCodeError) Error() string { return e.err.Error() }

func (e *exitCodeError) Unwrap() error { return e.err }

// exitCodeFor maps a poll error to the process exit code.
func exitCodeFor(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, poll.ErrTimeoutExceeded):
		return exitTimeout
	case errors.Is(err, poll.ErrAborted):
		return exitAborted
	default:
		return exitError
	}
}

// withExitCode wraps err so Execute exits with the code matching it.
func withExitCode(err error) error {
	if err == nil {
		return nil
	}
	return &exitCodeError{code: exitCodeFor(err), err: err}
}

// Execute runs the root command and exits with the command's exit code.
func Execute() {
	err := rootCmd.Execute()
	if err == nil {
		return
	}
	var ec *exitCodeError
	if errors.As(err, &ec) {
		os.Exit(ec.code)
	}
	os.Exit(exitError)
}

func main() {
	Execute()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "indexwait %s\n", version)
		fmt.Fprintf(out, "  commit: %s\n", commit)
		fmt.Fprintf(out, "  built:  %s\n", date)
	},
}

func init() {
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "write structured logs to stderr")
	rootCmd.AddCommand(versionCmd)
}

// newLogger returns the zap-backed logger with --verbose and a no-op logger
// otherwise.
func newLogger(cmd *cobra.Command) (*logger.CanonicalLogger, error) {
	verbose, _ := cmd.Flags().GetBool("verbose")
	if !verbose {
		return logger.NewNop(), nil
	}
	return logger.NewLoggerFromEnv("indexwait")
}

// addPollFlags registers the flags that override POLL_MAX_ATTEMPTS and
// POLL_BASE_DELAY.
func addPollFlags(cmd *cobra.Command) {
	cmd.Flags().Int("max-attempts", 0, "number of status checks (overrides POLL_MAX_ATTEMPTS)")
	cmd.Flags().Duration("base-delay", 0, "delay before the second check, doubled for each later one (overrides POLL_BASE_DELAY)")
}

// pollConfigFromFlags applies the poll flags on top of the environment.
func pollConfigFromFlags(cmd *cobra.Command, cfg *config.Config) (poll.Config, error) {
	maxAttempts := cfg.Poll.MaxAttempts
	baseDelay := cfg.Poll.BaseDelay
	if cmd.Flags().Changed("max-attempts") {
		maxAttempts, _ = cmd.Flags().GetInt("max-attempts")
	}
	if cmd.Flags().Changed("base-delay") {
		baseDelay, _ = cmd.Flags().GetDuration("base-delay")
	}
	return poll.NewConfig(maxAttempts, baseDelay)
}

// loadConfig reads the environment and validates what talking to Dify needs.
func loadConfig(log *logger.CanonicalLogger) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.IsOfficialHost() {
		log.Warn("polling the hosted Dify API; every attempt counts against the account quota")
	}
	if cfg.RunningInCI() {
		log.Info("running under GitHub Actions")
	}
	return cfg, nil
}
