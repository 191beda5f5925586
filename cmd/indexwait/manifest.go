package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/Alwanly/dify-indexing-watch/internal/dify"
	"github.com/Alwanly/dify-indexing-watch/internal/manifest"
	"github.com/Alwanly/dify-indexing-watch/pkg/poll"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

const defaultManifestConcurrency = 4

var manifestCmd = &cobra.Command{
	Use:   "manifest",
	Short: "Wait for every batch listed in a manifest file",
	Long: `Wait for all batches in a YAML manifest concurrently and print a summary.

Poll settings in the manifest override the environment; --max-attempts and
--base-delay override both. The exit code is the one of the first batch, in
manifest order, that did not complete.

Example:
  indexwait manifest -f batches.yaml
  indexwait manifest -f batches.yaml --concurrency 8`,
	RunE: runManifest,
}

func init() {
	rootCmd.AddCommand(manifestCmd)

	manifestCmd.Flags().StringP("file", "f", "", "path to manifest file (required)")
	manifestCmd.Flags().Int("concurrency", 0, "batches polled at once (default: manifest value, else 4)")
	_ = manifestCmd.MarkFlagRequired("file")
	addPollFlags(manifestCmd)
}

// batchOutcome is the result of waiting for one manifest entry.
type batchOutcome struct {
	entry    manifest.Entry
	attempts int
	elapsed  time.Duration
	err      error
}

func runManifest(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	m, err := manifest.Load(path)
	if err != nil {
		return withExitCode(fmt.Errorf("invalid manifest: %w", err))
	}

	log, err := newLogger(cmd)
	if err != nil {
		return withExitCode(err)
	}
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return withExitCode(fmt.Errorf("invalid configuration: %w", err))
	}
	envCfg, err := cfg.PollDefaults()
	if err != nil {
		return withExitCode(err)
	}
	pollCfg, err := m.PollConfig(envCfg)
	if err != nil {
		return withExitCode(err)
	}
	cfg.Poll.MaxAttempts, cfg.Poll.BaseDelay = pollCfg.MaxAttempts, pollCfg.BaseDelay
	if pollCfg, err = pollConfigFromFlags(cmd, cfg); err != nil {
		return withExitCode(err)
	}

	limit := m.Concurrency
	if cmd.Flags().Changed("concurrency") {
		limit, _ = cmd.Flags().GetInt("concurrency")
	}
	if limit <= 0 {
		limit = defaultManifestConcurrency
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := dify.NewClient(cfg, log.Component("dify-client"))
	outcomes := make([]batchOutcome, len(m.Batches))

	// failures are recorded per batch; one batch failing does not stop the others
	var g errgroup.Group
	g.SetLimit(limit)
	for i, entry := range m.Batches {
		i, entry := i, entry
		g.Go(func() error {
			out := batchOutcome{entry: entry}
			poller := poll.New(log.WithBatch(entry.DatasetID, entry.Batch),
				poll.WithObserver(func(attempt int, _ poll.Result, _ error) { out.attempts = attempt }))

			start := time.Now()
			out.err = poller.Poll(ctx, dify.IndexingProbe(client, entry.DatasetID, entry.Batch), pollCfg)
			out.elapsed = time.Since(start)
			outcomes[i] = out
			return nil
		})
	}
	_ = g.Wait()

	if err := printSummary(cmd, outcomes); err != nil {
		return withExitCode(err)
	}

	for _, out := range outcomes {
		if out.err != nil {
			return &exitCodeError{
				code: exitCodeFor(out.err),
				err:  fmt.Errorf("%s: %w", out.entry.Name, out.err),
			}
		}
	}
	return nil
}

func printSummary(cmd *cobra.Command, outcomes []batchOutcome) error {
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "BATCH\tRESULT\tATTEMPTS\tELAPSED\tDETAIL")

	completed := 0
	for _, out := range outcomes {
		result, detail := describe(out.err)
		if out.err == nil {
			completed++
		}
		fmt.Fprintf(tw, "%s\t%s\t%d\t%s\t%s\n",
			out.entry.Name, result, out.attempts, out.elapsed.Round(time.Millisecond), detail)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "%d/%d batches indexed\n", completed, len(outcomes))
	return nil
}

// describe names the outcome of one wait for the summary table.
func describe(err error) (string, string) {
	switch exitCodeFor(err) {
	case exitOK:
		return "completed", ""
	case exitTimeout:
		return "timeout", ""
	case exitAborted:
		return "failed", err.Error()
	default:
		return "error", err.Error()
	}
}
