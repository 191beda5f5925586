package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Alwanly/dify-indexing-watch/internal/dify"
	"github.com/Alwanly/dify-indexing-watch/pkg/poll"
	"github.com/spf13/cobra"
)

var waitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for one upload batch to finish indexing",
	Long: `Poll the indexing status of one upload batch until a document completes.

Example:
  indexwait wait --dataset 8f1c2d3e-... --batch 20250101000000123456
  indexwait wait --dataset 8f1c2d3e-... --batch 20250101000000123456 --max-attempts 10 --base-delay 500ms`,
	RunE: runWait,
}

func init() {
	rootCmd.AddCommand(waitCmd)

	waitCmd.Flags().String("dataset", "", "knowledge-base dataset id (required)")
	waitCmd.Flags().String("batch", "", "upload batch id returned by create-by-file (required)")
	_ = waitCmd.MarkFlagRequired("dataset")
	_ = waitCmd.MarkFlagRequired("batch")
	addPollFlags(waitCmd)
}

func runWait(cmd *cobra.Command, args []string) error {
	datasetID, _ := cmd.Flags().GetString("dataset")
	batch, _ := cmd.Flags().GetString("batch")

	log, err := newLogger(cmd)
	if err != nil {
		return withExitCode(err)
	}
	defer log.Sync()

	cfg, err := loadConfig(log)
	if err != nil {
		return withExitCode(fmt.Errorf("invalid configuration: %w", err))
	}
	pollCfg, err := pollConfigFromFlags(cmd, cfg)
	if err != nil {
		return withExitCode(err)
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	client := dify.NewClient(cfg, log.Component("dify-client"))
	poller := poll.New(log.WithBatch(datasetID, batch), poll.WithObserver(progressPrinter(cmd.ErrOrStderr(), pollCfg)))

	err = poller.Poll(ctx, dify.IndexingProbe(client, datasetID, batch), pollCfg)
	if err != nil {
		return withExitCode(err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "batch %s of dataset %s is indexed\n", batch, datasetID)
	return nil
}

// progressPrinter reports every attempt on w.
func progressPrinter(w io.Writer, cfg poll.Config) poll.AttemptObserver {
	return func(attempt int, result poll.Result, err error) {
		if err != nil {
			fmt.Fprintf(w, "attempt %d/%d: error: %v\n", attempt, cfg.MaxAttempts, err)
			return
		}
		fmt.Fprintf(w, "attempt %d/%d: %s\n", attempt, cfg.MaxAttempts, result)
	}
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}
