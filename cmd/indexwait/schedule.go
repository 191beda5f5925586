package main

import (
	"fmt"
	"math"
	"text/tabwriter"
	"time"

	"github.com/Alwanly/dify-indexing-watch/internal/config"
	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Print the delay before every status check",
	Long: `Print the backoff schedule the current settings produce and the longest
total time a wait can sleep. No request is sent.

Example:
  indexwait schedule
  indexwait schedule --max-attempts 10 --base-delay 500ms`,
	RunE: runSchedule,
}

func init() {
	rootCmd.AddCommand(scheduleCmd)
	addPollFlags(scheduleCmd)
}

func runSchedule(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return withExitCode(err)
	}
	pollCfg, err := pollConfigFromFlags(cmd, cfg)
	if err != nil {
		return withExitCode(err)
	}

	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "ATTEMPT\tDELAY\tELAPSED")
	var elapsed time.Duration
	for i, d := range pollCfg.Schedule() {
		if elapsed > time.Duration(math.MaxInt64)-d {
			elapsed = time.Duration(math.MaxInt64)
		} else {
			elapsed += d
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\n", i+1, d, elapsed)
	}
	if err := tw.Flush(); err != nil {
		return withExitCode(err)
	}

	fmt.Fprintf(cmd.OutOrStdout(), "max scheduled wait: %s\n", pollCfg.MaxScheduledWait())
	return nil
}
