package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Alwanly/dify-indexing-watch/internal/config"
	"github.com/Alwanly/dify-indexing-watch/internal/models"
	"github.com/Alwanly/dify-indexing-watch/pkg/logger"
	"github.com/Alwanly/dify-indexing-watch/pkg/pubsub"
	"github.com/spf13/cobra"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print watch outcome events published by the watcher service",
	Long: `Subscribe to the watcher's Redis channel (REDIS_ADDR, REDIS_CHANNEL) and
print every finished watch until interrupted.

Example:
  REDIS_ADDR=localhost:6379 indexwait events
  REDIS_ADDR=localhost:6379 indexwait events --json --count 1`,
	RunE: runEvents,
}

func init() {
	rootCmd.AddCommand(eventsCmd)

	eventsCmd.Flags().Bool("json", false, "print raw JSON payloads")
	eventsCmd.Flags().Int("count", 0, "exit after this many events (0 = run until interrupted)")
}

func runEvents(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	count, _ := cmd.Flags().GetInt("count")

	log, err := newLogger(cmd)
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if !cfg.RedisEnabled() {
		return errors.New("REDIS_ADDR is not set")
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ps, err := pubsub.NewRedisPubSub(ctx, pubsub.RedisConfig{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	}, log)
	if err != nil {
		return err
	}
	defer ps.Close()

	msgs, err := ps.Subscribe(ctx, cfg.Redis.Channel)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "listening on %s\n", cfg.Redis.Channel)

	seen := 0
	for msg := range msgs {
		if err := printEvent(cmd.OutOrStdout(), msg.Payload, asJSON); err != nil {
			log.Warn("skipping malformed event", logger.String("payload", msg.Payload), logger.Err(err))
			continue
		}
		seen++
		if count > 0 && seen >= count {
			return nil
		}
	}
	return nil
}

// printEvent writes one event line. Payloads that are not watch events are
// rejected, except in raw mode.
func printEvent(w io.Writer, payload string, raw bool) error {
	if raw {
		_, err := fmt.Fprintln(w, payload)
		return err
	}
	var ev models.WatchEvent
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return fmt.Errorf("decode event: %w", err)
	}
	if ev.WatchID == "" {
		return errors.New("decode event: missing watch_id")
	}

	line := fmt.Sprintf("%s %s dataset=%s batch=%s status=%s attempts=%d",
		ev.At.Format("2006-01-02T15:04:05Z07:00"), ev.WatchID, ev.DatasetID, ev.Batch, ev.Status, ev.Attempts)
	if ev.Reason != "" {
		line += fmt.Sprintf(" reason=%q", ev.Reason)
	}
	_, err := fmt.Fprintln(w, line)
	return err
}
