/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os/signal"
	"syscall"

	"github.com/simaland/userapi/internal/mq"
	"github.com/simaland/userapi/types"
	"github.com/spf13/cobra"
)

// eventsCmd tails the user and session events published by the server.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Print user and session events as they are published",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger := loadConfig()

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		err = queue.Subscribe(ctx, cfg.MQ.EventsChannel, func(ctx context.Context, msg mq.Message) error {
			var event types.Event
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				logger.Warn().Err(err).Str("id", msg.ID).Msg("skipping malformed event")
				return nil
			}
			logger.Info().
				Str("type", event.Type).
				Int("user_id", event.UserID).
				Str("login", event.Login).
				Time("at", event.At).
				Msg("event")
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
}
