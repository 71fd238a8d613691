package main

import (
	"github.com/ruralhealthconnect/telecare/libs/runtime"
	"github.com/spf13/cobra"
)

// remindersCmd is meant for a daily cron job. Events go through the outbox, so
// the serve process must be running for them to reach Kafka.
func remindersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "send-reminders",
		Short: "Emit reminder events for appointments due tomorrow",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, _ := newLogger()
			ctx, stop := runtime.SignalContext()
			defer stop()

			d, err := buildDeps(ctx, logger)
			if err != nil {
				return err
			}
			defer d.Close()

			sent, err := d.mgr.SendReminders(ctx)
			if err != nil {
				logger.Error("sending reminders failed", "err", err)
				return err
			}
			logger.Info("reminder run finished", "sent", sent)
			return nil
		},
	}
}
