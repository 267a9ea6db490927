package main

import (
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"go-procurement-agent/internal/events"
	"go-procurement-agent/internal/models"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Follow job events published by running workers",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, flush, err := setup()
		if err != nil {
			return err
		}
		defer flush()

		if cfg.RedisURL == "" {
			return errors.New("REDIS_URL is required")
		}
		rdb, err := events.NewRedisClient(cmd.Context(), cfg.RedisURL)
		if err != nil {
			return err
		}
		defer rdb.Close()

		log := zap.S().Named("watch")
		log.Infof("👀 Watching job events")
		return events.NewBus(rdb, cfg.EventsChannel).Watch(cmd.Context(), func(ev models.JobEvent) {
			log.Infow(ev.Type,
				"job_id", ev.JobID,
				"status", ev.Status,
				"page", ev.Page,
				"opportunities", ev.Opportunities,
			)
		})
	},
}
