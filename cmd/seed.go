package main

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/ukydev/iotfleet/internal/config"
	"github.com/ukydev/iotfleet/internal/db"
	"github.com/ukydev/iotfleet/internal/logging"
)

var seedHistory bool

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert the demo vehicle roster into the configured store",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.Configure(cfg.LogLevel, cfg.LogFormat)

		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		store, err := db.Open(ctx, cfg)
		if err != nil {
			return err
		}
		defer func() {
			if err := store.Close(context.Background()); err != nil {
				log.WithError(err).Warn("Failed to close store")
			}
		}()

		vehicles, readings, err := db.Seed(ctx, store, newRand(cfg.Seed), time.Now().UTC(), seedHistory)
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Seeded %d vehicles and %d readings\n", vehicles, readings)
		return nil
	},
}

func init() {
	seedCmd.Flags().BoolVar(&seedHistory, "history", false, "Also append a week of hourly readings")
}
