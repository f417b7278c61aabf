package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"staybook/internal/adapters/geocode"
	"staybook/internal/adapters/observability"
	"staybook/internal/app"
	"staybook/internal/shared"
	"staybook/internal/storage"
)

func main() {
	cfg := shared.Load()
	log.Logger = observability.NewLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd(cfg).ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("hotelctl failed")
		os.Exit(1)
	}
}

func newRootCmd(cfg shared.Config) *cobra.Command {
	root := &cobra.Command{
		Use:           "hotelctl",
		Short:         "Maintenance tasks for the staybook backend",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "storage driver (mysql|mongo)")
	root.AddCommand(newMigrateCmd(&cfg), newGeocodeCmd(&cfg))
	return root
}

func newMigrateCmd(cfg *shared.Config) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply MySQL migrations or create Mongo indexes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			stores, err := storage.Open(ctx, *cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close(context.Background()) }()

			if err := stores.Migrate(ctx); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.StoreDriver).Msg("schema up to date")
			return nil
		},
	}
}

func newGeocodeCmd(cfg *shared.Config) *cobra.Command {
	workers := cfg.Workers
	cmd := &cobra.Command{
		Use:   "geocode",
		Short: "Backfill coordinates for hotels that have none",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			stores, err := storage.Open(ctx, *cfg)
			if err != nil {
				return err
			}
			defer func() { _ = stores.Close(context.Background()) }()

			geo, err := geocode.New(cfg.GeocodeBase, cfg.GeocodeUserAgent, cfg.GeocodeRPS)
			if err != nil {
				return err
			}
			svc := app.NewHotelService(app.HotelDeps{
				Hotels:   stores.Hotels,
				Images:   stores.Images,
				Users:    stores.Users,
				Orders:   stores.Orders,
				Geocoder: geo,
			})

			log.Info().Str("base", cfg.GeocodeBase).Int("workers", workers).Msg("geocode backfill starting")
			n, err := svc.BackfillCoordinates(ctx, workers)
			if err != nil {
				return err
			}
			log.Info().Int("updated", n).Msg("geocode backfill completed")
			return nil
		},
	}
	cmd.Flags().IntVar(&workers, "workers", workers, "concurrent geocoder calls")
	return cmd
}
