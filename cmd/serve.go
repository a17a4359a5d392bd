package main

import (
	"context"
	"errors"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/ukydev/iotfleet/internal/auth"
	"github.com/ukydev/iotfleet/internal/config"
	"github.com/ukydev/iotfleet/internal/db"
	"github.com/ukydev/iotfleet/internal/fuel"
	"github.com/ukydev/iotfleet/internal/handlers"
	"github.com/ukydev/iotfleet/internal/ingest"
	"github.com/ukydev/iotfleet/internal/logging"
	"github.com/ukydev/iotfleet/internal/notify"
	"github.com/ukydev/iotfleet/internal/simulation"
)

const (
	hubSendBuffer   = 64
	shutdownTimeout = 15 * time.Second
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP control surface, websocket feed and ingestion",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		logging.Configure(cfg.LogLevel, cfg.LogFormat)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return serve(ctx, cfg)
	},
}

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func serve(ctx context.Context, cfg *config.Config) error {
	store, err := db.Open(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.WithError(err).Warn("Failed to close store")
		}
	}()

	rng := newRand(cfg.Seed)
	if cfg.SeedDemoVehicles {
		if err := seedIfEmpty(ctx, store, rng); err != nil {
			return err
		}
	}

	hub := notify.NewHub(hubSendBuffer, log.StandardLogger())
	defer hub.Close()

	notifier := notify.Multi{hub}
	if cfg.RedisEnabled() {
		rn, err := notify.NewRedisNotifier(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, log.StandardLogger())
		if err != nil {
			return err
		}
		defer rn.Close()
		notifier = append(notifier, rn)
		go func() {
			if err := rn.Relay(ctx, hub); err != nil {
				log.WithError(err).Error("Redis relay stopped")
			}
		}()
		log.WithField("addr", cfg.RedisAddr).Info("Redis fan-out enabled")
	}

	model := fuel.NewModel(cfg.FuelAlertHorizonHours)
	engine := simulation.NewEngine(store, notifier, simulation.Options{
		TickInterval: cfg.TickInterval,
		Retention:    cfg.Retention,
		Workers:      cfg.Workers,
		Rand:         rng,
		Logger:       log.StandardLogger(),
		Model:        model,
	})
	controller := simulation.NewController(engine)
	defer controller.Stop()

	readings := ingest.NewService(store, notifier, model, log.StandardLogger())

	if cfg.MQTTEnabled() {
		sub := ingest.NewSubscriber(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTTopic, readings, log.StandardLogger())
		if err := sub.Start(ctx); err != nil {
			return err
		}
		defer sub.Stop()
		log.WithFields(log.Fields{"broker": cfg.MQTTBroker, "topic": cfg.MQTTTopic}).Info("MQTT ingestion enabled")
	}

	secret := cfg.JWTSecret
	if secret == "" {
		secret = uuid.NewString()
		log.Warn("JWT_SECRET is not set, using an ephemeral secret; tokens will not survive a restart")
	}
	authService, err := auth.NewService(secret, cfg.JWTExpiry)
	if err != nil {
		return err
	}

	if cfg.Autostart {
		if err := controller.Start(ctx); err != nil {
			if !errors.Is(err, simulation.ErrNoVehicles) {
				return err
			}
			log.Warn("Autostart skipped: no vehicles in store")
		}
	}

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: handlers.NewRouter(handlers.Deps{
			Auth:             authService,
			Simulation:       controller,
			Readings:         readings,
			Vehicles:         store,
			WS:               hub,
			Logger:           log.StandardLogger(),
			IngestRateLimit:  cfg.IngestRateLimit,
			IngestRateWindow: cfg.IngestRateWindow,
		}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.WithField("port", cfg.HTTPPort).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down")
		controller.Stop()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// seedIfEmpty upserts the demo roster and adds history only to an empty
// reading store, so restarts do not duplicate it.
func seedIfEmpty(ctx context.Context, store db.Store, rng *rand.Rand) error {
	count, err := store.CountReadings(ctx)
	if err != nil {
		return err
	}
	vehicles, readings, err := db.Seed(ctx, store, rng, time.Now().UTC(), count == 0)
	if err != nil {
		return err
	}
	log.WithFields(log.Fields{"vehicles": vehicles, "readings": readings}).Info("Demo data seeded")
	return nil
}
