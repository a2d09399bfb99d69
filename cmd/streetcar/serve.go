package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"streetcar-eta/internal/api"
	"streetcar-eta/internal/config"
	"streetcar-eta/internal/eta"
	"streetcar-eta/internal/feed"
	"streetcar-eta/internal/metrics"
	"streetcar-eta/internal/publisher"
	"streetcar-eta/internal/tracker"
)

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the tracker and the web API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "listen",
				Usage: "listen target for the web server (overrides STREETCAR_LISTEN)",
			},
			&cli.StringFlag{
				Name:  "source",
				Usage: "position source: firebase, gtfsrt or fixed (overrides STREETCAR_POSITION_SOURCE)",
			},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}
			if v := c.String("listen"); v != "" {
				cfg.Listen = v
			}
			if v := c.String("source"); v != "" {
				cfg.PositionSource = strings.ToLower(v)
			}

			ctx, cancel := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	network, err := loadNetwork(ctx, cfg)
	if err != nil {
		return fmt.Errorf("load network: %w", err)
	}

	// Recording methods are nil-safe, so a nil collector disables metrics.
	var mcol *metrics.Collector
	if cfg.MetricsAddr != "" {
		mcol = metrics.NewCollector(cfg.SpeedMPH, cfg.PollInterval)
		srv := mcol.Serve(cfg.MetricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	fetchOpts := feed.Options{Timeout: cfg.FetchTimeout, Retries: cfg.FetchRetries, Metrics: mcol}

	var fleet *feed.GTFSRTSource
	if cfg.VehiclesFeedURL != "" {
		fleet = feed.NewGTFSRTSource(cfg.VehiclesFeedURL, cfg.FeedVehicleMin, cfg.FeedVehicleMax, fetchOpts)
	}

	source, err := positionSource(ctx, cfg, fleet, fetchOpts)
	if err != nil {
		return err
	}

	var store tracker.Store = tracker.NewMemoryStore(cfg.PositionTTL)
	if cfg.RedisAddress != "" {
		client := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddress,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDatabase,
		})
		defer client.Close()
		if err := client.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("redis: %w", err)
		}
		store = tracker.NewRedisStore(client, cfg.PositionTTL)
		log.Info().Str("address", cfg.RedisAddress).Msg("Storing samples in Redis")
	}

	var pub tracker.Publisher
	if cfg.NATSURL != "" {
		p, err := publisher.NewNATSPublisher(cfg.NATSURL, cfg.NATSSubject, cfg.LogNATSSubjects, mcol)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer p.Close()
		pub = p
	}

	mgr := tracker.NewManager(network, source, store, pub, mcol, cfg.VehicleIDs, cfg.PollInterval)
	mgr.Start(ctx)
	defer mgr.Stop()

	estimator := eta.NewEstimator(network, eta.Options{
		SpeedMPH:      cfg.SpeedMPH,
		ArrivingMiles: cfg.ArrivingMiles,
		NearbyMiles:   cfg.NearbyMiles,
	})

	opts := api.Options{
		DefaultVehicle:   cfg.DefaultVehicle,
		LenientDirection: cfg.LenientDirection,
		Metrics:          mcol,
		LookupTimeout:    cfg.FetchTimeout * time.Duration(cfg.FetchRetries+1),
	}
	if fleet != nil {
		opts.Fleet = fleet
	}
	server := api.NewServer(estimator, mgr, opts)

	errs := make(chan error, 1)
	go func() {
		errs <- server.Listen(cfg.Listen)
	}()
	log.Info().
		Str("listen", cfg.Listen).
		Str("network", network.Name()).
		Str("source", cfg.PositionSource).
		Msg("Streetcar ETA service started")

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown")
	}
	log.Info().Msg("Shutdown complete")
	return nil
}

func positionSource(ctx context.Context, cfg *config.Config, fleet *feed.GTFSRTSource, opts feed.Options) (feed.Source, error) {
	switch cfg.PositionSource {
	case config.SourceFirebase:
		src, err := feed.NewFirebaseSource(ctx, cfg.FirebaseURL, opts)
		if err != nil {
			return nil, err
		}
		return src, nil
	case config.SourceGTFSRT:
		if fleet == nil {
			return nil, fmt.Errorf("STREETCAR_VEHICLES_FEED_URL must be set for the gtfsrt source")
		}
		return fleet, nil
	case config.SourceFixed:
		if cfg.FixedPosition == nil {
			return nil, fmt.Errorf("STREETCAR_FIXED_POSITION must be set for the fixed source")
		}
		return feed.Fixed{Coordinate: *cfg.FixedPosition}, nil
	default:
		return nil, fmt.Errorf("unknown position source %q", cfg.PositionSource)
	}
}
