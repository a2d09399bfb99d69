package main

import (
	"context"

	"github.com/rs/zerolog/log"

	"streetcar-eta/internal/config"
	"streetcar-eta/internal/db"
	"streetcar-eta/internal/route"
)

// loadNetwork prefers an explicit network file, then a GTFS database, then
// the built-in Tempe Streetcar definition.
func loadNetwork(ctx context.Context, cfg *config.Config) (*route.Network, error) {
	switch {
	case cfg.NetworkFile != "":
		log.Info().Str("file", cfg.NetworkFile).Msg("Loading network file")
		return route.LoadFile(cfg.NetworkFile)

	case cfg.DatabaseURL != "" && cfg.GTFSRouteID != "":
		sqlDB, err := db.Open(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		defer sqlDB.Close()
		if err := db.Ping(ctx, sqlDB); err != nil {
			return nil, err
		}
		log.Info().Str("route", cfg.GTFSRouteID).Msg("Loading network from GTFS database")
		return db.LoadNetwork(ctx, sqlDB, cfg.GTFSRouteID, cfg.NorthboundDirectionID)

	default:
		return route.Default(), nil
	}
}
