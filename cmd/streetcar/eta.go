package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"streetcar-eta/internal/config"
	"streetcar-eta/internal/eta"
	"streetcar-eta/internal/geo"
	"streetcar-eta/internal/route"
)

func etaCommand() *cli.Command {
	return &cli.Command{
		Name:  "eta",
		Usage: "estimate arrival at a stop from a given streetcar position",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "stop", Required: true, Usage: "stop name"},
			&cli.StringFlag{Name: "direction", Value: "Northbound", Usage: "Northbound or Southbound"},
			&cli.Float64Flag{Name: "lat", Required: true, Usage: "streetcar latitude"},
			&cli.Float64Flag{Name: "lng", Required: true, Usage: "streetcar longitude"},
			&cli.Float64Flag{Name: "prev-lat", Usage: "previous streetcar latitude"},
			&cli.Float64Flag{Name: "prev-lng", Usage: "previous streetcar longitude"},
		},
		Action: func(c *cli.Context) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config error: %w", err)
			}

			var d route.Direction
			if cfg.LenientDirection {
				d = route.ParseDirectionLenient(c.String("direction"))
			} else if d, err = route.ParseDirection(c.String("direction")); err != nil {
				return err
			}

			network, err := loadNetwork(c.Context, cfg)
			if err != nil {
				return fmt.Errorf("load network: %w", err)
			}

			req := eta.Request{
				Position:  &geo.Coordinate{Lat: c.Float64("lat"), Lng: c.Float64("lng")},
				Stop:      c.String("stop"),
				Direction: d,
			}
			if c.IsSet("prev-lat") && c.IsSet("prev-lng") {
				req.Previous = &geo.Coordinate{Lat: c.Float64("prev-lat"), Lng: c.Float64("prev-lng")}
			}

			estimator := eta.NewEstimator(network, eta.Options{
				SpeedMPH:      cfg.SpeedMPH,
				ArrivingMiles: cfg.ArrivingMiles,
				NearbyMiles:   cfg.NearbyMiles,
			})

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")

			result, err := estimator.Estimate(req)
			if err != nil {
				return enc.Encode(map[string]string{"error": err.Error()})
			}
			return enc.Encode(result)
		},
	}
}
