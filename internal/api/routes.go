package api

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"streetcar-eta/internal/eta"
	"streetcar-eta/internal/geo"
	"streetcar-eta/internal/route"
)

const positionUnavailable = "Trolley location unavailable."

type etaRequest struct {
	Stop      string `json:"stop"`
	Route     string `json:"route"`
	Direction string `json:"direction"`
	Vehicle   int    `json:"vehicle"`
}

type vehicleLocation struct {
	ID  int     `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

type fleetLocation struct {
	ID  int     `json:"id"`
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
	Dir *uint32 `json:"dir"`
}

func (s *Server) health(c *fiber.Ctx) error {
	n := s.estimator.Network()
	return c.JSON(fiber.Map{
		"status":  "ok",
		"network": n.Name(),
		"stops":   len(n.Stops()),
	})
}

func (s *Server) stops(c *fiber.Ctx) error {
	return c.JSON(s.estimator.Network().StopNames())
}

func (s *Server) route(c *fiber.Ctx) error {
	d, err := s.direction(c.Query("direction"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	stops, _ := s.estimator.Network().RouteAndPath(d)
	return c.JSON(stops)
}

func (s *Server) path(c *fiber.Ctx) error {
	d, err := s.direction(c.Query("direction"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}
	_, path := s.estimator.Network().RouteAndPath(d)
	if path == nil {
		path = []geo.Coordinate{}
	}
	return c.JSON(path)
}

func (s *Server) eta(c *fiber.Ctx) error {
	var body etaRequest
	if err := c.BodyParser(&body); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}

	raw := body.Route
	if raw == "" {
		raw = body.Direction
	}
	d, err := s.direction(raw)
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, err.Error())
	}

	vehicleID := body.Vehicle
	if vehicleID == 0 {
		vehicleID = s.opts.DefaultVehicle
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.opts.LookupTimeout)
	defer cancel()

	sample, err := s.vehicles.Locate(ctx, vehicleID)
	if err != nil {
		log.Warn().Err(err).Int("vehicle", vehicleID).Msg("Vehicle position unavailable")
		s.observe(eta.KindPositionUnavailable.String(), 0)
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": positionUnavailable})
	}

	pos := sample.Position
	start := time.Now()
	result, err := s.estimator.Estimate(eta.Request{
		Position:  &pos,
		Previous:  sample.Previous,
		Stop:      body.Stop,
		Direction: d,
	})
	if err != nil {
		outcome := "error"
		var etaErr *eta.Error
		if errors.As(err, &etaErr) {
			outcome = etaErr.Kind.String()
		}
		s.observe(outcome, time.Since(start))
		log.Debug().Err(err).Str("stop", body.Stop).Stringer("direction", d).Int("vehicle", vehicleID).Msg("No estimate")
		return c.JSON(fiber.Map{"error": err.Error()})
	}

	s.observe("ok", time.Since(start))
	return c.JSON(result)
}

func (s *Server) trolleyLocation(c *fiber.Ctx) error {
	vehicleID := s.opts.DefaultVehicle
	if v := c.Query("vehicle"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, "invalid vehicle")
		}
		vehicleID = n
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.opts.LookupTimeout)
	defer cancel()

	sample, err := s.vehicles.Locate(ctx, vehicleID)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": positionUnavailable})
	}
	return c.JSON(sample.Position)
}

func (s *Server) activeTrolleyLocations(c *fiber.Ctx) error {
	ctx, cancel := context.WithTimeout(c.UserContext(), s.opts.LookupTimeout)
	defer cancel()

	ids := s.vehicles.VehicleIDs()
	p := pool.NewWithResults[*vehicleLocation]().WithMaxGoroutines(len(ids) + 1)
	for _, id := range ids {
		p.Go(func() *vehicleLocation {
			sample, err := s.vehicles.Locate(ctx, id)
			if err != nil {
				return nil
			}
			return &vehicleLocation{ID: id, Lat: sample.Position.Lat, Lng: sample.Position.Lng}
		})
	}

	locations := []vehicleLocation{}
	for _, l := range p.Wait() {
		if l != nil {
			locations = append(locations, *l)
		}
	}
	sort.Slice(locations, func(i, j int) bool { return locations[i].ID < locations[j].ID })

	return c.JSON(locations)
}

func (s *Server) fleetLocations(c *fiber.Ctx) error {
	if s.opts.Fleet == nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Vehicle feed not configured."})
	}

	ctx, cancel := context.WithTimeout(c.UserContext(), s.opts.LookupTimeout)
	defer cancel()

	vehicles, err := s.opts.Fleet.Vehicles(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("Vehicle feed unavailable")
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{"error": "Vehicle feed unavailable."})
	}

	out := make([]fleetLocation, 0, len(vehicles))
	for _, v := range vehicles {
		out = append(out, fleetLocation{ID: v.ID, Lat: v.Position.Lat, Lng: v.Position.Lng, Dir: v.DirectionID})
	}
	return c.JSON(out)
}

// direction parses a direction query or body value. Empty means Northbound.
func (s *Server) direction(raw string) (route.Direction, error) {
	if raw == "" {
		return route.Northbound, nil
	}
	if s.opts.LenientDirection {
		return route.ParseDirectionLenient(raw), nil
	}
	return route.ParseDirection(raw)
}

func (s *Server) observe(outcome string, d time.Duration) {
	if s.opts.Metrics != nil {
		s.opts.Metrics.EstimateObserve(outcome, d)
	}
}
