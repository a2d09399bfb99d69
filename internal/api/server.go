// Package api serves the rider-facing HTTP API.
package api

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"

	"streetcar-eta/internal/eta"
	"streetcar-eta/internal/feed"
	"streetcar-eta/internal/tracker"
)

// Locator resolves tracked vehicles.
type Locator interface {
	Locate(ctx context.Context, vehicleID int) (*tracker.Sample, error)
	VehicleIDs() []int
}

type EstimateMetrics interface {
	EstimateObserve(outcome string, d time.Duration)
}

type Options struct {
	DefaultVehicle   int
	LenientDirection bool
	// Fleet serves /api/trolley_locations_VM. Nil disables that endpoint.
	Fleet   feed.Lister
	Metrics EstimateMetrics
	// LookupTimeout bounds each vehicle lookup made while serving a request.
	LookupTimeout time.Duration
}

type Server struct {
	app       *fiber.App
	estimator *eta.Estimator
	vehicles  Locator
	opts      Options
}

func NewServer(estimator *eta.Estimator, vehicles Locator, opts Options) *Server {
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = 10 * time.Second
	}

	s := &Server{
		estimator: estimator,
		vehicles:  vehicles,
		opts:      opts,
	}

	s.app = fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	s.app.Use(NewLogger())
	s.app.Use(cors.New())

	group := s.app.Group("/api")
	group.Get("/health", s.health)
	group.Get("/stops", s.stops)
	group.Get("/route", s.route)
	group.Get("/path", s.path)
	group.Post("/eta", s.eta)
	group.Get("/trolley_location", s.trolleyLocation)
	group.Get("/active_trolley_locations", s.activeTrolleyLocations)
	group.Get("/trolley_locations_VM", s.fleetLocations)

	return s
}

func (s *Server) App() *fiber.App { return s.app }

func (s *Server) Listen(addr string) error { return s.app.Listen(addr) }

func (s *Server) Shutdown(ctx context.Context) error { return s.app.ShutdownWithContext(ctx) }

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	var e *fiber.Error
	if errors.As(err, &e) {
		code = e.Code
	}
	return c.Status(code).JSON(fiber.Map{"error": err.Error()})
}
