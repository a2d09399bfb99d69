// Package eta turns a vehicle position into an arrival estimate for a stop.
//
// Distances are measured along the direction's path, converted to time at a
// constant line speed and bucketed into proximity zones. When a previous
// sample is supplied the vehicle's movement is checked against the requested
// direction.
package eta

import (
	"fmt"
	"math"

	"streetcar-eta/internal/geo"
	"streetcar-eta/internal/route"
	"streetcar-eta/internal/track"
)

// MinSpeedMPS is the lowest speed an estimate will divide by.
const MinSpeedMPS = 0.5

type Options struct {
	SpeedMPH      float64
	ArrivingMiles float64
	NearbyMiles   float64
}

func DefaultOptions() Options {
	return Options{
		SpeedMPH:      9.3,
		ArrivingMiles: 0.2,
		NearbyMiles:   0.5,
	}
}

func (o Options) SpeedMPS() float64 { return o.SpeedMPH * geo.MPSPerMPH }

type Request struct {
	Position  *geo.Coordinate
	Previous  *geo.Coordinate
	Stop      string
	Direction route.Direction
}

type Result struct {
	Stop           string          `json:"stop"`
	Direction      route.Direction `json:"direction"`
	ETAMin         int             `json:"eta_min"`
	ETASec         int             `json:"eta_sec"`
	Zone           Zone            `json:"zone"`
	DistanceMiles  float64         `json:"distance_miles"`
	DistanceMeters float64         `json:"distance_meters"`
	Warning        *string         `json:"warning"`

	Seconds  float64  `json:"-"`
	Movement Movement `json:"-"`
}

// Estimator is safe for concurrent use; it only reads the network.
type Estimator struct {
	network *route.Network
	opts    Options
}

func NewEstimator(n *route.Network, opts Options) *Estimator {
	return &Estimator{network: n, opts: opts}
}

func (e *Estimator) Network() *route.Network { return e.network }

func (e *Estimator) Options() Options { return e.opts }

func (e *Estimator) Estimate(req Request) (*Result, error) {
	if req.Position == nil {
		return nil, ErrPositionUnavailable
	}
	stop, ok := e.network.Stop(req.Stop)
	if !ok {
		return nil, &Error{Kind: KindStopNotFound, Stop: req.Stop}
	}
	_, path := e.network.RouteAndPath(req.Direction)
	if len(path) < 2 {
		return nil, ErrPathNotReady
	}

	span := track.DistanceAlong(*req.Position, stop.Location, path)
	meters := span.Miles * geo.MetersPerMile
	speed := e.opts.SpeedMPS()
	if !span.Reachable || math.IsNaN(meters) || math.IsInf(meters, 0) || meters < 0 || speed < MinSpeedMPS {
		return nil, ErrUnavailable
	}

	seconds := meters / speed
	mins, secs := SplitSeconds(seconds)
	res := &Result{
		Stop:           stop.Name,
		Direction:      req.Direction,
		ETAMin:         mins,
		ETASec:         secs,
		Zone:           e.opts.Classify(span.Miles),
		DistanceMiles:  span.Miles,
		DistanceMeters: meters,
		Seconds:        seconds,
	}

	if req.Previous != nil {
		res.Movement = InferDirection(*req.Previous, *req.Position, req.Direction, e.network)
		if res.Movement != MovingUnknown && !res.Movement.Matches(req.Direction) {
			w := fmt.Sprintf("Trolley is moving %s, but you're tracking %s", res.Movement, req.Direction)
			res.Warning = &w
		}
	}
	return res, nil
}

// SplitSeconds splits a duration in seconds into whole minutes and rounded
// seconds, carrying a rounded 60 into the minutes.
func SplitSeconds(seconds float64) (int, int) {
	mins := int(math.Floor(seconds / 60))
	secs := int(math.RoundToEven(math.Mod(seconds, 60)))
	if secs == 60 {
		secs = 0
		mins++
	}
	return mins, secs
}
