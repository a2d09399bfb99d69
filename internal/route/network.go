package route

import (
	"errors"
	"fmt"

	"streetcar-eta/internal/geo"
)

type Stop struct {
	ID       int            `json:"id"`
	Name     string         `json:"name"`
	Location geo.Coordinate `json:"location"`
}

// Line is the ordered stop sequence and track geometry of one direction.
type Line struct {
	Stops []string
	Path  []geo.Coordinate
}

// Network holds the stop table and both lines. It is read-only once built
// and safe to share between goroutines.
type Network struct {
	name   string
	stops  []Stop
	byName map[string]Stop
	lines  [2]Line
}

// NewNetwork validates the stop table and copies its inputs. Short paths are
// accepted here; callers report them per request.
func NewNetwork(name string, stops []Stop, northbound, southbound Line) (*Network, error) {
	if len(stops) == 0 {
		return nil, errors.New("network has no stops")
	}
	n := &Network{
		name:   name,
		stops:  make([]Stop, len(stops)),
		byName: make(map[string]Stop, len(stops)),
	}
	copy(n.stops, stops)
	for _, s := range stops {
		if s.Name == "" {
			return nil, fmt.Errorf("stop %d has no name", s.ID)
		}
		if !s.Location.Finite() {
			return nil, fmt.Errorf("stop %q has a non-finite location", s.Name)
		}
		if _, dup := n.byName[s.Name]; dup {
			return nil, fmt.Errorf("duplicate stop name %q", s.Name)
		}
		n.byName[s.Name] = s
	}
	for d, l := range [2]Line{northbound, southbound} {
		for i, p := range l.Path {
			if !p.Finite() {
				return nil, fmt.Errorf("%s path point %d is not finite", Direction(d), i)
			}
		}
		n.lines[d] = Line{
			Stops: append([]string(nil), l.Stops...),
			Path:  append([]geo.Coordinate(nil), l.Path...),
		}
	}
	return n, nil
}

func (n *Network) Name() string { return n.name }

func (n *Network) Stop(name string) (Stop, bool) {
	s, ok := n.byName[name]
	return s, ok
}

// Stops returns the stop table in its defined order.
func (n *Network) Stops() []Stop {
	return append([]Stop(nil), n.stops...)
}

func (n *Network) StopNames() []string {
	names := make([]string, len(n.stops))
	for i, s := range n.stops {
		names[i] = s.Name
	}
	return names
}

// RouteAndPath returns the stop names and path points of direction d.
// The returned slices must not be modified.
func (n *Network) RouteAndPath(d Direction) ([]string, []geo.Coordinate) {
	l := n.line(d)
	return l.Stops, l.Path
}

func (n *Network) line(d Direction) Line {
	if d == Northbound {
		return n.lines[Northbound]
	}
	return n.lines[Southbound]
}

// NearestStopIndex returns the position within d's stop sequence of the stop
// closest to p. Names missing from the stop table are skipped; ties keep the
// lowest index and -1 means nothing matched.
func (n *Network) NearestStopIndex(p geo.Coordinate, d Direction) int {
	closest := -1
	minDist := 0.0
	for i, name := range n.line(d).Stops {
		s, ok := n.byName[name]
		if !ok {
			continue
		}
		dist := geo.DistanceMiles(p, s.Location)
		if closest == -1 || dist < minDist {
			closest = i
			minDist = dist
		}
	}
	return closest
}
