package eta

import (
	"streetcar-eta/internal/geo"
	"streetcar-eta/internal/route"
)

// Movement is the travel direction read from two consecutive samples.
type Movement string

const (
	MovingNorthbound Movement = "Northbound"
	MovingSouthbound Movement = "Southbound"
	MovingUnknown    Movement = "Unknown"
)

// InferDirection compares the nearest-stop index of prev and curr within the
// assumed direction's stop sequence. An increasing index always reads as
// Northbound and a decreasing one as Southbound, whichever sequence was used.
func InferDirection(prev, curr geo.Coordinate, assumed route.Direction, n *route.Network) Movement {
	currIdx := n.NearestStopIndex(curr, assumed)
	prevIdx := n.NearestStopIndex(prev, assumed)
	if currIdx == -1 || prevIdx == -1 {
		return MovingUnknown
	}
	switch {
	case currIdx > prevIdx:
		return MovingNorthbound
	case currIdx < prevIdx:
		return MovingSouthbound
	default:
		return MovingUnknown
	}
}

// Matches reports whether m names direction d.
func (m Movement) Matches(d route.Direction) bool {
	return string(m) == d.String()
}
