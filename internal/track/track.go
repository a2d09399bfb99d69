// Package track projects points onto a direction's path polyline and
// measures distances along it.
package track

import "streetcar-eta/internal/geo"

// Span is the along-path distance between two projected points. Reachable is
// false when the end projects before the start, i.e. the stop is behind the
// vehicle.
type Span struct {
	Start     int
	End       int
	Miles     float64
	Reachable bool
}

// NearestIndex returns the index of the path point closest to p. Ties resolve
// to the lowest index; an empty path yields -1.
func NearestIndex(p geo.Coordinate, path []geo.Coordinate) int {
	best := -1
	bestDist := 0.0
	for i, pt := range path {
		d := geo.DistanceMiles(p, pt)
		if best == -1 || d < bestDist {
			best = i
			bestDist = d
		}
	}
	return best
}

// DistanceAlong sums the segment lengths of path between the points nearest
// to vehicle and stop.
func DistanceAlong(vehicle, stop geo.Coordinate, path []geo.Coordinate) Span {
	start := NearestIndex(vehicle, path)
	end := NearestIndex(stop, path)
	span := Span{Start: start, End: end}
	if start < 0 || end < start {
		return span
	}
	span.Miles = segmentSum(path, start, end)
	span.Reachable = true
	return span
}

// Length is the along-path length of the whole path.
func Length(path []geo.Coordinate) float64 {
	if len(path) < 2 {
		return 0
	}
	return segmentSum(path, 0, len(path)-1)
}

func segmentSum(path []geo.Coordinate, from, to int) float64 {
	total := 0.0
	for i := from; i < to; i++ {
		total += geo.DistanceMiles(path[i], path[i+1])
	}
	return total
}
