package geo

import "math"

const (
	EarthRadiusMiles = 3958.8
	MetersPerMile    = 1609.34
	// MPSPerMPH converts miles per hour to meters per second.
	MPSPerMPH = 0.44704
)

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

func (c Coordinate) Finite() bool {
	return !math.IsNaN(c.Lat) && !math.IsInf(c.Lat, 0) && !math.IsNaN(c.Lng) && !math.IsInf(c.Lng, 0)
}

func toRad(d float64) float64 { return d * math.Pi / 180 }

// DistanceMiles is the haversine great-circle distance between a and b.
func DistanceMiles(a, b Coordinate) float64 {
	dLat := toRad(b.Lat - a.Lat)
	dLng := toRad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) + math.Cos(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
	return EarthRadiusMiles * c
}

func DistanceMeters(a, b Coordinate) float64 {
	return DistanceMiles(a, b) * MetersPerMile
}

// BearingDeg returns the initial bearing from a to b in degrees, 0..360.
func BearingDeg(a, b Coordinate) float64 {
	y := math.Sin(toRad(b.Lng-a.Lng)) * math.Cos(toRad(b.Lat))
	x := math.Cos(toRad(a.Lat))*math.Sin(toRad(b.Lat)) - math.Sin(toRad(a.Lat))*math.Cos(toRad(b.Lat))*math.Cos(toRad(b.Lng-a.Lng))
	brng := math.Atan2(y, x) * 180.0 / math.Pi
	if brng < 0 {
		brng += 360
	}
	return brng
}
