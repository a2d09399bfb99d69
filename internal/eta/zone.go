package eta

type Zone string

const (
	ZoneArriving    Zone = "Arriving"
	ZoneNearby      Zone = "Nearby"
	ZoneApproaching Zone = "Approaching"
)

// Classify buckets an along-path distance. Both thresholds are inclusive.
func (o Options) Classify(miles float64) Zone {
	switch {
	case miles <= o.ArrivingMiles:
		return ZoneArriving
	case miles <= o.NearbyMiles:
		return ZoneNearby
	default:
		return ZoneApproaching
	}
}
