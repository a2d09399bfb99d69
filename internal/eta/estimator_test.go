package eta

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetcar-eta/internal/geo"
	"streetcar-eta/internal/route"
	"streetcar-eta/internal/track"
)

func stopLocation(t *testing.T, n *route.Network, name string) *geo.Coordinate {
	t.Helper()
	s, ok := n.Stop(name)
	require.True(t, ok, "unknown stop %q", name)
	loc := s.Location
	return &loc
}

func TestEstimateWholePath(t *testing.T) {
	n := route.Default()
	est := NewEstimator(n, DefaultOptions())
	_, path := n.RouteAndPath(route.Northbound)

	start := path[0]
	res, err := est.Estimate(Request{Position: &start, Stop: "Marina Heights", Direction: route.Northbound})
	require.NoError(t, err)

	wantMeters := track.Length(path) * geo.MetersPerMile
	wantSeconds := wantMeters / (9.3 * 0.44704)
	assert.InEpsilon(t, wantSeconds, res.Seconds, 1e-6)
	assert.InEpsilon(t, wantMeters, res.DistanceMeters, 1e-6)
	assert.InEpsilon(t, res.DistanceMiles*1609.34, res.DistanceMeters, 1e-9)

	mins, secs := SplitSeconds(wantSeconds)
	assert.Equal(t, mins, res.ETAMin)
	assert.Equal(t, secs, res.ETASec)
	assert.Equal(t, ZoneApproaching, res.Zone)
	assert.Equal(t, "Marina Heights", res.Stop)
	assert.Equal(t, route.Northbound, res.Direction)
	assert.Nil(t, res.Warning)
}

func TestEstimateStopNotFound(t *testing.T) {
	est := NewEstimator(route.Default(), DefaultOptions())
	pos := geo.Coordinate{Lat: 33.42, Lng: -111.94}

	_, err := est.Estimate(Request{Position: &pos, Stop: "X", Direction: route.Northbound})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrStopNotFound)
	assert.Equal(t, "Stop 'X' not found.", err.Error())
}

func TestEstimatePathNotReady(t *testing.T) {
	stops := []route.Stop{{ID: 1, Name: "A", Location: geo.Coordinate{Lat: 0, Lng: 0}}}
	n, err := route.NewNetwork("partial", stops,
		route.Line{Stops: []string{"A"}, Path: []geo.Coordinate{{Lat: 0, Lng: 0}}},
		route.Line{Stops: []string{"A"}},
	)
	require.NoError(t, err)
	est := NewEstimator(n, DefaultOptions())
	pos := geo.Coordinate{}

	for _, d := range []route.Direction{route.Northbound, route.Southbound} {
		_, err := est.Estimate(Request{Position: &pos, Stop: "A", Direction: d})
		assert.ErrorIs(t, err, ErrPathNotReady)
		assert.Equal(t, "Route path not loaded yet.", err.Error())
	}
}

func TestEstimatePositionUnavailable(t *testing.T) {
	est := NewEstimator(route.Default(), DefaultOptions())

	_, err := est.Estimate(Request{Stop: "Hayden Ferry", Direction: route.Northbound})
	assert.ErrorIs(t, err, ErrPositionUnavailable)
	assert.Equal(t, "Trolley location unavailable.", err.Error())
}

func TestEstimateStopBehindVehicle(t *testing.T) {
	n := route.Default()
	est := NewEstimator(n, DefaultOptions())

	_, err := est.Estimate(Request{
		Position:  stopLocation(t, n, "Marina Heights"),
		Stop:      "Dorsey Ln/Apache Blvd",
		Direction: route.Northbound,
	})
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.Equal(t, "ETA unavailable or stop behind trolley.", err.Error())
}

func TestEstimateSpeedBelowFloor(t *testing.T) {
	n := route.Default()
	est := NewEstimator(n, Options{SpeedMPH: 1, ArrivingMiles: 0.2, NearbyMiles: 0.5})
	_, path := n.RouteAndPath(route.Northbound)

	_, err := est.Estimate(Request{Position: &path[0], Stop: "Marina Heights", Direction: route.Northbound})
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestEstimateAtStop(t *testing.T) {
	n := route.Default()
	est := NewEstimator(n, DefaultOptions())

	res, err := est.Estimate(Request{
		Position:  stopLocation(t, n, "Hayden Ferry"),
		Stop:      "Hayden Ferry",
		Direction: route.Northbound,
	})
	require.NoError(t, err)
	assert.Zero(t, res.DistanceMiles)
	assert.Zero(t, res.ETAMin)
	assert.Zero(t, res.ETASec)
	assert.Equal(t, ZoneArriving, res.Zone)
}

func TestEstimateSameNearestStopHasNoWarning(t *testing.T) {
	n := route.Default()
	est := NewEstimator(n, DefaultOptions())

	curr := stopLocation(t, n, "University Dr/Ash Ave")
	prev := geo.Coordinate{Lat: curr.Lat - 0.0002, Lng: curr.Lng}

	res, err := est.Estimate(Request{Position: curr, Previous: &prev, Stop: "Dorsey Ln/Apache Blvd", Direction: route.Southbound})
	require.NoError(t, err)
	assert.Equal(t, MovingUnknown, res.Movement)
	assert.Nil(t, res.Warning)
}

func TestEstimateDirectionMismatchWarning(t *testing.T) {
	n := route.Default()
	est := NewEstimator(n, DefaultOptions())

	prev := stopLocation(t, n, "Hayden Ferry")
	curr := stopLocation(t, n, "5th St/Ash Ave")

	res, err := est.Estimate(Request{Position: curr, Previous: prev, Stop: "Dorsey Ln/Apache Blvd", Direction: route.Southbound})
	require.NoError(t, err)
	require.NotNil(t, res.Warning)
	assert.Equal(t, "Trolley is moving Northbound, but you're tracking Southbound", *res.Warning)
}

func TestEstimateMatchingDirectionHasNoWarning(t *testing.T) {
	n := route.Default()
	est := NewEstimator(n, DefaultOptions())

	prev := stopLocation(t, n, "Rural Rd/Apache Blvd")
	curr := stopLocation(t, n, "College Ave/Apache Blvd")

	res, err := est.Estimate(Request{Position: curr, Previous: prev, Stop: "Hayden Ferry", Direction: route.Northbound})
	require.NoError(t, err)
	assert.Equal(t, MovingNorthbound, res.Movement)
	assert.Nil(t, res.Warning)
}

func TestResultJSON(t *testing.T) {
	n := route.Default()
	est := NewEstimator(n, DefaultOptions())

	res, err := est.Estimate(Request{
		Position:  stopLocation(t, n, "Ninth St/Mill"),
		Stop:      "Third St/Mill",
		Direction: route.Northbound,
	})
	require.NoError(t, err)

	b, err := json.Marshal(res)
	require.NoError(t, err)

	var body map[string]any
	require.NoError(t, json.Unmarshal(b, &body))
	assert.ElementsMatch(t,
		[]string{"stop", "direction", "eta_min", "eta_sec", "zone", "distance_miles", "distance_meters", "warning"},
		keys(body))
	assert.Equal(t, "Northbound", body["direction"])
	assert.Nil(t, body["warning"])
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestSplitSeconds(t *testing.T) {
	tests := []struct {
		seconds float64
		wantMin int
		wantSec int
	}{
		{0, 0, 0},
		{59.4, 0, 59},
		{59.6, 1, 0},
		{60, 1, 0},
		{119.6, 2, 0},
		{125.2, 2, 5},
		{29.5, 0, 30},
		{30.5, 0, 30},
	}

	for _, tt := range tests {
		mins, secs := SplitSeconds(tt.seconds)
		assert.Equal(t, tt.wantMin, mins, "minutes for %v", tt.seconds)
		assert.Equal(t, tt.wantSec, secs, "seconds for %v", tt.seconds)
	}

	for s := 0.0; s < 600; s += 0.37 {
		_, secs := SplitSeconds(s)
		assert.GreaterOrEqual(t, secs, 0)
		assert.LessOrEqual(t, secs, 59)
	}
}

func TestClassify(t *testing.T) {
	o := DefaultOptions()
	assert.Equal(t, ZoneArriving, o.Classify(0))
	assert.Equal(t, ZoneArriving, o.Classify(0.2))
	assert.Equal(t, ZoneNearby, o.Classify(0.2000001))
	assert.Equal(t, ZoneNearby, o.Classify(0.5))
	assert.Equal(t, ZoneApproaching, o.Classify(0.5000001))
	assert.Equal(t, ZoneApproaching, o.Classify(3))
}

func TestErrorKinds(t *testing.T) {
	err := &Error{Kind: KindStopNotFound, Stop: "Nowhere"}
	assert.ErrorIs(t, err, ErrStopNotFound)
	assert.NotErrorIs(t, err, ErrPathNotReady)
	assert.Equal(t, "stop_not_found", err.Kind.String())
}
