package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"streetcar-eta/internal/eta"
	"streetcar-eta/internal/feed"
	"streetcar-eta/internal/geo"
	"streetcar-eta/internal/route"
	"streetcar-eta/internal/tracker"
)

type fakeLocator struct {
	samples map[int]tracker.Sample
}

func (f *fakeLocator) Locate(_ context.Context, id int) (*tracker.Sample, error) {
	s, ok := f.samples[id]
	if !ok {
		return nil, feed.ErrVehicleNotFound
	}
	return &s, nil
}

func (f *fakeLocator) VehicleIDs() []int { return []int{184, 181, 186} }

type fakeFleet struct {
	vehicles []feed.Vehicle
	err      error
}

func (f *fakeFleet) Vehicles(context.Context) ([]feed.Vehicle, error) { return f.vehicles, f.err }

type fakeMetrics struct{ outcomes []string }

func (m *fakeMetrics) EstimateObserve(outcome string, _ time.Duration) {
	m.outcomes = append(m.outcomes, outcome)
}

func stopAt(t *testing.T, name string) geo.Coordinate {
	t.Helper()
	s, ok := route.Default().Stop(name)
	require.True(t, ok)
	return s.Location
}

func newTestServer(t *testing.T, opts Options) (*Server, *fakeLocator) {
	t.Helper()
	prev := stopAt(t, "Rural Rd/Apache Blvd")
	hayden := stopAt(t, "Hayden Ferry")
	loc := &fakeLocator{samples: map[int]tracker.Sample{
		184: {VehicleID: 184, Position: stopAt(t, "College Ave/Apache Blvd"), Previous: &prev},
		181: {VehicleID: 181, Position: hayden},
		185: {VehicleID: 185, Position: stopAt(t, "5th St/Ash Ave"), Previous: &hayden},
	}}
	if opts.DefaultVehicle == 0 {
		opts.DefaultVehicle = 184
	}
	est := eta.NewEstimator(route.Default(), eta.DefaultOptions())
	return NewServer(est, loc, opts), loc
}

func do(t *testing.T, s *Server, req *http.Request) (int, []byte) {
	t.Helper()
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp.StatusCode, body
}

func postETA(t *testing.T, s *Server, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/api/eta", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	code, raw := do(t, s, req)
	var out map[string]any
	require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	return code, out
}

func TestETA(t *testing.T) {
	metrics := &fakeMetrics{}
	s, _ := newTestServer(t, Options{Metrics: metrics})

	code, out := postETA(t, s, `{"stop": "Marina Heights", "route": "Northbound"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Marina Heights", out["stop"])
	assert.Equal(t, "Northbound", out["direction"])
	assert.Equal(t, "Approaching", out["zone"])
	assert.Contains(t, out, "eta_min")
	assert.Contains(t, out, "eta_sec")
	assert.Nil(t, out["warning"])
	assert.Equal(t, []string{"ok"}, metrics.outcomes)
}

func TestETADirectionWarning(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	code, out := postETA(t, s, `{"stop": "Dorsey Ln/Apache Blvd", "direction": "Southbound", "vehicle": 185}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Trolley is moving Northbound, but you're tracking Southbound", out["warning"])
}

func TestETAErrorsAreOK(t *testing.T) {
	metrics := &fakeMetrics{}
	s, _ := newTestServer(t, Options{Metrics: metrics})

	code, out := postETA(t, s, `{"stop": "Nowhere", "route": "Northbound"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Stop 'Nowhere' not found.", out["error"])

	code, out = postETA(t, s, `{"stop": "Dorsey Ln/Apache Blvd", "route": "Northbound"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "ETA unavailable or stop behind trolley.", out["error"])

	assert.Equal(t, []string{"stop_not_found", "eta_unavailable"}, metrics.outcomes)
}

func TestETAPositionUnavailable(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	code, out := postETA(t, s, `{"stop": "Marina Heights", "vehicle": 999}`)
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.Equal(t, "Trolley location unavailable.", out["error"])
}

func TestETAInvalidDirection(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	code, out := postETA(t, s, `{"stop": "Marina Heights", "route": "Eastbound"}`)
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Contains(t, out["error"], "Eastbound")

	lenient, _ := newTestServer(t, Options{LenientDirection: true})
	code, out = postETA(t, lenient, `{"stop": "Dorsey Ln/Apache Blvd", "route": "Eastbound"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Southbound", out["direction"])
}

func TestETABadBody(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	code, _ := postETA(t, s, `{"stop": `)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestStopsAndRoute(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	code, raw := do(t, s, httptest.NewRequest(http.MethodGet, "/api/stops", nil))
	require.Equal(t, http.StatusOK, code)
	var stops []string
	require.NoError(t, json.Unmarshal(raw, &stops))
	assert.Len(t, stops, 14)

	code, raw = do(t, s, httptest.NewRequest(http.MethodGet, "/api/route", nil))
	require.Equal(t, http.StatusOK, code)
	var north []string
	require.NoError(t, json.Unmarshal(raw, &north))
	assert.Len(t, north, 10)
	assert.Equal(t, "Dorsey Ln/Apache Blvd", north[0])

	code, raw = do(t, s, httptest.NewRequest(http.MethodGet, "/api/route?direction=southbound", nil))
	require.Equal(t, http.StatusOK, code)
	var south []string
	require.NoError(t, json.Unmarshal(raw, &south))
	assert.Len(t, south, 12)

	code, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/api/route?direction=up", nil))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestPath(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	code, raw := do(t, s, httptest.NewRequest(http.MethodGet, "/api/path?direction=Southbound", nil))
	require.Equal(t, http.StatusOK, code)
	var path []geo.Coordinate
	require.NoError(t, json.Unmarshal(raw, &path))
	_, want := route.Default().RouteAndPath(route.Southbound)
	assert.Equal(t, want, path)
}

func TestTrolleyLocation(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	code, raw := do(t, s, httptest.NewRequest(http.MethodGet, "/api/trolley_location", nil))
	require.Equal(t, http.StatusOK, code)
	var pos geo.Coordinate
	require.NoError(t, json.Unmarshal(raw, &pos))
	assert.Equal(t, stopAt(t, "College Ave/Apache Blvd"), pos)

	code, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/api/trolley_location?vehicle=181", nil))
	assert.Equal(t, http.StatusOK, code)

	code, raw = do(t, s, httptest.NewRequest(http.MethodGet, "/api/trolley_location?vehicle=186", nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
	assert.JSONEq(t, `{"error": "Trolley location unavailable."}`, string(raw))

	code, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/api/trolley_location?vehicle=abc", nil))
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestActiveTrolleyLocations(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	code, raw := do(t, s, httptest.NewRequest(http.MethodGet, "/api/active_trolley_locations", nil))
	require.Equal(t, http.StatusOK, code)

	var out []vehicleLocation
	require.NoError(t, json.Unmarshal(raw, &out))
	require.Len(t, out, 2)
	assert.Equal(t, 181, out[0].ID)
	assert.Equal(t, 184, out[1].ID)
}

func TestFleetLocations(t *testing.T) {
	dir := uint32(1)
	fleet := &fakeFleet{vehicles: []feed.Vehicle{
		{ID: 183, Position: geo.Coordinate{Lat: 33.42, Lng: -111.94}, DirectionID: &dir},
		{ID: 187, Position: geo.Coordinate{Lat: 33.43, Lng: -111.93}},
	}}
	s, _ := newTestServer(t, Options{Fleet: fleet})

	code, raw := do(t, s, httptest.NewRequest(http.MethodGet, "/api/trolley_locations_VM", nil))
	require.Equal(t, http.StatusOK, code)
	assert.JSONEq(t, `[
		{"id": 183, "lat": 33.42, "lng": -111.94, "dir": 1},
		{"id": 187, "lat": 33.43, "lng": -111.93, "dir": null}
	]`, string(raw))

	fleet.err = errors.New("feed down")
	code, _ = do(t, s, httptest.NewRequest(http.MethodGet, "/api/trolley_locations_VM", nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)

	unconfigured, _ := newTestServer(t, Options{})
	code, _ = do(t, unconfigured, httptest.NewRequest(http.MethodGet, "/api/trolley_locations_VM", nil))
	assert.Equal(t, http.StatusServiceUnavailable, code)
}

func TestHealthAndCORS(t *testing.T) {
	s, _ := newTestServer(t, Options{})

	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	req.Header.Set("Origin", "http://example.com")
	resp, err := s.App().Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))

	var out map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Equal(t, "ok", out["status"])
	assert.Equal(t, "Tempe Streetcar", out["network"])
	assert.Equal(t, 14.0, out["stops"])
}

func TestUnknownRoute(t *testing.T) {
	s, _ := newTestServer(t, Options{})
	code, raw := do(t, s, httptest.NewRequest(http.MethodGet, "/api/nope", nil))
	assert.Equal(t, http.StatusNotFound, code)
	assert.Contains(t, string(raw), "error")
}
