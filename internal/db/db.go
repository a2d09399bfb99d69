package db

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"streetcar-eta/internal/geo"
	"streetcar-eta/internal/route"
)

func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)
	return db, nil
}

func Ping(ctx context.Context, db *sql.DB) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	return db.PingContext(ctx)
}

// tripLayout is the stop sequence and shape of one representative trip.
type tripLayout struct {
	TripID string
	Stops  []tripStop
	Shape  []geo.Coordinate
}

type tripStop struct {
	StopID   string
	Name     string
	Location geo.Coordinate
}

// LoadNetwork builds the streetcar network from a GTFS import. For each
// direction it takes the trip of routeID with the most stop_times as
// representative. Trips with northboundDirectionID are Northbound and all
// others Southbound.
func LoadNetwork(ctx context.Context, db *sql.DB, routeID string, northboundDirectionID int) (*route.Network, error) {
	if routeID == "" {
		return nil, fmt.Errorf("route id is required")
	}
	if northboundDirectionID != 0 && northboundDirectionID != 1 {
		return nil, fmt.Errorf("invalid northbound direction id: %d", northboundDirectionID)
	}

	var routeName string
	err := db.QueryRowContext(ctx,
		`SELECT COALESCE(NULLIF(route_long_name, ''), route_short_name, route_id) FROM routes WHERE route_id = $1`,
		routeID).Scan(&routeName)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("route %q not found", routeID)
		}
		return nil, fmt.Errorf("query route: %w", err)
	}

	southboundDirectionID := 1 - northboundDirectionID

	north, err := fetchTripLayout(ctx, db, routeID, northboundDirectionID)
	if err != nil {
		return nil, fmt.Errorf("northbound: %w", err)
	}
	south, err := fetchTripLayout(ctx, db, routeID, southboundDirectionID)
	if err != nil {
		return nil, fmt.Errorf("southbound: %w", err)
	}

	return assemble(routeName, north, south)
}

func fetchTripLayout(ctx context.Context, db *sql.DB, routeID string, directionID int) (tripLayout, error) {
	q := `
SELECT t.trip_id, COALESCE(t.shape_id, '')
FROM trips t
JOIN stop_times st ON st.trip_id = t.trip_id
WHERE t.route_id = $1 AND t.direction_id::text = $2
GROUP BY t.trip_id, t.shape_id
ORDER BY COUNT(*) DESC, t.trip_id
LIMIT 1`

	var layout tripLayout
	var shapeID string
	err := db.QueryRowContext(ctx, q, routeID, strconv.Itoa(directionID)).Scan(&layout.TripID, &shapeID)
	if err != nil {
		if err == sql.ErrNoRows {
			return tripLayout{}, fmt.Errorf("no trips for route %q direction %d", routeID, directionID)
		}
		return tripLayout{}, fmt.Errorf("query trips: %w", err)
	}

	layout.Stops, err = fetchTripStops(ctx, db, layout.TripID)
	if err != nil {
		return tripLayout{}, err
	}
	layout.Shape, err = fetchShape(ctx, db, shapeID)
	if err != nil {
		return tripLayout{}, err
	}
	return layout, nil
}

func fetchTripStops(ctx context.Context, db *sql.DB, tripID string) ([]tripStop, error) {
	// Prefer stop_lat/stop_lon, but support PostGIS stop_loc geography as fallback
	latlonExists, err := hasColumns(ctx, db, "public", "stops", "stop_lat", "stop_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect stops columns: %w", err)
	}
	var q string
	if latlonExists["stop_lat"] && latlonExists["stop_lon"] {
		q = `SELECT s.stop_id, COALESCE(s.stop_name, s.stop_id), s.stop_lat, s.stop_lon
             FROM stop_times st
             JOIN stops s ON s.stop_id = st.stop_id
             WHERE st.trip_id = $1
             ORDER BY st.stop_sequence`
	} else {
		locExists, err := hasColumns(ctx, db, "public", "stops", "stop_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect stops stop_loc: %w", err)
		}
		if !locExists["stop_loc"] {
			return nil, fmt.Errorf("stops table missing expected columns (stop_lat/lon or stop_loc)")
		}
		q = `SELECT s.stop_id, COALESCE(s.stop_name, s.stop_id),
                    ST_Y(s.stop_loc::geometry), ST_X(s.stop_loc::geometry)
             FROM stop_times st
             JOIN stops s ON s.stop_id = st.stop_id
             WHERE st.trip_id = $1
             ORDER BY st.stop_sequence`
	}

	rows, err := db.QueryContext(ctx, q, tripID)
	if err != nil {
		return nil, fmt.Errorf("query stop_times: %w", err)
	}
	defer rows.Close()

	var stops []tripStop
	for rows.Next() {
		var s tripStop
		if err := rows.Scan(&s.StopID, &s.Name, &s.Location.Lat, &s.Location.Lng); err != nil {
			return nil, err
		}
		stops = append(stops, s)
	}
	return stops, rows.Err()
}

func fetchShape(ctx context.Context, db *sql.DB, shapeID string) ([]geo.Coordinate, error) {
	if shapeID == "" {
		return nil, nil
	}
	// Detect column layout: either shape_pt_lat/lon exist, or use PostGIS shape_pt_loc geography
	latlonExists, err := hasColumns(ctx, db, "public", "shapes", "shape_pt_lat", "shape_pt_lon")
	if err != nil {
		return nil, fmt.Errorf("introspect shapes columns: %w", err)
	}
	var q string
	if latlonExists["shape_pt_lat"] && latlonExists["shape_pt_lon"] {
		q = `SELECT shape_pt_lat, shape_pt_lon
             FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	} else {
		locExists, err := hasColumns(ctx, db, "public", "shapes", "shape_pt_loc")
		if err != nil {
			return nil, fmt.Errorf("introspect shapes shape_pt_loc: %w", err)
		}
		if !locExists["shape_pt_loc"] {
			return nil, fmt.Errorf("shapes table missing expected columns (lat/lon or shape_pt_loc)")
		}
		q = `SELECT ST_Y(shape_pt_loc::geometry), ST_X(shape_pt_loc::geometry)
             FROM shapes WHERE shape_id = $1 ORDER BY shape_pt_sequence`
	}

	rows, err := db.QueryContext(ctx, q, shapeID)
	if err != nil {
		return nil, fmt.Errorf("query shapes: %w", err)
	}
	defer rows.Close()

	var pts []geo.Coordinate
	for rows.Next() {
		var p geo.Coordinate
		if err := rows.Scan(&p.Lat, &p.Lng); err != nil {
			return nil, err
		}
		pts = append(pts, p)
	}
	return pts, rows.Err()
}

// assemble merges both directions into one stop table keyed by stop name.
// A direction without a shape uses its stop locations as the path.
func assemble(name string, north, south tripLayout) (*route.Network, error) {
	var stops []route.Stop
	seen := make(map[string]bool)

	line := func(l tripLayout) route.Line {
		var out route.Line
		for _, s := range l.Stops {
			if !seen[s.Name] {
				seen[s.Name] = true
				stops = append(stops, route.Stop{ID: stopNumber(s.StopID, len(stops)+1), Name: s.Name, Location: s.Location})
			}
			out.Stops = append(out.Stops, s.Name)
		}
		if len(l.Shape) > 0 {
			out.Path = l.Shape
		} else {
			for _, s := range l.Stops {
				out.Path = append(out.Path, s.Location)
			}
		}
		return out
	}

	northbound := line(north)
	southbound := line(south)

	return route.NewNetwork(name, stops, northbound, southbound)
}

// stopNumber keeps numeric GTFS stop ids and numbers the rest by discovery order.
func stopNumber(stopID string, fallback int) int {
	if n, err := strconv.Atoi(stopID); err == nil {
		return n
	}
	return fallback
}

// hasColumns returns a map of requested column names to existence for the given table.
func hasColumns(ctx context.Context, db *sql.DB, schema, table string, cols ...string) (map[string]bool, error) {
	res := make(map[string]bool, len(cols))
	if len(cols) == 0 {
		return res, nil
	}
	for _, c := range cols {
		res[c] = false
	}
	q := `SELECT column_name FROM information_schema.columns
          WHERE table_schema = $1 AND table_name = $2 AND column_name = ANY($3)`
	rows, err := db.QueryContext(ctx, q, schema, table, cols)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		res[name] = true
	}
	return res, rows.Err()
}
