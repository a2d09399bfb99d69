package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"streetcar-eta/internal/geo"
)

const (
	SourceFirebase = "firebase"
	SourceGTFSRT   = "gtfsrt"
	SourceFixed    = "fixed"
)

type Config struct {
	Listen      string
	MetricsAddr string

	NetworkFile           string
	DatabaseURL           string
	GTFSRouteID           string
	NorthboundDirectionID int

	PositionSource  string
	FirebaseURL     string
	VehiclesFeedURL string
	FixedPosition   *geo.Coordinate
	VehicleIDs      []int
	DefaultVehicle  int
	FeedVehicleMin  int
	FeedVehicleMax  int

	PollInterval time.Duration
	FetchTimeout time.Duration
	FetchRetries int

	SpeedMPH         float64
	ArrivingMiles    float64
	NearbyMiles      float64
	LenientDirection bool

	NATSURL         string
	NATSSubject     string
	LogNATSSubjects bool

	RedisAddress  string
	RedisPassword string
	RedisDatabase int
	PositionTTL   time.Duration
}

func Load() (*Config, error) {
	// Load .env into environment (ignore if missing)
	_ = godotenv.Load()

	cfg := &Config{
		Listen:      getenvDefault("STREETCAR_LISTEN", ":8080"),
		MetricsAddr: os.Getenv("STREETCAR_METRICS_ADDR"),

		NetworkFile: os.Getenv("STREETCAR_NETWORK_FILE"),
		DatabaseURL: firstNonEmpty(os.Getenv("STREETCAR_DATABASE_URL"), os.Getenv("DATABASE_URL")),
		GTFSRouteID: os.Getenv("STREETCAR_GTFS_ROUTE_ID"),

		FirebaseURL:     getenvDefault("STREETCAR_FIREBASE_URL", "https://fir-realtimedata-9fab9-default-rtdb.firebaseio.com"),
		VehiclesFeedURL: os.Getenv("STREETCAR_VEHICLES_FEED_URL"),

		NATSURL:       os.Getenv("STREETCAR_NATS_URL"),
		NATSSubject:   getenvDefault("STREETCAR_NATS_SUBJECT", "streetcar.positions"),
		RedisAddress:  os.Getenv("STREETCAR_REDIS_ADDRESS"),
		RedisPassword: os.Getenv("STREETCAR_REDIS_PASSWORD"),
	}

	var err error

	if cfg.NorthboundDirectionID, err = envInt("STREETCAR_NORTHBOUND_DIRECTION_ID", 0, func(n int) bool { return n == 0 || n == 1 }); err != nil {
		return nil, err
	}

	cfg.PositionSource = strings.ToLower(strings.TrimSpace(getenvDefault("STREETCAR_POSITION_SOURCE", SourceFirebase)))
	switch cfg.PositionSource {
	case SourceFirebase, SourceGTFSRT, SourceFixed:
	default:
		return nil, fmt.Errorf("invalid STREETCAR_POSITION_SOURCE: %q", cfg.PositionSource)
	}

	if v := os.Getenv("STREETCAR_FIXED_POSITION"); v != "" {
		c, err := ParseCoordinate(v)
		if err != nil {
			return nil, fmt.Errorf("invalid STREETCAR_FIXED_POSITION: %q", v)
		}
		cfg.FixedPosition = &c
	}
	if cfg.PositionSource == SourceFixed && cfg.FixedPosition == nil {
		return nil, fmt.Errorf("STREETCAR_FIXED_POSITION must be set when STREETCAR_POSITION_SOURCE=fixed")
	}

	cfg.VehicleIDs = []int{180, 181, 182, 183, 184, 185, 186, 187, 188, 189}
	if v := os.Getenv("STREETCAR_VEHICLE_IDS"); v != "" {
		ids, err := parseIntList(v)
		if err != nil || len(ids) == 0 {
			return nil, fmt.Errorf("invalid STREETCAR_VEHICLE_IDS: %q", v)
		}
		cfg.VehicleIDs = ids
	}

	positive := func(n int) bool { return n > 0 }
	nonNegative := func(n int) bool { return n >= 0 }

	if cfg.DefaultVehicle, err = envInt("STREETCAR_DEFAULT_VEHICLE", 184, positive); err != nil {
		return nil, err
	}
	if cfg.FeedVehicleMin, err = envInt("STREETCAR_FEED_VEHICLE_MIN", 180, nil); err != nil {
		return nil, err
	}
	if cfg.FeedVehicleMax, err = envInt("STREETCAR_FEED_VEHICLE_MAX", 190, nil); err != nil {
		return nil, err
	}
	if cfg.FeedVehicleMax <= cfg.FeedVehicleMin {
		return nil, fmt.Errorf("invalid STREETCAR_FEED_VEHICLE_MAX: %d is not above %d", cfg.FeedVehicleMax, cfg.FeedVehicleMin)
	}

	if cfg.PollInterval, err = envMillis("STREETCAR_POLL_INTERVAL_MS", 15*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchTimeout, err = envMillis("STREETCAR_FETCH_TIMEOUT_MS", 5*time.Second); err != nil {
		return nil, err
	}
	if cfg.FetchRetries, err = envInt("STREETCAR_FETCH_RETRIES", 2, nonNegative); err != nil {
		return nil, err
	}

	if cfg.SpeedMPH, err = envFloat("STREETCAR_SPEED_MPH", 9.3); err != nil {
		return nil, err
	}
	if cfg.ArrivingMiles, err = envFloat("STREETCAR_ARRIVING_MILES", 0.2); err != nil {
		return nil, err
	}
	if cfg.NearbyMiles, err = envFloat("STREETCAR_NEARBY_MILES", 0.5); err != nil {
		return nil, err
	}
	if cfg.NearbyMiles < cfg.ArrivingMiles {
		return nil, fmt.Errorf("invalid STREETCAR_NEARBY_MILES: %v is below STREETCAR_ARRIVING_MILES", cfg.NearbyMiles)
	}

	cfg.LenientDirection = envBool("STREETCAR_LENIENT_DIRECTION")
	cfg.LogNATSSubjects = envBool("STREETCAR_LOG_NATS_SUBJECTS")

	if cfg.RedisDatabase, err = envInt("STREETCAR_REDIS_DATABASE", 0, nonNegative); err != nil {
		return nil, err
	}
	ttl, err := envInt("STREETCAR_POSITION_TTL_SEC", 300, positive)
	if err != nil {
		return nil, err
	}
	cfg.PositionTTL = time.Duration(ttl) * time.Second

	return cfg, nil
}

// ParseCoordinate parses "lat,lng".
func ParseCoordinate(s string) (geo.Coordinate, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return geo.Coordinate{}, fmt.Errorf("expected lat,lng")
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return geo.Coordinate{}, err
	}
	lng, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return geo.Coordinate{}, err
	}
	c := geo.Coordinate{Lat: lat, Lng: lng}
	if !c.Finite() || lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return geo.Coordinate{}, fmt.Errorf("coordinate out of range")
	}
	return c, nil
}

func envInt(key string, def int, ok func(int) bool) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || (ok != nil && !ok(n)) {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return n, nil
}

func envFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil || f <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return f, nil
}

func envMillis(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	ms, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || ms <= 0 {
		return 0, fmt.Errorf("invalid %s: %q", key, v)
	}
	return time.Duration(ms) * time.Millisecond, nil
}

func envBool(key string) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "1", "true", "t", "yes", "y", "on":
		return true
	default:
		return false
	}
}

func parseIntList(s string) ([]int, error) {
	var out []int
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.Atoi(part)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}

func getenvDefault(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
