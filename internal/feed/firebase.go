package feed

import (
	"context"
	"fmt"
	"strconv"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/db"
	"github.com/rs/zerolog/log"
	"google.golang.org/api/option"

	"streetcar-eta/internal/geo"
)

// FirebaseSource reads vehicles/<id> records from a public Firebase Realtime Database.
type FirebaseSource struct {
	client *db.Client
	opts   Options
}

func NewFirebaseSource(ctx context.Context, databaseURL string, opts Options) (*FirebaseSource, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("firebase database url is required")
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{DatabaseURL: databaseURL}, option.WithoutAuthentication())
	if err != nil {
		return nil, fmt.Errorf("firebase app: %w", err)
	}

	client, err := app.Database(ctx)
	if err != nil {
		return nil, fmt.Errorf("firebase database: %w", err)
	}

	return &FirebaseSource{client: client, opts: opts}, nil
}

func (s *FirebaseSource) Position(ctx context.Context, vehicleID int) (geo.Coordinate, error) {
	var pos geo.Coordinate

	err := s.opts.fetch(ctx, "firebase", func(ctx context.Context) error {
		var record map[string]any
		if err := s.client.NewRef("vehicles/"+strconv.Itoa(vehicleID)).Get(ctx, &record); err != nil {
			return err
		}

		p, err := positionFromRecord(record)
		if err != nil {
			return err
		}
		pos = p
		return nil
	})
	if err != nil {
		log.Debug().Err(err).Int("vehicle", vehicleID).Msg("Firebase position fetch failed")
		return geo.Coordinate{}, err
	}

	return pos, nil
}

// positionFromRecord accepts latitude/longitude stored either as numbers or
// as numeric strings.
func positionFromRecord(record map[string]any) (geo.Coordinate, error) {
	rawLat, okLat := record["latitude"]
	rawLng, okLng := record["longitude"]
	if !okLat || !okLng {
		return geo.Coordinate{}, ErrVehicleNotFound
	}

	lat, err := parseFloat(rawLat)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: latitude: %v", ErrVehicleNotFound, err)
	}
	lng, err := parseFloat(rawLng)
	if err != nil {
		return geo.Coordinate{}, fmt.Errorf("%w: longitude: %v", ErrVehicleNotFound, err)
	}

	c := geo.Coordinate{Lat: lat, Lng: lng}
	if !c.Finite() {
		return geo.Coordinate{}, fmt.Errorf("%w: non-finite coordinate", ErrVehicleNotFound)
	}
	return c, nil
}
