package feed

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	gtfsrtpb "github.com/MobilityData/gtfs-realtime-bindings/golang/gtfs"
	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/proto"

	"streetcar-eta/internal/geo"
)

// GTFSRTSource reads a GTFS-realtime VehiclePositions feed and keeps the
// vehicles whose numeric id lies strictly between MinID and MaxID.
type GTFSRTSource struct {
	URL    string
	MinID  int
	MaxID  int
	Client *http.Client
	opts   Options
}

func NewGTFSRTSource(url string, minID, maxID int, opts Options) *GTFSRTSource {
	return &GTFSRTSource{
		URL:    url,
		MinID:  minID,
		MaxID:  maxID,
		Client: http.DefaultClient,
		opts:   opts,
	}
}

func (s *GTFSRTSource) Vehicles(ctx context.Context) ([]Vehicle, error) {
	if s.URL == "" {
		return nil, fmt.Errorf("vehicle positions feed url is not configured")
	}

	var fm *gtfsrtpb.FeedMessage
	err := s.opts.fetch(ctx, "gtfsrt", func(ctx context.Context) error {
		m, err := s.fetchFeed(ctx)
		if err != nil {
			return err
		}
		fm = m
		return nil
	})
	if err != nil {
		return nil, err
	}

	return s.vehiclesFromFeed(fm), nil
}

func (s *GTFSRTSource) Position(ctx context.Context, vehicleID int) (geo.Coordinate, error) {
	vehicles, err := s.Vehicles(ctx)
	if err != nil {
		return geo.Coordinate{}, err
	}
	for _, v := range vehicles {
		if v.ID == vehicleID {
			return v.Position, nil
		}
	}
	return geo.Coordinate{}, ErrVehicleNotFound
}

func (s *GTFSRTSource) fetchFeed(ctx context.Context) (*gtfsrtpb.FeedMessage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("vehicle positions feed returned %s", resp.Status)
	}

	b, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var fm gtfsrtpb.FeedMessage
	if err := proto.Unmarshal(b, &fm); err != nil {
		return nil, fmt.Errorf("decode vehicle positions: %w", err)
	}
	return &fm, nil
}

func (s *GTFSRTSource) vehiclesFromFeed(fm *gtfsrtpb.FeedMessage) []Vehicle {
	var vehicles []Vehicle

	for _, e := range fm.GetEntity() {
		vp := e.GetVehicle()
		if vp == nil || vp.GetPosition() == nil {
			continue
		}

		id, err := strconv.Atoi(vp.GetVehicle().GetId())
		if err != nil {
			log.Debug().Str("entity", e.GetId()).Msg("Skipping vehicle with non-numeric id")
			continue
		}
		if id <= s.MinID || id >= s.MaxID {
			continue
		}

		v := Vehicle{
			ID: id,
			Position: geo.Coordinate{
				Lat: float64(vp.GetPosition().GetLatitude()),
				Lng: float64(vp.GetPosition().GetLongitude()),
			},
		}
		if trip := vp.GetTrip(); trip != nil && trip.DirectionId != nil {
			dir := trip.GetDirectionId()
			v.DirectionID = &dir
		}
		if vp.Timestamp != nil {
			v.Timestamp = time.Unix(int64(vp.GetTimestamp()), 0).UTC()
		}

		vehicles = append(vehicles, v)
	}

	return vehicles
}
