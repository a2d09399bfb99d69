// Package tracker polls the live feed for every configured streetcar and
// keeps the current and previous position of each one.
package tracker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc/pool"

	"streetcar-eta/internal/eta"
	"streetcar-eta/internal/feed"
	"streetcar-eta/internal/geo"
	"streetcar-eta/internal/publisher"
	"streetcar-eta/internal/route"
)

// Sample is the tracked state of one vehicle. Previous is the last position
// that differed from Position.
type Sample struct {
	VehicleID   int             `json:"vehicle_id"`
	Position    geo.Coordinate  `json:"position"`
	Previous    *geo.Coordinate `json:"previous,omitempty"`
	Movement    eta.Movement    `json:"movement"`
	NearestStop string          `json:"nearest_stop,omitempty"`
	Bearing     float64         `json:"bearing"`
	SpeedMps    float64         `json:"speed_mps"`
	Timestamp   time.Time       `json:"timestamp"`
}

type Publisher interface {
	PublishPosition(msg publisher.PositionMessage) error
}

type Metrics interface {
	PollObserve(tracked int, d time.Duration)
}

type Manager struct {
	network      *route.Network
	source       feed.Source
	store        Store
	pub          Publisher
	metrics      Metrics
	vehicleIDs   []int
	pollInterval time.Duration
	now          func() time.Time

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewManager builds a tracker. pub and metrics may be nil.
func NewManager(network *route.Network, source feed.Source, store Store, pub Publisher, metrics Metrics, vehicleIDs []int, pollInterval time.Duration) *Manager {
	ids := make([]int, len(vehicleIDs))
	copy(ids, vehicleIDs)

	return &Manager{
		network:      network,
		source:       source,
		store:        store,
		pub:          pub,
		metrics:      metrics,
		vehicleIDs:   ids,
		pollInterval: pollInterval,
		now:          time.Now,
	}
}

func (m *Manager) VehicleIDs() []int {
	ids := make([]int, len(m.vehicleIDs))
	copy(ids, m.vehicleIDs)
	return ids
}

// Start launches the background poll loop. It polls once immediately.
func (m *Manager) Start(parent context.Context) {
	if m.pollInterval <= 0 {
		return
	}
	ctx, cancel := context.WithCancel(parent)
	m.cancel = cancel
	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		m.Poll(ctx)
		ticker := time.NewTicker(m.pollInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				m.Poll(ctx)
			}
		}
	}()
	log.Info().Ints("vehicles", m.vehicleIDs).Dur("interval", m.pollInterval).Msg("Tracker started")
}

func (m *Manager) Stop() {
	if m.cancel != nil {
		m.cancel()
	}
	m.wg.Wait()
}

// Poll fetches every configured vehicle once and returns the samples that
// were recorded. Vehicles the feed does not report are skipped.
func (m *Manager) Poll(ctx context.Context) []Sample {
	start := time.Now()

	positions := m.fetchAll(ctx)

	p := pool.NewWithResults[*Sample]().WithMaxGoroutines(len(m.vehicleIDs) + 1)
	for _, id := range m.vehicleIDs {
		pos, ok := positions[id]
		if !ok {
			continue
		}
		p.Go(func() *Sample {
			s, err := m.record(ctx, id, pos)
			if err != nil {
				log.Error().Err(err).Int("vehicle", id).Msg("Failed to record sample")
				return nil
			}
			return s
		})
	}

	var samples []Sample
	for _, s := range p.Wait() {
		if s != nil {
			samples = append(samples, *s)
		}
	}

	if m.metrics != nil {
		m.metrics.PollObserve(len(samples), time.Since(start))
	}
	log.Debug().Int("tracked", len(samples)).Dur("took", time.Since(start)).Msg("Tracker poll finished")

	return samples
}

// fetchAll reads positions for the configured vehicles, in one request when
// the source can list vehicles and concurrently otherwise.
func (m *Manager) fetchAll(ctx context.Context) map[int]geo.Coordinate {
	positions := make(map[int]geo.Coordinate, len(m.vehicleIDs))

	if lister, ok := m.source.(feed.Lister); ok {
		vehicles, err := lister.Vehicles(ctx)
		if err != nil {
			log.Warn().Err(err).Msg("Vehicle feed unavailable")
			return positions
		}
		for _, v := range vehicles {
			positions[v.ID] = v.Position
		}
		return positions
	}

	var mu sync.Mutex
	p := pool.New().WithMaxGoroutines(len(m.vehicleIDs) + 1)
	for _, id := range m.vehicleIDs {
		p.Go(func() {
			pos, err := m.source.Position(ctx, id)
			if err != nil {
				if !errors.Is(err, feed.ErrVehicleNotFound) {
					log.Warn().Err(err).Int("vehicle", id).Msg("Position fetch failed")
				}
				return
			}
			mu.Lock()
			positions[id] = pos
			mu.Unlock()
		})
	}
	p.Wait()

	return positions
}

// Locate returns the stored sample for vehicleID, fetching it from the feed
// when nothing fresh is stored.
func (m *Manager) Locate(ctx context.Context, vehicleID int) (*Sample, error) {
	s, err := m.store.Get(ctx, vehicleID)
	if err == nil {
		return s, nil
	}
	if !errors.Is(err, ErrNoSample) {
		log.Warn().Err(err).Int("vehicle", vehicleID).Msg("Sample store read failed")
	}

	pos, err := m.source.Position(ctx, vehicleID)
	if err != nil {
		return nil, err
	}
	return m.record(ctx, vehicleID, pos)
}

// Latest returns only what is stored, without touching the feed.
func (m *Manager) Latest(ctx context.Context, vehicleID int) (*Sample, error) {
	return m.store.Get(ctx, vehicleID)
}

func (m *Manager) record(ctx context.Context, vehicleID int, pos geo.Coordinate) (*Sample, error) {
	now := m.now()
	s := Sample{
		VehicleID: vehicleID,
		Position:  pos,
		Movement:  eta.MovingUnknown,
		Timestamp: now,
	}

	last, err := m.store.Get(ctx, vehicleID)
	if err != nil && !errors.Is(err, ErrNoSample) {
		log.Warn().Err(err).Int("vehicle", vehicleID).Msg("Sample store read failed")
	}
	if last != nil {
		if last.Position == pos {
			s.Previous = last.Previous
			s.Bearing = last.Bearing
		} else {
			prev := last.Position
			s.Previous = &prev
			s.Bearing = geo.BearingDeg(prev, pos)
			if dt := now.Sub(last.Timestamp).Seconds(); dt > 0 {
				s.SpeedMps = geo.DistanceMeters(prev, pos) / dt
			}
		}
	}

	if s.Previous != nil {
		s.Movement = eta.InferDirection(*s.Previous, pos, route.Northbound, m.network)
	}
	s.NearestStop = nearestStop(m.network, pos)

	if err := m.store.Put(ctx, s); err != nil {
		return nil, err
	}

	if m.pub != nil {
		msg := publisher.PositionMessage{
			VehicleID:   s.VehicleID,
			Timestamp:   s.Timestamp,
			Lat:         s.Position.Lat,
			Lng:         s.Position.Lng,
			Bearing:     s.Bearing,
			SpeedMps:    s.SpeedMps,
			Movement:    string(s.Movement),
			NearestStop: s.NearestStop,
		}
		if err := m.pub.PublishPosition(msg); err != nil {
			log.Warn().Err(err).Int("vehicle", vehicleID).Msg("Publish failed")
		}
	}

	return &s, nil
}

func nearestStop(n *route.Network, p geo.Coordinate) string {
	name := ""
	best := 0.0
	for _, stop := range n.Stops() {
		d := geo.DistanceMiles(p, stop.Location)
		if name == "" || d < best {
			name, best = stop.Name, d
		}
	}
	return name
}
