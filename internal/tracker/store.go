package tracker

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/eko/gocache/lib/v4/cache"
	"github.com/eko/gocache/lib/v4/store"
	redisstore "github.com/eko/gocache/store/redis/v4"
	"github.com/redis/go-redis/v9"
)

// ErrNoSample is returned when a vehicle has no stored sample, or only an expired one.
var ErrNoSample = errors.New("no sample for vehicle")

// Store keeps the latest sample per vehicle. Entries expire after the store's TTL.
type Store interface {
	Get(ctx context.Context, vehicleID int) (*Sample, error)
	Put(ctx context.Context, s Sample) error
}

type memoryEntry struct {
	sample Sample
	stored time.Time
}

type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.RWMutex
	samples map[int]memoryEntry
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:     ttl,
		now:     time.Now,
		samples: make(map[int]memoryEntry),
	}
}

func (m *MemoryStore) Get(_ context.Context, vehicleID int) (*Sample, error) {
	m.mu.RLock()
	e, ok := m.samples[vehicleID]
	m.mu.RUnlock()

	if !ok || (m.ttl > 0 && m.now().Sub(e.stored) > m.ttl) {
		return nil, ErrNoSample
	}
	s := e.sample
	return &s, nil
}

func (m *MemoryStore) Put(_ context.Context, s Sample) error {
	m.mu.Lock()
	m.samples[s.VehicleID] = memoryEntry{sample: s, stored: m.now()}
	m.mu.Unlock()
	return nil
}

// RedisStore keeps samples as JSON strings under "streetcar:sample:<id>".
type RedisStore struct {
	cache *cache.Cache[string]
}

func NewRedisStore(client *redis.Client, ttl time.Duration) *RedisStore {
	redisStore := redisstore.NewRedis(client, store.WithExpiration(ttl))

	return &RedisStore{cache: cache.New[string](redisStore)}
}

func (r *RedisStore) Get(ctx context.Context, vehicleID int) (*Sample, error) {
	value, err := r.cache.Get(ctx, sampleKey(vehicleID))
	if err != nil {
		var notFound *store.NotFound
		if errors.Is(err, redis.Nil) || errors.As(err, &notFound) {
			return nil, ErrNoSample
		}
		return nil, err
	}

	var s Sample
	if err := json.Unmarshal([]byte(value), &s); err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *RedisStore) Put(ctx context.Context, s Sample) error {
	b, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.cache.Set(ctx, sampleKey(s.VehicleID), string(b))
}

func sampleKey(vehicleID int) string {
	return "streetcar:sample:" + strconv.Itoa(vehicleID)
}
