// Package feed reads live streetcar positions from the upstream vehicle feeds.
package feed

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"streetcar-eta/internal/geo"
)

var ErrVehicleNotFound = errors.New("vehicle not found")

// Vehicle is one live vehicle report.
type Vehicle struct {
	ID          int            `json:"id"`
	Position    geo.Coordinate `json:"position"`
	DirectionID *uint32        `json:"direction_id,omitempty"`
	Timestamp   time.Time      `json:"timestamp"`
}

// Source resolves the current position of a single vehicle.
type Source interface {
	Position(ctx context.Context, vehicleID int) (geo.Coordinate, error)
}

// Lister is implemented by sources that can enumerate every vehicle in one call.
type Lister interface {
	Vehicles(ctx context.Context) ([]Vehicle, error)
}

// FetchMetrics receives one observation per upstream fetch.
type FetchMetrics interface {
	FeedFetchObserve(source string, d time.Duration, err error)
}

type Options struct {
	Timeout time.Duration
	Retries int
	Metrics FetchMetrics
}

func (o Options) timeout() time.Duration {
	if o.Timeout <= 0 {
		return 5 * time.Second
	}
	return o.Timeout
}

// fetch runs op with a per-attempt timeout and exponential backoff between
// attempts. ErrVehicleNotFound is never retried.
func (o Options) fetch(ctx context.Context, source string, op func(ctx context.Context) error) error {
	retries := o.Retries
	if retries < 0 {
		retries = 0
	}
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retries)),
		ctx,
	)

	start := time.Now()
	err := backoff.Retry(func() error {
		attemptCtx, cancel := context.WithTimeout(ctx, o.timeout())
		defer cancel()

		err := op(attemptCtx)
		if errors.Is(err, ErrVehicleNotFound) {
			return backoff.Permanent(err)
		}
		return err
	}, b)

	if o.Metrics != nil {
		o.Metrics.FeedFetchObserve(source, time.Since(start), err)
	}
	return err
}

func parseFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	case string:
		return strconv.ParseFloat(n, 64)
	default:
		return 0, fmt.Errorf("unexpected coordinate type %T", v)
	}
}
