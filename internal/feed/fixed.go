package feed

import (
	"context"

	"streetcar-eta/internal/geo"
)

// Fixed reports the same position for every vehicle. Used for demos and the
// one-shot CLI.
type Fixed struct {
	Coordinate geo.Coordinate
}

func (f Fixed) Position(_ context.Context, _ int) (geo.Coordinate, error) {
	return f.Coordinate, nil
}
