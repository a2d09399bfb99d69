package route

import (
	"errors"
	"fmt"
	"strings"
)

var ErrInvalidDirection = errors.New("invalid direction")

// Direction is one of the two independently modelled travel directions of the line.
type Direction int

const (
	Northbound Direction = iota
	Southbound
)

func (d Direction) String() string {
	switch d {
	case Northbound:
		return "Northbound"
	case Southbound:
		return "Southbound"
	default:
		return fmt.Sprintf("Direction(%d)", int(d))
	}
}

func (d Direction) Valid() bool { return d == Northbound || d == Southbound }

// ParseDirection accepts "northbound" or "southbound" in any case.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "northbound":
		return Northbound, nil
	case "southbound":
		return Southbound, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrInvalidDirection, s)
	}
}

// ParseDirectionLenient treats anything other than "northbound" as Southbound.
func ParseDirectionLenient(s string) Direction {
	if strings.ToLower(strings.TrimSpace(s)) == "northbound" {
		return Northbound
	}
	return Southbound
}

func (d Direction) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("%w: %d", ErrInvalidDirection, int(d))
	}
	return []byte(d.String()), nil
}

func (d *Direction) UnmarshalText(b []byte) error {
	v, err := ParseDirection(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}
