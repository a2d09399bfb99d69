package eta

import "fmt"

type Kind int

const (
	KindStopNotFound Kind = iota + 1
	KindPathNotReady
	KindUnavailable
	KindPositionUnavailable
)

func (k Kind) String() string {
	switch k {
	case KindStopNotFound:
		return "stop_not_found"
	case KindPathNotReady:
		return "path_not_ready"
	case KindUnavailable:
		return "eta_unavailable"
	case KindPositionUnavailable:
		return "position_unavailable"
	default:
		return "unknown"
	}
}

// Error is a failed estimate. Its message is the text shown to riders.
type Error struct {
	Kind Kind
	Stop string
}

var (
	ErrStopNotFound        = &Error{Kind: KindStopNotFound}
	ErrPathNotReady        = &Error{Kind: KindPathNotReady}
	ErrUnavailable         = &Error{Kind: KindUnavailable}
	ErrPositionUnavailable = &Error{Kind: KindPositionUnavailable}
)

func (e *Error) Error() string {
	switch e.Kind {
	case KindStopNotFound:
		return fmt.Sprintf("Stop '%s' not found.", e.Stop)
	case KindPathNotReady:
		return "Route path not loaded yet."
	case KindUnavailable:
		return "ETA unavailable or stop behind trolley."
	case KindPositionUnavailable:
		return "Trolley location unavailable."
	default:
		return "ETA error."
	}
}

// Is matches any *Error of the same kind, so errors.Is(err, ErrStopNotFound)
// holds whichever stop was missing.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && t.Kind == e.Kind
}
