package estimation

import (
	"errors"
	"fmt"
)

var (
	ErrInsufficientStations     = errors.New("insufficient stations")
	ErrNoObservation            = errors.New("no complete observation")
	ErrIncompleteObservationSet = errors.New("incomplete observation set")
	ErrDegenerateInterpolation  = errors.New("degenerate interpolation")
	ErrProgramming              = errors.New("programming error")
)

// NoObservationError reports a station with no complete observation in the
// lookback window. It matches ErrNoObservation.
type NoObservationError struct {
	StationID string
}

func (e *NoObservationError) Error() string {
	return fmt.Sprintf("station %q: %v", e.StationID, ErrNoObservation)
}

func (e *NoObservationError) Is(target error) bool {
	return target == ErrNoObservation
}
