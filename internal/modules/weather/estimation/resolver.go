package estimation

import (
	"errors"
	"fmt"

	"wheatr-server/internal/modules/weather/types"
)

// ResolveObservations returns, per station and in station order, the complete
// observation with the greatest timestamp found in history. On equal
// timestamps the first one in history order wins.
func ResolveObservations(stations types.Triple[types.Station], history []types.Observation) (types.Triple[types.Observation], error) {
	var out types.Triple[types.Observation]

	var missing []error
	for i, s := range stations {
		found := false
		for _, o := range history {
			if o.StationID != s.ID || !o.Complete() {
				continue
			}
			if !found || o.ObservedAt > out[i].ObservedAt {
				out[i] = o
				found = true
			}
		}
		if !found {
			missing = append(missing, &NoObservationError{StationID: s.ID})
		}
	}

	if len(missing) > 0 {
		return types.Triple[types.Observation]{}, fmt.Errorf("%w: %w", ErrIncompleteObservationSet, errors.Join(missing...))
	}
	return out, nil
}
