package estimation

import (
	"fmt"

	"wheatr-server/internal/modules/weather/types"
)

type Metric int

const (
	Temperature Metric = iota
	Humidity
)

func (m Metric) String() string {
	switch m {
	case Temperature:
		return "temperature"
	case Humidity:
		return "humidity"
	default:
		return fmt.Sprintf("Metric(%d)", int(m))
	}
}

// Value returns the metric's reading from o, if present.
func (m Metric) Value(o types.Observation) (float64, bool) {
	var p *float64
	switch m {
	case Temperature:
		p = o.Temperature
	case Humidity:
		p = o.Humidity
	}
	if p == nil {
		return 0, false
	}
	return *p, true
}

// AlignValues tags each station's coordinates with the metric taken from its
// observation. Output order follows stations.
func AlignValues(stations types.Triple[types.Station], observations types.Triple[types.Observation], m Metric) (types.Triple[types.AlignedPoint], error) {
	var out types.Triple[types.AlignedPoint]
	for i, s := range stations {
		matched := false
		for _, o := range observations {
			if o.StationID != s.ID {
				continue
			}
			v, ok := m.Value(o)
			if !ok {
				return out, fmt.Errorf("%w: station %q observation has no %s", ErrProgramming, s.ID, m)
			}
			out[i] = types.AlignedPoint{Lat: s.Lat, Lon: s.Lon, Value: v}
			matched = true
			break
		}
		if !matched {
			return out, fmt.Errorf("%w: no observation for station %q", ErrProgramming, s.ID)
		}
	}
	return out, nil
}
