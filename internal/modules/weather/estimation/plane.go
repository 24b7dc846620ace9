package estimation

import (
	"fmt"
	"math"

	"wheatr-server/internal/modules/weather/types"
)

// Interpolate evaluates at loc the plane through the three points, treating
// each as (lat, lon, value). Points outside the triangle extrapolate.
func Interpolate(loc types.Location, pts types.Triple[types.AlignedPoint]) (float64, error) {
	p, q, r := pts[0], pts[1], pts[2]

	e1 := types.AlignedPoint{Lat: q.Lat - p.Lat, Lon: q.Lon - p.Lon, Value: q.Value - p.Value}
	e2 := types.AlignedPoint{Lat: r.Lat - p.Lat, Lon: r.Lon - p.Lon, Value: r.Value - p.Value}

	nLat := e1.Lon*e2.Value - e1.Value*e2.Lon
	nLon := e1.Lat*e2.Value - e1.Value*e2.Lat
	nVal := e1.Lat*e2.Lon - e1.Lon*e2.Lat

	if nVal == 0 {
		return 0, fmt.Errorf("%w: stations are collinear", ErrDegenerateInterpolation)
	}

	z := (nLat*p.Lat - nLon*p.Lon + nVal*p.Value - nLat*loc.Lat + nLon*loc.Lon) / nVal
	if math.IsNaN(z) || math.IsInf(z, 0) {
		return 0, fmt.Errorf("%w: non-finite result", ErrDegenerateInterpolation)
	}
	return z, nil
}
