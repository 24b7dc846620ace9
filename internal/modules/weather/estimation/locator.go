package estimation

import (
	"fmt"
	"math"
	"sort"

	"wheatr-server/internal/modules/weather/types"
)

// PseudoDistance ranks station proximity as the squared difference of
// absolute coordinates. It is not a geographic distance: there is no
// cos(lat) scaling and no antimeridian or pole handling. Existing callers
// depend on this ordering, so it must not be corrected.
func PseudoDistance(s types.Station, loc types.Location) float64 {
	dLat := math.Abs(s.Lat) - math.Abs(loc.Lat)
	dLon := math.Abs(s.Lon) - math.Abs(loc.Lon)
	return dLat*dLat + dLon*dLon
}

type coord struct {
	lat, lon float64
}

type rankedStation struct {
	station types.Station
	dist    float64
}

// LocateStations picks the three candidates nearest to loc. Candidates that
// share coordinates collapse to the one with the smallest id; equal distances
// are ordered by ascending id.
func LocateStations(candidates []types.Station, loc types.Location) (types.Triple[types.Station], error) {
	var out types.Triple[types.Station]

	byCoord := make(map[coord]types.Station, len(candidates))
	for _, s := range candidates {
		k := coord{lat: s.Lat, lon: s.Lon}
		if prev, ok := byCoord[k]; !ok || s.ID < prev.ID {
			byCoord[k] = s
		}
	}

	ranked := make([]rankedStation, 0, len(byCoord))
	for _, s := range byCoord {
		ranked = append(ranked, rankedStation{station: s, dist: PseudoDistance(s, loc)})
	}
	if len(ranked) < types.StationCount {
		return out, fmt.Errorf("%w: %d distinct locations, need %d", ErrInsufficientStations, len(ranked), types.StationCount)
	}

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].dist != ranked[j].dist {
			return ranked[i].dist < ranked[j].dist
		}
		return ranked[i].station.ID < ranked[j].station.ID
	})

	for i := range out {
		out[i] = ranked[i].station
	}
	return out, nil
}
