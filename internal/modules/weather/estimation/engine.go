// Package estimation computes local weather from the three nearest stations:
// station selection, observation freshness, planar interpolation of
// temperature and humidity, and the heat index.
package estimation

import (
	"context"
	"fmt"
	"log/slog"

	"wheatr-server/internal/modules/weather/types"
)

// DefaultLookback is the number of most recent observation rows, across the
// three selected stations, that are searched for complete observations.
const DefaultLookback = 12

// StationCatalog supplies candidate stations for a location. Implementations
// may pre-rank and truncate to limit distinct locations.
type StationCatalog interface {
	CandidateStations(ctx context.Context, loc types.Location, limit int) ([]types.Station, error)
}

// ObservationHistory returns the most recent observations for the given
// stations, newest first, at most limit rows in total.
type ObservationHistory interface {
	RecentObservations(ctx context.Context, stationIDs []string, limit int) ([]types.Observation, error)
}

type Estimator struct {
	catalog  StationCatalog
	history  ObservationHistory
	lookback int
	logger   *slog.Logger
}

func NewEstimator(catalog StationCatalog, history ObservationHistory, lookback int, logger *slog.Logger) *Estimator {
	if lookback <= 0 {
		lookback = DefaultLookback
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Estimator{
		catalog:  catalog,
		history:  history,
		lookback: lookback,
		logger:   logger,
	}
}

// Estimate runs the full pipeline for loc. Any failing stage aborts the
// estimate; a partial result is never returned.
func (e *Estimator) Estimate(ctx context.Context, loc types.Location) (types.Estimation, error) {
	candidates, err := e.catalog.CandidateStations(ctx, loc, types.StationCount)
	if err != nil {
		return types.Estimation{}, fmt.Errorf("load candidate stations: %w", err)
	}
	stations, err := LocateStations(candidates, loc)
	if err != nil {
		return types.Estimation{}, err
	}

	ids := make([]string, 0, len(stations))
	for _, s := range stations {
		ids = append(ids, s.ID)
	}
	history, err := e.history.RecentObservations(ctx, ids, e.lookback)
	if err != nil {
		return types.Estimation{}, fmt.Errorf("load observations: %w", err)
	}
	observations, err := ResolveObservations(stations, history)
	if err != nil {
		return types.Estimation{}, err
	}

	temperature, err := e.interpolate(loc, stations, observations, Temperature)
	if err != nil {
		return types.Estimation{}, err
	}
	humidity, err := e.interpolate(loc, stations, observations, Humidity)
	if err != nil {
		return types.Estimation{}, err
	}

	result := types.Estimation{
		Location:     loc,
		Temperature:  temperature,
		Humidity:     humidity,
		HeatIndex:    HeatIndex(temperature, humidity),
		UsedStations: stations,
	}

	e.logger.Debug("estimate computed",
		"lat", loc.Lat,
		"lon", loc.Lon,
		"stations", ids,
		"temperature_c", result.Temperature,
		"humidity_pct", result.Humidity,
		"heat_index_c", result.HeatIndex,
	)
	return result, nil
}

func (e *Estimator) interpolate(loc types.Location, stations types.Triple[types.Station], observations types.Triple[types.Observation], m Metric) (float64, error) {
	points, err := AlignValues(stations, observations, m)
	if err != nil {
		return 0, err
	}
	v, err := Interpolate(loc, points)
	if err != nil {
		return 0, fmt.Errorf("interpolate %s: %w", m, err)
	}
	return v, nil
}
