package controller

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"wheatr-server/internal/modules/weather/estimation"
	"wheatr-server/internal/modules/weather/types"
	"wheatr-server/internal/utils"
)

const (
	defaultObservationsLimit = 100
	maxObservationsLimit     = 1000
)

// estimateResponse keeps the field names the bundled UI reads.
type estimateResponse struct {
	UsedStations        []types.Station `json:"used_stations"`
	LocalLat            float64         `json:"local_lat"`
	LocalLon            float64         `json:"local_lon"`
	LocalAirTemperature float64         `json:"local_air_temperature"`
	LocalRelHumidity    float64         `json:"local_rel_humidity"`
	LocalHI             float64         `json:"local_hi"`
}

func newEstimateResponse(est types.Estimation) estimateResponse {
	return estimateResponse{
		UsedStations:        est.UsedStations[:],
		LocalLat:            est.Location.Lat,
		LocalLon:            est.Location.Lon,
		LocalAirTemperature: est.Temperature,
		LocalRelHumidity:    est.Humidity,
		LocalHI:             est.HeatIndex,
	}
}

func parseLocationQuery(r *http.Request) (types.Location, error) {
	q := r.URL.Query()

	lat, err := parseCoordinate(q.Get("lat"), "lat")
	if err != nil {
		return types.Location{}, err
	}
	lon, err := parseCoordinate(q.Get("lon"), "lon")
	if err != nil {
		return types.Location{}, err
	}

	loc := types.Location{Lat: lat, Lon: lon}
	if err := loc.Validate(); err != nil {
		return types.Location{}, err
	}
	return loc, nil
}

func parseCoordinate(s, name string) (float64, error) {
	if s == "" {
		return 0, fmt.Errorf("missing '%s'", name)
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid '%s' (expected decimal degrees)", name)
	}
	return v, nil
}

func parseLimitQuery(r *http.Request) (int, error) {
	s := r.URL.Query().Get("limit")
	if s == "" {
		return defaultObservationsLimit, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, errors.New("invalid 'limit' (expected integer)")
	}
	if n <= 0 {
		return 0, errors.New("'limit' must be > 0")
	}
	if n > maxObservationsLimit {
		return 0, fmt.Errorf("'limit' must be <= %d", maxObservationsLimit)
	}
	return n, nil
}

// writeEstimateError maps pipeline failures to status codes.
func (c *weatherControllerImpl) writeEstimateError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		status  int
		outcome string
	)
	switch {
	case errors.Is(err, types.ErrInvalidLocation):
		status, outcome = http.StatusBadRequest, "bad_request"
	case errors.Is(err, estimation.ErrInsufficientStations):
		status, outcome = http.StatusServiceUnavailable, "insufficient_stations"
	case errors.Is(err, estimation.ErrIncompleteObservationSet):
		status, outcome = http.StatusServiceUnavailable, "incomplete_observations"
	case errors.Is(err, estimation.ErrDegenerateInterpolation):
		status, outcome = http.StatusUnprocessableEntity, "degenerate"
	default:
		status, outcome = http.StatusInternalServerError, "error"
	}
	c.metrics.EstimateOutcome(outcome)

	if status == http.StatusInternalServerError {
		slog.Error("estimate failed", "path", r.URL.Path, "error", err)
		utils.WriteError(w, status, "failed to compute estimate")
		return
	}
	slog.Warn("estimate unavailable", "path", r.URL.Path, "outcome", outcome, "error", err)
	utils.WriteError(w, status, err.Error())
}
