package controller

import (
	"errors"
	"log/slog"
	"net/http"

	"wheatr-server/internal/modules/weather/repository"
	"wheatr-server/internal/utils"
)

func (c *weatherControllerImpl) handleEstimate(w http.ResponseWriter, r *http.Request) {
	loc, err := parseLocationQuery(r)
	if err != nil {
		c.metrics.EstimateOutcome("bad_request")
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	est, err := c.estimator.Estimate(r.Context(), loc)
	if err != nil {
		c.writeEstimateError(w, r, err)
		return
	}

	c.metrics.EstimateOutcome("ok")
	utils.WriteJSON(w, http.StatusOK, newEstimateResponse(est))
}

func (c *weatherControllerImpl) handleStations(w http.ResponseWriter, r *http.Request) {
	stations, err := c.repository.GetStations(r.Context())
	if err != nil {
		slog.Error("stations: get stations failed", "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load stations")
		return
	}
	utils.WriteJSON(w, http.StatusOK, stations)
}

func (c *weatherControllerImpl) handleStation(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing station id")
		return
	}

	station, err := c.repository.GetStation(r.Context(), id)
	if errors.Is(err, repository.ErrStationNotFound) {
		utils.WriteError(w, http.StatusNotFound, "unknown station "+id)
		return
	}
	if err != nil {
		slog.Error("station: get station failed", "station_id", id, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load station")
		return
	}
	utils.WriteJSON(w, http.StatusOK, station)
}

func (c *weatherControllerImpl) handleObservations(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		utils.WriteError(w, http.StatusBadRequest, "missing station id")
		return
	}

	limit, err := parseLimitQuery(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	if _, err := c.repository.GetStation(r.Context(), id); err != nil {
		if errors.Is(err, repository.ErrStationNotFound) {
			utils.WriteError(w, http.StatusNotFound, "unknown station "+id)
			return
		}
		slog.Error("observations: get station failed", "station_id", id, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load station")
		return
	}

	observations, err := c.repository.GetLatestObservations(r.Context(), id, limit)
	if err != nil {
		slog.Error("observations: get latest failed", "station_id", id, "error", err)
		utils.WriteError(w, http.StatusInternalServerError, "failed to load observations")
		return
	}
	utils.WriteJSON(w, http.StatusOK, observations)
}
