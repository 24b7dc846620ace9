package controller

import (
	"context"
	"net/http"

	"wheatr-server/internal/metrics"
	"wheatr-server/internal/modules/weather/repository"
	"wheatr-server/internal/modules/weather/types"
)

type WeatherController interface {
	RegisterRoutes(mux *http.ServeMux)
}

// Estimator computes the local weather for a location.
type Estimator interface {
	Estimate(ctx context.Context, loc types.Location) (types.Estimation, error)
}

type weatherControllerImpl struct {
	repository repository.WeatherRepository
	estimator  Estimator
	metrics    *metrics.Metrics
}

func NewWeatherController(repository repository.WeatherRepository, estimator Estimator, m *metrics.Metrics) WeatherController {
	return &weatherControllerImpl{repository: repository, estimator: estimator, metrics: m}
}

func (c *weatherControllerImpl) RegisterRoutes(mux *http.ServeMux) {
	c.handle(mux, "GET /api/hi", "/api/hi", c.handleEstimate)
	c.handle(mux, "GET /api/v1/estimate", "/api/v1/estimate", c.handleEstimate)
	c.handle(mux, "GET /api/v1/stations", "/api/v1/stations", c.handleStations)
	c.handle(mux, "GET /api/v1/stations/{id}", "/api/v1/stations/{id}", c.handleStation)
	c.handle(mux, "GET /api/v1/stations/{id}/observations", "/api/v1/stations/{id}/observations", c.handleObservations)
}

func (c *weatherControllerImpl) handle(mux *http.ServeMux, pattern, route string, h http.HandlerFunc) {
	mux.Handle(pattern, c.metrics.WrapHandler(route, h))
}
