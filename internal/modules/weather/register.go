package weather

import (
	"database/sql"
	"log/slog"
	"net/http"

	"wheatr-server/internal/metrics"
	"wheatr-server/internal/modules/weather/controller"
	"wheatr-server/internal/modules/weather/estimation"
	"wheatr-server/internal/modules/weather/repository"
	"wheatr-server/internal/mqtt"
)

// Feature is the wired weather module.
type Feature struct {
	Repository repository.WeatherRepository
	Estimator  *estimation.Estimator
}

// RegisterFeature builds the weather module on db and mounts its routes on mux.
func RegisterFeature(mux *http.ServeMux, db *sql.DB, lookback int, m *metrics.Metrics, logger *slog.Logger) *Feature {
	weatherRepository := repository.NewRepository(db)
	estimator := estimation.NewEstimator(weatherRepository, weatherRepository, lookback, logger)
	weatherController := controller.NewWeatherController(weatherRepository, estimator, m)
	weatherController.RegisterRoutes(mux)
	return &Feature{Repository: weatherRepository, Estimator: estimator}
}

// AttachTelemetry stores MQTT telemetry through the module's repository.
func (f *Feature) AttachTelemetry(subscriber mqtt.MQTTSubscriber, m *metrics.Metrics, logger *slog.Logger) {
	registerMQTTHandler(subscriber, f.Repository, m, logger)
}
