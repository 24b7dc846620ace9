package weather

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"wheatr-server/internal/metrics"
	"wheatr-server/internal/modules/weather/repository"
	"wheatr-server/internal/modules/weather/types"
	"wheatr-server/internal/mqtt"
)

const telemetrySource = "mqtt"

func telemetryObservation(t mqtt.Telemetry) types.Observation {
	return types.Observation{
		StationID:   t.StationID,
		ObservedAt:  types.NormalizeTimestamp(t.Timestamp),
		Temperature: t.Temperature,
		Humidity:    t.Humidity,
		Source:      telemetrySource,
	}
}

// registerMQTTHandler stores telemetry as observations of known stations.
func registerMQTTHandler(subscriber mqtt.MQTTSubscriber, repo repository.WeatherRepository, m *metrics.Metrics, logger *slog.Logger) {
	subscriber.SetMessageHandler(func(ctx context.Context, telemetry mqtt.Telemetry) error {
		obs := telemetryObservation(telemetry)
		logger.Debug("processing telemetry message",
			"station_id", obs.StationID,
			"observed_at", obs.ObservedAt,
		)

		inserted, err := repo.InsertObservation(ctx, obs)
		switch {
		case errors.Is(err, repository.ErrStationNotFound):
			m.TelemetryMessage("unknown_station")
			return fmt.Errorf("store telemetry: %w", err)
		case err != nil:
			m.TelemetryMessage("error")
			return fmt.Errorf("store telemetry: %w", err)
		case !inserted:
			m.TelemetryMessage("duplicate")
			logger.Debug("telemetry already stored", "station_id", obs.StationID, "observed_at", obs.ObservedAt)
			return nil
		}

		m.TelemetryMessage("stored")
		logger.Debug("successfully stored telemetry", "station_id", obs.StationID)
		return nil
	})
}
