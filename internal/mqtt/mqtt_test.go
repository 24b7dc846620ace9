package mqtt

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheatr-server/internal/metrics"
)

func ptr(v float64) *float64 { return &v }

func newTestSubscriber() *Subscriber {
	return &Subscriber{
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		metrics: metrics.New(),
		stopCh:  make(chan struct{}),
	}
}

func TestValidateTelemetry(t *testing.T) {
	ts := time.Date(2024, 7, 1, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      Telemetry
		wantErr string
	}{
		{"complete", Telemetry{StationID: "6156X", Timestamp: ts, Temperature: ptr(30), Humidity: ptr(40)}, ""},
		{"temperature only", Telemetry{StationID: "6156X", Timestamp: ts, Temperature: ptr(30)}, ""},
		{"humidity bounds", Telemetry{StationID: "6156X", Timestamp: ts, Humidity: ptr(100)}, ""},
		{"missing station", Telemetry{Timestamp: ts, Temperature: ptr(30)}, "station_id is required"},
		{"missing timestamp", Telemetry{StationID: "6156X", Temperature: ptr(30)}, "timestamp is required"},
		{"humidity above 100", Telemetry{StationID: "6156X", Timestamp: ts, Humidity: ptr(100.5)}, "humidity_pct out of range"},
		{"negative humidity", Telemetry{StationID: "6156X", Timestamp: ts, Humidity: ptr(-1)}, "humidity_pct out of range"},
		{"no metrics", Telemetry{StationID: "6156X", Timestamp: ts}, "at least one of"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateTelemetry(tt.in)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHandleMessage(t *testing.T) {
	t.Run("valid message reaches handler", func(t *testing.T) {
		s := newTestSubscriber()
		var got Telemetry
		s.SetMessageHandler(func(ctx context.Context, telemetry Telemetry) error {
			_, hasDeadline := ctx.Deadline()
			assert.True(t, hasDeadline)
			got = telemetry
			return nil
		})

		s.handleMessage("wheatr/telemetry", []byte(`{"station_id":"6156X","timestamp":"2024-07-01T16:00:00+02:00","temperature_c":31.5,"humidity_pct":44}`))

		assert.Equal(t, "6156X", got.StationID)
		assert.True(t, got.Timestamp.Equal(time.Date(2024, 7, 1, 14, 0, 0, 0, time.UTC)))
		require.NotNil(t, got.Temperature)
		assert.Equal(t, 31.5, *got.Temperature)
	})

	t.Run("pressure is ignored", func(t *testing.T) {
		s := newTestSubscriber()
		var calls int
		s.SetMessageHandler(func(ctx context.Context, telemetry Telemetry) error {
			calls++
			return nil
		})

		s.handleMessage("wheatr/telemetry", []byte(`{"station_id":"6156X","timestamp":"2024-07-01T14:00:00Z","temperature_c":30,"pressure_hpa":-5}`))
		s.handleMessage("wheatr/telemetry", []byte(`{"station_id":"6156X","timestamp":"2024-07-01T14:00:00Z","pressure_hpa":1013}`))

		assert.Equal(t, 1, calls)
		assertTelemetryCount(t, s, "invalid")
	})

	t.Run("malformed payload is dropped", func(t *testing.T) {
		s := newTestSubscriber()
		called := false
		s.SetMessageHandler(func(ctx context.Context, telemetry Telemetry) error {
			called = true
			return nil
		})

		s.handleMessage("wheatr/telemetry", []byte(`{not json`))

		assert.False(t, called)
		assertTelemetryCount(t, s, "malformed")
	})

	t.Run("invalid telemetry is dropped", func(t *testing.T) {
		s := newTestSubscriber()
		called := false
		s.SetMessageHandler(func(ctx context.Context, telemetry Telemetry) error {
			called = true
			return nil
		})

		s.handleMessage("wheatr/telemetry", []byte(`{"station_id":"6156X","timestamp":"2024-07-01T14:00:00Z","humidity_pct":140}`))

		assert.False(t, called)
		assertTelemetryCount(t, s, "invalid")
	})

	t.Run("handler error does not panic", func(t *testing.T) {
		s := newTestSubscriber()
		s.SetMessageHandler(func(ctx context.Context, telemetry Telemetry) error {
			return errors.New("station not found")
		})

		assert.NotPanics(t, func() {
			s.handleMessage("wheatr/telemetry", []byte(`{"station_id":"X","timestamp":"2024-07-01T14:00:00Z","temperature_c":20}`))
		})
	})

	t.Run("no handler set", func(t *testing.T) {
		s := newTestSubscriber()
		assert.NotPanics(t, func() {
			s.handleMessage("wheatr/telemetry", []byte(`{"station_id":"X","timestamp":"2024-07-01T14:00:00Z","temperature_c":20}`))
		})
	})
}

func assertTelemetryCount(t *testing.T, s *Subscriber, outcome string) {
	t.Helper()
	expected := `
# HELP wheatr_mqtt_messages_total MQTT telemetry messages by outcome.
# TYPE wheatr_mqtt_messages_total counter
wheatr_mqtt_messages_total{outcome="` + outcome + `"} 1
`
	assert.NoError(t, testutil.GatherAndCompare(s.metrics.Registry(), strings.NewReader(expected), "wheatr_mqtt_messages_total"))
}
