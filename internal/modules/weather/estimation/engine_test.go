package estimation

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"wheatr-server/internal/modules/weather/types"
)

type fakeCatalog struct {
	stations []types.Station
	err      error

	mu       sync.Mutex
	gotLimit int
}

func (f *fakeCatalog) CandidateStations(_ context.Context, _ types.Location, limit int) ([]types.Station, error) {
	f.mu.Lock()
	f.gotLimit = limit
	f.mu.Unlock()
	return f.stations, f.err
}

type fakeHistory struct {
	observations []types.Observation
	err          error

	mu       sync.Mutex
	gotIDs   []string
	gotLimit int
}

func (f *fakeHistory) RecentObservations(_ context.Context, ids []string, limit int) ([]types.Observation, error) {
	f.mu.Lock()
	f.gotIDs = ids
	f.gotLimit = limit
	f.mu.Unlock()
	return f.observations, f.err
}

func malagaFixture() (*fakeCatalog, *fakeHistory) {
	catalog := &fakeCatalog{stations: []types.Station{
		{ID: "6155A", Name: "MALAGA AEROPUERTO", Lat: 36.66612, Lon: -4.482307},
		{ID: "6156X", Name: "MALAGA PUERTO", Lat: 36.717785, Lon: -4.48167},
		{ID: "6172O", Name: "MALAGA EL PALO", Lat: 36.716663, Lon: -4.41972},
		{ID: "3195", Name: "MADRID RETIRO", Lat: 40.411804, Lon: -3.678056},
	}}
	history := &fakeHistory{observations: []types.Observation{
		obs("6156X", "2024-07-20T14:00:00", ptr(41.2), ptr(60)),
		obs("6155A", "2024-07-20T14:00:00", ptr(43.3), nil),
		obs("6172O", "2024-07-20T14:00:00", ptr(34.6), ptr(65)),
		obs("6155A", "2024-07-20T13:00:00", ptr(43.3), ptr(55)),
		obs("6156X", "2024-07-20T13:00:00", ptr(39.0), ptr(62)),
	}}
	return catalog, history
}

func TestEstimator_Estimate(t *testing.T) {
	ctx := context.Background()

	t.Run("interpolates temperature, humidity and heat index", func(t *testing.T) {
		catalog, history := malagaFixture()
		est := NewEstimator(catalog, history, 0, nil)

		got, err := est.Estimate(ctx, malaga)
		require.NoError(t, err)

		assert.Equal(t, malaga, got.Location)
		assert.InEpsilon(t, 39.10227, got.Temperature, 1e-3)
		assert.InEpsilon(t, 60.138032, got.Humidity, 1e-3)
		assert.Equal(t, HeatIndex(got.Temperature, got.Humidity), got.HeatIndex)
		assert.Equal(t, "6156X", got.UsedStations[0].ID)
		assert.Equal(t, "6172O", got.UsedStations[1].ID)
		assert.Equal(t, "6155A", got.UsedStations[2].ID)

		assert.Equal(t, types.StationCount, catalog.gotLimit)
		assert.Equal(t, DefaultLookback, history.gotLimit)
		assert.ElementsMatch(t, []string{"6155A", "6156X", "6172O"}, history.gotIDs)
	})

	t.Run("identical inputs give identical output", func(t *testing.T) {
		catalog, history := malagaFixture()
		est := NewEstimator(catalog, history, 12, nil)

		first, err := est.Estimate(ctx, malaga)
		require.NoError(t, err)
		second, err := est.Estimate(ctx, malaga)
		require.NoError(t, err)
		assert.Equal(t, first, second)
	})

	t.Run("safe for concurrent use", func(t *testing.T) {
		catalog, history := malagaFixture()
		est := NewEstimator(catalog, history, 12, nil)

		var wg sync.WaitGroup
		errs := make(chan error, 8)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := est.Estimate(ctx, malaga)
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)
		for err := range errs {
			assert.NoError(t, err)
		}
	})

	t.Run("insufficient stations", func(t *testing.T) {
		catalog, history := malagaFixture()
		catalog.stations = catalog.stations[:2]
		est := NewEstimator(catalog, history, 12, nil)

		_, err := est.Estimate(ctx, malaga)
		assert.ErrorIs(t, err, ErrInsufficientStations)
		assert.Nil(t, history.gotIDs, "history must not be read after locator failure")
	})

	t.Run("incomplete observation set", func(t *testing.T) {
		catalog, history := malagaFixture()
		history.observations = history.observations[:3]
		est := NewEstimator(catalog, history, 12, nil)

		_, err := est.Estimate(ctx, malaga)
		assert.ErrorIs(t, err, ErrIncompleteObservationSet)
		var noObs *NoObservationError
		require.ErrorAs(t, err, &noObs)
		assert.Equal(t, "6155A", noObs.StationID)
	})

	t.Run("collinear stations", func(t *testing.T) {
		catalog := &fakeCatalog{stations: []types.Station{
			{ID: "a", Lat: 36.0, Lon: -4.0},
			{ID: "b", Lat: 36.5, Lon: -4.5},
			{ID: "c", Lat: 37.0, Lon: -5.0},
		}}
		history := &fakeHistory{observations: []types.Observation{
			obs("a", "2024-07-20T14:00:00", ptr(30), ptr(50)),
			obs("b", "2024-07-20T14:00:00", ptr(31), ptr(51)),
			obs("c", "2024-07-20T14:00:00", ptr(32), ptr(52)),
		}}
		est := NewEstimator(catalog, history, 12, nil)

		_, err := est.Estimate(ctx, malaga)
		assert.ErrorIs(t, err, ErrDegenerateInterpolation)
	})

	t.Run("storage errors propagate", func(t *testing.T) {
		boom := errors.New("disk on fire")

		catalog, history := malagaFixture()
		catalog.err = boom
		_, err := NewEstimator(catalog, history, 12, nil).Estimate(ctx, malaga)
		assert.ErrorIs(t, err, boom)

		catalog, history = malagaFixture()
		history.err = boom
		_, err = NewEstimator(catalog, history, 12, nil).Estimate(ctx, malaga)
		assert.ErrorIs(t, err, boom)
	})
}
