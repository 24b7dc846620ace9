package controller

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"wheatr-server/internal/modules/weather/types"
)

func Test_parseLocationQuery(t *testing.T) {
	tests := []struct {
		name    string
		query   string
		want    types.Location
		wantErr bool
	}{
		{"valid", "?lat=36.6952842&lon=-4.4538607", types.Location{Lat: 36.6952842, Lon: -4.4538607}, false},
		{"bounds inclusive", "?lat=-90&lon=180", types.Location{Lat: -90, Lon: 180}, false},
		{"missing both", "", types.Location{}, true},
		{"empty lat", "?lat=&lon=1", types.Location{}, true},
		{"garbage lon", "?lat=1&lon=1e", types.Location{}, true},
		{"infinite", "?lat=Inf&lon=1", types.Location{}, true},
		{"lon too small", "?lat=1&lon=-180.0001", types.Location{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/hi"+tt.query, nil)
			got, err := parseLocationQuery(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("got %+v; want %+v", got, tt.want)
			}
		})
	}

	t.Run("range errors match ErrInvalidLocation", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/hi?lat=100&lon=0", nil)
		_, err := parseLocationQuery(req)
		if !errors.Is(err, types.ErrInvalidLocation) {
			t.Errorf("err = %v; want ErrInvalidLocation", err)
		}
	})
}

func Test_parseLimitQuery(t *testing.T) {
	tests := []struct {
		query   string
		want    int
		wantErr bool
	}{
		{"", defaultObservationsLimit, false},
		{"?limit=1", 1, false},
		{"?limit=1000", 1000, false},
		{"?limit=1001", 0, true},
		{"?limit=0", 0, true},
		{"?limit=-3", 0, true},
		{"?limit=ten", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/x"+tt.query, nil)
			got, err := parseLimitQuery(req)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v; wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("limit = %d; want %d", got, tt.want)
			}
		})
	}
}

func Test_newEstimateResponse(t *testing.T) {
	est := types.Estimation{
		Location:     types.Location{Lat: 1, Lon: 2},
		Temperature:  30,
		Humidity:     50,
		HeatIndex:    31,
		UsedStations: types.Triple[types.Station]{{ID: "a"}, {ID: "b"}, {ID: "c"}},
	}
	got := newEstimateResponse(est)

	if len(got.UsedStations) != 3 || got.UsedStations[2].ID != "c" {
		t.Errorf("UsedStations = %+v; want a, b, c", got.UsedStations)
	}
	if got.LocalLat != 1 || got.LocalLon != 2 || got.LocalHI != 31 {
		t.Errorf("got %+v", got)
	}
}
