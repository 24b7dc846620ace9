package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// TimestampLayout is the normalized observation timestamp format. It is fixed
// width and UTC, so string order equals chronological order.
const TimestampLayout = "2006-01-02T15:04:05"

// StationCount is the number of stations every estimation uses.
const StationCount = 3

// Triple holds exactly three values of T.
type Triple[T any] [StationCount]T

type Station struct {
	ID   string  `json:"id"`
	Name string  `json:"name"`
	Lat  float64 `json:"lat"`
	Lon  float64 `json:"lon"`
}

// Observation is a single station report. Temperature and Humidity are nil
// when the station did not report that metric.
type Observation struct {
	StationID   string   `json:"station_id"`
	ObservedAt  string   `json:"observed_at"`
	Temperature *float64 `json:"temperature_c"`
	Humidity    *float64 `json:"humidity_pct"`
	Source      string   `json:"source,omitempty"`
}

// Complete reports whether both metrics are present.
func (o Observation) Complete() bool {
	return o.Temperature != nil && o.Humidity != nil
}

type Location struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

var ErrInvalidLocation = errors.New("invalid location")

func (l Location) Validate() error {
	if math.IsNaN(l.Lat) || math.IsInf(l.Lat, 0) || l.Lat < -90 || l.Lat > 90 {
		return fmt.Errorf("%w: lat %v out of range [-90, 90]", ErrInvalidLocation, l.Lat)
	}
	if math.IsNaN(l.Lon) || math.IsInf(l.Lon, 0) || l.Lon < -180 || l.Lon > 180 {
		return fmt.Errorf("%w: lon %v out of range [-180, 180]", ErrInvalidLocation, l.Lon)
	}
	return nil
}

type AlignedPoint struct {
	Lat   float64
	Lon   float64
	Value float64
}

type Estimation struct {
	Location     Location
	Temperature  float64
	Humidity     float64
	HeatIndex    float64
	UsedStations Triple[Station]
}

// NormalizeTimestamp renders t in TimestampLayout, in UTC.
func NormalizeTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

var timestampLayouts = []string{
	time.RFC3339Nano,
	TimestampLayout,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05.999999999",
	"2006-01-02 15:04:05",
}

// ParseTimestamp accepts RFC 3339 and the zone-less layouts used by station
// feeds. Zone-less values are taken as UTC.
func ParseTimestamp(s string) (time.Time, error) {
	var firstErr error
	for _, layout := range timestampLayouts {
		t, err := time.Parse(layout, s)
		if err == nil {
			return t.UTC(), nil
		}
		if firstErr == nil {
			firstErr = err
		}
	}
	return time.Time{}, fmt.Errorf("parse timestamp %q: %w", s, firstErr)
}
