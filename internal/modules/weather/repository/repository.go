package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"

	"wheatr-server/internal/modules/weather/types"
)

//go:embed sql/get-candidate-stations.sql
var getCandidateStationsSQL string

//go:embed sql/get-recent-observations.sql
var getRecentObservationsSQL string

//go:embed sql/get-latest-observations.sql
var getLatestObservationsSQL string

//go:embed sql/get-stations.sql
var getStationsSQL string

//go:embed sql/get-station.sql
var getStationSQL string

//go:embed sql/upsert-station.sql
var upsertStationSQL string

//go:embed sql/insert-observation.sql
var insertObservationSQL string

var ErrStationNotFound = errors.New("station not found")

// SaveResult counts the rows written by SaveBatch. Observations already
// present are skipped and not counted, unless they complete a partial row.
type SaveResult struct {
	Stations     int
	Observations int
}

type WeatherRepository interface {
	CandidateStations(ctx context.Context, loc types.Location, limit int) ([]types.Station, error)
	RecentObservations(ctx context.Context, stationIDs []string, limit int) ([]types.Observation, error)
	GetStations(ctx context.Context) ([]types.Station, error)
	GetStation(ctx context.Context, id string) (types.Station, error)
	GetLatestObservations(ctx context.Context, stationID string, limit int) ([]types.Observation, error)
	SaveBatch(ctx context.Context, stations []types.Station, observations []types.Observation) (SaveResult, error)
	InsertObservation(ctx context.Context, obs types.Observation) (bool, error)
}

type repositoryImpl struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) WeatherRepository {
	return &repositoryImpl{db: db}
}

func (r *repositoryImpl) CandidateStations(ctx context.Context, loc types.Location, limit int) ([]types.Station, error) {
	rows, err := r.db.QueryContext(ctx, getCandidateStationsSQL, math.Abs(loc.Lat), math.Abs(loc.Lon), limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close candidate stations rows", "error", err)
		}
	}()
	return scanStations(rows)
}

func (r *repositoryImpl) RecentObservations(ctx context.Context, stationIDs []string, limit int) ([]types.Observation, error) {
	if len(stationIDs) == 0 {
		return nil, nil
	}
	ids, err := json.Marshal(stationIDs)
	if err != nil {
		return nil, fmt.Errorf("encode station ids: %w", err)
	}
	rows, err := r.db.QueryContext(ctx, getRecentObservationsSQL, string(ids), limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close recent observations rows", "error", err)
		}
	}()
	return scanObservations(rows)
}

func (r *repositoryImpl) GetStations(ctx context.Context) ([]types.Station, error) {
	rows, err := r.db.QueryContext(ctx, getStationsSQL)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close stations rows", "error", err)
		}
	}()
	return scanStations(rows)
}

func (r *repositoryImpl) GetStation(ctx context.Context, id string) (types.Station, error) {
	var s types.Station
	err := r.db.QueryRowContext(ctx, getStationSQL, id).Scan(&s.ID, &s.Name, &s.Lat, &s.Lon)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Station{}, fmt.Errorf("%w: %q", ErrStationNotFound, id)
	}
	return s, err
}

func (r *repositoryImpl) GetLatestObservations(ctx context.Context, stationID string, limit int) ([]types.Observation, error) {
	rows, err := r.db.QueryContext(ctx, getLatestObservationsSQL, stationID, limit)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := rows.Close(); err != nil {
			slog.Error("close latest observations rows", "error", err)
		}
	}()
	return scanObservations(rows)
}

// SaveBatch upserts stations and inserts new observations in one
// transaction. Stations are written first so observations can reference them.
func (r *repositoryImpl) SaveBatch(ctx context.Context, stations []types.Station, observations []types.Observation) (res SaveResult, err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return SaveResult{}, fmt.Errorf("begin: %w", err)
	}
	defer func() {
		if err != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				slog.Error("rollback save batch", "error", rbErr)
			}
		}
	}()

	stationStmt, err := tx.PrepareContext(ctx, upsertStationSQL)
	if err != nil {
		return SaveResult{}, fmt.Errorf("prepare upsert station: %w", err)
	}
	defer stationStmt.Close()

	for _, s := range stations {
		if _, err = stationStmt.ExecContext(ctx, s.ID, s.Name, s.Lat, s.Lon); err != nil {
			return SaveResult{}, fmt.Errorf("upsert station %q: %w", s.ID, err)
		}
		res.Stations++
	}

	obsStmt, err := tx.PrepareContext(ctx, insertObservationSQL)
	if err != nil {
		return SaveResult{}, fmt.Errorf("prepare insert observation: %w", err)
	}
	defer obsStmt.Close()

	for _, o := range observations {
		var result sql.Result
		result, err = obsStmt.ExecContext(ctx, observationArgs(o)...)
		if err != nil {
			return SaveResult{}, fmt.Errorf("insert observation %s@%s: %w", o.StationID, o.ObservedAt, err)
		}
		n, _ := result.RowsAffected()
		res.Observations += int(n)
	}

	if err = tx.Commit(); err != nil {
		return SaveResult{}, fmt.Errorf("commit: %w", err)
	}
	return res, nil
}

// InsertObservation stores a single observation for a known station. When a
// row with the same station and timestamp exists, only its missing metrics
// are filled in. It reports false when nothing changed.
func (r *repositoryImpl) InsertObservation(ctx context.Context, obs types.Observation) (bool, error) {
	if _, err := r.GetStation(ctx, obs.StationID); err != nil {
		return false, err
	}
	result, err := r.db.ExecContext(ctx, insertObservationSQL, observationArgs(obs)...)
	if err != nil {
		return false, fmt.Errorf("insert observation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func observationArgs(o types.Observation) []any {
	source := o.Source
	if source == "" {
		source = "aemet"
	}
	return []any{o.StationID, o.ObservedAt, nullFloat(o.Temperature), nullFloat(o.Humidity), source}
}

func nullFloat(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func scanStations(rows *sql.Rows) ([]types.Station, error) {
	out := []types.Station{}
	for rows.Next() {
		var s types.Station
		if err := rows.Scan(&s.ID, &s.Name, &s.Lat, &s.Lon); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func scanObservations(rows *sql.Rows) ([]types.Observation, error) {
	out := []types.Observation{}
	for rows.Next() {
		var o types.Observation
		var temp, hum sql.NullFloat64
		if err := rows.Scan(&o.StationID, &o.ObservedAt, &temp, &hum, &o.Source); err != nil {
			return nil, err
		}
		if temp.Valid {
			o.Temperature = &temp.Float64
		}
		if hum.Valid {
			o.Humidity = &hum.Float64
		}
		out = append(out, o)
	}
	return out, rows.Err()
}
