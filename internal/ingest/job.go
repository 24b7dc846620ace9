// Package ingest keeps the station catalog and observation history current by
// downloading AEMET observations on a schedule.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"wheatr-server/internal/ingest/aemet"
	"wheatr-server/internal/metrics"
	"wheatr-server/internal/modules/weather/repository"
	"wheatr-server/internal/modules/weather/types"
)

var ErrAlreadyRunning = errors.New("ingestion already running")

type Fetcher interface {
	Fetch(ctx context.Context) (aemet.Batch, error)
}

type Store interface {
	SaveBatch(ctx context.Context, stations []types.Station, observations []types.Observation) (repository.SaveResult, error)
}

// Job downloads one observation set and stores it. Runs never overlap.
type Job struct {
	fetcher Fetcher
	store   Store
	metrics *metrics.Metrics
	logger  *slog.Logger
	running atomic.Bool
}

func NewJob(fetcher Fetcher, store Store, m *metrics.Metrics, logger *slog.Logger) *Job {
	if logger == nil {
		logger = slog.Default()
	}
	return &Job{fetcher: fetcher, store: store, metrics: m, logger: logger}
}

func (j *Job) Run(ctx context.Context) (repository.SaveResult, error) {
	if !j.running.CompareAndSwap(false, true) {
		return repository.SaveResult{}, ErrAlreadyRunning
	}
	defer j.running.Store(false)

	runID := uuid.New().String()
	logger := j.logger.With("run_id", runID)
	start := time.Now()
	logger.Info("ingestion started")

	res, err := j.run(ctx)
	duration := time.Since(start)
	j.metrics.IngestRun(duration, res.Stations, res.Observations, err)
	if err != nil {
		logger.Error("ingestion failed", "duration_ms", duration.Milliseconds(), "error", err)
		return repository.SaveResult{}, err
	}

	logger.Info("ingestion finished",
		"duration_ms", duration.Milliseconds(),
		"stations", res.Stations,
		"observations", res.Observations,
	)
	return res, nil
}

func (j *Job) run(ctx context.Context) (repository.SaveResult, error) {
	batch, err := j.fetcher.Fetch(ctx)
	if err != nil {
		return repository.SaveResult{}, fmt.Errorf("fetch: %w", err)
	}
	res, err := j.store.SaveBatch(ctx, batch.Stations, batch.Observations)
	if err != nil {
		return repository.SaveResult{}, fmt.Errorf("save batch: %w", err)
	}
	return res, nil
}
