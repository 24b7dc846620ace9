// Package aemet downloads the latest conventional observations published by
// AEMET OpenData.
package aemet

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sony/gobreaker"

	"wheatr-server/internal/config"
	"wheatr-server/internal/metrics"
	"wheatr-server/internal/modules/weather/types"
)

const breakerName = "aemet"

var ErrMissingAPIKey = errors.New("aemet api key not configured")

// Batch is one download converted to the storage model.
type Batch struct {
	Stations     []types.Station
	Observations []types.Observation
}

type Client struct {
	url     string
	apiKey  string
	http    *http.Client
	backoff BackoffConfig
	cb      *gobreaker.CircuitBreaker
	logger  *slog.Logger
}

func NewClient(cfg config.Config, m *metrics.Metrics, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	m.SetCircuitBreakerState(breakerName, float64(gobreaker.StateClosed))

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Interval:    time.Minute,
		Timeout:     2 * time.Minute,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("circuit breaker state changed", "target", name, "from", from.String(), "to", to.String())
			m.SetCircuitBreakerState(name, float64(to))
		},
	})

	return &Client{
		url:    cfg.AEMETURL,
		apiKey: cfg.AEMETAPIKey,
		http:   &http.Client{Timeout: cfg.AEMETHTTPTimeout},
		backoff: BackoffConfig{
			MaxRetries:      cfg.AEMETMaxRetries,
			InitialInterval: cfg.AEMETBackoffInitial,
			MaxInterval:     cfg.AEMETBackoffMax,
		},
		cb:     cb,
		logger: logger,
	}
}

// Fetch resolves the data URL announced by the AEMET endpoint, downloads the
// observation set and converts it.
func (c *Client) Fetch(ctx context.Context) (Batch, error) {
	if c.apiKey == "" {
		return Batch{}, ErrMissingAPIKey
	}

	body, err := c.get(ctx, c.url)
	if err != nil {
		return Batch{}, fmt.Errorf("request data url: %w", err)
	}
	dataURL, err := parseEnvelope(body)
	if err != nil {
		return Batch{}, err
	}

	body, err = c.get(ctx, dataURL)
	if err != nil {
		return Batch{}, fmt.Errorf("download observations: %w", err)
	}
	entries, err := parseEntries(body)
	if err != nil {
		return Batch{}, err
	}

	batch, skipped := convert(entries)
	c.logger.Info("aemet observations downloaded",
		"entries", len(entries),
		"stations", len(batch.Stations),
		"observations", len(batch.Observations),
		"skipped", skipped,
	)
	return batch, nil
}

func (c *Client) get(ctx context.Context, url string) ([]byte, error) {
	resp, err := doRequestWithResilience(ctx, c.http, c.backoff, c.cb, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("api_key", c.apiKey)
		req.Header.Set("Accept", "application/json")
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	defer drainAndClose(resp.Body)
	return readBody(resp)
}
