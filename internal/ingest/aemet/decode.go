package aemet

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strings"

	"golang.org/x/text/encoding/charmap"

	"wheatr-server/internal/modules/weather/types"
)

const maxBodySize = 32 << 20

var ErrUpstream = errors.New("aemet upstream error")

type envelope struct {
	Descripcion string `json:"descripcion"`
	Estado      int    `json:"estado"`
	Datos       string `json:"datos"`
	Metadatos   string `json:"metadatos"`
}

type entry struct {
	Fint  string   `json:"fint"`
	Idema string   `json:"idema"`
	Ubi   string   `json:"ubi"`
	Lat   float64  `json:"lat"`
	Lon   float64  `json:"lon"`
	Ta    *float64 `json:"ta"`
	Hr    *float64 `json:"hr"`
}

// readBody returns the response body as UTF-8. AEMET serves ISO-8859-15
// unless the Content-Type says UTF-8.
func readBody(resp *http.Response) ([]byte, error) {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	if isUTF8(resp.Header.Get("Content-Type")) {
		return raw, nil
	}
	out, err := charmap.ISO8859_15.NewDecoder().Bytes(raw)
	if err != nil {
		return nil, fmt.Errorf("decode iso-8859-15: %w", err)
	}
	return out, nil
}

func isUTF8(contentType string) bool {
	if contentType == "" {
		return false
	}
	_, params, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	cs := strings.ToLower(params["charset"])
	return cs == "utf-8" || cs == "utf8"
}

func parseEnvelope(body []byte) (string, error) {
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return "", fmt.Errorf("decode envelope: %w", err)
	}
	if env.Estado != http.StatusOK {
		return "", fmt.Errorf("%w: estado %d: %s", ErrUpstream, env.Estado, env.Descripcion)
	}
	if env.Datos == "" {
		return "", fmt.Errorf("%w: envelope without datos url", ErrUpstream)
	}
	return env.Datos, nil
}

// parseEntries decodes the observation array. An empty body is an empty set.
func parseEntries(body []byte) ([]entry, error) {
	if len(bytes.TrimSpace(body)) == 0 {
		return nil, nil
	}
	var entries []entry
	if err := json.Unmarshal(body, &entries); err != nil {
		return nil, fmt.Errorf("decode observations: %w", err)
	}
	return entries, nil
}

// convert maps every entry to a station, keeping the last entry per id, and
// entries carrying both ta and hr to observations. It returns the number of
// entries skipped for a missing id or an unreadable fint.
func convert(entries []entry) (Batch, int) {
	var (
		batch   Batch
		skipped int
		index   = make(map[string]int, len(entries))
	)
	for _, e := range entries {
		if e.Idema == "" {
			skipped++
			continue
		}
		st := types.Station{ID: e.Idema, Name: e.Ubi, Lat: e.Lat, Lon: e.Lon}
		if i, ok := index[e.Idema]; ok {
			batch.Stations[i] = st
		} else {
			index[e.Idema] = len(batch.Stations)
			batch.Stations = append(batch.Stations, st)
		}

		if e.Ta == nil || e.Hr == nil {
			continue
		}
		ts, err := types.ParseTimestamp(e.Fint)
		if err != nil {
			skipped++
			continue
		}
		batch.Observations = append(batch.Observations, types.Observation{
			StationID:   e.Idema,
			ObservedAt:  types.NormalizeTimestamp(ts),
			Temperature: e.Ta,
			Humidity:    e.Hr,
			Source:      "aemet",
		})
	}
	return batch, skipped
}
