// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package journal

import (
	"context"

	"github.com/jcodagnone/geocoords/geocoding"
	"github.com/jcodagnone/geocoords/spatial"
	"go.uber.org/zap"
)

// Operation names stored in the journal.
const (
	OpGeocode              = "geocode"
	OpElevation            = "elevation"
	OpGeocodeWithElevation = "geocode_with_elevation"
	OpGeocodeAuthenticated = "geocode_authenticated"
	OpBatchGeocode         = "batch_geocode"
)

// Recorder writes envelopes to a Repository. Recording failures are logged
// and never reach the caller. A nil Recorder records nothing.
type Recorder struct {
	repo   Repository
	logger *zap.Logger
}

// NewRecorder creates a recorder writing to repo.
func NewRecorder(repo Repository, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Recorder{repo: repo, logger: logger}
}

func (r *Recorder) save(l *Lookup) {
	if r == nil {
		return
	}

	if err := r.repo.Record(l); err != nil {
		r.logger.Error("failed to record lookup",
			zap.String("provider", l.Provider),
			zap.String("operation", l.Operation),
			zap.Error(err),
		)
	}
}

func newLookup[T any](provider, op, query string, env geocoding.Envelope[T]) *Lookup {
	return &Lookup{
		Provider:  provider,
		Operation: op,
		Query:     query,
		Status:    env.Status,
		Message:   env.Message,
	}
}

// Coordinate records a geocode answer.
func (r *Recorder) Coordinate(provider, op, query string, env geocoding.Envelope[geocoding.Coordinate]) {
	l := newLookup(provider, op, query, env)
	if env.Status {
		p := env.Result.Point()
		l.Point = &p
	}

	r.save(l)
}

// Elevation records an elevation answer. query is the address, or the
// coordinate for plain elevation lookups.
func (r *Recorder) Elevation(provider, op, query string, env geocoding.Envelope[geocoding.Elevation]) {
	l := newLookup(provider, op, query, env)
	if env.Status {
		p := env.Result.Point()
		alt := env.Result.Altitude
		l.Point = &p
		l.Altitude = &alt
	}

	r.save(l)
}

// Match records an authenticated geocode answer.
func (r *Recorder) Match(provider, query string, env geocoding.Envelope[geocoding.Match]) {
	l := newLookup(provider, OpGeocodeAuthenticated, query, env)
	if env.Status {
		p := env.Result.Point()
		l.Point = &p
	}

	r.save(l)
}

// Batch records one lookup per address. A failed batch is recorded as a
// failure for every address.
func (r *Recorder) Batch(provider string, addresses []string, env geocoding.Envelope[geocoding.BatchResult]) {
	if r == nil {
		return
	}

	unmatched := make(map[int]bool)
	if env.Status {
		for _, idx := range env.Result.Unmatched {
			unmatched[idx] = true
		}
	}

	noResults := geocoding.MsgNoResultsFound

	for i, address := range addresses {
		l := newLookup(provider, OpBatchGeocode, address, env)

		switch {
		case !env.Status:
		case unmatched[i]:
			l.Status = false
			l.Message = &noResults
		default:
			p := spatial.Point{Lat: env.Result.Coordinates[i].Latitude, Lng: env.Result.Coordinates[i].Longitude}
			l.Point = &p
		}

		r.save(l)
	}
}

type recordingGeocoder struct {
	geocoding.Geocoder

	recorder *Recorder
}

// Wrap returns a Geocoder that records every answer of g.
func Wrap(g geocoding.Geocoder, repo Repository, logger *zap.Logger) geocoding.Geocoder {
	return &recordingGeocoder{Geocoder: g, recorder: NewRecorder(repo, logger)}
}

func (g *recordingGeocoder) Geocode(ctx context.Context, address string) geocoding.Envelope[geocoding.Coordinate] {
	env := g.Geocoder.Geocode(ctx, address)
	g.recorder.Coordinate(g.Name(), OpGeocode, address, env)

	return env
}
