// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package server

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/geocoords/geocoding"
	"github.com/jcodagnone/geocoords/journal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

type fakeGeocoder struct {
	name string
	env  geocoding.Envelope[geocoding.Coordinate]
	last string
}

func (f *fakeGeocoder) Name() string { return f.name }

func (f *fakeGeocoder) Geocode(_ context.Context, address string) geocoding.Envelope[geocoding.Coordinate] {
	f.last = address

	return f.env
}

type fakeElevator struct {
	lat, lng float64
}

func (f *fakeElevator) Elevation(_ context.Context, lat, lng float64) geocoding.Envelope[geocoding.Elevation] {
	f.lat, f.lng = lat, lng

	return geocoding.Success(geocoding.Elevation{
		Coordinate: geocoding.Coordinate{Latitude: lat, Longitude: lng},
		Altitude:   11.43,
	})
}

func (f *fakeElevator) GeocodeWithElevation(context.Context, string) geocoding.Envelope[geocoding.Elevation] {
	return geocoding.Failure[geocoding.Elevation](&geocoding.GeocodingError{
		Type:    geocoding.ErrorTypeZeroResults,
		Message: geocoding.MsgZeroResults,
	})
}

type fakeArcGIS struct {
	batch []string
}

func (f *fakeArcGIS) GeocodeAuthenticated(context.Context, string) geocoding.Envelope[geocoding.Match] {
	return geocoding.Success(geocoding.Match{Coordinate: geocoding.Coordinate{Latitude: 39.74, Longitude: -104.98}})
}

func (f *fakeArcGIS) BatchGeocodeAuthenticated(_ context.Context, addresses []string) geocoding.Envelope[geocoding.BatchResult] {
	f.batch = addresses
	if len(addresses) == 0 {
		return geocoding.Failure[geocoding.BatchResult](&geocoding.GeocodingError{
			Type:    geocoding.ErrorTypeNoResultsFound,
			Message: geocoding.MsgNoResultsFound,
		})
	}

	coords := make([]geocoding.Coordinate, len(addresses))
	for i := range coords {
		coords[i] = geocoding.Coordinate{Latitude: float64(i), Longitude: float64(i)}
	}

	return geocoding.Success(geocoding.BatchResult{Coordinates: coords})
}

type fixture struct {
	router *gin.Engine
	google *fakeGeocoder
	here   *fakeGeocoder
	elev   *fakeElevator
	arcgis *fakeArcGIS
	repo   journal.Repository
}

func setupServerTest(t *testing.T, full bool) *fixture {
	t.Helper()

	gin.SetMode(gin.TestMode)

	f := &fixture{
		google: &fakeGeocoder{name: "google", env: geocoding.Success(geocoding.Coordinate{Latitude: 6.9270786, Longitude: 79.861243})},
		here: &fakeGeocoder{name: "here", env: geocoding.Failure[geocoding.Coordinate](&geocoding.GeocodingError{
			Type:    geocoding.ErrorTypeNoResultsFound,
			Message: geocoding.MsgNoResultsFound,
		})},
	}

	opts := Options{
		Registry: geocoding.NewRegistry(f.google, f.here),
		Logger:   zaptest.NewLogger(t),
	}

	if full {
		db, err := sql.Open("duckdb", "")
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })

		f.repo = journal.NewRepository(db)
		require.NoError(t, f.repo.CreateSchema())

		f.elev = &fakeElevator{}
		f.arcgis = &fakeArcGIS{}
		opts.Elevator = f.elev
		opts.ArcGIS = f.arcgis
		opts.Journal = f.repo
	}

	f.router = NewServer(opts).Router()

	return f
}

func (f *fixture) do(t *testing.T, method, target string, body []byte) *httptest.ResponseRecorder {
	t.Helper()

	w := httptest.NewRecorder()
	req, err := http.NewRequest(method, target, bytes.NewReader(body))
	require.NoError(t, err)

	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	f.router.ServeHTTP(w, req)

	return w
}

type envelope struct {
	Status  bool            `json:"status"`
	Message *string         `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), "body: %s", w.Body.String())

	return v
}

func TestListProviders(t *testing.T) {
	f := setupServerTest(t, false)

	w := f.do(t, http.MethodGet, "/api/providers", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"providers": ["google", "here"], "elevation": false, "arcgis": false, "journal": false}`, w.Body.String())
}

func TestGeocodeAPI(t *testing.T) {
	f := setupServerTest(t, false)

	tests := []struct {
		name       string
		target     string
		wantCode   int
		wantStatus bool
		wantMsg    string
	}{
		{
			name:       "success",
			target:     "/api/geocode/google?address=Colombo%2C%20Sri%20Lanka",
			wantCode:   http.StatusOK,
			wantStatus: true,
		},
		{
			name:     "provider failure is still 200",
			target:   "/api/geocode/here?address=Atlantis",
			wantCode: http.StatusOK,
			wantMsg:  "Unknown Location. No Results Found",
		},
		{
			name:       "case insensitive provider",
			target:     "/api/geocode/GOOGLE?address=Colombo",
			wantCode:   http.StatusOK,
			wantStatus: true,
		},
		{
			name:     "unknown provider",
			target:   "/api/geocode/bing?address=Colombo",
			wantCode: http.StatusNotFound,
		},
		{
			name:     "missing address",
			target:   "/api/geocode/google",
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "blank address",
			target:   "/api/geocode/google?address=%20%20",
			wantCode: http.StatusBadRequest,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := f.do(t, http.MethodGet, tt.target, nil)
			require.Equal(t, tt.wantCode, w.Code, w.Body.String())

			if tt.wantCode != http.StatusOK {
				assert.Contains(t, decode[map[string]string](t, w), "error")

				return
			}

			env := decode[envelope](t, w)
			assert.Equal(t, tt.wantStatus, env.Status)

			if tt.wantStatus {
				assert.Nil(t, env.Message)
				assert.JSONEq(t, `{"latitude": 6.9270786, "longitude": 79.861243}`, string(env.Result))
			} else {
				require.NotNil(t, env.Message)
				assert.Equal(t, tt.wantMsg, *env.Message)
				assert.Equal(t, "null", string(env.Result))
			}
		})
	}

	assert.Equal(t, "Colombo", f.google.last)
}

func TestDisabledFeatures(t *testing.T) {
	f := setupServerTest(t, false)

	for _, target := range []string{
		"/api/google/elevation?lat=1&lng=2",
		"/api/google/altitude?address=x",
		"/api/arcgis/geocode?address=x",
		"/api/journal",
	} {
		t.Run(target, func(t *testing.T) {
			w := f.do(t, http.MethodGet, target, nil)
			assert.Equal(t, http.StatusNotImplemented, w.Code)
		})
	}

	w := f.do(t, http.MethodPost, "/api/arcgis/batch", []byte(`{"addresses": ["x"]}`))
	assert.Equal(t, http.StatusNotImplemented, w.Code)
}

func TestElevationAPI(t *testing.T) {
	f := setupServerTest(t, true)

	w := f.do(t, http.MethodGet, "/api/google/elevation?lat=6.9270786&lng=79.861243", nil)
	require.Equal(t, http.StatusOK, w.Code)

	env := decode[envelope](t, w)
	assert.True(t, env.Status)
	assert.JSONEq(t, `{"latitude": 6.9270786, "longitude": 79.861243, "altitude": 11.43}`, string(env.Result))
	assert.InDelta(t, 6.9270786, f.elev.lat, 1e-9)

	for _, target := range []string{
		"/api/google/elevation?lat=91&lng=0",
		"/api/google/elevation?lat=abc&lng=0",
		"/api/google/elevation?lat=1",
	} {
		w := f.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}

func TestAltitudeAPIPropagatesFailure(t *testing.T) {
	f := setupServerTest(t, true)

	w := f.do(t, http.MethodGet, "/api/google/altitude?address=Atlantis", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": false, "message": "Zero Results", "result": null}`, w.Body.String())
}

func TestArcGISAPI(t *testing.T) {
	f := setupServerTest(t, true)

	w := f.do(t, http.MethodGet, "/api/arcgis/geocode?address=Denver", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode[envelope](t, w).Status)

	w = f.do(t, http.MethodPost, "/api/arcgis/batch", []byte(`{"addresses": ["Albany", "Boston", "Denver"]}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{"Albany", "Boston", "Denver"}, f.arcgis.batch)

	var batch struct {
		Status bool `json:"status"`
		Result struct {
			Coordinates []geocoding.Coordinate `json:"lat_lng_list"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &batch))
	assert.True(t, batch.Status)
	assert.Len(t, batch.Result.Coordinates, 3)

	w = f.do(t, http.MethodPost, "/api/arcgis/batch", []byte(`{"addresses": []}`))
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": false, "message": "Unknown Location. No Results Found", "result": null}`, w.Body.String())

	w = f.do(t, http.MethodPost, "/api/arcgis/batch", []byte(`{"addr": ["x"]}`))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, http.MethodPost, "/api/arcgis/batch", []byte(`not json`))
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCompareAPI(t *testing.T) {
	f := setupServerTest(t, false)

	w := f.do(t, http.MethodGet, "/api/compare?address=Colombo", nil)
	require.Equal(t, http.StatusOK, w.Code)

	cmp := decode[geocoding.Comparison](t, w)
	assert.Equal(t, "Colombo", cmp.Address)
	require.Len(t, cmp.Results, 2)
	assert.Equal(t, "google", cmp.Results[0].Provider)
	assert.True(t, cmp.Results[0].Envelope.Status)
	assert.False(t, cmp.Results[1].Envelope.Status)
	require.NotNil(t, cmp.Spread)
	assert.InDelta(t, 6.9270786, cmp.Spread.Centroid.Lat, 1e-9)
	assert.Nil(t, cmp.Agreement)

	w = f.do(t, http.MethodGet, "/api/compare", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestJournalAPI(t *testing.T) {
	f := setupServerTest(t, true)

	// recorded by the handlers
	f.do(t, http.MethodGet, "/api/google/elevation?lat=1&lng=2", nil)
	f.do(t, http.MethodGet, "/api/google/altitude?address=Atlantis", nil)
	f.do(t, http.MethodGet, "/api/arcgis/geocode?address=Denver", nil)

	w := f.do(t, http.MethodGet, "/api/journal", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		Total   int               `json:"total"`
		Lookups []*journal.Lookup `json:"lookups"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, 3, resp.Total)
	assert.Len(t, resp.Lookups, 3)

	w = f.do(t, http.MethodGet, "/api/journal?provider=arcgis&limit=10", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp.Lookups, 1)
	assert.Equal(t, journal.OpGeocodeAuthenticated, resp.Lookups[0].Operation)

	w = f.do(t, http.MethodGet, "/api/journal?provider=nobody", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"lookups":[]`)

	for _, target := range []string{"/api/journal?limit=0", "/api/journal?limit=9999", "/api/journal?offset=-1", "/api/journal?limit=x"} {
		w := f.do(t, http.MethodGet, target, nil)
		assert.Equal(t, http.StatusBadRequest, w.Code, target)
	}
}
