// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"net/url"
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"
)

var arcgisKnown = map[string][2]float64{
	"380 New York St, Redlands, CA": {-117.19568, 34.05703},
	"Albany, NY":                    {-73.75623, 42.65155},
	"Boston, MA":                    {-71.05977, 42.35843},
	"Denver, CO":                    {-104.98470, 39.73915},
	"Colombo, Sri Lanka":            {79.85751, 6.92148},
}

// arcgisFake serves the geocode server and the portal from one listener.
type arcgisFake struct {
	t *testing.T

	mu             sync.Mutex
	candidatesBody string
	tokenBody      string
	status         int
	tokenCalls     int
	oauthCalls     int
	batchSizes     []int
	queries        []url.Values
	tokensSeen     []string
	oauthForm      url.Values
}

func newArcGISFake(t *testing.T) (*arcgisFake, *httptest.Server) {
	t.Helper()

	f := &arcgisFake{
		t:         t,
		status:    http.StatusOK,
		tokenBody: fmt.Sprintf(`{"token": "user-token", "expires": %d, "ssl": true}`, time.Now().Add(time.Hour).UnixMilli()),
	}

	srv := httptest.NewServer(f)
	t.Cleanup(srv.Close)

	return f, srv
}

func (f *arcgisFake) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	if err := r.ParseForm(); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	switch r.URL.Path {
	case "/generateToken":
		f.tokenCalls++
		assert.Equal(f.t, http.MethodPost, r.Method)
		assert.Equal(f.t, "60", r.PostForm.Get("expiration"))
		_, _ = w.Write([]byte(f.tokenBody))
	case "/oauth2/token":
		f.oauthCalls++
		f.oauthForm = r.PostForm
		_, _ = w.Write([]byte(`{"access_token": "app-token", "expires_in": 7200, "token_type": "bearer"}`))
	case "/findAddressCandidates":
		f.queries = append(f.queries, r.URL.Query())
		w.WriteHeader(f.status)
		_, _ = w.Write([]byte(f.candidatesBody))
	case "/geocodeAddresses":
		f.tokensSeen = append(f.tokensSeen, r.PostForm.Get("token"))
		f.geocodeAddresses(w, r.PostForm.Get("addresses"))
	default:
		http.NotFound(w, r)
	}
}

// geocodeAddresses answers in reverse order, the way ArcGIS does not
// guarantee input order.
func (f *arcgisFake) geocodeAddresses(w http.ResponseWriter, payload string) {
	var req struct {
		Records []struct {
			Attributes struct {
				ObjectID   int    `json:"OBJECTID"`
				SingleLine string `json:"SingleLine"`
			} `json:"attributes"`
		} `json:"records"`
	}

	if !assert.NoError(f.t, json.Unmarshal([]byte(payload), &req)) {
		w.WriteHeader(http.StatusBadRequest)

		return
	}

	f.batchSizes = append(f.batchSizes, len(req.Records))

	locations := make([]map[string]any, 0, len(req.Records))
	for _, rec := range slices.Backward(req.Records) {
		attrs := map[string]any{"ResultID": rec.Attributes.ObjectID}

		xy, ok := arcgisKnown[rec.Attributes.SingleLine]
		if !ok {
			attrs["Status"] = "U"
			locations = append(locations, map[string]any{
				"address":    "",
				"location":   map[string]any{"x": "NaN", "y": "NaN"},
				"score":      0,
				"attributes": attrs,
			})

			continue
		}

		attrs["Status"] = "M"
		locations = append(locations, map[string]any{
			"address":    rec.Attributes.SingleLine,
			"location":   map[string]any{"x": xy[0], "y": xy[1]},
			"score":      100,
			"attributes": attrs,
		})
	}

	_ = json.NewEncoder(w).Encode(map[string]any{"locations": locations})
}

func newTestArcGIS(t *testing.T, srv *httptest.Server, creds ArcGISCredentials) *ArcGISGeocoder {
	t.Helper()

	a := NewArcGISGeocoder(creds, testOptions(t))
	a.baseURL = srv.URL
	a.portalURL = srv.URL

	return a
}

var userCreds = ArcGISCredentials{Username: "jdoe", Password: "secret"}

func TestArcGISGeocode(t *testing.T) {
	fake, srv := newArcGISFake(t)
	fake.candidatesBody = `{
	  "spatialReference": {"wkid": 4326, "latestWkid": 4326},
	  "candidates": [
	    {"address": "Colombo, Western Province, LKA", "location": {"x": 79.85751, "y": 6.92148}, "score": 100, "attributes": {}}
	  ]
	}`

	a := newTestArcGIS(t, srv, ArcGISCredentials{})

	env := a.Geocode(context.Background(), "Colombo, Sri Lanka")
	assertEnvelope(t, env, true, "")
	assertCoordinate(t, *env.Result, Coordinate{Latitude: 6.92148, Longitude: 79.85751})

	require.Len(t, fake.queries, 1)
	q := fake.queries[0]
	assert.Equal(t, "Colombo, Sri Lanka", q.Get("singleLine"))
	assert.Equal(t, "json", q.Get("f"))
	assert.False(t, q.Has("token"), "anonymous geocode must not log in")
	assert.Equal(t, 0, fake.tokenCalls)
}

func TestArcGISGeocodeFailures(t *testing.T) {
	tests := []struct {
		name     string
		status   int
		body     string
		wantType ErrorType
		wantMsg  string
	}{
		{
			name:     "no candidates",
			status:   http.StatusOK,
			body:     `{"candidates": []}`,
			wantType: ErrorTypeNoResultsFound,
			wantMsg:  "Unknown Location. No Results Found",
		},
		{
			name:     "missing candidates",
			status:   http.StatusOK,
			body:     `{"spatialReference": {"wkid": 4326}}`,
			wantType: ErrorTypeTypeError,
			wantMsg:  "Type Error",
		},
		{
			name:     "candidate without location",
			status:   http.StatusOK,
			body:     `{"candidates": [{"address": "x", "score": 10}]}`,
			wantType: ErrorTypeTypeError,
			wantMsg:  "Type Error",
		},
		{
			name:     "embedded bad request",
			status:   http.StatusOK,
			body:     `{"error": {"code": 400, "message": "Unable to complete operation.", "details": ["'singleLine' is required"]}}`,
			wantType: ErrorTypeValidationFailed,
			wantMsg:  "Request Failed Validation. Please Check your API key",
		},
		{
			name:     "embedded invalid token",
			status:   http.StatusOK,
			body:     `{"error": {"code": 498, "message": "Invalid Token", "details": []}}`,
			wantType: ErrorTypeValidationFailed,
			wantMsg:  "Request Failed Validation. Please Check your API key",
		},
		{
			name:     "embedded unavailable",
			status:   http.StatusOK,
			body:     `{"error": {"code": 503, "message": "Service unavailable"}}`,
			wantType: ErrorTypeTemporaryServerError,
			wantMsg:  "Temporary Server Error. Please Check back again in a short while",
		},
		{
			name:     "embedded internal error",
			status:   http.StatusOK,
			body:     `{"error": {"code": 500, "message": "Internal error"}}`,
			wantType: ErrorTypeUnknownServerError,
			wantMsg:  "Some Unknown Error Occurred While Sending Request To Server",
		},
		{
			name:     "http 503",
			status:   http.StatusServiceUnavailable,
			body:     ``,
			wantType: ErrorTypeTemporaryServerError,
			wantMsg:  "Temporary Server Error. Please Check back again in a short while",
		},
		{
			name:     "http 400",
			status:   http.StatusBadRequest,
			body:     ``,
			wantType: ErrorTypeValidationFailed,
			wantMsg:  "Request Failed Validation. Please Check your API key",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newArcGISFake(t)
			fake.status = tt.status
			fake.candidatesBody = tt.body

			a := newTestArcGIS(t, srv, ArcGISCredentials{})

			env := a.Geocode(context.Background(), "Nowhere")
			assertEnvelope(t, env, false, tt.wantMsg)
			assert.Equal(t, tt.wantType, env.ErrorType())
		})
	}
}

func TestArcGISGeocodeAuthenticated(t *testing.T) {
	fake, srv := newArcGISFake(t)
	fake.candidatesBody = `{
	  "candidates": [
	    {"address": "380 New York St, Redlands, California, 92373", "location": {"x": -117.19568, "y": 34.05703}, "score": 100, "attributes": {"Addr_type": "PointAddress"}},
	    {"address": "New York St, Redlands, California, 92373", "location": {"x": -117.1961, "y": 34.0566}, "score": 98.5, "attributes": {"Addr_type": "StreetName"}}
	  ]
	}`

	a := newTestArcGIS(t, srv, userCreds)

	env := a.GeocodeAuthenticated(context.Background(), "380 New York St, Redlands, CA")
	assertEnvelope(t, env, true, "")
	assertCoordinate(t, env.Result.Coordinate, Coordinate{Latitude: 34.05703, Longitude: -117.19568})
	require.Len(t, env.Result.AllResults, 2)
	assert.Equal(t, "StreetName", env.Result.AllResults[1].Attributes["Addr_type"])
	assert.InDelta(t, 98.5, env.Result.AllResults[1].Score, 1e-9)

	q := fake.queries[0]
	assert.Equal(t, "user-token", q.Get("token"))
	assert.Equal(t, "*", q.Get("outFields"))
	assert.Equal(t, "20", q.Get("maxLocations"))

	// the token is reused
	env = a.GeocodeAuthenticated(context.Background(), "380 New York St, Redlands, CA")
	assertEnvelope(t, env, true, "")
	assert.Equal(t, 1, fake.tokenCalls)
}

func TestArcGISMissingCredentials(t *testing.T) {
	tests := []struct {
		name  string
		creds ArcGISCredentials
	}{
		{name: "none", creds: ArcGISCredentials{}},
		{name: "username only", creds: ArcGISCredentials{Username: "jdoe"}},
		{name: "password only", creds: ArcGISCredentials{Password: "secret"}},
		{name: "client id only", creds: ArcGISCredentials{ClientID: "app"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newArcGISFake(t)
			a := newTestArcGIS(t, srv, tt.creds)

			env := a.GeocodeAuthenticated(context.Background(), "Denver, CO")
			assertEnvelope(t, env, false, "Username or Password is not Set")
			assert.Equal(t, ErrorTypeMissingCredentials, env.ErrorType())

			batch := a.BatchGeocodeAuthenticated(context.Background(), []string{"Denver, CO"})
			assertEnvelope(t, batch, false, "Username or Password is not Set")

			assert.Equal(t, 0, fake.tokenCalls)
			assert.Empty(t, fake.queries)
			assert.Empty(t, fake.batchSizes)
		})
	}
}

func TestArcGISBadLogin(t *testing.T) {
	fake, srv := newArcGISFake(t)
	fake.tokenBody = `{"error": {"code": 400, "message": "Unable to generate token.", "details": ["Invalid username or password."]}}`

	a := newTestArcGIS(t, srv, userCreds)

	env := a.GeocodeAuthenticated(context.Background(), "Denver, CO")
	assertEnvelope(t, env, false, "Request Failed Validation. Please Check your API key")
	assert.True(t, IsValidationError(env.Err()))
	assert.Empty(t, fake.queries)
}

func TestArcGISApplicationLogin(t *testing.T) {
	fake, srv := newArcGISFake(t)
	fake.candidatesBody = `{"candidates": [{"address": "Denver, Colorado", "location": {"x": -104.9847, "y": 39.73915}, "score": 100}]}`

	a := newTestArcGIS(t, srv, ArcGISCredentials{ClientID: "app-id", ClientSecret: "app-secret"})

	env := a.GeocodeAuthenticated(context.Background(), "Denver, CO")
	assertEnvelope(t, env, true, "")

	assert.Equal(t, 1, fake.oauthCalls)
	assert.Equal(t, 0, fake.tokenCalls)
	assert.Equal(t, "client_credentials", fake.oauthForm.Get("grant_type"))
	assert.Equal(t, "app-id", fake.oauthForm.Get("client_id"))
	assert.Equal(t, "app-secret", fake.oauthForm.Get("client_secret"))
	assert.Equal(t, "app-token", fake.queries[0].Get("token"))
}

func TestArcGISLoginHonorsContext(t *testing.T) {
	tests := []struct {
		name  string
		creds ArcGISCredentials
	}{
		{name: "user login", creds: userCreds},
		{name: "application login", creds: ArcGISCredentials{ClientID: "app-id", ClientSecret: "app-secret"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fake, srv := newArcGISFake(t)
			fake.candidatesBody = `{"candidates": [{"address": "Denver, Colorado", "location": {"x": -104.9847, "y": 39.73915}, "score": 100}]}`

			a := newTestArcGIS(t, srv, tt.creds)

			ctx, cancel := context.WithCancel(context.Background())
			cancel()

			env := a.GeocodeAuthenticated(ctx, "Denver, CO")
			assertEnvelope(t, env, false, "Connection Error")

			batch := a.BatchGeocodeAuthenticated(ctx, []string{"Denver, CO"})
			assertEnvelope(t, batch, false, "Connection Error")

			assert.Equal(t, 0, fake.tokenCalls)
			assert.Equal(t, 0, fake.oauthCalls)
			assert.Empty(t, fake.queries)

			// a live context logs in afterwards
			env = a.GeocodeAuthenticated(context.Background(), "Denver, CO")
			assertEnvelope(t, env, true, "")
			assert.Equal(t, 1, fake.tokenCalls+fake.oauthCalls)
		})
	}
}

func TestArcGISBatchGeocode(t *testing.T) {
	fake, srv := newArcGISFake(t)
	a := newTestArcGIS(t, srv, userCreds)

	env := a.BatchGeocodeAuthenticated(context.Background(), []string{"Albany, NY", "Boston, MA", "Denver, CO"})
	assertEnvelope(t, env, true, "")

	want := []Coordinate{
		{Latitude: 42.65155, Longitude: -73.75623},
		{Latitude: 42.35843, Longitude: -71.05977},
		{Latitude: 39.73915, Longitude: -104.98470},
	}
	if diff := cmp.Diff(want, env.Result.Coordinates, approx); diff != "" {
		t.Errorf("coordinates mismatch (-want +got):\n%s", diff)
	}

	assert.Empty(t, env.Result.Unmatched)
	require.Len(t, env.Result.AllResults, 3)
	assert.Equal(t, "Boston, MA", env.Result.AllResults[1].Address)
	assert.Equal(t, []string{"user-token"}, fake.tokensSeen)
}

func TestArcGISBatchGeocodeUnmatched(t *testing.T) {
	_, srv := newArcGISFake(t)
	a := newTestArcGIS(t, srv, userCreds)

	env := a.BatchGeocodeAuthenticated(context.Background(), []string{"Albany, NY", "Xyzzy", "Denver, CO"})
	assertEnvelope(t, env, true, "")

	assert.Equal(t, []int{1}, env.Result.Unmatched)
	assert.Equal(t, Coordinate{}, env.Result.Coordinates[1])
	assertCoordinate(t, env.Result.Coordinates[2], Coordinate{Latitude: 39.73915, Longitude: -104.98470})

	// unmatched locations come back as null
	b, err := json.Marshal(env.Result.AllResults[1].Location)
	require.NoError(t, err)
	assert.JSONEq(t, `{"x": null, "y": null}`, string(b))
}

func TestArcGISBatchGeocodeNothingMatched(t *testing.T) {
	_, srv := newArcGISFake(t)
	a := newTestArcGIS(t, srv, userCreds)

	env := a.BatchGeocodeAuthenticated(context.Background(), []string{"Xyzzy", "Plugh"})
	assertEnvelope(t, env, false, "Unknown Location. No Results Found")
}

func TestArcGISBatchGeocodeEmpty(t *testing.T) {
	fake, srv := newArcGISFake(t)
	a := newTestArcGIS(t, srv, userCreds)

	env := a.BatchGeocodeAuthenticated(context.Background(), nil)
	assertEnvelope(t, env, false, "Unknown Location. No Results Found")
	assert.Equal(t, 0, fake.tokenCalls)
}

func TestArcGISBatchGeocodeChunks(t *testing.T) {
	fake, srv := newArcGISFake(t)
	a := newTestArcGIS(t, srv, userCreds)
	a.MaxBatchSize = 2

	addresses := []string{"Albany, NY", "Boston, MA", "Denver, CO", "Colombo, Sri Lanka", "380 New York St, Redlands, CA"}

	env := a.BatchGeocodeAuthenticated(context.Background(), addresses)
	assertEnvelope(t, env, true, "")

	assert.Equal(t, []int{2, 2, 1}, fake.batchSizes)
	assert.Equal(t, 1, fake.tokenCalls)
	require.Len(t, env.Result.Coordinates, len(addresses))

	for i, address := range addresses {
		xy := arcgisKnown[address]
		assertCoordinate(t, env.Result.Coordinates[i], Coordinate{Latitude: xy[1], Longitude: xy[0]})
	}
}

func TestArcGISBatchResultIDOutOfRange(t *testing.T) {
	srv := newFixtureServer(t, http.StatusOK, `{"locations": [{"location": {"x": 1, "y": 2}, "attributes": {"ResultID": 7}}]}`)

	a := NewArcGISGeocoder(userCreds, testOptions(t))
	a.baseURL = srv.URL
	a.cachedToken = &oauth2.Token{AccessToken: "t"}

	env := a.BatchGeocodeAuthenticated(context.Background(), []string{"a"})
	assertEnvelope(t, env, false, "Type Error")
}

func TestEsriNumber(t *testing.T) {
	tests := []struct {
		in      string
		want    float64
		wantNaN bool
		wantErr bool
	}{
		{in: `12.5`, want: 12.5},
		{in: `-117.19568`, want: -117.19568},
		{in: `"NaN"`, wantNaN: true},
		{in: `null`, wantNaN: true},
		{in: `"12"`, want: 12},
		{in: `"north"`, wantErr: true},
		{in: `true`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			var n esriNumber

			err := json.Unmarshal([]byte(tt.in), &n)
			if tt.wantErr {
				assert.Error(t, err)

				return
			}

			require.NoError(t, err)

			if tt.wantNaN {
				assert.True(t, math.IsNaN(float64(n)))
			} else {
				assert.InDelta(t, tt.want, float64(n), 1e-9)
			}
		})
	}
}
