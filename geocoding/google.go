// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"go.uber.org/zap"
)

const (
	googleProvider = "google"
	googleBaseURL  = "https://maps.googleapis.com/maps/api"
)

// Google Maps body statuses.
const (
	googleStatusOK             = "OK"
	googleStatusZeroResults    = "ZERO_RESULTS"
	googleStatusOverQueryLimit = "OVER_QUERY_LIMIT"
	googleStatusOverDailyLimit = "OVER_DAILY_LIMIT"
	googleStatusRequestDenied  = "REQUEST_DENIED"
	googleStatusInvalidRequest = "INVALID_REQUEST"
	googleStatusUnknownError   = "UNKNOWN_ERROR"
)

// GoogleGeocoder uses the Google Maps Geocoding and Elevation APIs.
type GoogleGeocoder struct {
	apiKey     string
	format     string
	httpClient *http.Client
	logger     *zap.Logger
	// baseURL is overridable in tests.
	baseURL string
}

// NewGoogleGeocoder creates a new Google Maps geocoder.
func NewGoogleGeocoder(apiKey string, options *ClientOptions) *GoogleGeocoder {
	return &GoogleGeocoder{
		apiKey:     apiKey,
		format:     options.format("json"),
		httpClient: NewHTTPClient(options),
		logger:     options.logger().With(zap.String("provider", googleProvider)),
		baseURL:    googleBaseURL,
	}
}

type googleLatLng struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (l *googleLatLng) coordinate() (Coordinate, bool) {
	if l == nil || l.Lat == nil || l.Lng == nil {
		return Coordinate{}, false
	}

	return Coordinate{Latitude: *l.Lat, Longitude: *l.Lng}, true
}

type googleGeocodeResponse struct {
	Results []struct {
		Geometry struct {
			Location *googleLatLng `json:"location"`
		} `json:"geometry"`
		FormattedAddress string `json:"formatted_address"`
	} `json:"results"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

type googleElevationResponse struct {
	Results []struct {
		Elevation  *float64      `json:"elevation"`
		Location   *googleLatLng `json:"location"`
		Resolution float64       `json:"resolution"`
	} `json:"results"`
	Status       string `json:"status"`
	ErrorMessage string `json:"error_message"`
}

// classifyGoogleStatus maps the body status of a Google answer.
func classifyGoogleStatus(status, message string) *GeocodingError {
	var cause error
	if message != "" {
		cause = errors.New(message)
	}

	switch status {
	case googleStatusOK:
		return nil
	case googleStatusZeroResults:
		return newError(ErrorTypeZeroResults, cause)
	case googleStatusRequestDenied, googleStatusInvalidRequest:
		return newError(ErrorTypeValidationFailed, cause)
	case googleStatusOverQueryLimit:
		return newError(ErrorTypeRateLimit, cause)
	case googleStatusOverDailyLimit:
		return newError(ErrorTypeQuotaExceeded, cause)
	case googleStatusUnknownError:
		return newError(ErrorTypeTemporaryServerError, cause)
	case "":
		return typeErrorf("google maps response without status")
	default:
		return newError(ErrorTypeUnknownServerError, errors.New("google maps status: "+status))
	}
}

// Geocode returns the first location Google Maps finds for address.
func (g *GoogleGeocoder) Geocode(ctx context.Context, address string) Envelope[Coordinate] {
	return logFailure(g.logger, "geocode", Wrap(g.geocode(ctx, address)))
}

func (g *GoogleGeocoder) geocode(ctx context.Context, address string) (Coordinate, error) {
	params := url.Values{}
	params.Set("address", address)
	params.Set("key", g.apiKey)

	g.logger.Debug("geocoding", zap.String("address", address))

	var resp googleGeocodeResponse
	if err := getJSON(ctx, g.httpClient, g.baseURL+"/geocode/"+g.format, params, &resp); err != nil {
		return Coordinate{}, err
	}

	if err := classifyGoogleStatus(resp.Status, resp.ErrorMessage); err != nil {
		return Coordinate{}, err
	}

	if len(resp.Results) == 0 {
		return Coordinate{}, newError(ErrorTypeZeroResults, nil)
	}

	coord, ok := resp.Results[0].Geometry.Location.coordinate()
	if !ok {
		return Coordinate{}, typeErrorf("google maps result without geometry.location")
	}

	return coord, nil
}

// Elevation returns the altitude at lat/lng, along with the location as
// adjusted by Google.
func (g *GoogleGeocoder) Elevation(ctx context.Context, lat, lng float64) Envelope[Elevation] {
	return logFailure(g.logger, "elevation", Wrap(g.elevation(ctx, lat, lng)))
}

func (g *GoogleGeocoder) elevation(ctx context.Context, lat, lng float64) (Elevation, error) {
	params := url.Values{}
	params.Set("locations", strconv.FormatFloat(lat, 'f', -1, 64)+","+strconv.FormatFloat(lng, 'f', -1, 64))
	params.Set("key", g.apiKey)

	g.logger.Debug("elevation", zap.Float64("lat", lat), zap.Float64("lng", lng))

	var resp googleElevationResponse
	if err := getJSON(ctx, g.httpClient, g.baseURL+"/elevation/"+g.format, params, &resp); err != nil {
		return Elevation{}, err
	}

	if err := classifyGoogleStatus(resp.Status, resp.ErrorMessage); err != nil {
		return Elevation{}, err
	}

	if len(resp.Results) == 0 {
		return Elevation{}, newError(ErrorTypeZeroResults, nil)
	}

	result := resp.Results[0]

	coord, ok := result.Location.coordinate()
	if !ok || result.Elevation == nil {
		return Elevation{}, typeErrorf("google elevation result without location or elevation")
	}

	return Elevation{Coordinate: coord, Altitude: *result.Elevation}, nil
}

// GeocodeWithElevation geocodes address and then looks up the altitude of
// the location found. A failed geocode is returned unmodified.
func (g *GoogleGeocoder) GeocodeWithElevation(ctx context.Context, address string) Envelope[Elevation] {
	geo := g.Geocode(ctx, address)
	if !geo.Status {
		return Envelope[Elevation]{Message: geo.Message, err: geo.err}
	}

	return g.Elevation(ctx, geo.Result.Latitude, geo.Result.Longitude)
}

// Name implements Geocoder.
func (g *GoogleGeocoder) Name() string {
	return googleProvider
}
