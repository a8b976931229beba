// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"net/http"
	"net/url"

	"go.uber.org/zap"
)

const (
	hereProvider = "here"
	hereBaseURL  = "https://geocode.search.hereapi.com/v1/geocode"
)

// HereGeocoder uses the HERE Geocoding & Search API.
type HereGeocoder struct {
	apiKey     string
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
}

// NewHereGeocoder creates a new HERE geocoder.
func NewHereGeocoder(apiKey string, options *ClientOptions) *HereGeocoder {
	return &HereGeocoder{
		apiKey:     apiKey,
		httpClient: NewHTTPClient(options),
		logger:     options.logger().With(zap.String("provider", hereProvider)),
		baseURL:    hereBaseURL,
	}
}

type hereResponse struct {
	// nil when the field is missing, which is a malformed answer
	Items *[]struct {
		Title    string `json:"title"`
		Position *struct {
			Lat *float64 `json:"lat"`
			Lng *float64 `json:"lng"`
		} `json:"position"`
	} `json:"items"`
}

// Geocode returns the first position HERE finds for address.
func (h *HereGeocoder) Geocode(ctx context.Context, address string) Envelope[Coordinate] {
	return logFailure(h.logger, "geocode", Wrap(h.geocode(ctx, address)))
}

func (h *HereGeocoder) geocode(ctx context.Context, address string) (Coordinate, error) {
	params := url.Values{}
	params.Set("q", address)
	params.Set("apiKey", h.apiKey)

	h.logger.Debug("geocoding", zap.String("address", address))

	var resp hereResponse
	if err := getJSON(ctx, h.httpClient, h.baseURL, params, &resp); err != nil {
		return Coordinate{}, err
	}

	if resp.Items == nil {
		return Coordinate{}, typeErrorf("here response without items")
	}

	items := *resp.Items
	if len(items) == 0 {
		return Coordinate{}, newError(ErrorTypeNoResultsFound, nil)
	}

	pos := items[0].Position
	if pos == nil || pos.Lat == nil || pos.Lng == nil {
		return Coordinate{}, typeErrorf("here item without position")
	}

	return Coordinate{Latitude: *pos.Lat, Longitude: *pos.Lng}, nil
}

// Name implements Geocoder.
func (h *HereGeocoder) Name() string {
	return hereProvider
}
