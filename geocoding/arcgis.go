// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
)

const (
	arcgisProvider = "arcgis"
	arcgisBaseURL  = "https://geocode.arcgis.com/arcgis/rest/services/World/GeocodeServer"

	// DefaultMaxBatchSize is the number of addresses sent per geocodeAddresses
	// request.
	DefaultMaxBatchSize = 150
	// maxLocations returned by an authenticated findAddressCandidates.
	maxLocations = 20
	// batch entries with this status were not matched.
	unmatchedStatus = "U"
)

// esriNumber is a coordinate as ArcGIS encodes it: a number, null, or the
// string "NaN" for unmatched batch entries.
type esriNumber float64

// UnmarshalJSON implements json.Unmarshaler.
func (n *esriNumber) UnmarshalJSON(b []byte) error {
	s := string(bytes.Trim(b, `"`))
	if s == "null" || s == "" || strings.EqualFold(s, "nan") {
		*n = esriNumber(math.NaN())

		return nil
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return &json.UnmarshalTypeError{Value: string(b), Type: reflect.TypeFor[float64]()}
	}

	*n = esriNumber(f)

	return nil
}

// MarshalJSON implements json.Marshaler, NaN is encoded as null.
func (n esriNumber) MarshalJSON() ([]byte, error) {
	f := float64(n)
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return []byte("null"), nil
	}

	return []byte(strconv.FormatFloat(f, 'f', -1, 64)), nil
}

// valid reports whether the location holds a usable coordinate.
func (xy *CandidateXY) valid() bool {
	return xy != nil && !math.IsNaN(float64(xy.X)) && !math.IsNaN(float64(xy.Y))
}

// Coordinate converts x/y into longitude/latitude.
func (xy CandidateXY) Coordinate() Coordinate {
	return Coordinate{Latitude: float64(xy.Y), Longitude: float64(xy.X)}
}

// esriCandidate is a candidate as decoded, the location is a pointer so a
// missing one can be told apart from (0, 0).
type esriCandidate struct {
	Address    string         `json:"address"`
	Location   *CandidateXY   `json:"location"`
	Score      float64        `json:"score"`
	Attributes map[string]any `json:"attributes"`
}

func (c esriCandidate) candidate() Candidate {
	out := Candidate{Address: c.Address, Score: c.Score, Attributes: c.Attributes}
	if c.Location != nil {
		out.Location = *c.Location
	} else {
		out.Location = CandidateXY{X: esriNumber(math.NaN()), Y: esriNumber(math.NaN())}
	}

	return out
}

type findCandidatesResponse struct {
	Candidates *[]esriCandidate `json:"candidates"`
	Error      *esriError       `json:"error"`
}

type geocodeAddressesResponse struct {
	Locations *[]esriCandidate `json:"locations"`
	Error     *esriError       `json:"error"`
}

type batchRecord struct {
	Attributes batchAttributes `json:"attributes"`
}

type batchAttributes struct {
	ObjectID   int    `json:"OBJECTID"`
	SingleLine string `json:"SingleLine"`
}

// ArcGISGeocoder uses the ArcGIS World Geocoding Service, anonymously or
// with an ArcGIS account.
type ArcGISGeocoder struct {
	// MaxBatchSize caps the addresses per geocodeAddresses request, defaults
	// to DefaultMaxBatchSize.
	MaxBatchSize int

	creds      ArcGISCredentials
	format     string
	httpClient *http.Client
	logger     *zap.Logger
	baseURL    string
	portalURL  string

	tokenMu sync.Mutex
	// cachedToken is the last login, reused until it expires.
	cachedToken *oauth2.Token
}

// NewArcGISGeocoder creates a new ArcGIS geocoder. Credentials are only
// needed by the authenticated calls.
func NewArcGISGeocoder(creds ArcGISCredentials, options *ClientOptions) *ArcGISGeocoder {
	return &ArcGISGeocoder{
		MaxBatchSize: DefaultMaxBatchSize,
		creds:        creds,
		format:       options.format("json", "pjson"),
		httpClient:   NewHTTPClient(options),
		logger:       options.logger().With(zap.String("provider", arcgisProvider)),
		baseURL:      arcgisBaseURL,
		portalURL:    arcgisPortalURL,
	}
}

// Name implements Geocoder.
func (a *ArcGISGeocoder) Name() string {
	return arcgisProvider
}

// Geocode returns the first candidate for address, without logging in.
func (a *ArcGISGeocoder) Geocode(ctx context.Context, address string) Envelope[Coordinate] {
	return logFailure(a.logger, "geocode", Wrap(a.geocode(ctx, address)))
}

func (a *ArcGISGeocoder) geocode(ctx context.Context, address string) (Coordinate, error) {
	params := url.Values{}
	params.Set("f", a.format)
	params.Set("singleLine", address)

	a.logger.Debug("geocoding", zap.String("address", address))

	candidates, err := a.findCandidates(ctx, params)
	if err != nil {
		return Coordinate{}, err
	}

	if !candidates[0].Location.valid() {
		return Coordinate{}, typeErrorf("arcgis candidate without location")
	}

	return candidates[0].Location.Coordinate(), nil
}

// findCandidates returns at least one candidate or an error.
func (a *ArcGISGeocoder) findCandidates(ctx context.Context, params url.Values) ([]esriCandidate, error) {
	var resp findCandidatesResponse
	if err := getJSON(ctx, a.httpClient, a.baseURL+"/findAddressCandidates", params, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, resp.Error.classify()
	}

	if resp.Candidates == nil {
		return nil, typeErrorf("arcgis response without candidates")
	}

	if len(*resp.Candidates) == 0 {
		return nil, newError(ErrorTypeNoResultsFound, nil)
	}

	return *resp.Candidates, nil
}

// token returns the cached token, logging in on ctx when there is none or
// it expired.
func (a *ArcGISGeocoder) token(ctx context.Context) (string, error) {
	src := newTokenSource(ctx, a.creds, a.portalURL, a.httpClient)
	if src == nil {
		return "", newError(ErrorTypeMissingCredentials, nil)
	}

	a.tokenMu.Lock()
	defer a.tokenMu.Unlock()

	if !a.cachedToken.Valid() {
		if err := ctx.Err(); err != nil {
			return "", ClassifyTransportError(err)
		}
	}

	tok, err := oauth2.ReuseTokenSource(a.cachedToken, src).Token()
	if err != nil {
		return "", classifyTokenError(err)
	}

	a.cachedToken = tok

	return tok.AccessToken, nil
}

// GeocodeAuthenticated logs in and returns the first candidate for address
// together with every candidate found.
func (a *ArcGISGeocoder) GeocodeAuthenticated(ctx context.Context, address string) Envelope[Match] {
	return logFailure(a.logger, "geocode_authenticated", Wrap(a.geocodeAuthenticated(ctx, address)))
}

func (a *ArcGISGeocoder) geocodeAuthenticated(ctx context.Context, address string) (Match, error) {
	token, err := a.token(ctx)
	if err != nil {
		return Match{}, err
	}

	params := url.Values{}
	params.Set("f", a.format)
	params.Set("singleLine", address)
	params.Set("outFields", "*")
	params.Set("maxLocations", strconv.Itoa(maxLocations))
	params.Set("token", token)

	a.logger.Debug("geocoding with login", zap.String("address", address))

	candidates, err := a.findCandidates(ctx, params)
	if err != nil {
		return Match{}, err
	}

	if !candidates[0].Location.valid() {
		return Match{}, typeErrorf("arcgis candidate without location")
	}

	all := make([]Candidate, len(candidates))
	for i, c := range candidates {
		all[i] = c.candidate()
	}

	return Match{Coordinate: candidates[0].Location.Coordinate(), AllResults: all}, nil
}

// BatchGeocodeAuthenticated logs in and geocodes every address. The result
// keeps the input order; addresses ArcGIS could not match are listed in
// BatchResult.Unmatched.
func (a *ArcGISGeocoder) BatchGeocodeAuthenticated(ctx context.Context, addresses []string) Envelope[BatchResult] {
	return logFailure(a.logger, "batch_geocode_authenticated", Wrap(a.batchGeocode(ctx, addresses)))
}

func (a *ArcGISGeocoder) batchGeocode(ctx context.Context, addresses []string) (BatchResult, error) {
	if len(addresses) == 0 {
		return BatchResult{}, newError(ErrorTypeNoResultsFound, nil)
	}

	token, err := a.token(ctx)
	if err != nil {
		return BatchResult{}, err
	}

	batchSize := a.MaxBatchSize
	if batchSize <= 0 {
		batchSize = DefaultMaxBatchSize
	}

	result := BatchResult{
		Coordinates: make([]Coordinate, len(addresses)),
		AllResults:  make([]Candidate, len(addresses)),
	}

	matched := 0

	for start := 0; start < len(addresses); start += batchSize {
		end := min(start+batchSize, len(addresses))

		a.logger.Debug("batch geocoding",
			zap.Int("from", start),
			zap.Int("to", end),
			zap.Int("total", len(addresses)),
		)

		entries, err := a.geocodeAddresses(ctx, token, addresses[start:end])
		if err != nil {
			return BatchResult{}, err
		}

		for i, entry := range entries {
			idx := start + i
			result.AllResults[idx] = entry.candidate()

			if entry.Location.valid() && matchStatus(entry) != unmatchedStatus {
				result.Coordinates[idx] = entry.Location.Coordinate()
				matched++
			} else {
				result.Unmatched = append(result.Unmatched, idx)
			}
		}
	}

	if matched == 0 {
		return BatchResult{}, newError(ErrorTypeNoResultsFound, nil)
	}

	return result, nil
}

// geocodeAddresses sends one geocodeAddresses request and returns an entry
// per address, in the order of addresses. Missing entries have no location.
func (a *ArcGISGeocoder) geocodeAddresses(ctx context.Context, token string, addresses []string) ([]esriCandidate, error) {
	records := make([]batchRecord, len(addresses))
	for i, address := range addresses {
		records[i] = batchRecord{Attributes: batchAttributes{ObjectID: i + 1, SingleLine: address}}
	}

	payload, err := json.Marshal(map[string][]batchRecord{"records": records})
	if err != nil {
		return nil, fmt.Errorf("encoding addresses: %w", err)
	}

	form := url.Values{}
	form.Set("f", a.format)
	form.Set("token", token)
	form.Set("addresses", string(payload))

	var resp geocodeAddressesResponse
	if err := postFormJSON(ctx, a.httpClient, a.baseURL+"/geocodeAddresses", form, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, resp.Error.classify()
	}

	if resp.Locations == nil {
		return nil, typeErrorf("arcgis batch response without locations")
	}

	ordered := make([]esriCandidate, len(addresses))
	for i, entry := range *resp.Locations {
		idx := i
		if id, ok := resultID(entry); ok {
			idx = id - 1
		}

		if idx < 0 || idx >= len(ordered) {
			return nil, typeErrorf("arcgis batch result id %d out of range", idx+1)
		}

		ordered[idx] = entry
	}

	return ordered, nil
}

// resultID returns the OBJECTID an entry answers to.
func resultID(c esriCandidate) (int, bool) {
	v, ok := c.Attributes["ResultID"]
	if !ok {
		return 0, false
	}

	switch id := v.(type) {
	case float64:
		return int(id), true
	case string:
		n, err := strconv.Atoi(id)

		return n, err == nil
	default:
		return 0, false
	}
}

func matchStatus(c esriCandidate) string {
	s, _ := c.Attributes["Status"].(string)

	return s
}
