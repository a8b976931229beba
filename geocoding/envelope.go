// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package geocoding wraps the Google Maps, HERE and ArcGIS geocoding services
// and normalizes their answers into an Envelope.
package geocoding

import "github.com/jcodagnone/geocoords/spatial"

// Coordinate is a latitude/longitude pair.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Point converts the coordinate to a spatial.Point.
func (c Coordinate) Point() spatial.Point {
	return spatial.Point{Lat: c.Latitude, Lng: c.Longitude}
}

// Elevation is a coordinate with its altitude in meters above sea level.
type Elevation struct {
	Coordinate
	Altitude float64 `json:"altitude"`
}

// Candidate is an entry as returned by ArcGIS, kept for callers that need
// more than the coordinate.
type Candidate struct {
	Address    string         `json:"address"`
	Location   CandidateXY    `json:"location"`
	Score      float64        `json:"score"`
	Attributes map[string]any `json:"attributes,omitempty"`
}

// CandidateXY is an ArcGIS location, x is the longitude and y the latitude.
type CandidateXY struct {
	X esriNumber `json:"x"`
	Y esriNumber `json:"y"`
}

// Match is the first authenticated ArcGIS candidate plus every candidate.
type Match struct {
	Coordinate
	AllResults []Candidate `json:"all_results"`
}

// BatchResult holds one coordinate per input address, in input order.
type BatchResult struct {
	Coordinates []Coordinate `json:"lat_lng_list"`
	// Unmatched lists the input indexes the provider could not resolve. Their
	// coordinate is the zero value.
	Unmatched  []int       `json:"unmatched,omitempty"`
	AllResults []Candidate `json:"all_results"`
}

// Envelope is the uniform {status, message, result} answer of every lookup.
// Status true implies a nil Message, status false implies a nil Result.
type Envelope[T any] struct {
	Status  bool    `json:"status"`
	Message *string `json:"message"`
	Result  *T      `json:"result"`

	err *GeocodingError
}

// Success builds a successful envelope.
func Success[T any](v T) Envelope[T] {
	return Envelope[T]{Status: true, Result: &v}
}

// Failure builds a failed envelope from any error, classifying it first.
func Failure[T any](err error) Envelope[T] {
	geoErr := ClassifyTransportError(err)
	if geoErr == nil {
		geoErr = newError(ErrorTypeUnknownServerError, nil)
	}

	msg := geoErr.Message

	return Envelope[T]{Message: &msg, err: geoErr}
}

// Wrap turns a (value, error) pair into an envelope.
func Wrap[T any](v T, err error) Envelope[T] {
	if err != nil {
		return Failure[T](err)
	}

	return Success(v)
}

// Ok reports whether the lookup succeeded.
func (e Envelope[T]) Ok() bool {
	return e.Status
}

// Err returns the classified failure, or nil on success.
func (e Envelope[T]) Err() error {
	if e.Status {
		return nil
	}

	if e.err != nil {
		return e.err
	}

	// envelopes decoded from JSON lose their classification
	return &GeocodingError{Type: ErrorTypeUnknown, Message: e.MessageText()}
}

// ErrorType returns the failure kind, ErrorTypeUnknown on success.
func (e Envelope[T]) ErrorType() ErrorType {
	if e.err == nil {
		return ErrorTypeUnknown
	}

	return e.err.Type
}

// MessageText returns the message or an empty string.
func (e Envelope[T]) MessageText() string {
	if e.Message == nil {
		return ""
	}

	return *e.Message
}
