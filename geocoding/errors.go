// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
)

// GeocodingError represents a classified geocoding failure.
type GeocodingError struct {
	Type    ErrorType
	Message string
	Err     error
}

// ErrorType defines the kinds of geocoding failures.
type ErrorType int

const (
	// ErrorTypeUnknown catch-all, carries the original error text.
	ErrorTypeUnknown ErrorType = iota
	// ErrorTypeZeroResults the provider answered ZERO_RESULTS.
	ErrorTypeZeroResults
	// ErrorTypeNoResultsFound the provider answered with an empty result list.
	ErrorTypeNoResultsFound
	// ErrorTypeValidationFailed bad key or bad request.
	ErrorTypeValidationFailed
	// ErrorTypeTemporaryServerError the provider is temporarily unavailable.
	ErrorTypeTemporaryServerError
	// ErrorTypeUnknownServerError any other unexpected provider status.
	ErrorTypeUnknownServerError
	// ErrorTypeConnectionError the request never completed.
	ErrorTypeConnectionError
	// ErrorTypeTypeError malformed or unexpected response shape.
	ErrorTypeTypeError
	// ErrorTypeRateLimit the provider throttled the request.
	ErrorTypeRateLimit
	// ErrorTypeQuotaExceeded the daily quota is exhausted.
	ErrorTypeQuotaExceeded
	// ErrorTypeMissingCredentials an authenticated call without credentials.
	ErrorTypeMissingCredentials
)

var errorTypeNames = map[ErrorType]string{
	ErrorTypeUnknown:              "unknown",
	ErrorTypeZeroResults:          "zero_results",
	ErrorTypeNoResultsFound:       "no_results_found",
	ErrorTypeValidationFailed:     "validation_failed",
	ErrorTypeTemporaryServerError: "temporary_server_error",
	ErrorTypeUnknownServerError:   "unknown_server_error",
	ErrorTypeConnectionError:      "connection_error",
	ErrorTypeTypeError:            "type_error",
	ErrorTypeRateLimit:            "rate_limit",
	ErrorTypeQuotaExceeded:        "quota_exceeded",
	ErrorTypeMissingCredentials:   "missing_credentials",
}

func (t ErrorType) String() string {
	if name, ok := errorTypeNames[t]; ok {
		return name
	}

	return fmt.Sprintf("ErrorType(%d)", int(t))
}

// Messages reported in failure envelopes. Callers match on these strings, so
// they must not change.
const (
	MsgZeroResults          = "Zero Results"
	MsgNoResultsFound       = "Unknown Location. No Results Found"
	MsgValidationFailed     = "Request Failed Validation. Please Check your API key"
	MsgTemporaryServerError = "Temporary Server Error. Please Check back again in a short while"
	MsgUnknownServerError   = "Some Unknown Error Occurred While Sending Request To Server"
	MsgConnectionError      = "Connection Error"
	MsgTypeError            = "Type Error"
	MsgRateLimit            = "Rate Limit Exceeded. Please Slow Down Your Requests"
	MsgQuotaExceeded        = "Daily Quota Exceeded. Please Check your Billing Settings"
	MsgMissingCredentials   = "Username or Password is not Set"
	msgUnknownFormat        = "Unknown Error Occurred, Error: %v"
)

var fixedMessages = map[ErrorType]string{
	ErrorTypeZeroResults:          MsgZeroResults,
	ErrorTypeNoResultsFound:       MsgNoResultsFound,
	ErrorTypeValidationFailed:     MsgValidationFailed,
	ErrorTypeTemporaryServerError: MsgTemporaryServerError,
	ErrorTypeUnknownServerError:   MsgUnknownServerError,
	ErrorTypeConnectionError:      MsgConnectionError,
	ErrorTypeTypeError:            MsgTypeError,
	ErrorTypeRateLimit:            MsgRateLimit,
	ErrorTypeQuotaExceeded:        MsgQuotaExceeded,
	ErrorTypeMissingCredentials:   MsgMissingCredentials,
}

func (e *GeocodingError) Error() string {
	if e.Err != nil && e.Type != ErrorTypeUnknown {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}

	return e.Message
}

func (e *GeocodingError) Unwrap() error {
	return e.Err
}

// newError builds a GeocodingError with the fixed message for its type.
func newError(t ErrorType, cause error) *GeocodingError {
	if t == ErrorTypeUnknown {
		return unknownError(cause)
	}

	return &GeocodingError{Type: t, Message: fixedMessages[t], Err: cause}
}

func unknownError(cause error) *GeocodingError {
	return &GeocodingError{
		Type:    ErrorTypeUnknown,
		Message: fmt.Sprintf(msgUnknownFormat, cause),
		Err:     cause,
	}
}

func typeErrorf(format string, args ...any) *GeocodingError {
	return newError(ErrorTypeTypeError, fmt.Errorf(format, args...))
}

// ClassifyHTTPStatus maps a non-200 provider HTTP status to a GeocodingError.
func ClassifyHTTPStatus(statusCode int) *GeocodingError {
	cause := fmt.Errorf("provider returned HTTP %d", statusCode)

	switch statusCode {
	case http.StatusBadRequest:
		return newError(ErrorTypeValidationFailed, cause)
	case http.StatusServiceUnavailable:
		return newError(ErrorTypeTemporaryServerError, cause)
	default:
		return newError(ErrorTypeUnknownServerError, cause)
	}
}

// ClassifyTransportError maps an error raised while issuing a request or
// decoding its response.
func ClassifyTransportError(err error) *GeocodingError {
	if err == nil {
		return nil
	}

	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr
	}

	var (
		syntaxErr *json.SyntaxError
		typeErr   *json.UnmarshalTypeError
		netErr    net.Error
		urlErr    *url.Error
	)

	switch {
	case errors.As(err, &syntaxErr), errors.As(err, &typeErr):
		return newError(ErrorTypeTypeError, err)
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.As(err, &netErr),
		errors.As(err, &urlErr):
		return newError(ErrorTypeConnectionError, err)
	case errors.Is(err, io.EOF):
		// an empty body is a malformed response
		return newError(ErrorTypeTypeError, err)
	default:
		return unknownError(err)
	}
}

func isType(err error, t ErrorType) bool {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr.Type == t
	}

	return false
}

// IsNotFound reports whether the provider found nothing for the query.
func IsNotFound(err error) bool {
	return isType(err, ErrorTypeZeroResults) || isType(err, ErrorTypeNoResultsFound)
}

// IsRateLimitError reports whether the provider throttled the request.
func IsRateLimitError(err error) bool {
	return isType(err, ErrorTypeRateLimit) || isType(err, ErrorTypeQuotaExceeded)
}

// IsValidationError reports whether the request or the credentials were rejected.
func IsValidationError(err error) bool {
	return isType(err, ErrorTypeValidationFailed) || isType(err, ErrorTypeMissingCredentials)
}

// IsConnectionError reports whether the request failed in transit.
func IsConnectionError(err error) bool {
	return isType(err, ErrorTypeConnectionError)
}
