// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/jcodagnone/geocoords/utils/httputils"
	"go.uber.org/zap"
)

const (
	defaultTimeout   = 30 * time.Second
	defaultUserAgent = "geocoords/unknown"
	maxErrorBodySize = 4096
)

// secretParams are the query/form parameters hidden from HTTP traces.
var secretParams = []string{"key", "apiKey", "token", "access_token", "password", "client_secret"}

// ClientOptions configuration shared by every provider.
type ClientOptions struct {
	// Format is the output format requested to the provider. Only JSON
	// formats are supported.
	Format string

	// UserAgent is the User-Agent header to use in HTTP requests
	UserAgent string

	// Timeout for a single HTTP request, defaults to 30 seconds
	Timeout time.Duration

	// Enables light tracing of HTTP requests and responses
	EnableHTTPTrace bool

	// Enables full HTTP body tracing
	EnableHTTPBodyTrace bool

	// Maximum requests per second sent to the provider, 0 means unlimited
	RequestsPerSecond float64

	// Logger receives debug and failure logs. Defaults to a no-op logger.
	Logger *zap.Logger

	// HTTPClient overrides the client built from the options above.
	HTTPClient *http.Client
}

func (o *ClientOptions) logger() *zap.Logger {
	if o == nil || o.Logger == nil {
		return zap.NewNop()
	}

	return o.Logger
}

// format returns the requested output format if it's one of allowed,
// otherwise json.
func (o *ClientOptions) format(allowed ...string) string {
	if o == nil || o.Format == "" {
		return "json"
	}

	for _, f := range allowed {
		if strings.EqualFold(o.Format, f) {
			return f
		}
	}

	o.logger().Warn("unsupported output format, falling back to json", zap.String("format", o.Format))

	return "json"
}

// NewHTTPClient builds the HTTP client used by the providers.
func NewHTTPClient(options *ClientOptions) *http.Client {
	if options == nil {
		options = &ClientOptions{}
	}

	if options.HTTPClient != nil {
		return options.HTTPClient
	}

	var httpLogWriter io.Writer
	if options.EnableHTTPTrace || options.EnableHTTPBodyTrace {
		httpLogWriter = os.Stderr
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		MaxIdleConns:          10,
		MaxIdleConnsPerHost:   4,
		IdleConnTimeout:       30 * time.Second,
		ResponseHeaderTimeout: 30 * time.Second,
	}

	rateLimited := httputils.NewRateLimitRoundTripper(transport, options.RequestsPerSecond)

	loggingTransport := &httputils.LoggingRoundTripper{
		Writer:    httpLogWriter,
		DumpBody:  options.EnableHTTPBodyTrace,
		Transport: rateLimited,
		Redact:    secretParams,
	}

	userAgent := defaultUserAgent
	if options.UserAgent != "" {
		userAgent = options.UserAgent
	}

	headerTransport := &httputils.AppendRequestHeadersRoundTripper{
		Headers: map[string]string{
			"User-Agent": userAgent,
			"Accept":     "application/json",
		},
		Transport: loggingTransport,
	}

	timeout := defaultTimeout
	if options.Timeout > 0 {
		timeout = options.Timeout
	}

	return &http.Client{
		Timeout:   timeout,
		Transport: headerTransport,
	}
}

// redactURL hides secrets before an URL reaches the logs.
func redactURL(u string) string {
	parsed, err := url.Parse(u)
	if err != nil {
		return u
	}

	q := parsed.Query()
	for _, name := range secretParams {
		if q.Has(name) {
			q.Set(name, "REDACTED")
		}
	}

	parsed.RawQuery = q.Encode()

	return parsed.String()
}

// doJSON sends the request and decodes a 200 response into v. A non-200
// status is returned as a classified error; transport and decoding failures
// are returned as is for ClassifyTransportError.
func doJSON(client *http.Client, req *http.Request, v any) error {
	resp, err := client.Do(req)
	if err != nil {
		// url.Error carries the full URL, secrets included
		var urlErr *url.Error
		if errors.As(err, &urlErr) {
			urlErr.URL = redactURL(urlErr.URL)

			return fmt.Errorf("requesting: %w", urlErr)
		}

		return fmt.Errorf("requesting %s: %w", redactURL(req.URL.String()), err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// drain so the connection can be reused
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxErrorBodySize))

		return ClassifyHTTPStatus(resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}

	return nil
}

func getJSON(ctx context.Context, client *http.Client, endpoint string, params url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	return doJSON(client, req, v)
}

func postFormJSON(ctx context.Context, client *http.Client, endpoint string, form url.Values, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	return doJSON(client, req, v)
}

// logFailure reports a failed lookup and returns the envelope unchanged.
// The provider field comes from the logger.
func logFailure[T any](logger *zap.Logger, op string, env Envelope[T]) Envelope[T] {
	if !env.Status {
		logger.Warn("lookup failed",
			zap.String("operation", op),
			zap.Stringer("error_type", env.ErrorType()),
			zap.Error(env.Err()),
		)
	}

	return env
}
