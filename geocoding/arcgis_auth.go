// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package geocoding

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	arcgisPortalURL = "https://www.arcgis.com/sharing/rest"
	// tokenExpiration requested to generateToken, in minutes on the wire.
	tokenExpiration = 60 * time.Minute
	tokenReferer    = "https://www.arcgis.com"
)

// ArcGISCredentials identify an ArcGIS account. Either Username and
// Password (a named user) or ClientID and ClientSecret (an application).
type ArcGISCredentials struct {
	Username     string
	Password     string
	ClientID     string
	ClientSecret string
}

// hasUser reports whether a named user login is possible.
func (c ArcGISCredentials) hasUser() bool {
	return c.Username != "" && c.Password != ""
}

// hasApp reports whether an application login is possible.
func (c ArcGISCredentials) hasApp() bool {
	return c.ClientID != "" && c.ClientSecret != ""
}

// esriError is the error object ArcGIS embeds in 200 responses.
type esriError struct {
	Code    int      `json:"code"`
	Message string   `json:"message"`
	Details []string `json:"details"`
}

func (e *esriError) Error() string {
	if len(e.Details) > 0 {
		return fmt.Sprintf("arcgis error %d: %s (%s)", e.Code, e.Message, strings.Join(e.Details, "; "))
	}

	return fmt.Sprintf("arcgis error %d: %s", e.Code, e.Message)
}

// classify maps the embedded error code like an HTTP status. 498 and 499
// are the ArcGIS invalid and missing token codes.
func (e *esriError) classify() *GeocodingError {
	switch e.Code {
	case 401, 403, 498, 499:
		return newError(ErrorTypeValidationFailed, e)
	}

	geoErr := ClassifyHTTPStatus(e.Code)
	geoErr.Err = e

	return geoErr
}

type generateTokenResponse struct {
	Token   string     `json:"token"`
	Expires int64      `json:"expires"` // epoch millis
	Error   *esriError `json:"error"`
}

// passwordTokenSource exchanges a named user's credentials for a token
// through the portal's generateToken endpoint. The request runs on ctx.
type passwordTokenSource struct {
	ctx        context.Context
	httpClient *http.Client
	tokenURL   string
	username   string
	password   string
}

// Token implements oauth2.TokenSource.
func (s *passwordTokenSource) Token() (*oauth2.Token, error) {
	form := url.Values{}
	form.Set("username", s.username)
	form.Set("password", s.password)
	form.Set("referer", tokenReferer)
	form.Set("expiration", strconv.Itoa(int(tokenExpiration.Minutes())))
	form.Set("f", "json")

	var resp generateTokenResponse
	if err := postFormJSON(s.ctx, s.httpClient, s.tokenURL, form, &resp); err != nil {
		return nil, err
	}

	if resp.Error != nil {
		return nil, newError(ErrorTypeValidationFailed, resp.Error)
	}

	if resp.Token == "" {
		return nil, typeErrorf("generateToken response without token")
	}

	expiry := time.Now().Add(tokenExpiration)
	if resp.Expires > 0 {
		expiry = time.UnixMilli(resp.Expires)
	}

	return &oauth2.Token{AccessToken: resp.Token, TokenType: "Bearer", Expiry: expiry}, nil
}

// newTokenSource picks the login flow for the credentials, nil when there
// is nothing to log in with. Logins run on ctx.
func newTokenSource(ctx context.Context, creds ArcGISCredentials, portalURL string, httpClient *http.Client) oauth2.TokenSource {
	switch {
	case creds.hasUser():
		return &passwordTokenSource{
			ctx:        ctx,
			httpClient: httpClient,
			tokenURL:   portalURL + "/generateToken",
			username:   creds.Username,
			password:   creds.Password,
		}
	case creds.hasApp():
		cfg := &clientcredentials.Config{
			ClientID:     creds.ClientID,
			ClientSecret: creds.ClientSecret,
			TokenURL:     portalURL + "/oauth2/token",
			AuthStyle:    oauth2.AuthStyleInParams,
		}
		return cfg.TokenSource(context.WithValue(ctx, oauth2.HTTPClient, httpClient))
	default:
		return nil
	}
}

// classifyTokenError maps a failed login. Anything that is not a transport
// problem means the credentials were refused.
func classifyTokenError(err error) *GeocodingError {
	var geoErr *GeocodingError
	if errors.As(err, &geoErr) {
		return geoErr
	}

	var retrieveErr *oauth2.RetrieveError
	if errors.As(err, &retrieveErr) {
		return newError(ErrorTypeValidationFailed, err)
	}

	classified := ClassifyTransportError(err)
	if classified.Type == ErrorTypeUnknown {
		return newError(ErrorTypeValidationFailed, err)
	}

	return classified
}
