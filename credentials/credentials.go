// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

// Package credentials loads the provider keys from a credentials directory
// and the environment.
package credentials

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/jcodagnone/geocoords/geocoding"
)

// File names inside the credentials directory.
const (
	GoogleFile = "google_cred.json"
	HereFile   = "here_cred.json"
	ArcGISFile = "arcgis_cred.json"
)

// Environment variables that override the files.
const (
	EnvGoogleAPIKey       = "GOOGLE_MAPS_API_KEY"
	EnvHereAPIKey         = "HERE_API_KEY"
	EnvArcGISUsername     = "ARCGIS_USERNAME"
	EnvArcGISPassword     = "ARCGIS_PASSWORD"
	EnvArcGISClientID     = "ARCGIS_CLIENT_ID"
	EnvArcGISClientSecret = "ARCGIS_CLIENT_SECRET"
)

// Credentials for every provider. Empty fields mean not configured.
type Credentials struct {
	GoogleAPIKey string
	HereAPIKey   string
	ArcGIS       geocoding.ArcGISCredentials
}

type apiKeyFile struct {
	APIKey string `json:"API_KEY"`
}

type arcgisFile struct {
	Username     string `json:"USERNAME"`
	Password     string `json:"PASSWORD"`
	ClientID     string `json:"CLIENT_ID"`
	ClientSecret string `json:"CLIENT_SECRET"`
}

// Load reads the credential files in dir, then applies the environment
// overrides. Missing files are skipped, malformed ones are an error. An
// empty dir only reads the environment.
func Load(dir string) (*Credentials, error) {
	creds := &Credentials{}

	if dir != "" {
		var google apiKeyFile
		if err := readJSON(filepath.Join(dir, GoogleFile), &google); err != nil {
			return nil, err
		}

		var here apiKeyFile
		if err := readJSON(filepath.Join(dir, HereFile), &here); err != nil {
			return nil, err
		}

		var arcgis arcgisFile
		if err := readJSON(filepath.Join(dir, ArcGISFile), &arcgis); err != nil {
			return nil, err
		}

		creds.GoogleAPIKey = google.APIKey
		creds.HereAPIKey = here.APIKey
		creds.ArcGIS = geocoding.ArcGISCredentials{
			Username:     arcgis.Username,
			Password:     arcgis.Password,
			ClientID:     arcgis.ClientID,
			ClientSecret: arcgis.ClientSecret,
		}
	}

	override(&creds.GoogleAPIKey, EnvGoogleAPIKey)
	override(&creds.HereAPIKey, EnvHereAPIKey)
	override(&creds.ArcGIS.Username, EnvArcGISUsername)
	override(&creds.ArcGIS.Password, EnvArcGISPassword)
	override(&creds.ArcGIS.ClientID, EnvArcGISClientID)
	override(&creds.ArcGIS.ClientSecret, EnvArcGISClientSecret)

	return creds, nil
}

func readJSON(path string, v any) error {
	b, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}

	if err != nil {
		return fmt.Errorf("reading %s: %w", path, err)
	}

	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("parsing %s: %w", path, err)
	}

	return nil
}

func override(field *string, env string) {
	if v := os.Getenv(env); v != "" {
		*field = v
	}
}

// HasArcGISLogin reports whether the authenticated ArcGIS calls can log in.
func (c *Credentials) HasArcGISLogin() bool {
	a := c.ArcGIS

	return (a.Username != "" && a.Password != "") || (a.ClientID != "" && a.ClientSecret != "")
}
