// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	_ "github.com/duckdb/duckdb-go/v2" // register duckdb driver
	"github.com/jcodagnone/geocoords/credentials"
	"github.com/jcodagnone/geocoords/geocoding"
	"github.com/jcodagnone/geocoords/journal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

type globalOptions struct {
	CredentialsDir      string
	EnableHTTPTrace     bool
	EnableHTTPBodyTrace bool
	RequestsPerSecond   float64
	Timeout             time.Duration
	JournalPath         string
	GoogleADC           bool
	Verbose             bool
}

var (
	options = &globalOptions{}
	logger  = zap.NewNop()
)

// newLogger writes human readable logs to stderr, with the timestamp first.
func newLogger(verbose bool) (*zap.Logger, error) {
	level := zap.InfoLevel
	if verbose {
		level = zap.DebugLevel
	}

	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(level)
	cfg.Development = false
	cfg.DisableStacktrace = !verbose
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	cfg.OutputPaths = []string{"stderr"}

	return cfg.Build()
}

var rootCmd = &cobra.Command{
	Use:   "geocoords",
	Short: "geocode addresses with Google Maps, HERE and ArcGIS",
	Long: `
geocoords turns addresses into coordinates (and altitudes) using the Google
Maps, HERE and ArcGIS geocoding services. Every answer is printed as a
{status, message, result} JSON envelope.
`,
	SilenceUsage: true,
	PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
		l, err := newLogger(options.Verbose)
		if err != nil {
			return fmt.Errorf("building logger: %w", err)
		}

		logger = l

		return nil
	},
	PersistentPostRun: func(_ *cobra.Command, _ []string) {
		_ = logger.Sync()
	},
}

var Version = "dev"

func Execute(version string) {
	Version = version

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func clientOptions() *geocoding.ClientOptions {
	return &geocoding.ClientOptions{
		UserAgent:           fmt.Sprintf("geocoords/%s (+https://github.com/jcodagnone/geocoords)", Version),
		Timeout:             options.Timeout,
		EnableHTTPTrace:     options.EnableHTTPTrace,
		EnableHTTPBodyTrace: options.EnableHTTPBodyTrace,
		RequestsPerSecond:   options.RequestsPerSecond,
		Logger:              logger,
	}
}

func loadCredentials() (*credentials.Credentials, error) {
	creds, err := credentials.Load(options.CredentialsDir)
	if err != nil {
		return nil, fmt.Errorf("loading credentials: %w", err)
	}

	return creds, nil
}

var errNoGoogleKey = errors.New("no Google Maps API key, set " + credentials.EnvGoogleAPIKey +
	", add " + credentials.GoogleFile + " or use --google-adc")

// googleAPIKey returns the configured key, falling back to Application
// Default Credentials when --google-adc is set.
func googleAPIKey(ctx context.Context, creds *credentials.Credentials) (string, error) {
	if creds.GoogleAPIKey != "" {
		return creds.GoogleAPIKey, nil
	}

	if !options.GoogleADC {
		return "", errNoGoogleKey
	}

	logger.Info("Google Maps API key not set, retrieving it via ADC")

	key, err := credentials.GoogleAPIKeyFromADC(ctx, credentials.DefaultKeyDisplayName, logger)
	if err != nil {
		return "", fmt.Errorf("retrieving API key via ADC: %w", err)
	}

	return key, nil
}

// openJournal opens the lookup journal, nil when --journal is not set. The
// returned function closes the database.
func openJournal() (journal.Repository, func(), error) {
	if options.JournalPath == "" {
		return nil, func() {}, nil
	}

	db, err := sql.Open("duckdb", options.JournalPath)
	if err != nil {
		return nil, nil, fmt.Errorf("opening journal: %w", err)
	}

	repo := journal.NewRepository(db)
	if err := repo.CreateSchema(); err != nil {
		db.Close()

		return nil, nil, fmt.Errorf("creating journal schema: %w", err)
	}

	return repo, func() { db.Close() }, nil
}

// newRecorder returns nil when the journal is disabled, which records
// nothing.
func newRecorder(repo journal.Repository) *journal.Recorder {
	if repo == nil {
		return nil
	}

	return journal.NewRecorder(repo, logger)
}

// providers are the clients built from the credentials. Google is nil when
// there is no API key.
type providers struct {
	Registry *geocoding.Registry
	Google   *geocoding.GoogleGeocoder
	ArcGIS   *geocoding.ArcGISGeocoder
}

// buildProviders registers every provider that has what it needs. ArcGIS
// always works anonymously. With a journal, registry geocodes are recorded.
func buildProviders(ctx context.Context, creds *credentials.Credentials, repo journal.Repository) *providers {
	opts := clientOptions()
	p := &providers{Registry: geocoding.NewRegistry()}

	if key, err := googleAPIKey(ctx, creds); err == nil {
		p.Google = geocoding.NewGoogleGeocoder(key, opts)
		p.Registry.Register(p.Google)
	} else {
		logger.Warn("google provider disabled", zap.Error(err))
	}

	if creds.HereAPIKey != "" {
		p.Registry.Register(geocoding.NewHereGeocoder(creds.HereAPIKey, opts))
	} else {
		logger.Warn("here provider disabled, no API key")
	}

	p.ArcGIS = geocoding.NewArcGISGeocoder(creds.ArcGIS, opts)
	p.Registry.Register(p.ArcGIS)

	if repo != nil {
		for _, name := range p.Registry.Names() {
			g, _ := p.Registry.Get(name)
			p.Registry.Register(journal.Wrap(g, repo, logger))
		}
	}

	return p
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")

	return enc.Encode(v)
}

// failIfNotOk makes the exit status reflect the envelope.
func failIfNotOk(ok bool) error {
	if !ok {
		return errLookupFailed
	}

	return nil
}

var errLookupFailed = errors.New("lookup failed")

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(
		&options.CredentialsDir,
		"credentials",
		"credentials",
		"Directory with google_cred.json, here_cred.json and arcgis_cred.json",
	)
	flags.BoolVar(
		&options.EnableHTTPTrace,
		"trace-http",
		false,
		"Display HTTP requests-responses",
	)
	flags.BoolVar(
		&options.EnableHTTPBodyTrace,
		"trace-http-body",
		false,
		"Display HTTP requests-responses bodies",
	)
	flags.Float64Var(
		&options.RequestsPerSecond,
		"rps",
		0,
		"Maximum requests per second sent to each provider, 0 means unlimited",
	)
	flags.DurationVar(
		&options.Timeout,
		"timeout",
		30*time.Second,
		"Timeout of a single HTTP request",
	)
	flags.StringVar(
		&options.JournalPath,
		"journal",
		"",
		"DuckDB file where every lookup is recorded, disabled when empty",
	)
	flags.BoolVar(
		&options.GoogleADC,
		"google-adc",
		false,
		"Retrieve the Google Maps API key with Application Default Credentials when it is not configured",
	)
	flags.BoolVarP(
		&options.Verbose,
		"verbose",
		"v",
		false,
		"Enable debug logs",
	)
}
