// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/jcodagnone/geocoords/credentials"
	"github.com/jcodagnone/geocoords/geocoding"
	"github.com/jcodagnone/geocoords/journal"
	"github.com/spf13/cobra"
)

var googleCmd = &cobra.Command{
	Use:   "google",
	Short: "Google Maps geocoding and elevation",
}

// withGoogle resolves the API key and the journal before running fn.
func withGoogle(cmd *cobra.Command, fn func(g *geocoding.GoogleGeocoder, rec *journal.Recorder) error) error {
	creds, err := loadCredentials()
	if err != nil {
		return err
	}

	key, err := googleAPIKey(cmd.Context(), creds)
	if err != nil {
		return err
	}

	repo, closeJournal, err := openJournal()
	if err != nil {
		return err
	}
	defer closeJournal()

	return fn(geocoding.NewGoogleGeocoder(key, clientOptions()), newRecorder(repo))
}

var googleGeocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Coordinates of an address",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := strings.Join(args, " ")

		return withGoogle(cmd, func(g *geocoding.GoogleGeocoder, rec *journal.Recorder) error {
			env := g.Geocode(cmd.Context(), address)
			rec.Coordinate(g.Name(), journal.OpGeocode, address, env)

			if err := printJSON(env); err != nil {
				return err
			}

			return failIfNotOk(env.Ok())
		})
	},
}

func parseLatLng(args []string) (float64, float64, error) {
	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil || lat < -90 || lat > 90 {
		return 0, 0, fmt.Errorf("invalid latitude %q", args[0])
	}

	lng, err := strconv.ParseFloat(args[1], 64)
	if err != nil || lng < -180 || lng > 180 {
		return 0, 0, fmt.Errorf("invalid longitude %q", args[1])
	}

	return lat, lng, nil
}

var googleElevationCmd = &cobra.Command{
	Use:   "elevation <lat> <lng>",
	Short: "Altitude in meters of a coordinate",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, lng, err := parseLatLng(args)
		if err != nil {
			return err
		}

		return withGoogle(cmd, func(g *geocoding.GoogleGeocoder, rec *journal.Recorder) error {
			env := g.Elevation(cmd.Context(), lat, lng)
			rec.Elevation(g.Name(), journal.OpElevation, args[0]+","+args[1], env)

			if err := printJSON(env); err != nil {
				return err
			}

			return failIfNotOk(env.Ok())
		})
	},
}

var googleAltitudeCmd = &cobra.Command{
	Use:     "altitude <address>",
	Aliases: []string{"geocode-with-elevation"},
	Short:   "Coordinates and altitude of an address",
	Args:    cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := strings.Join(args, " ")

		return withGoogle(cmd, func(g *geocoding.GoogleGeocoder, rec *journal.Recorder) error {
			env := g.GeocodeWithElevation(cmd.Context(), address)
			rec.Elevation(g.Name(), journal.OpGeocodeWithElevation, address, env)

			if err := printJSON(env); err != nil {
				return err
			}

			return failIfNotOk(env.Ok())
		})
	},
}

var googleKeyDisplayName string

var googleKeyCmd = &cobra.Command{
	Use:   "key",
	Short: "Retrieves the Maps API key with Application Default Credentials",
	Long: `
Looks up an API key by display name in the project of the Application Default
Credentials (gcloud auth application-default login) and prints it, so it can
be stored in ` + credentials.GoogleFile + ` or exported as ` + credentials.EnvGoogleAPIKey + `.
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		key, err := credentials.GoogleAPIKeyFromADC(cmd.Context(), googleKeyDisplayName, logger)
		if err != nil {
			return err
		}

		fmt.Println(key)

		return nil
	},
}

func init() {
	googleKeyCmd.Flags().StringVar(
		&googleKeyDisplayName,
		"display-name",
		credentials.DefaultKeyDisplayName,
		"Display name of the API key",
	)

	googleCmd.AddCommand(googleGeocodeCmd)
	googleCmd.AddCommand(googleElevationCmd)
	googleCmd.AddCommand(googleAltitudeCmd)
	googleCmd.AddCommand(googleKeyCmd)
	rootCmd.AddCommand(googleCmd)
}
