// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"strings"

	"github.com/jcodagnone/geocoords/geocoding"
	"github.com/jcodagnone/geocoords/journal"
	"github.com/spf13/cobra"
)

var arcgisCmd = &cobra.Command{
	Use:   "arcgis",
	Short: "ArcGIS World Geocoding Service",
}

var arcgisOptions = struct {
	Login        bool
	Input        string
	MaxBatchSize int
}{}

func withArcGIS(fn func(a *geocoding.ArcGISGeocoder, rec *journal.Recorder) error) error {
	creds, err := loadCredentials()
	if err != nil {
		return err
	}

	repo, closeJournal, err := openJournal()
	if err != nil {
		return err
	}
	defer closeJournal()

	a := geocoding.NewArcGISGeocoder(creds.ArcGIS, clientOptions())
	if arcgisOptions.MaxBatchSize > 0 {
		a.MaxBatchSize = arcgisOptions.MaxBatchSize
	}

	return fn(a, newRecorder(repo))
}

var arcgisGeocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Coordinates of an address",
	Long: `
Without --login the anonymous endpoint is used and only the coordinates are
printed. With --login the request is authenticated and every candidate is
included in the answer.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		address := strings.Join(args, " ")

		return withArcGIS(func(a *geocoding.ArcGISGeocoder, rec *journal.Recorder) error {
			if !arcgisOptions.Login {
				env := a.Geocode(cmd.Context(), address)
				rec.Coordinate(a.Name(), journal.OpGeocode, address, env)

				if err := printJSON(env); err != nil {
					return err
				}

				return failIfNotOk(env.Ok())
			}

			env := a.GeocodeAuthenticated(cmd.Context(), address)
			rec.Match(a.Name(), address, env)

			if err := printJSON(env); err != nil {
				return err
			}

			return failIfNotOk(env.Ok())
		})
	},
}

var errNoAddresses = errors.New("no addresses given")

var arcgisBatchCmd = &cobra.Command{
	Use:   "batch [address...]",
	Short: "Geocodes many addresses in as few requests as possible",
	Long: `
Addresses are taken from the arguments or, when there are none, one per line
from --input (stdin by default). Blank lines and lines starting with # are
ignored. Requires an ArcGIS login.
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		addresses := args
		if len(addresses) == 0 {
			lines, err := readAddresses(arcgisOptions.Input)
			if err != nil {
				return err
			}

			addresses = lines
		}

		if len(addresses) == 0 {
			return errNoAddresses
		}

		return withArcGIS(func(a *geocoding.ArcGISGeocoder, rec *journal.Recorder) error {
			env := a.BatchGeocodeAuthenticated(cmd.Context(), addresses)
			rec.Batch(a.Name(), addresses, env)

			if err := printJSON(env); err != nil {
				return err
			}

			return failIfNotOk(env.Ok())
		})
	},
}

func init() {
	arcgisGeocodeCmd.Flags().BoolVar(
		&arcgisOptions.Login,
		"login",
		false,
		"Authenticate with the configured ArcGIS credentials",
	)
	arcgisBatchCmd.Flags().StringVarP(
		&arcgisOptions.Input,
		"input",
		"i",
		"-",
		"File with one address per line, - for stdin",
	)
	arcgisBatchCmd.Flags().IntVar(
		&arcgisOptions.MaxBatchSize,
		"max-batch-size",
		geocoding.DefaultMaxBatchSize,
		"Maximum addresses per request",
	)

	arcgisCmd.AddCommand(arcgisGeocodeCmd)
	arcgisCmd.AddCommand(arcgisBatchCmd)
	rootCmd.AddCommand(arcgisCmd)
}
