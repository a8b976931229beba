// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"strings"

	"github.com/jcodagnone/geocoords/credentials"
	"github.com/jcodagnone/geocoords/geocoding"
	"github.com/jcodagnone/geocoords/journal"
	"github.com/spf13/cobra"
)

var hereCmd = &cobra.Command{
	Use:   "here",
	Short: "HERE geocoding",
}

var hereGeocodeCmd = &cobra.Command{
	Use:   "geocode <address>",
	Short: "Coordinates of an address",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := loadCredentials()
		if err != nil {
			return err
		}

		if creds.HereAPIKey == "" {
			return errors.New("no HERE API key, set " + credentials.EnvHereAPIKey + " or add " + credentials.HereFile)
		}

		repo, closeJournal, err := openJournal()
		if err != nil {
			return err
		}
		defer closeJournal()

		address := strings.Join(args, " ")
		here := geocoding.NewHereGeocoder(creds.HereAPIKey, clientOptions())

		env := here.Geocode(cmd.Context(), address)
		newRecorder(repo).Coordinate(here.Name(), journal.OpGeocode, address, env)

		if err := printJSON(env); err != nil {
			return err
		}

		return failIfNotOk(env.Ok())
	},
}

func init() {
	hereCmd.AddCommand(hereGeocodeCmd)
	rootCmd.AddCommand(hereCmd)
}
