// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"runtime"
	"sync"

	"github.com/jcodagnone/geocoords/geocoding"
	"github.com/jcodagnone/geocoords/utils/textutils"
	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var lookupOptions = struct {
	Provider string
	Input    string
	Parallel int
}{}

// readAddresses reads one address per line from path, or stdin for "-".
func readAddresses(path string) ([]string, error) {
	var r io.Reader = os.Stdin

	if path != "-" && path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()

		r = f
	} else if isatty.IsTerminal(os.Stdin.Fd()) {
		fmt.Fprintln(os.Stderr, "Enter the addresses to geocode, one per line, Ctrl-D to finish…")
	}

	return textutils.ReadLines(r)
}

// lookupLine is one line of the lookup output.
type lookupLine struct {
	Address string                                   `json:"address"`
	Answer  geocoding.Envelope[geocoding.Coordinate] `json:"answer"`
}

var lookupCmd = &cobra.Command{
	Use:   "lookup",
	Short: "Geocodes a list of addresses with one provider",
	Long: `
Reads one address per line and prints one JSON object per line, in input order:

$ printf 'Colombo, Sri Lanka\nAlbany, NY\n' | geocoords lookup --provider arcgis
{"address":"Colombo, Sri Lanka","answer":{"status":true,"message":null,"result":{…}}}
`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		addresses, err := readAddresses(lookupOptions.Input)
		if err != nil {
			return err
		}

		if len(addresses) == 0 {
			return errNoAddresses
		}

		creds, err := loadCredentials()
		if err != nil {
			return err
		}

		repo, closeJournal, err := openJournal()
		if err != nil {
			return err
		}
		defer closeJournal()

		p := buildProviders(cmd.Context(), creds, repo)

		g, err := p.Registry.Get(lookupOptions.Provider)
		if err != nil {
			return err
		}

		answers := geocodeAll(cmd, g, addresses)

		enc := json.NewEncoder(os.Stdout)
		failed := 0

		for i, address := range addresses {
			if !answers[i].Ok() {
				failed++
			}

			if err := enc.Encode(lookupLine{Address: address, Answer: answers[i]}); err != nil {
				return fmt.Errorf("writing answer: %w", err)
			}
		}

		logger.Info("lookup complete",
			zap.String("provider", g.Name()),
			zap.Int("addresses", len(addresses)),
			zap.Int("failed", failed),
		)

		return nil
	},
}

// geocodeAll resolves addresses with at most --parallel requests in flight.
// Answers are returned in input order.
func geocodeAll(cmd *cobra.Command, g geocoding.Geocoder, addresses []string) []geocoding.Envelope[geocoding.Coordinate] {
	n := len(addresses)

	maxProcs := lookupOptions.Parallel
	if maxProcs <= 0 {
		maxProcs = runtime.NumCPU()
	}

	var bar *progressbar.ProgressBar
	if isatty.IsTerminal(os.Stderr.Fd()) {
		bar = progressbar.NewOptions(n,
			progressbar.OptionSetDescription("Geocoding with "+g.Name()),
			progressbar.OptionSetWriter(os.Stderr),
			progressbar.OptionShowCount(),
			progressbar.OptionClearOnFinish(),
		)
	}

	answers := make([]geocoding.Envelope[geocoding.Coordinate], n)

	var wg sync.WaitGroup

	semaphore := make(chan struct{}, maxProcs)

	for i, address := range addresses {
		wg.Add(1)

		go func() {
			defer wg.Done()
			semaphore <- struct{}{}

			defer func() { <-semaphore }()

			answers[i] = g.Geocode(cmd.Context(), address)

			if bar == nil {
				logger.Debug("geocoded", zap.String("address", address), zap.Bool("status", answers[i].Status))
			} else {
				_ = bar.Add(1)
			}
		}()
	}

	wg.Wait()

	return answers
}

func init() {
	flags := lookupCmd.Flags()
	flags.StringVarP(
		&lookupOptions.Provider,
		"provider",
		"p",
		"arcgis",
		"Provider to use: google, here or arcgis",
	)
	flags.StringVarP(
		&lookupOptions.Input,
		"input",
		"i",
		"-",
		"File with one address per line, - for stdin",
	)
	flags.IntVar(
		&lookupOptions.Parallel,
		"parallel",
		4,
		"Maximum concurrent requests, 0 means one per CPU",
	)

	rootCmd.AddCommand(lookupCmd)
}
