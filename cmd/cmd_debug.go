// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"bufio"
	"fmt"
	"os"

	"github.com/jcodagnone/geocoords/spatial"
	"github.com/jcodagnone/geocoords/utils/textutils"
	"github.com/spf13/cobra"
)

var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Dev tools",
}

var debugNormalizeCmd = &cobra.Command{
	Use:   "normalize",
	Short: "Shows how queries are normalized before being recorded",
	Long: `Reads one address per line and prints it followed by its normalized form,
the one the journal groups lookups by.

$ echo 'Av.  18 de Julio , Montevideo' | geocoords debug normalize
Av.  18 de Julio , Montevideo		av. 18 de julio, montevideo
	`,
	Args: cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		input := os.Stdin
		if isTerminal(input) {
			fmt.Fprintln(os.Stderr, "Enter the addresses to normalize, one per line…")
		}

		scanner := bufio.NewScanner(input)
		for scanner.Scan() {
			fmt.Printf("%s\t\t%s\n", scanner.Text(), textutils.NormalizeQuery(scanner.Text()))
		}

		if err := scanner.Err(); err != nil {
			return fmt.Errorf("reading input: %w", err)
		}

		return nil
	},
}

var debugCellCmd = &cobra.Command{
	Use:   "cell <lat> <lng>",
	Short: "Prints the H3 cell a coordinate is indexed at",
	Args:  cobra.ExactArgs(2),
	RunE: func(_ *cobra.Command, args []string) error {
		lat, lng, err := parseLatLng(args)
		if err != nil {
			return err
		}

		cell, err := spatial.Point{Lat: lat, Lng: lng}.Cell(spatial.DefaultCellResolution)
		if err != nil {
			return err
		}

		fmt.Printf("%s\t%d\n", cell, int64(cell))

		return nil
	},
}

// isTerminal is false when in doubt.
func isTerminal(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}

	return (info.Mode() & os.ModeCharDevice) != 0
}

func init() {
	debugCmd.AddCommand(debugNormalizeCmd)
	debugCmd.AddCommand(debugCellCmd)
	rootCmd.AddCommand(debugCmd)
}
