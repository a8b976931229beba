// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/jcodagnone/geocoords/geocoding"
	"github.com/spf13/cobra"
)

var compareJSON bool

var compareCmd = &cobra.Command{
	Use:   "compare <address>",
	Short: "Geocodes an address with every configured provider",
	Long: `
Asks every provider with credentials for the same address and prints the
answers side by side, plus how far apart they are.
`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
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
		c := p.Registry.Compare(cmd.Context(), strings.Join(args, " "))

		if compareJSON {
			return printJSON(c)
		}

		printComparison(os.Stdout, c)

		return nil
	},
}

func printComparison(w io.Writer, c geocoding.Comparison) {
	a, b, d, e := strings.Repeat("─", 8), strings.Repeat("─", 6), strings.Repeat("─", 12), strings.Repeat("─", 30)

	fmt.Fprintf(w, "%s\n", c.Address)
	fmt.Fprintf(w, "╭─%-8s─┬─%-6s─┬─%12s─┬─%12s─┬─%-30s╮\n", a, b, d, d, e)
	fmt.Fprintf(w, "│ %-8s │ %-6s │ %12s │ %12s │ %-30s│\n", "Provider", "Status", "Latitude", "Longitude", "Message")
	fmt.Fprintf(w, "├─%-8s─┼─%-6s─┼─%12s─┼─%12s─┼─%-30s┤\n", a, b, d, d, e)

	for _, r := range c.Results {
		if r.Envelope.Ok() {
			fmt.Fprintf(w, "│ %-8s │ %-6s │ %12.7f │ %12.7f │ %-30s│\n",
				r.Provider, "ok", r.Envelope.Result.Latitude, r.Envelope.Result.Longitude, "")
		} else {
			fmt.Fprintf(w, "│ %-8s │ %-6s │ %12s │ %12s │ %-30s│\n",
				r.Provider, "failed", "", "", truncate(r.Envelope.MessageText(), 30))
		}
	}

	fmt.Fprintf(w, "╰─%-8s─┴─%-6s─┴─%12s─┴─%12s─┴─%-30s╯\n", a, b, d, d, e)

	if c.Spread == nil {
		fmt.Fprintln(w, "No provider found the address.")

		return
	}

	fmt.Fprintf(w, "Centroid %.7f, %.7f. Distance to it: mean %.0f m, stddev %.0f m, max %.0f m.\n",
		c.Spread.Centroid.Lat, c.Spread.Centroid.Lng,
		c.Spread.MeanDistanceMeters, c.Spread.StdDevMeters, c.Spread.MaxDistanceMeters)

	if len(c.Agreement) > 0 {
		fmt.Fprintf(w, "Within %.0f m of each other: %s.\n", geocoding.AgreementMeters, strings.Join(c.Agreement, ", "))
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}

	return string(r[:n-1]) + "…"
}

func init() {
	compareCmd.Flags().BoolVar(&compareJSON, "json", false, "Print the comparison as JSON")
	rootCmd.AddCommand(compareCmd)
}
