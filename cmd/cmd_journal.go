// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jcodagnone/geocoords/journal"
	"github.com/jcodagnone/geocoords/utils/textutils"
	"github.com/spf13/cobra"
)

var journalCmd = &cobra.Command{
	Use:   "journal",
	Short: "Inspects the lookups recorded with --journal",
}

var journalOptions = struct {
	Provider string
	Limit    int
	Offset   int
}{}

var errNoJournal = errors.New("no journal, use --journal <file>")

func withJournal(fn func(repo journal.Repository) error) error {
	if options.JournalPath == "" {
		return errNoJournal
	}

	repo, closeJournal, err := openJournal()
	if err != nil {
		return err
	}
	defer closeJournal()

	return fn(repo)
}

var journalListCmd = &cobra.Command{
	Use:   "list",
	Short: "Lists recorded lookups, newest first",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withJournal(func(repo journal.Repository) error {
			var provider *string
			if journalOptions.Provider != "" {
				provider = &journalOptions.Provider
			}

			lookups, err := repo.List(provider, journalOptions.Limit, journalOptions.Offset)
			if err != nil {
				return fmt.Errorf("listing lookups: %w", err)
			}

			return printJSON(lookups)
		})
	},
}

var journalStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Outcome counts per provider",
	Args:  cobra.NoArgs,
	RunE: func(_ *cobra.Command, _ []string) error {
		return withJournal(func(repo journal.Repository) error {
			stats, err := repo.Stats()
			if err != nil {
				return fmt.Errorf("computing stats: %w", err)
			}

			a, b := strings.Repeat("─", 8), strings.Repeat("─", 10)

			fmt.Printf("╭─%-8s─┬─%10s─┬─%10s─┬─%10s─╮\n", a, b, b, b)
			fmt.Printf("│ %-8s │ %10s │ %10s │ %10s │\n", "Provider", "Total", "Succeeded", "Failed")
			fmt.Printf("├─%-8s─┼─%10s─┼─%10s─┼─%10s─┤\n", a, b, b, b)

			var total int64

			for _, s := range stats {
				total += int64(s.Total)

				fmt.Printf("│ %-8s │ %10s │ %10s │ %10s │\n",
					s.Provider,
					textutils.FormatInt(int64(s.Total)),
					textutils.FormatInt(int64(s.Succeeded)),
					textutils.FormatInt(int64(s.Failed)),
				)
			}

			fmt.Printf("╰─%-8s─┴─%10s─┴─%10s─┴─%10s─╯\n", a, b, b, b)
			fmt.Printf("%s lookups recorded.\n", textutils.FormatInt(total))

			return nil
		})
	},
}

func init() {
	flags := journalListCmd.Flags()
	flags.StringVarP(&journalOptions.Provider, "provider", "p", "", "Only lookups of this provider")
	flags.IntVar(&journalOptions.Limit, "limit", 50, "Maximum lookups to list")
	flags.IntVar(&journalOptions.Offset, "offset", 0, "Lookups to skip")

	journalCmd.AddCommand(journalListCmd)
	journalCmd.AddCommand(journalStatsCmd)
	rootCmd.AddCommand(journalCmd)
}
