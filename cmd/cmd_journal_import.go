// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/jcodagnone/geocoords/journal"
	"github.com/jcodagnone/geocoords/utils/textutils"
	"github.com/spf13/cobra"
)

var journalImportCmd = &cobra.Command{
	Use:   "import <lookups.json>",
	Short: "Loads lookups exported with journal list into the journal",
	Args:  cobra.ExactArgs(1),
	RunE: func(_ *cobra.Command, args []string) error {
		return withJournal(func(repo journal.Repository) error {
			n, err := importLookups(repo, args[0])
			if err != nil {
				return err
			}

			fmt.Printf("%s lookups imported.\n", textutils.FormatInt(int64(n)))

			return nil
		})
	},
}

func importLookups(repo journal.Repository, path string) (int, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, fmt.Errorf("reading %s: %w", path, err)
	}

	var lookups []*journal.Lookup
	if err := json.Unmarshal(b, &lookups); err != nil {
		return 0, fmt.Errorf("decoding %s: %w", path, err)
	}

	for i, l := range lookups {
		if err := repo.Record(l); err != nil {
			return i, fmt.Errorf("recording lookup %d of %s: %w", i, path, err)
		}
	}

	return len(lookups), nil
}

func init() {
	journalCmd.AddCommand(journalImportCmd)
}
