// Copyright 2025 The ChapaUY Authors
// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/gin-gonic/gin"
	"github.com/jcodagnone/geocoords/server"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serves the geocoders over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		if !options.Verbose {
			gin.SetMode(gin.ReleaseMode)
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

		opts := server.Options{
			Registry: p.Registry,
			ArcGIS:   p.ArcGIS,
			Journal:  repo,
			Logger:   logger,
		}
		if p.Google != nil {
			opts.Elevator = p.Google
		}

		logger.Info("serving",
			zap.String("addr", serveAddr),
			zap.Strings("providers", p.Registry.Names()),
			zap.Bool("journal", repo != nil),
		)

		return server.NewServer(opts).Run(serveAddr)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", ":8080", "Address to listen on")
	rootCmd.AddCommand(serveCmd)
}
