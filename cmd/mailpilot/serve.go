package main

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/foxzi/mailpilot/internal/app"
	"github.com/foxzi/mailpilot/internal/config"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the API server and job runner",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	application, err := app.New(cfg, version)
	if err != nil {
		return err
	}

	// Run handles SIGINT/SIGTERM itself
	return application.Run(context.Background())
}
