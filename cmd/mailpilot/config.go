package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/foxzi/mailpilot/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Configuration commands",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate configuration file",
	RunE:  runConfigValidate,
}

func init() {
	configCmd.AddCommand(configValidateCmd)
}

func runConfigValidate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFile)
	if err != nil {
		return err
	}

	fmt.Println("Configuration is valid")
	fmt.Printf("  Listen address: %s\n", cfg.Server.ListenAddr)
	fmt.Printf("  API key required: %v\n", cfg.Server.APIKey != "")
	fmt.Printf("  TLS: %v\n", cfg.Server.TLS.Enabled)
	fmt.Printf("  Storage path: %s\n", cfg.Storage.Path)
	fmt.Printf("  Keys encrypted: %v\n", cfg.Storage.Secret != "")
	fmt.Printf("  Provider: %s (timeout %s)\n", cfg.Provider.BaseURL, cfg.Provider.Timeout)
	fmt.Printf("  Tick interval: %s\n", cfg.Jobs.TickInterval)
	fmt.Printf("  Max recipients: %d\n", cfg.Jobs.MaxRecipients)
	if cfg.Metrics.Enabled {
		fmt.Printf("  Metrics: %s%s\n", cfg.Metrics.ListenAddr, cfg.Metrics.Path)
	}

	return nil
}
