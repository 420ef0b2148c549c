package main

import (
	"bufio"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
)

var (
	initProviderURL string
	initListenAddr  string
	initOutput      string
	initAPIKey      string
	initSecret      string
	initDataDir     string
	initMetrics     bool
	initForce       bool
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize Mailpilot configuration",
	Long: `Interactive wizard to create a Mailpilot configuration file.

Generates the API key and the storage secret used to encrypt provider
API keys at rest unless they are given as flags.

Examples:
  # Interactive mode - prompts for missing values
  mailpilot init

  # Non-interactive
  mailpilot init --provider-url https://api.provider.example --metrics -o config.yaml`,
	RunE: runInit,
}

func init() {
	initCmd.Flags().StringVar(&initProviderURL, "provider-url", "", "Email provider API base URL")
	initCmd.Flags().StringVar(&initListenAddr, "listen", ":8090", "API listen address")
	initCmd.Flags().StringVarP(&initOutput, "output", "o", "config.yaml", "Output configuration file path")
	initCmd.Flags().StringVar(&initAPIKey, "api-key", "", "API key (auto-generated if not provided)")
	initCmd.Flags().StringVar(&initSecret, "storage-secret", "", "Storage encryption secret (auto-generated if not provided)")
	initCmd.Flags().StringVar(&initDataDir, "data-dir", "/var/lib/mailpilot", "Data directory for the account database")
	initCmd.Flags().BoolVar(&initMetrics, "metrics", false, "Enable the Prometheus metrics endpoint")
	initCmd.Flags().BoolVar(&initForce, "force", false, "Overwrite existing config file")

	rootCmd.AddCommand(initCmd)
}

func runInit(cmd *cobra.Command, args []string) error {
	reader := bufio.NewReader(os.Stdin)

	fmt.Println("Mailpilot Configuration Wizard")
	fmt.Println("==============================")
	fmt.Println()

	if initProviderURL == "" {
		initProviderURL = prompt(reader, "Provider API base URL", "")
		if initProviderURL == "" {
			return fmt.Errorf("provider URL is required")
		}
	}

	initDataDir = prompt(reader, "Data directory", initDataDir)

	if initAPIKey == "" {
		initAPIKey = generateRandomString(32)
		fmt.Printf("  Generated API key: %s\n", initAPIKey)
	}
	if initSecret == "" {
		initSecret = generateRandomString(32)
		fmt.Println("  Generated storage secret")
	}

	if !initForce {
		if _, err := os.Stat(initOutput); err == nil {
			return fmt.Errorf("config file %s already exists (use --force to overwrite)", initOutput)
		}
	}

	fmt.Println()
	fmt.Println("Creating configuration...")

	if err := os.MkdirAll(initDataDir, 0755); err != nil {
		fmt.Printf("  Warning: Could not create data directory: %v\n", err)
	}

	// The file holds the storage secret
	if err := os.WriteFile(initOutput, []byte(generateConfig()), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	fmt.Printf("  Configuration saved to: %s\n", initOutput)
	fmt.Println()

	printNextSteps()

	return nil
}

func prompt(reader *bufio.Reader, question, defaultValue string) string {
	if defaultValue != "" {
		fmt.Printf("%s [%s]: ", question, defaultValue)
	} else {
		fmt.Printf("%s: ", question)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultValue
	}
	return input
}

func generateRandomString(length int) string {
	bytes := make([]byte, length/2)
	rand.Read(bytes)
	return hex.EncodeToString(bytes)
}

func generateConfig() string {
	return fmt.Sprintf(`# Mailpilot configuration

server:
  listen_addr: "%s"
  api_key: "%s"
  # cors_origins:
  #   - "https://console.example.com"
  tls:
    enabled: false

storage:
  path: "%s"
  secret: "%s"

provider:
  base_url: "%s"
  timeout: 30s

jobs:
  tick_interval: 1s
  pause_poll_interval: 500ms
  max_recipients: 10000

metrics:
  enabled: %v
  listen_addr: ":9090"
  path: "/metrics"
  allowed_ips:
    - "127.0.0.1/32"

logging:
  level: info
  format: json
`, initListenAddr, initAPIKey, filepath.Join(initDataDir, "accounts.db"), initSecret, initProviderURL, initMetrics)
}

func printNextSteps() {
	fmt.Println("Next Steps")
	fmt.Println("==========")
	fmt.Println()
	fmt.Println("1. Add a provider account:")
	fmt.Printf("   mailpilot account add -c %s --name main --from-email news@example.com\n", initOutput)
	fmt.Println()
	fmt.Println("2. Start the server:")
	fmt.Printf("   mailpilot serve -c %s\n", initOutput)
	fmt.Println()
	fmt.Println("3. Check it is up:")
	fmt.Printf("   curl -H \"Authorization: Bearer %s\" http://localhost%s/api/v1/accounts\n", initAPIKey, initListenAddr)
	fmt.Println()
}
