package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return cfgPath
}

func TestLoad(t *testing.T) {
	content := `
server:
  listen_addr: ":9000"
  api_key: "panel-key"
  cors_origins:
    - "http://localhost:5173"

storage:
  path: "/tmp/accounts.db"
  secret: "0123456789abcdef0123"

provider:
  base_url: "https://api.mail.test"
  timeout: 10s

jobs:
  tick_interval: 2s
  pause_poll_interval: 250ms
  max_recipients: 50

metrics:
  enabled: true
  listen_addr: ":9100"

logging:
  level: "debug"
  format: "text"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":9000" {
		t.Errorf("Server.ListenAddr = %v, want :9000", cfg.Server.ListenAddr)
	}
	if cfg.Server.APIKey != "panel-key" {
		t.Errorf("Server.APIKey = %v, want panel-key", cfg.Server.APIKey)
	}
	if len(cfg.Server.CORSOrigins) != 1 {
		t.Errorf("len(Server.CORSOrigins) = %d, want 1", len(cfg.Server.CORSOrigins))
	}
	if cfg.Provider.Timeout != 10*time.Second {
		t.Errorf("Provider.Timeout = %v, want 10s", cfg.Provider.Timeout)
	}
	if cfg.Jobs.TickInterval != 2*time.Second {
		t.Errorf("Jobs.TickInterval = %v, want 2s", cfg.Jobs.TickInterval)
	}
	if cfg.Jobs.PausePollInterval != 250*time.Millisecond {
		t.Errorf("Jobs.PausePollInterval = %v, want 250ms", cfg.Jobs.PausePollInterval)
	}
	if cfg.Jobs.MaxRecipients != 50 {
		t.Errorf("Jobs.MaxRecipients = %v, want 50", cfg.Jobs.MaxRecipients)
	}
	if !cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = false, want true")
	}
	if cfg.Metrics.ListenAddr != ":9100" {
		t.Errorf("Metrics.ListenAddr = %v, want :9100", cfg.Metrics.ListenAddr)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %v, want debug", cfg.Logging.Level)
	}
}

func TestLoadDefaults(t *testing.T) {
	content := `
provider:
  base_url: "https://api.mail.test"
`
	cfg, err := Load(writeConfig(t, content))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.ListenAddr != ":8090" {
		t.Errorf("Server.ListenAddr = %v, want :8090", cfg.Server.ListenAddr)
	}
	if cfg.Storage.Path != "/var/lib/mailpilot/accounts.db" {
		t.Errorf("Storage.Path = %v", cfg.Storage.Path)
	}
	if cfg.Provider.Timeout != 30*time.Second {
		t.Errorf("Provider.Timeout = %v, want 30s", cfg.Provider.Timeout)
	}
	if cfg.Jobs.TickInterval != time.Second {
		t.Errorf("Jobs.TickInterval = %v, want 1s", cfg.Jobs.TickInterval)
	}
	if cfg.Jobs.PausePollInterval != 500*time.Millisecond {
		t.Errorf("Jobs.PausePollInterval = %v, want 500ms", cfg.Jobs.PausePollInterval)
	}
	if cfg.Metrics.Enabled {
		t.Error("Metrics.Enabled = true, want false when omitted")
	}
	if cfg.Metrics.Path != "/metrics" {
		t.Errorf("Metrics.Path = %v, want /metrics", cfg.Metrics.Path)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %v, want info", cfg.Logging.Level)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %v, want json", cfg.Logging.Format)
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("MAILPILOT_API_KEY", "from-env")
	t.Setenv("MAILPILOT_PROVIDER_BASE_URL", "https://env.mail.test")
	t.Setenv("MAILPILOT_LOG_LEVEL", "warn")

	cfg, err := Parse([]byte(`
server:
  api_key: "from-file"
provider:
  base_url: "https://file.mail.test"
`))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	if cfg.Server.APIKey != "from-env" {
		t.Errorf("Server.APIKey = %v, want from-env", cfg.Server.APIKey)
	}
	if cfg.Provider.BaseURL != "https://env.mail.test" {
		t.Errorf("Provider.BaseURL = %v, want https://env.mail.test", cfg.Provider.BaseURL)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %v, want warn", cfg.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	valid := func() Config {
		cfg := Config{Provider: ProviderConfig{BaseURL: "https://api.mail.test"}}
		setDefaults(&cfg)
		return cfg
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{
			name:    "valid config",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "missing provider url",
			mutate:  func(c *Config) { c.Provider.BaseURL = "" },
			wantErr: true,
		},
		{
			name:    "relative provider url",
			mutate:  func(c *Config) { c.Provider.BaseURL = "/v1" },
			wantErr: true,
		},
		{
			name:    "short storage secret",
			mutate:  func(c *Config) { c.Storage.Secret = "short" },
			wantErr: true,
		},
		{
			name: "tls without files",
			mutate: func(c *Config) {
				c.Server.TLS.Enabled = true
			},
			wantErr: true,
		},
		{
			name:    "invalid log level",
			mutate:  func(c *Config) { c.Logging.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			mutate:  func(c *Config) { c.Logging.Format = "invalid" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := validate(&cfg)
			if (err != nil) != tt.wantErr {
				t.Errorf("validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoadFileNotFound(t *testing.T) {
	_, err := Load("/nonexistent/config.yaml")
	if err == nil {
		t.Error("Load() expected error for nonexistent file")
	}
}

func TestLoadInvalidYAML(t *testing.T) {
	_, err := Load(writeConfig(t, `invalid: yaml: content: [`))
	if err == nil {
		t.Error("Load() expected error for invalid YAML")
	}
}
