package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config is the main configuration structure
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Storage  StorageConfig  `yaml:"storage"`
	Provider ProviderConfig `yaml:"provider"`
	Jobs     JobsConfig     `yaml:"jobs"`
	Metrics  MetricsConfig  `yaml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type ServerConfig struct {
	ListenAddr  string    `yaml:"listen_addr"`
	APIKey      string    `yaml:"api_key"`
	CORSOrigins []string  `yaml:"cors_origins"`
	TLS         TLSConfig `yaml:"tls"`
}

type TLSConfig struct {
	Enabled  bool   `yaml:"enabled"`
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// StorageConfig points at the bolt file holding provider accounts.
// When Secret is set, API keys are encrypted at rest.
type StorageConfig struct {
	Path   string `yaml:"path"`
	Secret string `yaml:"secret"`
}

type ProviderConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// JobsConfig tunes the bulk job runner
type JobsConfig struct {
	TickInterval      time.Duration `yaml:"tick_interval"`       // Default: 1s
	PausePollInterval time.Duration `yaml:"pause_poll_interval"` // Default: 500ms
	MaxRecipients     int           `yaml:"max_recipients"`      // Default: 10000
}

// MetricsConfig contains Prometheus metrics settings
type MetricsConfig struct {
	Enabled    bool     `yaml:"enabled"`     // Default: false
	ListenAddr string   `yaml:"listen_addr"` // Default: :9090
	Path       string   `yaml:"path"`        // Default: /metrics
	AllowedIPs []string `yaml:"allowed_ips"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// envOverrides are read from MAILPILOT_* variables after the file is parsed
type envOverrides struct {
	ListenAddr      string `envconfig:"LISTEN_ADDR"`
	APIKey          string `envconfig:"API_KEY"`
	StoragePath     string `envconfig:"STORAGE_PATH"`
	StorageSecret   string `envconfig:"STORAGE_SECRET"`
	ProviderBaseURL string `envconfig:"PROVIDER_BASE_URL"`
	LogLevel        string `envconfig:"LOG_LEVEL"`
	LogFormat       string `envconfig:"LOG_FORMAT"`
}

// EnvPrefix is the prefix of environment overrides
const EnvPrefix = "MAILPILOT"

func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return Parse(data)
}

// Parse builds a Config from YAML bytes, applying defaults and environment overrides
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	setDefaults(cfg)

	if err := applyEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func setDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = ":8090"
	}
	if cfg.Storage.Path == "" {
		cfg.Storage.Path = "/var/lib/mailpilot/accounts.db"
	}
	if cfg.Provider.Timeout == 0 {
		cfg.Provider.Timeout = 30 * time.Second
	}
	if cfg.Jobs.TickInterval == 0 {
		cfg.Jobs.TickInterval = time.Second
	}
	if cfg.Jobs.PausePollInterval == 0 {
		cfg.Jobs.PausePollInterval = 500 * time.Millisecond
	}
	if cfg.Jobs.MaxRecipients == 0 {
		cfg.Jobs.MaxRecipients = 10000
	}
	if cfg.Metrics.ListenAddr == "" {
		cfg.Metrics.ListenAddr = ":9090"
	}
	if cfg.Metrics.Path == "" {
		cfg.Metrics.Path = "/metrics"
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func applyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return err
	}

	if env.ListenAddr != "" {
		cfg.Server.ListenAddr = env.ListenAddr
	}
	if env.APIKey != "" {
		cfg.Server.APIKey = env.APIKey
	}
	if env.StoragePath != "" {
		cfg.Storage.Path = env.StoragePath
	}
	if env.StorageSecret != "" {
		cfg.Storage.Secret = env.StorageSecret
	}
	if env.ProviderBaseURL != "" {
		cfg.Provider.BaseURL = env.ProviderBaseURL
	}
	if env.LogLevel != "" {
		cfg.Logging.Level = env.LogLevel
	}
	if env.LogFormat != "" {
		cfg.Logging.Format = env.LogFormat
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.Provider.BaseURL == "" {
		return fmt.Errorf("provider.base_url is required")
	}
	u, err := url.Parse(cfg.Provider.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("provider.base_url must be an absolute URL")
	}
	if cfg.Storage.Secret != "" && len(cfg.Storage.Secret) < 16 {
		return fmt.Errorf("storage.secret must be at least 16 characters")
	}
	if cfg.Server.TLS.Enabled && (cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "") {
		return fmt.Errorf("server.tls.cert_file and server.tls.key_file are required when TLS is enabled")
	}
	if cfg.Jobs.MaxRecipients < 0 {
		return fmt.Errorf("jobs.max_recipients must not be negative")
	}
	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be one of debug, info, warn, error, got %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format must be json or text, got %q", cfg.Logging.Format)
	}
	return nil
}
