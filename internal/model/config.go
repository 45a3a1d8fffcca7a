package model

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Addr is the listen address, e.g. ":8080".
	Addr string `mapstructure:"addr" yaml:"addr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"log_level" yaml:"log_level"`

	// LogFormat is "json" or "text".
	LogFormat string `mapstructure:"log_format" yaml:"log_format"`
}

// DatabaseConfig holds local persistence settings.
type DatabaseConfig struct {
	// Path is the SQLite database file path.
	Path string `mapstructure:"path" yaml:"path"`
}

// OAuthConfig holds the Google OAuth client used to mint bearer tokens
// from stored refresh tokens.
type OAuthConfig struct {
	ClientID     string `mapstructure:"client_id" yaml:"client_id"`
	ClientSecret string `mapstructure:"client_secret" yaml:"client_secret"`
	RedirectURL  string `mapstructure:"redirect_url" yaml:"redirect_url"`
}

// IMAPConfig holds the mail-protocol endpoint for the metadata scanner.
type IMAPConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port string `mapstructure:"port" yaml:"port"`
}

// GmailAPIConfig holds the REST endpoint for the API scanner.
type GmailAPIConfig struct {
	BaseURL string `mapstructure:"base_url" yaml:"base_url"`
}

// ScanConfig holds default scanner tuning. Per-request overrides win over
// these, which win over the built-in backend defaults.
type ScanConfig struct {
	BatchSize           int  `mapstructure:"batch_size" yaml:"batch_size"`
	MaxMessages         int  `mapstructure:"max_messages" yaml:"max_messages"`
	DelayBetweenBatches int  `mapstructure:"delay_between_batches_ms" yaml:"delay_between_batches_ms"`
	UsePersistence      bool `mapstructure:"use_persistence" yaml:"use_persistence"`
}

// RescanAccountConfig names one account kept fresh by the background
// rescan poller. The refresh token is exchanged for a mail client at
// startup.
type RescanAccountConfig struct {
	RefreshToken string `mapstructure:"refresh_token" yaml:"refresh_token"`
	Kind         string `mapstructure:"kind" yaml:"kind"`
}

// RescanConfig holds the background rescan rotation.
type RescanConfig struct {
	IntervalMinutes int                   `mapstructure:"interval_minutes" yaml:"interval_minutes"`
	Accounts        []RescanAccountConfig `mapstructure:"accounts" yaml:"accounts"`
}

// AppConfig is the top-level application configuration.
type AppConfig struct {
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	Database DatabaseConfig `mapstructure:"database" yaml:"database"`
	OAuth    OAuthConfig    `mapstructure:"oauth" yaml:"oauth"`
	IMAP     IMAPConfig     `mapstructure:"imap" yaml:"imap"`
	GmailAPI GmailAPIConfig `mapstructure:"gmail_api" yaml:"gmail_api"`
	Scan     ScanConfig     `mapstructure:"scan" yaml:"scan"`
	Rescan   RescanConfig   `mapstructure:"rescan" yaml:"rescan"`
}

// DefaultConfigPath returns the default path for the configuration file,
// located at ~/.config/inboxgraph/config.yaml.
func DefaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".", "config.yaml")
	}
	return filepath.Join(home, ".config", "inboxgraph", "config.yaml")
}

// defaultAppConfig returns a sensible default configuration.
func defaultAppConfig() *AppConfig {
	return &AppConfig{
		Server: ServerConfig{
			Addr:      ":8080",
			LogLevel:  "info",
			LogFormat: "json",
		},
		Database: DatabaseConfig{
			Path: filepath.Join(".", "inboxgraph.db"),
		},
		IMAP: IMAPConfig{
			Host: "imap.gmail.com",
			Port: "993",
		},
		GmailAPI: GmailAPIConfig{
			BaseURL: "https://gmail.googleapis.com/gmail/v1",
		},
		Scan: ScanConfig{
			UsePersistence: true,
		},
		Rescan: RescanConfig{
			IntervalMinutes: 60,
		},
	}
}

// LoadConfig reads configuration from the given YAML file path using Viper.
// If the file does not exist, it returns a default configuration.
func LoadConfig(path string) (*AppConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	// Set defaults so missing keys resolve to sensible values.
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("database.path", filepath.Join(".", "inboxgraph.db"))
	v.SetDefault("imap.host", "imap.gmail.com")
	v.SetDefault("imap.port", "993")
	v.SetDefault("gmail_api.base_url", "https://gmail.googleapis.com/gmail/v1")
	v.SetDefault("scan.use_persistence", true)
	v.SetDefault("rescan.interval_minutes", 60)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(*os.PathError); ok {
			return defaultAppConfig(), nil
		}
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return defaultAppConfig(), nil
		}
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	cfg := defaultAppConfig()
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	return cfg, nil
}

// SaveConfig writes the given configuration to a YAML file at path,
// creating parent directories if needed.
func SaveConfig(path string, cfg *AppConfig) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating config directory %s: %w", dir, err)
	}

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	v.Set("server", cfg.Server)
	v.Set("database", cfg.Database)
	v.Set("oauth", cfg.OAuth)
	v.Set("imap", cfg.IMAP)
	v.Set("gmail_api", cfg.GmailAPI)
	v.Set("scan", cfg.Scan)
	v.Set("rescan", cfg.Rescan)

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("writing config to %s: %w", path, err)
	}

	return nil
}
