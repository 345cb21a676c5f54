// Package config loads and persists the trading server's configuration.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all boot-time settings for the trading server. There is no
// hot reload: a running server never re-reads this file.
type Config struct {
	// Listen is the TCP address the server accepts connections on.
	Listen string `yaml:"listen"`

	// ObserverListen is the HTTP address serving the read-only WebSocket
	// observer feed (chat, rare drops, moderation warnings). Empty
	// disables the observer surface entirely.
	ObserverListen string `yaml:"observer_listen"`

	Storage StorageConfig `yaml:"storage"`
	Logging LoggingConfig `yaml:"logging"`
	Workers WorkerConfig  `yaml:"workers"`
	Game    GameConfig    `yaml:"game"`
}

// StorageConfig holds storage settings.
type StorageConfig struct {
	// DataDir is the directory holding the SQLite database file.
	DataDir string `yaml:"data_dir"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	// Level is the log level (debug, info, warn, error).
	Level string `yaml:"level"`
}

// WorkerConfig holds the dispatcher's worker-pool sizing.
type WorkerConfig struct {
	// Count is the number of goroutines draining the job queue.
	Count int `yaml:"count"`

	// QueueCapacity bounds how many requests may be buffered awaiting a
	// free worker before a new connection's read loop blocks.
	QueueCapacity int `yaml:"queue_capacity"`
}

// GameConfig holds the economic and session-lifetime constants that shape
// gameplay. These mirror the constants baked into the reference server.
// They are loaded and saved with the config file, but the engines use
// their own package constants and do not read these fields, so changing
// them does not change server behaviour.
type GameConfig struct {
	// StartingBalance is credited to every newly registered account.
	StartingBalance float64 `yaml:"starting_balance"`

	// KeyPrice is added to a case's own price when unboxing.
	KeyPrice float64 `yaml:"key_price"`

	// MarketFeeRate is the seller's cut taken on every market sale.
	MarketFeeRate float64 `yaml:"market_fee_rate"`

	// SessionIdleTimeout expires a session after this much inactivity.
	SessionIdleTimeout time.Duration `yaml:"session_idle_timeout"`

	// TradeOfferTTL is how long a pending peer trade stays acceptable.
	TradeOfferTTL time.Duration `yaml:"trade_offer_ttl"`

	// TradeLockDuration is how long an item stays untradable after being
	// bought on the market.
	TradeLockDuration time.Duration `yaml:"trade_lock_duration"`

	// ReportWarnThreshold is the number of reports against a user (every
	// report counts, including repeats from the same reporter) that
	// triggers an automatic warning broadcast.
	ReportWarnThreshold int `yaml:"report_warn_threshold"`
}

// DefaultConfig returns a Config with the reference server's constants.
func DefaultConfig() *Config {
	return &Config{
		Listen:         ":8888",
		ObserverListen: ":8889",
		Storage: StorageConfig{
			DataDir: "~/.klingoserver",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Workers: WorkerConfig{
			Count:         8,
			QueueCapacity: 1000,
		},
		Game: GameConfig{
			StartingBalance:     100.0,
			KeyPrice:            2.50,
			MarketFeeRate:       0.15,
			SessionIdleTimeout:  time.Hour,
			TradeOfferTTL:       15 * time.Minute,
			TradeLockDuration:   7 * 24 * time.Hour,
			ReportWarnThreshold: 5,
		},
	}
}

// ConfigFileName is the default config file name within a data directory.
const ConfigFileName = "config.yaml"

// LoadConfig loads configuration from a YAML file under dataDir. If the
// file doesn't exist, it creates one populated with the defaults so the
// operator has something to edit on the next boot.
func LoadConfig(dataDir string) (*Config, error) {
	expandedDir := expandPath(dataDir)
	configPath := filepath.Join(expandedDir, ConfigFileName)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.Storage.DataDir = dataDir

		if err := cfg.Save(configPath); err != nil {
			return nil, fmt.Errorf("create default config: %w", err)
		}
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	return cfg, nil
}

// Save writes the configuration to a YAML file, creating its directory if
// necessary.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	header := []byte("# Trading server configuration\n# Generated automatically on first run\n\n")
	data = append(header, data...)

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}

	return nil
}

// ConfigPath returns the full path to the config file for the given data
// directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(expandPath(dataDir), ConfigFileName)
}

func expandPath(path string) string {
	if len(path) > 0 && path[0] == '~' {
		home, _ := os.UserHomeDir()
		return filepath.Join(home, path[1:])
	}
	return path
}
