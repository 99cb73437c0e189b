package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"bondmint/crypto"
)

// Config is the bondmintd node configuration.
type Config struct {
	ListenAddress string `toml:"ListenAddress"`
	MetricsPath   string `toml:"MetricsPath"`
	Environment   string `toml:"Environment"`
	LogLevel      string `toml:"LogLevel"`
	LogFile       string `toml:"LogFile"`

	// AuthSecret is the HMAC key for gateway JWT bearer tokens. Mutating
	// routes refuse to start without one.
	AuthSecret string `toml:"AuthSecret"`
	// RateLimitPerSecond caps mutating requests per client token.
	RateLimitPerSecond float64 `toml:"RateLimitPerSecond"`
	RateLimitBurst     int     `toml:"RateLimitBurst"`

	// AdminAddress is the operator account bootstrapped into the transfer
	// whitelist at boot, so it can issue and custody bond series before any
	// identity approvals are made through the gateway.
	AdminAddress string `toml:"AdminAddress"`
	// PenaltySinkAddress receives the liquidation penalty share; empty leaves
	// the penalty in engine custody.
	PenaltySinkAddress string `toml:"PenaltySinkAddress"`
	// OraclePublishers are addresses admitted to the price registry at boot.
	OraclePublishers []string `toml:"OraclePublishers"`
}

// Load reads the configuration at path, creating a default file when none
// exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if strings.TrimSpace(c.ListenAddress) == "" {
		c.ListenAddress = ":8080"
	}
	if strings.TrimSpace(c.MetricsPath) == "" {
		c.MetricsPath = "/metrics"
	}
	if strings.TrimSpace(c.Environment) == "" {
		c.Environment = "local"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
	if c.RateLimitPerSecond <= 0 {
		c.RateLimitPerSecond = 10
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 20
	}
	if c.OraclePublishers == nil {
		c.OraclePublishers = []string{}
	}
}

// Validate rejects configurations the daemon cannot safely run with.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.ListenAddress) == "" {
		return fmt.Errorf("ListenAddress required")
	}
	if strings.TrimSpace(c.AuthSecret) == "" {
		return fmt.Errorf("AuthSecret required")
	}
	if strings.TrimSpace(c.AdminAddress) == "" {
		return fmt.Errorf("AdminAddress required")
	}
	if _, err := c.Admin(); err != nil {
		return err
	}
	if sink := strings.TrimSpace(c.PenaltySinkAddress); sink != "" {
		if _, err := crypto.DecodeAddress(sink); err != nil {
			return fmt.Errorf("PenaltySinkAddress: %w", err)
		}
	}
	return nil
}

// Admin decodes the operator address.
func (c *Config) Admin() (crypto.Address, error) {
	addr, err := crypto.DecodeAddress(strings.TrimSpace(c.AdminAddress))
	if err != nil {
		return crypto.Address{}, fmt.Errorf("AdminAddress: %w", err)
	}
	return addr, nil
}

// createDefault creates and saves a default configuration file. The generated
// file fails validation until AuthSecret and AdminAddress are filled in, which
// is intentional.
func createDefault(path string) (*Config, error) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := persist(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func persist(path string, cfg *Config) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return toml.NewEncoder(f).Encode(cfg)
}
