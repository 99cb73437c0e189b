package pricefeed

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the pricefeedd daemon configuration.
type Config struct {
	// Bonds are the security identifiers to track.
	Bonds []string `yaml:"bonds"`
	// GatewayURL is the bondmint gateway base URL proofs are published to.
	GatewayURL string `yaml:"gatewayUrl"`
	// ISSBaseURL overrides the exchange endpoint, mainly for tests.
	ISSBaseURL string `yaml:"issBaseUrl"`
	// PublisherKeyHex is the hex-encoded secp256k1 key proofs are signed with.
	// PublisherKeyEnv names an environment variable consulted when empty.
	PublisherKeyHex string `yaml:"publisherKeyHex"`
	PublisherKeyEnv string `yaml:"publisherKeyEnv"`
	NonceFile       string `yaml:"nonceFile"`
	HistoryDB       string `yaml:"historyDb"`

	// Interval is the exchange poll period. A polled price is published only
	// when it moved more than DeviationBips basis points since the last
	// published value, or when RepublishInterval elapsed since the last
	// publish (heartbeat for flat prices).
	Interval          time.Duration `yaml:"interval"`
	RepublishInterval time.Duration `yaml:"republishInterval"`
	CacheTTL          time.Duration `yaml:"cacheTtl"`
	DeviationBips     int64         `yaml:"deviationBips"`

	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`
}

// LoadConfig reads and validates the YAML config at path.
func LoadConfig(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("pricefeed: read config: %w", err)
	}
	cfg := &Config{}
	if err := yaml.Unmarshal(raw, cfg); err != nil {
		return nil, fmt.Errorf("pricefeed: parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("pricefeed: config %s: %w", path, err)
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Minute
	}
	if c.RepublishInterval <= 0 {
		c.RepublishInterval = 15 * time.Minute
	}
	if c.CacheTTL <= 0 {
		c.CacheTTL = 10 * time.Second
	}
	if c.DeviationBips <= 0 {
		c.DeviationBips = 50
	}
	if strings.TrimSpace(c.NonceFile) == "" {
		c.NonceFile = "pricefeed-nonce.json"
	}
	if strings.TrimSpace(c.HistoryDB) == "" {
		c.HistoryDB = "pricefeed-history.db"
	}
	if strings.TrimSpace(c.LogLevel) == "" {
		c.LogLevel = "info"
	}
}

// Validate rejects configurations the daemon cannot run with.
func (c *Config) Validate() error {
	if len(c.Bonds) == 0 {
		return fmt.Errorf("at least one bond required")
	}
	if strings.TrimSpace(c.GatewayURL) == "" {
		return fmt.Errorf("gatewayUrl required")
	}
	if strings.TrimSpace(c.PublisherKeyHex) == "" && strings.TrimSpace(c.PublisherKeyEnv) == "" {
		return fmt.Errorf("publisherKeyHex or publisherKeyEnv required")
	}
	if c.RepublishInterval < c.Interval {
		return fmt.Errorf("republishInterval must not be shorter than the poll interval")
	}
	return nil
}

// ResolveKey returns the signing key material, consulting the environment when
// the config does not embed it.
func (c *Config) ResolveKey() (string, error) {
	if key := strings.TrimSpace(c.PublisherKeyHex); key != "" {
		return key, nil
	}
	key := strings.TrimSpace(os.Getenv(c.PublisherKeyEnv))
	if key == "" {
		return "", fmt.Errorf("pricefeed: environment variable %s is empty", c.PublisherKeyEnv)
	}
	return key, nil
}
