package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Prefix is prepended to every environment variable, e.g. AGENTMARKET_PORT.
const Prefix = "AGENTMARKET"

// Config holds all configuration for the market node.
type Config struct {
	Port      int    `envconfig:"PORT" default:"8080"`
	Version   string `envconfig:"VERSION" default:"0.1.0"`
	Store     StoreConfig
	Shards    ShardConfig
	Market    MarketConfig
	Faucet    FaucetConfig
	Telemetry TelemetryConfig
	Kafka     KafkaConfig
	Webhook   WebhookConfig
	Keeper    KeeperConfig
	Auth      AuthConfig
}

type StoreConfig struct {
	// Backend is "memory" or "leveldb".
	Backend string `envconfig:"BACKEND" default:"memory"`
	// DataDir holds the snapshot file or the leveldb directory.
	// Empty keeps the memory backend purely in memory.
	DataDir string `envconfig:"DATA_DIR"`
	CacheMB int    `envconfig:"CACHE_MB" default:"16"`
	Handles int    `envconfig:"HANDLES" default:"64"`
}

// ShardConfig places each program. Programs on different shards cannot
// read each other's state.
type ShardConfig struct {
	Identity   uint32 `envconfig:"IDENTITY" default:"0"`
	Validation uint32 `envconfig:"VALIDATION" default:"0"`
	Reputation uint32 `envconfig:"REPUTATION" default:"0"`
	Escrow     uint32 `envconfig:"ESCROW" default:"0"`
}

type MarketConfig struct {
	// DeployerSeed derives the address that deploys and administers the programs.
	DeployerSeed string `envconfig:"DEPLOYER_SEED" default:"deployer"`
	TokenName    string `envconfig:"TOKEN_NAME" default:"AgentIdentity"`
	TokenTicker  string `envconfig:"TOKEN_TICKER" default:"AGENT"`
	// EventBuffer is how many recent events the API keeps for replay.
	EventBuffer int `envconfig:"EVENT_BUFFER" default:"1000"`
}

// FaucetConfig enables minting of test funds over the API.
type FaucetConfig struct {
	Enabled bool   `envconfig:"ENABLED" default:"false"`
	Max     uint64 `envconfig:"MAX" default:"1000000"`
}

type TelemetryConfig struct {
	Enabled      bool   `envconfig:"ENABLED" default:"false"`
	OTLPEndpoint string `envconfig:"OTLP_ENDPOINT" default:"localhost:4317"`
	ServiceName  string `envconfig:"SERVICE_NAME" default:"agentmarket"`
	// Insecure disables TLS to the collector.
	Insecure bool `envconfig:"INSECURE" default:"true"`
	// Headers are sent with every export, as "key:value,key:value".
	Headers     map[string]string `envconfig:"HEADERS"`
	SampleRatio float64           `envconfig:"SAMPLE_RATIO" default:"1"`
}

type KafkaConfig struct {
	// Brokers is a comma separated bootstrap list. Empty disables the sink.
	Brokers string        `envconfig:"BROKERS"`
	Topic   string        `envconfig:"TOPIC" default:"agentmarket.events"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"5s"`
}

// WebhookConfig posts committed events to HTTP endpoints.
type WebhookConfig struct {
	// URLs is a comma separated list. Empty disables the sink.
	URLs    []string      `envconfig:"URLS"`
	Secret  string        `envconfig:"SECRET"`
	Events  []string      `envconfig:"EVENTS"`
	Timeout time.Duration `envconfig:"TIMEOUT" default:"15s"`
}

type KeeperConfig struct {
	Enabled   bool          `envconfig:"ENABLED" default:"true"`
	Interval  time.Duration `envconfig:"INTERVAL" default:"1h"`
	Seed      string        `envconfig:"SEED" default:"keeper"`
	BatchSize int           `envconfig:"BATCH_SIZE" default:"100"`
	// ArchiveDir, when set, archives expired jobs before they are purged.
	ArchiveDir string `envconfig:"ARCHIVE_DIR"`
	Compress   bool   `envconfig:"COMPRESS" default:"true"`
}

type AuthConfig struct {
	// APIKeys enables API key auth when non-empty (comma separated). An
	// entry "key@0x<address>" may only act as that address.
	APIKeys []string `envconfig:"API_KEYS"`
}

// Load reads configuration from AGENTMARKET_* environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process(Prefix, &cfg); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks values envconfig cannot.
func (c *Config) Validate() error {
	switch c.Store.Backend {
	case "memory":
	case "leveldb":
		if c.Store.DataDir == "" {
			return fmt.Errorf("config: leveldb backend requires %s_STORE_DATA_DIR", Prefix)
		}
	default:
		return fmt.Errorf("config: unknown store backend %q", c.Store.Backend)
	}
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: invalid port %d", c.Port)
	}
	if c.Market.DeployerSeed == "" {
		return fmt.Errorf("config: deployer seed is required")
	}
	return nil
}
