package config

import (
	"fmt"
	"os"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// envPrefix is the prefix for environment overrides, e.g. TRACKER_DATABASE_PASSWORD.
const envPrefix = "TRACKER"

// envOverrides lists the settings that may be supplied through the environment.
// Secrets live here so they never have to be written to the config file.
type envOverrides struct {
	ServerPort       int    `envconfig:"SERVER_PORT"`
	DatabaseHost     string `envconfig:"DATABASE_HOST"`
	DatabaseUser     string `envconfig:"DATABASE_USER"`
	DatabasePassword string `envconfig:"DATABASE_PASSWORD"`
	LogLevel         string `envconfig:"LOG_LEVEL"`
	NATSURL          string `envconfig:"NATS_URL"`
	RedisAddress     string `envconfig:"REDIS_ADDRESS"`
	WalletMasterKey  string `envconfig:"WALLET_MASTER_KEY"`
	WalletSeed       string `envconfig:"WALLET_SEED"`
}

func (o envOverrides) apply(cfg *Config) {
	if o.ServerPort != 0 {
		cfg.Server.Port = o.ServerPort
	}
	setIfNotEmpty(&cfg.Database.Host, o.DatabaseHost)
	setIfNotEmpty(&cfg.Database.User, o.DatabaseUser)
	setIfNotEmpty(&cfg.Database.Password, o.DatabasePassword)
	setIfNotEmpty(&cfg.Logging.Level, o.LogLevel)
	setIfNotEmpty(&cfg.NATS.URL, o.NATSURL)
	setIfNotEmpty(&cfg.Redis.Address, o.RedisAddress)
	setIfNotEmpty(&cfg.Wallets.MasterKey, o.WalletMasterKey)
	setIfNotEmpty(&cfg.Wallets.Seed, o.WalletSeed)
}

func setIfNotEmpty(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// Config represents the tracker configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Logging    LoggingConfig    `yaml:"logging"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Networks   []NetworkConfig  `yaml:"networks" validate:"required,min=1,dive"`
	Assets     AssetsConfig     `yaml:"assets"`
	Price      PriceConfig      `yaml:"price"`
	NATS       NATSConfig       `yaml:"nats"`
	Redis      RedisConfig      `yaml:"redis"`
	TVM        TVMConfig        `yaml:"tvm"`
	Wallets    WalletsConfig    `yaml:"wallets"`
	Auth       AuthConfig       `yaml:"auth"`
	Engine     EngineConfig     `yaml:"engine"`
	Shutdown   ShutdownConfig   `yaml:"shutdown"`
}

// ServerConfig contains HTTP server settings
type ServerConfig struct {
	Host              string        `yaml:"host" default:"0.0.0.0"`
	Port              int           `yaml:"port" default:"8080" validate:"gt=0,lt=65536"`
	ReadTimeout       time.Duration `yaml:"read_timeout" default:"15s"`
	WriteTimeout      time.Duration `yaml:"write_timeout" default:"15s"`
	IdleTimeout       time.Duration `yaml:"idle_timeout" default:"60s"`
	MiddlewareTimeout time.Duration `yaml:"middleware_timeout" default:"60s"`
}

// DatabaseConfig contains database connection settings
type DatabaseConfig struct {
	Host     string `yaml:"host" default:"localhost" validate:"required"`
	Port     int    `yaml:"port" default:"5432"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database" default:"bridge_tracker"`
	SSLMode  string `yaml:"ssl_mode" default:"disable"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Level      string `yaml:"level" default:"info"`
	Format     string `yaml:"format" default:"json" validate:"oneof=json console"`
	OutputPath string `yaml:"output_path" default:"stdout"`
}

// MonitoringConfig contains monitoring and metrics settings
type MonitoringConfig struct {
	Enabled bool `yaml:"enabled" default:"true"`
}

// NetworkConfig describes one chain known to the tracker.
type NetworkConfig struct {
	Kind               string        `yaml:"kind" validate:"required,oneof=evm tvm solana"`
	ChainID            string        `yaml:"chain_id" validate:"required"`
	Name               string        `yaml:"name"`
	RPCURL             string        `yaml:"rpc_url" validate:"required,url"`
	WSURL              string        `yaml:"ws_url" validate:"omitempty,url"`
	CurrencySymbol     string        `yaml:"currency_symbol" validate:"required"`
	CurrencyDecimals   uint8         `yaml:"currency_decimals" default:"18"`
	ExplorerBaseURL    string        `yaml:"explorer_base_url" validate:"omitempty,url"`
	ConfirmationBlocks uint64        `yaml:"confirmation_blocks" default:"12"`
	BlockTime          time.Duration `yaml:"block_time" default:"12s"`
	PollingInterval    time.Duration `yaml:"polling_interval" default:"10s"`
	GasLimit           uint64        `yaml:"gas_limit" default:"300000"`
	MaxGasPrice        string        `yaml:"max_gas_price"`
}

// AssetsConfig points to the token/route manifest.
type AssetsConfig struct {
	ManifestURL  string        `yaml:"manifest_url" validate:"required"`
	CacheSize    int           `yaml:"cache_size" default:"1024"`
	CacheTTL     time.Duration `yaml:"cache_ttl" default:"10m"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" default:"15s"`
}

// PriceConfig configures the native currency ticker.
type PriceConfig struct {
	// URL is a template with a single %s for the currency symbol.
	URL      string        `yaml:"url" validate:"required"`
	CacheTTL time.Duration `yaml:"cache_ttl" default:"30s"`
	Timeout  time.Duration `yaml:"timeout" default:"10s"`
}

// NATSConfig configures the TVM event stream.
type NATSConfig struct {
	URL            string        `yaml:"url" default:"nats://localhost:4222"`
	SubjectPrefix  string        `yaml:"subject_prefix" default:"tvm"`
	ConnectTimeout time.Duration `yaml:"connect_timeout" default:"10s"`
	ReconnectWait  time.Duration `yaml:"reconnect_wait" default:"5s"`
}

// RedisConfig configures the optional shared manifest cache.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Address string `yaml:"address" default:"localhost:6379"`
}

// TVMConfig configures the TVM gateway JSON-RPC endpoint.
type TVMConfig struct {
	GetterCacheSize int           `yaml:"getter_cache_size" default:"4096"`
	RequestTimeout  time.Duration `yaml:"request_timeout" default:"20s"`
}

// WalletsConfig configures the keyed wallets the tracker may act with.
type WalletsConfig struct {
	// MasterKey is the base64 AES-256 key protecting EncryptedKey values.
	MasterKey string         `yaml:"master_key"`
	Seed      string         `yaml:"seed"`
	Accounts  []WalletConfig `yaml:"accounts" validate:"dive"`
}

// WalletConfig binds one key to one network.
type WalletConfig struct {
	Network      string `yaml:"network" validate:"required"`
	EncryptedKey string `yaml:"encrypted_key"`
	// Derive makes the key derived from WalletsConfig.Seed instead of EncryptedKey.
	Derive bool `yaml:"derive"`
	// Address is only used for TVM wallets, which sign external messages for this account.
	Address string `yaml:"address"`
}

// AuthConfig contains JWT validation settings for action endpoints
type AuthConfig struct {
	JWKSURL string `yaml:"jwks_url"`
	Issuer  string `yaml:"issuer"`
}

// EngineConfig tunes the transfer engine.
type EngineConfig struct {
	EstimateInterval   time.Duration `yaml:"estimate_interval" default:"10s"`
	ResubscribeDelay   time.Duration `yaml:"resubscribe_delay" default:"5s"`
	RefreshTimeout     time.Duration `yaml:"refresh_timeout" default:"10s"`
	TerminalDisposeTTL time.Duration `yaml:"terminal_dispose_ttl" default:"5m"`
	RestoreLimit       int           `yaml:"restore_limit" default:"500"`
}

// ShutdownConfig contains graceful shutdown settings
type ShutdownConfig struct {
	Timeout time.Duration `yaml:"timeout" default:"30s"`
}

// Load loads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	var cfg Config
	if err := defaults.Set(&cfg); err != nil {
		return nil, fmt.Errorf("failed to set defaults: %w", err)
	}

	if err := readConfigFile(&cfg, configPath); err != nil {
		return nil, err
	}

	// slice elements are decoded after the top level defaults ran
	for i := range cfg.Networks {
		if err := defaults.Set(&cfg.Networks[i]); err != nil {
			return nil, fmt.Errorf("failed to set network defaults: %w", err)
		}
	}

	var env envOverrides
	if err := envconfig.Process(envPrefix, &env); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	env.apply(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func readConfigFile(cfg *Config, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open config file %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	if err := yaml.NewDecoder(f).Decode(cfg); err != nil {
		return fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	return nil
}

func validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return err
	}

	seen := make(map[string]struct{}, len(cfg.Networks))
	for _, n := range cfg.Networks {
		ref := n.Kind + "-" + n.ChainID
		if _, ok := seen[ref]; ok {
			return fmt.Errorf("duplicate network %s", ref)
		}
		seen[ref] = struct{}{}
	}
	for _, w := range cfg.Wallets.Accounts {
		if _, ok := seen[w.Network]; !ok {
			return fmt.Errorf("wallet references unknown network %s", w.Network)
		}
		if !w.Derive && w.EncryptedKey == "" {
			return fmt.Errorf("wallet for %s needs encrypted_key or derive", w.Network)
		}
		if w.Derive && cfg.Wallets.Seed == "" {
			return fmt.Errorf("wallet for %s is derived but wallets.seed is empty", w.Network)
		}
	}
	return nil
}

// GetConnectionString returns a PostgreSQL connection string
func (c *DatabaseConfig) GetConnectionString() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}
