package config

import (
	"errors"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
)

// Config represents the overall application configuration.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Database   DatabaseConfig   `yaml:"database"`
	Chain      ChainConfig      `yaml:"chain"`
	Storage    StorageConfig    `yaml:"storage"`
	Push       PushConfig       `yaml:"push"`
	WorkerPool WorkerPoolConfig `yaml:"worker_pool"`
}

// WorkerPoolConfig holds the configuration for the notification worker pool.
type WorkerPoolConfig struct {
	Size int `yaml:"size"`
}

// PushConfig holds the VAPID keys for web push notifications.
type PushConfig struct {
	PublicKey  string `yaml:"vapid_public_key"`
	PrivateKey string `yaml:"vapid_private_key"`
	Subject    string `yaml:"subject"`
	TTL        int    `yaml:"ttl"`
}

// ServerConfig holds the server-related configuration.
type ServerConfig struct {
	Port            int     `yaml:"port"`
	RateLimitPerSec float64 `yaml:"rate_limit_per_sec"`
	RateLimitBurst  int     `yaml:"rate_limit_burst"`
	CacheTTLSeconds int     `yaml:"cache_ttl_seconds"`
}

// DatabaseConfig holds the database connection configuration.
type DatabaseConfig struct {
	Driver                 string `yaml:"driver"` // postgres or sqlite
	DSN                    string `yaml:"dsn"`
	MaxOpenConns           int    `yaml:"max_open_conns"`
	MaxIdleConns           int    `yaml:"max_idle_conns"`
	ConnMaxLifetimeMinutes int    `yaml:"conn_max_lifetime_minutes"`
}

// ChainConfig describes the ledger endpoint and the deployed contracts.
type ChainConfig struct {
	RPCURL         string          `yaml:"rpc_url"`
	ChainID        int64           `yaml:"chain_id"`
	OperatorKey    string          `yaml:"operator_key"` // hex secp256k1 key, optional
	AdminAddress   string          `yaml:"admin_address"`
	TimeoutSeconds int             `yaml:"timeout_seconds"`
	Timeout        time.Duration   `yaml:"-"`
	Contracts      ContractsConfig `yaml:"contracts"`
}

// ContractsConfig holds the deployed contract addresses.
type ContractsConfig struct {
	DeviceRegistry    string `yaml:"device_registry"`
	AccessManager     string `yaml:"access_manager"`
	IoTDataLedger     string `yaml:"iot_data_ledger"`
	TokenRewards      string `yaml:"token_rewards"`
	OracleIntegration string `yaml:"oracle_integration"`
}

// StorageConfig holds the content-addressed storage upload settings.
type StorageConfig struct {
	Endpoint       string        `yaml:"endpoint"`
	Token          string        `yaml:"token"`
	ClientName     string        `yaml:"client_name"`
	TimeoutSeconds int           `yaml:"timeout_seconds"`
	Timeout        time.Duration `yaml:"-"`
}

// Load reads the configuration from the given path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var cfg Config
	decoder := yaml.NewDecoder(f)
	if err := decoder.Decode(&cfg); err != nil {
		return nil, err
	}

	// Secrets may be kept out of the file entirely.
	if v := os.Getenv("IOT_STORAGE_TOKEN"); v != "" {
		cfg.Storage.Token = v
	}
	if v := os.Getenv("IOT_OPERATOR_KEY"); v != "" {
		cfg.Chain.OperatorKey = v
	}

	cfg.applyDefaults()

	if err := cfg.Chain.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Server.Port <= 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.RateLimitPerSec <= 0 {
		cfg.Server.RateLimitPerSec = 10
	}
	if cfg.Server.RateLimitBurst <= 0 {
		cfg.Server.RateLimitBurst = 5
	}
	if cfg.Server.CacheTTLSeconds <= 0 {
		cfg.Server.CacheTTLSeconds = 30
	}

	if cfg.Database.Driver == "" {
		cfg.Database.Driver = "postgres"
	}

	if cfg.Chain.TimeoutSeconds <= 0 {
		cfg.Chain.TimeoutSeconds = 10
	}
	cfg.Chain.Timeout = time.Duration(cfg.Chain.TimeoutSeconds) * time.Second

	if cfg.Storage.Endpoint == "" {
		cfg.Storage.Endpoint = "https://api.web3.storage/upload"
	}
	if cfg.Storage.ClientName == "" {
		cfg.Storage.ClientName = "web3.storage/js"
	}
	if cfg.Storage.TimeoutSeconds <= 0 {
		cfg.Storage.TimeoutSeconds = 30
	}
	cfg.Storage.Timeout = time.Duration(cfg.Storage.TimeoutSeconds) * time.Second

	if cfg.Push.TTL <= 0 {
		cfg.Push.TTL = 3600
	}

	if cfg.WorkerPool.Size <= 0 {
		log.Printf("worker_pool.size is not set or invalid; defaulting to 1")
		cfg.WorkerPool.Size = 1
	}
}

// Validate checks that every configured address is a well-formed hex address.
func (c ChainConfig) Validate() error {
	addrs := map[string]string{
		"chain.admin_address":                c.AdminAddress,
		"chain.contracts.device_registry":    c.Contracts.DeviceRegistry,
		"chain.contracts.access_manager":     c.Contracts.AccessManager,
		"chain.contracts.iot_data_ledger":    c.Contracts.IoTDataLedger,
		"chain.contracts.token_rewards":      c.Contracts.TokenRewards,
		"chain.contracts.oracle_integration": c.Contracts.OracleIntegration,
	}
	var errs []error
	for key, v := range addrs {
		if !common.IsHexAddress(v) {
			errs = append(errs, fmt.Errorf("%s: invalid address %q", key, v))
		}
	}
	return errors.Join(errs...)
}
