// Package config provides configuration management using viper.
// It supports loading from YAML files and environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"casino-core/internal/model"
)

// Config holds all application configuration.
type Config struct {
	Platform PlatformConfig `mapstructure:"platform"`
	Database DatabaseConfig `mapstructure:"database"`
	Server   ServerConfig   `mapstructure:"server"`
}

// PlatformConfig holds the contract-level identities and storage pricing.
type PlatformConfig struct {
	OwnerID      string `mapstructure:"owner_id"`
	NFTProgramID string `mapstructure:"nft_program_id"`

	// The operating account absorbs the game catalogue's storage growth.
	OperatingAccount    string `mapstructure:"operating_account"`
	OperatingCollateral uint64 `mapstructure:"operating_collateral"`

	// StorageCostPerByte prices collateral; 0 disables storage accounting.
	StorageCostPerByte uint64 `mapstructure:"storage_cost_per_byte"`

	// Persistence toggles the PostgreSQL write-through store.
	Persistence bool `mapstructure:"persistence"`
}

// DatabaseConfig holds PostgreSQL connection configuration.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	PoolSize        int           `mapstructure:"pool_size"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime time.Duration `mapstructure:"max_conn_idle_time"`
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DSN returns the PostgreSQL connection string.
func (d *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=disable",
		d.User, d.Password, d.Host, d.Port, d.Name,
	)
}

// Owner returns the owner identity as an account ID.
func (p *PlatformConfig) Owner() model.AccountID { return model.AccountID(p.OwnerID) }

// NFTProgram returns the NFT program identity as an account ID.
func (p *PlatformConfig) NFTProgram() model.AccountID { return model.AccountID(p.NFTProgramID) }

// Operating returns the operating account identity.
func (p *PlatformConfig) Operating() model.AccountID { return model.AccountID(p.OperatingAccount) }

// Load reads configuration from file and environment variables.
// It looks for config.yaml in the config directory.
func Load(configPath string) (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Configure viper
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Enable environment variable override
	// Environment variables use underscore separator and uppercase
	// e.g., PLATFORM_OWNER_ID, DATABASE_HOST, SERVER_ADDR
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Read config file (optional - env vars can provide all config)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found is OK - we can use env vars
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if cfg.Platform.OwnerID == "" {
		return nil, fmt.Errorf("platform.owner_id is required")
	}

	return &cfg, nil
}

// setDefaults sets default configuration values.
func setDefaults(v *viper.Viper) {
	// Platform defaults
	v.SetDefault("platform.nft_program_id", "nft-program")
	v.SetDefault("platform.operating_account", "casino-operations")
	v.SetDefault("platform.operating_collateral", 10_000_000)
	v.SetDefault("platform.storage_cost_per_byte", 100)
	v.SetDefault("platform.persistence", true)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "casino")
	v.SetDefault("database.name", "casino")
	v.SetDefault("database.pool_size", 20)
	v.SetDefault("database.connect_timeout", "10s")
	v.SetDefault("database.max_conn_lifetime", "1h")
	v.SetDefault("database.max_conn_idle_time", "30m")

	// Server defaults
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.read_timeout", "10s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.shutdown_timeout", "15s")
}
