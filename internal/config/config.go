package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Notifier    ServerConfig      `mapstructure:"notifier"`
	Analytics   ServerConfig      `mapstructure:"analytics"`
	Redis       RedisConfig       `mapstructure:"redis"`
	MySQL       MySQLConfig       `mapstructure:"mysql"`
	Marketplace MarketplaceConfig `mapstructure:"marketplace"`
	Scheduler   SchedulerConfig   `mapstructure:"scheduler"`
	Instance    InstanceConfig    `mapstructure:"instance"`
	Lease       LeaseConfig       `mapstructure:"lease"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port int    `mapstructure:"port"`
	Host string `mapstructure:"host"`
}

type RedisConfig struct {
	Address  string `mapstructure:"address"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MySQLConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// MarketplaceConfig drives the auction registry.
type MarketplaceConfig struct {
	Name                 string        `mapstructure:"name"`
	RegistryAddress      string        `mapstructure:"registry_address"`
	MinDuration          time.Duration `mapstructure:"min_duration"`
	RefundRequiresExpiry bool          `mapstructure:"refund_requires_expiry"`
	AssetContracts       []string      `mapstructure:"asset_contracts"`
	PaymentContracts     []string      `mapstructure:"payment_contracts"`
}

type SchedulerConfig struct {
	ExpiryScan string `mapstructure:"expiry_scan"`
}

type InstanceConfig struct {
	ID string `mapstructure:"id"`
}

// LeaseConfig bounds how long a crashed instance blocks a standby.
type LeaseConfig struct {
	TTL           time.Duration `mapstructure:"ttl"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("notifier.port", 8081)
	v.SetDefault("notifier.host", "0.0.0.0")
	v.SetDefault("analytics.port", 8082)
	v.SetDefault("analytics.host", "0.0.0.0")
	v.SetDefault("redis.address", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("mysql.dsn", "market_user:market_pass@tcp(localhost:3306)/marketplace_db?parseTime=true")
	v.SetDefault("mysql.max_open_conns", 25)
	v.SetDefault("mysql.max_idle_conns", 10)
	v.SetDefault("mysql.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("marketplace.name", "My NFT Marketplace")
	v.SetDefault("marketplace.registry_address", "marketplace")
	v.SetDefault("marketplace.min_duration", 5*time.Minute)
	v.SetDefault("marketplace.refund_requires_expiry", true)
	v.SetDefault("marketplace.asset_contracts", []string{"nft-collection"})
	v.SetDefault("marketplace.payment_contracts", []string{"payment-token"})
	v.SetDefault("scheduler.expiry_scan", "@every 30s")
	v.SetDefault("instance.id", "marketplace-service-1")
	v.SetDefault("lease.ttl", 30*time.Second)
	v.SetDefault("lease.retry_interval", 5*time.Second)
	v.SetDefault("log.level", "info")
}

func bindEnv(v *viper.Viper) {
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.host", "SERVER_HOST")
	v.BindEnv("notifier.port", "NOTIFIER_PORT")
	v.BindEnv("notifier.host", "NOTIFIER_HOST")
	v.BindEnv("analytics.port", "ANALYTICS_PORT")
	v.BindEnv("analytics.host", "ANALYTICS_HOST")
	v.BindEnv("redis.address", "REDIS_ADDRESS")
	v.BindEnv("redis.password", "REDIS_PASSWORD")
	v.BindEnv("redis.db", "REDIS_DB")
	v.BindEnv("mysql.dsn", "MYSQL_DSN")
	v.BindEnv("mysql.max_open_conns", "MYSQL_MAX_OPEN_CONNS")
	v.BindEnv("mysql.max_idle_conns", "MYSQL_MAX_IDLE_CONNS")
	v.BindEnv("mysql.conn_max_lifetime", "MYSQL_CONN_MAX_LIFETIME")
	v.BindEnv("marketplace.name", "MARKETPLACE_NAME")
	v.BindEnv("marketplace.registry_address", "MARKETPLACE_REGISTRY_ADDRESS")
	v.BindEnv("marketplace.min_duration", "MARKETPLACE_MIN_DURATION")
	v.BindEnv("marketplace.refund_requires_expiry", "MARKETPLACE_REFUND_REQUIRES_EXPIRY")
	v.BindEnv("marketplace.asset_contracts", "MARKETPLACE_ASSET_CONTRACTS")
	v.BindEnv("marketplace.payment_contracts", "MARKETPLACE_PAYMENT_CONTRACTS")
	v.BindEnv("scheduler.expiry_scan", "SCHEDULER_EXPIRY_SCAN")
	v.BindEnv("instance.id", "INSTANCE_ID")
	v.BindEnv("lease.ttl", "LEASE_TTL")
	v.BindEnv("lease.retry_interval", "LEASE_RETRY_INTERVAL")
	v.BindEnv("log.level", "LOG_LEVEL")
}

func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	// Configuration file settings
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/nft-marketplace/")

	v.AutomaticEnv()
	bindEnv(v)

	// Read configuration file (optional - will use defaults/env vars if not found)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
	}

	return unmarshal(v)
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(configPath)
	bindEnv(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	return unmarshal(v)
}

func unmarshal(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

// Validate rejects configurations the registry cannot run with.
func (c *Config) Validate() error {
	if c.Marketplace.RegistryAddress == "" {
		return errors.New("marketplace.registry_address must be set")
	}
	if c.Marketplace.MinDuration < 0 {
		return fmt.Errorf("marketplace.min_duration must not be negative, got %s", c.Marketplace.MinDuration)
	}
	if c.Lease.TTL < 3*time.Millisecond {
		return fmt.Errorf("lease.ttl too short, got %s", c.Lease.TTL)
	}
	return nil
}

// GetConfigString returns a formatted string representation of the config
func (c *Config) GetConfigString() string {
	return fmt.Sprintf(
		"Server: %s:%d, Redis: %s, Marketplace: %s (registry %s), Instance: %s",
		c.Server.Host,
		c.Server.Port,
		c.Redis.Address,
		c.Marketplace.Name,
		c.Marketplace.RegistryAddress,
		c.Instance.ID,
	)
}
