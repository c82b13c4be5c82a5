// Package config loads bridge configuration from config files and the
// environment.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/rail-service/cctp-go/chains"
	"github.com/rail-service/cctp-go/iris"
)

// Config holds all configuration for the bridge.
type Config struct {
	Environment string       `mapstructure:"environment"`
	LogLevel    string       `mapstructure:"log_level"`
	Iris        IrisConfig   `mapstructure:"iris"`
	Bridge      BridgeConfig `mapstructure:"bridge"`
	Redis       RedisConfig  `mapstructure:"redis"`
}

// IrisConfig configures the attestation API client.
type IrisConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	SandboxURL     string        `mapstructure:"sandbox_url"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      int           `mapstructure:"rate_limit"`
}

// BridgeConfig configures the orchestrator.
type BridgeConfig struct {
	SourceChainID       int64         `mapstructure:"source_chain_id"`
	AttestationTimeout  time.Duration `mapstructure:"attestation_timeout"`
	ParallelTimeout     time.Duration `mapstructure:"parallel_timeout"`
	PollInterval        time.Duration `mapstructure:"poll_interval"`
	MonitorPollInterval time.Duration `mapstructure:"monitor_poll_interval"`
	MaxWorkers          int           `mapstructure:"max_workers"`
	GasLimit            uint64        `mapstructure:"gas_limit"`
	Simulate            bool          `mapstructure:"simulate"`
}

// RedisConfig configures the optional run record store.
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// Load reads configuration from configs/config.yaml (when present),
// then overrides from the environment. A .env file in the working
// directory is honored.
func Load() (*Config, error) {
	// Load .env file if it exists (ignore errors if file doesn't exist)
	godotenv.Load()

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	setDefaults()

	// Read from config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	// Override with environment variables
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	viper.SetDefault("iris.base_url", iris.IrisMainnetURL)
	viper.SetDefault("iris.sandbox_url", iris.IrisSandboxURL)
	viper.SetDefault("iris.request_timeout", "30s")
	viper.SetDefault("iris.rate_limit", iris.MaxRequestsPerSecond)

	viper.SetDefault("bridge.source_chain_id", 0)
	viper.SetDefault("bridge.attestation_timeout", "5m")
	viper.SetDefault("bridge.parallel_timeout", "40m")
	viper.SetDefault("bridge.poll_interval", "5s")
	viper.SetDefault("bridge.monitor_poll_interval", "10s")
	viper.SetDefault("bridge.max_workers", 0)
	viper.SetDefault("bridge.gas_limit", 1_000_000)
	viper.SetDefault("bridge.simulate", false)

	viper.SetDefault("redis.enabled", false)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("redis.ttl", "720h")
}

func validate(config *Config) error {
	switch config.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log level %q", config.LogLevel)
	}
	if config.Iris.RateLimit <= 0 {
		return fmt.Errorf("iris rate limit must be positive")
	}
	if config.Bridge.GasLimit == 0 {
		return fmt.Errorf("bridge gas limit must be positive")
	}
	if config.Bridge.SourceChainID != 0 {
		if _, ok := chains.DomainForChain(config.Bridge.SourceChainID); !ok {
			return fmt.Errorf("source chain %d does not support CCTP", config.Bridge.SourceChainID)
		}
	}
	return nil
}

// ClientConfig builds the attestation client configuration for a
// source chain, selecting the sandbox API for testnets.
func (c IrisConfig) ClientConfig(sourceChainID int64) iris.Config {
	base := c.BaseURL
	if chains.IsTestnet(sourceChainID) {
		base = c.SandboxURL
	}
	return iris.Config{
		BaseURL:   base,
		Timeout:   c.RequestTimeout,
		RateLimit: c.RateLimit,
	}
}

// Logger builds a zap logger honoring LogLevel and Environment.
func (c *Config) Logger() (*zap.Logger, error) {
	var zc zap.Config
	if c.Environment == "production" {
		zc = zap.NewProductionConfig()
	} else {
		zc = zap.NewDevelopmentConfig()
	}
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", c.LogLevel, err)
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
