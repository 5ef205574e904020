package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds the HTTP listener settings. The defaults match the
// port/address the deployment health probes are wired against.
type ServerConfig struct {
	Address string `yaml:"address" envconfig:"SERVER_ADDRESS"`
	Port    int    `yaml:"port" envconfig:"SERVER_PORT"`
}

// LogConfig holds logger settings.
type LogConfig struct {
	Level      string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format     string `yaml:"format" envconfig:"LOG_FORMAT"` // json or console
	Output     string `yaml:"output" envconfig:"LOG_OUTPUT"` // stdout, stderr or file
	TimeFormat string `yaml:"time_format" envconfig:"LOG_TIME_FORMAT"`
}

// CacheConfig holds response cache settings. Durations are expressed in
// seconds so they read the same in YAML and in environment variables.
type CacheConfig struct {
	Backend        string `yaml:"backend" envconfig:"CACHE_BACKEND"` // memory or redis
	TTLSeconds     int    `yaml:"ttl_seconds" envconfig:"CACHE_TTL_SECONDS"`
	MaxSize        int    `yaml:"max_size" envconfig:"CACHE_MAX_SIZE"`
	CleanupSeconds int    `yaml:"cleanup_seconds" envconfig:"CACHE_CLEANUP_SECONDS"`
}

// TTL returns the entry lifetime as a duration.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLSeconds) * time.Second
}

// CleanupInterval returns the expired-entry sweep period as a duration.
func (c CacheConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupSeconds) * time.Second
}

// RedisConfig holds the Redis connection used when the cache backend is redis.
type RedisConfig struct {
	URL string `yaml:"url" envconfig:"REDIS_URL"`
}

// APIConfig bounds outbound requests to exchanges and aggregators.
type APIConfig struct {
	TimeoutSeconds    int `yaml:"timeout_seconds" envconfig:"API_TIMEOUT_SECONDS"`
	RetryAttempts     int `yaml:"retry_attempts" envconfig:"API_RETRY_ATTEMPTS"`
	RetryDelaySeconds int `yaml:"retry_delay_seconds" envconfig:"API_RETRY_DELAY_SECONDS"`
	MaxConcurrency    int `yaml:"max_concurrency" envconfig:"API_MAX_CONCURRENCY"`
}

// Timeout returns the per-request deadline as a duration.
func (a APIConfig) Timeout() time.Duration {
	return time.Duration(a.TimeoutSeconds) * time.Second
}

// RetryDelay returns the initial retry backoff as a duration.
func (a APIConfig) RetryDelay() time.Duration {
	return time.Duration(a.RetryDelaySeconds) * time.Second
}

// TradingConfig carries the symbol universe and paper-trading limits.
type TradingConfig struct {
	Symbols            []string `yaml:"symbols" envconfig:"TRADING_SYMBOLS"`
	Exchanges          []string `yaml:"exchanges" envconfig:"TRADING_EXCHANGES"`
	MinProfitThreshold float64  `yaml:"min_profit_threshold" envconfig:"MIN_PROFIT_THRESHOLD"`
	MaxPositionUSD     float64  `yaml:"max_position_usd" envconfig:"MAX_POSITION_USD"`
}

// ScannerConfig controls the background market scan loop.
type ScannerConfig struct {
	IntervalSeconds int `yaml:"interval_seconds" envconfig:"SCAN_INTERVAL_SECONDS"`
	MaxHistory      int `yaml:"max_history" envconfig:"SCAN_MAX_HISTORY"`
}

// Interval returns the scan period as a duration.
func (s ScannerConfig) Interval() time.Duration {
	return time.Duration(s.IntervalSeconds) * time.Second
}

// StorageConfig points at the runtime directories created at startup.
type StorageConfig struct {
	DataDir string `yaml:"data_dir" envconfig:"DATA_DIR"`
	LogsDir string `yaml:"logs_dir" envconfig:"LOGS_DIR"`
}

// Config is the root configuration tree.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Log     LogConfig     `yaml:"log"`
	Cache   CacheConfig   `yaml:"cache"`
	Redis   RedisConfig   `yaml:"redis"`
	API     APIConfig     `yaml:"api"`
	Trading TradingConfig `yaml:"trading"`
	Scanner ScannerConfig `yaml:"scanner"`
	Storage StorageConfig `yaml:"storage"`
}

// DefaultSymbols is the symbol universe used when the config names none.
var DefaultSymbols = []string{"BTC/USDT", "ETH/USDT", "BNB/USDT", "ADA/USDT", "SOL/USDT"}

// DefaultExchanges is the venue set used when the config names none.
var DefaultExchanges = []string{"binance", "okx", "kucoin", "gate", "bybit"}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Address: "0.0.0.0",
			Port:    8501,
		},
		Log: LogConfig{
			Level:      "info",
			Format:     "json",
			Output:     "stdout",
			TimeFormat: "rfc3339",
		},
		Cache: CacheConfig{
			Backend:        "memory",
			TTLSeconds:     60,
			MaxSize:        1000,
			CleanupSeconds: 300,
		},
		Redis: RedisConfig{
			URL: "redis://localhost:6379",
		},
		API: APIConfig{
			TimeoutSeconds:    15,
			RetryAttempts:     3,
			RetryDelaySeconds: 1,
			MaxConcurrency:    10,
		},
		Trading: TradingConfig{
			MinProfitThreshold: 0.1,
			MaxPositionUSD:     10000,
		},
		Scanner: ScannerConfig{
			IntervalSeconds: 30,
			MaxHistory:      1000,
		},
		Storage: StorageConfig{
			DataDir: "data",
			LogsDir: "logs",
		},
	}
}

// Load builds the configuration with precedence defaults < YAML file < env.
// A missing config file is not an error: env and defaults alone make a
// runnable config.
func Load(path string) (*Config, error) {
	cfg := Default()

	if data, err := os.ReadFile(path); err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("error parsing config file %s: %w", path, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	// Environment wins over the file; unset variables leave fields untouched.
	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("error processing environment configuration: %w", err)
	}

	if len(cfg.Trading.Symbols) == 0 {
		cfg.Trading.Symbols = append([]string{}, DefaultSymbols...)
	}
	if len(cfg.Trading.Exchanges) == 0 {
		cfg.Trading.Exchanges = append([]string{}, DefaultExchanges...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration and reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server port must be in 1-65535, got %d", c.Server.Port))
	}
	if c.Cache.TTLSeconds <= 0 {
		errs = append(errs, "cache ttl must be positive")
	}
	if c.Cache.MaxSize <= 0 {
		errs = append(errs, "cache max size must be positive")
	}
	if c.Cache.Backend != "memory" && c.Cache.Backend != "redis" {
		errs = append(errs, fmt.Sprintf("unknown cache backend %q", c.Cache.Backend))
	}
	if c.API.TimeoutSeconds <= 0 {
		errs = append(errs, "api timeout must be positive")
	}
	if c.API.RetryAttempts < 1 {
		errs = append(errs, "api retry attempts must be at least 1")
	}
	if c.API.MaxConcurrency < 1 {
		errs = append(errs, "api max concurrency must be at least 1")
	}
	if c.Trading.MinProfitThreshold < 0 {
		errs = append(errs, "min profit threshold cannot be negative")
	}
	if c.Trading.MaxPositionUSD <= 0 {
		errs = append(errs, "max position size must be positive")
	}
	if c.Scanner.IntervalSeconds <= 0 {
		errs = append(errs, "scan interval must be positive")
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid configuration:\n- %s", strings.Join(errs, "\n- "))
	}
	return nil
}

// EnsureDirs creates the runtime log and data directories.
func (c *Config) EnsureDirs() error {
	for _, dir := range []string{c.Storage.DataDir, c.Storage.LogsDir} {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
