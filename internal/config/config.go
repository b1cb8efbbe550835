package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	Environment string           `mapstructure:"environment"`
	LogLevel    string           `mapstructure:"log_level"`
	Server      ServerConfig     `mapstructure:"server"`
	Exchange    ExchangeConfig   `mapstructure:"exchange"`
	Storage     StorageConfig    `mapstructure:"storage"`
	Redis       RedisConfig      `mapstructure:"redis"`
	Workflow    WorkflowConfig   `mapstructure:"workflow"`
	Discovery   DiscoveryConfig  `mapstructure:"discovery"`
	Collector   CollectorConfig  `mapstructure:"collector"`
	Aggregator  AggregatorConfig `mapstructure:"aggregator"`
	Analytics   AnalyticsConfig  `mapstructure:"analytics"`
	Telegram    TelegramConfig   `mapstructure:"telegram"`
	Telemetry   TelemetryConfig  `mapstructure:"telemetry"`
}

type ServerConfig struct {
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

type ExchangeConfig struct {
	BaseURL           string  `mapstructure:"base_url"`
	APIKey            string  `mapstructure:"api_key" json:"-" yaml:"-"`
	SecretKey         string  `mapstructure:"secret_key" json:"-" yaml:"-"`
	Passphrase        string  `mapstructure:"passphrase" json:"-" yaml:"-"`
	ProductType       string  `mapstructure:"product_type"`
	Timeout           int     `mapstructure:"timeout"`
	RequestsPerSecond float64 `mapstructure:"requests_per_second"`
	RateBurst         int     `mapstructure:"rate_burst"`
}

type StorageConfig struct {
	// Backend selects the object store implementation: "s3" or "redis".
	Backend        string `mapstructure:"backend"`
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	PartialPrefix  string `mapstructure:"partial_prefix"`
	ResultsPrefix  string `mapstructure:"results_prefix"`
	AnalysisPrefix string `mapstructure:"analysis_prefix"`
	PresignTTL     string `mapstructure:"presign_ttl"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type WorkflowConfig struct {
	// Backend selects the workflow engine: "local" or "stepfunctions".
	Backend         string `mapstructure:"backend"`
	StateMachineARN string `mapstructure:"state_machine_arn"`
	Region          string `mapstructure:"region"`
}

type DiscoveryConfig struct {
	LookbackDays     int    `mapstructure:"lookback_days"`
	WindowDays       int    `mapstructure:"window_days"`
	PageSize         int    `mapstructure:"page_size"`
	MaxPages         int    `mapstructure:"max_pages"`
	EarlyStopSymbols int    `mapstructure:"early_stop_symbols"`
	MaxRetries       int    `mapstructure:"max_retries"`
	Concurrency      int    `mapstructure:"concurrency"`
	MaxSymbols       int    `mapstructure:"max_symbols"`
	CacheTTL         string `mapstructure:"cache_ttl"`
}

type CollectorConfig struct {
	PageSize       int    `mapstructure:"page_size"`
	MaxPages       int    `mapstructure:"max_pages"`
	MaxRetries     int    `mapstructure:"max_retries"`
	InitialBackoff string `mapstructure:"initial_backoff"`
	MaxBackoff     string `mapstructure:"max_backoff"`
	HistoryStartMs int64  `mapstructure:"history_start_ms"`
	Concurrency    int    `mapstructure:"concurrency"`
}

type AggregatorConfig struct {
	Workers     int  `mapstructure:"workers"`
	InlineLimit int  `mapstructure:"inline_limit"`
	Cleanup     bool `mapstructure:"cleanup"`
}

type AnalyticsConfig struct {
	DefaultDaysBack int `mapstructure:"default_days_back"`
	TopSymbols      int `mapstructure:"top_symbols"`
}

type TelegramConfig struct {
	BotToken string `mapstructure:"bot_token" json:"-" yaml:"-"`
	ChatID   string `mapstructure:"chat_id"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Endpoint string `mapstructure:"endpoint"`
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath("./configs")
	viper.AddConfigPath(".")

	// Set default values
	setDefaults()

	// Enable environment variable support
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Bind exchange credentials to the conventional env var names
	for key, env := range map[string]string{
		"exchange.api_key":    "BITGET_API_KEY",
		"exchange.secret_key": "BITGET_SECRET_KEY",
		"exchange.passphrase": "BITGET_PASSPHRASE",
		"telegram.bot_token":  "TELEGRAM_BOT_TOKEN",
		"storage.bucket":      "RESULTS_BUCKET",
	} {
		if err := viper.BindEnv(key, env); err != nil {
			return nil, fmt.Errorf("failed to bind %s environment variable: %w", env, err)
		}
	}

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		// Config file not found, use defaults and environment variables
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	// Normalize environment to lowercase for consistent comparison
	config.Environment = strings.ToLower(config.Environment)

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate rejects configurations the pipeline cannot run with.
func (c *Config) Validate() error {
	if c.Environment != "development" {
		if c.Exchange.APIKey == "" || c.Exchange.SecretKey == "" || c.Exchange.Passphrase == "" {
			return errors.New("BITGET_API_KEY, BITGET_SECRET_KEY and BITGET_PASSPHRASE are required in non-development environments")
		}
	}

	switch c.Storage.Backend {
	case "s3":
		if c.Storage.Bucket == "" && c.Environment != "development" {
			return errors.New("storage.bucket is required for the s3 backend")
		}
	case "redis":
	default:
		return fmt.Errorf("unknown storage backend %q", c.Storage.Backend)
	}

	switch c.Workflow.Backend {
	case "local":
	case "stepfunctions":
		if c.Workflow.StateMachineARN == "" {
			return errors.New("workflow.state_machine_arn is required for the stepfunctions backend")
		}
	default:
		return fmt.Errorf("unknown workflow backend %q", c.Workflow.Backend)
	}

	if c.Discovery.WindowDays <= 0 {
		return fmt.Errorf("discovery.window_days must be positive, got %d", c.Discovery.WindowDays)
	}
	if !strings.HasSuffix(c.Storage.PartialPrefix, "/") || !strings.HasSuffix(c.Storage.ResultsPrefix, "/") {
		return errors.New("storage prefixes must end with a trailing slash")
	}
	if c.Storage.PartialPrefix == c.Storage.ResultsPrefix {
		return errors.New("partial and results prefixes must differ")
	}

	return nil
}

func setDefaults() {
	// Environment
	viper.SetDefault("environment", "development")
	viper.SetDefault("log_level", "info")

	// Server
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// Exchange
	viper.SetDefault("exchange.base_url", "https://api.bitget.com")
	viper.SetDefault("exchange.product_type", "umcbl")
	viper.SetDefault("exchange.timeout", 30)
	viper.SetDefault("exchange.requests_per_second", 8.0)
	viper.SetDefault("exchange.rate_burst", 2)

	// Storage
	viper.SetDefault("storage.backend", "s3")
	viper.SetDefault("storage.bucket", "")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.endpoint", "")
	viper.SetDefault("storage.partial_prefix", "symbol_results/")
	viper.SetDefault("storage.results_prefix", "results/")
	viper.SetDefault("storage.analysis_prefix", "analysis_results/")
	viper.SetDefault("storage.presign_ttl", "168h")

	// Redis
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Workflow
	viper.SetDefault("workflow.backend", "local")
	viper.SetDefault("workflow.state_machine_arn", "")
	viper.SetDefault("workflow.region", "us-east-1")

	// Discovery: 9 years of lookback in 90-day windows
	viper.SetDefault("discovery.lookback_days", 9*365)
	viper.SetDefault("discovery.window_days", 90)
	viper.SetDefault("discovery.page_size", 1000)
	viper.SetDefault("discovery.max_pages", 30)
	viper.SetDefault("discovery.early_stop_symbols", 60)
	viper.SetDefault("discovery.max_retries", 3)
	viper.SetDefault("discovery.concurrency", 8)
	viper.SetDefault("discovery.max_symbols", 320)
	viper.SetDefault("discovery.cache_ttl", "1h")

	// Collector: full-history scan, 2018-01-01 epoch
	viper.SetDefault("collector.page_size", 100)
	viper.SetDefault("collector.max_pages", 500)
	viper.SetDefault("collector.max_retries", 5)
	viper.SetDefault("collector.initial_backoff", "500ms")
	viper.SetDefault("collector.max_backoff", "30s")
	viper.SetDefault("collector.history_start_ms", 1514764800000)
	viper.SetDefault("collector.concurrency", 8)

	// Aggregator
	viper.SetDefault("aggregator.workers", 32)
	viper.SetDefault("aggregator.inline_limit", 50)
	viper.SetDefault("aggregator.cleanup", true)

	// Analytics
	viper.SetDefault("analytics.default_days_back", 30)
	viper.SetDefault("analytics.top_symbols", 15)

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.chat_id", "")

	// Telemetry
	viper.SetDefault("telemetry.enabled", false)
	viper.SetDefault("telemetry.endpoint", "localhost:4318")
}
