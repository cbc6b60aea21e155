package config

import (
	"log"
	"os"
	"strings"
	"time"

	"marketscan/internal/publish"
	"marketscan/internal/stream"

	"github.com/spf13/viper"
)

type Config struct {
	Alpaca   AlpacaConfig       `mapstructure:"alpaca"`
	Stream   StreamConfig       `mapstructure:"stream"`
	Scanner  ScannerConfig      `mapstructure:"scanner"`
	Server   ServerConfig       `mapstructure:"server"`
	Log      LogConfig          `mapstructure:"log"`
	Postgres PostgresConfig     `mapstructure:"postgres"`
	NATS     publish.NATSConfig `mapstructure:"nats"`
}

// AlpacaConfig holds the market data API endpoints and credentials. In prod
// the key pair is resolved from the AWS SSM Parameter Store instead.
type AlpacaConfig struct {
	DataBaseURL string        `mapstructure:"data_base_url"`
	StreamURL   string        `mapstructure:"stream_url"`
	Feed        string        `mapstructure:"feed"` // "sip" or "iex"
	APIKey      string        `mapstructure:"api_key"`
	APISecret   string        `mapstructure:"api_secret"`
	Timeout     time.Duration `mapstructure:"timeout"`
}

type StreamConfig struct {
	BufferCapacity int                 `mapstructure:"buffer_capacity"`
	Health         stream.HealthConfig `mapstructure:"health"`
}

type ScannerConfig struct {
	Interval         time.Duration `mapstructure:"interval"`
	BatchSize        int           `mapstructure:"batch_size"`
	MaxResults       int           `mapstructure:"max_results"`
	MinTradesDelta   int64         `mapstructure:"min_trades_delta"`
	MinPercentChange float64       `mapstructure:"min_percent_change"`
	SortKey          string        `mapstructure:"sort_key"`
}

type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// LogConfig defines the logger configuration options.
type LogConfig struct {
	Level       string `mapstructure:"level"`       // log level: "debug", "info", "warn", "error"
	Format      string `mapstructure:"format"`      // log format: "json" or "console"
	OutputFile  string `mapstructure:"output_file"` // file path to store logs (optional)
	Environment string `mapstructure:"environment"` // environment: "dev" or "prod"
}

// Load loads application configuration using Viper.
// It reads from config.yaml and overrides with environment variables.
func Load() *Config {
	v := viper.New()

	v.SetConfigName("config") // config.yaml
	v.SetConfigType("yaml")

	if dir := os.Getenv("MARKETSCAN_CONFIG_DIR"); dir != "" {
		v.AddConfigPath(dir)
	}
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("alpaca.data_base_url", "https://data.alpaca.markets")
	v.SetDefault("alpaca.feed", "sip")
	v.SetDefault("alpaca.timeout", "30s")
	v.SetDefault("scanner.interval", "60s")
	v.SetDefault("scanner.batch_size", 500)
	v.SetDefault("scanner.max_results", 20)
	v.SetDefault("scanner.min_trades_delta", 50)
	v.SetDefault("scanner.min_percent_change", 5.0)
	v.SetDefault("scanner.sort_key", "trades_delta")
	v.SetDefault("server.addr", ":8085")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.environment", "dev")

	// Support environment variables with dot notation (e.g., ALPACA_API_KEY)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		log.Fatalf("failed to read config: %v", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		log.Fatalf("failed to unmarshal config: %v", err)
	}

	if cfg.Alpaca.StreamURL == "" {
		cfg.Alpaca.StreamURL = "wss://stream.data.alpaca.markets/v2/" + cfg.Alpaca.Feed
	}

	return &cfg
}

// Credentials resolves the API key pair for the given environment. Prod keys
// live in the Parameter Store; everywhere else they come from the config file
// or environment.
func (c AlpacaConfig) Credentials(env string) (apiKey, apiSecret string) {
	if env == "prod" {
		apiKey = getParameterStoreValue("APCA_API_KEY_ID", true)
		apiSecret = getParameterStoreValue("APCA_API_SECRET_KEY", true)
		return apiKey, apiSecret
	}

	apiKey = c.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("APCA_API_KEY_ID")
	}
	apiSecret = c.APISecret
	if apiSecret == "" {
		apiSecret = os.Getenv("APCA_API_SECRET_KEY")
	}
	return apiKey, apiSecret
}
