package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Ablation  AblationConfig  `yaml:"ablation" mapstructure:"ablation"`
	Rounds    RoundsConfig    `yaml:"rounds" mapstructure:"rounds"`
	Truth     TruthConfig     `yaml:"truth" mapstructure:"truth"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the document-store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "sqlite" or "postgres"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`

	// RateLimit throttles read traffic against a shared store, in queries
	// per second. Zero disables throttling.
	RateLimit float64 `yaml:"rate_limit" mapstructure:"rate_limit"`
	Burst     int     `yaml:"burst" mapstructure:"burst"`

	// Retry settings for transient store errors. Zero values fall back to
	// the resilience package defaults.
	RetryAttempts  int     `yaml:"retry_attempts" mapstructure:"retry_attempts"`
	RetryBackoffMs int     `yaml:"retry_backoff_ms" mapstructure:"retry_backoff_ms"`
	RetryMaxMs     int     `yaml:"retry_max_ms" mapstructure:"retry_max_ms"`
	RetryMult      float64 `yaml:"retry_mult" mapstructure:"retry_mult"`
	RetryJitter    float64 `yaml:"retry_jitter" mapstructure:"retry_jitter"`
}

// AblationConfig configures the tester.
type AblationConfig struct {
	// Collections is the metadata collection universe under test.
	Collections      []string `yaml:"collections" mapstructure:"collections"`
	QueryTimeoutSecs int      `yaml:"query_timeout_secs" mapstructure:"query_timeout_secs"`
	MaxParallel      int      `yaml:"max_parallel" mapstructure:"max_parallel"`
	Baseline         bool     `yaml:"baseline" mapstructure:"baseline"`
	CrossImpact      bool     `yaml:"cross_impact" mapstructure:"cross_impact"`
}

// RoundsConfig configures combination generation and round planning.
type RoundsConfig struct {
	Count              int     `yaml:"count" mapstructure:"count"`
	ControlPct         float64 `yaml:"control_pct" mapstructure:"control_pct"`
	MaxCombinationSize int     `yaml:"max_combination_size" mapstructure:"max_combination_size"`
	CombinationCap     int     `yaml:"combination_cap" mapstructure:"combination_cap"`
	BalanceTolerance   float64 `yaml:"balance_tolerance" mapstructure:"balance_tolerance"`
	Seed               int64   `yaml:"seed" mapstructure:"seed"`
}

// TruthConfig names the bookkeeping collections.
type TruthConfig struct {
	Collection       string `yaml:"collection" mapstructure:"collection"`
	RunCollection    string `yaml:"run_collection" mapstructure:"run_collection"`
	ResultCollection string `yaml:"result_collection" mapstructure:"result_collection"`
}

// AnthropicConfig holds Anthropic API settings for query generation.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`

	// Circuit breaker over API calls. Zero values fall back to the
	// resilience package defaults.
	CircuitFailures  int `yaml:"circuit_failures" mapstructure:"circuit_failures"`
	CircuitResetSecs int `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// ServerConfig configures the read-only results API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ABLATE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "ablate.db")
	v.SetDefault("store.rate_limit", 0)
	v.SetDefault("store.burst", 1)
	v.SetDefault("store.retry_attempts", 3)
	v.SetDefault("store.retry_backoff_ms", 250)
	v.SetDefault("store.retry_max_ms", 10000)
	v.SetDefault("store.retry_mult", 2.0)
	v.SetDefault("store.retry_jitter", 0.25)
	v.SetDefault("ablation.collections", []string{})
	v.SetDefault("ablation.query_timeout_secs", 30)
	v.SetDefault("ablation.max_parallel", 4)
	v.SetDefault("ablation.baseline", true)
	v.SetDefault("ablation.cross_impact", true)
	v.SetDefault("rounds.count", 5)
	v.SetDefault("rounds.control_pct", 0.3)
	v.SetDefault("rounds.max_combination_size", 2)
	v.SetDefault("rounds.combination_cap", 0)
	v.SetDefault("rounds.balance_tolerance", 0.5)
	v.SetDefault("rounds.seed", 1)
	v.SetDefault("truth.collection", "")
	v.SetDefault("truth.run_collection", "")
	v.SetDefault("truth.result_collection", "")
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.temperature", 1.0)
	v.SetDefault("anthropic.circuit_failures", 5)
	v.SetDefault("anthropic.circuit_reset_secs", 30)
	v.SetDefault("server.port", 8080)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the settings a command depends on are present.
func (c *Config) Validate(command string) error {
	var missing []string

	switch command {
	case "queries":
		if c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key is required")
		}
		if len(c.Ablation.Collections) == 0 {
			missing = append(missing, "ablation.collections is required")
		}
	case "truth", "run":
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
		if len(c.Ablation.Collections) == 0 {
			missing = append(missing, "ablation.collections is required")
		}
	case "serve", "status":
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url is required")
		}
	}

	if command == "serve" && (c.Server.Port < 1 || c.Server.Port > 65535) {
		missing = append(missing, "server.port must be between 1 and 65535")
	}

	if len(missing) > 0 {
		return eris.Errorf("config: %s", strings.Join(missing, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
