package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	OutputDir string          `yaml:"output_dir" mapstructure:"output_dir"`
	WriteJSON bool            `yaml:"write_json" mapstructure:"write_json"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	HTTP      HTTPConfig      `yaml:"http" mapstructure:"http"`
	Retry     RetryConfig     `yaml:"retry" mapstructure:"retry"`
	Circuit   CircuitConfig   `yaml:"circuit" mapstructure:"circuit"`
	Acquire   AcquireConfig   `yaml:"acquire" mapstructure:"acquire"`
	Sweep     SweepConfig     `yaml:"sweep" mapstructure:"sweep"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ProvidersConfig holds endpoints and credentials for every provider tier.
// Credentials are supplied externally; nothing here reads the environment.
type ProvidersConfig struct {
	OpenBB OpenBBConfig `yaml:"openbb" mapstructure:"openbb"`
	Yahoo  YahooConfig  `yaml:"yahoo" mapstructure:"yahoo"`
	FMP    FMPConfig    `yaml:"fmp" mapstructure:"fmp"`
}

// OpenBBConfig configures the primary provider (OpenBB Platform API).
type OpenBBConfig struct {
	BaseURL         string `yaml:"base_url" mapstructure:"base_url"`
	Token           string `yaml:"token" mapstructure:"token"`
	ProfileProvider string `yaml:"profile_provider" mapstructure:"profile_provider"`
	PriceProvider   string `yaml:"price_provider" mapstructure:"price_provider"`
	StmtProvider    string `yaml:"statement_provider" mapstructure:"statement_provider"`
}

// YahooConfig configures the secondary provider (Yahoo Finance).
type YahooConfig struct {
	QueryURL      string  `yaml:"query_url" mapstructure:"query_url"`
	SummaryURL    string  `yaml:"summary_url" mapstructure:"summary_url"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// FMPConfig configures the tertiary provider (Financial Modeling Prep).
type FMPConfig struct {
	BaseURL       string  `yaml:"base_url" mapstructure:"base_url"`
	Key           string  `yaml:"api_key" mapstructure:"api_key"`
	RatePerSecond float64 `yaml:"rate_per_second" mapstructure:"rate_per_second"`
}

// HTTPConfig configures the shared provider transport.
type HTTPConfig struct {
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	UserAgent   string `yaml:"user_agent" mapstructure:"user_agent"`
}

// RetryConfig configures retries of transient provider failures.
type RetryConfig struct {
	MaxAttempts      int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int     `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
	MaxBackoffMs     int     `yaml:"max_backoff_ms" mapstructure:"max_backoff_ms"`
	Multiplier       float64 `yaml:"multiplier" mapstructure:"multiplier"`
	JitterFraction   float64 `yaml:"jitter_fraction" mapstructure:"jitter_fraction"`
}

// CircuitConfig configures the per-host circuit breaker.
type CircuitConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// AcquireConfig configures the acquisition stage defaults.
type AcquireConfig struct {
	PricePeriod string   `yaml:"price_period" mapstructure:"price_period"`
	Statements  []string `yaml:"statements" mapstructure:"statements"`
	Periods     []string `yaml:"periods" mapstructure:"periods"`
	PlanFile    string   `yaml:"plan_file" mapstructure:"plan_file"`
}

// SweepConfig configures the fallback sweep.
type SweepConfig struct {
	// Strict closes only records whose artifact file now holds data rows.
	Strict bool `yaml:"strict" mapstructure:"strict"`
}

// BatchConfig configures fan-out across distinct entities.
type BatchConfig struct {
	MaxConcurrentEntities int `yaml:"max_concurrent_entities" mapstructure:"max_concurrent_entities"`
}

// StoreConfig configures the stage run log database.
type StoreConfig struct {
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
	Path    string `yaml:"path" mapstructure:"path"`
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
	v.AddConfigPath("config")

	// Environment
	v.SetEnvPrefix("INGEST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Unprefixed names kept for existing deployments.
	_ = v.BindEnv("output_dir", "INGEST_OUTPUT_DIR", "OUTPUT_DIR")
	_ = v.BindEnv("providers.fmp.api_key", "INGEST_PROVIDERS_FMP_API_KEY", "FMP_API_KEY")
	_ = v.BindEnv("providers.openbb.token", "INGEST_PROVIDERS_OPENBB_TOKEN", "OPENBB_TOKEN")

	// Defaults
	v.SetDefault("output_dir", "output")
	v.SetDefault("write_json", false)
	v.SetDefault("providers.openbb.base_url", "http://127.0.0.1:6900")
	v.SetDefault("providers.openbb.profile_provider", "fmp")
	v.SetDefault("providers.openbb.price_provider", "yfinance")
	v.SetDefault("providers.openbb.statement_provider", "fmp")
	v.SetDefault("providers.yahoo.query_url", "https://query1.finance.yahoo.com")
	v.SetDefault("providers.yahoo.summary_url", "https://query2.finance.yahoo.com")
	v.SetDefault("providers.yahoo.rate_per_second", 2.0)
	v.SetDefault("providers.fmp.base_url", "https://financialmodelingprep.com/api/v3")
	v.SetDefault("providers.fmp.rate_per_second", 5.0)
	v.SetDefault("http.timeout_secs", 10)
	v.SetDefault("http.user_agent", "ticker-ingest/1.0")
	v.SetDefault("retry.max_attempts", 3)
	v.SetDefault("retry.initial_backoff_ms", 500)
	v.SetDefault("retry.max_backoff_ms", 10000)
	v.SetDefault("retry.multiplier", 2.0)
	v.SetDefault("retry.jitter_fraction", 0.25)
	v.SetDefault("circuit.failure_threshold", 5)
	v.SetDefault("circuit.reset_timeout_secs", 30)
	v.SetDefault("acquire.price_period", "1mo")
	v.SetDefault("acquire.statements", []string{"income", "balance", "cash"})
	v.SetDefault("acquire.periods", []string{"annual", "quarter"})
	v.SetDefault("sweep.strict", false)
	v.SetDefault("batch.max_concurrent_entities", 1)
	v.SetDefault("store.enabled", true)
	v.SetDefault("store.path", "ingest.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

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

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	if strings.TrimSpace(c.OutputDir) == "" {
		errs = append(errs, "output_dir is required")
	}
	if c.Batch.MaxConcurrentEntities < 1 || c.Batch.MaxConcurrentEntities > 16 {
		errs = append(errs, fmt.Sprintf("batch.max_concurrent_entities must be between 1 and 16, got %d", c.Batch.MaxConcurrentEntities))
	}

	switch mode {
	case "acquire":
		if c.Providers.OpenBB.BaseURL == "" {
			errs = append(errs, "providers.openbb.base_url is required")
		}
	case "repair":
		if c.Providers.Yahoo.QueryURL == "" {
			errs = append(errs, "providers.yahoo.query_url is required")
		}
		if c.Providers.FMP.BaseURL == "" {
			errs = append(errs, "providers.fmp.base_url is required")
		}
	case "sweep":
		if c.Providers.Yahoo.QueryURL == "" {
			errs = append(errs, "providers.yahoo.query_url is required")
		}
	case "ingest":
		for _, m := range []string{"acquire", "repair", "sweep"} {
			if err := c.Validate(m); err != nil {
				return err
			}
		}
	case "inspect":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
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
