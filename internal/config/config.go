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
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Anthropic  AnthropicConfig  `yaml:"anthropic" mapstructure:"anthropic"`
	Pricing    PricingConfig    `yaml:"pricing" mapstructure:"pricing"`
	Ingest     IngestConfig     `yaml:"ingest" mapstructure:"ingest"`
	Digest     DigestConfig     `yaml:"digest" mapstructure:"digest"`
	Pilot      PilotConfig      `yaml:"pilot" mapstructure:"pilot"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Temporal   TemporalConfig   `yaml:"temporal" mapstructure:"temporal"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string  `yaml:"key" mapstructure:"key"`
	BaseURL           string  `yaml:"base_url" mapstructure:"base_url"`
	Model             string  `yaml:"model" mapstructure:"model"`
	MaxTokens         int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature       float64 `yaml:"temperature" mapstructure:"temperature"`
	RequestsPerMinute int     `yaml:"requests_per_minute" mapstructure:"requests_per_minute"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// PricingConfig holds per-model token pricing used for cost logging.
type PricingConfig struct {
	Anthropic map[string]ModelPricing `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelPricing holds per-model token pricing (USD per million tokens).
type ModelPricing struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// IngestConfig configures feed fetching and document acceptance.
type IngestConfig struct {
	MinQuality      float64 `yaml:"min_quality" mapstructure:"min_quality"`
	MinCompleteness float64 `yaml:"min_completeness" mapstructure:"min_completeness"`
	UserAgent       string  `yaml:"user_agent" mapstructure:"user_agent"`
	TimeoutSecs     int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxDocuments    int     `yaml:"max_documents" mapstructure:"max_documents"`
	Concurrency     int     `yaml:"concurrency" mapstructure:"concurrency"`
	SourcesFile     string  `yaml:"sources_file" mapstructure:"sources_file"`
	PrioritiesFile  string  `yaml:"priorities_file" mapstructure:"priorities_file"`
}

// DigestConfig configures digest periods and flagging.
type DigestConfig struct {
	Period              string  `yaml:"period" mapstructure:"period"`
	ActionableThreshold float64 `yaml:"actionable_threshold" mapstructure:"actionable_threshold"`
	MajorThemeThreshold float64 `yaml:"major_theme_threshold" mapstructure:"major_theme_threshold"`
}

// PilotConfig configures pilot metric capture.
type PilotConfig struct {
	BaselineConcurrency int `yaml:"baseline_concurrency" mapstructure:"baseline_concurrency"`
	BaselineWindowDays  int `yaml:"baseline_window_days" mapstructure:"baseline_window_days"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port             int      `yaml:"port" mapstructure:"port"`
	CORSOrigins      []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	PresenceTTLSecs  int      `yaml:"presence_ttl_secs" mapstructure:"presence_ttl_secs"`
	ShutdownTimeoutS int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// TemporalConfig configures the workflow worker and its schedules.
type TemporalConfig struct {
	HostPort     string `yaml:"host_port" mapstructure:"host_port"`
	Namespace    string `yaml:"namespace" mapstructure:"namespace"`
	TaskQueue    string `yaml:"task_queue" mapstructure:"task_queue"`
	IngestCron   string `yaml:"ingest_cron" mapstructure:"ingest_cron"`
	DigestCron   string `yaml:"digest_cron" mapstructure:"digest_cron"`
	RolloutCron  string `yaml:"rollout_cron" mapstructure:"rollout_cron"`
	OverdueCron  string `yaml:"overdue_cron" mapstructure:"overdue_cron"`
	SystemUserID string `yaml:"system_user_id" mapstructure:"system_user_id"`
}

// MonitoringConfig configures the background health checks and alert
// delivery.
type MonitoringConfig struct {
	WebhookURL           string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	ContradictionBacklog int     `yaml:"contradiction_backlog" mapstructure:"contradiction_backlog"`
	LookbackWindowHours  int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	CheckIntervalSecs    int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
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
	v.SetEnvPrefix("EVIDENCE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "evidence.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.presence_ttl_secs", 60)
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 1024)
	v.SetDefault("anthropic.temperature", 0.2)
	v.SetDefault("anthropic.requests_per_minute", 50)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001":  map[string]any{"input": 1.0, "output": 5.0},
		"claude-sonnet-4-5-20250929": map[string]any{"input": 3.0, "output": 15.0},
	})
	v.SetDefault("ingest.min_quality", 40)
	v.SetDefault("ingest.min_completeness", 50)
	v.SetDefault("ingest.user_agent", "evidence-cli/1.0")
	v.SetDefault("ingest.timeout_secs", 60)
	v.SetDefault("ingest.max_documents", 500)
	v.SetDefault("ingest.concurrency", 4)
	v.SetDefault("ingest.sources_file", "sources.yaml")
	v.SetDefault("ingest.priorities_file", "priorities.yaml")
	v.SetDefault("digest.period", "weekly")
	v.SetDefault("digest.actionable_threshold", 80)
	v.SetDefault("digest.major_theme_threshold", 75)
	v.SetDefault("pilot.baseline_concurrency", 4)
	v.SetDefault("pilot.baseline_window_days", 30)
	v.SetDefault("temporal.host_port", "localhost:7233")
	v.SetDefault("temporal.namespace", "default")
	v.SetDefault("temporal.task_queue", "evidence")
	v.SetDefault("temporal.ingest_cron", "0 6 * * *")
	v.SetDefault("temporal.digest_cron", "0 7 * * 1")
	v.SetDefault("temporal.rollout_cron", "0 8 * * *")
	v.SetDefault("temporal.overdue_cron", "0 9 * * *")
	v.SetDefault("temporal.system_user_id", "system")
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.contradiction_backlog", 20)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.check_interval_secs", 300)

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

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}
	if c.Ingest.MinQuality < 0 || c.Ingest.MinQuality > 100 {
		errs = append(errs, "ingest.min_quality must be between 0 and 100")
	}
	if c.Ingest.MinCompleteness < 0 || c.Ingest.MinCompleteness > 100 {
		errs = append(errs, "ingest.min_completeness must be between 0 and 100")
	}
	if c.Digest.Period != "weekly" && c.Digest.Period != "monthly" {
		errs = append(errs, "digest.period must be weekly or monthly")
	}
	if c.Pilot.BaselineConcurrency < 1 || c.Pilot.BaselineConcurrency > 50 {
		errs = append(errs, "pilot.baseline_concurrency must be between 1 and 50")
	}

	switch mode {
	case "cli":
	case "generate":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "worker":
		if c.Temporal.HostPort == "" {
			errs = append(errs, "temporal.host_port is required")
		}
		if c.Temporal.TaskQueue == "" {
			errs = append(errs, "temporal.task_queue is required")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}
