package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/leadscout/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store        StoreConfig          `yaml:"store" mapstructure:"store"`
	Fetch        FetchConfig          `yaml:"fetch" mapstructure:"fetch"`
	Sources      []model.SourceConfig `yaml:"sources" mapstructure:"sources"`
	Normalize    NormalizeConfig      `yaml:"normalize" mapstructure:"normalize"`
	Extract      ExtractConfig        `yaml:"extract" mapstructure:"extract"`
	Intent       IntentConfig         `yaml:"intent" mapstructure:"intent"`
	Authenticity AuthenticityConfig   `yaml:"authenticity" mapstructure:"authenticity"`
	Score        ScoreConfig          `yaml:"score" mapstructure:"score"`
	Orchestrator OrchestratorConfig   `yaml:"orchestrator" mapstructure:"orchestrator"`
	Anthropic    AnthropicConfig      `yaml:"anthropic" mapstructure:"anthropic"`
	Server       ServerConfig         `yaml:"server" mapstructure:"server"`
	Log          LogConfig            `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the persistence backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite | postgres | mongo
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	Database    string `yaml:"database" mapstructure:"database"` // mongo database name
}

// FetchConfig configures the rate-limited fetch layer.
type FetchConfig struct {
	TimeoutSecs       int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RetryCap          int      `yaml:"retry_cap" mapstructure:"retry_cap"`
	DefaultRPS        float64  `yaml:"default_rps" mapstructure:"default_rps"`
	DefaultBurst      int      `yaml:"default_burst" mapstructure:"default_burst"`
	MinDelayMS        int      `yaml:"min_delay_ms" mapstructure:"min_delay_ms"`
	RespectRobots     bool     `yaml:"respect_robots" mapstructure:"respect_robots"`
	DisallowPaths     []string `yaml:"disallow_paths" mapstructure:"disallow_paths"`
	UserAgents        []string `yaml:"user_agents" mapstructure:"user_agents"`
	MaxBodyBytes      int64    `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	PerSourceParallel int      `yaml:"per_source_parallel" mapstructure:"per_source_parallel"`
}

// Timeout returns the per-fetch timeout as a duration.
func (f FetchConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// NormalizeConfig configures the text normalizer.
type NormalizeConfig struct {
	DefaultLanguage string            `yaml:"default_language" mapstructure:"default_language"`
	ExtraAbbrevs    map[string]string `yaml:"extra_abbrevs" mapstructure:"extra_abbrevs"`
}

// ExtractConfig configures contact extraction.
type ExtractConfig struct {
	Region            string   `yaml:"region" mapstructure:"region"`
	DisposableDomains []string `yaml:"disposable_domains" mapstructure:"disposable_domains"`
}

// IntentConfig configures the intent classifier.
type IntentConfig struct {
	Backend         string  `yaml:"backend" mapstructure:"backend"` // heuristic | anthropic
	MinTokenQuality float64 `yaml:"min_token_quality" mapstructure:"min_token_quality"`
	MinConfidence   float64 `yaml:"min_confidence" mapstructure:"min_confidence"`
}

// AuthenticityConfig configures bot detection weights and thresholds.
type AuthenticityConfig struct {
	HeadlessWeight      float64  `yaml:"headless_weight" mapstructure:"headless_weight"`
	TimingWeight        float64  `yaml:"timing_weight" mapstructure:"timing_weight"`
	IPReputationWeight  float64  `yaml:"ip_reputation_weight" mapstructure:"ip_reputation_weight"`
	HoneypotOverride    bool     `yaml:"honeypot_override" mapstructure:"honeypot_override"`
	TimingVarianceFloor float64  `yaml:"timing_variance_floor" mapstructure:"timing_variance_floor"`
	DatacenterCIDRs     []string `yaml:"datacenter_cidrs" mapstructure:"datacenter_cidrs"`
	SoftSuspicion       float64  `yaml:"soft_suspicion_threshold" mapstructure:"soft_suspicion_threshold"`
	HardRejection       float64  `yaml:"hard_rejection_threshold" mapstructure:"hard_rejection_threshold"`
}

// ScoreConfig holds the additive scoring contributions and thresholds.
type ScoreConfig struct {
	WhatsAppPhone    int `yaml:"whatsapp_phone" mapstructure:"whatsapp_phone"`
	ValidEmail       int `yaml:"valid_email" mapstructure:"valid_email"`
	PhaseBooking     int `yaml:"phase_booking" mapstructure:"phase_booking"`
	PhasePlanning    int `yaml:"phase_planning" mapstructure:"phase_planning"`
	FlagshipLandmark int `yaml:"flagship_landmark" mapstructure:"flagship_landmark"`
	PriceMarkers     int `yaml:"price_markers" mapstructure:"price_markers"`
	DisposableEmail  int `yaml:"disposable_email" mapstructure:"disposable_email"`
	BotSuspicion     int `yaml:"bot_suspicion" mapstructure:"bot_suspicion"`
	HotFloor         int `yaml:"hot_floor" mapstructure:"hot_floor"`
	WarmFloor        int `yaml:"warm_floor" mapstructure:"warm_floor"`
	SQLThreshold     int `yaml:"sql_threshold" mapstructure:"sql_threshold"`
}

// OrchestratorConfig bounds the job runner.
type OrchestratorConfig struct {
	GlobalConcurrency int `yaml:"global_concurrency" mapstructure:"global_concurrency"`
	WriteRetryCap     int `yaml:"write_retry_cap" mapstructure:"write_retry_cap"`
}

// AnthropicConfig holds remote classifier settings.
type AnthropicConfig struct {
	Key   string `yaml:"key" mapstructure:"key"`
	Model string `yaml:"model" mapstructure:"model"`
}

// ServerConfig configures the API server.
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
	v.SetEnvPrefix("LEADSCOUT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "leadscout.db")
	v.SetDefault("store.database", "leadscout")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)

	v.SetDefault("fetch.timeout_secs", 30)
	v.SetDefault("fetch.retry_cap", 3)
	v.SetDefault("fetch.default_rps", 0.5)
	v.SetDefault("fetch.default_burst", 1)
	v.SetDefault("fetch.min_delay_ms", 2000)
	v.SetDefault("fetch.respect_robots", true)
	v.SetDefault("fetch.max_body_bytes", 2*1024*1024)
	v.SetDefault("fetch.per_source_parallel", 2)

	v.SetDefault("normalize.default_language", "es")

	v.SetDefault("extract.region", "PE")
	v.SetDefault("extract.disposable_domains", []string{
		"mailinator.com", "tempmail.com", "throwaway.email",
		"guerrillamail.com", "10minutemail.com", "yopmail.com",
		"trashmail.com", "fakeinbox.com",
	})

	v.SetDefault("intent.backend", "heuristic")
	v.SetDefault("intent.min_token_quality", 0.3)
	v.SetDefault("intent.min_confidence", 0.2)

	v.SetDefault("authenticity.headless_weight", 0.4)
	v.SetDefault("authenticity.timing_weight", 0.3)
	v.SetDefault("authenticity.ip_reputation_weight", 0.3)
	v.SetDefault("authenticity.honeypot_override", true)
	v.SetDefault("authenticity.timing_variance_floor", 25.0)
	v.SetDefault("authenticity.soft_suspicion_threshold", 0.5)
	v.SetDefault("authenticity.hard_rejection_threshold", 0.8)

	v.SetDefault("score.whatsapp_phone", 35)
	v.SetDefault("score.valid_email", 15)
	v.SetDefault("score.phase_booking", 30)
	v.SetDefault("score.phase_planning", 20)
	v.SetDefault("score.flagship_landmark", 10)
	v.SetDefault("score.price_markers", 10)
	v.SetDefault("score.disposable_email", -15)
	v.SetDefault("score.bot_suspicion", -50)
	v.SetDefault("score.hot_floor", 80)
	v.SetDefault("score.warm_floor", 50)
	v.SetDefault("score.sql_threshold", 80)

	v.SetDefault("orchestrator.global_concurrency", 4)
	v.SetDefault("orchestrator.write_retry_cap", 3)

	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")

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
