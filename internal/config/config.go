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
	Queue     QueueConfig     `yaml:"queue" mapstructure:"queue"`
	Match     MatchConfig     `yaml:"match" mapstructure:"match"`
	Orphans   OrphansConfig   `yaml:"orphans" mapstructure:"orphans"`
	Receipts  ReceiptsConfig  `yaml:"receipts" mapstructure:"receipts"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int    `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int    `yaml:"min_conns" mapstructure:"min_conns"`
}

// QueueConfig configures the queue controller.
type QueueConfig struct {
	MaxConcurrent         int     `yaml:"max_concurrent" mapstructure:"max_concurrent"`
	ProcessingTimeoutMins int     `yaml:"processing_timeout_mins" mapstructure:"processing_timeout_mins"`
	MaxAttempts           int     `yaml:"max_attempts" mapstructure:"max_attempts"`
	PostRatePerSec        float64 `yaml:"post_rate_per_sec" mapstructure:"post_rate_per_sec"`
}

// MatchConfig holds the tuned matching constants. These are operational
// calibration values, kept in configuration rather than code.
type MatchConfig struct {
	WindowDays                 int      `yaml:"window_days" mapstructure:"window_days"`
	AmountToleranceCents       int64    `yaml:"amount_tolerance_cents" mapstructure:"amount_tolerance_cents"`
	ReceiptToleranceCents      int64    `yaml:"receipt_tolerance_cents" mapstructure:"receipt_tolerance_cents"`
	PenaltyNoMatch             int      `yaml:"penalty_no_match" mapstructure:"penalty_no_match"`
	PenaltyReceiptMismatch     int      `yaml:"penalty_receipt_mismatch" mapstructure:"penalty_receipt_mismatch"`
	PenaltyMissingReceipt      int      `yaml:"penalty_missing_receipt" mapstructure:"penalty_missing_receipt"`
	PenaltyCOSNoEvent          int      `yaml:"penalty_cos_no_event" mapstructure:"penalty_cos_no_event"`
	PenaltyCOSNoEventHigh      int      `yaml:"penalty_cos_no_event_high" mapstructure:"penalty_cos_no_event_high"`
	PenaltyJurisdictionUnknown int      `yaml:"penalty_jurisdiction_unknown" mapstructure:"penalty_jurisdiction_unknown"`
	PenaltyCategoryUnknown     int      `yaml:"penalty_category_unknown" mapstructure:"penalty_category_unknown"`
	AutoPostThreshold          int      `yaml:"auto_post_threshold" mapstructure:"auto_post_threshold"`
	CostOfSaleCategories       []string `yaml:"cost_of_sale_categories" mapstructure:"cost_of_sale_categories"`
	EventCategories            []string `yaml:"event_categories" mapstructure:"event_categories"`
	KnownCategories            []string `yaml:"known_categories" mapstructure:"known_categories"`
	HomeJurisdictions          []string `yaml:"home_jurisdictions" mapstructure:"home_jurisdictions"`
}

// OrphansConfig configures the unmatched-transaction sweep.
type OrphansConfig struct {
	AgeDays   int `yaml:"age_days" mapstructure:"age_days"`
	BatchSize int `yaml:"batch_size" mapstructure:"batch_size"`
}

// ReceiptsConfig configures the receipt artifact store.
type ReceiptsConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// AnthropicConfig holds Anthropic API settings for the advisory scorer.
type AnthropicConfig struct {
	Key     string `yaml:"key" mapstructure:"key"`
	Model   string `yaml:"model" mapstructure:"model"`
	Enabled bool   `yaml:"enabled" mapstructure:"enabled"`
}

// ServerConfig configures the webhook server.
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
	v.SetEnvPrefix("RECON")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "recon.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("queue.max_concurrent", 5)
	v.SetDefault("queue.processing_timeout_mins", 15)
	v.SetDefault("queue.max_attempts", 3)
	v.SetDefault("queue.post_rate_per_sec", 0)
	v.SetDefault("match.window_days", 3)
	v.SetDefault("match.amount_tolerance_cents", 50)
	v.SetDefault("match.receipt_tolerance_cents", 100)
	v.SetDefault("match.penalty_no_match", 40)
	v.SetDefault("match.penalty_receipt_mismatch", 30)
	v.SetDefault("match.penalty_missing_receipt", 25)
	v.SetDefault("match.penalty_cos_no_event", 20)
	v.SetDefault("match.penalty_cos_no_event_high", 40)
	v.SetDefault("match.penalty_jurisdiction_unknown", 20)
	v.SetDefault("match.penalty_category_unknown", 15)
	v.SetDefault("match.auto_post_threshold", 95)
	v.SetDefault("match.cost_of_sale_categories",
		[]string{"Course Materials", "Event Supplies", "Venue Rental", "Catering"})
	v.SetDefault("match.event_categories", []string{"Venue Rental", "Catering"})
	v.SetDefault("match.known_categories", []string{
		"Fuel", "Meals", "Travel", "Lodging", "Office Supplies", "Software",
		"Course Materials", "Event Supplies", "Venue Rental", "Catering",
		"Utilities", "Insurance", "Professional Services",
	})
	v.SetDefault("match.home_jurisdictions",
		[]string{"CA", "TX", "CO", "WA", "NJ", "FL", "MT", "NC"})
	v.SetDefault("orphans.age_days", 5)
	v.SetDefault("orphans.batch_size", 20)
	v.SetDefault("receipts.dir", "receipts")
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.enabled", false)
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

// Validate checks the configuration needed for the given run mode. Modes map
// to commands: "serve", "process", "import", "ingest".
func (c *Config) Validate(mode string) error {
	var problems []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		problems = append(problems, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		problems = append(problems, "store.database_url is required")
	}
	if c.Queue.MaxConcurrent < 1 || c.Queue.MaxConcurrent > 50 {
		problems = append(problems, "queue.max_concurrent must be between 1 and 50")
	}
	if c.Match.AutoPostThreshold < 0 || c.Match.AutoPostThreshold > 100 {
		problems = append(problems, "match.auto_post_threshold must be between 0 and 100")
	}
	if c.Anthropic.Enabled && c.Anthropic.Key == "" {
		problems = append(problems, "anthropic.key is required when anthropic.enabled is set")
	}

	switch mode {
	case "serve":
		if c.Server.Port <= 0 {
			problems = append(problems, "server.port must be > 0")
		}
	case "process", "import", "ingest":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(problems) > 0 {
		return eris.Errorf("config: %s", strings.Join(problems, "; "))
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
