package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Catalog   CatalogConfig   `yaml:"catalog" mapstructure:"catalog"`
	Feed      FeedConfig      `yaml:"feed" mapstructure:"feed"`
	Enrich    EnrichConfig    `yaml:"enrich" mapstructure:"enrich"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	LocalLLM  LocalLLMConfig  `yaml:"local_llm" mapstructure:"local_llm"`
	Images    ImagesConfig    `yaml:"images" mapstructure:"images"`
	S3        S3Config        `yaml:"s3" mapstructure:"s3"`
	PriceSync PriceSyncConfig `yaml:"pricesync" mapstructure:"pricesync"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// StoreConfig configures the session store backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// CatalogConfig configures the target catalog database and the values
// stamped on every imported product.
type CatalogConfig struct {
	DatabaseURL       string `yaml:"database_url" mapstructure:"database_url"`
	ShippingProfileID string `yaml:"shipping_profile_id" mapstructure:"shipping_profile_id"`
	SalesChannelID    string `yaml:"sales_channel_id" mapstructure:"sales_channel_id"`
	ProductStatus     string `yaml:"product_status" mapstructure:"product_status"`
	Currency          string `yaml:"currency" mapstructure:"currency"`
	MaxConns          int32  `yaml:"max_conns" mapstructure:"max_conns"`
}

// FeedConfig configures feed downloads and mapping.
type FeedConfig struct {
	TimeoutSecs    int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries     int      `yaml:"max_retries" mapstructure:"max_retries"`
	UserAgent      string   `yaml:"user_agent" mapstructure:"user_agent"`
	WorkDir        string   `yaml:"work_dir" mapstructure:"work_dir"`
	PreferredLangs []string `yaml:"preferred_langs" mapstructure:"preferred_langs"`
	TargetLang     string   `yaml:"target_lang" mapstructure:"target_lang"`
}

// Timeout returns the download timeout.
func (f FeedConfig) Timeout() time.Duration {
	return time.Duration(f.TimeoutSecs) * time.Second
}

// EnrichConfig selects and paces the text-generation provider.
type EnrichConfig struct {
	Provider         string  `yaml:"provider" mapstructure:"provider"`
	Enabled          bool    `yaml:"enabled" mapstructure:"enabled"`
	RatePerSec       float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
	TimeoutSecs      int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	MaxRetries       int     `yaml:"max_retries" mapstructure:"max_retries"`
	CircuitFailures  int     `yaml:"circuit_failures" mapstructure:"circuit_failures"`
	CircuitResetSecs int     `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// ActiveProvider returns the provider to use, "none" when enrichment is off.
func (e EnrichConfig) ActiveProvider() string {
	if !e.Enabled {
		return "none"
	}
	return strings.ToLower(e.Provider)
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key       string `yaml:"key" mapstructure:"key"`
	Model     string `yaml:"model" mapstructure:"model"`
	MaxTokens int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// LocalLLMConfig holds settings for a self-hosted OpenAI-compatible endpoint.
type LocalLLMConfig struct {
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	Model     string `yaml:"model" mapstructure:"model"`
	Key       string `yaml:"key" mapstructure:"key"`
	MaxTokens int    `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// ImagesConfig configures image handling.
type ImagesConfig struct {
	Mode        string `yaml:"mode" mapstructure:"mode"`
	Concurrency int    `yaml:"concurrency" mapstructure:"concurrency"`
}

// S3Config configures the blob store used in materialize mode.
type S3Config struct {
	Bucket        string `yaml:"bucket" mapstructure:"bucket"`
	Region        string `yaml:"region" mapstructure:"region"`
	Endpoint      string `yaml:"endpoint" mapstructure:"endpoint"`
	Prefix        string `yaml:"prefix" mapstructure:"prefix"`
	PublicBaseURL string `yaml:"public_base_url" mapstructure:"public_base_url"`
}

// PriceSyncConfig configures the scheduled price and stock sync.
type PriceSyncConfig struct {
	FeedURLs []string      `yaml:"feed_urls" mapstructure:"feed_urls"`
	Every    time.Duration `yaml:"every" mapstructure:"every"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// NotifyConfig configures session outcome events. Without brokers,
// events are only logged.
type NotifyConfig struct {
	KafkaBrokers []string `yaml:"kafka_brokers" mapstructure:"kafka_brokers"`
	KafkaTopic   string   `yaml:"kafka_topic" mapstructure:"kafka_topic"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CATALOG")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "catalog-importer.db")
	v.SetDefault("catalog.product_status", "draft")
	v.SetDefault("catalog.currency", "pln")
	v.SetDefault("feed.timeout_secs", 600)
	v.SetDefault("feed.max_retries", 3)
	v.SetDefault("feed.user_agent", "catalog-importer/1.0")
	v.SetDefault("feed.work_dir", "/tmp/catalog-importer")
	v.SetDefault("feed.preferred_langs", []string{"pol", "eng"})
	v.SetDefault("feed.target_lang", "pol")
	v.SetDefault("enrich.provider", "anthropic")
	v.SetDefault("enrich.enabled", false)
	v.SetDefault("enrich.rate_per_sec", 2.0)
	v.SetDefault("enrich.timeout_secs", 120)
	v.SetDefault("enrich.max_retries", 3)
	v.SetDefault("enrich.circuit_failures", 5)
	v.SetDefault("enrich.circuit_reset_secs", 30)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 4096)
	v.SetDefault("local_llm.base_url", "http://localhost:11434/v1")
	v.SetDefault("local_llm.max_tokens", 4096)
	v.SetDefault("images.mode", "passthrough")
	v.SetDefault("images.concurrency", 4)
	v.SetDefault("pricesync.every", "6h")
	v.SetDefault("server.port", 8080)
	v.SetDefault("notify.kafka_topic", "catalog-import-events")

	// Keys without a default must still be known to viper so the
	// environment can supply them.
	for _, key := range []string{
		"catalog.database_url", "catalog.shipping_profile_id", "catalog.sales_channel_id",
		"anthropic.key", "local_llm.model", "local_llm.key",
		"s3.bucket", "s3.region", "s3.endpoint", "s3.prefix", "s3.public_base_url",
	} {
		v.SetDefault(key, "")
	}

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

// Validate checks the keys required by mode ("import", "pricesync",
// "serve", "migrate") plus the bounds shared by every mode.
func (c *Config) Validate(mode string) error {
	var errs []string
	require := func(ok bool, key string) {
		if !ok {
			errs = append(errs, key+" is required")
		}
	}

	switch mode {
	case "import", "serve":
		require(c.Catalog.DatabaseURL != "", "catalog.database_url")
		errs = append(errs, c.validateImport()...)
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "pricesync":
		require(c.Catalog.DatabaseURL != "", "catalog.database_url")
		require(len(c.PriceSync.FeedURLs) > 0, "pricesync.feed_urls")
		if c.PriceSync.Every < 0 {
			errs = append(errs, "pricesync.every must be >= 0")
		}
	case "migrate":
		require(c.Catalog.DatabaseURL != "", "catalog.database_url")
	case "session":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch strings.ToLower(c.Store.Driver) {
	case "sqlite", "":
	case "postgres":
		require(c.Store.DatabaseURL != "", "store.database_url")
	default:
		errs = append(errs, fmt.Sprintf("store.driver %q must be sqlite or postgres", c.Store.Driver))
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

func (c *Config) validateImport() []string {
	var errs []string
	switch c.Enrich.ActiveProvider() {
	case "none":
	case "anthropic":
		if c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required")
		}
	case "local":
		if c.LocalLLM.BaseURL == "" {
			errs = append(errs, "local_llm.base_url is required")
		}
		if c.LocalLLM.Model == "" {
			errs = append(errs, "local_llm.model is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("enrich.provider %q must be anthropic, local or none", c.Enrich.Provider))
	}

	switch c.Images.Mode {
	case "passthrough", "":
	case "materialize":
		if c.S3.Bucket == "" {
			errs = append(errs, "s3.bucket is required")
		}
	default:
		errs = append(errs, fmt.Sprintf("images.mode %q must be passthrough or materialize", c.Images.Mode))
	}
	if c.Images.Concurrency < 1 || c.Images.Concurrency > 32 {
		errs = append(errs, "images.concurrency must be between 1 and 32")
	}

	switch c.Catalog.ProductStatus {
	case "draft", "published", "":
	default:
		errs = append(errs, fmt.Sprintf("catalog.product_status %q is not a product status", c.Catalog.ProductStatus))
	}
	if len(c.Feed.PreferredLangs) == 0 {
		errs = append(errs, "feed.preferred_langs must not be empty")
	}
	return errs
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
