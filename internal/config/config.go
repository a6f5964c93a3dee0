package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"CryptoNewsAnalyzer/internal/domain"
)

const (
	configPathEnv = "CRYPTO_ANALYZER_CONFIG"

	databaseDriverEnv = "DATABASE_DRIVER"
	databaseDSNEnv    = "DATABASE_DSN"

	grokAPIKeyEnv      = "XAI_API_KEY"
	grokModelEnv       = "GROK_MODEL"
	grokBaseURLEnv     = "GROK_BASE_URL"
	grokWebSearchEnv   = "GROK_USE_WEB_SEARCH"
	grokTemperatureEnv = "GROK_TEMPERATURE"
	grokMaxTokensEnv   = "GROK_MAX_TOKENS"

	telegramTokenEnv   = "TELEGRAM_BOT_TOKEN"
	telegramChannelEnv = "TELEGRAM_CHANNEL_ID"

	fetchHoursEnv = "TWEET_FETCH_HOURS"
	fetchLimitEnv = "TWEET_LIMIT"
	thresholdEnv  = "MIN_TWEETS_THRESHOLD"

	logLevelEnv  = "LOG_LEVEL"
	logFormatEnv = "LOG_FORMAT"
	redisURLEnv  = "REDIS_URL"
)

// Config holds high-level settings required across the application.
type Config struct {
	Database  DatabaseConfig  `yaml:"database"`
	Grok      GrokConfig      `yaml:"grok"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Analysis  AnalysisConfig  `yaml:"analysis"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Server    ServerConfig    `yaml:"server"`
	Redis     RedisConfig     `yaml:"redis"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// DatabaseConfig describes the post store connection.
type DatabaseConfig struct {
	Driver   string `yaml:"driver"` // postgres, pgx or sqlite
	DSN      string `yaml:"dsn"`
	MaxConns int    `yaml:"maxConns"`
	Migrate  bool   `yaml:"migrate"`
}

// GrokConfig defines how to contact the OpenAI-compatible classifier endpoint.
type GrokConfig struct {
	APIKey       string        `yaml:"apiKey"`
	Model        string        `yaml:"model"`
	BaseURL      string        `yaml:"baseUrl"`
	UseWebSearch bool          `yaml:"useWebSearch"`
	Temperature  float64       `yaml:"temperature"`
	MaxTokens    int           `yaml:"maxTokens"`
	MaxAttempts  int           `yaml:"maxAttempts"`
	RetryBase    time.Duration `yaml:"retryBase"`
	Timeout      time.Duration `yaml:"timeout"`
	SystemPrompt string        `yaml:"systemPrompt"`
}

// TelegramConfig wires all data required to send messages.
type TelegramConfig struct {
	BotToken   string        `yaml:"botToken"`
	ChannelID  string        `yaml:"channelId"`
	BaseURL    string        `yaml:"baseUrl"`
	MaxLength  int           `yaml:"maxLength"`
	SendPacing time.Duration `yaml:"sendPacing"`
}

// AnalysisConfig bounds one pipeline run.
type AnalysisConfig struct {
	FetchHours     int           `yaml:"fetchHours"`
	Limit          int           `yaml:"limit"`
	MinThreshold   int           `yaml:"minThreshold"`
	MinTextLength  int           `yaml:"minTextLength"`
	RetentionDays  int           `yaml:"retentionDays"`
	RequeueAfter   time.Duration `yaml:"requeueAfter"`
	StatsWindow    time.Duration `yaml:"statsWindow"`
	RunLockTimeout time.Duration `yaml:"runLockTimeout"`
}

// FetchWindow converts FetchHours into a trailing duration.
func (a AnalysisConfig) FetchWindow() time.Duration {
	return time.Duration(a.FetchHours) * time.Hour
}

// SchedulerConfig defines how often daemon mode runs the pipeline.
type SchedulerConfig struct {
	Interval time.Duration `yaml:"interval"`
}

// ServerConfig configures the operator HTTP surface in daemon mode.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// RedisConfig enables the cross-process run lock when URL is set.
type RedisConfig struct {
	URL string `yaml:"url"`
	Key string `yaml:"key"`
}

// LoggingConfig selects level and handler format (text, json, console).
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Load reads YAML configuration (if present) and applies environment overrides.
func Load() Config {
	cfg := defaultConfig()

	if path := os.Getenv(configPathEnv); path != "" {
		if fileCfg, err := readFile(path); err != nil {
			log.Printf("config: %v (falling back to defaults)", err)
		} else {
			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg.applyEnvOverrides()
	return cfg
}

// LoadFile is Load with an explicit YAML path taking precedence over the env variable.
func LoadFile(path string) (Config, error) {
	cfg := defaultConfig()
	if path != "" {
		fileCfg, err := readFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("%w: %v", domain.ErrConfig, err)
		}
		cfg = mergeConfig(cfg, fileCfg)
	}
	cfg.applyEnvOverrides()
	return cfg, nil
}

func readFile(path string) (Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("cannot read %s: %w", path, err)
	}
	var fileCfg Config
	if err := yaml.Unmarshal(raw, &fileCfg); err != nil {
		return Config{}, fmt.Errorf("cannot parse %s: %w", path, err)
	}
	return fileCfg, nil
}

// Validate reports every missing or invalid required setting at once.
func (c Config) Validate() error {
	var problems []string

	if c.Database.DSN == "" {
		problems = append(problems, databaseDSNEnv+" is required")
	}
	switch c.Database.Driver {
	case "postgres", "pgx", "sqlite":
	default:
		problems = append(problems, fmt.Sprintf("unsupported database driver %q", c.Database.Driver))
	}
	if c.Grok.APIKey == "" {
		problems = append(problems, grokAPIKeyEnv+" is required")
	}
	if c.Telegram.BotToken == "" {
		problems = append(problems, telegramTokenEnv+" is required")
	}
	if c.Telegram.ChannelID == "" {
		problems = append(problems, telegramChannelEnv+" is required")
	}
	if c.Analysis.Limit <= 0 {
		problems = append(problems, "analysis limit must be positive")
	}
	if c.Analysis.FetchHours <= 0 {
		problems = append(problems, "fetch hours must be positive")
	}
	if c.Grok.MaxAttempts <= 0 {
		problems = append(problems, "grok max attempts must be positive")
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", domain.ErrConfig, strings.Join(problems, "; "))
	}
	return nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv(databaseDriverEnv); v != "" {
		c.Database.Driver = v
	}
	if v := os.Getenv(databaseDSNEnv); v != "" {
		c.Database.DSN = v
	}

	if v := os.Getenv(grokAPIKeyEnv); v != "" {
		c.Grok.APIKey = v
	}
	if v := os.Getenv(grokModelEnv); v != "" {
		c.Grok.Model = v
	}
	if v := os.Getenv(grokBaseURLEnv); v != "" {
		c.Grok.BaseURL = v
	}
	if v := os.Getenv(grokWebSearchEnv); v != "" {
		c.Grok.UseWebSearch = strings.EqualFold(v, "true")
	}
	if v, ok := envFloat(grokTemperatureEnv); ok {
		c.Grok.Temperature = v
	}
	if v, ok := envInt(grokMaxTokensEnv); ok {
		c.Grok.MaxTokens = v
	}

	if v := os.Getenv(telegramTokenEnv); v != "" {
		c.Telegram.BotToken = v
	}
	if v := os.Getenv(telegramChannelEnv); v != "" {
		c.Telegram.ChannelID = v
	}

	if v, ok := envInt(fetchHoursEnv); ok {
		c.Analysis.FetchHours = v
	}
	if v, ok := envInt(fetchLimitEnv); ok {
		c.Analysis.Limit = v
	}
	if v, ok := envInt(thresholdEnv); ok {
		c.Analysis.MinThreshold = v
	}

	if v := os.Getenv(logLevelEnv); v != "" {
		c.Logging.Level = v
	}
	if v := os.Getenv(logFormatEnv); v != "" {
		c.Logging.Format = v
	}
	if v := os.Getenv(redisURLEnv); v != "" {
		c.Redis.URL = v
	}
}

func envInt(key string) (int, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, raw, err)
		return 0, false
	}
	return v, true
}

func envFloat(key string) (float64, bool) {
	raw := os.Getenv(key)
	if raw == "" {
		return 0, false
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		log.Printf("config: ignoring %s=%q: %v", key, raw, err)
		return 0, false
	}
	return v, true
}

func mergeConfig(base, override Config) Config {
	if override.Database.Driver != "" {
		base.Database.Driver = override.Database.Driver
	}
	if override.Database.DSN != "" {
		base.Database.DSN = override.Database.DSN
	}
	if override.Database.MaxConns > 0 {
		base.Database.MaxConns = override.Database.MaxConns
	}
	if override.Database.Migrate {
		base.Database.Migrate = true
	}

	if override.Grok.APIKey != "" {
		base.Grok.APIKey = override.Grok.APIKey
	}
	if override.Grok.Model != "" {
		base.Grok.Model = override.Grok.Model
	}
	if override.Grok.BaseURL != "" {
		base.Grok.BaseURL = override.Grok.BaseURL
	}
	if override.Grok.UseWebSearch {
		base.Grok.UseWebSearch = true
	}
	if override.Grok.Temperature > 0 {
		base.Grok.Temperature = override.Grok.Temperature
	}
	if override.Grok.MaxTokens > 0 {
		base.Grok.MaxTokens = override.Grok.MaxTokens
	}
	if override.Grok.MaxAttempts > 0 {
		base.Grok.MaxAttempts = override.Grok.MaxAttempts
	}
	if override.Grok.RetryBase > 0 {
		base.Grok.RetryBase = override.Grok.RetryBase
	}
	if override.Grok.Timeout > 0 {
		base.Grok.Timeout = override.Grok.Timeout
	}
	if override.Grok.SystemPrompt != "" {
		base.Grok.SystemPrompt = override.Grok.SystemPrompt
	}

	if override.Telegram.BotToken != "" {
		base.Telegram.BotToken = override.Telegram.BotToken
	}
	if override.Telegram.ChannelID != "" {
		base.Telegram.ChannelID = override.Telegram.ChannelID
	}
	if override.Telegram.BaseURL != "" {
		base.Telegram.BaseURL = override.Telegram.BaseURL
	}
	if override.Telegram.MaxLength > 0 {
		base.Telegram.MaxLength = override.Telegram.MaxLength
	}
	if override.Telegram.SendPacing > 0 {
		base.Telegram.SendPacing = override.Telegram.SendPacing
	}

	if override.Analysis.FetchHours > 0 {
		base.Analysis.FetchHours = override.Analysis.FetchHours
	}
	if override.Analysis.Limit > 0 {
		base.Analysis.Limit = override.Analysis.Limit
	}
	if override.Analysis.MinThreshold > 0 {
		base.Analysis.MinThreshold = override.Analysis.MinThreshold
	}
	if override.Analysis.MinTextLength > 0 {
		base.Analysis.MinTextLength = override.Analysis.MinTextLength
	}
	if override.Analysis.RetentionDays > 0 {
		base.Analysis.RetentionDays = override.Analysis.RetentionDays
	}
	if override.Analysis.RequeueAfter > 0 {
		base.Analysis.RequeueAfter = override.Analysis.RequeueAfter
	}
	if override.Analysis.StatsWindow > 0 {
		base.Analysis.StatsWindow = override.Analysis.StatsWindow
	}
	if override.Analysis.RunLockTimeout > 0 {
		base.Analysis.RunLockTimeout = override.Analysis.RunLockTimeout
	}

	if override.Scheduler.Interval > 0 {
		base.Scheduler.Interval = override.Scheduler.Interval
	}
	if override.Server.Addr != "" {
		base.Server.Addr = override.Server.Addr
	}
	if override.Redis.URL != "" {
		base.Redis.URL = override.Redis.URL
	}
	if override.Redis.Key != "" {
		base.Redis.Key = override.Redis.Key
	}
	if override.Logging.Level != "" {
		base.Logging.Level = override.Logging.Level
	}
	if override.Logging.Format != "" {
		base.Logging.Format = override.Logging.Format
	}

	return base
}

func defaultConfig() Config {
	return Config{
		Database: DatabaseConfig{
			Driver:   "postgres",
			MaxConns: 10,
		},
		Grok: GrokConfig{
			Model:        "grok-3",
			BaseURL:      "https://api.x.ai/v1",
			UseWebSearch: true,
			Temperature:  0.1,
			MaxTokens:    10000,
			MaxAttempts:  3,
			RetryBase:    time.Second,
			Timeout:      120 * time.Second,
		},
		Telegram: TelegramConfig{
			BaseURL:    "https://api.telegram.org",
			MaxLength:  4096,
			SendPacing: time.Second,
		},
		Analysis: AnalysisConfig{
			FetchHours:     8,
			Limit:          100,
			MinThreshold:   50,
			MinTextLength:  20,
			RetentionDays:  30,
			StatsWindow:    24 * time.Hour,
			RunLockTimeout: 30 * time.Minute,
		},
		Scheduler: SchedulerConfig{Interval: 8 * time.Hour},
		Server:    ServerConfig{Addr: ":8080"},
		Redis:     RedisConfig{Key: "crypto-analyzer:run-lock"},
		Logging:   LoggingConfig{Level: "info", Format: "text"},
	}
}
