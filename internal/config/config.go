// ABOUTME: Configuration loading and parsing for dolarbot
// ABOUTME: YAML files with ${VAR} expansion, DOLARBOT_* env overrides, and duration parsing

package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"
)

// Defaults applied when the config file leaves a value empty.
const (
	DefaultAPIURL          = "https://api.telegram.org"
	DefaultWebhookPath     = "/webhook"
	DefaultMetricsPath     = "/metrics"
	DefaultProfile         = "dolar_arg"
	DefaultHTTPTimeout     = 30 * time.Second
	DefaultPublisherLimit  = 4
	DefaultScraperLimit    = 4
	DefaultRatePerSecond   = 25.0
	DefaultDatabaseFile    = "dolarbot.db"
	defaultTailscaleHost   = "dolarbot"
	telegramTokenIDPattern = `^(\d+):[\w\-]+$`
)

var tokenPattern = regexp.MustCompile(telegramTokenIDPattern)

// Config represents the complete dolarbot configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	Publisher PublisherConfig `yaml:"publisher"`
	Scraper   ScraperConfig   `yaml:"scraper"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds the webhook HTTP server configuration
type ServerConfig struct {
	HTTPAddr      string `yaml:"http_addr"      env:"DOLARBOT_HTTP_ADDR"`
	WebhookPath   string `yaml:"webhook_path"   env:"DOLARBOT_WEBHOOK_PATH"`
	WebhookSecret string `yaml:"webhook_secret" env:"DOLARBOT_WEBHOOK_SECRET"` // matched against X-Telegram-Bot-Api-Secret-Token
}

// TailscaleConfig holds Tailscale tsnet configuration. Funnel exposes the
// webhook on a public HTTPS name, which is what Telegram requires.
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled"   env:"DOLARBOT_TAILSCALE_ENABLED"`
	Hostname  string `yaml:"hostname"  env:"DOLARBOT_TAILSCALE_HOSTNAME"`
	AuthKey   string `yaml:"auth_key"  env:"TS_AUTHKEY"`
	StateDir  string `yaml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral"`
	Funnel    bool   `yaml:"funnel"    env:"DOLARBOT_TAILSCALE_FUNNEL"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" env:"DOLARBOT_DB_PATH"`
}

// TelegramConfig holds the remote Bot API settings and the two identities
// the webhook authorizes against.
type TelegramConfig struct {
	APIURL  string `yaml:"api_url"  env:"DOLARBOT_TELEGRAM_API_URL"`
	Token   string `yaml:"token"    env:"DOLARBOT_TELEGRAM_TOKEN"`
	OwnerID int64  `yaml:"owner_id" env:"DOLARBOT_TELEGRAM_OWNER_ID"`
	BotID   int64  `yaml:"bot_id"   env:"DOLARBOT_TELEGRAM_BOT_ID"` // derived from the token when zero

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout" env:"DOLARBOT_TELEGRAM_TIMEOUT"`
}

// PublisherConfig controls fan-out delivery
type PublisherConfig struct {
	Concurrency   int     `yaml:"concurrency"     env:"DOLARBOT_PUBLISHER_CONCURRENCY"`
	RatePerSecond float64 `yaml:"rate_per_second" env:"DOLARBOT_PUBLISHER_RATE"`
}

// ScraperConfig controls source fetching
type ScraperConfig struct {
	Profile     string `yaml:"profile"     env:"DOLARBOT_SCRAPER_PROFILE"`
	Concurrency int    `yaml:"concurrency" env:"DOLARBOT_SCRAPER_CONCURRENCY"`

	Timeout    time.Duration `yaml:"-"`
	TimeoutRaw string        `yaml:"timeout" env:"DOLARBOT_SCRAPER_TIMEOUT"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"  env:"DOLARBOT_LOG_LEVEL"`
	Format string `yaml:"format" env:"DOLARBOT_LOG_FORMAT"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" env:"DOLARBOT_METRICS_ENABLED"`
	Path    string `yaml:"path"    env:"DOLARBOT_METRICS_PATH"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded, then DOLARBOT_*
// variables override individual fields.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	return Parse(data)
}

// Parse builds a Config from raw YAML bytes. See Load.
func Parse(data []byte) (*Config, error) {
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Server.WebhookPath == "" {
		c.Server.WebhookPath = DefaultWebhookPath
	}
	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = DefaultAPIURL
	}
	if c.Telegram.Timeout == 0 {
		c.Telegram.Timeout = DefaultHTTPTimeout
	}
	if c.Telegram.BotID == 0 {
		if id, err := BotIDFromToken(c.Telegram.Token); err == nil {
			c.Telegram.BotID = id
		}
	}
	if c.Publisher.Concurrency <= 0 {
		c.Publisher.Concurrency = DefaultPublisherLimit
	}
	if c.Publisher.RatePerSecond <= 0 {
		c.Publisher.RatePerSecond = DefaultRatePerSecond
	}
	if c.Scraper.Profile == "" {
		c.Scraper.Profile = DefaultProfile
	}
	if c.Scraper.Concurrency <= 0 {
		c.Scraper.Concurrency = DefaultScraperLimit
	}
	if c.Scraper.Timeout == 0 {
		c.Scraper.Timeout = DefaultHTTPTimeout
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		c.Tailscale.Hostname = defaultTailscaleHost
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return errors.New("server.http_addr is required (or enable tailscale)")
	}

	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}

	if c.Telegram.Token == "" {
		return errors.New("telegram.token is required")
	}
	if _, err := BotIDFromToken(c.Telegram.Token); err != nil {
		return err
	}

	if c.Telegram.OwnerID == 0 {
		return errors.New("telegram.owner_id is required")
	}

	return nil
}

// BotIDFromToken extracts the numeric bot id that prefixes every Bot API token
// ("123456:ABC-DEF" -> 123456).
func BotIDFromToken(token string) (int64, error) {
	m := tokenPattern.FindStringSubmatch(token)
	if m == nil {
		return 0, errors.New("telegram.token is not a valid bot token")
	}
	id, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parsing bot id from token: %w", err)
	}
	return id, nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Telegram.TimeoutRaw != "" {
		cfg.Telegram.Timeout, err = time.ParseDuration(cfg.Telegram.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing telegram.timeout %q: %w", cfg.Telegram.TimeoutRaw, err)
		}
	}

	if cfg.Scraper.TimeoutRaw != "" {
		cfg.Scraper.Timeout, err = time.ParseDuration(cfg.Scraper.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing scraper.timeout %q: %w", cfg.Scraper.TimeoutRaw, err)
		}
	}

	return nil
}
