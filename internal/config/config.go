// Package config loads Taborda configuration from a JSON file or from
// TABORDA_-prefixed environment variables.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config is the top-level Taborda configuration.
type Config struct {
	Bot        BotConfig       `json:"bot"`
	Connectors ConnectorConfig `json:"connectors"`
	API        APIConfig       `json:"api"`
}

// BotConfig holds core intake-flow settings.
type BotConfig struct {
	DataDir string `json:"data_dir"`
	// IdleTimeoutMinutes is how long a conversation may sit unanswered
	// before the reaper closes it as incomplete.
	IdleTimeoutMinutes int `json:"idle_timeout_minutes"`
	// ReapIntervalMinutes is how often the reaper sweeps.
	ReapIntervalMinutes int `json:"reap_interval_minutes"`
	// Typing delay bounds applied around each outbound send.
	TypingDelayMinMS int `json:"typing_delay_min_ms"`
	TypingDelayMaxMS int `json:"typing_delay_max_ms"`
	// Categories overrides the problem-type menu (option → label).
	Categories map[string]string `json:"categories,omitempty"`
}

// IdleTimeout returns the staleness threshold as a duration.
func (b BotConfig) IdleTimeout() time.Duration {
	return time.Duration(b.IdleTimeoutMinutes) * time.Minute
}

// ReapInterval returns the sweep interval as a duration.
func (b BotConfig) ReapInterval() time.Duration {
	return time.Duration(b.ReapIntervalMinutes) * time.Minute
}

// ConnectorConfig holds settings for external platform connectors.
type ConnectorConfig struct {
	Telegram *TelegramConfig `json:"telegram,omitempty"`
	Slack    *SlackConfig    `json:"slack,omitempty"`
	Webhook  *WebhookConfig  `json:"webhook,omitempty"`
}

// TelegramConfig holds Telegram bot settings.
type TelegramConfig struct {
	Token     string  `json:"token"`
	AllowFrom []int64 `json:"allow_from,omitempty"`
}

// SlackConfig holds Slack Socket Mode settings.
type SlackConfig struct {
	BotToken string `json:"bot_token"`
	AppToken string `json:"app_token"`
}

// WebhookConfig holds webhook transport settings.
type WebhookConfig struct {
	// Endpoints maps endpoint names to their auth settings.
	Endpoints map[string]WebhookEndpoint `json:"endpoints"`
}

// WebhookEndpoint holds per-endpoint webhook auth. Secret enables
// HMAC-SHA256 signature checks; otherwise BearerToken is required.
type WebhookEndpoint struct {
	Secret      string `json:"secret,omitempty"`
	BearerToken string `json:"bearer_token,omitempty"`
}

// APIConfig holds admin API server settings.
type APIConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
	Key  string `json:"api_key"`
}

// Load reads configuration from a JSON file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadFromEnv builds a config from environment variables with the
// TABORDA_ prefix.
func LoadFromEnv() (*Config, error) {
	cfg := &Config{
		Bot: BotConfig{
			DataDir:             getenv("TABORDA_DATA_DIR", "/data"),
			IdleTimeoutMinutes:  getenvInt("TABORDA_IDLE_TIMEOUT_MINUTES", 0),
			ReapIntervalMinutes: getenvInt("TABORDA_REAP_INTERVAL_MINUTES", 0),
			TypingDelayMinMS:    getenvInt("TABORDA_TYPING_DELAY_MIN_MS", 0),
			TypingDelayMaxMS:    getenvInt("TABORDA_TYPING_DELAY_MAX_MS", 0),
		},
		API: APIConfig{
			Host: getenv("TABORDA_API_HOST", "0.0.0.0"),
			Port: getenvInt("TABORDA_API_PORT", 8080),
			Key:  os.Getenv("TABORDA_API_KEY"),
		},
	}
	cfg.applyDefaults()

	if token := os.Getenv("TABORDA_TELEGRAM_TOKEN"); token != "" {
		cfg.Connectors.Telegram = &TelegramConfig{Token: token}
		if ids := os.Getenv("TABORDA_TELEGRAM_ALLOW_FROM"); ids != "" {
			parsed, err := parseInt64List(ids)
			if err != nil {
				return nil, fmt.Errorf("config: TABORDA_TELEGRAM_ALLOW_FROM: %w", err)
			}
			cfg.Connectors.Telegram.AllowFrom = parsed
		}
	}

	if bot := os.Getenv("TABORDA_SLACK_BOT_TOKEN"); bot != "" {
		cfg.Connectors.Slack = &SlackConfig{
			BotToken: bot,
			AppToken: os.Getenv("TABORDA_SLACK_APP_TOKEN"),
		}
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Bot.IdleTimeoutMinutes == 0 {
		c.Bot.IdleTimeoutMinutes = 90
	}
	if c.Bot.ReapIntervalMinutes == 0 {
		c.Bot.ReapIntervalMinutes = 5
	}
	if c.Bot.TypingDelayMinMS == 0 {
		c.Bot.TypingDelayMinMS = 1500
	}
	if c.Bot.TypingDelayMaxMS == 0 {
		c.Bot.TypingDelayMaxMS = 3500
	}
	if c.API.Host == "" {
		c.API.Host = "0.0.0.0"
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
}

// Validate checks for required fields and inconsistent values.
func (c *Config) Validate() error {
	var errs []string

	if c.Bot.DataDir == "" {
		errs = append(errs, "bot.data_dir is required")
	}
	if c.Bot.IdleTimeoutMinutes < 0 {
		errs = append(errs, "bot.idle_timeout_minutes must not be negative")
	}
	if c.Bot.ReapIntervalMinutes <= 0 {
		errs = append(errs, "bot.reap_interval_minutes must be positive")
	}
	if c.Bot.TypingDelayMaxMS < c.Bot.TypingDelayMinMS {
		errs = append(errs, "bot.typing_delay_max_ms must be >= typing_delay_min_ms")
	}
	for option := range c.Bot.Categories {
		if len(option) != 1 || option < "1" || option > "9" {
			errs = append(errs, fmt.Sprintf("bot.categories: option %q must be a single digit 1-9", option))
		}
	}

	if c.Connectors.Telegram != nil && c.Connectors.Telegram.Token == "" {
		errs = append(errs, "connectors.telegram.token is required")
	}
	if c.Connectors.Slack != nil {
		if c.Connectors.Slack.BotToken == "" {
			errs = append(errs, "connectors.slack.bot_token is required")
		}
		if c.Connectors.Slack.AppToken == "" {
			errs = append(errs, "connectors.slack.app_token is required")
		}
	}
	if c.Connectors.Webhook != nil {
		for name, ep := range c.Connectors.Webhook.Endpoints {
			if ep.Secret == "" && ep.BearerToken == "" {
				errs = append(errs, fmt.Sprintf("connectors.webhook.endpoints.%s needs a secret or bearer_token", name))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// Warnings returns non-fatal misconfigurations worth logging at startup.
func (c *Config) Warnings() []string {
	var warns []string
	if c.Bot.IdleTimeoutMinutes < c.Bot.ReapIntervalMinutes {
		warns = append(warns, fmt.Sprintf(
			"idle timeout (%dm) is shorter than the reap interval (%dm): overlapping sweeps may observe the same record",
			c.Bot.IdleTimeoutMinutes, c.Bot.ReapIntervalMinutes))
	}
	if c.API.Key == "" {
		warns = append(warns, "api key is empty: the admin API is unauthenticated")
	}
	return warns
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getenvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func parseInt64List(s string) ([]int64, error) {
	parts := strings.Split(s, ",")
	result := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid integer %q", p)
		}
		result = append(result, n)
	}
	return result, nil
}
