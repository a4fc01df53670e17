package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/caarlos0/env/v11"
)

const envConfigPath = "TGFLOW_CONFIG"

const (
	ModePolling = "polling"
	ModeWebhook = "webhook"
)

// Config is the root runtime configuration loaded from config.json.
type Config struct {
	Bot       BotConfig       `json:"bot"`
	Transport TransportConfig `json:"transport"`
	Gateway   GatewayConfig   `json:"gateway"`
	Logging   LoggingConfig   `json:"logging,omitempty"`
}

// LoggingConfig controls structured log output format and verbosity.
type LoggingConfig struct {
	Format    string `json:"format,omitempty" env:"TGFLOW_LOG_FORMAT"`
	Level     string `json:"level,omitempty" env:"TGFLOW_LOG_LEVEL"`
	AddSource bool   `json:"add_source,omitempty" env:"TGFLOW_LOG_ADD_SOURCE"`
}

// BotConfig configures the Bot API client.
type BotConfig struct {
	Token                 string `json:"token" env:"TGFLOW_BOT_TOKEN"`
	APIBaseURL            string `json:"api_base_url" env:"TGFLOW_API_BASE_URL"`
	RequestTimeoutSeconds int    `json:"request_timeout_seconds" env:"TGFLOW_REQUEST_TIMEOUT_SECONDS"`
	WebhookReply          *bool  `json:"webhook_reply,omitempty" env:"TGFLOW_WEBHOOK_REPLY"`
	// AllowFrom limits the bot to these sender ids; empty allows everyone.
	AllowFrom []string `json:"allow_from,omitempty" env:"TGFLOW_ALLOW_FROM"`
}

// TransportConfig selects how updates are received.
type TransportConfig struct {
	Mode    string        `json:"mode" env:"TGFLOW_TRANSPORT_MODE"`
	Polling PollingConfig `json:"polling"`
	Webhook WebhookConfig `json:"webhook"`
}

// PollingConfig tunes the getUpdates long-poll loop.
type PollingConfig struct {
	TimeoutSeconds      int      `json:"timeout_seconds" env:"TGFLOW_POLLING_TIMEOUT"`
	Limit               int      `json:"limit" env:"TGFLOW_POLLING_LIMIT"`
	AllowedUpdates      []string `json:"allowed_updates" env:"TGFLOW_ALLOWED_UPDATES"`
	FetchBackoffSeconds int      `json:"fetch_backoff_seconds" env:"TGFLOW_POLLING_FETCH_BACKOFF"`
}

// WebhookConfig configures the webhook listener and its registration.
type WebhookConfig struct {
	Host               string   `json:"host" env:"TGFLOW_WEBHOOK_HOST"`
	Port               int      `json:"port" env:"TGFLOW_WEBHOOK_PORT"`
	Path               string   `json:"path" env:"TGFLOW_WEBHOOK_PATH"`
	PublicURL          string   `json:"public_url" env:"TGFLOW_WEBHOOK_PUBLIC_URL"`
	SecretToken        string   `json:"secret_token" env:"TGFLOW_WEBHOOK_SECRET_TOKEN"`
	AllowedUpdates     []string `json:"allowed_updates" env:"TGFLOW_ALLOWED_UPDATES"`
	DropPendingUpdates bool     `json:"drop_pending_updates" env:"TGFLOW_DROP_PENDING_UPDATES"`
}

// GatewayConfig configures the status server bind settings.
type GatewayConfig struct {
	Host string `json:"host" env:"TGFLOW_GATEWAY_HOST"`
	Port int    `json:"port" env:"TGFLOW_GATEWAY_PORT"`
}

// WebhookReplyEnabled reports whether handlers may answer through the webhook
// response. Defaults to true.
func (c BotConfig) WebhookReplyEnabled() bool {
	return c.WebhookReply == nil || *c.WebhookReply
}

// LoadConfig resolves config.json, unmarshals it, and applies environment overrides.
func LoadConfig() (*Config, error) {
	configPath, err := findConfigPath()
	if err != nil {
		return nil, err
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal(content, &cfg); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("apply env overrides: %w", err)
	}

	cfg.applyDefaults()
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	c.Bot.Token = strings.TrimSpace(c.Bot.Token)
	c.Transport.Mode = strings.ToLower(strings.TrimSpace(c.Transport.Mode))
	if c.Transport.Mode == "" {
		c.Transport.Mode = ModePolling
	}
	if c.Transport.Webhook.Path != "" && !strings.HasPrefix(c.Transport.Webhook.Path, "/") {
		c.Transport.Webhook.Path = "/" + c.Transport.Webhook.Path
	}
}

// Validate checks the settings required to start a transport.
func (c *Config) Validate() error {
	var errs []error
	if c.Bot.Token == "" {
		errs = append(errs, errors.New("bot.token is required (or TGFLOW_BOT_TOKEN)"))
	}

	switch c.Transport.Mode {
	case ModePolling:
		if c.Transport.Polling.Limit < 0 || c.Transport.Polling.Limit > 100 {
			errs = append(errs, fmt.Errorf("transport.polling.limit must be between 1 and 100 (0 uses the default), got %d", c.Transport.Polling.Limit))
		}
		if c.Transport.Polling.TimeoutSeconds < 0 {
			errs = append(errs, errors.New("transport.polling.timeout_seconds must not be negative"))
		}
	case ModeWebhook:
		if c.Transport.Webhook.Path == "" || c.Transport.Webhook.Path == "/" {
			errs = append(errs, errors.New("transport.webhook.path is required in webhook mode"))
		}
		if c.Transport.Webhook.Port < 0 || c.Transport.Webhook.Port > 65535 {
			errs = append(errs, fmt.Errorf("transport.webhook.port out of range: %d", c.Transport.Webhook.Port))
		}
	default:
		errs = append(errs, fmt.Errorf("transport.mode must be %q or %q, got %q", ModePolling, ModeWebhook, c.Transport.Mode))
	}

	return errors.Join(errs...)
}

// findConfigPath resolves the active config file location.
//
// Precedence is TGFLOW_CONFIG first, then cwd-local fallback paths.
func findConfigPath() (string, error) {
	if value := strings.TrimSpace(os.Getenv(envConfigPath)); value != "" {
		if info, err := os.Stat(value); err == nil && !info.IsDir() {
			return value, nil
		}
		return "", fmt.Errorf("%s does not point to a file: %s", envConfigPath, value)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("get current working directory: %w", err)
	}

	candidates := []string{
		filepath.Join(cwd, "config.json"),
		filepath.Join(cwd, "config", "config.json"),
	}

	for _, candidate := range candidates {
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
	}

	return "", fmt.Errorf("config.json not found (checked %s and %s)", candidates[0], candidates[1])
}
