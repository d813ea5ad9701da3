package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
)

// FlexibleStringSlice is a []string that also accepts JSON numbers,
// so allow_from can contain both "123" and 123.
type FlexibleStringSlice []string

func (f *FlexibleStringSlice) UnmarshalJSON(data []byte) error {
	var ss []string
	if err := json.Unmarshal(data, &ss); err == nil {
		*f = ss
		return nil
	}

	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	result := make([]string, 0, len(raw))
	for _, v := range raw {
		switch val := v.(type) {
		case string:
			result = append(result, val)
		case float64:
			result = append(result, fmt.Sprintf("%.0f", val))
		default:
			result = append(result, fmt.Sprintf("%v", val))
		}
	}
	*f = result
	return nil
}

type Config struct {
	Workspace string          `json:"workspace" env:"SORABOT_WORKSPACE"`
	Bot       BotConfig       `json:"bot"`
	Providers ProvidersConfig `json:"providers"`
	Channels  ChannelsConfig  `json:"channels"`
	Gateway   GatewayConfig   `json:"gateway"`
	Cron      CronConfig      `json:"cron"`
	Logging   LoggingConfig   `json:"logging"`
	mu        sync.RWMutex
}

// BotConfig holds the business-facing behavior of the attendant.
type BotConfig struct {
	BusinessName         string `json:"business_name" env:"SORABOT_BOT_BUSINESS_NAME"`
	SiteURL              string `json:"site_url" env:"SORABOT_BOT_SITE_URL"`
	AutoReply            bool   `json:"auto_reply" env:"SORABOT_BOT_AUTO_REPLY"`
	HumanTakeoverMinutes int    `json:"human_takeover_minutes" env:"SORABOT_BOT_HUMAN_TAKEOVER_MINUTES"`
	DedupCapacity        int    `json:"dedup_capacity" env:"SORABOT_BOT_DEDUP_CAPACITY"`
}

type ProvidersConfig struct {
	Provider              string         `json:"provider" env:"SORABOT_PROVIDERS_PROVIDER"`
	Model                 string         `json:"model" env:"SORABOT_PROVIDERS_MODEL"`
	MaxTokens             int            `json:"max_tokens" env:"SORABOT_PROVIDERS_MAX_TOKENS"`
	Temperature           float64        `json:"temperature" env:"SORABOT_PROVIDERS_TEMPERATURE"`
	RequestTimeoutSeconds int            `json:"request_timeout_seconds" env:"SORABOT_PROVIDERS_REQUEST_TIMEOUT_SECONDS"`
	HistoryTurns          int            `json:"history_turns" env:"SORABOT_PROVIDERS_HISTORY_TURNS"`
	Gemini                ProviderConfig `json:"gemini" envPrefix:"SORABOT_PROVIDERS_GEMINI_"`
	OpenAI                ProviderConfig `json:"openai" envPrefix:"SORABOT_PROVIDERS_OPENAI_"`
	OpenRouter            ProviderConfig `json:"openrouter" envPrefix:"SORABOT_PROVIDERS_OPENROUTER_"`
}

type ProviderConfig struct {
	APIKey     string `json:"api_key" env:"API_KEY"`
	APIKeyFile string `json:"api_key_file,omitempty" env:"API_KEY_FILE"`
	APIBase    string `json:"api_base,omitempty" env:"API_BASE"`
	Proxy      string `json:"proxy,omitempty" env:"PROXY"`
}

type ChannelsConfig struct {
	Transport string         `json:"transport" env:"SORABOT_CHANNELS_TRANSPORT"`
	WhatsApp  WhatsAppConfig `json:"whatsapp"`
	Discord   DiscordConfig  `json:"discord"`
}

type WhatsAppConfig struct {
	StorePath   string `json:"store_path" env:"SORABOT_CHANNELS_WHATSAPP_STORE_PATH"`
	DeviceName  string `json:"device_name" env:"SORABOT_CHANNELS_WHATSAPP_DEVICE_NAME"`
	LogLevel    string `json:"log_level" env:"SORABOT_CHANNELS_WHATSAPP_LOG_LEVEL"`
	SendTimeout int    `json:"send_timeout_seconds" env:"SORABOT_CHANNELS_WHATSAPP_SEND_TIMEOUT_SECONDS"`
}

type DiscordConfig struct {
	Token     string              `json:"token" env:"SORABOT_CHANNELS_DISCORD_TOKEN"`
	AllowFrom FlexibleStringSlice `json:"allow_from" env:"SORABOT_CHANNELS_DISCORD_ALLOW_FROM"`
}

type GatewayConfig struct {
	Host string `json:"host" env:"SORABOT_GATEWAY_HOST"`
	Port int    `json:"port" env:"SORABOT_GATEWAY_PORT"`
}

type CronConfig struct {
	HandoffSweep string `json:"handoff_sweep" env:"SORABOT_CRON_HANDOFF_SWEEP"`
	StatusLog    string `json:"status_log" env:"SORABOT_CRON_STATUS_LOG"`
}

type LoggingConfig struct {
	Level  string `json:"level" env:"SORABOT_LOGGING_LEVEL"`
	Format string `json:"format" env:"SORABOT_LOGGING_FORMAT"`
}

const (
	TransportWhatsApp = "whatsapp"
	TransportDiscord  = "discord"
)

func DefaultConfig() *Config {
	return &Config{
		Workspace: "~/.sorabot/workspace",
		Bot: BotConfig{
			BusinessName:         "Sushi Aki",
			SiteURL:              "https://sushiakicb.shop",
			AutoReply:            true,
			HumanTakeoverMinutes: 60,
			DedupCapacity:        1000,
		},
		Providers: ProvidersConfig{
			Provider:              "gemini",
			Model:                 "",
			MaxTokens:             300,
			Temperature:           0.7,
			RequestTimeoutSeconds: 30,
			HistoryTurns:          10,
		},
		Channels: ChannelsConfig{
			Transport: TransportWhatsApp,
			WhatsApp: WhatsAppConfig{
				StorePath:   "",
				DeviceName:  "Sushi Aki Bot",
				LogLevel:    "WARN",
				SendTimeout: 10,
			},
			Discord: DiscordConfig{
				Token:     "",
				AllowFrom: FlexibleStringSlice{},
			},
		},
		Gateway: GatewayConfig{
			Host: "0.0.0.0",
			Port: 3000,
		},
		Cron: CronConfig{
			HandoffSweep: "* * * * *",
			StatusLog:    "*/30 * * * *",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadConfig reads path (missing file means defaults) and then applies
// SORABOT_* environment overrides.
func LoadConfig(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, err
	}
	if err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("apply environment: %w", err)
	}

	return cfg, nil
}

func SaveConfig(path string, cfg *Config) error {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return err
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	return os.WriteFile(path, data, 0600)
}

func (c *Config) WorkspacePath() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ExpandHome(c.Workspace)
}

// WhatsAppStorePath is the SQLite file holding the paired device credentials.
func (c *Config) WhatsAppStorePath() string {
	c.mu.RLock()
	p := strings.TrimSpace(c.Channels.WhatsApp.StorePath)
	c.mu.RUnlock()
	if p != "" {
		return ExpandHome(p)
	}
	return filepath.Join(c.WorkspacePath(), "auth", "whatsapp.db")
}

func (c *Config) HandoffWindow() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Bot.HumanTakeoverMinutes <= 0 {
		return 60 * time.Minute
	}
	return time.Duration(c.Bot.HumanTakeoverMinutes) * time.Minute
}

func (c *Config) RequestTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Providers.RequestTimeoutSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Providers.RequestTimeoutSeconds) * time.Second
}

func (c *Config) SendTimeout() time.Duration {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.Channels.WhatsApp.SendTimeout <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.Channels.WhatsApp.SendTimeout) * time.Second
}

func (c *Config) GatewayAddr() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return fmt.Sprintf("%s:%d", c.Gateway.Host, c.Gateway.Port)
}

func (c *Config) TransportName() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	t := strings.ToLower(strings.TrimSpace(c.Channels.Transport))
	if t == "" {
		return TransportWhatsApp
	}
	return t
}

func ExpandHome(path string) string {
	if path == "" {
		return path
	}
	if path[0] == '~' {
		home, _ := os.UserHomeDir()
		if len(path) > 1 && path[1] == '/' {
			return home + path[1:]
		}
		return home
	}
	return path
}
