package providers

import (
	"strings"

	"github.com/sushiaki/sorabot/pkg/config"
)

const (
	defaultOpenRouterAPIBase = "https://openrouter.ai/api/v1"
	defaultOpenRouterModel   = "deepseek/deepseek-chat:free"
)

func init() {
	RegisterFactory(ProviderOpenRouter, Factory{
		Label:    "OpenRouter",
		EnvKey:   "OPENROUTER_API_KEY",
		Settings: func(cfg *config.Config) config.ProviderConfig { return cfg.Providers.OpenRouter },
		Build:    newOpenRouterProvider,
	})
}

// OpenRouter attributes traffic by the HTTP-Referer and X-Title headers.
func newOpenRouterProvider(cfg *config.Config, settings config.ProviderConfig, key string) (Provider, error) {
	headers := map[string]string{
		"HTTP-Referer": strings.TrimSpace(cfg.Bot.SiteURL),
		"X-Title":      strings.TrimSpace(cfg.Bot.BusinessName),
	}
	return newChatCompletionsProvider(ProviderOpenRouter, cfg, settings, key, defaultOpenRouterAPIBase, defaultOpenRouterModel, headers)
}
