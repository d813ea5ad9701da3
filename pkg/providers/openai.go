package providers

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	openaigo "github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"

	"github.com/sushiaki/sorabot/pkg/config"
)

const (
	defaultOpenAIAPIBase = "https://api.openai.com/v1"
	defaultOpenAIModel   = "gpt-4o-mini"
)

func init() {
	RegisterFactory(ProviderOpenAI, Factory{
		Label:    "OpenAI",
		EnvKey:   "OPENAI_API_KEY",
		Settings: func(cfg *config.Config) config.ProviderConfig { return cfg.Providers.OpenAI },
		Build: func(cfg *config.Config, settings config.ProviderConfig, key string) (Provider, error) {
			return newChatCompletionsProvider(ProviderOpenAI, cfg, settings, key, defaultOpenAIAPIBase, defaultOpenAIModel, nil)
		},
	})
}

// chatCompletionsProvider talks to any OpenAI-compatible endpoint. It keeps
// no per-chat state; every Send rebuilds the request from history.
type chatCompletionsProvider struct {
	name   string
	client openaigo.Client
	gen    GenerationConfig
}

func newChatCompletionsProvider(name string, cfg *config.Config, settings config.ProviderConfig, key, defaultBase, defaultModel string, headers map[string]string) (*chatCompletionsProvider, error) {
	apiBase := strings.TrimRight(strings.TrimSpace(settings.APIBase), "/")
	if apiBase == "" {
		apiBase = defaultBase
	}
	gen := generationConfig(cfg, defaultModel)

	httpClient, err := newHTTPClient(settings.Proxy, gen.Timeout)
	if err != nil {
		return nil, err
	}

	opts := []option.RequestOption{
		option.WithBaseURL(apiBase),
		option.WithAPIKey(key),
		option.WithHTTPClient(httpClient),
		// Model failures are answered with the fallback text, never retried.
		option.WithMaxRetries(0),
		option.WithRequestTimeout(gen.Timeout),
	}
	for k, v := range headers {
		if strings.TrimSpace(v) != "" {
			opts = append(opts, option.WithHeader(k, v))
		}
	}

	return &chatCompletionsProvider{
		name:   name,
		client: openaigo.NewClient(opts...),
		gen:    gen,
	}, nil
}

func (p *chatCompletionsProvider) Name() string  { return p.name }
func (p *chatCompletionsProvider) Model() string { return p.gen.Model }

func (p *chatCompletionsProvider) NewConversation(_ context.Context, systemPrompt string) (Conversation, error) {
	return &chatCompletionsConversation{provider: p, system: strings.TrimSpace(systemPrompt)}, nil
}

type chatCompletionsConversation struct {
	provider *chatCompletionsProvider
	system   string
}

func (c *chatCompletionsConversation) Send(ctx context.Context, history []Message, text string) (string, error) {
	p := c.provider
	params := openaigo.ChatCompletionNewParams{
		Model:       openaigo.ChatModel(p.gen.Model),
		Messages:    buildChatMessages(c.system, lastTurns(history, p.gen.HistoryTurns), text),
		MaxTokens:   openaigo.Int(int64(p.gen.MaxTokens)),
		Temperature: openaigo.Float(p.gen.Temperature),
	}

	resp, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", fmt.Errorf("%s chat completion: %s", p.name, augmentProviderError(p.name, err.Error()))
	}
	if resp == nil || len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}

func buildChatMessages(system string, history []Message, text string) []openaigo.ChatCompletionMessageParamUnion {
	out := make([]openaigo.ChatCompletionMessageParamUnion, 0, len(history)+2)
	if system != "" {
		out = append(out, openaigo.SystemMessage(system))
	}
	for _, m := range history {
		content := strings.TrimSpace(m.Content)
		if content == "" {
			continue
		}
		if m.Role == RoleAssistant {
			out = append(out, openaigo.AssistantMessage(content))
		} else {
			out = append(out, openaigo.UserMessage(content))
		}
	}
	out = append(out, openaigo.UserMessage(text))
	return out
}

func newHTTPClient(proxy string, timeout time.Duration) (*http.Client, error) {
	client := &http.Client{Timeout: timeout}
	proxy = strings.TrimSpace(proxy)
	if proxy == "" {
		return client, nil
	}
	parsed, err := url.Parse(proxy)
	if err != nil {
		return nil, fmt.Errorf("parse proxy url %q: %w", proxy, err)
	}
	client.Transport = &http.Transport{Proxy: http.ProxyURL(parsed)}
	return client, nil
}
