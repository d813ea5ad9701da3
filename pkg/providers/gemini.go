package providers

import (
	"context"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/sushiaki/sorabot/pkg/config"
)

const defaultGeminiModel = "gemini-2.0-flash"

func init() {
	RegisterFactory(ProviderGemini, Factory{
		Label:    "Gemini",
		EnvKey:   "GEMINI_API_KEY",
		Settings: func(cfg *config.Config) config.ProviderConfig { return cfg.Providers.Gemini },
		Build:    newGeminiProvider,
	})
}

// geminiProvider hands out server-side chat handles. Each handle keeps its
// own history, so the history passed to Send is not re-sent.
type geminiProvider struct {
	client *genai.Client
	gen    GenerationConfig
}

func newGeminiProvider(cfg *config.Config, settings config.ProviderConfig, key string) (Provider, error) {
	gen := generationConfig(cfg, defaultGeminiModel)
	httpClient, err := newHTTPClient(settings.Proxy, gen.Timeout)
	if err != nil {
		return nil, err
	}
	clientCfg := &genai.ClientConfig{
		APIKey:     key,
		Backend:    genai.BackendGeminiAPI,
		HTTPClient: httpClient,
	}
	if base := strings.TrimSpace(settings.APIBase); base != "" {
		clientCfg.HTTPOptions = genai.HTTPOptions{BaseURL: base}
	}

	client, err := genai.NewClient(context.Background(), clientCfg)
	if err != nil {
		return nil, fmt.Errorf("create gemini client: %w", err)
	}
	return &geminiProvider{client: client, gen: gen}, nil
}

func (p *geminiProvider) Name() string  { return ProviderGemini }
func (p *geminiProvider) Model() string { return p.gen.Model }

func (p *geminiProvider) NewConversation(ctx context.Context, systemPrompt string) (Conversation, error) {
	genCfg := &genai.GenerateContentConfig{
		Temperature:     genai.Ptr(float32(p.gen.Temperature)),
		MaxOutputTokens: int32(p.gen.MaxTokens),
	}
	if s := strings.TrimSpace(systemPrompt); s != "" {
		genCfg.SystemInstruction = genai.NewContentFromText(s, genai.RoleUser)
	}
	chat, err := p.client.Chats.Create(ctx, p.gen.Model, genCfg, nil)
	if err != nil {
		return nil, fmt.Errorf("create gemini chat: %w", err)
	}
	return &geminiConversation{chat: chat}, nil
}

type geminiConversation struct {
	chat *genai.Chat
}

func (c *geminiConversation) Send(ctx context.Context, _ []Message, text string) (string, error) {
	resp, err := c.chat.SendMessage(ctx, genai.Part{Text: text})
	if err != nil {
		return "", fmt.Errorf("gemini send: %s", augmentProviderError(ProviderGemini, err.Error()))
	}
	out := strings.TrimSpace(resp.Text())
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}
