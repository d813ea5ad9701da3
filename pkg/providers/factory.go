package providers

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/sushiaki/sorabot/pkg/config"
)

const (
	ProviderGemini     = "gemini"
	ProviderOpenRouter = "openrouter"
	ProviderOpenAI     = "openai"
)

// Factory describes one selectable AI backend. Credential lookup and
// validation are shared, so a backend only says where its settings live
// and how to build a client once the API key is known.
type Factory struct {
	// Label names the backend in error messages.
	Label string
	// EnvKey is the vendor variable used when no key is configured.
	EnvKey string
	// Settings selects the backend's block under providers.
	Settings func(cfg *config.Config) config.ProviderConfig
	Build    func(cfg *config.Config, settings config.ProviderConfig, apiKey string) (Provider, error)
}

var (
	factoryMu sync.RWMutex
	factories = map[string]Factory{}
)

// RegisterFactory is called from the init of each backend file.
func RegisterFactory(name string, f Factory) {
	name = NormalizeProviderName(name)
	if f.Build == nil || f.Settings == nil {
		panic(fmt.Sprintf("providers: factory %q needs Build and Settings", name))
	}
	factoryMu.Lock()
	defer factoryMu.Unlock()
	factories[name] = f
}

func SupportedProviders() []string {
	factoryMu.RLock()
	defer factoryMu.RUnlock()
	names := make([]string, 0, len(factories))
	for name := range factories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func NormalizeProviderName(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return ProviderGemini
	}
	return name
}

func ActiveProviderName(cfg *config.Config) string {
	if cfg == nil {
		return ProviderGemini
	}
	return NormalizeProviderName(cfg.Providers.Provider)
}

// ValidateProviderConfig checks that the active backend exists and has
// exactly one readable credential source.
func ValidateProviderConfig(cfg *config.Config) error {
	f, name, err := lookupFactory(cfg)
	if err != nil {
		return err
	}
	cred, err := resolveCredential(name, f, f.Settings(cfg))
	if err != nil {
		return err
	}
	return cred.check(f.Label)
}

// ProviderCredentialStatus reports the active backend and, when a key is
// configured, where it comes from.
func ProviderCredentialStatus(cfg *config.Config) (provider string, configured bool, mode string, err error) {
	f, name, err := lookupFactory(cfg)
	if err != nil {
		return "", false, "", err
	}
	cred, err := resolveCredential(name, f, f.Settings(cfg))
	if err != nil {
		return name, false, "", nil
	}
	return name, true, cred.mode, nil
}

func CreateProvider(cfg *config.Config) (Provider, error) {
	f, name, err := lookupFactory(cfg)
	if err != nil {
		return nil, err
	}
	settings := f.Settings(cfg)
	cred, err := resolveCredential(name, f, settings)
	if err != nil {
		return nil, err
	}
	if err := cred.check(f.Label); err != nil {
		return nil, err
	}
	key, err := cred.key()
	if err != nil {
		return nil, fmt.Errorf("resolve %s api key: %w", name, err)
	}
	return f.Build(cfg, settings, key)
}

// generationConfig derives request settings, falling back to defaultModel
// when no model is configured.
func generationConfig(cfg *config.Config, defaultModel string) GenerationConfig {
	model := strings.TrimSpace(cfg.Providers.Model)
	if model == "" {
		model = defaultModel
	}
	maxTokens := cfg.Providers.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 300
	}
	return GenerationConfig{
		Model:        model,
		MaxTokens:    maxTokens,
		Temperature:  cfg.Providers.Temperature,
		HistoryTurns: cfg.Providers.HistoryTurns,
		Timeout:      cfg.RequestTimeout(),
	}
}

func lookupFactory(cfg *config.Config) (Factory, string, error) {
	if cfg == nil {
		return Factory{}, "", fmt.Errorf("config is required")
	}
	name := ActiveProviderName(cfg)
	factoryMu.RLock()
	f, ok := factories[name]
	factoryMu.RUnlock()
	if !ok {
		return Factory{}, name, fmt.Errorf("unsupported provider %q: supported providers are %s", name, strings.Join(SupportedProviders(), ", "))
	}
	return f, name, nil
}
