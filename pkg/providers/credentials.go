package providers

import (
	"fmt"
	"os"
	"strings"

	"github.com/sushiaki/sorabot/pkg/config"
)

const (
	authModeAPIKey     = "api_key"
	authModeAPIKeyFile = "api_key_file"
	authModeEnv        = "env"
)

// credential is the one place a backend's API key comes from.
type credential struct {
	mode  string
	field string // config path or variable name, for messages
	value string // the key, or a file path in api_key_file mode
}

// resolveCredential picks exactly one of api_key and api_key_file. The
// vendor variable (GEMINI_API_KEY etc.) is consulted only when neither is
// set.
func resolveCredential(name string, f Factory, settings config.ProviderConfig) (credential, error) {
	var found []credential
	if key := strings.TrimSpace(settings.APIKey); key != "" {
		found = append(found, credential{mode: authModeAPIKey, field: "providers." + name + ".api_key", value: key})
	}
	if file := strings.TrimSpace(settings.APIKeyFile); file != "" {
		found = append(found, credential{mode: authModeAPIKeyFile, field: "providers." + name + ".api_key_file", value: file})
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 2:
		return credential{}, fmt.Errorf("multiple %s credential sources configured (%s, %s); set exactly one", f.Label, found[0].field, found[1].field)
	}
	if f.EnvKey != "" {
		if key := strings.TrimSpace(os.Getenv(f.EnvKey)); key != "" {
			return credential{mode: authModeEnv, field: f.EnvKey, value: key}, nil
		}
	}
	return credential{}, fmt.Errorf("%s API key is required (set providers.%s.api_key, providers.%s.api_key_file or %s)", f.Label, name, name, f.EnvKey)
}

// check verifies a key file is reachable without reading it.
func (c credential) check(label string) error {
	if c.mode != authModeAPIKeyFile {
		return nil
	}
	path := config.ExpandHome(c.value)
	if _, err := os.Stat(path); err != nil {
		return fmt.Errorf("%s API key file not accessible at %s: %w", label, path, err)
	}
	return nil
}

// key returns the key material. Copy-pasted template values such as
// "<GEMINI_API_KEY>" or "${OPENROUTER_API_KEY}" are rejected.
func (c credential) key() (string, error) {
	key := c.value
	if c.mode == authModeAPIKeyFile {
		path := config.ExpandHome(c.value)
		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("read api key file %s: %w", path, err)
		}
		key = strings.TrimSpace(string(data))
		if key == "" {
			return "", fmt.Errorf("api key file %s is empty", path)
		}
	}
	if isPlaceholderKey(key) {
		return "", fmt.Errorf("api key from %s looks like a placeholder (%s)", c.field, key)
	}
	return key, nil
}

func isPlaceholderKey(key string) bool {
	return (strings.HasPrefix(key, "<") && strings.HasSuffix(key, ">")) ||
		(strings.HasPrefix(key, "${") && strings.HasSuffix(key, "}"))
}
