package providers

import "strings"

func augmentProviderError(providerName, message string) string {
	msg := strings.TrimSpace(message)
	if msg == "" {
		return msg
	}

	lower := strings.ToLower(msg)
	providerName = NormalizeProviderName(providerName)

	switch providerName {
	case ProviderOpenAI:
		if strings.Contains(lower, "incorrect api key provided") {
			return msg + " Hint: provider openai expects a Platform API key (sk-...)."
		}
	case ProviderOpenRouter:
		if strings.Contains(lower, "no endpoints found") {
			return msg + " Hint: the configured OpenRouter model is unavailable; free models (:free) rotate often."
		}
		if strings.Contains(lower, "rate limit") || strings.Contains(lower, "429") {
			return msg + " Hint: OpenRouter free models are rate limited per day; add credits or pick another model."
		}
	case ProviderGemini:
		if strings.Contains(lower, "api key not valid") || strings.Contains(lower, "api_key_invalid") {
			return msg + " Hint: create a Gemini API key at https://aistudio.google.com/apikey."
		}
		if strings.Contains(lower, "resource_exhausted") || strings.Contains(lower, "quota") {
			return msg + " Hint: Gemini quota exhausted for this key."
		}
	}

	return msg
}
