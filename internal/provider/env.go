package provider

import (
	"os"
	"strings"
)

// providerEnvVars maps canonical provider names to the environment variables
// that can supply their API keys, in lookup order.
var providerEnvVars = map[string][]string{
	"openai":    {"OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_API_KEY"},
	"google":    {"GEMINI_API_KEY", "GOOGLE_API_KEY", "GOOGLE_GENAI_API_KEY"},
	"deepseek":  {"DEEPSEEK_API_KEY"},
}

// canonicalProviderName normalizes provider aliases.
func canonicalProviderName(name string) string {
	switch n := strings.ToLower(strings.TrimSpace(name)); n {
	case "google", "googleai", "gemini":
		return "google"
	case "claude":
		return "anthropic"
	case "gpt", "chatgpt":
		return "openai"
	default:
		return n
	}
}

// resolveAPIKey prefers an explicit key and otherwise consults the known
// environment variables. An empty result means no key is available.
func resolveAPIKey(providerName, explicit string) string {
	if explicit = strings.TrimSpace(explicit); explicit != "" {
		return explicit
	}

	for _, envVar := range providerEnvVars[canonicalProviderName(providerName)] {
		if value := strings.TrimSpace(os.Getenv(envVar)); value != "" {
			return value
		}
	}
	return ""
}

// ResolveAPIKey returns the environment-supplied key for a provider.
func ResolveAPIKey(providerName string) string {
	return resolveAPIKey(providerName, "")
}

// EnvVarHints returns a copy of the environment variables consulted for a provider.
func EnvVarHints(providerName string) []string {
	hints := providerEnvVars[canonicalProviderName(providerName)]
	out := make([]string, len(hints))
	copy(out, hints)
	return out
}
