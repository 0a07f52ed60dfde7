package provider

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/codefionn/flagrunner/internal/config"
	"github.com/codefionn/flagrunner/internal/consts"
	"github.com/codefionn/flagrunner/internal/llm"
)

// ErrMissingAPIKey reports that neither config nor environment supplied a key.
type ErrMissingAPIKey struct {
	Provider string
	EnvVars  []string
}

func (e *ErrMissingAPIKey) Error() string {
	return fmt.Sprintf("no API key for provider %q: set %s or model.api_key", e.Provider, strings.Join(e.EnvVars, " or "))
}

// NewClient builds the configured model client wrapped with timeout and retry handling.
func NewClient(ctx context.Context, cfg config.ModelConfig) (llm.Client, error) {
	name := canonicalProviderName(cfg.Provider)
	key := resolveAPIKey(name, cfg.APIKey)
	if key == "" {
		return nil, &ErrMissingAPIKey{Provider: name, EnvVars: EnvVarHints(name)}
	}

	var (
		base llm.Client
		err  error
	)
	switch name {
	case "anthropic":
		base, err = llm.NewAnthropicClient(key, cfg.Model)
	case "openai":
		base, err = llm.NewOpenAIClient(key, cfg.Model, cfg.BaseURL)
	case "deepseek":
		base, err = llm.NewDeepSeekClient(key, cfg.Model, cfg.BaseURL)
	case "google":
		base, err = llm.NewGoogleClient(ctx, key, cfg.Model)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", cfg.Provider)
	}
	if err != nil {
		return nil, err
	}

	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = consts.Timeout2Minutes
	}
	return llm.NewRetryClient(base, timeout, cfg.MaxRetries), nil
}
