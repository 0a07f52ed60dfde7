package provider

import (
	"context"
	"errors"
	"testing"

	"github.com/codefionn/flagrunner/internal/config"
)

func TestResolveAPIKeyPrefersExplicit(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "env-key")
	if got := resolveAPIKey("deepseek", " explicit-key "); got != "explicit-key" {
		t.Fatalf("expected explicit key, got %q", got)
	}
}

func TestResolveAPIKeyFallsBackToEnv(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "env-key")
	if got := resolveAPIKey("claude", ""); got != "env-key" {
		t.Fatalf("expected alias claude to resolve env key, got %q", got)
	}

	t.Setenv("GEMINI_API_KEY", "")
	t.Setenv("GOOGLE_API_KEY", "google-key")
	if got := ResolveAPIKey("gemini"); got != "google-key" {
		t.Fatalf("expected second google env var to be consulted, got %q", got)
	}
}

func TestEnvVarHintsCopiesSlice(t *testing.T) {
	hints := EnvVarHints("openai")
	if len(hints) == 0 {
		t.Fatalf("expected hints for openai")
	}
	hints[0] = "mutated"

	if again := EnvVarHints("openai"); again[0] == "mutated" {
		t.Fatalf("expected copy of hints, but slice was modified in place")
	}
}

func TestNewClientMissingKey(t *testing.T) {
	t.Setenv("DEEPSEEK_API_KEY", "")
	_, err := NewClient(context.Background(), config.ModelConfig{Provider: "deepseek"})

	var missing *ErrMissingAPIKey
	if !errors.As(err, &missing) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	if missing.Provider != "deepseek" || len(missing.EnvVars) != 1 {
		t.Fatalf("unexpected error contents: %+v", missing)
	}
}

func TestNewClientProviders(t *testing.T) {
	tests := []struct {
		provider string
		model    string
		wantErr  bool
	}{
		{"deepseek", "deepseek-chat", false},
		{"openai", "gpt-4o-mini", false},
		{"anthropic", "claude-sonnet-4-5", false},
		{"mystery", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.provider, func(t *testing.T) {
			client, err := NewClient(context.Background(), config.ModelConfig{
				Provider:   tt.provider,
				Model:      tt.model,
				APIKey:     "test-key",
				MaxRetries: 1,
			})
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error for %s", tt.provider)
				}
				return
			}
			if err != nil {
				t.Fatalf("NewClient: %v", err)
			}
			if client.GetModelName() != tt.model {
				t.Fatalf("model = %q, want %q", client.GetModelName(), tt.model)
			}
		})
	}
}
