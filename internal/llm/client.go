package llm

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
)

// Message roles
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrEmptyResponse is returned when a provider answers without any candidates.
var ErrEmptyResponse = errors.New("model returned an empty response")

// Message represents a chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ToolDefinition advertises a tool through the provider's native tool-calling API.
type ToolDefinition struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Parameters  map[string]interface{} `json:"parameters"`
}

// ToolCall is a structured tool invocation returned by the model.
type ToolCall struct {
	ID        string `json:"id,omitempty"`
	Name      string `json:"name"`
	Arguments string `json:"arguments"` // raw JSON object
}

// Input extracts the "input" argument, falling back to the raw argument text.
func (c ToolCall) Input() string {
	args := strings.TrimSpace(c.Arguments)
	if args == "" {
		return ""
	}
	var payload map[string]interface{}
	if err := json.Unmarshal([]byte(args), &payload); err != nil {
		return args
	}
	if v, ok := payload["input"]; ok {
		if s, ok := v.(string); ok {
			return s
		}
		if data, err := json.Marshal(v); err == nil {
			return string(data)
		}
	}
	return args
}

// Usage carries provider-reported token counts, zero when unknown.
type Usage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// CompletionRequest represents a completion request
type CompletionRequest struct {
	Messages     []*Message       `json:"messages"`
	Tools        []ToolDefinition `json:"tools,omitempty"`
	Temperature  float64          `json:"temperature"`
	MaxTokens    int              `json:"max_tokens,omitempty"`
	SystemPrompt string           `json:"system_prompt,omitempty"`
}

// CompletionResponse represents a completion response
type CompletionResponse struct {
	Content    string     `json:"content"`
	ToolCalls  []ToolCall `json:"tool_calls,omitempty"`
	StopReason string     `json:"stop_reason"`
	Usage      Usage      `json:"usage"`
}

// Client is the interface for LLM clients
type Client interface {
	CompleteWithRequest(ctx context.Context, req *CompletionRequest) (*CompletionResponse, error)
	// Complete is a simplified version for single prompt
	Complete(ctx context.Context, prompt string) (string, error)
	GetModelName() string
}

// completeOnce adapts a single prompt to CompleteWithRequest.
func completeOnce(ctx context.Context, c Client, prompt string, temperature float64) (string, error) {
	resp, err := c.CompleteWithRequest(ctx, &CompletionRequest{
		Messages:    []*Message{{Role: RoleUser, Content: prompt}},
		Temperature: temperature,
	})
	if err != nil {
		return "", err
	}
	return resp.Content, nil
}

func normalizeRole(role string) string {
	switch strings.ToLower(strings.TrimSpace(role)) {
	case RoleAssistant, "ai", "model":
		return RoleAssistant
	case RoleSystem:
		return RoleSystem
	default:
		return RoleUser
	}
}
