package tools

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/codefionn/flagrunner/internal/flag"
)

// FlagValidatorTool lets the model ask which flag candidates a text contains.
type FlagValidatorTool struct{}

// NewFlagValidatorTool creates the validator tool.
func NewFlagValidatorTool() *FlagValidatorTool { return &FlagValidatorTool{} }

func (t *FlagValidatorTool) Name() string { return ToolNameFlagValidator }

func (t *FlagValidatorTool) Description() string {
	return "Validate and extract candidate flags from conversation history and recent outputs."
}

func (t *FlagValidatorTool) InputDescription() string {
	return `{"action":"extract","text":"text to scan"}`
}

type flagValidatorInput struct {
	Action string `json:"action"`
	Text   string `json:"text"`
}

// Invoke runs the requested action. Only "extract" is supported.
func (t *FlagValidatorTool) Invoke(_ context.Context, input string) Result {
	payload := flagValidatorInput{Action: "extract"}
	if strings.TrimSpace(input) != "" {
		if err := json.Unmarshal([]byte(input), &payload); err != nil {
			return Fail("Invalid JSON: %v", err)
		}
	}

	action := strings.ToLower(payload.Action)
	if action == "" {
		action = "extract"
	}
	if action != "extract" {
		return Fail("Unknown action: %s", action)
	}
	if payload.Text == "" {
		return Fail("Missing 'text' parameter")
	}

	candidates := flag.Find(payload.Text)
	if len(candidates) == 0 {
		return OK("No flag candidates found")
	}
	data, err := json.MarshalIndent(map[string][]string{"candidates": candidates}, "", "  ")
	if err != nil {
		return Fail("Flag detection failed: %v", err)
	}
	return OK(string(data))
}
