// Package tools holds the tool registry, the round dispatcher and the
// built-in tools the solving agent can call.
package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/codefionn/flagrunner/internal/llm"
)

// ErrToolNotFound is returned by Registry.Lookup for unknown names.
var ErrToolNotFound = errors.New("tool not found")

// Result is what a tool hands back to the dispatcher.
type Result struct {
	Success bool   `json:"success"`
	Output  string `json:"output"`
	Error   string `json:"error,omitempty"`
}

// OK builds a successful result.
func OK(output string) Result {
	return Result{Success: true, Output: output}
}

// Fail builds a failed result.
func Fail(format string, args ...interface{}) Result {
	return Result{Error: fmt.Sprintf(format, args...)}
}

// Observation renders the result the way it is shown to the model.
func (r Result) Observation() string {
	if r.Success {
		return strings.TrimSpace(r.Output)
	}
	return observationErrorPrefix + r.Error
}

// Encode serializes the result as the JSON envelope tools exchange.
func (r Result) Encode() string {
	data, err := json.Marshal(r)
	if err != nil {
		return fmt.Sprintf(`{"success":false,"output":"","error":%q}`, err.Error())
	}
	return string(data)
}

// Handler is a named capability invoked with a single string payload.
type Handler interface {
	Name() string
	Description() string
	Invoke(ctx context.Context, input string) Result
}

// InputDescriber lets a handler describe its input payload for native tool
// calling. Handlers without it get a generic description.
type InputDescriber interface {
	InputDescription() string
}

// Registry is the static name -> handler map built at startup.
type Registry struct {
	handlers map[string]Handler
}

// NewRegistry creates a registry with the given handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[string]Handler, len(handlers))}
	for _, h := range handlers {
		r.Register(h)
	}
	return r
}

// Register adds a handler, replacing any handler with the same name.
func (r *Registry) Register(h Handler) {
	if h == nil {
		return
	}
	r.handlers[h.Name()] = h
}

// Get retrieves a handler by name.
func (r *Registry) Get(name string) (Handler, bool) {
	h, ok := r.handlers[name]
	return h, ok
}

// Lookup is Get with an error suitable for wrapping.
func (r *Registry) Lookup(name string) (Handler, error) {
	if h, ok := r.handlers[name]; ok {
		return h, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
}

// Names returns the registered tool names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.handlers) }

// Specs converts the registry to native tool definitions, sorted by name.
// Every tool takes a single string parameter named "input".
func (r *Registry) Specs() []llm.ToolDefinition {
	names := r.Names()
	specs := make([]llm.ToolDefinition, 0, len(names))
	for _, name := range names {
		h := r.handlers[name]
		inputDesc := "Tool input payload"
		if d, ok := h.(InputDescriber); ok {
			inputDesc = d.InputDescription()
		}
		specs = append(specs, llm.ToolDefinition{
			Name:        name,
			Description: h.Description(),
			Parameters: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"input": map[string]interface{}{
						"type":        "string",
						"description": inputDesc,
					},
				},
				"required": []string{"input"},
			},
		})
	}
	return specs
}

// Describe lists the tools as "- name: description" lines for prompts.
func (r *Registry) Describe() string {
	var b strings.Builder
	for i, name := range r.Names() {
		if i > 0 {
			b.WriteByte('\n')
		}
		fmt.Fprintf(&b, "- %s: %s", name, r.handlers[name].Description())
	}
	return b.String()
}
