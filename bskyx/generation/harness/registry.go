package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	ports "github.com/ZanzyTHEbar/bsky-explainer/bskyx/generation/harness/ports"
)

// ErrDuplicateTool is returned when two tools share a name.
var ErrDuplicateTool = errors.New("duplicate tool name")

// Legacy input keys, used when a tool does not declare its own.
const (
	InputKeyQuery    = "query"
	InputKeyURL      = "url"
	InputKeyImageURL = "image_url"
)

// Registry is the fixed set of tools available to an agent.
// It is never mutated after construction and is safe to share between runs.
type Registry struct {
	tools  []ports.Tool
	byName map[string]ports.Tool
}

// NewRegistry indexes tools by lower-cased name, preserving registration order.
func NewRegistry(tools ...ports.Tool) (*Registry, error) {
	r := &Registry{
		tools:  make([]ports.Tool, 0, len(tools)),
		byName: make(map[string]ports.Tool, len(tools)),
	}
	for _, tool := range tools {
		name := strings.ToLower(strings.TrimSpace(tool.Name()))
		if name == "" {
			return nil, errors.New("tool name cannot be empty")
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTool, name)
		}
		r.byName[name] = tool
		r.tools = append(r.tools, tool)
	}
	return r, nil
}

// Lookup finds a tool by case-insensitive name.
func (r *Registry) Lookup(name string) (ports.Tool, bool) {
	tool, ok := r.byName[strings.ToLower(strings.TrimSpace(name))]
	return tool, ok
}

// Tools returns the tools in registration order.
func (r *Registry) Tools() []ports.Tool {
	out := make([]ports.Tool, len(r.tools))
	copy(out, r.tools)
	return out
}

// Names returns the lower-cased tool names in registration order.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for _, tool := range r.tools {
		names = append(names, strings.ToLower(tool.Name()))
	}
	return names
}

// Len returns the number of registered tools.
func (r *Registry) Len() int { return len(r.tools) }

// Restrict returns a registry holding only the allowed tools. An empty list keeps every tool.
func (r *Registry) Restrict(allowed []string) (*Registry, error) {
	if len(allowed) == 0 {
		return r, nil
	}
	kept := make([]ports.Tool, 0, len(allowed))
	for _, name := range allowed {
		tool, ok := r.Lookup(name)
		if !ok {
			return nil, fmt.Errorf("allowed tool %q is not registered", name)
		}
		kept = append(kept, tool)
	}
	return NewRegistry(kept...)
}

// Specs converts the tools into declarations for native tool calling.
func (r *Registry) Specs() []ports.ToolSpec {
	specs := make([]ports.ToolSpec, 0, len(r.tools))
	for _, tool := range r.tools {
		specs = append(specs, ports.ToolSpec{
			Name:        strings.ToLower(tool.Name()),
			Description: tool.Description(),
			JSONSchema:  inputSchema(InputKeyFor(tool)),
		})
	}
	return specs
}

// InputKeyFor returns the argument key a tool receives its input under.
func InputKeyFor(tool ports.Tool) string {
	if key := strings.TrimSpace(tool.InputKey()); key != "" {
		return key
	}
	switch strings.ToLower(tool.Name()) {
	case "search":
		return InputKeyQuery
	case "bluesky_fetch":
		return InputKeyURL
	default:
		return InputKeyImageURL
	}
}

func inputSchema(key string) []byte {
	schema := map[string]any{
		"type": "object",
		"properties": map[string]any{
			key: map[string]any{"type": "string"},
		},
		"required":             []string{key},
		"additionalProperties": false,
	}
	raw, _ := json.Marshal(schema)
	return raw
}
