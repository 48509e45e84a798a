package harnessports

import (
	"context"
	"encoding/json"
)

// ToolSpec describes a callable tool exposed to the model.
type ToolSpec struct {
	Name        string // unique logical name
	Description string // concise doc for model selection
	JSONSchema  []byte // JSON schema for args
}

// ToolCall represents a model-invoked function with JSON arguments.
type ToolCall struct {
	ID   string
	Name string
	Args json.RawMessage
}

// Tool is a named capability the agent can dispatch to.
//
// Execute receives its single input under the key reported by InputKey.
// Failures of the tool's own I/O are encoded in the returned text; a non-nil
// error is reserved for failures the tool could not describe itself.
type Tool interface {
	Name() string
	Description() string
	InputKey() string
	Execute(ctx context.Context, args map[string]string) (string, error)
}
