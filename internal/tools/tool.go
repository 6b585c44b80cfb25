// Package tools provides the tool contract, the per-runtime tool registry,
// the invocation runner that turns every failure mode into a uniform error
// value, and the output classifier that maps tool results to a
// success/failure verdict.
package tools

import "context"

// InputSchema describes a tool's expected argument shape.
type InputSchema struct {
	// Type is the JSON schema type, normally "object".
	Type string `json:"type"`

	// Properties maps argument names to their descriptions.
	Properties map[string]Property `json:"properties,omitempty"`

	// Required lists argument names that must be present.
	Required []string `json:"required,omitempty"`
}

// Property describes a single tool argument.
type Property struct {
	Type        string `json:"type"`
	Description string `json:"description,omitempty"`
}

// Definition contains a tool's metadata for discovery and planner prompts.
type Definition struct {
	// Name is the globally unique tool name.
	Name string `json:"name"`

	// Description is a one-line summary of what the tool does.
	Description string `json:"description"`

	// InputSchema declares the expected argument shape.
	InputSchema InputSchema `json:"input_schema"`
}

// Tool is a named, invocable external operation. Invoke returns either a
// domain value, nil, or a proctask.Handle when the tool has started a
// long-running process instead of producing a terminal result. Tools may be
// synchronous or suspend internally; the runner treats both uniformly.
type Tool interface {
	Definition() Definition
	Invoke(ctx context.Context, args map[string]any) (any, error)
}

// WorkdirScoped is implemented by tools whose execution is scoped to the
// session workspace. The runner injects the session's project subdirectory
// under the returned argument key unless the caller already supplied it.
type WorkdirScoped interface {
	WorkdirArg() string
}
