package tools

import (
	"errors"
	"fmt"
)

// ErrorKind classifies a failed tool invocation.
type ErrorKind string

const (
	// KindNotFound means the requested tool is absent from the registry.
	// Never retried automatically.
	KindNotFound ErrorKind = "tool_not_found"
	// KindRaised means the tool's own logic signaled a domain failure.
	KindRaised ErrorKind = "tool_raised"
	// KindTransport means a remote tool-execution channel failed.
	KindTransport ErrorKind = "transport_error"
	// KindGeneric is any other uncaught failure.
	KindGeneric ErrorKind = "generic_error"
)

// ErrTransport is the sentinel a tool wraps to signal that the failure came
// from the transport to a remote tool server rather than the tool itself.
var ErrTransport = errors.New("tool transport failure")

// InvocationError is the uniform failure value the runner produces for every
// failure mode. It never escapes as a Go error to the orchestrator: it
// travels inside the invocation result so the fix cycle can react to it.
type InvocationError struct {
	// Kind classifies the failure.
	Kind ErrorKind `json:"kind"`

	// Tool is the name of the tool that was invoked.
	Tool string `json:"tool_name"`

	// Message is the original failure message.
	Message string `json:"message"`

	// Details carries any structured payload the tool attached.
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *InvocationError) Error() string {
	return fmt.Sprintf("%s: tool %q: %s", e.Kind, e.Tool, e.Message)
}

// Detailer is implemented by errors that carry a structured detail payload,
// preserved on the resulting InvocationError.
type Detailer interface {
	Details() map[string]any
}
