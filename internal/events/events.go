// Package events defines the streaming event side channel the Pilot core
// exposes to an external listener (for example a UI). The core emits events
// as it works; no listener has to be present.
package events

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// Type is the event discriminator.
type Type string

const (
	// TypeToolCallStarted is emitted before a tool invocation begins.
	TypeToolCallStarted Type = "tool_call_started"
	// TypeToolCallResult is emitted after a tool invocation is classified.
	TypeToolCallResult Type = "tool_call_result"
	// TypeProcessTaskStarted is emitted when a long-running process task spawns.
	TypeProcessTaskStarted Type = "process_task_started"
	// TypeProcessTaskLog is emitted for each output chunk of a process task.
	TypeProcessTaskLog Type = "process_task_log"
	// TypeProcessTaskFinished is emitted once a process task completes.
	TypeProcessTaskFinished Type = "process_task_finished"
	// TypeFinalReply is emitted when the loop terminates with a planner reply.
	TypeFinalReply Type = "final_reply"
	// TypeError is emitted for terminal aborts.
	TypeError Type = "error"
)

// ToolCallStarted is the payload for TypeToolCallStarted.
type ToolCallStarted struct {
	Name string         `json:"name"`
	Args map[string]any `json:"args,omitempty"`
}

// ToolCallResult is the payload for TypeToolCallResult.
type ToolCallResult struct {
	Name    string `json:"name"`
	Success bool   `json:"success"`
	Text    string `json:"text,omitempty"`
}

// ProcessTaskStarted is the payload for TypeProcessTaskStarted.
type ProcessTaskStarted struct {
	TaskID    string    `json:"task_id"`
	Name      string    `json:"name"`
	StartedAt time.Time `json:"started_at"`
}

// ProcessTaskLog is the payload for TypeProcessTaskLog.
type ProcessTaskLog struct {
	TaskID string `json:"task_id"`
	Chunk  string `json:"chunk"`
}

// ProcessTaskFinished is the payload for TypeProcessTaskFinished.
type ProcessTaskFinished struct {
	TaskID     string `json:"task_id"`
	ExitCode   int    `json:"exit_code"`
	DurationMS int64  `json:"duration_ms"`
}

// FinalReply is the payload for TypeFinalReply.
type FinalReply struct {
	Text string `json:"text"`
}

// Error is the payload for TypeError.
type Error struct {
	Text string `json:"text"`
}

// Event is a tagged streaming message: a discriminator plus one payload.
type Event struct {
	Type    Type `json:"type"`
	Payload any  `json:"payload,omitempty"`
}

// Emitter receives streaming events. Implementations must tolerate being
// called from multiple goroutines: process-task callbacks fire concurrently
// with the orchestrator flow.
type Emitter interface {
	Emit(ev Event)
}

// Nop is an emitter that discards all events.
type Nop struct{}

// Emit discards the event.
func (Nop) Emit(Event) {}

// Writer renders events as NDJSON to an underlying writer. Safe for
// concurrent use.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter creates an NDJSON event writer.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// Emit writes the event as one JSON line. Marshal or write failures are
// dropped: the event channel is best-effort and must never stall the loop.
func (e *Writer) Emit(ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	_, _ = e.w.Write(append(data, '\n'))
}
