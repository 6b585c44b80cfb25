package session

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/yarlson/pilot/internal/fixcycle"
)

// State is the conversation state for one session thread: an append-only
// message log plus the loop counters the orchestrator needs between steps.
// It has a single writer — the thread's own orchestrator flow — and is
// persisted through StepState at every step boundary.
type State struct {
	// ThreadID identifies the session thread. Not part of the persisted
	// step-state shape; checkpoints are keyed by it externally.
	ThreadID string `json:"-"`

	// Messages is the ordered, append-only transcript.
	Messages []Message `json:"messages"`

	// IterationCount counts planning steps taken so far.
	IterationCount int `json:"iteration_count"`

	// ProjectSubdirectory optionally scopes tool execution to a sub-workspace.
	ProjectSubdirectory string `json:"project_subdirectory,omitempty"`

	// FixCycle is the serialized fix-cycle tracker state.
	FixCycle *fixcycle.State `json:"fix_cycle_state,omitempty"`
}

// StepState is the persisted checkpoint shape produced and consumed at each
// orchestrator step boundary.
type StepState struct {
	Messages            []Message       `json:"messages"`
	IterationCount      int             `json:"iteration_count"`
	FixCycleState       *fixcycle.State `json:"fix_cycle_state,omitempty"`
	ProjectSubdirectory string          `json:"project_subdirectory,omitempty"`
}

// NewState creates an empty conversation state for the given thread.
// An empty threadID gets a generated one.
func NewState(threadID string) *State {
	if threadID == "" {
		threadID = uuid.NewString()
	}
	return &State{
		ThreadID: threadID,
		Messages: []Message{},
	}
}

// Append adds messages to the end of the transcript in the given order.
func (s *State) Append(msgs ...Message) {
	s.Messages = append(s.Messages, msgs...)
}

// LastMessage returns the most recent message, or nil for an empty log.
func (s *State) LastMessage() *Message {
	if len(s.Messages) == 0 {
		return nil
	}
	return &s.Messages[len(s.Messages)-1]
}

// PendingToolCalls returns the tool calls of the last message when it is an
// assistant message, in execution order. Nil otherwise.
func (s *State) PendingToolCalls() []ToolCall {
	last := s.LastMessage()
	if last == nil || last.Role != RoleAssistant {
		return nil
	}
	return last.ToolCalls
}

// Validate checks transcript integrity: every tool message must answer a
// tool call issued by an earlier assistant message in this thread.
func (s *State) Validate() error {
	issued := make(map[string]bool)
	for i, m := range s.Messages {
		if !m.Role.IsValid() {
			return fmt.Errorf("message %d: invalid role %q", i, m.Role)
		}
		switch m.Role {
		case RoleAssistant:
			for _, c := range m.ToolCalls {
				if c.ID == "" {
					return fmt.Errorf("message %d: tool call %q has empty id", i, c.Name)
				}
				issued[c.ID] = true
			}
		case RoleTool:
			if m.ToolCallID == "" {
				return fmt.Errorf("message %d: tool message has empty tool_call_id", i)
			}
			if !issued[m.ToolCallID] {
				return fmt.Errorf("message %d: tool message answers unknown tool call %q", i, m.ToolCallID)
			}
		}
	}
	return nil
}

// Snapshot returns the persisted step-state shape for this state.
func (s *State) Snapshot() StepState {
	msgs := make([]Message, len(s.Messages))
	copy(msgs, s.Messages)
	return StepState{
		Messages:            msgs,
		IterationCount:      s.IterationCount,
		FixCycleState:       s.FixCycle,
		ProjectSubdirectory: s.ProjectSubdirectory,
	}
}

// Restore rebuilds conversation state from a checkpoint for the given thread.
func Restore(threadID string, st StepState) *State {
	s := NewState(threadID)
	if len(st.Messages) > 0 {
		s.Messages = append(s.Messages, st.Messages...)
	}
	s.IterationCount = st.IterationCount
	s.ProjectSubdirectory = st.ProjectSubdirectory
	s.FixCycle = st.FixCycleState
	return s
}

// Concat merges two message logs by plain list-append: no dedup, no
// reordering. This is the defined concatenation rule for branches of the
// same thread.
func Concat(a, b []Message) []Message {
	out := make([]Message, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	return out
}
