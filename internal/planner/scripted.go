package planner

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/yarlson/pilot/internal/session"
)

// Step is one scripted planning decision.
type Step struct {
	// Text is the assistant free text for this step.
	Text string `yaml:"text"`

	// ToolCalls are the tool invocations to request, in order.
	ToolCalls []StepToolCall `yaml:"tool_calls,omitempty"`
}

// StepToolCall is a scripted tool call; IDs are generated at plan time.
type StepToolCall struct {
	Name string         `yaml:"name"`
	Args map[string]any `yaml:"args,omitempty"`
}

// Script is the YAML document shape for a scripted plan.
type Script struct {
	// Steps are replayed in order, one per planning step.
	Steps []Step `yaml:"steps"`

	// FinalReply is returned once the steps are exhausted. Defaults to a
	// fixed exhaustion notice.
	FinalReply string `yaml:"final_reply,omitempty"`
}

// Scripted replays a fixed plan, one step per Plan call. It is not safe for
// concurrent use; each conversation thread gets its own instance.
type Scripted struct {
	script Script
	next   int
}

// NewScripted creates a scripted planner from an in-memory script.
func NewScripted(script Script) *Scripted {
	return &Scripted{script: script}
}

// LoadScript reads a scripted plan from a YAML file.
func LoadScript(path string) (*Scripted, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading plan script: %w", err)
	}

	var script Script
	if err := yaml.Unmarshal(data, &script); err != nil {
		return nil, fmt.Errorf("parsing plan script %s: %w", path, err)
	}
	if len(script.Steps) == 0 {
		return nil, fmt.Errorf("plan script %s has no steps", path)
	}
	return NewScripted(script), nil
}

// Plan returns the next scripted step as an assistant message. Once the
// steps are exhausted it returns the final reply with no tool calls, which
// terminates the loop.
func (s *Scripted) Plan(_ context.Context, _ *session.State) (session.Message, error) {
	if s.next >= len(s.script.Steps) {
		reply := s.script.FinalReply
		if reply == "" {
			reply = "plan script exhausted"
		}
		return session.Assistant(reply), nil
	}

	step := s.script.Steps[s.next]
	s.next++

	calls := make([]session.ToolCall, 0, len(step.ToolCalls))
	for _, c := range step.ToolCalls {
		calls = append(calls, session.NewToolCall(c.Name, c.Args))
	}
	return session.Assistant(step.Text, calls...), nil
}
