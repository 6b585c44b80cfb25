// Package planner defines the decision-making contract the orchestrator
// consumes, plus a scripted implementation for dry runs and tests. How a
// decision is produced is opaque to the core: a planner only has to return
// an assistant message, with or without tool calls.
package planner

import (
	"context"

	"github.com/yarlson/pilot/internal/session"
)

// Planner chooses the next action given the conversation state.
type Planner interface {
	// Plan returns the next assistant message. A message without tool calls
	// terminates the loop normally with its text as the final reply.
	Plan(ctx context.Context, st *session.State) (session.Message, error)
}

// Func adapts a plain function to the Planner interface.
type Func func(ctx context.Context, st *session.State) (session.Message, error)

// Plan calls the function.
func (f Func) Plan(ctx context.Context, st *session.State) (session.Message, error) {
	return f(ctx, st)
}
