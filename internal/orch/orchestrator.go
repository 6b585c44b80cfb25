// Package orch implements the top-level control loop: ask the planner for
// the next action, execute it through the tool runner, update the fix-cycle
// tracker, and route to planning, verification, or termination based on the
// iteration and fix-attempt budgets.
package orch

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/yarlson/pilot/internal/checkpoint"
	"github.com/yarlson/pilot/internal/events"
	"github.com/yarlson/pilot/internal/fixcycle"
	"github.com/yarlson/pilot/internal/planner"
	"github.com/yarlson/pilot/internal/session"
	"github.com/yarlson/pilot/internal/tools"
)

// Default loop budgets. Both are externally configurable; these apply only
// when no value is set.
const (
	DefaultMaxIterations  = 10
	DefaultMaxFixAttempts = 3
)

// Outcome is the terminal state of a loop run. Exactly one of these is
// reached; there are no partial or ambiguous terminal states.
type Outcome string

const (
	// OutcomeCompleted indicates the planner produced a final reply.
	OutcomeCompleted Outcome = "completed"
	// OutcomeIterationLimit indicates the planning-step budget was exhausted.
	OutcomeIterationLimit Outcome = "iteration_limit"
	// OutcomeFixAttemptLimit indicates the fix-attempt budget was exhausted
	// for a stuck tool call.
	OutcomeFixAttemptLimit Outcome = "fix_attempt_limit"
)

// validOutcomes is the set of valid terminal outcomes.
var validOutcomes = map[Outcome]bool{
	OutcomeCompleted:       true,
	OutcomeIterationLimit:  true,
	OutcomeFixAttemptLimit: true,
}

// IsValid returns true if the outcome is a valid value.
func (o Outcome) IsValid() bool {
	return validOutcomes[o]
}

// Result contains the results of a loop run.
type Result struct {
	// Outcome is the terminal state.
	Outcome Outcome

	// Message is the planner's final reply, or the abort message.
	Message string

	// Iterations is the number of planning steps taken.
	Iterations int

	// Elapsed is the total wall time for the run.
	Elapsed time.Duration
}

// Deps contains the dependencies for the Orchestrator.
type Deps struct {
	// Planner decides the next action. Required.
	Planner planner.Planner

	// Runner executes tool calls. Required.
	Runner *tools.Runner

	// Checkpoints persists step state between steps. Optional.
	Checkpoints checkpoint.Store

	// Emitter receives streaming events. Optional.
	Emitter events.Emitter

	// Logger is the structured logger. Optional.
	Logger *slog.Logger

	// LogsDir receives per-step audit records when non-empty.
	LogsDir string
}

// Orchestrator drives one conversation thread. It is the single writer of
// that thread's conversation state; multiple orchestrators for different
// threads may run concurrently against shared runner and process manager.
type Orchestrator struct {
	planner     planner.Planner
	runner      *tools.Runner
	checkpoints checkpoint.Store
	emitter     events.Emitter
	logger      *slog.Logger
	logsDir     string

	maxIterations  int
	maxFixAttempts int
}

// New creates an orchestrator with default budgets.
func New(deps Deps) *Orchestrator {
	emitter := deps.Emitter
	if emitter == nil {
		emitter = events.Nop{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		planner:        deps.Planner,
		runner:         deps.Runner,
		checkpoints:    deps.Checkpoints,
		emitter:        emitter,
		logger:         logger,
		logsDir:        deps.LogsDir,
		maxIterations:  DefaultMaxIterations,
		maxFixAttempts: DefaultMaxFixAttempts,
	}
}

// SetMaxIterations sets the planning-step budget.
func (o *Orchestrator) SetMaxIterations(n int) {
	if n > 0 {
		o.maxIterations = n
	}
}

// SetMaxFixAttempts sets the per-tool-call fix-attempt budget.
func (o *Orchestrator) SetMaxFixAttempts(n int) {
	if n > 0 {
		o.maxFixAttempts = n
	}
}

// Run executes the loop for one conversation thread until a terminal state.
// Terminal aborts are normal results, not errors; Run returns an error only
// for infrastructure failures (planner error, context cancellation,
// checkpoint write failure).
func (o *Orchestrator) Run(ctx context.Context, st *session.State) (Result, error) {
	start := time.Now()

	for {
		if err := ctx.Err(); err != nil {
			return Result{}, fmt.Errorf("loop cancelled: %w", err)
		}

		// The tracker round-trips through its serialized form at every step
		// boundary, so a restart restores exactly what was persisted.
		tracker := fixcycle.FromState(st.FixCycle)

		record := NewStepRecord(st.ThreadID)

		// PLANNING: exactly one iteration per planning step.
		st.IterationCount++
		msg, err := o.planner.Plan(ctx, st)
		if err != nil {
			return Result{}, fmt.Errorf("planner failed: %w", err)
		}
		msg.Role = session.RoleAssistant
		st.Append(msg)
		record.PlannerText = msg.Text

		// Routing rules, in priority order.
		if st.IterationCount > o.maxIterations {
			text := fmt.Sprintf("Aborting: reached the maximum of %d planning iterations.", o.maxIterations)
			return o.abort(st, tracker, record, OutcomeIterationLimit, text, start)
		}
		if tracker.HasReachedMaxAttempts(o.maxFixAttempts) {
			return o.abort(st, tracker, record, OutcomeFixAttemptLimit, o.fixAbortText(tracker), start)
		}
		if !msg.HasToolCalls() {
			o.emitter.Emit(events.Event{Type: events.TypeFinalReply, Payload: events.FinalReply{Text: msg.Text}})
			record.Complete(string(OutcomeCompleted))
			if err := o.persist(st, tracker, record); err != nil {
				return Result{}, err
			}
			return Result{
				Outcome:    OutcomeCompleted,
				Message:    msg.Text,
				Iterations: st.IterationCount,
				Elapsed:    time.Since(start),
			}, nil
		}

		// EXECUTING: tool calls run in message order; each result is
		// appended before the next call starts.
		rc := tools.RunContext{
			ProjectSubdirectory: st.ProjectSubdirectory,
			ThreadID:            st.ThreadID,
		}
		for _, call := range msg.ToolCalls {
			verdict := o.execute(ctx, call.Name, call.Args, rc)
			st.Append(session.ToolResult(call.ID, verdict.Text))
			record.ToolCallsExecuted++

			if tracker.IsActive() {
				// While a cycle is active, every planner-issued call is a
				// corrective action: record whether the fix itself applied,
				// not whether the original problem is gone.
				tracker.RecordFixAttempt(verdict.Success)
			} else {
				tracker.RecordToolRun(call.Name, call.Args, call.ID, verdict.Success, verdict.Text)
				if !verdict.Success {
					o.logger.Info("tool call failed, fix cycle started",
						"thread_id", st.ThreadID, "tool", call.Name)
				}
			}
		}

		// VERIFYING: re-run the original failing call when a fix applied.
		if run := tracker.ToolToVerify(); run != nil {
			verifyCall := session.NewToolCall(run.Name, run.Args)
			st.Append(session.Assistant(
				fmt.Sprintf("Re-running %s to verify the fix.", run.Name), verifyCall))

			verdict := o.execute(ctx, run.Name, run.Args, rc)
			st.Append(session.ToolResult(verifyCall.ID, verdict.Text))
			tracker.RecordVerificationResult(verdict.Success)

			if !tracker.IsActive() {
				o.logger.Info("fix verified, cycle resolved",
					"thread_id", st.ThreadID, "tool", run.Name)
			} else if tracker.HasReachedMaxAttempts(o.maxFixAttempts) {
				return o.abort(st, tracker, record, OutcomeFixAttemptLimit, o.fixAbortText(tracker), start)
			}
		}

		record.Complete("continue")
		if err := o.persist(st, tracker, record); err != nil {
			return Result{}, err
		}
	}
}

// execute runs one tool call and classifies its result, emitting the
// started/result event pair.
func (o *Orchestrator) execute(ctx context.Context, name string, args map[string]any, rc tools.RunContext) tools.Verdict {
	o.emitter.Emit(events.Event{
		Type:    events.TypeToolCallStarted,
		Payload: events.ToolCallStarted{Name: name, Args: args},
	})

	result := o.runner.Run(ctx, name, args, rc)
	verdict := tools.Classify(result)

	o.emitter.Emit(events.Event{
		Type:    events.TypeToolCallResult,
		Payload: events.ToolCallResult{Name: name, Success: verdict.Success, Text: verdict.Text},
	})
	return verdict
}

// abort reaches a terminal abort state: the fixed-format message is appended
// to the transcript, surfaced as an error event, and returned as a normal
// result.
func (o *Orchestrator) abort(st *session.State, tracker *fixcycle.Tracker, record *StepRecord, outcome Outcome, text string, start time.Time) (Result, error) {
	st.Append(session.Assistant(text))
	o.emitter.Emit(events.Event{Type: events.TypeError, Payload: events.Error{Text: text}})
	o.logger.Warn("loop aborted", "thread_id", st.ThreadID, "outcome", string(outcome))

	record.Complete(string(outcome))
	if err := o.persist(st, tracker, record); err != nil {
		return Result{}, err
	}
	return Result{
		Outcome:    outcome,
		Message:    text,
		Iterations: st.IterationCount,
		Elapsed:    time.Since(start),
	}, nil
}

// fixAbortText formats the fix-attempt abort message, identifying the stuck
// tool, its arguments, and the attempt count.
func (o *Orchestrator) fixAbortText(tracker *fixcycle.Tracker) string {
	state := tracker.ToState()
	name := "unknown"
	var args map[string]any
	if state.FailingToolRun != nil {
		name = state.FailingToolRun.Name
		args = state.FailingToolRun.Args
	}
	return fmt.Sprintf("Aborting: tool %q (args: %v) still failing after %d fix attempts.",
		name, args, state.AttemptsCount)
}

// persist serializes the tracker back into the conversation state, saves the
// checkpoint, and writes the step audit record.
func (o *Orchestrator) persist(st *session.State, tracker *fixcycle.Tracker, record *StepRecord) error {
	trackerState := tracker.ToState()
	st.FixCycle = &trackerState

	if o.checkpoints != nil {
		if err := o.checkpoints.Save(st.ThreadID, st.Snapshot()); err != nil {
			return fmt.Errorf("failed to checkpoint thread %s: %w", st.ThreadID, err)
		}
	}
	if o.logsDir != "" {
		_, _ = SaveRecord(o.logsDir, record)
	}
	return nil
}
