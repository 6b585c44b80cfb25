package orch

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarlson/pilot/internal/checkpoint"
	"github.com/yarlson/pilot/internal/events"
	"github.com/yarlson/pilot/internal/planner"
	"github.com/yarlson/pilot/internal/proctask"
	"github.com/yarlson/pilot/internal/session"
	"github.com/yarlson/pilot/internal/tools"
)

// queueTool replays a fixed sequence of results, one per invocation. Once
// the queue is drained it keeps returning the last result.
type queueTool struct {
	name    string
	results []any

	mu      sync.Mutex
	invoked int
}

func (t *queueTool) Definition() tools.Definition {
	return tools.Definition{Name: t.name}
}

func (t *queueTool) Invoke(_ context.Context, _ map[string]any) (any, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	i := t.invoked
	t.invoked++
	if i >= len(t.results) {
		i = len(t.results) - 1
	}
	return t.results[i], nil
}

func (t *queueTool) invocations() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.invoked
}

// recordingEmitter collects emitted events for assertions.
type recordingEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *recordingEmitter) Emit(ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *recordingEmitter) types() []events.Type {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]events.Type, 0, len(e.events))
	for _, ev := range e.events {
		out = append(out, ev.Type)
	}
	return out
}

// scriptPlanner returns canned assistant messages in order and repeats the
// last one when drained.
func scriptPlanner(msgs ...session.Message) planner.Planner {
	i := 0
	return planner.Func(func(_ context.Context, _ *session.State) (session.Message, error) {
		if i >= len(msgs) {
			return msgs[len(msgs)-1], nil
		}
		msg := msgs[i]
		i++
		return msg, nil
	})
}

func newTestOrchestrator(t *testing.T, p planner.Planner, emitter events.Emitter, toolSet ...tools.Tool) (*Orchestrator, checkpoint.Store) {
	t.Helper()

	registry := tools.NewRegistry()
	for _, tool := range toolSet {
		require.NoError(t, registry.Register(tool))
	}
	runner := tools.NewRunner(registry, proctask.NewManager(nil), nil)

	store, err := checkpoint.NewFileStore(t.TempDir())
	require.NoError(t, err)

	return New(Deps{
		Planner:     p,
		Runner:      runner,
		Checkpoints: store,
		Emitter:     emitter,
	}), store
}

func shellOK(out string) tools.ShellResult {
	return tools.ShellResult{ExitCode: 0, Stdout: out}
}

func shellFail(errText string) tools.ShellResult {
	return tools.ShellResult{ExitCode: 1, Stderr: errText}
}

func TestRun_CompletesOnFinalReply(t *testing.T) {
	emitter := &recordingEmitter{}
	o, store := newTestOrchestrator(t, scriptPlanner(session.Assistant("all done")), emitter)
	st := session.NewState("thread-1")

	result, err := o.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, "all done", result.Message)
	assert.Equal(t, 1, result.Iterations)
	assert.Contains(t, emitter.types(), events.TypeFinalReply)

	loaded, err := store.Load("thread-1")
	require.NoError(t, err)
	require.NotNil(t, loaded)
	assert.Equal(t, 1, loaded.IterationCount)
}

func TestRun_ExecutesToolCallsInOrder(t *testing.T) {
	build := &queueTool{name: "build", results: []any{shellOK("built")}}
	test := &queueTool{name: "test", results: []any{shellOK("tested")}}
	p := scriptPlanner(
		session.Assistant("building and testing",
			session.NewToolCall("build", nil),
			session.NewToolCall("test", nil)),
		session.Assistant("done"),
	)
	emitter := &recordingEmitter{}
	o, _ := newTestOrchestrator(t, p, emitter, build, test)
	st := session.NewState("thread-1")

	result, err := o.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, 1, build.invocations())
	assert.Equal(t, 1, test.invocations())

	// assistant(calls), tool, tool, assistant(final)
	require.Len(t, st.Messages, 4)
	assert.Equal(t, session.RoleTool, st.Messages[1].Role)
	assert.Contains(t, st.Messages[1].Text, "built")
	assert.Contains(t, st.Messages[2].Text, "tested")
	assert.NoError(t, st.Validate())
}

func TestRun_IterationLimitAbortsBeforeExecuting(t *testing.T) {
	build := &queueTool{name: "build", results: []any{shellOK("built")}}
	always := planner.Func(func(_ context.Context, _ *session.State) (session.Message, error) {
		return session.Assistant("keep going", session.NewToolCall("build", nil)), nil
	})
	emitter := &recordingEmitter{}
	o, _ := newTestOrchestrator(t, always, emitter, build)
	o.SetMaxIterations(3)
	st := session.NewState("thread-1")

	result, err := o.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, OutcomeIterationLimit, result.Outcome)
	assert.Contains(t, result.Message, "maximum of 3 planning iterations")
	assert.Equal(t, 4, result.Iterations)

	// The fourth planning step is recorded but its tool calls never run.
	assert.Equal(t, 3, build.invocations())
	assert.Equal(t, result.Message, st.LastMessage().Text)
	assert.Contains(t, emitter.types(), events.TypeError)
}

func TestRun_FixCycleResolves(t *testing.T) {
	// build fails once, then succeeds on the verification re-run.
	build := &queueTool{name: "build", results: []any{shellFail("undefined: Foo"), shellOK("built")}}
	patch := &queueTool{name: "patch", results: []any{tools.PatchResult{Path: "main.go", Applied: true}}}
	p := scriptPlanner(
		session.Assistant("building", session.NewToolCall("build", nil)),
		session.Assistant("fixing the build", session.NewToolCall("patch", nil)),
		session.Assistant("done"),
	)
	o, store := newTestOrchestrator(t, p, &recordingEmitter{}, build, patch)
	st := session.NewState("thread-1")

	result, err := o.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Equal(t, 2, build.invocations())
	assert.Equal(t, 1, patch.invocations())

	var verifyText string
	for _, m := range st.Messages {
		if m.Role == session.RoleAssistant && m.Text == "Re-running build to verify the fix." {
			verifyText = m.Text
		}
	}
	assert.NotEmpty(t, verifyText)
	assert.NoError(t, st.Validate())

	loaded, err := store.Load("thread-1")
	require.NoError(t, err)
	require.NotNil(t, loaded.FixCycleState)
	assert.False(t, loaded.FixCycleState.IsActive)
}

func TestRun_FixAttemptLimitDuringVerification(t *testing.T) {
	// Every fix applies but the failure never goes away.
	build := &queueTool{name: "build", results: []any{shellFail("undefined: Foo")}}
	patch := &queueTool{name: "patch", results: []any{tools.PatchResult{Path: "main.go", Applied: true}}}
	p := scriptPlanner(
		session.Assistant("building", session.NewToolCall("build", nil)),
		session.Assistant("fixing", session.NewToolCall("patch", nil)),
	)
	o, _ := newTestOrchestrator(t, p, &recordingEmitter{}, build, patch)
	o.SetMaxFixAttempts(2)
	st := session.NewState("thread-1")

	result, err := o.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFixAttemptLimit, result.Outcome)
	assert.Contains(t, result.Message, `tool "build"`)
	assert.Contains(t, result.Message, "2 fix attempts")
	assert.Equal(t, 2, patch.invocations())
	assert.NoError(t, st.Validate())
}

func TestRun_FixAttemptLimitAfterUnappliedFixes(t *testing.T) {
	// The fix action itself fails, so no verification happens and the
	// budget check fires on the next planning step.
	build := &queueTool{name: "build", results: []any{shellFail("undefined: Foo")}}
	patch := &queueTool{name: "patch", results: []any{tools.PatchResult{Path: "main.go", Applied: false}}}
	p := scriptPlanner(
		session.Assistant("building", session.NewToolCall("build", nil)),
		session.Assistant("fixing", session.NewToolCall("patch", nil)),
	)
	o, _ := newTestOrchestrator(t, p, &recordingEmitter{}, build, patch)
	o.SetMaxFixAttempts(1)
	st := session.NewState("thread-1")

	result, err := o.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, OutcomeFixAttemptLimit, result.Outcome)
	assert.Equal(t, 1, build.invocations())
	assert.Equal(t, 1, patch.invocations())
}

func TestRun_PlannerErrorPropagates(t *testing.T) {
	failing := planner.Func(func(_ context.Context, _ *session.State) (session.Message, error) {
		return session.Message{}, fmt.Errorf("upstream unavailable")
	})
	o, _ := newTestOrchestrator(t, failing, &recordingEmitter{})

	_, err := o.Run(context.Background(), session.NewState("thread-1"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "planner failed")
}

func TestRun_CancelledContext(t *testing.T) {
	o, _ := newTestOrchestrator(t, scriptPlanner(session.Assistant("done")), &recordingEmitter{})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := o.Run(ctx, session.NewState("thread-1"))
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestRun_UnknownToolFeedsFailureIntoCycle(t *testing.T) {
	p := scriptPlanner(
		session.Assistant("trying", session.NewToolCall("ghost", nil)),
		session.Assistant("giving up"),
	)
	o, store := newTestOrchestrator(t, p, &recordingEmitter{})
	st := session.NewState("thread-1")

	result, err := o.Run(context.Background(), st)
	require.NoError(t, err)

	assert.Equal(t, OutcomeCompleted, result.Outcome)
	assert.Contains(t, st.Messages[1].Text, "tool_not_found")

	loaded, err := store.Load("thread-1")
	require.NoError(t, err)
	require.NotNil(t, loaded.FixCycleState)
	assert.True(t, loaded.FixCycleState.IsActive)
	assert.Equal(t, "ghost", loaded.FixCycleState.FailingToolRun.Name)
}

func TestRun_EmitsToolCallEventPair(t *testing.T) {
	build := &queueTool{name: "build", results: []any{shellOK("built")}}
	p := scriptPlanner(
		session.Assistant("building", session.NewToolCall("build", nil)),
		session.Assistant("done"),
	)
	emitter := &recordingEmitter{}
	o, _ := newTestOrchestrator(t, p, emitter, build)

	_, err := o.Run(context.Background(), session.NewState("thread-1"))
	require.NoError(t, err)

	types := emitter.types()
	require.Len(t, types, 3)
	assert.Equal(t, events.TypeToolCallStarted, types[0])
	assert.Equal(t, events.TypeToolCallResult, types[1])
	assert.Equal(t, events.TypeFinalReply, types[2])
}

func TestOutcomeIsValid(t *testing.T) {
	assert.True(t, OutcomeCompleted.IsValid())
	assert.True(t, OutcomeIterationLimit.IsValid())
	assert.True(t, OutcomeFixAttemptLimit.IsValid())
	assert.False(t, Outcome("crashed").IsValid())
}
