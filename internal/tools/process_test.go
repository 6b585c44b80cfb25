package tools

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yarlson/pilot/internal/events"
	"github.com/yarlson/pilot/internal/proctask"
)

// captureEmitter records events for assertions, safe across goroutines.
type captureEmitter struct {
	mu     sync.Mutex
	events []events.Event
}

func (e *captureEmitter) Emit(ev events.Event) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.events = append(e.events, ev)
}

func (e *captureEmitter) byType(t events.Type) []events.Event {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []events.Event
	for _, ev := range e.events {
		if ev.Type == t {
			out = append(out, ev)
		}
	}
	return out
}

func TestStartProcessTool_Definition(t *testing.T) {
	tool := NewStartProcessTool(proctask.NewManager(nil), nil)

	def := tool.Definition()
	assert.Equal(t, "start_process", def.Name)
	assert.Contains(t, def.InputSchema.Required, "command")
	assert.Equal(t, "cwd", tool.WorkdirArg())
}

func TestStartProcessTool_MissingCommand(t *testing.T) {
	tool := NewStartProcessTool(proctask.NewManager(nil), nil)

	_, err := tool.Invoke(context.Background(), map[string]any{})
	assert.Error(t, err)
}

func TestStartProcessTool_SpawnsAndEmits(t *testing.T) {
	m := proctask.NewManager(nil)
	emitter := &captureEmitter{}
	tool := NewStartProcessTool(m, emitter)

	result, err := tool.Invoke(context.Background(), map[string]any{"command": "echo proc-output"})
	require.NoError(t, err)

	handle, ok := result.(proctask.Handle)
	require.True(t, ok)
	require.NotEmpty(t, handle.TaskID)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	task, err := m.WaitForCompletion(ctx, handle.TaskID)
	require.NoError(t, err)
	assert.Equal(t, 0, task.ExitCode)

	started := emitter.byType(events.TypeProcessTaskStarted)
	require.Len(t, started, 1)
	assert.Equal(t, handle.TaskID, started[0].Payload.(events.ProcessTaskStarted).TaskID)

	require.Eventually(t, func() bool {
		return len(emitter.byType(events.TypeProcessTaskFinished)) == 1
	}, 5*time.Second, 50*time.Millisecond)

	logs := emitter.byType(events.TypeProcessTaskLog)
	require.NotEmpty(t, logs)
	var combined string
	for _, ev := range logs {
		combined += ev.Payload.(events.ProcessTaskLog).Chunk
	}
	assert.Contains(t, combined, "proc-output")
}

func TestStartProcessTool_StartedPrecedesOtherEvents(t *testing.T) {
	// Use a directory that cannot be entered so the spawn itself fails:
	// its diagnostic log and finished events fire almost immediately and
	// must still come after the started event.
	m := proctask.NewManager(nil)
	emitter := &captureEmitter{}
	tool := NewStartProcessTool(m, emitter)

	result, err := tool.Invoke(context.Background(), map[string]any{
		"command": "true",
		"cwd":     "/nonexistent/path/for/sure",
	})
	require.NoError(t, err)
	handle := result.(proctask.Handle)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	task, err := m.WaitForCompletion(ctx, handle.TaskID)
	require.NoError(t, err)
	require.Equal(t, proctask.StatusFailed, task.Status)

	require.Eventually(t, func() bool {
		return len(emitter.byType(events.TypeProcessTaskFinished)) == 1
	}, 5*time.Second, 50*time.Millisecond)

	emitter.mu.Lock()
	defer emitter.mu.Unlock()
	require.NotEmpty(t, emitter.events)
	assert.Equal(t, events.TypeProcessTaskStarted, emitter.events[0].Type)
	for _, ev := range emitter.events[1:] {
		assert.NotEqual(t, events.TypeProcessTaskStarted, ev.Type)
	}
}

func TestStartProcessTool_ThroughRunnerYieldsCompletion(t *testing.T) {
	m := proctask.NewManager(nil)
	registry := NewRegistry()
	registry.MustRegister(NewStartProcessTool(m, nil))
	runner := NewRunner(registry, m, nil)

	result := runner.Run(context.Background(), "start_process", map[string]any{"command": "true"}, RunContext{})

	completion, ok := result.(TaskCompletion)
	require.True(t, ok)
	assert.Equal(t, 0, completion.ExitCode)
	assert.NotEmpty(t, completion.TaskID)
}
