package tools

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/yarlson/pilot/internal/events"
	"github.com/yarlson/pilot/internal/proctask"
)

// StartProcessTool spawns a long-running command (for example a dev server)
// through the process task manager and returns the task handle. The runner
// awaits the handle; output and completion reach the listener through the
// event side channel.
type StartProcessTool struct {
	procs   *proctask.Manager
	emitter events.Emitter
}

// NewStartProcessTool creates a start_process tool bound to the given
// manager. A nil emitter discards events.
func NewStartProcessTool(procs *proctask.Manager, emitter events.Emitter) *StartProcessTool {
	if emitter == nil {
		emitter = events.Nop{}
	}
	return &StartProcessTool{procs: procs, emitter: emitter}
}

// Definition returns the tool metadata.
func (t *StartProcessTool) Definition() Definition {
	return Definition{
		Name:        "start_process",
		Description: "Start a long-running command as a supervised process task and stream its output",
		InputSchema: InputSchema{
			Type: "object",
			Properties: map[string]Property{
				"command": {Type: "string", Description: "Command line to run"},
				"cwd":     {Type: "string", Description: "Working directory (defaults to the workspace)"},
				"name":    {Type: "string", Description: "Display name for the task"},
			},
			Required: []string{"command"},
		},
	}
}

// WorkdirArg declares that the session workspace is injected as "cwd".
func (t *StartProcessTool) WorkdirArg() string {
	return "cwd"
}

// Invoke spawns the process and returns its task handle.
func (t *StartProcessTool) Invoke(_ context.Context, args map[string]any) (any, error) {
	cmdLine, _ := args["command"].(string)
	if strings.TrimSpace(cmdLine) == "" {
		return nil, fmt.Errorf("command is required")
	}
	cwd, _ := args["cwd"].(string)
	name, _ := args["name"].(string)
	if name == "" {
		name = cmdLine
	}

	// The streaming goroutine races this call, so the started event is
	// fired through a once from every path: whichever event comes first
	// for the task, started still precedes it.
	var startedOnce sync.Once
	emitStarted := func(id string) {
		startedOnce.Do(func() {
			t.emitter.Emit(events.Event{
				Type:    events.TypeProcessTaskStarted,
				Payload: events.ProcessTaskStarted{TaskID: id, Name: name, StartedAt: time.Now()},
			})
		})
	}

	taskID := t.procs.Spawn([]string{"sh", "-c", cmdLine}, cwd,
		func(id, chunk string) {
			emitStarted(id)
			t.emitter.Emit(events.Event{
				Type:    events.TypeProcessTaskLog,
				Payload: events.ProcessTaskLog{TaskID: id, Chunk: chunk},
			})
		},
		func(task proctask.Task) {
			emitStarted(task.TaskID)
			t.emitter.Emit(events.Event{
				Type: events.TypeProcessTaskFinished,
				Payload: events.ProcessTaskFinished{
					TaskID:     task.TaskID,
					ExitCode:   task.ExitCode,
					DurationMS: time.Since(task.StartedAt).Milliseconds(),
				},
			})
		},
	)
	emitStarted(taskID)

	return proctask.Handle{TaskID: taskID}, nil
}
