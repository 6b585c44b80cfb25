package tools

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/yarlson/pilot/internal/proctask"
)

// RunContext carries session-derived context injected into tool arguments.
type RunContext struct {
	// ProjectSubdirectory scopes workspace tools to a sub-workspace.
	ProjectSubdirectory string

	// ThreadID identifies the session thread, for logging.
	ThreadID string
}

// Runner resolves tool calls against a registry, injects session context,
// invokes the tool, and converts every failure mode — missing tool,
// tool-raised error, transport error, panic — into an *InvocationError
// inside the result. Run never returns a Go error and never panics: the
// orchestrator must be able to feed failures back into the conversation
// instead of crashing the session.
type Runner struct {
	registry *Registry
	procs    *proctask.Manager
	logger   *slog.Logger
}

// NewRunner creates a tool runner. A nil logger uses slog.Default().
func NewRunner(registry *Registry, procs *proctask.Manager, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{registry: registry, procs: procs, logger: logger}
}

// Run invokes the named tool with the given arguments. When the tool hands
// back a process-task handle the runner suspends on the task's completion
// signal and synthesizes a TaskCompletion value, so the caller never sees a
// bare handle.
func (r *Runner) Run(ctx context.Context, name string, args map[string]any, rc RunContext) any {
	tool, ok := r.registry.Resolve(name)
	if !ok {
		return &InvocationError{
			Kind:    KindNotFound,
			Tool:    name,
			Message: fmt.Sprintf("tool %q is not registered", name),
		}
	}

	args = r.injectContext(tool, args, rc)

	result, err := r.safeInvoke(ctx, tool, args)
	if err != nil {
		return r.wrapError(name, err)
	}

	if handle, ok := asHandle(result); ok {
		return r.awaitTask(ctx, name, handle)
	}
	return result
}

// injectContext merges session-derived arguments into args without
// overwriting caller-supplied values.
func (r *Runner) injectContext(tool Tool, args map[string]any, rc RunContext) map[string]any {
	scoped, ok := tool.(WorkdirScoped)
	if !ok || rc.ProjectSubdirectory == "" {
		return args
	}
	key := scoped.WorkdirArg()
	if _, present := args[key]; present {
		return args
	}

	merged := make(map[string]any, len(args)+1)
	for k, v := range args {
		merged[k] = v
	}
	merged[key] = rc.ProjectSubdirectory
	return merged
}

// safeInvoke calls the tool, recovering panics into errors.
func (r *Runner) safeInvoke(ctx context.Context, tool Tool, args map[string]any) (result any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = panicError{value: rec}
		}
	}()
	return tool.Invoke(ctx, args)
}

// awaitTask suspends on the process task's completion signal and synthesizes
// a terminal value describing the completion.
func (r *Runner) awaitTask(ctx context.Context, name string, handle proctask.Handle) any {
	start := time.Now()
	task, err := r.procs.WaitForCompletion(ctx, handle.TaskID)
	if err != nil {
		return &InvocationError{
			Kind:    KindGeneric,
			Tool:    name,
			Message: fmt.Sprintf("awaiting process task %s: %v", handle.TaskID, err),
		}
	}

	duration := time.Since(start)
	if !task.StartedAt.IsZero() {
		duration = time.Since(task.StartedAt)
	}
	return TaskCompletion{
		TaskID:   task.TaskID,
		ExitCode: task.ExitCode,
		Duration: duration,
	}
}

// wrapError converts an invocation error into the uniform failure value,
// preserving the original message and any structured detail payload.
func (r *Runner) wrapError(name string, err error) *InvocationError {
	var pe panicError
	if errors.As(err, &pe) {
		r.logger.Error("tool panicked", "tool", name, "panic", pe.value)
		return &InvocationError{
			Kind:    KindGeneric,
			Tool:    name,
			Message: fmt.Sprintf("panic: %v", pe.value),
		}
	}

	var details map[string]any
	var d Detailer
	if errors.As(err, &d) {
		details = d.Details()
	}

	kind := KindRaised
	if errors.Is(err, ErrTransport) {
		kind = KindTransport
	}
	return &InvocationError{
		Kind:    kind,
		Tool:    name,
		Message: err.Error(),
		Details: details,
	}
}

// asHandle detects a process-task handle result in value or pointer form.
func asHandle(result any) (proctask.Handle, bool) {
	switch h := result.(type) {
	case proctask.Handle:
		return h, true
	case *proctask.Handle:
		if h != nil {
			return *h, true
		}
	}
	return proctask.Handle{}, false
}

// panicError carries a recovered panic value through the error path.
type panicError struct {
	value any
}

func (e panicError) Error() string {
	return fmt.Sprintf("panic: %v", e.value)
}
