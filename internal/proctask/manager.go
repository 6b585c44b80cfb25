// Package proctask supervises long-running child processes (dev servers and
// similar): it spawns them on a pseudo-terminal, streams their output through
// a callback, and signals completion so callers can await it without polling.
package proctask

import (
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/creack/pty"
	"github.com/google/uuid"
)

// DefaultShutdownGrace is how long Shutdown waits after SIGTERM before
// escalating to SIGKILL.
const DefaultShutdownGrace = 5 * time.Second

const readBufferSize = 4096

// finishedRetentionLimit caps how many unconsumed completion snapshots are
// kept around for callers that never await their task.
const finishedRetentionLimit = 128

// Status represents the lifecycle state of a process task.
type Status string

const (
	// StatusRunning indicates the process is still alive.
	StatusRunning Status = "running"
	// StatusCompleted indicates the process exited with code zero.
	StatusCompleted Status = "completed"
	// StatusFailed indicates the process exited non-zero or failed to spawn.
	StatusFailed Status = "failed"
)

// Handle is what a tool returns instead of a terminal result when it has
// started a process task. The tool runner awaits the task before handing
// anything back to the orchestrator.
type Handle struct {
	// TaskID identifies the spawned task.
	TaskID string `json:"task_id"`
}

// Task is a snapshot of a process task's state.
type Task struct {
	// TaskID is the unique identifier assigned at spawn.
	TaskID string

	// Command is the spawned command and its arguments.
	Command []string

	// Cwd is the working directory the process runs in.
	Cwd string

	// Status is the current lifecycle state.
	Status Status

	// ExitCode is the process exit code, valid once the task is finished.
	// -1 when the process failed to spawn.
	ExitCode int

	// StartedAt is when the task was spawned.
	StartedAt time.Time
}

// OutputFunc receives chunks of process output as they become available.
type OutputFunc func(taskID, chunk string)

// CompleteFunc is invoked exactly once when the task finishes.
type CompleteFunc func(task Task)

// Manager owns the process-task registry. It is a process-wide shared
// resource: callbacks from multiple spawned processes and multiple session
// threads fire interleaved, so the registry and completion-signal map are
// guarded by a mutex. Construct one per runtime and pass it in explicitly.
type Manager struct {
	logger *slog.Logger
	grace  time.Duration

	mu            sync.Mutex
	tasks         map[string]*Task
	done          map[string]chan struct{}
	pids          map[string]int
	finished      map[string]Task
	finishedOrder []string

	wg sync.WaitGroup
}

// NewManager creates a process task manager. A nil logger uses slog.Default().
func NewManager(logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		logger:   logger,
		grace:    DefaultShutdownGrace,
		tasks:    make(map[string]*Task),
		done:     make(map[string]chan struct{}),
		pids:     make(map[string]int),
		finished: make(map[string]Task),
	}
}

// SetShutdownGrace sets how long Shutdown waits between SIGTERM and SIGKILL.
func (m *Manager) SetShutdownGrace(grace time.Duration) {
	if grace > 0 {
		m.grace = grace
	}
}

// Spawn starts command in cwd on a pseudo-terminal and begins streaming its
// output to onOutput from a background goroutine. On process exit — or on
// spawn failure, reported as an immediate failed completion with a
// diagnostic output line — onComplete fires and the completion signal is
// set, so callers awaiting the task never hang. Returns the task ID.
func (m *Manager) Spawn(command []string, cwd string, onOutput OutputFunc, onComplete CompleteFunc) string {
	taskID := uuid.NewString()

	task := &Task{
		TaskID:    taskID,
		Command:   append([]string{}, command...),
		Cwd:       cwd,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}

	m.mu.Lock()
	m.tasks[taskID] = task
	m.done[taskID] = make(chan struct{})
	m.mu.Unlock()

	m.wg.Add(1)
	go m.run(taskID, onOutput, onComplete)

	return taskID
}

// run starts the process and streams its output until exit.
func (m *Manager) run(taskID string, onOutput OutputFunc, onComplete CompleteFunc) {
	defer m.wg.Done()

	m.mu.Lock()
	task := m.tasks[taskID]
	m.mu.Unlock()

	if len(task.Command) == 0 {
		m.emitOutput(onOutput, taskID, "spawn failed: empty command\n")
		m.finalize(taskID, StatusFailed, -1, onComplete)
		return
	}

	cmd := exec.Command(task.Command[0], task.Command[1:]...)
	if task.Cwd != "" {
		cmd.Dir = task.Cwd
	}

	ptmx, err := pty.Start(cmd)
	if err != nil {
		m.logger.Warn("process task spawn failed",
			"task_id", taskID, "command", strings.Join(task.Command, " "), "error", err)
		m.emitOutput(onOutput, taskID, fmt.Sprintf("spawn failed: %v\n", err))
		m.finalize(taskID, StatusFailed, -1, onComplete)
		return
	}
	defer func() { _ = ptmx.Close() }()

	m.mu.Lock()
	m.pids[taskID] = cmd.Process.Pid
	m.mu.Unlock()

	// Stream until the pty closes. On Linux the read returns EIO once the
	// child side is gone; any read error ends the stream.
	buf := make([]byte, readBufferSize)
	for {
		n, readErr := ptmx.Read(buf)
		if n > 0 {
			m.emitOutput(onOutput, taskID, string(buf[:n]))
		}
		if readErr != nil {
			break
		}
	}

	exitCode := 0
	if waitErr := cmd.Wait(); waitErr != nil {
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		} else {
			exitCode = -1
		}
	}

	status := StatusCompleted
	if exitCode != 0 {
		status = StatusFailed
	}
	m.finalize(taskID, status, exitCode, onComplete)
}

// finalize records the terminal state, releases waiters, and removes the
// task from the registry.
func (m *Manager) finalize(taskID string, status Status, exitCode int, onComplete CompleteFunc) {
	m.mu.Lock()
	task := m.tasks[taskID]
	task.Status = status
	task.ExitCode = exitCode
	snapshot := *task
	ch := m.done[taskID]
	delete(m.tasks, taskID)
	delete(m.pids, taskID)
	delete(m.done, taskID)
	m.finished[taskID] = snapshot
	m.finishedOrder = append(m.finishedOrder, taskID)
	// Evict the oldest unconsumed snapshots; already-consumed IDs still in
	// the order list are skipped.
	for len(m.finished) > finishedRetentionLimit {
		oldest := m.finishedOrder[0]
		m.finishedOrder = m.finishedOrder[1:]
		delete(m.finished, oldest)
	}
	m.mu.Unlock()

	close(ch)

	m.logger.Debug("process task finished",
		"task_id", taskID, "status", string(status), "exit_code", exitCode)

	if onComplete != nil {
		onComplete(snapshot)
	}
}

func (m *Manager) emitOutput(onOutput OutputFunc, taskID, chunk string) {
	if onOutput != nil {
		onOutput(taskID, chunk)
	}
}

// WaitForCompletion suspends the caller until the task's completion signal
// fires, then returns the final task snapshot. Safe to call after the task
// has already completed: the snapshot is held until consumed, and a wholly
// unknown task ID is treated as already finished. Returns the context error
// if ctx ends first.
func (m *Manager) WaitForCompletion(ctx context.Context, taskID string) (Task, error) {
	m.mu.Lock()
	ch, waiting := m.done[taskID]
	m.mu.Unlock()

	if waiting {
		select {
		case <-ch:
		case <-ctx.Done():
			return Task{}, ctx.Err()
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if snapshot, ok := m.finished[taskID]; ok {
		delete(m.finished, taskID)
		return snapshot, nil
	}
	return Task{TaskID: taskID, Status: StatusCompleted}, nil
}

// Running returns snapshots of the tasks still in the registry.
func (m *Manager) Running() []Task {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Task, 0, len(m.tasks))
	for _, t := range m.tasks {
		out = append(out, *t)
	}
	return out
}

// Shutdown terminates any still-running process trees: SIGTERM to the
// process group, a bounded wait, then SIGKILL. It then waits for the
// streaming goroutines to drain, bounded by ctx.
func (m *Manager) Shutdown(ctx context.Context) {
	m.mu.Lock()
	type victim struct {
		taskID string
		pid    int
		done   chan struct{}
	}
	victims := make([]victim, 0, len(m.pids))
	for taskID, pid := range m.pids {
		victims = append(victims, victim{taskID: taskID, pid: pid, done: m.done[taskID]})
	}
	m.mu.Unlock()

	for _, v := range victims {
		// The child is a session leader (pty spawn), so signaling the
		// negative pid reaches its whole process group.
		_ = syscall.Kill(-v.pid, syscall.SIGTERM)
	}

	deadline := time.Now().Add(m.grace)
	for _, v := range victims {
		select {
		case <-v.done:
		case <-time.After(time.Until(deadline)):
			m.logger.Warn("process task did not exit in grace period, killing",
				"task_id", v.taskID, "pid", v.pid)
			_ = syscall.Kill(-v.pid, syscall.SIGKILL)
		case <-ctx.Done():
			_ = syscall.Kill(-v.pid, syscall.SIGKILL)
		}
	}

	drained := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
	case <-ctx.Done():
	}
}
