// Package fixcycle tracks the bounded fix-and-verify cycle for a previously
// failing tool call. The tracker is a pure state machine: it performs no I/O
// and its state round-trips losslessly through a serializable form at every
// orchestrator step boundary.
package fixcycle

// DefaultMaxAttempts is the fix-attempt ceiling applied when a cycle starts.
const DefaultMaxAttempts = 3

// FailingToolRun captures the tool call whose failure started the cycle.
// It is re-run verbatim during verification.
type FailingToolRun struct {
	// Name is the tool name of the failing call.
	Name string `json:"name"`

	// Args are the original call arguments.
	Args map[string]any `json:"args,omitempty"`

	// ID is the tool call ID of the failing call.
	ID string `json:"id"`

	// LastOutput is the classified output of the failing invocation.
	LastOutput string `json:"last_output,omitempty"`
}

// State is the serializable form of the tracker.
//
// Invariants: when IsActive is false, FailingToolRun is nil, AttemptsCount is
// zero and NeedsVerification is false. When IsActive is true, FailingToolRun
// is non-nil. NeedsVerification implies IsActive.
type State struct {
	// IsActive is true while a fix cycle is in progress.
	IsActive bool `json:"is_active"`

	// FailingToolRun is the original failing call, nil when inactive.
	FailingToolRun *FailingToolRun `json:"failing_tool_run,omitempty"`

	// AttemptsCount is the number of fix attempts made in this cycle.
	AttemptsCount int `json:"attempts_count"`

	// MaxAttempts is the attempt ceiling set when the cycle started.
	MaxAttempts int `json:"max_attempts"`

	// NeedsVerification is true when a fix was applied and the original call
	// must be re-run to confirm the problem is resolved.
	NeedsVerification bool `json:"needs_verification"`

	// VerificationHistory records the outcome of each verification run.
	VerificationHistory []bool `json:"verification_history,omitempty"`
}

// Tracker is the fix-cycle state machine. One instance exists per
// conversation thread; it is rebuilt from State at each step boundary.
type Tracker struct {
	state State
}

// NewTracker creates a tracker in the inactive default state.
func NewTracker() *Tracker {
	return &Tracker{state: defaultState()}
}

// FromState rebuilds a tracker from a serialized state. A nil state yields
// the defaults; missing fields in a partial state are filled with their
// documented defaults.
func FromState(s *State) *Tracker {
	if s == nil {
		return NewTracker()
	}
	st := cloneState(*s)
	if st.MaxAttempts <= 0 {
		st.MaxAttempts = DefaultMaxAttempts
	}
	if st.VerificationHistory == nil {
		st.VerificationHistory = []bool{}
	}
	if !st.IsActive || st.FailingToolRun == nil {
		// Re-establish the inactive invariant for partial input. An active
		// state without its failing call is unusable: nothing could be
		// verified, so it heals to inactive as well.
		st.IsActive = false
		st.FailingToolRun = nil
		st.AttemptsCount = 0
		st.NeedsVerification = false
	}
	return &Tracker{state: st}
}

// ToState returns a copy of the tracker state for persistence.
func (t *Tracker) ToState() State {
	return cloneState(t.state)
}

// RecordToolRun records the outcome of an ordinary tool invocation. A failed
// run starts a new fix cycle with the attempt counter reset. A successful run
// is a no-op: only a successful verification clears an active cycle.
func (t *Tracker) RecordToolRun(name string, args map[string]any, callID string, succeeded bool, output string) {
	if succeeded {
		return
	}
	t.state = defaultState()
	t.state.IsActive = true
	t.state.FailingToolRun = &FailingToolRun{
		Name:       name,
		Args:       cloneArgs(args),
		ID:         callID,
		LastOutput: output,
	}
}

// RecordFixAttempt records one corrective action taken against the failing
// call. The applied flag reflects only whether the fix action itself
// completed without error (e.g. the patch applied) — whether the underlying
// problem is resolved is decided later by RecordVerificationResult. No-op
// when no cycle is active.
func (t *Tracker) RecordFixAttempt(applied bool) {
	if !t.state.IsActive {
		return
	}
	t.state.AttemptsCount++
	t.state.NeedsVerification = applied
}

// ToolToVerify returns the original failing call when a verification run is
// due, nil otherwise.
func (t *Tracker) ToolToVerify() *FailingToolRun {
	if !t.state.IsActive || !t.state.NeedsVerification {
		return nil
	}
	run := *t.state.FailingToolRun
	run.Args = cloneArgs(run.Args)
	return &run
}

// RecordVerificationResult records the outcome of re-running the original
// failing call. Success resolves the cycle and resets the state to defaults;
// failure clears only the verification flag, leaving the cycle active to
// await another fix attempt. No-op unless a verification run was due.
func (t *Tracker) RecordVerificationResult(succeeded bool) {
	if !t.state.IsActive || !t.state.NeedsVerification {
		return
	}
	t.state.VerificationHistory = append(t.state.VerificationHistory, succeeded)
	if succeeded {
		t.state = defaultState()
		return
	}
	t.state.NeedsVerification = false
}

// HasReachedMaxAttempts reports whether the attempt budget is exhausted.
// A positive override replaces the cycle's own ceiling; pass 0 to use it.
// Always false while no cycle is active.
func (t *Tracker) HasReachedMaxAttempts(override int) bool {
	if !t.state.IsActive {
		return false
	}
	limit := t.state.MaxAttempts
	if override > 0 {
		limit = override
	}
	return t.state.AttemptsCount >= limit
}

// IsActive returns true while a fix cycle is in progress.
func (t *Tracker) IsActive() bool {
	return t.state.IsActive
}

// NeedsVerification returns true when the original call must be re-run.
func (t *Tracker) NeedsVerification() bool {
	return t.state.NeedsVerification
}

// Attempts returns the number of fix attempts made in the current cycle.
func (t *Tracker) Attempts() int {
	return t.state.AttemptsCount
}

func defaultState() State {
	return State{
		MaxAttempts:         DefaultMaxAttempts,
		VerificationHistory: []bool{},
	}
}

func cloneState(s State) State {
	out := s
	if s.FailingToolRun != nil {
		run := *s.FailingToolRun
		run.Args = cloneArgs(run.Args)
		out.FailingToolRun = &run
	}
	if s.VerificationHistory != nil {
		out.VerificationHistory = append([]bool{}, s.VerificationHistory...)
	}
	return out
}

func cloneArgs(args map[string]any) map[string]any {
	if args == nil {
		return nil
	}
	out := make(map[string]any, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}
