package pagination

import (
	"sync"
	"time"

	"github.com/tonemesh/backend/internal/logger"
	"go.uber.org/zap"
)

// LoadState is the Load-More control's lifecycle state
type LoadState string

const (
	StateIdle    LoadState = "idle"
	StateLoading LoadState = "loading"
	StateSuccess LoadState = "success"
	StateError   LoadState = "error"
)

// StateListener observes machine transitions. The error is non-nil only for
// StateError.
type StateListener func(state LoadState, err error)

// Machine is the finite state machine gating the Load-More control:
// idle -> loading -> success|error -> idle. At most one loading is in
// flight; a second Trigger while loading is a no-op. After success or error
// the machine settles back to idle automatically, so the next Trigger works
// without a manual reset.
//
// Listeners run synchronously on the transitioning goroutine and must not
// call back into the machine.
type Machine struct {
	mu sync.Mutex

	state       LoadState
	lastErr     error
	lastOutcome LoadState // last settled outcome (success or error)

	// Watchdog fails a loading cycle the collaborator never settles
	timeout  time.Duration
	watchdog *time.Timer
	gen      uint64 // invalidates stale watchdog fires

	listeners []StateListener
}

// NewMachine creates a state machine. A timeout of zero disables the fetch
// watchdog.
func NewMachine(timeout time.Duration) *Machine {
	return &Machine{
		state:   StateIdle,
		timeout: timeout,
	}
}

// OnTransition registers a transition listener
func (sm *Machine) OnTransition(l StateListener) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	sm.listeners = append(sm.listeners, l)
}

// Trigger attempts the idle -> loading transition. It returns false while a
// load is already in flight; the caller must treat that as a benign no-op.
func (sm *Machine) Trigger() bool {
	_, ok := sm.TriggerCycle()
	return ok
}

// TriggerCycle is Trigger returning the cycle token identifying the load it
// started. A later SettleCycle with that token settles only this cycle, so
// a fetch that outlives the watchdog (or loses to a retry) cannot settle a
// newer one.
func (sm *Machine) TriggerCycle() (uint64, bool) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state == StateLoading {
		return 0, false
	}

	sm.state = StateLoading
	sm.lastErr = nil
	sm.gen++

	if sm.timeout > 0 {
		gen := sm.gen
		sm.watchdog = time.AfterFunc(sm.timeout, func() {
			sm.failFromWatchdog(gen)
		})
	}

	sm.notifyLocked(StateLoading, nil)
	return sm.gen, true
}

// Succeed settles loading -> success and auto-returns to idle
func (sm *Machine) Succeed() {
	sm.settle(nil)
}

// Fail settles loading -> error and auto-returns to idle, capturing the
// error detail
func (sm *Machine) Fail(err error) {
	sm.settle(err)
}

// SettleCycle settles the cycle identified by token. It returns false and
// does nothing when that cycle is no longer the one in flight — the
// watchdog already failed it, or a retry started a new cycle. Callers must
// not mutate pagination state after a false return.
func (sm *Machine) SettleCycle(token uint64, err error) bool {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	if sm.state != StateLoading || sm.gen != token {
		return false
	}
	sm.settleLocked(err)
	return true
}

// Current returns the machine's state
func (sm *Machine) Current() LoadState {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.state
}

// IsLoading reports whether a load is in flight
func (sm *Machine) IsLoading() bool {
	return sm.Current() == StateLoading
}

// LastOutcome returns the last settled outcome and its error, if any
func (sm *Machine) LastOutcome() (LoadState, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()
	return sm.lastOutcome, sm.lastErr
}

func (sm *Machine) settle(err error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// Ignore settles that lost the race with the watchdog (or vice versa)
	if sm.state != StateLoading {
		return
	}
	sm.settleLocked(err)
}

func (sm *Machine) settleLocked(err error) {
	sm.gen++
	if sm.watchdog != nil {
		sm.watchdog.Stop()
		sm.watchdog = nil
	}

	outcome := StateSuccess
	if err != nil {
		outcome = StateError
		sm.lastErr = err
	}

	sm.state = outcome
	sm.lastOutcome = outcome
	sm.notifyLocked(outcome, err)

	// Automatic settle back to idle, after listeners saw the outcome
	sm.state = StateIdle
	sm.notifyLocked(StateIdle, nil)
}

func (sm *Machine) failFromWatchdog(gen uint64) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	// The gen check keeps a stale timer from failing a newer cycle
	if sm.gen != gen || sm.state != StateLoading {
		return
	}

	logger.Warn("Load more fetch watchdog fired",
		zap.Duration("timeout", sm.timeout),
	)
	sm.settleLocked(ErrFetchTimeout)
}

func (sm *Machine) notifyLocked(state LoadState, err error) {
	for _, l := range sm.listeners {
		l(state, err)
	}
}
