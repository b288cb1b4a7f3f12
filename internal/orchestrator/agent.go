package orchestrator

import (
	"context"
	"sync"

	"github.com/mkoppen/subwarden/internal/policy"
)

// Agent is the handle for one live worker. Its status only ever moves
// forward: Pending, Running, then exactly one terminal state.
type Agent struct {
	ID     string
	Kind   string
	Depth  int
	Policy policy.Policy

	runCtx    context.Context
	runCancel context.CancelFunc

	mu            sync.Mutex
	status        Status
	queue         []string
	cancelCurrent context.CancelFunc
}

func newAgent(id, kind string, depth int, pol policy.Policy, initial string) *Agent {
	ctx, cancel := context.WithCancel(context.Background())
	return &Agent{
		ID:        id,
		Kind:      kind,
		Depth:     depth,
		Policy:    pol,
		runCtx:    ctx,
		runCancel: cancel,
		status:    Status{Kind: StatusPending},
		queue:     []string{initial},
	}
}

// Status returns a snapshot of the worker's current status
func (a *Agent) Status() Status {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.status
}

// setStatusLocked advances the status, silently dropping transitions out of
// a terminal state. Caller holds a.mu.
func (a *Agent) setStatusLocked(s Status) {
	if a.status.Kind.Terminal() {
		return
	}
	a.status = s
}

// enqueue delivers an instruction, optionally interrupting in-flight work.
// Fails once the worker has reached a terminal state.
func (a *Agent) enqueue(instruction string, interrupt bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.status.Kind.Terminal() {
		return &AlreadyShutdownError{ID: a.ID}
	}
	if interrupt && a.cancelCurrent != nil {
		a.cancelCurrent()
	}
	a.queue = append(a.queue, instruction)
	return nil
}

// shutdown cancels all in-flight work and marks the worker terminal
func (a *Agent) shutdown() {
	a.runCancel()
	a.mu.Lock()
	a.setStatusLocked(Status{Kind: StatusShutdown})
	a.mu.Unlock()
}
