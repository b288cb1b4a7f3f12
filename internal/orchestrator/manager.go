// Package orchestrator owns the set of live workers and enforces the
// concurrency and depth budgets on spawning.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mkoppen/subwarden/internal/consts"
	"github.com/mkoppen/subwarden/internal/logger"
	"github.com/mkoppen/subwarden/internal/policy"
)

// SpawnRequest describes one worker to spawn. An empty ParentID spawns at
// the root session (depth 0), so the new worker runs at depth 1.
type SpawnRequest struct {
	Kind        string
	ParentID    string
	Instruction string
	Policy      policy.Request
}

// AgentInfo is one row of a List snapshot
type AgentInfo struct {
	ID     string
	Kind   string
	Depth  int
	Status Status
}

// WaitResult is the outcome of a blocking wait
type WaitResult struct {
	Statuses    map[string]Status
	TimedOut    bool
	Interrupted bool
}

// StreamUpdate is one emission of a streaming wait. Final marks the last
// update before the stream closes.
type StreamUpdate struct {
	Statuses    map[string]Status
	TimedOut    bool
	Interrupted bool
	Final       bool
}

// Metrics are session-lifetime counters
type Metrics struct {
	Spawned   int
	Completed int
	Failed    int
	Closed    int
}

// Options configures a Manager. Zero values take the defaults.
type Options struct {
	MaxWorkers int
	MaxDepth   int
	RootPolicy policy.Policy
	Runner     Runner
}

// Manager is the orchestrator. A single mutex guards the live registry and
// the finished records, so the limit check and the registration of a new
// worker are one atomic step. Workers that reach a terminal state are reaped
// from the registry; their final status stays queryable through a capped
// record so the registry never grows with session age.
type Manager struct {
	mu       sync.Mutex
	agents   map[string]*Agent
	finished map[string]Status
	finOrder []string
	metrics  Metrics

	maxWorkers  int
	maxDepth    int
	maxFinished int
	rootPolicy  policy.Policy
	runner      Runner
	log         *logger.Logger

	changeMu sync.Mutex
	changed  chan struct{}
}

// NewManager creates an orchestrator with the given options
func NewManager(opts Options) *Manager {
	if opts.MaxWorkers <= 0 {
		opts.MaxWorkers = consts.DefaultMaxWorkers
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = consts.DefaultMaxDepth
	}
	return &Manager{
		agents:      make(map[string]*Agent),
		finished:    make(map[string]Status),
		maxWorkers:  opts.MaxWorkers,
		maxDepth:    opts.MaxDepth,
		maxFinished: consts.MaxFinishedRecords,
		rootPolicy:  opts.RootPolicy,
		runner:      opts.Runner,
		log:         logger.Global().WithPrefix("orchestrator"),
		changed:     make(chan struct{}),
	}
}

// notify wakes every waiter observing status changes
func (m *Manager) notify() {
	m.changeMu.Lock()
	close(m.changed)
	m.changed = make(chan struct{})
	m.changeMu.Unlock()
}

func (m *Manager) changeCh() <-chan struct{} {
	m.changeMu.Lock()
	defer m.changeMu.Unlock()
	return m.changed
}

// Spawn registers and starts a new worker, returning its id immediately.
// The requested policy is clamped against the parent's effective policy so
// a child can never be more permissive than its parent.
func (m *Manager) Spawn(req SpawnRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	live := 0
	for _, a := range m.agents {
		if !a.Status().Kind.Terminal() {
			live++
		}
	}
	if live >= m.maxWorkers {
		return "", &LimitReachedError{Max: m.maxWorkers}
	}

	parentDepth := 0
	parentPolicy := m.rootPolicy
	if req.ParentID != "" {
		parent, ok := m.agents[req.ParentID]
		if !ok {
			return "", &NotFoundError{ID: req.ParentID}
		}
		parentDepth = parent.Depth
		parentPolicy = parent.Policy
	}

	depth := parentDepth + 1
	if depth > m.maxDepth {
		return "", &DepthExceededError{Depth: depth, Max: m.maxDepth}
	}

	eff := policy.Clamp(parentPolicy, req.Policy)
	id := uuid.NewString()
	agent := newAgent(id, req.Kind, depth, eff, req.Instruction)

	m.agents[id] = agent
	m.metrics.Spawned++

	m.log.Info("spawned worker %s kind=%s depth=%d fs=%s net=%s approval=%s",
		id, req.Kind, depth, eff.Filesystem, eff.Network, eff.Approval)

	go m.runAgent(agent)
	return id, nil
}

// runAgent drives one worker's lifecycle. A panic anywhere in the execution
// path tears down the whole registry so no Wait caller hangs forever.
func (m *Manager) runAgent(a *Agent) {
	defer func() {
		if r := recover(); r != nil {
			m.log.Error("worker %s panicked: %v; closing all workers", a.ID, r)
			m.CloseAll()
		}
	}()

	for {
		a.mu.Lock()
		if a.status.Kind.Terminal() {
			a.mu.Unlock()
			return
		}
		if len(a.queue) == 0 {
			final := Status{Kind: StatusCompleted, Message: a.status.Message}
			a.setStatusLocked(final)
			a.mu.Unlock()
			m.reap(a.ID, final)
			return
		}
		instruction := a.queue[0]
		a.queue = a.queue[1:]
		a.setStatusLocked(Status{Kind: StatusRunning})
		ictx, cancel := context.WithCancel(a.runCtx)
		a.cancelCurrent = cancel
		a.mu.Unlock()
		m.notify()

		output, err := m.runner.Run(ictx, instruction, a.Policy)
		interrupted := ictx.Err() != nil
		cancel()

		if a.runCtx.Err() != nil {
			// The worker was closed; its status is already Shutdown.
			return
		}
		if err != nil && !interrupted {
			final := Status{Kind: StatusFailed, Message: err.Error()}
			a.mu.Lock()
			a.setStatusLocked(final)
			a.mu.Unlock()
			m.reap(a.ID, final)
			return
		}
		if err == nil {
			a.mu.Lock()
			// Keep the latest output as the eventual completion message.
			a.status.Message = output
			a.mu.Unlock()
		}
	}
}

// recordFinalLocked moves id from the live registry to the finished records.
// Retention is capped; the oldest records are evicted first. Caller holds
// m.mu.
func (m *Manager) recordFinalLocked(id string, final Status) {
	delete(m.agents, id)
	if _, dup := m.finished[id]; !dup {
		m.finOrder = append(m.finOrder, id)
	}
	m.finished[id] = final
	for len(m.finOrder) > m.maxFinished {
		delete(m.finished, m.finOrder[0])
		m.finOrder = m.finOrder[1:]
	}
}

// reap retires a worker that reached a terminal state on its own
func (m *Manager) reap(id string, final Status) {
	m.mu.Lock()
	m.recordFinalLocked(id, final)
	switch final.Kind {
	case StatusCompleted:
		m.metrics.Completed++
	case StatusFailed:
		m.metrics.Failed++
	}
	m.mu.Unlock()
	m.notify()
}

// Send delivers an additional instruction to a worker. With interrupt set,
// in-flight work is cancelled first.
func (m *Manager) Send(id, instruction string, interrupt bool) error {
	m.mu.Lock()
	agent, ok := m.agents[id]
	_, reaped := m.finished[id]
	m.mu.Unlock()
	if !ok {
		if reaped {
			return &AlreadyShutdownError{ID: id}
		}
		return &NotFoundError{ID: id}
	}
	return agent.enqueue(instruction, interrupt)
}

// Close forcibly terminates a worker and removes it from the registry
func (m *Manager) Close(id string) error {
	m.mu.Lock()
	agent, ok := m.agents[id]
	_, reaped := m.finished[id]
	if ok {
		m.recordFinalLocked(id, Status{Kind: StatusShutdown})
		m.metrics.Closed++
	}
	m.mu.Unlock()
	if !ok {
		if reaped {
			return &AlreadyShutdownError{ID: id}
		}
		return &NotFoundError{ID: id}
	}

	agent.shutdown()
	m.log.Info("closed worker %s", id)
	m.notify()
	return nil
}

// CloseAll forcibly terminates every worker. This is the last-resort
// recovery path: it guarantees no Wait caller stays blocked.
func (m *Manager) CloseAll() {
	m.mu.Lock()
	agents := make([]*Agent, 0, len(m.agents))
	for _, a := range m.agents {
		agents = append(agents, a)
	}
	for _, a := range agents {
		m.recordFinalLocked(a.ID, Status{Kind: StatusShutdown})
	}
	m.metrics.Closed += len(agents)
	m.mu.Unlock()

	for _, a := range agents {
		a.shutdown()
	}
	if len(agents) > 0 {
		m.log.Warn("closed all %d workers", len(agents))
	}
	m.notify()
}

// List returns a snapshot of all live workers
func (m *Manager) List() []AgentInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]AgentInfo, 0, len(m.agents))
	for _, a := range m.agents {
		out = append(out, AgentInfo{ID: a.ID, Kind: a.Kind, Depth: a.Depth, Status: a.Status()})
	}
	return out
}

// Metrics returns the session-lifetime counters
func (m *Manager) Metrics() Metrics {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.metrics
}

// snapshot reports the status of each id. Reaped workers report their
// retained final status; ids never registered or evicted from retention are
// reported as Shutdown, which is terminal, so waits on them return instead
// of hanging.
func (m *Manager) snapshot(ids []string) map[string]Status {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make(map[string]Status, len(ids))
	for _, id := range ids {
		if a, ok := m.agents[id]; ok {
			out[id] = a.Status()
		} else if s, ok := m.finished[id]; ok {
			out[id] = s
		} else {
			out[id] = Status{Kind: StatusShutdown}
		}
	}
	return out
}

func (m *Manager) liveIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]string, 0, len(m.agents))
	for id := range m.agents {
		out = append(out, id)
	}
	return out
}

func allTerminal(statuses map[string]Status) bool {
	for _, s := range statuses {
		if !s.Kind.Terminal() {
			return false
		}
	}
	return true
}

// Wait blocks until every named worker reaches a terminal state, the
// timeout elapses, or ctx is cancelled. With no ids it waits on all workers
// live at call time. An already-expired timeout returns immediately with
// the last known statuses and TimedOut set.
func (m *Manager) Wait(ctx context.Context, ids []string, timeout time.Duration) WaitResult {
	if len(ids) == 0 {
		ids = m.liveIDs()
	}
	if timeout > consts.MaxWaitTimeout {
		timeout = consts.MaxWaitTimeout
	}

	if timeout <= 0 {
		return WaitResult{Statuses: m.snapshot(ids), TimedOut: true}
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()

	for {
		changed := m.changeCh()
		statuses := m.snapshot(ids)
		if allTerminal(statuses) {
			return WaitResult{Statuses: statuses}
		}

		select {
		case <-changed:
		case <-deadline.C:
			return WaitResult{Statuses: m.snapshot(ids), TimedOut: true}
		case <-ctx.Done():
			return WaitResult{Statuses: statuses, Interrupted: true}
		}
	}
}

// WaitStream emits a status snapshot on every poll tick until all named
// workers are terminal, the timeout elapses, or ctx is cancelled. The last
// update is marked Final and carries the TimedOut/Interrupted annotation;
// the channel closes after it.
func (m *Manager) WaitStream(ctx context.Context, ids []string, timeout, interval time.Duration) <-chan StreamUpdate {
	if len(ids) == 0 {
		ids = m.liveIDs()
	}
	if timeout > consts.MaxWaitTimeout {
		timeout = consts.MaxWaitTimeout
	}
	if interval <= 0 {
		interval = consts.WaitPollInterval
	}
	if interval < consts.MinWaitPollInterval {
		interval = consts.MinWaitPollInterval
	}

	updates := make(chan StreamUpdate, 1)
	go func() {
		defer close(updates)

		deadline := time.NewTimer(timeout)
		defer deadline.Stop()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()

		if timeout <= 0 {
			updates <- StreamUpdate{Statuses: m.snapshot(ids), TimedOut: true, Final: true}
			return
		}

		for {
			statuses := m.snapshot(ids)
			if allTerminal(statuses) {
				updates <- StreamUpdate{Statuses: statuses, Final: true}
				return
			}

			select {
			case <-ticker.C:
				updates <- StreamUpdate{Statuses: statuses}
			case <-deadline.C:
				updates <- StreamUpdate{Statuses: m.snapshot(ids), TimedOut: true, Final: true}
				return
			case <-ctx.Done():
				updates <- StreamUpdate{Statuses: statuses, Interrupted: true, Final: true}
				return
			}
		}
	}()
	return updates
}
