// Package approval implements the serialized confirmation broker and the
// per-policy approval state machine for command execution.
package approval

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/mkoppen/subwarden/internal/consts"
	"github.com/mkoppen/subwarden/internal/logger"
)

// ConfirmFunc shows one confirmation dialog to the user and reports the
// answer. Implementations must honor ctx cancellation.
type ConfirmFunc func(ctx context.Context, title, message string) (bool, error)

// Request is one confirmation to present. A zero Timeout uses the default.
type Request struct {
	Title   string
	Message string
	Timeout time.Duration
}

type confirmResult struct {
	approved bool
	err      error
}

type confirmTask struct {
	ctx   context.Context
	req   Request
	reply chan confirmResult
}

// Broker serializes confirmations so the user is never shown two dialogs at
// once. Concurrent callers queue; each request is bounded by its timeout and
// a timeout counts as denial. A Broker built without a ConfirmFunc denies
// everything: that is the headless contract, not a soft default.
type Broker struct {
	confirm ConfirmFunc
	queue   chan confirmTask
	done    chan struct{}
	once    sync.Once
	log     *logger.Logger

	mu       sync.Mutex
	approved []string
}

// NewBroker creates a broker around the given confirmation dialog. Pass nil
// for headless operation.
func NewBroker(confirm ConfirmFunc) *Broker {
	b := &Broker{
		confirm: confirm,
		queue:   make(chan confirmTask, 16),
		done:    make(chan struct{}),
		log:     logger.Global().WithPrefix("approval"),
	}
	if confirm != nil {
		go b.loop()
	}
	return b
}

func (b *Broker) loop() {
	for {
		select {
		case task := <-b.queue:
			approved, err := b.ask(task.ctx, task.req)
			task.reply <- confirmResult{approved: approved, err: err}
		case <-b.done:
			return
		}
	}
}

func (b *Broker) ask(ctx context.Context, req Request) (bool, error) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = consts.DefaultApprovalTimeout
	}
	tctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ch := make(chan confirmResult, 1)
	go func() {
		approved, err := b.confirm(tctx, req.Title, req.Message)
		ch <- confirmResult{approved: approved, err: err}
	}()

	select {
	case r := <-ch:
		return r.approved, r.err
	case <-tctx.Done():
		if errors.Is(tctx.Err(), context.DeadlineExceeded) {
			b.log.Warn("confirmation %q timed out after %s, treating as denial", req.Title, timeout)
			return false, ErrTimedOut
		}
		return false, tctx.Err()
	}
}

// Confirm presents one confirmation, waiting behind any dialogs already in
// flight. Headless brokers deny immediately.
func (b *Broker) Confirm(ctx context.Context, req Request) (bool, error) {
	if b == nil || b.confirm == nil {
		return false, &DeniedError{Reason: headlessReason}
	}

	reply := make(chan confirmResult, 1)
	select {
	case b.queue <- confirmTask{ctx: ctx, req: req, reply: reply}:
	case <-ctx.Done():
		return false, ctx.Err()
	case <-b.done:
		return false, &DeniedError{Reason: "approval broker closed"}
	}

	select {
	case r := <-reply:
		return r.approved, r.err
	case <-b.done:
		return false, &DeniedError{Reason: "approval broker closed"}
	}
}

// RememberApproved records a command prefix as approved for the rest of the
// session. Subsequent commands matching the prefix skip the prompt.
func (b *Broker) RememberApproved(prefix string) {
	prefix = strings.TrimSpace(prefix)
	if b == nil || prefix == "" {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.approved {
		if p == prefix {
			return
		}
	}
	b.approved = append(b.approved, prefix)
	b.log.Debug("remembered approved prefix %q", prefix)
}

// IsRemembered reports whether the command matches a remembered prefix
func (b *Broker) IsRemembered(command string) bool {
	if b == nil {
		return false
	}
	command = strings.TrimSpace(command)
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, p := range b.approved {
		if strings.HasPrefix(command, p) {
			return true
		}
	}
	return false
}

// Close shuts the broker down; in-flight and queued confirmations are denied
func (b *Broker) Close() {
	b.once.Do(func() { close(b.done) })
}
