package isolation

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sync"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/mkoppen/subwarden/internal/consts"
	"github.com/mkoppen/subwarden/internal/logger"
)

type execResult struct {
	ExitCode  int
	Stdout    string
	Stderr    string
	Aborted   bool
	Truncated bool
}

// limitedBuffer caps captured output at max bytes and records truncation.
// Writes past the cap are accepted and discarded so the child never blocks.
type limitedBuffer struct {
	mu        sync.Mutex
	buf       bytes.Buffer
	max       int
	truncated bool
}

func newLimitedBuffer(max int) *limitedBuffer {
	return &limitedBuffer{max: max}
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := len(p)
	remaining := b.max - b.buf.Len()
	if remaining <= 0 {
		b.truncated = true
		return n, nil
	}
	if len(p) > remaining {
		p = p[:remaining]
		b.truncated = true
	}
	b.buf.Write(p)
	return n, nil
}

func (b *limitedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func (b *limitedBuffer) Truncated() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.truncated
}

// runProcess executes argv in its own process group so the whole group can
// be torn down on cancellation: SIGTERM first, SIGKILL after the grace
// period if the process lingers.
func runProcess(ctx context.Context, argv []string, dir string, maxOutput int) (*execResult, error) {
	if maxOutput <= 0 {
		maxOutput = consts.DefaultMaxOutputBytes
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	stdout := newLimitedBuffer(maxOutput)
	stderr := newLimitedBuffer(maxOutput)
	cmd.Stdout = stdout
	cmd.Stderr = stderr

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start command: %w", err)
	}

	pid := cmd.Process.Pid
	done := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			logger.Debug("cancelling process group %d", pid)
			_ = unix.Kill(-pid, unix.SIGTERM)
			select {
			case <-done:
			case <-time.After(consts.KillGracePeriod):
				logger.Warn("process group %d ignored SIGTERM, sending SIGKILL", pid)
				_ = unix.Kill(-pid, unix.SIGKILL)
			}
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)

	res := &execResult{
		Stdout:    stdout.String(),
		Stderr:    stderr.String(),
		Aborted:   ctx.Err() != nil,
		Truncated: stdout.Truncated() || stderr.Truncated(),
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(waitErr, &exitErr) {
			return nil, fmt.Errorf("command wait failed: %w", waitErr)
		}
		res.ExitCode = exitErr.ExitCode()
	}
	return res, nil
}
