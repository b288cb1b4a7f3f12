package isolation

import (
	"context"
	"fmt"
	"os/exec"
	"sync"

	"github.com/mkoppen/subwarden/internal/logger"
)

// Prober checks that the isolation wrapper is present and answers a version
// probe. The result, success or failure, is cached for the life of the
// process. The wrapper is an argv prefix so a self-hosted shim mode of this
// binary can serve as the wrapper too.
type Prober struct {
	wrapper []string
	run     func(ctx context.Context, name string, args ...string) error

	mu      sync.Mutex
	checked bool
	err     error
}

// NewProber creates a prober for the given wrapper argv prefix
func NewProber(wrapper []string) *Prober {
	return &Prober{
		wrapper: wrapper,
		run: func(ctx context.Context, name string, args ...string) error {
			return exec.CommandContext(ctx, name, args...).Run()
		},
	}
}

// Check probes the wrapper once and caches the outcome. Returns nil when
// the wrapper is usable, an UnavailableError otherwise.
func (p *Prober) Check(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.checked {
		return p.err
	}
	p.checked = true

	if len(p.wrapper) == 0 {
		p.err = &UnavailableError{Reason: "no isolation wrapper configured; set sandbox.wrapperPath in settings"}
		return p.err
	}

	path, err := exec.LookPath(p.wrapper[0])
	if err != nil {
		p.err = &UnavailableError{Reason: fmt.Sprintf(
			"isolation wrapper %q not found on PATH; install it or set sandbox.wrapperPath", p.wrapper[0])}
		return p.err
	}

	args := append(append([]string{}, p.wrapper[1:]...), "--version")
	if err := p.run(ctx, path, args...); err != nil {
		p.err = &UnavailableError{Reason: fmt.Sprintf(
			"isolation wrapper %q failed its version probe: %v", path, err)}
		return p.err
	}

	logger.Debug("isolation wrapper %q probed successfully", path)
	return nil
}
