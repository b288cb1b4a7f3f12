package orchestrator

import (
	"context"

	"github.com/mkoppen/subwarden/internal/isolation"
	"github.com/mkoppen/subwarden/internal/policy"
)

// Runner executes one instruction on behalf of a worker. The agent loop
// that interprets instructions (e.g. an LLM-driven loop) is supplied by the
// host; ShellRunner is the built-in runner for plain shell work.
type Runner interface {
	Run(ctx context.Context, instruction string, pol policy.Policy) (output string, err error)
}

// ShellRunner runs each instruction as a shell command under the worker's
// effective policy, through the isolation executor.
type ShellRunner struct {
	Executor *isolation.Executor
}

func (r *ShellRunner) Run(ctx context.Context, instruction string, pol policy.Policy) (string, error) {
	res, err := r.Executor.Run(ctx, instruction, pol, false)
	if err != nil {
		return "", err
	}
	return res.Stdout, nil
}

// RunnerFunc adapts a function to the Runner interface
type RunnerFunc func(ctx context.Context, instruction string, pol policy.Policy) (string, error)

func (f RunnerFunc) Run(ctx context.Context, instruction string, pol policy.Policy) (string, error) {
	return f(ctx, instruction, pol)
}
