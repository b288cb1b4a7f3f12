// Package isolation turns an effective sandbox policy into a concretely
// restricted execution of one shell command, via an external wrapper
// executable or this binary's own shim mode.
package isolation

import (
	"context"

	"github.com/mkoppen/subwarden/internal/approval"
	"github.com/mkoppen/subwarden/internal/classify"
	"github.com/mkoppen/subwarden/internal/logger"
	"github.com/mkoppen/subwarden/internal/policy"
)

// Result is the outcome of one command execution
type Result struct {
	ExitCode       int
	Stdout         string
	Stderr         string
	Aborted        bool
	Sandboxed      bool
	Truncated      bool
	Invocation     []string
	HomeDir        string
	Classification classify.Classification
}

// Executor runs shell commands under an effective policy, consulting the
// approval broker before execution and, under the on-failure policy, after
// a classified sandbox failure.
type Executor struct {
	wrapper   []string
	prober    *Prober
	broker    *approval.Broker
	paths     Paths
	maxOutput int
	log       *logger.Logger
	run       func(ctx context.Context, argv []string, dir string, maxOutput int) (*execResult, error)
}

// NewExecutor creates an executor. Paths must already be resolved (see
// PrepareHome); wrapper is the isolation wrapper argv prefix.
func NewExecutor(wrapper []string, broker *approval.Broker, paths Paths) *Executor {
	return &Executor{
		wrapper: wrapper,
		prober:  NewProber(wrapper),
		broker:  broker,
		paths:   paths,
		log:     logger.Global().WithPrefix("isolation"),
		run:     runProcess,
	}
}

// SetMaxOutputBytes overrides the per-stream output capture limit
func (e *Executor) SetMaxOutputBytes(n int) {
	e.maxOutput = n
}

// CheckAvailable reports whether the isolation wrapper is usable
func (e *Executor) CheckAvailable(ctx context.Context) error {
	return e.prober.Check(ctx)
}

// Run executes one shell command under the policy. On a sandbox-caused
// failure under the on-failure approval policy, the broker is asked whether
// to retry once without the sandbox. A nonzero final exit code is returned
// as an ExecutionFailedError alongside the populated result.
func (e *Executor) Run(ctx context.Context, command string, pol policy.Policy, escalationRequested bool) (*Result, error) {
	decision, err := approval.CheckBashApproval(ctx, e.broker, pol.Approval, command, escalationRequested)
	if err != nil {
		return nil, err
	}
	if !decision.Approved {
		return nil, &approval.DeniedError{Reason: "command was not approved"}
	}

	sandboxed := !decision.RunUnsandboxed
	if sandboxed {
		if err := e.prober.Check(ctx); err != nil {
			return nil, err
		}
	}

	argv, raw, err := e.execute(ctx, command, pol, sandboxed)
	if err != nil {
		return nil, err
	}

	result := e.toResult(raw, argv, sandboxed)
	if raw.ExitCode == 0 || raw.Aborted {
		return result, nil
	}

	cls := classify.Classify(raw.Stderr + "\n" + raw.Stdout)
	result.Classification = cls

	if sandboxed && cls.SandboxCaused() && pol.Approval == policy.ApprovalOnFailure {
		e.log.Info("command failed under sandbox (%s/%s), asking to retry unsandboxed", cls.Kind, cls.Subtype)
		approved, aerr := approval.RequestApprovalAfterFailure(ctx, e.broker, command, raw.Stderr)
		if aerr != nil {
			e.log.Debug("retry approval not granted: %v", aerr)
		}
		if approved {
			return e.retryUnsandboxed(ctx, command, pol)
		}
	}

	return result, &ExecutionFailedError{ExitCode: raw.ExitCode, Classification: cls}
}

func (e *Executor) retryUnsandboxed(ctx context.Context, command string, pol policy.Policy) (*Result, error) {
	argv, raw, err := e.execute(ctx, command, pol, false)
	if err != nil {
		return nil, err
	}

	result := e.toResult(raw, argv, false)
	if raw.ExitCode == 0 || raw.Aborted {
		return result, nil
	}

	cls := classify.Classify(raw.Stderr + "\n" + raw.Stdout)
	result.Classification = cls
	return result, &ExecutionFailedError{ExitCode: raw.ExitCode, Classification: cls}
}

func (e *Executor) execute(ctx context.Context, command string, pol policy.Policy, sandboxed bool) ([]string, *execResult, error) {
	var argv []string
	if sandboxed {
		argv = BuildInvocation(e.wrapper, command, pol, e.paths)
	} else {
		argv = []string{"/bin/sh", "-c", command}
	}

	e.log.Debug("executing (sandboxed=%v): %v", sandboxed, argv)
	raw, err := e.run(ctx, argv, e.paths.Workspace, e.maxOutput)
	return argv, raw, err
}

func (e *Executor) toResult(raw *execResult, invocation []string, sandboxed bool) *Result {
	return &Result{
		ExitCode:   raw.ExitCode,
		Stdout:     raw.Stdout,
		Stderr:     raw.Stderr,
		Aborted:    raw.Aborted,
		Sandboxed:  sandboxed,
		Truncated:  raw.Truncated,
		Invocation: invocation,
		HomeDir:    e.paths.Home,
	}
}
