package approval

import (
	"context"
	"fmt"
	"unicode/utf8"

	"github.com/charmbracelet/x/ansi"
	"github.com/mkoppen/subwarden/internal/consts"
	"github.com/mkoppen/subwarden/internal/policy"
)

// Decision is the outcome of the pre-execution approval check
type Decision struct {
	Approved       bool
	RunUnsandboxed bool
}

// CheckBashApproval applies the per-policy approval state machine to one
// command before execution.
//
//   - Never: approved, sandboxed, the broker is never consulted.
//   - OnFailure: approved, sandboxed; escalation happens only after a
//     classified sandbox failure via RequestApprovalAfterFailure.
//   - OnRequest: approved and sandboxed unless the caller signals an
//     escalation request, in which case the broker decides whether the
//     command may run unsandboxed. A denied or timed-out escalation falls
//     back to sandboxed execution.
//   - UnlessTrusted: commands matching the known-safe grammar run without
//     prompting; everything else needs the broker's approval to run at all.
//
// Unknown policy values are an error, never a silent fallback.
func CheckBashApproval(ctx context.Context, b *Broker, pol policy.ApprovalPolicy, command string, escalationRequested bool) (Decision, error) {
	switch pol {
	case policy.ApprovalNever, policy.ApprovalOnFailure:
		return Decision{Approved: true, RunUnsandboxed: false}, nil

	case policy.ApprovalOnRequest:
		if !escalationRequested {
			return Decision{Approved: true, RunUnsandboxed: false}, nil
		}
		if b.IsRemembered(command) {
			return Decision{Approved: true, RunUnsandboxed: true}, nil
		}
		approved, err := b.Confirm(ctx, Request{
			Title:   "Escalation requested",
			Message: fmt.Sprintf("Allow this command to run without the sandbox?\n\n  %s", displayCommand(command)),
		})
		if err != nil || !approved {
			// Escalation denied; the command still runs sandboxed.
			return Decision{Approved: true, RunUnsandboxed: false}, nil
		}
		return Decision{Approved: true, RunUnsandboxed: true}, nil

	case policy.ApprovalUnlessTrusted:
		if IsTrusted(command) {
			return Decision{Approved: true, RunUnsandboxed: false}, nil
		}
		if b.IsRemembered(command) {
			return Decision{Approved: true, RunUnsandboxed: false}, nil
		}
		approved, err := b.Confirm(ctx, Request{
			Title:   "Command approval",
			Message: fmt.Sprintf("Allow this command to run?\n\n  %s", displayCommand(command)),
		})
		if err != nil {
			return Decision{}, err
		}
		if !approved {
			return Decision{}, &DeniedError{Reason: "command was not approved"}
		}
		return Decision{Approved: true, RunUnsandboxed: false}, nil

	default:
		return Decision{}, &policy.InvalidError{Field: "approvalPolicy", Value: pol.String()}
	}
}

// RequestApprovalAfterFailure asks whether a command that failed under
// sandbox restriction may be retried without the sandbox. Command and error
// text are ANSI-stripped and truncated before display.
func RequestApprovalAfterFailure(ctx context.Context, b *Broker, command, errText string) (bool, error) {
	if b.IsRemembered(command) {
		return true, nil
	}
	return b.Confirm(ctx, Request{
		Title: "Sandbox blocked a command",
		Message: fmt.Sprintf("The sandbox blocked this command:\n\n  %s\n\n%s\n\nRetry without the sandbox?",
			displayCommand(command), displayError(errText)),
	})
}

func displayCommand(command string) string {
	return truncate(ansi.Strip(command), consts.MaxPromptCommandLength)
}

func displayError(errText string) string {
	return truncate(ansi.Strip(errText), consts.MaxPromptErrorLength)
}

// truncate caps s at max bytes, backing off to a rune boundary so the
// displayed text stays valid UTF-8.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}
