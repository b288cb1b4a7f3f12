// Package policy defines the sandbox policy value types and the clamping
// lattice that keeps every child policy at most as permissive as its parent.
package policy

import (
	"sort"
	"strings"

	"github.com/mkoppen/subwarden/internal/consts"
)

// FilesystemMode controls which parts of the filesystem a command may write
type FilesystemMode int

const (
	// FilesystemReadOnly allows writes only to a system temp directory
	FilesystemReadOnly FilesystemMode = iota
	// FilesystemWorkspaceWrite allows writes to the workspace root and temp
	FilesystemWorkspaceWrite
	// FilesystemFullAccess allows writes anywhere
	FilesystemFullAccess
)

// Rank returns the permissiveness rank used for clamping
func (m FilesystemMode) Rank() int { return int(m) }

func (m FilesystemMode) String() string {
	switch m {
	case FilesystemReadOnly:
		return "read-only"
	case FilesystemWorkspaceWrite:
		return "workspace-write"
	case FilesystemFullAccess:
		return "full-access"
	default:
		return "unknown"
	}
}

// ParseFilesystemMode parses a config string into a FilesystemMode
func ParseFilesystemMode(s string) (FilesystemMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "read-only", "readonly":
		return FilesystemReadOnly, nil
	case "workspace-write", "workspace":
		return FilesystemWorkspaceWrite, nil
	case "full-access", "full":
		return FilesystemFullAccess, nil
	default:
		return FilesystemReadOnly, &InvalidError{Field: "filesystemMode", Value: s}
	}
}

// NetworkMode controls which network destinations a command may reach
type NetworkMode int

const (
	// NetworkDeny blocks all network access
	NetworkDeny NetworkMode = iota
	// NetworkAllowlist allows only the domains on the policy's allowlist
	NetworkAllowlist
	// NetworkAllowAll applies no network restriction
	NetworkAllowAll
)

// Rank returns the permissiveness rank used for clamping
func (m NetworkMode) Rank() int { return int(m) }

func (m NetworkMode) String() string {
	switch m {
	case NetworkDeny:
		return "deny"
	case NetworkAllowlist:
		return "allowlist"
	case NetworkAllowAll:
		return "allow-all"
	default:
		return "unknown"
	}
}

// ParseNetworkMode parses a config string into a NetworkMode
func ParseNetworkMode(s string) (NetworkMode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "deny", "none":
		return NetworkDeny, nil
	case "allowlist":
		return NetworkAllowlist, nil
	case "allow-all", "all":
		return NetworkAllowAll, nil
	default:
		return NetworkDeny, &InvalidError{Field: "networkMode", Value: s}
	}
}

// ApprovalPolicy controls when command execution prompts for confirmation.
//
// The rank order is deliberate and not alphabetical: UnlessTrusted is the
// strictest automatic behavior and OnFailure the most interactive one.
// UnlessTrusted(0) < Never(1) < OnRequest(2) < OnFailure(3).
type ApprovalPolicy int

const (
	// ApprovalUnlessTrusted auto-approves only commands matching a known-safe grammar
	ApprovalUnlessTrusted ApprovalPolicy = iota
	// ApprovalNever approves everything sandboxed and never prompts
	ApprovalNever
	// ApprovalOnRequest prompts only when the caller explicitly requests escalation
	ApprovalOnRequest
	// ApprovalOnFailure prompts to retry unsandboxed after a sandbox-caused failure
	ApprovalOnFailure
)

// Rank returns the permissiveness rank used for clamping
func (p ApprovalPolicy) Rank() int { return int(p) }

func (p ApprovalPolicy) String() string {
	switch p {
	case ApprovalUnlessTrusted:
		return "unless-trusted"
	case ApprovalNever:
		return "never"
	case ApprovalOnRequest:
		return "on-request"
	case ApprovalOnFailure:
		return "on-failure"
	default:
		return "unknown"
	}
}

// ParseApprovalPolicy parses a config string into an ApprovalPolicy
func ParseApprovalPolicy(s string) (ApprovalPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "unless-trusted", "untrusted":
		return ApprovalUnlessTrusted, nil
	case "never":
		return ApprovalNever, nil
	case "on-request":
		return ApprovalOnRequest, nil
	case "on-failure":
		return ApprovalOnFailure, nil
	default:
		return ApprovalUnlessTrusted, &InvalidError{Field: "approvalPolicy", Value: s}
	}
}

// Policy is an effective sandbox policy. Immutable once computed by Clamp.
type Policy struct {
	Filesystem       FilesystemMode
	Network          NetworkMode
	NetworkAllowlist []string
	Approval         ApprovalPolicy
	ApprovalTimeout  uint // seconds
}

// Request is a child's requested policy. Nil fields default to the parent's
// value during clamping. A nil NetworkAllowlist means "inherit"; an explicit
// empty slice means "block everything" under allowlist mode.
type Request struct {
	Filesystem       *FilesystemMode
	Network          *NetworkMode
	NetworkAllowlist []string
	Approval         *ApprovalPolicy
	ApprovalTimeout  *uint
}

// Default returns the root policy all clamping starts from
func Default() Policy {
	return Policy{
		Filesystem:       FilesystemWorkspaceWrite,
		Network:          NetworkAllowlist,
		NetworkAllowlist: nil,
		Approval:         ApprovalOnFailure,
		ApprovalTimeout:  uint(consts.DefaultApprovalTimeout.Seconds()),
	}
}

// NormalizeAllowlist trims whitespace, drops empties, dedupes, and sorts
func NormalizeAllowlist(domains []string) []string {
	if len(domains) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(domains))
	out := make([]string, 0, len(domains))
	for _, d := range domains {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		if _, ok := seen[d]; ok {
			continue
		}
		seen[d] = struct{}{}
		out = append(out, d)
	}
	if len(out) == 0 {
		return nil
	}
	sort.Strings(out)
	return out
}

// Clamp computes the effective policy for a child: each field is the less
// permissive of the parent's value and the requested value, and the network
// allowlist can never widen beyond the parent's.
func Clamp(parent Policy, req Request) Policy {
	eff := Policy{
		Filesystem:      parent.Filesystem,
		Network:         parent.Network,
		Approval:        parent.Approval,
		ApprovalTimeout: parent.ApprovalTimeout,
	}

	if req.Filesystem != nil && req.Filesystem.Rank() < eff.Filesystem.Rank() {
		eff.Filesystem = *req.Filesystem
	}
	if req.Network != nil && req.Network.Rank() < eff.Network.Rank() {
		eff.Network = *req.Network
	}
	if req.Approval != nil && req.Approval.Rank() < eff.Approval.Rank() {
		eff.Approval = *req.Approval
	}
	if req.ApprovalTimeout != nil && *req.ApprovalTimeout < eff.ApprovalTimeout {
		eff.ApprovalTimeout = *req.ApprovalTimeout
	}

	eff.NetworkAllowlist = clampAllowlist(parent, req, eff.Network)
	return eff
}

func clampAllowlist(parent Policy, req Request, effMode NetworkMode) []string {
	if effMode != NetworkAllowlist {
		return nil
	}

	parentList := NormalizeAllowlist(parent.NetworkAllowlist)
	reqList := NormalizeAllowlist(req.NetworkAllowlist)
	if req.NetworkAllowlist == nil {
		reqList = parentList
	}

	switch parent.Network {
	case NetworkDeny:
		// Cannot widen from deny.
		return nil
	case NetworkAllowlist:
		return intersect(parentList, reqList)
	case NetworkAllowAll:
		return reqList
	default:
		return nil
	}
}

func intersect(a, b []string) []string {
	if len(a) == 0 || len(b) == 0 {
		return nil
	}
	inA := make(map[string]struct{}, len(a))
	for _, d := range a {
		inA[d] = struct{}{}
	}
	var out []string
	for _, d := range b {
		if _, ok := inA[d]; ok {
			out = append(out, d)
		}
	}
	sort.Strings(out)
	return out
}
