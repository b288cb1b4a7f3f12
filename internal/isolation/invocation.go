package isolation

import (
	"path/filepath"

	"github.com/mkoppen/subwarden/internal/policy"
)

// Paths carries the resolved directories and collaborators an invocation
// needs. Workspace and Home must already be symlink-free.
type Paths struct {
	Workspace string
	Home      string
	Temp      string
	ProxyAddr string
}

// BuildInvocation constructs the wrapper argument list enforcing the policy
// on one shell command. Pure function of its inputs. The wrapper is an argv
// prefix, which lets the hidden shim mode of this binary act as the wrapper.
//
// Network convention: AllowAll omits network flags entirely, which the
// wrapper treats as unrestricted. An allowlist that normalizes to empty is
// passed as an explicit deny; it is never promoted to allow-all.
func BuildInvocation(wrapper []string, command string, pol policy.Policy, paths Paths) []string {
	argv := append([]string{}, wrapper...)

	switch pol.Filesystem {
	case policy.FilesystemReadOnly:
		argv = append(argv, "--writable="+paths.Temp)
	case policy.FilesystemWorkspaceWrite:
		argv = append(argv,
			"--writable="+paths.Workspace,
			"--writable="+paths.Temp,
			// Hooks execute code on git operations, so writing them is
			// denied at every level short of full access. Enforcement is
			// wrapper-dependent: the landlock shim cannot subtract a path
			// from a writable tree and treats the flag as best-effort.
			"--deny="+filepath.Join(paths.Workspace, ".git", "hooks"),
		)
	case policy.FilesystemFullAccess:
		argv = append(argv, "--full-access")
	}

	switch pol.Network {
	case policy.NetworkDeny:
		argv = append(argv, "--net=deny")
	case policy.NetworkAllowlist:
		allowlist := policy.NormalizeAllowlist(pol.NetworkAllowlist)
		if len(allowlist) == 0 {
			argv = append(argv, "--net=deny")
		} else {
			argv = append(argv, "--net=proxy="+paths.ProxyAddr)
			for _, domain := range allowlist {
				argv = append(argv, "--allow-domain="+domain)
			}
		}
	case policy.NetworkAllowAll:
		// No network flags: unrestricted.
	}

	return append(argv, "--", "/bin/sh", "-c", command)
}
