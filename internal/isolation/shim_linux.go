//go:build linux

package isolation

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"

	"github.com/landlock-lsm/go-landlock/landlock"

	"github.com/mkoppen/subwarden/internal/logger"
)

// ShimVersion is printed by the shim's --version probe
const ShimVersion = "subwarden-shim 1"

type shimSpec struct {
	writable   []string
	deny       []string
	fullAccess bool
	netDeny    bool
	proxyPort  uint16
	command    []string
}

// RunShim is the entry point of the hidden shim mode. It parses the wrapper
// flag grammar, applies Landlock restrictions to the current process, then
// execs the wrapped command in place. Network allowlisting itself is the
// filtering proxy's job; the shim only pins which TCP port may be dialed.
func RunShim(args []string) error {
	if len(args) == 1 && args[0] == "--version" {
		fmt.Println(ShimVersion)
		return nil
	}

	spec, err := parseShimArgs(args)
	if err != nil {
		return err
	}

	if !spec.fullAccess {
		if err := applyPathRestrictions(spec); err != nil {
			return err
		}
	}
	if err := applyNetRestrictions(spec); err != nil {
		return err
	}

	path, err := exec.LookPath(spec.command[0])
	if err != nil {
		return fmt.Errorf("shim: command %q not found: %w", spec.command[0], err)
	}
	return syscall.Exec(path, spec.command, os.Environ())
}

func parseShimArgs(args []string) (*shimSpec, error) {
	spec := &shimSpec{}

	for i := 0; i < len(args); i++ {
		a := args[i]
		switch {
		case a == "--":
			spec.command = args[i+1:]
			i = len(args)
		case strings.HasPrefix(a, "--writable="):
			spec.writable = append(spec.writable, strings.TrimPrefix(a, "--writable="))
		case strings.HasPrefix(a, "--deny="):
			spec.deny = append(spec.deny, strings.TrimPrefix(a, "--deny="))
		case a == "--full-access":
			spec.fullAccess = true
		case a == "--net=deny":
			spec.netDeny = true
		case strings.HasPrefix(a, "--net=proxy="):
			addr := strings.TrimPrefix(a, "--net=proxy=")
			_, portStr, ok := strings.Cut(addr, ":")
			if !ok {
				return nil, fmt.Errorf("shim: malformed proxy address %q", addr)
			}
			port, err := strconv.ParseUint(portStr, 10, 16)
			if err != nil {
				return nil, fmt.Errorf("shim: malformed proxy port %q: %w", portStr, err)
			}
			spec.proxyPort = uint16(port)
		case strings.HasPrefix(a, "--allow-domain="):
			// Domain filtering happens in the proxy, not here.
		default:
			return nil, fmt.Errorf("shim: unknown flag %q", a)
		}
	}

	if len(spec.command) == 0 {
		return nil, errors.New("shim: no command given after --")
	}
	return spec, nil
}

func applyPathRestrictions(spec *shimSpec) error {
	rules := buildPathRules(spec)
	if err := landlock.V6.BestEffort().RestrictPaths(rules...); err != nil {
		return fmt.Errorf("shim: landlock path restriction failed: %w", err)
	}
	logger.Debug("shim applied %d landlock path rules", len(rules))
	return nil
}

// buildPathRules grants read-write access to each writable path on top of a
// read-only view of the rest of the filesystem. Every writable directory
// keeps its directory-level write rights: creating and removing entries at
// the workspace root must always work under workspace-write. Landlock grants
// are additive with no subtraction, so a deny inside a writable tree cannot
// be expressed here without revoking those rights; deny paths inside a
// writable tree are left to wrappers that can bind-mount, and logged.
func buildPathRules(spec *shimSpec) []landlock.Rule {
	rules := []landlock.Rule{landlock.RODirs("/")}

	for _, path := range spec.writable {
		info, err := os.Stat(path)
		if err != nil {
			logger.Warn("shim skipping writable path %s: %v", path, err)
			continue
		}
		if info.IsDir() {
			rules = append(rules, landlock.RWDirs(path))
		} else {
			rules = append(rules, landlock.RWFiles(path))
		}
	}

	for _, d := range spec.deny {
		if insideAny(d, spec.writable) {
			logger.Debug("shim cannot subtract %s from a writable tree; a bind-mount wrapper is needed to enforce it", d)
		}
	}
	return rules
}

// insideAny reports whether p lies strictly inside one of the roots
func insideAny(p string, roots []string) bool {
	for _, root := range roots {
		if p != root && strings.HasPrefix(p, root+string(filepath.Separator)) {
			return true
		}
	}
	return false
}

func applyNetRestrictions(spec *shimSpec) error {
	switch {
	case spec.netDeny:
		if err := landlock.V6.BestEffort().RestrictNet(); err != nil {
			return fmt.Errorf("shim: landlock net restriction failed: %w", err)
		}
	case spec.proxyPort != 0:
		if err := landlock.V6.BestEffort().RestrictNet(landlock.ConnectTCP(spec.proxyPort)); err != nil {
			return fmt.Errorf("shim: landlock net restriction failed: %w", err)
		}
	}
	return nil
}
