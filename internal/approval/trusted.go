package approval

import (
	"path/filepath"
	"strings"
)

// Read-only shell verbs that never mutate state on their own
var safeCommands = map[string]bool{
	"ls":       true,
	"cat":      true,
	"grep":     true,
	"rg":       true,
	"head":     true,
	"tail":     true,
	"wc":       true,
	"echo":     true,
	"pwd":      true,
	"which":    true,
	"file":     true,
	"stat":     true,
	"du":       true,
	"df":       true,
	"env":      true,
	"printenv": true,
	"date":     true,
	"whoami":   true,
	"uname":    true,
	"basename": true,
	"dirname":  true,
	"realpath": true,
	"readlink": true,
	"sort":     true,
	"uniq":     true,
	"cut":      true,
	"tr":       true,
	"diff":     true,
	"tree":     true,
	"true":     true,
	"false":    true,
}

var gitSafeSubcommands = map[string]bool{
	"status":    true,
	"log":       true,
	"diff":      true,
	"show":      true,
	"branch":    true,
	"remote":    true,
	"ls-files":  true,
	"blame":     true,
	"describe":  true,
	"rev-parse": true,
	"shortlog":  true,
}

var cargoSafeSubcommands = map[string]bool{
	"check":    true,
	"tree":     true,
	"metadata": true,
	"version":  true,
}

// IsTrusted reports whether a shell command matches the static known-safe
// grammar used by the unless-trusted approval policy. Pipelines and
// &&/||/; chains are trusted only if every segment is. Redirection and
// substitution are never trusted.
func IsTrusted(command string) bool {
	command = strings.TrimSpace(command)
	if command == "" {
		return false
	}

	// Redirection or substitution can write files or smuggle commands.
	if strings.ContainsAny(command, "<>`") || strings.Contains(command, "$(") {
		return false
	}

	for _, segment := range splitSegments(command) {
		if !segmentTrusted(segment) {
			return false
		}
	}
	return true
}

// splitSegments breaks a command on pipe and chain operators
func splitSegments(command string) []string {
	replacer := strings.NewReplacer("&&", ";", "||", ";", "|", ";")
	var out []string
	for _, seg := range strings.Split(replacer.Replace(command), ";") {
		out = append(out, strings.TrimSpace(seg))
	}
	return out
}

func segmentTrusted(segment string) bool {
	fields := strings.Fields(segment)
	if len(fields) == 0 {
		return false
	}

	verb := filepath.Base(fields[0])
	args := fields[1:]

	switch verb {
	case "git":
		return subcommandSafe(args, gitSafeSubcommands)
	case "cargo":
		return subcommandSafe(args, cargoSafeSubcommands)
	case "find":
		// find itself only reads, but -exec/-delete act on matches.
		for _, a := range args {
			switch a {
			case "-exec", "-execdir", "-ok", "-okdir", "-delete":
				return false
			}
		}
		return true
	case "sed":
		// Without -n, sed is a stream editor; with -i it rewrites files.
		hasN := false
		for _, a := range args {
			if a == "-n" {
				hasN = true
			}
			if strings.HasPrefix(a, "-i") {
				return false
			}
		}
		return hasN
	default:
		return safeCommands[verb]
	}
}

func subcommandSafe(args []string, safe map[string]bool) bool {
	for _, a := range args {
		if strings.HasPrefix(a, "-") {
			continue
		}
		return safe[a]
	}
	return false
}
