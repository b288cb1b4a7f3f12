// Package classify infers from a failed command's output whether the failure
// was caused by sandbox restriction.
package classify

import (
	"strings"
	"unicode/utf8"

	"github.com/mkoppen/subwarden/internal/consts"
)

// Kind is the broad failure category
type Kind int

const (
	// KindUnknown means the output matched no restriction pattern
	KindUnknown Kind = iota
	// KindFilesystem means a filesystem restriction blocked the command
	KindFilesystem
	// KindNetwork means a network restriction blocked the command
	KindNetwork
)

func (k Kind) String() string {
	switch k {
	case KindFilesystem:
		return "filesystem"
	case KindNetwork:
		return "network"
	default:
		return "unknown"
	}
}

// Subtype narrows the failure category
type Subtype int

const (
	// SubtypeNone applies to unclassified failures
	SubtypeNone Subtype = iota
	// SubtypeWrite is a denied filesystem write
	SubtypeWrite
	// SubtypeDns is a failed name resolution
	SubtypeDns
	// SubtypeConnect is a failed or refused connection
	SubtypeConnect
)

func (s Subtype) String() string {
	switch s {
	case SubtypeWrite:
		return "write"
	case SubtypeDns:
		return "dns"
	case SubtypeConnect:
		return "connect"
	default:
		return "none"
	}
}

// Confidence grades how strongly the evidence supports the classification
type Confidence int

const (
	// ConfidenceLow applies to unclassified failures
	ConfidenceLow Confidence = iota
	// ConfidenceMedium applies to ambiguous signals like connection errors
	ConfidenceMedium
	// ConfidenceHigh applies to unambiguous signals like read-only filesystem errors
	ConfidenceHigh
)

func (c Confidence) String() string {
	switch c {
	case ConfidenceHigh:
		return "high"
	case ConfidenceMedium:
		return "medium"
	default:
		return "low"
	}
}

// Classification is the result of inspecting a failed command's output.
// Derived per failure, never stored.
type Classification struct {
	Kind       Kind
	Subtype    Subtype
	Confidence Confidence
	Evidence   string
}

// SandboxCaused reports whether the failure is attributable to sandbox
// restriction, which gates the retry-unsandboxed prompt.
func (c Classification) SandboxCaused() bool {
	return c.Kind != KindUnknown
}

// patternGroup holds substring signals that map to one classification.
// Groups are checked in order; first match wins.
type patternGroup struct {
	patterns   []string
	kind       Kind
	subtype    Subtype
	confidence Confidence
}

var patternGroups = []patternGroup{
	{
		patterns: []string{
			"read-only file system",
			"permission denied",
			"operation not permitted",
		},
		kind:       KindFilesystem,
		subtype:    SubtypeWrite,
		confidence: ConfidenceHigh,
	},
	{
		patterns: []string{
			"could not resolve host",
			"temporary failure in name resolution",
			"name or service not known",
			"no such host",
			"nodename nor servname provided",
		},
		kind:       KindNetwork,
		subtype:    SubtypeDns,
		confidence: ConfidenceMedium,
	},
	{
		patterns: []string{
			"network is unreachable",
			"connection refused",
			"connection timed out",
			"connection reset by peer",
			"failed to connect",
		},
		kind:       KindNetwork,
		subtype:    SubtypeConnect,
		confidence: ConfidenceMedium,
	},
}

// Classify runs the ordered pattern groups against the output and returns
// on first match, else Unknown/Low. Evidence is the matching line trimmed
// to a display limit.
func Classify(output string) Classification {
	lines := strings.Split(output, "\n")

	for _, group := range patternGroups {
		for _, pat := range group.patterns {
			for _, line := range lines {
				if !strings.Contains(strings.ToLower(line), pat) {
					continue
				}
				return Classification{
					Kind:       group.kind,
					Subtype:    group.subtype,
					Confidence: group.confidence,
					Evidence:   trimEvidence(line),
				}
			}
		}
	}

	return Classification{Kind: KindUnknown, Subtype: SubtypeNone, Confidence: ConfidenceLow}
}

// trimEvidence caps the line at the display limit, backing off to a rune
// boundary so the evidence stays valid UTF-8.
func trimEvidence(line string) string {
	line = strings.TrimSpace(line)
	if len(line) <= consts.MaxEvidenceLength {
		return line
	}
	cut := consts.MaxEvidenceLength
	for cut > 0 && !utf8.RuneStart(line[cut]) {
		cut--
	}
	return line[:cut]
}
