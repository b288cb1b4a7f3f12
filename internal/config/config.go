// Package config loads layered JSON settings and produces the root sandbox
// policy all clamping starts from. Merge order: built-in defaults, then the
// user file, then the project file, then the session override.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mkoppen/subwarden/internal/consts"
	"github.com/mkoppen/subwarden/internal/policy"
)

// SandboxSettings is the sandbox section of the settings file
type SandboxSettings struct {
	FilesystemMode         string   `json:"filesystemMode"`
	NetworkMode            string   `json:"networkMode"`
	NetworkAllowlist       []string `json:"networkAllowlist"`
	ApprovalPolicy         string   `json:"approvalPolicy"`
	ApprovalTimeoutSeconds uint     `json:"approvalTimeoutSeconds"`
	WrapperPath            string   `json:"wrapperPath"`
	ProxyAddr              string   `json:"proxyAddr"`
}

// LimitSettings bounds the orchestrator
type LimitSettings struct {
	MaxWorkers int `json:"maxWorkers"`
	MaxDepth   int `json:"maxDepth"`
}

// LogSettings configures the file logger. An empty path disables logging.
type LogSettings struct {
	Level string `json:"level"`
	Path  string `json:"path"`
}

// Settings is the full configuration
type Settings struct {
	Sandbox SandboxSettings `json:"sandbox"`
	Limits  LimitSettings   `json:"limits"`
	Logging LogSettings     `json:"logging"`
}

// DefaultSettings returns the built-in defaults
func DefaultSettings() *Settings {
	return &Settings{
		Sandbox: SandboxSettings{
			FilesystemMode:         policy.FilesystemWorkspaceWrite.String(),
			NetworkMode:            policy.NetworkAllowlist.String(),
			ApprovalPolicy:         policy.ApprovalOnFailure.String(),
			ApprovalTimeoutSeconds: uint(consts.DefaultApprovalTimeout.Seconds()),
		},
		Limits: LimitSettings{
			MaxWorkers: consts.DefaultMaxWorkers,
			MaxDepth:   consts.DefaultMaxDepth,
		},
		Logging: LogSettings{
			Level: "info",
		},
	}
}

// UserSettingsPath returns the per-user settings file location
func UserSettingsPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to locate user config directory: %w", err)
	}
	return filepath.Join(dir, "subwarden", "settings.json"), nil
}

// ProjectSettingsPath returns the per-workspace settings file location
func ProjectSettingsPath(workspace string) string {
	return filepath.Join(workspace, ".subwarden", "settings.json")
}

// Load merges settings from all layers. Missing files are fine; malformed
// files are errors. sessionOverride is raw JSON applied last, or nil.
func Load(workspace string, sessionOverride []byte) (*Settings, error) {
	s := DefaultSettings()

	if userPath, err := UserSettingsPath(); err == nil {
		if err := mergeFile(s, userPath); err != nil {
			return nil, err
		}
	}
	if workspace != "" {
		if err := mergeFile(s, ProjectSettingsPath(workspace)); err != nil {
			return nil, err
		}
	}
	if len(sessionOverride) > 0 {
		if err := json.Unmarshal(sessionOverride, s); err != nil {
			return nil, fmt.Errorf("failed to parse session override: %w", err)
		}
	}
	return s, nil
}

func mergeFile(s *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return fmt.Errorf("failed to parse %s: %w", path, err)
	}
	return nil
}

// RootPolicy validates the sandbox section and returns the root policy.
// Unknown enum strings are errors, never silent defaults.
func (s *Settings) RootPolicy() (policy.Policy, error) {
	fs, err := policy.ParseFilesystemMode(s.Sandbox.FilesystemMode)
	if err != nil {
		return policy.Policy{}, err
	}
	net, err := policy.ParseNetworkMode(s.Sandbox.NetworkMode)
	if err != nil {
		return policy.Policy{}, err
	}
	app, err := policy.ParseApprovalPolicy(s.Sandbox.ApprovalPolicy)
	if err != nil {
		return policy.Policy{}, err
	}

	allowlist := policy.NormalizeAllowlist(s.Sandbox.NetworkAllowlist)
	if net != policy.NetworkAllowlist {
		allowlist = nil
	}
	return policy.Policy{
		Filesystem:       fs,
		Network:          net,
		NetworkAllowlist: allowlist,
		Approval:         app,
		ApprovalTimeout:  s.Sandbox.ApprovalTimeoutSeconds,
	}, nil
}
