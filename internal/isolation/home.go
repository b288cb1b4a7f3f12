package isolation

import (
	"fmt"
	"os"
	"path/filepath"
)

// Subdirectories of home that must exist and be writable before the wrapper
// binds them. Created at their resolved targets so the wrapper never sees a
// dangling bind.
var homeSubdirs = []string{
	filepath.Join(".local", "state", "subwarden"),
	filepath.Join(".cache", "subwarden"),
}

// ResolveHome resolves the home directory through any symlinks. Wrappers
// reject symlinked bind targets, so a home whose settings directory is a
// symlink must be used at its resolved path.
func ResolveHome(home string) (string, error) {
	if home == "" {
		var err error
		home, err = os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to determine home directory: %w", err)
		}
	}
	resolved, err := filepath.EvalSymlinks(home)
	if err != nil {
		return "", fmt.Errorf("failed to resolve home directory %s: %w", home, err)
	}
	return resolved, nil
}

// PrepareHome resolves home and pre-creates its default-writable
// subdirectories, returning the resolved path.
func PrepareHome(home string) (string, error) {
	resolved, err := ResolveHome(home)
	if err != nil {
		return "", err
	}
	for _, sub := range homeSubdirs {
		dir := filepath.Join(resolved, sub)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return "", fmt.Errorf("failed to create %s: %w", dir, err)
		}
	}
	return resolved, nil
}
