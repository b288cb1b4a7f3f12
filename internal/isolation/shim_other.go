//go:build !linux

package isolation

import "errors"

// ShimVersion is printed by the shim's --version probe
const ShimVersion = "subwarden-shim 1"

// RunShim is only implemented on Linux, where Landlock is available.
func RunShim(args []string) error {
	return errors.New("shim: the self-hosted isolation shim requires Linux; configure an external wrapper instead")
}
