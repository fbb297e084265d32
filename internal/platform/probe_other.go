//go:build !linux && !darwin && !freebsd

package platform

// Default returns the Probe for the running OS.
func Default() Probe {
	return Null{}
}
