//go:build !linux

package rtsched

const infinityRlimit = ^uint64(0)

// Apply is a no-op outside Linux: RT scheduling, memory locking, and
// CPU affinity have no portable equivalent, so every request is
// reported as not applied rather than failing the runtime.
func Apply(cfg Config) (Status, error) {
	return Status{}, nil
}

// CheckCapabilities reports no RT capability on non-Linux platforms.
func CheckCapabilities() Capabilities {
	return Capabilities{}
}
