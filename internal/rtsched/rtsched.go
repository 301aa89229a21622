// Package rtsched applies OS-level real-time scheduling for the cyclic
// executor: memory locking, stack pre-faulting, SCHED_FIFO/SCHED_RR
// priority, and CPU affinity. Linux is fully supported; other
// platforms get a no-op that reports nothing was applied.
package rtsched

// Status reports what real-time setup actually took effect. A field
// left at its zero value means that feature was not requested or
// could not be applied; callers should log it and continue, since RT
// scheduling is an optimization, not a correctness requirement.
type Status struct {
	MemoryLocked    bool
	StackPrefaulted int
	Policy          string
	Priority        int
	CPUAffinity     []int
}

// Config is the subset of config.RealtimeConfig this package consumes,
// restated here so rtsched has no dependency on the config package.
type Config struct {
	Enabled           bool
	Policy            string // fifo | round-robin | other
	Priority          int
	CPUAffinity       []int
	LockMemory        bool
	PrefaultStackSize int
}

// Capabilities reports whether the process is likely able to use RT
// scheduling and memory locking, without actually attempting either.
type Capabilities struct {
	IsRoot        bool
	RTPrioLimit   uint64
	MemlockLimit  uint64
	HasRTPrioInfo bool
	PreemptRT     bool
}

func (c Capabilities) CanUseRTScheduling() bool {
	return c.IsRoot || (c.HasRTPrioInfo && c.RTPrioLimit > 0)
}

func (c Capabilities) CanLockMemory() bool {
	if c.IsRoot {
		return true
	}
	return c.MemlockLimit == infinityRlimit
}
