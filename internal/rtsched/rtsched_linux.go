//go:build linux

package rtsched

import (
	"fmt"
	"os"
	"strings"

	"golang.org/x/sys/unix"
)

const infinityRlimit = uint64(unix.RLIM_INFINITY)

// prefaultChunkBytes bounds a single prefault pass; RT setup happens
// once at startup so a large request is chunked rather than blowing
// the goroutine stack.
const prefaultChunkBytes = 64 * 1024

// Apply applies memory locking, stack pre-faulting, scheduler policy,
// and CPU affinity in that order. It does not lock the OS thread
// itself. It must run on the thread that will execute the cyclic loop;
// callers should call runtime.LockOSThread before invoking Apply and
// keep running on that thread afterward.
func Apply(cfg Config) (Status, error) {
	if !cfg.Enabled {
		return Status{}, nil
	}

	var status Status

	if cfg.LockMemory {
		locked, err := lockMemory()
		if err != nil {
			return status, err
		}
		status.MemoryLocked = locked
	}

	status.StackPrefaulted = prefaultStack(cfg.PrefaultStackSize)

	policy, priority, err := setScheduler(cfg.Policy, cfg.Priority)
	if err != nil {
		return status, err
	}
	status.Policy, status.Priority = policy, priority

	affinity, err := setCPUAffinity(cfg.CPUAffinity)
	if err != nil {
		return status, err
	}
	status.CPUAffinity = affinity

	return status, nil
}

func lockMemory() (bool, error) {
	err := unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
	if err == nil {
		return true, nil
	}
	if err == unix.EPERM {
		return false, nil
	}
	return false, fmt.Errorf("mlockall: %w", err)
}

// prefaultStack touches stack pages in chunks so they are resident
// before the cyclic loop starts, avoiding a page fault mid-cycle.
func prefaultStack(size int) int {
	if size <= 0 {
		return 0
	}
	faulted := 0
	for faulted < size {
		chunk := prefaultChunkBytes
		if remaining := size - faulted; remaining < chunk {
			chunk = remaining
		}
		buf := make([]byte, chunk)
		for i := range buf {
			buf[i] = 0xAA
		}
		faulted += chunk
	}
	return faulted
}

func setScheduler(policy string, priority int) (string, int, error) {
	var linuxPolicy int
	switch policy {
	case "fifo", "":
		linuxPolicy = unix.SCHED_FIFO
	case "round-robin":
		linuxPolicy = unix.SCHED_RR
	case "other":
		return "other", 0, nil
	default:
		return "", 0, fmt.Errorf("unknown scheduler policy %q", policy)
	}

	clamped := priority
	if clamped < 1 {
		clamped = 1
	}
	if clamped > 99 {
		clamped = 99
	}

	param := unix.SchedParam{Priority: int32(clamped)}
	if err := unix.SchedSetscheduler(0, linuxPolicy, &param); err != nil {
		if err == unix.EPERM {
			return "", 0, nil
		}
		return "", 0, fmt.Errorf("sched_setscheduler: %w", err)
	}
	return policy, clamped, nil
}

func setCPUAffinity(cpus []int) ([]int, error) {
	if len(cpus) == 0 {
		return nil, nil
	}
	var set unix.CPUSet
	set.Zero()
	for _, cpu := range cpus {
		if cpu < 0 {
			return nil, fmt.Errorf("invalid cpu index %d", cpu)
		}
		set.Set(cpu)
	}
	if err := unix.SchedSetaffinity(0, &set); err != nil {
		if err == unix.EINVAL {
			return nil, nil
		}
		return nil, fmt.Errorf("sched_setaffinity: %w", err)
	}
	return cpus, nil
}

// CheckCapabilities inspects rlimits and /proc/version to estimate
// whether RT scheduling and memory locking are likely to succeed,
// without attempting either.
func CheckCapabilities() Capabilities {
	caps := Capabilities{IsRoot: unix.Geteuid() == 0}

	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_RTPRIO, &rlim); err == nil {
		caps.RTPrioLimit = rlim.Cur
		caps.HasRTPrioInfo = true
	}
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &rlim); err == nil {
		caps.MemlockLimit = rlim.Cur
	}

	caps.PreemptRT = preemptRTKernel()
	return caps
}

func preemptRTKernel() bool {
	version, err := os.ReadFile("/proc/version")
	if err != nil {
		return false
	}
	s := string(version)
	return strings.Contains(s, "PREEMPT_RT") || strings.Contains(s, "PREEMPT RT")
}
