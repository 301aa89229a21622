package rtsched

import "testing"

func TestCapabilities_RootCanAlwaysUseRTAndLock(t *testing.T) {
	caps := Capabilities{IsRoot: true}
	if !caps.CanUseRTScheduling() {
		t.Fatalf("expected root to be able to use RT scheduling")
	}
	if !caps.CanLockMemory() {
		t.Fatalf("expected root to be able to lock memory")
	}
}

func TestCapabilities_NonRootNeedsRTPrioLimit(t *testing.T) {
	caps := Capabilities{HasRTPrioInfo: true, RTPrioLimit: 0}
	if caps.CanUseRTScheduling() {
		t.Fatalf("expected no RT scheduling with a zero RLIMIT_RTPRIO")
	}
	caps.RTPrioLimit = 10
	if !caps.CanUseRTScheduling() {
		t.Fatalf("expected RT scheduling to be available with nonzero RLIMIT_RTPRIO")
	}
}

func TestCapabilities_NonRootNeedsUnlimitedMemlock(t *testing.T) {
	caps := Capabilities{MemlockLimit: 1024}
	if caps.CanLockMemory() {
		t.Fatalf("expected bounded RLIMIT_MEMLOCK to disallow locking")
	}
	caps.MemlockLimit = infinityRlimit
	if !caps.CanLockMemory() {
		t.Fatalf("expected RLIM_INFINITY to allow locking")
	}
}

func TestApply_Disabled(t *testing.T) {
	status, err := Apply(Config{Enabled: false})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if status.MemoryLocked || status.StackPrefaulted != 0 || status.Policy != "" || status.CPUAffinity != nil {
		t.Fatalf("expected zero-value status when disabled, got %+v", status)
	}
}
