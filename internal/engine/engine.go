// Package engine hosts the sandboxed logic module: it loads opaque
// bytecode, exposes the process image through the module's own linear
// memory, enforces an execution-budget (fuel) limit per call, and
// supports hot-swap between cycles.
package engine

import (
	"github.com/scanrt/plcrt/internal/image"
)

// Default tuning values, used when a zero Config is supplied.
const (
	DefaultMaxMemoryBytes = 1 << 20 // 1 MiB
	DefaultFuelPerCycle   = 500_000

	traceMaxCallsPerCycle = 100
	traceMaxBytesPerCall  = 256
)

// Config tunes engine limits. Zero values are replaced by defaults.
type Config struct {
	// MaxMemoryBytes bounds the sandbox's linear memory. The module's
	// declared memory maximum must not exceed this.
	MaxMemoryBytes uint64
	// FuelPerCycle is the execution budget given to each call of
	// init, step, or fault. Not carried between cycles.
	FuelPerCycle uint64
}

func (c Config) withDefaults() Config {
	if c.MaxMemoryBytes == 0 {
		c.MaxMemoryBytes = DefaultMaxMemoryBytes
	}
	if c.FuelPerCycle == 0 {
		c.FuelPerCycle = DefaultFuelPerCycle
	}
	return c
}

// TraceEntry is one sandbox-emitted trace record, captured via the
// trace(ptr,len) host call during a step, init, or fault invocation.
type TraceEntry struct {
	Data []byte
}

// LogicEngine is the sandbox host contract.
type LogicEngine interface {
	// Load parses and validates a module, instantiating it but not
	// running init. Replaces any previously loaded module.
	Load(module []byte) error

	// Init runs the module's optional init export, if present.
	Init() error

	// Step copies im into the sandbox's process-image region, invokes
	// the step export, and copies the output regions back into im.
	Step(im *image.Image) error

	// Fault runs the module's optional fault export, if present, in
	// place of step while the runtime is in fault state.
	Fault() error

	// Reload validates a new module before tearing down the current
	// one. If preserveMemory is true, the new module's linear memory
	// size at instantiation must match the old one's (otherwise Reload
	// fails with KindIncompatibleInterface and the current module stays
	// loaded), and bytes beyond the process-image region are carried
	// over. If preserveMemory is false, the new instance starts
	// zero-initialized and Init is invoked.
	Reload(module []byte, preserveMemory bool) error

	// Drain returns and clears the trace entries accumulated since the
	// last Drain call. Called once per cycle by the scheduler.
	Drain() []TraceEntry

	// UserFault reports whether the most recent call raised a fault via
	// the fault(code) host call, and its code.
	UserFault() (code uint32, raised bool)

	// Close releases the sandbox runtime.
	Close()
}
