package engine

import (
	"encoding/binary"
	"sync"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/scanrt/plcrt/internal/image"
	"github.com/scanrt/plcrt/internal/plcerr"
)

// Host is the wasmer-backed LogicEngine. One Host instance owns one
// loaded module at a time; Reload swaps it for another without the
// scheduler ever observing a nil engine.
type Host struct {
	cfg Config

	mu       sync.Mutex
	engine   *wasmer.Engine
	store    *wasmer.Store
	module   *wasmer.Module
	instance *wasmer.Instance
	memory   *wasmer.Memory

	stepFn  wasmer.NativeFunction
	initFn  wasmer.NativeFunction
	faultFn wasmer.NativeFunction

	trace traceBuffer

	userFaultCode   uint32
	userFaultRaised bool
}

// NewHost constructs an unloaded Host. Load must be called before Init
// or Step.
func NewHost(cfg Config) *Host {
	return &Host{cfg: cfg.withDefaults()}
}

func costFunction(_ wasmer.Operator) uint64 { return 1 }

func (h *Host) newEngineAndStore() (*wasmer.Engine, *wasmer.Store) {
	config := wasmer.NewConfig()
	config.PushMeteringMiddleware(wasmer.NewMetering(h.cfg.FuelPerCycle, costFunction))
	eng := wasmer.NewEngineWithConfig(config)
	return eng, wasmer.NewStore(eng)
}

// Load parses, validates, and instantiates module, discarding any
// previously loaded instance.
func (h *Host) Load(module []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	eng, store := h.newEngineAndStore()
	mod, err := wasmer.NewModule(store, module)
	if err != nil {
		return plcerr.Wrap(plcerr.KindMalformedModule, "engine: parse module", err)
	}

	if err := validateModuleImports(mod); err != nil {
		return err
	}
	if err := validateModuleExports(mod); err != nil {
		return err
	}

	importObject := h.buildImportObject(store)
	instance, err := wasmer.NewInstance(mod, importObject)
	if err != nil {
		return plcerr.Wrap(plcerr.KindMalformedModule, "engine: instantiate module", err)
	}

	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return plcerr.Wrap(plcerr.KindMissingExport, "engine: get memory export", err)
	}
	declaredMax, hasMax := declaredMemoryLimit(mem)
	if err := validateMemoryLimit(declaredMax, hasMax, h.cfg.MaxMemoryBytes); err != nil {
		return err
	}

	stepFn, err := instance.Exports.GetFunction("step")
	if err != nil {
		return plcerr.Wrap(plcerr.KindMissingExport, "engine: get step export", err)
	}
	initFn, _ := instance.Exports.GetFunction("init")
	faultFn, _ := instance.Exports.GetFunction("fault")

	h.engine, h.store, h.module, h.instance, h.memory = eng, store, mod, instance, mem
	h.stepFn, h.initFn, h.faultFn = stepFn, initFn, faultFn
	h.trace = traceBuffer{}
	h.userFaultRaised = false
	return nil
}

func (h *Host) buildImportObject(store *wasmer.Store) *wasmer.ImportObject {
	importObject := wasmer.NewImportObject()

	traceType := wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32, wasmer.I32), wasmer.NewValueTypes())
	traceFn := wasmer.NewFunction(store, traceType, func(args []wasmer.Value) ([]wasmer.Value, error) {
		ptr := args[0].I32()
		length := args[1].I32()
		h.hostTrace(ptr, length)
		return []wasmer.Value{}, nil
	})

	faultType := wasmer.NewFunctionType(wasmer.NewValueTypes(wasmer.I32), wasmer.NewValueTypes())
	faultFn := wasmer.NewFunction(store, faultType, func(args []wasmer.Value) ([]wasmer.Value, error) {
		code := args[0].I32()
		h.userFaultCode = uint32(code)
		h.userFaultRaised = true
		return []wasmer.Value{}, nil
	})

	importObject.Register("env", map[string]wasmer.IntoExtern{
		"trace": traceFn,
		"fault": faultFn,
	})
	return importObject
}

// hostTrace implements the trace(ptr,len) host call: bounds-check
// against the current memory size, then hand off to the rate-limited
// buffer. Out-of-bounds requests are silently dropped rather than
// trapping, matching the "validate bounds before any access" contract
// without turning a logging call into a fault source.
func (h *Host) hostTrace(ptr, length int32) {
	if ptr < 0 || length < 0 {
		return
	}
	data := h.memory.Data()
	start := int(ptr)
	end := start + int(length)
	if start > len(data) || end > len(data) || end < start {
		return
	}
	h.trace.record(data[start:end])
}

// Init runs the module's optional init export under a fresh fuel
// allotment.
func (h *Host) Init() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.initFn == nil {
		return nil
	}
	return h.callWithFuel(func() error {
		_, err := h.initFn()
		return err
	})
}

// Step copies im's bytes into the sandbox's process-image region,
// invokes step, and copies the output regions back out. Host-owned
// bookkeeping fields (period, flags, cycle counter, fault code) are
// never written back from sandbox memory: the sandbox may scribble on
// them, but only the digital/analog output regions are trusted.
func (h *Host) Step(im *image.Image) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	mem := h.memory.Data()
	if len(mem) < image.Size {
		return plcerr.New(plcerr.KindExecutionFault, "engine: sandbox memory smaller than process image")
	}
	copy(mem[:image.Size], im.Bytes())

	if err := h.callWithFuel(func() error {
		_, err := h.stepFn()
		return err
	}); err != nil {
		return err
	}

	mem = h.memory.Data()
	im.SetDigitalOutputs(binary.LittleEndian.Uint32(mem[image.OffDigitalOutputs:]))
	for ch := 0; ch < 16; ch++ {
		off := image.OffAnalogOutputs + ch*2
		im.SetAnalogOutput(ch, int16(binary.LittleEndian.Uint16(mem[off:])))
	}
	return nil
}

// Fault runs the module's optional fault export in place of step while
// the runtime is latched in fault state.
func (h *Host) Fault() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.faultFn == nil {
		return nil
	}
	err := h.callWithFuel(func() error {
		_, err := h.faultFn()
		return err
	})
	if err != nil {
		return plcerr.Wrap(plcerr.KindExecutionFault, "engine: fault export", err)
	}
	return nil
}

// callWithFuel resets the metering budget, invokes fn, and classifies
// exhaustion vs. an ordinary trap.
func (h *Host) callWithFuel(fn func() error) error {
	wasmer.SetRemainingPoints(h.store, h.instance, h.cfg.FuelPerCycle)
	h.userFaultRaised = false

	err := fn()
	if err != nil {
		if wasmer.MeteringPointsExhausted(h.instance) {
			return plcerr.Wrap(plcerr.KindFuelExhausted, "engine: fuel exhausted", err)
		}
		return plcerr.Wrap(plcerr.KindExecutionFault, "engine: trap", err)
	}
	return nil
}

// Reload validates newModule fully before tearing down the current
// instance. Must be called only between cycles; the caller (scheduler)
// is responsible for the one-cycle-period time budget. If parsing,
// validation, instantiation or the preserve-memory size check fails,
// the current instance is left in place. When preserveMemory is false,
// the optional init export runs after the swap, so an init error is
// returned with the new instance already installed.
func (h *Host) Reload(module []byte, preserveMemory bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	oldMemory := h.memory
	oldInstance := h.instance

	eng, store := h.newEngineAndStore()
	mod, err := wasmer.NewModule(store, module)
	if err != nil {
		return plcerr.Wrap(plcerr.KindMalformedModule, "engine: parse reload module", err)
	}
	if err := validateModuleImports(mod); err != nil {
		return err
	}
	if err := validateModuleExports(mod); err != nil {
		return err
	}

	importObject := h.buildImportObject(store)
	instance, err := wasmer.NewInstance(mod, importObject)
	if err != nil {
		return plcerr.Wrap(plcerr.KindMalformedModule, "engine: instantiate reload module", err)
	}
	mem, err := instance.Exports.GetMemory("memory")
	if err != nil {
		return plcerr.Wrap(plcerr.KindMissingExport, "engine: get memory export", err)
	}
	declaredMax, hasMax := declaredMemoryLimit(mem)
	if err := validateMemoryLimit(declaredMax, hasMax, h.cfg.MaxMemoryBytes); err != nil {
		return err
	}

	stepFn, err := instance.Exports.GetFunction("step")
	if err != nil {
		return plcerr.Wrap(plcerr.KindMissingExport, "engine: get step export", err)
	}
	initFn, _ := instance.Exports.GetFunction("init")
	faultFn, _ := instance.Exports.GetFunction("fault")

	if preserveMemory {
		if err := incompatibleInterface(uint64(len(oldMemory.Data())), uint64(len(mem.Data()))); err != nil {
			return err
		}
		dst, src := mem.Data(), oldMemory.Data()
		copy(dst[image.Size:], src[image.Size:])
		for i := 0; i < image.Size; i++ {
			dst[i] = 0
		}
	}

	h.engine, h.store, h.module, h.instance, h.memory = eng, store, mod, instance, mem
	h.stepFn, h.initFn, h.faultFn = stepFn, initFn, faultFn
	h.trace = traceBuffer{}
	h.userFaultRaised = false

	_ = oldInstance // old instance is dropped; wasmer finalizers reclaim it.

	if !preserveMemory {
		if h.initFn != nil {
			if err := h.callWithFuel(func() error { _, err := h.initFn(); return err }); err != nil {
				return err
			}
		}
	}
	return nil
}

// Drain returns and clears the trace entries from the last cycle.
func (h *Host) Drain() []TraceEntry {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.trace.drain()
}

// UserFault reports the most recent fault(code) host call, if any.
func (h *Host) UserFault() (uint32, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.userFaultCode, h.userFaultRaised
}

// Close releases the wasmer runtime. The Host is not usable afterward.
func (h *Host) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.instance = nil
	h.module = nil
	h.store = nil
	h.engine = nil
	h.memory = nil
}

func validateModuleImports(mod *wasmer.Module) error {
	var descs []importDesc
	for _, imp := range mod.Imports() {
		descs = append(descs, importDesc{Module: imp.Module(), Name: imp.Name()})
	}
	return validateImports(descs)
}

func validateModuleExports(mod *wasmer.Module) error {
	set := exportSet{}
	for _, exp := range mod.Exports() {
		set[exp.Name()] = true
	}
	return validateExports(set)
}
