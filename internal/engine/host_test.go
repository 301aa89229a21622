package engine

import (
	"testing"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/scanrt/plcrt/internal/image"
	"github.com/scanrt/plcrt/internal/plcerr"
)

// watModule compiles an inline WAT source into wasm bytes, the way
// wasmer-go's own examples author small test modules without an
// external ST compiler.
func watModule(t *testing.T, src string) []byte {
	t.Helper()
	bytes, err := wasmer.Wat2Wasm(src)
	if err != nil {
		t.Fatalf("wat2wasm: %v", err)
	}
	return bytes
}

func TestHost_LoadAndStepEchoesDigitalIO(t *testing.T) {
	src := `(module
	  (memory (export "memory") 1 16)
	  (func (export "step")
	    (i32.store (i32.const 4) (i32.load (i32.const 0)))))`

	h := NewHost(Config{MaxMemoryBytes: 1 << 20, FuelPerCycle: 10_000})
	if err := h.Load(watModule(t, src)); err != nil {
		t.Fatalf("load: %v", err)
	}

	im := image.New()
	im.SetDigitalInputs(0xCAFEBABE)
	if err := h.Step(im); err != nil {
		t.Fatalf("step: %v", err)
	}
	if got := im.DigitalOutputs(); got != 0xCAFEBABE {
		t.Fatalf("expected digital outputs to echo inputs, got %#x", got)
	}
}

// TestHost_FuelExhaustionOnInfiniteLoop covers the fuel-exhaustion
// termination property: a module that never returns must be stopped by
// the metering budget rather than running forever.
func TestHost_FuelExhaustionOnInfiniteLoop(t *testing.T) {
	src := `(module
	  (memory (export "memory") 1 16)
	  (func (export "step")
	    (loop $l
	      br $l)))`

	h := NewHost(Config{MaxMemoryBytes: 1 << 20, FuelPerCycle: 10_000})
	if err := h.Load(watModule(t, src)); err != nil {
		t.Fatalf("load: %v", err)
	}

	err := h.Step(image.New())
	if err == nil {
		t.Fatalf("expected an error from an infinite loop")
	}
	if !plcerr.Is(err, plcerr.KindFuelExhausted) {
		t.Fatalf("expected KindFuelExhausted, got %v", err)
	}
}

// TestHost_ReloadPreservesMemoryBeyondProcessImage covers the hot-swap
// scenario: bytes past the process-image region survive a
// preserve_memory reload into a same-sized module, even though the
// process-image region itself is zeroed for the incoming instance.
func TestHost_ReloadPreservesMemoryBeyondProcessImage(t *testing.T) {
	counterUp := `(module
	  (memory (export "memory") 1 16)
	  (func (export "step")
	    (i32.store (i32.const 256)
	      (i32.add (i32.load (i32.const 256)) (i32.const 1)))))`
	counterToOutput := `(module
	  (memory (export "memory") 1 16)
	  (func (export "step")
	    (i32.store (i32.const 4) (i32.load (i32.const 256)))))`

	h := NewHost(Config{MaxMemoryBytes: 1 << 20, FuelPerCycle: 10_000})
	if err := h.Load(watModule(t, counterUp)); err != nil {
		t.Fatalf("load: %v", err)
	}

	im := image.New()
	for i := 0; i < 3; i++ {
		if err := h.Step(im); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}

	if err := h.Reload(watModule(t, counterToOutput), true); err != nil {
		t.Fatalf("reload: %v", err)
	}

	if err := h.Step(im); err != nil {
		t.Fatalf("step after reload: %v", err)
	}
	if got := im.DigitalOutputs(); got != 3 {
		t.Fatalf("expected reload to preserve the counter at 3, got %d", got)
	}
}

// TestHost_ReloadRejectsMismatchedMemorySize covers the reload-rejected
// path: a replacement module whose memory size differs from the
// outgoing instance's is incompatible with preserve_memory, and the
// old instance must remain usable.
func TestHost_ReloadRejectsMismatchedMemorySize(t *testing.T) {
	small := `(module
	  (memory (export "memory") 1 16)
	  (func (export "step")))`
	bigger := `(module
	  (memory (export "memory") 2 16)
	  (func (export "step")))`

	h := NewHost(Config{MaxMemoryBytes: 1 << 20, FuelPerCycle: 10_000})
	if err := h.Load(watModule(t, small)); err != nil {
		t.Fatalf("load: %v", err)
	}

	err := h.Reload(watModule(t, bigger), true)
	if !plcerr.Is(err, plcerr.KindIncompatibleInterface) {
		t.Fatalf("expected KindIncompatibleInterface, got %v", err)
	}

	if err := h.Step(image.New()); err != nil {
		t.Fatalf("expected old instance to remain usable after a rejected reload: %v", err)
	}
}
