package engine

import (
	"fmt"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/scanrt/plcrt/internal/plcerr"
)

// unboundedMaxPages is the wasm encoding's sentinel for "no declared
// maximum" on a memory's limits.
const unboundedMaxPages = uint32(0xffffffff)

// declaredMemoryLimit reads mem's declared maximum size in bytes, as
// published in the module's memory type, not its current (initial)
// size. A module can start small and still declare a large maximum
// that memory.grow reaches well past instantiation.
func declaredMemoryLimit(mem *wasmer.Memory) (maxBytes uint64, hasMax bool) {
	limits := mem.Type().Limits()
	max := limits.Maximum()
	if max == unboundedMaxPages {
		return 0, false
	}
	return uint64(wasmer.Pages(max).ToBytes()), true
}

// importDesc is a module-relative view of a single wasm import,
// decoupled from wasmer's types so the whitelist check can be unit
// tested without instantiating a real module.
type importDesc struct {
	Module string
	Name   string
}

// allowedImports is the fixed host-call whitelist: trace and fault,
// both in the env namespace. Nothing else may be imported.
var allowedImports = map[importDesc]bool{
	{Module: "env", Name: "trace"}: true,
	{Module: "env", Name: "fault"}: true,
}

func validateImports(imports []importDesc) error {
	for _, im := range imports {
		if !allowedImports[im] {
			return plcerr.New(plcerr.KindForbiddenImport,
				fmt.Sprintf("import %s.%s outside host whitelist", im.Module, im.Name))
		}
	}
	return nil
}

// exportSet is the set of export names a module declares, decoupled
// from wasmer's ExportType for the same reason as importDesc.
type exportSet map[string]bool

func validateExports(exports exportSet) error {
	if !exports["memory"] {
		return plcerr.New(plcerr.KindMissingExport, "missing required export: memory")
	}
	if !exports["step"] {
		return plcerr.New(plcerr.KindMissingExport, "missing required export: step")
	}
	return nil
}

// validateMemoryLimit checks a module's declared maximum memory size,
// in bytes, against the configured cap. A module with no declared
// maximum (unbounded growth) is rejected: the host cannot enforce a
// cap against a module that didn't publish one.
func validateMemoryLimit(declaredMaxBytes uint64, hasMax bool, capBytes uint64) error {
	if !hasMax {
		return plcerr.New(plcerr.KindMalformedModule, "module memory has no declared maximum")
	}
	if declaredMaxBytes > capBytes {
		return plcerr.New(plcerr.KindMalformedModule,
			fmt.Sprintf("module memory maximum %d exceeds configured cap %d", declaredMaxBytes, capBytes))
	}
	return nil
}

// incompatibleInterface reports whether a reload target is structurally
// incompatible with preserve_memory semantics: its linear memory size
// (in bytes, at instantiation) must match the outgoing instance's for
// bytes beyond the process-image region to be copied.
func incompatibleInterface(oldSizeBytes, newSizeBytes uint64) error {
	if oldSizeBytes != newSizeBytes {
		return plcerr.New(plcerr.KindIncompatibleInterface,
			fmt.Sprintf("reload memory size mismatch: old=%d new=%d", oldSizeBytes, newSizeBytes))
	}
	return nil
}
