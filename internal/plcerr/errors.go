// Package plcerr defines the runtime's error taxonomy.
//
// Every fault-capable subsystem (engine, scheduler, fieldbus driver)
// returns errors of Kind so callers can switch on cause without string
// matching, while the wrapped Err still carries the underlying detail.
package plcerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by its propagation policy, per the runtime's
// error handling design.
type Kind int

const (
	// KindMalformedModule means load/reload validation rejected the module.
	KindMalformedModule Kind = iota
	// KindForbiddenImport means a module imports outside the host whitelist.
	KindForbiddenImport
	// KindMissingExport means a required export (memory, step) is absent.
	KindMissingExport
	// KindIncompatibleInterface means a reload target's ABI doesn't match.
	KindIncompatibleInterface
	// KindFuelExhausted means a step/init/fault call ran out of execution budget.
	KindFuelExhausted
	// KindExecutionFault means the sandbox trapped (bounds violation, etc).
	KindExecutionFault
	// KindUserFault means the module raised a fault via the host call.
	KindUserFault
	// KindDeadlineMissed means a cycle ran past its deadline.
	KindDeadlineMissed
	// KindWatchdogFired means the independent watchdog deadline elapsed.
	KindWatchdogFired
	// KindDriverInitFault means a fieldbus driver failed to come up.
	KindDriverInitFault
	// KindDriverTransient means a recoverable I/O failure (timeout, reconnect).
	KindDriverTransient
	// KindDriverProtocol means a fatal, non-retryable protocol-level error.
	KindDriverProtocol
	// KindConfig means configuration was invalid.
	KindConfig
	// KindInvalidState means a state transition was attempted illegally.
	KindInvalidState
)

func (k Kind) String() string {
	switch k {
	case KindMalformedModule:
		return "malformed_module"
	case KindForbiddenImport:
		return "forbidden_import"
	case KindMissingExport:
		return "missing_export"
	case KindIncompatibleInterface:
		return "incompatible_interface"
	case KindFuelExhausted:
		return "fuel_exhausted"
	case KindExecutionFault:
		return "execution_fault"
	case KindUserFault:
		return "user_fault"
	case KindDeadlineMissed:
		return "deadline_missed"
	case KindWatchdogFired:
		return "watchdog_fired"
	case KindDriverInitFault:
		return "driver_init_fault"
	case KindDriverTransient:
		return "driver_transient"
	case KindDriverProtocol:
		return "driver_protocol"
	case KindConfig:
		return "config"
	case KindInvalidState:
		return "invalid_state"
	default:
		return "unknown"
	}
}

// Error is a classified runtime error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

func (e *Error) Unwrap() error { return e.Err }

// New builds a classified error with no underlying cause.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Msg: msg}
}

// Wrap classifies an existing error.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Msg: msg, Err: err}
}

// Is reports whether err is a *Error of the given kind.
func Is(err error, kind Kind) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind == kind
	}
	return false
}

// KindOf returns the Kind of err, or a false ok if err isn't a *Error.
func KindOf(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return 0, false
}

// Recoverable reports whether the error kind is recoverable locally
// without forcing a fault transition, per the error handling design.
func Recoverable(err error) bool {
	k, ok := KindOf(err)
	if !ok {
		return false
	}
	return k == KindDriverTransient
}
