// Package fieldbus implements the uniform driver abstraction that moves
// bits and analog words between the process image and external devices.
//
// Three variants share the same Driver interface: simulated (in-process,
// for testing and development), request/response (sequential Modbus TCP
// round-trips), and realtime (distributed-clock bus with working-counter
// validation). The scheduler depends only on Driver; it never type-switches
// on the concrete variant.
package fieldbus

// Inputs is the driver-side buffer the host reads after ReadInputs or
// Exchange. It mirrors the digital/analog input regions of the process
// image without committing to that ABI directly.
type Inputs struct {
	Digital uint32
	Analog  [16]int16
}

// Outputs is the driver-side buffer written by the host before
// WriteOutputs or Exchange.
type Outputs struct {
	Digital uint32
	Analog  [16]int16
}

// Driver is the fieldbus abstraction every variant implements.
type Driver interface {
	// Init opens the device, performs discovery, and brings all peers to
	// an operational state. It returns a plcerr of KindDriverInitFault if
	// the peer set is empty, wrong, or unreachable.
	Init() error

	// ReadInputs fills the driver's input buffer from the peer(s).
	ReadInputs() error

	// WriteOutputs transmits the given output snapshot.
	WriteOutputs(Outputs) error

	// Exchange performs a combined read+write in one wire cycle where the
	// protocol allows it. Preferred on realtime variants.
	Exchange(Outputs) error

	// GetInputs returns the most recently read input buffer.
	GetInputs() Inputs

	// SetOutputs stages an output snapshot for the next WriteOutputs or
	// Exchange call without transmitting it.
	SetOutputs(Outputs)

	// IsOperational is true iff the last exchange succeeded and the
	// driver state is steady.
	IsOperational() bool

	// Shutdown drives outputs to the safe state and closes connections.
	Shutdown() error
}
